package httpserver

import (
	"net/http"
	"os"
	"path"
	"path/filepath"
)

const indexFile = "index.html"

// mountStatic serves the frontend from staticDir for every path the API does
// not claim. Misses answer with the JSON not_found body.
func (s *Server) mountStatic() {
	s.r.Get("/", s.serveStatic)
	s.r.Get("/favicon.ico", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	s.r.NotFound(s.serveStatic)
	s.r.MethodNotAllowed(s.serveStatic)
}

// serveStatic resolves the request path under staticDir. Only regular files
// are served; "/" maps to index.html.
func (s *Server) serveStatic(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		s.writeError(w, r, errNotFound)
		return
	}
	if s.staticDir == "" {
		s.writeError(w, r, errNotFound)
		return
	}

	// Clean against a rooted path so ".." can never climb out of staticDir.
	rel := path.Clean("/" + r.URL.Path)
	if rel == "/" {
		rel = "/" + indexFile
	}
	name := filepath.Join(s.staticDir, filepath.FromSlash(rel))

	fi, err := os.Stat(name)
	if err != nil || !fi.Mode().IsRegular() {
		s.writeError(w, r, errNotFound)
		return
	}
	f, err := os.Open(name)
	if err != nil {
		s.writeError(w, r, errNotFound)
		return
	}
	defer f.Close()
	http.ServeContent(w, r, fi.Name(), fi.ModTime(), f)
}
