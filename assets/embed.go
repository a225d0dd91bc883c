package assets

import (
	"embed"
	"io/fs"
	"path"
	"sort"
	"strings"
)

//go:embed migrations
var FS embed.FS

// Migration is a single versioned SQL script.
type Migration struct {
	Name string // e.g. "sqlite/001_init.sql"
	SQL  string
}

// Migrations returns the scripts for a dialect ("sqlite" or "postgres") in lexical order.
func Migrations(dialect string) ([]Migration, error) {
	dir := path.Join("migrations", dialect)
	entries, err := fs.ReadDir(FS, dir)
	if err != nil {
		return nil, err
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(strings.ToLower(e.Name()), ".sql") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	out := make([]Migration, 0, len(names))
	for _, n := range names {
		b, err := fs.ReadFile(FS, path.Join(dir, n))
		if err != nil {
			return nil, err
		}
		out = append(out, Migration{Name: dialect + "/" + n, SQL: string(b)})
	}
	return out, nil
}
