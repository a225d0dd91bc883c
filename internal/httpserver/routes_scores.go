// internal/httpserver/routes_scores.go
//
// Score endpoints under /api/scores:
//   - POST /             → record a score for the caller, 201 {ok}
//   - GET  /my           → caller's 20 most recent scores and all-time best
//   - GET  /leaderboard  → top 20 users by best score (public)

package httpserver

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/hlog"

	"github.com/useless-store/scoreboard/internal/metrics"
	"github.com/useless-store/scoreboard/internal/store"
)

// submitScoreReq keeps the raw score so strings and numbers can both be read.
type submitScoreReq struct {
	Score json.RawMessage `json:"score"`
}

// scoreInput is the parsed score, validated before it reaches the store.
type scoreInput struct {
	Score int64 `validate:"gte=0"`
}

type scoreDTO struct {
	ID        int64     `json:"id"`
	Score     int64     `json:"score"`
	CreatedAt time.Time `json:"created_at"`
}

type myScoresResponse struct {
	Recent []scoreDTO `json:"recent"`
	Best   int64      `json:"best"`
}

type leaderboardRowDTO struct {
	UserID int64   `json:"user_id"`
	Best   int64   `json:"best"`
	Name   *string `json:"name"`
	Email  string  `json:"email"`
}

type leaderboardResponse struct {
	Top []leaderboardRowDTO `json:"top"`
}

var errScoreNotInteger = errors.New("score is not an integer")

// mountScoreRoutes registers /scores/* on the /api router.
func (s *Server) mountScoreRoutes(r chi.Router) {
	r.Route("/scores", func(r chi.Router) {
		r.Post("/", s.handleSubmitScore)
		r.Get("/my", s.handleMyScores)
		r.Get("/leaderboard", s.handleLeaderboard)
	})
}

// handleSubmitScore records one score for the authenticated caller.
func (s *Server) handleSubmitScore(w http.ResponseWriter, r *http.Request) {
	me, ok := s.requireIdentity(w, r)
	if !ok {
		return
	}

	var req submitScoreReq
	if err := decodeJSON(w, r, &req); err != nil {
		hlog.FromRequest(r).Debug().Err(err).Msg("unreadable score body")
		metrics.ScoresRejectedTotal.Inc()
		s.writeError(w, r, errInvalidScore)
		return
	}
	n, err := parseScore(req.Score)
	if err == nil {
		err = s.validate.check(scoreInput{Score: n})
	}
	if err != nil {
		hlog.FromRequest(r).Debug().Str("reason", err.Error()).Msg("rejected score")
		metrics.ScoresRejectedTotal.Inc()
		s.writeError(w, r, errInvalidScore)
		return
	}

	err = s.store.InTx(r.Context(), func(tx store.Tx) error {
		_, err := tx.AddScore(r.Context(), me.UserID, n)
		return err
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	metrics.ScoresSubmittedTotal.Inc()
	writeJSON(w, http.StatusCreated, okResponse{OK: true})
}

// handleMyScores returns the caller's recent scores, newest first, and best.
func (s *Server) handleMyScores(w http.ResponseWriter, r *http.Request) {
	me, ok := s.requireIdentity(w, r)
	if !ok {
		return
	}

	var (
		recent []store.Score
		best   int64
	)
	err := s.store.InTx(r.Context(), func(tx store.Tx) error {
		var err error
		if recent, err = tx.RecentScores(r.Context(), me.UserID, recentLimit); err != nil {
			return err
		}
		best, err = tx.BestScore(r.Context(), me.UserID)
		return err
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	out := myScoresResponse{Recent: make([]scoreDTO, 0, len(recent)), Best: best}
	for _, sc := range recent {
		out.Recent = append(out.Recent, scoreDTO{ID: sc.ID, Score: sc.Score, CreatedAt: sc.CreatedAt})
	}
	writeJSON(w, http.StatusOK, out)
}

// handleLeaderboard returns each user's best score, highest first.
func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	var rows []store.LeaderboardRow
	err := s.store.InTx(r.Context(), func(tx store.Tx) error {
		var err error
		rows, err = tx.Leaderboard(r.Context(), leaderboardLimit)
		return err
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	out := leaderboardResponse{Top: make([]leaderboardRowDTO, 0, len(rows))}
	for _, row := range rows {
		out.Top = append(out.Top, leaderboardRowDTO{UserID: row.UserID, Best: row.Best, Name: row.Name, Email: row.Email})
	}
	writeJSON(w, http.StatusOK, out)
}

// parseScore reads a score given as a JSON integer or an integer string.
// An absent score is 0.
func parseScore(raw json.RawMessage) (int64, error) {
	if len(raw) == 0 {
		return 0, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return 0, err
	}
	switch x := v.(type) {
	case json.Number:
		return strconv.ParseInt(x.String(), 10, 64)
	case string:
		return strconv.ParseInt(strings.TrimSpace(x), 10, 64)
	default:
		return 0, errScoreNotInteger
	}
}
