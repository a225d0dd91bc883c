// internal/store/memory.go
//
// In-memory implementation of Store.
// Used by handler tests and by DATABASE_URL=memory:// for throwaway runs.
//
// Characteristics:
//   - One mutex guards all state; a transaction holds it from begin to commit.
//   - Writes go to a private copy of the tables and are swapped in on commit,
//     so an error or panic inside InTx leaves the store untouched.
//   - State is lost when the process restarts.

package store

import (
	"context"
	"sort"
	"sync"
)

// memory is a map/slice-based Store implementation.
type memory struct {
	mu        sync.Mutex
	users     []User
	scores    []Score
	nextUser  int64
	nextScore int64
}

// NewMemoryStore constructs an empty in-memory Store.
func NewMemoryStore() Store {
	return &memory{nextUser: 1, nextScore: 1}
}

func (m *memory) InTx(ctx context.Context, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	tx := &memTx{
		users:     append([]User(nil), m.users...),
		scores:    append([]Score(nil), m.scores...),
		nextUser:  m.nextUser,
		nextScore: m.nextScore,
	}
	if err := fn(tx); err != nil {
		return err
	}
	m.users, m.scores = tx.users, tx.scores
	m.nextUser, m.nextScore = tx.nextUser, tx.nextScore
	return nil
}

func (m *memory) Ping(ctx context.Context) error { return ctx.Err() }

func (m *memory) Close() error { return nil }

// DeleteUser removes a user and, like the SQL schema's ON DELETE CASCADE, all of its scores.
// Not reachable from the HTTP API.
func (m *memory) DeleteUser(ctx context.Context, id int64) error {
	return m.InTx(ctx, func(t Tx) error {
		tx := t.(*memTx)
		idx := -1
		for i := range tx.users {
			if tx.users[i].ID == id {
				idx = i
				break
			}
		}
		if idx < 0 {
			return ErrNotFound
		}
		tx.users = append(tx.users[:idx], tx.users[idx+1:]...)
		kept := tx.scores[:0]
		for _, s := range tx.scores {
			if s.UserID != id {
				kept = append(kept, s)
			}
		}
		tx.scores = kept
		return nil
	})
}

// memTx works on private copies of the tables.
type memTx struct {
	users     []User
	scores    []Score
	nextUser  int64
	nextScore int64
}

func (t *memTx) EmailExists(_ context.Context, email string) (bool, error) {
	return t.findByEmail(email) != nil, nil
}

func (t *memTx) CreateUser(_ context.Context, email, passwordHash string, name *string) (*User, error) {
	if t.findByEmail(email) != nil {
		return nil, ErrEmailInUse
	}
	u := User{
		ID:           t.nextUser,
		Email:        email,
		PasswordHash: passwordHash,
		Name:         name,
		CreatedAt:    now(),
	}
	t.nextUser++
	t.users = append(t.users, u)
	return &u, nil
}

func (t *memTx) UserByEmail(_ context.Context, email string) (*User, error) {
	if u := t.findByEmail(email); u != nil {
		cp := *u
		return &cp, nil
	}
	return nil, ErrNotFound
}

func (t *memTx) UserByID(_ context.Context, id int64) (*User, error) {
	if u := t.findByID(id); u != nil {
		cp := *u
		return &cp, nil
	}
	return nil, ErrNotFound
}

func (t *memTx) AddScore(_ context.Context, userID, score int64) (*Score, error) {
	if t.findByID(userID) == nil {
		return nil, ErrNotFound
	}
	s := Score{ID: t.nextScore, UserID: userID, Score: score, CreatedAt: now()}
	t.nextScore++
	t.scores = append(t.scores, s)
	return &s, nil
}

func (t *memTx) RecentScores(_ context.Context, userID int64, limit int) ([]Score, error) {
	out := []Score{}
	for _, s := range t.scores {
		if s.UserID == userID {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (t *memTx) BestScore(_ context.Context, userID int64) (int64, error) {
	var best int64
	for _, s := range t.scores {
		if s.UserID == userID && s.Score > best {
			best = s.Score
		}
	}
	return best, nil
}

func (t *memTx) Leaderboard(_ context.Context, limit int) ([]LeaderboardRow, error) {
	best := map[int64]int64{}
	for _, s := range t.scores {
		if cur, ok := best[s.UserID]; !ok || s.Score > cur {
			best[s.UserID] = s.Score
		}
	}
	out := make([]LeaderboardRow, 0, len(best))
	for uid, b := range best {
		u := t.findByID(uid)
		if u == nil {
			continue
		}
		out = append(out, LeaderboardRow{UserID: uid, Best: b, Name: u.Name, Email: u.Email})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Best != out[j].Best {
			return out[i].Best > out[j].Best
		}
		return out[i].UserID < out[j].UserID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (t *memTx) findByEmail(email string) *User {
	for i := range t.users {
		if t.users[i].Email == email {
			return &t.users[i]
		}
	}
	return nil
}

func (t *memTx) findByID(id int64) *User {
	for i := range t.users {
		if t.users[i].ID == id {
			return &t.users[i]
		}
	}
	return nil
}
