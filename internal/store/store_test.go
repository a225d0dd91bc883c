package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

// fakeClock makes created_at deterministic and strictly increasing.
func fakeClock(t *testing.T) {
	t.Helper()
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	tick := 0
	prev := now
	now = func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}
	t.Cleanup(func() { now = prev })
}

func strptr(s string) *string { return &s }

func mustCreateUser(t *testing.T, st Store, email string, name *string) *User {
	t.Helper()
	var u *User
	err := st.InTx(context.Background(), func(tx Tx) error {
		var err error
		u, err = tx.CreateUser(context.Background(), email, "hash", name)
		return err
	})
	if err != nil {
		t.Fatalf("create user %s: %v", email, err)
	}
	return u
}

func mustAddScore(t *testing.T, st Store, userID, score int64) {
	t.Helper()
	err := st.InTx(context.Background(), func(tx Tx) error {
		_, err := tx.AddScore(context.Background(), userID, score)
		return err
	})
	if err != nil {
		t.Fatalf("add score: %v", err)
	}
}

// runStoreSuite exercises the Store contract; both implementations must pass it.
func runStoreSuite(t *testing.T, open func(t *testing.T) Store) {
	t.Run("CreateAndLookup", func(t *testing.T) {
		st := open(t)
		ctx := context.Background()
		created := mustCreateUser(t, st, "a@x.com", strptr("Alice"))
		if created.ID == 0 {
			t.Fatalf("expected system-assigned id")
		}
		if created.CreatedAt.IsZero() {
			t.Fatalf("expected created_at to be set")
		}

		err := st.InTx(ctx, func(tx Tx) error {
			ok, err := tx.EmailExists(ctx, "a@x.com")
			if err != nil || !ok {
				return fmt.Errorf("EmailExists = %v, %v", ok, err)
			}
			byEmail, err := tx.UserByEmail(ctx, "a@x.com")
			if err != nil {
				return err
			}
			byID, err := tx.UserByID(ctx, created.ID)
			if err != nil {
				return err
			}
			if byEmail.ID != created.ID || byID.Email != "a@x.com" {
				return fmt.Errorf("lookup mismatch: %+v %+v", byEmail, byID)
			}
			if byID.Name == nil || *byID.Name != "Alice" {
				return fmt.Errorf("unexpected name %v", byID.Name)
			}
			if !byID.CreatedAt.Equal(created.CreatedAt) {
				return fmt.Errorf("created_at %v != %v", byID.CreatedAt, created.CreatedAt)
			}
			return nil
		})
		if err != nil {
			t.Fatal(err)
		}
	})

	t.Run("NullName", func(t *testing.T) {
		st := open(t)
		u := mustCreateUser(t, st, "anon@x.com", nil)
		_ = st.InTx(context.Background(), func(tx Tx) error {
			got, err := tx.UserByID(context.Background(), u.ID)
			if err != nil {
				t.Fatalf("UserByID: %v", err)
			}
			if got.Name != nil {
				t.Fatalf("expected nil name, got %q", *got.Name)
			}
			return nil
		})
	})

	t.Run("DuplicateEmail", func(t *testing.T) {
		st := open(t)
		mustCreateUser(t, st, "dup@x.com", nil)
		err := st.InTx(context.Background(), func(tx Tx) error {
			_, err := tx.CreateUser(context.Background(), "dup@x.com", "hash", nil)
			return err
		})
		if !errors.Is(err, ErrEmailInUse) {
			t.Fatalf("expected ErrEmailInUse, got %v", err)
		}
	})

	t.Run("NotFound", func(t *testing.T) {
		st := open(t)
		ctx := context.Background()
		_ = st.InTx(ctx, func(tx Tx) error {
			if _, err := tx.UserByID(ctx, 999); !errors.Is(err, ErrNotFound) {
				t.Fatalf("UserByID: expected ErrNotFound, got %v", err)
			}
			if _, err := tx.UserByEmail(ctx, "ghost@x.com"); !errors.Is(err, ErrNotFound) {
				t.Fatalf("UserByEmail: expected ErrNotFound, got %v", err)
			}
			if ok, _ := tx.EmailExists(ctx, "ghost@x.com"); ok {
				t.Fatalf("EmailExists: expected false")
			}
			return nil
		})
	})

	t.Run("AddScoreUnknownUser", func(t *testing.T) {
		st := open(t)
		err := st.InTx(context.Background(), func(tx Tx) error {
			_, err := tx.AddScore(context.Background(), 12345, 10)
			return err
		})
		if !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("RollbackOnError", func(t *testing.T) {
		st := open(t)
		ctx := context.Background()
		boom := errors.New("boom")
		err := st.InTx(ctx, func(tx Tx) error {
			if _, err := tx.CreateUser(ctx, "gone@x.com", "hash", nil); err != nil {
				return err
			}
			return boom
		})
		if !errors.Is(err, boom) {
			t.Fatalf("expected callback error, got %v", err)
		}
		_ = st.InTx(ctx, func(tx Tx) error {
			if ok, _ := tx.EmailExists(ctx, "gone@x.com"); ok {
				t.Fatalf("insert survived a failed transaction")
			}
			return nil
		})
	})

	t.Run("RollbackOnPanic", func(t *testing.T) {
		st := open(t)
		ctx := context.Background()
		func() {
			defer func() { _ = recover() }()
			_ = st.InTx(ctx, func(tx Tx) error {
				_, _ = tx.CreateUser(ctx, "panic@x.com", "hash", nil)
				panic("handler blew up")
			})
		}()
		_ = st.InTx(ctx, func(tx Tx) error {
			if ok, _ := tx.EmailExists(ctx, "panic@x.com"); ok {
				t.Fatalf("insert survived a panicking transaction")
			}
			return nil
		})
	})

	t.Run("RecentAndBest", func(t *testing.T) {
		st := open(t)
		ctx := context.Background()
		u := mustCreateUser(t, st, "p@x.com", nil)

		_ = st.InTx(ctx, func(tx Tx) error {
			best, err := tx.BestScore(ctx, u.ID)
			if err != nil || best != 0 {
				t.Fatalf("BestScore with no scores = %d, %v; want 0", best, err)
			}
			recent, err := tx.RecentScores(ctx, u.ID, 20)
			if err != nil || len(recent) != 0 {
				t.Fatalf("RecentScores with no scores = %v, %v", recent, err)
			}
			return nil
		})

		for i := int64(1); i <= 25; i++ {
			mustAddScore(t, st, u.ID, i*10%70)
		}

		_ = st.InTx(ctx, func(tx Tx) error {
			recent, err := tx.RecentScores(ctx, u.ID, 20)
			if err != nil {
				t.Fatalf("RecentScores: %v", err)
			}
			if len(recent) != 20 {
				t.Fatalf("expected 20 rows, got %d", len(recent))
			}
			for i := 1; i < len(recent); i++ {
				if !recent[i-1].CreatedAt.After(recent[i].CreatedAt) {
					t.Fatalf("rows not strictly newest-first at %d: %v then %v", i, recent[i-1].CreatedAt, recent[i].CreatedAt)
				}
			}
			if recent[0].Score != 25*10%70 {
				t.Fatalf("newest score = %d, want %d", recent[0].Score, 25*10%70)
			}
			best, err := tx.BestScore(ctx, u.ID)
			if err != nil || best != 60 {
				t.Fatalf("BestScore = %d, %v; want 60", best, err)
			}
			return nil
		})
	})

	t.Run("Leaderboard", func(t *testing.T) {
		st := open(t)
		ctx := context.Background()

		var users []*User
		for i := 0; i < 22; i++ {
			users = append(users, mustCreateUser(t, st, fmt.Sprintf("u%d@x.com", i), nil))
		}
		for i, u := range users {
			mustAddScore(t, st, u.ID, int64(i))
			mustAddScore(t, st, u.ID, int64(i*3))
		}
		idle := mustCreateUser(t, st, "idle@x.com", strptr("Idle"))

		_ = st.InTx(ctx, func(tx Tx) error {
			rows, err := tx.Leaderboard(ctx, 20)
			if err != nil {
				t.Fatalf("Leaderboard: %v", err)
			}
			if len(rows) != 20 {
				t.Fatalf("expected 20 rows, got %d", len(rows))
			}
			seen := map[int64]bool{}
			for i, r := range rows {
				if seen[r.UserID] {
					t.Fatalf("user %d listed twice", r.UserID)
				}
				seen[r.UserID] = true
				if r.UserID == idle.ID {
					t.Fatalf("user without scores must not be listed")
				}
				if i > 0 && rows[i-1].Best < r.Best {
					t.Fatalf("rows not ordered by best desc at %d", i)
				}
			}
			if rows[0].UserID != users[21].ID || rows[0].Best != 63 || rows[0].Email != "u21@x.com" {
				t.Fatalf("unexpected top row: %+v", rows[0])
			}
			return nil
		})
	})

	t.Run("LeaderboardEmpty", func(t *testing.T) {
		st := open(t)
		_ = st.InTx(context.Background(), func(tx Tx) error {
			rows, err := tx.Leaderboard(context.Background(), 20)
			if err != nil {
				t.Fatalf("Leaderboard: %v", err)
			}
			if len(rows) != 0 {
				t.Fatalf("expected no rows, got %d", len(rows))
			}
			return nil
		})
	})

	t.Run("CascadeDelete", func(t *testing.T) {
		st := open(t)
		ctx := context.Background()
		u := mustCreateUser(t, st, "bye@x.com", nil)
		mustAddScore(t, st, u.ID, 99)

		deleter, ok := st.(interface {
			DeleteUser(ctx context.Context, id int64) error
		})
		if !ok {
			t.Fatalf("%T does not support DeleteUser", st)
		}
		if err := deleter.DeleteUser(ctx, u.ID); err != nil {
			t.Fatalf("DeleteUser: %v", err)
		}
		_ = st.InTx(ctx, func(tx Tx) error {
			recent, _ := tx.RecentScores(ctx, u.ID, 20)
			if len(recent) != 0 {
				t.Fatalf("scores survived user delete: %v", recent)
			}
			rows, _ := tx.Leaderboard(ctx, 20)
			if len(rows) != 0 {
				t.Fatalf("leaderboard still lists deleted user: %v", rows)
			}
			return nil
		})
	})
}

func TestMemoryStore(t *testing.T) {
	fakeClock(t)
	runStoreSuite(t, func(t *testing.T) Store { return NewMemoryStore() })
}

func TestMemoryStore_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	called := false
	err := NewMemoryStore().InTx(ctx, func(Tx) error { called = true; return nil })
	if !errors.Is(err, context.Canceled) || called {
		t.Fatalf("expected context.Canceled without running fn, got %v (called=%v)", err, called)
	}
}
