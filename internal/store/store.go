// Package store persists users and their scores.
//
// Two implementations satisfy Store: a database/sql backed one (SQLite by default,
// Postgres when configured) and an in-memory one for tests and throwaway runs.
// All reads and writes go through a transaction scoped by InTx.
package store

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a lookup matches no row.
	ErrNotFound = errors.New("store: not found")

	// ErrEmailInUse is returned when an insert would violate the unique email index.
	ErrEmailInUse = errors.New("store: email already registered")
)

// User is a registered account.
type User struct {
	ID           int64
	Email        string
	PasswordHash string
	Name         *string
	CreatedAt    time.Time
}

// Score is a single submitted result owned by one user.
type Score struct {
	ID        int64
	UserID    int64
	Score     int64
	CreatedAt time.Time
}

// LeaderboardRow is one user's best score joined with their profile.
type LeaderboardRow struct {
	UserID int64
	Best   int64
	Name   *string
	Email  string
}

// Store opens transactions against the backing database.
type Store interface {
	// InTx runs fn inside a transaction. The transaction commits when fn returns nil
	// and is rolled back on every other exit path, including panics.
	InTx(ctx context.Context, fn func(tx Tx) error) error

	// Ping reports whether the backing database is reachable.
	Ping(ctx context.Context) error

	Close() error
}

// Tx is the set of queries available inside a transaction.
type Tx interface {
	// EmailExists reports whether a user with this (already normalized) email exists.
	EmailExists(ctx context.Context, email string) (bool, error)

	// CreateUser inserts a user. Returns ErrEmailInUse on a duplicate email.
	CreateUser(ctx context.Context, email, passwordHash string, name *string) (*User, error)

	UserByEmail(ctx context.Context, email string) (*User, error)
	UserByID(ctx context.Context, id int64) (*User, error)

	// AddScore records a score for userID. Returns ErrNotFound if the user does not exist.
	AddScore(ctx context.Context, userID, score int64) (*Score, error)

	// RecentScores returns up to limit scores for userID, newest first.
	RecentScores(ctx context.Context, userID int64, limit int) ([]Score, error)

	// BestScore returns the user's highest score, or 0 if none were submitted.
	BestScore(ctx context.Context, userID int64) (int64, error)

	// Leaderboard returns up to limit rows, one per user, ordered by best score descending.
	Leaderboard(ctx context.Context, limit int) ([]LeaderboardRow, error)
}

// now is the server-assigned timestamp source for created_at columns.
var now = func() time.Time { return time.Now().UTC() }
