package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"
)

// sqlStore implements Store over database/sql. Queries are written with ?
// placeholders and rebound for Postgres.
type sqlStore struct {
	db      *sql.DB
	dialect string
}

func newSQLStore(db *sql.DB, dialect string) *sqlStore {
	return &sqlStore{db: db, dialect: dialect}
}

func (s *sqlStore) InTx(ctx context.Context, fn func(tx Tx) error) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if err := fn(&sqlTx{tx: tx, dialect: s.dialect}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	committed = true
	return nil
}

func (s *sqlStore) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *sqlStore) Close() error { return s.db.Close() }

// DeleteUser removes a user; the schema cascades the delete to their scores.
// Not reachable from the HTTP API.
func (s *sqlStore) DeleteUser(ctx context.Context, id int64) error {
	return s.InTx(ctx, func(t Tx) error {
		tx := t.(*sqlTx)
		res, err := tx.exec(ctx, `DELETE FROM users WHERE id=?`, id)
		if err != nil {
			return fmt.Errorf("delete user: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrNotFound
		}
		return nil
	})
}

type sqlTx struct {
	tx      *sql.Tx
	dialect string
}

func (t *sqlTx) exec(ctx context.Context, q string, args ...any) (sql.Result, error) {
	return t.tx.ExecContext(ctx, rebind(t.dialect, q), args...)
}

func (t *sqlTx) query(ctx context.Context, q string, args ...any) (*sql.Rows, error) {
	return t.tx.QueryContext(ctx, rebind(t.dialect, q), args...)
}

func (t *sqlTx) queryRow(ctx context.Context, q string, args ...any) *sql.Row {
	return t.tx.QueryRowContext(ctx, rebind(t.dialect, q), args...)
}

func (t *sqlTx) EmailExists(ctx context.Context, email string) (bool, error) {
	var n int
	if err := t.queryRow(ctx, `SELECT COUNT(1) FROM users WHERE email=?`, email).Scan(&n); err != nil {
		return false, fmt.Errorf("count users: %w", err)
	}
	return n > 0, nil
}

func (t *sqlTx) CreateUser(ctx context.Context, email, passwordHash string, name *string) (*User, error) {
	u := &User{Email: email, PasswordHash: passwordHash, Name: name, CreatedAt: now()}
	err := t.queryRow(ctx,
		`INSERT INTO users (email, password_hash, name, created_at) VALUES (?,?,?,?) RETURNING id`,
		u.Email, u.PasswordHash, u.Name, u.CreatedAt,
	).Scan(&u.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrEmailInUse
		}
		return nil, fmt.Errorf("insert user: %w", err)
	}
	return u, nil
}

const userColumns = `id, email, password_hash, name, created_at`

func (t *sqlTx) UserByEmail(ctx context.Context, email string) (*User, error) {
	return scanUser(t.queryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email=?`, email))
}

func (t *sqlTx) UserByID(ctx context.Context, id int64) (*User, error) {
	return scanUser(t.queryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id=?`, id))
}

func scanUser(row *sql.Row) (*User, error) {
	var (
		u    User
		name sql.NullString
	)
	if err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &name, &u.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}
	if name.Valid {
		u.Name = &name.String
	}
	u.CreatedAt = u.CreatedAt.UTC()
	return &u, nil
}

func (t *sqlTx) AddScore(ctx context.Context, userID, score int64) (*Score, error) {
	s := &Score{UserID: userID, Score: score, CreatedAt: now()}
	err := t.queryRow(ctx,
		`INSERT INTO scores (user_id, score, created_at) VALUES (?,?,?) RETURNING id`,
		s.UserID, s.Score, s.CreatedAt,
	).Scan(&s.ID)
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("insert score: %w", err)
	}
	return s, nil
}

func (t *sqlTx) RecentScores(ctx context.Context, userID int64, limit int) ([]Score, error) {
	rows, err := t.query(ctx, `
		SELECT id, user_id, score, created_at
		FROM scores
		WHERE user_id=?
		ORDER BY created_at DESC, id DESC
		LIMIT ?`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent scores: %w", err)
	}
	defer rows.Close()

	out := make([]Score, 0, limit)
	for rows.Next() {
		var s Score
		if err := rows.Scan(&s.ID, &s.UserID, &s.Score, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan score: %w", err)
		}
		s.CreatedAt = s.CreatedAt.UTC()
		out = append(out, s)
	}
	return out, rows.Err()
}

func (t *sqlTx) BestScore(ctx context.Context, userID int64) (int64, error) {
	var best int64
	if err := t.queryRow(ctx, `SELECT COALESCE(MAX(score), 0) FROM scores WHERE user_id=?`, userID).Scan(&best); err != nil {
		return 0, fmt.Errorf("best score: %w", err)
	}
	return best, nil
}

func (t *sqlTx) Leaderboard(ctx context.Context, limit int) ([]LeaderboardRow, error) {
	rows, err := t.query(ctx, `
		SELECT s.user_id, MAX(s.score) AS best, u.name, u.email
		FROM scores s
		JOIN users u ON u.id = s.user_id
		GROUP BY s.user_id, u.name, u.email
		ORDER BY best DESC, s.user_id ASC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query leaderboard: %w", err)
	}
	defer rows.Close()

	out := make([]LeaderboardRow, 0, limit)
	for rows.Next() {
		var (
			r    LeaderboardRow
			name sql.NullString
		)
		if err := rows.Scan(&r.UserID, &r.Best, &name, &r.Email); err != nil {
			return nil, fmt.Errorf("scan leaderboard row: %w", err)
		}
		if name.Valid {
			n := name.String
			r.Name = &n
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// rebind rewrites ? placeholders to $1..$n for Postgres.
func rebind(dialect, q string) string {
	if dialect != dialectPostgres || !strings.Contains(q, "?") {
		return q
	}
	var b strings.Builder
	b.Grow(len(q) + 8)
	n := 0
	for _, r := range q {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func isUniqueViolation(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.ExtendedCode == sqlite3.ErrConstraintUnique || se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	var pe *pgconn.PgError
	if errors.As(err, &pe) {
		return pe.Code == "23505"
	}
	return false
}

func isForeignKeyViolation(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.ExtendedCode == sqlite3.ErrConstraintForeignKey
	}
	var pe *pgconn.PgError
	if errors.As(err, &pe) {
		return pe.Code == "23503"
	}
	return false
}
