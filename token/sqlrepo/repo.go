// Package sqlrepo keeps the token store in a local SQLite file so a session
// survives process restarts.
package sqlrepo

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	sesserrors "github.com/jrsteele09/go-inventory-session/internal/errors"
	"github.com/jrsteele09/go-inventory-session/token"
	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const (
	defaultTimeout = 5 * time.Second

	selectValue = `SELECT value FROM session_kv WHERE key = ?`
	upsertValue = `INSERT INTO session_kv (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`
	deleteValue = `DELETE FROM session_kv WHERE key = ?`
)

var _ token.BatchRepo = (*Repo)(nil)

// Repo is a token.BatchRepo over a session_kv table.
type Repo struct {
	db      *sql.DB
	timeout time.Duration
	nowFunc func() time.Time
}

// RepoOption configures a Repo.
type RepoOption func(*Repo)

// WithTimeout bounds every statement.
func WithTimeout(d time.Duration) RepoOption {
	return func(r *Repo) {
		r.timeout = d
	}
}

// WithNowFunc sets the clock used for updated_at (primarily for testing).
func WithNowFunc(now func() time.Time) RepoOption {
	return func(r *Repo) {
		r.nowFunc = now
	}
}

// Open opens (creating if needed) the SQLite file at path and applies migrations.
func Open(ctx context.Context, path string, options ...RepoOption) (*Repo, error) {
	if path == "" {
		return nil, errors.New("[sqlrepo.Open] path is required")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("[sqlrepo.Open] mkdir %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("[sqlrepo.Open] sql.Open: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := Migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	log.Debug().Str("path", path).Msg("token store opened")
	return New(db, options...), nil
}

// Migrate applies the embedded goose migrations.
func Migrate(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrationsFS)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("[sqlrepo.Migrate] dialect: %w", err)
	}
	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("[sqlrepo.Migrate] up: %w", err)
	}
	return nil
}

// New wraps an already-migrated database.
func New(db *sql.DB, options ...RepoOption) *Repo {
	r := &Repo{
		db:      db,
		timeout: defaultTimeout,
		nowFunc: time.Now,
	}
	for _, opt := range options {
		opt(r)
	}
	return r
}

func (r *Repo) Close() error {
	return r.db.Close()
}

func (r *Repo) ctx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), r.timeout)
}

func (r *Repo) Get(key string) (string, error) {
	ctx, cancel := r.ctx()
	defer cancel()

	var value string
	err := r.db.QueryRowContext(ctx, selectValue, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", sesserrors.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("[sqlrepo.Get] %s: %w", key, err)
	}
	return value, nil
}

func (r *Repo) Set(key, value string) error {
	ctx, cancel := r.ctx()
	defer cancel()

	if _, err := r.db.ExecContext(ctx, upsertValue, key, value, r.nowFunc().Unix()); err != nil {
		return fmt.Errorf("[sqlrepo.Set] %s: %w", key, err)
	}
	return nil
}

func (r *Repo) Delete(key string) error {
	ctx, cancel := r.ctx()
	defer cancel()

	if _, err := r.db.ExecContext(ctx, deleteValue, key); err != nil {
		return fmt.Errorf("[sqlrepo.Delete] %s: %w", key, err)
	}
	return nil
}

// SetAll writes every entry in one transaction.
func (r *Repo) SetAll(entries []token.Entry) error {
	now := r.nowFunc().Unix()
	return r.inTx("SetAll", func(ctx context.Context, tx *sql.Tx) error {
		for _, e := range entries {
			if _, err := tx.ExecContext(ctx, upsertValue, e.Key, e.Value, now); err != nil {
				return fmt.Errorf("%s: %w", e.Key, err)
			}
		}
		return nil
	})
}

// DeleteAll removes every key in one transaction.
func (r *Repo) DeleteAll(keys []string) error {
	return r.inTx("DeleteAll", func(ctx context.Context, tx *sql.Tx) error {
		for _, key := range keys {
			if _, err := tx.ExecContext(ctx, deleteValue, key); err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
		}
		return nil
	})
}

func (r *Repo) inTx(name string, fn func(ctx context.Context, tx *sql.Tx) error) error {
	ctx, cancel := r.ctx()
	defer cancel()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("[sqlrepo.%s] begin: %w", name, err)
	}
	if err := fn(ctx, tx); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("[sqlrepo.%s] %w", name, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("[sqlrepo.%s] commit: %w", name, err)
	}
	return nil
}
