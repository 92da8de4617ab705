// Package sqlite is a credstore.Storage driver that keeps session values in a sqlite
// database, sealed and bound to a session scope, so a restarted process in the same
// scope can pick its session back up.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/aussiebroadwan/tenantauth/pkg/credstore"
	"github.com/aussiebroadwan/tenantauth/pkg/cryptox"
	"github.com/aussiebroadwan/tenantauth/pkg/idx"

	_ "modernc.org/sqlite"
)

// DefaultTTL is the sliding lifetime of a scope's values.
const DefaultTTL = 12 * time.Hour

// Config selects the scope and sealing of a Store.
type Config struct {
	// Scope identifies the session; values of other scopes are invisible
	Scope idx.ID

	// TTL is extended on every read or write; DefaultTTL if zero
	TTL time.Duration

	// Sealer encrypts values at rest
	Sealer *cryptox.Sealer

	// Now is the clock, time.Now if nil
	Now func() time.Time
}

type Store struct {
	db     *sql.DB
	scope  idx.ID
	ttl    time.Duration
	sealer *cryptox.Sealer
	now    func() time.Time
}

var _ credstore.Storage = (*Store)(nil)

// NewStore opens the database at dsn. Call ApplyMigrations before use.
func NewStore(dsn string, cfg Config) (*Store, error) {
	if cfg.Scope.IsZero() {
		return nil, errors.New("sqlite: session scope is required")
	}
	if cfg.Sealer == nil {
		return nil, errors.New("sqlite: sealer is required")
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}

	if _, err := db.ExecContext(context.Background(), `PRAGMA busy_timeout = 5000;`); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{
		db:     db,
		scope:  cfg.Scope,
		ttl:    cfg.TTL,
		sealer: cfg.Sealer,
		now:    cfg.Now,
	}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// Scope returns the session scope this Store reads and writes.
func (s *Store) Scope() idx.ID { return s.scope }

// Ping verifies the database connection is still alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// WithTx executes fn within a transaction, committing only if fn succeeds.
func (s *Store) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback() // no-op after commit
	}()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) aad(key string) []byte {
	return []byte(s.scope.String() + "/" + key)
}

// Get returns the value of key. Expired values read as credstore.ErrNotFound. A
// successful read extends the scope's lifetime.
func (s *Store) Get(ctx context.Context, key string) (string, error) {
	now := s.now().UnixMilli()

	var sealed []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM session_values WHERE scope = ? AND key = ? AND expires_at > ?`,
		s.scope.String(), key, now,
	).Scan(&sealed)
	if errors.Is(err, sql.ErrNoRows) {
		return "", credstore.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get %s: %w", key, err)
	}

	plain, err := s.sealer.Open(sealed, s.aad(key))
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", credstore.ErrCorrupt, key, err)
	}

	if err := s.touch(ctx, s.db, now); err != nil {
		return "", err
	}
	return string(plain), nil
}

// Set stores value under key and extends the scope's lifetime.
func (s *Store) Set(ctx context.Context, key, value string) error {
	sealed, err := s.sealer.Seal([]byte(value), s.aad(key))
	if err != nil {
		return err
	}
	now := s.now().UnixMilli()

	return s.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO session_values (scope, key, value, expires_at, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT (scope, key) DO UPDATE SET
				value = excluded.value,
				expires_at = excluded.expires_at,
				updated_at = excluded.updated_at`,
			s.scope.String(), key, sealed, now+s.ttl.Milliseconds(), now, now,
		)
		if err != nil {
			return fmt.Errorf("set %s: %w", key, err)
		}
		return s.touch(ctx, tx, now)
	})
}

func (s *Store) Remove(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM session_values WHERE scope = ? AND key = ?`, s.scope.String(), key)
	if err != nil {
		return fmt.Errorf("remove %s: %w", key, err)
	}
	return nil
}

func (s *Store) Clear(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM session_values WHERE scope = ?`, s.scope.String())
	if err != nil {
		return fmt.Errorf("clear scope: %w", err)
	}
	return nil
}

// DeleteExpired removes expired values of every scope.
func (s *Store) DeleteExpired(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM session_values WHERE expires_at <= ?`, s.now().UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("delete expired: %w", err)
	}
	return res.RowsAffected()
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *Store) touch(ctx context.Context, db execer, now int64) error {
	_, err := db.ExecContext(ctx,
		`UPDATE session_values SET expires_at = ? WHERE scope = ? AND expires_at > ?`,
		now+s.ttl.Milliseconds(), s.scope.String(), now,
	)
	if err != nil {
		return fmt.Errorf("extend scope: %w", err)
	}
	return nil
}
