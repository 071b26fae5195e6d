// Package sqlite provides a durable securestore driver backed by a local
// SQLite database. Values are sealed with authenticated encryption before
// they touch disk, so the database file itself is not sensitive beyond
// traffic analysis of row sizes.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/aussiebroadwan/bouncer/pkg/cryptox"
	"github.com/aussiebroadwan/bouncer/pkg/securestore"

	_ "modernc.org/sqlite"
)

type Store struct {
	db     *sql.DB
	sealer *cryptox.Sealer
	dsn    string
}

// NewStore opens (creating if needed) the database at dsn. A nil sealer
// stores values as plain bytes; callers wanting at-rest confidentiality must
// supply one.
func NewStore(dsn string, sealer *cryptox.Sealer) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}

	// WAL keeps concurrent readers off the writer's back, and the busy
	// timeout prevents immediate SQLITE_BUSY failures when refresh and UI
	// reads overlap.
	for _, pragma := range []string{
		`PRAGMA journal_mode = WAL;`,
		`PRAGMA busy_timeout = 5000;`,
	} {
		if _, err := db.ExecContext(context.Background(), pragma); err != nil {
			_ = db.Close()
			return nil, err
		}
	}

	return &Store{
		db:     db,
		sealer: sealer,
		dsn:    dsn,
	}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// Ping verifies the database connection is still alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Put(ctx context.Context, key string, value []byte) error {
	stored := value
	if s.sealer != nil {
		sealed, err := s.sealer.Seal(value)
		if err != nil {
			return fmt.Errorf("failed to seal value: %w", err)
		}
		stored = sealed
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO secrets (key, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT (key) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at;
	`, key, stored, time.Now().UTC())
	return err
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT value FROM secrets WHERE key = ?;
	`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, securestore.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if s.sealer != nil {
		opened, err := s.sealer.Open(value)
		if err != nil {
			return nil, fmt.Errorf("failed to open sealed value: %w", err)
		}
		return opened, nil
	}
	return value, nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM secrets WHERE key = ?;`, key)
	return err
}
