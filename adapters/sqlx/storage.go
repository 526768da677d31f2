package sqlx

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	// database drivers selected via Config.Driver
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"

	"progresskit/core"
)

// Driver names a supported SQL backend.
type Driver string

const (
	DriverPostgres Driver = "postgres"
	DriverMySQL    Driver = "mysql"
)

// Config holds SQL connection configuration.
type Config struct {
	Driver          Driver        `json:"driver"`
	DSN             string        `json:"dsn"`
	MaxOpenConns    int           `json:"max_open_conns"`
	MaxIdleConns    int           `json:"max_idle_conns"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime"`
}

// DefaultConfig returns sensible pool defaults for the given driver.
func DefaultConfig(driver Driver) Config {
	return Config{
		Driver:          driver,
		MaxOpenConns:    10,
		MaxIdleConns:    2,
		ConnMaxLifetime: 30 * time.Minute,
	}
}

// Store implements engine.Store over a single progression_states table:
//
//	user_id    TEXT/VARCHAR primary key
//	state      JSON-encoded ProgressionState
//	version    BIGINT optimistic-concurrency token
//	updated_at timestamp
//
// Compare-and-swap is one UPDATE guarded by the version column, so no
// SELECT FOR UPDATE or multi-statement transaction is needed.
type Store struct {
	db     *sqlx.DB
	driver Driver
}

// New opens a connection pool and pings the database.
func New(cfg Config) (*Store, error) {
	db, err := sqlx.Connect(string(cfg.Driver), cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("%w: connecting to %s: %v", core.ErrStorageUnavailable, cfg.Driver, err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	return &Store{db: db, driver: cfg.Driver}, nil
}

// NewWithDB wraps an existing connection (useful for testing).
func NewWithDB(db *sqlx.DB, driver Driver) *Store {
	return &Store{db: db, driver: driver}
}

// Close closes the underlying pool.
func (s *Store) Close() error { return s.db.Close() }

// EnsureSchema creates the progression_states table if missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	var ddl string
	switch s.driver {
	case DriverMySQL:
		ddl = `CREATE TABLE IF NOT EXISTS progression_states (
			user_id    VARCHAR(255) PRIMARY KEY,
			state      JSON         NOT NULL,
			version    BIGINT       NOT NULL,
			updated_at TIMESTAMP    NOT NULL
		)`
	default:
		ddl = `CREATE TABLE IF NOT EXISTS progression_states (
			user_id    TEXT        PRIMARY KEY,
			state      JSONB       NOT NULL,
			version    BIGINT      NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`
	}
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("%w: creating schema: %v", core.ErrStorageUnavailable, err)
	}
	return nil
}

func (s *Store) Create(ctx context.Context, user core.UserID) error {
	state := core.NewState(user)
	payload, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encoding state: %w", err)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin: %v", core.ErrStorageUnavailable, err)
	}
	defer func() { _ = tx.Rollback() }()

	var exists bool
	q := s.db.Rebind(`SELECT EXISTS(SELECT 1 FROM progression_states WHERE user_id = ?)`)
	if err := tx.GetContext(ctx, &exists, q, user); err != nil {
		return fmt.Errorf("%w: checking record: %v", core.ErrStorageUnavailable, err)
	}
	if exists {
		return core.ErrAlreadyExists
	}

	ins := s.db.Rebind(`INSERT INTO progression_states (user_id, state, version, updated_at) VALUES (?, ?, ?, ?)`)
	if _, err := tx.ExecContext(ctx, ins, user, payload, state.Version, state.Updated); err != nil {
		return fmt.Errorf("%w: inserting record: %v", core.ErrStorageUnavailable, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %v", core.ErrStorageUnavailable, err)
	}
	return nil
}

func (s *Store) Load(ctx context.Context, user core.UserID) (core.ProgressionState, error) {
	var row struct {
		State   []byte `db:"state"`
		Version int64  `db:"version"`
	}
	q := s.db.Rebind(`SELECT state, version FROM progression_states WHERE user_id = ?`)
	if err := s.db.GetContext(ctx, &row, q, user); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.ProgressionState{}, core.ErrNotFound
		}
		return core.ProgressionState{}, fmt.Errorf("%w: loading record: %v", core.ErrStorageUnavailable, err)
	}

	var state core.ProgressionState
	if err := json.Unmarshal(row.State, &state); err != nil {
		return core.ProgressionState{}, fmt.Errorf("decoding state: %w", err)
	}
	// the column is authoritative for the concurrency token
	state.Version = row.Version
	return state, nil
}

func (s *Store) CompareAndSwap(ctx context.Context, user core.UserID, expectedVersion int64, next core.ProgressionState) error {
	payload, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("encoding state: %w", err)
	}

	q := s.db.Rebind(`UPDATE progression_states SET state = ?, version = ?, updated_at = ? WHERE user_id = ? AND version = ?`)
	res, err := s.db.ExecContext(ctx, q, payload, next.Version, next.Updated, user, expectedVersion)
	if err != nil {
		return fmt.Errorf("%w: updating record: %v", core.ErrStorageUnavailable, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: rows affected: %v", core.ErrStorageUnavailable, err)
	}
	if affected > 0 {
		return nil
	}

	// nothing matched: either the record is gone or another writer won
	var exists bool
	eq := s.db.Rebind(`SELECT EXISTS(SELECT 1 FROM progression_states WHERE user_id = ?)`)
	if err := s.db.GetContext(ctx, &exists, eq, user); err != nil {
		return fmt.Errorf("%w: checking record: %v", core.ErrStorageUnavailable, err)
	}
	if !exists {
		return core.ErrNotFound
	}
	return core.ErrVersionConflict
}

func (s *Store) Delete(ctx context.Context, user core.UserID) error {
	q := s.db.Rebind(`DELETE FROM progression_states WHERE user_id = ?`)
	res, err := s.db.ExecContext(ctx, q, user)
	if err != nil {
		return fmt.Errorf("%w: deleting record: %v", core.ErrStorageUnavailable, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: rows affected: %v", core.ErrStorageUnavailable, err)
	}
	if affected == 0 {
		return core.ErrNotFound
	}
	return nil
}
