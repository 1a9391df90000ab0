package config

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// Store manages the Syncer's registered databases, backed by SQLite.
type Store struct {
	db *sqlx.DB
}

// NewStore creates a new config store. Pass an empty string for an
// in-memory store (used by tests).
func NewStore(dataDir string) (*Store, error) {
	var dsn string
	if dataDir == "" {
		dsn = ":memory:?_journal_mode=WAL"
	} else {
		if err := os.MkdirAll(dataDir, 0755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
		dsn = filepath.Join(dataDir, "syncer_config.db") + "?_journal_mode=WAL&_busy_timeout=5000"
	}

	db, err := sqlx.Connect("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open config database: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite doesn't support concurrent writes

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate config database: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// registrationRow is a flat struct mapping 1:1 to the databases table
// columns; Registration's nested Pool struct doesn't map directly.
type registrationRow struct {
	ID                int64     `db:"id"`
	Name              string    `db:"name"`
	Driver            string    `db:"driver"`
	DSN               string    `db:"dsn"`
	PrivateKeyPath    string    `db:"private_key_path"`
	SchemaName        string    `db:"schema_name"`
	IsActive          bool      `db:"is_active"`
	SyncIntervalMs    int64     `db:"sync_interval_ms"`
	MaxOpenConns      int       `db:"max_open_conns"`
	MaxIdleConns      int       `db:"max_idle_conns"`
	ConnMaxLifetimeMs int64     `db:"conn_max_lifetime_ms"`
	ConnMaxIdleTimeMs int64     `db:"conn_max_idle_time_ms"`
	CreatedAt         time.Time `db:"created_at"`
	UpdatedAt         time.Time `db:"updated_at"`
}

func registrationRowFromModel(r *Registration) registrationRow {
	return registrationRow{
		ID:                r.ID,
		Name:              r.Name,
		Driver:            r.Driver,
		DSN:               r.DSN,
		PrivateKeyPath:    r.PrivateKeyPath,
		SchemaName:        r.Schema,
		IsActive:          r.IsActive,
		SyncIntervalMs:    r.SyncInterval.Milliseconds(),
		MaxOpenConns:      r.Pool.MaxOpenConns,
		MaxIdleConns:      r.Pool.MaxIdleConns,
		ConnMaxLifetimeMs: r.Pool.ConnMaxLifetime.Milliseconds(),
		ConnMaxIdleTimeMs: r.Pool.ConnMaxIdleTime.Milliseconds(),
		CreatedAt:         r.CreatedAt,
		UpdatedAt:         r.UpdatedAt,
	}
}

func (r registrationRow) toModel() Registration {
	return Registration{
		ID:             r.ID,
		Name:           r.Name,
		Driver:         r.Driver,
		DSN:            r.DSN,
		PrivateKeyPath: r.PrivateKeyPath,
		Schema:         r.SchemaName,
		IsActive:       r.IsActive,
		SyncInterval:   time.Duration(r.SyncIntervalMs) * time.Millisecond,
		Pool: PoolConfig{
			MaxOpenConns:    r.MaxOpenConns,
			MaxIdleConns:    r.MaxIdleConns,
			ConnMaxLifetime: time.Duration(r.ConnMaxLifetimeMs) * time.Millisecond,
			ConnMaxIdleTime: time.Duration(r.ConnMaxIdleTimeMs) * time.Millisecond,
		},
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

// CreateRegistration inserts a new database registration. The ID, CreatedAt,
// and UpdatedAt fields on reg are populated after a successful insert.
func (s *Store) CreateRegistration(ctx context.Context, reg *Registration) error {
	now := time.Now().UTC()
	reg.CreatedAt = now
	reg.UpdatedAt = now

	row := registrationRowFromModel(reg)

	const q = `INSERT INTO databases
		(name, driver, dsn, private_key_path, schema_name, is_active, sync_interval_ms,
		 max_open_conns, max_idle_conns, conn_max_lifetime_ms, conn_max_idle_time_ms,
		 created_at, updated_at)
		VALUES
		(:name, :driver, :dsn, :private_key_path, :schema_name, :is_active, :sync_interval_ms,
		 :max_open_conns, :max_idle_conns, :conn_max_lifetime_ms, :conn_max_idle_time_ms,
		 :created_at, :updated_at)`

	result, err := s.db.NamedExecContext(ctx, q, row)
	if err != nil {
		return fmt.Errorf("insert database registration: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("get registration id: %w", err)
	}
	reg.ID = id
	return nil
}

// GetRegistration returns a registration by ID.
func (s *Store) GetRegistration(ctx context.Context, id int64) (*Registration, error) {
	var row registrationRow
	if err := s.db.GetContext(ctx, &row, "SELECT * FROM databases WHERE id = ?", id); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get registration: %w", err)
	}
	reg := row.toModel()
	return &reg, nil
}

// GetRegistrationByName returns a registration by its unique name.
func (s *Store) GetRegistrationByName(ctx context.Context, name string) (*Registration, error) {
	var row registrationRow
	if err := s.db.GetContext(ctx, &row, "SELECT * FROM databases WHERE name = ?", name); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get registration by name: %w", err)
	}
	reg := row.toModel()
	return &reg, nil
}

// ListRegistrations returns all configured database registrations.
func (s *Store) ListRegistrations(ctx context.Context) ([]Registration, error) {
	var rows []registrationRow
	if err := s.db.SelectContext(ctx, &rows, "SELECT * FROM databases ORDER BY name"); err != nil {
		return nil, fmt.Errorf("list registrations: %w", err)
	}

	regs := make([]Registration, len(rows))
	for i, r := range rows {
		regs[i] = r.toModel()
	}
	return regs, nil
}

// ListActiveRegistrations returns the subset of registrations the scheduler
// should sync.
func (s *Store) ListActiveRegistrations(ctx context.Context) ([]Registration, error) {
	var rows []registrationRow
	if err := s.db.SelectContext(ctx, &rows, "SELECT * FROM databases WHERE is_active = 1 ORDER BY name"); err != nil {
		return nil, fmt.Errorf("list active registrations: %w", err)
	}

	regs := make([]Registration, len(rows))
	for i, r := range rows {
		regs[i] = r.toModel()
	}
	return regs, nil
}

// UpdateRegistration updates an existing registration. UpdatedAt on reg is
// refreshed automatically.
func (s *Store) UpdateRegistration(ctx context.Context, reg *Registration) error {
	reg.UpdatedAt = time.Now().UTC()
	row := registrationRowFromModel(reg)

	const q = `UPDATE databases SET
		name = :name, driver = :driver, dsn = :dsn, private_key_path = :private_key_path,
		schema_name = :schema_name, is_active = :is_active, sync_interval_ms = :sync_interval_ms,
		max_open_conns = :max_open_conns, max_idle_conns = :max_idle_conns,
		conn_max_lifetime_ms = :conn_max_lifetime_ms, conn_max_idle_time_ms = :conn_max_idle_time_ms,
		updated_at = :updated_at
		WHERE id = :id`

	result, err := s.db.NamedExecContext(ctx, q, row)
	if err != nil {
		return fmt.Errorf("update registration: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update registration rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteRegistration removes a database registration by ID.
func (s *Store) DeleteRegistration(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM databases WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete registration: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete registration rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
