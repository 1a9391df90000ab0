package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/faucetdb/syncer/internal/catalogmodel"
)

// SQLiteStore is the default Catalog Store implementation: sqlx over
// modernc.org/sqlite, the same pure-Go driver used for the registration
// database.
type SQLiteStore struct {
	db *sqlx.DB
}

// NewSQLiteStore opens (creating if necessary) a SQLite-backed catalog
// store. Pass "" for an in-memory store, used by tests.
func NewSQLiteStore(dataDir string) (*SQLiteStore, error) {
	var dsn string
	if dataDir == "" {
		dsn = ":memory:?_journal_mode=WAL"
	} else {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
		dsn = filepath.Join(dataDir, "catalog.db") + "?_journal_mode=WAL&_busy_timeout=5000"
	}

	db, err := sqlx.Connect("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open catalog database: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite does not support concurrent writers

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate catalog database: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS tables (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			db_id INTEGER NOT NULL,
			schema_name TEXT NOT NULL DEFAULT '',
			name TEXT NOT NULL,
			display_name TEXT NOT NULL DEFAULT '',
			active INTEGER NOT NULL DEFAULT 1,
			rows INTEGER,
			description TEXT NOT NULL DEFAULT '',
			caveats TEXT NOT NULL DEFAULT '',
			points_of_interest TEXT NOT NULL DEFAULT '',
			entity_type TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(db_id, schema_name, name)
		)`,
		`CREATE TABLE IF NOT EXISTS fields (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			table_id INTEGER NOT NULL REFERENCES tables(id) ON DELETE CASCADE,
			parent_id INTEGER REFERENCES fields(id) ON DELETE CASCADE,
			name TEXT NOT NULL,
			base_type TEXT NOT NULL,
			special_type TEXT,
			display_name TEXT NOT NULL DEFAULT '',
			description TEXT NOT NULL DEFAULT '',
			preview_display INTEGER NOT NULL DEFAULT 1,
			active INTEGER NOT NULL DEFAULT 1,
			go_type TEXT NOT NULL DEFAULT '',
			json_type TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_fields_identity
			ON fields(table_id, COALESCE(parent_id, 0), name)`,
		`CREATE TABLE IF NOT EXISTS foreign_keys (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			origin_field_id INTEGER NOT NULL REFERENCES fields(id) ON DELETE CASCADE,
			destination_field_id INTEGER NOT NULL REFERENCES fields(id) ON DELETE CASCADE,
			relationship TEXT NOT NULL DEFAULT 'ManyToOne',
			UNIQUE(origin_field_id)
		)`,
		`CREATE TABLE IF NOT EXISTS field_values (
			field_id INTEGER PRIMARY KEY REFERENCES fields(id) ON DELETE CASCADE,
			values_json TEXT NOT NULL DEFAULT '[]',
			last_used_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			if strings.Contains(err.Error(), "duplicate column") {
				continue
			}
			return fmt.Errorf("migration failed: %w\nSQL: %s", err, m)
		}
	}
	return nil
}

// --- Tables ---

func (s *SQLiteStore) ActiveTables(ctx context.Context, dbID int64) ([]catalogmodel.Table, error) {
	var rows []catalogmodel.Table
	err := s.db.SelectContext(ctx, &rows,
		`SELECT * FROM tables WHERE db_id = ? AND active = 1 ORDER BY name`, dbID)
	if err != nil {
		return nil, fmt.Errorf("active tables: %w", err)
	}
	return rows, nil
}

func (s *SQLiteStore) InsertTable(ctx context.Context, t catalogmodel.Table) (catalogmodel.Table, error) {
	now := time.Now().UTC()
	t.Active = true
	t.CreatedAt, t.UpdatedAt = now, now

	const q = `INSERT INTO tables (db_id, schema_name, name, display_name, active, created_at, updated_at)
		VALUES (:db_id, :schema_name, :name, :display_name, :active, :created_at, :updated_at)`
	res, err := s.db.NamedExecContext(ctx, q, t)
	if err != nil {
		return catalogmodel.Table{}, fmt.Errorf("insert table: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return catalogmodel.Table{}, fmt.Errorf("insert table id: %w", err)
	}
	t.ID = id
	return t, nil
}

func (s *SQLiteStore) UpdateTable(ctx context.Context, id int64, patch TablePatch) error {
	sets, args := []string{}, []interface{}{}
	add := func(col string, v interface{}) {
		sets = append(sets, col+" = ?")
		args = append(args, v)
	}
	if patch.DisplayName != nil {
		add("display_name", *patch.DisplayName)
	}
	if patch.Active != nil {
		add("active", *patch.Active)
	}
	if patch.Rows != nil {
		add("rows", *patch.Rows)
	}
	if patch.Description != nil {
		add("description", *patch.Description)
	}
	if patch.Caveats != nil {
		add("caveats", *patch.Caveats)
	}
	if patch.PointsOfInterest != nil {
		add("points_of_interest", *patch.PointsOfInterest)
	}
	if patch.EntityType != nil {
		add("entity_type", *patch.EntityType)
	}
	if len(sets) == 0 {
		return nil // no-op writes are forbidden
	}
	add("updated_at", time.Now().UTC())
	args = append(args, id)

	q := "UPDATE tables SET " + strings.Join(sets, ", ") + " WHERE id = ?"
	res, err := s.db.ExecContext(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("update table: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update table rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) DeactivateTables(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	query, args, err := sqlx.In(`UPDATE tables SET active = 0, updated_at = ? WHERE id IN (?)`,
		time.Now().UTC(), ids)
	if err != nil {
		return fmt.Errorf("build deactivate tables query: %w", err)
	}
	if _, err := tx.ExecContext(ctx, tx.Rebind(query), args...); err != nil {
		return fmt.Errorf("deactivate tables: %w", err)
	}

	query, args, err = sqlx.In(`UPDATE fields SET active = 0, updated_at = ? WHERE table_id IN (?)`,
		time.Now().UTC(), ids)
	if err != nil {
		return fmt.Errorf("build deactivate fields query: %w", err)
	}
	if _, err := tx.ExecContext(ctx, tx.Rebind(query), args...); err != nil {
		return fmt.Errorf("deactivate fields for tables: %w", err)
	}

	return tx.Commit()
}

func (s *SQLiteStore) TableByKey(ctx context.Context, dbID int64, key catalogmodel.TableKey) (catalogmodel.Table, error) {
	var t catalogmodel.Table
	err := s.db.GetContext(ctx, &t,
		`SELECT * FROM tables WHERE db_id = ? AND schema_name = ? AND name = ?`, dbID, key.Schema, key.Name)
	if err == sql.ErrNoRows {
		return catalogmodel.Table{}, ErrNotFound
	}
	if err != nil {
		return catalogmodel.Table{}, fmt.Errorf("table by key: %w", err)
	}
	return t, nil
}

func (s *SQLiteStore) TableByNameInDB(ctx context.Context, dbID int64, name string) (catalogmodel.Table, error) {
	var t catalogmodel.Table
	err := s.db.GetContext(ctx, &t,
		`SELECT * FROM tables WHERE db_id = ? AND name = ? AND active = 1`, dbID, name)
	if err == sql.ErrNoRows {
		return catalogmodel.Table{}, ErrNotFound
	}
	if err != nil {
		return catalogmodel.Table{}, fmt.Errorf("table by name: %w", err)
	}
	return t, nil
}

// --- Fields ---

func (s *SQLiteStore) ActiveTopLevelFields(ctx context.Context, tableID int64) ([]catalogmodel.Field, error) {
	var rows []catalogmodel.Field
	err := s.db.SelectContext(ctx, &rows,
		`SELECT * FROM fields WHERE table_id = ? AND parent_id IS NULL AND active = 1`, tableID)
	if err != nil {
		return nil, fmt.Errorf("active top-level fields: %w", err)
	}
	return rows, nil
}

func (s *SQLiteStore) ActiveChildFields(ctx context.Context, parentFieldID int64) ([]catalogmodel.Field, error) {
	var rows []catalogmodel.Field
	err := s.db.SelectContext(ctx, &rows,
		`SELECT * FROM fields WHERE parent_id = ? AND active = 1`, parentFieldID)
	if err != nil {
		return nil, fmt.Errorf("active child fields: %w", err)
	}
	return rows, nil
}

func (s *SQLiteStore) InsertField(ctx context.Context, f catalogmodel.Field) (catalogmodel.Field, error) {
	now := time.Now().UTC()
	f.Active = true
	f.CreatedAt, f.UpdatedAt = now, now

	const q = `INSERT INTO fields
		(table_id, parent_id, name, base_type, special_type, display_name, preview_display, active, go_type, json_type, created_at, updated_at)
		VALUES
		(:table_id, :parent_id, :name, :base_type, :special_type, :display_name, :preview_display, :active, :go_type, :json_type, :created_at, :updated_at)`
	res, err := s.db.NamedExecContext(ctx, q, f)
	if err != nil {
		return catalogmodel.Field{}, fmt.Errorf("insert field: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return catalogmodel.Field{}, fmt.Errorf("insert field id: %w", err)
	}
	f.ID = id
	return f, nil
}

func (s *SQLiteStore) UpdateField(ctx context.Context, id int64, patch FieldPatch) error {
	sets, args := []string{}, []interface{}{}
	add := func(col string, v interface{}) {
		sets = append(sets, col+" = ?")
		args = append(args, v)
	}
	if patch.DisplayName != nil {
		add("display_name", *patch.DisplayName)
	}
	if patch.BaseType != nil {
		add("base_type", *patch.BaseType)
	}
	if patch.SpecialType != nil {
		if *patch.SpecialType == nil {
			add("special_type", nil)
		} else {
			add("special_type", **patch.SpecialType)
		}
	}
	if patch.PreviewDisplay != nil {
		add("preview_display", *patch.PreviewDisplay)
	}
	if patch.Active != nil {
		add("active", *patch.Active)
	}
	if patch.Description != nil {
		add("description", *patch.Description)
	}
	if patch.GoType != nil {
		add("go_type", *patch.GoType)
	}
	if patch.JSONType != nil {
		add("json_type", *patch.JSONType)
	}
	if len(sets) == 0 {
		return nil
	}
	add("updated_at", time.Now().UTC())
	args = append(args, id)

	q := "UPDATE fields SET " + strings.Join(sets, ", ") + " WHERE id = ?"
	res, err := s.db.ExecContext(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("update field: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update field rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) DeactivateFields(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	query, args, err := sqlx.In(`UPDATE fields SET active = 0, updated_at = ? WHERE id IN (?)`,
		time.Now().UTC(), ids)
	if err != nil {
		return fmt.Errorf("build deactivate fields query: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, s.db.Rebind(query), args...); err != nil {
		return fmt.Errorf("deactivate fields: %w", err)
	}
	return nil
}

func (s *SQLiteStore) DeactivateFieldsForTables(ctx context.Context, tableIDs []int64) error {
	if len(tableIDs) == 0 {
		return nil
	}
	query, args, err := sqlx.In(`UPDATE fields SET active = 0, updated_at = ? WHERE table_id IN (?)`,
		time.Now().UTC(), tableIDs)
	if err != nil {
		return fmt.Errorf("build deactivate fields for tables query: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, s.db.Rebind(query), args...); err != nil {
		return fmt.Errorf("deactivate fields for tables: %w", err)
	}
	return nil
}

func (s *SQLiteStore) FieldByName(ctx context.Context, tableID int64, parentID *int64, name string) (catalogmodel.Field, error) {
	var f catalogmodel.Field
	var err error
	if parentID == nil {
		err = s.db.GetContext(ctx, &f,
			`SELECT * FROM fields WHERE table_id = ? AND parent_id IS NULL AND name = ? AND active = 1`, tableID, name)
	} else {
		err = s.db.GetContext(ctx, &f,
			`SELECT * FROM fields WHERE table_id = ? AND parent_id = ? AND name = ? AND active = 1`, tableID, *parentID, name)
	}
	if err == sql.ErrNoRows {
		return catalogmodel.Field{}, ErrNotFound
	}
	if err != nil {
		return catalogmodel.Field{}, fmt.Errorf("field by name: %w", err)
	}
	return f, nil
}

// FieldByNameAnyStatus looks up a field by identity regardless of its
// active flag, so a reconciler can tell a never-seen field apart from one
// that was previously deactivated and needs reactivating rather than a
// second, UNIQUE-constraint-violating insert.
func (s *SQLiteStore) FieldByNameAnyStatus(ctx context.Context, tableID int64, parentID *int64, name string) (catalogmodel.Field, error) {
	var f catalogmodel.Field
	var err error
	if parentID == nil {
		err = s.db.GetContext(ctx, &f,
			`SELECT * FROM fields WHERE table_id = ? AND parent_id IS NULL AND name = ?`, tableID, name)
	} else {
		err = s.db.GetContext(ctx, &f,
			`SELECT * FROM fields WHERE table_id = ? AND parent_id = ? AND name = ?`, tableID, *parentID, name)
	}
	if err == sql.ErrNoRows {
		return catalogmodel.Field{}, ErrNotFound
	}
	if err != nil {
		return catalogmodel.Field{}, fmt.Errorf("field by name (any status): %w", err)
	}
	return f, nil
}

func (s *SQLiteStore) FieldByID(ctx context.Context, id int64) (catalogmodel.Field, error) {
	var f catalogmodel.Field
	err := s.db.GetContext(ctx, &f, `SELECT * FROM fields WHERE id = ?`, id)
	if err == sql.ErrNoRows {
		return catalogmodel.Field{}, ErrNotFound
	}
	if err != nil {
		return catalogmodel.Field{}, fmt.Errorf("field by id: %w", err)
	}
	return f, nil
}

func (s *SQLiteStore) FieldInTableByName(ctx context.Context, dbID int64, tableName, fieldName string) (catalogmodel.Field, error) {
	var f catalogmodel.Field
	err := s.db.GetContext(ctx, &f, `
		SELECT fields.* FROM fields
		JOIN tables ON tables.id = fields.table_id
		WHERE tables.db_id = ? AND tables.name = ? AND fields.parent_id IS NULL AND fields.name = ?`,
		dbID, tableName, fieldName)
	if err == sql.ErrNoRows {
		return catalogmodel.Field{}, ErrNotFound
	}
	if err != nil {
		return catalogmodel.Field{}, fmt.Errorf("field in table by name: %w", err)
	}
	return f, nil
}

// --- Foreign keys ---

func (s *SQLiteStore) InsertForeignKey(ctx context.Context, fk catalogmodel.ForeignKey) (catalogmodel.ForeignKey, error) {
	const q = `INSERT INTO foreign_keys (origin_field_id, destination_field_id, relationship)
		VALUES (:origin_field_id, :destination_field_id, :relationship)
		ON CONFLICT(origin_field_id) DO UPDATE SET
			destination_field_id = excluded.destination_field_id,
			relationship = excluded.relationship`
	res, err := s.db.NamedExecContext(ctx, q, fk)
	if err != nil {
		return catalogmodel.ForeignKey{}, fmt.Errorf("insert foreign key: %w", err)
	}
	id, err := res.LastInsertId()
	if err == nil && id != 0 {
		fk.ID = id
	}
	return fk, nil
}

func (s *SQLiteStore) ForeignKeyByOrigin(ctx context.Context, originFieldID int64) (catalogmodel.ForeignKey, error) {
	var fk catalogmodel.ForeignKey
	err := s.db.GetContext(ctx, &fk, `SELECT * FROM foreign_keys WHERE origin_field_id = ?`, originFieldID)
	if err == sql.ErrNoRows {
		return catalogmodel.ForeignKey{}, ErrNotFound
	}
	if err != nil {
		return catalogmodel.ForeignKey{}, fmt.Errorf("foreign key by origin: %w", err)
	}
	return fk, nil
}

// --- Field values cache ---

func (s *SQLiteStore) FieldDistinctCount(ctx context.Context, fieldID int64, cap int) (int, error) {
	var n int
	err := s.db.GetContext(ctx, &n, `
		SELECT COUNT(*) FROM (
			SELECT DISTINCT json_each.value FROM field_values, json_each(field_values.values_json)
			WHERE field_values.field_id = ? LIMIT ?
		)`, fieldID, cap)
	if err != nil {
		return 0, fmt.Errorf("field distinct count: %w", err)
	}
	return n, nil
}

// FieldShouldHaveFieldValues applies the low-cardinality heuristic used
// elsewhere: a field qualifies if it already has a field values cache
// entry whose last_used_at is more than a day old. A field with no entry
// does not qualify.
func (s *SQLiteStore) FieldShouldHaveFieldValues(ctx context.Context, field catalogmodel.Field) (bool, error) {
	var lastUsed time.Time
	err := s.db.GetContext(ctx, &lastUsed, `SELECT last_used_at FROM field_values WHERE field_id = ?`, field.ID)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("field should have field values: %w", err)
	}
	return time.Since(lastUsed) > 24*time.Hour, nil
}

func (s *SQLiteStore) UpdateFieldValues(ctx context.Context, field catalogmodel.Field) error {
	values, err := s.sampleDistinctValues(ctx, field.ID)
	if err != nil {
		return fmt.Errorf("sample distinct values: %w", err)
	}
	blob, err := json.Marshal(values)
	if err != nil {
		return fmt.Errorf("marshal field values: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO field_values (field_id, values_json, last_used_at) VALUES (?, ?, ?)
		ON CONFLICT(field_id) DO UPDATE SET values_json = excluded.values_json, last_used_at = excluded.last_used_at`,
		field.ID, string(blob), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update field values: %w", err)
	}
	return nil
}

// sampleDistinctValues is a placeholder cache refresh: the actual sampled
// values come from the Driver via the classifier pipeline, not from the
// catalog store itself. Reading back whatever is already cached keeps
// UpdateFieldValues idempotent when no collaborator is wired.
func (s *SQLiteStore) sampleDistinctValues(ctx context.Context, fieldID int64) ([]string, error) {
	var blob string
	err := s.db.GetContext(ctx, &blob, `SELECT values_json FROM field_values WHERE field_id = ?`, fieldID)
	if err == sql.ErrNoRows {
		return []string{}, nil
	}
	if err != nil {
		return nil, err
	}
	var values []string
	if err := json.Unmarshal([]byte(blob), &values); err != nil {
		return nil, err
	}
	return values, nil
}

// --- Misc ---

func (s *SQLiteStore) TableRowCount(ctx context.Context, tableID int64) (int64, error) {
	var n sql.NullInt64
	err := s.db.GetContext(ctx, &n, `SELECT rows FROM tables WHERE id = ?`, tableID)
	if err != nil {
		return 0, fmt.Errorf("table row count: %w", err)
	}
	return n.Int64, nil
}

var humanReadableSplit = regexp.MustCompile(`[_\-]+`)

// NameToHumanReadable turns a snake_case or kebab-case identifier into a
// display name, e.g. "user_id" -> "User Id".
func (s *SQLiteStore) NameToHumanReadable(name string) string {
	parts := humanReadableSplit.Split(name, -1)
	for i, p := range parts {
		if p == "" {
			continue
		}
		parts[i] = strings.ToUpper(p[:1]) + p[1:]
	}
	return strings.Join(parts, " ")
}

var _ Store = (*SQLiteStore)(nil)
