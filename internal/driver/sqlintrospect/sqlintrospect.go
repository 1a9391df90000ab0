// Package sqlintrospect holds the information_schema query shapes shared by
// the ANSI-ish dialects (postgres, mysql, mssql, snowflake): table/column/
// primary-key/foreign-key inventories. Each query goes through db.Rebind so
// the same query text works whether the driver uses $N, ?, or @pN bindvars.
package sqlintrospect

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// TableRow is one row of information_schema.tables.
type TableRow struct {
	TableSchema string `db:"table_schema"`
	TableName   string `db:"table_name"`
	TableType   string `db:"table_type"`
}

// ColumnRow is one row of information_schema.columns. UDTName holds
// whatever column the dialect passed as udtExpr to Columns (udt_name for
// postgres, column_type for mysql, data_type for mssql and snowflake).
type ColumnRow struct {
	TableSchema string  `db:"table_schema"`
	TableName   string  `db:"table_name"`
	ColumnName  string  `db:"column_name"`
	DataType    string  `db:"data_type"`
	UDTName     string  `db:"udt_name"`
	IsNullable  string  `db:"is_nullable"`
	Position    int     `db:"ordinal_position"`
	Default     *string `db:"column_default"`
}

// PKRow is one primary-key column membership.
type PKRow struct {
	TableSchema string `db:"table_schema"`
	TableName   string `db:"table_name"`
	ColumnName  string `db:"column_name"`
}

// FKRow is one foreign-key column and the column it references.
type FKRow struct {
	TableSchema      string `db:"table_schema"`
	TableName        string `db:"table_name"`
	ColumnName       string `db:"column_name"`
	RefSchema        string `db:"ref_schema"`
	RefTableName     string `db:"ref_table_name"`
	RefColumnName    string `db:"ref_column_name"`
}

// Tables lists base tables and views in schema, ordered by table name. Only
// the one named schema is queried.
func Tables(ctx context.Context, db *sqlx.DB, schema string) ([]TableRow, error) {
	query := db.Rebind(`SELECT table_schema, table_name, table_type
		FROM information_schema.tables
		WHERE table_schema = ? AND table_type IN ('BASE TABLE', 'VIEW')
		ORDER BY table_name`)
	var rows []TableRow
	if err := db.SelectContext(ctx, &rows, query, schema); err != nil {
		return nil, fmt.Errorf("introspect tables: %w", err)
	}
	return rows, nil
}

// Columns lists every column in schema, optionally narrowed to one table
// when table is non-empty. udtExpr names the information_schema column read
// into UDTName alongside data_type: postgres passes udt_name, mysql passes
// column_type, and mssql and snowflake pass data_type itself.
func Columns(ctx context.Context, db *sqlx.DB, schema, table, udtExpr string) ([]ColumnRow, error) {
	query := fmt.Sprintf(`SELECT table_schema, table_name, column_name, data_type,
			%s AS udt_name, is_nullable, ordinal_position, column_default
		FROM information_schema.columns
		WHERE table_schema = ?`, udtExpr)
	args := []any{schema}
	if table != "" {
		query += ` AND table_name = ?`
		args = append(args, table)
	}
	query += ` ORDER BY table_name, ordinal_position`

	var rows []ColumnRow
	if err := db.SelectContext(ctx, &rows, db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("introspect columns: %w", err)
	}
	return rows, nil
}

// PrimaryKeys lists primary-key column membership for schema, optionally
// narrowed to one table.
func PrimaryKeys(ctx context.Context, db *sqlx.DB, schema, table string) ([]PKRow, error) {
	query := `SELECT kcu.table_schema, kcu.table_name, kcu.column_name
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
			ON tc.constraint_name = kcu.constraint_name
			AND tc.table_schema = kcu.table_schema
		WHERE tc.constraint_type = 'PRIMARY KEY' AND tc.table_schema = ?`
	args := []any{schema}
	if table != "" {
		query += ` AND kcu.table_name = ?`
		args = append(args, table)
	}

	var rows []PKRow
	if err := db.SelectContext(ctx, &rows, db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("introspect primary keys: %w", err)
	}
	return rows, nil
}

// ForeignKeys lists foreign-key columns for schema and the column each
// references, optionally narrowed to one table.
func ForeignKeys(ctx context.Context, db *sqlx.DB, schema, table string) ([]FKRow, error) {
	query := `SELECT
			tc.table_schema, tc.table_name, kcu.column_name,
			ccu.table_schema AS ref_schema, ccu.table_name AS ref_table_name,
			ccu.column_name AS ref_column_name
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
			ON tc.constraint_name = kcu.constraint_name
			AND tc.table_schema = kcu.table_schema
		JOIN information_schema.constraint_column_usage ccu
			ON tc.constraint_name = ccu.constraint_name
		WHERE tc.constraint_type = 'FOREIGN KEY' AND tc.table_schema = ?`
	args := []any{schema}
	if table != "" {
		query += ` AND tc.table_name = ?`
		args = append(args, table)
	}

	var rows []FKRow
	if err := db.SelectContext(ctx, &rows, db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("introspect foreign keys: %w", err)
	}
	return rows, nil
}
