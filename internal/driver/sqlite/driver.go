// Package sqlite adapts a SQLite database to the driver.Driver interface,
// using a standard connection setup and PRAGMA-based introspection. Unlike
// the other dialects, SQLite has no information_schema, so this package
// does not use sqlintrospect.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	_ "modernc.org/sqlite"

	"github.com/faucetdb/syncer/internal/catalogmodel"
	"github.com/faucetdb/syncer/internal/config"
	"github.com/faucetdb/syncer/internal/driver"
)

// Driver implements driver.Driver for SQLite.
type Driver struct {
	db *sqlx.DB
}

// Open connects to the SQLite database file named by reg.DSN and returns a
// ready Driver. The DSN is a file path (or ":memory:") with optional query
// parameters such as ?_journal_mode=WAL.
func Open(reg config.Registration) (driver.Driver, error) {
	db, err := sqlx.Connect("sqlite", reg.DSN)
	if err != nil {
		return nil, fmt.Errorf("sqlite connect: %w", err)
	}
	if reg.Pool.MaxOpenConns > 0 {
		db.SetMaxOpenConns(reg.Pool.MaxOpenConns)
	}
	if reg.Pool.MaxIdleConns > 0 {
		db.SetMaxIdleConns(reg.Pool.MaxIdleConns)
	}
	if reg.Pool.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(reg.Pool.ConnMaxLifetime)
	}
	if reg.Pool.ConnMaxIdleTime > 0 {
		db.SetConnMaxIdleTime(reg.Pool.ConnMaxIdleTime)
	}
	return &Driver{db: db}, nil
}

// Close closes the underlying connection pool.
func (d *Driver) Close() error { return d.db.Close() }

// Name implements driver.Driver.
func (d *Driver) Name() string { return "sqlite" }

// Features implements driver.Driver. SQLite stores JSON as TEXT, so nested
// fields are inferred the same way as the other text-JSON dialects.
func (d *Driver) Features() map[driver.Capability]bool {
	return map[driver.Capability]bool{
		driver.CapabilityForeignKeys:  true,
		driver.CapabilityNestedFields: true,
	}
}

// SyncInContext implements driver.Driver.
func (d *Driver) SyncInContext(ctx context.Context, _ catalogmodel.Database, fn func(context.Context) error) error {
	conn, err := d.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Close()
	return fn(ctx)
}

func (d *Driver) quote(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// DescribeDatabase implements driver.Driver by listing the table and view
// names in sqlite_master, each under schema "main". Columns are not read
// here; DescribeTable reads them via PRAGMA.
func (d *Driver) DescribeDatabase(ctx context.Context, _ catalogmodel.Database) (driver.DatabaseDescription, error) {
	const query = `SELECT name FROM sqlite_master
		WHERE type IN ('table', 'view') AND name NOT LIKE 'sqlite_%'
		ORDER BY name`
	var names []string
	if err := d.db.SelectContext(ctx, &names, query); err != nil {
		return driver.DatabaseDescription{}, fmt.Errorf("describe database: %w", err)
	}
	desc := driver.DatabaseDescription{Tables: make([]catalogmodel.TableDescriptor, 0, len(names))}
	for _, n := range names {
		desc.Tables = append(desc.Tables, catalogmodel.TableDescriptor{Name: n, Schema: "main"})
	}
	return desc, nil
}

type tableInfoRow struct {
	CID     int     `db:"cid"`
	Name    string  `db:"name"`
	Type    string  `db:"type"`
	NotNull int     `db:"notnull"`
	Default *string `db:"dflt_value"`
	PK      int     `db:"pk"`
}

// DescribeTable implements driver.Driver via PRAGMA table_info.
func (d *Driver) DescribeTable(ctx context.Context, table catalogmodel.Table) (driver.TableDescription, error) {
	query := fmt.Sprintf("PRAGMA table_info(%s)", d.quote(table.Name))
	var cols []tableInfoRow
	if err := d.db.SelectContext(ctx, &cols, query); err != nil {
		return driver.TableDescription{}, fmt.Errorf("table_info for %q: %w", table.Name, err)
	}

	desc := driver.TableDescription{Fields: make([]catalogmodel.FieldDescriptor, 0, len(cols))}
	for _, c := range cols {
		bt := mapSQLiteType(c.Type)
		desc.Fields = append(desc.Fields, catalogmodel.FieldDescriptor{
			Name:     c.Name,
			BaseType: bt,
			PK:       c.PK > 0,
			Nested:   bt == catalogmodel.DictionaryField,
		})
	}
	return desc, nil
}

type foreignKeyRow struct {
	ID    int    `db:"id"`
	Seq   int    `db:"seq"`
	Table string `db:"table"`
	From  string `db:"from"`
	To    string `db:"to"`
}

// DescribeTableFks implements driver.Driver via PRAGMA foreign_key_list.
func (d *Driver) DescribeTableFks(ctx context.Context, table catalogmodel.Table) ([]driver.FKDescription, error) {
	query := fmt.Sprintf("PRAGMA foreign_key_list(%s)", d.quote(table.Name))
	var fks []foreignKeyRow
	if err := d.db.SelectContext(ctx, &fks, query); err != nil {
		return nil, fmt.Errorf("foreign_key_list for %q: %w", table.Name, err)
	}
	out := make([]driver.FKDescription, 0, len(fks))
	for _, fk := range fks {
		out = append(out, driver.FKDescription{
			FKColumnName:   fk.From,
			DestTable:      catalogmodel.TableDescriptor{Name: fk.Table, Schema: "main"},
			DestColumnName: fk.To,
		})
	}
	return out, nil
}

// AnalyzeTable implements driver.Driver with a plain COUNT(*).
func (d *Driver) AnalyzeTable(ctx context.Context, table catalogmodel.Table) (map[string]any, error) {
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s", d.quote(table.Name))
	var count int64
	if err := d.db.GetContext(ctx, &count, query); err != nil {
		return nil, fmt.Errorf("analyze table %q: %w", table.Name, err)
	}
	return map[string]any{"row_count": count}, nil
}

func (d *Driver) sampleColumn(ctx context.Context, table catalogmodel.Table, field catalogmodel.Field) (*sql.Rows, error) {
	query := fmt.Sprintf("SELECT CAST(%s AS TEXT) FROM %s", d.quote(field.Name), d.quote(table.Name))
	return d.db.QueryContext(ctx, query)
}

// FieldPercentUrls implements driver.Driver.
func (d *Driver) FieldPercentUrls(ctx context.Context, table catalogmodel.Table, field catalogmodel.Field) (float64, error) {
	rows, err := d.sampleColumn(ctx, table, field)
	if err != nil {
		return 0, err
	}
	return driver.PercentURLsFromRows(rows)
}

// FieldAvgLength implements driver.Driver.
func (d *Driver) FieldAvgLength(ctx context.Context, table catalogmodel.Table, field catalogmodel.Field) (int, error) {
	rows, err := d.sampleColumn(ctx, table, field)
	if err != nil {
		return 0, err
	}
	return driver.AvgLengthFromRows(rows)
}

// FieldValuesLazySeq implements driver.Driver.
func (d *Driver) FieldValuesLazySeq(ctx context.Context, table catalogmodel.Table, field catalogmodel.Field) (driver.LazySeq[*string], error) {
	rows, err := d.sampleColumn(ctx, table, field)
	if err != nil {
		return nil, err
	}
	return driver.NewStringSeq(rows), nil
}

// ActiveNestedFieldNameToType implements driver.Driver for TEXT columns
// holding JSON objects.
func (d *Driver) ActiveNestedFieldNameToType(ctx context.Context, table catalogmodel.Table, field catalogmodel.Field) (map[string]catalogmodel.BaseType, error) {
	query := fmt.Sprintf("SELECT CAST(%s AS TEXT) FROM %s LIMIT 200", d.quote(field.Name), d.quote(table.Name))
	return driver.SampleJSONColumnTypes(ctx, d.db.DB, query)
}

// TableRowsSeq implements driver.Driver.
func (d *Driver) TableRowsSeq(ctx context.Context, database catalogmodel.Database, tableName string) (driver.LazySeq[driver.MetadataRow], error) {
	query := fmt.Sprintf("SELECT keypath, value FROM %s", d.quote(tableName))
	rows, err := d.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("table rows seq %q: %w", tableName, err)
	}
	return driver.NewMetadataRowSeq(rows), nil
}

// DriverSpecificSyncField implements driver.Driver; SQLite has no per-field
// adjustment to make before the classifier pipeline runs.
func (d *Driver) DriverSpecificSyncField(ctx context.Context, field catalogmodel.Field) (catalogmodel.Field, error) {
	return field, nil
}

// mapSQLiteType maps a SQLite type-affinity declaration to a BaseType,
// following SQLite's own type affinity rules rather than a strict type
// system (https://sqlite.org/datatype3.html).
func mapSQLiteType(typeName string) catalogmodel.BaseType {
	upper := strings.ToUpper(strings.TrimSpace(typeName))
	if idx := strings.IndexByte(upper, '('); idx >= 0 {
		upper = strings.TrimSpace(upper[:idx])
	}

	switch {
	case strings.Contains(upper, "BIGINT"):
		return catalogmodel.BigIntegerField
	case strings.Contains(upper, "BOOL"):
		return catalogmodel.BooleanField
	case strings.Contains(upper, "INT"):
		return catalogmodel.IntegerField
	case strings.Contains(upper, "JSON"):
		return catalogmodel.DictionaryField
	case strings.Contains(upper, "CLOB"), strings.Contains(upper, "TEXT"):
		return catalogmodel.TextField
	case strings.Contains(upper, "CHAR"):
		return catalogmodel.CharField
	case strings.Contains(upper, "DATETIME"), strings.Contains(upper, "TIMESTAMP"):
		return catalogmodel.DateTimeField
	case strings.Contains(upper, "DATE"):
		return catalogmodel.DateField
	case strings.Contains(upper, "TIME"):
		return catalogmodel.TimeField
	case strings.Contains(upper, "NUMERIC"), strings.Contains(upper, "DECIMAL"):
		return catalogmodel.DecimalField
	case strings.Contains(upper, "REAL"), strings.Contains(upper, "FLOA"), strings.Contains(upper, "DOUB"):
		return catalogmodel.FloatField
	case strings.Contains(upper, "BLOB"), upper == "":
		return catalogmodel.UnknownField
	default:
		return catalogmodel.UnknownField
	}
}
