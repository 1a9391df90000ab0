// Package postgres adapts a PostgreSQL database to the driver.Driver
// interface, using a standard connection setup and information_schema
// introspection.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/faucetdb/syncer/internal/catalogmodel"
	"github.com/faucetdb/syncer/internal/config"
	"github.com/faucetdb/syncer/internal/driver"
	"github.com/faucetdb/syncer/internal/driver/sqlintrospect"
)

// Driver implements driver.Driver for PostgreSQL.
type Driver struct {
	db     *sqlx.DB
	schema string
}

// Open connects to the database named by reg.DSN and returns a ready Driver.
func Open(reg config.Registration) (driver.Driver, error) {
	db, err := sqlx.Connect("pgx", driver.SanitizeDSN("postgres", reg.DSN))
	if err != nil {
		return nil, fmt.Errorf("postgres connect: %w", err)
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

	schema := reg.Schema
	if schema == "" {
		schema = "public"
	}
	return &Driver{db: db, schema: schema}, nil
}

// Close closes the underlying connection pool.
func (d *Driver) Close() error { return d.db.Close() }

// Name implements driver.Driver.
func (d *Driver) Name() string { return "postgres" }

// Features implements driver.Driver.
func (d *Driver) Features() map[driver.Capability]bool {
	return map[driver.Capability]bool{
		driver.CapabilityForeignKeys:  true,
		driver.CapabilityNestedFields: true,
	}
}

// SyncInContext implements driver.Driver by acquiring a single pooled
// connection for the duration of fn and releasing it when fn returns. The
// Driver's queries during fn do not use that connection; they still run
// through the pool.
func (d *Driver) SyncInContext(ctx context.Context, _ catalogmodel.Database, fn func(context.Context) error) (err error) {
	conn, connErr := d.db.Conn(ctx)
	if connErr != nil {
		return fmt.Errorf("acquire connection: %w", connErr)
	}
	defer conn.Close()
	return fn(ctx)
}

func (d *Driver) quote(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// DescribeDatabase implements driver.Driver.
func (d *Driver) DescribeDatabase(ctx context.Context, _ catalogmodel.Database) (driver.DatabaseDescription, error) {
	rows, err := sqlintrospect.Tables(ctx, d.db, d.schema)
	if err != nil {
		return driver.DatabaseDescription{}, err
	}
	desc := driver.DatabaseDescription{Tables: make([]catalogmodel.TableDescriptor, 0, len(rows))}
	for _, r := range rows {
		desc.Tables = append(desc.Tables, catalogmodel.TableDescriptor{Name: r.TableName, Schema: r.TableSchema})
	}
	return desc, nil
}

// DescribeTable implements driver.Driver.
func (d *Driver) DescribeTable(ctx context.Context, table catalogmodel.Table) (driver.TableDescription, error) {
	cols, err := sqlintrospect.Columns(ctx, d.db, d.schema, table.Name, "udt_name")
	if err != nil {
		return driver.TableDescription{}, err
	}
	pks, err := sqlintrospect.PrimaryKeys(ctx, d.db, d.schema, table.Name)
	if err != nil {
		return driver.TableDescription{}, err
	}
	pkSet := make(map[string]bool, len(pks))
	for _, pk := range pks {
		pkSet[pk.ColumnName] = true
	}

	desc := driver.TableDescription{Fields: make([]catalogmodel.FieldDescriptor, 0, len(cols))}
	for _, c := range cols {
		bt := mapPostgresType(c.UDTName, c.DataType)
		desc.Fields = append(desc.Fields, catalogmodel.FieldDescriptor{
			Name:     c.ColumnName,
			BaseType: bt,
			PK:       pkSet[c.ColumnName],
			Nested:   bt == catalogmodel.DictionaryField,
		})
	}
	return desc, nil
}

// DescribeTableFks implements driver.Driver.
func (d *Driver) DescribeTableFks(ctx context.Context, table catalogmodel.Table) ([]driver.FKDescription, error) {
	fks, err := sqlintrospect.ForeignKeys(ctx, d.db, d.schema, table.Name)
	if err != nil {
		return nil, err
	}
	out := make([]driver.FKDescription, 0, len(fks))
	for _, fk := range fks {
		out = append(out, driver.FKDescription{
			FKColumnName:   fk.ColumnName,
			DestTable:      catalogmodel.TableDescriptor{Name: fk.RefTableName, Schema: fk.RefSchema},
			DestColumnName: fk.RefColumnName,
		})
	}
	return out, nil
}

// AnalyzeTable implements driver.Driver with a plain COUNT(*).
func (d *Driver) AnalyzeTable(ctx context.Context, table catalogmodel.Table) (map[string]any, error) {
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s.%s", d.quote(table.Schema), d.quote(table.Name))
	var count int64
	if err := d.db.GetContext(ctx, &count, query); err != nil {
		return nil, fmt.Errorf("analyze table %q: %w", table.Name, err)
	}
	return map[string]any{"row_count": count}, nil
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

// sampleColumn samples a top-level column's values as text. Nested fields
// are reconciled but never passed through the content classifiers
// directly, so this only needs to handle physical columns of table.
func (d *Driver) sampleColumn(ctx context.Context, table catalogmodel.Table, field catalogmodel.Field) (*sql.Rows, error) {
	query := fmt.Sprintf("SELECT %s::text FROM %s.%s", d.quote(field.Name), d.quote(table.Schema), d.quote(table.Name))
	return d.db.QueryContext(ctx, query)
}

// ActiveNestedFieldNameToType implements driver.Driver for jsonb/json
// columns by sampling the parent column and inferring a type per key.
func (d *Driver) ActiveNestedFieldNameToType(ctx context.Context, table catalogmodel.Table, field catalogmodel.Field) (map[string]catalogmodel.BaseType, error) {
	query := fmt.Sprintf("SELECT %s::text FROM %s.%s LIMIT 200", d.quote(field.Name), d.quote(table.Schema), d.quote(table.Name))
	return driver.SampleJSONColumnTypes(ctx, d.db.DB, query)
}

// TableRowsSeq implements driver.Driver.
func (d *Driver) TableRowsSeq(ctx context.Context, database catalogmodel.Database, tableName string) (driver.LazySeq[driver.MetadataRow], error) {
	query := fmt.Sprintf("SELECT keypath, value FROM %s.%s", d.quote(d.schema), d.quote(tableName))
	rows, err := d.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("table rows seq %q: %w", tableName, err)
	}
	return driver.NewMetadataRowSeq(rows), nil
}

// DriverSpecificSyncField implements driver.Driver; postgres has no
// per-field adjustment to make before the classifier pipeline runs.
func (d *Driver) DriverSpecificSyncField(ctx context.Context, field catalogmodel.Field) (catalogmodel.Field, error) {
	return field, nil
}

// mapPostgresType maps a postgres udt_name/data_type pair to a BaseType.
func mapPostgresType(udtName, dataType string) catalogmodel.BaseType {
	switch strings.ToLower(udtName) {
	case "int2", "smallint", "int4", "integer", "serial":
		return catalogmodel.IntegerField
	case "int8", "bigint", "bigserial":
		return catalogmodel.BigIntegerField
	case "float4", "real", "float8", "double precision":
		return catalogmodel.FloatField
	case "numeric", "decimal":
		return catalogmodel.DecimalField
	case "varchar", "character varying", "char", "character", "name", "citext", "uuid":
		return catalogmodel.CharField
	case "text":
		return catalogmodel.TextField
	case "bool", "boolean":
		return catalogmodel.BooleanField
	case "timestamp", "timestamptz", "timestamp without time zone", "timestamp with time zone":
		return catalogmodel.DateTimeField
	case "date":
		return catalogmodel.DateField
	case "time", "timetz", "time without time zone", "time with time zone":
		return catalogmodel.TimeField
	case "json", "jsonb":
		return catalogmodel.DictionaryField
	default:
		if strings.ToLower(dataType) == "array" {
			return catalogmodel.TextField
		}
		return catalogmodel.UnknownField
	}
}
