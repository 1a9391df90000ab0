// Package snowflake adapts a Snowflake database to the driver.Driver
// interface, including a JWT key-pair authenticator, and
// information_schema introspection.
package snowflake

import (
	"context"
	"crypto/rsa"
	"crypto/x509"
	"database/sql"
	"encoding/pem"
	"fmt"
	"os"
	"strings"

	"github.com/jmoiron/sqlx"
	gosnowflake "github.com/snowflakedb/gosnowflake"

	"github.com/faucetdb/syncer/internal/catalogmodel"
	"github.com/faucetdb/syncer/internal/config"
	"github.com/faucetdb/syncer/internal/driver"
	"github.com/faucetdb/syncer/internal/driver/sqlintrospect"
)

// Driver implements driver.Driver for Snowflake.
type Driver struct {
	db     *sqlx.DB
	schema string
}

// Open connects to the database named by reg.DSN and returns a ready
// Driver. When reg.PrivateKeyPath is set, it authenticates with JWT
// key-pair auth instead of the password embedded in the DSN.
func Open(reg config.Registration) (driver.Driver, error) {
	dsn := reg.DSN
	if reg.PrivateKeyPath != "" {
		var err error
		dsn, err = buildJWTDSN(dsn, reg.PrivateKeyPath)
		if err != nil {
			return nil, fmt.Errorf("snowflake jwt auth: %w", err)
		}
	}

	db, err := sqlx.Connect("snowflake", dsn)
	if err != nil {
		return nil, fmt.Errorf("snowflake connect: %w", err)
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
		schema = "PUBLIC"
	}
	return &Driver{db: db, schema: schema}, nil
}

// buildJWTDSN parses dsn, loads the private key from keyPath, sets JWT
// authenticator fields, and re-serializes the DSN.
func buildJWTDSN(dsn, keyPath string) (string, error) {
	sfConfig, err := gosnowflake.ParseDSN(dsn)
	if err != nil && strings.Contains(err.Error(), "password is empty") {
		if idx := strings.Index(dsn, "@"); idx > 0 && !strings.Contains(dsn[:idx], ":") {
			dsn = dsn[:idx] + ":_" + dsn[idx:]
		}
		sfConfig, err = gosnowflake.ParseDSN(dsn)
	}
	if err != nil {
		return "", fmt.Errorf("parse DSN: %w", err)
	}
	sfConfig.Password = ""

	privKey, err := loadPrivateKey(keyPath)
	if err != nil {
		return "", err
	}

	sfConfig.Authenticator = gosnowflake.AuthTypeJwt
	sfConfig.PrivateKey = privKey

	newDSN, err := gosnowflake.DSN(sfConfig)
	if err != nil {
		return "", fmt.Errorf("rebuild DSN: %w", err)
	}
	return newDSN, nil
}

// loadPrivateKey reads a PEM-encoded private key file and returns an
// *rsa.PrivateKey. Supports both PKCS#1 (RSA PRIVATE KEY) and PKCS#8
// (PRIVATE KEY) formats.
func loadPrivateKey(path string) (*rsa.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read private key file %q: %w", path, err)
	}

	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("no PEM block found in %q", path)
	}

	var key any
	switch block.Type {
	case "RSA PRIVATE KEY":
		key, err = x509.ParsePKCS1PrivateKey(block.Bytes)
	case "PRIVATE KEY":
		key, err = x509.ParsePKCS8PrivateKey(block.Bytes)
	default:
		return nil, fmt.Errorf("unsupported PEM block type %q", block.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}

	rsaKey, ok := key.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("private key is not RSA (got %T)", key)
	}
	return rsaKey, nil
}

// Close closes the underlying connection pool.
func (d *Driver) Close() error { return d.db.Close() }

// Name implements driver.Driver.
func (d *Driver) Name() string { return "snowflake" }

// Features implements driver.Driver.
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
	cols, err := sqlintrospect.Columns(ctx, d.db, d.schema, table.Name, "data_type")
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
		bt := mapSnowflakeType(c.DataType)
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

func (d *Driver) sampleColumn(ctx context.Context, table catalogmodel.Table, field catalogmodel.Field) (*sql.Rows, error) {
	query := fmt.Sprintf("SELECT TO_VARCHAR(%s) FROM %s.%s", d.quote(field.Name), d.quote(table.Schema), d.quote(table.Name))
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

// ActiveNestedFieldNameToType implements driver.Driver for VARIANT/OBJECT
// columns.
func (d *Driver) ActiveNestedFieldNameToType(ctx context.Context, table catalogmodel.Table, field catalogmodel.Field) (map[string]catalogmodel.BaseType, error) {
	query := fmt.Sprintf("SELECT TO_VARCHAR(%s) FROM %s.%s LIMIT 200", d.quote(field.Name), d.quote(table.Schema), d.quote(table.Name))
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

// DriverSpecificSyncField implements driver.Driver; Snowflake has no
// per-field adjustment to make before the classifier pipeline runs.
func (d *Driver) DriverSpecificSyncField(ctx context.Context, field catalogmodel.Field) (catalogmodel.Field, error) {
	return field, nil
}

// mapSnowflakeType maps a Snowflake information_schema data_type to a
// BaseType.
func mapSnowflakeType(dataType string) catalogmodel.BaseType {
	switch strings.ToUpper(dataType) {
	case "NUMBER", "DECIMAL", "NUMERIC":
		return catalogmodel.DecimalField
	case "FLOAT", "FLOAT4", "FLOAT8", "DOUBLE", "DOUBLE PRECISION", "REAL":
		return catalogmodel.FloatField
	case "INT", "INTEGER", "SMALLINT", "TINYINT", "BYTEINT":
		return catalogmodel.IntegerField
	case "BIGINT":
		return catalogmodel.BigIntegerField
	case "VARCHAR", "STRING", "CHAR", "CHARACTER":
		return catalogmodel.CharField
	case "TEXT":
		return catalogmodel.TextField
	case "BOOLEAN":
		return catalogmodel.BooleanField
	case "DATE":
		return catalogmodel.DateField
	case "DATETIME", "TIMESTAMP", "TIMESTAMP_LTZ", "TIMESTAMP_NTZ", "TIMESTAMP_TZ":
		return catalogmodel.DateTimeField
	case "TIME":
		return catalogmodel.TimeField
	case "BINARY", "VARBINARY":
		return catalogmodel.UnknownField
	case "VARIANT", "OBJECT", "ARRAY":
		return catalogmodel.DictionaryField
	case "GEOGRAPHY", "GEOMETRY":
		return catalogmodel.CharField
	default:
		return catalogmodel.UnknownField
	}
}
