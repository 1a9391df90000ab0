// Package driver defines the capability surface every external data source
// adapter must present to the Syncer. The Syncer treats a Driver purely as
// an interface; concrete implementations live in sibling packages
// (postgres, mysql, mssql, snowflake, sqlite).
package driver

import (
	"context"

	"github.com/faucetdb/syncer/internal/catalogmodel"
)

// Capability names an optional feature a Driver may advertise via Features.
type Capability string

const (
	// CapabilityForeignKeys means DescribeTableFks is implemented and the
	// Foreign-Key Reconciler (C5) should run for this driver.
	CapabilityForeignKeys Capability = "foreign-keys"
	// CapabilityNestedFields means ActiveNestedFieldNameToType is
	// implemented and DictionaryField columns may be expanded recursively.
	CapabilityNestedFields Capability = "nested-fields"
)

// DatabaseDescription is the shape DescribeDatabase must return: the set of
// active tables reported live by the external source.
type DatabaseDescription struct {
	Tables []catalogmodel.TableDescriptor
}

// TableDescription is the shape DescribeTable must return.
type TableDescription struct {
	Fields []catalogmodel.FieldDescriptor
}

// FKDescription is one row returned by DescribeTableFks: a foreign key
// column and the table/column it references.
type FKDescription struct {
	FKColumnName     string
	DestTable        catalogmodel.TableDescriptor
	DestColumnName   string
}

// MetadataRow is one row returned by TableRowsSeq, interpreted by the
// Metadata-Table Interpreter (C6).
type MetadataRow struct {
	Keypath string
	Value   string
}

// LazySeq is a small pull-based iterator: Next returns the next element and
// false once exhausted. Implementations may be backed by a driver cursor
// and so may be finite or effectively unbounded; callers that need a bound
// (such as the JSON classifier's sample cap) enforce it themselves.
type LazySeq[T any] interface {
	Next() (T, bool)
	// Close releases any resources (e.g. a driver cursor) held by the
	// sequence. Safe to call multiple times.
	Close() error
}

// Driver is the capability surface every external data source adapter must
// present.
type Driver interface {
	// SyncInContext runs fn with a scoped acquisition of driver resources
	// (e.g. a single connection or transaction), releasing them on all
	// exit paths including a panic or error from fn.
	SyncInContext(ctx context.Context, database catalogmodel.Database, fn func(context.Context) error) error

	// DescribeDatabase returns the set of active tables reported live by
	// the external source.
	DescribeDatabase(ctx context.Context, database catalogmodel.Database) (DatabaseDescription, error)

	// DescribeTable returns the set of fields reported live for one table.
	DescribeTable(ctx context.Context, table catalogmodel.Table) (TableDescription, error)

	// DescribeTableFks returns the foreign key relationships reported live
	// for one table. Only called when Features includes CapabilityForeignKeys.
	DescribeTableFks(ctx context.Context, table catalogmodel.Table) ([]FKDescription, error)

	// AnalyzeTable signals, by a non-nil return, that analyze-only passes
	// may run for this table. The returned map is driver-specific and not
	// interpreted further by the Syncer; a nil result with a nil error
	// means analyze is not supported for this table.
	AnalyzeTable(ctx context.Context, table catalogmodel.Table) (map[string]any, error)

	// FieldPercentUrls returns the fraction, in [0,1], of sampled non-blank
	// values that look like a URL.
	FieldPercentUrls(ctx context.Context, table catalogmodel.Table, field catalogmodel.Field) (float64, error)

	// FieldAvgLength returns the average string length of sampled values.
	FieldAvgLength(ctx context.Context, table catalogmodel.Table, field catalogmodel.Field) (int, error)

	// FieldValuesLazySeq returns a lazy sequence of sampled values (nil
	// entries represent SQL NULLs) for content classification.
	FieldValuesLazySeq(ctx context.Context, table catalogmodel.Table, field catalogmodel.Field) (LazySeq[*string], error)

	// ActiveNestedFieldNameToType returns the current child name -> base
	// type map for a DictionaryField column. Only called when Features
	// includes CapabilityNestedFields.
	ActiveNestedFieldNameToType(ctx context.Context, table catalogmodel.Table, field catalogmodel.Field) (map[string]catalogmodel.BaseType, error)

	// TableRowsSeq returns a sequence of rows for the named table, used to
	// interpret _metabase_metadata. Optional: implementations that do not
	// support it return (nil, nil).
	TableRowsSeq(ctx context.Context, database catalogmodel.Database, tableName string) (LazySeq[MetadataRow], error)

	// Features returns the set of optional capabilities this driver
	// advertises.
	Features() map[Capability]bool

	// DriverSpecificSyncField gives the driver a chance to annotate a field
	// before the classifier pipeline runs. Returning the same field
	// unchanged is always valid.
	DriverSpecificSyncField(ctx context.Context, field catalogmodel.Field) (catalogmodel.Field, error)

	// Name identifies the dialect, e.g. "postgres", "mysql".
	Name() string
}

// HasCapability is a small convenience wrapper around Features().
func HasCapability(d Driver, c Capability) bool {
	return d.Features()[c]
}
