// Package catalog defines the Catalog Store surface and provides a
// SQLite-backed implementation built the same way the registration store
// is: jmoiron/sqlx over modernc.org/sqlite, with a numbered idempotent
// migration list.
package catalog

import (
	"context"
	"errors"

	"github.com/faucetdb/syncer/internal/catalogmodel"
)

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("catalog: not found")

// Store is the persistence surface the Syncer's components write through.
// It is the single shared mutable resource across a sync run.
type Store interface {
	// --- Tables ---
	ActiveTables(ctx context.Context, dbID int64) ([]catalogmodel.Table, error)
	InsertTable(ctx context.Context, t catalogmodel.Table) (catalogmodel.Table, error)
	UpdateTable(ctx context.Context, id int64, patch TablePatch) error
	DeactivateTables(ctx context.Context, ids []int64) error
	TableByKey(ctx context.Context, dbID int64, key catalogmodel.TableKey) (catalogmodel.Table, error)
	TableByNameInDB(ctx context.Context, dbID int64, name string) (catalogmodel.Table, error)

	// --- Fields ---
	ActiveTopLevelFields(ctx context.Context, tableID int64) ([]catalogmodel.Field, error)
	ActiveChildFields(ctx context.Context, parentFieldID int64) ([]catalogmodel.Field, error)
	InsertField(ctx context.Context, f catalogmodel.Field) (catalogmodel.Field, error)
	UpdateField(ctx context.Context, id int64, patch FieldPatch) error
	DeactivateFields(ctx context.Context, ids []int64) error
	DeactivateFieldsForTables(ctx context.Context, tableIDs []int64) error
	FieldByName(ctx context.Context, tableID int64, parentID *int64, name string) (catalogmodel.Field, error)
	FieldByNameAnyStatus(ctx context.Context, tableID int64, parentID *int64, name string) (catalogmodel.Field, error)
	FieldByID(ctx context.Context, id int64) (catalogmodel.Field, error)
	FieldInTableByName(ctx context.Context, dbID int64, tableName, fieldName string) (catalogmodel.Field, error)

	// --- Foreign keys ---
	InsertForeignKey(ctx context.Context, fk catalogmodel.ForeignKey) (catalogmodel.ForeignKey, error)
	ForeignKeyByOrigin(ctx context.Context, originFieldID int64) (catalogmodel.ForeignKey, error)

	// --- Field values cache ---
	FieldDistinctCount(ctx context.Context, fieldID int64, cap int) (int, error)
	FieldShouldHaveFieldValues(ctx context.Context, field catalogmodel.Field) (bool, error)
	UpdateFieldValues(ctx context.Context, field catalogmodel.Field) error

	// --- Misc ---
	TableRowCount(ctx context.Context, tableID int64) (int64, error)
	NameToHumanReadable(name string) string
}

// TablePatch describes the columns UpdateTable may change. Nil fields are
// left unmodified — C6 uses the allow-listed subset below, C4/C7 use the
// rest for ordinary reconciliation.
type TablePatch struct {
	DisplayName      *string
	Active           *bool
	Rows             *int64
	Description      *string
	Caveats          *string
	PointsOfInterest *string
	EntityType       *string
}

// FieldPatch describes the columns UpdateField may change. Nil fields are
// left unmodified.
type FieldPatch struct {
	DisplayName    *string
	BaseType       *catalogmodel.BaseType
	SpecialType    **catalogmodel.SpecialType
	PreviewDisplay *bool
	Active         *bool
	Description    *string
	GoType         *string
	JSONType       *string
}

// AllowedTableMetadataColumns is the closed allow-list of Table columns
// _metabase_metadata rows may set. Updates by arbitrary column name are
// rejected rather than applied dynamically.
var AllowedTableMetadataColumns = map[string]bool{
	"description":        true,
	"caveats":             true,
	"points_of_interest":  true,
	"entity_type":         true,
	"display_name":        true,
}

// AllowedFieldMetadataColumns is the closed allow-list of Field columns
// _metabase_metadata rows may set.
var AllowedFieldMetadataColumns = map[string]bool{
	"description":  true,
	"display_name": true,
	"special_type": true,
}
