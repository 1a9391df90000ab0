// Package catalogmodel defines the catalog entities the Syncer reconciles:
// databases, tables, fields, foreign keys, and the field-values cache.
package catalogmodel

import "time"

// BaseType is the physical column type reported by a Driver.
type BaseType string

// Closed enumeration of base types.
const (
	BooleanField    BaseType = "BooleanField"
	BigIntegerField BaseType = "BigIntegerField"
	IntegerField    BaseType = "IntegerField"
	DecimalField    BaseType = "DecimalField"
	FloatField      BaseType = "FloatField"
	CharField       BaseType = "CharField"
	TextField       BaseType = "TextField"
	DateField       BaseType = "DateField"
	DateTimeField   BaseType = "DateTimeField"
	TimeField       BaseType = "TimeField"
	DictionaryField BaseType = "DictionaryField"
	UnknownField    BaseType = "UnknownField"
)

// KnownBaseTypes is the closed set of valid BaseType values.
var KnownBaseTypes = map[BaseType]bool{
	BooleanField:    true,
	BigIntegerField: true,
	IntegerField:    true,
	DecimalField:    true,
	FloatField:      true,
	CharField:       true,
	TextField:       true,
	DateField:       true,
	DateTimeField:   true,
	TimeField:       true,
	DictionaryField: true,
	UnknownField:    true,
}

// IsTextual reports whether base types of this kind are treated as textual
// by the content classifiers.
func (b BaseType) IsTextual() bool {
	return b == CharField || b == TextField
}

// SpecialType is the inferred semantic role of a column, independent of its
// storage type.
type SpecialType string

// Closed enumeration of special types.
const (
	SpecialID        SpecialType = "id"
	SpecialFK         SpecialType = "fk"
	SpecialCategory   SpecialType = "category"
	SpecialURL        SpecialType = "url"
	SpecialJSON       SpecialType = "json"
	SpecialName       SpecialType = "name"
	SpecialLatitude   SpecialType = "latitude"
	SpecialLongitude  SpecialType = "longitude"
	SpecialCity       SpecialType = "city"
	SpecialState      SpecialType = "state"
	SpecialCountry    SpecialType = "country"
	SpecialZipCode    SpecialType = "zip_code"
)

// KnownSpecialTypes is the closed set of valid SpecialType values.
var KnownSpecialTypes = map[SpecialType]bool{
	SpecialID:       true,
	SpecialFK:       true,
	SpecialCategory:  true,
	SpecialURL:       true,
	SpecialJSON:      true,
	SpecialName:      true,
	SpecialLatitude:  true,
	SpecialLongitude: true,
	SpecialCity:      true,
	SpecialState:     true,
	SpecialCountry:   true,
	SpecialZipCode:   true,
}

// Relationship classifies a ForeignKey's cardinality.
type Relationship string

const (
	ManyToOne Relationship = "ManyToOne"
	OneToOne  Relationship = "OneToOne"
)

// Database is a registered external data source. Read-only to the Syncer.
type Database struct {
	ID   int64  `json:"id" db:"id"`
	Name string `json:"name" db:"name"`
}

// Table is a catalog record for one table or view in a Database.
type Table struct {
	ID          int64     `json:"id" db:"id"`
	DBID        int64     `json:"db_id" db:"db_id"`
	Schema      string    `json:"schema" db:"schema_name"` // "" means no schema
	Name        string    `json:"name" db:"name"`
	DisplayName string    `json:"display_name" db:"display_name"`
	Active      bool      `json:"active" db:"active"`
	Rows        *int64    `json:"rows,omitempty" db:"rows"`
	Description string    `json:"description,omitempty" db:"description"`
	Caveats     string    `json:"caveats,omitempty" db:"caveats"`
	PointsOfInterest string `json:"points_of_interest,omitempty" db:"points_of_interest"`
	EntityType  string    `json:"entity_type,omitempty" db:"entity_type"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}

// SchemaKey returns the normalized (schema, name) identity used for
// diffing. An absent schema is its own distinct key, never conflated with
// any present schema.
func (t Table) SchemaKey() TableKey {
	return TableKey{Schema: t.Schema, Name: t.Name}
}

// TableKey identifies a table within a database by (schema, name).
type TableKey struct {
	Schema string
	Name   string
}

// Field is a catalog record for one column, or one nested sub-field of a
// DictionaryField column.
type Field struct {
	ID              int64        `json:"id" db:"id"`
	TableID         int64        `json:"table_id" db:"table_id"`
	ParentID        *int64       `json:"parent_id,omitempty" db:"parent_id"`
	Name            string       `json:"name" db:"name"`
	BaseType        BaseType     `json:"base_type" db:"base_type"`
	SpecialType     *SpecialType `json:"special_type,omitempty" db:"special_type"`
	DisplayName     string       `json:"display_name" db:"display_name"`
	Description     string       `json:"description,omitempty" db:"description"`
	PreviewDisplay  bool         `json:"preview_display" db:"preview_display"`
	Active          bool         `json:"active" db:"active"`
	GoType          string       `json:"go_type,omitempty" db:"go_type"`
	JSONType        string       `json:"json_type,omitempty" db:"json_type"`
	CreatedAt       time.Time    `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time    `json:"updated_at" db:"updated_at"`
}

// IsNested reports whether the field is a nested sub-field of a
// DictionaryField column.
func (f Field) IsNested() bool { return f.ParentID != nil }

// ForeignKey links an origin Field to a destination Field.
type ForeignKey struct {
	ID                 int64        `json:"id" db:"id"`
	OriginFieldID      int64        `json:"origin_field_id" db:"origin_field_id"`
	DestinationFieldID int64        `json:"destination_field_id" db:"destination_field_id"`
	Relationship       Relationship `json:"relationship" db:"relationship"`
}

// FieldValues is the opaque per-field cache of distinct values used for
// low-cardinality columns in pick-list UIs. The Syncer only decides whether
// to refresh or create one; the values themselves are produced by an
// external collaborator.
type FieldValues struct {
	ID          int64     `json:"id" db:"id"`
	FieldID     int64     `json:"field_id" db:"field_id"`
	Values      []string  `json:"values" db:"values_json"`
	LastUsedAt  time.Time `json:"last_used_at" db:"last_used_at"`
}

// FieldDescriptor is what a Driver reports about one column before catalog
// reconciliation — not yet a catalog Field.
type FieldDescriptor struct {
	Name     string
	BaseType BaseType
	PK       bool
	Nested   bool
}

// TableDescriptor is what a Driver reports about one table's identity
// before catalog reconciliation.
type TableDescriptor struct {
	Name   string
	Schema string // "" if the table has no schema
}
