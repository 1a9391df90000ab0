package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/faucetdb/syncer/internal/catalog"
	"github.com/faucetdb/syncer/internal/catalogmodel"
	"github.com/faucetdb/syncer/internal/driver"
)

// keypathPattern parses "table.property" or "table.field.property".
var keypathPattern = regexp.MustCompile(`^([^.]+)\.(?:([^.]+)\.)?([^.]+)$`)

// MetadataInterpreter is C6: it interprets rows of the magic
// _metabase_metadata table as patches to catalog entities.
type MetadataInterpreter struct {
	Store  catalog.Store
	Driver driver.Driver
	Logger *slog.Logger
}

// Interpret does its work only when metadataTableReported is true, that is
// when describeDatabase reported a table named _metabase_metadata
// (case-insensitive); otherwise it returns nil immediately.
func (m *MetadataInterpreter) Interpret(ctx context.Context, db catalogmodel.Database, metadataTableReported bool) error {
	if !metadataTableReported {
		return nil
	}

	seq, err := m.Driver.TableRowsSeq(ctx, db, metadataTableName)
	if err != nil {
		return fmt.Errorf("table rows seq: %w", err)
	}
	if seq == nil {
		return nil // optional capability not implemented
	}
	defer seq.Close()

	for {
		row, ok := seq.Next()
		if !ok {
			break
		}
		// Any exception from a single row is caught, logged, and does not
		// abort the loop.
		tryApply(ctx, m.Logger, "metadata-interpreter", row.Keypath, func() error {
			return m.applyRow(ctx, db, row)
		})
	}
	return nil
}

func (m *MetadataInterpreter) applyRow(ctx context.Context, db catalogmodel.Database, row driver.MetadataRow) error {
	match := keypathPattern.FindStringSubmatch(row.Keypath)
	if match == nil {
		return fmt.Errorf("keypath %q does not match expected shape", row.Keypath)
	}
	tableName, fieldName, propertyKey := match[1], match[2], match[3]

	if fieldName != "" {
		return m.applyFieldPatch(ctx, db, tableName, fieldName, propertyKey, row.Value)
	}
	return m.applyTablePatch(ctx, db, tableName, propertyKey, row.Value)
}

func (m *MetadataInterpreter) applyFieldPatch(ctx context.Context, db catalogmodel.Database, tableName, fieldName, propertyKey, value string) error {
	if !catalog.AllowedFieldMetadataColumns[propertyKey] {
		m.Logger.LogAttrs(ctx, slog.LevelError, "metadata table: unknown field property, skipping",
			slog.String("table", tableName), slog.String("field", fieldName), slog.String("property", propertyKey))
		return nil
	}

	field, err := m.Store.FieldInTableByName(ctx, db.ID, tableName, fieldName)
	if errors.Is(err, catalog.ErrNotFound) {
		m.Logger.LogAttrs(ctx, slog.LevelError, "metadata table: field update matched no rows",
			slog.String("table", tableName), slog.String("field", fieldName))
		return nil
	}
	if err != nil {
		return fmt.Errorf("resolve field %s.%s: %w", tableName, fieldName, err)
	}

	patch := catalog.FieldPatch{}
	switch propertyKey {
	case "description":
		patch.Description = &value
	case "display_name":
		patch.DisplayName = &value
	case "special_type":
		if value == "" {
			patch.SpecialType = new(*catalogmodel.SpecialType) // both nil: clear
		} else {
			st := catalogmodel.SpecialType(value)
			if !catalogmodel.KnownSpecialTypes[st] {
				m.Logger.LogAttrs(ctx, slog.LevelError, "metadata table: unknown special_type value, skipping",
					slog.String("table", tableName), slog.String("field", fieldName), slog.String("value", value))
				return nil
			}
			patch.SpecialType = doublePtrSpecial(&st)
		}
	}
	return m.Store.UpdateField(ctx, field.ID, patch)
}

func (m *MetadataInterpreter) applyTablePatch(ctx context.Context, db catalogmodel.Database, tableName, propertyKey, value string) error {
	if !catalog.AllowedTableMetadataColumns[propertyKey] {
		m.Logger.LogAttrs(ctx, slog.LevelError, "metadata table: unknown table property, skipping",
			slog.String("table", tableName), slog.String("property", propertyKey))
		return nil
	}

	table, err := m.Store.TableByNameInDB(ctx, db.ID, tableName)
	if errors.Is(err, catalog.ErrNotFound) {
		m.Logger.LogAttrs(ctx, slog.LevelError, "metadata table: table update matched no rows",
			slog.String("table", tableName))
		return nil
	}
	if err != nil {
		return fmt.Errorf("resolve table %s: %w", tableName, err)
	}

	patch := catalog.TablePatch{}
	switch propertyKey {
	case "description":
		patch.Description = &value
	case "caveats":
		patch.Caveats = &value
	case "points_of_interest":
		patch.PointsOfInterest = &value
	case "entity_type":
		patch.EntityType = &value
	case "display_name":
		patch.DisplayName = &value
	}
	return m.Store.UpdateTable(ctx, table.ID, patch)
}

// isMetadataTableName reports whether name is the magic metadata table,
// case-insensitive.
func isMetadataTableName(name string) bool {
	return strings.EqualFold(name, metadataTableName)
}
