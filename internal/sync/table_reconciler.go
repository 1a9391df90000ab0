package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/faucetdb/syncer/internal/catalog"
	"github.com/faucetdb/syncer/internal/catalogmodel"
	"github.com/faucetdb/syncer/internal/driver"
)

// metadataTableName is the magic table name interpreted by the Metadata
// Table Interpreter (C6) instead of materialized as a catalog Table.
const metadataTableName = "_metabase_metadata"

// TableReconciler is C3: it diffs the Driver's reported active tables
// against the catalog and activates/deactivates/creates rows accordingly.
type TableReconciler struct {
	Store  catalog.Store
	Logger *slog.Logger
}

// Reconcile diffs the driver's reported tables against the catalog and
// returns the active tables after reconciliation, excluding
// _metabase_metadata (which C6 interprets separately and which is never
// materialized as a catalog Table).
func (r *TableReconciler) Reconcile(ctx context.Context, db catalogmodel.Database, desc driver.DatabaseDescription) ([]catalogmodel.Table, error) {
	if err := validateTableDescriptors(desc.Tables); err != nil {
		return nil, &DriverContractViolationError{Component: "table-reconciler", Detail: err.Error()}
	}

	existing, err := r.Store.ActiveTables(ctx, db.ID)
	if err != nil {
		return nil, fmt.Errorf("load active tables: %w", err)
	}
	existingByKey := make(map[catalogmodel.TableKey]catalogmodel.Table, len(existing))
	for _, t := range existing {
		existingByKey[t.SchemaKey()] = t
	}

	incomingByKey := make(map[catalogmodel.TableKey]catalogmodel.TableDescriptor)
	for _, td := range desc.Tables {
		if strings.EqualFold(td.Name, metadataTableName) {
			continue // filtered out entirely; interpreted by C6 instead
		}
		incomingByKey[catalogmodel.TableKey{Schema: td.Schema, Name: td.Name}] = td
	}

	// Deactivate: existing tables absent from the incoming set.
	quiet := driver.LogContextFrom(ctx).SuppressCatalogLog
	var toDeactivate []int64
	for key, t := range existingByKey {
		if _, ok := incomingByKey[key]; !ok {
			toDeactivate = append(toDeactivate, t.ID)
			if !quiet {
				r.Logger.LogAttrs(ctx, slog.LevelInfo, "deactivating table",
					slog.String("table", key.Name), slog.String("schema", key.Schema))
			}
		}
	}
	if err := r.Store.DeactivateTables(ctx, toDeactivate); err != nil {
		return nil, fmt.Errorf("deactivate tables: %w", err)
	}

	// Create: incoming tables not already active in the catalog. A key that
	// matches a previously-deactivated row is reactivated in place rather
	// than inserted again, since (db_id, schema_name, name) is unique and a
	// second insert would fail the constraint.
	result := make([]catalogmodel.Table, 0, len(incomingByKey))
	for key, td := range incomingByKey {
		if t, ok := existingByKey[key]; ok {
			result = append(result, t)
			continue
		}

		if prior, err := r.Store.TableByKey(ctx, db.ID, key); err == nil {
			active := true
			if err := r.Store.UpdateTable(ctx, prior.ID, catalog.TablePatch{Active: &active}); err != nil {
				return nil, fmt.Errorf("reactivate table %q: %w", key.Name, err)
			}
			prior.Active = true
			if !quiet {
				r.Logger.LogAttrs(ctx, slog.LevelInfo, "reactivated table",
					slog.String("table", key.Name), slog.String("schema", key.Schema))
			}
			result = append(result, prior)
			continue
		} else if !errors.Is(err, catalog.ErrNotFound) {
			return nil, fmt.Errorf("look up table %q: %w", key.Name, err)
		}

		t, err := r.Store.InsertTable(ctx, catalogmodel.Table{
			DBID:   db.ID,
			Schema: td.Schema,
			Name:   td.Name,
		})
		if err != nil {
			return nil, fmt.Errorf("create table %q: %w", key.Name, err)
		}
		if !quiet {
			r.Logger.LogAttrs(ctx, slog.LevelInfo, "created table",
				slog.String("table", key.Name), slog.String("schema", key.Schema))
		}
		result = append(result, t)
	}

	// Tables are processed by C4 in name order.
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })

	return result, nil
}

// validateTableDescriptors asserts the shape a Driver must honor:
// every element must carry a non-empty name.
func validateTableDescriptors(tables []catalogmodel.TableDescriptor) error {
	for i, t := range tables {
		if strings.TrimSpace(t.Name) == "" {
			return fmt.Errorf("table descriptor at index %d has empty name", i)
		}
	}
	return nil
}
