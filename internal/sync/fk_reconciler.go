package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/faucetdb/syncer/internal/catalog"
	"github.com/faucetdb/syncer/internal/catalogmodel"
	"github.com/faucetdb/syncer/internal/driver"
)

// FKReconciler is C5: the second-pass linker that resolves FK columns to
// destination columns across tables. It must run only after every active
// table in the database has completed field reconciliation.
type FKReconciler struct {
	Store  catalog.Store
	Driver driver.Driver
	Logger *slog.Logger
}

// Reconcile links the foreign keys of one table. Each FK description whose
// origin or destination cannot be resolved is skipped, not an error.
func (r *FKReconciler) Reconcile(ctx context.Context, db catalogmodel.Database, table catalogmodel.Table) error {
	fks, err := r.Driver.DescribeTableFks(ctx, table)
	if err != nil {
		return &DriverContractViolationError{Component: "fk-reconciler", Detail: err.Error()}
	}

	for _, fk := range fks {
		origin, err := r.Store.FieldByName(ctx, table.ID, nil, fk.FKColumnName)
		if errors.Is(err, catalog.ErrNotFound) {
			r.Logger.LogAttrs(ctx, slog.LevelWarn, "fk origin not found, skipping",
				slog.String("table", table.Name), slog.String("column", fk.FKColumnName))
			continue
		}
		if err != nil {
			return fmt.Errorf("resolve fk origin %q: %w", fk.FKColumnName, err)
		}

		destTable, err := r.Store.TableByKey(ctx, db.ID, catalogmodel.TableKey{Schema: fk.DestTable.Schema, Name: fk.DestTable.Name})
		if errors.Is(err, catalog.ErrNotFound) {
			r.Logger.LogAttrs(ctx, slog.LevelWarn, "fk destination table not found, skipping",
				slog.String("table", table.Name), slog.String("dest_table", fk.DestTable.Name))
			continue
		}
		if err != nil {
			return fmt.Errorf("resolve fk destination table %q: %w", fk.DestTable.Name, err)
		}

		destField, err := r.Store.FieldByName(ctx, destTable.ID, nil, fk.DestColumnName)
		if errors.Is(err, catalog.ErrNotFound) {
			r.Logger.LogAttrs(ctx, slog.LevelWarn, "fk destination column not found, skipping",
				slog.String("table", table.Name), slog.String("dest_column", fk.DestColumnName))
			continue
		}
		if err != nil {
			return fmt.Errorf("resolve fk destination column %q: %w", fk.DestColumnName, err)
		}

		if _, err := r.Store.InsertForeignKey(ctx, catalogmodel.ForeignKey{
			OriginFieldID:      origin.ID,
			DestinationFieldID: destField.ID,
			Relationship:       catalogmodel.ManyToOne, // OneToOne detection stays disabled; see DESIGN.md
		}); err != nil {
			return fmt.Errorf("insert foreign key %s.%s -> %s.%s: %w",
				table.Name, fk.FKColumnName, fk.DestTable.Name, fk.DestColumnName, err)
		}

		// FK-ness overrides any prior special_type inference — the one
		// documented exception to "never replace special_type".
		special := catalogmodel.SpecialFK
		if err := r.Store.UpdateField(ctx, origin.ID, catalog.FieldPatch{SpecialType: doublePtrSpecial(&special)}); err != nil {
			return fmt.Errorf("mark fk special type on %q: %w", fk.FKColumnName, err)
		}
	}
	return nil
}
