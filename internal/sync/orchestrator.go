package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/faucetdb/syncer/internal/catalog"
	"github.com/faucetdb/syncer/internal/catalogmodel"
	"github.com/faucetdb/syncer/internal/driver"
	"github.com/faucetdb/syncer/internal/eventbus"
	"github.com/faucetdb/syncer/internal/infer"
)

// Orchestrator is C7: it drives C3 through C6 for one database or one
// table, publishes the begin/end/table-sync events, and isolates per-unit
// failures so one bad table or field never aborts the run.
type Orchestrator struct {
	Store  catalog.Store
	Bus    eventbus.Bus
	Logger *slog.Logger

	tableReconciler *TableReconciler
	fieldReconciler func(driver.Driver) *FieldReconciler
	fkReconciler    func(driver.Driver) *FKReconciler
	interpreter     func(driver.Driver) *MetadataInterpreter
}

// NewOrchestrator wires the C3-C6 components against a shared Store and
// Inferrer. The Inferrer is constructed once at startup: a misconfigured
// pattern table is fatal before any database is touched.
func NewOrchestrator(store catalog.Store, bus eventbus.Bus, inferrer *infer.Inferrer, logger *slog.Logger) *Orchestrator {
	o := &Orchestrator{Store: store, Bus: bus, Logger: logger}
	o.tableReconciler = &TableReconciler{Store: store, Logger: logger}
	o.fieldReconciler = func(d driver.Driver) *FieldReconciler {
		return &FieldReconciler{Store: store, Driver: d, Inferrer: inferrer, Logger: logger}
	}
	o.fkReconciler = func(d driver.Driver) *FKReconciler {
		return &FKReconciler{Store: store, Driver: d, Logger: logger}
	}
	o.interpreter = func(d driver.Driver) *MetadataInterpreter {
		return &MetadataInterpreter{Store: store, Driver: d, Logger: logger}
	}
	return o
}

// SyncDatabase runs the top-level control flow: describeDatabase -> C3 ->
// (C4 -> C2 per table) -> C5 second pass -> C6, with the run's begin/end
// events published regardless of per-unit failures along the way.
// lc overrides the ambient LogContext already attached to ctx, if any, for
// the duration of this call; the caller's own ctx value is untouched, so
// nothing needs restoring once SyncDatabase returns.
func (o *Orchestrator) SyncDatabase(ctx context.Context, d driver.Driver, db catalogmodel.Database, fullSync bool, lc driver.LogContext) error {
	ctx = driver.WithLogContext(ctx, lc)
	runID := uuid.New().String()
	o.Bus.Publish(ctx, eventbus.DatabaseSyncBegin, map[string]any{
		"custom_id": runID, "database_id": db.ID, "database": db.Name, "driver": d.Name(),
	})

	err := d.SyncInContext(ctx, db, func(ctx context.Context) error {
		return o.syncDatabaseBody(ctx, d, db, fullSync)
	})

	o.Bus.Publish(ctx, eventbus.DatabaseSyncEnd, map[string]any{
		"custom_id": runID, "database_id": db.ID, "database": db.Name, "success": err == nil,
	})
	return err
}

func (o *Orchestrator) syncDatabaseBody(ctx context.Context, d driver.Driver, db catalogmodel.Database, fullSync bool) error {
	desc, err := d.DescribeDatabase(ctx, db)
	if err != nil {
		return &DriverContractViolationError{Component: "orchestrator", Detail: err.Error()}
	}

	tables, err := o.tableReconciler.Reconcile(ctx, db, desc)
	if err != nil {
		return err
	}

	metadataReported := false
	for _, td := range desc.Tables {
		if isMetadataTableName(td.Name) {
			metadataReported = true
			break
		}
	}

	total := len(tables)
	for i, table := range tables {
		if ctx.Err() != nil {
			return ctx.Err() // per-table cancellation boundary
		}
		if err := o.SyncTable(ctx, d, table, fullSync); err != nil {
			var violation *DriverContractViolationError
			if errors.As(err, &violation) {
				return err // fatal to the run; do not let tryApply's per-unit recovery hide it
			}
			tryApplyLog(ctx, o.Logger, "orchestrator", table.Name, err)
		}
		o.Logger.LogAttrs(ctx, slog.LevelInfo, "sync progress",
			slog.String("database", db.Name), slog.String("table", table.Name),
			slog.String("progress", RenderProgress(i+1, total)))
	}

	if driver.HasCapability(d, driver.CapabilityForeignKeys) {
		fkr := o.fkReconciler(d)
		for _, table := range tables {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if err := fkr.Reconcile(ctx, db, table); err != nil {
				var violation *DriverContractViolationError
				if errors.As(err, &violation) {
					return err
				}
				tryApplyLog(ctx, o.Logger, "fk-reconciler", table.Name, err)
			}
		}
	}

	if metadataReported {
		if err := o.interpreter(d).Interpret(ctx, db, true); err != nil {
			o.Logger.LogAttrs(ctx, slog.LevelError, "metadata interpreter failed",
				slog.String("database", db.Name), slog.String("error", err.Error()))
		}
	}

	return nil
}

// SyncTable runs the per-table slice: describeTable -> C4 (which runs C2
// internally per field), then publishes table-sync.
func (o *Orchestrator) SyncTable(ctx context.Context, d driver.Driver, table catalogmodel.Table, fullSync bool) error {
	desc, err := d.DescribeTable(ctx, table)
	if err != nil {
		return &DriverContractViolationError{Component: "orchestrator", Detail: err.Error()}
	}

	if err := o.fieldReconciler(d).Reconcile(ctx, table, desc, fullSync); err != nil {
		return fmt.Errorf("sync table %q: %w", table.Name, err)
	}

	o.Bus.Publish(ctx, eventbus.TableSync, map[string]any{
		"table_id": table.ID, "table": table.Name, "schema": table.Schema,
	})
	return nil
}
