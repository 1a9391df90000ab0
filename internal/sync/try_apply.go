package sync

import (
	"context"
	"log/slog"

	"github.com/faucetdb/syncer/internal/driver"
)

// tryApply invokes fn and, if it returns an error, logs it at error
// severity and swallows it so the orchestrator proceeds to the next unit —
// the per-unit failure recovery policy. unit identifies what was being
// processed (a table name, a field name, a metadata row) for the log line.
//
// A *DriverContractViolationError is fatal to the run it occurred in, not a
// per-unit failure; callers that can receive one (the table and FK loops in
// syncDatabaseBody) check for it themselves and use tryApplyLog directly
// instead of going through this swallowing wrapper.
func tryApply(ctx context.Context, logger *slog.Logger, stage, unit string, fn func() error) {
	if err := fn(); err != nil {
		tryApplyLog(ctx, logger, stage, unit, err)
	}
}

// tryApplyLog logs a per-unit failure that has already been decided not to
// be fatal to the run.
func tryApplyLog(ctx context.Context, logger *slog.Logger, stage, unit string, err error) {
	level := slog.LevelError
	if driver.LogContextFrom(ctx).SuppressCatalogLog {
		level = slog.LevelDebug
	}
	logger.LogAttrs(ctx, level, "per-unit failure, skipping",
		slog.String("stage", stage),
		slog.String("unit", unit),
		slog.String("error", err.Error()),
	)
}
