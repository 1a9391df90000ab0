package cli

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/faucetdb/syncer/internal/config"
	"github.com/faucetdb/syncer/internal/driver"
	"github.com/faucetdb/syncer/internal/eventbus"
	"github.com/faucetdb/syncer/internal/infer"
	"github.com/faucetdb/syncer/internal/sync"
)

// pollInterval is how often watch re-checks which registrations are due,
// independent of any individual registration's own sync interval.
const pollInterval = 30 * time.Second

func newWatchCmd() *cobra.Command {
	var verbose bool

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Run full syncs against every active registration on its own schedule",
		Long: `Polls the registration store and runs a full sync against each active
database whose sync_interval has elapsed since its last run, continuing
until interrupted. A standalone external scheduler is the natural owner of
this loop in production; watch exists for local and single-process
deployments.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd.Context(), verbose)
		},
	}

	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug-level logging")
	return cmd
}

func runWatch(ctx context.Context, verbose bool) error {
	logger := newLogger(verbose)

	configStore, err := openConfigStore()
	if err != nil {
		return fmt.Errorf("open config store: %w", err)
	}
	defer configStore.Close()

	catalogStore, err := openCatalogStore()
	if err != nil {
		return fmt.Errorf("open catalog store: %w", err)
	}
	defer catalogStore.Close()

	inferrer, err := infer.New()
	if err != nil {
		return fmt.Errorf("construct inferrer: %w", err)
	}

	registry := newDriverRegistry()
	defer registry.CloseAll()

	bus := eventbus.NewInProcessBus(logger, 64)
	defer bus.Close()

	orch := sync.NewOrchestrator(catalogStore, bus, inferrer, logger)

	lastRun := make(map[int64]time.Time)
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	logger.LogAttrs(ctx, slog.LevelInfo, "watch started", slog.Duration("poll_interval", pollInterval))

	for {
		runDueRegistrations(ctx, configStore, registry, orch, logger, lastRun)

		select {
		case <-ctx.Done():
			logger.LogAttrs(ctx, slog.LevelInfo, "watch stopping")
			return nil
		case <-ticker.C:
		}
	}
}

func runDueRegistrations(ctx context.Context, configStore *config.Store, registry *driver.Registry, orch *sync.Orchestrator, logger *slog.Logger, lastRun map[int64]time.Time) {
	regs, err := configStore.ListActiveRegistrations(ctx)
	if err != nil {
		logger.LogAttrs(ctx, slog.LevelError, "list active registrations failed", slog.String("error", err.Error()))
		return
	}

	for _, reg := range regs {
		interval := reg.SyncInterval
		if interval <= 0 {
			interval = config.DefaultSyncInterval
		}
		if last, ok := lastRun[reg.ID]; ok && time.Since(last) < interval {
			continue
		}

		if err := runOneWatchedSync(ctx, registry, orch, reg); err != nil {
			logger.LogAttrs(ctx, slog.LevelError, "watched sync failed",
				slog.String("registration", reg.Name), slog.String("error", err.Error()))
		}
		lastRun[reg.ID] = time.Now()
	}
}

func runOneWatchedSync(ctx context.Context, registry *driver.Registry, orch *sync.Orchestrator, reg config.Registration) error {
	d, err := registry.Open(reg)
	if err != nil {
		return fmt.Errorf("open driver: %w", err)
	}
	db := catalogDatabaseFromRegistration(reg)
	return orch.SyncDatabase(ctx, d, db, true, driver.LogContext{})
}
