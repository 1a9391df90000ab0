package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/faucetdb/syncer/internal/driver"
	"github.com/faucetdb/syncer/internal/eventbus"
	"github.com/faucetdb/syncer/internal/infer"
	"github.com/faucetdb/syncer/internal/sync"
)

func newSyncCmd() *cobra.Command {
	var (
		full    bool
		verbose bool
	)

	cmd := &cobra.Command{
		Use:   "sync <name>",
		Short: "Run a full catalog sync against a registered database",
		Long: `Describes the database live, reconciles its tables, fields, and (when
the driver supports it) foreign keys into the catalog, and interprets a
_metabase_metadata table if one is found along the way.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(args[0], full, verbose)
		},
	}

	cmd.Flags().BoolVar(&full, "full", true, "Run the full content-classification pass (C2) rather than an incremental sync")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug-level logging")

	return cmd
}

func runSync(name string, full, verbose bool) error {
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

	ctx := context.Background()
	reg, err := configStore.GetRegistrationByName(ctx, name)
	if err != nil {
		return fmt.Errorf("look up registration %q: %w", name, err)
	}

	registry := newDriverRegistry()
	defer registry.CloseAll()

	d, err := registry.Open(*reg)
	if err != nil {
		return fmt.Errorf("open driver: %w", err)
	}

	inferrer, err := infer.New()
	if err != nil {
		return fmt.Errorf("construct inferrer: %w", err)
	}

	bus := eventbus.NewInProcessBus(logger, 64)
	defer bus.Close()

	orch := sync.NewOrchestrator(catalogStore, bus, inferrer, logger)

	db := catalogDatabaseFromRegistration(*reg)
	err = orch.SyncDatabase(ctx, d, db, full, driver.LogContext{})

	announce(err == nil, "sync %q: %s", name, syncOutcome(err))
	if err != nil {
		return fmt.Errorf("sync %q: %w", name, err)
	}
	return nil
}

func syncOutcome(err error) string {
	if err == nil {
		return "ok"
	}
	return "failed"
}
