package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/faucetdb/syncer/internal/catalog"
	"github.com/faucetdb/syncer/internal/eventbus"
	"github.com/faucetdb/syncer/internal/infer"
	"github.com/faucetdb/syncer/internal/sync"
)

func newSyncTableCmd() *cobra.Command {
	var (
		full    bool
		verbose bool
	)

	cmd := &cobra.Command{
		Use:   "sync-table <name> <table>",
		Short: "Reconcile fields for one already-cataloged table",
		Long: `Runs C4 (Field Reconciler, which internally drives C2) against a single
table already present in the catalog. The table must already exist in the
catalog — run 'syncer sync <name>' first for a database that has never
been synced.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSyncTable(args[0], args[1], full, verbose)
		},
	}

	cmd.Flags().BoolVar(&full, "full", true, "Run the full content-classification pass (C2) rather than an incremental sync")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug-level logging")

	return cmd
}

func runSyncTable(name, tableName string, full, verbose bool) error {
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

	db := catalogDatabaseFromRegistration(*reg)
	table, err := catalogStore.TableByNameInDB(ctx, db.ID, tableName)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			return fmt.Errorf("table %q is not yet cataloged for %q; run 'syncer sync %s' first", tableName, name, name)
		}
		return fmt.Errorf("look up table %q: %w", tableName, err)
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

	err = d.SyncInContext(ctx, db, func(ctx context.Context) error {
		return orch.SyncTable(ctx, d, table, full)
	})

	announce(err == nil, "sync-table %s.%s: %s", name, tableName, syncOutcome(err))
	if err != nil {
		return fmt.Errorf("sync-table %q.%q: %w", name, tableName, err)
	}
	return nil
}
