package cli

import (
	"log/slog"
	"os"

	"github.com/fatih/color"

	"github.com/faucetdb/syncer/internal/catalog"
	"github.com/faucetdb/syncer/internal/catalogmodel"
	"github.com/faucetdb/syncer/internal/config"
	"github.com/faucetdb/syncer/internal/driver"
	"github.com/faucetdb/syncer/internal/driver/mssql"
	"github.com/faucetdb/syncer/internal/driver/mysql"
	"github.com/faucetdb/syncer/internal/driver/postgres"
	"github.com/faucetdb/syncer/internal/driver/snowflake"
	"github.com/faucetdb/syncer/internal/driver/sqlite"
)

// resolveDataDir returns the data directory from --data-dir flag,
// SYNCER_DATA_DIR env var, or ~/.syncer as fallback.
func resolveDataDir() string {
	if dataDir != "" {
		return dataDir
	}
	if envDir := os.Getenv("SYNCER_DATA_DIR"); envDir != "" {
		return envDir
	}
	home, _ := os.UserHomeDir()
	return home + "/.syncer"
}

// openConfigStore opens the SQLite-backed registration store, defaulting to
// ~/.syncer if no data dir was specified.
func openConfigStore() (*config.Store, error) {
	return config.NewStore(resolveDataDir())
}

// openCatalogStore opens the SQLite-backed catalog store.
func openCatalogStore() (*catalog.SQLiteStore, error) {
	return catalog.NewSQLiteStore(resolveDataDir())
}

// newDriverRegistry registers every supported dialect's Open factory.
func newDriverRegistry() *driver.Registry {
	reg := driver.NewRegistry()
	reg.Register("postgres", postgres.Open)
	reg.Register("mysql", mysql.Open)
	reg.Register("mssql", mssql.Open)
	reg.Register("snowflake", snowflake.Open)
	reg.Register("sqlite", sqlite.Open)
	return reg
}

// supportedDrivers is the allow-list used by db add, grounded on the same
// dialect list newDriverRegistry wires.
var supportedDrivers = map[string]bool{
	"postgres": true, "mysql": true, "mssql": true, "snowflake": true, "sqlite": true,
}

// newLogger builds the *slog.Logger every command threads explicitly into
// the sync components; no package-level logger is kept anywhere.
func newLogger(verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// catalogDatabaseFromRegistration builds the catalogmodel.Database value the
// sync components key their rows against: the catalog has no databases
// table of its own, so the registration's own ID and name stand in directly.
func catalogDatabaseFromRegistration(reg config.Registration) catalogmodel.Database {
	return catalogmodel.Database{ID: reg.ID, Name: reg.Name}
}

// announce prints a color-tagged human summary line to stderr alongside the
// structured slog event a caller already emitted for the same occurrence —
// color decorates, slog records.
func announce(ok bool, format string, args ...any) {
	c := color.New(color.FgGreen)
	if !ok {
		c = color.New(color.FgRed)
	}
	c.Fprintf(os.Stderr, format+"\n", args...)
}
