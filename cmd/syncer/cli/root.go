package cli

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	dataDir string
)

// Execute creates the root command tree and runs it.
func Execute(version, commit, date string) error {
	rootCmd := newRootCmd(version, commit, date)
	return rootCmd.Execute()
}

func newRootCmd(version, commit, date string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "syncer",
		Short: "Introspect databases and maintain a reconciled metadata catalog",
		Long: `Syncer connects to a registered database, introspects its tables and
columns, and reconciles the result into a metadata catalog: inferring
special types, classifying free-text columns, tracking foreign keys, and
honoring administrator overrides already on file.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./syncer.yaml)")
	cmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "data directory for the config and catalog stores (default: ~/.syncer)")

	cobra.OnInitialize(initConfig)

	cmd.AddCommand(newDBCmd())
	cmd.AddCommand(newSyncCmd())
	cmd.AddCommand(newSyncTableCmd())
	cmd.AddCommand(newWatchCmd())
	cmd.AddCommand(newListDriversCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newVersionCmd(version, commit, date))

	return cmd
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("syncer")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME/.syncer")
	}

	viper.SetEnvPrefix("SYNCER")
	viper.AutomaticEnv()
	viper.ReadInConfig() // Ignore error - config file is optional
}
