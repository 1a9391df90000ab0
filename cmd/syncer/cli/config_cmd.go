package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/faucetdb/syncer/internal/config"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage Syncer configuration",
		Long:  "Initialize a default configuration file, load registrations from it, or show the current effective configuration.",
	}

	cmd.AddCommand(newConfigInitCmd())
	cmd.AddCommand(newConfigShowCmd())
	cmd.AddCommand(newConfigLoadCmd())

	return cmd
}

// ---------- config init ----------

func newConfigInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a default syncer.yaml configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigInit(force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing config file")

	return cmd
}

func runConfigInit(force bool) error {
	const path = "syncer.yaml"

	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}
	}

	if err := config.WriteDefaultConfig(path); err != nil {
		return fmt.Errorf("write default config: %w", err)
	}

	fmt.Printf("Created %s\n", path)
	fmt.Println("Edit the file to list your databases, then run 'syncer config load' to register them.")
	return nil
}

// ---------- config load ----------

func newConfigLoadCmd() *cobra.Command {
	var path string

	cmd := &cobra.Command{
		Use:   "load",
		Short: "Register every database listed in a syncer.yaml file",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigLoad(path)
		},
	}

	cmd.Flags().StringVar(&path, "file", "syncer.yaml", "Path to the configuration file")

	return cmd
}

func runConfigLoad(path string) error {
	yamlCfg, err := config.LoadYAMLConfig(path)
	if err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}

	store, err := openConfigStore()
	if err != nil {
		return fmt.Errorf("open config store: %w", err)
	}
	defer store.Close()

	ctx := context.Background()
	for _, dbYAML := range yamlCfg.Databases {
		reg, err := dbYAML.ToRegistration()
		if err != nil {
			return fmt.Errorf("database %q: %w", dbYAML.Name, err)
		}

		if existing, err := store.GetRegistrationByName(ctx, reg.Name); err == nil {
			reg.ID = existing.ID
			if err := store.UpdateRegistration(ctx, &reg); err != nil {
				return fmt.Errorf("update registration %q: %w", reg.Name, err)
			}
			fmt.Printf("Updated %q\n", reg.Name)
			continue
		}

		if err := store.CreateRegistration(ctx, &reg); err != nil {
			return fmt.Errorf("create registration %q: %w", reg.Name, err)
		}
		fmt.Printf("Registered %q\n", reg.Name)
	}

	return nil
}

// ---------- config show ----------

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the current effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigShow()
		},
	}
}

func runConfigShow() error {
	initConfig()

	configFile := viper.ConfigFileUsed()
	if configFile != "" {
		fmt.Printf("Config file: %s\n", configFile)
	} else {
		fmt.Println("Config file: (none found, using defaults)")
	}
	fmt.Println()

	settings := viper.AllSettings()
	if len(settings) == 0 {
		fmt.Println("No configuration settings loaded.")
		fmt.Println("Run 'syncer config init' to create a default configuration file.")
		return nil
	}

	for key, value := range settings {
		fmt.Printf("  %s: %v\n", key, value)
	}
	return nil
}
