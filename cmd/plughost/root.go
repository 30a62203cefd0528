package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/platinummonkey/plughost/pkg/config"
)

func newRootCommand(version, commit, date string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "plughost",
		Short: "Plughost - pluggable extension host",
		Long: `Plughost discovers plugin packages in a directory, mounts each one under
/plugins/{id} and keeps a catalog of installed plugins in sync.

Plugins are installed, updated and deleted through the /plugin_store API
or, in development mode, by editing the plugin directory directly.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
	}

	rootCmd.PersistentFlags().String("config", "", "YAML configuration file (default $"+config.ConfigFileEnv+")")

	rootCmd.AddCommand(
		newServeCommand(),
		newScanCommand(),
		newPackCommand(),
		newVersionCommand(version, commit, date),
	)

	return rootCmd
}

// loadConfig reads the --config file, falling back to PLUGHOST_CONFIG_FILE
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		return config.LoadConfig()
	}
	return config.Load(path)
}

func newVersionCommand(version, commit, date string) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "plughost %s (commit: %s, built: %s)\n", version, commit, date)
		},
	}
}
