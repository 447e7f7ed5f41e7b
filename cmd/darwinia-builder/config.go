package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/darwinia-network/darwinia-builder/internal/config"
)

// createConfigCommand creates the config subcommand
func createConfigCommand() *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
		Long: `Manage global configuration for darwinia-builder.

Available commands:
  init    Initialize a new configuration file with default values`,
	}

	configCmd.AddCommand(createConfigInitCommand())

	return configCmd
}

// createConfigInitCommand creates the config init subcommand
func createConfigInitCommand() *cobra.Command {
	initCmd := &cobra.Command{
		Use:   "init [config-file]",
		Short: "Initialize a new configuration file",
		Long: `Initialize a new configuration file with default values.

If no path is specified, the config will be created in the current directory as darwinia-builder.yml

Examples:
  # Create config in current directory
  darwinia-builder config init

  # Create config in user's home directory
  darwinia-builder config init ~/.config/darwinia-builder/config.yml`,
		Args: cobra.MaximumNArgs(1),
		RunE: executeConfigInit,
	}

	return initCmd
}

// executeConfigInit handles the config init command logic
func executeConfigInit(cmd *cobra.Command, args []string) error {
	configPath := "darwinia-builder.yml"
	if len(args) > 0 {
		configPath = args[0]
	}

	defaultConfig := config.DefaultGlobalConfig()
	if err := defaultConfig.SaveGlobalConfigWithComments(configPath); err != nil {
		return fmt.Errorf("failed to save config file: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Configuration file created at: %s\n", configPath)
	fmt.Fprintf(out, "\nDefault configuration settings:\n")
	fmt.Fprintf(out, "  Toolchain Date: %s\n", defaultConfig.ToolchainDate)
	fmt.Fprintf(out, "  Auxiliary Target: %s\n", defaultConfig.AuxTarget)
	fmt.Fprintf(out, "  Work Directory: %s\n", defaultConfig.WorkDir)
	fmt.Fprintf(out, "  Bundle Base URL: %s\n", defaultConfig.BundleBaseURL)
	fmt.Fprintf(out, "  HTTP Timeout: %ds\n", defaultConfig.HTTPTimeoutSeconds)
	fmt.Fprintf(out, "  Log Level: %s\n", defaultConfig.Logging.Level)
	fmt.Fprintf(out, "\nEdit the configuration file to customize these settings.\n")

	return nil
}
