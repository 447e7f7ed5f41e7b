package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/darwinia-network/darwinia-builder/internal/config"
	"github.com/darwinia-network/darwinia-builder/internal/utils/logger"
	"github.com/darwinia-network/darwinia-builder/internal/utils/security"
)

// Command-line flags that can override config file settings
var (
	configFile   string = "" // Path to config file
	logLevel     string = "" // Empty means use config file value
	hostTriple   string = "" // Empty means the running platform
	targetTriple string = "" // Empty means the host
)

var (
	globalConfig *config.GlobalConfig
	logCleanup   = func() {}
)

func main() {
	// Override variables may live in a .env file next to the project
	if err := loadDotEnv(".env"); err != nil {
		logger.Logger().Warnf("Ignoring .env: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd := createRootCommand()
	security.AttachRecursive(rootCmd, security.DefaultLimits())

	err := rootCmd.ExecuteContext(ctx)
	logCleanup()
	if err != nil {
		os.Exit(1)
	}
}

// createRootCommand creates and configures the root cobra command with all subcommands
func createRootCommand() *cobra.Command {
	// Every command's flags are validated, so each level's hook must run
	cobra.EnableTraverseRunHooks = true

	rootCmd := &cobra.Command{
		Use:   "darwinia-builder",
		Short: "Provision the toolchain and cross environment for Darwinia builds",
		Long: `darwinia-builder checks that the pinned nightly toolchain and the
compilation targets of a build are installed, installing what is missing.
When cross compiling it resolves the linker, sysroot and library paths from
override variables or a downloaded dependency bundle, and records the linker
in the cargo config.

Running darwinia-builder without a command performs the check.

Use 'darwinia-builder <command> --help' for more information about a command.`,
		SilenceUsage:      true,
		PersistentPreRunE: initConfig,
		RunE:              executeCheck,
	}

	// Add global flags
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "",
		"Path to configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "",
		"Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&hostTriple, "host", "",
		"Host triple (defaults to the running platform)")
	rootCmd.PersistentFlags().StringVar(&targetTriple, "target", "",
		"Target triple to build for (defaults to the host)")

	// Add all subcommands
	rootCmd.AddCommand(createCheckCommand())
	rootCmd.AddCommand(createBuildCommand())
	rootCmd.AddCommand(createFetchCommand())
	rootCmd.AddCommand(createConfigCommand())
	rootCmd.AddCommand(createCacheCommand())
	rootCmd.AddCommand(createVersionCommand())
	rootCmd.AddCommand(createInstallCompletionCommand())

	return rootCmd
}

// initConfig loads the configuration file and sets up logging. It runs
// before every command.
func initConfig(cmd *cobra.Command, args []string) error {
	configFilePath := configFile
	if configFilePath == "" {
		configFilePath = config.FindConfigFile()
	}

	gc, err := config.LoadGlobalConfig(configFilePath)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	if logLevel != "" {
		gc.Logging.Level = logLevel
	}
	globalConfig = gc

	_, cleanup, err := logger.InitWithConfig(logger.Config{
		Level:    gc.Logging.Level,
		FilePath: gc.Logging.File,
	})
	if err != nil {
		return err
	}
	logCleanup = cleanup

	log := logger.Logger()
	if configFilePath != "" {
		log.Infof("Using configuration from: %s", configFilePath)
	}
	log.Debugf("Config: toolchain_date=%s, work_dir=%s, bundle_base_url=%s",
		gc.ToolchainDate, gc.WorkDir, gc.BundleBaseURL)
	return nil
}

// provisioningConfig builds the per-run configuration from the loaded
// config file and the host and target flags.
func provisioningConfig(targetOverride string) (*config.ProvisioningConfig, error) {
	gc := globalConfig
	if gc == nil {
		gc = config.DefaultGlobalConfig()
	}
	t := targetTriple
	if targetOverride != "" {
		t = targetOverride
	}
	return config.NewProvisioningConfig(gc, hostTriple, t)
}

// loadDotEnv exports the variables of path that are not already set. A
// missing file is not an error.
func loadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("reading %s: %w", path, err)
	}
	return nil
}
