package main

import (
	"github.com/spf13/cobra"

	"github.com/darwinia-network/darwinia-builder/internal/build"
)

var release bool = false

// createBuildCommand creates the build subcommand
func createBuildCommand() *cobra.Command {
	buildCmd := &cobra.Command{
		Use:   "build",
		Short: "Provision the environment, then build with cargo",
		Long: `Run the provisioning check and, if the environment is ready, build the
project in the current directory with the pinned toolchain:

  cargo +<toolchain> build --target <target> [--release]

The resolved cross environment is passed to cargo. Nothing is built when the
check fails.`,
		Args: cobra.NoArgs,
		RunE: executeBuild,
	}

	buildCmd.Flags().BoolVar(&release, "release", false,
		"Build with the release profile")

	return buildCmd
}

// executeBuild handles the build command logic
func executeBuild(cmd *cobra.Command, args []string) error {
	pc, rep, err := runCheck(cmd, release)
	if err != nil {
		return err
	}
	return build.Run(cmd.Context(), pc, rep.Env())
}
