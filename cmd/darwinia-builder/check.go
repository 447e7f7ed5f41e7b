package main

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/darwinia-network/darwinia-builder/internal/config"
	"github.com/darwinia-network/darwinia-builder/internal/provision"
	"github.com/darwinia-network/darwinia-builder/internal/report"
)

var errNotReady = errors.New("build environment is not ready")

// createCheckCommand creates the check subcommand
func createCheckCommand() *cobra.Command {
	checkCmd := &cobra.Command{
		Use:   "check",
		Short: "Verify and provision the build environment",
		Long: `Verify that rustup, cargo, the pinned toolchain and the required targets
are installed, installing the toolchain and targets when missing. When
--target differs from the host the cross environment is resolved as well.

Examples:
  # Check a native build
  darwinia-builder check

  # Check a cross build to linux from macOS
  darwinia-builder check --target x86_64-unknown-linux-gnu`,
		Args: cobra.NoArgs,
		RunE: executeCheck,
	}

	return checkCmd
}

// executeCheck handles the check command logic
func executeCheck(cmd *cobra.Command, args []string) error {
	_, _, err := runCheck(cmd, false)
	return err
}

// runCheck runs the readiness gate and prints its report. An error is
// returned for anything but a ready environment.
func runCheck(cmd *cobra.Command, release bool) (*config.ProvisioningConfig, *provision.Report, error) {
	pc, err := provisioningConfig("")
	if err != nil {
		return nil, nil, err
	}
	pc.Release = release

	rep, err := provision.NewChecker(pc, nil).Run(cmd.Context())
	if rep != nil {
		printer := report.NewPrinter()
		printer.W = cmd.OutOrStdout()
		printer.Render(rep)
	}
	if err != nil {
		return pc, rep, err
	}
	if rep.State != provision.Ready {
		return pc, rep, errNotReady
	}
	return pc, rep, nil
}
