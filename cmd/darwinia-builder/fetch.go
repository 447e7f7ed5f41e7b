package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/darwinia-network/darwinia-builder/internal/crossenv"
	"github.com/darwinia-network/darwinia-builder/internal/report"
)

// createFetchCommand creates the fetch subcommand
func createFetchCommand() *cobra.Command {
	fetchCmd := &cobra.Command{
		Use:   "fetch [TARGET]",
		Short: "Download and extract the dependency bundle of a target",
		Long: `Download the prebuilt dependency bundle of TARGET (or --target) into the
work directory and extract it. An interrupted download is resumed on the
next run. Nothing is downloaded when the bundle directory already exists.

Examples:
  darwinia-builder fetch x86_64-unknown-linux-gnu
  darwinia-builder fetch --target armv7-unknown-linux-gnueabihf`,
		Args: cobra.MaximumNArgs(1),
		RunE: executeFetch,
	}

	return fetchCmd
}

// executeFetch handles the fetch command logic
func executeFetch(cmd *cobra.Command, args []string) error {
	t := ""
	if len(args) > 0 {
		t = args[0]
	}
	pc, err := provisioningConfig(t)
	if err != nil {
		return err
	}

	bundle, fetched, err := crossenv.NewResolver(pc).EnsureBundle(cmd.Context(), pc, pc.Target)
	printer := report.NewPrinter()
	printer.W = cmd.OutOrStdout()
	if err != nil {
		printer.Line(false, "%v", err)
		return fmt.Errorf("fetching bundle for %s: %w", pc.Target, err)
	}

	state := "already present"
	if fetched {
		state = "fetched from " + bundle.RemoteURL
	}
	printer.Line(true, "dependency bundle %s (%s)", bundle.LocalPath, state)
	return nil
}
