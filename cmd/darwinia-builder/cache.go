package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/darwinia-network/darwinia-builder/internal/cache"
)

func createCacheCommand() *cobra.Command {
	cacheCmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage downloaded dependency bundles",
		Long: `Manage the dependency bundles kept in the work directory.

Available commands:
  clean    Remove downloaded archives or extracted bundles`,
	}

	cacheCmd.AddCommand(createCacheCleanCommand())

	return cacheCmd
}

func createCacheCleanCommand() *cobra.Command {
	var (
		opts cache.CleanOptions
		all  bool
	)

	cmd := &cobra.Command{
		Use:   "clean",
		Short: "Remove downloaded archives or extracted bundles",
		Long: `Remove downloaded bundle archives or extracted bundle directories from the
work directory to reclaim disk space or force a fresh download.

By default, the command removes archives. Use flags to target extracted
bundles or to restrict cleanup to a single target triple.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			archivesFlag := cmd.Flags().Changed("archives")
			bundlesFlag := cmd.Flags().Changed("bundles")

			if all {
				opts.CleanArchives = true
				opts.CleanBundles = true
			} else if !archivesFlag && !bundlesFlag {
				opts.CleanArchives = true
			}

			pc, err := provisioningConfig("")
			if err != nil {
				return err
			}
			result, err := cache.Clean(pc.WorkDir, opts)
			if err != nil {
				return err
			}

			output := []string{}
			if opts.DryRun {
				output = append(output, "Dry run: no files were deleted.")
			}

			if len(result.RemovedPaths) > 0 {
				header := "Removed paths:"
				if opts.DryRun {
					header = "Would remove:"
				}
				output = append(output, header)
				output = append(output, indentPaths(result.RemovedPaths)...)
			}

			if len(result.RemovedPaths) == 0 && len(result.SkippedPaths) == 0 {
				output = append(output, fmt.Sprintf("No cached bundles found in %s.", pc.WorkDir))
			}

			if len(result.SkippedPaths) > 0 {
				output = append(output, "Skipped (not found):")
				output = append(output, indentPaths(result.SkippedPaths)...)
			}

			writer := cmd.OutOrStdout()
			for _, line := range output {
				fmt.Fprintln(writer, line)
			}

			return nil
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "Remove both archives and extracted bundles")
	cmd.Flags().BoolVar(&opts.CleanArchives, "archives", false, "Remove downloaded archives")
	cmd.Flags().BoolVar(&opts.CleanBundles, "bundles", false, "Remove extracted bundle directories")
	cmd.Flags().StringVar(&opts.Target, "for", "", "Restrict cleanup to one target triple")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "Show what would be removed without deleting anything")

	return cmd
}

func indentPaths(values []string) []string {
	lines := make([]string, len(values))
	for i, v := range values {
		lines[i] = "  " + v
	}
	return lines
}
