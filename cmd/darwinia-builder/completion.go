package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/darwinia-network/darwinia-builder/internal/utils/security"
)

// createInstallCompletionCommand creates the install-completion subcommand
func createInstallCompletionCommand() *cobra.Command {
	installCompletionCmd := &cobra.Command{
		Use:   "install-completion",
		Short: "Install shell completion script",
		Long: `Install shell completion script for Bash, Zsh, Fish, or PowerShell.
Automatically detects your shell and installs the appropriate completion script.`,
		Args: cobra.NoArgs,
		RunE: executeInstallCompletion,
	}

	installCompletionCmd.Flags().String("shell", "", "Specify shell type (bash, zsh, fish, powershell)")
	installCompletionCmd.Flags().Bool("force", false, "Force overwrite existing completion files")

	return installCompletionCmd
}

// detectShell maps $SHELL (or a PowerShell environment) to a shell type.
func detectShell() (string, error) {
	shellEnv := os.Getenv("SHELL")
	switch {
	case shellEnv == "" && os.Getenv("PSModulePath") != "":
		return "powershell", nil
	case shellEnv == "":
		return "", fmt.Errorf("could not detect shell. Please specify with --shell flag")
	case strings.Contains(shellEnv, "bash"):
		return "bash", nil
	case strings.Contains(shellEnv, "zsh"):
		return "zsh", nil
	case strings.Contains(shellEnv, "fish"):
		return "fish", nil
	}
	return "", fmt.Errorf("unsupported shell: %s. Please specify shell with --shell flag", shellEnv)
}

// completionPath is where the script for shellType is installed under home.
func completionPath(shellType, home string) (string, error) {
	switch shellType {
	case "bash":
		return filepath.Join(home, ".bash_completion.d", "darwinia-builder.bash"), nil
	case "zsh":
		return filepath.Join(home, ".zsh", "completion", "_darwinia-builder"), nil
	case "fish":
		return filepath.Join(home, ".config", "fish", "completions", "darwinia-builder.fish"), nil
	case "powershell":
		return filepath.Join(home, "Documents", "WindowsPowerShell", "darwinia-builder-completion.ps1"), nil
	}
	return "", fmt.Errorf("unsupported shell type: %s", shellType)
}

// executeInstallCompletion handles installation of shell completion scripts
func executeInstallCompletion(cmd *cobra.Command, args []string) error {
	shellType, err := cmd.Flags().GetString("shell")
	if err != nil {
		return err
	}
	userForce, err := cmd.Flags().GetBool("force")
	if err != nil {
		return err
	}
	if shellType == "" {
		if shellType, err = detectShell(); err != nil {
			return err
		}
	}

	var buf bytes.Buffer
	root := cmd.Root()
	switch shellType {
	case "bash":
		err = root.GenBashCompletion(&buf)
	case "zsh":
		err = root.GenZshCompletion(&buf)
	case "fish":
		err = root.GenFishCompletion(&buf, true)
	case "powershell":
		err = root.GenPowerShellCompletion(&buf)
	default:
		return fmt.Errorf("unsupported shell type: %s", shellType)
	}
	if err != nil {
		return fmt.Errorf("error generating %s completion: %w", shellType, err)
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("could not determine home directory: %w", err)
	}
	targetPath, err := completionPath(shellType, homeDir)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(targetPath), 0o700); err != nil {
		return fmt.Errorf("could not create directory %s: %w", filepath.Dir(targetPath), err)
	}

	if _, err := os.Stat(targetPath); err == nil && !userForce {
		return fmt.Errorf("completion file already exists at %s. Use --force to overwrite", targetPath)
	}
	if err := security.SafeWriteFile(targetPath, buf.Bytes(), 0o600, security.RejectSymlinks); err != nil {
		return fmt.Errorf("could not write completion file: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Shell completion installed for %s at %s\n", shellType, targetPath)
	return nil
}
