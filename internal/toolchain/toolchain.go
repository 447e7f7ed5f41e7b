// Package toolchain makes sure the pinned nightly toolchain and the
// compilation targets of a build are installed through rustup.
package toolchain

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/darwinia-network/darwinia-builder/internal/config"
	"github.com/darwinia-network/darwinia-builder/internal/probe"
	"github.com/darwinia-network/darwinia-builder/internal/target"
	"github.com/darwinia-network/darwinia-builder/internal/utils/logger"
	"github.com/darwinia-network/darwinia-builder/internal/utils/shell"
)

const (
	Manager  = "rustup"
	Frontend = "cargo"
	Compiler = "rustc"

	ManagerInstallURL = "https://rustup.rs"
)

var (
	// ErrManagerNotFound means rustup is missing. It is never installed
	// automatically.
	ErrManagerNotFound = errors.New("toolchain manager not found")
	// ErrFrontendNotFound means cargo is missing.
	ErrFrontendNotFound = errors.New("build frontend not found")
	// ErrInstallFailed means an install subcommand exited non-zero.
	ErrInstallFailed = errors.New("installation failed")
)

type TargetStatus struct {
	Triple    target.Triple
	Installed bool
	// Added is set when this pass installed the target.
	Added bool
}

// Status is the outcome of one Ensure pass.
type Status struct {
	Manager  probe.ToolStatus
	Frontend probe.ToolStatus
	Compiler probe.ToolStatus

	Toolchain          string
	ToolchainInstalled bool
	// ToolchainAdded is set when this pass installed the toolchain.
	ToolchainAdded bool

	Targets []TargetStatus
}

// Ready reports whether the toolchain and every target are installed.
func (s *Status) Ready() bool {
	if !s.Manager.Installed || !s.Frontend.Installed || !s.ToolchainInstalled {
		return false
	}
	for _, t := range s.Targets {
		if !t.Installed {
			return false
		}
	}
	return true
}

// Ensure verifies, and installs where missing, the pinned toolchain and the
// run and auxiliary targets. When everything is present only read-only
// commands are run. Every returned error is fatal for the pass.
func Ensure(ctx context.Context, cfg *config.ProvisioningConfig) (*Status, error) {
	log := logger.Logger()
	status := &Status{Toolchain: cfg.Toolchain}

	var err error
	if status.Manager, err = probe.Probe(ctx, Manager, "--version"); err != nil {
		return status, err
	}
	if !status.Manager.Installed {
		return status, fmt.Errorf("%w: install %s from %s and re-run", ErrManagerNotFound, Manager, ManagerInstallURL)
	}
	log.Debugf("%s: %s", Manager, status.Manager.DetectedVersion)

	if status.Frontend, err = probe.Probe(ctx, Frontend, "--version"); err != nil {
		return status, err
	}
	if !status.Frontend.Installed {
		return status, fmt.Errorf("%w: %s is not on PATH; reinstall it with %s", ErrFrontendNotFound, Frontend, Manager)
	}
	if status.Compiler, err = probe.Probe(ctx, Compiler, "--version"); err != nil {
		return status, err
	}

	if err := ensureToolchain(ctx, status); err != nil {
		return status, err
	}

	out, err := shell.ExecCmd(ctx, Manager, "target", "list", "--toolchain", cfg.Toolchain)
	if err != nil {
		return status, fmt.Errorf("listing targets of %s: %w", cfg.Toolchain, err)
	}
	installed := installedTargets(out)

	for _, t := range cfg.TargetsToInstall() {
		ts := TargetStatus{Triple: t, Installed: installed[t.String()]}
		if !ts.Installed {
			log.Infof("Installing target %s for %s", t, cfg.Toolchain)
			if _, err := shell.ExecCmdWithStream(ctx, nil, Manager, "target", "add", t.String(), "--toolchain", cfg.Toolchain); err != nil {
				status.Targets = append(status.Targets, ts)
				return status, fmt.Errorf("%w: %s target add %s: %w", ErrInstallFailed, Manager, t, err)
			}
			ts.Installed, ts.Added = true, true
		}
		log.Infof("Target %s installed", t)
		status.Targets = append(status.Targets, ts)
	}
	return status, nil
}

func ensureToolchain(ctx context.Context, status *Status) error {
	log := logger.Logger()

	out, err := shell.ExecCmd(ctx, Manager, "toolchain", "list")
	if err != nil {
		return fmt.Errorf("listing toolchains: %w", err)
	}
	for _, name := range firstTokens(out) {
		if name == status.Toolchain {
			status.ToolchainInstalled = true
			log.Infof("Toolchain %s installed", status.Toolchain)
			return nil
		}
	}

	log.Infof("Installing toolchain %s", status.Toolchain)
	if _, err := shell.ExecCmdWithStream(ctx, nil, Manager, "toolchain", "install", status.Toolchain); err != nil {
		return fmt.Errorf("%w: %s toolchain install %s: %w", ErrInstallFailed, Manager, status.Toolchain, err)
	}
	status.ToolchainInstalled, status.ToolchainAdded = true, true
	return nil
}

// installedTargets collects the triples of listing lines marked
// "(installed)" or "(default)". The triple must be the line's first token;
// substrings of longer names do not count.
func installedTargets(listing string) map[string]bool {
	installed := map[string]bool{}
	scanner := bufio.NewScanner(strings.NewReader(listing))
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.Contains(line, "(installed)") && !strings.Contains(line, "(default)") {
			continue
		}
		if fields := strings.Fields(line); len(fields) > 0 {
			installed[fields[0]] = true
		}
	}
	return installed
}

func firstTokens(listing string) []string {
	var tokens []string
	for _, line := range strings.Split(listing, "\n") {
		if fields := strings.Fields(line); len(fields) > 0 {
			tokens = append(tokens, fields[0])
		}
	}
	return tokens
}
