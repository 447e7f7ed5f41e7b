// Package build launches cargo once the environment is provisioned.
package build

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/darwinia-network/darwinia-builder/internal/config"
	"github.com/darwinia-network/darwinia-builder/internal/utils/logger"
	"github.com/darwinia-network/darwinia-builder/internal/utils/shell"
)

// Args is the cargo command line for cfg.
func Args(cfg *config.ProvisioningConfig) []string {
	args := []string{"+" + cfg.Toolchain, "build", "--target", cfg.Target.String()}
	if cfg.Release {
		args = append(args, "--release")
	}
	return args
}

// Profile is the cargo profile directory name of cfg.
func Profile(cfg *config.ProvisioningConfig) string {
	if cfg.Release {
		return "release"
	}
	return "debug"
}

// OutputDir is where cargo leaves the artifacts of a build in projectDir.
func OutputDir(cfg *config.ProvisioningConfig, projectDir string) string {
	return filepath.Join(projectDir, "target", cfg.Target.String(), Profile(cfg))
}

// Run builds the project in the working directory with env added to the
// environment, streaming cargo's output to the log.
func Run(ctx context.Context, cfg *config.ProvisioningConfig, env []string) error {
	log := logger.Logger()
	log.Infof("Building for %s (%s)", cfg.Target, Profile(cfg))
	for _, kv := range env {
		log.Debugf("build env: %s", kv)
	}

	if _, err := shell.ExecCmdWithStream(ctx, env, "cargo", Args(cfg)...); err != nil {
		return fmt.Errorf("cargo build for %s failed: %w", cfg.Target, err)
	}
	log.Infof("Build finished, artifacts in %s", OutputDir(cfg, "."))
	return nil
}
