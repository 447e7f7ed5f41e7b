package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/darwinia-network/darwinia-builder/internal/target"
	"github.com/darwinia-network/darwinia-builder/internal/utils/slice"
)

// ProvisioningConfig is everything one provisioning pass needs to know. It
// is built once from the command line and the global config, then passed to
// every component.
type ProvisioningConfig struct {
	Host   target.Triple
	Target target.Triple
	Aux    target.Triple
	// Cross is true when Target differs from Host.
	Cross bool

	ToolchainDate string
	// Toolchain is the pinned toolchain id, nightly-<date>-<host>.
	Toolchain string

	WorkDir         string
	CargoConfigPath string
	BundleBaseURL   string
	HTTPTimeout     time.Duration

	Release bool

	// LookupEnv reads override variables. Nil means os.LookupEnv.
	LookupEnv func(key string) (string, bool)
}

// NewProvisioningConfig validates the host and target selections against
// the supported sets. An empty hostFlag means the running platform, an
// empty targetFlag means the host.
func NewProvisioningConfig(gc *GlobalConfig, hostFlag, targetFlag string) (*ProvisioningConfig, error) {
	if gc == nil {
		gc = DefaultGlobalConfig()
	}

	var (
		host target.Triple
		err  error
	)
	if hostFlag == "" {
		host, err = target.Host()
	} else {
		host, err = target.Parse(target.RoleHost, hostFlag)
	}
	if err != nil {
		return nil, err
	}

	run := host
	if targetFlag != "" {
		if run, err = target.Parse(target.RoleRun, targetFlag); err != nil {
			return nil, err
		}
	}

	aux, err := target.Parse(target.RoleAux, gc.AuxTarget)
	if err != nil {
		return nil, err
	}

	workDir, err := filepath.Abs(gc.WorkDir)
	if err != nil {
		return nil, fmt.Errorf("resolving work_dir %q: %w", gc.WorkDir, err)
	}

	cargoConfig := gc.CargoConfig
	if cargoConfig == "" {
		if cargoConfig, err = DefaultCargoConfigPath(); err != nil {
			return nil, err
		}
	}

	return &ProvisioningConfig{
		Host:            host,
		Target:          run,
		Aux:             aux,
		Cross:           run != host,
		ToolchainDate:   gc.ToolchainDate,
		Toolchain:       fmt.Sprintf("nightly-%s-%s", gc.ToolchainDate, host),
		WorkDir:         workDir,
		CargoConfigPath: cargoConfig,
		BundleBaseURL:   gc.BundleBaseURL,
		HTTPTimeout:     time.Duration(gc.HTTPTimeoutSeconds) * time.Second,
	}, nil
}

// DefaultCargoConfigPath is $CARGO_HOME/config, or ~/.cargo/config.
func DefaultCargoConfigPath() (string, error) {
	if home := os.Getenv("CARGO_HOME"); home != "" {
		return filepath.Join(home, "config"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("locating home directory: %w", err)
	}
	return filepath.Join(home, ".cargo", "config"), nil
}

// TargetsToInstall is the run target followed by the auxiliary target.
func (pc *ProvisioningConfig) TargetsToInstall() []target.Triple {
	return slice.Dedup([]target.Triple{pc.Target, pc.Aux})
}

// BundleURL is the remote archive of t's dependency bundle.
func (pc *ProvisioningConfig) BundleURL(t target.Triple) string {
	return strings.TrimRight(pc.BundleBaseURL, "/") + "/" + t.BundleName() + ".tar.gz"
}

// BundleDir is where t's bundle lives once extracted.
func (pc *ProvisioningConfig) BundleDir(t target.Triple) string {
	return filepath.Join(pc.WorkDir, t.BundleName())
}

// Getenv consults LookupEnv, falling back to the process environment.
func (pc *ProvisioningConfig) Getenv(key string) (string, bool) {
	if pc.LookupEnv != nil {
		return pc.LookupEnv(key)
	}
	return os.LookupEnv(key)
}
