// Package crossenv resolves the linker, sysroot and library paths a cross
// build needs, from override variables first and the target's dependency
// bundle second.
package crossenv

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/darwinia-network/darwinia-builder/internal/config"
	"github.com/darwinia-network/darwinia-builder/internal/fetch"
	"github.com/darwinia-network/darwinia-builder/internal/probe"
	"github.com/darwinia-network/darwinia-builder/internal/target"
	"github.com/darwinia-network/darwinia-builder/internal/utils/compression"
	"github.com/darwinia-network/darwinia-builder/internal/utils/file"
	"github.com/darwinia-network/darwinia-builder/internal/utils/logger"
	"github.com/darwinia-network/darwinia-builder/internal/utils/shell"
)

// Source tells where a variable's value came from.
type Source int

const (
	Unresolved Source = iota
	ExplicitOverride
	DiscoveredOnPath
	DiscoveredFromBundle
)

func (s Source) String() string {
	switch s {
	case ExplicitOverride:
		return "environment"
	case DiscoveredOnPath:
		return "PATH"
	case DiscoveredFromBundle:
		return "bundle"
	}
	return "unresolved"
}

const (
	KeyLinker            = "TARGET_CC"
	KeySysroot           = "SYSROOT"
	KeyOpenSSLIncludeDir = "OPENSSL_INCLUDE_DIR"
	KeyOpenSSLLibDir     = "OPENSSL_LIB_DIR"
	KeyRocksDBLibDir     = "ROCKSDB_LIB_DIR"
)

// EnvVarSpec is one variable of the cross build environment.
type EnvVarSpec struct {
	Key      string
	Value    string
	Source   Source
	Required bool
}

func (e EnvVarSpec) Resolved() bool { return e.Source != Unresolved }

// DependencyBundle is the prebuilt sysroot and libraries of one triple.
type DependencyBundle struct {
	Triple    target.Triple
	LocalPath string
	RemoteURL string
	Present   bool
}

// Linker is the cross compiler used to link for the target.
type Linker struct {
	Name    string
	Path    string
	Version string
}

// Result is the outcome of one resolution pass. Gaps are human readable
// descriptions of everything that keeps the environment from being usable.
type Result struct {
	Triple  target.Triple
	Bundle  DependencyBundle
	Linker  Linker
	Vars    []EnvVarSpec
	Fetched bool
	// LinkerEntryAdded is set when the cargo config was appended to.
	LinkerEntryAdded bool
	FetchErr         error
	Gaps             []string
}

// Ready reports whether the bundle is present, every required variable
// is resolved and no gap was recorded.
func (r *Result) Ready() bool {
	if !r.Bundle.Present || len(r.Gaps) > 0 {
		return false
	}
	for _, v := range r.Vars {
		if v.Required && !v.Resolved() {
			return false
		}
	}
	return true
}

// Env renders the resolved variables as KEY=VALUE pairs for the build.
func (r *Result) Env() []string {
	var env []string
	for _, v := range r.Vars {
		if v.Resolved() {
			env = append(env, v.Key+"="+v.Value)
		}
	}
	return env
}

func (r *Result) gap(format string, args ...interface{}) {
	r.Gaps = append(r.Gaps, fmt.Sprintf(format, args...))
}

// BundleFetcher downloads a bundle archive into destDir.
type BundleFetcher interface {
	Fetch(ctx context.Context, url, destDir string) (*fetch.DownloadSession, error)
}

type Resolver struct {
	Fetcher BundleFetcher
}

func NewResolver(cfg *config.ProvisioningConfig) *Resolver {
	return &Resolver{Fetcher: fetch.NewFetcher(cfg.HTTPTimeout)}
}

type varSpec struct {
	key       string
	subPath   string
	linuxOnly bool
}

// varSpecs lists the variables of t with their bundle sub-paths. The
// OpenSSL and RocksDB library directories only apply to linux targets.
func varSpecs(t target.Triple) []varSpec {
	all := []varSpec{
		{key: KeyLinker, subPath: filepath.Join("bin", t.CrossCC())},
		{key: KeySysroot, subPath: "sysroot"},
		{key: KeyOpenSSLIncludeDir, subPath: "include"},
		{key: KeyOpenSSLLibDir, subPath: filepath.Join("lib", "openssl"), linuxOnly: true},
		{key: KeyRocksDBLibDir, subPath: filepath.Join("lib", "rocksdb"), linuxOnly: true},
	}
	var specs []varSpec
	for _, s := range all {
		if s.linuxOnly && !t.IsLinuxFamily() {
			continue
		}
		specs = append(specs, s)
	}
	return specs
}

// Resolve builds the cross environment of cfg.Target. It only returns an
// error for an unsupported target or a broken environment; everything else
// is reported through Result.Gaps.
func (r *Resolver) Resolve(ctx context.Context, cfg *config.ProvisioningConfig) (*Result, error) {
	log := logger.Logger()

	t, err := target.Parse(target.RoleRun, cfg.Target.String())
	if err != nil {
		return nil, err
	}
	res := &Result{
		Triple: t,
		Linker: Linker{Name: t.CrossCC()},
	}

	if p, err := shell.LookPath(res.Linker.Name); err == nil {
		res.Linker.Path = p
	}

	res.Bundle, res.Fetched, err = r.EnsureBundle(ctx, cfg, t)
	if err != nil {
		log.Warnf("%v", err)
		if errors.Is(err, fetch.ErrFetch) {
			res.FetchErr = err
		}
		res.gap("%v", err)
	}

	for _, s := range varSpecs(t) {
		v := EnvVarSpec{Key: s.key, Required: true}
		switch value, ok := cfg.Getenv(s.key); {
		case ok && value != "":
			v.Value, v.Source = value, ExplicitOverride
		case s.key == KeyLinker && res.Linker.Path != "":
			v.Value, v.Source = res.Linker.Path, DiscoveredOnPath
		case res.Bundle.Present && file.Exists(filepath.Join(res.Bundle.LocalPath, s.subPath)):
			v.Value, v.Source = filepath.Join(res.Bundle.LocalPath, s.subPath), DiscoveredFromBundle
		default:
			log.Warnf("%s is not set and %s was not found in the %s bundle", s.key, s.subPath, t.BundleName())
			res.gap("%s unresolved: set it or provide %s", s.key, filepath.Join(res.Bundle.LocalPath, s.subPath))
		}
		log.Debugf("%s=%s (%s)", v.Key, v.Value, v.Source)
		res.Vars = append(res.Vars, v)
	}

	linker := res.Vars[0]
	if !linker.Resolved() {
		return res, nil
	}
	res.Linker.Path = linker.Value

	st, err := probe.Probe(ctx, linker.Value, "--version")
	if err != nil {
		return res, err
	}
	if !st.Installed {
		log.Warnf("Linker %s could not be run", linker.Value)
		res.gap("linker %s not found: install the %s cross compiler or set %s", linker.Value, t.CrossCC(), KeyLinker)
		return res, nil
	}
	res.Linker.Version = st.DetectedVersion

	added, err := EnsureLinkerEntry(cfg.CargoConfigPath, t, linker.Value)
	if err != nil {
		log.Warnf("Could not write linker entry: %v", err)
		res.gap("linker entry for %s not written to %s: %v", t, cfg.CargoConfigPath, err)
		return res, nil
	}
	res.LinkerEntryAdded = added
	if added {
		log.Infof("Added [target.%s] linker to %s", t, cfg.CargoConfigPath)
	}
	return res, nil
}

// EnsureBundle makes sure the dependency bundle of t is extracted under
// the work directory, fetching it when its directory is missing. fetched
// reports whether a download happened; download errors wrap fetch.ErrFetch.
func (r *Resolver) EnsureBundle(ctx context.Context, cfg *config.ProvisioningConfig, t target.Triple) (b DependencyBundle, fetched bool, err error) {
	log := logger.Logger()
	b = DependencyBundle{
		Triple:    t,
		LocalPath: cfg.BundleDir(t),
		RemoteURL: cfg.BundleURL(t),
	}
	if file.IsDir(b.LocalPath) {
		b.Present = true
		return b, false, nil
	}

	log.Infof("Dependency bundle %s not found, fetching %s", b.LocalPath, b.RemoteURL)
	session, err := r.Fetcher.Fetch(ctx, b.RemoteURL, cfg.WorkDir)
	if err != nil {
		return b, false, fmt.Errorf("dependency bundle %s could not be downloaded: %w", b.RemoteURL, err)
	}

	if err := compression.Extract(ctx, session.LocalPath, cfg.WorkDir); err != nil {
		return b, true, fmt.Errorf("dependency bundle %s could not be extracted: %w", session.LocalPath, err)
	}
	if !file.IsDir(b.LocalPath) {
		return b, true, fmt.Errorf("archive %s did not contain %s/", session.LocalPath, filepath.Base(b.LocalPath))
	}
	b.Present = true
	return b, true, nil
}
