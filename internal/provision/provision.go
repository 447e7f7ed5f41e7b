// Package provision runs the readiness gate in front of a build.
package provision

import (
	"context"
	"errors"
	"fmt"

	"github.com/darwinia-network/darwinia-builder/internal/config"
	"github.com/darwinia-network/darwinia-builder/internal/crossenv"
	"github.com/darwinia-network/darwinia-builder/internal/target"
	"github.com/darwinia-network/darwinia-builder/internal/toolchain"
	"github.com/darwinia-network/darwinia-builder/internal/utils/logger"
)

type State int

const (
	Unchecked State = iota
	Checking
	Ready
	NotReady
)

func (s State) String() string {
	switch s {
	case Unchecked:
		return "unchecked"
	case Checking:
		return "checking"
	case Ready:
		return "ready"
	case NotReady:
		return "not ready"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// ErrAlreadyChecked is returned by a second Run. A verdict holds for the
// rest of the process.
var ErrAlreadyChecked = errors.New("provisioning check already ran")

// Report is what one check found.
type Report struct {
	State     State
	Cross     bool
	Toolchain *toolchain.Status
	// CrossEnv is nil for native builds.
	CrossEnv *crossenv.Result
	Gaps     []string
	// Err is the fatal error that ended the check, if any.
	Err error
}

// Env is the extra environment of the build subprocess.
func (r *Report) Env() []string {
	if r.CrossEnv == nil {
		return nil
	}
	return r.CrossEnv.Env()
}

// Resolver is satisfied by *crossenv.Resolver.
type Resolver interface {
	Resolve(ctx context.Context, cfg *config.ProvisioningConfig) (*crossenv.Result, error)
}

type Checker struct {
	cfg      *config.ProvisioningConfig
	resolver Resolver
	state    State
}

func NewChecker(cfg *config.ProvisioningConfig, resolver Resolver) *Checker {
	if resolver == nil {
		resolver = crossenv.NewResolver(cfg)
	}
	return &Checker{cfg: cfg, resolver: resolver}
}

func (c *Checker) State() State { return c.state }

// Run performs the check once. A non-nil error is fatal: the environment is
// unusable until the user intervenes. Gaps that only affect a cross build
// end in NotReady without an error.
func (c *Checker) Run(ctx context.Context) (*Report, error) {
	if c.state != Unchecked {
		return nil, ErrAlreadyChecked
	}
	c.state = Checking
	log := logger.Logger()
	rep := &Report{Cross: c.cfg.Cross}

	fail := func(err error) (*Report, error) {
		c.state = NotReady
		rep.State = NotReady
		rep.Err = err
		return rep, err
	}

	if err := validateTriples(c.cfg); err != nil {
		return fail(err)
	}

	status, err := toolchain.Ensure(ctx, c.cfg)
	rep.Toolchain = status
	if err != nil {
		return fail(err)
	}
	if !status.Ready() {
		rep.Gaps = append(rep.Gaps, fmt.Sprintf("toolchain %s is incomplete", c.cfg.Toolchain))
	}

	if c.cfg.Cross {
		log.Infof("Cross compiling from %s to %s", c.cfg.Host, c.cfg.Target)
		res, err := c.resolver.Resolve(ctx, c.cfg)
		rep.CrossEnv = res
		if err != nil {
			return fail(err)
		}
		rep.Gaps = append(rep.Gaps, res.Gaps...)
		if !res.Ready() && len(res.Gaps) == 0 {
			rep.Gaps = append(rep.Gaps, fmt.Sprintf("cross environment for %s is incomplete", c.cfg.Target))
		}
	}

	if len(rep.Gaps) > 0 {
		c.state = NotReady
	} else {
		c.state = Ready
	}
	rep.State = c.state
	log.Debugf("Provisioning check finished: %s", c.state)
	return rep, nil
}

func validateTriples(cfg *config.ProvisioningConfig) error {
	checks := []struct {
		role target.Role
		t    target.Triple
	}{
		{target.RoleHost, cfg.Host},
		{target.RoleRun, cfg.Target},
		{target.RoleAux, cfg.Aux},
	}
	for _, c := range checks {
		if _, err := target.Parse(c.role, c.t.String()); err != nil {
			return err
		}
	}
	return nil
}
