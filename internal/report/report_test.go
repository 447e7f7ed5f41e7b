package report

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/darwinia-network/darwinia-builder/internal/crossenv"
	"github.com/darwinia-network/darwinia-builder/internal/probe"
	"github.com/darwinia-network/darwinia-builder/internal/provision"
	"github.com/darwinia-network/darwinia-builder/internal/target"
	"github.com/darwinia-network/darwinia-builder/internal/toolchain"
)

func render(rep *provision.Report) string {
	var buf bytes.Buffer
	(&Printer{W: &buf}).Render(rep)
	return buf.String()
}

func TestRenderReady(t *testing.T) {
	out := render(&provision.Report{
		State: provision.Ready,
		Toolchain: &toolchain.Status{
			Manager:            probe.ToolStatus{Name: "rustup", DetectedVersion: "rustup 1.18.3", Installed: true},
			Frontend:           probe.ToolStatus{Name: "cargo", DetectedVersion: "cargo 1.38.0", Installed: true},
			Compiler:           probe.ToolStatus{Name: "rustc"},
			Toolchain:          "nightly-2019-07-14-x86_64-unknown-linux-gnu",
			ToolchainInstalled: true,
			Targets: []toolchain.TargetStatus{
				{Triple: target.X86_64Linux, Installed: true},
				{Triple: target.Wasm32, Installed: true, Added: true},
			},
		},
	})

	want := []string{
		"[✔] rustup rustup 1.18.3",
		"[✔] cargo cargo 1.38.0",
		"[✘] rustc not installed",
		"[✔] toolchain nightly-2019-07-14-x86_64-unknown-linux-gnu",
		"[✔] target x86_64-unknown-linux-gnu",
		"[✔] target wasm32-unknown-unknown (installed now)",
		"[✔] environment ready",
	}
	assert.Equal(t, strings.Join(want, "\n")+"\n", out)
}

func TestRenderCrossGaps(t *testing.T) {
	out := render(&provision.Report{
		State: provision.NotReady,
		Cross: true,
		CrossEnv: &crossenv.Result{
			Bundle: crossenv.DependencyBundle{LocalPath: "/w/x86_64-linux"},
			Vars: []crossenv.EnvVarSpec{
				{Key: "TARGET_CC", Value: "/opt/gcc", Source: crossenv.ExplicitOverride, Required: true},
				{Key: "SYSROOT", Required: true},
			},
		},
		Gaps: []string{"SYSROOT unresolved: set it or provide /w/x86_64-linux/sysroot"},
	})

	assert.Contains(t, out, "[✘] dependency bundle /w/x86_64-linux\n")
	assert.Contains(t, out, "[✔] TARGET_CC=/opt/gcc (environment)\n")
	assert.Contains(t, out, "[✘] SYSROOT unresolved\n")
	assert.Contains(t, out, "[✘] SYSROOT unresolved: set it")
	assert.True(t, strings.HasSuffix(out, "[✘] environment not ready\n"))
}

func TestRenderFatal(t *testing.T) {
	out := render(&provision.Report{
		State: provision.NotReady,
		Toolchain: &toolchain.Status{
			Manager: probe.ToolStatus{Name: "rustup"},
		},
		Err: errors.New("toolchain manager not found: install rustup from https://rustup.rs and re-run"),
	})
	assert.Equal(t, "[✘] rustup not installed\n"+
		"[✘] toolchain manager not found: install rustup from https://rustup.rs and re-run\n"+
		"[✘] environment not ready\n", out)
}

func TestColoredMarks(t *testing.T) {
	p := &Printer{Color: true}
	assert.Contains(t, p.mark(true), okMark)
	assert.Contains(t, p.mark(false), failMark)
}
