// Package report prints provisioning results as checkmark status lines.
package report

import (
	"fmt"
	"io"
	"os"

	"github.com/gookit/color"

	"github.com/darwinia-network/darwinia-builder/internal/probe"
	"github.com/darwinia-network/darwinia-builder/internal/provision"
)

const (
	okMark   = "[✔]"
	failMark = "[✘]"
)

// Printer writes status lines to W. Color is applied only when Color is set.
type Printer struct {
	W     io.Writer
	Color bool
}

// NewPrinter prints to stdout, colored when the terminal supports it.
func NewPrinter() *Printer {
	return &Printer{W: os.Stdout, Color: color.SupportColor()}
}

func (p *Printer) mark(ok bool) string {
	switch {
	case !p.Color && ok:
		return okMark
	case !p.Color:
		return failMark
	case ok:
		return color.Green.Sprint(okMark)
	}
	return color.Red.Sprint(failMark)
}

// Line prints one status line.
func (p *Printer) Line(ok bool, format string, args ...interface{}) {
	fmt.Fprintf(p.W, "%s %s\n", p.mark(ok), fmt.Sprintf(format, args...))
}

func (p *Printer) tool(s probe.ToolStatus) {
	if s.Installed {
		p.Line(true, "%s %s", s.Name, s.DetectedVersion)
		return
	}
	p.Line(false, "%s not installed", s.Name)
}

// Render prints every checked item of rep followed by the verdict.
func (p *Printer) Render(rep *provision.Report) {
	if ts := rep.Toolchain; ts != nil {
		p.tool(ts.Manager)
		if ts.Manager.Installed {
			p.tool(ts.Frontend)
		}
		if ts.Compiler.Name != "" {
			p.tool(ts.Compiler)
		}
		if ts.Toolchain != "" && ts.Frontend.Installed {
			p.Line(ts.ToolchainInstalled, "toolchain %s%s", ts.Toolchain, added(ts.ToolchainAdded))
		}
		for _, t := range ts.Targets {
			p.Line(t.Installed, "target %s%s", t.Triple, added(t.Added))
		}
	}

	if env := rep.CrossEnv; env != nil {
		p.Line(env.Bundle.Present, "dependency bundle %s", env.Bundle.LocalPath)
		if env.Linker.Path != "" {
			p.Line(true, "linker %s %s", env.Linker.Path, env.Linker.Version)
		}
		for _, v := range env.Vars {
			if v.Resolved() {
				p.Line(true, "%s=%s (%s)", v.Key, v.Value, v.Source)
			} else {
				p.Line(false, "%s unresolved", v.Key)
			}
		}
	}

	if rep.Err != nil {
		p.Line(false, "%v", rep.Err)
	}
	for _, g := range rep.Gaps {
		p.Line(false, "%s", g)
	}

	if rep.State == provision.Ready {
		p.Line(true, "environment ready")
		return
	}
	p.Line(false, "environment not ready")
}

func added(yes bool) string {
	if yes {
		return " (installed now)"
	}
	return ""
}
