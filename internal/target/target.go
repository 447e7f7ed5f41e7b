// Package target models the closed set of target triples the builder knows
// how to provision, split by the role a triple plays in a build.
package target

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
)

// ErrUnsupported is returned for triples outside the supported set of a role.
var ErrUnsupported = errors.New("unsupported target triple")

type Arch int

const (
	ArchARM Arch = iota
	ArchARMv7
	ArchX86
	ArchX86_64
	ArchWasm32
)

var archSuffix = map[Arch]string{
	ArchARM:    "arm",
	ArchARMv7:  "armv7",
	ArchX86:    "i686",
	ArchX86_64: "x86_64",
	ArchWasm32: "wasm32",
}

// TripleSuffix is the architecture component of a triple.
func (a Arch) TripleSuffix() string {
	if s, ok := archSuffix[a]; ok {
		return s
	}
	return fmt.Sprintf("arch(%d)", int(a))
}

type OS int

const (
	OSLinux OS = iota
	OSLinuxEABI
	OSLinuxEABIHF
	OSMacOS
	OSWindows
	OSUnknown
)

var osSuffix = map[OS]string{
	OSLinux:       "unknown-linux-gnu",
	OSLinuxEABI:   "unknown-linux-gnueabi",
	OSLinuxEABIHF: "unknown-linux-gnueabihf",
	OSMacOS:       "apple-darwin",
	OSWindows:     "pc-windows-msvc",
	OSUnknown:     "unknown-unknown",
}

// TripleSuffix is the vendor-os-abi component of a triple.
func (o OS) TripleSuffix() string {
	if s, ok := osSuffix[o]; ok {
		return s
	}
	return fmt.Sprintf("os(%d)", int(o))
}

// Triple is an architecture/OS pair. The zero value is not a valid triple;
// obtain one from Parse or Host.
type Triple struct {
	Arch Arch
	OS   OS
}

func (t Triple) String() string {
	return t.Arch.TripleSuffix() + "-" + t.OS.TripleSuffix()
}

// IsLinuxFamily reports whether t needs the Linux TLS and storage-engine
// libraries when cross compiling.
func (t Triple) IsLinuxFamily() bool {
	switch t.OS {
	case OSLinux, OSLinuxEABI, OSLinuxEABIHF:
		return true
	}
	return false
}

// BundleName is the directory (and archive base name) of the pre-built
// dependency bundle for t, e.g. "x86_64-linux".
func (t Triple) BundleName() string {
	family := "unknown"
	switch {
	case t.IsLinuxFamily():
		family = "linux"
	case t.OS == OSMacOS:
		family = "macos"
	case t.OS == OSWindows:
		family = "windows"
	}
	return t.Arch.TripleSuffix() + "-" + family
}

// CrossCC is the name of the C cross compiler used as linker for t.
func (t Triple) CrossCC() string {
	switch t.OS {
	case OSMacOS:
		if t.Arch == ArchX86 {
			return "o32-clang"
		}
		return "o64-clang"
	case OSWindows:
		return "lld-link"
	}
	return t.String() + "-gcc"
}

type Role int

const (
	// RoleHost is the triple the toolchain runs on.
	RoleHost Role = iota
	// RoleAux is the auxiliary runtime target (WASM).
	RoleAux
	// RoleRun is the triple the produced binary runs on.
	RoleRun
)

func (r Role) String() string {
	switch r {
	case RoleHost:
		return "host"
	case RoleAux:
		return "auxiliary"
	case RoleRun:
		return "target"
	}
	return "unknown"
}

var (
	X86_64Linux   = Triple{ArchX86_64, OSLinux}
	I686Linux     = Triple{ArchX86, OSLinux}
	ARMLinux      = Triple{ArchARM, OSLinuxEABI}
	ARMv7Linux    = Triple{ArchARMv7, OSLinuxEABIHF}
	X86_64MacOS   = Triple{ArchX86_64, OSMacOS}
	I686MacOS     = Triple{ArchX86, OSMacOS}
	X86_64Windows = Triple{ArchX86_64, OSWindows}
	I686Windows   = Triple{ArchX86, OSWindows}
	Wasm32        = Triple{ArchWasm32, OSUnknown}
)

var supported = map[Role][]Triple{
	RoleHost: {I686Linux, X86_64Linux, I686MacOS, X86_64MacOS, I686Windows, X86_64Windows},
	RoleAux:  {Wasm32},
	RoleRun: {
		ARMLinux, ARMv7Linux,
		I686MacOS, X86_64MacOS,
		I686Linux, X86_64Linux,
		I686Windows, X86_64Windows,
	},
}

// Supported lists the triples accepted for role, in display order.
func Supported(role Role) []Triple {
	return append([]Triple(nil), supported[role]...)
}

// SupportedNames is Supported rendered as strings.
func SupportedNames(role Role) []string {
	var names []string
	for _, t := range supported[role] {
		names = append(names, t.String())
	}
	return names
}

// Parse resolves s to a triple if and only if it belongs to role's set.
func Parse(role Role, s string) (Triple, error) {
	s = strings.TrimSpace(s)
	for _, t := range supported[role] {
		if t.String() == s {
			return t, nil
		}
	}
	return Triple{}, fmt.Errorf("%w for %s: %q (supported: %s)",
		ErrUnsupported, role, s, strings.Join(SupportedNames(role), ", "))
}

// Host returns the triple of the running platform.
func Host() (Triple, error) {
	return hostFor(runtime.GOARCH, runtime.GOOS)
}

func hostFor(goarch, goos string) (Triple, error) {
	var t Triple
	switch goarch {
	case "386":
		t.Arch = ArchX86
	case "amd64":
		t.Arch = ArchX86_64
	default:
		return Triple{}, fmt.Errorf("%w: host architecture %s", ErrUnsupported, goarch)
	}
	switch goos {
	case "linux":
		t.OS = OSLinux
	case "darwin":
		t.OS = OSMacOS
	case "windows":
		t.OS = OSWindows
	default:
		return Triple{}, fmt.Errorf("%w: host os %s", ErrUnsupported, goos)
	}
	return t, nil
}
