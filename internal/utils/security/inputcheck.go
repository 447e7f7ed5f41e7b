package security

import (
	"fmt"
	"unicode"
	"unicode/utf8"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

type Limits struct {
	MaxString int
}

func DefaultLimits() Limits {
	return Limits{MaxString: 4096}
}

// ValidateString rejects invalid UTF-8, NUL and other control runes, and
// values longer than lim.MaxString runes.
func ValidateString(name, s string, lim Limits) error {
	if s == "" {
		return nil
	}
	if !utf8.ValidString(s) {
		return fmt.Errorf("%s: invalid UTF-8", name)
	}
	if n := utf8.RuneCountInString(s); n > lim.MaxString {
		return fmt.Errorf("%s: too long (%d > %d)", name, n, lim.MaxString)
	}
	for _, r := range s {
		if r == '\t' {
			continue
		}
		if r == 0 || !unicode.IsPrint(r) {
			return fmt.Errorf("%s: contains non-printable/control runes", name)
		}
	}
	return nil
}

// AttachRecursive installs argument and string flag validation in front of
// every command's PersistentPreRunE. Existing hooks still run afterwards.
func AttachRecursive(root *cobra.Command, lim Limits) {
	attach(root, lim)
	for _, c := range root.Commands() {
		AttachRecursive(c, lim)
	}
}

func attach(cmd *cobra.Command, lim Limits) {
	prevE := cmd.PersistentPreRunE
	prev := cmd.PersistentPreRun
	cmd.PersistentPreRun = nil
	cmd.PersistentPreRunE = func(c *cobra.Command, args []string) error {
		if err := validateFlagsAndArgs(c, args, lim); err != nil {
			return err
		}
		if prevE != nil {
			return prevE(c, args)
		}
		if prev != nil {
			prev(c, args)
		}
		return nil
	}
}

func validateFlagsAndArgs(cmd *cobra.Command, args []string, lim Limits) error {
	for i, a := range args {
		if err := ValidateString(fmt.Sprintf("arg[%d]", i), a, lim); err != nil {
			return err
		}
	}

	var firstErr error
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		if firstErr != nil || !f.Changed {
			return
		}
		name := "flag --" + f.Name
		switch f.Value.Type() {
		case "string":
			firstErr = ValidateString(name, f.Value.String(), lim)
		case "stringSlice", "stringArray":
			if sv, ok := f.Value.(pflag.SliceValue); ok {
				for i, v := range sv.GetSlice() {
					if firstErr = ValidateString(fmt.Sprintf("%s[%d]", name, i), v, lim); firstErr != nil {
						return
					}
				}
			}
		}
	})
	return firstErr
}
