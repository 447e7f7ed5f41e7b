package crossenv

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"github.com/darwinia-network/darwinia-builder/internal/target"
	"github.com/darwinia-network/darwinia-builder/internal/utils/security"
)

// HasTargetSection reports whether the cargo config content already carries
// a [target.<triple>] table. Content that is not valid TOML is scanned line
// by line for the section header.
func HasTargetSection(content []byte, triple string) bool {
	var doc map[string]interface{}
	if err := toml.Unmarshal(content, &doc); err == nil {
		targets, _ := doc["target"].(map[string]interface{})
		_, ok := targets[triple]
		return ok
	}

	headers := []string{
		"[target." + triple + "]",
		`[target."` + triple + `"]`,
		"[target.'" + triple + "']",
	}
	scanner := bufio.NewScanner(bytes.NewReader(content))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = strings.TrimSpace(line[:i])
		}
		for _, h := range headers {
			if line == h {
				return true
			}
		}
	}
	return false
}

// LinkerEntry renders the table that selects linker for triple.
func LinkerEntry(triple target.Triple, linker string) string {
	return fmt.Sprintf("[target.%s]\nlinker = %s\n", triple, strconv.Quote(linker))
}

// EnsureLinkerEntry appends the linker table for triple to the cargo config
// at path unless one exists. Existing content is never rewritten. It reports
// whether the file was changed.
func EnsureLinkerEntry(path string, triple target.Triple, linker string) (bool, error) {
	content, err := security.SafeReadFile(path, security.ResolveSymlinks)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return false, fmt.Errorf("reading cargo config %s: %w", path, err)
	}
	if HasTargetSection(content, triple.String()) {
		return false, nil
	}

	var entry strings.Builder
	if len(content) > 0 {
		if content[len(content)-1] != '\n' {
			entry.WriteByte('\n')
		}
		entry.WriteByte('\n')
	}
	entry.WriteString(LinkerEntry(triple, linker))

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return false, fmt.Errorf("creating cargo config dir: %w", err)
	}
	f, err := security.SafeOpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644, security.ResolveSymlinks)
	if err != nil {
		return false, fmt.Errorf("opening cargo config %s: %w", path, err)
	}
	if _, err := f.WriteString(entry.String()); err != nil {
		f.Close()
		return false, fmt.Errorf("appending to cargo config %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return false, fmt.Errorf("closing cargo config %s: %w", path, err)
	}
	return true, nil
}
