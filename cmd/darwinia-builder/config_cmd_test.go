package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/darwinia-network/darwinia-builder/internal/config"
)

func TestExecuteConfigInit_CreatesFile(t *testing.T) {
	tmp := t.TempDir()
	target := filepath.Join(tmp, "my-config.yml")

	cmd := createConfigCommand()
	cmd.SetOut(&strings.Builder{})
	cmd.SetArgs([]string{"init", target})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("execute config init failed: %v", err)
	}

	contents, err := os.ReadFile(target)
	if err != nil {
		t.Fatalf("failed to read generated config: %v", err)
	}
	text := string(contents)
	if !strings.Contains(text, "# darwinia-builder - Global Configuration") {
		t.Fatalf("generated config missing header comments: %s", text)
	}
	if !strings.Contains(text, "toolchain_date: \"2019-07-14\"") {
		t.Fatalf("generated config missing toolchain_date entry: %s", text)
	}

	if _, err := config.LoadGlobalConfig(target); err != nil {
		t.Fatalf("generated config does not load: %v", err)
	}
}
