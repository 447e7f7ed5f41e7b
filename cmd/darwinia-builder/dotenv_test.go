package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()

	if err := loadDotEnv(filepath.Join(dir, ".env")); err != nil {
		t.Errorf("a missing .env must be ignored, got %v", err)
	}

	good := filepath.Join(dir, "good.env")
	if err := os.WriteFile(good, []byte("SYSROOT=/opt/cross/sysroot\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("SYSROOT", "")
	os.Unsetenv("SYSROOT")
	if err := loadDotEnv(good); err != nil {
		t.Fatalf("loadDotEnv failed: %v", err)
	}
	if got := os.Getenv("SYSROOT"); got != "/opt/cross/sysroot" {
		t.Errorf("SYSROOT = %q", got)
	}

	bad := filepath.Join(dir, "bad.env")
	if err := os.WriteFile(bad, []byte("OPENSSL{LIB}=/opt/openssl\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := loadDotEnv(bad); err == nil {
		t.Error("a malformed .env must be reported")
	}
}
