package shell_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/darwinia-network/darwinia-builder/internal/utils/shell"
)

func TestExecCmd(t *testing.T) {
	out, err := shell.ExecCmd(context.Background(), "echo", "test-exec-cmd")
	if err != nil {
		t.Fatalf("ExecCmd failed: %v", err)
	}
	if !strings.Contains(out, "test-exec-cmd") {
		t.Errorf("Expected output to contain 'test-exec-cmd', got: %s", out)
	}
}

func TestExecCmdWithStream(t *testing.T) {
	out, err := shell.ExecCmdWithStream(context.Background(), []string{"BUILDER_TEST=1"}, "sh", "-c", "echo stream-$BUILDER_TEST")
	if err != nil {
		t.Fatalf("ExecCmdWithStream failed: %v", err)
	}
	if !strings.Contains(out, "stream-1") {
		t.Errorf("Expected output to contain 'stream-1', got: %s", out)
	}
}

func TestExecCmdNotFound(t *testing.T) {
	_, err := shell.ExecCmd(context.Background(), "definitely-not-a-real-program-2019")
	if err == nil {
		t.Fatal("expected error for missing program")
	}
	if !shell.IsNotFound(err) {
		t.Errorf("expected IsNotFound, got %v", err)
	}
	if shell.IsExitError(err) {
		t.Error("a missing program is not an exit error")
	}
}

func TestExecCmdNonZeroExitKeepsOutput(t *testing.T) {
	out, err := shell.ExecCmd(context.Background(), "sh", "-c", "echo partial; exit 3")
	if err == nil {
		t.Fatal("expected error for non-zero exit")
	}
	if !shell.IsExitError(err) {
		t.Errorf("expected exit error, got %v", err)
	}
	if !strings.Contains(out, "partial") {
		t.Errorf("stdout should be returned on failure, got %q", out)
	}
}

func TestMockExecutor(t *testing.T) {
	originalExecutor := shell.Default
	defer func() { shell.Default = originalExecutor }()

	mock := shell.NewMockExecutor([]shell.MockCommand{
		{Pattern: `^rustup --version$`, Output: "rustup 1.18.3\n"},
		{Pattern: `^rustup toolchain install`, Error: shell.ErrMockExit},
	})
	mock.Paths["rustup"] = "/usr/local/bin/rustup"
	shell.Default = mock

	out, err := shell.ExecCmd(context.Background(), "rustup", "--version")
	if err != nil || out != "rustup 1.18.3\n" {
		t.Fatalf("unexpected result %q, %v", out, err)
	}

	_, err = shell.ExecCmd(context.Background(), "rustup", "toolchain", "install", "nightly")
	if !errors.Is(err, shell.ErrMockExit) || !shell.IsExitError(err) {
		t.Errorf("expected mocked exit error, got %v", err)
	}

	_, err = shell.ExecCmd(context.Background(), "cargo", "--version")
	if !shell.IsNotFound(err) {
		t.Errorf("unmatched command should be not found, got %v", err)
	}

	if p, err := shell.LookPath("rustup"); err != nil || p != "/usr/local/bin/rustup" {
		t.Errorf("LookPath(rustup) = %q, %v", p, err)
	}
	if _, err := shell.LookPath("cargo"); !shell.IsNotFound(err) {
		t.Errorf("LookPath(cargo) should be not found, got %v", err)
	}

	if got := len(mock.Calls()); got != 3 {
		t.Errorf("expected 3 recorded calls, got %d", got)
	}
	if got := mock.CallsMatching(`^rustup `); len(got) != 2 {
		t.Errorf("expected 2 rustup calls, got %v", got)
	}
}
