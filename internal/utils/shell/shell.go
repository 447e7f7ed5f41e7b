package shell

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/exec"
	"strings"
	"sync"

	"github.com/darwinia-network/darwinia-builder/internal/utils/logger"
)

// RunOptions tunes a single subprocess invocation.
type RunOptions struct {
	// Env is appended to the current process environment.
	Env []string
	Dir string
	// Stream forwards every stdout/stderr line to the logger while the
	// command runs. Stdout is still captured and returned.
	Stream bool
}

// Executor runs external programs. Default is swapped for a MockExecutor in
// tests so that no real toolchain is needed.
type Executor interface {
	Run(ctx context.Context, name string, args []string, opts RunOptions) (string, error)
	LookPath(name string) (string, error)
}

// Default is the executor used by the package level helpers.
var Default Executor = &execExecutor{}

type execExecutor struct{}

func (e *execExecutor) LookPath(name string) (string, error) {
	return exec.LookPath(name)
}

func (e *execExecutor) Run(ctx context.Context, name string, args []string, opts RunOptions) (string, error) {
	log := logger.Logger()
	cmdLine := CmdLine(name, args...)
	log.Debugf("Exec: [%s]", cmdLine)

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = opts.Dir
	if len(opts.Env) > 0 {
		cmd.Env = append(os.Environ(), opts.Env...)
	}

	if !opts.Stream {
		var stdout, stderr bytes.Buffer
		cmd.Stdout = &stdout
		cmd.Stderr = &stderr
		err := cmd.Run()
		if stderr.Len() > 0 {
			log.Debugf("%s stderr: %s", name, strings.TrimSpace(stderr.String()))
		}
		if err != nil {
			return stdout.String(), fmt.Errorf("failed to exec %s: %w", cmdLine, err)
		}
		return stdout.String(), nil
	}

	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return "", fmt.Errorf("failed to get stdout pipe for command %s: %w", cmdLine, err)
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return "", fmt.Errorf("failed to get stderr pipe for command %s: %w", cmdLine, err)
	}
	if err := cmd.Start(); err != nil {
		return "", fmt.Errorf("failed to start command %s: %w", cmdLine, err)
	}

	var (
		wg  sync.WaitGroup
		out strings.Builder
	)
	forward := func(r io.Reader, capture bool) {
		defer wg.Done()
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			line := scanner.Text()
			if line == "" {
				continue
			}
			if capture {
				out.WriteString(line)
				out.WriteByte('\n')
			}
			log.Info(line)
		}
	}
	wg.Add(2)
	go forward(stdoutPipe, true)
	go forward(stderrPipe, false)
	wg.Wait()

	if err := cmd.Wait(); err != nil {
		return out.String(), fmt.Errorf("failed to wait for command %s: %w", cmdLine, err)
	}
	return out.String(), nil
}

// CmdLine renders a command the way it is logged and matched by MockExecutor.
func CmdLine(name string, args ...string) string {
	return strings.TrimSpace(name + " " + strings.Join(args, " "))
}

// ExecCmd runs name with args and returns its standard output.
func ExecCmd(ctx context.Context, name string, args ...string) (string, error) {
	return Default.Run(ctx, name, args, RunOptions{})
}

// ExecCmdWithStream runs name with args, streaming its output to the logger.
func ExecCmdWithStream(ctx context.Context, env []string, name string, args ...string) (string, error) {
	return Default.Run(ctx, name, args, RunOptions{Env: env, Stream: true})
}

// LookPath resolves name on the search path of the Default executor.
func LookPath(name string) (string, error) {
	return Default.LookPath(name)
}

// IsNotFound reports whether err means the program could not be located.
func IsNotFound(err error) bool {
	return errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist)
}

// IsExitError reports whether err is a program that ran but exited non-zero.
func IsExitError(err error) bool {
	var exitErr *exec.ExitError
	return errors.As(err, &exitErr) || errors.Is(err, ErrMockExit)
}
