package shell

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"regexp"
	"sync"
)

// ErrMockExit stands in for *exec.ExitError in mocked commands.
var ErrMockExit = errors.New("exit status 1")

// MockCommand maps a command line pattern (a regular expression matched
// against CmdLine output) to the output and error it should produce.
type MockCommand struct {
	Pattern string
	Output  string
	Error   error
}

// MockExecutor answers commands from a fixed table. Unmatched commands fail
// with exec.ErrNotFound, as if the program were not installed.
type MockExecutor struct {
	mu       sync.Mutex
	commands []MockCommand
	compiled []*regexp.Regexp
	// Paths answers LookPath; names missing here are not found.
	Paths map[string]string
	calls []string
}

func NewMockExecutor(commands []MockCommand) *MockExecutor {
	m := &MockExecutor{Paths: map[string]string{}}
	for _, c := range commands {
		m.commands = append(m.commands, c)
		m.compiled = append(m.compiled, regexp.MustCompile(c.Pattern))
	}
	return m
}

func (m *MockExecutor) Run(_ context.Context, name string, args []string, _ RunOptions) (string, error) {
	line := CmdLine(name, args...)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, line)

	for i, re := range m.compiled {
		if re.MatchString(line) {
			c := m.commands[i]
			if c.Error != nil {
				return c.Output, fmt.Errorf("failed to exec %s: %w", line, c.Error)
			}
			return c.Output, nil
		}
	}
	return "", fmt.Errorf("failed to exec %s: %w", line, exec.ErrNotFound)
}

func (m *MockExecutor) LookPath(name string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.Paths[name]; ok {
		return p, nil
	}
	return "", &exec.Error{Name: name, Err: exec.ErrNotFound}
}

// Calls returns every command line run so far, in order.
func (m *MockExecutor) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

// CallsMatching returns the recorded command lines that match pattern.
func (m *MockExecutor) CallsMatching(pattern string) []string {
	re := regexp.MustCompile(pattern)
	var out []string
	for _, c := range m.Calls() {
		if re.MatchString(c) {
			out = append(out, c)
		}
	}
	return out
}
