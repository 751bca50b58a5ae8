// Package shell runs the external CLI tools that bar sources scrape
// (upower, nmcli, bluetoothctl, playerctl, yt-dlp) behind a small interface
// so parsers can be tested against canned output.
package shell

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"sync"
)

// ErrUnparseable marks tool output that did not match the expected shape.
// Adapters return it instead of guessing a default.
var ErrUnparseable = errors.New("unparseable output")

// ErrNotInstalled is returned when the requested binary is not on PATH.
var ErrNotInstalled = errors.New("command not installed")

// Runner executes a command and returns its stdout.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// Unparseable wraps ErrUnparseable with the tool name and a reason.
func Unparseable(tool, format string, args ...any) error {
	return fmt.Errorf("%s: %w: %s", tool, ErrUnparseable, fmt.Sprintf(format, args...))
}

// ExecRunner runs real processes via os/exec. The context deadline kills
// the process.
type ExecRunner struct{}

// Run executes name with args. A non-zero exit is reported with the first
// line of stderr.
func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	if _, err := exec.LookPath(name); err != nil {
		return nil, fmt.Errorf("%s: %w", name, ErrNotInstalled)
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("%s: %w", name, ctxErr)
		}
		msg := firstLine(stderr.String())
		if msg != "" {
			return nil, fmt.Errorf("%s %s: %w: %s", name, strings.Join(args, " "), err, msg)
		}
		return nil, fmt.Errorf("%s %s: %w", name, strings.Join(args, " "), err)
	}
	return stdout.Bytes(), nil
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

// FakeRunner returns canned output keyed by the full command line
// ("nmcli -t -f ACTIVE,SSID dev wifi"). It records every call.
type FakeRunner struct {
	mu      sync.Mutex
	outputs map[string]fakeResult
	calls   []string
}

type fakeResult struct {
	out []byte
	err error
}

// NewFakeRunner returns an empty FakeRunner.
func NewFakeRunner() *FakeRunner {
	return &FakeRunner{outputs: make(map[string]fakeResult)}
}

// Set registers output for a command line.
func (f *FakeRunner) Set(cmdline, output string) *FakeRunner {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.outputs[cmdline] = fakeResult{out: []byte(output)}
	return f
}

// SetError registers an error for a command line.
func (f *FakeRunner) SetError(cmdline string, err error) *FakeRunner {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.outputs[cmdline] = fakeResult{err: err}
	return f
}

// Run looks up the joined command line. Unknown commands behave as if the
// tool were not installed.
func (f *FakeRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cmdline := strings.Join(append([]string{name}, args...), " ")

	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, cmdline)

	r, ok := f.outputs[cmdline]
	if !ok {
		return nil, fmt.Errorf("%s: %w", name, ErrNotInstalled)
	}
	return r.out, r.err
}

// Calls returns the command lines run so far.
func (f *FakeRunner) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}
