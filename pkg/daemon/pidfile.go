package daemon

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

// ErrAlreadyRunning is returned by AcquirePID when a live process holds the
// PID file.
var ErrAlreadyRunning = errors.New("daemon already running")

// AcquirePID writes the current PID to path. It fails if the file names a
// live process; a file left behind by a dead one is replaced.
func AcquirePID(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create PID directory: %w", err)
	}

	if pid, err := ReadPID(path); err == nil {
		if pid != os.Getpid() && IsProcessAlive(pid) {
			return fmt.Errorf("%w (PID %d)", ErrAlreadyRunning, pid)
		}
		os.Remove(path)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(strconv.Itoa(os.Getpid())+"\n"), 0o644); err != nil {
		return fmt.Errorf("write temp PID file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename PID file: %w", err)
	}
	return nil
}

// ReleasePID removes the PID file if it still names this process.
func ReleasePID(path string) error {
	pid, err := ReadPID(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	if pid != os.Getpid() {
		return nil
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove PID file: %w", err)
	}
	return nil
}

// ReadPID reads and parses the PID stored at path.
func ReadPID(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read PID file: %w", err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("parse PID file: %w", err)
	}
	return pid, nil
}

// IsProcessAlive reports whether pid exists, using signal 0. EPERM means
// the process exists but belongs to someone else.
func IsProcessAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := unix.Kill(pid, 0)
	return err == nil || errors.Is(err, unix.EPERM)
}
