package lock

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"
)

// FileName is the lock file kept inside a profile directory.
const FileName = "LOCK"

// HeldError is returned when another process owns the profile.
type HeldError struct {
	PID   int
	Since string
	Path  string
}

func (e *HeldError) Error() string {
	if e.Since != "" {
		return fmt.Sprintf("profile locked by PID %d since %s (%s)", e.PID, e.Since, e.Path)
	}
	return fmt.Sprintf("profile locked by PID %d (%s)", e.PID, e.Path)
}

// Lock is an exclusive flock on a profile directory. Only one daemon may
// own a profile's store and outbox at a time.
type Lock struct {
	file *os.File
	path string
}

// Acquire takes the profile lock in dir without blocking.
func Acquire(dir string) (*Lock, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create profile dir: %w", err)
	}
	path := filepath.Join(dir, FileName)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}

	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		data, _ := os.ReadFile(path)
		_ = f.Close()
		held := &HeldError{Path: path}
		held.PID, held.Since = parseOwner(string(data))
		return nil, held
	}

	if err := writeOwner(f); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("write lock owner: %w", err)
	}
	return &Lock{file: f, path: path}, nil
}

// Release drops the lock. Safe to call on a nil or released lock.
func (l *Lock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	// Remove while still holding the flock so no one reads a stale owner.
	_ = os.Remove(l.path)
	err := l.file.Close()
	l.file = nil
	return err
}

func writeOwner(f *os.File) error {
	if err := f.Truncate(0); err != nil {
		return err
	}
	if _, err := f.Seek(0, 0); err != nil {
		return err
	}
	_, err := fmt.Fprintf(f, "pid=%d\nsince=%s\n", os.Getpid(), time.Now().UTC().Format(time.RFC3339))
	return err
}

func parseOwner(content string) (pid int, since string) {
	for _, line := range strings.Split(content, "\n") {
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		switch key {
		case "pid":
			pid, _ = strconv.Atoi(value)
		case "since":
			since = value
		}
	}
	return pid, since
}
