// Package lockfile keeps two CampusCare servers from writing the same SQLite
// session database.
//
// The lock is a flock on "<database>.lock" next to the database file, released
// by the kernel when the process exits. PostgreSQL and in-memory stores are
// never locked.
package lockfile

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/BTreeMap/CampusCare/internal/store"
)

// Suffix is appended to the database path to name its lock file.
const Suffix = ".lock"

// Owner is the lock file content: the process holding the database.
type Owner struct {
	PID      int       `json:"pid"`
	Database string    `json:"database"`
	Since    time.Time `json:"since"`
}

// Alive reports whether the owning process still exists.
func (o Owner) Alive() bool {
	if o.PID <= 0 {
		return false
	}
	p, err := os.FindProcess(o.PID)
	if err != nil {
		return false
	}
	return p.Signal(syscall.Signal(0)) == nil
}

// Lock is a held database lock. A nil *Lock stands for "no lock needed".
type Lock struct {
	file *os.File
	path string
}

// PathFor returns the lock path for a SQLite DSN, or "" when the DSN selects
// PostgreSQL, an in-memory database or nothing at all.
func PathFor(dsn string) string {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" || store.DetectDSNType(dsn) == "postgres" {
		return ""
	}
	path := strings.TrimPrefix(dsn, "file:")
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	if path == "" || path == ":memory:" {
		return ""
	}
	return filepath.Clean(path) + Suffix
}

// ForDSN locks the SQLite database named by dsn. It returns a nil Lock and no
// error when the DSN needs no lock.
func ForDSN(dsn string) (*Lock, error) {
	path := PathFor(dsn)
	if path == "" {
		slog.Debug("lockfile.ForDSN: database needs no lock", "dsn_type", store.DetectDSNType(dsn))
		return nil, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory for %s: %w", path, err)
	}

	// Not truncated on open: a conflicting server must still be able to read
	// the holder's details.
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open lock file %s: %w", path, err)
	}
	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		f.Close()
		held := &HeldError{Path: path, Err: err}
		if owner, readErr := ReadOwner(path); readErr == nil {
			held.Owner = owner
		}
		slog.Error("lockfile.ForDSN: database already locked", "lock_path", path, "error", err)
		return nil, held
	}

	owner := Owner{PID: os.Getpid(), Database: strings.TrimSuffix(path, Suffix), Since: time.Now().UTC()}
	if err := writeOwner(f, owner); err != nil {
		syscall.Flock(int(f.Fd()), syscall.LOCK_UN)
		f.Close()
		return nil, fmt.Errorf("failed to record lock owner in %s: %w", path, err)
	}
	slog.Info("lockfile.ForDSN: database locked", "lock_path", path, "pid", owner.PID)
	return &Lock{file: f, path: path}, nil
}

func writeOwner(f *os.File, o Owner) error {
	data, err := json.Marshal(o)
	if err != nil {
		return err
	}
	if err := f.Truncate(0); err != nil {
		return err
	}
	if _, err := f.WriteAt(append(data, '\n'), 0); err != nil {
		return err
	}
	return f.Sync()
}

// ReadOwner decodes the owner recorded in a lock file.
func ReadOwner(path string) (*Owner, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var o Owner
	if err := json.Unmarshal(data, &o); err != nil {
		return nil, fmt.Errorf("lock file %s has no owner record: %w", path, err)
	}
	return &o, nil
}

// Path returns the lock file path, or "" for a nil Lock.
func (l *Lock) Path() string {
	if l == nil {
		return ""
	}
	return l.path
}

// Release unlocks and removes the lock file. It is safe on a nil Lock and
// safe to call more than once.
func (l *Lock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	// Remove while still holding the flock so no other server locks the
	// unlinked inode.
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		slog.Warn("Lock.Release: lock file not removed", "lock_path", l.path, "error", err)
	}
	if err := syscall.Flock(int(l.file.Fd()), syscall.LOCK_UN); err != nil {
		slog.Warn("Lock.Release: unlock failed", "lock_path", l.path, "error", err)
	}
	err := l.file.Close()
	l.file = nil
	slog.Info("Lock.Release: database unlocked", "lock_path", l.path)
	return err
}

// HeldError reports a database already locked by another server.
type HeldError struct {
	Path  string
	Owner *Owner
	Err   error
}

func (e *HeldError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "SQLite database %s is in use by another CampusCare server", strings.TrimSuffix(e.Path, Suffix))
	if e.Owner != nil {
		state := "running"
		if !e.Owner.Alive() {
			state = "not running"
		}
		fmt.Fprintf(&b, " (pid %d, %s, since %s)", e.Owner.PID, state, e.Owner.Since.Format(time.RFC3339))
	}
	fmt.Fprintf(&b, ".\nLock file: %s\nStop the other server, or point --db-dsn at a different database.", e.Path)
	return b.String()
}

func (e *HeldError) Unwrap() error {
	return e.Err
}
