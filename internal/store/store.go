// Package store provides storage backends for CampusCare session logs.
//
// Sessions are append-only: screening results and chat turns are inserted,
// never updated, so a session reloaded from any backend re-derives the same
// escalation state. An in-memory store is provided for tests and ephemeral runs.
package store

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/BTreeMap/CampusCare/internal/models"
)

// Store is the persistence collaborator for sessions and counsellor shares.
type Store interface {
	OutboxRepo

	CreateSession(s models.Session) error
	GetSession(id string) (*models.Session, error)
	// AppendScreeningResult and AppendChatTurn ignore a record whose ID is
	// already stored, so a failed write can be retried safely.
	AppendScreeningResult(r models.ScreeningResult) error
	AppendChatTurn(t models.ChatTurn) error
	SaveCounsellorShare(sh models.CounsellorShare) error
	ListCounsellorShares(sessionID string) ([]models.CounsellorShare, error)
	Close() error
}

// Opts holds configuration options for store backends.
type Opts struct {
	DSN    string
	Driver string
}

// Option defines a function that configures Opts.
type Option func(*Opts)

// WithSQLiteDSN selects the SQLite backend at the given file path.
func WithSQLiteDSN(dsn string) Option {
	return func(o *Opts) {
		o.DSN = dsn
		o.Driver = "sqlite3"
	}
}

// WithPostgresDSN selects the PostgreSQL backend.
func WithPostgresDSN(dsn string) Option {
	return func(o *Opts) {
		o.DSN = dsn
		o.Driver = "postgres"
	}
}

// DetectDSNType returns "postgres" for PostgreSQL connection strings and
// "sqlite3" for everything else.
func DetectDSNType(dsn string) string {
	lower := strings.ToLower(strings.TrimSpace(dsn))
	if strings.HasPrefix(lower, "postgres://") || strings.HasPrefix(lower, "postgresql://") ||
		strings.Contains(lower, "host=") || strings.Contains(lower, "dbname=") {
		return "postgres"
	}
	return "sqlite3"
}

// New opens the backend selected by opts. Without a DSN it returns an
// in-memory store.
func New(opts ...Option) (Store, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.DSN == "" {
		slog.Warn("store.New: no DSN configured, sessions will not survive a restart")
		return NewInMemoryStore(), nil
	}
	driver := cfg.Driver
	if driver == "" {
		driver = DetectDSNType(cfg.DSN)
	}
	switch driver {
	case "postgres":
		return NewPostgresStore(WithPostgresDSN(cfg.DSN))
	case "sqlite3":
		return NewSQLiteStore(WithSQLiteDSN(cfg.DSN))
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
}
