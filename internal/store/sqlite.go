// This file implements an SQLite-backed session log.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "embed"

	"github.com/BTreeMap/CampusCare/internal/models"
	_ "github.com/mattn/go-sqlite3"
)

// Constants for SQLite store configuration
const (
	// DefaultDirPermissions defines the default permissions for database directories
	DefaultDirPermissions = 0755
)

//go:embed migrations_sqlite.sql
var sqliteMigrations string

// Compile-time check that SQLiteStore implements Store.
var _ Store = (*SQLiteStore)(nil)

type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store with the given DSN.
// The DSN should be a file path to the SQLite database file.
// If the directory doesn't exist, it will be created.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewSQLiteStore invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dsn+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}
	// Single writer avoids SQLITE_BUSY under concurrent appends.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		db.Close()
		return nil, err
	}

	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLite migrations applied successfully", "path", dsn)

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) CreateSession(sess models.Session) error {
	_, err := s.db.Exec(`INSERT INTO sessions (id, user_id, created_at) VALUES (?, ?, ?)`, sess.ID, sess.UserID, sess.CreatedAt)
	if err != nil {
		slog.Error("SQLiteStore CreateSession failed", "error", err, "session_id", sess.ID)
		return fmt.Errorf("failed to insert session %s: %w", sess.ID, err)
	}
	slog.Debug("SQLiteStore CreateSession succeeded", "session_id", sess.ID)
	return nil
}

func (s *SQLiteStore) GetSession(id string) (*models.Session, error) {
	var sess models.Session
	err := s.db.QueryRow(`SELECT id, user_id, created_at FROM sessions WHERE id = ?`, id).Scan(&sess.ID, &sess.UserID, &sess.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", models.ErrSessionNotFound, id)
	}
	if err != nil {
		slog.Error("SQLiteStore GetSession failed", "error", err, "session_id", id)
		return nil, fmt.Errorf("failed to load session %s: %w", id, err)
	}
	out := models.NewSession(sess.ID, sess.UserID, sess.CreatedAt)

	if out.Results, err = s.loadResults(id); err != nil {
		return nil, err
	}
	if out.Turns, err = s.loadTurns(id); err != nil {
		return nil, err
	}

	slog.Debug("SQLiteStore GetSession succeeded", "session_id", id, "results", len(out.Results), "turns", len(out.Turns))
	return out, nil
}

// loadResults returns a session's screening results in append order.
// Rows are closed before returning, which matters with a single connection.
func (s *SQLiteStore) loadResults(sessionID string) ([]models.ScreeningResult, error) {
	rows, err := s.db.Query(`SELECT `+resultColumns+` FROM screening_results WHERE session_id = ? ORDER BY seq`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query screening results for %s: %w", sessionID, err)
	}
	defer rows.Close()
	results := []models.ScreeningResult{}
	for rows.Next() {
		r, err := scanScreeningResult(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate screening results: %w", err)
	}
	return results, nil
}

// loadTurns returns a session's chat turns in append order.
func (s *SQLiteStore) loadTurns(sessionID string) ([]models.ChatTurn, error) {
	rows, err := s.db.Query(`SELECT `+turnColumns+` FROM chat_turns WHERE session_id = ? ORDER BY seq`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query chat turns for %s: %w", sessionID, err)
	}
	defer rows.Close()
	turns := []models.ChatTurn{}
	for rows.Next() {
		t, err := scanChatTurn(rows)
		if err != nil {
			return nil, err
		}
		turns = append(turns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate chat turns: %w", err)
	}
	return turns, nil
}

func (s *SQLiteStore) AppendScreeningResult(r models.ScreeningResult) error {
	responses, err := marshalResponses(r.Responses)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`INSERT INTO screening_results (`+resultColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?) ON CONFLICT (id) DO NOTHING`,
		r.ID, r.SessionID, r.InstrumentID, r.InstrumentName, r.Score, r.MaxScore,
		r.Band.Low, r.Band.High, r.Band.Label, string(r.Band.Urgency), responses,
		r.SafetyNoticeRequired, r.CompletedAt)
	if err != nil {
		slog.Error("SQLiteStore AppendScreeningResult failed", "error", err, "session_id", r.SessionID, "result_id", r.ID)
		return fmt.Errorf("failed to insert screening result %s: %w", r.ID, err)
	}
	slog.Debug("SQLiteStore AppendScreeningResult succeeded", "session_id", r.SessionID, "instrument", r.InstrumentID, "band", r.Band.Label)
	return nil
}

func (s *SQLiteStore) AppendChatTurn(t models.ChatTurn) error {
	_, err := s.db.Exec(`INSERT INTO chat_turns (`+turnColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?) ON CONFLICT (id) DO NOTHING`,
		t.ID, t.SessionID, string(t.Role), t.Content, priorityValue(t.Priority), t.Degraded, t.CreatedAt)
	if err != nil {
		slog.Error("SQLiteStore AppendChatTurn failed", "error", err, "session_id", t.SessionID, "turn_id", t.ID)
		return fmt.Errorf("failed to insert chat turn %s: %w", t.ID, err)
	}
	slog.Debug("SQLiteStore AppendChatTurn succeeded", "session_id", t.SessionID, "role", t.Role)
	return nil
}

func (s *SQLiteStore) SaveCounsellorShare(sh models.CounsellorShare) error {
	transcript, err := marshalTranscript(sh.Transcript)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`INSERT INTO counsellor_shares (`+shareColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		sh.ID, sh.SessionID, sh.UserID, string(sh.RiskLevel), sh.RequiresIntervention, transcript, nilIfEmpty(sh.ContextSummary), sh.CreatedAt)
	if err != nil {
		slog.Error("SQLiteStore SaveCounsellorShare failed", "error", err, "session_id", sh.SessionID)
		return fmt.Errorf("failed to insert counsellor share %s: %w", sh.ID, err)
	}
	slog.Debug("SQLiteStore SaveCounsellorShare succeeded", "session_id", sh.SessionID, "share_id", sh.ID)
	return nil
}

func (s *SQLiteStore) ListCounsellorShares(sessionID string) ([]models.CounsellorShare, error) {
	rows, err := s.db.Query(`SELECT `+shareColumns+` FROM counsellor_shares WHERE session_id = ? ORDER BY seq`, sessionID)
	if err != nil {
		slog.Error("SQLiteStore ListCounsellorShares query failed", "error", err)
		return nil, fmt.Errorf("failed to query counsellor shares: %w", err)
	}
	defer rows.Close()
	var shares []models.CounsellorShare
	for rows.Next() {
		sh, err := scanCounsellorShare(rows)
		if err != nil {
			return nil, err
		}
		shares = append(shares, sh)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate counsellor shares: %w", err)
	}
	return shares, nil
}

// Close closes the SQLite database connection.
func (s *SQLiteStore) Close() error {
	slog.Debug("Closing SQLite database connection")
	err := s.db.Close()
	if err != nil {
		slog.Error("Failed to close SQLite database", "error", err)
	}
	return err
}
