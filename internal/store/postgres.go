// This file implements a PostgreSQL-backed session log.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	"github.com/BTreeMap/CampusCare/internal/models"
	_ "github.com/lib/pq"
)

// Database connection pool configuration constants
const (
	// DefaultMaxOpenConns is the default maximum number of open connections to the database
	DefaultMaxOpenConns = 25
	// DefaultMaxIdleConns is the default maximum number of idle connections in the pool
	DefaultMaxIdleConns = 25
	// DefaultConnMaxLifetime is the default maximum amount of time a connection may be reused
	DefaultConnMaxLifetime = 5 * time.Minute
)

//go:embed migrations_postgres.sql
var postgresMigrations string

// Compile-time check that PostgresStore implements Store.
var _ Store = (*PostgresStore)(nil)

type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new Postgres store based on provided options.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("PostgresStore.NewPostgresStore: creating Postgres store", "DSN_set", cfg.DSN != "")
	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		slog.Error("Failed to open Postgres connection", "error", err)
		return nil, err
	}

	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	if err := db.Ping(); err != nil {
		slog.Error("Postgres ping failed", "error", err)
		db.Close()
		return nil, err
	}
	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("Postgres migrations applied successfully")
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) CreateSession(sess models.Session) error {
	_, err := s.db.Exec(`INSERT INTO sessions (id, user_id, created_at) VALUES ($1, $2, $3)`, sess.ID, sess.UserID, sess.CreatedAt)
	if err != nil {
		slog.Error("PostgresStore CreateSession failed", "error", err, "session_id", sess.ID)
		return fmt.Errorf("failed to insert session %s: %w", sess.ID, err)
	}
	slog.Debug("PostgresStore CreateSession succeeded", "session_id", sess.ID)
	return nil
}

func (s *PostgresStore) GetSession(id string) (*models.Session, error) {
	var sess models.Session
	err := s.db.QueryRow(`SELECT id, user_id, created_at FROM sessions WHERE id = $1`, id).Scan(&sess.ID, &sess.UserID, &sess.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", models.ErrSessionNotFound, id)
	}
	if err != nil {
		slog.Error("PostgresStore GetSession failed", "error", err, "session_id", id)
		return nil, fmt.Errorf("failed to load session %s: %w", id, err)
	}
	out := models.NewSession(sess.ID, sess.UserID, sess.CreatedAt)

	rows, err := s.db.Query(`SELECT `+resultColumns+` FROM screening_results WHERE session_id = $1 ORDER BY seq`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query screening results for %s: %w", id, err)
	}
	defer rows.Close()
	for rows.Next() {
		r, err := scanScreeningResult(rows)
		if err != nil {
			return nil, err
		}
		out.AppendResult(r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate screening results: %w", err)
	}

	turnRows, err := s.db.Query(`SELECT `+turnColumns+` FROM chat_turns WHERE session_id = $1 ORDER BY seq`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query chat turns for %s: %w", id, err)
	}
	defer turnRows.Close()
	for turnRows.Next() {
		t, err := scanChatTurn(turnRows)
		if err != nil {
			return nil, err
		}
		out.AppendTurn(t)
	}
	if err := turnRows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate chat turns: %w", err)
	}

	slog.Debug("PostgresStore GetSession succeeded", "session_id", id, "results", len(out.Results), "turns", len(out.Turns))
	return out, nil
}

func (s *PostgresStore) AppendScreeningResult(r models.ScreeningResult) error {
	responses, err := marshalResponses(r.Responses)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`INSERT INTO screening_results (`+resultColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13) ON CONFLICT (id) DO NOTHING`,
		r.ID, r.SessionID, r.InstrumentID, r.InstrumentName, r.Score, r.MaxScore,
		r.Band.Low, r.Band.High, r.Band.Label, string(r.Band.Urgency), responses,
		r.SafetyNoticeRequired, r.CompletedAt)
	if err != nil {
		slog.Error("PostgresStore AppendScreeningResult failed", "error", err, "session_id", r.SessionID, "result_id", r.ID)
		return fmt.Errorf("failed to insert screening result %s: %w", r.ID, err)
	}
	slog.Debug("PostgresStore AppendScreeningResult succeeded", "session_id", r.SessionID, "instrument", r.InstrumentID, "band", r.Band.Label)
	return nil
}

func (s *PostgresStore) AppendChatTurn(t models.ChatTurn) error {
	_, err := s.db.Exec(`INSERT INTO chat_turns (`+turnColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7) ON CONFLICT (id) DO NOTHING`,
		t.ID, t.SessionID, string(t.Role), t.Content, priorityValue(t.Priority), t.Degraded, t.CreatedAt)
	if err != nil {
		slog.Error("PostgresStore AppendChatTurn failed", "error", err, "session_id", t.SessionID, "turn_id", t.ID)
		return fmt.Errorf("failed to insert chat turn %s: %w", t.ID, err)
	}
	slog.Debug("PostgresStore AppendChatTurn succeeded", "session_id", t.SessionID, "role", t.Role)
	return nil
}

func (s *PostgresStore) SaveCounsellorShare(sh models.CounsellorShare) error {
	transcript, err := marshalTranscript(sh.Transcript)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`INSERT INTO counsellor_shares (`+shareColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		sh.ID, sh.SessionID, sh.UserID, string(sh.RiskLevel), sh.RequiresIntervention, transcript, nilIfEmpty(sh.ContextSummary), sh.CreatedAt)
	if err != nil {
		slog.Error("PostgresStore SaveCounsellorShare failed", "error", err, "session_id", sh.SessionID)
		return fmt.Errorf("failed to insert counsellor share %s: %w", sh.ID, err)
	}
	slog.Debug("PostgresStore SaveCounsellorShare succeeded", "session_id", sh.SessionID, "share_id", sh.ID)
	return nil
}

func (s *PostgresStore) ListCounsellorShares(sessionID string) ([]models.CounsellorShare, error) {
	rows, err := s.db.Query(`SELECT `+shareColumns+` FROM counsellor_shares WHERE session_id = $1 ORDER BY seq`, sessionID)
	if err != nil {
		slog.Error("PostgresStore ListCounsellorShares query failed", "error", err)
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

// Close closes the Postgres database connection.
func (s *PostgresStore) Close() error {
	slog.Debug("Closing Postgres database connection")
	return s.db.Close()
}
