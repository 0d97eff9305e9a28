package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/BTreeMap/CampusCare/internal/models"
)

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// nilIfEmpty returns nil if s is empty, otherwise returns s.
// Used for nullable database columns.
func nilIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func priorityValue(p *models.Priority) interface{} {
	if p == nil {
		return nil
	}
	return string(*p)
}

func marshalResponses(rs models.ResponseSet) (string, error) {
	b, err := json.Marshal(rs)
	if err != nil {
		return "", fmt.Errorf("failed to marshal responses: %w", err)
	}
	return string(b), nil
}

func marshalTranscript(turns []models.ChatTurn) (string, error) {
	if turns == nil {
		turns = []models.ChatTurn{}
	}
	b, err := json.Marshal(turns)
	if err != nil {
		return "", fmt.Errorf("failed to marshal transcript: %w", err)
	}
	return string(b), nil
}

// Column order: id, session_id, instrument_id, instrument_name, score, max_score,
// band_low, band_high, band_label, band_urgency, responses, safety_notice_required, completed_at.
func scanScreeningResult(row rowScanner) (models.ScreeningResult, error) {
	var r models.ScreeningResult
	var urgency, responses string
	err := row.Scan(
		&r.ID, &r.SessionID, &r.InstrumentID, &r.InstrumentName, &r.Score, &r.MaxScore,
		&r.Band.Low, &r.Band.High, &r.Band.Label, &urgency, &responses,
		&r.SafetyNoticeRequired, &r.CompletedAt,
	)
	if err != nil {
		return r, fmt.Errorf("scan screening result failed: %w", err)
	}
	r.Band.Urgency = models.Urgency(urgency)
	r.Responses = models.ResponseSet{}
	if err := json.Unmarshal([]byte(responses), &r.Responses); err != nil {
		return r, fmt.Errorf("failed to unmarshal responses for result %s: %w", r.ID, err)
	}
	return r, nil
}

// Column order: id, session_id, role, content, priority, degraded, created_at.
func scanChatTurn(row rowScanner) (models.ChatTurn, error) {
	var t models.ChatTurn
	var role string
	var priority sql.NullString
	if err := row.Scan(&t.ID, &t.SessionID, &role, &t.Content, &priority, &t.Degraded, &t.CreatedAt); err != nil {
		return t, fmt.Errorf("scan chat turn failed: %w", err)
	}
	t.Role = models.Role(role)
	if priority.Valid {
		p := models.Priority(priority.String)
		t.Priority = &p
	}
	return t, nil
}

// Column order: id, session_id, user_id, risk_level, requires_intervention,
// transcript, context_summary, created_at.
func scanCounsellorShare(row rowScanner) (models.CounsellorShare, error) {
	var sh models.CounsellorShare
	var risk, transcript string
	var summary sql.NullString
	err := row.Scan(&sh.ID, &sh.SessionID, &sh.UserID, &risk, &sh.RequiresIntervention, &transcript, &summary, &sh.CreatedAt)
	if err != nil {
		return sh, fmt.Errorf("scan counsellor share failed: %w", err)
	}
	sh.RiskLevel = models.RiskLevel(risk)
	sh.ContextSummary = summary.String
	if err := json.Unmarshal([]byte(transcript), &sh.Transcript); err != nil {
		return sh, fmt.Errorf("failed to unmarshal transcript for share %s: %w", sh.ID, err)
	}
	return sh, nil
}

// Column order: id, session_id, kind, payload_json, status, attempts,
// next_attempt_at, dedupe_key, locked_at, last_error, created_at, updated_at.
func scanOutboxMessage(row rowScanner) (OutboxMessage, error) {
	var m OutboxMessage
	var payloadJSON, dedupeKey, lastError sql.NullString
	var nextAttemptAt, lockedAt sql.NullTime
	err := row.Scan(
		&m.ID, &m.SessionID, &m.Kind, &payloadJSON, &m.Status, &m.Attempts,
		&nextAttemptAt, &dedupeKey, &lockedAt, &lastError, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return m, fmt.Errorf("scan outbox message failed: %w", err)
	}
	m.PayloadJSON = payloadJSON.String
	m.DedupeKey = dedupeKey.String
	m.LastError = lastError.String
	if nextAttemptAt.Valid {
		m.NextAttemptAt = &nextAttemptAt.Time
	}
	if lockedAt.Valid {
		m.LockedAt = &lockedAt.Time
	}
	return m, nil
}

const (
	resultColumns = `id, session_id, instrument_id, instrument_name, score, max_score, band_low, band_high, band_label, band_urgency, responses, safety_notice_required, completed_at`
	turnColumns   = `id, session_id, role, content, priority, degraded, created_at`
	shareColumns  = `id, session_id, user_id, risk_level, requires_intervention, transcript, context_summary, created_at`
	outboxColumns = `id, session_id, kind, payload_json, status, attempts, next_attempt_at, dedupe_key, locked_at, last_error, created_at, updated_at`
)
