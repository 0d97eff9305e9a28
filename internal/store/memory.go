package store

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/BTreeMap/CampusCare/internal/models"
	"github.com/google/uuid"
)

// Compile-time check that InMemoryStore implements Store.
var _ Store = (*InMemoryStore)(nil)

// InMemoryStore keeps everything in process memory.
type InMemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*models.Session
	shares   map[string][]models.CounsellorShare
	outbox   []OutboxMessage
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		sessions: make(map[string]*models.Session),
		shares:   make(map[string][]models.CounsellorShare),
	}
}

func (s *InMemoryStore) CreateSession(sess models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[sess.ID]; ok {
		return fmt.Errorf("session %s already exists", sess.ID)
	}
	s.sessions[sess.ID] = models.NewSession(sess.ID, sess.UserID, sess.CreatedAt)
	return nil
}

// GetSession returns a deep copy so callers cannot mutate stored history.
func (s *InMemoryStore) GetSession(id string) (*models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", models.ErrSessionNotFound, id)
	}
	out := models.NewSession(sess.ID, sess.UserID, sess.CreatedAt)
	out.Turns = append(out.Turns, sess.Turns...)
	out.Results = append(out.Results, sess.Results...)
	return out, nil
}

func (s *InMemoryStore) AppendScreeningResult(r models.ScreeningResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[r.SessionID]
	if !ok {
		return fmt.Errorf("%w: %s", models.ErrSessionNotFound, r.SessionID)
	}
	for _, existing := range sess.Results {
		if existing.ID == r.ID {
			return nil
		}
	}
	sess.AppendResult(r)
	return nil
}

func (s *InMemoryStore) AppendChatTurn(t models.ChatTurn) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[t.SessionID]
	if !ok {
		return fmt.Errorf("%w: %s", models.ErrSessionNotFound, t.SessionID)
	}
	for _, existing := range sess.Turns {
		if existing.ID == t.ID {
			return nil
		}
	}
	sess.AppendTurn(t)
	return nil
}

func (s *InMemoryStore) SaveCounsellorShare(sh models.CounsellorShare) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[sh.SessionID]; !ok {
		return fmt.Errorf("%w: %s", models.ErrSessionNotFound, sh.SessionID)
	}
	s.shares[sh.SessionID] = append(s.shares[sh.SessionID], sh)
	return nil
}

func (s *InMemoryStore) ListCounsellorShares(sessionID string) ([]models.CounsellorShare, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.CounsellorShare(nil), s.shares[sessionID]...), nil
}

func (s *InMemoryStore) EnqueueOutboxMessage(sessionID, kind, payloadJSON, dedupeKey string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if dedupeKey != "" {
		for _, m := range s.outbox {
			if m.DedupeKey == dedupeKey && !m.Status.Terminal() {
				return m.ID, nil
			}
		}
	}
	now := time.Now()
	id := uuid.NewString()
	s.outbox = append(s.outbox, OutboxMessage{
		ID:          id,
		SessionID:   sessionID,
		Kind:        kind,
		PayloadJSON: payloadJSON,
		Status:      OutboxStatusQueued,
		DedupeKey:   dedupeKey,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	return id, nil
}

func (s *InMemoryStore) ClaimDueOutboxMessages(now time.Time, limit int) ([]OutboxMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := make([]int, 0, len(s.outbox))
	for i, m := range s.outbox {
		if m.Status == OutboxStatusQueued && (m.NextAttemptAt == nil || !m.NextAttemptAt.After(now)) {
			idx = append(idx, i)
		}
	}
	sort.SliceStable(idx, func(a, b int) bool { return s.outbox[idx[a]].CreatedAt.Before(s.outbox[idx[b]].CreatedAt) })
	if len(idx) > limit {
		idx = idx[:limit]
	}
	out := make([]OutboxMessage, 0, len(idx))
	for _, i := range idx {
		locked := now
		s.outbox[i].Status = OutboxStatusSending
		s.outbox[i].LockedAt = &locked
		s.outbox[i].UpdatedAt = now
		out = append(out, s.outbox[i])
	}
	return out, nil
}

func (s *InMemoryStore) MarkOutboxMessageSent(id string) error {
	return s.updateOutbox(id, func(m *OutboxMessage) {
		m.Status = OutboxStatusSent
	})
}

func (s *InMemoryStore) FailOutboxMessage(id string, errMsg string, nextAttemptAt time.Time) error {
	return s.updateOutbox(id, func(m *OutboxMessage) {
		m.Status = OutboxStatusQueued
		m.Attempts++
		m.LastError = errMsg
		next := nextAttemptAt
		m.NextAttemptAt = &next
		m.LockedAt = nil
	})
}

func (s *InMemoryStore) AbandonOutboxMessage(id string, errMsg string) error {
	return s.updateOutbox(id, func(m *OutboxMessage) {
		m.Status = OutboxStatusFailed
		m.Attempts++
		m.LastError = errMsg
		m.LockedAt = nil
	})
}

func (s *InMemoryStore) RequeueStaleSendingMessages(staleBefore time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for i := range s.outbox {
		m := &s.outbox[i]
		if m.Status == OutboxStatusSending && m.LockedAt != nil && m.LockedAt.Before(staleBefore) {
			m.Status = OutboxStatusQueued
			m.LockedAt = nil
			m.UpdatedAt = time.Now()
			n++
		}
	}
	return n, nil
}

func (s *InMemoryStore) GetOutboxMessage(id string) (*OutboxMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, m := range s.outbox {
		if m.ID == id {
			out := m
			return &out, nil
		}
	}
	return nil, nil
}

func (s *InMemoryStore) updateOutbox(id string, fn func(*OutboxMessage)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.outbox {
		if s.outbox[i].ID == id {
			fn(&s.outbox[i])
			s.outbox[i].UpdatedAt = time.Now()
			return nil
		}
	}
	return fmt.Errorf("outbox message %s not found", id)
}

func (s *InMemoryStore) Close() error {
	return nil
}
