package support

import (
	"context"
	"log/slog"
	"time"

	"github.com/BTreeMap/CampusCare/internal/metrics"
	"github.com/BTreeMap/CampusCare/internal/models"
	"github.com/BTreeMap/CampusCare/internal/store"
)

// DefaultPendingRetryInterval is how often RunPendingWriter retries failed writes.
const DefaultPendingRetryInterval = 15 * time.Second

// pendingWrite is one session record. Exactly one field is set.
type pendingWrite struct {
	result *models.ScreeningResult
	turn   *models.ChatTurn
}

func resultWrite(r models.ScreeningResult) pendingWrite { return pendingWrite{result: &r} }

func turnWrite(t models.ChatTurn) pendingWrite { return pendingWrite{turn: &t} }

func (w pendingWrite) op() string {
	if w.result != nil {
		return "AppendScreeningResult"
	}
	return "AppendChatTurn"
}

func (w pendingWrite) write(st store.Store) error {
	if w.result != nil {
		return st.AppendScreeningResult(*w.result)
	}
	return st.AppendChatTurn(*w.turn)
}

func (w pendingWrite) applyTo(sess *models.Session) {
	if w.result != nil {
		sess.AppendResult(*w.result)
		return
	}
	sess.AppendTurn(*w.turn)
}

// persist writes records for one session in order, after any records of that
// session still waiting from an earlier failure. Records the store rejects
// stay queued until the next append or FlushPending. The caller must hold the
// session lock.
func (s *Service) persist(sessionID string, writes ...pendingWrite) error {
	s.mu.Lock()
	queue := append(append([]pendingWrite(nil), s.pending[sessionID]...), writes...)
	s.mu.Unlock()

	for i, w := range queue {
		if err := w.write(s.store); err != nil {
			s.mu.Lock()
			s.pending[sessionID] = queue[i:]
			n := s.pendingCountLocked()
			s.mu.Unlock()
			metrics.SetPendingWrites(n)
			extErr := &models.ExternalServiceError{Service: "store", Op: w.op(), Err: err}
			slog.Error("Service.persist: write queued for retry", "session_id", sessionID, "queued", len(queue)-i, "error", extErr)
			return extErr
		}
	}

	s.mu.Lock()
	_, had := s.pending[sessionID]
	delete(s.pending, sessionID)
	n := s.pendingCountLocked()
	s.mu.Unlock()
	if had {
		metrics.SetPendingWrites(n)
		slog.Info("Service.persist: queued writes flushed", "session_id", sessionID)
	}
	return nil
}

// pendingFor returns the queued records of one session.
func (s *Service) pendingFor(sessionID string) []pendingWrite {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]pendingWrite(nil), s.pending[sessionID]...)
}

func (s *Service) pendingCountLocked() int {
	n := 0
	for _, q := range s.pending {
		n += len(q)
	}
	return n
}

// PendingWrites returns the number of records waiting for a store retry.
func (s *Service) PendingWrites() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pendingCountLocked()
}

// FlushPending retries every queued write and returns how many remain.
func (s *Service) FlushPending(ctx context.Context) int {
	s.mu.Lock()
	ids := make([]string, 0, len(s.pending))
	for id := range s.pending {
		ids = append(ids, id)
	}
	s.mu.Unlock()

	for _, id := range ids {
		if ctx.Err() != nil {
			break
		}
		unlock := s.lockSession(id)
		_ = s.persist(id)
		unlock()
	}
	return s.PendingWrites()
}

// RunPendingWriter retries queued writes every interval until ctx is done,
// then makes one last attempt.
func (s *Service) RunPendingWriter(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultPendingRetryInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			if n := s.FlushPending(context.Background()); n > 0 {
				slog.Error("Service.RunPendingWriter: writes lost at shutdown", "pending", n)
			}
			return
		case <-ticker.C:
			if n := s.FlushPending(ctx); n > 0 {
				slog.Warn("Service.RunPendingWriter: store still rejecting writes", "pending", n)
			}
		}
	}
}
