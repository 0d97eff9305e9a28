// Package support runs the student-facing operations of CampusCare: sessions,
// screenings, chat messages and counsellor shares.
//
// The Service owns the integration concerns around the risk engine. It
// serializes appends per session and persists every record before it is
// served. It calls the text-generation collaborator under a deadline and
// applies the fallback rules when that call fails. Classification and
// escalation are computed before the generation call, so an outage never
// lowers the reported risk. A store outage never hides a result from the
// student: rejected writes are queued and retried in order.
package support

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/BTreeMap/CampusCare/internal/escalation"
	"github.com/BTreeMap/CampusCare/internal/genai"
	"github.com/BTreeMap/CampusCare/internal/metrics"
	"github.com/BTreeMap/CampusCare/internal/models"
	"github.com/BTreeMap/CampusCare/internal/notify"
	"github.com/BTreeMap/CampusCare/internal/registry"
	"github.com/BTreeMap/CampusCare/internal/screening"
	"github.com/BTreeMap/CampusCare/internal/store"
	"github.com/google/uuid"
)

// DefaultGenerationTimeout bounds a single text-generation call.
const DefaultGenerationTimeout = 30 * time.Second

// ScreeningOutcome is returned by SubmitScreening.
type ScreeningOutcome struct {
	Result         models.ScreeningResult `json:"result"`
	Recommendation models.Recommendation  `json:"recommendation"`
	SafetyNotice   *models.SafetyNotice   `json:"safety_notice,omitempty"`
	Decision       models.Decision        `json:"decision"`
	// PersistencePending is set when the store rejected the result and the
	// write is queued for retry.
	PersistencePending bool `json:"persistence_pending,omitempty"`
}

// MessageOutcome is returned by SubmitMessage.
//
// Priority is the value reported to the client. When Degraded is set it is
// raised to at least medium and can differ from ClassifiedPriority, which is
// the lexicon result recorded in the session and used by Decision.
type MessageOutcome struct {
	Response           string                     `json:"response"`
	Priority           models.Priority            `json:"priority"`
	ClassifiedPriority models.Priority            `json:"classified_priority"`
	EmergencyResources []models.EmergencyResource `json:"emergency_resources,omitempty"`
	Degraded           bool                       `json:"degraded,omitempty"`
	PersistencePending bool                       `json:"persistence_pending,omitempty"`
	Decision           models.Decision            `json:"decision"`
}

// SessionView is a session together with its current decision.
type SessionView struct {
	Session  *models.Session `json:"session"`
	Decision models.Decision `json:"decision"`
}

// Option configures a Service.
type Option func(*Service)

// WithGenerationTimeout overrides DefaultGenerationTimeout.
func WithGenerationTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.generationTimeout = d
		}
	}
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithSessionCacheSize overrides DefaultSessionCacheSize.
func WithSessionCacheSize(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.cacheSize = n
		}
	}
}

// WithCounsellorAlerts enables outbox alerts for counsellor shares.
func WithCounsellorAlerts(enabled bool) Option {
	return func(s *Service) { s.alerts = enabled }
}

// Service implements the session operations on top of the engine.
type Service struct {
	store      store.Store
	registry   *registry.Registry
	generator  genai.Generator
	controller *escalation.Controller

	generationTimeout time.Duration
	alerts            bool
	cacheSize         int
	now               func() time.Time

	sessions *sessionCache

	mu      sync.Mutex
	locks   map[string]*sessionLock
	pending map[string][]pendingWrite
}

// NewService creates a Service.
func NewService(st store.Store, reg *registry.Registry, gen genai.Generator, opts ...Option) *Service {
	s := &Service{
		store:             st,
		registry:          reg,
		generator:         gen,
		controller:        escalation.NewController(reg),
		generationTimeout: DefaultGenerationTimeout,
		cacheSize:         DefaultSessionCacheSize,
		now:               time.Now,
		locks:             make(map[string]*sessionLock),
		pending:           make(map[string][]pendingWrite),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.sessions = newSessionCache(s.cacheSize)
	slog.Debug("Service created", "generation_timeout", s.generationTimeout, "alerts", s.alerts, "session_cache", s.cacheSize)
	return s
}

// Registry returns the config registry backing the service.
func (s *Service) Registry() *registry.Registry {
	return s.registry
}

// loadSession returns the cached session or loads it from the store, replaying
// any writes still queued for it. The caller must hold the session lock.
func (s *Service) loadSession(id string) (*models.Session, error) {
	if sess, ok := s.sessions.get(id); ok {
		return sess, nil
	}
	sess, err := s.store.GetSession(id)
	if err != nil {
		if errors.Is(err, models.ErrSessionNotFound) {
			return nil, err
		}
		return nil, &models.ExternalServiceError{Service: "store", Op: "GetSession", Err: err}
	}
	queued := s.pendingFor(id)
	for _, w := range queued {
		w.applyTo(sess)
	}
	s.sessions.put(id, sess)
	slog.Debug("Service.loadSession: session loaded from store", "session_id", id, "results", len(sess.Results), "turns", len(sess.Turns), "queued", len(queued))
	return sess, nil
}

// CreateSession starts a new empty session.
func (s *Service) CreateSession(ctx context.Context, userID string) (*models.Session, error) {
	sess := models.NewSession(uuid.NewString(), userID, s.now().UTC())
	if err := s.store.CreateSession(*sess); err != nil {
		slog.Error("Service.CreateSession: store failed", "error", err)
		return nil, &models.ExternalServiceError{Service: "store", Op: "CreateSession", Err: err}
	}
	s.sessions.put(sess.ID, sess)
	slog.Info("Service.CreateSession: session created", "session_id", sess.ID)
	return cloneSession(sess), nil
}

// GetSession returns the session and its current decision.
func (s *Service) GetSession(ctx context.Context, id string) (*SessionView, error) {
	defer s.lockSession(id)()
	sess, err := s.loadSession(id)
	if err != nil {
		return nil, err
	}
	return &SessionView{Session: cloneSession(sess), Decision: s.controller.Evaluate(sess)}, nil
}

// Summary returns the screening context summary for a session.
func (s *Service) Summary(ctx context.Context, id string) (string, error) {
	defer s.lockSession(id)()
	sess, err := s.loadSession(id)
	if err != nil {
		return "", err
	}
	return escalation.ContextSummary(sess), nil
}

// SubmitScreening scores a completed questionnaire, persists the result and
// re-evaluates the session. A store failure still returns the full outcome
// with PersistencePending set.
func (s *Service) SubmitScreening(ctx context.Context, sessionID, instrumentID string, responses models.ResponseSet) (*ScreeningOutcome, error) {
	snap := s.registry.Current()
	inst, err := snap.Catalog.Get(instrumentID)
	if err != nil {
		return nil, err
	}

	defer s.lockSession(sessionID)()
	sess, err := s.loadSession(sessionID)
	if err != nil {
		return nil, err
	}

	result, err := screening.Evaluate(inst, sessionID, responses, s.now().UTC())
	if err != nil {
		slog.Debug("Service.SubmitScreening: invalid responses", "session_id", sessionID, "instrument", instrumentID, "error", err)
		return nil, err
	}
	persistErr := s.persist(sessionID, resultWrite(result))

	before := s.controller.Evaluate(sess).RiskLevel
	decision := s.controller.AppendResult(sess, result)
	metrics.RecordScreening(result)
	metrics.RecordTransition(before, decision.RiskLevel)

	slog.Info("Service.SubmitScreening: result recorded",
		"session_id", sessionID,
		"instrument", inst.ID,
		"band", result.Band.Label,
		"safety_notice", result.SafetyNoticeRequired,
		"risk_level", decision.RiskLevel,
		"persisted", persistErr == nil)

	return &ScreeningOutcome{
		Result:             result,
		Recommendation:     screening.Recommend(result.Band, snap.Catalog.Recommendations()),
		SafetyNotice:       screening.SafetyNoticeFor(inst, result.Score, snap.Lexicon.SafetyNotice()),
		Decision:           decision,
		PersistencePending: persistErr != nil,
	}, nil
}

// SubmitMessage classifies a student message, asks the generator for a reply
// and records both turns. A generation failure yields the fallback reply with
// priority at least medium; it is never returned as an error.
func (s *Service) SubmitMessage(ctx context.Context, sessionID, text, language string) (*MessageOutcome, error) {
	if strings.TrimSpace(text) == "" {
		return nil, models.ErrEmptyMessage
	}
	lex := s.registry.Lexicon()

	defer s.lockSession(sessionID)()
	sess, err := s.loadSession(sessionID)
	if err != nil {
		return nil, err
	}

	match := lex.Match(text)
	priority := match.Priority
	slog.Debug("Service.SubmitMessage: message classified", "session_id", sessionID, "priority", priority, "matched", match.Term != "")

	req := genai.Request{
		Message:        text,
		History:        genai.HistoryFromTurns(sess.Turns),
		ContextSummary: escalation.ContextSummary(sess),
		Language:       language,
		Resources:      lex.EmergencyResources(),
	}
	userTurn := models.ChatTurn{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Role:      models.RoleUser,
		Content:   text,
		CreatedAt: s.now().UTC(),
	}

	reply, degraded := s.generate(ctx, sessionID, req)
	if degraded {
		reply = lex.FallbackResponse()
	}

	assistantTurn := models.ChatTurn{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Role:      models.RoleAssistant,
		Content:   reply,
		Priority:  &priority,
		Degraded:  degraded,
		CreatedAt: s.now().UTC(),
	}

	persistErr := s.persist(sessionID, turnWrite(userTurn), turnWrite(assistantTurn))
	before := s.controller.Evaluate(sess).RiskLevel
	decision := s.controller.AppendTurns(sess, userTurn, assistantTurn)
	metrics.RecordMessage(priority)
	metrics.RecordTransition(before, decision.RiskLevel)

	reported := priority
	if degraded {
		reported = models.MaxPriority(priority, models.PriorityMedium)
	}
	out := &MessageOutcome{
		Response:           reply,
		Priority:           reported,
		ClassifiedPriority: priority,
		Degraded:           degraded,
		PersistencePending: persistErr != nil,
		Decision:           decision,
	}
	if priority == models.PriorityHigh || decision.RiskLevel == models.RiskEscalated {
		out.EmergencyResources = lex.EmergencyResources()
	}
	return out, nil
}

// generate calls the generator under the configured deadline. It reports
// degraded when the call failed or returned nothing usable.
func (s *Service) generate(ctx context.Context, sessionID string, req genai.Request) (string, bool) {
	if s.generator == nil {
		slog.Warn("Service.SubmitMessage: no generator configured, using fallback", "session_id", sessionID)
		return "", true
	}
	genCtx, cancel := context.WithTimeout(ctx, s.generationTimeout)
	defer cancel()

	start := time.Now()
	reply, err := s.generator.Generate(genCtx, req)
	if err == nil && strings.TrimSpace(reply) == "" {
		err = genai.ErrEmptyResponse
	}
	metrics.RecordGeneration(time.Since(start), err)
	if err != nil {
		extErr := &models.ExternalServiceError{Service: "genai", Op: "Generate", Err: err}
		slog.Warn("Service.SubmitMessage: generation failed, using fallback", "session_id", sessionID, "error", extErr)
		return "", true
	}
	return reply, false
}

// ShareWithCounsellor forwards the session transcript to the counselling team.
// It fails with ErrShareNotPermitted until the session is escalated.
func (s *Service) ShareWithCounsellor(ctx context.Context, sessionID string) (*models.CounsellorShare, error) {
	defer s.lockSession(sessionID)()
	sess, err := s.loadSession(sessionID)
	if err != nil {
		return nil, err
	}

	decision := s.controller.Evaluate(sess)
	if !decision.CounsellorShareEnabled {
		slog.Debug("Service.ShareWithCounsellor: share gate closed", "session_id", sessionID, "risk_level", decision.RiskLevel)
		return nil, fmt.Errorf("%w: risk level is %s", models.ErrShareNotPermitted, decision.RiskLevel)
	}

	share := models.CounsellorShare{
		ID:                   uuid.NewString(),
		SessionID:            sess.ID,
		UserID:               sess.UserID,
		RiskLevel:            decision.RiskLevel,
		RequiresIntervention: requiresIntervention(sess),
		Transcript:           append([]models.ChatTurn(nil), sess.Turns...),
		ContextSummary:       escalation.ContextSummary(sess),
		CreatedAt:            s.now().UTC(),
	}
	if err := s.store.SaveCounsellorShare(share); err != nil {
		slog.Error("Service.ShareWithCounsellor: store failed", "session_id", sessionID, "error", err)
		return nil, &models.ExternalServiceError{Service: "store", Op: "SaveCounsellorShare", Err: err}
	}
	metrics.RecordShare()
	slog.Info("Service.ShareWithCounsellor: session shared", "session_id", sessionID, "share_id", share.ID, "requires_intervention", share.RequiresIntervention)

	if s.alerts {
		if _, err := notify.Enqueue(s.store, notify.AlertFromShare(share)); err != nil {
			slog.Error("Service.ShareWithCounsellor: alert not queued", "session_id", sessionID, "share_id", share.ID, "error", err)
		}
	}
	return &share, nil
}

// ListShares returns the counsellor shares recorded for a session.
func (s *Service) ListShares(ctx context.Context, sessionID string) ([]models.CounsellorShare, error) {
	defer s.lockSession(sessionID)()
	if _, err := s.loadSession(sessionID); err != nil {
		return nil, err
	}
	shares, err := s.store.ListCounsellorShares(sessionID)
	if err != nil {
		return nil, &models.ExternalServiceError{Service: "store", Op: "ListCounsellorShares", Err: err}
	}
	return shares, nil
}

// requiresIntervention reports whether the session holds a direct crisis
// signal: a high-priority message or a screening over the safety threshold.
func requiresIntervention(sess *models.Session) bool {
	for _, t := range sess.Turns {
		if t.Role == models.RoleAssistant && t.Priority != nil && *t.Priority == models.PriorityHigh {
			return true
		}
	}
	for _, r := range sess.Results {
		if r.SafetyNoticeRequired {
			return true
		}
	}
	return false
}

func cloneSession(sess *models.Session) *models.Session {
	out := models.NewSession(sess.ID, sess.UserID, sess.CreatedAt)
	out.Turns = append(out.Turns, sess.Turns...)
	out.Results = append(out.Results, sess.Results...)
	return out
}
