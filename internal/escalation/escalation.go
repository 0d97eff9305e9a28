// Package escalation derives a session's cumulative risk level from its full
// history of screening results and assistant turns.
//
// Evaluate is a pure function: the same session always yields the same
// Decision, so a session reloaded from storage re-derives its state exactly.
package escalation

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/BTreeMap/CampusCare/internal/models"
)

// watchLimit is the number of WATCH events that escalates a session.
const watchLimit = 2

// SafetyData supplies the fixed crisis payload attached to an escalated session.
type SafetyData interface {
	EmergencyResources() []models.EmergencyResource
	SafetyNotice() models.SafetyNotice
}

type eventKind int

const (
	eventNone eventKind = iota
	eventWatch
	eventEscalate
)

type event struct {
	at      time.Time
	kind    eventKind
	trigger string
}

// Evaluate replays the session history in chronological order and returns the
// resulting Decision.
func Evaluate(session *models.Session, safety SafetyData) models.Decision {
	d := models.Decision{SessionID: session.ID, RiskLevel: models.RiskNormal}

	for _, ev := range timeline(session) {
		switch ev.kind {
		case eventWatch:
			d.WatchEvents++
			d.Triggers = append(d.Triggers, ev.trigger)
			if d.RiskLevel == models.RiskEscalated {
				continue
			}
			if d.WatchEvents >= watchLimit {
				d.RiskLevel = models.RiskEscalated
			} else {
				d.RiskLevel = models.RiskWatch
			}
		case eventEscalate:
			d.Triggers = append(d.Triggers, ev.trigger)
			d.RiskLevel = models.RiskEscalated
		}
	}

	if d.RiskLevel == models.RiskEscalated {
		d.CounsellorShareEnabled = true
		d.EmergencyResources = safety.EmergencyResources()
	}
	if len(session.Results) > 0 && latestResult(session).SafetyNoticeRequired {
		notice := safety.SafetyNotice()
		d.SafetyNotice = &notice
	}
	return d
}

// timeline merges screening results and assistant turns into one ordered
// event list. Results sort before turns on equal timestamps.
func timeline(session *models.Session) []event {
	events := make([]event, 0, len(session.Results)+len(session.Turns))
	for _, r := range session.Results {
		events = append(events, resultEvent(r))
	}
	for _, t := range session.Turns {
		if t.Role != models.RoleAssistant || t.Priority == nil {
			continue
		}
		events = append(events, turnEvent(t))
	}
	sort.SliceStable(events, func(i, j int) bool { return events[i].at.Before(events[j].at) })
	return events
}

// resultEvent escalates only on the safety threshold. A concerning band below
// the threshold counts as one WATCH event.
func resultEvent(r models.ScreeningResult) event {
	ev := event{at: r.CompletedAt}
	switch {
	case r.SafetyNoticeRequired:
		ev.kind = eventEscalate
		ev.trigger = fmt.Sprintf("screening %s crossed safety threshold (%d/%d)", r.InstrumentID, r.Score, r.MaxScore)
	case r.Band.Urgency == models.UrgencyWarning, r.Band.Urgency == models.UrgencyDestructive:
		ev.kind = eventWatch
		ev.trigger = fmt.Sprintf("screening %s band %s", r.InstrumentID, r.Band.Label)
	}
	return ev
}

func turnEvent(t models.ChatTurn) event {
	ev := event{at: t.CreatedAt}
	switch *t.Priority {
	case models.PriorityHigh:
		ev.kind = eventEscalate
		ev.trigger = "message priority high"
	case models.PriorityMedium:
		ev.kind = eventWatch
		ev.trigger = "message priority medium"
	}
	return ev
}

// latestResult returns the result with the latest completion time. Ties go to
// the later append.
func latestResult(session *models.Session) models.ScreeningResult {
	latest := session.Results[0]
	for _, r := range session.Results[1:] {
		if !r.CompletedAt.Before(latest.CompletedAt) {
			latest = r
		}
	}
	return latest
}

// ContextSummary renders the session's screening history for the
// text-generation prompt. It never includes individual responses.
func ContextSummary(session *models.Session) string {
	if len(session.Results) == 0 {
		return ""
	}
	results := make([]models.ScreeningResult, len(session.Results))
	copy(results, session.Results)
	sort.SliceStable(results, func(i, j int) bool { return results[i].CompletedAt.Before(results[j].CompletedAt) })

	parts := make([]string, 0, len(results))
	for _, r := range results {
		parts = append(parts, fmt.Sprintf("%s: %s (%d/%d)", r.InstrumentName, r.Band.Label, r.Score, r.MaxScore))
	}
	return fmt.Sprintf("%s. Most recent result: %s.", strings.Join(parts, "; "), results[len(results)-1].Band.Label)
}

// Controller appends records to a session and re-evaluates it. It keeps no
// per-session state; callers serialize access to a given session.
type Controller struct {
	safety SafetyData
}

// NewController creates a Controller backed by the given safety data.
func NewController(safety SafetyData) *Controller {
	return &Controller{safety: safety}
}

// Evaluate returns the current Decision for session.
func (c *Controller) Evaluate(session *models.Session) models.Decision {
	return Evaluate(session, c.safety)
}

// AppendResult records a screening result and returns the updated Decision.
func (c *Controller) AppendResult(session *models.Session, result models.ScreeningResult) models.Decision {
	before := Evaluate(session, c.safety)
	session.AppendResult(result)
	after := Evaluate(session, c.safety)
	logTransition(session.ID, before, after)
	return after
}

// AppendTurns records a user turn and its assistant reply together and
// returns the updated Decision.
func (c *Controller) AppendTurns(session *models.Session, user, assistant models.ChatTurn) models.Decision {
	before := Evaluate(session, c.safety)
	session.AppendTurn(user)
	session.AppendTurn(assistant)
	after := Evaluate(session, c.safety)
	logTransition(session.ID, before, after)
	return after
}

func logTransition(sessionID string, before, after models.Decision) {
	if before.RiskLevel == after.RiskLevel {
		slog.Debug("Controller: risk level unchanged", "session_id", sessionID, "risk_level", after.RiskLevel, "watch_events", after.WatchEvents)
		return
	}
	slog.Info("Controller: risk level changed", "session_id", sessionID, "from", before.RiskLevel, "to", after.RiskLevel, "watch_events", after.WatchEvents)
}
