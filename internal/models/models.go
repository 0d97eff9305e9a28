// Package models defines the core data structures for CampusCare.
//
// It includes screening instruments, screening results, chat turns, sessions and
// escalation decisions, which are shared across the engine and its adapters.
package models

import (
	"time"
)

// Priority is the crisis urgency classification of a single free-text message.
type Priority string

const (
	// PriorityLow indicates no risk signal was found.
	PriorityLow Priority = "low"
	// PriorityMedium indicates general distress language.
	PriorityMedium Priority = "medium"
	// PriorityHigh indicates crisis language (suicidal ideation, self-harm, acute panic).
	PriorityHigh Priority = "high"
)

// Rank orders priorities so they can be compared. Unknown values rank as medium.
func (p Priority) Rank() int {
	switch p {
	case PriorityLow:
		return 0
	case PriorityHigh:
		return 2
	default:
		return 1
	}
}

// MaxPriority returns the more urgent of two priorities.
func MaxPriority(a, b Priority) Priority {
	if b.Rank() > a.Rank() {
		return b
	}
	return a
}

// IsValidPriority checks if the given priority is one of the three known levels.
func IsValidPriority(p Priority) bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	default:
		return false
	}
}

// RiskLevel is the cumulative escalation state of a session.
type RiskLevel string

const (
	// RiskNormal is the initial state of every session.
	RiskNormal RiskLevel = "NORMAL"
	// RiskWatch indicates one medium-concern event has been observed.
	RiskWatch RiskLevel = "WATCH"
	// RiskEscalated indicates a counsellor must be looped in. Sticky for the session.
	RiskEscalated RiskLevel = "ESCALATED"
)

// Urgency is the concern tag attached to a severity band.
type Urgency string

const (
	// UrgencySuccess marks low-concern bands.
	UrgencySuccess Urgency = "success"
	// UrgencyWarning marks medium-concern bands.
	UrgencyWarning Urgency = "warning"
	// UrgencyDestructive marks high-concern bands.
	UrgencyDestructive Urgency = "destructive"
)

// IsValidUrgency checks if the given urgency tag is supported.
func IsValidUrgency(u Urgency) bool {
	switch u {
	case UrgencySuccess, UrgencyWarning, UrgencyDestructive:
		return true
	default:
		return false
	}
}

// Tier is the recommendation tier selected for a band.
type Tier string

const (
	TierMaintenance Tier = "maintenance"
	TierSupport     Tier = "support"
	TierUrgent      Tier = "urgent"
)

// Role identifies the author of a chat turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Response values on the fixed 4-point ordinal scale.
const (
	MinResponseValue = 0
	MaxResponseValue = 3
)

// ResponseLabels are the answer captions for each response value, in order.
var ResponseLabels = [...]string{"Not at all", "Several days", "More than half the days", "Nearly every day"}

// Band is a closed score range [Low, High] with a severity label.
type Band struct {
	Low     int     `json:"low" yaml:"low"`
	High    int     `json:"high" yaml:"high"`
	Label   string  `json:"label" yaml:"label"`
	Urgency Urgency `json:"urgency" yaml:"urgency"`
}

// Contains reports whether score lies inside the band.
func (b Band) Contains(score int) bool {
	return score >= b.Low && score <= b.High
}

// Instrument is an immutable screening questionnaire definition.
type Instrument struct {
	ID              string   `json:"id" yaml:"id"`
	Name            string   `json:"name" yaml:"name"`
	Description     string   `json:"description,omitempty" yaml:"description"`
	Questions       []string `json:"questions" yaml:"questions"`
	MaxScore        int      `json:"max_score" yaml:"max_score"`
	Bands           []Band   `json:"bands" yaml:"bands"`
	SafetyThreshold int      `json:"safety_threshold" yaml:"safety_threshold"`
}

// ResponseSet maps a 0-based question index to a response value.
type ResponseSet map[int]int

// ScreeningResult is created once per completed instrument pass and never mutated.
type ScreeningResult struct {
	ID                   string      `json:"id"`
	SessionID            string      `json:"session_id"`
	InstrumentID         string      `json:"instrument_id"`
	InstrumentName       string      `json:"instrument_name"`
	Score                int         `json:"score"`
	MaxScore             int         `json:"max_score"`
	Band                 Band        `json:"band"`
	Responses            ResponseSet `json:"responses"`
	SafetyNoticeRequired bool        `json:"safety_notice_required"`
	CompletedAt          time.Time   `json:"completed_at"`
}

// ChatTurn is a single message in a session. Priority is only set on assistant
// turns and carries the classification of the preceding user turn.
type ChatTurn struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Priority  *Priority `json:"priority,omitempty"`
	Degraded  bool      `json:"degraded,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Session is the append-only log of one logical conversation.
type Session struct {
	ID        string            `json:"id"`
	UserID    string            `json:"user_id"`
	CreatedAt time.Time         `json:"created_at"`
	Turns     []ChatTurn        `json:"turns"`
	Results   []ScreeningResult `json:"results"`
}

// NewSession creates an empty session.
func NewSession(id, userID string, createdAt time.Time) *Session {
	return &Session{
		ID:        id,
		UserID:    userID,
		CreatedAt: createdAt,
		Turns:     []ChatTurn{},
		Results:   []ScreeningResult{},
	}
}

// AppendTurn appends a chat turn to the session log.
func (s *Session) AppendTurn(t ChatTurn) {
	s.Turns = append(s.Turns, t)
}

// AppendResult appends a screening result to the session log.
func (s *Session) AppendResult(r ScreeningResult) {
	s.Results = append(s.Results, r)
}

// EmergencyResource is one entry of the fixed crisis contact list.
type EmergencyResource struct {
	Name   string `json:"name" yaml:"name"`
	Number string `json:"number,omitempty" yaml:"number"`
	Text   string `json:"text,omitempty" yaml:"text"`
}

// SafetyNotice is the self-harm notice surfaced when a screening crosses the safety threshold.
type SafetyNotice struct {
	Message  string              `json:"message" yaml:"message"`
	Contacts []EmergencyResource `json:"contacts" yaml:"contacts"`
}

// Recommendation is the guidance selected for a band.
type Recommendation struct {
	Tier  Tier     `json:"tier"`
	Items []string `json:"items"`
}

// Decision is the escalation verdict for a session at a point in time.
type Decision struct {
	SessionID              string              `json:"session_id"`
	RiskLevel              RiskLevel           `json:"risk_level"`
	CounsellorShareEnabled bool                `json:"counsellor_share_enabled"`
	EmergencyResources     []EmergencyResource `json:"emergency_resources,omitempty"`
	SafetyNotice           *SafetyNotice       `json:"safety_notice,omitempty"`
	WatchEvents            int                 `json:"watch_events"`
	Triggers               []string            `json:"triggers,omitempty"`
}

// CounsellorShare is the record created when a student forwards a session to the counselling team.
type CounsellorShare struct {
	ID                   string     `json:"id"`
	SessionID            string     `json:"session_id"`
	UserID               string     `json:"user_id"`
	RiskLevel            RiskLevel  `json:"risk_level"`
	RequiresIntervention bool       `json:"requires_intervention"`
	Transcript           []ChatTurn `json:"transcript"`
	ContextSummary       string     `json:"context_summary,omitempty"`
	CreatedAt            time.Time  `json:"created_at"`
}
