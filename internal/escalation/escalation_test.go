package escalation

import (
	"testing"
	"time"

	"github.com/BTreeMap/CampusCare/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSafety struct{}

func (fakeSafety) EmergencyResources() []models.EmergencyResource {
	return []models.EmergencyResource{
		{Name: "National Suicide Prevention", Number: "988"},
		{Name: "Crisis Text Line", Text: "HOME to 741741"},
		{Name: "Emergency Services", Number: "112"},
	}
}

func (fakeSafety) SafetyNotice() models.SafetyNotice {
	return models.SafetyNotice{Message: "notice"}
}

var t0 = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

func result(label string, urgency models.Urgency, score int, notice bool, at time.Time) models.ScreeningResult {
	return models.ScreeningResult{
		ID:                   "r-" + label,
		InstrumentID:         "phq9",
		InstrumentName:       "PHQ-9",
		Score:                score,
		MaxScore:             27,
		Band:                 models.Band{Label: label, Urgency: urgency},
		SafetyNoticeRequired: notice,
		CompletedAt:          at,
	}
}

func turns(p models.Priority, at time.Time) (models.ChatTurn, models.ChatTurn) {
	user := models.ChatTurn{ID: "u", Role: models.RoleUser, Content: "msg", CreatedAt: at}
	assistant := models.ChatTurn{ID: "a", Role: models.RoleAssistant, Content: "reply", Priority: &p, CreatedAt: at}
	return user, assistant
}

func newSession() *models.Session {
	return models.NewSession("s1", "u1", t0)
}

func TestEvaluateEmptySessionIsNormal(t *testing.T) {
	d := Evaluate(newSession(), fakeSafety{})
	assert.Equal(t, models.RiskNormal, d.RiskLevel)
	assert.False(t, d.CounsellorShareEnabled)
	assert.Empty(t, d.EmergencyResources)
	assert.Nil(t, d.SafetyNotice)
}

// Severe screening with the safety threshold crossed escalates immediately.
func TestSevereScreeningEscalates(t *testing.T) {
	c := NewController(fakeSafety{})
	s := newSession()
	d := c.AppendResult(s, result("Severe Depression", models.UrgencyDestructive, 27, true, t0))

	assert.Equal(t, models.RiskEscalated, d.RiskLevel)
	assert.True(t, d.CounsellorShareEnabled)
	assert.Len(t, d.EmergencyResources, 3)
	require.NotNil(t, d.SafetyNotice)
	assert.Len(t, s.Results, 1)
}

// A destructive band below the safety threshold is a single WATCH event.
func TestDestructiveBandBelowThresholdIsWatch(t *testing.T) {
	c := NewController(fakeSafety{})
	s := newSession()
	d := c.AppendResult(s, result("Moderate Depression", models.UrgencyDestructive, 12, false, t0))

	assert.Equal(t, models.RiskWatch, d.RiskLevel)
	assert.Equal(t, 1, d.WatchEvents)
	assert.False(t, d.CounsellorShareEnabled)
	assert.Nil(t, d.SafetyNotice)

	d = c.AppendResult(s, result("Moderate Depression", models.UrgencyDestructive, 13, false, t0.Add(time.Minute)))
	assert.Equal(t, models.RiskEscalated, d.RiskLevel)
}

// A minimal screening leaves the session untouched.
func TestMinimalScreeningStaysNormal(t *testing.T) {
	c := NewController(fakeSafety{})
	d := c.AppendResult(newSession(), result("Minimal Depression", models.UrgencySuccess, 0, false, t0))
	assert.Equal(t, models.RiskNormal, d.RiskLevel)
	assert.Nil(t, d.SafetyNotice)
	assert.Zero(t, d.WatchEvents)
}

// A single high-priority message opens the counsellor share.
func TestHighPriorityMessageEscalates(t *testing.T) {
	c := NewController(fakeSafety{})
	s := newSession()
	u, a := turns(models.PriorityHigh, t0)
	d := c.AppendTurns(s, u, a)

	assert.Equal(t, models.RiskEscalated, d.RiskLevel)
	assert.True(t, d.CounsellorShareEnabled)
	assert.NotEmpty(t, d.EmergencyResources)
	assert.Len(t, s.Turns, 2)
}

// Two medium-priority messages escalate through the WATCH rule.
func TestTwoMediumMessagesEscalate(t *testing.T) {
	c := NewController(fakeSafety{})
	s := newSession()

	u, a := turns(models.PriorityMedium, t0)
	d := c.AppendTurns(s, u, a)
	assert.Equal(t, models.RiskWatch, d.RiskLevel)
	assert.False(t, d.CounsellorShareEnabled)
	assert.Equal(t, 1, d.WatchEvents)

	u, a = turns(models.PriorityMedium, t0.Add(time.Minute))
	d = c.AppendTurns(s, u, a)
	assert.Equal(t, models.RiskEscalated, d.RiskLevel)
	assert.True(t, d.CounsellorShareEnabled)
	assert.Equal(t, 2, d.WatchEvents)
}

func TestWarningBandAndMediumMessageEscalate(t *testing.T) {
	c := NewController(fakeSafety{})
	s := newSession()
	d := c.AppendResult(s, result("Mild Depression", models.UrgencyWarning, 9, false, t0))
	assert.Equal(t, models.RiskWatch, d.RiskLevel)

	u, a := turns(models.PriorityMedium, t0.Add(time.Minute))
	d = c.AppendTurns(s, u, a)
	assert.Equal(t, models.RiskEscalated, d.RiskLevel)
}

func TestLowMessagesDoNotChangeState(t *testing.T) {
	c := NewController(fakeSafety{})
	s := newSession()
	for i := 0; i < 5; i++ {
		u, a := turns(models.PriorityLow, t0.Add(time.Duration(i)*time.Minute))
		d := c.AppendTurns(s, u, a)
		assert.Equal(t, models.RiskNormal, d.RiskLevel)
	}
}

func TestEscalationIsSticky(t *testing.T) {
	c := NewController(fakeSafety{})
	s := newSession()
	u, a := turns(models.PriorityHigh, t0)
	c.AppendTurns(s, u, a)

	for i := 1; i <= 3; i++ {
		u, a = turns(models.PriorityLow, t0.Add(time.Duration(i)*time.Minute))
		d := c.AppendTurns(s, u, a)
		assert.Equal(t, models.RiskEscalated, d.RiskLevel)
		assert.True(t, d.CounsellorShareEnabled)
	}
	d := c.AppendResult(s, result("Minimal Depression", models.UrgencySuccess, 0, false, t0.Add(time.Hour)))
	assert.Equal(t, models.RiskEscalated, d.RiskLevel)
}

func TestUserTurnsAreIgnored(t *testing.T) {
	s := newSession()
	p := models.PriorityHigh
	s.AppendTurn(models.ChatTurn{Role: models.RoleUser, Priority: &p, CreatedAt: t0})
	assert.Equal(t, models.RiskNormal, Evaluate(s, fakeSafety{}).RiskLevel)
}

// Recomputing from a reloaded history matches the incremental result.
func TestEvaluateIsPureOverHistory(t *testing.T) {
	c := NewController(fakeSafety{})
	s := newSession()
	c.AppendResult(s, result("Mild Depression", models.UrgencyWarning, 7, false, t0))
	u, a := turns(models.PriorityLow, t0.Add(time.Minute))
	incremental := c.AppendTurns(s, u, a)

	reloaded := models.NewSession(s.ID, s.UserID, s.CreatedAt)
	// Append out of order; evaluation sorts by timestamp.
	for _, turn := range s.Turns {
		reloaded.AppendTurn(turn)
	}
	for _, r := range s.Results {
		reloaded.AppendResult(r)
	}
	assert.Equal(t, incremental, Evaluate(reloaded, fakeSafety{}))
}

func TestSafetyNoticeFollowsLatestResult(t *testing.T) {
	s := newSession()
	s.AppendResult(result("Moderate Depression", models.UrgencyDestructive, 12, true, t0))
	s.AppendResult(result("Minimal Depression", models.UrgencySuccess, 2, false, t0.Add(time.Hour)))

	d := Evaluate(s, fakeSafety{})
	assert.Nil(t, d.SafetyNotice)
	assert.Equal(t, models.RiskEscalated, d.RiskLevel)
}

func TestContextSummary(t *testing.T) {
	s := newSession()
	assert.Equal(t, "", ContextSummary(s))

	s.AppendResult(models.ScreeningResult{
		InstrumentName: "GAD-7", Score: 6, MaxScore: 21,
		Band: models.Band{Label: "Mild Anxiety"}, CompletedAt: t0.Add(time.Hour),
		Responses: models.ResponseSet{0: 3},
	})
	s.AppendResult(models.ScreeningResult{
		InstrumentName: "PHQ-9", Score: 9, MaxScore: 27,
		Band: models.Band{Label: "Mild Depression"}, CompletedAt: t0,
	})

	assert.Equal(t,
		"PHQ-9: Mild Depression (9/27); GAD-7: Mild Anxiety (6/21). Most recent result: Mild Anxiety.",
		ContextSummary(s))
}
