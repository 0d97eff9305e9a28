// Package screening scores questionnaire responses and maps scores to severity
// bands, recommendation tiers and the self-harm safety notice.
//
// Every function in this package is pure: no I/O, no shared state.
package screening

import (
	"sort"
	"time"

	"github.com/BTreeMap/CampusCare/internal/models"
	"github.com/google/uuid"
)

// Reference scale for the safety threshold: 10 points on a 0-27 instrument.
const (
	referenceThreshold = 10
	referenceMaxScore  = 27
)

// Recommendations holds the ordered guidance strings for each tier.
type Recommendations map[models.Tier][]string

// DerivedSafetyThreshold scales the 10-of-27 cutoff to an instrument with a
// different range, rounding up so the fraction is never below 10/27.
func DerivedSafetyThreshold(maxScore int) int {
	if maxScore <= 0 {
		return 0
	}
	return (maxScore*referenceThreshold + referenceMaxScore - 1) / referenceMaxScore
}

// SafetyThreshold returns the configured threshold or the derived one.
func SafetyThreshold(inst models.Instrument) int {
	if inst.SafetyThreshold > 0 {
		return inst.SafetyThreshold
	}
	return DerivedSafetyThreshold(inst.MaxScore)
}

// CrossesSafetyThreshold reports whether score requires the self-harm safety notice.
func CrossesSafetyThreshold(inst models.Instrument, score int) bool {
	return score >= SafetyThreshold(inst)
}

// Score sums a complete response set.
//
// Missing answers are never treated as zero: an incomplete set is rejected so
// that risk is not under-reported.
func Score(inst models.Instrument, responses models.ResponseSet) (int, error) {
	n := len(inst.Questions)

	var missing, unexpected []int
	for i := 0; i < n; i++ {
		if _, ok := responses[i]; !ok {
			missing = append(missing, i)
		}
	}
	for idx := range responses {
		if idx < 0 || idx >= n {
			unexpected = append(unexpected, idx)
		}
	}
	if len(missing) > 0 || len(unexpected) > 0 {
		sort.Ints(unexpected)
		return 0, &models.IncompleteResponseError{InstrumentID: inst.ID, Missing: missing, Unexpected: unexpected}
	}

	total := 0
	for i := 0; i < n; i++ {
		v := responses[i]
		if v < models.MinResponseValue || v > models.MaxResponseValue {
			return 0, &models.InvalidResponseValueError{Index: i, Value: v}
		}
		total += v
	}
	return total, nil
}

// Classify returns the unique band containing score.
func Classify(inst models.Instrument, score int) (models.Band, error) {
	if score < 0 || score > inst.MaxScore {
		return models.Band{}, &models.ScoreOutOfRangeError{InstrumentID: inst.ID, Score: score, MaxScore: inst.MaxScore}
	}
	for _, b := range inst.Bands {
		if b.Contains(score) {
			return b, nil
		}
	}
	// Unreachable for a catalog-validated instrument.
	return models.Band{}, &models.ScoreOutOfRangeError{InstrumentID: inst.ID, Score: score, MaxScore: inst.MaxScore}
}

// TierFor maps a band urgency to its recommendation tier.
// Unknown urgencies map to the urgent tier.
func TierFor(u models.Urgency) models.Tier {
	switch u {
	case models.UrgencySuccess:
		return models.TierMaintenance
	case models.UrgencyWarning:
		return models.TierSupport
	default:
		return models.TierUrgent
	}
}

// Recommend selects the recommendation tier for band and attaches its guidance.
func Recommend(band models.Band, recs Recommendations) models.Recommendation {
	tier := TierFor(band.Urgency)
	items := make([]string, len(recs[tier]))
	copy(items, recs[tier])
	return models.Recommendation{Tier: tier, Items: items}
}

// SafetyNoticeFor returns the safety notice when score crosses the instrument's
// threshold, or nil otherwise. The band label plays no part in the decision.
func SafetyNoticeFor(inst models.Instrument, score int, notice models.SafetyNotice) *models.SafetyNotice {
	if !CrossesSafetyThreshold(inst, score) {
		return nil
	}
	contacts := make([]models.EmergencyResource, len(notice.Contacts))
	copy(contacts, notice.Contacts)
	return &models.SafetyNotice{Message: notice.Message, Contacts: contacts}
}

// Evaluate scores and classifies a response set into a new ScreeningResult.
func Evaluate(inst models.Instrument, sessionID string, responses models.ResponseSet, now time.Time) (models.ScreeningResult, error) {
	score, err := Score(inst, responses)
	if err != nil {
		return models.ScreeningResult{}, err
	}
	band, err := Classify(inst, score)
	if err != nil {
		return models.ScreeningResult{}, err
	}

	copied := make(models.ResponseSet, len(responses))
	for k, v := range responses {
		copied[k] = v
	}

	return models.ScreeningResult{
		ID:                   uuid.NewString(),
		SessionID:            sessionID,
		InstrumentID:         inst.ID,
		InstrumentName:       inst.Name,
		Score:                score,
		MaxScore:             inst.MaxScore,
		Band:                 band,
		Responses:            copied,
		SafetyNoticeRequired: CrossesSafetyThreshold(inst, score),
		CompletedAt:          now,
	}, nil
}
