package catalog

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/BTreeMap/CampusCare/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultCatalog(t *testing.T) {
	c, err := Default()
	require.NoError(t, err)

	list := c.List()
	require.Len(t, list, 2)
	assert.Equal(t, "phq9", list[0].ID)
	assert.Equal(t, "gad7", list[1].ID)

	phq, err := c.Get("phq9")
	require.NoError(t, err)
	assert.Equal(t, 27, phq.MaxScore)
	assert.Len(t, phq.Questions, 9)
	assert.Equal(t, 10, phq.SafetyThreshold)

	gad, err := c.Get("gad7")
	require.NoError(t, err)
	assert.Equal(t, 21, gad.MaxScore)
	assert.Equal(t, 8, gad.SafetyThreshold, "derived threshold")

	for _, tier := range []models.Tier{models.TierMaintenance, models.TierSupport, models.TierUrgent} {
		assert.NotEmpty(t, c.Recommendations()[tier], tier)
	}
}

// Every score in range falls in exactly one band of every default instrument.
func TestDefaultCatalogPartition(t *testing.T) {
	c, err := Default()
	require.NoError(t, err)
	for _, inst := range c.List() {
		for score := 0; score <= inst.MaxScore; score++ {
			hits := 0
			for _, b := range inst.Bands {
				if b.Contains(score) {
					hits++
				}
			}
			assert.Equal(t, 1, hits, "%s score %d", inst.ID, score)
		}
	}
}

func TestGetUnknownInstrument(t *testing.T) {
	c, err := Default()
	require.NoError(t, err)
	_, err = c.Get("nope")
	assert.True(t, errors.Is(err, models.ErrUnknownInstrument))
}

func validInstrument() models.Instrument {
	return models.Instrument{
		ID:        "x",
		Name:      "X",
		Questions: []string{"a", "b"},
		MaxScore:  6,
		Bands: []models.Band{
			{Low: 0, High: 2, Label: "Low", Urgency: models.UrgencySuccess},
			{Low: 3, High: 6, Label: "High", Urgency: models.UrgencyDestructive},
		},
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*models.Instrument)
		wantErr string
	}{
		{"valid", func(*models.Instrument) {}, ""},
		{"gap", func(i *models.Instrument) { i.Bands[1].Low = 4 }, "not covered"},
		{"overlap", func(i *models.Instrument) { i.Bands[1].Low = 2 }, "overlaps"},
		{"short end", func(i *models.Instrument) { i.Bands[1].High = 5 }, "bands end at 5"},
		{"first band not zero", func(i *models.Instrument) { i.Bands[0].Low = 1 }, "not covered"},
		{"max mismatch", func(i *models.Instrument) { i.MaxScore = 7 }, "max_score"},
		{"no questions", func(i *models.Instrument) { i.Questions = nil }, "question"},
		{"bad urgency", func(i *models.Instrument) { i.Bands[0].Urgency = "red" }, "invalid urgency"},
		{"no label", func(i *models.Instrument) { i.Bands[0].Label = "" }, "no label"},
		{"threshold above max", func(i *models.Instrument) { i.SafetyThreshold = 9 }, "safety_threshold"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			inst := validInstrument()
			tc.mutate(&inst)
			err := Validate(&inst)
			if tc.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestValidateSortsBandsAndDerivesThreshold(t *testing.T) {
	inst := validInstrument()
	inst.Bands[0], inst.Bands[1] = inst.Bands[1], inst.Bands[0]
	require.NoError(t, Validate(&inst))
	assert.Equal(t, 0, inst.Bands[0].Low)
	assert.Equal(t, 3, inst.SafetyThreshold)
}

func TestParseRejectsDuplicateIDs(t *testing.T) {
	_, err := Parse([]byte(`
version: "1"
recommendations:
  maintenance: [a]
  support: [b]
  urgent: [c]
instruments:
  - id: x
    name: X
    max_score: 3
    questions: [q]
    bands: [{low: 0, high: 3, label: L, urgency: success}]
  - id: x
    name: X again
    max_score: 3
    questions: [q]
    bands: [{low: 0, high: 3, label: L, urgency: success}]
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate")
}

func TestParseRequiresEveryTier(t *testing.T) {
	_, err := Parse([]byte(`
version: "1"
recommendations:
  maintenance: [a]
  support: [b]
instruments:
  - id: x
    name: X
    max_score: 3
    questions: [q]
    bands: [{low: 0, high: 3, label: L, urgency: success}]
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "urgent")
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	require.NoError(t, os.WriteFile(path, DefaultBytes(), 0o644))
	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "2025.10.1", c.Version())
}
