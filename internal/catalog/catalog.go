// Package catalog loads and validates the screening instrument catalog.
//
// Instruments are versioned YAML data so that question wording, band labels and
// recommendation text can be updated without a rebuild. A default catalog is
// embedded in the binary; an external file may replace it at startup or at runtime.
package catalog

import (
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"sort"

	"github.com/BTreeMap/CampusCare/internal/models"
	"github.com/BTreeMap/CampusCare/internal/screening"
	"gopkg.in/yaml.v3"
)

// FileName is the catalog file name looked up in a config directory.
const FileName = "instruments.yaml"

//go:embed instruments.yaml
var defaultCatalog []byte

// File is the on-disk layout of the catalog.
type File struct {
	Version         string              `yaml:"version"`
	Recommendations map[string][]string `yaml:"recommendations"`
	Instruments     []models.Instrument `yaml:"instruments"`
}

// Catalog is an immutable, validated set of instruments.
type Catalog struct {
	version         string
	order           []string
	instruments     map[string]models.Instrument
	recommendations screening.Recommendations
}

// Default returns the catalog embedded in the binary.
func Default() (*Catalog, error) {
	return Parse(defaultCatalog)
}

// DefaultBytes returns the raw embedded catalog, for writing a starter config.
func DefaultBytes() []byte {
	out := make([]byte, len(defaultCatalog))
	copy(out, defaultCatalog)
	return out
}

// Load reads and validates a catalog file.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog %s: %w", path, err)
	}
	c, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("invalid catalog %s: %w", path, err)
	}
	slog.Debug("catalog.Load: catalog loaded", "path", path, "version", c.version, "instruments", len(c.order))
	return c, nil
}

// Parse decodes and validates catalog YAML.
func Parse(data []byte) (*Catalog, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to unmarshal catalog: %w", err)
	}
	if f.Version == "" {
		return nil, fmt.Errorf("catalog version is required")
	}
	if len(f.Instruments) == 0 {
		return nil, fmt.Errorf("catalog defines no instruments")
	}

	recs := make(screening.Recommendations, 3)
	for _, tier := range []models.Tier{models.TierMaintenance, models.TierSupport, models.TierUrgent} {
		items := f.Recommendations[string(tier)]
		if len(items) == 0 {
			return nil, fmt.Errorf("recommendations for tier %q are required", tier)
		}
		recs[tier] = items
	}

	c := &Catalog{
		version:         f.Version,
		instruments:     make(map[string]models.Instrument, len(f.Instruments)),
		recommendations: recs,
	}
	for i := range f.Instruments {
		inst := f.Instruments[i]
		if err := Validate(&inst); err != nil {
			return nil, err
		}
		if _, dup := c.instruments[inst.ID]; dup {
			return nil, fmt.Errorf("duplicate instrument id %q", inst.ID)
		}
		c.instruments[inst.ID] = inst
		c.order = append(c.order, inst.ID)
	}
	return c, nil
}

// Validate checks the instrument invariants and fills the derived safety
// threshold when none is configured.
func Validate(inst *models.Instrument) error {
	if inst.ID == "" {
		return fmt.Errorf("instrument id is required")
	}
	if inst.Name == "" {
		return fmt.Errorf("instrument %s: name is required", inst.ID)
	}
	if len(inst.Questions) == 0 {
		return fmt.Errorf("instrument %s: at least one question is required", inst.ID)
	}
	if want := len(inst.Questions) * models.MaxResponseValue; inst.MaxScore != want {
		return fmt.Errorf("instrument %s: max_score %d does not match %d questions (want %d)", inst.ID, inst.MaxScore, len(inst.Questions), want)
	}
	if len(inst.Bands) == 0 {
		return fmt.Errorf("instrument %s: at least one band is required", inst.ID)
	}

	sort.SliceStable(inst.Bands, func(i, j int) bool { return inst.Bands[i].Low < inst.Bands[j].Low })

	next := 0
	for _, b := range inst.Bands {
		if b.Label == "" {
			return fmt.Errorf("instrument %s: band [%d, %d] has no label", inst.ID, b.Low, b.High)
		}
		if !models.IsValidUrgency(b.Urgency) {
			return fmt.Errorf("instrument %s: band %q has invalid urgency %q", inst.ID, b.Label, b.Urgency)
		}
		if b.High < b.Low {
			return fmt.Errorf("instrument %s: band %q has high %d below low %d", inst.ID, b.Label, b.High, b.Low)
		}
		if b.Low != next {
			if b.Low < next {
				return fmt.Errorf("instrument %s: band %q overlaps previous band at %d", inst.ID, b.Label, b.Low)
			}
			return fmt.Errorf("instrument %s: scores %d-%d are not covered by any band", inst.ID, next, b.Low-1)
		}
		next = b.High + 1
	}
	if last := inst.Bands[len(inst.Bands)-1].High; last != inst.MaxScore {
		return fmt.Errorf("instrument %s: bands end at %d, want max_score %d", inst.ID, last, inst.MaxScore)
	}

	if inst.SafetyThreshold == 0 {
		inst.SafetyThreshold = screening.DerivedSafetyThreshold(inst.MaxScore)
	}
	if inst.SafetyThreshold < 0 || inst.SafetyThreshold > inst.MaxScore {
		return fmt.Errorf("instrument %s: safety_threshold %d outside [0, %d]", inst.ID, inst.SafetyThreshold, inst.MaxScore)
	}
	return nil
}

// Version returns the catalog version string.
func (c *Catalog) Version() string {
	return c.version
}

// Get looks up an instrument by id.
func (c *Catalog) Get(id string) (models.Instrument, error) {
	inst, ok := c.instruments[id]
	if !ok {
		return models.Instrument{}, fmt.Errorf("%w: %s", models.ErrUnknownInstrument, id)
	}
	return inst, nil
}

// List returns all instruments in catalog order.
func (c *Catalog) List() []models.Instrument {
	out := make([]models.Instrument, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.instruments[id])
	}
	return out
}

// Recommendations returns the guidance text for every tier.
func (c *Catalog) Recommendations() screening.Recommendations {
	return c.recommendations
}
