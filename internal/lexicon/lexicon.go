// Package lexicon classifies free-text messages by crisis urgency using a
// versioned keyword lexicon, and carries the fixed emergency contact data that
// accompanies an escalation.
package lexicon

import (
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/BTreeMap/CampusCare/internal/models"
	"gopkg.in/yaml.v3"
)

// FileName is the lexicon file name looked up in a config directory.
const FileName = "safety.yaml"

//go:embed safety.yaml
var defaultLexicon []byte

// File is the on-disk layout of the safety configuration.
type File struct {
	Version            string                     `yaml:"version"`
	CrisisTerms        []string                   `yaml:"crisis_terms"`
	DistressTerms      []string                   `yaml:"distress_terms"`
	EmergencyResources []models.EmergencyResource `yaml:"emergency_resources"`
	SafetyNotice       string                     `yaml:"safety_notice"`
	FallbackResponse   string                     `yaml:"fallback_response"`
}

// Lexicon is an immutable, normalized crisis lexicon.
type Lexicon struct {
	version   string
	crisis    []string
	distress  []string
	resources []models.EmergencyResource
	notice    string
	fallback  string
}

// Match is the outcome of classifying a message. Term is empty for low priority
// and for the invalid-encoding fail-safe.
type Match struct {
	Priority models.Priority
	Term     string
}

// Default returns the lexicon embedded in the binary.
func Default() (*Lexicon, error) {
	return Parse(defaultLexicon)
}

// DefaultBytes returns the raw embedded lexicon, for writing a starter config.
func DefaultBytes() []byte {
	out := make([]byte, len(defaultLexicon))
	copy(out, defaultLexicon)
	return out
}

// Load reads and validates a lexicon file.
func Load(path string) (*Lexicon, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read lexicon %s: %w", path, err)
	}
	lx, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("invalid lexicon %s: %w", path, err)
	}
	slog.Debug("lexicon.Load: lexicon loaded", "path", path, "version", lx.version, "crisis_terms", len(lx.crisis), "distress_terms", len(lx.distress))
	return lx, nil
}

// Parse decodes and validates lexicon YAML.
func Parse(data []byte) (*Lexicon, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to unmarshal lexicon: %w", err)
	}
	return New(f)
}

// New builds a lexicon from its decoded file form.
func New(f File) (*Lexicon, error) {
	if f.Version == "" {
		return nil, fmt.Errorf("lexicon version is required")
	}
	crisis := normalize(f.CrisisTerms)
	if len(crisis) == 0 {
		return nil, fmt.Errorf("lexicon defines no crisis terms")
	}
	if len(f.EmergencyResources) == 0 {
		return nil, fmt.Errorf("lexicon defines no emergency resources")
	}
	for i, r := range f.EmergencyResources {
		if r.Name == "" {
			return nil, fmt.Errorf("emergency resource %d has no name", i)
		}
		if r.Number == "" && r.Text == "" {
			return nil, fmt.Errorf("emergency resource %q needs a number or text", r.Name)
		}
	}
	if strings.TrimSpace(f.SafetyNotice) == "" {
		return nil, fmt.Errorf("safety_notice is required")
	}
	if strings.TrimSpace(f.FallbackResponse) == "" {
		return nil, fmt.Errorf("fallback_response is required")
	}

	resources := make([]models.EmergencyResource, len(f.EmergencyResources))
	copy(resources, f.EmergencyResources)

	return &Lexicon{
		version:   f.Version,
		crisis:    crisis,
		distress:  normalize(f.DistressTerms),
		resources: resources,
		notice:    strings.TrimSpace(f.SafetyNotice),
		fallback:  strings.TrimSpace(f.FallbackResponse),
	}, nil
}

// normalize lower-cases and trims terms, dropping blanks and duplicates.
func normalize(terms []string) []string {
	seen := make(map[string]struct{}, len(terms))
	out := make([]string, 0, len(terms))
	for _, t := range terms {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

// ClassifyText returns the urgency of a single message.
func (l *Lexicon) ClassifyText(message string) models.Priority {
	return l.Match(message).Priority
}

// Match classifies message and reports the term that fired.
// Crisis terms are checked first and win over distress terms.
func (l *Lexicon) Match(message string) Match {
	if !utf8.ValidString(message) {
		return Match{Priority: models.PriorityMedium}
	}
	lower := strings.ToLower(message)
	for _, term := range l.crisis {
		if strings.Contains(lower, term) {
			return Match{Priority: models.PriorityHigh, Term: term}
		}
	}
	for _, term := range l.distress {
		if strings.Contains(lower, term) {
			return Match{Priority: models.PriorityMedium, Term: term}
		}
	}
	return Match{Priority: models.PriorityLow}
}

// Version returns the lexicon version string.
func (l *Lexicon) Version() string {
	return l.version
}

// CrisisTerms returns a copy of the normalized crisis terms.
func (l *Lexicon) CrisisTerms() []string {
	return append([]string(nil), l.crisis...)
}

// DistressTerms returns a copy of the normalized distress terms.
func (l *Lexicon) DistressTerms() []string {
	return append([]string(nil), l.distress...)
}

// EmergencyResources returns a copy of the ordered emergency contact list.
func (l *Lexicon) EmergencyResources() []models.EmergencyResource {
	out := make([]models.EmergencyResource, len(l.resources))
	copy(out, l.resources)
	return out
}

// SafetyNotice returns the self-harm notice with the emergency contacts attached.
func (l *Lexicon) SafetyNotice() models.SafetyNotice {
	return models.SafetyNotice{Message: l.notice, Contacts: l.EmergencyResources()}
}

// FallbackResponse is the assistant reply used when text generation fails.
func (l *Lexicon) FallbackResponse() string {
	return l.fallback
}
