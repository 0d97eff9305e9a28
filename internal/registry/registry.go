// Package registry holds the active instrument catalog and crisis lexicon and
// swaps them atomically when the configuration files change.
package registry

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/BTreeMap/CampusCare/internal/catalog"
	"github.com/BTreeMap/CampusCare/internal/lexicon"
	"github.com/BTreeMap/CampusCare/internal/models"
)

// Snapshot is one consistent pairing of catalog and lexicon.
type Snapshot struct {
	Catalog *catalog.Catalog
	Lexicon *lexicon.Lexicon
}

// Registry serves the current Snapshot to concurrent readers.
type Registry struct {
	dir     string
	current atomic.Pointer[Snapshot]
}

// New creates a registry from an already-loaded snapshot.
func New(snap *Snapshot) *Registry {
	r := &Registry{}
	r.current.Store(snap)
	return r
}

// Load builds a registry from dir. A file missing from dir falls back to the
// embedded default; an empty dir uses the defaults for both.
func Load(dir string) (*Registry, error) {
	snap, err := LoadSnapshot(dir)
	if err != nil {
		return nil, err
	}
	r := New(snap)
	r.dir = dir
	return r, nil
}

// LoadSnapshot reads both configuration files from dir.
func LoadSnapshot(dir string) (*Snapshot, error) {
	cat, err := loadCatalog(dir)
	if err != nil {
		return nil, err
	}
	lx, err := loadLexicon(dir)
	if err != nil {
		return nil, err
	}
	return &Snapshot{Catalog: cat, Lexicon: lx}, nil
}

func loadCatalog(dir string) (*catalog.Catalog, error) {
	if dir != "" {
		path := filepath.Join(dir, catalog.FileName)
		if exists(path) {
			return catalog.Load(path)
		}
	}
	return catalog.Default()
}

func loadLexicon(dir string) (*lexicon.Lexicon, error) {
	if dir != "" {
		path := filepath.Join(dir, lexicon.FileName)
		if exists(path) {
			return lexicon.Load(path)
		}
	}
	return lexicon.Default()
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return !errors.Is(err, fs.ErrNotExist)
}

// Dir returns the configuration directory, or "" when running on defaults.
func (r *Registry) Dir() string {
	return r.dir
}

// Current returns the active snapshot.
func (r *Registry) Current() *Snapshot {
	return r.current.Load()
}

// Catalog returns the active instrument catalog.
func (r *Registry) Catalog() *catalog.Catalog {
	return r.Current().Catalog
}

// Lexicon returns the active crisis lexicon.
func (r *Registry) Lexicon() *lexicon.Lexicon {
	return r.Current().Lexicon
}

// EmergencyResources returns the contact list from the active lexicon.
func (r *Registry) EmergencyResources() []models.EmergencyResource {
	return r.Lexicon().EmergencyResources()
}

// SafetyNotice returns the safety notice from the active lexicon.
func (r *Registry) SafetyNotice() models.SafetyNotice {
	return r.Lexicon().SafetyNotice()
}

// Reload re-reads the configuration directory. On error the previous
// snapshot stays active.
func (r *Registry) Reload() error {
	if r.dir == "" {
		return fmt.Errorf("registry has no config directory")
	}
	snap, err := LoadSnapshot(r.dir)
	if err != nil {
		slog.Error("Registry.Reload: keeping previous configuration", "dir", r.dir, "error", err)
		return err
	}
	old := r.current.Swap(snap)
	slog.Info("Registry.Reload: configuration reloaded",
		"dir", r.dir,
		"catalog_version", snap.Catalog.Version(),
		"lexicon_version", snap.Lexicon.Version(),
		"previous_catalog_version", old.Catalog.Version(),
		"previous_lexicon_version", old.Lexicon.Version())
	return nil
}
