// Package usage annotates resources with scenario usage triples drawn
// from named YAML profiles, adjusted by caller overrides.
package usage

import (
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"costplan/core/types"
	"costplan/internal/errors"
	"costplan/internal/logging"
)

// Profile is one named usage profile loaded from YAML
type Profile struct {
	// Name identifies the profile; defaults to the file stem
	Name string `yaml:"name"`

	// Version is the profile revision string
	Version string `yaml:"version"`

	// Description is a human-readable summary
	Description string `yaml:"description,omitempty"`

	// Services maps service name to its per-resource-type entries
	Services map[string]ServiceUsage `yaml:"services"`
}

// ServiceUsage holds the usage entries for one service
type ServiceUsage struct {
	// ResourceTypes maps resource type to its usage entry
	ResourceTypes map[string]UsageEntry `yaml:"resource_types"`
}

// UsageEntry defines the scenario dimensions for one resource type
type UsageEntry struct {
	// Dimensions maps dimension name to its scenario triple
	Dimensions map[string]DimensionUsage `yaml:"dimensions"`

	// Assumptions are notes explaining the chosen values
	Assumptions []string `yaml:"assumptions,omitempty"`
}

// DimensionUsage is one scenario triple as written in the profile
type DimensionUsage struct {
	Min      decimal.Decimal `yaml:"min"`
	Expected decimal.Decimal `yaml:"expected"`
	Max      decimal.Decimal `yaml:"max"`
	Unit     string          `yaml:"unit"`
}

// Store loads and serves usage profiles from a directory.
type Store struct {
	mu       sync.RWMutex
	dir      string
	profiles map[string]*Profile
	logger   *zap.Logger
}

// NewStore creates a profile store and loads every profile in dir.
func NewStore(dir string) (*Store, error) {
	s := &Store{
		dir:      dir,
		profiles: make(map[string]*Profile),
		logger:   logging.Logger.With(zap.String("component", "usage_store")),
	}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Reload rereads every .yaml/.yml file in the profile directory.
func (s *Store) Reload() error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return errors.Wrap(errors.TypeInternal, "reading profile directory", err).
			WithContext("dir", s.dir)
	}

	loaded := make(map[string]*Profile)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := filepath.Ext(entry.Name())
		if ext != ".yaml" && ext != ".yml" {
			continue
		}

		profile, err := loadProfile(filepath.Join(s.dir, entry.Name()))
		if err != nil {
			return err
		}
		if profile.Name == "" {
			profile.Name = strings.TrimSuffix(entry.Name(), ext)
		}
		loaded[profile.Name] = profile
	}

	s.mu.Lock()
	s.profiles = loaded
	s.mu.Unlock()

	s.logger.Info("usage profiles loaded", zap.Int("count", len(loaded)))
	return nil
}

// Get returns a profile by name, reloading the directory once if the
// name is unknown.
func (s *Store) Get(name string) (*Profile, error) {
	s.mu.RLock()
	p, ok := s.profiles[name]
	s.mu.RUnlock()
	if ok {
		return p, nil
	}

	if err := s.Reload(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	p, ok = s.profiles[name]
	s.mu.RUnlock()
	if !ok {
		return nil, errors.NotFound("usage profile", name)
	}
	return p, nil
}

// Names returns the loaded profile names.
func (s *Store) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.profiles))
	for n := range s.profiles {
		names = append(names, n)
	}
	return names
}

// Entry finds the usage entry for a service and resource type.
func (p *Profile) Entry(service, resourceType string) (UsageEntry, bool) {
	svc, ok := p.Services[service]
	if !ok {
		return UsageEntry{}, false
	}
	entry, ok := svc.ResourceTypes[resourceType]
	return entry, ok
}

func loadProfile(path string) (*Profile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(errors.TypeInternal, "reading profile file", err).
			WithContext("path", path)
	}

	var profile Profile
	if err := yaml.Unmarshal(raw, &profile); err != nil {
		return nil, errors.Transform("malformed usage profile", err).
			WithContext("path", path)
	}
	return &profile, nil
}

// Scenario converts a profile dimension to a scenario triple.
func (d DimensionUsage) Scenario() types.Scenario {
	return types.Scenario{Min: d.Min, Expected: d.Expected, Max: d.Max, Unit: d.Unit}
}
