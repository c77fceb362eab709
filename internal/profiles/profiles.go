package profiles

import (
	"fmt"
	"math"
	"os"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// ReportProfile holds the word-count contract and outline constraints for
// one report type. Profiles are data: the synthesis engine never branches on
// the profile name, only on these values.
type ReportProfile struct {
	Name                  string  `yaml:"name"`
	MinWords              int     `yaml:"min_words"`
	MaxWords              int     `yaml:"max_words"`
	NominalWords          int     `yaml:"nominal_words"` // outline targets are normalized to this sum
	DefaultSectionWords   int     `yaml:"default_section_words"`
	MinSections           int     `yaml:"min_sections"`
	MaxSections           int     `yaml:"max_sections"`
	MaxExpansionRounds    int     `yaml:"max_expansion_rounds"`
	MinimumThresholdRatio float64 `yaml:"minimum_threshold_ratio"` // soft floor relative to min_words
}

// Validate checks internal consistency of a profile.
func (p ReportProfile) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("profile name is required")
	}
	if p.MinWords <= 0 || p.MaxWords <= 0 || p.MinWords > p.MaxWords {
		return fmt.Errorf("profile %q: invalid word bounds min=%d max=%d", p.Name, p.MinWords, p.MaxWords)
	}
	if p.NominalWords <= 0 || p.NominalWords > p.MaxWords {
		return fmt.Errorf("profile %q: nominal_words %d must be in (0, max_words]", p.Name, p.NominalWords)
	}
	if p.MinSections <= 0 || p.MaxSections < p.MinSections {
		return fmt.Errorf("profile %q: invalid section bounds min=%d max=%d", p.Name, p.MinSections, p.MaxSections)
	}
	if p.DefaultSectionWords <= 0 {
		return fmt.Errorf("profile %q: default_section_words must be positive", p.Name)
	}
	if p.MaxExpansionRounds < 0 {
		return fmt.Errorf("profile %q: max_expansion_rounds must be non-negative", p.Name)
	}
	if p.MinimumThresholdRatio <= 0 || p.MinimumThresholdRatio > 1 {
		return fmt.Errorf("profile %q: minimum_threshold_ratio must be in (0, 1]", p.Name)
	}
	return nil
}

// SoftFloor returns the word count below which expansion is attempted.
func (p ReportProfile) SoftFloor() int {
	return int(math.Round(float64(p.MinWords) * p.MinimumThresholdRatio))
}

// Concise is the built-in profile for short focused summaries (600-1200
// words). No expansion rounds are attempted for concise reports.
func Concise() ReportProfile {
	return ReportProfile{
		Name:                  "concise",
		MinWords:              600,
		MaxWords:              1200,
		NominalWords:          1200,
		DefaultSectionWords:   300,
		MinSections:           2,
		MaxSections:           4,
		MaxExpansionRounds:    0,
		MinimumThresholdRatio: 0.6,
	}
}

// Detailed is the built-in profile for comprehensive analysis (800-3000 words).
func Detailed() ReportProfile {
	return ReportProfile{
		Name:                  "detailed",
		MinWords:              800,
		MaxWords:              3000,
		NominalWords:          3000,
		DefaultSectionWords:   600,
		MinSections:           3,
		MaxSections:           8,
		MaxExpansionRounds:    1,
		MinimumThresholdRatio: 0.7,
	}
}

// Registry resolves report profiles by name. Built-in profiles are always
// present; additional profiles can be loaded from a YAML file and replaced
// atomically (see Manager for hot reload).
type Registry struct {
	mu       sync.RWMutex
	profiles map[string]ReportProfile
}

// NewRegistry returns a registry seeded with the built-in profiles.
func NewRegistry() *Registry {
	r := &Registry{profiles: make(map[string]ReportProfile)}
	r.put(Concise())
	r.put(Detailed())
	return r
}

func (r *Registry) put(p ReportProfile) {
	r.profiles[strings.ToLower(p.Name)] = p
}

// Get returns the profile for name, or false if unknown.
func (r *Registry) Get(name string) (ReportProfile, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.profiles[strings.ToLower(strings.TrimSpace(name))]
	return p, ok
}

// Names returns all registered profile names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.profiles))
	for n := range r.profiles {
		names = append(names, n)
	}
	return names
}

// profilesFile is the on-disk shape of a profiles YAML file.
type profilesFile struct {
	Profiles []ReportProfile `yaml:"profiles"`
}

// LoadFile merges profiles from a YAML file into the registry. Built-in
// profiles may be overridden by name. Invalid entries reject the whole file
// so a bad reload never leaves the registry half-updated.
func (r *Registry) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read profiles file: %w", err)
	}
	var pf profilesFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return fmt.Errorf("parse profiles file: %w", err)
	}
	for i := range pf.Profiles {
		if pf.Profiles[i].NominalWords == 0 {
			pf.Profiles[i].NominalWords = pf.Profiles[i].MaxWords
		}
		if err := pf.Profiles[i].Validate(); err != nil {
			return fmt.Errorf("profiles file %s: %w", path, err)
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range pf.Profiles {
		r.profiles[strings.ToLower(p.Name)] = p
	}
	return nil
}
