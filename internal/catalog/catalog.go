// Package catalog maps (league, dataset) pairs to their capability level and
// ordered fetch-method chain.
package catalog

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Capability declares how reliable a (league, dataset) pair is. It is
// surfaced to callers with every result, never silently upgraded.
type Capability string

const (
	CapabilityFull        Capability = "FULL"
	CapabilityLimited     Capability = "LIMITED"
	CapabilityUnavailable Capability = "UNAVAILABLE"
	CapabilityScaffold    Capability = "SCAFFOLD"
)

// rank orders capabilities for one-directional promotion.
func (c Capability) rank() int {
	switch c {
	case CapabilityScaffold:
		return 0
	case CapabilityUnavailable:
		return 1
	case CapabilityLimited:
		return 2
	case CapabilityFull:
		return 3
	default:
		return -1
	}
}

// Method kinds, matching the fetch package's method variants.
const (
	KindHTML     = "html"
	KindJSON     = "json"
	KindEmbedded = "embedded"
	KindBrowser  = "browser"
	KindBridge   = "bridge"
)

// MethodSpec is one entry in a dataset's fallback chain.
type MethodSpec struct {
	Name     string `yaml:"name"`
	Kind     string `yaml:"kind"`
	SourceID string `yaml:"source_id"` // rate-limit bucket; shared across leagues on one upstream
	Vocab    string `yaml:"vocab"`     // filter vocabulary the upstream speaks
	URL      string `yaml:"url"`       // endpoint template
}

// BrowserCapable reports whether the method survives bot-blocking, i.e. it is
// not a plain HTTP method.
func (m MethodSpec) BrowserCapable() bool {
	return m.Kind == KindBrowser
}

// Descriptor describes one (league, dataset) pair.
type Descriptor struct {
	League     string          `yaml:"league"`
	Dataset    string          `yaml:"dataset"`
	KeyColumns []string        `yaml:"key_columns"`
	Supported  map[string]bool `yaml:"-"` // filters the dataset honors
	Capability Capability      `yaml:"capability"`
	Chain      []MethodSpec    `yaml:"chain"`
}

// DuplicateRegistrationError is returned when registering over an existing
// entry without an explicit override.
type DuplicateRegistrationError struct {
	League  string
	Dataset string
}

func (e *DuplicateRegistrationError) Error() string {
	return fmt.Sprintf("catalog: %s/%s already registered", e.League, e.Dataset)
}

// UnsupportedDatasetError is returned when no entry exists for the pair.
type UnsupportedDatasetError struct {
	League  string
	Dataset string
}

func (e *UnsupportedDatasetError) Error() string {
	return fmt.Sprintf("catalog: no %q dataset registered for league %s", e.Dataset, e.League)
}

// Registry is the process-wide capability catalog. Construct one per engine;
// safe for concurrent use.
type Registry struct {
	mu sync.RWMutex

	entries map[string]*Descriptor

	// promoteThreshold is the minimum validated coverage fraction required
	// for a capability promotion.
	promoteThreshold float64
}

// NewRegistry creates an empty registry. promoteThreshold <= 0 uses the 0.95
// default.
func NewRegistry(promoteThreshold float64) *Registry {
	if promoteThreshold <= 0 {
		promoteThreshold = 0.95
	}
	return &Registry{
		entries:          make(map[string]*Descriptor),
		promoteThreshold: promoteThreshold,
	}
}

func key(league, dataset string) string {
	return strings.ToUpper(league) + "/" + strings.ToLower(dataset)
}

func (d *Descriptor) validate() error {
	if d.League == "" || d.Dataset == "" {
		return fmt.Errorf("catalog: descriptor needs league and dataset")
	}
	if len(d.KeyColumns) == 0 {
		return fmt.Errorf("catalog: %s/%s has no key columns", d.League, d.Dataset)
	}
	if d.Capability.rank() < 0 {
		return fmt.Errorf("catalog: %s/%s has unknown capability %q", d.League, d.Dataset, d.Capability)
	}
	if d.Capability != CapabilityUnavailable && len(d.Chain) == 0 {
		return fmt.Errorf("catalog: %s/%s declares %s but has an empty chain", d.League, d.Dataset, d.Capability)
	}
	seen := make(map[string]bool, len(d.Chain))
	for _, m := range d.Chain {
		if m.Name == "" || m.SourceID == "" {
			return fmt.Errorf("catalog: %s/%s chain entry needs name and source_id", d.League, d.Dataset)
		}
		if seen[m.Name] {
			return fmt.Errorf("catalog: %s/%s chain repeats method %q", d.League, d.Dataset, m.Name)
		}
		seen[m.Name] = true
	}
	return nil
}

// Register adds a descriptor, failing with *DuplicateRegistrationError if the
// pair is already present.
func (r *Registry) Register(d *Descriptor) error {
	return r.register(d, false)
}

// RegisterOverride replaces any existing descriptor for the pair.
func (r *Registry) RegisterOverride(d *Descriptor) error {
	return r.register(d, true)
}

func (r *Registry) register(d *Descriptor, override bool) error {
	if err := d.validate(); err != nil {
		return err
	}
	k := key(d.League, d.Dataset)

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[k]; exists && !override {
		return &DuplicateRegistrationError{League: d.League, Dataset: d.Dataset}
	}
	cp := *d
	r.entries[k] = &cp
	return nil
}

// MustRegister panics on registration failure; used for the seed catalog.
func (r *Registry) MustRegister(d *Descriptor) {
	if err := r.Register(d); err != nil {
		panic(err)
	}
}

// Resolve returns the descriptor for the pair, or *UnsupportedDatasetError.
func (r *Registry) Resolve(league, dataset string) (*Descriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.entries[key(league, dataset)]
	if !ok {
		return nil, &UnsupportedDatasetError{League: league, Dataset: dataset}
	}
	cp := *d
	return &cp, nil
}

// List returns descriptors, optionally restricted to one league, sorted by
// league then dataset.
func (r *Registry) List(league string) []*Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*Descriptor
	for _, d := range r.entries {
		if league != "" && !strings.EqualFold(d.League, league) {
			continue
		}
		cp := *d
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].League != out[j].League {
			return out[i].League < out[j].League
		}
		return out[i].Dataset < out[j].Dataset
	})
	return out
}

// Promote raises the pair's capability one level, gated on an externally
// validated coverage fraction. Promotion is one-directional: it never runs on
// mere method presence and never demotes.
func (r *Registry) Promote(league, dataset string, to Capability, coverage float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.entries[key(league, dataset)]
	if !ok {
		return &UnsupportedDatasetError{League: league, Dataset: dataset}
	}
	if to.rank() < 0 {
		return fmt.Errorf("catalog: unknown capability %q", to)
	}
	if to.rank() <= d.Capability.rank() {
		return fmt.Errorf("catalog: %s/%s is already %s; promotion to %s is not an upgrade",
			league, dataset, d.Capability, to)
	}
	if coverage < r.promoteThreshold {
		return fmt.Errorf("catalog: %s/%s coverage %.2f below promotion threshold %.2f",
			league, dataset, coverage, r.promoteThreshold)
	}
	d.Capability = to
	return nil
}
