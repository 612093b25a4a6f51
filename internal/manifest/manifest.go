// Package manifest loads run manifests: YAML files that declare the
// work units a run fans out, grouped into phases, with optional
// per-run orchestration overrides.
package manifest

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Iron-Ham/fanout/internal/orchestrator"
	"github.com/Iron-Ham/fanout/internal/workunit"
)

// DefaultCategory tags units whose manifest entry omits a category.
const DefaultCategory = "general"

// Manifest is a declared run: the units to execute and any settings
// this run overrides.
type Manifest struct {
	// Name labels the run in logs and reports (optional)
	Name string `yaml:"name,omitempty"`
	// Units declares the work units to dispatch
	Units []Unit `yaml:"units"`
	// Orchestration overrides orchestration config for this run (optional)
	Orchestration *Overrides `yaml:"orchestration,omitempty"`
}

// Unit is one work unit declaration.
type Unit struct {
	// ID uniquely identifies the unit within the run
	ID string `yaml:"id"`
	// Phase groups units into dispatch waves; lower phases run first (default: 0)
	Phase int `yaml:"phase,omitempty"`
	// Category tags the unit's findings for merging (default: "general")
	Category string `yaml:"category,omitempty"`
	// Description is the work order handed to the executor
	Description string `yaml:"description"`
}

// Overrides carries per-run orchestration settings. Pointer fields
// distinguish "explicitly set" from "absent"; absent fields keep the
// configured value.
type Overrides struct {
	Sequential         *bool `yaml:"sequential,omitempty"`
	MaxParallel        *int  `yaml:"max_parallel,omitempty"`
	UnitTimeoutSeconds *int  `yaml:"unit_timeout_seconds,omitempty"`
	MaxRetries         *int  `yaml:"max_retries,omitempty"`
	BackoffSeconds     []int `yaml:"backoff_seconds,omitempty"`
	PauseThreshold     *int  `yaml:"pause_threshold,omitempty"`
	AbortThreshold     *int  `yaml:"abort_threshold,omitempty"`
}

// Load reads, parses, and validates a manifest file. Units without a
// category are tagged with DefaultCategory.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading manifest: %w", err)
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing manifest: %w", err)
	}

	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("invalid manifest: %w", err)
	}

	for i := range m.Units {
		if strings.TrimSpace(m.Units[i].Category) == "" {
			m.Units[i].Category = DefaultCategory
		}
	}

	return &m, nil
}

// Validate checks that the manifest is well-formed. An empty unit list
// is allowed; such a run completes immediately.
func (m *Manifest) Validate() error {
	seen := make(map[string]struct{}, len(m.Units))
	for i, u := range m.Units {
		if strings.TrimSpace(u.ID) == "" {
			return fmt.Errorf("units[%d]: id is required", i)
		}
		if strings.TrimSpace(u.Description) == "" {
			return fmt.Errorf("units[%d] (%s): description is required", i, u.ID)
		}
		if u.Phase < 0 {
			return fmt.Errorf("units[%d] (%s): phase must be non-negative, got %d", i, u.ID, u.Phase)
		}
		if _, dup := seen[u.ID]; dup {
			return fmt.Errorf("units[%d]: duplicate id %q", i, u.ID)
		}
		seen[u.ID] = struct{}{}
	}

	if err := m.Orchestration.validate(); err != nil {
		return err
	}
	return nil
}

func (o *Overrides) validate() error {
	if o == nil {
		return nil
	}
	if o.MaxParallel != nil && *o.MaxParallel < 0 {
		return fmt.Errorf("orchestration.max_parallel must be non-negative, got %d", *o.MaxParallel)
	}
	if o.UnitTimeoutSeconds != nil && *o.UnitTimeoutSeconds < 0 {
		return fmt.Errorf("orchestration.unit_timeout_seconds must be non-negative, got %d", *o.UnitTimeoutSeconds)
	}
	if o.MaxRetries != nil && *o.MaxRetries < 0 {
		return fmt.Errorf("orchestration.max_retries must be non-negative, got %d", *o.MaxRetries)
	}
	for i, s := range o.BackoffSeconds {
		if s < 0 {
			return fmt.Errorf("orchestration.backoff_seconds[%d] must be non-negative, got %d", i, s)
		}
	}
	if o.PauseThreshold != nil && *o.PauseThreshold < 0 {
		return fmt.Errorf("orchestration.pause_threshold must be non-negative, got %d", *o.PauseThreshold)
	}
	if o.AbortThreshold != nil && *o.AbortThreshold < 0 {
		return fmt.Errorf("orchestration.abort_threshold must be non-negative, got %d", *o.AbortThreshold)
	}
	return nil
}

// Apply overlays the manifest's explicit overrides onto opts. Absent
// fields leave opts untouched. A nil receiver is a no-op.
func (o *Overrides) Apply(opts *orchestrator.Options) {
	if o == nil {
		return
	}
	if o.Sequential != nil {
		opts.Sequential = *o.Sequential
	}
	if o.MaxParallel != nil {
		opts.MaxParallel = *o.MaxParallel
	}
	if o.UnitTimeoutSeconds != nil {
		opts.UnitTimeout = time.Duration(*o.UnitTimeoutSeconds) * time.Second
	}
	if o.MaxRetries != nil {
		opts.MaxRetries = *o.MaxRetries
	}
	if len(o.BackoffSeconds) > 0 {
		backoff := make([]time.Duration, len(o.BackoffSeconds))
		for i, s := range o.BackoffSeconds {
			backoff[i] = time.Duration(s) * time.Second
		}
		opts.Backoff = backoff
	}
	if o.PauseThreshold != nil {
		opts.PauseThreshold = *o.PauseThreshold
	}
	if o.AbortThreshold != nil {
		opts.AbortThreshold = *o.AbortThreshold
	}
}

// Phases returns the distinct phase numbers in ascending order.
func (m *Manifest) Phases() []int {
	seen := make(map[int]struct{})
	var phases []int
	for _, u := range m.Units {
		if _, ok := seen[u.Phase]; ok {
			continue
		}
		seen[u.Phase] = struct{}{}
		phases = append(phases, u.Phase)
	}
	sort.Ints(phases)
	return phases
}

// UnitsFor returns the work units declared for the given phase, in
// manifest order, converted for the queue.
func (m *Manifest) UnitsFor(phase int) []workunit.Unit {
	var units []workunit.Unit
	for _, u := range m.Units {
		if u.Phase != phase {
			continue
		}
		units = append(units, workunit.Unit{
			ID:          u.ID,
			Phase:       u.Phase,
			Category:    u.Category,
			Description: u.Description,
		})
	}
	return units
}
