// Package merge reconciles completed work-unit outputs into one result per
// category. Findings are deduplicated by a normalized signature, repeated
// findings collapse into a corroboration count, and irreconcilable pairs
// are flagged through a caller-supplied contradiction predicate rather than
// auto-resolved.
package merge

import (
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/Iron-Ham/fanout/internal/errors"
	"github.com/Iron-Ham/fanout/internal/logging"
	"github.com/Iron-Ham/fanout/internal/workunit"
)

// Finding is one recommendation extracted from a unit's output.
type Finding struct {
	// UnitID is the unit that first reported the finding.
	UnitID string `json:"unit_id"`

	// Category the finding belongs to.
	Category string `json:"category"`

	// Text is the recommendation as first reported.
	Text string `json:"text"`

	// Corroboration counts additional units that reported the same
	// normalized signature.
	Corroboration int `json:"corroboration"`
}

// Contradiction records a pair of findings in the same category whose
// recommendations are mutually exclusive. Both findings remain in the
// result's findings list; resolution is the caller's job.
type Contradiction struct {
	A Finding `json:"a"`
	B Finding `json:"b"`
}

// ContradictionFunc reports whether two findings in the same category
// assert mutually exclusive recommendations. Semantic conflict detection is
// domain-specific, so the merger only promises to invoke the predicate
// pairwise within each category and collect the flagged pairs.
type ContradictionFunc func(a, b Finding) bool

// Result is the merged aggregate for one category.
type Result struct {
	// Category this result covers.
	Category string `json:"category"`

	// Findings in first-seen order, deduplicated.
	Findings []Finding `json:"findings"`

	// Contradictions flagged by the predicate.
	Contradictions []Contradiction `json:"contradictions,omitempty"`

	// UnitsTotal is how many units were tagged with the category.
	UnitsTotal int `json:"units_total"`

	// UnitsSucceeded is how many of them produced output.
	UnitsSucceeded int `json:"units_succeeded"`
}

// Completeness returns the category's coverage ratio: succeeded/total.
// Failed or cancelled units lower the ratio without blocking the merge.
func (r *Result) Completeness() float64 {
	if r.UnitsTotal == 0 {
		return 0
	}
	return float64(r.UnitsSucceeded) / float64(r.UnitsTotal)
}

// entry is one raw ingest, kept in arrival order until finalize.
type entry struct {
	unitID string
	output string
	failed bool
}

// categoryBuffer accumulates ingests for one category.
type categoryBuffer struct {
	unitsTotal int
	ingested   map[string]struct{}
	succeeded  int
	entries    []entry
	result     *Result // cached once finalized
}

// Merger collects terminal unit outputs and produces per-category results.
// All methods are safe for concurrent use; ingestion happens from many
// slots at once.
type Merger struct {
	mu         sync.Mutex
	detect     ContradictionFunc
	logger     *logging.Logger
	categories map[string]*categoryBuffer
}

// NewMerger creates a merger. The predicate may be nil, in which case no
// contradictions are ever flagged.
func NewMerger(detect ContradictionFunc, logger *logging.Logger) *Merger {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Merger{
		detect:     detect,
		logger:     logger,
		categories: make(map[string]*categoryBuffer),
	}
}

// RegisterUnits declares the run's units so each category knows how many
// terminal ingests to expect before it may finalize.
func (m *Merger) RegisterUnits(units []workunit.Unit) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, u := range units {
		buf := m.categories[u.Category]
		if buf == nil {
			buf = &categoryBuffer{ingested: make(map[string]struct{})}
			m.categories[u.Category] = buf
		}
		buf.unitsTotal++
	}
}

// Ingest records a succeeded unit's output for its category.
func (m *Merger) Ingest(unitID, category, output string) error {
	return m.ingest(unitID, category, output, false)
}

// IngestFailure records a failed or cancelled unit so the category can
// still finalize with an honest completeness ratio.
func (m *Merger) IngestFailure(unitID, category string) error {
	return m.ingest(unitID, category, "", true)
}

func (m *Merger) ingest(unitID, category, output string, failed bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	buf, ok := m.categories[category]
	if !ok {
		return errors.NewMergeError("ingest rejected", errors.ErrUnknownCategory).
			WithCategory(category).WithUnitID(unitID)
	}
	if buf.result != nil {
		return errors.NewMergeError("category already finalized", errors.ErrInvalidTransition).
			WithCategory(category).WithUnitID(unitID)
	}
	if _, dup := buf.ingested[unitID]; dup {
		return errors.NewMergeError("unit already ingested", errors.ErrDuplicateUnit).
			WithCategory(category).WithUnitID(unitID)
	}

	buf.ingested[unitID] = struct{}{}
	if !failed {
		buf.succeeded++
	}
	buf.entries = append(buf.entries, entry{unitID: unitID, output: output, failed: failed})

	m.logger.Debug("ingested unit result",
		"unit_id", unitID,
		"category", category,
		"failed", failed,
		"ingested", len(buf.ingested),
		"expected", buf.unitsTotal,
	)
	return nil
}

// Finalize merges one category. It fails with ErrIncompleteCategory while
// any unit tagged with the category has not been ingested, and is
// idempotent once it succeeds: repeat calls return the cached result.
func (m *Merger) Finalize(category string) (*Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.finalizeLocked(category)
}

func (m *Merger) finalizeLocked(category string) (*Result, error) {
	buf, ok := m.categories[category]
	if !ok {
		return nil, errors.NewMergeError("finalize rejected", errors.ErrUnknownCategory).
			WithCategory(category)
	}
	if buf.result != nil {
		return buf.result, nil
	}
	if len(buf.ingested) < buf.unitsTotal {
		return nil, errors.NewMergeError("finalize rejected", errors.ErrIncompleteCategory).
			WithCategory(category)
	}

	result := &Result{
		Category:       category,
		UnitsTotal:     buf.unitsTotal,
		UnitsSucceeded: buf.succeeded,
	}

	// Dedupe by normalized signature, first-seen wins.
	bySignature := make(map[string]int)
	for _, e := range buf.entries {
		if e.failed {
			continue
		}
		for _, text := range splitFindings(e.output) {
			sig := Signature(text)
			if idx, seen := bySignature[sig]; seen {
				result.Findings[idx].Corroboration++
				continue
			}
			bySignature[sig] = len(result.Findings)
			result.Findings = append(result.Findings, Finding{
				UnitID:   e.unitID,
				Category: category,
				Text:     text,
			})
		}
	}

	// Pairwise contradiction scan within the category.
	if m.detect != nil {
		for i := 0; i < len(result.Findings); i++ {
			for j := i + 1; j < len(result.Findings); j++ {
				if m.detect(result.Findings[i], result.Findings[j]) {
					result.Contradictions = append(result.Contradictions, Contradiction{
						A: result.Findings[i],
						B: result.Findings[j],
					})
				}
			}
		}
	}

	buf.result = result

	m.logger.Info("category finalized",
		"category", category,
		"findings", len(result.Findings),
		"contradictions", len(result.Contradictions),
		"completeness", result.Completeness(),
	)
	return result, nil
}

// FinalizeAll merges every registered category concurrently and returns
// the results keyed by category. It fails if any category is incomplete.
func (m *Merger) FinalizeAll() (map[string]*Result, error) {
	categories := m.Categories()

	var (
		resultMu sync.Mutex
		results  = make(map[string]*Result, len(categories))
	)

	var g errgroup.Group
	for _, category := range categories {
		category := category // per-iteration copy: go directive predates Go 1.22 loop-var scoping
		g.Go(func() error {
			res, err := m.Finalize(category)
			if err != nil {
				return err
			}
			resultMu.Lock()
			results[category] = res
			resultMu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// Categories returns every registered category in sorted order.
func (m *Merger) Categories() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]string, 0, len(m.categories))
	for c := range m.categories {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// splitFindings extracts one finding per non-empty line of output.
func splitFindings(output string) []string {
	var findings []string
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		findings = append(findings, line)
	}
	return findings
}

// Signature normalizes a finding's text for dedupe: lowercased with all
// whitespace runs collapsed to single spaces.
func Signature(text string) string {
	return strings.Join(strings.Fields(strings.ToLower(text)), " ")
}
