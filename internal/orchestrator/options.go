package orchestrator

import (
	"fmt"
	"time"

	"github.com/Iron-Ham/fanout/internal/errors"
)

// Default tuning values applied by DefaultOptions. They match the
// shipped configuration so a zero-config run behaves the same as one
// driven by an untouched config file.
const (
	DefaultUnitTimeout    = 120 * time.Second
	DefaultMaxRetries     = 3
	DefaultPauseThreshold = 3
	DefaultAbortThreshold = 10
)

// DefaultBackoff returns the standard retry backoff ladder. Attempts
// beyond the last entry reuse it.
func DefaultBackoff() []time.Duration {
	return []time.Duration{1 * time.Second, 2 * time.Second, 4 * time.Second}
}

// Options tunes a single orchestration run.
type Options struct {
	// Sequential forces one unit at a time regardless of MaxParallel.
	Sequential bool

	// MaxParallel caps concurrently executing units. Zero means no cap.
	MaxParallel int

	// UnitTimeout bounds each individual attempt, not the whole unit.
	// Zero disables the per-attempt deadline.
	UnitTimeout time.Duration

	// MaxRetries is the number of re-attempts after the first try, so a
	// unit executes at most MaxRetries+1 times.
	MaxRetries int

	// Backoff holds per-retry delays indexed by attempt number. Retries
	// past the end of the slice reuse the final entry.
	Backoff []time.Duration

	// PauseThreshold pauses the run after this many consecutive unit
	// failures. Zero disables pausing.
	PauseThreshold int

	// AbortThreshold aborts the run after this many cumulative unit
	// failures. Zero disables aborting.
	AbortThreshold int
}

// DefaultOptions returns the options a bare run starts from.
func DefaultOptions() Options {
	return Options{
		MaxParallel:    0,
		UnitTimeout:    DefaultUnitTimeout,
		MaxRetries:     DefaultMaxRetries,
		Backoff:        DefaultBackoff(),
		PauseThreshold: DefaultPauseThreshold,
		AbortThreshold: DefaultAbortThreshold,
	}
}

// EffectiveConcurrency resolves Sequential and MaxParallel into the
// actual slot count. Zero means unlimited.
func (o Options) EffectiveConcurrency() int {
	if o.Sequential {
		return 1
	}
	return o.MaxParallel
}

// Validate rejects option combinations the dispatcher cannot honor.
func (o Options) Validate() error {
	if o.MaxParallel < 0 {
		return fmt.Errorf("%w: max parallel must be >= 0, got %d", errors.ErrInvalidInput, o.MaxParallel)
	}
	if o.UnitTimeout < 0 {
		return fmt.Errorf("%w: unit timeout must be >= 0, got %s", errors.ErrInvalidInput, o.UnitTimeout)
	}
	if o.MaxRetries < 0 {
		return fmt.Errorf("%w: max retries must be >= 0, got %d", errors.ErrInvalidInput, o.MaxRetries)
	}
	if o.MaxRetries > 0 && len(o.Backoff) == 0 {
		return fmt.Errorf("%w: retries enabled but no backoff schedule", errors.ErrInvalidInput)
	}
	for i, d := range o.Backoff {
		if d < 0 {
			return fmt.Errorf("%w: backoff[%d] must be >= 0, got %s", errors.ErrInvalidInput, i, d)
		}
	}
	if o.PauseThreshold < 0 {
		return fmt.Errorf("%w: pause threshold must be >= 0, got %d", errors.ErrInvalidInput, o.PauseThreshold)
	}
	if o.AbortThreshold < 0 {
		return fmt.Errorf("%w: abort threshold must be >= 0, got %d", errors.ErrInvalidInput, o.AbortThreshold)
	}
	return nil
}
