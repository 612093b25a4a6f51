// Package testutil provides shared test doubles for fanout tests.
package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/Iron-Ham/fanout/internal/executor"
)

// Step is one scripted attempt outcome for a ScriptedExecutor.
type Step struct {
	// Output is returned when Err is nil.
	Output string

	// Err is the attempt's failure, classified by the executor package.
	Err error

	// Delay is how long the attempt pretends to work before returning.
	// Context cancellation interrupts the wait.
	Delay time.Duration
}

// Succeed returns a step that completes with the given output.
func Succeed(output string) Step {
	return Step{Output: output}
}

// Timeout returns a step that fails with a timeout classification.
func Timeout() Step {
	return Step{Err: executor.NewTimeout("execution timed out")}
}

// Transient returns a step that fails with a retryable classification.
func Transient(message string) Step {
	return Step{Err: executor.NewTransient(message, nil)}
}

// Fatal returns a step that fails with a non-retryable classification.
func Fatal(message string) Step {
	return Step{Err: executor.NewFatal(message, nil)}
}

// Hang returns a step that blocks until the attempt context is done, so
// per-attempt deadlines and run cancellation can be exercised for real.
func Hang() Step {
	return Step{Delay: time.Hour}
}

// ScriptedExecutor plays back canned outcomes keyed by unit description.
// Each call to Execute consumes the next step of the unit's script; once
// a script is exhausted its last step repeats. Units without a script
// succeed with a fixed output. It also tracks how many attempts ran at
// once, which lets tests assert concurrency limits.
type ScriptedExecutor struct {
	mu            sync.Mutex
	scripts       map[string][]Step
	calls         map[string]int
	running       int
	maxConcurrent int
}

// NewScriptedExecutor creates an executor with no scripts.
func NewScriptedExecutor() *ScriptedExecutor {
	return &ScriptedExecutor{
		scripts: make(map[string][]Step),
		calls:   make(map[string]int),
	}
}

// Script sets the attempt outcomes for one unit description.
func (e *ScriptedExecutor) Script(description string, steps ...Step) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.scripts[description] = steps
}

// Execute implements executor.Executor.
func (e *ScriptedExecutor) Execute(ctx context.Context, description string) (string, error) {
	step := e.next(description)

	e.enter()
	defer e.exit()

	if step.Delay > 0 {
		timer := time.NewTimer(step.Delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-timer.C:
		}
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return step.Output, step.Err
}

// Calls returns how many attempts ran for the given unit description.
func (e *ScriptedExecutor) Calls(description string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls[description]
}

// TotalCalls returns how many attempts ran across all units.
func (e *ScriptedExecutor) TotalCalls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	total := 0
	for _, n := range e.calls {
		total += n
	}
	return total
}

// MaxConcurrent returns the peak number of attempts that ran at once.
func (e *ScriptedExecutor) MaxConcurrent() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.maxConcurrent
}

func (e *ScriptedExecutor) next(description string) Step {
	e.mu.Lock()
	defer e.mu.Unlock()

	idx := e.calls[description]
	e.calls[description]++

	steps := e.scripts[description]
	switch {
	case len(steps) == 0:
		return Step{Output: "ok"}
	case idx >= len(steps):
		return steps[len(steps)-1]
	default:
		return steps[idx]
	}
}

func (e *ScriptedExecutor) enter() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.running++
	if e.running > e.maxConcurrent {
		e.maxConcurrent = e.running
	}
}

func (e *ScriptedExecutor) exit() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.running--
}
