// Package control implements the file-based decision channel for
// headless runs. When a run pauses, a pending marker is written to the
// control directory; the operator answers by writing "continue" or
// "abort" to the decision file, which an fsnotify watcher picks up.
package control

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/Iron-Ham/fanout/internal/logging"
)

const (
	// DecisionFileName is the file the operator writes to answer a pause.
	DecisionFileName = "decision"
	// PendingFileName marks that a run is paused and waiting for a decision.
	PendingFileName = "decision.pending"

	// DefaultDebounce collapses the burst of events editors emit per save.
	DefaultDebounce = 250 * time.Millisecond
)

// Decision file contents recognized by the watcher.
const (
	answerContinue = "continue"
	answerAbort    = "abort"
)

// Watcher waits for resume/abort decisions written to a control
// directory. Its Decide method satisfies orchestrator.DecisionFunc.
type Watcher struct {
	dir      string
	debounce time.Duration
	logger   *logging.Logger

	watcher *fsnotify.Watcher

	// changed is signaled (capacity 1, drop on full) whenever the
	// decision file may have been written
	changed chan struct{}

	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewWatcher creates the control directory if needed and starts
// watching it for decision writes.
func NewWatcher(dir string, debounce time.Duration, logger *logging.Logger) (*Watcher, error) {
	if logger == nil {
		logger = logging.NopLogger()
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating control directory: %w", err)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating watcher: %w", err)
	}
	if err := fsw.Add(dir); err != nil {
		_ = fsw.Close()
		return nil, fmt.Errorf("watching control directory: %w", err)
	}

	w := &Watcher{
		dir:      dir,
		debounce: debounce,
		logger:   logger,
		watcher:  fsw,
		changed:  make(chan struct{}, 1),
		stopCh:   make(chan struct{}),
	}
	go w.watchLoop()
	return w, nil
}

// Dir returns the watched control directory.
func (w *Watcher) Dir() string {
	return w.dir
}

// Stop stops the watcher and releases the fsnotify handle.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
		_ = w.watcher.Close()
	})
}

// watchLoop coalesces decision-file events and signals waiters.
func (w *Watcher) watchLoop() {
	debounceTimer := time.NewTimer(0)
	<-debounceTimer.C // drain initial timer

	for {
		select {
		case <-w.stopCh:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if filepath.Base(event.Name) != DecisionFileName {
				continue
			}
			debounceTimer.Reset(w.debounce)

		case <-debounceTimer.C:
			w.signal()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("control watcher error", "error", err)
		}
	}
}

func (w *Watcher) signal() {
	select {
	case w.changed <- struct{}{}:
	default:
	}
}

// Decide blocks until the operator writes a decision, the context is
// cancelled, or the watcher is stopped. It writes a pending marker so
// operators can tell the run is waiting, and consumes the decision
// file once read. A decision file written before the pause counts.
func (w *Watcher) Decide(ctx context.Context, consecutive int) bool {
	w.writePending(consecutive)
	defer w.clear()

	w.logger.Info("waiting for decision",
		"dir", w.dir,
		"consecutive_failures", consecutive)

	for {
		if proceed, ok := w.readDecision(); ok {
			return proceed
		}

		select {
		case <-ctx.Done():
			return false
		case <-w.stopCh:
			return false
		case <-w.changed:
		}
	}
}

// readDecision reads and parses the decision file. The second return
// is false when no usable decision exists yet.
func (w *Watcher) readDecision() (bool, bool) {
	data, err := os.ReadFile(filepath.Join(w.dir, DecisionFileName))
	if err != nil {
		if !os.IsNotExist(err) {
			w.logger.Warn("reading decision file", "error", err)
		}
		return false, false
	}

	switch strings.ToLower(strings.TrimSpace(string(data))) {
	case answerContinue:
		w.logger.Info("decision received", "decision", answerContinue)
		return true, true
	case answerAbort:
		w.logger.Info("decision received", "decision", answerAbort)
		return false, true
	case "":
		// Likely caught mid-write; the next event retries.
		return false, false
	default:
		w.logger.Warn("unrecognized decision content, waiting",
			"content", strings.TrimSpace(string(data)))
		return false, false
	}
}

// writePending drops the marker telling operators how to respond.
func (w *Watcher) writePending(consecutive int) {
	body := fmt.Sprintf(
		"run paused after %d consecutive failures\nwrite %q or %q to %s to proceed\n",
		consecutive, answerContinue, answerAbort,
		filepath.Join(w.dir, DecisionFileName))
	if err := os.WriteFile(filepath.Join(w.dir, PendingFileName), []byte(body), 0o644); err != nil {
		w.logger.Warn("writing pending marker", "error", err)
	}
}

// clear removes the consumed decision and the pending marker so the
// next pause starts clean.
func (w *Watcher) clear() {
	_ = os.Remove(filepath.Join(w.dir, DecisionFileName))
	_ = os.Remove(filepath.Join(w.dir, PendingFileName))
}
