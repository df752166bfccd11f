// Package sequence drives an ordered list of click targets to completion as
// they appear in a mutating document. One target is current at a time; each
// change batch is an opportunity to match it. The machine is a best-effort,
// bounded-time sequencer: a timeout abandons whatever remains, and already
// matched targets are never retried.
package sequence

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hazyhaar/pagepatch/domwatch"
)

// DefaultTimeout bounds how long a machine waits for its targets.
const DefaultTimeout = 10 * time.Second

// Driver locates and activates targets in the document.
type Driver interface {
	// Click activates the first element matching selector and reports
	// whether anything matched. A malformed selector is an error; an absent
	// element is (false, nil).
	Click(ctx context.Context, selector string) (bool, error)
}

// Config describes one sequencing run.
type Config struct {
	// Targets is consumed front-to-back; each selector is clicked once.
	Targets []string
	// Preconds gate the whole run; evaluated once at start.
	Preconds Preconditions
	// Timeout abandons the run. Zero means DefaultTimeout.
	Timeout time.Duration
	// OnComplete is invoked exactly once, only when every target was
	// clicked before the timeout.
	OnComplete func()
	Logger     *slog.Logger
}

// Machine is a running sequencer. It owns its watcher handle and timer.
type Machine struct {
	drv    Driver
	logger *slog.Logger

	mu        sync.Mutex
	remaining []string
	completed bool

	handle     *domwatch.Handle
	timer      *time.Timer
	done       chan struct{}
	finishOnce sync.Once
	onComplete func()
}

// Start evaluates the preconditions and, when they hold, installs a watcher
// on src and begins consuming targets. When the preconditions do not hold
// the machine never starts: no watcher, no timer, and the returned Machine
// is nil with a nil error — a silent no-op, not a failure.
func Start(ctx context.Context, drv Driver, src domwatch.Source, env Env, cfg Config) (*Machine, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if len(cfg.Targets) == 0 {
		return nil, fmt.Errorf("sequence: empty target list")
	}

	if !cfg.Preconds.met(env, logger) {
		logger.Debug("sequence: preconditions not met, skipping",
			"url", env.URL)
		return nil, nil
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	m := &Machine{
		drv:        drv,
		logger:     logger,
		remaining:  append([]string(nil), cfg.Targets...),
		done:       make(chan struct{}),
		onComplete: cfg.OnComplete,
	}

	// The source may already hold a buffered signal, so the watch goroutine
	// can reach step before Start returns. Hold the lock across handle and
	// timer assignment; step blocks on it until both are set.
	m.mu.Lock()
	m.handle = domwatch.Watch(ctx, src, func() { m.step(ctx) }, logger)
	m.timer = time.AfterFunc(timeout, func() {
		m.logger.Info("sequence: timeout, abandoning",
			"remaining", len(m.Remaining()))
		m.finish(false)
	})
	m.mu.Unlock()

	// Targets already present before the first batch still count.
	m.step(ctx)

	return m, nil
}

// step attempts the current target and advances past every target it can
// satisfy right now. Runs on the watch goroutine (and once at start).
func (m *Machine) step(ctx context.Context) {
	m.mu.Lock()
	if m.completed {
		m.mu.Unlock()
		return
	}

	for len(m.remaining) > 0 {
		sel := m.remaining[0]
		clicked, err := m.drv.Click(ctx, sel)
		if err != nil {
			// Malformed selector: log, treat as "nothing matched" and move
			// on so the valid targets still get their chance.
			m.logger.Warn("sequence: selector failed, skipping",
				"selector", sel, "error", err)
			m.remaining = m.remaining[1:]
			continue
		}
		if !clicked {
			m.mu.Unlock()
			return // wait for the next change batch
		}
		m.logger.Info("sequence: target clicked", "selector", sel)
		m.remaining = m.remaining[1:]
	}

	m.completed = true
	m.mu.Unlock()
	m.finish(true)
}

// finish cancels the watcher and timer. Success fires OnComplete exactly
// once; timeout fires nothing.
func (m *Machine) finish(success bool) {
	m.finishOnce.Do(func() {
		m.timer.Stop()
		m.handle.Cancel()
		if success && m.onComplete != nil {
			m.onComplete()
		}
		close(m.done)
	})
}

// Done closes when the machine reached a terminal state (all targets
// consumed, or timeout).
func (m *Machine) Done() <-chan struct{} { return m.done }

// Completed reports whether every target was clicked.
func (m *Machine) Completed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.completed
}

// Remaining returns the targets not yet matched.
func (m *Machine) Remaining() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.remaining...)
}

// Cancel abandons the run without a completion signal. Idempotent.
func (m *Machine) Cancel() { m.finish(false) }
