package runat

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Lifecycle exposes the two one-shot document milestones as channels that
// close when the milestone is reached. A milestone already passed is a
// closed channel, so "run immediately if already past" falls out of a plain
// receive.
type Lifecycle interface {
	// DOMReady closes when the initial document structure has been parsed.
	DOMReady() <-chan struct{}
	// Loaded closes when the document is fully loaded.
	Loaded() <-chan struct{}
}

// WatchFunc binds a change observer that invokes onChange on every mutation
// batch. It returns a cancel func; cancel must be idempotent. Used by the
// Stay flag.
type WatchFunc func(ctx context.Context, onChange func()) (cancel func(), err error)

// Scheduler runs a corrective action at the milestones a FlagSet selects.
// One Scheduler per corrective action; it owns no global state.
type Scheduler struct {
	flags  FlagSet
	life   Lifecycle
	watch  WatchFunc
	logger *slog.Logger
}

// NewScheduler creates a Scheduler. watch may be nil when the flag set will
// never include Stay.
func NewScheduler(flags FlagSet, life Lifecycle, watch WatchFunc, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{flags: flags, life: life, watch: watch, logger: logger}
}

// Run schedules apply according to the flag set and returns without
// blocking. Each milestone flag triggers exactly one run; a set carrying
// only Stay still gets an initial ASAP-equivalent run, since Stay re-applies
// "after the initial run". The corrective body is wrapped defensively here,
// at the caller side, not inside the watcher: a panicking action is logged
// and swallowed so it can never take the document's other patches with it.
func (s *Scheduler) Run(ctx context.Context, apply func()) error {
	if s.flags.Has(Stay) && s.watch == nil {
		return fmt.Errorf("runat: stay flag requires a watch func")
	}

	ranOnce := make(chan struct{})
	var once sync.Once
	fire := func() {
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("runat: corrective action panicked", "panic", r)
			}
			// A panicking initial run still counts as run for Stay purposes.
			once.Do(func() { close(ranOnce) })
		}()
		apply()
	}

	// An explicit Complete without ASAP suppresses the initial-parse run.
	if s.flags.Has(ASAP) || !s.flags.Has(Complete) {
		go func() {
			select {
			case <-s.life.DOMReady():
				fire()
			case <-ctx.Done():
			}
		}()
	}

	if s.flags.Has(Complete) {
		go func() {
			select {
			case <-s.life.Loaded():
				fire()
			case <-ctx.Done():
			}
		}()
	}

	if s.flags.Has(Stay) {
		go func() {
			select {
			case <-ranOnce:
			case <-ctx.Done():
				return
			}
			cancel, err := s.watch(ctx, fire)
			if err != nil {
				s.logger.Error("runat: bind watcher failed", "error", err)
				return
			}
			<-ctx.Done()
			cancel()
		}()
	}

	return nil
}
