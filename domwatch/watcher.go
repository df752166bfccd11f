// Package domwatch keeps corrective actions valid while the document
// mutates. A Watcher subscribes to batched structural-change signals scoped
// to a document region and invokes a callback on every batch — the batch
// detail is deliberately discarded, correctness depends only on "something
// changed".
//
// Each corrective action owns its own Handle; independent watchers over
// overlapping regions never coordinate. The watcher does not wrap the
// callback defensively: the corrective body is the caller's to guard (see
// runat.Scheduler), the watcher only delivers signals.
package domwatch

import (
	"context"
	"log/slog"
	"sync"
)

// Source is a stream of change signals. Implementations coalesce: a signal
// means "at least one batch since the last receive". Closing the channel
// ends the stream.
type Source interface {
	Changes() <-chan struct{}
	Close() error
}

// Handle is a cancellable subscription. Cancellation is terminal and
// idempotent; a callback already in flight is not interrupted.
type Handle struct {
	cancel context.CancelFunc
	src    Source
	once   sync.Once
	done   chan struct{}
}

// Cancel stops future callback invocations. Safe to call any number of
// times from any goroutine.
func (h *Handle) Cancel() {
	h.once.Do(func() {
		h.cancel()
		_ = h.src.Close()
	})
}

// Done closes when the watch loop has exited.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Watch binds callback to the source's change signals and returns the
// owning Handle. callback runs on the watch goroutine, one invocation per
// signal, in delivery order.
func Watch(ctx context.Context, src Source, callback func(), logger *slog.Logger) *Handle {
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(ctx)
	h := &Handle{cancel: cancel, src: src, done: make(chan struct{})}

	go func() {
		defer close(h.done)
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-src.Changes():
				if !ok {
					logger.Debug("domwatch: source closed")
					return
				}
				callback()
			}
		}
	}()

	return h
}
