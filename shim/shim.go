// Package shim transparently wraps native capabilities of a document's
// script environment — structured-data parsing, timer scheduling, animation
// scheduling — so every future caller observes the corrected behavior
// without being aware of the wrap.
//
// Two rules hold per document: the original capability is captured exactly
// once at install time, and a capability is never wrapped twice. The
// Registry enforces the second on the Go side; the generated wrappers guard
// the first with an install flag inside the page, covering the case where
// two pagepatch instances share a browser.
package shim

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// InstallFunc delivers wrapper source into the document so that it runs
// before any document script, and immediately in the current document.
type InstallFunc func(ctx context.Context, js string) error

// Registry tracks installed capabilities for one document. Create one per
// page; it holds no global state.
type Registry struct {
	install InstallFunc
	logger  *slog.Logger

	mu        sync.Mutex
	installed map[string]bool
}

// NewRegistry creates a Registry over a raw install function. Most callers
// want NewPageRegistry.
func NewRegistry(install InstallFunc, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		install:   install,
		logger:    logger,
		installed: make(map[string]bool),
	}
}

// NewPageRegistry creates a Registry bound to a rod page. Wrappers are
// registered for future navigations and applied to the current document.
func NewPageRegistry(page *rod.Page, logger *slog.Logger) *Registry {
	return NewRegistry(func(ctx context.Context, js string) error {
		_, err := proto.PageAddScriptToEvaluateOnNewDocument{Source: js}.Call(page)
		if err != nil {
			return fmt.Errorf("shim: register on new document: %w", err)
		}
		// Apply to the already-loaded document too.
		if _, err := page.Context(ctx).Eval("() => { " + js + " }"); err != nil {
			return fmt.Errorf("shim: apply to current document: %w", err)
		}
		return nil
	}, logger)
}

// Install wraps the named capability with the given source. Installing a
// capability that is already wrapped is a no-op returning false — the
// single-install point per capability per document.
func (r *Registry) Install(ctx context.Context, capability, js string) (bool, error) {
	r.mu.Lock()
	if r.installed[capability] {
		r.mu.Unlock()
		r.logger.Debug("shim: capability already wrapped", "capability", capability)
		return false, nil
	}
	// Reserve before the round trip so concurrent installers of the same
	// capability cannot both pass the check.
	r.installed[capability] = true
	r.mu.Unlock()

	if err := r.install(ctx, js); err != nil {
		r.mu.Lock()
		delete(r.installed, capability)
		r.mu.Unlock()
		return false, err
	}

	r.logger.Info("shim: capability wrapped", "capability", capability)
	return true, nil
}

// Installed reports whether the capability is currently wrapped.
func (r *Registry) Installed(capability string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.installed[capability]
}
