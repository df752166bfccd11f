package runat

import (
	"context"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// PageLifecycle adapts a rod page's load events to the Lifecycle interface.
// It probes document.readyState once at construction so milestones the page
// has already passed report as closed channels immediately.
type PageLifecycle struct {
	domReady  chan struct{}
	loaded    chan struct{}
	domOnce   sync.Once
	loadOnce  sync.Once
}

// NewPageLifecycle subscribes to the page's lifecycle events. The returned
// value is valid until ctx ends.
func NewPageLifecycle(ctx context.Context, page *rod.Page) *PageLifecycle {
	pl := &PageLifecycle{
		domReady: make(chan struct{}),
		loaded:   make(chan struct{}),
	}
	go pl.listen(ctx, page)
	return pl
}

func (pl *PageLifecycle) DOMReady() <-chan struct{} { return pl.domReady }
func (pl *PageLifecycle) Loaded() <-chan struct{}   { return pl.loaded }

func (pl *PageLifecycle) listen(ctx context.Context, page *rod.Page) {
	// Probe first: attach may happen long after navigation. The blank
	// bootstrap document reports readyState "complete" before the real
	// navigation happens; milestones latched from it would belong to a
	// document that is about to be replaced.
	if res, err := page.Context(ctx).Eval(`() => ({href: location.href, state: document.readyState})`); err == nil {
		domReady, loaded := probeMilestones(res.Value.Get("href").Str(), res.Value.Get("state").Str())
		switch {
		case loaded:
			pl.markLoaded()
		case domReady:
			pl.markDOMReady()
		}
	}

	page.Context(ctx).EachEvent(
		func(e *proto.PageDomContentEventFired) {
			pl.markDOMReady()
		},
		func(e *proto.PageLoadEventFired) {
			pl.markLoaded()
		},
	)()
}

// probeMilestones maps a readyState probe to lifecycle milestones. A blank
// bootstrap document never counts, whatever its readyState says.
func probeMilestones(href, state string) (domReady, loaded bool) {
	if href == "" || href == "about:blank" {
		return false, false
	}
	switch state {
	case "interactive":
		return true, false
	case "complete":
		return true, true
	}
	return false, false
}

func (pl *PageLifecycle) markDOMReady() {
	pl.domOnce.Do(func() { close(pl.domReady) })
}

func (pl *PageLifecycle) markLoaded() {
	// Full load implies the parse milestone.
	pl.markDOMReady()
	pl.loadOnce.Do(func() { close(pl.loaded) })
}
