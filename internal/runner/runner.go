// Package runner orchestrates patched pages: it opens tabs, applies patch
// catalogs to them, and tracks what is running so the control plane can
// inspect and extend it.
//
// Ordering matters: shim-based patches must be installed before the
// document's own scripts run, so a page is opened, patched, and only then
// navigated.
package runner

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/hazyhaar/pagepatch/hitsink"
	"github.com/hazyhaar/pagepatch/internal/browser"
	"github.com/hazyhaar/pagepatch/internal/config"
	"github.com/hazyhaar/pagepatch/patches"
	"github.com/hazyhaar/pagepatch/shim"
)

// Runner owns the patched pages of one browser.
type Runner struct {
	baseCtx context.Context
	mgr     *browser.Manager
	sink    hitsink.Sink
	logger  *slog.Logger

	mu    sync.Mutex
	pages map[string]*pageState
}

// pageState carries its own context so patch watchers outlive whatever
// request applied them; ClosePage cancels it.
type pageState struct {
	ctx     context.Context
	cancel  context.CancelFunc
	tab     *browser.Tab
	env     *patches.Env
	applied []string
	stops   []func()
}

// PageStatus describes one running page for the control plane.
type PageStatus struct {
	ID      string   `json:"id"`
	URL     string   `json:"url"`
	Patches []string `json:"patches"`
}

// New creates a Runner over a started browser manager. ctx bounds the
// lifetime of every page the runner opens; sink receives the hits of every
// page and may be nil.
func New(ctx context.Context, mgr *browser.Manager, sink hitsink.Sink, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		baseCtx: ctx,
		mgr:     mgr,
		sink:    sink,
		logger:  logger,
		pages:   make(map[string]*pageState),
	}
}

// RunPage opens a tab, applies the given patches, and navigates to url.
func (r *Runner) RunPage(ctx context.Context, cfg config.PageConfig) error {
	if err := r.OpenPage(ctx, cfg.ID, cfg.URL); err != nil {
		return err
	}
	for _, p := range cfg.Patches {
		if err := r.Apply(ctx, cfg.ID, p.Name, p.Args); err != nil {
			r.logger.Error("runner: patch failed",
				"page", cfg.ID, "patch", p.Name, "error", err)
		}
	}
	return r.Navigate(ctx, cfg.ID)
}

// OpenPage opens an unnavigated tab under id. The page is patchable but
// blank until Navigate.
func (r *Runner) OpenPage(_ context.Context, id, url string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.pages[id]; dup {
		return fmt.Errorf("runner: page %q already open", id)
	}

	tab, err := browser.OpenTab(r.mgr, id)
	if err != nil {
		return fmt.Errorf("runner: open page %q: %w", id, err)
	}
	tab.PageURL = url

	pageCtx, cancel := context.WithCancel(r.baseCtx)
	r.pages[id] = &pageState{
		ctx:    pageCtx,
		cancel: cancel,
		tab:    tab,
		env: &patches.Env{
			Page:    tab.Page,
			PageID:  id,
			PageURL: url,
			Shims:   shim.NewPageRegistry(tab.Page, r.logger),
			Sink:    r.sink,
			Logger:  r.logger,
		},
	}
	r.logger.Info("runner: page opened", "page", id, "url", url)
	return nil
}

// Apply applies one patch to an open page. The patch runs under the
// page's own context, not the caller's, so a control-plane request ending
// does not tear down the watchers it installed.
func (r *Runner) Apply(_ context.Context, pageID, patch string, args []string) error {
	r.mu.Lock()
	st, ok := r.pages[pageID]
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("runner: unknown page %q", pageID)
	}

	stop, err := patches.Apply(st.ctx, patch, st.env, args)
	if err != nil {
		return fmt.Errorf("runner: apply %s to %q: %w", patch, pageID, err)
	}

	r.mu.Lock()
	st.applied = append(st.applied, patch)
	if stop != nil {
		st.stops = append(st.stops, stop)
	}
	r.mu.Unlock()
	r.logger.Info("runner: patch applied", "page", pageID, "patch", patch)
	return nil
}

// Navigate loads the page's URL.
func (r *Runner) Navigate(ctx context.Context, pageID string) error {
	r.mu.Lock()
	st, ok := r.pages[pageID]
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("runner: unknown page %q", pageID)
	}
	return st.tab.Navigate(ctx, st.env.PageURL, r.logger)
}

// Pages lists the running pages, insertion order not guaranteed.
func (r *Runner) Pages() []PageStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]PageStatus, 0, len(r.pages))
	for id, st := range r.pages {
		out = append(out, PageStatus{
			ID:      id,
			URL:     st.env.PageURL,
			Patches: append([]string(nil), st.applied...),
		})
	}
	return out
}

// ClosePage stops the page's patches and closes its tab.
func (r *Runner) ClosePage(pageID string) error {
	r.mu.Lock()
	st, ok := r.pages[pageID]
	delete(r.pages, pageID)
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("runner: unknown page %q", pageID)
	}

	st.cancel()
	for _, stop := range st.stops {
		stop()
	}
	return st.tab.Close()
}

// Close closes every page. The browser itself belongs to the caller.
func (r *Runner) Close() {
	r.mu.Lock()
	ids := make([]string, 0, len(r.pages))
	for id := range r.pages {
		ids = append(ids, id)
	}
	r.mu.Unlock()

	for _, id := range ids {
		if err := r.ClosePage(id); err != nil {
			r.logger.Warn("runner: close page failed", "page", id, "error", err)
		}
	}
}
