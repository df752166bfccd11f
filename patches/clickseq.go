package patches

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/hazyhaar/pagepatch/domwatch"
	"github.com/hazyhaar/pagepatch/runat"
	"github.com/hazyhaar/pagepatch/sequence"
)

func init() {
	Register("click-sequence", clickSequence)
}

// clickSequence drives an ordered list of click targets to completion.
//
//	args[0]   comma-separated CSS selectors, clicked in order
//	args[1:]  optional key=value settings:
//	          url=SUBSTR     URL precondition, "!" negates
//	          cookie=RE      cookie precondition regexp, "!" negates
//	          timeout=DUR    abandon after DUR (Go duration syntax)
//
// The hit fires exactly once, when the last target was clicked before the
// timeout. Unmet preconditions make the whole patch a silent no-op.
func clickSequence(ctx context.Context, env *Env, args []string) (func(), error) {
	targets := splitCSV(arg(args, 0))
	if len(targets) == 0 {
		return nil, fmt.Errorf("patches: click-sequence: no targets")
	}

	cfg := sequence.Config{
		Targets: targets,
		Logger:  env.logger(),
		OnComplete: func() {
			env.hit(ctx, "click-sequence",
				fmt.Sprintf("%d targets clicked", len(targets)))
		},
	}
	for _, kv := range args[1:] {
		key, value, ok := strings.Cut(kv, "=")
		if !ok {
			return nil, fmt.Errorf("patches: click-sequence: malformed setting %q", kv)
		}
		switch key {
		case "url":
			cfg.Preconds.URLSubstring = value
		case "cookie":
			cfg.Preconds.CookieRegexp = value
		case "timeout":
			d, err := time.ParseDuration(value)
			if err != nil {
				return nil, fmt.Errorf("patches: click-sequence: timeout: %w", err)
			}
			cfg.Timeout = d
		default:
			return nil, fmt.Errorf("patches: click-sequence: unknown setting %q", key)
		}
	}

	if env.Page == nil {
		return nil, fmt.Errorf("patches: click-sequence: no page")
	}

	runCtx, cancel := context.WithCancel(ctx)
	deps := seqDeps{
		ready: runat.NewPageLifecycle(runCtx, env.Page).DOMReady(),
		env: func(c context.Context) (sequence.Env, error) {
			return sequence.PageEnv(c, env.Page)
		},
		source: func(c context.Context) (domwatch.Source, error) {
			return domwatch.NewPageSource(c, env.Page, "", false, env.logger())
		},
		driver: sequence.NewPageDriver(env.Page),
	}
	return startWhenReady(runCtx, cancel, deps, cfg, env.logger()), nil
}

// seqDeps are the page-bound pieces of a sequencing run, injectable so the
// deferred-start logic can be exercised without a browser.
type seqDeps struct {
	ready  <-chan struct{}
	env    func(context.Context) (sequence.Env, error)
	source func(context.Context) (domwatch.Source, error)
	driver sequence.Driver
}

// startWhenReady launches the sequencing run once the document has parsed.
// Patches apply before navigation, so reading the URL and cookies any
// earlier would evaluate the preconditions against the blank bootstrap page
// and disable the patch. The returned stop is idempotent and safe to call
// before the run has started.
func startWhenReady(ctx context.Context, cancel context.CancelFunc, deps seqDeps, cfg sequence.Config, logger *slog.Logger) func() {
	var (
		mu sync.Mutex
		m  *sequence.Machine
	)

	go func() {
		select {
		case <-ctx.Done():
			return
		case <-deps.ready:
		}

		penv, err := deps.env(ctx)
		if err != nil {
			logger.Warn("patches: click-sequence: read page env", "error", err)
			return
		}
		src, err := deps.source(ctx)
		if err != nil {
			logger.Warn("patches: click-sequence: watch page", "error", err)
			return
		}

		started, err := sequence.Start(ctx, deps.driver, src, penv, cfg)
		if err != nil || started == nil {
			// Preconditions not met, or the run could not start.
			_ = src.Close()
			if err != nil {
				logger.Warn("patches: click-sequence: start", "error", err)
			}
			return
		}

		mu.Lock()
		if ctx.Err() != nil {
			mu.Unlock()
			started.Cancel()
			return
		}
		m = started
		mu.Unlock()
	}()

	return func() {
		cancel()
		mu.Lock()
		if m != nil {
			m.Cancel()
		}
		mu.Unlock()
	}
}
