// Package patches is the catalog of behavior patches. Each patch is a thin
// declarative wiring of the core packages — pathprune, runat, domwatch,
// sequence, shim — parameterized by a pre-split argument list. The catalog
// maps stable patch names to apply functions; callers look a patch up by the
// name a page config references.
package patches

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/go-rod/rod"

	"github.com/hazyhaar/pagepatch/hitsink"
	"github.com/hazyhaar/pagepatch/shim"
)

// Env carries what a patch needs from the page it applies to. Sink and
// Shims may be nil; patches treat both as absent.
type Env struct {
	Page    *rod.Page
	PageID  string
	PageURL string
	Shims   *shim.Registry
	Sink    hitsink.Sink
	Logger  *slog.Logger
}

func (e *Env) logger() *slog.Logger {
	if e.Logger == nil {
		return slog.Default()
	}
	return e.Logger
}

// hit reports a successful application. Delivery failures are logged and
// ignored; hits are diagnostics, never control flow.
func (e *Env) hit(ctx context.Context, patch, detail string) {
	if e.Sink == nil {
		return
	}
	h := hitsink.NewHit(patch, e.PageURL, e.PageID, detail)
	if err := e.Sink.Send(ctx, h); err != nil {
		e.logger().Warn("patches: hit delivery failed", "patch", patch, "error", err)
	}
}

// Func applies one patch. The returned stop func releases whatever the
// patch keeps running (watchers, schedulers, hijack routers); it is nil
// when nothing outlives the call and must be idempotent otherwise.
type Func func(ctx context.Context, env *Env, args []string) (stop func(), err error)

var (
	catalogMu sync.RWMutex
	catalog   = make(map[string]Func)
)

// Register adds a patch to the catalog. Registering a name twice panics;
// the catalog is assembled at init time and a duplicate is a programming
// error.
func Register(name string, fn Func) {
	catalogMu.Lock()
	defer catalogMu.Unlock()
	if _, dup := catalog[name]; dup {
		panic(fmt.Sprintf("patches: duplicate registration of %q", name))
	}
	catalog[name] = fn
}

// Lookup returns the patch registered under name.
func Lookup(name string) (Func, bool) {
	catalogMu.RLock()
	defer catalogMu.RUnlock()
	fn, ok := catalog[name]
	return fn, ok
}

// Names lists the registered patch names, sorted.
func Names() []string {
	catalogMu.RLock()
	defer catalogMu.RUnlock()
	names := make([]string, 0, len(catalog))
	for n := range catalog {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Apply looks the patch up and invokes it.
func Apply(ctx context.Context, name string, env *Env, args []string) (func(), error) {
	fn, ok := Lookup(name)
	if !ok {
		return nil, fmt.Errorf("patches: unknown patch %q", name)
	}
	return fn(ctx, env, args)
}

// arg returns args[i] or "" when the list is shorter.
func arg(args []string, i int) string {
	if i < len(args) {
		return args[i]
	}
	return ""
}

// splitList splits a space-separated argument into its items. Empty input
// yields nil.
func splitList(s string) []string {
	return strings.Fields(s)
}

// splitCSV splits a comma-separated argument, trimming whitespace and
// dropping empty items.
func splitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
