package domwatch

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"github.com/hazyhaar/pagepatch/idgen"
)

//go:embed observer.js
var observerJS string

// PageSource streams coalesced MutationObserver batches from a live page.
// Every source injects its own observer under a unique binding name, so
// independent corrective actions can watch overlapping regions of the same
// document without stepping on each other.
type PageSource struct {
	page     *rod.Page
	token    string
	ch       chan struct{}
	cancel   context.CancelFunc
	logger   *slog.Logger
	once     sync.Once
	scriptID proto.PageScriptIdentifier
}

// NewPageSource injects a MutationObserver scoped to rootSelector (empty =
// whole document) and starts relaying its batches. observeAttributes extends
// observation to attribute-level changes, needed by patches that must
// re-strip attributes an adversary re-adds.
//
// A selector that is malformed or matches nothing is not an error: it is
// logged and the source simply never signals.
func NewPageSource(ctx context.Context, page *rod.Page, rootSelector string, observeAttributes bool, logger *slog.Logger) (*PageSource, error) {
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(ctx)
	src := &PageSource{
		page:   page,
		token:  idgen.NanoID(8)(),
		ch:     make(chan struct{}, 1),
		cancel: cancel,
		logger: logger,
	}

	binding := "pp_mut_" + src.token
	if err := (proto.RuntimeAddBinding{Name: binding}).Call(page); err != nil {
		cancel()
		return nil, fmt.Errorf("domwatch: add binding: %w", err)
	}

	go src.listen(ctx, binding)

	js, err := renderObserverJS(binding, src.stopName(), rootSelector, observeAttributes)
	if err != nil {
		cancel()
		return nil, err
	}

	// Navigation replaces the script context and takes the observer with
	// it. The binding survives, so re-registering the observer source for
	// every new document keeps the source alive across navigations — the
	// usual case being a source created on the blank pre-navigation page.
	reg, err := proto.PageAddScriptToEvaluateOnNewDocument{Source: selfInvoking(js)}.Call(page)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("domwatch: register observer: %w", err)
	}
	src.scriptID = reg.Identifier

	res, err := page.Context(ctx).Eval(js)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("domwatch: inject observer: %w", err)
	}
	if s := res.Value.Str(); s != "ok" {
		logger.Warn("domwatch: observer not installed", "reason", s, "selector", rootSelector)
	}

	return src, nil
}

// selfInvoking turns the observer's arrow-function source into a statement
// that runs on document creation, where nothing calls it.
func selfInvoking(js string) string {
	return "(" + js + ")();"
}

// Changes returns the coalesced change-signal channel. At most one signal is
// buffered; batches arriving while a signal is pending collapse into it.
func (s *PageSource) Changes() <-chan struct{} { return s.ch }

// Close disconnects the in-page observer, unregisters it from future
// documents, and stops relaying. Idempotent.
func (s *PageSource) Close() error {
	s.once.Do(func() {
		s.cancel()
		// Best effort: the page may already be gone.
		if s.scriptID != "" {
			_ = (proto.PageRemoveScriptToEvaluateOnNewDocument{Identifier: s.scriptID}).Call(s.page)
		}
		_, _ = s.page.Eval(fmt.Sprintf(`() => { const f = window[%q]; if (f) f(); }`, s.stopName()))
	})
	return nil
}

func (s *PageSource) stopName() string { return "pp_mut_stop_" + s.token }

func (s *PageSource) listen(ctx context.Context, binding string) {
	s.page.Context(ctx).EachEvent(func(e *proto.RuntimeBindingCalled) {
		if e.Name != binding {
			return
		}
		switch e.Payload {
		case "batch":
			select {
			case s.ch <- struct{}{}:
			default: // a signal is already pending — coalesce
			}
		case "noroot", "badselector":
			s.logger.Warn("domwatch: observer root unavailable",
				"reason", e.Payload, "page", s.page.TargetID)
		}
	})()
}

func renderObserverJS(binding, stopName, selector string, attrs bool) (string, error) {
	sel, err := json.Marshal(selector)
	if err != nil {
		return "", fmt.Errorf("domwatch: encode selector: %w", err)
	}
	attrJS := "false"
	if attrs {
		attrJS = "true"
	}
	r := strings.NewReplacer(
		"__BINDING__", binding,
		"__STOP__", stopName,
		"__SELECTOR__", string(sel),
		"__ATTRS__", attrJS,
	)
	return r.Replace(observerJS), nil
}
