package patches

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"github.com/hazyhaar/pagepatch/ldprune"
	"github.com/hazyhaar/pagepatch/pathprune"
)

func init() {
	Register("json-prune-response", jsonPruneResponse)
	Register("jsonld-prune", jsonLDPrune)
}

// hijackClient fetches the real response when a patch intercepts one.
var hijackClient = &http.Client{}

// jsonPruneResponse intercepts matching XHR/fetch responses and prunes
// their JSON bodies before the page sees them.
//
//	args[0]  URL glob the hijack router matches, e.g. "*/api/ads*"
//	args[1]  space-separated dotted paths to prune
//	args[2]  optional space-separated required paths gating the prune
func jsonPruneResponse(ctx context.Context, env *Env, args []string) (func(), error) {
	pattern := arg(args, 0)
	if pattern == "" {
		return nil, fmt.Errorf("patches: json-prune-response: no url pattern")
	}
	prunePaths := splitList(arg(args, 1))
	if len(prunePaths) == 0 {
		return nil, fmt.Errorf("patches: json-prune-response: no prune paths")
	}
	requiredPaths := splitList(arg(args, 2))

	logger := env.logger()
	handler := func(h *rod.Hijack) {
		if err := h.LoadResponse(hijackClient, true); err != nil {
			logger.Warn("patches: json-prune-response: load failed",
				"url", h.Request.URL().String(), "error", err)
			return
		}

		var root any
		if err := json.Unmarshal([]byte(h.Response.Body()), &root); err != nil {
			return // not JSON after all, pass through untouched
		}
		n := pathprune.Prune(root, prunePaths, requiredPaths)
		if n == 0 {
			return
		}

		edited, err := json.Marshal(root)
		if err != nil {
			logger.Warn("patches: json-prune-response: re-encode failed", "error", err)
			return
		}
		h.Response.SetBody(string(edited))
		env.hit(ctx, "json-prune-response",
			fmt.Sprintf("%d slots pruned from %s", n, h.Request.URL().String()))
	}

	router := env.Page.HijackRequests()
	for _, t := range []proto.NetworkResourceType{
		proto.NetworkResourceTypeXHR,
		proto.NetworkResourceTypeFetch,
	} {
		if err := router.Add(pattern, t, handler); err != nil {
			return nil, fmt.Errorf("patches: json-prune-response: add route: %w", err)
		}
	}
	go router.Run()

	var once sync.Once
	return func() { once.Do(func() { _ = router.Stop() }) }, nil
}

// jsonLDPrune intercepts document responses and prunes their
// application/ld+json blocks before the page parses them.
//
//	args[0]  space-separated dotted paths to prune
//	args[1]  optional space-separated required paths gating the prune
func jsonLDPrune(ctx context.Context, env *Env, args []string) (func(), error) {
	prunePaths := splitList(arg(args, 0))
	if len(prunePaths) == 0 {
		return nil, fmt.Errorf("patches: jsonld-prune: no prune paths")
	}
	requiredPaths := splitList(arg(args, 1))

	logger := env.logger()
	router := env.Page.HijackRequests()
	err := router.Add("*", proto.NetworkResourceTypeDocument, func(h *rod.Hijack) {
		if err := h.LoadResponse(hijackClient, true); err != nil {
			logger.Warn("patches: jsonld-prune: load failed",
				"url", h.Request.URL().String(), "error", err)
			return
		}

		edited, n, err := ldprune.Prune([]byte(h.Response.Body()), prunePaths, requiredPaths)
		if err != nil || n == 0 {
			return
		}
		h.Response.SetBody(string(edited))
		env.hit(ctx, "jsonld-prune",
			fmt.Sprintf("%d slots pruned from %s", n, h.Request.URL().String()))
	})
	if err != nil {
		return nil, fmt.Errorf("patches: jsonld-prune: add route: %w", err)
	}
	go router.Run()

	var once sync.Once
	return func() { once.Do(func() { _ = router.Stop() }) }, nil
}
