package patches

import (
	"context"
	"fmt"

	"github.com/hazyhaar/pagepatch/shim"
)

func init() {
	Register("json-prune", jsonPrune)
}

// jsonPrune wraps the document's JSON.parse so every payload the page
// parses loses the given paths.
//
//	args[0]  space-separated dotted paths to prune
//	args[1]  optional space-separated required paths gating the prune
func jsonPrune(ctx context.Context, env *Env, args []string) (func(), error) {
	if env.Shims == nil {
		return nil, fmt.Errorf("patches: json-prune: no shim registry")
	}

	prunePaths := splitList(arg(args, 0))
	if len(prunePaths) == 0 {
		return nil, fmt.Errorf("patches: json-prune: no prune paths")
	}

	capability, js, err := shim.JSONParsePrune(prunePaths, splitList(arg(args, 1)))
	if err != nil {
		return nil, fmt.Errorf("patches: json-prune: %w", err)
	}

	installed, err := env.Shims.Install(ctx, capability, js)
	if err != nil {
		return nil, fmt.Errorf("patches: json-prune: %w", err)
	}
	if installed {
		env.hit(ctx, "json-prune", fmt.Sprintf("JSON.parse wrapped, %d paths", len(prunePaths)))
	}
	return nil, nil
}
