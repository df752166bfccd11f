package patches

import (
	"context"
	"fmt"
	"strings"

	"github.com/hazyhaar/pagepatch/shim"
)

func init() {
	Register("prevent-timer", preventTimer)
	Register("prevent-raf", preventRAF)
}

// preventTimer neuters timer callbacks matching a needle.
//
//	args[0]  timer kind: "settimeout" or "setinterval"
//	args[1]  optional needle; "" matches every callback, "!" negates
func preventTimer(ctx context.Context, env *Env, args []string) (func(), error) {
	if env.Shims == nil {
		return nil, fmt.Errorf("patches: prevent-timer: no shim registry")
	}

	needle := arg(args, 1)
	var capability, js string
	switch kind := strings.ToLower(arg(args, 0)); kind {
	case "settimeout":
		capability, js = shim.PreventTimeout(needle)
	case "setinterval":
		capability, js = shim.PreventInterval(needle)
	default:
		return nil, fmt.Errorf("patches: prevent-timer: unknown kind %q", kind)
	}

	installed, err := env.Shims.Install(ctx, capability, js)
	if err != nil {
		return nil, fmt.Errorf("patches: prevent-timer: %w", err)
	}
	if installed {
		env.hit(ctx, "prevent-timer", capability+" wrapped, needle "+needle)
	}
	return nil, nil
}

// preventRAF neuters requestAnimationFrame callbacks matching a needle.
//
//	args[0]  optional needle, same grammar as prevent-timer
func preventRAF(ctx context.Context, env *Env, args []string) (func(), error) {
	if env.Shims == nil {
		return nil, fmt.Errorf("patches: prevent-raf: no shim registry")
	}

	capability, js := shim.PreventAnimationFrame(arg(args, 0))
	installed, err := env.Shims.Install(ctx, capability, js)
	if err != nil {
		return nil, fmt.Errorf("patches: prevent-raf: %w", err)
	}
	if installed {
		env.hit(ctx, "prevent-raf", "requestAnimationFrame wrapped")
	}
	return nil, nil
}
