package patches

import (
	"context"
	"fmt"
	"sync"

	"github.com/hazyhaar/pagepatch/domwatch"
	"github.com/hazyhaar/pagepatch/runat"
)

func init() {
	Register("set-attr", setAttr)
	Register("remove-attr", removeAttr)
}

// setAttr forces an attribute value on every element matching a selector,
// re-applying whenever the document mutates it back.
//
//	args[0]  CSS selector
//	args[1]  attribute name
//	args[2]  attribute value
//	args[3]  optional run-at flags, default "asap stay"
func setAttr(ctx context.Context, env *Env, args []string) (func(), error) {
	selector, name, value := arg(args, 0), arg(args, 1), arg(args, 2)
	if selector == "" || name == "" {
		return nil, fmt.Errorf("patches: set-attr: selector and attribute required")
	}

	return scheduleCorrective(ctx, env, "set-attr", arg(args, 3),
		func(runCtx context.Context) (int, error) {
			res, err := env.Page.Context(runCtx).Eval(`(sel, name, value) => {
				let els;
				try { els = document.querySelectorAll(sel); } catch (e) { return -1; }
				let n = 0;
				for (const el of els) {
					if (el.getAttribute(name) !== value) {
						el.setAttribute(name, value);
						n++;
					}
				}
				return n;
			}`, selector, name, value)
			if err != nil {
				return 0, err
			}
			return res.Value.Int(), nil
		})
}

// removeAttr strips attributes from every element matching a selector,
// re-stripping whenever the document adds them back.
//
//	args[0]  CSS selector
//	args[1]  space-separated attribute names
//	args[2]  optional run-at flags, default "asap stay"
func removeAttr(ctx context.Context, env *Env, args []string) (func(), error) {
	selector := arg(args, 0)
	names := splitList(arg(args, 1))
	if selector == "" || len(names) == 0 {
		return nil, fmt.Errorf("patches: remove-attr: selector and attributes required")
	}

	return scheduleCorrective(ctx, env, "remove-attr", arg(args, 2),
		func(runCtx context.Context) (int, error) {
			res, err := env.Page.Context(runCtx).Eval(`(sel, names) => {
				let els;
				try { els = document.querySelectorAll(sel); } catch (e) { return -1; }
				let n = 0;
				for (const el of els) {
					for (const name of names) {
						if (el.hasAttribute(name)) {
							el.removeAttribute(name);
							n++;
						}
					}
				}
				return n;
			}`, selector, names)
			if err != nil {
				return 0, err
			}
			return res.Value.Int(), nil
		})
}

// scheduleCorrective runs apply under a flag scheduler, with a whole-document
// attribute-observing watcher backing the stay flag. apply returns how many
// corrections it made; negative means the selector was malformed. The first
// application that corrects something emits the hit.
func scheduleCorrective(ctx context.Context, env *Env, patch, flagsArg string, apply func(context.Context) (int, error)) (func(), error) {
	logger := env.logger()
	runCtx, cancel := context.WithCancel(ctx)

	watch := func(wctx context.Context, onChange func()) (func(), error) {
		src, err := domwatch.NewPageSource(wctx, env.Page, "", true, logger)
		if err != nil {
			return nil, err
		}
		return domwatch.Watch(wctx, src, onChange, logger).Cancel, nil
	}

	var hitOnce sync.Once
	sched := runat.NewScheduler(runat.Parse(flagsArg),
		runat.NewPageLifecycle(runCtx, env.Page), watch, logger)
	err := sched.Run(runCtx, func() {
		n, err := apply(runCtx)
		if err != nil {
			logger.Warn("patches: corrective failed", "patch", patch, "error", err)
			return
		}
		if n < 0 {
			logger.Warn("patches: malformed selector", "patch", patch)
			return
		}
		if n > 0 {
			logger.Debug("patches: attributes corrected", "patch", patch, "count", n)
			hitOnce.Do(func() {
				env.hit(runCtx, patch, fmt.Sprintf("%d attributes corrected", n))
			})
		}
	})
	if err != nil {
		cancel()
		return nil, err
	}
	return cancel, nil
}
