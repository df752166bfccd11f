package sequence

import (
	"context"
	"fmt"

	"github.com/go-rod/rod"
)

// PageDriver clicks targets in a live page. The click is dispatched in-page
// so an element appearing and disappearing between batches is handled by
// the same script turn that found it.
type PageDriver struct {
	page *rod.Page
}

// NewPageDriver wraps a rod page.
func NewPageDriver(page *rod.Page) *PageDriver {
	return &PageDriver{page: page}
}

func (d *PageDriver) Click(ctx context.Context, selector string) (bool, error) {
	res, err := d.page.Context(ctx).Eval(`(sel) => {
		let el;
		try { el = document.querySelector(sel); } catch (e) { return "bad"; }
		if (!el) return "absent";
		el.click();
		return "clicked";
	}`, selector)
	if err != nil {
		return false, fmt.Errorf("sequence: click eval: %w", err)
	}

	switch res.Value.Str() {
	case "clicked":
		return true, nil
	case "absent":
		return false, nil
	default:
		return false, fmt.Errorf("sequence: malformed selector %q", selector)
	}
}

// PageEnv reads the precondition facts from a live page.
func PageEnv(ctx context.Context, page *rod.Page) (Env, error) {
	info, err := page.Context(ctx).Info()
	if err != nil {
		return Env{}, fmt.Errorf("sequence: page info: %w", err)
	}
	res, err := page.Context(ctx).Eval(`() => document.cookie`)
	if err != nil {
		return Env{}, fmt.Errorf("sequence: read cookies: %w", err)
	}
	return Env{URL: info.URL, Cookies: res.Value.Str()}, nil
}
