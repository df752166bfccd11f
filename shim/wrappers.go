package shim

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Capability names used with Registry.Install.
const (
	CapJSONParse      = "json.parse"
	CapSetTimeout     = "settimeout"
	CapSetInterval    = "setinterval"
	CapAnimationFrame = "requestanimationframe"
)

// jsonPrunerJS is the in-page mirror of pathprune: same wildcard
// look-through, same silent treatment of shape mismatches. It has to live
// in the page because JSON.parse is synchronous — a round trip to Go is not
// an option.
const jsonPrunerJS = `
	const resolve = (root, path, look) => {
		let cands = [root];
		const segs = path.split(".");
		const out = [];
		for (let i = 0; i < segs.length; i++) {
			const seg = segs[i], last = i === segs.length - 1;
			const next = [];
			for (const c of cands) {
				if (c === null || typeof c !== "object") continue;
				if (look && seg === "*") {
					for (const k of Object.keys(c)) {
						if (last) out.push([c, k]);
						else next.push(c[k]);
					}
				} else if (Object.prototype.hasOwnProperty.call(c, seg)) {
					if (last) out.push([c, seg]);
					else next.push(c[seg]);
				}
			}
			if (last) return out;
			cands = next;
		}
		return out;
	};
	const satisfied = (root, paths) => {
		for (const p of paths) {
			const wild = p.includes("*");
			const locs = resolve(root, p, wild);
			if (wild) {
				if (!locs.some(([c, k]) => c[k] !== undefined)) return false;
			} else {
				if (locs.length === 0) return false;
				if (!locs.every(([c, k]) => c[k] !== undefined)) return false;
			}
		}
		return true;
	};`

// JSONParsePrune builds a wrapper for JSON.parse that prunes prunePaths
// from every parsed payload, gated by requiredPaths (empty = no
// precondition). Returns the capability name and the wrapper source.
func JSONParsePrune(prunePaths, requiredPaths []string) (string, string, error) {
	prune, err := json.Marshal(nonNil(prunePaths))
	if err != nil {
		return "", "", fmt.Errorf("shim: encode prune paths: %w", err)
	}
	needles, err := json.Marshal(nonNil(requiredPaths))
	if err != nil {
		return "", "", fmt.Errorf("shim: encode required paths: %w", err)
	}

	js := fmt.Sprintf(`(() => {
	if (window.__pp_wrap_jsonparse) return;
	window.__pp_wrap_jsonparse = true;
	const original = JSON.parse;
	const PRUNE = %s;
	const NEEDLES = %s;
%s
	JSON.parse = function(...args) {
		const root = original.apply(this, args);
		try {
			if (NEEDLES.length !== 0 && !satisfied(root, NEEDLES)) return root;
			for (const p of PRUNE) {
				for (const [c, k] of resolve(root, p, p.includes("*"))) delete c[k];
			}
		} catch (e) {}
		return root;
	};
})();`, prune, needles, jsonPrunerJS)

	return CapJSONParse, js, nil
}

// PreventTimeout builds a wrapper for setTimeout that neuters callbacks
// whose source contains needle. An empty needle matches every callback; a
// leading "!" negates the match.
func PreventTimeout(needle string) (string, string) {
	return CapSetTimeout, timerWrapper("setTimeout", "__pp_wrap_settimeout", needle)
}

// PreventInterval is PreventTimeout for setInterval.
func PreventInterval(needle string) (string, string) {
	return CapSetInterval, timerWrapper("setInterval", "__pp_wrap_setinterval", needle)
}

// PreventAnimationFrame builds a wrapper for requestAnimationFrame that
// neuters matching callbacks. Same needle grammar as PreventTimeout.
func PreventAnimationFrame(needle string) (string, string) {
	pattern, negate := cutNegation(needle)
	js := fmt.Sprintf(`(() => {
	if (window.__pp_wrap_raf) return;
	window.__pp_wrap_raf = true;
	const original = window.requestAnimationFrame;
	const needle = %s, negate = %t;
	window.requestAnimationFrame = function(cb) {
		let match = needle === "" || String(cb).includes(needle);
		if (negate) match = !match;
		if (match) return original.call(this, () => {});
		return original.call(this, cb);
	};
})();`, mustJSON(pattern), negate)
	return CapAnimationFrame, js
}

func timerWrapper(name, flag, needle string) string {
	pattern, negate := cutNegation(needle)
	return fmt.Sprintf(`(() => {
	if (window.%s) return;
	window.%s = true;
	const original = window.%s;
	const needle = %s, negate = %t;
	window.%s = function(cb, delay, ...args) {
		let match = needle === "" || String(cb).includes(needle);
		if (negate) match = !match;
		if (match && typeof cb === "function") {
			return original.call(this, () => {}, delay);
		}
		return original.call(this, cb, delay, ...args);
	};
})();`, flag, flag, name, mustJSON(pattern), negate, name)
}

func cutNegation(needle string) (string, bool) {
	return strings.CutPrefix(needle, "!")
}

func mustJSON(s string) string {
	b, _ := json.Marshal(s) // strings cannot fail to encode
	return string(b)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
