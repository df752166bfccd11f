package sequence

import (
	"log/slog"
	"regexp"
	"strings"
)

// Env carries the document-scoped facts the preconditions consult.
type Env struct {
	URL     string
	Cookies string // the document's cookie string
}

// Preconditions gate a sequencing run. Both fields are optional; a leading
// "!" negates the match. Evaluated once at start, never re-checked.
type Preconditions struct {
	// URLSubstring must occur in (or, negated, be absent from) the page URL.
	URLSubstring string
	// CookieRegexp must match (or, negated, not match) the cookie string.
	CookieRegexp string
}

// met reports whether the run may start. A malformed cookie pattern is
// invalid external input: logged and treated as "nothing matched", so the
// precondition fails rather than crashing the run.
func (p Preconditions) met(env Env, logger *slog.Logger) bool {
	if p.URLSubstring != "" {
		pattern, negate := strings.CutPrefix(p.URLSubstring, "!")
		if strings.Contains(env.URL, pattern) == negate {
			return false
		}
	}

	if p.CookieRegexp != "" {
		pattern, negate := strings.CutPrefix(p.CookieRegexp, "!")
		re, err := regexp.Compile(pattern)
		if err != nil {
			logger.Warn("sequence: malformed cookie pattern",
				"pattern", pattern, "error", err)
			return false
		}
		if re.MatchString(env.Cookies) == negate {
			return false
		}
	}

	return true
}
