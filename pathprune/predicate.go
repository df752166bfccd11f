package pathprune

import "strings"

// Satisfied evaluates a required-path precondition against root.
//
// Each entry is resolved independently. A path without a wildcard is
// conjunctive: it must resolve to at least one slot and every resolved slot
// must be defined. A path with a wildcard is disjunctive: at least one of
// its expansions must be defined. The overall result is the conjunction
// across all entries.
//
// An empty requiredPaths list returns false. "No precondition" is a distinct
// case the caller owns — see Prune, which short-circuits before evaluating.
func Satisfied(root any, requiredPaths []string) bool {
	if len(requiredPaths) == 0 {
		return false
	}

	for _, path := range requiredPaths {
		wildcard := strings.Contains(path, Wildcard)
		locs := Resolve(root, path, wildcard)

		if wildcard {
			defined := false
			for _, loc := range locs {
				if loc.Defined() {
					defined = true
					break
				}
			}
			if !defined {
				return false
			}
			continue
		}

		if len(locs) == 0 {
			return false
		}
		for _, loc := range locs {
			if !loc.Defined() {
				return false
			}
		}
	}
	return true
}
