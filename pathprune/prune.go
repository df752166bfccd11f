package pathprune

import "strings"

// Prune deletes every slot denoted by prunePaths from root, provided the
// requiredPaths precondition holds. An empty requiredPaths list means "no
// precondition": pruning proceeds unconditionally. Returns the number of
// slots actually deleted.
//
// Wildcard detection is per path string: a path containing "*" is resolved
// with look-through enabled, any other path treats segments literally.
func Prune(root any, prunePaths, requiredPaths []string) int {
	if root == nil || len(prunePaths) == 0 {
		return 0
	}
	if len(requiredPaths) > 0 && !Satisfied(root, requiredPaths) {
		return 0
	}

	deleted := 0
	for _, path := range prunePaths {
		wildcard := strings.Contains(path, Wildcard)
		for _, loc := range Resolve(root, path, wildcard) {
			if loc.Defined() {
				loc.Delete()
				deleted++
			}
		}
	}
	return deleted
}
