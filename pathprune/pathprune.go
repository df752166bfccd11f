// Package pathprune resolves dotted paths inside decoded JSON value graphs
// and prunes the slots they denote. It is the matching core shared by the
// response-editing patches: a path like "playerResponse.adPlacements" or
// "items.*.ad" is resolved against untrusted, adversary-controlled payloads,
// so every step degrades to "no match" instead of failing.
//
// Nothing in this package ever returns an error. Absent roots, missing keys
// and scalar dead-ends all resolve to an empty location set.
package pathprune

import (
	"strconv"
	"strings"
)

// Wildcard is the path segment matching any key at its depth, including
// array indices.
const Wildcard = "*"

// Location is a resolved (container, key) slot inside a value graph. The
// container is a transient reference into caller-supplied data: hold it only
// long enough to read or mutate the slot.
type Location struct {
	Container any
	Key       string
}

// Defined reports whether the slot currently holds a value. For maps this is
// key presence (an explicit null counts as present); for slices it is a
// non-nil element at an in-range index.
func (l Location) Defined() bool {
	switch c := l.Container.(type) {
	case map[string]any:
		_, ok := c[l.Key]
		return ok
	case []any:
		i, err := strconv.Atoi(l.Key)
		if err != nil || i < 0 || i >= len(c) {
			return false
		}
		return c[i] != nil
	}
	return false
}

// Get returns the value at the slot, or (nil, false) when undefined.
func (l Location) Get() (any, bool) {
	switch c := l.Container.(type) {
	case map[string]any:
		v, ok := c[l.Key]
		return v, ok
	case []any:
		i, err := strconv.Atoi(l.Key)
		if err != nil || i < 0 || i >= len(c) {
			return nil, false
		}
		return c[i], c[i] != nil
	}
	return nil, false
}

// Delete removes the value at the slot. Map keys are deleted; slice elements
// are nilled in place so the array keeps its shape. Deleting an already
// absent slot is a no-op — the resolver may hand out duplicate locations and
// callers delete each one blindly.
func (l Location) Delete() {
	switch c := l.Container.(type) {
	case map[string]any:
		delete(c, l.Key)
	case []any:
		if i, err := strconv.Atoi(l.Key); err == nil && i >= 0 && i < len(c) {
			c[i] = nil
		}
	}
}

// Resolve walks root along the dotted path and returns every slot the path
// denotes, depth-first left-to-right. A wildcard segment expands a container
// into all of its direct entries when lookThrough is true; with lookThrough
// false the "*" is treated as a literal key, which lets the same path string
// serve both matching and enumeration.
//
// Candidates lacking a concrete segment's key are dropped, as are branches
// ending on scalars — silently, never as an error. A nil root yields an
// empty set. Duplicate slots are not de-duplicated; deletion through a
// Location is idempotent so callers need not care.
func Resolve(root any, path string, lookThrough bool) []Location {
	if root == nil || path == "" {
		return nil
	}

	segments := strings.Split(path, ".")
	candidates := []any{root}

	for depth, seg := range segments {
		last := depth == len(segments)-1
		wildcard := lookThrough && seg == Wildcard

		var next []any
		var locs []Location

		for _, c := range candidates {
			if !isContainer(c) {
				continue
			}
			switch {
			case wildcard && last:
				for _, key := range entryKeys(c) {
					locs = append(locs, Location{Container: c, Key: key})
				}
			case wildcard:
				for _, key := range entryKeys(c) {
					if v, ok := (Location{Container: c, Key: key}).Get(); ok {
						next = append(next, v)
					}
				}
			case last:
				if hasKey(c, seg) {
					locs = append(locs, Location{Container: c, Key: seg})
				}
			default:
				if v, ok := (Location{Container: c, Key: seg}).Get(); ok {
					next = append(next, v)
				}
			}
		}

		if last {
			return locs
		}
		candidates = next
		if len(candidates) == 0 {
			return nil
		}
	}
	return nil
}

func hasKey(c any, key string) bool {
	switch c := c.(type) {
	case map[string]any:
		_, ok := c[key]
		return ok
	case []any:
		i, err := strconv.Atoi(key)
		return err == nil && i >= 0 && i < len(c) && c[i] != nil
	}
	return false
}

func isContainer(v any) bool {
	switch v.(type) {
	case map[string]any, []any:
		return true
	}
	return false
}

// entryKeys returns the direct entry keys of a container in a stable order:
// lexicographic for maps, positional for slices.
func entryKeys(c any) []string {
	switch c := c.(type) {
	case map[string]any:
		keys := make([]string, 0, len(c))
		for k := range c {
			keys = append(keys, k)
		}
		sortStrings(keys)
		return keys
	case []any:
		keys := make([]string, len(c))
		for i := range c {
			keys[i] = strconv.Itoa(i)
		}
		return keys
	}
	return nil
}

func sortStrings(s []string) {
	// Insertion sort: entry sets are small (object keys, array indices).
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j] < s[j-1]; j-- {
			s[j], s[j-1] = s[j-1], s[j]
		}
	}
}
