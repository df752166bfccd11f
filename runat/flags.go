// Package runat decides when a corrective action runs relative to the
// document lifecycle. A small space-separated flag grammar selects the
// trigger milestones; the Scheduler turns a parsed FlagSet plus a page
// Lifecycle into actual invocations.
package runat

import "strings"

// Flag is a recognized scheduling directive.
type Flag string

const (
	// ASAP runs the action at the initial-parse milestone, or immediately
	// when the document is already past it. Exactly once.
	ASAP Flag = "asap"
	// Complete runs the action at the full-load milestone, or immediately
	// when already loaded. Exactly once.
	Complete Flag = "complete"
	// Stay re-applies the action on every mutation batch after the initial
	// run, until the document context ends.
	Stay Flag = "stay"
)

// DefaultFlags is the set an empty or fully unrecognized flag string
// resolves to.
var DefaultFlags = []Flag{ASAP, Stay}

// FlagSet is an immutable set of recognized flags. The zero value is empty;
// use Parse to obtain the documented default on empty input.
type FlagSet struct {
	asap     bool
	complete bool
	stay     bool
}

// Parse splits s on whitespace and collects the recognized tokens.
// Unrecognized tokens are dropped without error; repeats collapse. When no
// recognized token survives, the result is DefaultFlags.
func Parse(s string) FlagSet {
	var fs FlagSet
	for _, tok := range strings.Fields(s) {
		switch Flag(tok) {
		case ASAP:
			fs.asap = true
		case Complete:
			fs.complete = true
		case Stay:
			fs.stay = true
		}
	}
	if fs == (FlagSet{}) {
		for _, f := range DefaultFlags {
			switch f {
			case ASAP:
				fs.asap = true
			case Complete:
				fs.complete = true
			case Stay:
				fs.stay = true
			}
		}
	}
	return fs
}

// Has reports membership. Idempotent; the set never changes after Parse.
func (fs FlagSet) Has(f Flag) bool {
	switch f {
	case ASAP:
		return fs.asap
	case Complete:
		return fs.complete
	case Stay:
		return fs.stay
	}
	return false
}

// String renders the set in canonical order for logs.
func (fs FlagSet) String() string {
	var parts []string
	if fs.asap {
		parts = append(parts, string(ASAP))
	}
	if fs.complete {
		parts = append(parts, string(Complete))
	}
	if fs.stay {
		parts = append(parts, string(Stay))
	}
	return strings.Join(parts, " ")
}
