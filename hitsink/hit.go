// Package hitsink delivers the at-most-once-per-application diagnostic
// signal marking a successful corrective action. Sinks are diagnostics
// only — nothing in the patch control flow ever depends on a hit being
// delivered.
package hitsink

import (
	"time"

	"github.com/microcosm-cc/bluemonday"

	"github.com/hazyhaar/pagepatch/idgen"
)

// Hit is one successful corrective application.
type Hit struct {
	ID        string `json:"id"` // UUIDv7, "hit_" prefixed
	Patch     string `json:"patch"`
	PageURL   string `json:"page_url"`
	PageID    string `json:"page_id"`
	Detail    string `json:"detail,omitempty"`
	Timestamp int64  `json:"timestamp"` // epoch milliseconds
}

var (
	newHitID = idgen.Prefixed("hit_", idgen.Default)
	// Details may quote matched elements; markup is stripped before the
	// hit leaves the process.
	detailPolicy = bluemonday.StrictPolicy()
)

// NewHit builds a Hit for a patch application. detail may carry an element
// snippet or a pruned-path summary; any markup in it is stripped.
func NewHit(patch, pageURL, pageID, detail string) Hit {
	return Hit{
		ID:        newHitID(),
		Patch:     patch,
		PageURL:   pageURL,
		PageID:    pageID,
		Detail:    detailPolicy.Sanitize(detail),
		Timestamp: time.Now().UnixMilli(),
	}
}
