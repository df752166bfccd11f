package hitsink

import "context"

// HitFunc is called for each hit (in-process, zero serialisation).
type HitFunc func(ctx context.Context, hit Hit) error

// Callback delivers hits via a Go function call. Used when the embedding
// application consumes hits in the same binary.
type Callback struct {
	onHit HitFunc
}

// NewCallback creates a Callback sink. A nil handler drops every hit.
func NewCallback(onHit HitFunc) *Callback {
	return &Callback{onHit: onHit}
}

func (c *Callback) Send(ctx context.Context, hit Hit) error {
	if c.onHit != nil {
		return c.onHit(ctx, hit)
	}
	return nil
}

func (c *Callback) Close() error { return nil }
