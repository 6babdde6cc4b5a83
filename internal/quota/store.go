package quota

import (
	"context"
	"time"
)

// Decision is the result of an admission check.
type Decision struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

// Store is the admission controller contract. A Store tracks one quota stage
// (script or image); the two stages use independent Store instances.
//
// Check performs an atomic check-and-increment for the identity's fixed
// window. Sweep removes entries whose window has elapsed, bounding memory
// growth from transient identities. Reset clears all entries; the HTTP layer
// only exposes it outside the production profile.
type Store interface {
	Check(ctx context.Context, identity string) (Decision, error)
	Sweep(ctx context.Context) (int, error)
	Reset(ctx context.Context) error
}
