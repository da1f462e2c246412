package approval

import (
	"context"
	"errors"
)

// ErrConflict is returned by Update when the stored status does not match
// the expected prior status. The caller lost an optimistic race with a
// concurrent run and should leave the threat alone until the next pass.
var ErrConflict = errors.New("approval: state changed concurrently")

// Store is the persistence interface for approval states. Update must be
// atomic with respect to the expected-prior-status check so that two
// processes racing on the same threat cannot both post it.
type Store interface {
	// Get retrieves the state for a threat ID.
	Get(ctx context.Context, threatID string) (*State, bool, error)

	// List returns all persisted states.
	List(ctx context.Context) ([]*State, error)

	// Update persists next if and only if the stored status for the
	// threat equals expect; a threat with no stored row counts as
	// StatusNotPosted. Returns ErrConflict otherwise.
	Update(ctx context.Context, next *State, expect Status) error

	// Put persists next unconditionally. Used for non-transition field
	// updates such as recording the published reference.
	Put(ctx context.Context, next *State) error
}
