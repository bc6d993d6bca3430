package companion

import (
	"context"

	"github.com/companion-hub/companion-hub/internal/domain/shared"
)

// Account is the unit every companion mutation reads and writes: the
// owner's wallet plus one companion's state.
type Account struct {
	UserID string
	Wallet shared.Wallet
	State  State
}

// Mutation computes the next Account. It must be pure; Apply may call it
// more than once when a backend retries a conflicting transaction.
type Mutation func(acc Account) (Account, Outcome)

// Repository persists companion states.
type Repository interface {
	// Get returns ErrCompanionNotFound when the user has no state for species.
	Get(ctx context.Context, userID string, species Species) (State, error)

	// Init creates the starting state if absent and returns the stored
	// state. An existing state is never reset.
	Init(ctx context.Context, userID string, species Species) (State, error)

	// Apply runs m as one atomic read-modify-write over the owner's wallet
	// and the companion state. A missing companion starts from NewState.
	// Nothing is written when the Outcome is not Applied.
	Apply(ctx context.Context, userID string, species Species, m Mutation) (Account, Outcome, error)
}
