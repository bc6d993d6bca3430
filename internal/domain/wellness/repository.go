package wellness

import (
	"context"
	"time"

	"github.com/companion-hub/companion-hub/internal/domain/companion"
)

// Repository persists check-ins, lesson attempts and reward grants.
type Repository interface {
	// ApplyGrant atomically records g, credits the reward's XP and coins to
	// the owner's wallet, adds its progress to the species' companion (when
	// species is not empty) and, if checkin is not nil, stores the check-in.
	// Returns ErrGrantAlreadyExists, writing nothing, when g.Key was used.
	ApplyGrant(ctx context.Context, g Grant, species companion.Species, checkin *Checkin) error

	// ListCheckins returns the user's check-ins since the given time,
	// newest first.
	ListCheckins(ctx context.Context, userID string, since time.Time) ([]Checkin, error)

	SaveAttempt(ctx context.Context, a Attempt) error

	// GetAttempt returns ErrAttemptNotFound when absent.
	GetAttempt(ctx context.Context, userID, attemptID string) (Attempt, error)
}
