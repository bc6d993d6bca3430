package profile

import (
	"context"
	"time"

	"github.com/companion-hub/companion-hub/internal/domain/companion"
)

// Repository persists profiles. Implementations live in
// infrastructure/persistence.
type Repository interface {
	// Create returns ErrProfileAlreadyExists when the id is taken.
	Create(ctx context.Context, p *Profile) error

	// Get returns ErrProfileNotFound when the document is missing.
	Get(ctx context.Context, id string) (*Profile, error)

	SaveFocus(ctx context.Context, id string, focus FocusSet, confirmedAt time.Time) error
	SetCompanion(ctx context.Context, id string, species companion.Species) error
	SaveMentorDetails(ctx context.Context, id string, d MentorDetails) error

	// AssignMentor sets the student's mentor id. Both must exist.
	AssignMentor(ctx context.Context, studentID, mentorID string) error

	// ListMentees returns students whose assigned mentor is mentorID, in
	// creation order. Backed by an index on (role, assigned_mentor_id).
	ListMentees(ctx context.Context, mentorID string) ([]*Profile, error)
}

// Invalidator drops cached copies of a profile. Wallet changes made through
// the companion and wellness repositories bypass the profile repository, so
// their callers invalidate explicitly.
type Invalidator interface {
	Invalidate(ctx context.Context, id string) error
}
