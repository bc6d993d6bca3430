// Package profile models users of the app: students with their focus areas,
// companion choice and wallet, and mentors with their public details.
package profile

import (
	"strings"
	"time"

	"github.com/companion-hub/companion-hub/internal/domain/companion"
	"github.com/companion-hub/companion-hub/internal/domain/shared"
)

// Role distinguishes students from mentors.
type Role string

const (
	RoleStudent Role = "STUDENT"
	RoleMentor  Role = "MENTOR"
)

// IsValid reports whether r is a known role.
func (r Role) IsValid() bool {
	return r == RoleStudent || r == RoleMentor
}

// ParseRole accepts the role name in any case.
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToUpper(strings.TrimSpace(s)))
	if !r.IsValid() {
		return "", shared.ErrInvalidRole
	}
	return r, nil
}

// Availability is when a mentor can be reached.
type Availability string

const (
	AvailabilityWeekdays   Availability = "WEEKDAYS"
	AvailabilityWeeknights Availability = "WEEKNIGHTS"
	AvailabilityWeekends   Availability = "WEEKENDS"
	AvailabilityFlexible   Availability = "FLEXIBLE"
)

// IsValid reports whether a is a known availability.
func (a Availability) IsValid() bool {
	switch a {
	case AvailabilityWeekdays, AvailabilityWeeknights, AvailabilityWeekends, AvailabilityFlexible:
		return true
	}
	return false
}

// MentorDetails is what students see about their mentor.
type MentorDetails struct {
	Name         string
	Bio          string
	SupportAreas FocusSet
	Availability Availability
}

const (
	maxNameLen = 80
	maxBioLen  = 1000
)

// Validate checks the details a mentor submits at setup.
func (d MentorDetails) Validate() error {
	name := strings.TrimSpace(d.Name)
	if name == "" {
		return shared.NewDomainError("profile", "SaveMentorDetails", shared.ErrEmptyValue, "mentor name is required")
	}
	if len(name) > maxNameLen || len(d.Bio) > maxBioLen {
		return shared.NewDomainError("profile", "SaveMentorDetails", shared.ErrValueOutOfRange, "mentor details too long")
	}
	if !d.Availability.IsValid() {
		return shared.ErrInvalidAvailability
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// PROFILE
// ══════════════════════════════════════════════════════════════════════════════

// Profile is the per-user document. It is created at sign-up and never
// hard-deleted.
type Profile struct {
	ID    string
	Email string
	Role  Role

	Focus            FocusSet
	FocusConfirmedAt time.Time

	// Empty until the student picks a companion.
	SelectedCompanion companion.Species

	// Written by the external matching process.
	AssignedMentorID string

	Wallet shared.Wallet

	// Set for mentors after setup.
	Mentor *MentorDetails

	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewProfile creates a fresh profile at sign-up.
func NewProfile(id, email string, role Role, now time.Time) (*Profile, error) {
	uid, err := shared.NewUserID(id)
	if err != nil {
		return nil, err
	}
	if !role.IsValid() {
		return nil, shared.ErrInvalidRole
	}
	return &Profile{
		ID:        uid.String(),
		Email:     strings.TrimSpace(email),
		Role:      role,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// IsMentor reports whether the profile belongs to a mentor.
func (p *Profile) IsMentor() bool {
	return p.Role == RoleMentor
}

// IsStudent reports whether the profile belongs to a student.
func (p *Profile) IsStudent() bool {
	return p.Role == RoleStudent
}

// HasConfirmedFocus reports whether onboarding was confirmed.
func (p *Profile) HasConfirmedFocus() bool {
	return !p.FocusConfirmedAt.IsZero()
}

// HasMentor reports whether a mentor is assigned.
func (p *Profile) HasMentor() bool {
	return p.AssignedMentorID != ""
}

// ConfirmFocus records the chosen areas. Re-confirming overwrites.
func (p *Profile) ConfirmFocus(focus FocusSet, now time.Time) error {
	if focus.IsEmpty() {
		return shared.ErrNoFocusSelected
	}
	p.Focus = focus
	p.FocusConfirmedAt = now
	p.UpdatedAt = now
	return nil
}

// SelectCompanion sets the single selected species. Last write wins.
func (p *Profile) SelectCompanion(s companion.Species, now time.Time) error {
	if err := companion.ValidateSelectable(s); err != nil {
		return err
	}
	p.SelectedCompanion = s
	p.UpdatedAt = now
	return nil
}

// SaveMentorDetails stores public mentor details. Only mentors have them.
func (p *Profile) SaveMentorDetails(d MentorDetails, now time.Time) error {
	if !p.IsMentor() {
		return shared.ErrNotAMentor
	}
	if err := d.Validate(); err != nil {
		return err
	}
	d.Name = strings.TrimSpace(d.Name)
	d.Bio = strings.TrimSpace(d.Bio)
	p.Mentor = &d
	p.UpdatedAt = now
	return nil
}

// DisplayName is the mentor name when set, otherwise the email.
func (p *Profile) DisplayName() string {
	if p.Mentor != nil && p.Mentor.Name != "" {
		return p.Mentor.Name
	}
	return p.Email
}

// Paired reports whether a and b are a student and that student's assigned
// mentor, in either order.
func Paired(a, b *Profile) bool {
	if a == nil || b == nil {
		return false
	}
	if a.IsStudent() && b.IsMentor() {
		return a.AssignedMentorID == b.ID
	}
	if a.IsMentor() && b.IsStudent() {
		return b.AssignedMentorID == a.ID
	}
	return false
}
