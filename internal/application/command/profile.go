// Package command contains write operations (CQRS - Commands).
package command

import (
	"context"
	"fmt"
	"time"

	"github.com/companion-hub/companion-hub/internal/domain/profile"
	"github.com/companion-hub/companion-hub/internal/domain/shared"
	"github.com/companion-hub/companion-hub/pkg/logger"
)

// Clock returns the current time. Handlers default to time.Now.
type Clock func() time.Time

// publish sends an event and logs instead of failing the command.
func publish(ctx context.Context, p shared.EventPublisher, e shared.Event) {
	if p == nil {
		return
	}
	if err := p.Publish(e); err != nil {
		logger.FromContext(ctx).Warn("publish event failed",
			logger.String("event_type", string(e.EventType())),
			logger.Err(err),
		)
	}
}

// invalidate drops a cached profile; failures only cost freshness.
func invalidate(ctx context.Context, inv profile.Invalidator, userID string) {
	if inv == nil {
		return
	}
	if err := inv.Invalidate(ctx, userID); err != nil {
		logger.FromContext(ctx).Warn("profile cache invalidation failed", logger.UserID(userID), logger.Err(err))
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// REGISTER PROFILE COMMAND
// Creates the profile document at sign-up. The id comes from the identity
// service token.
// ══════════════════════════════════════════════════════════════════════════════

// RegisterProfileCommand contains the data to create a profile.
type RegisterProfileCommand struct {
	UserID string
	Email  string
	Role   string
}

// Validate validates the command.
func (c RegisterProfileCommand) Validate() error {
	if c.UserID == "" {
		return shared.NewDomainError("profile", "Register", shared.ErrEmptyValue, "user_id is required")
	}
	return nil
}

// RegisterProfileHandler handles RegisterProfileCommand.
type RegisterProfileHandler struct {
	profiles  profile.Repository
	publisher shared.EventPublisher
	now       Clock
}

// NewRegisterProfileHandler creates a new RegisterProfileHandler.
func NewRegisterProfileHandler(profiles profile.Repository, publisher shared.EventPublisher) *RegisterProfileHandler {
	return &RegisterProfileHandler{profiles: profiles, publisher: publisher, now: time.Now}
}

// Handle creates the profile. Registering twice returns ErrProfileAlreadyExists.
func (h *RegisterProfileHandler) Handle(ctx context.Context, cmd RegisterProfileCommand) (*profile.Profile, error) {
	if err := cmd.Validate(); err != nil {
		return nil, shared.WrapError("profile", "Register", shared.ErrInvalidInput, "user id is required", err)
	}

	role, err := profile.ParseRole(cmd.Role)
	if err != nil {
		return nil, err
	}

	p, err := profile.NewProfile(cmd.UserID, cmd.Email, role, h.now().UTC())
	if err != nil {
		return nil, err
	}

	if err := h.profiles.Create(ctx, p); err != nil {
		return nil, fmt.Errorf("register_profile: %w", err)
	}

	publish(ctx, h.publisher, shared.NewProfileRegisteredEvent(p.ID, string(p.Role)))
	return p, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// SAVE MENTOR PROFILE COMMAND
// ══════════════════════════════════════════════════════════════════════════════

// SaveMentorProfileCommand carries the mentor setup form.
type SaveMentorProfileCommand struct {
	UserID       string
	Name         string
	Bio          string
	SupportAreas []string
	Availability string
}

// SaveMentorProfileHandler handles SaveMentorProfileCommand.
type SaveMentorProfileHandler struct {
	profiles  profile.Repository
	publisher shared.EventPublisher
	now       Clock
}

// NewSaveMentorProfileHandler creates a new SaveMentorProfileHandler.
func NewSaveMentorProfileHandler(profiles profile.Repository, publisher shared.EventPublisher) *SaveMentorProfileHandler {
	return &SaveMentorProfileHandler{profiles: profiles, publisher: publisher, now: time.Now}
}

// Handle validates and stores the details. Only mentors may call it.
func (h *SaveMentorProfileHandler) Handle(ctx context.Context, cmd SaveMentorProfileCommand) (*profile.Profile, error) {
	p, err := h.profiles.Get(ctx, cmd.UserID)
	if err != nil {
		return nil, err
	}

	areas, err := profile.ParseFocusSet(cmd.SupportAreas)
	if err != nil {
		return nil, err
	}

	details := profile.MentorDetails{
		Name:         cmd.Name,
		Bio:          cmd.Bio,
		SupportAreas: areas,
		Availability: profile.Availability(cmd.Availability),
	}
	if err := p.SaveMentorDetails(details, h.now().UTC()); err != nil {
		return nil, err
	}

	if err := h.profiles.SaveMentorDetails(ctx, p.ID, *p.Mentor); err != nil {
		return nil, fmt.Errorf("save_mentor_profile: %w", err)
	}

	publish(ctx, h.publisher, shared.NewProfileChangedEvent(shared.EventMentorProfileSaved, p.ID))
	return p, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// ASSIGN MENTOR COMMAND
// Called by the external matching process through the admin API.
// ══════════════════════════════════════════════════════════════════════════════

// AssignMentorCommand pairs a student with a mentor.
type AssignMentorCommand struct {
	StudentID string
	MentorID  string
}

// Validate validates the command.
func (c AssignMentorCommand) Validate() error {
	if c.StudentID == "" || c.MentorID == "" {
		return shared.NewDomainError("profile", "AssignMentor", shared.ErrEmptyValue, "student_id and mentor_id are required")
	}
	if c.StudentID == c.MentorID {
		return shared.NewDomainError("profile", "AssignMentor", shared.ErrValidation, "cannot assign a user to themselves")
	}
	return nil
}

// AssignMentorHandler handles AssignMentorCommand.
type AssignMentorHandler struct {
	profiles  profile.Repository
	publisher shared.EventPublisher
}

// NewAssignMentorHandler creates a new AssignMentorHandler.
func NewAssignMentorHandler(profiles profile.Repository, publisher shared.EventPublisher) *AssignMentorHandler {
	return &AssignMentorHandler{profiles: profiles, publisher: publisher}
}

// Handle writes the assignment. Reassigning replaces the previous mentor.
func (h *AssignMentorHandler) Handle(ctx context.Context, cmd AssignMentorCommand) error {
	if err := cmd.Validate(); err != nil {
		return shared.WrapError("profile", "AssignMentor", shared.ErrInvalidInput, err.Error(), err)
	}

	if err := h.profiles.AssignMentor(ctx, cmd.StudentID, cmd.MentorID); err != nil {
		return err
	}

	logger.FromContext(ctx).Info("mentor assigned",
		logger.UserID(cmd.StudentID),
		logger.String("mentor_id", cmd.MentorID),
	)
	publish(ctx, h.publisher, shared.NewMentorAssignedEvent(cmd.StudentID, cmd.MentorID))
	return nil
}
