// Package query contains read operations (CQRS - Queries).
package query

import (
	"context"
	"time"

	"github.com/companion-hub/companion-hub/internal/domain/chat"
	"github.com/companion-hub/companion-hub/internal/domain/profile"
	"github.com/companion-hub/companion-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// DTOs
// ══════════════════════════════════════════════════════════════════════════════

// ProfileDTO is the caller's own profile.
type ProfileDTO struct {
	ID                string        `json:"id"`
	Email             string        `json:"email"`
	Role              string        `json:"role"`
	Focus             []string      `json:"focus"`
	FocusConfirmed    bool          `json:"focus_confirmed"`
	SelectedCompanion string        `json:"selected_companion,omitempty"`
	AssignedMentorID  string        `json:"assigned_mentor_id,omitempty"`
	Wallet            shared.Wallet `json:"wallet"`
	Mentor            *MentorDTO    `json:"mentor_details,omitempty"`
	CreatedAt         time.Time     `json:"created_at"`
}

// MentorDTO is what a student sees about a mentor.
type MentorDTO struct {
	ID             string   `json:"id"`
	Name           string   `json:"name"`
	Bio            string   `json:"bio,omitempty"`
	SupportAreas   []string `json:"support_areas"`
	Availability   string   `json:"availability,omitempty"`
	ConversationID string   `json:"conversation_id,omitempty"`
}

// ToProfileDTO converts a profile for the API.
func ToProfileDTO(p *profile.Profile) ProfileDTO {
	dto := ProfileDTO{
		ID:                p.ID,
		Email:             p.Email,
		Role:              string(p.Role),
		Focus:             p.Focus.Strings(),
		FocusConfirmed:    p.HasConfirmedFocus(),
		SelectedCompanion: string(p.SelectedCompanion),
		AssignedMentorID:  p.AssignedMentorID,
		Wallet:            p.Wallet,
		CreatedAt:         p.CreatedAt,
	}
	if p.IsMentor() {
		m := toMentorDTO(p, "")
		dto.Mentor = &m
	}
	return dto
}

func toMentorDTO(p *profile.Profile, studentID string) MentorDTO {
	dto := MentorDTO{
		ID:           p.ID,
		Name:         p.DisplayName(),
		SupportAreas: []string{},
	}
	if p.Mentor != nil {
		dto.Bio = p.Mentor.Bio
		dto.SupportAreas = p.Mentor.SupportAreas.Strings()
		dto.Availability = string(p.Mentor.Availability)
	}
	if studentID != "" {
		dto.ConversationID = chat.ConversationID(studentID, p.ID)
	}
	return dto
}

// ══════════════════════════════════════════════════════════════════════════════
// GET PROFILE QUERY
// ══════════════════════════════════════════════════════════════════════════════

// GetProfileHandler reads the caller's profile.
type GetProfileHandler struct {
	profiles profile.Repository
}

// NewGetProfileHandler creates a new GetProfileHandler.
func NewGetProfileHandler(profiles profile.Repository) *GetProfileHandler {
	return &GetProfileHandler{profiles: profiles}
}

// Handle returns ErrProfileNotFound before registration.
func (h *GetProfileHandler) Handle(ctx context.Context, userID string) (*ProfileDTO, error) {
	p, err := h.profiles.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	dto := ToProfileDTO(p)
	return &dto, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// GET ASSIGNED MENTOR QUERY
// Student profile → assigned mentor id → mentor profile. No assignment and
// a dangling id are both the empty result, not errors.
// ══════════════════════════════════════════════════════════════════════════════

// GetAssignedMentorHandler resolves a student's mentor.
type GetAssignedMentorHandler struct {
	profiles profile.Repository
}

// NewGetAssignedMentorHandler creates a new GetAssignedMentorHandler.
func NewGetAssignedMentorHandler(profiles profile.Repository) *GetAssignedMentorHandler {
	return &GetAssignedMentorHandler{profiles: profiles}
}

// Handle returns nil, nil when no mentor is assigned.
func (h *GetAssignedMentorHandler) Handle(ctx context.Context, studentID string) (*MentorDTO, error) {
	p, err := h.profiles.Get(ctx, studentID)
	if err != nil {
		return nil, err
	}
	return h.forProfile(ctx, p)
}

func (h *GetAssignedMentorHandler) forProfile(ctx context.Context, p *profile.Profile) (*MentorDTO, error) {
	if !p.HasMentor() {
		return nil, nil
	}
	mentor, err := h.profiles.Get(ctx, p.AssignedMentorID)
	if shared.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	dto := toMentorDTO(mentor, p.ID)
	return &dto, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// GET MENTOR DASHBOARD QUERY
// ══════════════════════════════════════════════════════════════════════════════

// MenteeDTO is one student on a mentor's dashboard.
type MenteeDTO struct {
	ID                string    `json:"id"`
	Email             string    `json:"email"`
	Focus             []string  `json:"focus"`
	SelectedCompanion string    `json:"selected_companion,omitempty"`
	ConversationID    string    `json:"conversation_id"`
	JoinedAt          time.Time `json:"joined_at"`
}

// MentorDashboardDTO lists a mentor's students.
type MentorDashboardDTO struct {
	Mentor   MentorDTO   `json:"mentor"`
	Students []MenteeDTO `json:"students"`
}

// GetMentorDashboardHandler lists the students assigned to a mentor.
type GetMentorDashboardHandler struct {
	profiles profile.Repository
}

// NewGetMentorDashboardHandler creates a new GetMentorDashboardHandler.
func NewGetMentorDashboardHandler(profiles profile.Repository) *GetMentorDashboardHandler {
	return &GetMentorDashboardHandler{profiles: profiles}
}

// Handle returns ErrNotAMentor for student callers.
func (h *GetMentorDashboardHandler) Handle(ctx context.Context, mentorID string) (*MentorDashboardDTO, error) {
	m, err := h.profiles.Get(ctx, mentorID)
	if err != nil {
		return nil, err
	}
	if !m.IsMentor() {
		return nil, shared.ErrNotAMentor
	}

	mentees, err := h.profiles.ListMentees(ctx, mentorID)
	if err != nil {
		return nil, err
	}

	dto := &MentorDashboardDTO{
		Mentor:   toMentorDTO(m, ""),
		Students: make([]MenteeDTO, 0, len(mentees)),
	}
	for _, s := range mentees {
		dto.Students = append(dto.Students, MenteeDTO{
			ID:                s.ID,
			Email:             s.Email,
			Focus:             s.Focus.Strings(),
			SelectedCompanion: string(s.SelectedCompanion),
			ConversationID:    chat.ConversationID(s.ID, mentorID),
			JoinedAt:          s.CreatedAt,
		})
	}
	return dto, nil
}
