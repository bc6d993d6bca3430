package memory

import (
	"context"
	"sort"
	"time"

	"github.com/companion-hub/companion-hub/internal/domain/companion"
	"github.com/companion-hub/companion-hub/internal/domain/profile"
	"github.com/companion-hub/companion-hub/internal/domain/shared"
)

// ProfileRepository implements profile.Repository.
type ProfileRepository struct {
	s *Store
}

var _ profile.Repository = (*ProfileRepository)(nil)

func (r *ProfileRepository) Create(_ context.Context, p *profile.Profile) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.profiles[p.ID]; ok {
		return shared.ErrProfileAlreadyExists
	}
	r.s.profiles[p.ID] = cloneProfile(p)
	return nil
}

func (r *ProfileRepository) Get(_ context.Context, id string) (*profile.Profile, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	p, ok := r.s.profiles[id]
	if !ok {
		return nil, shared.ErrProfileNotFound
	}
	return cloneProfile(p), nil
}

func (r *ProfileRepository) update(id string, fn func(p *profile.Profile) error) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	p, ok := r.s.profiles[id]
	if !ok {
		return shared.ErrProfileNotFound
	}
	next := cloneProfile(p)
	if err := fn(next); err != nil {
		return err
	}
	next.UpdatedAt = r.s.clock()
	r.s.profiles[id] = next
	return nil
}

func (r *ProfileRepository) SaveFocus(_ context.Context, id string, focus profile.FocusSet, confirmedAt time.Time) error {
	return r.update(id, func(p *profile.Profile) error {
		p.Focus = focus
		p.FocusConfirmedAt = confirmedAt
		return nil
	})
}

func (r *ProfileRepository) SetCompanion(_ context.Context, id string, species companion.Species) error {
	return r.update(id, func(p *profile.Profile) error {
		p.SelectedCompanion = species
		return nil
	})
}

func (r *ProfileRepository) SaveMentorDetails(_ context.Context, id string, d profile.MentorDetails) error {
	return r.update(id, func(p *profile.Profile) error {
		p.Mentor = &d
		return nil
	})
}

func (r *ProfileRepository) AssignMentor(_ context.Context, studentID, mentorID string) error {
	r.s.mu.Lock()
	mentor, ok := r.s.profiles[mentorID]
	r.s.mu.Unlock()
	if !ok {
		return shared.ErrProfileNotFound
	}
	if !mentor.IsMentor() {
		return shared.ErrNotAMentor
	}

	return r.update(studentID, func(p *profile.Profile) error {
		if !p.IsStudent() {
			return shared.ErrNotAStudent
		}
		p.AssignedMentorID = mentorID
		return nil
	})
}

func (r *ProfileRepository) ListMentees(_ context.Context, mentorID string) ([]*profile.Profile, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var out []*profile.Profile
	for _, p := range r.s.profiles {
		if p.Role == profile.RoleStudent && p.AssignedMentorID == mentorID {
			out = append(out, cloneProfile(p))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}
