package firestore

import (
	"context"
	"errors"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"

	"github.com/companion-hub/companion-hub/internal/domain/companion"
	"github.com/companion-hub/companion-hub/internal/domain/profile"
	"github.com/companion-hub/companion-hub/internal/domain/shared"
)

// ─────────────────────────────────────────
// Firestore Types
// ─────────────────────────────────────────

type mentorDoc struct {
	Name         string   `firestore:"name"`
	Bio          string   `firestore:"bio"`
	SupportAreas []string `firestore:"support_areas"`
	Availability string   `firestore:"availability"`
}

type userDoc struct {
	Email             string     `firestore:"email"`
	Role              string     `firestore:"role"`
	Focus             []string   `firestore:"focus"`
	FocusConfirmedAt  *time.Time `firestore:"focus_confirmed_at"`
	SelectedCompanion string     `firestore:"selected_companion"`
	AssignedMentorID  string     `firestore:"assigned_mentor_id"`
	Coins             int        `firestore:"coins"`
	XP                int        `firestore:"xp"`
	Mentor            *mentorDoc `firestore:"mentor,omitempty"`
	CreatedAt         time.Time  `firestore:"created_at"`
	UpdatedAt         time.Time  `firestore:"updated_at"`
}

func toUserDoc(p *profile.Profile) userDoc {
	doc := userDoc{
		Email:             p.Email,
		Role:              string(p.Role),
		Focus:             p.Focus.Strings(),
		SelectedCompanion: string(p.SelectedCompanion),
		AssignedMentorID:  p.AssignedMentorID,
		Coins:             p.Wallet.Coins.Int(),
		XP:                p.Wallet.XP.Int(),
		CreatedAt:         p.CreatedAt,
		UpdatedAt:         p.UpdatedAt,
	}
	if !p.FocusConfirmedAt.IsZero() {
		t := p.FocusConfirmedAt
		doc.FocusConfirmedAt = &t
	}
	if p.Mentor != nil {
		doc.Mentor = toMentorDoc(*p.Mentor)
	}
	return doc
}

func toMentorDoc(d profile.MentorDetails) *mentorDoc {
	return &mentorDoc{
		Name:         d.Name,
		Bio:          d.Bio,
		SupportAreas: d.SupportAreas.Strings(),
		Availability: string(d.Availability),
	}
}

func (d userDoc) toProfile(id string) *profile.Profile {
	p := &profile.Profile{
		ID:                id,
		Email:             d.Email,
		Role:              profile.Role(d.Role),
		Focus:             lenientFocus(d.Focus),
		SelectedCompanion: companion.Species(d.SelectedCompanion),
		AssignedMentorID:  d.AssignedMentorID,
		Wallet:            shared.Wallet{Coins: shared.Coins(d.Coins), XP: shared.XP(d.XP)},
		CreatedAt:         d.CreatedAt,
		UpdatedAt:         d.UpdatedAt,
	}
	if d.FocusConfirmedAt != nil {
		p.FocusConfirmedAt = *d.FocusConfirmedAt
	}
	if d.Mentor != nil {
		p.Mentor = &profile.MentorDetails{
			Name:         d.Mentor.Name,
			Bio:          d.Mentor.Bio,
			SupportAreas: lenientFocus(d.Mentor.SupportAreas),
			Availability: profile.Availability(d.Mentor.Availability),
		}
	}
	return p
}

// Documents written by older clients may carry unknown areas; they are
// dropped rather than failing the read.
func lenientFocus(names []string) profile.FocusSet {
	var areas []profile.FocusArea
	for _, n := range names {
		if a, err := profile.ParseFocusArea(n); err == nil {
			areas = append(areas, a)
		}
	}
	return profile.NewFocusSet(areas...)
}

// ─────────────────────────────────────────
// profile.Repository implementation
// ─────────────────────────────────────────

// ProfileRepository implements profile.Repository.
type ProfileRepository struct {
	s *Store
}

var _ profile.Repository = (*ProfileRepository)(nil)

func (r *ProfileRepository) Create(ctx context.Context, p *profile.Profile) error {
	_, err := r.s.userDoc(p.ID).Create(ctx, toUserDoc(p))
	if isAlreadyExists(err) {
		return shared.ErrProfileAlreadyExists
	}
	return storeErr("profile", "Create", err)
}

func (r *ProfileRepository) Get(ctx context.Context, id string) (*profile.Profile, error) {
	snap, err := r.s.userDoc(id).Get(ctx)
	if err != nil {
		if isNotFound(err) {
			return nil, shared.ErrProfileNotFound
		}
		return nil, storeErr("profile", "Get", err)
	}
	return decodeUser(snap)
}

func decodeUser(snap *firestore.DocumentSnapshot) (*profile.Profile, error) {
	var doc userDoc
	if err := snap.DataTo(&doc); err != nil {
		return nil, storeErr("profile", "Decode", err)
	}
	return doc.toProfile(snap.Ref.ID), nil
}

func (r *ProfileRepository) update(ctx context.Context, op, id string, updates ...firestore.Update) error {
	updates = append(updates, firestore.Update{Path: "updated_at", Value: time.Now().UTC()})
	_, err := r.s.userDoc(id).Update(ctx, updates)
	if isNotFound(err) {
		return shared.ErrProfileNotFound
	}
	return storeErr("profile", op, err)
}

func (r *ProfileRepository) SaveFocus(ctx context.Context, id string, focus profile.FocusSet, confirmedAt time.Time) error {
	return r.update(ctx, "SaveFocus", id,
		firestore.Update{Path: "focus", Value: focus.Strings()},
		firestore.Update{Path: "focus_confirmed_at", Value: confirmedAt},
	)
}

func (r *ProfileRepository) SetCompanion(ctx context.Context, id string, species companion.Species) error {
	return r.update(ctx, "SetCompanion", id, firestore.Update{Path: "selected_companion", Value: string(species)})
}

func (r *ProfileRepository) SaveMentorDetails(ctx context.Context, id string, d profile.MentorDetails) error {
	return r.update(ctx, "SaveMentorDetails", id, firestore.Update{Path: "mentor", Value: toMentorDoc(d)})
}

func (r *ProfileRepository) AssignMentor(ctx context.Context, studentID, mentorID string) error {
	err := r.s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		mentor, err := txUser(tx, r.s.userDoc(mentorID))
		if err != nil {
			return err
		}
		if !mentor.IsMentor() {
			return shared.ErrNotAMentor
		}

		student, err := txUser(tx, r.s.userDoc(studentID))
		if err != nil {
			return err
		}
		if !student.IsStudent() {
			return shared.ErrNotAStudent
		}

		return tx.Update(r.s.userDoc(studentID), []firestore.Update{
			{Path: "assigned_mentor_id", Value: mentorID},
			{Path: "updated_at", Value: time.Now().UTC()},
		})
	})
	return storeErr("profile", "AssignMentor", err)
}

// ListMentees needs the composite index (role, assigned_mentor_id, created_at).
func (r *ProfileRepository) ListMentees(ctx context.Context, mentorID string) ([]*profile.Profile, error) {
	q := r.s.usersCol().
		Where("role", "==", string(profile.RoleStudent)).
		Where("assigned_mentor_id", "==", mentorID).
		OrderBy("created_at", firestore.Asc)

	iter := q.Documents(ctx)
	defer iter.Stop()

	var out []*profile.Profile
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, storeErr("profile", "ListMentees", err)
		}
		p, err := decodeUser(snap)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func txUser(tx *firestore.Transaction, ref *firestore.DocumentRef) (*profile.Profile, error) {
	snap, err := tx.Get(ref)
	if err != nil {
		if isNotFound(err) {
			return nil, shared.ErrProfileNotFound
		}
		return nil, err
	}
	return decodeUser(snap)
}
