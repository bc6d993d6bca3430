package memory

import (
	"context"
	"sort"
	"time"

	"github.com/companion-hub/companion-hub/internal/domain/companion"
	"github.com/companion-hub/companion-hub/internal/domain/shared"
	"github.com/companion-hub/companion-hub/internal/domain/wellness"
)

// WellnessRepository implements wellness.Repository.
type WellnessRepository struct {
	s *Store
}

var _ wellness.Repository = (*WellnessRepository)(nil)

func (r *WellnessRepository) ApplyGrant(_ context.Context, g wellness.Grant, species companion.Species, checkin *wellness.Checkin) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	p, ok := r.s.profiles[g.UserID]
	if !ok {
		return shared.ErrProfileNotFound
	}
	if _, dup := r.s.grants[g.UserID][g.Key]; dup {
		return shared.ErrGrantAlreadyExists
	}

	if r.s.grants[g.UserID] == nil {
		r.s.grants[g.UserID] = make(map[string]wellness.Grant)
	}
	r.s.grants[g.UserID][g.Key] = g

	np := cloneProfile(p)
	np.Wallet = np.Wallet.Credit(g.Reward.XP, g.Reward.Coins)
	np.UpdatedAt = r.s.clock()
	r.s.profiles[g.UserID] = np

	if species != "" {
		st, _ := r.s.stateLocked(g.UserID, species)
		r.s.putStateLocked(g.UserID, companion.AddProgress(st, g.Reward.Progress))
	}

	if checkin != nil {
		r.s.checkins[g.UserID] = append(r.s.checkins[g.UserID], *checkin)
	}
	return nil
}

func (r *WellnessRepository) ListCheckins(_ context.Context, userID string, since time.Time) ([]wellness.Checkin, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var out []wellness.Checkin
	for _, c := range r.s.checkins[userID] {
		if !c.Date.Before(since) {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.After(out[j].Date) })
	return out, nil
}

func (r *WellnessRepository) SaveAttempt(_ context.Context, a wellness.Attempt) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if r.s.attempts[a.UserID] == nil {
		r.s.attempts[a.UserID] = make(map[string]wellness.Attempt)
	}
	r.s.attempts[a.UserID][a.ID] = a
	return nil
}

func (r *WellnessRepository) GetAttempt(_ context.Context, userID, attemptID string) (wellness.Attempt, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	a, ok := r.s.attempts[userID][attemptID]
	if !ok {
		return wellness.Attempt{}, shared.ErrAttemptNotFound
	}
	return a, nil
}
