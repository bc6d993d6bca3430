package memory

import (
	"context"

	"github.com/companion-hub/companion-hub/internal/domain/companion"
	"github.com/companion-hub/companion-hub/internal/domain/shared"
)

// CompanionRepository implements companion.Repository.
type CompanionRepository struct {
	s *Store
}

var _ companion.Repository = (*CompanionRepository)(nil)

func (r *CompanionRepository) Get(_ context.Context, userID string, species companion.Species) (companion.State, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	st, ok := r.s.companions[userID][species]
	if !ok {
		return companion.State{}, shared.ErrCompanionNotFound
	}
	return st, nil
}

func (r *CompanionRepository) Init(_ context.Context, userID string, species companion.Species) (companion.State, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	st, ok := r.s.stateLocked(userID, species)
	if !ok {
		r.s.putStateLocked(userID, st)
	}
	return st, nil
}

func (r *CompanionRepository) Apply(_ context.Context, userID string, species companion.Species, m companion.Mutation) (companion.Account, companion.Outcome, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	p, ok := r.s.profiles[userID]
	if !ok {
		return companion.Account{}, companion.Outcome{}, shared.ErrProfileNotFound
	}
	st, _ := r.s.stateLocked(userID, species)

	acc := companion.Account{UserID: userID, Wallet: p.Wallet, State: st}
	next, out := m(acc)
	if !out.Applied {
		return acc, out, nil
	}

	np := cloneProfile(p)
	np.Wallet = next.Wallet
	np.UpdatedAt = r.s.clock()
	r.s.profiles[userID] = np
	r.s.putStateLocked(userID, next.State)

	return next, out, nil
}
