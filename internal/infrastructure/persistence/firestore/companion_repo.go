package firestore

import (
	"context"
	"time"

	"cloud.google.com/go/firestore"

	"github.com/companion-hub/companion-hub/internal/domain/companion"
	"github.com/companion-hub/companion-hub/internal/domain/shared"
)

type companionDoc struct {
	Level     int       `firestore:"level"`
	Progress  int       `firestore:"progress"`
	Food      int       `firestore:"food"`
	UpdatedAt time.Time `firestore:"updated_at"`
}

func toCompanionDoc(st companion.State) companionDoc {
	return companionDoc{
		Level:     st.Level,
		Progress:  st.Progress,
		Food:      st.Food,
		UpdatedAt: time.Now().UTC(),
	}
}

func decodeState(snap *firestore.DocumentSnapshot, species companion.Species) (companion.State, error) {
	var doc companionDoc
	if err := snap.DataTo(&doc); err != nil {
		return companion.State{}, err
	}
	return companion.State{
		Species:  species,
		Level:    doc.Level,
		Progress: doc.Progress,
		Food:     doc.Food,
	}.Normalize(), nil
}

// CompanionRepository implements companion.Repository.
type CompanionRepository struct {
	s *Store
}

var _ companion.Repository = (*CompanionRepository)(nil)

func (r *CompanionRepository) Get(ctx context.Context, userID string, species companion.Species) (companion.State, error) {
	snap, err := r.s.companionDoc(userID, string(species)).Get(ctx)
	if err != nil {
		if isNotFound(err) {
			return companion.State{}, shared.ErrCompanionNotFound
		}
		return companion.State{}, storeErr("companion", "Get", err)
	}
	st, err := decodeState(snap, species)
	return st, storeErr("companion", "Get", err)
}

func (r *CompanionRepository) Init(ctx context.Context, userID string, species companion.Species) (companion.State, error) {
	var st companion.State
	err := r.s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		if _, err := tx.Get(r.s.userDoc(userID)); err != nil {
			if isNotFound(err) {
				return shared.ErrProfileNotFound
			}
			return err
		}

		ref := r.s.companionDoc(userID, string(species))
		existing, found, err := txState(tx, ref, species)
		if err != nil {
			return err
		}
		if found {
			st = existing
			return nil
		}
		st = companion.NewState(species)
		return tx.Create(ref, toCompanionDoc(st))
	})
	if err != nil {
		return companion.State{}, storeErr("companion", "Init", err)
	}
	return st, nil
}

// Apply reads the user and companion documents inside one transaction.
// Firestore may rerun the function on contention, which Mutation allows.
func (r *CompanionRepository) Apply(ctx context.Context, userID string, species companion.Species, m companion.Mutation) (companion.Account, companion.Outcome, error) {
	var (
		acc companion.Account
		out companion.Outcome
	)

	err := r.s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		owner, err := txUser(tx, r.s.userDoc(userID))
		if err != nil {
			return err
		}

		ref := r.s.companionDoc(userID, string(species))
		st, _, err := txState(tx, ref, species)
		if err != nil {
			return err
		}

		acc = companion.Account{UserID: userID, Wallet: owner.Wallet, State: st}
		next, outcome := m(acc)
		out = outcome
		if !out.Applied {
			return nil
		}

		if err := txWriteWallet(tx, r.s.userDoc(userID), next.Wallet); err != nil {
			return err
		}
		if err := tx.Set(ref, toCompanionDoc(next.State)); err != nil {
			return err
		}
		acc = next
		return nil
	})
	if err != nil {
		return companion.Account{}, companion.Outcome{}, storeErr("companion", "Apply", err)
	}
	return acc, out, nil
}

// txState returns the stored state, or the starting state and false.
func txState(tx *firestore.Transaction, ref *firestore.DocumentRef, species companion.Species) (companion.State, bool, error) {
	snap, err := tx.Get(ref)
	if err != nil {
		if isNotFound(err) {
			return companion.NewState(species), false, nil
		}
		return companion.State{}, false, err
	}
	st, err := decodeState(snap, species)
	return st, true, err
}

func txWriteWallet(tx *firestore.Transaction, ref *firestore.DocumentRef, w shared.Wallet) error {
	return tx.Update(ref, []firestore.Update{
		{Path: "coins", Value: w.Coins.Int()},
		{Path: "xp", Value: w.XP.Int()},
		{Path: "updated_at", Value: time.Now().UTC()},
	})
}
