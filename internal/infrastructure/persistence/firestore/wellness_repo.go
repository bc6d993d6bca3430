package firestore

import (
	"context"
	"errors"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"

	"github.com/companion-hub/companion-hub/internal/domain/companion"
	"github.com/companion-hub/companion-hub/internal/domain/shared"
	"github.com/companion-hub/companion-hub/internal/domain/wellness"
)

type grantDoc struct {
	XP        int       `firestore:"xp"`
	Progress  int       `firestore:"progress"`
	Coins     int       `firestore:"coins"`
	GrantedAt time.Time `firestore:"granted_at"`
}

type checkinDoc struct {
	Kind      string    `firestore:"kind"`
	Date      time.Time `firestore:"date"`
	Questions []string  `firestore:"questions"`
	Answers   []string  `firestore:"answers"`
}

type attemptDoc struct {
	LessonID    string     `firestore:"lesson_id"`
	StartedAt   time.Time  `firestore:"started_at"`
	CompletedAt *time.Time `firestore:"completed_at"`
	Score       int        `firestore:"score"`
}

// WellnessRepository implements wellness.Repository.
type WellnessRepository struct {
	s *Store
}

var _ wellness.Repository = (*WellnessRepository)(nil)

// ApplyGrant runs in one transaction: every read (user, grant marker,
// companion) happens before the writes, as Firestore requires.
func (r *WellnessRepository) ApplyGrant(ctx context.Context, g wellness.Grant, species companion.Species, checkin *wellness.Checkin) error {
	grantedAt := g.GrantedAt
	if grantedAt.IsZero() {
		grantedAt = time.Now().UTC()
	}

	err := r.s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		userRef := r.s.userDoc(g.UserID)
		owner, err := txUser(tx, userRef)
		if err != nil {
			return err
		}

		grantRef := r.s.grantDoc(g.UserID, g.Key)
		if _, err := tx.Get(grantRef); err == nil {
			return shared.ErrGrantAlreadyExists
		} else if !isNotFound(err) {
			return err
		}

		var (
			compRef *firestore.DocumentRef
			st      companion.State
		)
		if species != "" {
			compRef = r.s.companionDoc(g.UserID, string(species))
			if st, _, err = txState(tx, compRef, species); err != nil {
				return err
			}
		}

		if err := tx.Create(grantRef, grantDoc{
			XP:        g.Reward.XP,
			Progress:  g.Reward.Progress,
			Coins:     g.Reward.Coins,
			GrantedAt: grantedAt,
		}); err != nil {
			return err
		}
		if err := txWriteWallet(tx, userRef, owner.Wallet.Credit(g.Reward.XP, g.Reward.Coins)); err != nil {
			return err
		}
		if compRef != nil {
			if err := tx.Set(compRef, toCompanionDoc(companion.AddProgress(st, g.Reward.Progress))); err != nil {
				return err
			}
		}
		if checkin != nil {
			return tx.Create(r.s.checkinsCol(g.UserID).Doc(checkin.ID), checkinDoc{
				Kind:      checkin.Kind,
				Date:      checkin.Date,
				Questions: checkin.Questions,
				Answers:   checkin.Answers,
			})
		}
		return nil
	})
	return storeErr("wellness", "ApplyGrant", err)
}

func (r *WellnessRepository) ListCheckins(ctx context.Context, userID string, since time.Time) ([]wellness.Checkin, error) {
	iter := r.s.checkinsCol(userID).
		Where("date", ">=", since).
		OrderBy("date", firestore.Desc).
		Documents(ctx)
	defer iter.Stop()

	var out []wellness.Checkin
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, storeErr("wellness", "ListCheckins", err)
		}

		var doc checkinDoc
		if err := snap.DataTo(&doc); err != nil {
			return nil, storeErr("wellness", "ListCheckins", err)
		}
		out = append(out, wellness.Checkin{
			ID:        snap.Ref.ID,
			UserID:    userID,
			Kind:      doc.Kind,
			Date:      doc.Date,
			Questions: doc.Questions,
			Answers:   doc.Answers,
		})
	}
	return out, nil
}

func (r *WellnessRepository) SaveAttempt(ctx context.Context, a wellness.Attempt) error {
	doc := attemptDoc{
		LessonID:  a.LessonID,
		StartedAt: a.StartedAt,
		Score:     a.Score,
	}
	if !a.CompletedAt.IsZero() {
		t := a.CompletedAt
		doc.CompletedAt = &t
	}
	_, err := r.s.attemptDoc(a.UserID, a.ID).Set(ctx, doc)
	return storeErr("wellness", "SaveAttempt", err)
}

func (r *WellnessRepository) GetAttempt(ctx context.Context, userID, attemptID string) (wellness.Attempt, error) {
	snap, err := r.s.attemptDoc(userID, attemptID).Get(ctx)
	if err != nil {
		if isNotFound(err) {
			return wellness.Attempt{}, shared.ErrAttemptNotFound
		}
		return wellness.Attempt{}, storeErr("wellness", "GetAttempt", err)
	}

	var doc attemptDoc
	if err := snap.DataTo(&doc); err != nil {
		return wellness.Attempt{}, storeErr("wellness", "GetAttempt", err)
	}
	a := wellness.Attempt{
		ID:        attemptID,
		UserID:    userID,
		LessonID:  doc.LessonID,
		StartedAt: doc.StartedAt,
		Score:     doc.Score,
	}
	if doc.CompletedAt != nil {
		a.CompletedAt = *doc.CompletedAt
	}
	return a, nil
}
