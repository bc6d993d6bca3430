package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/companion-hub/companion-hub/internal/domain/companion"
	"github.com/companion-hub/companion-hub/internal/domain/shared"
	"github.com/companion-hub/companion-hub/internal/domain/wellness"
)

// WellnessRepository implements wellness.Repository for PostgreSQL.
type WellnessRepository struct {
	conn *Connection
}

var _ wellness.Repository = (*WellnessRepository)(nil)

// NewWellnessRepository creates a new WellnessRepository.
func NewWellnessRepository(conn *Connection) *WellnessRepository {
	return &WellnessRepository{conn: conn}
}

// ApplyGrant records the grant and credits the reward in one transaction.
// The (user_id, key) primary key makes a second grant fail before anything
// else is written.
func (r *WellnessRepository) ApplyGrant(ctx context.Context, g wellness.Grant, species companion.Species, checkin *wellness.Checkin) error {
	err := r.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		wallet, err := lockWallet(ctx, tx, g.UserID)
		if err != nil {
			return err
		}

		grantedAt := g.GrantedAt
		if grantedAt.IsZero() {
			grantedAt = time.Now().UTC()
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO reward_grants (user_id, key, xp, progress, coins, granted_at)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, g.UserID, g.Key, g.Reward.XP, g.Reward.Progress, g.Reward.Coins, grantedAt)
		if IsUniqueViolation(err) {
			return shared.ErrGrantAlreadyExists
		}
		if err != nil {
			return err
		}

		if err := writeWallet(ctx, tx, g.UserID, wallet.Credit(g.Reward.XP, g.Reward.Coins)); err != nil {
			return err
		}

		if species != "" {
			st, err := readState(ctx, tx, g.UserID, species, true)
			if shared.IsNotFound(err) {
				st = companion.NewState(species)
			} else if err != nil {
				return err
			}
			if err := writeState(ctx, tx, g.UserID, companion.AddProgress(st, g.Reward.Progress)); err != nil {
				return err
			}
		}

		if checkin != nil {
			_, err := tx.Exec(ctx, `
				INSERT INTO checkins (id, user_id, kind, date, questions, answers)
				VALUES ($1, $2, $3, $4, $5, $6)
			`, checkin.ID, checkin.UserID, checkin.Kind, checkin.Date, checkin.Questions, checkin.Answers)
			if err != nil {
				return err
			}
		}
		return nil
	})
	return storeErr("wellness", "ApplyGrant", err)
}

// ListCheckins returns check-ins since the given time, newest first.
func (r *WellnessRepository) ListCheckins(ctx context.Context, userID string, since time.Time) ([]wellness.Checkin, error) {
	rows, err := r.conn.Query(ctx, `
		SELECT id, user_id, kind, date, questions, answers
		FROM checkins
		WHERE user_id = $1 AND date >= $2
		ORDER BY date DESC
	`, userID, since)
	if err != nil {
		return nil, storeErr("wellness", "ListCheckins", err)
	}
	defer rows.Close()

	var out []wellness.Checkin
	for rows.Next() {
		var c wellness.Checkin
		if err := rows.Scan(&c.ID, &c.UserID, &c.Kind, &c.Date, &c.Questions, &c.Answers); err != nil {
			return nil, storeErr("wellness", "ListCheckins", err)
		}
		out = append(out, c)
	}
	return out, storeErr("wellness", "ListCheckins", rows.Err())
}

// SaveAttempt upserts a lesson attempt.
func (r *WellnessRepository) SaveAttempt(ctx context.Context, a wellness.Attempt) error {
	_, err := r.conn.Exec(ctx, `
		INSERT INTO lesson_attempts (id, user_id, lesson_id, started_at, completed_at, score)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id, id) DO UPDATE SET
			completed_at = EXCLUDED.completed_at,
			score = EXCLUDED.score
	`, a.ID, a.UserID, a.LessonID, a.StartedAt, nullTime(a.CompletedAt), a.Score)
	if IsForeignKeyViolation(err) {
		return shared.ErrProfileNotFound
	}
	return storeErr("wellness", "SaveAttempt", err)
}

// GetAttempt returns one of the user's attempts.
func (r *WellnessRepository) GetAttempt(ctx context.Context, userID, attemptID string) (wellness.Attempt, error) {
	var (
		a           wellness.Attempt
		completedAt *time.Time
	)
	err := r.conn.QueryRow(ctx, `
		SELECT id, user_id, lesson_id, started_at, completed_at, score
		FROM lesson_attempts
		WHERE user_id = $1 AND id = $2
	`, userID, attemptID).Scan(&a.ID, &a.UserID, &a.LessonID, &a.StartedAt, &completedAt, &a.Score)
	if IsNoRows(err) {
		return wellness.Attempt{}, shared.ErrAttemptNotFound
	}
	if err != nil {
		return wellness.Attempt{}, storeErr("wellness", "GetAttempt", err)
	}
	if completedAt != nil {
		a.CompletedAt = *completedAt
	}
	return a, nil
}
