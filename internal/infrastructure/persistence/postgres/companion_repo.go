package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/companion-hub/companion-hub/internal/domain/companion"
	"github.com/companion-hub/companion-hub/internal/domain/shared"
)

// CompanionRepository implements companion.Repository for PostgreSQL.
type CompanionRepository struct {
	conn *Connection
}

var _ companion.Repository = (*CompanionRepository)(nil)

// NewCompanionRepository creates a new CompanionRepository.
func NewCompanionRepository(conn *Connection) *CompanionRepository {
	return &CompanionRepository{conn: conn}
}

// Get returns the stored state for species.
func (r *CompanionRepository) Get(ctx context.Context, userID string, species companion.Species) (companion.State, error) {
	st, err := readState(ctx, r.conn, userID, species, false)
	if err != nil {
		return companion.State{}, storeErr("companion", "Get", err)
	}
	return st, nil
}

// Init inserts the starting state unless one exists.
func (r *CompanionRepository) Init(ctx context.Context, userID string, species companion.Species) (companion.State, error) {
	start := companion.NewState(species)
	var st companion.State

	err := r.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO companions (user_id, species, level, progress, food)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (user_id, species) DO NOTHING
		`, userID, string(species), start.Level, start.Progress, start.Food)
		if IsForeignKeyViolation(err) {
			return shared.ErrProfileNotFound
		}
		if err != nil {
			return err
		}
		st, err = readState(ctx, tx, userID, species, false)
		return err
	})
	if err != nil {
		return companion.State{}, storeErr("companion", "Init", err)
	}
	return st, nil
}

// Apply locks the owner's profile row and the companion row, runs m, and
// writes both back when the outcome is applied.
func (r *CompanionRepository) Apply(ctx context.Context, userID string, species companion.Species, m companion.Mutation) (companion.Account, companion.Outcome, error) {
	var (
		acc companion.Account
		out companion.Outcome
	)

	err := r.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		wallet, err := lockWallet(ctx, tx, userID)
		if err != nil {
			return err
		}

		st, err := readState(ctx, tx, userID, species, true)
		if shared.IsNotFound(err) {
			st = companion.NewState(species)
		} else if err != nil {
			return err
		}

		acc = companion.Account{UserID: userID, Wallet: wallet, State: st}
		next, outcome := m(acc)
		out = outcome
		if !out.Applied {
			return nil
		}

		if err := writeWallet(ctx, tx, userID, next.Wallet); err != nil {
			return err
		}
		if err := writeState(ctx, tx, userID, next.State); err != nil {
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

// ─────────────────────────────────────────────────────────────────────────────
// Shared with the wellness repository
// ─────────────────────────────────────────────────────────────────────────────

func readState(ctx context.Context, q Querier, userID string, species companion.Species, forUpdate bool) (companion.State, error) {
	query := `SELECT level, progress, food FROM companions WHERE user_id = $1 AND species = $2`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	st := companion.State{Species: species}
	err := q.QueryRow(ctx, query, userID, string(species)).Scan(&st.Level, &st.Progress, &st.Food)
	if IsNoRows(err) {
		return companion.State{}, shared.ErrCompanionNotFound
	}
	if err != nil {
		return companion.State{}, err
	}
	return st.Normalize(), nil
}

func writeState(ctx context.Context, q Querier, userID string, st companion.State) error {
	_, err := q.Exec(ctx, `
		INSERT INTO companions (user_id, species, level, progress, food, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (user_id, species) DO UPDATE SET
			level = EXCLUDED.level,
			progress = EXCLUDED.progress,
			food = EXCLUDED.food,
			updated_at = EXCLUDED.updated_at
	`, userID, string(st.Species), st.Level, st.Progress, st.Food)
	return err
}

func lockWallet(ctx context.Context, q Querier, userID string) (shared.Wallet, error) {
	var coins, xp int
	err := q.QueryRow(ctx, `SELECT coins, xp FROM profiles WHERE id = $1 FOR UPDATE`, userID).Scan(&coins, &xp)
	if IsNoRows(err) {
		return shared.Wallet{}, shared.ErrProfileNotFound
	}
	if err != nil {
		return shared.Wallet{}, err
	}
	return shared.Wallet{Coins: shared.Coins(coins), XP: shared.XP(xp)}, nil
}

func writeWallet(ctx context.Context, q Querier, userID string, w shared.Wallet) error {
	_, err := q.Exec(ctx, `
		UPDATE profiles SET coins = $2, xp = $3, updated_at = NOW()
		WHERE id = $1
	`, userID, w.Coins.Int(), w.XP.Int())
	return err
}
