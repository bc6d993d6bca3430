package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/companion-hub/companion-hub/internal/domain/companion"
	"github.com/companion-hub/companion-hub/internal/domain/profile"
	"github.com/companion-hub/companion-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// PROFILE REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// ProfileRepository implements profile.Repository for PostgreSQL.
type ProfileRepository struct {
	conn *Connection
}

var _ profile.Repository = (*ProfileRepository)(nil)

// NewProfileRepository creates a new ProfileRepository.
func NewProfileRepository(conn *Connection) *ProfileRepository {
	return &ProfileRepository{conn: conn}
}

const profileColumns = `
	id, email, role, focus, focus_confirmed_at, selected_companion,
	assigned_mentor_id, coins, xp, has_mentor_details, mentor_name,
	mentor_bio, mentor_support_areas, mentor_availability, created_at, updated_at`

// Create inserts a new profile.
func (r *ProfileRepository) Create(ctx context.Context, p *profile.Profile) error {
	query := `
		INSERT INTO profiles (` + profileColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`

	d, hasDetails := mentorColumns(p.Mentor)
	_, err := r.conn.Exec(ctx, query,
		p.ID,
		p.Email,
		string(p.Role),
		int16(p.Focus),
		nullTime(p.FocusConfirmedAt),
		string(p.SelectedCompanion),
		p.AssignedMentorID,
		p.Wallet.Coins.Int(),
		p.Wallet.XP.Int(),
		hasDetails,
		d.Name,
		d.Bio,
		int16(d.SupportAreas),
		string(d.Availability),
		p.CreatedAt,
		p.UpdatedAt,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return shared.ErrProfileAlreadyExists
		}
		return storeErr("profile", "Create", err)
	}
	return nil
}

// Get returns a profile by id.
func (r *ProfileRepository) Get(ctx context.Context, id string) (*profile.Profile, error) {
	query := `SELECT ` + profileColumns + ` FROM profiles WHERE id = $1`
	p, err := scanProfile(r.conn.QueryRow(ctx, query, id))
	if err != nil {
		return nil, storeErr("profile", "Get", err)
	}
	return p, nil
}

// SaveFocus overwrites the focus set and its confirmation time.
func (r *ProfileRepository) SaveFocus(ctx context.Context, id string, focus profile.FocusSet, confirmedAt time.Time) error {
	return r.update(ctx, "SaveFocus", `
		UPDATE profiles SET focus = $2, focus_confirmed_at = $3, updated_at = NOW()
		WHERE id = $1
	`, id, int16(focus), nullTime(confirmedAt))
}

// SetCompanion sets the selected species.
func (r *ProfileRepository) SetCompanion(ctx context.Context, id string, species companion.Species) error {
	return r.update(ctx, "SetCompanion", `
		UPDATE profiles SET selected_companion = $2, updated_at = NOW()
		WHERE id = $1
	`, id, string(species))
}

// SaveMentorDetails stores the mentor's public details.
func (r *ProfileRepository) SaveMentorDetails(ctx context.Context, id string, d profile.MentorDetails) error {
	return r.update(ctx, "SaveMentorDetails", `
		UPDATE profiles SET
			has_mentor_details = TRUE,
			mentor_name = $2,
			mentor_bio = $3,
			mentor_support_areas = $4,
			mentor_availability = $5,
			updated_at = NOW()
		WHERE id = $1
	`, id, d.Name, d.Bio, int16(d.SupportAreas), string(d.Availability))
}

// AssignMentor links a student to a mentor after checking both roles.
func (r *ProfileRepository) AssignMentor(ctx context.Context, studentID, mentorID string) error {
	err := r.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		mentorRole, err := lockRole(ctx, tx, mentorID)
		if err != nil {
			return err
		}
		if mentorRole != profile.RoleMentor {
			return shared.ErrNotAMentor
		}

		studentRole, err := lockRole(ctx, tx, studentID)
		if err != nil {
			return err
		}
		if studentRole != profile.RoleStudent {
			return shared.ErrNotAStudent
		}

		_, err = tx.Exec(ctx, `
			UPDATE profiles SET assigned_mentor_id = $2, updated_at = NOW()
			WHERE id = $1
		`, studentID, mentorID)
		return err
	})
	return storeErr("profile", "AssignMentor", err)
}

// ListMentees returns the mentor's students in creation order.
func (r *ProfileRepository) ListMentees(ctx context.Context, mentorID string) ([]*profile.Profile, error) {
	query := `
		SELECT ` + profileColumns + `
		FROM profiles
		WHERE role = 'STUDENT' AND assigned_mentor_id = $1
		ORDER BY created_at, id
	`

	rows, err := r.conn.Query(ctx, query, mentorID)
	if err != nil {
		return nil, storeErr("profile", "ListMentees", err)
	}
	defer rows.Close()

	var out []*profile.Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, storeErr("profile", "ListMentees", err)
		}
		out = append(out, p)
	}
	return out, storeErr("profile", "ListMentees", rows.Err())
}

func (r *ProfileRepository) update(ctx context.Context, op, query string, args ...any) error {
	tag, err := r.conn.Exec(ctx, query, args...)
	if err != nil {
		return storeErr("profile", op, err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrProfileNotFound
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Row mapping
// ─────────────────────────────────────────────────────────────────────────────

func lockRole(ctx context.Context, q Querier, id string) (profile.Role, error) {
	var role string
	err := q.QueryRow(ctx, `SELECT role FROM profiles WHERE id = $1 FOR UPDATE`, id).Scan(&role)
	if IsNoRows(err) {
		return "", shared.ErrProfileNotFound
	}
	return profile.Role(role), err
}

func scanProfile(row pgx.Row) (*profile.Profile, error) {
	var (
		p                profile.Profile
		role, species    string
		focus, areas     int16
		confirmedAt      *time.Time
		coins, xp        int
		hasDetails       bool
		name, bio, avail string
	)

	err := row.Scan(
		&p.ID, &p.Email, &role, &focus, &confirmedAt, &species,
		&p.AssignedMentorID, &coins, &xp, &hasDetails, &name,
		&bio, &areas, &avail, &p.CreatedAt, &p.UpdatedAt,
	)
	if IsNoRows(err) {
		return nil, shared.ErrProfileNotFound
	}
	if err != nil {
		return nil, err
	}

	p.Role = profile.Role(role)
	p.Focus = profile.FocusSet(focus)
	if confirmedAt != nil {
		p.FocusConfirmedAt = *confirmedAt
	}
	p.SelectedCompanion = companion.Species(species)
	p.Wallet = shared.Wallet{Coins: shared.Coins(coins), XP: shared.XP(xp)}
	if hasDetails {
		p.Mentor = &profile.MentorDetails{
			Name:         name,
			Bio:          bio,
			SupportAreas: profile.FocusSet(areas),
			Availability: profile.Availability(avail),
		}
	}
	return &p, nil
}

func mentorColumns(d *profile.MentorDetails) (profile.MentorDetails, bool) {
	if d == nil {
		return profile.MentorDetails{}, false
	}
	return *d, true
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
