package query

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/companion-hub/companion-hub/internal/domain/companion"
	"github.com/companion-hub/companion-hub/internal/domain/profile"
	"github.com/companion-hub/companion-hub/internal/domain/wellness"
	"github.com/companion-hub/companion-hub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET HOME QUERY
// The home screen: profile, companion card, mentor and check-in streak.
// The profile is read first; the rest is fetched concurrently.
// ══════════════════════════════════════════════════════════════════════════════

// HomeDTO is the home screen.
type HomeDTO struct {
	Profile   ProfileDTO   `json:"profile"`
	Companion CompanionDTO `json:"companion"`
	Mentor    *MentorDTO   `json:"mentor,omitempty"`

	// Nil when streaks are disabled.
	Streak *StreakDTO `json:"streak,omitempty"`
}

// StreakDTO summarises recent check-ins.
type StreakDTO struct {
	Days         int        `json:"days"`
	LastCheckin  *time.Time `json:"last_checkin,omitempty"`
	CheckedToday bool       `json:"checked_today"`
}

// HomeConfig tunes the home query.
type HomeConfig struct {
	Zone timeutil.Zone

	// How far back check-ins are read for the streak.
	StreakWindow time.Duration

	// Reports whether streaks are shown to a user. Nil shows them.
	StreaksEnabled func(userID string) bool

	Now func() time.Time
}

// GetHomeHandler assembles the home screen.
type GetHomeHandler struct {
	profiles  profile.Repository
	wellness  wellness.Repository
	companion *GetCompanionHandler
	mentor    *GetAssignedMentorHandler
	cfg       HomeConfig
}

// NewGetHomeHandler creates a new GetHomeHandler.
func NewGetHomeHandler(
	profiles profile.Repository,
	companions companion.Repository,
	wellnessRepo wellness.Repository,
	rules companion.Rules,
	cfg HomeConfig,
) *GetHomeHandler {
	if cfg.StreakWindow <= 0 {
		cfg.StreakWindow = 60 * 24 * time.Hour
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Zone.Location() == nil {
		cfg.Zone = timeutil.UTC
	}
	return &GetHomeHandler{
		profiles:  profiles,
		wellness:  wellnessRepo,
		companion: NewGetCompanionHandler(profiles, companions, rules),
		mentor:    NewGetAssignedMentorHandler(profiles),
		cfg:       cfg,
	}
}

// Handle reads everything the home screen shows.
func (h *GetHomeHandler) Handle(ctx context.Context, userID string) (*HomeDTO, error) {
	p, err := h.profiles.Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	home := &HomeDTO{Profile: ToProfileDTO(p)}
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		c, err := h.companion.forProfile(gctx, p)
		if err != nil {
			return err
		}
		home.Companion = *c
		return nil
	})

	g.Go(func() error {
		m, err := h.mentor.forProfile(gctx, p)
		if err != nil {
			return err
		}
		home.Mentor = m
		return nil
	})

	if h.cfg.StreaksEnabled == nil || h.cfg.StreaksEnabled(userID) {
		g.Go(func() error {
			s, err := h.streak(gctx, userID)
			if err != nil {
				return err
			}
			home.Streak = s
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return home, nil
}

func (h *GetHomeHandler) streak(ctx context.Context, userID string) (*StreakDTO, error) {
	now := h.cfg.Now()
	checkins, err := h.wellness.ListCheckins(ctx, userID, now.Add(-h.cfg.StreakWindow))
	if err != nil {
		return nil, err
	}

	dates := make([]time.Time, len(checkins))
	for i, c := range checkins {
		dates[i] = c.Date
	}

	s := &StreakDTO{Days: h.cfg.Zone.Streak(dates, now)}
	if len(checkins) > 0 {
		last := checkins[0].Date
		s.LastCheckin = &last
		s.CheckedToday = h.cfg.Zone.IsSameDay(last, now)
	}
	return s, nil
}
