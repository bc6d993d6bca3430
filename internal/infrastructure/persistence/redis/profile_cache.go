package redis

import (
	"context"
	"errors"
	"time"

	"github.com/companion-hub/companion-hub/internal/domain/companion"
	"github.com/companion-hub/companion-hub/internal/domain/profile"
	"github.com/companion-hub/companion-hub/pkg/circuitbreaker"
	"github.com/companion-hub/companion-hub/pkg/logger"
)

// DefaultProfileTTL bounds how stale a cached profile can be when an
// invalidation is lost.
const DefaultProfileTTL = 2 * time.Minute

// kv is the subset of Cache the profile cache needs.
type kv interface {
	Get(ctx context.Context, key string, dest any) error
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

// CachedProfileRepository is a read-through cache in front of a
// profile.Repository. Writes go to the store first and then drop the key.
// Redis failures degrade to uncached reads, and after repeated failures the
// read path skips Redis until the breaker's cool-down elapses. Invalidations
// are always attempted.
type CachedProfileRepository struct {
	next    profile.Repository
	cache   kv
	ttl     time.Duration
	log     *logger.Logger
	breaker *circuitbreaker.Breaker
}

var (
	_ profile.Repository  = (*CachedProfileRepository)(nil)
	_ profile.Invalidator = (*CachedProfileRepository)(nil)
)

// NewCachedProfileRepository wraps next. ttl <= 0 uses DefaultProfileTTL.
func NewCachedProfileRepository(next profile.Repository, cache kv, ttl time.Duration, log *logger.Logger) *CachedProfileRepository {
	if ttl <= 0 {
		ttl = DefaultProfileTTL
	}
	if log == nil {
		log = logger.Nop()
	}
	log = log.With(logger.Component("profile_cache"))
	return &CachedProfileRepository{
		next:  next,
		cache: cache,
		ttl:   ttl,
		log:   log,
		breaker: circuitbreaker.New("redis-profile-cache",
			circuitbreaker.WithIsFailure(func(err error) bool { return !errors.Is(err, ErrCacheMiss) }),
			circuitbreaker.WithOnStateChange(func(name string, from, to circuitbreaker.State) {
				log.Warn("cache circuit state changed",
					logger.String("breaker", name),
					logger.String("from", from.String()),
					logger.String("to", to.String()),
				)
			}),
		),
	}
}

// Get serves from cache, falling back to the store.
func (r *CachedProfileRepository) Get(ctx context.Context, id string) (*profile.Profile, error) {
	var p profile.Profile
	err := r.breaker.Do(ctx, func(ctx context.Context) error {
		return r.cache.Get(ctx, ProfileKey(id), &p)
	})
	switch {
	case err == nil:
		return &p, nil
	case errors.Is(err, ErrCacheMiss), errors.Is(err, circuitbreaker.ErrOpen):
	default:
		r.log.Warn("profile cache read failed", logger.UserID(id), logger.Err(err))
	}

	fresh, err := r.next.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	err = r.breaker.Do(ctx, func(ctx context.Context) error {
		return r.cache.Set(ctx, ProfileKey(id), fresh, r.ttl)
	})
	if err != nil && !errors.Is(err, circuitbreaker.ErrOpen) {
		r.log.Warn("profile cache write failed", logger.UserID(id), logger.Err(err))
	}
	return fresh, nil
}

// Invalidate drops the cached copy.
func (r *CachedProfileRepository) Invalidate(ctx context.Context, id string) error {
	return r.cache.Delete(ctx, ProfileKey(id))
}

func (r *CachedProfileRepository) Create(ctx context.Context, p *profile.Profile) error {
	return r.after(ctx, p.ID, r.next.Create(ctx, p))
}

func (r *CachedProfileRepository) SaveFocus(ctx context.Context, id string, focus profile.FocusSet, confirmedAt time.Time) error {
	return r.after(ctx, id, r.next.SaveFocus(ctx, id, focus, confirmedAt))
}

func (r *CachedProfileRepository) SetCompanion(ctx context.Context, id string, species companion.Species) error {
	return r.after(ctx, id, r.next.SetCompanion(ctx, id, species))
}

func (r *CachedProfileRepository) SaveMentorDetails(ctx context.Context, id string, d profile.MentorDetails) error {
	return r.after(ctx, id, r.next.SaveMentorDetails(ctx, id, d))
}

func (r *CachedProfileRepository) AssignMentor(ctx context.Context, studentID, mentorID string) error {
	return r.after(ctx, studentID, r.next.AssignMentor(ctx, studentID, mentorID))
}

// ListMentees is not cached; the dashboard must see new assignments.
func (r *CachedProfileRepository) ListMentees(ctx context.Context, mentorID string) ([]*profile.Profile, error) {
	return r.next.ListMentees(ctx, mentorID)
}

func (r *CachedProfileRepository) after(ctx context.Context, id string, err error) error {
	if err != nil {
		return err
	}
	if derr := r.Invalidate(ctx, id); derr != nil {
		r.log.Warn("profile cache invalidate failed", logger.UserID(id), logger.Err(derr))
	}
	return nil
}
