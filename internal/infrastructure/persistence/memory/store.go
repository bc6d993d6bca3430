// Package memory is an in-process implementation of every repository. It is
// used by tests and by local development with STORE_BACKEND=memory. A single
// mutex makes each operation atomic.
package memory

import (
	"sync"
	"time"

	"github.com/companion-hub/companion-hub/internal/domain/chat"
	"github.com/companion-hub/companion-hub/internal/domain/companion"
	"github.com/companion-hub/companion-hub/internal/domain/profile"
	"github.com/companion-hub/companion-hub/internal/domain/wellness"
)

// Store holds all state.
type Store struct {
	mu    sync.Mutex
	clock func() time.Time

	profiles   map[string]*profile.Profile
	companions map[string]map[companion.Species]companion.State
	messages   map[string][]chat.Message
	seq        int64
	checkins   map[string][]wellness.Checkin
	grants     map[string]map[string]wellness.Grant
	attempts   map[string]map[string]wellness.Attempt
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source used for store-assigned timestamps.
func WithClock(clock func() time.Time) Option {
	return func(s *Store) { s.clock = clock }
}

// NewStore creates an empty store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		clock:      func() time.Time { return time.Now().UTC() },
		profiles:   make(map[string]*profile.Profile),
		companions: make(map[string]map[companion.Species]companion.State),
		messages:   make(map[string][]chat.Message),
		checkins:   make(map[string][]wellness.Checkin),
		grants:     make(map[string]map[string]wellness.Grant),
		attempts:   make(map[string]map[string]wellness.Attempt),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Profiles returns the profile repository view.
func (s *Store) Profiles() *ProfileRepository { return &ProfileRepository{s: s} }

// Companions returns the companion repository view.
func (s *Store) Companions() *CompanionRepository { return &CompanionRepository{s: s} }

// Messages returns the chat repository view.
func (s *Store) Messages() *MessageRepository { return &MessageRepository{s: s} }

// Wellness returns the wellness repository view.
func (s *Store) Wellness() *WellnessRepository { return &WellnessRepository{s: s} }

func cloneProfile(p *profile.Profile) *profile.Profile {
	c := *p
	if p.Mentor != nil {
		m := *p.Mentor
		c.Mentor = &m
	}
	return &c
}

// stateLocked returns the stored state or the starting state. Caller holds mu.
func (s *Store) stateLocked(userID string, sp companion.Species) (companion.State, bool) {
	st, ok := s.companions[userID][sp]
	if !ok {
		return companion.NewState(sp), false
	}
	return st, true
}

func (s *Store) putStateLocked(userID string, st companion.State) {
	if s.companions[userID] == nil {
		s.companions[userID] = make(map[companion.Species]companion.State)
	}
	s.companions[userID][st.Species] = st
}
