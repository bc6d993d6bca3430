// Package saga contains business processes that coordinate several
// repository writes and compensate when a later step fails.
package saga

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/companion-hub/companion-hub/internal/domain/companion"
	"github.com/companion-hub/companion-hub/internal/domain/profile"
	"github.com/companion-hub/companion-hub/internal/domain/shared"
	"github.com/companion-hub/companion-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// ONBOARDING STATE
// The selection a student builds before confirming. It is a value: every
// change returns a new state, so screens can hold and pass it without
// sharing mutable objects.
// ══════════════════════════════════════════════════════════════════════════════

// OnboardingState is the pending focus and companion choice.
type OnboardingState struct {
	focus     profile.FocusSet
	companion companion.Species
}

// NewOnboardingState starts from an existing selection, usually the
// profile's persisted values.
func NewOnboardingState(focus profile.FocusSet, species companion.Species) OnboardingState {
	return OnboardingState{focus: focus, companion: species}
}

// WithFocusToggled adds area when absent and removes it when present.
func (s OnboardingState) WithFocusToggled(area profile.FocusArea) OnboardingState {
	s.focus = s.focus.Toggle(area)
	return s
}

// WithCompanion replaces the companion choice.
func (s OnboardingState) WithCompanion(species companion.Species) OnboardingState {
	s.companion = species
	return s
}

// Focus returns the selected areas.
func (s OnboardingState) Focus() profile.FocusSet { return s.focus }

// Companion returns the selected species, empty when none.
func (s OnboardingState) Companion() companion.Species { return s.companion }

// Validate checks the state can be confirmed.
func (s OnboardingState) Validate() error {
	if s.focus.IsEmpty() {
		return shared.ErrNoFocusSelected
	}
	if s.companion != "" {
		return companion.ValidateSelectable(s.companion)
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// ONBOARDING SAGA
// Flow: Validate → Load Profile → Save Focus → Select Companion → Publish
// A failed companion step restores the previous focus.
// ══════════════════════════════════════════════════════════════════════════════

// OnboardingStep names a step of the saga.
type OnboardingStep string

const (
	StepValidateInput   OnboardingStep = "validate_input"
	StepLoadProfile     OnboardingStep = "load_profile"
	StepSaveFocus       OnboardingStep = "save_focus"
	StepSelectCompanion OnboardingStep = "select_companion"
)

// OnboardingResult is returned after a successful confirmation.
type OnboardingResult struct {
	Profile     *profile.Profile
	Companion   *companion.State
	ConfirmedAt time.Time
}

// StepError reports which step failed.
type StepError struct {
	Step OnboardingStep
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("onboarding: %s: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// OnboardingSaga persists the onboarding choices.
type OnboardingSaga struct {
	profiles   profile.Repository
	companions companion.Repository
	publisher  shared.EventPublisher
	cache      profile.Invalidator
	now        func() time.Time
}

// NewOnboardingSaga creates the saga. cache may be nil.
func NewOnboardingSaga(
	profiles profile.Repository,
	companions companion.Repository,
	publisher shared.EventPublisher,
	cache profile.Invalidator,
) *OnboardingSaga {
	if publisher == nil {
		publisher = shared.NopPublisher{}
	}
	return &OnboardingSaga{
		profiles:   profiles,
		companions: companions,
		publisher:  publisher,
		cache:      cache,
		now:        time.Now,
	}
}

// Confirm writes the focus areas once and then selects the companion, if
// one was chosen.
func (s *OnboardingSaga) Confirm(ctx context.Context, userID string, state OnboardingState) (*OnboardingResult, error) {
	log := logger.FromContext(ctx).With(logger.UserID(userID), logger.Component("onboarding"))

	if err := state.Validate(); err != nil {
		return nil, &StepError{Step: StepValidateInput, Err: err}
	}

	p, err := s.profiles.Get(ctx, userID)
	if err != nil {
		return nil, &StepError{Step: StepLoadProfile, Err: err}
	}
	if !p.IsStudent() {
		return nil, &StepError{Step: StepLoadProfile, Err: shared.ErrNotAStudent}
	}

	prevFocus, prevConfirmedAt := p.Focus, p.FocusConfirmedAt
	now := s.now().UTC()

	if err := p.ConfirmFocus(state.Focus(), now); err != nil {
		return nil, &StepError{Step: StepSaveFocus, Err: err}
	}
	if err := s.profiles.SaveFocus(ctx, userID, p.Focus, p.FocusConfirmedAt); err != nil {
		return nil, &StepError{Step: StepSaveFocus, Err: err}
	}

	result := &OnboardingResult{Profile: p, ConfirmedAt: now}

	if sp := state.Companion(); sp != "" {
		st, err := s.selectCompanion(ctx, p, sp)
		if err != nil {
			if cerr := s.profiles.SaveFocus(ctx, userID, prevFocus, prevConfirmedAt); cerr != nil {
				log.Error("restore focus failed", logger.Err(cerr))
			}
			s.invalidate(ctx, userID)
			return nil, &StepError{Step: StepSelectCompanion, Err: err}
		}
		result.Companion = &st
	}

	s.invalidate(ctx, userID)

	if err := s.publisher.Publish(shared.NewFocusConfirmedEvent(userID, p.Focus.Strings(), string(p.SelectedCompanion))); err != nil {
		log.Warn("publish focus confirmed failed", logger.Err(err))
	}

	log.Info("onboarding confirmed",
		logger.Int("focus_areas", p.Focus.Len()),
		logger.Species(string(p.SelectedCompanion)),
	)
	return result, nil
}

// SelectCompanion changes the selected species outside onboarding. The
// companion's state is created with defaults if absent and never reset.
func (s *OnboardingSaga) SelectCompanion(ctx context.Context, userID string, species companion.Species) (*profile.Profile, companion.State, error) {
	p, err := s.profiles.Get(ctx, userID)
	if err != nil {
		return nil, companion.State{}, err
	}
	if !p.IsStudent() {
		return nil, companion.State{}, shared.ErrNotAStudent
	}

	st, err := s.selectCompanion(ctx, p, species)
	if err != nil {
		return nil, companion.State{}, err
	}
	s.invalidate(ctx, userID)

	if err := s.publisher.Publish(shared.NewCompanionEvent(
		shared.EventCompanionSelected, userID, string(species), st.Level, st.Progress, st.Food, p.Wallet.Coins.Int(),
	)); err != nil {
		logger.FromContext(ctx).Warn("publish companion selected failed", logger.Err(err))
	}
	return p, st, nil
}

func (s *OnboardingSaga) selectCompanion(ctx context.Context, p *profile.Profile, species companion.Species) (companion.State, error) {
	if err := p.SelectCompanion(species, s.now().UTC()); err != nil {
		return companion.State{}, err
	}
	st, err := s.companions.Init(ctx, p.ID, species)
	if err != nil {
		return companion.State{}, err
	}
	if err := s.profiles.SetCompanion(ctx, p.ID, species); err != nil {
		return companion.State{}, err
	}
	return st, nil
}

func (s *OnboardingSaga) invalidate(ctx context.Context, userID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, userID); err != nil {
		logger.FromContext(ctx).Warn("profile cache invalidation failed", logger.UserID(userID), logger.Err(err))
	}
}

// FailedStep extracts the failed step from a saga error, or "".
func FailedStep(err error) OnboardingStep {
	var se *StepError
	if errors.As(err, &se) {
		return se.Step
	}
	return ""
}
