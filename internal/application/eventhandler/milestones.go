// Package eventhandler reacts to domain events after the command that raised
// them has committed. Handlers here only observe: they log milestones and
// keep counters. Cache invalidation happens inline in the commands.
package eventhandler

import (
	"sync/atomic"

	"github.com/companion-hub/companion-hub/internal/domain/shared"
	"github.com/companion-hub/companion-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// MILESTONE HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// DefaultLevelMilestone is the level interval logged as a milestone.
const DefaultLevelMilestone = 5

// MilestoneStats is a point-in-time copy of the handler's counters.
type MilestoneStats struct {
	Registrations     int64
	FocusConfirmed    int64
	MentorAssignments int64
	LevelUps          int64
	LevelMilestones   int64
	Grants            int64
	XPGranted         int64
}

// MilestoneHandler logs progress events.
type MilestoneHandler struct {
	log            *logger.Logger
	levelMilestone int

	registrations     atomic.Int64
	focusConfirmed    atomic.Int64
	mentorAssignments atomic.Int64
	levelUps          atomic.Int64
	levelMilestones   atomic.Int64
	grants            atomic.Int64
	xpGranted         atomic.Int64
}

// NewMilestoneHandler creates a handler. levelMilestone <= 0 uses
// DefaultLevelMilestone.
func NewMilestoneHandler(log *logger.Logger, levelMilestone int) *MilestoneHandler {
	if log == nil {
		log = logger.Nop()
	}
	if levelMilestone <= 0 {
		levelMilestone = DefaultLevelMilestone
	}
	return &MilestoneHandler{
		log:            log.With(logger.Component("milestones")),
		levelMilestone: levelMilestone,
	}
}

// Register subscribes the handler to the events it understands.
func (h *MilestoneHandler) Register(sub shared.EventSubscriber) error {
	routes := map[shared.EventType]shared.EventHandler{
		shared.EventProfileRegistered: h.OnProfileRegistered,
		shared.EventFocusConfirmed:    h.OnFocusConfirmed,
		shared.EventMentorAssigned:    h.OnMentorAssigned,
		shared.EventCompanionLevelUp:  h.OnCompanionLevelUp,
		shared.EventLessonCompleted:   h.OnRewardGranted,
		shared.EventCheckinSubmitted:  h.OnRewardGranted,
	}
	for t, fn := range routes {
		if err := sub.Subscribe(t, fn); err != nil {
			return err
		}
	}
	return nil
}

// OnProfileRegistered counts sign-ups.
func (h *MilestoneHandler) OnProfileRegistered(event shared.Event) error {
	e, ok := event.(shared.ProfileRegisteredEvent)
	if !ok {
		return h.unexpected(event)
	}
	h.registrations.Add(1)
	h.log.Info("profile registered", logger.UserID(e.AggregateID()), logger.String("role", e.Role))
	return nil
}

// OnFocusConfirmed logs a finished onboarding.
func (h *MilestoneHandler) OnFocusConfirmed(event shared.Event) error {
	e, ok := event.(shared.FocusConfirmedEvent)
	if !ok {
		return h.unexpected(event)
	}
	h.focusConfirmed.Add(1)
	h.log.Info("onboarding finished",
		logger.UserID(e.AggregateID()),
		logger.Any("focus", e.Areas),
		logger.Species(e.Species),
	)
	return nil
}

// OnMentorAssigned logs a new student/mentor pair.
func (h *MilestoneHandler) OnMentorAssigned(event shared.Event) error {
	e, ok := event.(shared.MentorAssignedEvent)
	if !ok {
		return h.unexpected(event)
	}
	h.mentorAssignments.Add(1)
	h.log.Info("mentor assigned", logger.UserID(e.AggregateID()), logger.String("mentor_id", e.MentorID))
	return nil
}

// OnCompanionLevelUp logs every level-up and flags round levels.
func (h *MilestoneHandler) OnCompanionLevelUp(event shared.Event) error {
	e, ok := event.(shared.CompanionEvent)
	if !ok {
		return h.unexpected(event)
	}
	h.levelUps.Add(1)

	fields := []logger.Field{
		logger.UserID(e.AggregateID()),
		logger.Species(e.Species),
		logger.CompanionLevel(e.Level),
	}
	if e.Level > 0 && e.Level%h.levelMilestone == 0 {
		h.levelMilestones.Add(1)
		h.log.Info("companion level milestone", fields...)
		return nil
	}
	h.log.Debug("companion leveled up", fields...)
	return nil
}

// OnRewardGranted tallies lesson and check-in rewards.
func (h *MilestoneHandler) OnRewardGranted(event shared.Event) error {
	e, ok := event.(shared.RewardGrantedEvent)
	if !ok {
		return h.unexpected(event)
	}
	h.grants.Add(1)
	h.xpGranted.Add(int64(e.XP))
	h.log.Info("reward granted",
		logger.UserID(e.AggregateID()),
		logger.String("event_type", string(e.EventType())),
		logger.GrantKey(e.Key),
		logger.XPAmount(e.XP),
	)
	return nil
}

// Stats returns the current counters.
func (h *MilestoneHandler) Stats() MilestoneStats {
	return MilestoneStats{
		Registrations:     h.registrations.Load(),
		FocusConfirmed:    h.focusConfirmed.Load(),
		MentorAssignments: h.mentorAssignments.Load(),
		LevelUps:          h.levelUps.Load(),
		LevelMilestones:   h.levelMilestones.Load(),
		Grants:            h.grants.Load(),
		XPGranted:         h.xpGranted.Load(),
	}
}

// A mismatched payload is a wiring bug, not a reason to fail the publisher.
func (h *MilestoneHandler) unexpected(event shared.Event) error {
	h.log.Warn("unexpected event payload", logger.String("event_type", string(event.EventType())))
	return nil
}
