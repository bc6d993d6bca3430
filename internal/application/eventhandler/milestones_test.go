package eventhandler

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/companion-hub/companion-hub/internal/domain/shared"
	"github.com/companion-hub/companion-hub/internal/infrastructure/messaging"
	"github.com/companion-hub/companion-hub/pkg/logger"
)

func newBus(t *testing.T) *messaging.InMemoryEventBus {
	t.Helper()
	cfg := messaging.DefaultInMemoryEventBusConfig()
	cfg.AsyncMode = false
	bus := messaging.NewInMemoryEventBus(cfg)
	t.Cleanup(func() { _ = bus.Close() })
	return bus
}

func TestMilestoneHandler_CountsThroughBus(t *testing.T) {
	bus := newBus(t)
	h := NewMilestoneHandler(nil, 0)
	require.NoError(t, h.Register(bus))

	require.NoError(t, bus.Publish(shared.NewProfileRegisteredEvent("abc", "student")))
	require.NoError(t, bus.Publish(shared.NewMentorAssignedEvent("abc", "xyz")))
	require.NoError(t, bus.Publish(shared.NewFocusConfirmedEvent("abc", []string{"ANXIETY"}, "CAT")))
	require.NoError(t, bus.Publish(shared.NewRewardGrantedEvent(shared.EventLessonCompleted, "abc", "lesson:x:1", 15, 15, 15)))
	require.NoError(t, bus.Publish(shared.NewRewardGrantedEvent(shared.EventCheckinSubmitted, "abc", "checkin:1", 50, 50, 10)))
	for level := 2; level <= 5; level++ {
		require.NoError(t, bus.Publish(shared.NewCompanionEvent(shared.EventCompanionLevelUp, "abc", "CAT", level, 0, 0, 0)))
	}
	// Not routed to this handler.
	require.NoError(t, bus.Publish(shared.NewCompanionEvent(shared.EventCompanionFed, "abc", "CAT", 5, 15, 0, 0)))

	assert.Equal(t, MilestoneStats{
		Registrations:     1,
		FocusConfirmed:    1,
		MentorAssignments: 1,
		LevelUps:          4,
		LevelMilestones:   1,
		Grants:            2,
		XPGranted:         65,
	}, h.Stats())
}

func TestMilestoneHandler_LogsMilestone(t *testing.T) {
	var buf bytes.Buffer
	h := NewMilestoneHandler(logger.New(logger.Options{Output: &buf, Level: logger.LevelInfo}), 2)

	require.NoError(t, h.OnCompanionLevelUp(shared.NewCompanionEvent(shared.EventCompanionLevelUp, "abc", "DOG", 3, 0, 0, 0)))
	assert.Empty(t, buf.String())

	require.NoError(t, h.OnCompanionLevelUp(shared.NewCompanionEvent(shared.EventCompanionLevelUp, "abc", "DOG", 4, 0, 0, 0)))
	line := buf.String()
	assert.True(t, strings.Contains(line, "companion level milestone"))
	assert.True(t, strings.Contains(line, `"companion_level":4`))
}

func TestMilestoneHandler_IgnoresWrongPayload(t *testing.T) {
	h := NewMilestoneHandler(logger.Nop(), 0)
	err := h.OnRewardGranted(shared.NewMentorAssignedEvent("abc", "xyz"))
	assert.NoError(t, err)
	assert.Zero(t, h.Stats().Grants)
}
