package shared

import (
	"time"
)

// EventType represents the type of domain event.
type EventType string

const (
	// Profile events
	EventProfileRegistered  EventType = "profile.registered"
	EventFocusConfirmed     EventType = "profile.focus_confirmed"
	EventMentorAssigned     EventType = "profile.mentor_assigned"
	EventMentorProfileSaved EventType = "profile.mentor_profile_saved"

	// Companion events
	EventCompanionSelected EventType = "companion.selected"
	EventCompanionFed      EventType = "companion.fed"
	EventCompanionLevelUp  EventType = "companion.level_up"
	EventFoodPurchased     EventType = "economy.food_purchased"

	// Chat events
	EventMessageSent EventType = "chat.message_sent"

	// Wellness events
	EventLessonCompleted  EventType = "wellness.lesson_completed"
	EventCheckinSubmitted EventType = "wellness.checkin_submitted"
)

// Event is the base interface for all domain events.
type Event interface {
	EventType() EventType
	OccurredAt() time.Time

	// AggregateID is the user the event belongs to.
	AggregateID() string

	Payload() map[string]interface{}
}

// BaseEvent provides common event functionality.
type BaseEvent struct {
	Type        EventType `json:"type"`
	Timestamp   time.Time `json:"timestamp"`
	AggregateId string    `json:"aggregate_id"`
	Version     int       `json:"version"`
}

// EventType implements Event interface.
func (e BaseEvent) EventType() EventType {
	return e.Type
}

// OccurredAt implements Event interface.
func (e BaseEvent) OccurredAt() time.Time {
	return e.Timestamp
}

// AggregateID implements Event interface.
func (e BaseEvent) AggregateID() string {
	return e.AggregateId
}

// NewBaseEvent creates a new base event.
func NewBaseEvent(eventType EventType, aggregateID string) BaseEvent {
	return BaseEvent{
		Type:        eventType,
		Timestamp:   time.Now().UTC(),
		AggregateId: aggregateID,
		Version:     1,
	}
}

// ProfileRegisteredEvent is emitted when a user signs up.
type ProfileRegisteredEvent struct {
	BaseEvent
	Role string `json:"role"`
}

// Payload implements Event interface.
func (e ProfileRegisteredEvent) Payload() map[string]interface{} {
	return map[string]interface{}{"role": e.Role}
}

// NewProfileRegisteredEvent creates a new ProfileRegisteredEvent.
func NewProfileRegisteredEvent(userID, role string) ProfileRegisteredEvent {
	return ProfileRegisteredEvent{BaseEvent: NewBaseEvent(EventProfileRegistered, userID), Role: role}
}

// FocusConfirmedEvent is emitted when onboarding is confirmed.
type FocusConfirmedEvent struct {
	BaseEvent
	Areas   []string `json:"areas"`
	Species string   `json:"species,omitempty"`
}

// Payload implements Event interface.
func (e FocusConfirmedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{"areas": e.Areas, "species": e.Species}
}

// NewFocusConfirmedEvent creates a new FocusConfirmedEvent.
func NewFocusConfirmedEvent(userID string, areas []string, species string) FocusConfirmedEvent {
	return FocusConfirmedEvent{
		BaseEvent: NewBaseEvent(EventFocusConfirmed, userID),
		Areas:     areas,
		Species:   species,
	}
}

// MentorAssignedEvent is emitted when a student gets a mentor.
type MentorAssignedEvent struct {
	BaseEvent
	MentorID string `json:"mentor_id"`
}

// Payload implements Event interface.
func (e MentorAssignedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{"mentor_id": e.MentorID}
}

// NewMentorAssignedEvent creates a new MentorAssignedEvent.
func NewMentorAssignedEvent(studentID, mentorID string) MentorAssignedEvent {
	return MentorAssignedEvent{BaseEvent: NewBaseEvent(EventMentorAssigned, studentID), MentorID: mentorID}
}

// ProfileChangedEvent covers profile writes that carry no extra data.
type ProfileChangedEvent struct {
	BaseEvent
}

// Payload implements Event interface.
func (e ProfileChangedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{}
}

// NewProfileChangedEvent creates a ProfileChangedEvent of the given type.
func NewProfileChangedEvent(eventType EventType, userID string) ProfileChangedEvent {
	return ProfileChangedEvent{BaseEvent: NewBaseEvent(eventType, userID)}
}

// CompanionEvent is emitted for any applied companion mutation.
type CompanionEvent struct {
	BaseEvent
	Species  string `json:"species"`
	Level    int    `json:"level"`
	Progress int    `json:"progress"`
	Food     int    `json:"food"`
	Coins    int    `json:"coins"`
}

// Payload implements Event interface.
func (e CompanionEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"species":  e.Species,
		"level":    e.Level,
		"progress": e.Progress,
		"food":     e.Food,
		"coins":    e.Coins,
	}
}

// NewCompanionEvent creates a CompanionEvent of the given type.
func NewCompanionEvent(eventType EventType, userID, species string, level, progress, food, coins int) CompanionEvent {
	return CompanionEvent{
		BaseEvent: NewBaseEvent(eventType, userID),
		Species:   species,
		Level:     level,
		Progress:  progress,
		Food:      food,
		Coins:     coins,
	}
}

// MessageSentEvent is emitted after a chat message is persisted.
type MessageSentEvent struct {
	BaseEvent
	ConversationID string `json:"conversation_id"`
	MessageID      string `json:"message_id"`
	Seq            int64  `json:"seq"`
}

// Payload implements Event interface.
func (e MessageSentEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"conversation_id": e.ConversationID,
		"message_id":      e.MessageID,
		"seq":             e.Seq,
	}
}

// NewMessageSentEvent creates a new MessageSentEvent.
func NewMessageSentEvent(senderID, conversationID, messageID string, seq int64) MessageSentEvent {
	return MessageSentEvent{
		BaseEvent:      NewBaseEvent(EventMessageSent, senderID),
		ConversationID: conversationID,
		MessageID:      messageID,
		Seq:            seq,
	}
}

// RewardGrantedEvent is emitted once per grant key.
type RewardGrantedEvent struct {
	BaseEvent
	Key      string `json:"key"`
	XP       int    `json:"xp"`
	Coins    int    `json:"coins"`
	Progress int    `json:"progress"`
}

// Payload implements Event interface.
func (e RewardGrantedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"key":      e.Key,
		"xp":       e.XP,
		"coins":    e.Coins,
		"progress": e.Progress,
	}
}

// NewRewardGrantedEvent creates a RewardGrantedEvent. eventType is the
// completion that triggered it (lesson or check-in).
func NewRewardGrantedEvent(eventType EventType, userID, key string, xp, coins, progress int) RewardGrantedEvent {
	return RewardGrantedEvent{
		BaseEvent: NewBaseEvent(eventType, userID),
		Key:       key,
		XP:        xp,
		Coins:     coins,
		Progress:  progress,
	}
}

// EventHandler is a function that handles an event.
type EventHandler func(event Event) error

// EventPublisher defines the interface for publishing events.
type EventPublisher interface {
	Publish(event Event) error
}

// EventSubscriber defines the interface for subscribing to events.
type EventSubscriber interface {
	Subscribe(eventType EventType, handler EventHandler) error
	SubscribeAll(handler EventHandler) error
}

// EventBus combines publishing and subscribing.
type EventBus interface {
	EventPublisher
	EventSubscriber
}

// NopPublisher drops every event.
type NopPublisher struct{}

// Publish implements EventPublisher.
func (NopPublisher) Publish(Event) error { return nil }
