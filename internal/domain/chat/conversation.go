// Package chat models the mentor-student conversation: a deterministic
// conversation id and an append-only, ordered message log.
package chat

import (
	"strings"

	"github.com/companion-hub/companion-hub/internal/domain/shared"
)

// Separator joins the two participant ids in a conversation id.
const Separator = "_"

// ConversationID is the lexicographically smaller id, "_", then the larger.
// It is symmetric: ConversationID(a, b) == ConversationID(b, a).
func ConversationID(a, b string) string {
	if a < b {
		return a + Separator + b
	}
	return b + Separator + a
}

// Conversation is the pair of participants behind a conversation id.
type Conversation struct {
	ID string
	A  string
	B  string
}

// NewConversation validates the participants. Ids must be non-empty,
// distinct and must not contain the separator, otherwise two different
// pairs could map to the same id.
func NewConversation(a, b string) (Conversation, error) {
	if a == "" || b == "" || a == b {
		return Conversation{}, shared.ErrInvalidConversation
	}
	if strings.Contains(a, Separator) || strings.Contains(b, Separator) {
		return Conversation{}, shared.ErrInvalidConversation
	}
	if b < a {
		a, b = b, a
	}
	return Conversation{ID: a + Separator + b, A: a, B: b}, nil
}

// ParseConversationID splits a conversation id back into its participants.
func ParseConversationID(id string) (Conversation, error) {
	a, b, ok := strings.Cut(id, Separator)
	if !ok {
		return Conversation{}, shared.ErrInvalidConversation
	}
	c, err := NewConversation(a, b)
	if err != nil || c.ID != id {
		return Conversation{}, shared.ErrInvalidConversation
	}
	return c, nil
}

// HasParticipant reports whether userID is one of the two participants.
func (c Conversation) HasParticipant(userID string) bool {
	return userID != "" && (userID == c.A || userID == c.B)
}

// Peer returns the other participant.
func (c Conversation) Peer(userID string) string {
	if userID == c.A {
		return c.B
	}
	return c.A
}
