package chat

import (
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/companion-hub/companion-hub/internal/domain/shared"
)

// MaxTextLength bounds a single message, in runes.
const MaxTextLength = 4000

// Message is an immutable chat entry. SentAt and Seq are assigned by the
// store on append.
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	SenderID       string    `json:"sender_id"`
	Text           string    `json:"text"`
	SentAt         time.Time `json:"sent_at"`
	Seq            int64     `json:"seq"`
}

// NewMessage validates a draft. Blank text and non-participant senders are
// rejected.
func NewMessage(c Conversation, id, senderID, text string) (Message, error) {
	if !c.HasParticipant(senderID) {
		return Message{}, shared.ErrNotParticipant
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return Message{}, shared.ErrEmptyMessage
	}
	if utf8.RuneCountInString(text) > MaxTextLength {
		return Message{}, shared.ErrMessageTooLong
	}
	return Message{
		ID:             id,
		ConversationID: c.ID,
		SenderID:       senderID,
		Text:           text,
	}, nil
}

// Before orders by SentAt, then Seq for equal timestamps.
func (m Message) Before(o Message) bool {
	if !m.SentAt.Equal(o.SentAt) {
		return m.SentAt.Before(o.SentAt)
	}
	return m.Seq < o.Seq
}

// Sort orders msgs ascending in place.
func Sort(msgs []Message) {
	sort.SliceStable(msgs, func(i, j int) bool { return msgs[i].Before(msgs[j]) })
}
