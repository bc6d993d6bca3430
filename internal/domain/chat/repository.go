package chat

import (
	"context"
)

// HistoryQuery selects a slice of a conversation's log.
type HistoryQuery struct {
	ConversationID string

	// AfterSeq skips messages with Seq <= AfterSeq. Zero means from the start.
	AfterSeq int64

	// Limit caps the result; zero means no limit.
	Limit int
}

// Repository is the append-only message log.
type Repository interface {
	// Append stores m, assigning SentAt and a strictly increasing Seq, and
	// returns the stored message.
	Append(ctx context.Context, m Message) (Message, error)

	// History returns messages ascending by (SentAt, Seq).
	History(ctx context.Context, q HistoryQuery) ([]Message, error)
}

// Listener receives live messages for one conversation until closed.
type Listener interface {
	C() <-chan Message
	Close() error
}

// Broker fans out newly appended messages to live listeners.
type Broker interface {
	Publish(ctx context.Context, m Message) error

	// Listen attaches to conversationID. Messages published after Listen
	// returns are delivered on the listener's channel.
	Listen(ctx context.Context, conversationID string) (Listener, error)
}
