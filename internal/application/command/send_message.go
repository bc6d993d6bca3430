package command

import (
	"context"

	"github.com/google/uuid"

	"github.com/companion-hub/companion-hub/internal/domain/chat"
	"github.com/companion-hub/companion-hub/internal/domain/profile"
	"github.com/companion-hub/companion-hub/internal/domain/shared"
	"github.com/companion-hub/companion-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// SEND MESSAGE COMMAND
// Appends to the conversation log, then fans the stored message out to live
// listeners. There is no retry queue: a failed append is logged and the
// caller gets a generic error.
// ══════════════════════════════════════════════════════════════════════════════

// SendMessageCommand contains a message draft.
type SendMessageCommand struct {
	SenderID string
	PeerID   string
	Text     string
}

// SendMessageHandler handles SendMessageCommand.
type SendMessageHandler struct {
	profiles  profile.Repository
	messages  chat.Repository
	broker    chat.Broker
	publisher shared.EventPublisher
	newID     func() string
}

// NewSendMessageHandler creates a new SendMessageHandler. broker may be nil.
func NewSendMessageHandler(
	profiles profile.Repository,
	messages chat.Repository,
	broker chat.Broker,
	publisher shared.EventPublisher,
) *SendMessageHandler {
	return &SendMessageHandler{
		profiles:  profiles,
		messages:  messages,
		broker:    broker,
		publisher: publisher,
		newID:     uuid.NewString,
	}
}

// Handle validates the pairing and the text and stores the message.
func (h *SendMessageHandler) Handle(ctx context.Context, cmd SendMessageCommand) (chat.Message, error) {
	conv, err := chat.Open(ctx, h.profiles, cmd.SenderID, cmd.PeerID)
	if err != nil {
		return chat.Message{}, err
	}

	draft, err := chat.NewMessage(conv, h.newID(), cmd.SenderID, cmd.Text)
	if err != nil {
		return chat.Message{}, err
	}

	log := logger.FromContext(ctx).With(logger.ConversationID(conv.ID), logger.UserID(cmd.SenderID))

	stored, err := h.messages.Append(ctx, draft)
	if err != nil {
		log.Error("append message failed", logger.Err(err))
		return chat.Message{}, shared.StoreError("chat", "Send", err)
	}

	if h.broker != nil {
		if err := h.broker.Publish(ctx, stored); err != nil {
			log.Warn("broadcast message failed", logger.Err(err))
		}
	}

	publish(ctx, h.publisher, shared.NewMessageSentEvent(stored.SenderID, stored.ConversationID, stored.ID, stored.Seq))
	return stored, nil
}
