package query

import (
	"context"
	"sync"

	"github.com/companion-hub/companion-hub/internal/domain/chat"
	"github.com/companion-hub/companion-hub/internal/domain/profile"
	"github.com/companion-hub/companion-hub/internal/domain/shared"
	"github.com/companion-hub/companion-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET HISTORY QUERY
// ══════════════════════════════════════════════════════════════════════════════

// HistoryQuery pages a conversation forward from a sequence number.
type HistoryQuery struct {
	UserID   string
	PeerID   string
	AfterSeq int64
	Limit    int
}

// HistoryDTO is one page of messages, ascending.
type HistoryDTO struct {
	ConversationID string         `json:"conversation_id"`
	Messages       []chat.Message `json:"messages"`

	// Pass as AfterSeq to fetch the next page. Zero when the page is empty.
	NextAfterSeq int64 `json:"next_after_seq"`
}

// GetHistoryHandler reads conversation history.
type GetHistoryHandler struct {
	profiles profile.Repository
	messages chat.Repository
}

// NewGetHistoryHandler creates a new GetHistoryHandler.
func NewGetHistoryHandler(profiles profile.Repository, messages chat.Repository) *GetHistoryHandler {
	return &GetHistoryHandler{profiles: profiles, messages: messages}
}

// Handle returns messages with Seq > AfterSeq ordered by (SentAt, Seq).
func (h *GetHistoryHandler) Handle(ctx context.Context, q HistoryQuery) (*HistoryDTO, error) {
	conv, err := chat.Open(ctx, h.profiles, q.UserID, q.PeerID)
	if err != nil {
		return nil, err
	}

	limit := shared.NewPagination(q.Limit).Limit()
	msgs, err := h.messages.History(ctx, chat.HistoryQuery{
		ConversationID: conv.ID,
		AfterSeq:       q.AfterSeq,
		Limit:          limit,
	})
	if err != nil {
		return nil, err
	}

	dto := &HistoryDTO{ConversationID: conv.ID, Messages: msgs}
	if dto.Messages == nil {
		dto.Messages = []chat.Message{}
	}
	for _, m := range msgs {
		if m.Seq > dto.NextAfterSeq {
			dto.NextAfterSeq = m.Seq
		}
	}
	return dto, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// WATCH CONVERSATION QUERY
// Replays the full history and then tails live messages. The broker
// listener is attached before history is read, so a message appended in
// between arrives on the listener; anything already replayed is dropped by
// message ID.
// ══════════════════════════════════════════════════════════════════════════════

// DefaultSubscriptionBuffer is the capacity of a subscription's channel.
const DefaultSubscriptionBuffer = 32

// Subscription is a cancellable stream of messages for one conversation.
type Subscription struct {
	ConversationID string

	ch     chan chat.Message
	cancel context.CancelFunc
	once   sync.Once
	done   chan struct{}
}

// Messages yields history then live messages. It is closed after Cancel,
// when the parent context ends, or when the broker drops the listener.
func (s *Subscription) Messages() <-chan chat.Message { return s.ch }

// Done is closed once the subscription stopped delivering.
func (s *Subscription) Done() <-chan struct{} { return s.done }

// Cancel stops the subscription. Safe to call more than once.
func (s *Subscription) Cancel() {
	s.once.Do(s.cancel)
}

// WatchConversationHandler opens subscriptions.
type WatchConversationHandler struct {
	profiles profile.Repository
	messages chat.Repository
	broker   chat.Broker
	buffer   int
}

// NewWatchConversationHandler creates a new WatchConversationHandler.
func NewWatchConversationHandler(profiles profile.Repository, messages chat.Repository, broker chat.Broker) *WatchConversationHandler {
	return &WatchConversationHandler{
		profiles: profiles,
		messages: messages,
		broker:   broker,
		buffer:   DefaultSubscriptionBuffer,
	}
}

// Handle opens a subscription for the conversation between userID and
// peerID. The caller must Cancel it.
func (h *WatchConversationHandler) Handle(ctx context.Context, userID, peerID string) (*Subscription, error) {
	conv, err := chat.Open(ctx, h.profiles, userID, peerID)
	if err != nil {
		return nil, err
	}

	subCtx, cancel := context.WithCancel(ctx)

	listener, err := h.broker.Listen(subCtx, conv.ID)
	if err != nil {
		cancel()
		return nil, err
	}

	history, err := h.messages.History(subCtx, chat.HistoryQuery{ConversationID: conv.ID})
	if err != nil {
		_ = listener.Close()
		cancel()
		return nil, err
	}

	sub := &Subscription{
		ConversationID: conv.ID,
		ch:             make(chan chat.Message, h.buffer),
		cancel:         cancel,
		done:           make(chan struct{}),
	}

	go h.pump(subCtx, sub, listener, history)
	return sub, nil
}

func (h *WatchConversationHandler) pump(ctx context.Context, sub *Subscription, listener chat.Listener, history []chat.Message) {
	defer close(sub.done)
	defer close(sub.ch)
	defer listener.Close()

	// Seq is not commit order on every backend, so a live message with a
	// lower Seq than the replayed tail can still be new. Dedupe by ID.
	replayed := make(map[string]struct{}, len(history))
	for _, m := range history {
		replayed[m.ID] = struct{}{}
		select {
		case sub.ch <- m:
		case <-ctx.Done():
			return
		}
	}

	for {
		select {
		case <-ctx.Done():
			return
		case m, ok := <-listener.C():
			if !ok {
				logger.FromContext(ctx).Debug("chat listener closed", logger.ConversationID(sub.ConversationID))
				return
			}
			if _, seen := replayed[m.ID]; seen {
				delete(replayed, m.ID)
				continue
			}
			select {
			case sub.ch <- m:
			case <-ctx.Done():
				return
			}
		}
	}
}
