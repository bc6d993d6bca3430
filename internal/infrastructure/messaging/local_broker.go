package messaging

import (
	"context"
	"sync"

	"github.com/companion-hub/companion-hub/internal/domain/chat"
	"github.com/companion-hub/companion-hub/pkg/logger"
)

// DefaultListenerBuffer is the per-listener channel capacity.
const DefaultListenerBuffer = 64

// LocalBroker fans chat messages out to listeners in this process.
//
// A listener whose buffer is full is closed instead of blocking the
// publisher; the client reconnects and replays history.
type LocalBroker struct {
	mu        sync.Mutex
	listeners map[string]map[*localListener]struct{}
	buffer    int
	closed    bool
	log       *logger.Logger
}

var _ chat.Broker = (*LocalBroker)(nil)

// NewLocalBroker creates a broker. A buffer <= 0 uses DefaultListenerBuffer.
func NewLocalBroker(buffer int, log *logger.Logger) *LocalBroker {
	if buffer <= 0 {
		buffer = DefaultListenerBuffer
	}
	if log == nil {
		log = logger.Nop()
	}
	return &LocalBroker{
		listeners: make(map[string]map[*localListener]struct{}),
		buffer:    buffer,
		log:       log.With(logger.Component("chat_broker")),
	}
}

// Publish delivers m to every listener of its conversation.
func (b *LocalBroker) Publish(_ context.Context, m chat.Message) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrBrokerClosed
	}

	for l := range b.listeners[m.ConversationID] {
		select {
		case l.ch <- m:
		default:
			b.log.Warn("dropping slow chat listener", logger.ConversationID(m.ConversationID))
			b.removeLocked(l)
		}
	}
	return nil
}

// Listen attaches a listener. It is closed when ctx ends, when Close is
// called, or when it falls behind.
func (b *LocalBroker) Listen(ctx context.Context, conversationID string) (chat.Listener, error) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, ErrBrokerClosed
	}
	l := &localListener{
		broker:         b,
		conversationID: conversationID,
		ch:             make(chan chat.Message, b.buffer),
		done:           make(chan struct{}),
	}
	if b.listeners[conversationID] == nil {
		b.listeners[conversationID] = make(map[*localListener]struct{})
	}
	b.listeners[conversationID][l] = struct{}{}
	b.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
			_ = l.Close()
		case <-l.done:
		}
	}()

	return l, nil
}

// Close detaches every listener.
func (b *LocalBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true
	for _, set := range b.listeners {
		for l := range set {
			b.removeLocked(l)
		}
	}
	return nil
}

// ListenerCount reports live listeners for a conversation.
func (b *LocalBroker) ListenerCount(conversationID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.listeners[conversationID])
}

// removeLocked detaches l and closes its channel. Caller holds mu.
func (b *LocalBroker) removeLocked(l *localListener) {
	set, ok := b.listeners[l.conversationID]
	if !ok {
		return
	}
	if _, ok := set[l]; !ok {
		return
	}
	delete(set, l)
	if len(set) == 0 {
		delete(b.listeners, l.conversationID)
	}
	close(l.ch)
	close(l.done)
}

type localListener struct {
	broker         *LocalBroker
	conversationID string
	ch             chan chat.Message
	done           chan struct{}
}

func (l *localListener) C() <-chan chat.Message { return l.ch }

func (l *localListener) Close() error {
	l.broker.mu.Lock()
	defer l.broker.mu.Unlock()
	l.broker.removeLocked(l)
	return nil
}
