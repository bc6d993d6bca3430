package redis

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/companion-hub/companion-hub/internal/domain/chat"
	"github.com/companion-hub/companion-hub/pkg/logger"
)

// MessageBroker fans chat messages out across API instances over Redis
// pub/sub. Delivery is at-most-once; subscribers recover gaps from history.
type MessageBroker struct {
	cache  *Cache
	buffer int
}

var _ chat.Broker = (*MessageBroker)(nil)

// NewMessageBroker creates a broker. buffer <= 0 uses 64.
func NewMessageBroker(cache *Cache, buffer int) *MessageBroker {
	if buffer <= 0 {
		buffer = 64
	}
	return &MessageBroker{cache: cache, buffer: buffer}
}

// Publish sends m on its conversation's channel.
func (b *MessageBroker) Publish(ctx context.Context, m chat.Message) error {
	return b.cache.Publish(ctx, ChatChannel(m.ConversationID), m)
}

// Listen subscribes and waits for the server's confirmation before
// returning.
func (b *MessageBroker) Listen(ctx context.Context, conversationID string) (chat.Listener, error) {
	ps := b.cache.Subscribe(ctx, ChatChannel(conversationID))
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, err
	}

	lctx, cancel := context.WithCancel(ctx)
	l := &pubsubListener{
		conversationID: conversationID,
		ps:             ps,
		ch:             make(chan chat.Message, b.buffer),
		cancel:         cancel,
	}
	go l.run(lctx)
	return l, nil
}

type pubsubListener struct {
	conversationID string
	ps             *redis.PubSub
	ch             chan chat.Message
	cancel         context.CancelFunc
	once           sync.Once
}

func (l *pubsubListener) C() <-chan chat.Message { return l.ch }

func (l *pubsubListener) Close() error {
	var err error
	l.once.Do(func() {
		l.cancel()
		err = l.ps.Close()
	})
	return err
}

func (l *pubsubListener) run(ctx context.Context) {
	defer close(l.ch)
	defer l.Close()

	log := logger.FromContext(ctx).With(logger.ConversationID(l.conversationID))
	in := l.ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case raw, ok := <-in:
			if !ok {
				return
			}
			var m chat.Message
			if err := json.Unmarshal([]byte(raw.Payload), &m); err != nil {
				log.Warn("dropping malformed chat payload", logger.Err(err))
				continue
			}
			select {
			case l.ch <- m:
			case <-ctx.Done():
				return
			}
		}
	}
}
