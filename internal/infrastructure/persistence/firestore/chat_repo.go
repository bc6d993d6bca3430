package firestore

import (
	"context"
	"errors"
	"sync"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"

	"github.com/companion-hub/companion-hub/internal/domain/chat"
	"github.com/companion-hub/companion-hub/pkg/logger"
)

type chatDoc struct {
	Seq       int64     `firestore:"seq"`
	UpdatedAt time.Time `firestore:"updated_at"`
}

type messageDoc struct {
	SenderID string    `firestore:"sender_id"`
	Text     string    `firestore:"text"`
	SentAt   time.Time `firestore:"sent_at"`
	Seq      int64     `firestore:"seq"`
}

func decodeMessage(snap *firestore.DocumentSnapshot, conversationID string) (chat.Message, error) {
	var doc messageDoc
	if err := snap.DataTo(&doc); err != nil {
		return chat.Message{}, err
	}
	return chat.Message{
		ID:             snap.Ref.ID,
		ConversationID: conversationID,
		SenderID:       doc.SenderID,
		Text:           doc.Text,
		SentAt:         doc.SentAt,
		Seq:            doc.Seq,
	}, nil
}

// ─────────────────────────────────────────
// chat.Repository implementation
// ─────────────────────────────────────────

// MessageRepository implements chat.Repository. Seq comes from a counter on
// the conversation document, incremented in the same transaction as the
// message write.
type MessageRepository struct {
	s *Store
}

var _ chat.Repository = (*MessageRepository)(nil)

func (r *MessageRepository) Append(ctx context.Context, m chat.Message) (chat.Message, error) {
	chatRef := r.s.chatDoc(m.ConversationID)
	stored := m

	err := r.s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		var counter chatDoc
		snap, err := tx.Get(chatRef)
		switch {
		case err == nil:
			if err := snap.DataTo(&counter); err != nil {
				return err
			}
		case !isNotFound(err):
			return err
		}

		stored.Seq = counter.Seq + 1
		stored.SentAt = time.Now().UTC()

		if err := tx.Set(chatRef, chatDoc{Seq: stored.Seq, UpdatedAt: stored.SentAt}); err != nil {
			return err
		}
		return tx.Create(r.s.messagesCol(m.ConversationID).Doc(m.ID), messageDoc{
			SenderID: stored.SenderID,
			Text:     stored.Text,
			SentAt:   stored.SentAt,
			Seq:      stored.Seq,
		})
	})
	if err != nil {
		return chat.Message{}, storeErr("chat", "Append", err)
	}
	return stored, nil
}

// History filters on seq; the page is then ordered by (SentAt, Seq).
func (r *MessageRepository) History(ctx context.Context, q chat.HistoryQuery) ([]chat.Message, error) {
	query := r.s.messagesCol(q.ConversationID).
		Where("seq", ">", q.AfterSeq).
		OrderBy("seq", firestore.Asc)
	if q.Limit > 0 {
		query = query.Limit(q.Limit)
	}

	iter := query.Documents(ctx)
	defer iter.Stop()

	out := make([]chat.Message, 0)
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, storeErr("chat", "History", err)
		}
		m, err := decodeMessage(snap, q.ConversationID)
		if err != nil {
			return nil, storeErr("chat", "History", err)
		}
		out = append(out, m)
	}
	chat.Sort(out)
	return out, nil
}

// ─────────────────────────────────────────
// chat.Broker implementation
// ─────────────────────────────────────────

// Broker delivers messages through Firestore snapshot listeners. Publish is
// a no-op: the append itself is what listeners observe, on every instance.
type Broker struct {
	s *Store
}

var _ chat.Broker = (*Broker)(nil)

func (b *Broker) Publish(context.Context, chat.Message) error { return nil }

// Listen reads the current counter and watches messages above it. It waits
// for the first snapshot, so the watch is attached when Listen returns.
func (b *Broker) Listen(ctx context.Context, conversationID string) (chat.Listener, error) {
	var counter chatDoc
	snap, err := b.s.chatDoc(conversationID).Get(ctx)
	switch {
	case err == nil:
		if err := snap.DataTo(&counter); err != nil {
			return nil, storeErr("chat", "Listen", err)
		}
	case !isNotFound(err):
		return nil, storeErr("chat", "Listen", err)
	}

	lctx, cancel := context.WithCancel(ctx)
	it := b.s.messagesCol(conversationID).
		Where("seq", ">", counter.Seq).
		OrderBy("seq", firestore.Asc).
		Snapshots(lctx)

	first, err := it.Next()
	if err != nil {
		it.Stop()
		cancel()
		return nil, storeErr("chat", "Listen", err)
	}

	l := &snapshotListener{
		conversationID: conversationID,
		ch:             make(chan chat.Message, 64),
		it:             it,
		cancel:         cancel,
	}
	go l.run(lctx, first)
	return l, nil
}

type snapshotListener struct {
	conversationID string
	ch             chan chat.Message
	it             *firestore.QuerySnapshotIterator
	cancel         context.CancelFunc
	once           sync.Once
}

func (l *snapshotListener) C() <-chan chat.Message { return l.ch }

func (l *snapshotListener) Close() error {
	l.once.Do(func() {
		l.cancel()
		l.it.Stop()
	})
	return nil
}

func (l *snapshotListener) run(ctx context.Context, qs *firestore.QuerySnapshot) {
	defer close(l.ch)
	defer l.Close()

	log := logger.FromContext(ctx).With(logger.ConversationID(l.conversationID))
	for {
		for _, change := range qs.Changes {
			if change.Kind != firestore.DocumentAdded {
				continue
			}
			m, err := decodeMessage(change.Doc, l.conversationID)
			if err != nil {
				log.Warn("skipping undecodable message", logger.Err(err))
				continue
			}
			select {
			case l.ch <- m:
			case <-ctx.Done():
				return
			}
		}

		var err error
		qs, err = l.it.Next()
		if err != nil {
			if !errors.Is(err, iterator.Done) && ctx.Err() == nil {
				log.Warn("snapshot listener stopped", logger.Err(err))
			}
			return
		}
	}
}
