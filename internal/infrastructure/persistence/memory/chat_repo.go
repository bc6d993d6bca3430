package memory

import (
	"context"

	"github.com/companion-hub/companion-hub/internal/domain/chat"
)

// MessageRepository implements chat.Repository.
type MessageRepository struct {
	s *Store
}

var _ chat.Repository = (*MessageRepository)(nil)

func (r *MessageRepository) Append(_ context.Context, m chat.Message) (chat.Message, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	r.s.seq++
	m.Seq = r.s.seq
	m.SentAt = r.s.clock()
	r.s.messages[m.ConversationID] = append(r.s.messages[m.ConversationID], m)
	return m, nil
}

func (r *MessageRepository) History(_ context.Context, q chat.HistoryQuery) ([]chat.Message, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	all := r.s.messages[q.ConversationID]
	out := make([]chat.Message, 0, len(all))
	for _, m := range all {
		if m.Seq > q.AfterSeq {
			out = append(out, m)
		}
	}
	chat.Sort(out)
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}
