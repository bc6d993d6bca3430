package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/companion-hub/companion-hub/internal/domain/chat"
)

// MessageRepository implements chat.Repository for PostgreSQL. Seq is the
// table's bigserial and sent_at uses clock_timestamp(). Appends to one
// conversation hold a transaction-scoped advisory lock from nextval to
// commit, so within a conversation Seq order is commit order and paging by
// AfterSeq never skips a row.
type MessageRepository struct {
	conn *Connection
}

var _ chat.Repository = (*MessageRepository)(nil)

// NewMessageRepository creates a new MessageRepository.
func NewMessageRepository(conn *Connection) *MessageRepository {
	return &MessageRepository{conn: conn}
}

// Append inserts m and returns it with SentAt and Seq assigned.
func (r *MessageRepository) Append(ctx context.Context, m chat.Message) (chat.Message, error) {
	err := r.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, m.ConversationID); err != nil {
			return err
		}
		return tx.QueryRow(ctx, `
			INSERT INTO chat_messages (id, conversation_id, sender_id, text, sent_at)
			VALUES ($1, $2, $3, $4, clock_timestamp())
			RETURNING seq, sent_at
		`, m.ID, m.ConversationID, m.SenderID, m.Text).Scan(&m.Seq, &m.SentAt)
	})
	if err != nil {
		return chat.Message{}, storeErr("chat", "Append", err)
	}
	return m, nil
}

// History pages forward from q.AfterSeq.
func (r *MessageRepository) History(ctx context.Context, q chat.HistoryQuery) ([]chat.Message, error) {
	query := `
		SELECT seq, id, conversation_id, sender_id, text, sent_at
		FROM chat_messages
		WHERE conversation_id = $1 AND seq > $2
		ORDER BY sent_at, seq
	`
	args := []any{q.ConversationID, q.AfterSeq}
	if q.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", len(args)+1)
		args = append(args, q.Limit)
	}

	rows, err := r.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, storeErr("chat", "History", err)
	}
	defer rows.Close()

	out := make([]chat.Message, 0)
	for rows.Next() {
		var m chat.Message
		if err := rows.Scan(&m.Seq, &m.ID, &m.ConversationID, &m.SenderID, &m.Text, &m.SentAt); err != nil {
			return nil, storeErr("chat", "History", err)
		}
		out = append(out, m)
	}
	return out, storeErr("chat", "History", rows.Err())
}
