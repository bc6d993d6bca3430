package chat

import (
	"context"

	"github.com/companion-hub/companion-hub/internal/domain/profile"
	"github.com/companion-hub/companion-hub/internal/domain/shared"
)

// Open resolves the conversation between userID and peerID. Both profiles
// must exist and be a student and that student's assigned mentor.
func Open(ctx context.Context, profiles profile.Repository, userID, peerID string) (Conversation, error) {
	conv, err := NewConversation(userID, peerID)
	if err != nil {
		return Conversation{}, err
	}

	me, err := profiles.Get(ctx, userID)
	if err != nil {
		return Conversation{}, err
	}
	peer, err := profiles.Get(ctx, peerID)
	if err != nil {
		return Conversation{}, err
	}
	if !profile.Paired(me, peer) {
		return Conversation{}, shared.ErrNotPaired
	}
	return conv, nil
}
