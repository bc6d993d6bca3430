// Package firestore implements the repositories on Cloud Firestore, keeping
// the document layout of the mobile app:
//
//	users/{uid}
//	users/{uid}/companion/{species}
//	users/{uid}/checkins/{id}
//	users/{uid}/grants/{key}
//	users/{uid}/attempts/{id}
//	chats/{conversationID}                  (seq counter)
//	chats/{conversationID}/messages/{id}
package firestore

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/companion-hub/companion-hub/internal/domain/shared"
)

// Store owns the client and hands out repository views.
type Store struct {
	client *firestore.Client
}

// NewStore creates a Firestore store for projectID. FIRESTORE_EMULATOR_HOST
// is honoured by the client.
func NewStore(ctx context.Context, projectID string) (*Store, error) {
	if projectID == "" {
		return nil, fmt.Errorf("projectID is required for Firestore store")
	}

	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("creating firestore client: %w", err)
	}

	return &Store{client: client}, nil
}

// Profiles returns the profile repository view.
func (s *Store) Profiles() *ProfileRepository { return &ProfileRepository{s: s} }

// Companions returns the companion repository view.
func (s *Store) Companions() *CompanionRepository { return &CompanionRepository{s: s} }

// Messages returns the chat repository view.
func (s *Store) Messages() *MessageRepository { return &MessageRepository{s: s} }

// Wellness returns the wellness repository view.
func (s *Store) Wellness() *WellnessRepository { return &WellnessRepository{s: s} }

// Broker returns a chat broker backed by snapshot listeners.
func (s *Store) Broker() *Broker { return &Broker{s: s} }

// Ping reads at most one user document.
func (s *Store) Ping(ctx context.Context) error {
	iter := s.usersCol().Limit(1).Documents(ctx)
	defer iter.Stop()
	if _, err := iter.Next(); err != nil && !errors.Is(err, iterator.Done) {
		return err
	}
	return nil
}

// Close closes the client.
func (s *Store) Close() error {
	return s.client.Close()
}

// ─────────────────────────────────────────
// Helpers
// ─────────────────────────────────────────

func (s *Store) usersCol() *firestore.CollectionRef {
	return s.client.Collection("users")
}

func (s *Store) userDoc(uid string) *firestore.DocumentRef {
	return s.usersCol().Doc(uid)
}

func (s *Store) companionDoc(uid, species string) *firestore.DocumentRef {
	return s.userDoc(uid).Collection("companion").Doc(species)
}

func (s *Store) checkinsCol(uid string) *firestore.CollectionRef {
	return s.userDoc(uid).Collection("checkins")
}

func (s *Store) grantDoc(uid, key string) *firestore.DocumentRef {
	return s.userDoc(uid).Collection("grants").Doc(key)
}

func (s *Store) attemptDoc(uid, id string) *firestore.DocumentRef {
	return s.userDoc(uid).Collection("attempts").Doc(id)
}

func (s *Store) chatDoc(conversationID string) *firestore.DocumentRef {
	return s.client.Collection("chats").Doc(conversationID)
}

func (s *Store) messagesCol(conversationID string) *firestore.CollectionRef {
	return s.chatDoc(conversationID).Collection("messages")
}

func isNotFound(err error) bool {
	return status.Code(err) == codes.NotFound
}

func isAlreadyExists(err error) bool {
	return status.Code(err) == codes.AlreadyExists
}

// storeErr passes domain errors through and wraps everything else.
func storeErr(domain, op string, err error) error {
	if err == nil {
		return nil
	}
	var de *shared.DomainError
	if errors.As(err, &de) {
		return err
	}
	return shared.StoreError(domain, op, fmt.Errorf("firestore %s: %w", op, err))
}
