package postgres

import (
	"context"
	"time"

	"github.com/companion-hub/companion-hub/pkg/logger"
	"github.com/companion-hub/companion-hub/pkg/retry"
)

// Store bundles the repositories over one pool.
type Store struct {
	conn *Connection

	profiles   *ProfileRepository
	companions *CompanionRepository
	messages   *MessageRepository
	wellness   *WellnessRepository
}

// NewStore wraps an open connection.
func NewStore(conn *Connection) *Store {
	return &Store{
		conn:       conn,
		profiles:   NewProfileRepository(conn),
		companions: NewCompanionRepository(conn),
		messages:   NewMessageRepository(conn),
		wellness:   NewWellnessRepository(conn),
	}
}

// Open connects with retries and, when migrate is set, applies pending
// migrations.
func Open(ctx context.Context, cfg Config, attempts int, migrate bool) (*Store, error) {
	log := logger.FromContext(ctx).With(logger.Backend("postgres"))

	r := retry.ConnectRetrier(attempts, func(attempt int, err error, delay time.Duration) {
		log.Warn("database not ready, retrying",
			logger.Int("attempt", attempt),
			logger.Duration("delay", delay),
			logger.Err(err),
		)
	})
	conn, err := retry.DoWithData(ctx, r, func(ctx context.Context) (*Connection, error) {
		return NewConnection(ctx, cfg)
	})
	if err != nil {
		return nil, err
	}

	if migrate {
		m := NewMigrator(conn)
		if err := m.Migrate(ctx); err != nil {
			conn.Close()
			return nil, err
		}
		if status, err := m.Status(ctx); err != nil {
			log.Warn("failed to read migration status", logger.Err(err))
		} else {
			applied := 0
			for _, mig := range status {
				if mig.IsApplied {
					applied++
				}
			}
			log.Info("migrations applied", logger.Int("applied", applied), logger.Int("total", len(status)))
		}
	}

	return NewStore(conn), nil
}

func (s *Store) Profiles() *ProfileRepository     { return s.profiles }
func (s *Store) Companions() *CompanionRepository { return s.companions }
func (s *Store) Messages() *MessageRepository     { return s.messages }
func (s *Store) Wellness() *WellnessRepository    { return s.wellness }

// Ping checks the database.
func (s *Store) Ping(ctx context.Context) error { return s.conn.Ping(ctx) }

// Close releases the pool.
func (s *Store) Close() error {
	s.conn.Close()
	return nil
}
