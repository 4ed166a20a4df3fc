package match

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository defines persistence for match sessions. Mutate is the single
// write path: implementations open a transaction, lock and re-read the row
// (SELECT ... FOR UPDATE), run fn against the fresh state, and persist on
// nil return. A non-nil return from fn rolls back; the freshly read session
// is still returned so callers can surface prior results on idempotent
// replays.
type Repository interface {
	Create(ctx context.Context, s *Session) error
	GetByID(ctx context.Context, matchID uuid.UUID) (*Session, error)
	GetByChallengeID(ctx context.Context, challengeID uuid.UUID) (*Session, error)
	FindWaiting(ctx context.Context, excludePlayerID uuid.UUID) (*Session, error)
	Mutate(ctx context.Context, matchID uuid.UUID, fn func(s *Session) error) (*Session, error)

	// Sweep queries. Both return candidate ids only; the sweep re-checks
	// every row under its own lock before acting.
	ListExpiredTurns(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error)
	ListExpiredReconnects(ctx context.Context, cutoff time.Time, limit int) ([]uuid.UUID, error)
}
