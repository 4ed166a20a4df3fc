package battle

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository defines persistence for battle vote states. Mutate follows the
// same lock-then-reread contract as the match repository: fn runs against
// the row re-read under a row lock, a nil return commits, a non-nil return
// rolls back while still handing the fresh state back to the caller.
type Repository interface {
	// CreateIfAbsent inserts the row unless one already exists for the
	// battle; created=false means a prior initialization won.
	CreateIfAbsent(ctx context.Context, v *VoteState) (created bool, err error)
	GetByBattleID(ctx context.Context, battleID uuid.UUID) (*VoteState, error)
	Mutate(ctx context.Context, battleID uuid.UUID, fn func(v *VoteState) error) (*VoteState, error)

	// ListExpiredVoting returns battles still in VOTING past their deadline.
	// Candidates only; the sweep re-checks under the row lock.
	ListExpiredVoting(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error)
}
