package push

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/skate-sesh/skate-sesh/internal/domain/notify"
)

// Notifier is the best-effort offline pusher. Actual delivery belongs to an
// external push provider; this adapter records the intent and throttles
// repeats per player/event through redis, so the cooldown state is shared by
// every instance and survives restarts.
type Notifier struct {
	rdb      *redis.Client
	cooldown time.Duration
	logger   zerolog.Logger
}

func NewNotifier(rdb *redis.Client, cooldown time.Duration, logger zerolog.Logger) *Notifier {
	return &Notifier{
		rdb:      rdb,
		cooldown: cooldown,
		logger:   logger.With().Str("service", "push").Logger(),
	}
}

// NotifyOffline queues a push for playerID unless one for the same
// player/event pair went out within the cooldown window.
func (n *Notifier) NotifyOffline(ctx context.Context, playerID uuid.UUID, ev *notify.Event) {
	ok, err := n.allow(ctx, playerID, ev)
	if err != nil {
		n.logger.Warn().Err(err).Str("player_id", playerID.String()).Msg("push throttle check failed")
		return
	}
	if !ok {
		return
	}
	// Delivery handoff to the provider would happen here.
	n.logger.Info().
		Str("player_id", playerID.String()).
		Str("event_type", string(ev.Type)).
		Msg("offline push queued")
}

func (n *Notifier) allow(ctx context.Context, playerID uuid.UUID, ev *notify.Event) (bool, error) {
	return n.rdb.SetNX(ctx, n.key(playerID, ev), 1, n.cooldown).Result()
}

func (n *Notifier) key(playerID uuid.UUID, ev *notify.Event) string {
	scope := "match"
	id := ""
	switch {
	case ev.MatchID != nil:
		id = ev.MatchID.String()
	case ev.BattleID != nil:
		scope = "battle"
		id = ev.BattleID.String()
	}
	return "push:cooldown:" + scope + ":" + id + ":" + playerID.String() + ":" + string(ev.Type)
}
