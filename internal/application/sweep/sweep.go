package sweep

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	appBattle "github.com/skate-sesh/skate-sesh/internal/application/battle"
	"github.com/skate-sesh/skate-sesh/internal/domain/battle"
	"github.com/skate-sesh/skate-sesh/internal/domain/match"
	"github.com/skate-sesh/skate-sesh/internal/domain/notify"
)

// Config carries the sweep tunables. BatchLimit bounds how many candidate
// rows each pass takes per query.
type Config struct {
	TurnTimeout     time.Duration
	ReconnectWindow time.Duration
	BatchLimit      int
}

// errAlreadyResolved marks a row a concurrent writer got to first: the
// re-read under the lock no longer satisfies the expiry condition. The row
// is skipped with no side effects.
var errAlreadyResolved = errors.New("row already resolved")

// Service is the recurring background pass that advances matches and battles
// whose deadlines elapsed without client action. It holds no state of its
// own; the per-row lock inside each repository Mutate is the sole
// serialization point, so any number of workers may run passes concurrently.
type Service struct {
	matches   match.Repository
	battleSvc *appBattle.Service
	battles   battle.Repository
	gateway   notify.Gateway
	pusher    notify.Pusher
	cfg       Config
	logger    zerolog.Logger
}

// NewService creates a sweep service.
func NewService(
	matches match.Repository,
	battles battle.Repository,
	battleSvc *appBattle.Service,
	gateway notify.Gateway,
	pusher notify.Pusher,
	cfg Config,
	logger zerolog.Logger,
) *Service {
	if cfg.BatchLimit <= 0 {
		cfg.BatchLimit = 100
	}
	return &Service{
		matches:   matches,
		battles:   battles,
		battleSvc: battleSvc,
		gateway:   gateway,
		pusher:    pusher,
		cfg:       cfg,
		logger:    logger.With().Str("service", "sweep").Logger(),
	}
}

// ProcessTimeouts runs one pass: expired turns, expired reconnect windows,
// expired voting. Each row is handled in its own transaction; one bad row is
// logged and skipped, never aborting the pass. Returns how many rows were
// actually transitioned.
func (s *Service) ProcessTimeouts(ctx context.Context) (int, error) {
	now := time.Now().UTC()
	processed := 0
	processed += s.processTurnTimeouts(ctx, now)
	processed += s.processDisconnectTimeouts(ctx, now)
	processed += s.processExpiredVoting(ctx, now)
	return processed, nil
}

func (s *Service) processTurnTimeouts(ctx context.Context, now time.Time) int {
	ids, err := s.matches.ListExpiredTurns(ctx, now, s.cfg.BatchLimit)
	if err != nil {
		s.logger.Warn().Err(err).Msg("failed to list expired turns")
		return 0
	}
	processed := 0
	for _, id := range ids {
		var outcome notify.EventType
		updated, err := s.matches.Mutate(ctx, id, func(m *match.Session) error {
			// Re-read under the lock: a player action may have resolved
			// the turn between the candidate query and here.
			if m.Status != match.StatusActive || m.TurnDeadlineAt == nil || m.TurnDeadlineAt.After(now) {
				return errAlreadyResolved
			}
			switch m.CurrentAction {
			case match.ActionSet:
				// The setter produced nothing in time: forfeit in the
				// opponent's favor.
				outcome = notify.EventMatchForfeited
				return m.Forfeit(m.SetterID, match.ReasonTurnTimeout)
			case match.ActionAttempt:
				// A timed-out attempt is a missed attempt, then rotation.
				if m.MissAttemptAndRotate(s.cfg.TurnTimeout) {
					outcome = notify.EventMatchCompleted
				} else {
					outcome = notify.EventTurnRotated
				}
				return nil
			case match.ActionJudge:
				// Nobody judged in time: the attempt stands as landed.
				outcome = notify.EventTurnRotated
				return m.Judge(match.DecisionLanded, s.cfg.TurnTimeout)
			}
			return errAlreadyResolved
		})
		if errors.Is(err, errAlreadyResolved) {
			continue
		}
		if err != nil {
			s.logger.Warn().Err(err).Str("match_id", id.String()).Msg("turn timeout pass failed for row")
			continue
		}
		s.logger.Info().
			Str("match_id", id.String()).
			Str("status", string(updated.Status)).
			Msg("turn timeout applied")
		s.notifyMatch(ctx, updated, outcome)
		processed++
	}
	return processed
}

func (s *Service) processDisconnectTimeouts(ctx context.Context, now time.Time) int {
	cutoff := now.Add(-s.cfg.ReconnectWindow)
	ids, err := s.matches.ListExpiredReconnects(ctx, cutoff, s.cfg.BatchLimit)
	if err != nil {
		s.logger.Warn().Err(err).Msg("failed to list expired reconnect windows")
		return 0
	}
	processed := 0
	for _, id := range ids {
		updated, err := s.matches.Mutate(ctx, id, func(m *match.Session) error {
			if m.Status != match.StatusPaused {
				return errAlreadyResolved
			}
			gone := m.DisconnectedPlayer()
			if gone == nil || gone.DisconnectedAt.After(cutoff) {
				return errAlreadyResolved
			}
			return m.Forfeit(gone.PlayerID, match.ReasonDisconnectTimeout)
		})
		if errors.Is(err, errAlreadyResolved) {
			continue
		}
		if err != nil {
			s.logger.Warn().Err(err).Str("match_id", id.String()).Msg("disconnect timeout pass failed for row")
			continue
		}
		s.logger.Info().
			Str("match_id", id.String()).
			Str("reason", string(match.ReasonDisconnectTimeout)).
			Msg("paused match forfeited")
		s.notifyMatch(ctx, updated, notify.EventMatchForfeited)
		processed++
	}
	return processed
}

func (s *Service) processExpiredVoting(ctx context.Context, now time.Time) int {
	ids, err := s.battles.ListExpiredVoting(ctx, now, s.cfg.BatchLimit)
	if err != nil {
		s.logger.Warn().Err(err).Msg("failed to list expired voting")
		return 0
	}
	processed := 0
	for _, id := range ids {
		resolved, err := s.battleSvc.ResolveExpired(ctx, id, now)
		if err != nil {
			s.logger.Warn().Err(err).Str("battle_id", id.String()).Msg("voting expiry pass failed for row")
			continue
		}
		if resolved {
			processed++
		}
	}
	return processed
}

// notifyMatch emits one event per participant; failures here never undo the
// committed transition.
func (s *Service) notifyMatch(ctx context.Context, sess *match.Session, t notify.EventType) {
	payload, err := json.Marshal(sess)
	if err != nil {
		s.logger.Warn().Err(err).Msg("failed to marshal sweep event")
		return
	}
	ev := notify.NewMatchEvent(sess.MatchID, t, payload)
	for i := range sess.Players {
		p := sess.Players[i]
		if p.PlayerID == uuid.Nil {
			continue
		}
		s.gateway.PublishToPlayer(p.PlayerID, ev)
		if !p.Connected && s.pusher != nil {
			s.pusher.NotifyOffline(ctx, p.PlayerID, ev)
		}
	}
}
