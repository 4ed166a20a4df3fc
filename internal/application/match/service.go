package match

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/skate-sesh/skate-sesh/internal/domain/match"
	"github.com/skate-sesh/skate-sesh/internal/domain/notify"
)

// Config carries the tunables of the match state machine.
type Config struct {
	TurnTimeout        time.Duration
	ReconnectWindow    time.Duration
	MaxProcessedEvents int
}

// Result wraps a session mutation outcome. AlreadyProcessed marks an
// idempotent replay: the returned session is the previously computed state
// and no mutation happened.
type Result struct {
	Session          *match.Session `json:"session"`
	AlreadyProcessed bool           `json:"alreadyProcessed"`
}

// errReplay aborts a Mutate callback once the ledger shows the event was
// already applied. Never escapes the service.
var errReplay = errors.New("event already processed")

// Service owns the turn-based skill-challenge lifecycle.
type Service struct {
	repo    match.Repository
	gateway notify.Gateway
	pusher  notify.Pusher
	cfg     Config
	logger  zerolog.Logger
}

// NewService creates a match service.
func NewService(repo match.Repository, gateway notify.Gateway, pusher notify.Pusher, cfg Config, logger zerolog.Logger) *Service {
	return &Service{
		repo:    repo,
		gateway: gateway,
		pusher:  pusher,
		cfg:     cfg,
		logger:  logger.With().Str("service", "match").Logger(),
	}
}

// FindOrCreateWaiting returns an open waiting session from another player,
// or creates a fresh one owned by playerID.
func (s *Service) FindOrCreateWaiting(ctx context.Context, playerID uuid.UUID) (*match.Session, error) {
	existing, err := s.repo.FindWaiting(ctx, playerID)
	if err != nil && !errors.Is(err, match.ErrNotFound) {
		return nil, fmt.Errorf("find waiting match: %w", err)
	}
	if existing != nil {
		return existing, nil
	}
	sess := match.NewSession(uuid.New(), playerID)
	if err := s.repo.Create(ctx, sess); err != nil {
		return nil, fmt.Errorf("create waiting match: %w", err)
	}
	s.logger.Info().Str("match_id", sess.MatchID.String()).Msg("waiting match created")
	return sess, nil
}

// AcceptChallenge activates the waiting session for challengeID with
// opponentID as the second player. The challenger sets first.
func (s *Service) AcceptChallenge(ctx context.Context, challengeID, opponentID uuid.UUID) (*match.Session, error) {
	sess, err := s.repo.GetByChallengeID(ctx, challengeID)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, match.ErrNotFound
	}
	updated, err := s.repo.Mutate(ctx, sess.MatchID, func(m *match.Session) error {
		return m.Accept(opponentID, s.cfg.TurnTimeout)
	})
	if err != nil {
		return nil, err
	}
	s.notifyBoth(ctx, updated, notify.EventMatchState)
	return updated, nil
}

// SubmitSetTrick records the setter's landed trick; the opponent gets the
// attempt with a fresh deadline.
func (s *Service) SubmitSetTrick(ctx context.Context, eventID string, matchID, playerID uuid.UUID, mediaRef string) (*Result, error) {
	return s.mutateIdempotent(ctx, eventID, matchID, notify.EventMatchState, func(m *match.Session) error {
		return m.SubmitSet(playerID, mediaRef, s.cfg.TurnTimeout)
	})
}

// BailSet skips the setter's turn on a self-declared failed set.
func (s *Service) BailSet(ctx context.Context, eventID string, matchID, playerID uuid.UUID) (*Result, error) {
	return s.mutateIdempotent(ctx, eventID, matchID, notify.EventTurnRotated, func(m *match.Session) error {
		return m.BailSet(playerID, s.cfg.TurnTimeout)
	})
}

// SubmitAttempt records the non-setter's matching attempt; the judge step
// resolves it.
func (s *Service) SubmitAttempt(ctx context.Context, eventID string, matchID, playerID uuid.UUID, mediaRef string) (*Result, error) {
	return s.mutateIdempotent(ctx, eventID, matchID, notify.EventMatchState, func(m *match.Session) error {
		return m.SubmitAttempt(playerID, mediaRef, s.cfg.TurnTimeout)
	})
}

// JudgeAttempt applies the landed/missed verdict from the judging
// collaborator and advances the round.
func (s *Service) JudgeAttempt(ctx context.Context, eventID string, matchID uuid.UUID, decision match.JudgeDecision) (*Result, error) {
	res, err := s.mutateIdempotent(ctx, eventID, matchID, notify.EventMatchState, func(m *match.Session) error {
		return m.Judge(decision, s.cfg.TurnTimeout)
	})
	if err != nil {
		return nil, err
	}
	if !res.AlreadyProcessed && res.Session.Status == match.StatusCompleted {
		s.notifyBoth(ctx, res.Session, notify.EventMatchCompleted)
	}
	return res, nil
}

// ForfeitMatch is the explicit, player-initiated forfeit.
func (s *Service) ForfeitMatch(ctx context.Context, eventID string, matchID, playerID uuid.UUID) (*Result, error) {
	res, err := s.mutateIdempotent(ctx, eventID, matchID, notify.EventMatchForfeited, func(m *match.Session) error {
		return m.Forfeit(playerID, match.ReasonPlayerQuit)
	})
	if err != nil {
		return nil, err
	}
	if !res.AlreadyProcessed {
		s.logger.Info().
			Str("match_id", matchID.String()).
			Str("player_id", playerID.String()).
			Str("reason", string(match.ReasonPlayerQuit)).
			Msg("match forfeited")
	}
	return res, nil
}

// GetMatch is a read-only lookup; returns match.ErrNotFound for unknown ids.
func (s *Service) GetMatch(ctx context.Context, matchID uuid.UUID) (*match.Session, error) {
	sess, err := s.repo.GetByID(ctx, matchID)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, match.ErrNotFound
	}
	return sess, nil
}

// HandleDisconnect is driven by the realtime transport's close callback.
// The match pauses only when the leaving player owns the action; the sweep
// forfeits it if the player stays away past the reconnect window.
func (s *Service) HandleDisconnect(ctx context.Context, matchID, playerID uuid.UUID) error {
	updated, err := s.repo.Mutate(ctx, matchID, func(m *match.Session) error {
		return m.Disconnect(playerID, time.Now())
	})
	if err != nil {
		// A drop after the match ended is routine, not an error.
		if errors.Is(err, match.ErrTerminal) {
			return nil
		}
		return err
	}
	if updated.Status == match.StatusPaused {
		s.notifyBoth(ctx, updated, notify.EventMatchPaused)
	}
	return nil
}

// HandleReconnect resumes a paused match when the absent player returns in
// time, extending the deadline by the unused reconnect allowance.
func (s *Service) HandleReconnect(ctx context.Context, matchID, playerID uuid.UUID) error {
	updated, err := s.repo.Mutate(ctx, matchID, func(m *match.Session) error {
		return m.Reconnect(playerID, time.Now(), s.cfg.ReconnectWindow)
	})
	if err != nil {
		if errors.Is(err, match.ErrTerminal) {
			return nil
		}
		return err
	}
	if updated.Status == match.StatusActive {
		s.notifyBoth(ctx, updated, notify.EventMatchResumed)
	}
	return nil
}

// mutateIdempotent is the shared write path: lock and re-read the row, check
// the ledger, apply fn, append the event id, all inside one transaction.
// Replays roll back and surface the prior state with AlreadyProcessed=true.
func (s *Service) mutateIdempotent(ctx context.Context, eventID string, matchID uuid.UUID, eventType notify.EventType, fn func(*match.Session) error) (*Result, error) {
	updated, err := s.repo.Mutate(ctx, matchID, func(m *match.Session) error {
		if m.HasProcessed(eventID) {
			return errReplay
		}
		if err := fn(m); err != nil {
			return err
		}
		m.RecordEvent(eventID, s.cfg.MaxProcessedEvents)
		return nil
	})
	if errors.Is(err, errReplay) {
		return &Result{Session: updated, AlreadyProcessed: true}, nil
	}
	if err != nil {
		return nil, err
	}
	s.notifyBoth(ctx, updated, eventType)
	return &Result{Session: updated}, nil
}

// notifyBoth pushes one event per participant. Failures never reach the
// caller: the state transition has already committed.
func (s *Service) notifyBoth(ctx context.Context, sess *match.Session, t notify.EventType) {
	payload, err := json.Marshal(sess)
	if err != nil {
		s.logger.Warn().Err(err).Msg("failed to marshal match event")
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
