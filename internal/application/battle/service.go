package battle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/skate-sesh/skate-sesh/internal/domain/battle"
	"github.com/skate-sesh/skate-sesh/internal/domain/notify"
)

// Config carries the voting engine tunables.
type Config struct {
	VoteWindow         time.Duration
	MaxProcessedEvents int
}

// InitResult is the outcome of InitializeVoting.
type InitResult struct {
	State              *battle.VoteState `json:"state"`
	AlreadyInitialized bool              `json:"alreadyInitialized"`
}

// VoteResult is the outcome of CastVote. On replays the fields are
// recomputed from the already-committed row.
type VoteResult struct {
	State            *battle.VoteState `json:"state"`
	BattleComplete   bool              `json:"battleComplete"`
	WinnerID         *uuid.UUID        `json:"winnerId,omitempty"`
	FinalScore       *battle.Score     `json:"finalScore,omitempty"`
	AlreadyProcessed bool              `json:"alreadyProcessed"`
}

var errReplay = errors.New("event already processed")

// Service owns the 1-round trick-battle voting lifecycle.
type Service struct {
	repo     battle.Repository
	gateway  notify.Gateway
	presence notify.Presence
	pusher   notify.Pusher
	cfg      Config
	logger   zerolog.Logger
}

// NewService creates a battle voting service.
func NewService(repo battle.Repository, gateway notify.Gateway, presence notify.Presence, pusher notify.Pusher, cfg Config, logger zerolog.Logger) *Service {
	return &Service{
		repo:     repo,
		gateway:  gateway,
		presence: presence,
		pusher:   pusher,
		cfg:      cfg,
		logger:   logger.With().Str("service", "battle").Logger(),
	}
}

// InitializeVoting idempotently opens the voting phase for a battle. A row
// already present for battleID wins; duplicate initialization triggers are
// reported, not failed.
func (s *Service) InitializeVoting(ctx context.Context, eventID string, battleID, creatorID, opponentID uuid.UUID) (*InitResult, error) {
	st := battle.NewVoteState(battleID, creatorID, opponentID, s.cfg.VoteWindow)
	st.RecordEvent(eventID, s.cfg.MaxProcessedEvents)
	created, err := s.repo.CreateIfAbsent(ctx, st)
	if err != nil {
		return nil, fmt.Errorf("initialize voting for battle %s: %w", battleID, err)
	}
	if !created {
		existing, err := s.repo.GetByBattleID(ctx, battleID)
		if err != nil {
			return nil, err
		}
		return &InitResult{State: existing, AlreadyInitialized: true}, nil
	}
	s.logger.Info().Str("battle_id", battleID.String()).Msg("voting started")
	s.notifyParticipants(ctx, st, notify.EventVotingStarted)
	return &InitResult{State: st}, nil
}

// CastVote records voterID's judgment. Re-voting before completion replaces
// the prior ballot. Once both participants have voted the battle completes
// synchronously in the same transaction.
func (s *Service) CastVote(ctx context.Context, eventID string, battleID, voterID uuid.UUID, vote battle.Vote) (*VoteResult, error) {
	var completed bool
	updated, err := s.repo.Mutate(ctx, battleID, func(v *battle.VoteState) error {
		if v.HasProcessed(eventID) {
			return errReplay
		}
		if err := v.CastVote(voterID, vote, time.Now()); err != nil {
			return err
		}
		if v.BothVoted() {
			if err := v.Complete(time.Now()); err != nil {
				return err
			}
			completed = true
		}
		v.RecordEvent(eventID, s.cfg.MaxProcessedEvents)
		return nil
	})
	if errors.Is(err, errReplay) {
		res := resultFromState(updated)
		res.AlreadyProcessed = true
		return res, nil
	}
	if err != nil {
		return nil, err
	}
	s.notifyParticipants(ctx, updated, notify.EventVoteRecorded)
	if completed {
		s.logger.Info().
			Str("battle_id", battleID.String()).
			Str("winner_id", updated.WinnerID.String()).
			Int("creator_score", updated.FinalScore.Creator).
			Int("opponent_score", updated.FinalScore.Opponent).
			Msg("battle completed")
		s.notifyParticipants(ctx, updated, notify.EventBattleCompleted)
	}
	return resultFromState(updated), nil
}

// GetBattleVoteState is a read-only lookup; nil means the battle is unknown.
func (s *Service) GetBattleVoteState(ctx context.Context, battleID uuid.UUID) (*battle.VoteState, error) {
	return s.repo.GetByBattleID(ctx, battleID)
}

// ResolveExpired finalizes a battle whose vote deadline elapsed, scoring the
// ballots present and defaulting missing votes to sketch. The sweep calls
// this per candidate row; an already-completed row is a clean no-op.
func (s *Service) ResolveExpired(ctx context.Context, battleID uuid.UUID, now time.Time) (bool, error) {
	updated, err := s.repo.Mutate(ctx, battleID, func(v *battle.VoteState) error {
		if v.Status != battle.StatusVoting || v.VoteDeadlineAt.After(now) {
			return errReplay
		}
		return v.Complete(now)
	})
	if errors.Is(err, errReplay) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	s.logger.Info().
		Str("battle_id", battleID.String()).
		Str("winner_id", updated.WinnerID.String()).
		Msg("expired voting resolved")
	s.notifyParticipants(ctx, updated, notify.EventBattleCompleted)
	return true, nil
}

func resultFromState(v *battle.VoteState) *VoteResult {
	res := &VoteResult{State: v}
	if v != nil && v.Status == battle.StatusCompleted {
		res.BattleComplete = true
		res.WinnerID = v.WinnerID
		res.FinalScore = v.FinalScore
	}
	return res
}

func (s *Service) notifyParticipants(ctx context.Context, v *battle.VoteState, t notify.EventType) {
	payload, err := json.Marshal(v)
	if err != nil {
		s.logger.Warn().Err(err).Msg("failed to marshal battle event")
		return
	}
	ev := notify.NewBattleEvent(v.BattleID, t, payload)
	for _, id := range []uuid.UUID{v.CreatorID, v.OpponentID} {
		s.gateway.PublishToPlayer(id, ev)
		if s.pusher == nil {
			continue
		}
		// Async push goes only to participants without a live connection.
		if s.presence != nil && s.presence.IsConnected(id) {
			continue
		}
		s.pusher.NotifyOffline(ctx, id, ev)
	}
}
