package match

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/skate-sesh/skate-sesh/internal/domain/ledger"
)

// Status represents match lifecycle state.
type Status string

const (
	StatusWaiting   Status = "WAITING"
	StatusActive    Status = "ACTIVE"
	StatusPaused    Status = "PAUSED"
	StatusCompleted Status = "COMPLETED"
	StatusForfeited Status = "FORFEITED"
)

// Action represents the phase of the current turn.
type Action string

const (
	ActionSet     Action = "SET"
	ActionAttempt Action = "ATTEMPT"
	ActionJudge   Action = "JUDGE"
)

// JudgeDecision is the verdict on an attempt, supplied by the judging
// collaborator (peer or self-declared).
type JudgeDecision string

const (
	DecisionLanded JudgeDecision = "LANDED"
	DecisionMissed JudgeDecision = "MISSED"
)

// ForfeitReason distinguishes intentional forfeit transitions.
type ForfeitReason string

const (
	ReasonPlayerQuit        ForfeitReason = "player_quit"
	ReasonTurnTimeout       ForfeitReason = "turn_timeout"
	ReasonDisconnectTimeout ForfeitReason = "disconnect_timeout"
)

// LettersWord is the penalty word; collecting all of it eliminates a player.
const LettersWord = "SKATE"

// Validation errors: the caller's input is wrong, no state change.
var (
	ErrNotParticipant = errors.New("not a participant")
	ErrNotYourTurn    = errors.New("not this player's turn")
)

// State-conflict errors: the caller's premise is stale, no state change.
var (
	ErrTerminal   = errors.New("match already completed or forfeited")
	ErrWrongPhase = errors.New("action not allowed in current phase")
	ErrNotWaiting = errors.New("match is not waiting for an opponent")
)

// ErrNotFound is returned by repositories for unknown matches.
var ErrNotFound = errors.New("match not found")

// PlayerState is one side of a session.
type PlayerState struct {
	PlayerID       uuid.UUID  `json:"playerId"`
	Letters        string     `json:"letters"`
	Connected      bool       `json:"connected"`
	DisconnectedAt *time.Time `json:"disconnectedAt,omitempty"`
}

// Eliminated reports whether this player collected the full penalty word.
func (p PlayerState) Eliminated() bool {
	return len(p.Letters) >= len(LettersWord)
}

// TrickRecord is one entry of the append-only per-session trick history,
// retained for dispute resolution.
type TrickRecord struct {
	SetterID        uuid.UUID      `json:"setterId"`
	SetMediaRef     string         `json:"setMediaRef"`
	AttemptMediaRef string         `json:"attemptMediaRef,omitempty"`
	Decision        *JudgeDecision `json:"decision,omitempty"`
	SetAt           time.Time      `json:"setAt"`
	ResolvedAt      *time.Time     `json:"resolvedAt,omitempty"`
}

// Session is the turn-based skill-challenge state machine. It carries no
// in-process state: every mutation happens on a freshly locked row.
type Session struct {
	ID                int64          `json:"id"`
	MatchID           uuid.UUID      `json:"matchId"`
	ChallengeID       uuid.UUID      `json:"challengeId"`
	Status            Status         `json:"status"`
	Players           [2]PlayerState `json:"players"`
	CurrentAction     Action         `json:"currentAction"`
	CurrentTurnIndex  int            `json:"currentTurnIndex"`
	SetterID          uuid.UUID      `json:"setterId"`
	TurnDeadlineAt    *time.Time     `json:"turnDeadlineAt,omitempty"`
	WinnerID          *uuid.UUID     `json:"winnerId,omitempty"`
	ForfeitReason     *ForfeitReason `json:"forfeitReason,omitempty"`
	Tricks            []TrickRecord  `json:"tricks,omitempty"`
	ProcessedEventIDs ledger.Ledger  `json:"processedEventIds,omitempty"`
	CreatedAt         time.Time      `json:"createdAt"`
	UpdatedAt         time.Time      `json:"updatedAt"`
}

// NewSession creates a waiting session owned by the challenger.
func NewSession(challengeID, challengerID uuid.UUID) *Session {
	now := time.Now().UTC()
	return &Session{
		MatchID:     uuid.New(),
		ChallengeID: challengeID,
		Status:      StatusWaiting,
		Players: [2]PlayerState{
			{PlayerID: challengerID, Connected: true},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// IsTerminal reports whether the session accepts no further mutation.
func (s *Session) IsTerminal() bool {
	return s.Status == StatusCompleted || s.Status == StatusForfeited
}

// PlayerIndex returns the side of playerID, or -1 for non-participants.
func (s *Session) PlayerIndex(playerID uuid.UUID) int {
	for i := range s.Players {
		if s.Players[i].PlayerID == playerID {
			return i
		}
	}
	return -1
}

// Opponent returns the other participant's id.
func (s *Session) Opponent(playerID uuid.UUID) uuid.UUID {
	if s.Players[0].PlayerID == playerID {
		return s.Players[1].PlayerID
	}
	return s.Players[0].PlayerID
}

// HasProcessed reports whether eventID was already applied to this row.
func (s *Session) HasProcessed(eventID string) bool {
	return s.ProcessedEventIDs.Contains(eventID)
}

// RecordEvent appends eventID to the idempotency ledger.
func (s *Session) RecordEvent(eventID string, cap int) {
	s.ProcessedEventIDs = s.ProcessedEventIDs.Record(eventID, cap)
}

// Accept joins the opponent and activates the session: the challenger sets
// first, with a fresh turn deadline.
func (s *Session) Accept(opponentID uuid.UUID, turnTimeout time.Duration) error {
	if s.IsTerminal() {
		return ErrTerminal
	}
	if s.Status != StatusWaiting {
		return ErrNotWaiting
	}
	if opponentID == s.Players[0].PlayerID {
		return ErrNotParticipant
	}
	s.Players[1] = PlayerState{PlayerID: opponentID, Connected: true}
	s.Status = StatusActive
	s.SetterID = s.Players[0].PlayerID
	s.CurrentAction = ActionSet
	s.CurrentTurnIndex = 0
	s.resetDeadline(turnTimeout)
	return nil
}

// SubmitSet records the setter's landed trick and hands the turn to the
// opponent for the attempt.
func (s *Session) SubmitSet(playerID uuid.UUID, mediaRef string, turnTimeout time.Duration) error {
	if err := s.requireTurn(playerID, ActionSet); err != nil {
		return err
	}
	if playerID != s.SetterID {
		return ErrNotYourTurn
	}
	s.Tricks = append(s.Tricks, TrickRecord{
		SetterID:    s.SetterID,
		SetMediaRef: mediaRef,
		SetAt:       time.Now().UTC(),
	})
	s.CurrentAction = ActionAttempt
	s.CurrentTurnIndex = s.otherIndex(s.setterIndex())
	s.resetDeadline(turnTimeout)
	return nil
}

// BailSet skips the setter's turn on a self-declared failed set. Nobody is
// penalized; the opponent becomes the setter.
func (s *Session) BailSet(playerID uuid.UUID, turnTimeout time.Duration) error {
	if err := s.requireTurn(playerID, ActionSet); err != nil {
		return err
	}
	if playerID != s.SetterID {
		return ErrNotYourTurn
	}
	s.rotateSetter()
	s.CurrentAction = ActionSet
	s.resetDeadline(turnTimeout)
	return nil
}

// SubmitAttempt records the non-setter's matching attempt and moves the turn
// into the judge phase.
func (s *Session) SubmitAttempt(playerID uuid.UUID, mediaRef string, turnTimeout time.Duration) error {
	if err := s.requireTurn(playerID, ActionAttempt); err != nil {
		return err
	}
	if playerID == s.SetterID {
		return ErrNotYourTurn
	}
	if n := len(s.Tricks); n > 0 {
		s.Tricks[n-1].AttemptMediaRef = mediaRef
	}
	s.CurrentAction = ActionJudge
	s.resetDeadline(turnTimeout)
	return nil
}

// Judge resolves the pending attempt. Landed: no letter, the same setter sets
// again. Missed: the attempter gains a letter and, unless eliminated, becomes
// the next setter. Elimination completes the match.
func (s *Session) Judge(decision JudgeDecision, turnTimeout time.Duration) error {
	if s.IsTerminal() {
		return ErrTerminal
	}
	if s.Status != StatusActive || s.CurrentAction != ActionJudge {
		return ErrWrongPhase
	}
	now := time.Now().UTC()
	if n := len(s.Tricks); n > 0 {
		d := decision
		s.Tricks[n-1].Decision = &d
		s.Tricks[n-1].ResolvedAt = &now
	}
	if decision == DecisionMissed {
		attempter := s.otherIndex(s.setterIndex())
		s.addLetter(attempter)
		if s.Players[attempter].Eliminated() {
			winner := s.SetterID
			s.Status = StatusCompleted
			s.WinnerID = &winner
			s.TurnDeadlineAt = nil
			s.touch()
			return nil
		}
		s.rotateSetter()
	}
	s.CurrentAction = ActionSet
	s.CurrentTurnIndex = s.setterIndex()
	s.resetDeadline(turnTimeout)
	return nil
}

// MissAttemptAndRotate applies a timed-out attempt: treated as a miss before
// rotation. Returns true when the letter eliminated the attempter.
func (s *Session) MissAttemptAndRotate(turnTimeout time.Duration) (eliminated bool) {
	attempter := s.otherIndex(s.setterIndex())
	s.addLetter(attempter)
	if s.Players[attempter].Eliminated() {
		winner := s.SetterID
		s.Status = StatusCompleted
		s.WinnerID = &winner
		s.TurnDeadlineAt = nil
		s.touch()
		return true
	}
	s.rotateSetter()
	s.CurrentAction = ActionSet
	s.resetDeadline(turnTimeout)
	return false
}

// Forfeit terminates the session against loserID. A waiting session has no
// opponent to award, so it cannot be forfeited.
func (s *Session) Forfeit(loserID uuid.UUID, reason ForfeitReason) error {
	if s.IsTerminal() {
		return ErrTerminal
	}
	if s.PlayerIndex(loserID) < 0 {
		return ErrNotParticipant
	}
	if s.Status == StatusWaiting {
		return ErrWrongPhase
	}
	winner := s.Opponent(loserID)
	s.Status = StatusForfeited
	s.WinnerID = &winner
	s.ForfeitReason = &reason
	s.TurnDeadlineAt = nil
	s.touch()
	return nil
}

// Disconnect marks playerID as gone. The match pauses only when the
// disconnected player currently owns the action.
func (s *Session) Disconnect(playerID uuid.UUID, now time.Time) error {
	idx := s.PlayerIndex(playerID)
	if idx < 0 {
		return ErrNotParticipant
	}
	if s.IsTerminal() {
		return ErrTerminal
	}
	s.Players[idx].Connected = false
	t := now.UTC()
	s.Players[idx].DisconnectedAt = &t
	if s.Status == StatusActive && idx == s.CurrentTurnIndex {
		s.Status = StatusPaused
	}
	s.touch()
	return nil
}

// Reconnect clears the disconnect markers and resumes a paused match, with
// the turn deadline extended by the reconnect allowance that was left. Only
// the player whose disconnect caused the pause (the action owner) resumes
// it; another participant's reconnect keeps the match paused so the
// reconnect-window forfeit still applies to the absent owner.
func (s *Session) Reconnect(playerID uuid.UUID, now time.Time, reconnectWindow time.Duration) error {
	idx := s.PlayerIndex(playerID)
	if idx < 0 {
		return ErrNotParticipant
	}
	if s.IsTerminal() {
		return ErrTerminal
	}
	var remaining time.Duration
	if s.Players[idx].DisconnectedAt != nil {
		remaining = reconnectWindow - now.Sub(*s.Players[idx].DisconnectedAt)
	}
	s.Players[idx].Connected = true
	s.Players[idx].DisconnectedAt = nil
	if s.Status == StatusPaused && idx == s.CurrentTurnIndex {
		s.Status = StatusActive
		if s.TurnDeadlineAt != nil && remaining > 0 {
			d := s.TurnDeadlineAt.Add(remaining)
			s.TurnDeadlineAt = &d
		}
	}
	s.touch()
	return nil
}

// DisconnectedPlayer returns the side that is currently disconnected, or nil.
func (s *Session) DisconnectedPlayer() *PlayerState {
	for i := range s.Players {
		if !s.Players[i].Connected && s.Players[i].DisconnectedAt != nil {
			return &s.Players[i]
		}
	}
	return nil
}

func (s *Session) requireTurn(playerID uuid.UUID, action Action) error {
	if s.PlayerIndex(playerID) < 0 {
		return ErrNotParticipant
	}
	if s.IsTerminal() {
		return ErrTerminal
	}
	if s.Status != StatusActive || s.CurrentAction != action {
		return ErrWrongPhase
	}
	return nil
}

func (s *Session) setterIndex() int {
	if s.Players[0].PlayerID == s.SetterID {
		return 0
	}
	return 1
}

func (s *Session) otherIndex(i int) int {
	return 1 - i
}

func (s *Session) rotateSetter() {
	next := s.otherIndex(s.setterIndex())
	s.SetterID = s.Players[next].PlayerID
	s.CurrentTurnIndex = next
}

func (s *Session) addLetter(idx int) {
	p := &s.Players[idx]
	if len(p.Letters) < len(LettersWord) {
		p.Letters = LettersWord[:len(p.Letters)+1]
	}
}

func (s *Session) resetDeadline(turnTimeout time.Duration) {
	d := time.Now().UTC().Add(turnTimeout)
	s.TurnDeadlineAt = &d
	s.touch()
}

func (s *Session) touch() {
	s.UpdatedAt = time.Now().UTC()
}
