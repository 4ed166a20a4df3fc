package battle

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/skate-sesh/skate-sesh/internal/domain/ledger"
)

// Status represents the vote-state lifecycle. The transition
// VOTING -> COMPLETED happens exactly once and is monotonic.
type Status string

const (
	StatusVoting    Status = "VOTING"
	StatusCompleted Status = "COMPLETED"
)

// Vote is a peer judgment on a submitted trick clip.
type Vote string

const (
	VoteClean  Vote = "CLEAN"
	VoteSketch Vote = "SKETCH"
	VoteRedo   Vote = "REDO"
)

// ParseVote maps wire values onto the closed vote set.
func ParseVote(raw string) (Vote, error) {
	switch Vote(raw) {
	case VoteClean, VoteSketch, VoteRedo:
		return Vote(raw), nil
	}
	return "", ErrInvalidVote
}

var (
	ErrInvalidVote    = errors.New("invalid vote value")
	ErrNotParticipant = errors.New("not a participant")
	ErrVotingClosed   = errors.New("voting already completed")
	ErrNotFound       = errors.New("battle vote state not found")
)

// Ballot is one participant's recorded vote. Re-voting before completion
// overwrites the prior ballot (last write wins).
type Ballot struct {
	Vote    Vote      `json:"vote"`
	VotedAt time.Time `json:"votedAt"`
}

// Score is the final point tally, creator first.
type Score struct {
	Creator  int `json:"creator"`
	Opponent int `json:"opponent"`
}

// VoteState owns the voting phase of a 1-round trick battle.
type VoteState struct {
	ID                int64                `json:"id"`
	BattleID          uuid.UUID            `json:"battleId"`
	CreatorID         uuid.UUID            `json:"creatorId"`
	OpponentID        uuid.UUID            `json:"opponentId"`
	Status            Status               `json:"status"`
	Votes             map[uuid.UUID]Ballot `json:"votes"`
	VotingStartedAt   time.Time            `json:"votingStartedAt"`
	VoteDeadlineAt    time.Time            `json:"voteDeadlineAt"`
	WinnerID          *uuid.UUID           `json:"winnerId,omitempty"`
	FinalScore        *Score               `json:"finalScore,omitempty"`
	ProcessedEventIDs ledger.Ledger        `json:"processedEventIds,omitempty"`
	CreatedAt         time.Time            `json:"createdAt"`
	UpdatedAt         time.Time            `json:"updatedAt"`
}

// NewVoteState opens voting for a battle.
func NewVoteState(battleID, creatorID, opponentID uuid.UUID, voteWindow time.Duration) *VoteState {
	now := time.Now().UTC()
	return &VoteState{
		BattleID:        battleID,
		CreatorID:       creatorID,
		OpponentID:      opponentID,
		Status:          StatusVoting,
		Votes:           make(map[uuid.UUID]Ballot),
		VotingStartedAt: now,
		VoteDeadlineAt:  now.Add(voteWindow),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// IsParticipant reports whether id is one of the two declared participants.
func (v *VoteState) IsParticipant(id uuid.UUID) bool {
	return id == v.CreatorID || id == v.OpponentID
}

// HasProcessed reports whether eventID was already applied to this row.
func (v *VoteState) HasProcessed(eventID string) bool {
	return v.ProcessedEventIDs.Contains(eventID)
}

// RecordEvent appends eventID to the idempotency ledger.
func (v *VoteState) RecordEvent(eventID string, cap int) {
	v.ProcessedEventIDs = v.ProcessedEventIDs.Record(eventID, cap)
}

// CastVote records or replaces voterID's ballot.
func (v *VoteState) CastVote(voterID uuid.UUID, vote Vote, now time.Time) error {
	if !v.IsParticipant(voterID) {
		return ErrNotParticipant
	}
	if v.Status != StatusVoting {
		return ErrVotingClosed
	}
	if v.Votes == nil {
		v.Votes = make(map[uuid.UUID]Ballot)
	}
	v.Votes[voterID] = Ballot{Vote: vote, VotedAt: now.UTC()}
	v.UpdatedAt = now.UTC()
	return nil
}

// BothVoted reports whether both participants have a recorded ballot.
func (v *VoteState) BothVoted() bool {
	_, c := v.Votes[v.CreatorID]
	_, o := v.Votes[v.OpponentID]
	return c && o
}

// Tally computes the score from the ballots present. A clean vote is a
// concession about the voter's own clip, so it awards the point to the
// other participant; sketch and redo award nothing. Absent ballots count as
// sketch, which is what deadline expiry relies on.
func (v *VoteState) Tally() Score {
	var score Score
	if b, ok := v.Votes[v.CreatorID]; ok && b.Vote == VoteClean {
		score.Opponent++
	}
	if b, ok := v.Votes[v.OpponentID]; ok && b.Vote == VoteClean {
		score.Creator++
	}
	return score
}

// Complete finalizes voting with the ballots present. Ties, including 0-0,
// resolve in the creator's favor: the challenger holds advantage by policy,
// not by insertion order.
func (v *VoteState) Complete(now time.Time) error {
	if v.Status != StatusVoting {
		return ErrVotingClosed
	}
	score := v.Tally()
	winner := v.CreatorID
	if score.Opponent > score.Creator {
		winner = v.OpponentID
	}
	v.Status = StatusCompleted
	v.WinnerID = &winner
	v.FinalScore = &score
	v.UpdatedAt = now.UTC()
	return nil
}
