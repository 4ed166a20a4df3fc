package battle

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
)

func votingState() *VoteState {
	return NewVoteState(uuid.New(), uuid.New(), uuid.New(), 24*time.Hour)
}

func TestCastVoteRejectsNonParticipant(t *testing.T) {
	v := votingState()
	err := v.CastVote(uuid.New(), VoteClean, time.Now())
	if !errors.Is(err, ErrNotParticipant) {
		t.Fatalf("expected ErrNotParticipant, got %v", err)
	}
	if len(v.Votes) != 0 {
		t.Fatal("state must not change")
	}
}

func TestDoubleVoteReplacesPrior(t *testing.T) {
	v := votingState()
	now := time.Now()
	if err := v.CastVote(v.CreatorID, VoteClean, now); err != nil {
		t.Fatal(err)
	}
	if err := v.CastVote(v.CreatorID, VoteRedo, now.Add(time.Second)); err != nil {
		t.Fatal(err)
	}
	if len(v.Votes) != 1 {
		t.Fatalf("expected one ballot, got %d", len(v.Votes))
	}
	if v.Votes[v.CreatorID].Vote != VoteRedo {
		t.Fatal("second vote must win")
	}
}

func TestCleanVoteScoresForOpponentOfVoter(t *testing.T) {
	v := votingState()
	now := time.Now()
	// Creator concedes clean, opponent says sketch: 0-1, opponent wins.
	_ = v.CastVote(v.CreatorID, VoteClean, now)
	_ = v.CastVote(v.OpponentID, VoteSketch, now)
	if err := v.Complete(now); err != nil {
		t.Fatal(err)
	}
	if v.FinalScore.Creator != 0 || v.FinalScore.Opponent != 1 {
		t.Fatalf("expected 0-1, got %d-%d", v.FinalScore.Creator, v.FinalScore.Opponent)
	}
	if *v.WinnerID != v.OpponentID {
		t.Fatal("opponent should win")
	}
}

func TestTieBreakFavorsCreator(t *testing.T) {
	cases := map[string][2]Vote{
		"zero-zero": {VoteSketch, VoteRedo},
		"one-one":   {VoteClean, VoteClean},
		"redo-redo": {VoteRedo, VoteRedo},
	}
	for name, votes := range cases {
		t.Run(name, func(t *testing.T) {
			v := votingState()
			now := time.Now()
			_ = v.CastVote(v.CreatorID, votes[0], now)
			_ = v.CastVote(v.OpponentID, votes[1], now)
			if err := v.Complete(now); err != nil {
				t.Fatal(err)
			}
			if *v.WinnerID != v.CreatorID {
				t.Fatalf("tie must resolve to the creator")
			}
		})
	}
}

func TestCompleteWithMissingVotes(t *testing.T) {
	// Deadline expiry path: only the opponent voted clean.
	v := votingState()
	now := time.Now()
	_ = v.CastVote(v.OpponentID, VoteClean, now)
	if err := v.Complete(now); err != nil {
		t.Fatal(err)
	}
	if v.FinalScore.Creator != 1 || v.FinalScore.Opponent != 0 {
		t.Fatalf("expected 1-0, got %d-%d", v.FinalScore.Creator, v.FinalScore.Opponent)
	}
	if *v.WinnerID != v.CreatorID {
		t.Fatal("creator should win")
	}
}

func TestCompleteIsMonotonic(t *testing.T) {
	v := votingState()
	now := time.Now()
	if err := v.Complete(now); err != nil {
		t.Fatal(err)
	}
	if err := v.Complete(now); !errors.Is(err, ErrVotingClosed) {
		t.Fatalf("expected ErrVotingClosed, got %v", err)
	}
	if err := v.CastVote(v.CreatorID, VoteClean, now); !errors.Is(err, ErrVotingClosed) {
		t.Fatalf("expected ErrVotingClosed, got %v", err)
	}
}

func TestParseVote(t *testing.T) {
	if _, err := ParseVote("CLEAN"); err != nil {
		t.Fatal(err)
	}
	if _, err := ParseVote("GNARLY"); !errors.Is(err, ErrInvalidVote) {
		t.Fatalf("expected ErrInvalidVote, got %v", err)
	}
}

func TestBothVoted(t *testing.T) {
	v := votingState()
	now := time.Now()
	if v.BothVoted() {
		t.Fatal("no votes yet")
	}
	_ = v.CastVote(v.CreatorID, VoteSketch, now)
	if v.BothVoted() {
		t.Fatal("one vote is not both")
	}
	_ = v.CastVote(v.OpponentID, VoteSketch, now)
	if !v.BothVoted() {
		t.Fatal("both voted")
	}
}
