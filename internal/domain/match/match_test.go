package match

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
)

const testTimeout = time.Minute

func activeSession(t *testing.T) (*Session, uuid.UUID, uuid.UUID) {
	t.Helper()
	challenger := uuid.New()
	opponent := uuid.New()
	s := NewSession(uuid.New(), challenger)
	if err := s.Accept(opponent, testTimeout); err != nil {
		t.Fatalf("accept: %v", err)
	}
	return s, challenger, opponent
}

func TestAcceptActivates(t *testing.T) {
	s, challenger, _ := activeSession(t)
	if s.Status != StatusActive {
		t.Fatalf("expected ACTIVE, got %s", s.Status)
	}
	if s.SetterID != challenger {
		t.Fatal("challenger should set first")
	}
	if s.CurrentAction != ActionSet {
		t.Fatalf("expected SET, got %s", s.CurrentAction)
	}
	if s.TurnDeadlineAt == nil || !s.TurnDeadlineAt.After(time.Now()) {
		t.Fatal("expected a future turn deadline")
	}
}

func TestSetAttemptJudgeLanded(t *testing.T) {
	s, challenger, opponent := activeSession(t)

	if err := s.SubmitSet(challenger, "clip-1", testTimeout); err != nil {
		t.Fatalf("set: %v", err)
	}
	if s.CurrentAction != ActionAttempt {
		t.Fatalf("expected ATTEMPT, got %s", s.CurrentAction)
	}
	if s.Players[s.CurrentTurnIndex].PlayerID != opponent {
		t.Fatal("attempt belongs to the opponent")
	}

	if err := s.SubmitAttempt(opponent, "clip-2", testTimeout); err != nil {
		t.Fatalf("attempt: %v", err)
	}
	if s.CurrentAction != ActionJudge {
		t.Fatalf("expected JUDGE, got %s", s.CurrentAction)
	}

	if err := s.Judge(DecisionLanded, testTimeout); err != nil {
		t.Fatalf("judge: %v", err)
	}
	if s.SetterID != challenger {
		t.Fatal("landed attempt keeps the setter")
	}
	if s.Players[1].Letters != "" {
		t.Fatal("landed attempt must not award a letter")
	}
	if s.CurrentAction != ActionSet {
		t.Fatalf("expected SET, got %s", s.CurrentAction)
	}
}

func TestJudgeMissedAwardsLetterAndRotates(t *testing.T) {
	s, challenger, opponent := activeSession(t)
	if err := s.SubmitSet(challenger, "clip-1", testTimeout); err != nil {
		t.Fatal(err)
	}
	if err := s.SubmitAttempt(opponent, "clip-2", testTimeout); err != nil {
		t.Fatal(err)
	}
	if err := s.Judge(DecisionMissed, testTimeout); err != nil {
		t.Fatal(err)
	}
	if s.Players[1].Letters != "S" {
		t.Fatalf("expected S, got %q", s.Players[1].Letters)
	}
	if s.SetterID != opponent {
		t.Fatal("missed attempt rotates the setter to the attempter")
	}
}

func TestBailSetRotatesWithoutLetter(t *testing.T) {
	s, challenger, opponent := activeSession(t)
	if err := s.BailSet(challenger, testTimeout); err != nil {
		t.Fatal(err)
	}
	if s.SetterID != opponent {
		t.Fatal("bail hands the set to the opponent")
	}
	if s.Players[0].Letters != "" || s.Players[1].Letters != "" {
		t.Fatal("bail must not penalize anyone")
	}
	if s.CurrentAction != ActionSet {
		t.Fatalf("expected SET, got %s", s.CurrentAction)
	}
}

func TestEliminationCompletesMatch(t *testing.T) {
	s, challenger, opponent := activeSession(t)
	for i := 0; i < len(LettersWord); i++ {
		setter := s.SetterID
		attempter := s.Opponent(setter)
		if err := s.SubmitSet(setter, "clip", testTimeout); err != nil {
			t.Fatalf("round %d set: %v", i, err)
		}
		if err := s.SubmitAttempt(attempter, "clip", testTimeout); err != nil {
			t.Fatalf("round %d attempt: %v", i, err)
		}
		// Keep the original opponent the attempter: after each miss the
		// roles rotate, so the challenger's next miss is avoided by
		// rotating back with a bail.
		if err := s.Judge(DecisionMissed, testTimeout); err != nil {
			t.Fatalf("round %d judge: %v", i, err)
		}
		if s.IsTerminal() {
			break
		}
		if s.SetterID != challenger {
			if err := s.BailSet(s.SetterID, testTimeout); err != nil {
				t.Fatalf("round %d bail: %v", i, err)
			}
		}
	}
	_ = opponent
	if s.Status != StatusCompleted {
		t.Fatalf("expected COMPLETED, got %s", s.Status)
	}
	if s.WinnerID == nil {
		t.Fatal("expected winner")
	}
}

func TestTerminalRejectsMutation(t *testing.T) {
	s, challenger, _ := activeSession(t)
	if err := s.Forfeit(challenger, ReasonPlayerQuit); err != nil {
		t.Fatal(err)
	}
	if s.Status != StatusForfeited {
		t.Fatalf("expected FORFEITED, got %s", s.Status)
	}
	if err := s.SubmitSet(challenger, "clip", testTimeout); !errors.Is(err, ErrTerminal) {
		t.Fatalf("expected ErrTerminal, got %v", err)
	}
	if err := s.Forfeit(challenger, ReasonPlayerQuit); !errors.Is(err, ErrTerminal) {
		t.Fatalf("expected ErrTerminal, got %v", err)
	}
}

func TestForfeitRecordsWinnerAndReason(t *testing.T) {
	s, challenger, opponent := activeSession(t)
	if err := s.Forfeit(challenger, ReasonTurnTimeout); err != nil {
		t.Fatal(err)
	}
	if s.WinnerID == nil || *s.WinnerID != opponent {
		t.Fatal("winner must be the other player")
	}
	if s.ForfeitReason == nil || *s.ForfeitReason != ReasonTurnTimeout {
		t.Fatal("reason must be recorded")
	}
}

func TestDisconnectPausesOnlyForActionOwner(t *testing.T) {
	s, challenger, opponent := activeSession(t)
	now := time.Now()

	// Opponent is idle during SET: no pause.
	if err := s.Disconnect(opponent, now); err != nil {
		t.Fatal(err)
	}
	if s.Status != StatusActive {
		t.Fatalf("expected ACTIVE, got %s", s.Status)
	}
	if err := s.Reconnect(opponent, now, 2*time.Minute); err != nil {
		t.Fatal(err)
	}

	// Setter owns the action: pause.
	if err := s.Disconnect(challenger, now); err != nil {
		t.Fatal(err)
	}
	if s.Status != StatusPaused {
		t.Fatalf("expected PAUSED, got %s", s.Status)
	}
}

func TestReconnectExtendsDeadlineByRemainingAllowance(t *testing.T) {
	s, challenger, _ := activeSession(t)
	base := *s.TurnDeadlineAt
	now := time.Now()
	if err := s.Disconnect(challenger, now); err != nil {
		t.Fatal(err)
	}
	if err := s.Reconnect(challenger, now.Add(30*time.Second), 2*time.Minute); err != nil {
		t.Fatal(err)
	}
	if s.Status != StatusActive {
		t.Fatalf("expected ACTIVE, got %s", s.Status)
	}
	got := s.TurnDeadlineAt.Sub(base)
	want := 90 * time.Second
	if got < want-time.Second || got > want+time.Second {
		t.Fatalf("expected ~%s extension, got %s", want, got)
	}
	if s.Players[0].DisconnectedAt != nil {
		t.Fatal("disconnectedAt must be cleared")
	}
}

func TestReconnectOfIdlePlayerKeepsPause(t *testing.T) {
	s, challenger, opponent := activeSession(t)
	now := time.Now()

	// Setter owns the action; their disconnect pauses the match.
	if err := s.Disconnect(challenger, now); err != nil {
		t.Fatal(err)
	}
	if s.Status != StatusPaused {
		t.Fatalf("expected PAUSED, got %s", s.Status)
	}

	// The opponent dropping and returning must not resume play for the
	// still-absent action owner, and must not shed the reconnect-window
	// forfeit on them.
	if err := s.Disconnect(opponent, now); err != nil {
		t.Fatal(err)
	}
	if err := s.Reconnect(opponent, now.Add(10*time.Second), 2*time.Minute); err != nil {
		t.Fatal(err)
	}
	if s.Status != StatusPaused {
		t.Fatalf("expected PAUSED while the action owner is gone, got %s", s.Status)
	}
	if s.Players[0].Connected || s.Players[0].DisconnectedAt == nil {
		t.Fatal("action owner's disconnect markers must survive")
	}

	// The owner's own return resumes play.
	if err := s.Reconnect(challenger, now.Add(20*time.Second), 2*time.Minute); err != nil {
		t.Fatal(err)
	}
	if s.Status != StatusActive {
		t.Fatalf("expected ACTIVE, got %s", s.Status)
	}
}

func TestForfeitRejectedWhileWaiting(t *testing.T) {
	challenger := uuid.New()
	s := NewSession(uuid.New(), challenger)
	if err := s.Forfeit(challenger, ReasonPlayerQuit); !errors.Is(err, ErrWrongPhase) {
		t.Fatalf("expected ErrWrongPhase, got %v", err)
	}
	if s.Status != StatusWaiting || s.WinnerID != nil {
		t.Fatal("waiting session must stay untouched")
	}
}

func TestMissAttemptAndRotate(t *testing.T) {
	s, challenger, opponent := activeSession(t)
	if err := s.SubmitSet(challenger, "clip", testTimeout); err != nil {
		t.Fatal(err)
	}
	if s.MissAttemptAndRotate(testTimeout) {
		t.Fatal("one letter must not eliminate")
	}
	if s.Players[1].Letters != "S" {
		t.Fatalf("expected S, got %q", s.Players[1].Letters)
	}
	if s.SetterID != opponent {
		t.Fatal("rotation expected after a timed-out attempt")
	}
}

func TestNonParticipantRejected(t *testing.T) {
	s, _, _ := activeSession(t)
	if err := s.SubmitSet(uuid.New(), "clip", testTimeout); !errors.Is(err, ErrNotParticipant) {
		t.Fatalf("expected ErrNotParticipant, got %v", err)
	}
}

func TestEventLedger(t *testing.T) {
	s, _, _ := activeSession(t)
	s.RecordEvent("evt-1", 50)
	if !s.HasProcessed("evt-1") {
		t.Fatal("expected evt-1 recorded")
	}
	if s.HasProcessed("evt-2") {
		t.Fatal("did not expect evt-2")
	}
}
