package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// EventType labels a state-change pushed to clients.
type EventType string

const (
	EventMatchState      EventType = "MATCH_STATE"
	EventTurnRotated     EventType = "TURN_ROTATED"
	EventMatchCompleted  EventType = "MATCH_COMPLETED"
	EventMatchForfeited  EventType = "MATCH_FORFEITED"
	EventMatchPaused     EventType = "MATCH_PAUSED"
	EventMatchResumed    EventType = "MATCH_RESUMED"
	EventVotingStarted   EventType = "VOTING_STARTED"
	EventVoteRecorded    EventType = "VOTE_RECORDED"
	EventBattleCompleted EventType = "BATTLE_COMPLETED"
)

// Event is the fire-and-forget notification contract. Exactly one of MatchID
// and BattleID is set.
type Event struct {
	MatchID   *uuid.UUID      `json:"matchId,omitempty"`
	BattleID  *uuid.UUID      `json:"battleId,omitempty"`
	Type      EventType       `json:"eventType"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
}

// NewMatchEvent builds a match-scoped event.
func NewMatchEvent(matchID uuid.UUID, t EventType, payload json.RawMessage) *Event {
	return &Event{MatchID: &matchID, Type: t, Payload: payload, CreatedAt: time.Now().UTC()}
}

// NewBattleEvent builds a battle-scoped event.
func NewBattleEvent(battleID uuid.UUID, t EventType, payload json.RawMessage) *Event {
	return &Event{BattleID: &battleID, Type: t, Payload: payload, CreatedAt: time.Now().UTC()}
}

// Gateway pushes events to connected clients. Implementations must not block
// and must not fail the state transition that produced the event: delivery
// is best effort by contract.
type Gateway interface {
	PublishToPlayer(playerID uuid.UUID, ev *Event)
}

// Presence reports whether a player holds at least one live realtime
// connection. The hub implements it; services consult it to scope offline
// pushes to absent participants.
type Presence interface {
	IsConnected(playerID uuid.UUID) bool
}

// Pusher asynchronously notifies offline participants (e.g. mobile push).
// Best effort as well; errors are logged by implementations, never returned
// into the transactional path.
type Pusher interface {
	NotifyOffline(ctx context.Context, playerID uuid.UUID, ev *Event)
}
