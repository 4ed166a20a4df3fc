package battle

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skate-sesh/skate-sesh/internal/domain/battle"
	"github.com/skate-sesh/skate-sesh/internal/domain/notify"
)

// fakeRepo is an in-memory battle.Repository with the lock-then-reread
// Mutate contract: a non-nil fn return discards the write but still hands
// the fresh copy back.
type fakeRepo struct {
	mu     sync.Mutex
	states map[uuid.UUID]*battle.VoteState
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{states: make(map[uuid.UUID]*battle.VoteState)}
}

func cloneState(v *battle.VoteState) *battle.VoteState {
	raw, _ := json.Marshal(v)
	var out battle.VoteState
	_ = json.Unmarshal(raw, &out)
	return &out
}

func (r *fakeRepo) CreateIfAbsent(_ context.Context, v *battle.VoteState) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.states[v.BattleID]; ok {
		return false, nil
	}
	r.states[v.BattleID] = cloneState(v)
	return true, nil
}

func (r *fakeRepo) GetByBattleID(_ context.Context, battleID uuid.UUID) (*battle.VoteState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.states[battleID]
	if !ok {
		return nil, nil
	}
	return cloneState(v), nil
}

func (r *fakeRepo) Mutate(_ context.Context, battleID uuid.UUID, fn func(v *battle.VoteState) error) (*battle.VoteState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.states[battleID]
	if !ok {
		return nil, battle.ErrNotFound
	}
	c := cloneState(v)
	if err := fn(c); err != nil {
		return c, err
	}
	r.states[battleID] = cloneState(c)
	return c, nil
}

func (r *fakeRepo) ListExpiredVoting(_ context.Context, now time.Time, limit int) ([]uuid.UUID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ids []uuid.UUID
	for _, v := range r.states {
		if len(ids) >= limit {
			break
		}
		if v.Status == battle.StatusVoting && !v.VoteDeadlineAt.After(now) {
			ids = append(ids, v.BattleID)
		}
	}
	return ids, nil
}

type fakeGateway struct {
	mu     sync.Mutex
	events []notify.EventType
}

func (g *fakeGateway) PublishToPlayer(_ uuid.UUID, ev *notify.Event) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.events = append(g.events, ev.Type)
}

func (g *fakeGateway) seen(t notify.EventType) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, e := range g.events {
		if e == t {
			return true
		}
	}
	return false
}

// fakePresence reports the players marked online; everyone else is absent.
type fakePresence struct {
	online map[uuid.UUID]bool
}

func (p *fakePresence) IsConnected(id uuid.UUID) bool {
	return p.online[id]
}

// fakePusher records which players were pushed.
type fakePusher struct {
	mu  sync.Mutex
	ids []uuid.UUID
}

func (p *fakePusher) NotifyOffline(_ context.Context, id uuid.UUID, _ *notify.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ids = append(p.ids, id)
}

func (p *fakePusher) pushed(id uuid.UUID) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, got := range p.ids {
		if got == id {
			return true
		}
	}
	return false
}

func newTestService(repo *fakeRepo, gw *fakeGateway) *Service {
	cfg := Config{VoteWindow: 24 * time.Hour, MaxProcessedEvents: 50}
	return NewService(repo, gw, nil, nil, cfg, zerolog.Nop())
}

func TestInitializeVotingIdempotent(t *testing.T) {
	repo := newFakeRepo()
	gw := &fakeGateway{}
	svc := newTestService(repo, gw)
	ctx := context.Background()
	battleID := uuid.New()
	creator := uuid.New()
	opponent := uuid.New()

	first, err := svc.InitializeVoting(ctx, uuid.NewString(), battleID, creator, opponent)
	require.NoError(t, err)
	assert.False(t, first.AlreadyInitialized)
	assert.Equal(t, battle.StatusVoting, first.State.Status)
	assert.True(t, gw.seen(notify.EventVotingStarted))

	// A second trigger for the same battle reports, never resets.
	second, err := svc.InitializeVoting(ctx, uuid.NewString(), battleID, creator, opponent)
	require.NoError(t, err)
	assert.True(t, second.AlreadyInitialized)
	assert.Equal(t, first.State.BattleID, second.State.BattleID)
}

func TestCastVoteCompletesWhenBothVoted(t *testing.T) {
	repo := newFakeRepo()
	gw := &fakeGateway{}
	svc := newTestService(repo, gw)
	ctx := context.Background()
	battleID := uuid.New()
	creator := uuid.New()
	opponent := uuid.New()
	_, err := svc.InitializeVoting(ctx, uuid.NewString(), battleID, creator, opponent)
	require.NoError(t, err)

	partial, err := svc.CastVote(ctx, uuid.NewString(), battleID, creator, battle.VoteClean)
	require.NoError(t, err)
	assert.False(t, partial.BattleComplete)

	// Creator conceded clean (point to opponent); opponent voted sketch.
	final, err := svc.CastVote(ctx, uuid.NewString(), battleID, opponent, battle.VoteSketch)
	require.NoError(t, err)
	assert.True(t, final.BattleComplete)
	require.NotNil(t, final.WinnerID)
	assert.Equal(t, opponent, *final.WinnerID)
	require.NotNil(t, final.FinalScore)
	assert.Equal(t, battle.Score{Creator: 0, Opponent: 1}, *final.FinalScore)
	assert.True(t, gw.seen(notify.EventBattleCompleted))

	// Voting is closed afterwards.
	_, err = svc.CastVote(ctx, uuid.NewString(), battleID, creator, battle.VoteRedo)
	assert.ErrorIs(t, err, battle.ErrVotingClosed)
}

func TestCastVoteReplay(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, &fakeGateway{})
	ctx := context.Background()
	battleID := uuid.New()
	creator := uuid.New()
	opponent := uuid.New()
	_, err := svc.InitializeVoting(ctx, uuid.NewString(), battleID, creator, opponent)
	require.NoError(t, err)

	eventID := uuid.NewString()
	_, err = svc.CastVote(ctx, eventID, battleID, creator, battle.VoteSketch)
	require.NoError(t, err)

	replay, err := svc.CastVote(ctx, eventID, battleID, creator, battle.VoteClean)
	require.NoError(t, err)
	assert.True(t, replay.AlreadyProcessed)
	// The replayed payload changed nothing: the committed ballot stands.
	assert.Equal(t, battle.VoteSketch, replay.State.Votes[creator].Vote)
}

func TestCastVoteRejectsOutsiders(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, &fakeGateway{})
	ctx := context.Background()
	battleID := uuid.New()
	_, err := svc.InitializeVoting(ctx, uuid.NewString(), battleID, uuid.New(), uuid.New())
	require.NoError(t, err)

	_, err = svc.CastVote(ctx, uuid.NewString(), battleID, uuid.New(), battle.VoteClean)
	assert.ErrorIs(t, err, battle.ErrNotParticipant)
}

func TestOfflinePushSkipsConnectedParticipants(t *testing.T) {
	repo := newFakeRepo()
	creator := uuid.New()
	opponent := uuid.New()
	presence := &fakePresence{online: map[uuid.UUID]bool{creator: true}}
	pusher := &fakePusher{}
	cfg := Config{VoteWindow: 24 * time.Hour, MaxProcessedEvents: 50}
	svc := NewService(repo, &fakeGateway{}, presence, pusher, cfg, zerolog.Nop())
	ctx := context.Background()
	battleID := uuid.New()

	_, err := svc.InitializeVoting(ctx, uuid.NewString(), battleID, creator, opponent)
	require.NoError(t, err)

	assert.False(t, pusher.pushed(creator), "connected participant must not be pushed")
	assert.True(t, pusher.pushed(opponent), "absent participant must be pushed")
}

func TestResolveExpired(t *testing.T) {
	repo := newFakeRepo()
	gw := &fakeGateway{}
	svc := newTestService(repo, gw)
	ctx := context.Background()
	battleID := uuid.New()
	creator := uuid.New()
	opponent := uuid.New()
	_, err := svc.InitializeVoting(ctx, uuid.NewString(), battleID, creator, opponent)
	require.NoError(t, err)

	t.Run("deadline not reached is a no-op", func(t *testing.T) {
		resolved, err := svc.ResolveExpired(ctx, battleID, time.Now())
		require.NoError(t, err)
		assert.False(t, resolved)
	})

	t.Run("expired battle completes with absent ballots as sketch", func(t *testing.T) {
		resolved, err := svc.ResolveExpired(ctx, battleID, time.Now().Add(25*time.Hour))
		require.NoError(t, err)
		assert.True(t, resolved)

		got, err := repo.GetByBattleID(ctx, battleID)
		require.NoError(t, err)
		assert.Equal(t, battle.StatusCompleted, got.Status)
		// 0-0 tie resolves in the creator's favor.
		require.NotNil(t, got.WinnerID)
		assert.Equal(t, creator, *got.WinnerID)
		assert.True(t, gw.seen(notify.EventBattleCompleted))
	})

	t.Run("already completed is a no-op", func(t *testing.T) {
		resolved, err := svc.ResolveExpired(ctx, battleID, time.Now().Add(25*time.Hour))
		require.NoError(t, err)
		assert.False(t, resolved)
	})
}
