package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/skate-sesh/skate-sesh/internal/domain/battle"
	"github.com/skate-sesh/skate-sesh/internal/domain/ledger"
)

// BattleRepository implements battle.Repository on Postgres.
type BattleRepository struct {
	pool *pgxpool.Pool
}

func NewBattleRepository(pool *pgxpool.Pool) *BattleRepository {
	return &BattleRepository{pool: pool}
}

const battleColumns = `id, battle_id, creator_id, opponent_id, status, votes,
	voting_started_at, vote_deadline_at, winner_id, final_score,
	processed_event_ids, created_at, updated_at`

// CreateIfAbsent inserts the vote state unless one already exists for the
// battle. The unique index on battle_id makes duplicate initialization
// triggers race-safe: exactly one insert wins.
func (r *BattleRepository) CreateIfAbsent(ctx context.Context, v *battle.VoteState) (bool, error) {
	votes, score, err := marshalBattleJSON(v)
	if err != nil {
		return false, err
	}
	ct, err := r.pool.Exec(ctx, `
		INSERT INTO battle_vote_states
		(battle_id, creator_id, opponent_id, status, votes, voting_started_at,
		 vote_deadline_at, winner_id, final_score, processed_event_ids,
		 created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		ON CONFLICT (battle_id) DO NOTHING
	`, v.BattleID, v.CreatorID, v.OpponentID, v.Status, votes, v.VotingStartedAt,
		v.VoteDeadlineAt, v.WinnerID, score, []string(v.ProcessedEventIDs),
		v.CreatedAt, v.UpdatedAt)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() > 0, nil
}

func (r *BattleRepository) GetByBattleID(ctx context.Context, battleID uuid.UUID) (*battle.VoteState, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+battleColumns+` FROM battle_vote_states WHERE battle_id=$1
	`, battleID)
	return scanBattle(row)
}

// Mutate follows the same lock-then-reread contract as the match repository.
func (r *BattleRepository) Mutate(ctx context.Context, battleID uuid.UUID, fn func(v *battle.VoteState) error) (*battle.VoteState, error) {
	var out *battle.VoteState
	err := inTx(ctx, r.pool, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `
			SELECT `+battleColumns+` FROM battle_vote_states
			WHERE battle_id=$1 FOR UPDATE
		`, battleID)
		v, err := scanBattle(row)
		if err != nil {
			return err
		}
		if v == nil {
			return battle.ErrNotFound
		}
		out = v
		if err := fn(v); err != nil {
			return err
		}
		return updateBattle(ctx, tx, v)
	})
	return out, err
}

func (r *BattleRepository) ListExpiredVoting(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT battle_id FROM battle_vote_states
		WHERE status=$1 AND vote_deadline_at < $2
		ORDER BY vote_deadline_at ASC LIMIT $3
	`, battle.StatusVoting, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanIDs(rows)
}

func updateBattle(ctx context.Context, tx pgx.Tx, v *battle.VoteState) error {
	votes, score, err := marshalBattleJSON(v)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `
		UPDATE battle_vote_states
		SET status=$1, votes=$2, winner_id=$3, final_score=$4,
		    processed_event_ids=$5, updated_at=$6
		WHERE battle_id=$7
	`, v.Status, votes, v.WinnerID, score, []string(v.ProcessedEventIDs),
		v.UpdatedAt, v.BattleID)
	return err
}

func marshalBattleJSON(v *battle.VoteState) (votes, score []byte, err error) {
	votes, err = json.Marshal(v.Votes)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal votes: %w", err)
	}
	if v.FinalScore != nil {
		score, err = json.Marshal(v.FinalScore)
		if err != nil {
			return nil, nil, fmt.Errorf("marshal final score: %w", err)
		}
	}
	return votes, score, nil
}

func scanBattle(row pgx.Row) (*battle.VoteState, error) {
	var (
		v         battle.VoteState
		votes     []byte
		score     []byte
		processed []string
	)
	if err := row.Scan(&v.ID, &v.BattleID, &v.CreatorID, &v.OpponentID, &v.Status, &votes,
		&v.VotingStartedAt, &v.VoteDeadlineAt, &v.WinnerID, &score,
		&processed, &v.CreatedAt, &v.UpdatedAt); err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	if err := json.Unmarshal(votes, &v.Votes); err != nil {
		return nil, fmt.Errorf("unmarshal votes: %w", err)
	}
	if len(score) > 0 {
		if err := json.Unmarshal(score, &v.FinalScore); err != nil {
			return nil, fmt.Errorf("unmarshal final score: %w", err)
		}
	}
	v.ProcessedEventIDs = ledger.Ledger(processed)
	return &v, nil
}
