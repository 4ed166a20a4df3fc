package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/skate-sesh/skate-sesh/internal/domain/ledger"
	"github.com/skate-sesh/skate-sesh/internal/domain/match"
)

// MatchRepository implements match.Repository on Postgres. Player states and
// trick history live in jsonb columns; processed event ids in a text array.
type MatchRepository struct {
	pool *pgxpool.Pool
}

func NewMatchRepository(pool *pgxpool.Pool) *MatchRepository {
	return &MatchRepository{pool: pool}
}

const matchColumns = `id, match_id, challenge_id, status, players, current_action,
	current_turn_index, setter_id, turn_deadline_at, winner_id, forfeit_reason,
	tricks, processed_event_ids, created_at, updated_at`

func (r *MatchRepository) Create(ctx context.Context, s *match.Session) error {
	players, tricks, err := marshalMatchJSON(s)
	if err != nil {
		return err
	}
	row := r.pool.QueryRow(ctx, `
		INSERT INTO match_sessions
		(match_id, challenge_id, status, players, current_action, current_turn_index,
		 setter_id, turn_deadline_at, winner_id, forfeit_reason, tricks,
		 processed_event_ids, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
		RETURNING id
	`, s.MatchID, s.ChallengeID, s.Status, players, nullAction(s.CurrentAction), s.CurrentTurnIndex,
		nullUUID(s.SetterID), s.TurnDeadlineAt, s.WinnerID, s.ForfeitReason, tricks,
		[]string(s.ProcessedEventIDs), s.CreatedAt, s.UpdatedAt)
	return row.Scan(&s.ID)
}

func (r *MatchRepository) GetByID(ctx context.Context, matchID uuid.UUID) (*match.Session, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+matchColumns+` FROM match_sessions WHERE match_id=$1
	`, matchID)
	return scanMatch(row)
}

func (r *MatchRepository) GetByChallengeID(ctx context.Context, challengeID uuid.UUID) (*match.Session, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+matchColumns+` FROM match_sessions WHERE challenge_id=$1
	`, challengeID)
	return scanMatch(row)
}

func (r *MatchRepository) FindWaiting(ctx context.Context, excludePlayerID uuid.UUID) (*match.Session, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+matchColumns+` FROM match_sessions
		WHERE status=$1 AND players->0->>'playerId' <> $2
		ORDER BY created_at ASC LIMIT 1
	`, match.StatusWaiting, excludePlayerID.String())
	s, err := scanMatch(row)
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, match.ErrNotFound
	}
	return s, nil
}

// Mutate locks and re-reads the row, applies fn, and persists on nil return.
// On a non-nil return the transaction rolls back but the freshly read state
// is still handed back so callers can surface prior results.
func (r *MatchRepository) Mutate(ctx context.Context, matchID uuid.UUID, fn func(s *match.Session) error) (*match.Session, error) {
	var out *match.Session
	err := inTx(ctx, r.pool, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `
			SELECT `+matchColumns+` FROM match_sessions
			WHERE match_id=$1 FOR UPDATE
		`, matchID)
		s, err := scanMatch(row)
		if err != nil {
			return err
		}
		if s == nil {
			return match.ErrNotFound
		}
		out = s
		if err := fn(s); err != nil {
			return err
		}
		return updateMatch(ctx, tx, s)
	})
	return out, err
}

func (r *MatchRepository) ListExpiredTurns(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT match_id FROM match_sessions
		WHERE status=$1 AND turn_deadline_at IS NOT NULL AND turn_deadline_at < $2
		ORDER BY turn_deadline_at ASC LIMIT $3
	`, match.StatusActive, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanIDs(rows)
}

func (r *MatchRepository) ListExpiredReconnects(ctx context.Context, cutoff time.Time, limit int) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT match_id FROM match_sessions
		WHERE status=$1 AND EXISTS (
			SELECT 1 FROM jsonb_array_elements(players) p
			WHERE (p->>'connected')::bool = false
			  AND (p->>'disconnectedAt')::timestamptz < $2
		)
		ORDER BY updated_at ASC LIMIT $3
	`, match.StatusPaused, cutoff, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanIDs(rows)
}

func updateMatch(ctx context.Context, tx pgx.Tx, s *match.Session) error {
	players, tricks, err := marshalMatchJSON(s)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `
		UPDATE match_sessions
		SET status=$1, players=$2, current_action=$3, current_turn_index=$4,
		    setter_id=$5, turn_deadline_at=$6, winner_id=$7, forfeit_reason=$8,
		    tricks=$9, processed_event_ids=$10, updated_at=$11
		WHERE match_id=$12
	`, s.Status, players, nullAction(s.CurrentAction), s.CurrentTurnIndex,
		nullUUID(s.SetterID), s.TurnDeadlineAt, s.WinnerID, s.ForfeitReason,
		tricks, []string(s.ProcessedEventIDs), s.UpdatedAt, s.MatchID)
	return err
}

func marshalMatchJSON(s *match.Session) (players, tricks []byte, err error) {
	players, err = json.Marshal(s.Players)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal players: %w", err)
	}
	tricks, err = json.Marshal(s.Tricks)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal tricks: %w", err)
	}
	return players, tricks, nil
}

func scanMatch(row pgx.Row) (*match.Session, error) {
	var (
		s         match.Session
		players   []byte
		tricks    []byte
		action    *string
		setterID  *uuid.UUID
		processed []string
	)
	if err := row.Scan(&s.ID, &s.MatchID, &s.ChallengeID, &s.Status, &players, &action,
		&s.CurrentTurnIndex, &setterID, &s.TurnDeadlineAt, &s.WinnerID, &s.ForfeitReason,
		&tricks, &processed, &s.CreatedAt, &s.UpdatedAt); err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	if err := json.Unmarshal(players, &s.Players); err != nil {
		return nil, fmt.Errorf("unmarshal players: %w", err)
	}
	if len(tricks) > 0 {
		if err := json.Unmarshal(tricks, &s.Tricks); err != nil {
			return nil, fmt.Errorf("unmarshal tricks: %w", err)
		}
	}
	if action != nil {
		s.CurrentAction = match.Action(*action)
	}
	if setterID != nil {
		s.SetterID = *setterID
	}
	s.ProcessedEventIDs = ledger.Ledger(processed)
	return &s, nil
}

func scanIDs(rows pgx.Rows) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func nullAction(a match.Action) *string {
	if a == "" {
		return nil
	}
	s := string(a)
	return &s
}

func nullUUID(id uuid.UUID) *uuid.UUID {
	if id == uuid.Nil {
		return nil
	}
	return &id
}
