package httpapi

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/skate-sesh/skate-sesh/internal/domain/battle"
)

type initializeVotingRequest struct {
	EventID    string `json:"event_id"`
	CreatorID  string `json:"creator_id"`
	OpponentID string `json:"opponent_id"`
}

func (s *Server) initializeVoting(w http.ResponseWriter, r *http.Request) {
	battleID, err := parseUUIDParam(r, "battleId")
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid battleId")
		return
	}
	var req initializeVotingRequest
	if err := decodeBody(r, &req); err != nil || req.EventID == "" {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "event_id is required")
		return
	}
	creatorID, err := uuid.Parse(req.CreatorID)
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid creator_id")
		return
	}
	opponentID, err := uuid.Parse(req.OpponentID)
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid opponent_id")
		return
	}
	res, err := s.battleSvc.InitializeVoting(r.Context(), req.EventID, battleID, creatorID, opponentID)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

type castVoteRequest struct {
	EventID string `json:"event_id"`
	Vote    string `json:"vote"`
}

func (s *Server) castVote(w http.ResponseWriter, r *http.Request) {
	battleID, err := parseUUIDParam(r, "battleId")
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid battleId")
		return
	}
	voterID, err := playerFromRequest(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "missing or invalid X-Player-ID")
		return
	}
	var req castVoteRequest
	if err := decodeBody(r, &req); err != nil || req.EventID == "" {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "event_id is required")
		return
	}
	vote, err := battle.ParseVote(req.Vote)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	res, err := s.battleSvc.CastVote(r.Context(), req.EventID, battleID, voterID, vote)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

func (s *Server) getBattleVoteState(w http.ResponseWriter, r *http.Request) {
	battleID, err := parseUUIDParam(r, "battleId")
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid battleId")
		return
	}
	state, err := s.battleSvc.GetBattleVoteState(r.Context(), battleID)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	if state == nil {
		respondError(w, http.StatusNotFound, "NOT_FOUND", "battle vote state not found")
		return
	}
	respondJSON(w, http.StatusOK, state)
}
