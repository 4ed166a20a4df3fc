package httpapi

import (
	"net/http"

	"github.com/skate-sesh/skate-sesh/internal/domain/match"
)

func (s *Server) findOrCreateMatch(w http.ResponseWriter, r *http.Request) {
	playerID, err := playerFromRequest(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "missing or invalid X-Player-ID")
		return
	}
	sess, err := s.matchSvc.FindOrCreateWaiting(r.Context(), playerID)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, sess)
}

func (s *Server) acceptChallenge(w http.ResponseWriter, r *http.Request) {
	challengeID, err := parseUUIDParam(r, "challengeId")
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid challengeId")
		return
	}
	playerID, err := playerFromRequest(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "missing or invalid X-Player-ID")
		return
	}
	sess, err := s.matchSvc.AcceptChallenge(r.Context(), challengeID, playerID)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, sess)
}

func (s *Server) getMatch(w http.ResponseWriter, r *http.Request) {
	matchID, err := parseUUIDParam(r, "matchId")
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid matchId")
		return
	}
	sess, err := s.matchSvc.GetMatch(r.Context(), matchID)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, sess)
}

type trickActionRequest struct {
	EventID  string `json:"event_id"`
	MediaRef string `json:"media_ref,omitempty"`
}

func (s *Server) submitSetTrick(w http.ResponseWriter, r *http.Request) {
	matchID, err := parseUUIDParam(r, "matchId")
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid matchId")
		return
	}
	playerID, err := playerFromRequest(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "missing or invalid X-Player-ID")
		return
	}
	var req trickActionRequest
	if err := decodeBody(r, &req); err != nil || req.EventID == "" {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "event_id is required")
		return
	}
	res, err := s.matchSvc.SubmitSetTrick(r.Context(), req.EventID, matchID, playerID, req.MediaRef)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

func (s *Server) bailSet(w http.ResponseWriter, r *http.Request) {
	matchID, err := parseUUIDParam(r, "matchId")
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid matchId")
		return
	}
	playerID, err := playerFromRequest(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "missing or invalid X-Player-ID")
		return
	}
	var req trickActionRequest
	if err := decodeBody(r, &req); err != nil || req.EventID == "" {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "event_id is required")
		return
	}
	res, err := s.matchSvc.BailSet(r.Context(), req.EventID, matchID, playerID)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

func (s *Server) submitAttempt(w http.ResponseWriter, r *http.Request) {
	matchID, err := parseUUIDParam(r, "matchId")
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid matchId")
		return
	}
	playerID, err := playerFromRequest(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "missing or invalid X-Player-ID")
		return
	}
	var req trickActionRequest
	if err := decodeBody(r, &req); err != nil || req.EventID == "" {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "event_id is required")
		return
	}
	res, err := s.matchSvc.SubmitAttempt(r.Context(), req.EventID, matchID, playerID, req.MediaRef)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

type judgeRequest struct {
	EventID  string `json:"event_id"`
	Decision string `json:"decision"`
}

func (s *Server) judgeAttempt(w http.ResponseWriter, r *http.Request) {
	matchID, err := parseUUIDParam(r, "matchId")
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid matchId")
		return
	}
	var req judgeRequest
	if err := decodeBody(r, &req); err != nil || req.EventID == "" {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "event_id is required")
		return
	}
	decision := match.JudgeDecision(req.Decision)
	if decision != match.DecisionLanded && decision != match.DecisionMissed {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "decision must be LANDED or MISSED")
		return
	}
	res, err := s.matchSvc.JudgeAttempt(r.Context(), req.EventID, matchID, decision)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

func (s *Server) forfeitMatch(w http.ResponseWriter, r *http.Request) {
	matchID, err := parseUUIDParam(r, "matchId")
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "invalid matchId")
		return
	}
	playerID, err := playerFromRequest(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "missing or invalid X-Player-ID")
		return
	}
	var req trickActionRequest
	if err := decodeBody(r, &req); err != nil || req.EventID == "" {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "event_id is required")
		return
	}
	res, err := s.matchSvc.ForfeitMatch(r.Context(), req.EventID, matchID, playerID)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}
