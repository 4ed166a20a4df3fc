package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	appBattle "github.com/skate-sesh/skate-sesh/internal/application/battle"
	appMatch "github.com/skate-sesh/skate-sesh/internal/application/match"
	"github.com/skate-sesh/skate-sesh/internal/domain/battle"
	"github.com/skate-sesh/skate-sesh/internal/domain/match"
)

// Server holds dependencies for HTTP handlers.
type Server struct {
	matchSvc  *appMatch.Service
	battleSvc *appBattle.Service
	wsHandler http.Handler
}

func NewServer(matchSvc *appMatch.Service, battleSvc *appBattle.Service, wsHandler http.Handler) *Server {
	return &Server{
		matchSvc:  matchSvc,
		battleSvc: battleSvc,
		wsHandler: wsHandler,
	}
}

// Router builds the HTTP router.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Route("/v1", func(r chi.Router) {
		r.Route("/matches", func(r chi.Router) {
			r.Post("/find", s.findOrCreateMatch)
			r.Get("/{matchId}", s.getMatch)
			r.Post("/{matchId}/set", s.submitSetTrick)
			r.Post("/{matchId}/bail", s.bailSet)
			r.Post("/{matchId}/attempt", s.submitAttempt)
			r.Post("/{matchId}/judge", s.judgeAttempt)
			r.Post("/{matchId}/forfeit", s.forfeitMatch)
		})
		r.Post("/challenges/{challengeId}/accept", s.acceptChallenge)

		r.Route("/battles", func(r chi.Router) {
			r.Post("/{battleId}/voting", s.initializeVoting)
			r.Get("/{battleId}/voting", s.getBattleVoteState)
			r.Post("/{battleId}/votes", s.castVote)
		})
	})

	r.Get("/ws", s.wsHandler.ServeHTTP)

	return r
}

// Helpers
func respondJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, map[string]interface{}{
		"error":   code,
		"message": message,
	})
}

// respondDomainError maps the error taxonomy onto HTTP statuses: validation
// errors are 400, state conflicts 409, unknown rows 404.
func respondDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, match.ErrNotFound), errors.Is(err, battle.ErrNotFound):
		respondError(w, http.StatusNotFound, "NOT_FOUND", err.Error())
	case errors.Is(err, match.ErrNotParticipant),
		errors.Is(err, match.ErrNotYourTurn),
		errors.Is(err, battle.ErrNotParticipant),
		errors.Is(err, battle.ErrInvalidVote):
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", err.Error())
	case errors.Is(err, match.ErrTerminal),
		errors.Is(err, match.ErrWrongPhase),
		errors.Is(err, match.ErrNotWaiting),
		errors.Is(err, battle.ErrVotingClosed):
		respondError(w, http.StatusConflict, "STATE_CONFLICT", err.Error())
	default:
		respondError(w, http.StatusInternalServerError, "INTERNAL", "internal error")
	}
}

func parseUUIDParam(r *http.Request, key string) (uuid.UUID, error) {
	val := chi.URLParam(r, key)
	return uuid.Parse(val)
}

func decodeBody(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// playerFromRequest reads the caller's player id. Session issuance lives in
// an upstream auth service; by the time requests land here the id header is
// trusted.
func playerFromRequest(r *http.Request) (uuid.UUID, error) {
	return uuid.Parse(r.Header.Get("X-Player-ID"))
}
