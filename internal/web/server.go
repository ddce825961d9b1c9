// Package web exposes the study engine to the browser client as a small
// JSON API. Handlers translate HTTP into manager calls and error
// sentinels into status codes; no scheduling logic lives here.
package web

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/colmryan/notedeck/internal/domain"
	"github.com/colmryan/notedeck/internal/session"
	"github.com/colmryan/notedeck/internal/store"
	"github.com/colmryan/notedeck/internal/syncer"
)

// Server holds the dependencies for the HTTP server.
type Server struct {
	mgr    *session.Manager
	coord  *syncer.Coordinator
	router *http.ServeMux
}

// NewServer creates and configures a new server. coord may be nil when
// remote sync is not configured.
func NewServer(mgr *session.Manager, coord *syncer.Coordinator) *Server {
	s := &Server{
		mgr:    mgr,
		coord:  coord,
		router: http.NewServeMux(),
	}
	s.routes()
	return s
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	s.router.HandleFunc("GET /counts", s.handleGetCounts())
	s.router.HandleFunc("GET /decks", s.handleGetDecks())
	s.router.HandleFunc("GET /stats", s.handleGetStats())

	s.router.HandleFunc("GET /session", s.handleGetSession())
	s.router.HandleFunc("POST /session", s.handleStartSession())
	s.router.HandleFunc("POST /session/resume", s.handleResumeSession())
	s.router.HandleFunc("DELETE /session", s.handleClearSession())
	s.router.HandleFunc("GET /session/card", s.handleGetCard())
	s.router.HandleFunc("POST /session/reveal", s.handleReveal())
	s.router.HandleFunc("POST /session/rate", s.handleRate())
	s.router.HandleFunc("POST /session/exit", s.handleExit())

	s.router.HandleFunc("POST /sync", s.handleSync())
	s.router.HandleFunc("POST /decks/{deckID}/cards", s.handleCreateCard())
	s.router.HandleFunc("PATCH /decks/{deckID}/cards/{cardID}", s.handleUpdateCard())
	s.router.HandleFunc("POST /decks/{deckID}/tags", s.handleTagCards())
}

func (s *Server) handleGetCounts() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		global, perDeck := s.mgr.DueCounts()
		writeJSON(w, http.StatusOK, map[string]any{
			"global":  global,
			"perDeck": perDeck,
		})
	}
}

func (s *Server) handleGetDecks() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, s.mgr.DeckSummaries())
	}
}

func (s *Server) handleGetStats() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, s.mgr.Statistics())
	}
}

func (s *Server) handleGetSession() http.HandlerFunc {
	// Status plus the offline-queue signal: how many pushes are waiting
	// for connectivity.
	type response struct {
		session.Status
		PendingPushes int `json:"pendingPushes,omitempty"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		resp := response{Status: s.mgr.Status()}
		if s.coord != nil {
			n, err := s.coord.PendingCount()
			if err != nil {
				slog.Warn("Failed to read push queue depth", "error", err)
			}
			resp.PendingPushes = n
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// startResponse reports whether a session was created; a queue with
// nothing to study is a normal outcome, not an error.
type startResponse struct {
	Started bool            `json:"started"`
	Reason  string          `json:"reason,omitempty"`
	Status  *session.Status `json:"status,omitempty"`
}

func (s *Server) handleStartSession() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var opts session.Options
		if err := json.NewDecoder(r.Body).Decode(&opts); err != nil {
			writeError(w, http.StatusBadRequest, "invalid session options")
			return
		}

		status, err := s.mgr.Start(opts)
		switch {
		case errors.Is(err, session.ErrNothingToStudy):
			writeJSON(w, http.StatusOK, startResponse{Started: false, Reason: "nothing to study"})
		case errors.Is(err, session.ErrSessionActive):
			writeError(w, http.StatusConflict, "a session is already active")
		case err != nil:
			s.internalError(w, "starting session", err)
		default:
			writeJSON(w, http.StatusCreated, startResponse{Started: true, Status: &status})
		}
	}
}

func (s *Server) handleResumeSession() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status, err := s.mgr.Resume()
		switch {
		case errors.Is(err, session.ErrNotResumable):
			writeError(w, http.StatusConflict, "no session to resume")
		case err != nil:
			s.internalError(w, "resuming session", err)
		default:
			writeJSON(w, http.StatusOK, status)
		}
	}
}

func (s *Server) handleClearSession() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.mgr.Clear(); err != nil {
			s.internalError(w, "clearing session", err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// cardResponse carries either the presented card or, once the queue is
// exhausted, the completion summary.
type cardResponse struct {
	Done    bool             `json:"done"`
	Card    *session.Current `json:"card,omitempty"`
	Summary *session.Summary `json:"summary,omitempty"`
}

func (s *Server) handleGetCard() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cur, summary, err := s.mgr.Current()
		if err != nil {
			s.sessionError(w, "presenting card", err)
			return
		}
		writeJSON(w, http.StatusOK, cardResponse{Done: cur == nil, Card: cur, Summary: summary})
	}
}

func (s *Server) handleReveal() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cur, err := s.mgr.Reveal()
		if err != nil {
			s.sessionError(w, "revealing answer", err)
			return
		}
		writeJSON(w, http.StatusOK, cur)
	}
}

func (s *Server) handleRate() http.HandlerFunc {
	type request struct {
		Rating string `json:"rating"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		var req request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid rating payload")
			return
		}
		rating, err := domain.ParseRating(req.Rating)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		next, summary, err := s.mgr.ApplyRating(rating)
		if err != nil {
			s.sessionError(w, "applying rating", err)
			return
		}
		writeJSON(w, http.StatusOK, cardResponse{Done: next == nil, Card: next, Summary: summary})
	}
}

func (s *Server) handleExit() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.mgr.Exit(); err != nil {
			s.sessionError(w, "exiting session", err)
			return
		}
		writeJSON(w, http.StatusOK, s.mgr.Status())
	}
}

func (s *Server) handleSync() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.coord == nil {
			writeError(w, http.StatusServiceUnavailable, "sync is not configured")
			return
		}
		res, err := s.coord.Sync(r.Context())
		switch {
		case errors.Is(err, session.ErrSyncBusy):
			writeError(w, http.StatusConflict, "sync refused while a session is active")
		case err != nil:
			// Transient: the client keeps its last-known-good data.
			slog.Warn("Sync failed", "error", err)
			writeError(w, http.StatusBadGateway, "sync failed, showing cached decks")
		default:
			writeJSON(w, http.StatusOK, res)
		}
	}
}

func (s *Server) handleCreateCard() http.HandlerFunc {
	type request struct {
		Question string   `json:"question"`
		Answer   string   `json:"answer"`
		Tags     []string `json:"tags"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		var req request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid card payload")
			return
		}

		card, err := s.mgr.CreateCard(r.PathValue("deckID"), req.Question, req.Answer, req.Tags)
		switch {
		case errors.Is(err, store.ErrDeckNotFound):
			writeError(w, http.StatusNotFound, "deck not found")
		case err != nil:
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			writeJSON(w, http.StatusCreated, card)
		}
	}
}

func (s *Server) handleUpdateCard() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var upd store.CardUpdate
		if err := json.NewDecoder(r.Body).Decode(&upd); err != nil {
			writeError(w, http.StatusBadRequest, "invalid card payload")
			return
		}

		card, err := s.mgr.UpdateCard(r.PathValue("deckID"), r.PathValue("cardID"), upd)
		switch {
		case errors.Is(err, store.ErrDeckNotFound), errors.Is(err, store.ErrCardNotFound):
			writeError(w, http.StatusNotFound, err.Error())
		case err != nil:
			s.internalError(w, "updating card", err)
		default:
			writeJSON(w, http.StatusOK, card)
		}
	}
}

func (s *Server) handleTagCards() http.HandlerFunc {
	type request struct {
		CardIDs []string `json:"cardIds"`
		Tags    []string `json:"tags"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		var req request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid tag payload")
			return
		}

		err := s.mgr.TagCards(r.PathValue("deckID"), req.CardIDs, req.Tags)
		switch {
		case errors.Is(err, store.ErrDeckNotFound), errors.Is(err, store.ErrCardNotFound):
			writeError(w, http.StatusNotFound, err.Error())
		case err != nil:
			s.internalError(w, "tagging cards", err)
		default:
			w.WriteHeader(http.StatusNoContent)
		}
	}
}

// sessionError maps session sentinels onto status codes: lifecycle
// violations are 409, everything else is a server fault.
func (s *Server) sessionError(w http.ResponseWriter, action string, err error) {
	if errors.Is(err, session.ErrNoActiveSession) {
		writeError(w, http.StatusConflict, "no active session")
		return
	}
	s.internalError(w, action, err)
}

func (s *Server) internalError(w http.ResponseWriter, action string, err error) {
	slog.Error("Request failed", "action", action, "error", err)
	writeError(w, http.StatusInternalServerError, "internal server error")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
