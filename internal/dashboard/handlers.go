package dashboard

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/listing-refresher/internal/scheduler"
	"github.com/xkilldash9x/listing-refresher/internal/store"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// envelope is the body of every response: {"success": bool, "message"?: ...}
// plus one payload key.
type envelope map[string]any

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.Stats(r.Context())
	if err != nil {
		s.internalError(w, "stats", err)
		return
	}
	s.respond(w, http.StatusOK, envelope{"success": true, "stats": stats})
}

func (s *Server) handleListings(w http.ResponseWriter, r *http.Request) {
	listings, err := s.store.ListListings(r.Context(), listingsLimit)
	if err != nil {
		s.internalError(w, "listings", err)
		return
	}
	s.respond(w, http.StatusOK, envelope{"success": true, "listings": orEmpty(listings)})
}

func (s *Server) handleOperations(w http.ResponseWriter, r *http.Request) {
	ops, err := s.store.ListOperations(r.Context(), operationsLimit)
	if err != nil {
		s.internalError(w, "operations", err)
		return
	}
	s.respond(w, http.StatusOK, envelope{"success": true, "operations": orEmpty(ops)})
}

func (s *Server) handleProcessListing(w http.ResponseWriter, r *http.Request) {
	itemID := chi.URLParam(r, "itemID")
	if itemID == "" {
		s.respondWithError(w, http.StatusBadRequest, "Item ID required")
		return
	}

	err := s.store.MarkProcessed(r.Context(), itemID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		s.respondWithError(w, http.StatusNotFound, fmt.Sprintf("Listing %s not found", itemID))
		return
	case err != nil:
		s.internalError(w, "process listing", err)
		return
	}
	s.logger.Info("Listing marked processed.", zap.String("item_id", itemID))
	s.respond(w, http.StatusOK, envelope{"success": true, "message": fmt.Sprintf("Processed listing: %s", itemID)})
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	err := s.ctl.Start(s.botCtx)
	if errors.Is(err, scheduler.ErrAlreadyRunning) {
		s.respondWithError(w, http.StatusConflict, "Bot is already running")
		return
	}
	if err != nil {
		s.internalError(w, "start bot", err)
		return
	}
	s.logger.Info("Bot started from dashboard.")
	s.respond(w, http.StatusOK, envelope{"success": true, "message": "Bot started successfully"})
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	s.ctl.Stop()
	s.logger.Info("Bot stopped from dashboard.")
	s.respond(w, http.StatusOK, envelope{"success": true, "message": "Bot stopped successfully"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.respond(w, http.StatusOK, envelope{"success": true, "status": s.ctl.Status()})
}

// -- Responses --

func (s *Server) internalError(w http.ResponseWriter, what string, err error) {
	s.logger.Error("Dashboard request failed.", zap.String("action", what), zap.Error(err))
	s.respondWithError(w, http.StatusInternalServerError, err.Error())
}

func (s *Server) respondWithError(w http.ResponseWriter, status int, message string) {
	s.respond(w, status, envelope{"success": false, "message": message})
}

func (s *Server) respond(w http.ResponseWriter, status int, body envelope) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error("Failed to encode response.", zap.Error(err))
	}
}

// orEmpty keeps empty result sets encoding as [] rather than null.
func orEmpty[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
