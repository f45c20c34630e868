package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/boubou-paradis/photojet-sub000/go/internal/game/engine"
	"github.com/boubou-paradis/photojet-sub000/go/internal/models"
	"github.com/rs/zerolog/log"
)

// Handler exposes the engine's entry points over HTTP: the host action
// surface, answer submission, and the snapshot pull clients resync from.
type Handler struct {
	manager   *engine.Manager
	cm        *ConnectionManager
	forwarder *EventForwarder
	baseCtx   context.Context
}

// NewHandler creates the HTTP handler for the game API.
func NewHandler(baseCtx context.Context, manager *engine.Manager, cm *ConnectionManager, forwarder *EventForwarder) *Handler {
	return &Handler{
		manager:   manager,
		cm:        cm,
		forwarder: forwarder,
		baseCtx:   baseCtx,
	}
}

// RegisterRoutes registers the game API routes.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/sessions", h.handleStartSession)
	mux.HandleFunc("POST /api/sessions/{code}/resume", h.handleResumeSession)
	mux.HandleFunc("GET /api/sessions/{code}/snapshot", h.handleSnapshot)
	mux.HandleFunc("GET /api/sessions/{code}/leaderboard", h.handleLeaderboard)
	mux.HandleFunc("POST /api/sessions/{code}/join", h.handleJoin)
	mux.HandleFunc("POST /api/sessions/{code}/answers", h.handleSubmit)
	mux.HandleFunc("POST /api/sessions/{code}/actions/{action}", h.handleHostAction)
	mux.HandleFunc("GET /ws/sessions/{code}", h.handleWebSocket)
}

type startSessionRequest struct {
	GameType models.GameType `json:"game_type"`
	Rounds   []models.Round  `json:"rounds"`
}

type startSessionResponse struct {
	Code     string           `json:"code"`
	Snapshot *engine.Snapshot `json:"snapshot"`
}

func (h *Handler) handleStartSession(w http.ResponseWriter, r *http.Request) {
	var req startSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "malformed request body")
		return
	}

	session, err := h.manager.StartSession(r.Context(), req.GameType, req.Rounds)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, startSessionResponse{
		Code:     session.Code(),
		Snapshot: session.Snapshot(),
	})
}

func (h *Handler) handleResumeSession(w http.ResponseWriter, r *http.Request) {
	code := r.PathValue("code")
	session, err := h.manager.ResumeSession(r.Context(), code)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session.Snapshot())
}

func (h *Handler) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	session, err := h.manager.Get(r.PathValue("code"))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session.Snapshot())
}

func (h *Handler) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	session, err := h.manager.Get(r.PathValue("code"))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session.Rank())
}

type joinRequest struct {
	ParticipantID string `json:"participant_id"`
	DisplayName   string `json:"display_name"`
}

func (h *Handler) handleJoin(w http.ResponseWriter, r *http.Request) {
	session, err := h.manager.Get(r.PathValue("code"))
	if err != nil {
		writeEngineError(w, err)
		return
	}

	var req joinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "malformed request body")
		return
	}
	if req.ParticipantID == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "participant_id is required")
		return
	}

	participant := session.Join(req.ParticipantID, req.DisplayName)
	writeJSON(w, http.StatusOK, participant)
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	session, err := h.manager.Get(r.PathValue("code"))
	if err != nil {
		writeEngineError(w, err)
		return
	}

	var req engine.SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "malformed request body")
		return
	}

	outcome, err := session.Submit(r.Context(), req)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, outcome)
}

func (h *Handler) handleHostAction(w http.ResponseWriter, r *http.Request) {
	code := r.PathValue("code")
	session, err := h.manager.Get(code)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	action := r.PathValue("action")
	switch action {
	case "open_round":
		err = session.OpenRound(r.Context())
	case "close_round":
		err = session.CloseRound(r.Context())
	case "show_leaderboard":
		err = session.ShowLeaderboard(r.Context())
	case "advance":
		err = session.AdvanceOrFinish(r.Context())
	case "exit":
		err = session.Exit(r.Context())
	default:
		writeError(w, http.StatusNotFound, "unknown_action", "unknown host action")
		return
	}

	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session.Snapshot())
}

func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	code := r.PathValue("code")
	if _, err := h.manager.Get(code); err != nil {
		writeEngineError(w, err)
		return
	}

	// Forwarding must be live before the socket registers so no event gap
	// opens between subscribe and upgrade.
	if err := h.forwarder.EnsureSession(h.baseCtx, code); err != nil {
		log.Error().Err(err).Str("session_code", code).Msg("failed to start event forwarding")
		writeError(w, http.StatusInternalServerError, "subscribe_failed", "could not subscribe to session events")
		return
	}

	participantID := r.URL.Query().Get("participant_id")
	if err := h.cm.UpgradeConnection(w, r, participantID, code); err != nil {
		// Upgrade already wrote the HTTP error.
		return
	}
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Code: code, Message: message})
}

// writeEngineError maps engine errors onto the HTTP surface. Submission
// rejections are expected and frequent; they come back as structured codes
// the client can render as "too late" or "already answered".
func writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, engine.ErrSessionNotFound):
		writeError(w, http.StatusNotFound, "session_not_found", err.Error())
	case errors.Is(err, engine.ErrStaleRound):
		writeError(w, http.StatusUnprocessableEntity, "stale_round", err.Error())
	case errors.Is(err, engine.ErrWindowClosed):
		writeError(w, http.StatusUnprocessableEntity, "window_closed", err.Error())
	case errors.Is(err, engine.ErrDuplicateAnswer):
		writeError(w, http.StatusUnprocessableEntity, "duplicate_answer", err.Error())
	case errors.Is(err, engine.ErrInvalidChoice):
		writeError(w, http.StatusUnprocessableEntity, "invalid_choice", err.Error())
	case errors.Is(err, engine.ErrUnknownParticipant):
		writeError(w, http.StatusForbidden, "unknown_participant", err.Error())
	case engine.IsPhaseViolation(err):
		writeError(w, http.StatusConflict, "phase_violation", err.Error())
	default:
		log.Error().Err(err).Msg("request failed")
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
	}
}
