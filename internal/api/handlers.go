package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/user/sinergia/internal/game"
	"github.com/user/sinergia/internal/narrative"
	"github.com/user/sinergia/internal/types"
	"go.uber.org/zap"
)

// Handler serves the game over HTTP
type Handler struct {
	registry *Registry
	logger   *zap.Logger
}

// NewHandler creates a handler over registry
func NewHandler(registry *Registry, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{registry: registry, logger: logger}
}

// Routes mounts every game route on r
func (h *Handler) Routes(r chi.Router) {
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("OK"))
	})

	r.Route("/sessions", func(r chi.Router) {
		r.Post("/", h.createSession)
		r.Route("/{session_id}", func(r chi.Router) {
			r.Get("/", h.withSession(h.view))
			r.Delete("/", h.deleteSession)
			r.Post("/start", h.withSession(h.start))
			r.Post("/choose", h.withSession(h.choose))
			r.Post("/choice", h.withSession(h.makeChoice))
			r.Post("/advance", h.withSession(h.advance))
			r.Post("/complete", h.withSession(h.complete))
			r.Post("/reset", h.withSession(h.reset))
			r.Get("/saves", h.withSession(h.listSaves))
			r.Put("/saves/{slot}", h.withSession(h.save))
			r.Post("/saves/{slot}/load", h.withSession(h.load))
			r.Delete("/saves/{slot}", h.withSession(h.deleteSave))
		})
	})
}

type sessionHandler func(w http.ResponseWriter, r *http.Request, session Session)

func (h *Handler) withSession(next sessionHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session, err := h.registry.Get(chi.URLParam(r, "session_id"))
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		next(w, r, session)
	}
}

type createResponse struct {
	ID    string         `json:"id"`
	State game.StateView `json:"state"`
}

func (h *Handler) createSession(w http.ResponseWriter, r *http.Request) {
	id, session, err := h.registry.Create()
	if err != nil {
		h.logger.Error("Failed to create session", zap.Error(err))
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, createResponse{ID: id, State: session.View()})
}

func (h *Handler) deleteSession(w http.ResponseWriter, r *http.Request) {
	if err := h.registry.Delete(chi.URLParam(r, "session_id")); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) view(w http.ResponseWriter, r *http.Request, session Session) {
	writeJSON(w, http.StatusOK, session.View())
}

func (h *Handler) start(w http.ResponseWriter, r *http.Request, session Session) {
	h.respond(w, r, session, session.StartGame(r.Context()))
}

type chooseRequest struct {
	OptionID string `json:"optionId"`
}

func (h *Handler) choose(w http.ResponseWriter, r *http.Request, session Session) {
	var req chooseRequest
	if !decode(w, r, &req) || !required(w, "optionId", req.OptionID) {
		return
	}
	h.respond(w, r, session, session.Choose(r.Context(), req.OptionID))
}

type choiceRequest struct {
	OptionID        string                `json:"optionId"`
	AmabilityImpact types.AmabilityImpact `json:"amabilityImpact"`
}

func (h *Handler) makeChoice(w http.ResponseWriter, r *http.Request, session Session) {
	var req choiceRequest
	if !decode(w, r, &req) || !required(w, "optionId", req.OptionID) {
		return
	}
	h.respond(w, r, session, session.MakeChoice(req.OptionID, req.AmabilityImpact))
}

type advanceRequest struct {
	NodeID string `json:"nodeId"`
}

func (h *Handler) advance(w http.ResponseWriter, r *http.Request, session Session) {
	var req advanceRequest
	if !decode(w, r, &req) || !required(w, "nodeId", req.NodeID) {
		return
	}
	h.respond(w, r, session, session.AdvanceTo(req.NodeID))
}

func (h *Handler) complete(w http.ResponseWriter, r *http.Request, session Session) {
	h.respond(w, r, session, session.CompleteCharacter(r.Context()))
}

func (h *Handler) reset(w http.ResponseWriter, r *http.Request, session Session) {
	h.respond(w, r, session, session.ResetGame())
}

func (h *Handler) listSaves(w http.ResponseWriter, r *http.Request, session Session) {
	writeJSON(w, http.StatusOK, session.ListSaves(r.Context()))
}

func (h *Handler) save(w http.ResponseWriter, r *http.Request, session Session) {
	slot, ok := slotParam(w, r)
	if !ok {
		return
	}
	h.respond(w, r, session, session.SaveGame(r.Context(), slot))
}

func (h *Handler) load(w http.ResponseWriter, r *http.Request, session Session) {
	slot, ok := slotParam(w, r)
	if !ok {
		return
	}
	h.respond(w, r, session, session.LoadGame(r.Context(), slot))
}

func (h *Handler) deleteSave(w http.ResponseWriter, r *http.Request, session Session) {
	slot, ok := slotParam(w, r)
	if !ok {
		return
	}
	if err := session.DeleteSave(r.Context(), slot); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// respond writes the session view on success or the mapped error
func (h *Handler) respond(w http.ResponseWriter, r *http.Request, session Session, err error) {
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, session.View())
}

type errorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	resp := errorResponse{Error: err.Error()}

	var validation *game.ValidationError
	if errors.As(err, &validation) {
		resp.Field = validation.Field
	}

	if status >= http.StatusInternalServerError {
		h.logger.Error("Request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err))
	} else {
		h.logger.Debug("Request rejected",
			zap.String("path", r.URL.Path),
			zap.Int("status", status),
			zap.Error(err))
	}
	writeJSON(w, status, resp)
}

func statusFor(err error) int {
	var validation *game.ValidationError
	var loadErr *narrative.LoadError
	switch {
	case errors.Is(err, ErrSessionNotFound),
		errors.Is(err, game.ErrSlotEmpty),
		errors.Is(err, game.ErrOptionNotFound),
		errors.Is(err, narrative.ErrNodeNotFound):
		return http.StatusNotFound
	case errors.Is(err, game.ErrInvalidSlot):
		return http.StatusBadRequest
	case errors.Is(err, game.ErrNotPlaying),
		errors.Is(err, game.ErrLoadInProgress),
		errors.Is(err, narrative.ErrNoTree):
		return http.StatusConflict
	case errors.Is(err, game.ErrSessionClosed):
		return http.StatusGone
	case errors.Is(err, ErrTooManySessions):
		return http.StatusServiceUnavailable
	case errors.As(err, &validation):
		return http.StatusUnprocessableEntity
	case errors.As(err, &loadErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func slotParam(w http.ResponseWriter, r *http.Request) (int, bool) {
	slot, err := strconv.Atoi(chi.URLParam(r, "slot"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "slot must be a number", Field: "slot"})
		return 0, false
	}
	return slot, true
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Invalid request"})
		return false
	}
	return true
}

func required(w http.ResponseWriter, field, value string) bool {
	if value == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: field + " is required", Field: field})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
