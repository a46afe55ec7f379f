package app

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	apperrors "github.com/questline/eventhub/internal/platform/errors"
	"github.com/questline/eventhub/internal/services/eventhub/domain"
	"github.com/questline/eventhub/internal/services/eventhub/domain/engine"
	"github.com/questline/eventhub/internal/services/eventhub/storage"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const defaultEventListLimit = 50

// Handler exposes the ingest API over HTTP with JSON bodies.
type Handler struct {
	engine *engine.Engine
	store  storage.Store
}

// NewHandler builds the root HTTP handler for the event hub API.
func NewHandler(eng *engine.Engine, store storage.Store) http.Handler {
	h := &Handler{engine: eng, store: store}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/events", h.handleEvent)
	mux.HandleFunc("POST /api/events/bulk", h.handleEventsBulk)
	mux.HandleFunc("GET /api/events", h.handleEventsList)
	mux.HandleFunc("POST /api/quests/start", h.handleQuestStart)
	mux.HandleFunc("GET /api/players/{id}/quest", h.handlePlayerQuest)
	mux.HandleFunc("POST /api/players/{id}/feedback", h.handlePlayerFeedback)
	mux.HandleFunc("DELETE /api/players/{id}", h.handlePlayerReset)
	mux.HandleFunc("GET /api/radios/{id}/playlist", h.handleRadioPlaylist)
	mux.HandleFunc("GET /healthz", h.handleHealthz)
	return traceRequests(mux)
}

// traceRequests opens a span per request so ingest traffic shows up in the
// exported traces alongside the gRPC health checks.
func traceRequests(next http.Handler) http.Handler {
	tracer := otel.Tracer("eventhub/http")
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), r.Method+" "+r.URL.Path,
			trace.WithSpanKind(trace.SpanKindServer))
		span.SetAttributes(
			attribute.String("http.method", r.Method),
			attribute.String("http.target", r.URL.Path),
		)
		next.ServeHTTP(w, r.WithContext(ctx))
		span.End()
	})
}

func (h *Handler) handleEvent(w http.ResponseWriter, r *http.Request) {
	var event domain.Event
	if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
		writeError(w, apperrors.Wrap(apperrors.CodeInvalidArgument, "decode event", err))
		return
	}
	persisted, err := h.engine.HandleEvent(r.Context(), event)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, persisted)
}

func (h *Handler) handleEventsBulk(w http.ResponseWriter, r *http.Request) {
	var events []domain.Event
	if err := json.NewDecoder(r.Body).Decode(&events); err != nil {
		writeError(w, apperrors.Wrap(apperrors.CodeInvalidArgument, "decode events", err))
		return
	}
	persisted, err := h.engine.HandleEvents(r.Context(), events)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, persisted)
}

func (h *Handler) handleEventsList(w http.ResponseWriter, r *http.Request) {
	limit := defaultEventListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(w, apperrors.New(apperrors.CodeInvalidArgument, "limit must be a positive integer"))
			return
		}
		limit = parsed
	}
	events, err := h.store.RecentEvents(r.Context(), limit)
	if err != nil {
		writeError(w, apperrors.Wrap(apperrors.CodeProviderError, "list events", err))
		return
	}
	if events == nil {
		events = []domain.Event{}
	}
	writeJSON(w, http.StatusOK, events)
}

type questStartRequest struct {
	PlayerID string `json:"playerId"`
	QuestID  string `json:"questId"`
}

func (h *Handler) handleQuestStart(w http.ResponseWriter, r *http.Request) {
	var req questStartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperrors.Wrap(apperrors.CodeInvalidArgument, "decode request", err))
		return
	}
	progress, err := h.engine.StartQuest(r.Context(), req.PlayerID, req.QuestID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, progress)
}

func (h *Handler) handlePlayerQuest(w http.ResponseWriter, r *http.Request) {
	progress, err := h.engine.Progress(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, progress)
}

func (h *Handler) handlePlayerFeedback(w http.ResponseWriter, r *http.Request) {
	state, err := h.engine.AddFeedback(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

// handlePlayerReset wipes a player's live state and progress. Administrative
// use only; the catalog roster entry is untouched.
func (h *Handler) handlePlayerReset(w http.ResponseWriter, r *http.Request) {
	playerID := r.PathValue("id")
	if err := h.store.DeleteQuestProgress(r.Context(), playerID); err != nil && !errors.Is(err, storage.ErrNotFound) {
		writeError(w, apperrors.Wrap(apperrors.CodeProviderError, "delete quest progress", err))
		return
	}
	if err := h.store.DeletePlayerState(r.Context(), playerID); err != nil && !errors.Is(err, storage.ErrNotFound) {
		writeError(w, apperrors.Wrap(apperrors.CodeProviderError, "delete player state", err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleRadioPlaylist(w http.ResponseWriter, r *http.Request) {
	radioID := r.PathValue("id")
	playlist, err := h.store.GetRadioPlaylist(r.Context(), radioID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, apperrors.New(apperrors.CodeNotFound, "no playlist assigned"))
			return
		}
		writeError(w, apperrors.Wrap(apperrors.CodeProviderError, "load radio playlist", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"radioId": radioID, "playlistName": playlist})
}

func (h *Handler) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("encode response: %v", err)
	}
}

type errorResponse struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Details map[string]string `json:"details,omitempty"`
}

func writeError(w http.ResponseWriter, err error) {
	code := apperrors.GetCode(err)
	body := errorResponse{Code: string(code), Message: err.Error()}
	var appErr *apperrors.Error
	if errors.As(err, &appErr) {
		body.Message = appErr.Message
		body.Details = appErr.Metadata
	}
	writeJSON(w, code.HTTPStatus(), body)
}
