package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/rcliao/glucomem/internal/consolidate"
	"github.com/rcliao/glucomem/internal/model"
	"github.com/rcliao/glucomem/internal/recall"
	"github.com/rcliao/glucomem/internal/store"
)

type turnRequest struct {
	RawAssistantText string     `json:"rawAssistantText"`
	UserMessage      string     `json:"userMessage"`
	Now              *time.Time `json:"now,omitempty"`
	SessionID        string     `json:"sessionId,omitempty"`
}

// ProcessTurn handles POST /v1/users/{userId}/turns. Consolidation problems
// are reported in the body; the status is 200 whenever the request was valid.
func (h *Handler) ProcessTurn(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["userId"]

	var req turnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteBadRequest(w, "Invalid JSON")
		return
	}
	if req.RawAssistantText == "" && req.UserMessage == "" {
		WriteBadRequest(w, "rawAssistantText or userMessage is required")
		return
	}

	out := h.consolidator.ProcessTurn(r.Context(), consolidate.Input{
		RawAssistantText: req.RawAssistantText,
		UserMessage:      req.UserMessage,
		UserID:           userID,
		Now:              h.clock(req.Now),
		SessionID:        req.SessionID,
	})
	WriteJSON(w, http.StatusOK, out)
}

// GetContext handles GET /v1/users/{userId}/context. ?format=text returns the
// rendered prompt section instead of JSON.
func (h *Handler) GetContext(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["userId"]
	q := r.URL.Query()

	p := recall.DefaultParams(userID)
	if v := q.Get("events"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			WriteBadRequest(w, "events must be a positive integer")
			return
		}
		p.Events = n
	}

	b, err := h.assembler.Assemble(r.Context(), p)
	if err != nil {
		h.log.Error().Err(err).Str("user_id", userID).Msg("assemble context")
		WriteInternalError(w, "failed to assemble context")
		return
	}

	if q.Get("format") == "text" {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(h.assembler.Render(b)))
		return
	}
	WriteJSON(w, http.StatusOK, b)
}

// ListFeedback handles GET /v1/users/{userId}/feedback. ?status=pending or
// ?status=resolved filters the list.
func (h *Handler) ListFeedback(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["userId"]
	p := store.ListFeedbackParams{UserID: userID}
	switch r.URL.Query().Get("status") {
	case "":
	case "pending":
		p.PendingOnly = true
	case "resolved":
		p.ResolvedOnly = true
	default:
		WriteBadRequest(w, "status must be pending or resolved")
		return
	}

	records, err := h.store.ListFeedback(r.Context(), p)
	if err != nil {
		h.log.Error().Err(err).Str("user_id", userID).Msg("list feedback")
		WriteInternalError(w, "failed to list feedback")
		return
	}
	if records == nil {
		records = []model.FeedbackRecord{}
	}
	WriteJSON(w, http.StatusOK, records)
}

type feedbackRequest struct {
	ActionTaken        *bool    `json:"actionTaken"`
	OutcomeDescription string   `json:"outcomeDescription"`
	BloodSugarBefore   *float64 `json:"bloodSugarBefore,omitempty"`
	BloodSugarAfter    *float64 `json:"bloodSugarAfter,omitempty"`
	EffectivenessScore *int     `json:"effectivenessScore,omitempty"`
}

// ResolveFeedback handles POST /v1/users/{userId}/feedback/{feedbackId}.
func (h *Handler) ResolveFeedback(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	var req feedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteBadRequest(w, "Invalid JSON")
		return
	}
	if req.ActionTaken == nil {
		WriteBadRequest(w, "actionTaken is required")
		return
	}

	params := store.ResolveFeedbackParams{
		UserID:             vars["userId"],
		FeedbackID:         vars["feedbackId"],
		ActionTaken:        *req.ActionTaken,
		OutcomeDescription: req.OutcomeDescription,
		BloodSugarBefore:   req.BloodSugarBefore,
		BloodSugarAfter:    req.BloodSugarAfter,
		EffectivenessScore: req.EffectivenessScore,
		At:                 h.clock(nil),
	}
	if err := params.Validate(); err != nil {
		WriteBadRequest(w, err.Error())
		return
	}

	f, err := h.store.ResolveFeedback(r.Context(), params)
	switch {
	case errors.Is(err, model.ErrNotFound):
		WriteNotFound(w, "feedback not found")
	case errors.Is(err, model.ErrConflict):
		WriteError(w, http.StatusConflict, "feedback already resolved")
	case errors.Is(err, model.ErrValidation):
		WriteBadRequest(w, err.Error())
	case err != nil:
		h.log.Error().Err(err).Str("feedback_id", params.FeedbackID).Msg("resolve feedback")
		WriteInternalError(w, "failed to resolve feedback")
	default:
		WriteJSON(w, http.StatusOK, f)
	}
}

// Health handles GET /healthz.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "UP",
		"timestamp": h.now().UTC().Format(time.RFC3339),
	})
}
