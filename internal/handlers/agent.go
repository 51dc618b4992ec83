package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/labdeskapp/labdesk/internal/services"
)

type agentContextKey string

const agentIDContextKey agentContextKey = "agent_id"

// RequireAgent authenticates the collection agent API with the bearer
// token issued from the admin panel.
func (h *Handlers) RequireAgent(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := strings.TrimSpace(r.Header.Get("Authorization"))
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			respondError(w, http.StatusUnauthorized, "authentication required")
			return
		}

		agentID, err := h.tokenIssuer.VerifyAgentToken(strings.TrimSpace(token))
		if err != nil {
			h.loggerFromContext(r.Context()).Warn("agent token rejected", "error", err, "remote_ip", clientIP(r))
			respondError(w, http.StatusUnauthorized, "invalid token")
			return
		}

		ctx := context.WithValue(r.Context(), agentIDContextKey, agentID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func agentIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	agentID, ok := ctx.Value(agentIDContextKey).(uuid.UUID)
	return agentID, ok
}

func (h *Handlers) AgentListVisits(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	agentID, ok := agentIDFromContext(ctx)
	if !ok {
		respondError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	visits, err := h.visits.ListForAgent(ctx, agentID)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{"visits": visits})
}

// AgentUpdateVisitStatus moves one of the agent's own visits. Starting
// a visit requires the patient's OTP; completing it marks the sample
// collected on the order.
func (h *Handlers) AgentUpdateVisitStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	agentID, ok := agentIDFromContext(ctx)
	if !ok {
		respondError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	visitID, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid visit id")
		return
	}

	var input visitStatusInput
	if err := decodeJSON(r, &input); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	visit, err := h.visits.GetByID(ctx, visitID)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	if visit.AgentID == nil || *visit.AgentID != agentID {
		respondError(w, http.StatusNotFound, "not found")
		return
	}

	updated, err := h.visits.UpdateStatus(ctx, visitID, services.VisitStatusInput{
		Target: input.Status,
		OTP:    input.OTP,
	})
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{"visit": updated})
}
