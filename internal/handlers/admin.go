package handlers

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/labdeskapp/labdesk/internal/auth"
	"github.com/labdeskapp/labdesk/internal/db"
	"github.com/labdeskapp/labdesk/internal/models"
	"github.com/labdeskapp/labdesk/internal/observability"
	"github.com/labdeskapp/labdesk/internal/services"
	"github.com/labdeskapp/labdesk/internal/session"
)

type adminLoginInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handlers) AdminLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.loggerFromContext(ctx)
	meter := observability.MeterFromContext(ctx)

	var input adminLoginInput
	if err := decodeJSON(r, &input); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	if !auth.CheckAdminCredentials(input.Email, input.Password, h.config.AdminEmail, h.config.AdminPassword) {
		meter.Count("admin.login.failed", 1)
		logger.Warn("admin login rejected", "email", input.Email, "remote_ip", clientIP(r))
		respondError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	if _, err := h.sessionManager.CreateSession(ctx, w, &session.Data{
		AdminEmail: input.Email,
		CreatedAt:  time.Now().Unix(),
	}); err != nil {
		logger.Error("failed to create session", "error", err)
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}

	meter.Count("admin.login.succeeded", 1)
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handlers) AdminLogout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := h.sessionManager.DestroySession(ctx, w, r); err != nil {
		h.loggerFromContext(ctx).Warn("failed to destroy session", "error", err)
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handlers) AdminMe(w http.ResponseWriter, r *http.Request) {
	data := session.GetSessionFromContext(r.Context())
	if data == nil {
		respondError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"email": data.AdminEmail})
}

func (h *Handlers) AdminListOrders(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := services.OrderFilter{Status: query.Get("status")}
	if limit, err := strconv.Atoi(query.Get("limit")); err == nil {
		filter.Limit = limit
	}
	if offset, err := strconv.Atoi(query.Get("offset")); err == nil {
		filter.Offset = offset
	}

	orders, err := h.admin.ListOrders(r.Context(), filter)
	if err != nil {
		if errors.Is(err, services.ErrNotFound) || errors.Is(err, services.ErrInvalidTransition) {
			h.respondServiceError(w, r, err)
			return
		}
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{"orders": orders})
}

func (h *Handlers) AdminGetOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	order, err := h.lifecycle.GetOrderByNumber(ctx, mux.Vars(r)["number"])
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}

	body := map[string]any{"order": order}
	if visit, err := h.visits.GetByOrder(ctx, order.ID); err == nil {
		body["visit"] = visit
	}

	respondJSON(w, http.StatusOK, body)
}

type orderStatusInput struct {
	Status models.OrderStatus `json:"status"`
}

func (h *Handlers) AdminTransitionOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var input orderStatusInput
	if err := decodeJSON(r, &input); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	order, err := h.lifecycle.GetOrderByNumber(ctx, mux.Vars(r)["number"])
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}

	updated, err := h.lifecycle.Transition(ctx, order.ID, input.Status)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{"order": updated})
}

type scheduleVisitInput struct {
	OrderNumber   string `json:"order_number"`
	ScheduledDate string `json:"scheduled_date"`
	TimeSlot      string `json:"time_slot"`
	Notes         string `json:"notes"`
}

func (h *Handlers) AdminScheduleVisit(w http.ResponseWriter, r *http.Request) {
	var input scheduleVisitInput
	if err := decodeJSON(r, &input); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	scheduledDate, err := time.Parse("2006-01-02", input.ScheduledDate)
	if err != nil {
		respondError(w, http.StatusBadRequest, "scheduled_date must be YYYY-MM-DD")
		return
	}

	visit, err := h.visits.Schedule(r.Context(), services.ScheduleInput{
		OrderNumber:   input.OrderNumber,
		ScheduledDate: scheduledDate,
		TimeSlot:      input.TimeSlot,
		Notes:         input.Notes,
	})
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusCreated, map[string]any{"visit": visit})
}

type assignAgentInput struct {
	AgentID uuid.UUID `json:"agent_id"`
	Notes   string    `json:"notes,omitempty"`
}

func (h *Handlers) AdminAssignAgent(w http.ResponseWriter, r *http.Request) {
	visitID, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid visit id")
		return
	}

	var input assignAgentInput
	if err := decodeJSON(r, &input); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	visit, err := h.visits.AssignAgent(r.Context(), visitID, input.AgentID, input.Notes)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{"visit": visit})
}

type visitStatusInput struct {
	Status models.VisitStatus `json:"status"`
	OTP    string             `json:"otp,omitempty"`
}

func (h *Handlers) AdminUpdateVisitStatus(w http.ResponseWriter, r *http.Request) {
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

	visit, err := h.visits.UpdateStatus(r.Context(), visitID, services.VisitStatusInput{
		Target: input.Status,
		OTP:    input.OTP,
	})
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{"visit": visit})
}

func (h *Handlers) AdminListAgents(w http.ResponseWriter, r *http.Request) {
	agents, err := h.admin.ListAgents(r.Context())
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"agents": agents})
}

// AdminIssueAgentToken mints the bearer token an agent's device uses
// against the agent API. Tokens are short-lived; reissue as needed.
func (h *Handlers) AdminIssueAgentToken(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	agentID, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid agent id")
		return
	}

	agent, err := h.patientStore.GetByID(ctx, agentID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			respondError(w, http.StatusNotFound, "not found")
			return
		}
		h.respondServiceError(w, r, err)
		return
	}
	if agent.Role != models.RoleAgent {
		respondError(w, http.StatusNotFound, "not found")
		return
	}

	token, err := h.tokenIssuer.IssueAgentToken(agent.ID)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}

	h.loggerFromContext(ctx).Info("agent token issued", "agent_id", agent.ID)
	respondJSON(w, http.StatusOK, map[string]string{"token": token})
}

func (h *Handlers) AdminListTests(w http.ResponseWriter, r *http.Request) {
	tests, err := h.admin.ListAllTests(r.Context())
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"tests": tests})
}

func (h *Handlers) AdminListPackages(w http.ResponseWriter, r *http.Request) {
	packages, err := h.admin.ListAllPackages(r.Context())
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"packages": packages})
}

func (h *Handlers) AdminSaveTest(w http.ResponseWriter, r *http.Request) {
	var test models.LabTest
	if err := decodeJSON(r, &test); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	test.Code = mux.Vars(r)["code"]

	if err := h.admin.SaveTest(r.Context(), &test); err != nil {
		if errors.Is(err, services.ErrNotFound) {
			h.respondServiceError(w, r, err)
			return
		}
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{"test": test})
}

func (h *Handlers) AdminSavePackage(w http.ResponseWriter, r *http.Request) {
	var pkg models.HealthPackage
	if err := decodeJSON(r, &pkg); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	pkg.Code = mux.Vars(r)["code"]

	if err := h.admin.SavePackage(r.Context(), &pkg); err != nil {
		if errors.Is(err, services.ErrNotFound) {
			h.respondServiceError(w, r, err)
			return
		}
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{"package": pkg})
}

type activeInput struct {
	Active bool `json:"active"`
}

func (h *Handlers) AdminSetTestActive(w http.ResponseWriter, r *http.Request) {
	var input activeInput
	if err := decodeJSON(r, &input); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.admin.SetTestActive(r.Context(), mux.Vars(r)["code"], input.Active); err != nil {
		h.respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handlers) AdminSetPackageActive(w http.ResponseWriter, r *http.Request) {
	var input activeInput
	if err := decodeJSON(r, &input); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.admin.SetPackageActive(r.Context(), mux.Vars(r)["code"], input.Active); err != nil {
		h.respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// AdminImportCatalog replaces catalog entries from a YAML document in
// the request body.
func (h *Handlers) AdminImportCatalog(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxWebhookBodyBytes)
	content, err := io.ReadAll(r.Body)
	if err != nil {
		respondError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	imported, err := h.admin.ImportCatalog(r.Context(), content)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"categories": len(imported.Categories),
		"tests":      len(imported.Tests),
		"packages":   len(imported.Packages),
	})
}

// AdminUploadReport accepts the report file as a multipart upload and
// attaches it to the order.
func (h *Handlers) AdminUploadReport(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxReportBodyBytes)
	if err := r.ParseMultipartForm(maxReportBodyBytes); err != nil {
		respondError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		respondError(w, http.StatusBadRequest, "file field is required")
		return
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		respondError(w, http.StatusBadRequest, "failed to read file")
		return
	}

	uploadedBy := ""
	if data := session.GetSessionFromContext(r.Context()); data != nil {
		uploadedBy = data.AdminEmail
	}

	report, err := h.reports.Upload(r.Context(), services.UploadReportInput{
		OrderNumber: mux.Vars(r)["number"],
		FileName:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Content:     content,
		UploadedBy:  uploadedBy,
	})
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusCreated, map[string]any{"report": report})
}
