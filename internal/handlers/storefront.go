package handlers

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/labdeskapp/labdesk/internal/models"
	"github.com/labdeskapp/labdesk/internal/services"
)

func (h *Handlers) ListTests(w http.ResponseWriter, r *http.Request) {
	tests, err := h.catalogService.ListTests(r.Context())
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"tests": tests})
}

func (h *Handlers) ListPackages(w http.ResponseWriter, r *http.Request) {
	packages, err := h.catalogService.ListPackages(r.Context())
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"packages": packages})
}

func (h *Handlers) ListCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.catalogService.ListCategories(r.Context())
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"categories": categories})
}

func (h *Handlers) Checkout(w http.ResponseWriter, r *http.Request) {
	var input services.CheckoutInput
	if err := decodeJSON(r, &input); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.checkout.Checkout(r.Context(), input)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusCreated, result)
}

// trackingView is the public order view. The order number is the lookup
// capability, so internal IDs stay out of the payload.
type trackingView struct {
	OrderNumber   string               `json:"order_number"`
	Status        models.OrderStatus   `json:"status"`
	Items         []models.OrderItem   `json:"items"`
	TotalCents    int                  `json:"total_cents"`
	DiscountCents int                  `json:"discount_cents"`
	FinalCents    int                  `json:"final_cents"`
	PaymentMethod models.PaymentMethod `json:"payment_method"`
	Visit         *trackingVisit       `json:"visit,omitempty"`
	ReportReady   bool                 `json:"report_ready"`
}

type trackingVisit struct {
	ScheduledDate string             `json:"scheduled_date"`
	TimeSlot      string             `json:"time_slot"`
	Status        models.VisitStatus `json:"status"`
}

func (h *Handlers) TrackOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	orderNumber := mux.Vars(r)["number"]

	order, err := h.lifecycle.GetOrderByNumber(ctx, orderNumber)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}

	view := trackingView{
		OrderNumber:   order.OrderNumber,
		Status:        order.Status,
		Items:         order.Items,
		TotalCents:    order.TotalCents,
		DiscountCents: order.DiscountCents,
		FinalCents:    order.FinalCents,
		PaymentMethod: order.PaymentMethod,
		ReportReady:   order.Status == models.StatusReportReady || order.Status == models.StatusCompleted,
	}

	if visit, err := h.visits.GetByOrder(ctx, order.ID); err == nil {
		view.Visit = &trackingVisit{
			ScheduledDate: visit.ScheduledDate.Format("2006-01-02"),
			TimeSlot:      visit.TimeSlot,
			Status:        visit.Status,
		}
	} else if !errors.Is(err, services.ErrNotFound) {
		h.respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, view)
}

func (h *Handlers) DownloadReport(w http.ResponseWriter, r *http.Request) {
	orderNumber := mux.Vars(r)["number"]

	url, err := h.reports.DownloadURL(r.Context(), orderNumber)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"url": url})
}
