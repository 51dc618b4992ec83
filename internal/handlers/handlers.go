package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/labdeskapp/labdesk/internal/auth"
	"github.com/labdeskapp/labdesk/internal/cache"
	"github.com/labdeskapp/labdesk/internal/config"
	"github.com/labdeskapp/labdesk/internal/db"
	"github.com/labdeskapp/labdesk/internal/logging"
	"github.com/labdeskapp/labdesk/internal/services"
	"github.com/labdeskapp/labdesk/internal/session"
)

const maxWebhookBodyBytes = 1 << 20 // 1 MB

const maxReportBodyBytes = 25 << 20 // 25 MB

// Handlers provides HTTP request handlers for the storefront API, the
// admin back office, and the collection agent API.
type Handlers struct {
	config         *config.Config
	db             *pgxpool.Pool
	patientStore   *db.PatientStore
	cacheProvider  cache.Provider
	sessionManager *session.Manager
	tokenIssuer    *auth.TokenIssuer
	catalogService *services.CatalogService
	checkout       *services.CheckoutService
	lifecycle      *services.LifecycleService
	visits         *services.VisitService
	reports        *services.ReportService
	admin          *services.AdminService
	logger         *slog.Logger
}

type Dependencies struct {
	Config         *config.Config
	DB             *pgxpool.Pool
	PatientStore   *db.PatientStore
	CacheProvider  cache.Provider
	SessionManager *session.Manager
	TokenIssuer    *auth.TokenIssuer
	CatalogService *services.CatalogService
	Checkout       *services.CheckoutService
	Lifecycle      *services.LifecycleService
	Visits         *services.VisitService
	Reports        *services.ReportService
	Admin          *services.AdminService
	Logger         *slog.Logger
}

func New(deps Dependencies) (*Handlers, error) {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	if deps.Config == nil {
		return nil, fmt.Errorf("handlers dependencies: config is required")
	}
	if deps.DB == nil {
		return nil, fmt.Errorf("handlers dependencies: db is required")
	}
	if deps.PatientStore == nil {
		return nil, fmt.Errorf("handlers dependencies: patientStore is required")
	}
	if deps.CacheProvider == nil {
		return nil, fmt.Errorf("handlers dependencies: cacheProvider is required")
	}
	if deps.SessionManager == nil {
		return nil, fmt.Errorf("handlers dependencies: sessionManager is required")
	}
	if deps.TokenIssuer == nil {
		return nil, fmt.Errorf("handlers dependencies: tokenIssuer is required")
	}
	if deps.CatalogService == nil {
		return nil, fmt.Errorf("handlers dependencies: catalogService is required")
	}
	if deps.Checkout == nil {
		return nil, fmt.Errorf("handlers dependencies: checkout is required")
	}
	if deps.Lifecycle == nil {
		return nil, fmt.Errorf("handlers dependencies: lifecycle is required")
	}
	if deps.Visits == nil {
		return nil, fmt.Errorf("handlers dependencies: visits is required")
	}
	if deps.Reports == nil {
		return nil, fmt.Errorf("handlers dependencies: reports is required")
	}
	if deps.Admin == nil {
		return nil, fmt.Errorf("handlers dependencies: admin is required")
	}

	return &Handlers{
		config:         deps.Config,
		db:             deps.DB,
		patientStore:   deps.PatientStore,
		cacheProvider:  deps.CacheProvider,
		sessionManager: deps.SessionManager,
		tokenIssuer:    deps.TokenIssuer,
		catalogService: deps.CatalogService,
		checkout:       deps.Checkout,
		lifecycle:      deps.Lifecycle,
		visits:         deps.Visits,
		reports:        deps.Reports,
		admin:          deps.Admin,
		logger:         logger.With("component", "handlers"),
	}, nil
}

func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.loggerFromContext(ctx)

	if err := h.db.Ping(ctx); err != nil {
		logger.Error("database health check failed", "error", err)
		http.Error(w, "Database unhealthy", http.StatusServiceUnavailable)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// SessionMiddleware adds session data to the request context.
func (h *Handlers) SessionMiddleware(next http.Handler) http.Handler {
	return h.sessionManager.Middleware(next)
}

func (h *Handlers) RequireAdmin(next http.Handler) http.Handler {
	return h.sessionManager.RequireAuth()(next)
}

func (h *Handlers) loggerFromContext(ctx context.Context) *slog.Logger {
	return logging.FromContext(ctx, h.logger)
}

func respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Default().Error("failed to encode response", "error", err)
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

func decodeJSON(r *http.Request, dst any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

// respondServiceError maps service sentinel errors to HTTP statuses and
// logs anything unexpected before answering 500.
func (h *Handlers) respondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var validationErrs validator.ValidationErrors

	switch {
	case errors.Is(err, services.ErrNotFound):
		respondError(w, http.StatusNotFound, "not found")
	case errors.Is(err, services.ErrUnknownItem):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, services.ErrInvalidTransition):
		respondError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, services.ErrAgentRequired):
		respondError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, services.ErrConflict):
		respondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, services.ErrAlreadyAssigned):
		respondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, services.ErrInvalidOTP):
		respondError(w, http.StatusForbidden, "invalid otp")
	case errors.As(err, &validationErrs):
		respondError(w, http.StatusBadRequest, validationErrs.Error())
	default:
		h.loggerFromContext(r.Context()).Error("request failed", "error", err, "path", r.URL.Path)
		respondError(w, http.StatusInternalServerError, "internal error")
	}
}

func SecureCookiesFromConfig(cfg *config.Config) bool {
	if cfg == nil {
		return false
	}

	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL != "" {
		if parsed, err := url.Parse(baseURL); err == nil {
			return strings.EqualFold(parsed.Scheme, "https")
		}
	}

	return cfg.Port == "443" || cfg.Port == "8443"
}
