package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/labdeskapp/labdesk/internal/config"
	"github.com/labdeskapp/labdesk/internal/handlers"
)

type Server struct {
	cfg        *config.Config
	logger     *slog.Logger
	handlers   *handlers.Handlers
	httpServer *http.Server
}

func New(cfg *config.Config, logger *slog.Logger, h *handlers.Handlers) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if h == nil {
		return nil, fmt.Errorf("handlers are required")
	}

	s := &Server{
		cfg:      cfg,
		logger:   logger,
		handlers: h,
	}

	router := s.buildRouter()
	s.httpServer = &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	return s, nil
}

func (s *Server) Run() error {
	s.logger.Info("server starting", "port", s.cfg.Port)

	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) Close(ctx context.Context) error {
	if s == nil || s.httpServer == nil {
		return nil
	}

	s.logger.Info("server shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return err
	}
	s.logger.Info("server stopped")
	return nil
}

func (s *Server) buildRouter() *mux.Router {
	h := s.handlers

	r := mux.NewRouter()
	r.Use(h.RequestLogger)
	r.Use(h.SecurityHeaders)
	r.HandleFunc("/health", h.Health).Methods("GET").Name("health")
	r.HandleFunc("/webhooks/stripe", h.StripeWebhook).Methods("POST").Name("webhooks.stripe")

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error": "not found"}`))
	})

	// Public storefront API
	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/catalog/tests", h.ListTests).Methods("GET").Name("api.catalog.tests")
	api.HandleFunc("/catalog/packages", h.ListPackages).Methods("GET").Name("api.catalog.packages")
	api.HandleFunc("/catalog/categories", h.ListCategories).Methods("GET").Name("api.catalog.categories")
	api.HandleFunc("/checkout", h.Checkout).Methods("POST").Name("api.checkout")
	api.HandleFunc("/orders/{number}", h.TrackOrder).Methods("GET").Name("api.orders.track")
	api.HandleFunc("/orders/{number}/report", h.DownloadReport).Methods("GET").Name("api.orders.report")

	// Collection agent API - bearer token auth
	agent := api.PathPrefix("/agent").Subrouter()
	agent.Use(h.RequireAgent)
	agent.HandleFunc("/visits", h.AgentListVisits).Methods("GET").Name("agent.visits")
	agent.HandleFunc("/visits/{id}/status", h.AgentUpdateVisitStatus).Methods("POST").Name("agent.visits.status")

	// Public admin routes
	loginRouter := r.PathPrefix("/admin/login").Subrouter()
	loginRouter.Use(h.SessionMiddleware)
	loginRouter.Use(h.RequireSameOrigin)
	loginRouter.HandleFunc("", h.AdminLogin).Methods("POST").Name("admin.login")

	// Protected admin routes - require authentication
	adminRouter := r.PathPrefix("/admin").Subrouter()
	adminRouter.Use(h.SessionMiddleware)
	adminRouter.Use(h.RequireAdmin)
	adminRouter.Use(h.RequireSameOrigin)
	adminRouter.HandleFunc("/logout", h.AdminLogout).Methods("POST").Name("admin.logout")
	adminRouter.HandleFunc("/me", h.AdminMe).Methods("GET").Name("admin.me")

	adminRouter.HandleFunc("/orders", h.AdminListOrders).Methods("GET").Name("admin.orders")
	adminRouter.HandleFunc("/orders/{number}", h.AdminGetOrder).Methods("GET").Name("admin.orders.get")
	adminRouter.HandleFunc("/orders/{number}/status", h.AdminTransitionOrder).Methods("POST").Name("admin.orders.status")
	adminRouter.HandleFunc("/orders/{number}/report", h.AdminUploadReport).Methods("POST").Name("admin.orders.report")

	adminRouter.HandleFunc("/visits", h.AdminScheduleVisit).Methods("POST").Name("admin.visits.schedule")
	adminRouter.HandleFunc("/visits/{id}/agent", h.AdminAssignAgent).Methods("POST").Name("admin.visits.agent")
	adminRouter.HandleFunc("/visits/{id}/status", h.AdminUpdateVisitStatus).Methods("POST").Name("admin.visits.status")

	adminRouter.HandleFunc("/agents", h.AdminListAgents).Methods("GET").Name("admin.agents")
	adminRouter.HandleFunc("/agents/{id}/token", h.AdminIssueAgentToken).Methods("POST").Name("admin.agents.token")

	adminRouter.HandleFunc("/catalog/tests", h.AdminListTests).Methods("GET").Name("admin.catalog.tests")
	adminRouter.HandleFunc("/catalog/tests/{code}", h.AdminSaveTest).Methods("PUT").Name("admin.catalog.tests.save")
	adminRouter.HandleFunc("/catalog/tests/{code}/active", h.AdminSetTestActive).Methods("POST").Name("admin.catalog.tests.active")
	adminRouter.HandleFunc("/catalog/packages", h.AdminListPackages).Methods("GET").Name("admin.catalog.packages")
	adminRouter.HandleFunc("/catalog/packages/{code}", h.AdminSavePackage).Methods("PUT").Name("admin.catalog.packages.save")
	adminRouter.HandleFunc("/catalog/packages/{code}/active", h.AdminSetPackageActive).Methods("POST").Name("admin.catalog.packages.active")
	adminRouter.HandleFunc("/catalog/import", h.AdminImportCatalog).Methods("POST").Name("admin.catalog.import")

	return r
}
