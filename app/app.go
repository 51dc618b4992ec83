package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lmittmann/tint"

	"github.com/labdeskapp/labdesk/internal/auth"
	"github.com/labdeskapp/labdesk/internal/cache"
	"github.com/labdeskapp/labdesk/internal/catalog"
	"github.com/labdeskapp/labdesk/internal/config"
	"github.com/labdeskapp/labdesk/internal/crypto"
	"github.com/labdeskapp/labdesk/internal/db"
	"github.com/labdeskapp/labdesk/internal/email"
	"github.com/labdeskapp/labdesk/internal/handlers"
	"github.com/labdeskapp/labdesk/internal/notify"
	"github.com/labdeskapp/labdesk/internal/payments"
	"github.com/labdeskapp/labdesk/internal/services"
	"github.com/labdeskapp/labdesk/internal/session"
	"github.com/labdeskapp/labdesk/internal/storage"
)

type App struct {
	Config         *config.Config
	Logger         *slog.Logger
	DB             *pgxpool.Pool
	CacheProvider  cache.Provider
	SessionManager *session.Manager
	Handlers       *handlers.Handlers

	sentryEnabled bool
}

func New() (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	logger := newLogger(cfg)

	sentryEnabled := false
	if strings.TrimSpace(cfg.SentryDSN) != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:              cfg.SentryDSN,
			EnableTracing:    true,
			TracesSampleRate: 0.1,
		}); err != nil {
			logger.Warn("failed to initialize sentry", "error", err)
		} else {
			sentryEnabled = true
		}
	}

	startupCtx, startupCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer startupCancel()

	database, err := db.Connect(startupCtx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}

	cacheProvider, err := cache.NewProvider(cache.Config{
		Provider:              cfg.CacheProvider,
		RedisConnectionString: cfg.RedisConnectionString,
	})
	if err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to initialize cache provider: %w", err)
	}

	sessionStore, err := session.NewStore(startupCtx, session.Config{
		Provider:              cfg.SessionStoreProvider,
		RedisConnectionString: cfg.RedisConnectionString,
	})
	if err != nil {
		closeCacheProvider(logger, cacheProvider)
		database.Close()
		return nil, fmt.Errorf("failed to initialize session store: %w", err)
	}
	sessionManager := session.NewManager(sessionStore, handlers.SecureCookiesFromConfig(cfg))

	encryptor, err := crypto.NewEncryptor(cfg.EncryptionKey)
	if err != nil {
		closeSessionManager(logger, sessionManager)
		closeCacheProvider(logger, cacheProvider)
		database.Close()
		return nil, fmt.Errorf("failed to initialize encryptor: %w", err)
	}

	tokenIssuer, err := auth.NewTokenIssuer(cfg.AgentTokenSecret)
	if err != nil {
		closeSessionManager(logger, sessionManager)
		closeCacheProvider(logger, cacheProvider)
		database.Close()
		return nil, fmt.Errorf("failed to initialize token issuer: %w", err)
	}

	reportStorage, err := storage.NewS3Store(startupCtx, storage.Config{
		Region:          cfg.AWSRegion,
		AccessKeyID:     cfg.AWSAccessKeyID,
		SecretAccessKey: cfg.AWSSecretAccessKey,
		Bucket:          cfg.ReportsBucket,
	})
	if err != nil {
		closeSessionManager(logger, sessionManager)
		closeCacheProvider(logger, cacheProvider)
		database.Close()
		return nil, fmt.Errorf("failed to initialize report storage: %w", err)
	}

	orderStore := db.NewOrderStore(database)
	visitStore := db.NewVisitStore(database)
	reportStore := db.NewReportStore(database)
	catalogStore := db.NewCatalogStore(database)
	patientStore := db.NewPatientStore(database)

	dispatcher := newDispatcher(cfg, logger)
	stripeClient := payments.NewClient(cfg.StripeSecretKey)

	parser := catalog.NewParser()
	validator := catalog.NewValidator()
	pricer := catalog.NewPricer()

	lifecycleService := services.NewLifecycleService(
		orderStore,
		patientStore,
		reportStore,
		reportStorage,
		dispatcher,
		cfg.BaseURL,
		cfg.SupportContact,
		logger.With("component", "lifecycle_service"),
	)
	visitService := services.NewVisitService(
		visitStore,
		patientStore,
		lifecycleService,
		dispatcher,
		encryptor,
		logger.With("component", "visit_service"),
	)
	checkoutService := services.NewCheckoutService(
		catalogStore,
		orderStore,
		patientStore,
		pricer,
		stripeClient,
		lifecycleService,
		cfg.BaseURL,
		cfg.PaymentsEnabled(),
		logger.With("component", "checkout_service"),
	)
	reportService := services.NewReportService(
		reportStore,
		reportStorage,
		lifecycleService,
		logger.With("component", "report_service"),
	)
	catalogService := services.NewCatalogService(catalogStore, cacheProvider, logger.With("component", "catalog_service"))
	adminService := services.NewAdminService(
		catalogStore,
		orderStore,
		patientStore,
		catalogService,
		parser,
		validator,
		logger.With("component", "admin_service"),
	)

	h, err := handlers.New(handlers.Dependencies{
		Config:         cfg,
		DB:             database,
		PatientStore:   patientStore,
		CacheProvider:  cacheProvider,
		SessionManager: sessionManager,
		TokenIssuer:    tokenIssuer,
		CatalogService: catalogService,
		Checkout:       checkoutService,
		Lifecycle:      lifecycleService,
		Visits:         visitService,
		Reports:        reportService,
		Admin:          adminService,
		Logger:         logger,
	})
	if err != nil {
		closeSessionManager(logger, sessionManager)
		closeCacheProvider(logger, cacheProvider)
		database.Close()
		return nil, fmt.Errorf("failed to initialize handlers: %w", err)
	}

	return &App{
		Config:         cfg,
		Logger:         logger,
		DB:             database,
		CacheProvider:  cacheProvider,
		SessionManager: sessionManager,
		Handlers:       h,
		sentryEnabled:  sentryEnabled,
	}, nil
}

func (a *App) Close() {
	if a == nil {
		return
	}
	if a.SessionManager != nil {
		closeSessionManager(a.Logger, a.SessionManager)
	}
	if a.CacheProvider != nil {
		closeCacheProvider(a.Logger, a.CacheProvider)
	}
	if a.DB != nil {
		a.DB.Close()
	}
	if a.sentryEnabled {
		sentry.Flush(2 * time.Second)
	}
}

// newDispatcher builds the notification fan-out. Email is the only
// transport with a real provider; SMS and WhatsApp log until their
// gateways are integrated.
func newDispatcher(cfg *config.Config, logger *slog.Logger) *notify.Dispatcher {
	channels := []notify.Channel{}

	if strings.TrimSpace(cfg.EmailAPIKey) != "" {
		provider, err := email.NewProvider(email.Config{
			Provider: cfg.EmailProvider,
			APIKey:   cfg.EmailAPIKey,
			From:     cfg.EmailFrom,
			Domain:   cfg.EmailDomain,
		})
		if err != nil {
			logger.Warn("failed to initialize email provider, email notifications disabled", "error", err)
		} else {
			channels = append(channels, notify.NewEmailChannel(provider))
		}
	} else {
		logger.Info("no email API key configured, email notifications disabled")
	}

	channels = append(channels, notify.NewSMSChannel(), notify.NewWhatsAppChannel())

	return notify.NewDispatcher(logger.With("component", "notify"), nil, channels...)
}

func newLogger(cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	format := strings.ToLower(strings.TrimSpace(cfg.LogFormat))
	switch format {
	case "json":
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	case "text", "":
		return slog.New(tint.NewHandler(os.Stdout, &tint.Options{
			Level: cfg.LogLevel,
		}))
	}
	return slog.New(tint.NewHandler(os.Stdout, &tint.Options{Level: cfg.LogLevel}))
}

func closeSessionManager(logger *slog.Logger, manager *session.Manager) {
	if manager == nil {
		return
	}
	if err := manager.Close(); err != nil && logger != nil {
		logger.Warn("failed to close session manager", "error", err)
	}
}

func closeCacheProvider(logger *slog.Logger, provider cache.Provider) {
	if provider == nil {
		return
	}
	if err := provider.Close(); err != nil && logger != nil {
		logger.Warn("failed to close cache provider", "error", err)
	}
}
