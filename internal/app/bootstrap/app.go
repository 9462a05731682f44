package bootstrap

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/hrconsult-assistant/internal/api/router"
	appconfig "github.com/wolfman30/hrconsult-assistant/internal/config"
	"github.com/wolfman30/hrconsult-assistant/internal/conversation"
	"github.com/wolfman30/hrconsult-assistant/internal/http/handlers"
	httpmiddleware "github.com/wolfman30/hrconsult-assistant/internal/http/middleware"
	"github.com/wolfman30/hrconsult-assistant/internal/leads"
	"github.com/wolfman30/hrconsult-assistant/internal/notify"
	"github.com/wolfman30/hrconsult-assistant/internal/observability/metrics"
	"github.com/wolfman30/hrconsult-assistant/internal/payments"
	"github.com/wolfman30/hrconsult-assistant/internal/session"
	"github.com/wolfman30/hrconsult-assistant/internal/tools"
	"github.com/wolfman30/hrconsult-assistant/pkg/logging"
)

// App is the fully wired API process.
type App struct {
	Handler http.Handler

	captureWorker *leads.CaptureWorker
	rateLimiter   *httpmiddleware.RateLimiter
	pool          *pgxpool.Pool
	redis         *redis.Client
	sessions      session.Store
	stop          chan struct{}
}

// Options carries process-level collaborators that are not read from config.
type Options struct {
	Registerer     prometheus.Registerer
	MetricsHandler http.Handler
	// Completion overrides the OpenAI client; used by tests.
	Completion conversation.CompletionClient
	// Extraction overrides the lead extraction client; used by tests.
	Extraction conversation.LLMClient
}

// Build wires storage, the chat service, lead capture, payments and the router.
func Build(ctx context.Context, cfg *appconfig.Config, opts Options, logger *logging.Logger) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	chatMetrics := metrics.NewChatMetrics(opts.Registerer)

	var redisClient *redis.Client
	if cfg.SessionBackend == "redis" {
		redisClient = BuildRedisClient(ctx, cfg, logger, true)
	}
	pool, err := BuildPostgresPool(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	app := &App{pool: pool, redis: redisClient, stop: make(chan struct{})}

	sessions, transcript := BuildSessionBackend(cfg, redisClient, logger)
	app.sessions = sessions
	repos := BuildRepositories(pool, time.Now().UTC())

	notifier := notify.NewService(BuildEmailSender(ctx, cfg, logger), []string{cfg.LeadNotifyEmail}, logger)

	extraction := opts.Extraction
	if extraction == nil {
		extraction, err = BuildExtractionClient(ctx, cfg, logger)
		if err != nil {
			app.Close()
			return nil, err
		}
	}
	persister := leads.NewPersister(repos.Leads, notifier, logger)
	app.captureWorker = leads.NewCaptureWorker(
		leads.NewExtractor(extraction, cfg.OpenAIModel),
		persister,
		cfg.CaptureWorkers,
		cfg.CaptureQueueSize,
		chatMetrics,
		logger,
	)

	var paymentsHandler *payments.Handler
	toolOpts := []tools.Option{
		tools.WithLeadNotifier(notifier),
		tools.WithSessionMarker(persister),
		tools.WithLocation(loadLocation(cfg.BusinessTimezone, logger)),
	}
	if cfg.RazorpayKeyID != "" && cfg.RazorpayKeySecret != "" {
		gateway := payments.NewGatewayClient(cfg.RazorpayKeyID, cfg.RazorpayKeySecret, cfg.RazorpayBaseURL, logger)
		paymentService := payments.NewService(repos.Payments, gateway, repos.Catalog, logger,
			payments.WithNotifier(notifier),
			payments.WithMetrics(chatMetrics),
			payments.WithDefaultCurrency(cfg.PaymentCurrency),
		)
		paymentsHandler = payments.NewHandler(paymentService, logger)
		toolOpts = append(toolOpts, tools.WithOrders(paymentService))
	} else {
		logger.Warn("razorpay keys not configured; payment endpoints and tool disabled")
	}
	dispatcher := tools.NewDispatcher(repos.Catalog, repos.Leads, logger, toolOpts...)

	completion := opts.Completion
	if completion == nil {
		completion = BuildCompletionClient(cfg, logger)
	}
	chatService := conversation.NewService(sessions, transcript, completion, conversation.ServiceConfig{
		Completion: conversation.CompletionConfig{
			Model:       cfg.OpenAIModel,
			MaxTokens:   cfg.OpenAIMaxTokens,
			Temperature: cfg.OpenAITemperature,
			Stream:      cfg.OpenAIStream,
		},
		MaxToolRounds: cfg.MaxToolRounds,
		HistoryWindow: cfg.HistoryWindow,
	}, logger,
		conversation.WithTools(dispatcher),
		conversation.WithLeadCapturer(app.captureWorker),
		conversation.WithMetrics(chatMetrics),
	)

	if cfg.RateLimitRPS > 0 {
		app.rateLimiter = httpmiddleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
	}

	app.Handler = router.New(&router.Config{
		Logger:              logger,
		ConversationHandler: conversation.NewHandler(chatService, cfg.OpenAIStream, logger),
		LeadsHandler:        leads.NewHandler(repos.Leads, notifier, logger),
		PaymentsHandler:     paymentsHandler,
		AdminConversations:  handlers.NewAdminConversationsHandler(chatService, logger),
		AdminPayments:       handlers.NewAdminPaymentsHandler(repos.Payments, logger),
		AdminAuthSecret:     cfg.AdminJWTSecret,
		MetricsHandler:      opts.MetricsHandler,
		CORSAllowedOrigins:  cfg.CORSAllowedOrigins,
		RateLimiter:         app.rateLimiter,
		HealthChecks:        app.healthChecks(),
	})
	return app, nil
}

// Start launches the background lead capture workers and the limiter sweep.
func (a *App) Start(ctx context.Context) {
	a.captureWorker.Start(ctx)
	if a.rateLimiter != nil {
		go a.rateLimiter.Run(a.stop)
	}
}

// Close drains queued lead captures and releases connections.
func (a *App) Close() {
	select {
	case <-a.stop:
		return
	default:
		close(a.stop)
	}
	if a.captureWorker != nil {
		a.captureWorker.Stop()
	}
	if store, ok := a.sessions.(*session.MemoryStore); ok {
		store.Close()
	}
	if a.pool != nil {
		a.pool.Close()
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
}

func (a *App) healthChecks() map[string]router.HealthCheck {
	checks := map[string]router.HealthCheck{}
	if a.pool != nil {
		checks["postgres"] = a.pool.Ping
	}
	if a.redis != nil {
		checks["redis"] = func(ctx context.Context) error { return a.redis.Ping(ctx).Err() }
	}
	return checks
}

func loadLocation(name string, logger *logging.Logger) *time.Location {
	name = strings.TrimSpace(name)
	if name == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		logger.Warn("invalid business timezone; using UTC", "timezone", name, "error", err)
		return time.UTC
	}
	return loc
}
