package main

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/patient-portal/cmd/mainconfig"
	"github.com/wolfman30/patient-portal/internal/api/router"
	"github.com/wolfman30/patient-portal/internal/calls"
	appconfig "github.com/wolfman30/patient-portal/internal/config"
	"github.com/wolfman30/patient-portal/internal/flow"
	"github.com/wolfman30/patient-portal/internal/hospitalapi"
	"github.com/wolfman30/patient-portal/internal/http/handlers"
	httpmiddleware "github.com/wolfman30/patient-portal/internal/http/middleware"
	"github.com/wolfman30/patient-portal/internal/library"
	"github.com/wolfman30/patient-portal/internal/notify"
	"github.com/wolfman30/patient-portal/internal/observability/metrics"
	"github.com/wolfman30/patient-portal/internal/payments"
	"github.com/wolfman30/patient-portal/internal/receipts"
	"github.com/wolfman30/patient-portal/internal/session"
	"github.com/wolfman30/patient-portal/pkg/logging"
)

func main() {
	cfg := appconfig.Load()

	logger := logging.New(cfg.LogLevel)
	logger.Info("starting patient-portal API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	redisClient := connectRedis(ctx, cfg, logger)
	defer redisClient.Close()

	dbPool := connectPostgresPool(ctx, cfg.DatabaseURL, logger)
	if dbPool != nil {
		defer dbPool.Close()
	}

	metricsHandler, flowMetrics, callMetrics := setupMetrics()

	hospital := hospitalapi.New(cfg.HospitalAPIBaseURL, cfg.HospitalAPITimeout, logger.Component("hospitalapi"))
	if cfg.HospitalAPIBaseURL == "" {
		logger.Warn("HOSPITAL_API_BASE_URL not set; catalog and booking calls will fail")
	}

	var ledger *payments.Ledger
	if dbPool != nil {
		ledger = payments.NewLedger(dbPool)
	}

	checkout, fakeCheckout := setupCheckout(cfg, logger)
	var provider payments.CheckoutProvider
	if checkout != nil {
		if ledger != nil {
			provider = payments.NewRecordingCheckout(checkout, ledger, logger)
		} else {
			provider = checkout
		}
	}

	issuer := setupReceipts(ctx, cfg, logger)
	history := library.NewHistory(redisClient)
	bookmarks := library.NewBookmarks(redisClient)

	flowService := flow.NewService(flow.ServiceConfig{
		Store:    flow.NewRedisStore(redisClient, cfg.DraftTTL),
		Backend:  hospital,
		Checkout: provider,
		Fee: payments.Fee{
			ConsultationMinor:  cfg.ConsultationFeeMinor,
			ServiceChargeMinor: cfg.ServiceChargeMinor,
			Currency:           cfg.Currency,
		},
		History:    history,
		Receipts:   issuer,
		Metrics:    flowMetrics,
		SuccessURL: cfg.StripeSuccessURL,
		CancelURL:  cfg.StripeCancelURL,
		Logger:     logger.Component("flow"),
	})

	sessions := session.NewStore(redisClient, cfg.SessionTTL)

	hub := calls.NewHub(callMetrics, logger.Component("calls"))
	callManager := calls.NewManager(calls.ManagerConfig{
		AutoReject:    cfg.CallAutoReject,
		AcceptTimeout: cfg.CallAcceptTimeout,
	}, hub, callMetrics, logger.Component("calls"))
	defer callManager.Shutdown()
	if cfg.CallTokenSecret == "" {
		logger.Warn("CALL_TOKEN_SECRET not set; call room tokens disabled")
	}
	tokens := calls.NewTokenIssuer(cfg.CallTokenSecret, cfg.CallTokenTTL)

	authLimiter := httpmiddleware.NewRateLimiter(cfg.AuthRateLimit, cfg.AuthRateBurst)
	go pruneLimiter(ctx, authLimiter)

	health := handlers.NewHealthHandler(healthChecks(redisClient, dbPool), logger)

	routerCfg := &router.Config{
		Logger:             logger,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		Sessions:           session.Middleware(sessions, cfg.IsProduction(), logger.Component("session")),
		AuthRateLimiter:    authLimiter,
		Health:             health,
		Auth:               handlers.NewAuthHandler(hospital, sessions, logger),
		Catalog:            handlers.NewCatalogHandler(hospital, logger),
		Flow:               handlers.NewFlowHandler(flowService, hospital, logger),
		Library:            handlers.NewLibraryHandler(bookmarks, history, logger),
		Calls:              handlers.NewCallsHandler(callManager, tokens, logger),
		CallSocket:         calls.NewSocketHandler(hub, callManager, handlers.SocketUser, cfg.CORSAllowedOrigins, logger.Component("calls")),
		MetricsHandler:     metricsHandler,
	}
	if cfg.StripeWebhookSecret != "" {
		routerCfg.StripeWebhook = newStripeWebhook(cfg.StripeWebhookSecret, ledger, flowService, logger)
	}
	if fakeCheckout != nil {
		routerCfg.FakePayments = payments.NewFakePaymentsHandler(fakeCheckout, flowService, cfg.StripeSuccessURL, logger)
	}
	r := router.New(routerCfg)

	// no WriteTimeout: the SSE and websocket routes hold connections open
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
	fmt.Println("Server exited gracefully")
}

// newStripeWebhook keeps a nil ledger out of the handler's interfaces.
func newStripeWebhook(secret string, ledger *payments.Ledger, completer payments.PaymentCompleter, logger *logging.Logger) *payments.StripeWebhookHandler {
	if ledger == nil {
		logger.Warn("stripe webhooks enabled without DATABASE_URL; duplicate events are not tracked")
		return payments.NewStripeWebhookHandler(secret, nil, nil, completer, logger)
	}
	return payments.NewStripeWebhookHandler(secret, ledger, ledger, completer, logger)
}

func setupMetrics() (http.Handler, *metrics.FlowMetrics, *metrics.CallMetrics) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	handler := promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	return handler, metrics.NewFlowMetrics(reg), metrics.NewCallMetrics(reg)
}

func connectRedis(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) *redis.Client {
	opts := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warn("redis not reachable at startup", "addr", cfg.RedisAddr, "error", err)
	}
	return client
}

// connectPostgresPool returns nil when no URL is configured or the
// database is unreachable; the checkout ledger is then skipped.
func connectPostgresPool(ctx context.Context, url string, logger *logging.Logger) *pgxpool.Pool {
	if url == "" {
		logger.Info("DATABASE_URL not set; checkout ledger disabled")
		return nil
	}
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		logger.Error("failed to create postgres pool", "error", err)
		return nil
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		logger.Error("failed to connect to postgres", "error", err)
		pool.Close()
		return nil
	}
	return pool
}

// setupCheckout returns the configured provider. The fake provider is
// also returned on its own so its hosted page can be mounted.
func setupCheckout(cfg *appconfig.Config, logger *logging.Logger) (payments.CheckoutProvider, *payments.FakeCheckout) {
	switch cfg.PaymentProvider {
	case "fake":
		if !cfg.AllowFakePayments {
			logger.Warn("PAYMENT_PROVIDER=fake requires ALLOW_FAKE_PAYMENTS=true; checkout disabled")
			return nil, nil
		}
		fake := payments.NewFakeCheckout(cfg.PublicBaseURL, logger.Component("payments"))
		return fake, fake
	case "stripe", "":
		if cfg.StripeSecretKey == "" {
			logger.Warn("STRIPE_SECRET_KEY not set; checkout disabled")
			return nil, nil
		}
		return payments.NewStripeCheckout(cfg.StripeSecretKey, cfg.StripeSuccessURL, cfg.StripeCancelURL, logger.Component("payments")), nil
	default:
		logger.Warn("unknown payment provider; checkout disabled", "provider", cfg.PaymentProvider)
		return nil, nil
	}
}

func setupReceipts(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) *receipts.Issuer {
	var archiver receipts.Archiver
	clients, err := mainconfig.NewAWSClients(ctx, cfg)
	if err != nil {
		logger.Error("failed to load AWS config; receipts will not be archived", "error", err)
	}
	if clients.S3 != nil {
		archiver = receipts.NewS3Archiver(clients.S3, cfg.ReceiptBucket)
	}
	sender := notify.NewEmailSender(notify.SenderConfig{
		Provider:       cfg.EmailProvider,
		SendGridAPIKey: cfg.SendGridAPIKey,
		FromEmail:      cfg.EmailFromAddress,
		FromName:       cfg.EmailFromName,

		SESConfigurationSet: cfg.SESConfigurationSet,
	}, clients.SES, logger.Component("notify"))
	return receipts.NewIssuer(archiver, notify.NewReceiptMailer(sender), logger.Component("receipts"))
}

func healthChecks(redisClient *redis.Client, pool *pgxpool.Pool) map[string]handlers.Pinger {
	checks := map[string]handlers.Pinger{
		"redis": handlers.PingFunc(func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		}),
	}
	if pool != nil {
		checks["postgres"] = handlers.PingFunc(pool.Ping)
	}
	return checks
}

func pruneLimiter(ctx context.Context, rl *httpmiddleware.RateLimiter) {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rl.Prune(10 * time.Minute)
		}
	}
}
