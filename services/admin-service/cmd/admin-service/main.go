package main

import (
	"context"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/md-rashed-zaman/bookingadmin/libs/cronx"
	"github.com/md-rashed-zaman/bookingadmin/libs/db"
	"github.com/md-rashed-zaman/bookingadmin/libs/gcal"
	"github.com/md-rashed-zaman/bookingadmin/libs/grpcx"
	"github.com/md-rashed-zaman/bookingadmin/libs/httpx"
	"github.com/md-rashed-zaman/bookingadmin/libs/kafkax"
	otelx "github.com/md-rashed-zaman/bookingadmin/libs/otel"
	"github.com/md-rashed-zaman/bookingadmin/libs/outbox"
	"github.com/md-rashed-zaman/bookingadmin/libs/runtime"
	"github.com/md-rashed-zaman/bookingadmin/libs/sms"
	"github.com/md-rashed-zaman/bookingadmin/services/admin-service/internal/handlers"
	"github.com/md-rashed-zaman/bookingadmin/services/admin-service/internal/maintenance"
	"github.com/md-rashed-zaman/bookingadmin/services/admin-service/internal/schema"
	"github.com/md-rashed-zaman/bookingadmin/services/admin-service/internal/sessions"
	"github.com/md-rashed-zaman/bookingadmin/services/admin-service/internal/storage"
	"github.com/md-rashed-zaman/bookingadmin/services/admin-service/internal/workers"
)

func main() {
	cfg, err := loadConfig()
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(cfg.Service)

	ctx, stop := runtime.SignalContext()
	defer stop()

	flushSentry, err := runtime.InitSentry(cfg.SentryDSN, cfg.Environment, cfg.Release)
	if err != nil {
		logger.Error("sentry setup failed", "err", err)
	} else {
		defer flushSentry()
	}

	otelCfg, err := otelx.ConfigFromEnv(cfg.Service)
	if err != nil {
		logger.Error("otel config failed", "err", err)
	} else if otelShutdown, err := otelx.Setup(ctx, otelCfg); err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	pool, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()

	if cfg.AutoMigrate {
		if _, err := schema.Migrate(ctx, pool, logger); err != nil {
			logger.Error("migration failed", "err", err)
			panic(err)
		}
	}

	readyChecks := []runtime.ReadyCheck{{Name: "db", Check: db.ReadyCheck(pool)}}

	var (
		sessionBackend sessions.Backend = sessions.NewMemoryBackend()
		loginLimiter   httpx.Limiter    = httpx.NewMemoryLimiter(cfg.LoginPerMinute, time.Minute)
	)
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
		defer func() { _ = rdb.Close() }()
		sessionBackend = sessions.NewRedisBackend(rdb, "bo:session")
		loginLimiter = httpx.NewRedisLimiter(rdb, cfg.LoginPerMinute, time.Minute, "bo:rl")
		readyChecks = append(readyChecks, runtime.ReadyCheck{Name: "redis", Check: func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}})
		logger.Info("sessions and login limit backed by redis", "redis_addr", cfg.RedisAddr)
	} else {
		logger.Warn("REDIS_ADDR not set, sessions are kept in memory")
	}
	if cfg.KafkaBrokers != "" {
		readyChecks = append(readyChecks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(cfg.KafkaBrokers)})
	}

	workerDefs, err := workers.LoadFile(cfg.WorkersFile)
	if err != nil {
		logger.Error("workers file invalid", "path", cfg.WorkersFile, "err", err)
		panic(err)
	}
	smsSender, err := sms.New(cfg.SMS)
	if err != nil {
		logger.Warn("sms provider unavailable, using noop", "err", err)
		smsSender = sms.NewNoopSender()
	}

	googleHTTP := gcal.NewHTTPClient(10 * time.Second)
	oauth := gcal.NewOAuth(cfg.Google, googleHTTP)
	if !oauth.Enabled() {
		logger.Warn("google calendar disabled (GOOGLE_CLIENT_ID/SECRET/REDIRECT_URL not set)")
	}

	store := storage.New(pool)
	h := handlers.New(handlers.Deps{
		Store:        store,
		Sessions:     sessions.NewManager(sessionBackend, cfg.SessionTTL),
		Workers:      workers.NewController(workerDefs, workers.ExecRunner{}, logger),
		SMS:          smsSender,
		OAuth:        oauth,
		Calendar:     gcal.NewClient(cfg.Google.APIBaseURL, googleHTTP, cfg.CalendarCacheTTL),
		LoginLimiter: loginLimiter,
		Logger:       logger,
		Config: handlers.Config{
			StateSecret:    cfg.StateSecret,
			WebhookSecret:  cfg.WebhookSecret,
			CookieSecure:   cfg.CookieSecure,
			MaxImportBytes: cfg.MaxImportBytes,
			MaxWebhookBody: cfg.MaxWebhookBody,
		},
	})

	mux := runtime.NewBaseMuxWithReady(readyChecks...)
	h.Register(mux)

	handler := httpx.Chain(mux,
		httpx.WithRecover(logger),
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithMetrics(h.Route),
		httpx.WithCORS(httpx.CORSPolicy{
			AllowedOrigins:   cfg.CORSOrigins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Authorization", "Content-Type", "X-Request-Id"},
			AllowCredentials: cfg.CORSCredentials,
			MaxAge:           cfg.CORSMaxAge,
		}),
		httpx.WithBodyLimit(cfg.BodyLimit),
		httpx.WithTimeout(cfg.RequestTimeout),
	)
	handler = otelhttp.NewHandler(handler, "admin")
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "err", err)
		}
	}()

	health, err := grpcx.Listen(cfg.GRPCPort)
	if err != nil {
		logger.Error("grpc health listener failed", "err", err)
	} else {
		health.SetServing("", true)
		health.Serve(ctx, logger)
	}

	publisher := outbox.NewPublisher(pool, outbox.NewRepository(), logger, outbox.PublisherConfig{
		Brokers: cfg.KafkaBrokers,
		Source:  cfg.Service,
	})
	go publisher.Run(ctx)

	scheduler := cronx.New(ctx, logger)
	if err := maintenance.Register(scheduler, store, cfg.Maintenance, logger); err != nil {
		logger.Error("maintenance schedule invalid", "err", err)
	} else {
		scheduler.Start()
		defer scheduler.Shutdown()
	}

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	logger.Info("http server stopped")
}
