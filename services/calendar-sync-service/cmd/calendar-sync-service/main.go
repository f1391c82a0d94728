package main

import (
	"context"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/md-rashed-zaman/bookingadmin/libs/cronx"
	"github.com/md-rashed-zaman/bookingadmin/libs/db"
	"github.com/md-rashed-zaman/bookingadmin/libs/gcal"
	"github.com/md-rashed-zaman/bookingadmin/libs/grpcx"
	"github.com/md-rashed-zaman/bookingadmin/libs/httpx"
	"github.com/md-rashed-zaman/bookingadmin/libs/inbox"
	"github.com/md-rashed-zaman/bookingadmin/libs/kafkax"
	otelx "github.com/md-rashed-zaman/bookingadmin/libs/otel"
	"github.com/md-rashed-zaman/bookingadmin/libs/outbox"
	"github.com/md-rashed-zaman/bookingadmin/libs/runtime"
	"github.com/md-rashed-zaman/bookingadmin/services/calendar-sync-service/internal/consumer"
	"github.com/md-rashed-zaman/bookingadmin/services/calendar-sync-service/internal/jobs"
	"github.com/md-rashed-zaman/bookingadmin/services/calendar-sync-service/internal/maintenance"
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

	googleHTTP := gcal.NewHTTPClient(10 * time.Second)
	oauth := gcal.NewOAuth(cfg.Google, googleHTTP)
	if !oauth.Enabled() {
		logger.Warn("google oauth client not configured, token refresh will fail")
	}

	jobRepo := jobs.NewRepository()
	outboxRepo := outbox.NewRepository()

	publisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
		Brokers: cfg.KafkaBrokers,
		Source:  cfg.Service,
	})
	go publisher.Run(ctx)

	worker := jobs.NewWorker(pool, jobRepo, outboxRepo, gcal.NewClient(cfg.Google.APIBaseURL, googleHTTP, 0), oauth, logger, cfg.Worker)
	go worker.Run(ctx)

	readyChecks := []runtime.ReadyCheck{{Name: "db", Check: db.ReadyCheck(pool)}}
	if len(kafkax.SplitBrokers(cfg.KafkaBrokers)) > 0 {
		topics := cfg.KafkaTopics
		if len(topics) == 0 {
			topics = consumer.Topics
		}
		eventConsumer := inbox.NewConsumer(logger, pool, inbox.NewRepository(), inbox.ConsumerConfig{
			Brokers: cfg.KafkaBrokers,
			GroupID: cfg.KafkaGroupID,
			Topics:  topics,
		}, consumer.BookingEvents(jobRepo, logger))
		go eventConsumer.Run(ctx)
		readyChecks = append(readyChecks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(cfg.KafkaBrokers)})
	} else {
		logger.Warn("KAFKA_BROKERS not set, booking events are not consumed")
	}

	scheduler := cronx.New(ctx, logger)
	if err := maintenance.Register(scheduler, jobs.NewQueue(pool, jobRepo), cfg.Maintenance, logger); err != nil {
		logger.Error("maintenance schedule invalid", "err", err)
	} else {
		scheduler.Start()
		defer scheduler.Shutdown()
	}

	health, err := grpcx.Listen(cfg.GRPCPort)
	if err != nil {
		logger.Error("grpc health listener failed", "err", err)
	} else {
		health.SetServing("", true)
		health.Serve(ctx, logger)
	}

	mux := runtime.NewBaseMuxWithReady(readyChecks...)
	handler := httpx.Chain(mux,
		httpx.WithRecover(logger),
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
	)
	handler = otelhttp.NewHandler(handler, "calendar-sync")
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

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	logger.Info("http server stopped")
}
