package main

import (
	"context"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/md-rashed-zaman/bookingadmin/libs/db"
	"github.com/md-rashed-zaman/bookingadmin/libs/grpcx"
	"github.com/md-rashed-zaman/bookingadmin/libs/httpx"
	"github.com/md-rashed-zaman/bookingadmin/libs/inbox"
	"github.com/md-rashed-zaman/bookingadmin/libs/kafkax"
	otelx "github.com/md-rashed-zaman/bookingadmin/libs/otel"
	"github.com/md-rashed-zaman/bookingadmin/libs/outbox"
	"github.com/md-rashed-zaman/bookingadmin/libs/runtime"
	"github.com/md-rashed-zaman/bookingadmin/libs/sms"
	"github.com/md-rashed-zaman/bookingadmin/services/notification-service/internal/email"
	"github.com/md-rashed-zaman/bookingadmin/services/notification-service/internal/notify"
	"github.com/md-rashed-zaman/bookingadmin/services/notification-service/internal/storage"
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

	smsSender, err := sms.New(cfg.SMS)
	if err != nil {
		logger.Warn("sms provider unavailable, falling back to noop", "provider", cfg.SMS.Provider, "err", err)
		smsSender = sms.NewNoopSender()
	}
	if cfg.SMTP.Host == "" {
		logger.Warn("SMTP_HOST not set, email alerts are recorded as skipped")
	}

	outboxRepo := outbox.NewRepository()
	publisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
		Brokers: cfg.KafkaBrokers,
		Source:  cfg.Service,
	})
	go publisher.Run(ctx)

	dispatcher := notify.NewDispatcher(storage.NewRepository(), outboxRepo, smsSender, email.NewSMTPSender(cfg.SMTP), cfg.Notify, logger)

	readyChecks := []runtime.ReadyCheck{{Name: "db", Check: db.ReadyCheck(pool)}}
	if len(kafkax.SplitBrokers(cfg.KafkaBrokers)) > 0 {
		topics := cfg.KafkaTopics
		if len(topics) == 0 {
			topics = notify.Topics
		}
		eventConsumer := inbox.NewConsumer(logger, pool, inbox.NewRepository(), inbox.ConsumerConfig{
			Brokers: cfg.KafkaBrokers,
			GroupID: cfg.KafkaGroupID,
			Topics:  topics,
		}, dispatcher.Handle)
		go eventConsumer.Run(ctx)
		readyChecks = append(readyChecks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(cfg.KafkaBrokers)})
	} else {
		logger.Warn("KAFKA_BROKERS not set, no events are consumed")
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
	handler = otelhttp.NewHandler(handler, "notification")
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
