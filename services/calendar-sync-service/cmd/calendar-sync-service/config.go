package main

import (
	"github.com/md-rashed-zaman/bookingadmin/libs/config"
	"github.com/md-rashed-zaman/bookingadmin/libs/gcal"
	"github.com/md-rashed-zaman/bookingadmin/services/calendar-sync-service/internal/jobs"
	"github.com/md-rashed-zaman/bookingadmin/services/calendar-sync-service/internal/maintenance"
)

type appConfig struct {
	Service     string `env:"SERVICE_NAME" envDefault:"calendar-sync-service"`
	Port        string `env:"PORT" envDefault:"8091"`
	GRPCPort    string `env:"GRPC_PORT" envDefault:"9091"`
	DatabaseURL string `env:"DATABASE_URL,required"`
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	Release     string `env:"RELEASE"`
	SentryDSN   string `env:"SENTRY_DSN"`

	KafkaBrokers string   `env:"KAFKA_BROKERS"`
	KafkaGroupID string   `env:"KAFKA_GROUP_ID" envDefault:"calendar-sync-service"`
	KafkaTopics  []string `env:"KAFKA_CONSUME_TOPICS" envSeparator:","`

	Worker      jobs.WorkerConfig
	Maintenance maintenance.Config
	Google      gcal.Config
}

func loadConfig() (appConfig, error) {
	var cfg appConfig
	if err := config.Load(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}
