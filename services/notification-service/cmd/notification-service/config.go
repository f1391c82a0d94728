package main

import (
	"github.com/md-rashed-zaman/bookingadmin/libs/config"
	"github.com/md-rashed-zaman/bookingadmin/libs/sms"
	"github.com/md-rashed-zaman/bookingadmin/services/notification-service/internal/email"
	"github.com/md-rashed-zaman/bookingadmin/services/notification-service/internal/notify"
)

type appConfig struct {
	Service     string `env:"SERVICE_NAME" envDefault:"notification-service"`
	Port        string `env:"PORT" envDefault:"8092"`
	GRPCPort    string `env:"GRPC_PORT" envDefault:"9092"`
	DatabaseURL string `env:"DATABASE_URL,required"`
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	Release     string `env:"RELEASE"`
	SentryDSN   string `env:"SENTRY_DSN"`

	KafkaBrokers string   `env:"KAFKA_BROKERS"`
	KafkaGroupID string   `env:"KAFKA_GROUP_ID" envDefault:"notification-service"`
	KafkaTopics  []string `env:"KAFKA_CONSUME_TOPICS" envSeparator:","`

	Notify notify.Config
	SMS    sms.Config
	SMTP   email.Config
}

func loadConfig() (appConfig, error) {
	var cfg appConfig
	if err := config.Load(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}
