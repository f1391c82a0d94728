package main

import (
	"time"

	"github.com/md-rashed-zaman/bookingadmin/libs/config"
	"github.com/md-rashed-zaman/bookingadmin/libs/gcal"
	"github.com/md-rashed-zaman/bookingadmin/libs/sms"
	"github.com/md-rashed-zaman/bookingadmin/services/admin-service/internal/maintenance"
)

type appConfig struct {
	Service     string `env:"SERVICE_NAME" envDefault:"admin-service"`
	Port        string `env:"PORT" envDefault:"8090"`
	GRPCPort    string `env:"GRPC_PORT" envDefault:"9090"`
	DatabaseURL string `env:"DATABASE_URL,required"`
	AutoMigrate bool   `env:"AUTO_MIGRATE" envDefault:"true"`
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	Release     string `env:"RELEASE"`
	SentryDSN   string `env:"SENTRY_DSN"`

	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	SessionTTL     time.Duration `env:"SESSION_TTL" envDefault:"12h"`
	CookieSecure   bool          `env:"COOKIE_SECURE" envDefault:"false"`
	StateSecret    string        `env:"OAUTH_STATE_SECRET"`
	WebhookSecret  string        `env:"WEBHOOK_SECRET"`
	LoginPerMinute int           `env:"LOGIN_RATE_LIMIT_PER_MINUTE" envDefault:"10"`

	BodyLimit      int64         `env:"REQUEST_BODY_LIMIT_BYTES" envDefault:"11534336"`
	MaxImportBytes int64         `env:"IMPORT_MAX_BYTES" envDefault:"10485760"`
	MaxWebhookBody int64         `env:"WEBHOOK_MAX_BYTES" envDefault:"1048576"`
	RequestTimeout time.Duration `env:"REQUEST_TIMEOUT" envDefault:"30s"`

	CORSOrigins     []string      `env:"CORS_ALLOWED_ORIGINS" envSeparator:","`
	CORSCredentials bool          `env:"CORS_ALLOW_CREDENTIALS" envDefault:"true"`
	CORSMaxAge      time.Duration `env:"CORS_MAX_AGE" envDefault:"10m"`

	KafkaBrokers string `env:"KAFKA_BROKERS"`
	WorkersFile  string `env:"WORKERS_FILE"`

	CalendarCacheTTL time.Duration `env:"GOOGLE_CALENDAR_CACHE_TTL" envDefault:"5m"`
	Google           gcal.Config
	SMS              sms.Config
	Maintenance      maintenance.Config
}

func loadConfig() (appConfig, error) {
	var cfg appConfig
	if err := config.Load(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}
