package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App      AppConfig
	DB       DBConfig
	Redis    RedisConfig
	Features FeatureFlagsConfig
	Pagarme  PagarmeConfig
	Appmax   AppmaxConfig
	Sendgrid SendgridConfig
	Webhooks WebhooksConfig
	Outbox   OutboxConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"KRSAAS_APP_ENV" required:"true"`
	Port         string `envconfig:"KRSAAS_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"KRSAAS_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"KRSAAS_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"KRSAAS_DB_DSN"`
	Driver string `envconfig:"KRSAAS_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"KRSAAS_DB_HOST"`
	LegacyPort     int    `envconfig:"KRSAAS_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"KRSAAS_DB_USER"`
	LegacyPassword string `envconfig:"KRSAAS_DB_PASSWORD"`
	LegacyName     string `envconfig:"KRSAAS_DB_NAME"`
	LegacySSLMode  string `envconfig:"KRSAAS_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"KRSAAS_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"KRSAAS_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"KRSAAS_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"KRSAAS_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"KRSAAS_REDIS_URL" required:"true"`
	Address      string        `envconfig:"KRSAAS_REDIS_ADDR"`
	Password     string        `envconfig:"KRSAAS_REDIS_PASSWORD"`
	DB           int           `envconfig:"KRSAAS_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"KRSAAS_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"KRSAAS_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"KRSAAS_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"KRSAAS_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"KRSAAS_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// FeatureFlagsConfig carries the toggles threaded into the reconciler and
// orchestrator constructors. Call sites never read the environment directly.
type FeatureFlagsConfig struct {
	SplitEnabled  bool `envconfig:"KRSAAS_FEATURE_SPLIT_ENABLED" default:"true"`
	PlanlessMode  bool `envconfig:"KRSAAS_FEATURE_PLANLESS_MODE" default:"false"`
	AsyncWebhooks bool `envconfig:"KRSAAS_FEATURE_ASYNC_WEBHOOKS" default:"false"`
	AutoMigrate   bool `envconfig:"KRSAAS_AUTO_MIGRATE" default:"false"`
}

type PagarmeConfig struct {
	APIKey        string        `envconfig:"KRSAAS_PAGARME_API_KEY"`
	WebhookSecret string        `envconfig:"KRSAAS_PAGARME_WEBHOOK_SECRET"`
	BaseURL       string        `envconfig:"KRSAAS_PAGARME_BASE_URL" default:"https://api.pagar.me/core/v5"`
	Timeout       time.Duration `envconfig:"KRSAAS_PAGARME_TIMEOUT" default:"15s"`
}

type AppmaxConfig struct {
	WebhookSecret string `envconfig:"KRSAAS_APPMAX_WEBHOOK_SECRET"`
}

type SendgridConfig struct {
	APIKey      string `envconfig:"KRSAAS_SENDGRID_API_KEY"`
	DefaultFrom string `envconfig:"KRSAAS_SENDGRID_FROM_EMAIL"`
	FromName    string `envconfig:"KRSAAS_SENDGRID_FROM_NAME" default:"Pagamentos"`
}

type WebhooksConfig struct {
	RetryMaxAttempts int           `envconfig:"KRSAAS_WEBHOOK_RETRY_MAX_ATTEMPTS" default:"10"`
	RetryBase        time.Duration `envconfig:"KRSAAS_WEBHOOK_RETRY_BASE" default:"1m"`
	RetryCap         time.Duration `envconfig:"KRSAAS_WEBHOOK_RETRY_CAP" default:"6h"`
	SweepInterval    time.Duration `envconfig:"KRSAAS_WEBHOOK_SWEEP_INTERVAL" default:"30s"`
	SweepBatchSize   int           `envconfig:"KRSAAS_WEBHOOK_SWEEP_BATCH_SIZE" default:"50"`
	IdempotencyTTL   time.Duration `envconfig:"KRSAAS_WEBHOOK_IDEMPOTENCY_TTL" default:"720h"`
}

type OutboxConfig struct {
	BatchSize       int           `envconfig:"KRSAAS_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS  int           `envconfig:"KRSAAS_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts     int           `envconfig:"KRSAAS_OUTBOX_MAX_ATTEMPTS" default:"10"`
	DeliveryTimeout time.Duration `envconfig:"KRSAAS_OUTBOX_DELIVERY_TIMEOUT" default:"15s"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
