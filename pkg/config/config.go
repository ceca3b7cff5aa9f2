package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	EnvPrefix = "STOREFRONT"

	AppEnvDev  = "dev"
	AppEnvProd = "production"

	EnvAppEnv        = "STOREFRONT_APP_ENV"
	EnvPort          = "STOREFRONT_APP_PORT"
	EnvDBDSN         = "STOREFRONT_DB_DSN"
	EnvDBHost        = "STOREFRONT_DB_HOST"
	EnvDBUser        = "STOREFRONT_DB_USER"
	EnvDBName        = "STOREFRONT_DB_NAME"
	EnvRedisURL      = "STOREFRONT_REDIS_URL"
	EnvJWTSecret     = "STOREFRONT_JWT_SECRET"
	EnvJWTIssuer     = "STOREFRONT_JWT_ISSUER"
	EnvQuoteSecret   = "STOREFRONT_QUOTE_SECRET"
	EnvShippingURL   = "STOREFRONT_SHIPPING_BASE_URL"
	EnvShippingKey   = "STOREFRONT_SHIPPING_API_KEY"
	EnvShippingFrom  = "STOREFRONT_SHIPPING_ORIGIN_POSTAL_CODE"
	EnvSquareToken   = "STOREFRONT_SQUARE_ACCESS_TOKEN"
	EnvSquareLoc     = "STOREFRONT_SQUARE_LOCATION_ID"
	EnvSquareSecret  = "STOREFRONT_SQUARE_WEBHOOK_SECRET"
	EnvSquareHookURL = "STOREFRONT_SQUARE_WEBHOOK_URL"
	EnvAmountEpsilon = "STOREFRONT_PAYMENT_AMOUNT_EPSILON_CENTS"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

type Config struct {
	App          AppConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	Cart         CartConfig
	Quote        QuoteConfig
	Shipping     ShippingConfig
	Square       SquareConfig
	Payments     PaymentsConfig
	RateLimit    RateLimitConfig
	Cron         CronConfig
	Outbox       OutboxConfig
	Notify       NotifyConfig
	FeatureFlags FeatureFlagsConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Quote.validate(); err != nil {
		return nil, err
	}
	if cfg.Payments.AmountEpsilonCents < 0 {
		return nil, fmt.Errorf("%s must not be negative", EnvAmountEpsilon)
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"STOREFRONT_APP_ENV" required:"true"`
	Port         string `envconfig:"STOREFRONT_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"STOREFRONT_LOG_LEVEL" default:"info"`
	LogFormat    string `envconfig:"STOREFRONT_LOG_FORMAT" default:"json"`
	LogWarnStack bool   `envconfig:"STOREFRONT_LOG_WARN_STACK" default:"false"`
	// CORSOrigins is a comma separated allow list for the storefront frontends.
	CORSOrigins []string `envconfig:"STOREFRONT_CORS_ORIGINS" default:"http://localhost:3000"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN string `envconfig:"STOREFRONT_DB_DSN"`
	// Driver is postgres or sqlite.
	Driver string `envconfig:"STOREFRONT_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"STOREFRONT_DB_HOST"`
	LegacyPort     int    `envconfig:"STOREFRONT_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"STOREFRONT_DB_USER"`
	LegacyPassword string `envconfig:"STOREFRONT_DB_PASSWORD"`
	LegacyName     string `envconfig:"STOREFRONT_DB_NAME"`
	LegacySSLMode  string `envconfig:"STOREFRONT_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"STOREFRONT_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"STOREFRONT_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"STOREFRONT_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"STOREFRONT_DB_CONN_MAX_IDLE_TIME" default:"10m"`

	// SlowQueryThreshold logs statements slower than this at warn. Zero disables.
	SlowQueryThreshold time.Duration `envconfig:"STOREFRONT_DB_SLOW_QUERY_THRESHOLD" default:"500ms"`
}

type RedisConfig struct {
	URL          string        `envconfig:"STOREFRONT_REDIS_URL" required:"true"`
	Address      string        `envconfig:"STOREFRONT_REDIS_ADDR"`
	Password     string        `envconfig:"STOREFRONT_REDIS_PASSWORD"`
	DB           int           `envconfig:"STOREFRONT_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"STOREFRONT_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"STOREFRONT_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"STOREFRONT_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"STOREFRONT_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"STOREFRONT_REDIS_WRITE_TIMEOUT" default:"5s"`
	// IdempotencyTTL bounds how long Idempotency-Key responses are replayed.
	IdempotencyTTL time.Duration `envconfig:"STOREFRONT_REDIS_IDEMPOTENCY_TTL" default:"24h"`
}

// JWTConfig describes the tokens minted by the identity provider. The core only verifies them.
type JWTConfig struct {
	Secret string `envconfig:"STOREFRONT_JWT_SECRET" required:"true"`
	Issuer string `envconfig:"STOREFRONT_JWT_ISSUER" required:"true"`
	// Audience is checked only when set.
	Audience string        `envconfig:"STOREFRONT_JWT_AUDIENCE"`
	Leeway   time.Duration `envconfig:"STOREFRONT_JWT_LEEWAY" default:"30s"`
}

type CartConfig struct {
	TTL time.Duration `envconfig:"STOREFRONT_CART_TTL" default:"10m"`
}

type QuoteConfig struct {
	Secret string        `envconfig:"STOREFRONT_QUOTE_SECRET" required:"true"`
	TTL    time.Duration `envconfig:"STOREFRONT_QUOTE_TTL" default:"15m"`
}

func (q QuoteConfig) validate() error {
	if len(strings.TrimSpace(q.Secret)) < 16 {
		return fmt.Errorf("%s must be at least 16 characters", EnvQuoteSecret)
	}
	if q.TTL <= 0 {
		return fmt.Errorf("quote ttl must be positive")
	}
	return nil
}

type ShippingConfig struct {
	BaseURL          string        `envconfig:"STOREFRONT_SHIPPING_BASE_URL" required:"true"`
	APIKey           string        `envconfig:"STOREFRONT_SHIPPING_API_KEY" required:"true"`
	OriginPostalCode string        `envconfig:"STOREFRONT_SHIPPING_ORIGIN_POSTAL_CODE" required:"true"`
	Timeout          time.Duration `envconfig:"STOREFRONT_SHIPPING_TIMEOUT" default:"5s"`
}

type SquareConfig struct {
	Env            string        `envconfig:"STOREFRONT_SQUARE_ENV" default:"sandbox"`
	AccessToken    string        `envconfig:"STOREFRONT_SQUARE_ACCESS_TOKEN" required:"true"`
	LocationID     string        `envconfig:"STOREFRONT_SQUARE_LOCATION_ID" required:"true"`
	WebhookSecret  string        `envconfig:"STOREFRONT_SQUARE_WEBHOOK_SECRET" required:"true"`
	WebhookURL     string        `envconfig:"STOREFRONT_SQUARE_WEBHOOK_URL" required:"true"`
	RedirectURL    string        `envconfig:"STOREFRONT_SQUARE_REDIRECT_URL"`
	Currency       string        `envconfig:"STOREFRONT_SQUARE_CURRENCY" default:"USD"`
	RequestTimeout time.Duration `envconfig:"STOREFRONT_SQUARE_TIMEOUT" default:"10s"`
}

// Environment returns the normalized Square environment (sandbox/production).
func (s SquareConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "sandbox"
	}
	return env
}

type PaymentsConfig struct {
	// AmountEpsilonCents is the rounding tolerance when comparing paid amounts to order totals.
	AmountEpsilonCents int64 `envconfig:"STOREFRONT_PAYMENT_AMOUNT_EPSILON_CENTS" default:"2"`
}

type RateLimitConfig struct {
	Enabled     bool          `envconfig:"STOREFRONT_RATE_LIMIT_ENABLED" default:"true"`
	Window      time.Duration `envconfig:"STOREFRONT_RATE_LIMIT_WINDOW" default:"1m"`
	QuoteLimit  int           `envconfig:"STOREFRONT_RATE_LIMIT_QUOTE" default:"20"`
	OrderLimit  int           `envconfig:"STOREFRONT_RATE_LIMIT_ORDER" default:"10"`
	CartLimit   int           `envconfig:"STOREFRONT_RATE_LIMIT_CART" default:"120"`
	UseInMemory bool          `envconfig:"STOREFRONT_RATE_LIMIT_IN_MEMORY" default:"false"`
}

type CronConfig struct {
	Interval       time.Duration `envconfig:"STOREFRONT_CRON_INTERVAL" default:"1m"`
	LockTTL        time.Duration `envconfig:"STOREFRONT_CRON_LOCK_TTL" default:"2m"`
	JobTimeout     time.Duration `envconfig:"STOREFRONT_CRON_JOB_TIMEOUT" default:"45s"`
	CartSweepLimit int           `envconfig:"STOREFRONT_CRON_CART_SWEEP_LIMIT" default:"500"`
	MetricsAddr    string        `envconfig:"STOREFRONT_CRON_METRICS_ADDR" default:":9090"`
}

type OutboxConfig struct {
	BatchSize   int `envconfig:"STOREFRONT_OUTBOX_BATCH_SIZE" default:"50"`
	MaxAttempts int `envconfig:"STOREFRONT_OUTBOX_MAX_ATTEMPTS" default:"10"`
	// RetentionDays is how long published rows are kept before the retention job prunes them.
	RetentionDays int `envconfig:"STOREFRONT_OUTBOX_RETENTION_DAYS" default:"30"`
}

type NotifyConfig struct {
	TelegramBotToken string `envconfig:"STOREFRONT_TELEGRAM_BOT_TOKEN"`
	TelegramChatID   string `envconfig:"STOREFRONT_TELEGRAM_CHAT_ID"`
	TelegramBaseURL  string `envconfig:"STOREFRONT_TELEGRAM_BASE_URL" default:"https://api.telegram.org"`
	SendgridAPIKey   string `envconfig:"STOREFRONT_SENDGRID_API_KEY"`
	SendgridFrom     string `envconfig:"STOREFRONT_SENDGRID_FROM_EMAIL"`
	// OperatorEmails is a comma separated list of addresses notified about paid orders.
	OperatorEmails []string      `envconfig:"STOREFRONT_OPERATOR_EMAILS"`
	Timeout        time.Duration `envconfig:"STOREFRONT_NOTIFY_TIMEOUT" default:"5s"`
}

// TelegramEnabled reports whether both Telegram credentials are configured.
func (n NotifyConfig) TelegramEnabled() bool {
	return strings.TrimSpace(n.TelegramBotToken) != "" && strings.TrimSpace(n.TelegramChatID) != ""
}

// SendgridEnabled reports whether email notifications can be sent.
func (n NotifyConfig) SendgridEnabled() bool {
	return strings.TrimSpace(n.SendgridAPIKey) != "" && strings.TrimSpace(n.SendgridFrom) != "" && len(n.OperatorEmails) > 0
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"STOREFRONT_AUTO_MIGRATE" default:"false"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}
	if strings.EqualFold(db.Driver, "sqlite") {
		return fmt.Errorf("%s is required for the sqlite driver", EnvDBDSN)
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
