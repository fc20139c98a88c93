package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App        AppConfig
	Service    ServiceConfig
	DB         DBConfig
	Redis      RedisConfig
	JWT        JWTConfig
	Stripe     StripeConfig
	Settlement SettlementConfig
	GCP        GCPConfig
	PubSub     PubSubConfig
	Outbox     OutboxConfig
	Cron       CronConfig
	Features   FeatureFlagsConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Settlement.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"BEARTASK_APP_ENV" required:"true"`
	Port         string `envconfig:"BEARTASK_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"BEARTASK_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"BEARTASK_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"BEARTASK_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"BEARTASK_DB_DSN"`
	Driver string `envconfig:"BEARTASK_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"BEARTASK_DB_HOST"`
	LegacyPort     int    `envconfig:"BEARTASK_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"BEARTASK_DB_USER"`
	LegacyPassword string `envconfig:"BEARTASK_DB_PASSWORD"`
	LegacyName     string `envconfig:"BEARTASK_DB_NAME"`
	LegacySSLMode  string `envconfig:"BEARTASK_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"BEARTASK_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"BEARTASK_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"BEARTASK_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"BEARTASK_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"BEARTASK_REDIS_URL" required:"true"`
	Address      string        `envconfig:"BEARTASK_REDIS_ADDR"`
	Password     string        `envconfig:"BEARTASK_REDIS_PASSWORD"`
	DB           int           `envconfig:"BEARTASK_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"BEARTASK_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"BEARTASK_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"BEARTASK_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"BEARTASK_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"BEARTASK_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"BEARTASK_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"BEARTASK_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"BEARTASK_JWT_EXPIRATION_MINUTES" default:"60"`
}

type StripeConfig struct {
	APIKey        string        `envconfig:"BEARTASK_STRIPE_API_KEY"`
	WebhookSecret string        `envconfig:"BEARTASK_STRIPE_WEBHOOK_SECRET"`
	Env           string        `envconfig:"BEARTASK_STRIPE_ENV" default:"test"`
	SuccessURL    string        `envconfig:"BEARTASK_STRIPE_SUCCESS_URL" default:"https://beartask.app/success"`
	CancelURL     string        `envconfig:"BEARTASK_STRIPE_CANCEL_URL" default:"https://beartask.app/community"`
	EventDedupTTL time.Duration `envconfig:"BEARTASK_STRIPE_EVENT_DEDUP_TTL" default:"720h"`
}

// Environment returns the normalized Stripe environment (test/live).
func (s StripeConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "test"
	}
	return env
}

// SettlementConfig drives the revenue split defaults and the allowed support tiers.
type SettlementConfig struct {
	SupportTiersCents      []int64       `envconfig:"BEARTASK_SUPPORT_TIERS_CENTS" default:"500,1000,2500,5000"`
	CreatorSharePct        int           `envconfig:"BEARTASK_CREATOR_SHARE_PCT" default:"30"`
	AmbassadorSharePct     int           `envconfig:"BEARTASK_AMBASSADOR_SHARE_PCT" default:"10"`
	LotterySharePct        int           `envconfig:"BEARTASK_LOTTERY_SHARE_PCT" default:"60"`
	PendingPurchaseTTL     time.Duration `envconfig:"BEARTASK_PENDING_PURCHASE_TTL" default:"24h"`
	PayoutTransferCurrency string        `envconfig:"BEARTASK_PAYOUT_CURRENCY" default:"usd"`
}

func (s SettlementConfig) validate() error {
	if len(s.SupportTiersCents) == 0 {
		return fmt.Errorf("at least one support tier is required")
	}
	for _, tier := range s.SupportTiersCents {
		if tier <= 0 {
			return fmt.Errorf("support tier must be positive, got %d", tier)
		}
	}
	if s.CreatorSharePct+s.AmbassadorSharePct+s.LotterySharePct != 100 {
		return fmt.Errorf("default share percentages must sum to 100")
	}
	return nil
}

// AllowsTier reports whether the amount matches one of the configured support tiers.
func (s SettlementConfig) AllowsTier(amountCents int64) bool {
	for _, tier := range s.SupportTiersCents {
		if tier == amountCents {
			return true
		}
	}
	return false
}

type GCPConfig struct {
	ProjectID              string `envconfig:"BEARTASK_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"BEARTASK_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"BEARTASK_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	SettlementTopic        string `envconfig:"BEARTASK_PUBSUB_SETTLEMENT_TOPIC" default:"bt-settlement-events"`
	PayoutTopic            string `envconfig:"BEARTASK_PUBSUB_PAYOUT_TOPIC" default:"bt-payout-events"`
	SettlementSubscription string `envconfig:"BEARTASK_PUBSUB_SETTLEMENT_SUBSCRIPTION"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"BEARTASK_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"BEARTASK_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"BEARTASK_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

type CronConfig struct {
	Interval time.Duration `envconfig:"BEARTASK_CRON_INTERVAL" default:"1h"`
	LockTTL  time.Duration `envconfig:"BEARTASK_CRON_LOCK_TTL" default:"55m"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"BEARTASK_AUTO_MIGRATE" default:"false"`
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
