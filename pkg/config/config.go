package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	EnvPrefix = ""

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvDBDSN  = "COMMUNITAS_DB_DSN"
	EnvDBHost = "COMMUNITAS_DB_HOST"
	EnvDBUser = "COMMUNITAS_DB_USER"
	EnvDBName = "COMMUNITAS_DB_NAME"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

type Config struct {
	App          AppConfig
	DB           DBConfig
	Redis        RedisConfig
	Stripe       StripeConfig
	Platform     PlatformConfig
	Scheduler    SchedulerConfig
	Entitlements EntitlementsConfig
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
	if err := cfg.Platform.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string   `envconfig:"COMMUNITAS_APP_ENV" required:"true"`
	Port         string   `envconfig:"COMMUNITAS_APP_PORT" required:"true"`
	LogLevel     string   `envconfig:"COMMUNITAS_LOG_LEVEL" default:"info"`
	LogWarnStack bool     `envconfig:"COMMUNITAS_LOG_WARN_STACK" default:"false"`
	CORSOrigins  []string `envconfig:"COMMUNITAS_CORS_ORIGINS" default:"http://localhost:3000"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"COMMUNITAS_DB_DSN"`
	Driver string `envconfig:"COMMUNITAS_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"COMMUNITAS_DB_HOST"`
	LegacyPort     int    `envconfig:"COMMUNITAS_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"COMMUNITAS_DB_USER"`
	LegacyPassword string `envconfig:"COMMUNITAS_DB_PASSWORD"`
	LegacyName     string `envconfig:"COMMUNITAS_DB_NAME"`
	LegacySSLMode  string `envconfig:"COMMUNITAS_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"COMMUNITAS_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"COMMUNITAS_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"COMMUNITAS_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"COMMUNITAS_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"COMMUNITAS_REDIS_URL" required:"true"`
	Address      string        `envconfig:"COMMUNITAS_REDIS_ADDR"`
	Password     string        `envconfig:"COMMUNITAS_REDIS_PASSWORD"`
	DB           int           `envconfig:"COMMUNITAS_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"COMMUNITAS_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"COMMUNITAS_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"COMMUNITAS_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"COMMUNITAS_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"COMMUNITAS_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type StripeConfig struct {
	APIKey         string        `envconfig:"COMMUNITAS_STRIPE_API_KEY"`
	Secret         string        `envconfig:"COMMUNITAS_STRIPE_WEBHOOK_SECRET"`
	Env            string        `envconfig:"COMMUNITAS_STRIPE_ENV" default:"test"`
	RequestTimeout time.Duration `envconfig:"COMMUNITAS_STRIPE_REQUEST_TIMEOUT" default:"10s"`
	MaxRetries     int           `envconfig:"COMMUNITAS_STRIPE_MAX_RETRIES" default:"3"`
	GuardTTL       time.Duration `envconfig:"COMMUNITAS_STRIPE_EVENT_GUARD_TTL" default:"72h"`
}

// Environment returns the normalized Stripe environment (test/live).
func (s StripeConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "test"
	}
	return env
}

// PlatformConfig carries platform-wide billing policy.
type PlatformConfig struct {
	// FeeBps is the platform cut applied to creator revenue, in basis points.
	// 1000 bps = 10%.
	FeeBps int `envconfig:"COMMUNITAS_PLATFORM_FEE_BPS" default:"1000"`
}

func (p PlatformConfig) validate() error {
	if p.FeeBps < 0 || p.FeeBps > 10000 {
		return fmt.Errorf("platform fee must be between 0 and 10000 bps, got %d", p.FeeBps)
	}
	return nil
}

type SchedulerConfig struct {
	Interval          time.Duration `envconfig:"COMMUNITAS_SCHEDULER_INTERVAL" default:"1h"`
	LockTTL           time.Duration `envconfig:"COMMUNITAS_SCHEDULER_LOCK_TTL" default:"2h"`
	EventRetention    time.Duration `envconfig:"COMMUNITAS_PROCESSED_EVENT_RETENTION" default:"720h"`
	ReconcileLimit    int           `envconfig:"COMMUNITAS_LEDGER_RECONCILE_LIMIT" default:"250"`
	ReconcileLookback time.Duration `envconfig:"COMMUNITAS_LEDGER_RECONCILE_LOOKBACK" default:"168h"`
}

type EntitlementsConfig struct {
	// GraceWindow is how long a subscription may sit in past_due before the
	// scheduler moves it to unpaid and revokes access.
	GraceWindow time.Duration `envconfig:"COMMUNITAS_PAST_DUE_GRACE_WINDOW" default:"168h"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"COMMUNITAS_AUTO_MIGRATE" default:"false"`
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
