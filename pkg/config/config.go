package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
)

type Config struct {
	App          AppConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	FeatureFlags FeatureFlagsConfig
	Engine       EngineConfig
	Realtime     RealtimeConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Kafka        KafkaConfig
	Outbox       OutboxConfig
	RateLimit    RateLimitConfig
	Maintenance  MaintenanceConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if cfg.FeatureFlags.UseSQLite {
		cfg.DB.Driver = DBDriverSQLite
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if _, err := cfg.Engine.CommissionRate(); err != nil {
		return nil, err
	}
	if err := cfg.Outbox.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"MARKETPLACE_APP_ENV" required:"true"`
	Port         string `envconfig:"MARKETPLACE_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"MARKETPLACE_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"MARKETPLACE_LOG_WARN_STACK" default:"false"`
	LogFormat    string `envconfig:"MARKETPLACE_LOG_FORMAT" default:"json"`

	CORSAllowedOrigins []string `envconfig:"MARKETPLACE_CORS_ALLOWED_ORIGINS" default:"http://localhost:3000"`

	// WorkerMetricsAddr is where the relay and cron worker expose /metrics.
	// Empty disables the listener.
	WorkerMetricsAddr string `envconfig:"MARKETPLACE_WORKER_METRICS_ADDR"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"MARKETPLACE_DB_DSN"`
	Driver string `envconfig:"MARKETPLACE_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"MARKETPLACE_DB_HOST"`
	LegacyPort     int    `envconfig:"MARKETPLACE_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"MARKETPLACE_DB_USER"`
	LegacyPassword string `envconfig:"MARKETPLACE_DB_PASSWORD"`
	LegacyName     string `envconfig:"MARKETPLACE_DB_NAME"`
	LegacySSLMode  string `envconfig:"MARKETPLACE_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"MARKETPLACE_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"MARKETPLACE_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"MARKETPLACE_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"MARKETPLACE_DB_CONN_MAX_IDLE_TIME" default:"10m"`

	SlowQueryThreshold time.Duration `envconfig:"MARKETPLACE_DB_SLOW_QUERY_THRESHOLD" default:"200ms"`
	TxRetries          uint64        `envconfig:"MARKETPLACE_DB_TX_RETRIES" default:"3"`
}

// IsSQLite reports whether the sqlite dialector should be used.
func (db DBConfig) IsSQLite() bool {
	return strings.EqualFold(strings.TrimSpace(db.Driver), DBDriverSQLite)
}

type RedisConfig struct {
	URL          string        `envconfig:"MARKETPLACE_REDIS_URL"`
	Address      string        `envconfig:"MARKETPLACE_REDIS_ADDR"`
	Password     string        `envconfig:"MARKETPLACE_REDIS_PASSWORD"`
	DB           int           `envconfig:"MARKETPLACE_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"MARKETPLACE_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"MARKETPLACE_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"MARKETPLACE_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"MARKETPLACE_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"MARKETPLACE_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// Enabled reports whether a redis endpoint was configured.
func (r RedisConfig) Enabled() bool {
	return strings.TrimSpace(r.URL) != "" || strings.TrimSpace(r.Address) != ""
}

type JWTConfig struct {
	Secret            string `envconfig:"MARKETPLACE_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"MARKETPLACE_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"MARKETPLACE_JWT_EXPIRATION_MINUTES" default:"60"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"MARKETPLACE_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"MARKETPLACE_AUTO_MIGRATE" default:"false"`
}

// EngineConfig holds the money and delivery knobs of the order engine.
type EngineConfig struct {
	DefaultCommissionRate    string        `envconfig:"MARKETPLACE_DEFAULT_COMMISSION_RATE" default:"10"`
	CashMatchToleranceCents  int64         `envconfig:"MARKETPLACE_CASH_MATCH_TOLERANCE_CENTS" default:"0"`
	BaseDeliveryMinutes      int           `envconfig:"MARKETPLACE_BASE_DELIVERY_MINUTES" default:"30"`
	DefaultZoneOffsetMinutes int           `envconfig:"MARKETPLACE_DEFAULT_ZONE_OFFSET_MINUTES" default:"30"`
	RequestTimeout           time.Duration `envconfig:"MARKETPLACE_REQUEST_TIMEOUT" default:"15s"`
}

// CommissionRate parses the default commission percentage.
func (e EngineConfig) CommissionRate() (decimal.Decimal, error) {
	raw := strings.TrimSpace(e.DefaultCommissionRate)
	if raw == "" {
		raw = "10"
	}
	rate, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parsing %s: %w", EnvDefaultCommissionRate, err)
	}
	if rate.IsNegative() || rate.GreaterThan(decimal.NewFromInt(100)) {
		return decimal.Zero, fmt.Errorf("%s must be between 0 and 100, got %s", EnvDefaultCommissionRate, rate)
	}
	return rate, nil
}

type RealtimeConfig struct {
	ChannelPrefix string `envconfig:"MARKETPLACE_REALTIME_CHANNEL_PREFIX" default:"marketplace"`
}

type GCPConfig struct {
	ProjectID string `envconfig:"MARKETPLACE_GCP_PROJECT_ID"`
}

type PubSubConfig struct {
	DomainTopic        string `envconfig:"MARKETPLACE_PUBSUB_DOMAIN_TOPIC" default:"marketplace-domain-events"`
	DomainSubscription string `envconfig:"MARKETPLACE_PUBSUB_DOMAIN_SUBSCRIPTION"`
}

type KafkaConfig struct {
	Brokers []string `envconfig:"MARKETPLACE_KAFKA_BROKERS" default:"localhost:9092"`
	Topic   string   `envconfig:"MARKETPLACE_KAFKA_TOPIC" default:"marketplace.domain-events"`
}

// RateLimitConfig bounds mutating API calls per caller. Zero disables it.
type RateLimitConfig struct {
	WriteLimit  int           `envconfig:"MARKETPLACE_RATE_LIMIT_WRITES" default:"120"`
	WriteWindow time.Duration `envconfig:"MARKETPLACE_RATE_LIMIT_WINDOW" default:"1m"`
}

// MaintenanceConfig drives cmd/cron-worker.
type MaintenanceConfig struct {
	Interval              time.Duration `envconfig:"MARKETPLACE_MAINTENANCE_INTERVAL" default:"1h"`
	OutboxRetention       time.Duration `envconfig:"MARKETPLACE_OUTBOX_RETENTION" default:"720h"`
	NotificationRetention time.Duration `envconfig:"MARKETPLACE_NOTIFICATION_RETENTION" default:"2160h"`
	DLQRetention          time.Duration `envconfig:"MARKETPLACE_OUTBOX_DLQ_RETENTION" default:"2160h"`
	PendingCashGrace      time.Duration `envconfig:"MARKETPLACE_PENDING_CASH_GRACE" default:"24h"`
	DisabledJobs          []string      `envconfig:"MARKETPLACE_MAINTENANCE_DISABLED_JOBS"`
}

type OutboxConfig struct {
	Sink           string `envconfig:"MARKETPLACE_OUTBOX_SINK" default:"pubsub"`
	BatchSize      int    `envconfig:"MARKETPLACE_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int    `envconfig:"MARKETPLACE_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int    `envconfig:"MARKETPLACE_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

func (o OutboxConfig) validate() error {
	switch strings.ToLower(strings.TrimSpace(o.Sink)) {
	case OutboxSinkPubSub, OutboxSinkKafka:
		return nil
	}
	return fmt.Errorf("%s must be one of %q or %q, got %q", EnvOutboxSink, OutboxSinkPubSub, OutboxSinkKafka, o.Sink)
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}
	if db.IsSQLite() {
		db.DSN = defaultSQLiteDSN
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
