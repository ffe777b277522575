package config

const EnvPrefix = "MARKETPLACE"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	DBDriverPostgres = "postgres"
	DBDriverSQLite   = "sqlite"

	OutboxSinkPubSub = "pubsub"
	OutboxSinkKafka  = "kafka"

	defaultSQLiteDSN = "file:marketplace.db?_busy_timeout=5000&_foreign_keys=on"
)

const (
	EnvAppEnv                = "MARKETPLACE_APP_ENV"
	EnvPort                  = "MARKETPLACE_APP_PORT"
	EnvDBDSN                 = "MARKETPLACE_DB_DSN"
	EnvDBDriver              = "MARKETPLACE_DB_DRIVER"
	EnvDBHost                = "MARKETPLACE_DB_HOST"
	EnvDBUser                = "MARKETPLACE_DB_USER"
	EnvDBName                = "MARKETPLACE_DB_NAME"
	EnvRedisURL              = "MARKETPLACE_REDIS_URL"
	EnvJWTSecret             = "MARKETPLACE_JWT_SECRET"
	EnvJWTIssuer             = "MARKETPLACE_JWT_ISSUER"
	EnvJWTExpMins            = "MARKETPLACE_JWT_EXPIRATION_MINUTES"
	EnvUseSQLite             = "MARKETPLACE_USE_SQLITE"
	EnvDefaultCommissionRate = "MARKETPLACE_DEFAULT_COMMISSION_RATE"
	EnvCashMatchTolerance    = "MARKETPLACE_CASH_MATCH_TOLERANCE_CENTS"
	EnvKafkaBrokers          = "MARKETPLACE_KAFKA_BROKERS"
	EnvOutboxSink            = "MARKETPLACE_OUTBOX_SINK"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
