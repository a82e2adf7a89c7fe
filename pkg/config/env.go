package config

const EnvPrefix = "BLOODBANK"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	DBDriverSQLite   = "sqlite"
	DBDriverPostgres = "postgres"

	DefaultSQLiteDSN = "file:bloodbank.sqlite"
)

const (
	EnvAppEnv   = "BLOODBANK_APP_ENV"
	EnvPort     = "BLOODBANK_APP_PORT"
	EnvLogLevel = "BLOODBANK_LOG_LEVEL"

	EnvDBDSN    = "BLOODBANK_DB_DSN"
	EnvDBDriver = "BLOODBANK_DB_DRIVER"
	EnvDBHost   = "BLOODBANK_DB_HOST"
	EnvDBPort   = "BLOODBANK_DB_PORT"
	EnvDBUser   = "BLOODBANK_DB_USER"
	EnvDBPass   = "BLOODBANK_DB_PASSWORD"
	EnvDBName   = "BLOODBANK_DB_NAME"

	EnvRedisURL = "BLOODBANK_REDIS_URL"

	EnvJWTSecret              = "BLOODBANK_JWT_SECRET"
	EnvJWTIssuer              = "BLOODBANK_JWT_ISSUER"
	EnvJWTExpMins             = "BLOODBANK_JWT_EXPIRATION_MINUTES"
	EnvRefreshTokenTTLMinutes = "BLOODBANK_REFRESH_TOKEN_TTL_MINUTES"

	EnvAutoMigrate           = "BLOODBANK_AUTO_MIGRATE"
	EnvAllowPrivilegedSignup = "BLOODBANK_ALLOW_PRIVILEGED_SIGNUP"

	EnvAuditQueueSize = "BLOODBANK_AUDIT_QUEUE_SIZE"

	EnvAdminEmail    = "BLOODBANK_ADMIN_EMAIL"
	EnvAdminPassword = "BLOODBANK_ADMIN_PASSWORD"
	EnvAdminName     = "BLOODBANK_ADMIN_NAME"

	EnvCORSAllowedOrigins = "BLOODBANK_CORS_ALLOWED_ORIGINS"
)
