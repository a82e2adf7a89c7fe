package config

import (
	"fmt"
	"net"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"go.uber.org/multierr"
)

const minProdSecretLen = 32

type Config struct {
	App           AppConfig
	DB            DBConfig
	Redis         RedisConfig
	JWT           JWTConfig
	Password      PasswordConfig
	AuthRateLimit AuthRateLimitConfig
	FeatureFlags  FeatureFlagsConfig
	Audit         AuditConfig
	Bootstrap     BootstrapConfig
	CORS          CORSConfig
	Maintenance   MaintenanceConfig
}

// Load reads every BLOODBANK_* variable, derives the database DSN when only
// discrete settings were given, and validates the result as a whole.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("read environment: %w", err)
	}
	cfg.DB.Driver = normalizeDriver(cfg.DB.Driver)
	if err := cfg.DB.resolveDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports every inconsistent setting at once.
func (c *Config) Validate() error {
	var errs error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = multierr.Append(errs, fmt.Errorf(format, args...))
		}
	}

	check(c.DB.Driver == DBDriverSQLite || c.DB.Driver == DBDriverPostgres,
		"%s must be %s or %s, got %q", EnvDBDriver, DBDriverSQLite, DBDriverPostgres, c.DB.Driver)
	check(c.App.LogFormat == "json" || c.App.LogFormat == "console",
		"BLOODBANK_LOG_FORMAT must be json or console, got %q", c.App.LogFormat)
	check(!c.App.IsProd() || len(c.JWT.Secret) >= minProdSecretLen,
		"%s must be at least %d bytes in prod", EnvJWTSecret, minProdSecretLen)
	check(c.JWT.ExpirationMinutes > 0, "%s must be positive", EnvJWTExpMins)
	check(c.JWT.RefreshTokenTTL() > time.Duration(c.JWT.ExpirationMinutes)*time.Minute,
		"%s must exceed the access token lifetime", EnvRefreshTokenTTLMinutes)
	check(c.Audit.QueueSize > 0, "%s must be positive", EnvAuditQueueSize)
	if c.Maintenance.Enabled {
		check(c.Maintenance.Interval > 0, "BLOODBANK_MAINTENANCE_INTERVAL must be positive")
		check(c.Maintenance.LockTTL <= c.Maintenance.Interval,
			"BLOODBANK_MAINTENANCE_LOCK_TTL must not exceed the interval")
	}
	if errs != nil {
		return fmt.Errorf("invalid config: %w", errs)
	}
	return nil
}

type AppConfig struct {
	Env             string        `envconfig:"BLOODBANK_APP_ENV" default:"dev"`
	Port            string        `envconfig:"BLOODBANK_APP_PORT" default:"8080"`
	LogLevel        string        `envconfig:"BLOODBANK_LOG_LEVEL" default:"info"`
	LogFormat       string        `envconfig:"BLOODBANK_LOG_FORMAT" default:"json"`
	LogWarnStack    bool          `envconfig:"BLOODBANK_LOG_WARN_STACK" default:"false"`
	ShutdownTimeout time.Duration `envconfig:"BLOODBANK_SHUTDOWN_TIMEOUT" default:"15s"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"BLOODBANK_DB_DSN"`
	Driver string `envconfig:"BLOODBANK_DB_DRIVER" default:"sqlite"`

	// Discrete Postgres settings, used only when DSN is empty.
	Host     string `envconfig:"BLOODBANK_DB_HOST"`
	Port     int    `envconfig:"BLOODBANK_DB_PORT" default:"5432"`
	User     string `envconfig:"BLOODBANK_DB_USER"`
	Password string `envconfig:"BLOODBANK_DB_PASSWORD"`
	Name     string `envconfig:"BLOODBANK_DB_NAME"`
	SSLMode  string `envconfig:"BLOODBANK_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"BLOODBANK_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"BLOODBANK_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"BLOODBANK_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"BLOODBANK_DB_CONN_MAX_IDLE_TIME" default:"10m"`

	ConnectAttempts int           `envconfig:"BLOODBANK_DB_CONNECT_ATTEMPTS" default:"5"`
	ConnectBackoff  time.Duration `envconfig:"BLOODBANK_DB_CONNECT_BACKOFF" default:"500ms"`
	BusyTimeout     time.Duration `envconfig:"BLOODBANK_DB_BUSY_TIMEOUT" default:"5s"`
}

// IsSQLite reports whether the configured driver is the embedded SQLite engine.
func (db DBConfig) IsSQLite() bool {
	return normalizeDriver(db.Driver) == DBDriverSQLite
}

func normalizeDriver(driver string) string {
	switch d := strings.ToLower(strings.TrimSpace(driver)); d {
	case "sqlite3":
		return DBDriverSQLite
	case "postgresql", "pgx":
		return DBDriverPostgres
	default:
		return d
	}
}

type RedisConfig struct {
	URL          string        `envconfig:"BLOODBANK_REDIS_URL" required:"true"`
	Address      string        `envconfig:"BLOODBANK_REDIS_ADDR"`
	Password     string        `envconfig:"BLOODBANK_REDIS_PASSWORD"`
	DB           int           `envconfig:"BLOODBANK_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"BLOODBANK_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"BLOODBANK_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"BLOODBANK_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"BLOODBANK_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"BLOODBANK_REDIS_WRITE_TIMEOUT" default:"5s"`

	KeyPrefix       string        `envconfig:"BLOODBANK_REDIS_KEY_PREFIX" default:"bb"`
	ConnectAttempts int           `envconfig:"BLOODBANK_REDIS_CONNECT_ATTEMPTS" default:"5"`
	ConnectBackoff  time.Duration `envconfig:"BLOODBANK_REDIS_CONNECT_BACKOFF" default:"500ms"`
}

type JWTConfig struct {
	Secret                 string `envconfig:"BLOODBANK_JWT_SECRET" required:"true"`
	Issuer                 string `envconfig:"BLOODBANK_JWT_ISSUER" default:"bloodbank"`
	ExpirationMinutes      int    `envconfig:"BLOODBANK_JWT_EXPIRATION_MINUTES" default:"120"`
	RefreshTokenTTLMinutes int    `envconfig:"BLOODBANK_REFRESH_TOKEN_TTL_MINUTES" default:"43200"`
}

// RefreshTokenTTL returns the refresh token TTL configured in minutes.
func (j JWTConfig) RefreshTokenTTL() time.Duration {
	if j.RefreshTokenTTLMinutes <= 0 {
		return 0
	}
	return time.Duration(j.RefreshTokenTTLMinutes) * time.Minute
}

type PasswordConfig struct {
	ArgonMemoryKB    int `envconfig:"BLOODBANK_ARGON_MEMORY_KB" default:"65536"`
	ArgonTime        int `envconfig:"BLOODBANK_ARGON_TIME" default:"3"`
	ArgonParallelism int `envconfig:"BLOODBANK_ARGON_PARALLELISM" default:"2"`
	ArgonSaltLen     int `envconfig:"BLOODBANK_ARGON_SALT_LEN" default:"16"`
	ArgonKeyLen      int `envconfig:"BLOODBANK_ARGON_KEY_LEN" default:"32"`
}

type AuthRateLimitConfig struct {
	LoginWindow        time.Duration `envconfig:"BLOODBANK_AUTH_RATE_LIMIT_LOGIN_WINDOW" default:"1m"`
	LoginEmailLimit    int           `envconfig:"BLOODBANK_AUTH_RATE_LIMIT_LOGIN_EMAIL_LIMIT" default:"5"`
	LoginIPLimit       int           `envconfig:"BLOODBANK_AUTH_RATE_LIMIT_LOGIN_IP_LIMIT" default:"20"`
	RegisterWindow     time.Duration `envconfig:"BLOODBANK_AUTH_RATE_LIMIT_REGISTER_WINDOW" default:"5m"`
	RegisterEmailLimit int           `envconfig:"BLOODBANK_AUTH_RATE_LIMIT_REGISTER_EMAIL_LIMIT" default:"3"`
	RegisterIPLimit    int           `envconfig:"BLOODBANK_AUTH_RATE_LIMIT_REGISTER_IP_LIMIT" default:"20"`
}

type FeatureFlagsConfig struct {
	AutoMigrate           bool `envconfig:"BLOODBANK_AUTO_MIGRATE" default:"false"`
	AllowPrivilegedSignup bool `envconfig:"BLOODBANK_ALLOW_PRIVILEGED_SIGNUP" default:"false"`
}

type AuditConfig struct {
	QueueSize    int           `envconfig:"BLOODBANK_AUDIT_QUEUE_SIZE" default:"1024"`
	WriteTimeout time.Duration `envconfig:"BLOODBANK_AUDIT_WRITE_TIMEOUT" default:"3s"`
	FlushTimeout time.Duration `envconfig:"BLOODBANK_AUDIT_FLUSH_TIMEOUT" default:"5s"`
}

// BootstrapConfig seeds the first administrator when no admin exists yet.
type BootstrapConfig struct {
	AdminEmail    string `envconfig:"BLOODBANK_ADMIN_EMAIL"`
	AdminPassword string `envconfig:"BLOODBANK_ADMIN_PASSWORD"`
	AdminName     string `envconfig:"BLOODBANK_ADMIN_NAME" default:"Administrator"`
}

// Enabled reports whether both admin credentials were supplied.
func (b BootstrapConfig) Enabled() bool {
	return strings.TrimSpace(b.AdminEmail) != "" && b.AdminPassword != ""
}

// MaintenanceConfig drives the in-process scheduled jobs.
type MaintenanceConfig struct {
	Enabled            bool          `envconfig:"BLOODBANK_MAINTENANCE_ENABLED" default:"true"`
	Interval           time.Duration `envconfig:"BLOODBANK_MAINTENANCE_INTERVAL" default:"1h"`
	LockTTL            time.Duration `envconfig:"BLOODBANK_MAINTENANCE_LOCK_TTL" default:"50m"`
	JobTimeout         time.Duration `envconfig:"BLOODBANK_MAINTENANCE_JOB_TIMEOUT"`
	AuditRetentionDays int           `envconfig:"BLOODBANK_AUDIT_RETENTION_DAYS" default:"365"`
}

// AuditRetention returns how long audit rows are kept. Zero disables pruning.
func (m MaintenanceConfig) AuditRetention() time.Duration {
	if m.AuditRetentionDays <= 0 {
		return 0
	}
	return time.Duration(m.AuditRetentionDays) * 24 * time.Hour
}

type CORSConfig struct {
	AllowedOrigins   []string      `envconfig:"BLOODBANK_CORS_ALLOWED_ORIGINS" default:"http://localhost:3000,http://localhost:5173"`
	AllowCredentials bool          `envconfig:"BLOODBANK_CORS_ALLOW_CREDENTIALS" default:"true"`
	MaxAge           time.Duration `envconfig:"BLOODBANK_CORS_MAX_AGE" default:"5m"`
}

// resolveDSN fills DSN from the discrete Postgres settings, or from the
// bundled SQLite file when the embedded driver is selected.
func (db *DBConfig) resolveDSN() error {
	switch {
	case db.DSN != "":
		return nil
	case db.IsSQLite():
		db.DSN = DefaultSQLiteDSN
		return nil
	}

	var missing []string
	for env, value := range map[string]string{EnvDBHost: db.Host, EnvDBUser: db.User, EnvDBName: db.Name} {
		if strings.TrimSpace(value) == "" {
			missing = append(missing, env)
		}
	}
	if len(missing) > 0 {
		slices.Sort(missing)
		return fmt.Errorf("set %s or all of %s", EnvDBDSN, strings.Join(missing, ", "))
	}

	dsn := url.URL{
		Scheme: "postgres",
		User:   url.User(db.User),
		Host:   net.JoinHostPort(db.Host, strconv.Itoa(db.Port)),
		Path:   "/" + db.Name,
	}
	if db.Password != "" {
		dsn.User = url.UserPassword(db.User, db.Password)
	}
	if db.SSLMode != "" {
		dsn.RawQuery = url.Values{"sslmode": {db.SSLMode}}.Encode()
	}
	db.DSN = dsn.String()
	return nil
}
