package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	// Database
	DBDriver   string `env:"DB_DRIVER" envDefault:"postgres"`
	DBHost     string `env:"DB_HOST" envDefault:"localhost"`
	DBPort     string `env:"DB_PORT" envDefault:"5432"`
	DBUser     string `env:"DB_USER" envDefault:"postgres"`
	DBPassword string `env:"DB_PASSWORD"`
	DBName     string `env:"DB_NAME" envDefault:"auth_db"`
	DBSSLMode  string `env:"DB_SSLMODE" envDefault:"disable"`
	SQLitePath string `env:"SQLITE_PATH" envDefault:"auth.db"`

	// JWT
	JWTSecret        string        `env:"JWT_SECRET"`
	JWTAlgorithm     string        `env:"JWT_ALGORITHM" envDefault:"HS256"`
	JWTAccessExpiry  time.Duration `env:"JWT_ACCESS_EXPIRY" envDefault:"15m"`
	JWTRefreshExpiry time.Duration `env:"JWT_REFRESH_EXPIRY" envDefault:"168h"`
	BcryptCost       int           `env:"BCRYPT_COST" envDefault:"10"`

	// Server
	Host         string `env:"HOST" envDefault:"0.0.0.0"`
	Port         string `env:"PORT" envDefault:"8000"`
	CORSOrigins  string `env:"CORS_ORIGINS" envDefault:"http://localhost:5173"`
	CookieSecure bool   `env:"COOKIE_SECURE" envDefault:"false"`

	// Rate limiting (0 disables a limiter)
	RateLimitMax     int    `env:"RATE_LIMIT_MAX" envDefault:"60"`
	AuthRateLimitMax int    `env:"AUTH_RATE_LIMIT_MAX" envDefault:"10"`
	RedisURL         string `env:"REDIS_URL"`

	// Maintenance
	TokenSweepInterval time.Duration `env:"TOKEN_SWEEP_INTERVAL" envDefault:"1h"`
	LogRetention       time.Duration `env:"LOG_RETENTION" envDefault:"720h"`
	LogLevel           string        `env:"LOG_LEVEL" envDefault:"info"`

	// Error tracking
	SentryDSN string `env:"SENTRY_DSN"`
	AppEnv    string `env:"APP_ENV" envDefault:"development"`
}

var supportedAlgorithms = map[string]bool{
	"HS256": true,
	"HS384": true,
	"HS512": true,
}

// Load reads the configuration from the environment. The result is not
// validated; call Validate before using it to start the server.
func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	return &cfg, nil
}

// Validate reports misconfigurations the process must not start with.
func (c *Config) Validate() error {
	var errs []error
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET environment variable is required"))
	}
	if !supportedAlgorithms[c.JWTAlgorithm] {
		errs = append(errs, fmt.Errorf("JWT_ALGORITHM %q is not supported (use HS256, HS384 or HS512)", c.JWTAlgorithm))
	}
	if c.JWTAccessExpiry <= 0 {
		errs = append(errs, errors.New("JWT_ACCESS_EXPIRY must be positive"))
	}
	if c.JWTRefreshExpiry <= 0 {
		errs = append(errs, errors.New("JWT_REFRESH_EXPIRY must be positive"))
	}
	switch c.DBDriver {
	case "postgres":
		if c.DBPassword == "" {
			errs = append(errs, errors.New("DB_PASSWORD environment variable is required"))
		}
	case "sqlite":
	default:
		errs = append(errs, fmt.Errorf("DB_DRIVER %q is not supported (use postgres or sqlite)", c.DBDriver))
	}
	return errors.Join(errs...)
}

func (c *Config) DSN() string {
	return "host=" + c.DBHost +
		" user=" + c.DBUser +
		" password=" + c.DBPassword +
		" dbname=" + c.DBName +
		" port=" + c.DBPort +
		" sslmode=" + c.DBSSLMode +
		" TimeZone=UTC"
}

// Addr is the listen address for the HTTP server.
func (c *Config) Addr() string {
	return c.Host + ":" + c.Port
}

// AllowCredentials is false for wildcard origins, which browsers reject
// together with credentials.
func (c *Config) AllowCredentials() bool {
	return strings.TrimSpace(c.CORSOrigins) != "*"
}
