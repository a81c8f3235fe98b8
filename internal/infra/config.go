package infra

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/trustplane/platform/internal/policy"
)

// insecureDefault is the placeholder secret shipped in dev compose files.
// Validate refuses to start with it unless ALLOW_INSECURE_DEFAULTS is set.
const insecureDefault = "change-me-in-production"

// Config holds all application configuration parsed from environment variables.
type Config struct {
	// Databases. The zero-trust store and the audit store may point at the
	// same instance, but the audit store is deployed separately in
	// production so a compromise of one cannot silently rewrite the other.
	ZeroTrustDatabaseURL string `env:"ZEROTRUST_DATABASE_URL"`
	AuditDatabaseURL     string `env:"AUDIT_DATABASE_URL"`
	PGHost               string `env:"PGHOST" envDefault:"localhost"`
	PGPort               int    `env:"PGPORT" envDefault:"5432"`
	PGUser               string `env:"PGUSER" envDefault:"trustplane"`
	PGPassword           string `env:"PGPASSWORD" envDefault:"trustplane"`
	PGDatabase           string `env:"PGDATABASE" envDefault:"trustplane"`

	// Redis (advisory session revocation cache)
	RedisURL string `env:"REDIS_URL" envDefault:"redis://localhost:6379"`

	// JWT
	JWTSecret string        `env:"JWT_SECRET" envDefault:"change-me-in-production"`
	JWTExpiry time.Duration `env:"JWT_EXPIRY" envDefault:"24h"`

	// Audit ledger
	AuditSigningKey string `env:"AUDIT_SIGNING_KEY" envDefault:"change-me-in-production"`

	// Sessions
	SessionMaxAge time.Duration `env:"SESSION_MAX_AGE" envDefault:"8h"`

	// Lockout
	LockoutMaxAttempts int           `env:"LOCKOUT_MAX_ATTEMPTS" envDefault:"5"`
	LockoutWindow      time.Duration `env:"LOCKOUT_WINDOW" envDefault:"15m"`

	// Server
	APIPort int `env:"API_PORT" envDefault:"3100"`

	// Rate limiting
	RateLimit  int           `env:"RATE_LIMIT" envDefault:"120"`
	RateWindow time.Duration `env:"RATE_WINDOW" envDefault:"1m"`

	// Kafka (audit mirror)
	KafkaBrokers     string `env:"KAFKA_BROKERS" envDefault:"localhost:9092"`
	KafkaEnabled     bool   `env:"KAFKA_ENABLED" envDefault:"false"`
	AuditMirrorTopic string `env:"AUDIT_MIRROR_TOPIC" envDefault:"audit.events"`

	// CORS
	CORSAllowedOrigins string `env:"CORS_ALLOWED_ORIGINS" envDefault:"*"`

	// Dev
	AllowInsecureDefaults bool `env:"ALLOW_INSECURE_DEFAULTS" envDefault:"false"`

	// Risk engine weights and thresholds
	Risk policy.Config `envPrefix:"RISK_"`
}

// LoadConfig parses environment variables into a Config struct.
func LoadConfig() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// Validate checks for insecure configuration that must not run in production.
// Set ALLOW_INSECURE_DEFAULTS=true to bypass (local dev only).
func (c *Config) Validate() error {
	if c.AllowInsecureDefaults {
		return nil
	}
	if c.JWTSecret == insecureDefault {
		return fmt.Errorf("JWT_SECRET is set to the insecure default; set a strong secret or set ALLOW_INSECURE_DEFAULTS=true for local dev")
	}
	if len(c.JWTSecret) < 32 {
		return fmt.Errorf("JWT_SECRET is too short (%d chars); minimum 32 characters required", len(c.JWTSecret))
	}
	if c.AuditSigningKey == insecureDefault {
		return fmt.Errorf("AUDIT_SIGNING_KEY is set to the insecure default; every ledger signature would be forgeable")
	}
	if len(c.AuditSigningKey) < 32 {
		return fmt.Errorf("AUDIT_SIGNING_KEY is too short (%d chars); minimum 32 characters required", len(c.AuditSigningKey))
	}
	return nil
}

// ZeroTrustDSN returns the zero-trust store connection string, preferring
// ZEROTRUST_DATABASE_URL if set.
func (c *Config) ZeroTrustDSN() string {
	if c.ZeroTrustDatabaseURL != "" {
		return c.ZeroTrustDatabaseURL
	}
	return c.pgDSN()
}

// AuditDSN returns the audit store connection string, preferring
// AUDIT_DATABASE_URL if set.
func (c *Config) AuditDSN() string {
	if c.AuditDatabaseURL != "" {
		return c.AuditDatabaseURL
	}
	return c.pgDSN()
}

func (c *Config) pgDSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.PGUser, c.PGPassword, c.PGHost, c.PGPort, c.PGDatabase)
}
