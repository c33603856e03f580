package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port                 string        `mapstructure:"PORT"`
	Env                  string        `mapstructure:"ENV"`
	DatabaseURL          string        `mapstructure:"DATABASE_URL"`
	DBMaxConns           int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns           int32         `mapstructure:"DB_MIN_CONNS"`
	AuditDBMaxConns      int32         `mapstructure:"AUDIT_DB_MAX_CONNS"`
	OrchestrationTimeout time.Duration `mapstructure:"ORCHESTRATION_TIMEOUT"`
	RequestTimeout       time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	AuditWriteTimeout    time.Duration `mapstructure:"AUDIT_WRITE_TIMEOUT"`
	AuditExtraPIIKeys    []string      `mapstructure:"AUDIT_EXTRA_PII_KEYS"`
	ErrorReportURL       string        `mapstructure:"ERROR_REPORT_URL"`
	ErrorReportRetries   int           `mapstructure:"ERROR_REPORT_RETRIES"`
	AuthSigningKey       string        `mapstructure:"AUTH_SIGNING_KEY"`
	AuthIssuer           string        `mapstructure:"AUTH_ISSUER"`
	AuthAudience         string        `mapstructure:"AUTH_AUDIENCE"`
}

var envKeys = []string{
	"PORT",
	"ENV",
	"DATABASE_URL",
	"DB_MAX_CONNS",
	"DB_MIN_CONNS",
	"AUDIT_DB_MAX_CONNS",
	"ORCHESTRATION_TIMEOUT",
	"REQUEST_TIMEOUT",
	"AUDIT_WRITE_TIMEOUT",
	"AUDIT_EXTRA_PII_KEYS",
	"ERROR_REPORT_URL",
	"ERROR_REPORT_RETRIES",
	"AUTH_SIGNING_KEY",
	"AUTH_ISSUER",
	"AUTH_AUDIENCE",
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("AUDIT_DB_MAX_CONNS", 4)
	v.SetDefault("ORCHESTRATION_TIMEOUT", "15s")
	v.SetDefault("REQUEST_TIMEOUT", "30s")
	v.SetDefault("AUDIT_WRITE_TIMEOUT", "3s")
	v.SetDefault("ERROR_REPORT_RETRIES", 3)

	// Bind env vars explicitly so Unmarshal picks them up
	for _, key := range envKeys {
		_ = v.BindEnv(key)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.AuditExtraPIIKeys = splitList(strings.Join(cfg.AuditExtraPIIKeys, ","))

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.IsDev() && cfg.AuthSigningKey == "" {
		log.Println("WARNING: running in development mode without AUTH_SIGNING_KEY; requests are attributed to dev-user")
	}

	return cfg, nil
}

func splitList(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Validate checks that the configuration is safe to run. Outside development a
// signing key is required so that every orchestrated call carries a verified
// actor.
func (c *Config) Validate() error {
	if !c.IsDev() && c.AuthSigningKey == "" {
		return fmt.Errorf("AUTH_SIGNING_KEY is required when ENV=%q", c.Env)
	}
	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("DB_MIN_CONNS (%d) must not exceed DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}
	if c.AuditDBMaxConns <= 0 {
		return fmt.Errorf("AUDIT_DB_MAX_CONNS must be positive, got %d", c.AuditDBMaxConns)
	}
	if c.OrchestrationTimeout <= 0 {
		return fmt.Errorf("ORCHESTRATION_TIMEOUT must be positive, got %s", c.OrchestrationTimeout)
	}
	if c.AuditWriteTimeout <= 0 {
		return fmt.Errorf("AUDIT_WRITE_TIMEOUT must be positive, got %s", c.AuditWriteTimeout)
	}
	if c.ErrorReportRetries < 0 {
		return fmt.Errorf("ERROR_REPORT_RETRIES must not be negative")
	}
	return nil
}
