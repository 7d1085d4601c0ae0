package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port        string `mapstructure:"PORT"`
	Env         string `mapstructure:"ENV"`
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	DBMaxConns  int32  `mapstructure:"DB_MAX_CONNS"`
	DBMinConns  int32  `mapstructure:"DB_MIN_CONNS"`

	RedisURL      string        `mapstructure:"REDIS_URL"`
	StatsCacheTTL time.Duration `mapstructure:"STATS_CACHE_TTL"`

	KafkaBrokers    []string `mapstructure:"KAFKA_BROKERS"`
	KafkaMatchTopic string   `mapstructure:"KAFKA_MATCH_TOPIC"`

	JWTSecret   string   `mapstructure:"JWT_SECRET"`
	JWTIssuer   string   `mapstructure:"JWT_ISSUER"`
	CORSOrigins []string `mapstructure:"CORS_ORIGINS"`

	MatchWorkers        int           `mapstructure:"MATCH_WORKERS"`
	MatchQueueSize      int           `mapstructure:"MATCH_QUEUE_SIZE"`
	MatchMaxAttempts    int           `mapstructure:"MATCH_MAX_ATTEMPTS"`
	MatchPassTimeout    time.Duration `mapstructure:"MATCH_PASS_TIMEOUT"`
	MatchQueryTimeout   time.Duration `mapstructure:"MATCH_QUERY_TIMEOUT"`
	MatchCandidateLimit int           `mapstructure:"MATCH_CANDIDATE_LIMIT"`
	ExpirySweepInterval time.Duration `mapstructure:"EXPIRY_SWEEP_INTERVAL"`
}

var keys = []string{
	"PORT", "ENV", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS",
	"REDIS_URL", "STATS_CACHE_TTL", "KAFKA_BROKERS", "KAFKA_MATCH_TOPIC",
	"JWT_SECRET", "JWT_ISSUER", "CORS_ORIGINS",
	"MATCH_WORKERS", "MATCH_QUEUE_SIZE", "MATCH_MAX_ATTEMPTS",
	"MATCH_PASS_TIMEOUT", "MATCH_QUERY_TIMEOUT", "MATCH_CANDIDATE_LIMIT",
	"EXPIRY_SWEEP_INTERVAL",
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("STATS_CACHE_TTL", "30s")
	v.SetDefault("KAFKA_MATCH_TOPIC", "bloodlink.match.found")
	v.SetDefault("JWT_ISSUER", "bloodlink")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("MATCH_WORKERS", 4)
	v.SetDefault("MATCH_QUEUE_SIZE", 256)
	v.SetDefault("MATCH_MAX_ATTEMPTS", 3)
	v.SetDefault("MATCH_PASS_TIMEOUT", "30s")
	v.SetDefault("MATCH_QUERY_TIMEOUT", "10s")
	v.SetDefault("MATCH_CANDIDATE_LIMIT", 500)
	v.SetDefault("EXPIRY_SWEEP_INTERVAL", "15m")

	// Unmarshal only sees env vars that were bound explicitly.
	for _, k := range keys {
		v.BindEnv(k)
	}

	// .env is optional
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.CORSOrigins = splitList(cfg.CORSOrigins)
	cfg.KafkaBrokers = splitList(cfg.KafkaBrokers)

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	return cfg, nil
}

// splitList normalises comma separated values that arrive as a single
// element and drops blanks.
func splitList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Validate refuses configurations the server cannot run safely with.
// Outside development a JWT secret is mandatory since the dev middleware
// grants admin to every caller.
func (c *Config) Validate() error {
	if !c.IsDev() && c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required when ENV=%q", c.Env)
	}
	if c.JWTSecret != "" && len(c.JWTSecret) < 32 {
		return fmt.Errorf("JWT_SECRET must be at least 32 bytes, got %d", len(c.JWTSecret))
	}
	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("DB_MIN_CONNS (%d) exceeds DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}
	if c.MatchWorkers < 1 {
		return fmt.Errorf("MATCH_WORKERS must be at least 1, got %d", c.MatchWorkers)
	}
	if c.MatchQueueSize < 1 {
		return fmt.Errorf("MATCH_QUEUE_SIZE must be at least 1, got %d", c.MatchQueueSize)
	}
	if c.MatchMaxAttempts < 1 {
		return fmt.Errorf("MATCH_MAX_ATTEMPTS must be at least 1, got %d", c.MatchMaxAttempts)
	}
	if c.MatchPassTimeout <= 0 || c.MatchQueryTimeout <= 0 {
		return fmt.Errorf("MATCH_PASS_TIMEOUT and MATCH_QUERY_TIMEOUT must be positive")
	}
	if c.MatchCandidateLimit < 1 {
		return fmt.Errorf("MATCH_CANDIDATE_LIMIT must be at least 1, got %d", c.MatchCandidateLimit)
	}
	if c.ExpirySweepInterval < time.Second {
		return fmt.Errorf("EXPIRY_SWEEP_INTERVAL must be at least 1s, got %s", c.ExpirySweepInterval)
	}
	if len(c.KafkaBrokers) > 0 && c.KafkaMatchTopic == "" {
		return fmt.Errorf("KAFKA_MATCH_TOPIC is required when KAFKA_BROKERS is set")
	}
	return nil
}
