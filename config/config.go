package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix is stripped from environment variables before they are mapped
// onto Config keys: DOCSPACE_DB_HOST -> db_host.
const EnvPrefix = "DOCSPACE_"

const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

type Config struct {
	ListenAddr string `koanf:"listen_addr"`
	LogLevel   string `koanf:"log_level"`

	DBDriver   string `koanf:"db_driver"`
	DBUser     string `koanf:"db_user"`
	DBPassword string `koanf:"db_password"`
	DBHost     string `koanf:"db_host"`
	DBPort     string `koanf:"db_port"`
	DBName     string `koanf:"db_name"`
	DBSSLMode  string `koanf:"db_sslmode"`

	// Empty disables the bearer token check.
	JWTSecret string `koanf:"jwt_secret"`

	// Empty disables the cross-instance event relay.
	RedisAddr     string `koanf:"redis_addr"`
	RedisPassword string `koanf:"redis_password"`
	RedisDB       int    `koanf:"redis_db"`

	CORSOrigins     []string      `koanf:"cors_origins"`
	RequestTimeout  time.Duration `koanf:"request_timeout"`
	CascadeQueueLen int           `koanf:"cascade_queue_len"`
}

func Default() *Config {
	return &Config{
		ListenAddr:      ":8080",
		LogLevel:        "info",
		DBDriver:        DriverPostgres,
		DBHost:          "localhost",
		DBPort:          "5432",
		DBName:          "docspace",
		DBSSLMode:       "require",
		CORSOrigins:     []string{"http://localhost:*", "http://127.0.0.1:*"},
		RequestTimeout:  30 * time.Second,
		CascadeQueueLen: 64,
	}
}

// Load reads an optional .env file, then overlays DOCSPACE_* environment
// variables on top of the defaults.
func Load(envFiles ...string) (*Config, error) {
	// A missing .env is normal outside local development.
	_ = godotenv.Load(envFiles...)

	k := koanf.New(".")
	cfg := Default()

	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	}), nil); err != nil {
		return nil, fmt.Errorf("loading env: %w", err)
	}

	// Comma separated lists arrive as a single string.
	if raw := k.String("cors_origins"); raw != "" {
		_ = k.Set("cors_origins", splitList(raw))
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}
	return cfg, nil
}

// Validate checks that the configuration contains usable values.
func (c *Config) Validate() error {
	if c.ListenAddr == "" {
		return fmt.Errorf("listen_addr is required")
	}
	switch c.DBDriver {
	case DriverPostgres:
		if c.DBHost == "" || c.DBName == "" {
			return fmt.Errorf("db_host and db_name are required for the postgres driver")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("invalid db_driver %q: must be postgres or memory", c.DBDriver)
	}
	if c.CascadeQueueLen < 1 {
		return fmt.Errorf("cascade_queue_len must be positive")
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("request_timeout must be positive")
	}
	return nil
}

// PostgresDSN builds the lib/pq connection string.
func (c *Config) PostgresDSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName, c.DBSSLMode)
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
