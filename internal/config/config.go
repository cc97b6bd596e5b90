package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config top-level struct
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	Redis     RedisConfig     `yaml:"redis"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	RateLimit RateLimitConfig `yaml:"ratelimit"`
	Auth      AuthConfig      `yaml:"auth"`
	Providers ProvidersConfig `yaml:"providers"`
	Tokens    []TokenConfig   `yaml:"tokens"`
	Pricing   PricingConfig   `yaml:"pricing"`
}

type ServerConfig struct {
	Port int `yaml:"port"`
}

type PostgresConfig struct {
	DSN string `yaml:"dsn"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

type RateLimitConfig struct {
	RPS   int `yaml:"rps"`
	Burst int `yaml:"burst"`
}

type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
}

// ProvidersConfig carries the credentials and tuning knobs for the two
// transfer-history providers. Either key may be empty; the fetcher
// treats a missing key as "provider not configured".
type ProvidersConfig struct {
	PrimaryAPIKey   string        `yaml:"primary_api_key"`
	PrimaryBaseURL  string        `yaml:"primary_base_url"`
	SecondaryAPIKey string        `yaml:"secondary_api_key"`
	MaxPages        int           `yaml:"max_pages"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
}

// TokenConfig is one allowlist entry.
type TokenConfig struct {
	Symbol        string   `yaml:"symbol"`
	Addresses     []string `yaml:"addresses"`
	Decimals      int      `yaml:"decimals"`
	DustThreshold string   `yaml:"dust_threshold"`
	DefaultPrice  string   `yaml:"default_price"`
	LiveQuote     bool     `yaml:"live_quote"`
	QuoteID       string   `yaml:"quote_id"`
}

type PricingConfig struct {
	BaseURL  string        `yaml:"base_url"`
	CacheTTL time.Duration `yaml:"cache_ttl"`
}

// Load reads yaml file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	// secrets come from env when present, keeping keys out of the file
	if pw := os.Getenv("POSTGRES_PASSWORD"); pw != "" {
		cfg.Postgres.DSN = cfg.Postgres.DSN + " password=" + pw
	}
	if k := os.Getenv("PRIMARY_PROVIDER_API_KEY"); k != "" {
		cfg.Providers.PrimaryAPIKey = k
	}
	if k := os.Getenv("SECONDARY_PROVIDER_API_KEY"); k != "" {
		cfg.Providers.SecondaryAPIKey = k
	}
	if s := os.Getenv("JWT_SECRET"); s != "" {
		cfg.Auth.JWTSecret = s
	}
	if cfg.Providers.MaxPages <= 0 {
		cfg.Providers.MaxPages = 30
	}
	if cfg.Providers.RequestTimeout <= 0 {
		cfg.Providers.RequestTimeout = 15 * time.Second
	}
	if cfg.Pricing.CacheTTL <= 0 {
		cfg.Pricing.CacheTTL = 5 * time.Minute
	}
	return &cfg, nil
}
