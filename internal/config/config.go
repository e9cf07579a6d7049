package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the runtime settings of the API and the migrate tool.
type Config struct {
	Env      string         `yaml:"env"`
	LogLevel string         `yaml:"log_level"`
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Auth     AuthConfig     `yaml:"auth"`
	Tenancy  TenancyConfig  `yaml:"tenancy"`
}

type ServerConfig struct {
	HTTPAddr        string        `yaml:"http_addr"`
	GRPCAddr        string        `yaml:"grpc_addr"`
	MaxBodyBytes    int64         `yaml:"max_body_bytes"`
	RateLimitBurst  int           `yaml:"rate_limit_burst"`
	RateLimitPerSec int           `yaml:"rate_limit_per_sec"`
	CORSOrigins     []string      `yaml:"cors_origins"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type DatabaseConfig struct {
	DSN          string `yaml:"dsn"`
	MaxOpenConns int    `yaml:"max_open_conns"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type AuthConfig struct {
	JWTSecret          string        `yaml:"jwt_secret"`
	TokenTTL           time.Duration `yaml:"token_ttl"`
	LoginRatePerMinute int           `yaml:"login_rate_per_minute"`
	InviteTTL          time.Duration `yaml:"invite_ttl"`
}

type TenancyConfig struct {
	AllowClientIDHeader bool          `yaml:"allow_x_client_id_header"`
	CacheSize           int           `yaml:"cache_size"`
	CacheTTL            time.Duration `yaml:"cache_ttl"`
}

// Default returns the settings used when nothing is configured.
func Default() Config {
	return Config{
		Env:      "development",
		LogLevel: "info",
		Server: ServerConfig{
			HTTPAddr:        ":8080",
			MaxBodyBytes:    1 << 20,
			RateLimitBurst:  50,
			RateLimitPerSec: 25,
			ShutdownTimeout: 10 * time.Second,
		},
		Database: DatabaseConfig{MaxOpenConns: 20},
		Auth: AuthConfig{
			TokenTTL:           60 * time.Minute,
			LoginRatePerMinute: 10,
			InviteTTL:          48 * time.Hour,
		},
		Tenancy: TenancyConfig{
			CacheSize: 1024,
			CacheTTL:  30 * time.Second,
		},
	}
}

// Load reads defaults, then the YAML file named by GESTORIA_CONFIG, then
// GESTORIA_* environment overrides, and validates the result.
func Load() (*Config, error) {
	cfg := Default()
	if path := strings.TrimSpace(os.Getenv("GESTORIA_CONFIG")); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) loadFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	c.Env = getEnv("GESTORIA_ENV", c.Env)
	c.LogLevel = getEnv("GESTORIA_LOG_LEVEL", c.LogLevel)
	c.Server.HTTPAddr = getEnv("GESTORIA_HTTP_ADDR", c.Server.HTTPAddr)
	c.Server.GRPCAddr = getEnv("GESTORIA_GRPC_ADDR", c.Server.GRPCAddr)
	c.Database.DSN = getEnv("GESTORIA_PG_DSN", c.Database.DSN)
	c.Redis.Addr = getEnv("GESTORIA_REDIS_ADDR", c.Redis.Addr)
	c.Redis.Password = getEnv("GESTORIA_REDIS_PASSWORD", c.Redis.Password)
	c.Auth.JWTSecret = getEnv("GESTORIA_JWT_SECRET", c.Auth.JWTSecret)
	if origins := getEnv("GESTORIA_CORS_ORIGINS", ""); origins != "" {
		c.Server.CORSOrigins = splitList(origins)
	}

	var err error
	if c.Server.MaxBodyBytes, err = getEnvInt64("GESTORIA_MAX_BODY_BYTES", c.Server.MaxBodyBytes); err != nil {
		return err
	}
	if c.Server.RateLimitBurst, err = getEnvInt("GESTORIA_RATE_LIMIT_BURST", c.Server.RateLimitBurst); err != nil {
		return err
	}
	if c.Server.RateLimitPerSec, err = getEnvInt("GESTORIA_RATE_LIMIT_PER_SEC", c.Server.RateLimitPerSec); err != nil {
		return err
	}
	if c.Database.MaxOpenConns, err = getEnvInt("GESTORIA_PG_MAX_OPEN_CONNS", c.Database.MaxOpenConns); err != nil {
		return err
	}
	if c.Redis.DB, err = getEnvInt("GESTORIA_REDIS_DB", c.Redis.DB); err != nil {
		return err
	}
	if c.Auth.TokenTTL, err = getEnvDuration("GESTORIA_TOKEN_TTL", c.Auth.TokenTTL); err != nil {
		return err
	}
	if c.Auth.InviteTTL, err = getEnvDuration("GESTORIA_INVITE_TTL", c.Auth.InviteTTL); err != nil {
		return err
	}
	if c.Auth.LoginRatePerMinute, err = getEnvInt("GESTORIA_LOGIN_RATE_PER_MINUTE", c.Auth.LoginRatePerMinute); err != nil {
		return err
	}
	if c.Tenancy.AllowClientIDHeader, err = getEnvBool("GESTORIA_ALLOW_X_CLIENT_ID_HEADER", c.Tenancy.AllowClientIDHeader); err != nil {
		return err
	}
	if c.Tenancy.CacheSize, err = getEnvInt("GESTORIA_TENANT_CACHE_SIZE", c.Tenancy.CacheSize); err != nil {
		return err
	}
	if c.Tenancy.CacheTTL, err = getEnvDuration("GESTORIA_TENANT_CACHE_TTL", c.Tenancy.CacheTTL); err != nil {
		return err
	}
	return nil
}

// Validate rejects settings the server cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.HTTPAddr == "" {
		errs = append(errs, errors.New("server.http_addr is required"))
	}
	if c.Auth.JWTSecret == "" && !c.IsDevelopment() {
		errs = append(errs, errors.New("auth.jwt_secret is required outside development"))
	}
	if c.Auth.TokenTTL <= 0 {
		errs = append(errs, errors.New("auth.token_ttl must be positive"))
	}
	if c.Auth.LoginRatePerMinute <= 0 {
		errs = append(errs, errors.New("auth.login_rate_per_minute must be positive"))
	}
	if c.Server.MaxBodyBytes <= 0 {
		errs = append(errs, errors.New("server.max_body_bytes must be positive"))
	}
	if c.Tenancy.CacheSize < 0 {
		errs = append(errs, errors.New("tenancy.cache_size must not be negative"))
	}
	if c.Tenancy.AllowClientIDHeader && c.Env == "production" {
		errs = append(errs, errors.New("tenancy.allow_x_client_id_header cannot be enabled in production"))
	}
	return errors.Join(errs...)
}

// IsDevelopment reports whether the service runs with development defaults.
func (c *Config) IsDevelopment() bool {
	return c.Env == "" || c.Env == "development" || c.Env == "test"
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := getEnv(key, "")
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getEnvInt64(key string, fallback int64) (int64, error) {
	v := getEnv(key, "")
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getEnvBool(key string, fallback bool) (bool, error) {
	v := getEnv(key, "")
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return b, nil
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := getEnv(key, "")
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
