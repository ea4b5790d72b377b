package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration options for followback
type Config struct {
	// HTTP front end
	Server ServerConfig `yaml:"server" json:"server"`

	// Instagram provider and console credentials
	Instagram InstagramConfig `yaml:"instagram" json:"instagram"`

	// Per-address admission of analyze requests
	RateLimit RateLimitConfig `yaml:"rate_limit" json:"rate_limit"`

	// Request handler settings
	Analyzer AnalyzerConfig `yaml:"analyzer" json:"analyzer"`

	// Logging configuration
	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// ServerConfig holds web server configuration
type ServerConfig struct {
	Address           string        `yaml:"address" json:"address"`
	SecretKey         string        `yaml:"secret_key" json:"secret_key"`
	TrustForwardedFor bool          `yaml:"trust_forwarded_for" json:"trust_forwarded_for"`
	FormTokenTTL      time.Duration `yaml:"form_token_ttl" json:"form_token_ttl"`
	ReadTimeout       time.Duration `yaml:"read_timeout" json:"read_timeout"`
	WriteTimeout      time.Duration `yaml:"write_timeout" json:"write_timeout"`
}

// InstagramConfig holds Instagram-specific configuration
type InstagramConfig struct {
	BaseURL           string        `yaml:"base_url" json:"base_url"`
	UserAgent         string        `yaml:"user_agent" json:"user_agent"`
	Timeout           time.Duration `yaml:"timeout" json:"timeout"`
	PageSize          int           `yaml:"page_size" json:"page_size"`
	MaxPages          int           `yaml:"max_pages" json:"max_pages"`
	RequestsPerSecond float64       `yaml:"requests_per_second" json:"requests_per_second"`

	// Pre-seeded credentials for the console variant only
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// RateLimitConfig holds the analyze limiter configuration
type RateLimitConfig struct {
	MaxRequests   int           `yaml:"max_requests" json:"max_requests"`
	Window        time.Duration `yaml:"window" json:"window"`
	Backend       string        `yaml:"backend" json:"backend"`
	MaxAddresses  int           `yaml:"max_addresses" json:"max_addresses"`
	SweepInterval time.Duration `yaml:"sweep_interval" json:"sweep_interval"`
	RedisAddress  string        `yaml:"redis_address" json:"redis_address"`
	RedisPassword string        `yaml:"redis_password" json:"redis_password"`
	RedisDB       int           `yaml:"redis_db" json:"redis_db"`
}

// AnalyzerConfig holds request handler configuration
type AnalyzerConfig struct {
	ProviderTimeout time.Duration `yaml:"provider_timeout" json:"provider_timeout"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level string `yaml:"level" json:"level"`
	File  string `yaml:"file" json:"file"`
}

const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// DefaultConfig returns a Config instance with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Address:      ":8080",
			FormTokenTTL: 30 * time.Minute,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 2 * time.Minute,
		},
		Instagram: InstagramConfig{
			BaseURL:           "https://i.instagram.com",
			UserAgent:         "Instagram 269.0.0.18.75 Android (26/8.0.0; 480dpi; 1080x1920; OnePlus; 6T Dev; devitron; qcom; en_US; 314665256)",
			Timeout:           30 * time.Second,
			PageSize:          200,
			MaxPages:          50,
			RequestsPerSecond: 2,
		},
		RateLimit: RateLimitConfig{
			MaxRequests:   3,
			Window:        5 * time.Minute,
			Backend:       BackendMemory,
			MaxAddresses:  10000,
			SweepInterval: time.Minute,
			RedisAddress:  "localhost:6379",
		},
		Analyzer: AnalyzerConfig{
			ProviderTimeout: 60 * time.Second,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// LoadFromEnv loads configuration from environment variables
func (c *Config) LoadFromEnv() error {
	var errs []error

	// Secret key, accepting the bare name used by most deployments
	if secret := os.Getenv("SECRET_KEY"); secret != "" {
		c.Server.SecretKey = secret
	}
	if secret := os.Getenv("FOLLOWBACK_SECRET_KEY"); secret != "" {
		c.Server.SecretKey = secret
	}
	if addr := os.Getenv("FOLLOWBACK_ADDRESS"); addr != "" {
		c.Server.Address = addr
	}
	if port := os.Getenv("PORT"); port != "" && os.Getenv("FOLLOWBACK_ADDRESS") == "" {
		c.Server.Address = ":" + port
	}
	if trust := os.Getenv("FOLLOWBACK_TRUST_FORWARDED_FOR"); trust != "" {
		c.Server.TrustForwardedFor = strings.ToLower(trust) == "true"
	}

	// Console credentials
	if username := os.Getenv("INSTAGRAM_USERNAME"); username != "" {
		c.Instagram.Username = username
	}
	if password := os.Getenv("INSTAGRAM_PASSWORD"); password != "" {
		c.Instagram.Password = password
	}
	if userAgent := os.Getenv("FOLLOWBACK_USER_AGENT"); userAgent != "" {
		c.Instagram.UserAgent = userAgent
	}

	// Rate limiting
	if maxRequests := os.Getenv("FOLLOWBACK_RATE_LIMIT_MAX_REQUESTS"); maxRequests != "" {
		val, err := strconv.Atoi(maxRequests)
		if err != nil {
			errs = append(errs, fmt.Errorf("FOLLOWBACK_RATE_LIMIT_MAX_REQUESTS: %w", err))
		} else {
			c.RateLimit.MaxRequests = val
		}
	}
	if window := os.Getenv("FOLLOWBACK_RATE_LIMIT_WINDOW"); window != "" {
		val, err := time.ParseDuration(window)
		if err != nil {
			errs = append(errs, fmt.Errorf("FOLLOWBACK_RATE_LIMIT_WINDOW: %w", err))
		} else {
			c.RateLimit.Window = val
		}
	}
	if backend := os.Getenv("FOLLOWBACK_RATE_LIMIT_BACKEND"); backend != "" {
		c.RateLimit.Backend = strings.ToLower(backend)
	}
	if redisAddr := os.Getenv("FOLLOWBACK_REDIS_ADDRESS"); redisAddr != "" {
		c.RateLimit.RedisAddress = redisAddr
	}
	if redisPassword := os.Getenv("FOLLOWBACK_REDIS_PASSWORD"); redisPassword != "" {
		c.RateLimit.RedisPassword = redisPassword
	}

	// Logging level
	if logLevel := os.Getenv("FOLLOWBACK_LOG_LEVEL"); logLevel != "" {
		c.Logging.Level = logLevel
	}

	return errors.Join(errs...)
}

// LoadFromFile loads configuration from a YAML file
func (c *Config) LoadFromFile(path string) error {
	// If path is empty, try default locations
	if path == "" {
		path = c.findConfigFile()
		if path == "" {
			return nil // No config file found, not an error
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// findConfigFile searches for config file in standard locations
func (c *Config) findConfigFile() string {
	home := os.Getenv("HOME")
	locations := []string{
		".followback.yaml",
		".followback.yml",
		filepath.Join(home, ".config", "followback", "config.yaml"),
		filepath.Join(home, ".followback.yaml"),
	}

	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}

	return ""
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Address == "" {
		errs = append(errs, errors.New("server address is required"))
	}
	if c.Server.FormTokenTTL <= 0 {
		errs = append(errs, errors.New("form token TTL must be positive"))
	}

	if c.Instagram.BaseURL == "" {
		errs = append(errs, errors.New("instagram base URL is required"))
	}
	if c.Instagram.Timeout <= 0 {
		errs = append(errs, errors.New("instagram timeout must be positive"))
	}
	if c.Instagram.PageSize <= 0 {
		errs = append(errs, errors.New("page size must be positive"))
	}
	if c.Instagram.MaxPages <= 0 {
		errs = append(errs, errors.New("max pages must be positive"))
	}
	if c.Instagram.RequestsPerSecond <= 0 {
		errs = append(errs, errors.New("requests per second must be positive"))
	}

	if c.RateLimit.MaxRequests <= 0 {
		errs = append(errs, errors.New("rate limit max requests must be positive"))
	}
	if c.RateLimit.Window <= 0 {
		errs = append(errs, errors.New("rate limit window must be positive"))
	}
	switch c.RateLimit.Backend {
	case BackendMemory:
		if c.RateLimit.MaxAddresses <= 0 {
			errs = append(errs, errors.New("rate limit max addresses must be positive"))
		}
	case BackendRedis:
		if c.RateLimit.RedisAddress == "" {
			errs = append(errs, errors.New("redis address is required for the redis backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown rate limit backend: %q", c.RateLimit.Backend))
	}

	if c.Analyzer.ProviderTimeout <= 0 {
		errs = append(errs, errors.New("provider timeout must be positive"))
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, errors.New("invalid log level"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}

// Save saves the configuration to a file
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Masked returns a copy with secrets replaced, suitable for printing
func (c *Config) Masked() *Config {
	masked := *c
	if masked.Server.SecretKey != "" {
		masked.Server.SecretKey = "********"
	}
	if masked.Instagram.Password != "" {
		masked.Instagram.Password = "********"
	}
	if masked.RateLimit.RedisPassword != "" {
		masked.RateLimit.RedisPassword = "********"
	}
	return &masked
}

// MergeCommandLineFlags merges command line flags into the configuration
func (c *Config) MergeCommandLineFlags(flags map[string]interface{}) {
	if addr, ok := flags["address"].(string); ok && addr != "" {
		c.Server.Address = addr
	}
	if username, ok := flags["username"].(string); ok && username != "" {
		c.Instagram.Username = username
	}
	if backend, ok := flags["rate-limit-backend"].(string); ok && backend != "" {
		c.RateLimit.Backend = backend
	}
	if logLevel, ok := flags["log-level"].(string); ok && logLevel != "" {
		c.Logging.Level = logLevel
	}
}

// Load loads configuration from all sources with proper precedence
// Precedence order: Command line flags > Environment variables > .env file > Config file > Defaults
func Load(configPath string, flags map[string]interface{}) (*Config, error) {
	// Try to load .env files (don't fail if they don't exist)
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join(os.Getenv("HOME"), ".followback.env"))

	config := DefaultConfig()

	if err := config.LoadFromFile(configPath); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	if err := config.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	config.MergeCommandLineFlags(flags)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}
