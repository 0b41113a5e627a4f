package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// envVarPattern matches ${VAR_NAME} or $VAR_NAME patterns
var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}|\$([a-zA-Z_][a-zA-Z0-9_]*)`)

// Mainnet deployment of the batch exchange
const DefaultContractAddress = "0x6F400810b62df8E13fded51bE75fF5393eaa841F"

// Config holds all application configuration
type Config struct {
	App      AppConfig      `yaml:"app"`
	Node     NodeConfig     `yaml:"node"`
	Telegram TelegramConfig `yaml:"telegram"`
	Trade    TradeConfig    `yaml:"trade"`
	Redis    RedisConfig    `yaml:"redis"`
	Web      WebConfig      `yaml:"web"`
	Logger   LoggerConfig   `yaml:"logger"`
}

// AppConfig holds application-level configuration
type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
}

// NodeConfig holds the Ethereum node connection configuration
type NodeConfig struct {
	URL               string        `yaml:"url"`
	ContractAddress   string        `yaml:"contract_address"`
	ReconnectInterval time.Duration `yaml:"reconnect_interval"`
	MaxRetries        int           `yaml:"max_retries"`
}

// TelegramConfig holds Telegram bot configuration
type TelegramConfig struct {
	BotToken        string        `yaml:"bot_token"`
	ChannelID       string        `yaml:"channel_id"`
	RateLimit       int           `yaml:"rate_limit"`
	Timeout         time.Duration `yaml:"timeout"`
	SendTimeout     time.Duration `yaml:"send_timeout"`
	CommandsEnabled bool          `yaml:"commands_enabled"`
}

// TradeConfig holds the trading web app the fill links point to
type TradeConfig struct {
	BaseURL string `yaml:"base_url"`
}

// RedisConfig holds Redis connection configuration.
// An empty host keeps the token cache in memory.
type RedisConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	PoolSize     int           `yaml:"pool_size"`
	MinIdleConns int           `yaml:"min_idle_conns"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	TokenTTL     time.Duration `yaml:"token_ttl"`
}

// WebConfig holds the status API configuration
type WebConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// LoggerConfig holds logging configuration
type LoggerConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"` // json or text
	Output     string `yaml:"output"` // stdout, stderr, or file path
	TimeFormat string `yaml:"time_format"`
}

// Load loads configuration from file and environment variables
// Load order (later overrides earlier):
// 1. Default values
// 2. .env file (if exists) - loaded into process environment
// 3. YAML config file with ${VAR} expansion
// 4. Environment variable overrides
func Load(configPath string) (*Config, error) {
	cfg, err := load(configPath)
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// LoadWatchOnly is Load without the Telegram requirements
func LoadWatchOnly(configPath string) (*Config, error) {
	cfg, err := load(configPath)
	if err != nil {
		return nil, err
	}

	if err := cfg.validateWatch(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

func load(configPath string) (*Config, error) {
	cfg := defaultConfig()

	loadDotEnv(configPath)

	if configPath != "" {
		if err := loadFromFile(configPath, cfg); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	loadFromEnv(cfg)
	return cfg, nil
}

// loadDotEnv loads .env files without overriding existing environment variables
func loadDotEnv(configPath string) {
	envPaths := []string{
		".env",
		".env.local",
	}

	if configPath != "" {
		configDir := filepath.Dir(configPath)
		envPaths = append(envPaths,
			filepath.Join(configDir, ".env"),
			filepath.Join(configDir, "..", ".env"),
		)
	}

	for _, envPath := range envPaths {
		if _, err := os.Stat(envPath); err == nil {
			_ = godotenv.Load(envPath)
		}
	}
}

// defaultConfig returns configuration with default values
func defaultConfig() *Config {
	return &Config{
		App: AppConfig{
			Name:        "dex-order-alert",
			Environment: "development",
			Version:     "dev",
		},
		Node: NodeConfig{
			URL:               "ws://localhost:8546",
			ContractAddress:   DefaultContractAddress,
			ReconnectInterval: 5 * time.Second,
		},
		Telegram: TelegramConfig{
			RateLimit:   20,
			Timeout:     30 * time.Second,
			SendTimeout: 30 * time.Second,
		},
		Redis: RedisConfig{
			Port:         6379,
			PoolSize:     10,
			MinIdleConns: 2,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
			TokenTTL:     24 * time.Hour,
		},
		Web: WebConfig{
			Port: 8080,
		},
		Logger: LoggerConfig{
			Level:      "info",
			Format:     "json",
			Output:     "stdout",
			TimeFormat: time.RFC3339,
		},
	}
}

// loadFromFile loads configuration from a YAML file
func loadFromFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	expanded := expandEnvVars(string(data))

	return yaml.Unmarshal([]byte(expanded), cfg)
}

// expandEnvVars replaces ${VAR} or $VAR with environment variable values
func expandEnvVars(content string) string {
	return envVarPattern.ReplaceAllStringFunc(content, func(match string) string {
		var varName string
		if strings.HasPrefix(match, "${") {
			varName = match[2 : len(match)-1]
		} else {
			varName = match[1:]
		}
		return os.Getenv(varName)
	})
}

func envString(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envInt(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envDuration(key string, dst *time.Duration) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}

func envBool(key string, dst *bool) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

// loadFromEnv overrides configuration with environment variables
func loadFromEnv(cfg *Config) {
	// App
	envString("APP_NAME", &cfg.App.Name)
	envString("APP_ENV", &cfg.App.Environment)
	envString("APP_VERSION", &cfg.App.Version)

	// Node
	envString("NODE_URL", &cfg.Node.URL)
	envString("CONTRACT_ADDRESS", &cfg.Node.ContractAddress)
	envDuration("NODE_RECONNECT_INTERVAL", &cfg.Node.ReconnectInterval)
	envInt("NODE_MAX_RETRIES", &cfg.Node.MaxRetries)

	// Telegram
	envString("TELEGRAM_BOT_TOKEN", &cfg.Telegram.BotToken)
	envString("TELEGRAM_CHANNEL_ID", &cfg.Telegram.ChannelID)
	envInt("TELEGRAM_RATE_LIMIT", &cfg.Telegram.RateLimit)
	envDuration("TELEGRAM_TIMEOUT", &cfg.Telegram.Timeout)
	envBool("TELEGRAM_COMMANDS", &cfg.Telegram.CommandsEnabled)

	// Trade
	envString("BASE_URL", &cfg.Trade.BaseURL)

	// Redis
	envString("REDIS_HOST", &cfg.Redis.Host)
	envInt("REDIS_PORT", &cfg.Redis.Port)
	envString("REDIS_PASSWORD", &cfg.Redis.Password)
	envInt("REDIS_DB", &cfg.Redis.DB)
	envInt("REDIS_POOL_SIZE", &cfg.Redis.PoolSize)
	envDuration("TOKEN_CACHE_TTL", &cfg.Redis.TokenTTL)

	// Web
	envBool("WEB_ENABLED", &cfg.Web.Enabled)
	envInt("WEB_PORT", &cfg.Web.Port)

	// Logger
	envString("LOG_LEVEL", &cfg.Logger.Level)
	envString("LOG_FORMAT", &cfg.Logger.Format)
	envString("LOG_OUTPUT", &cfg.Logger.Output)
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Telegram.BotToken == "" {
		return fmt.Errorf("TELEGRAM_BOT_TOKEN is required")
	}
	if c.Telegram.ChannelID == "" {
		return fmt.Errorf("TELEGRAM_CHANNEL_ID is required")
	}
	return c.validateWatch()
}

func (c *Config) validateWatch() error {
	if c.Trade.BaseURL == "" {
		return fmt.Errorf("BASE_URL is required")
	}
	if c.Node.URL == "" {
		return fmt.Errorf("node URL is required")
	}
	if c.Node.ContractAddress == "" {
		return fmt.Errorf("contract address is required")
	}
	if c.Node.MaxRetries < 0 {
		return fmt.Errorf("node max retries must not be negative")
	}
	if c.Web.Enabled && (c.Web.Port <= 0 || c.Web.Port > 65535) {
		return fmt.Errorf("invalid web port %d", c.Web.Port)
	}
	return nil
}

// IsRedisEnabled returns true if a Redis host is configured
func (c *Config) IsRedisEnabled() bool {
	return c.Redis.Host != ""
}
