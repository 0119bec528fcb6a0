package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	LLM       LLMConfig       `mapstructure:"llm"`
	ERP       ERPConfig       `mapstructure:"erp"`
	Inbox     InboxConfig     `mapstructure:"inbox"`
	Duplicate DuplicateConfig `mapstructure:"duplicate"`
	Log       LogConfig       `mapstructure:"log"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port         string        `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	// RateLimit is the sustained requests per second allowed per client IP
	// on /api/v1. Zero disables limiting.
	RateLimit float64 `mapstructure:"rate_limit"`
	RateBurst int     `mapstructure:"rate_burst"`
}

// DatabaseConfig holds database connection configuration.
// Driver is "mysql" or "sqlite"; Path is only used by sqlite.
type DatabaseConfig struct {
	Driver   string `mapstructure:"driver"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	Path     string `mapstructure:"path"`
}

// LLMConfig holds the email analysis model configuration
type LLMConfig struct {
	APIKey  string        `mapstructure:"api_key"`
	BaseURL string        `mapstructure:"base_url"`
	Model   string        `mapstructure:"model"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// ERPConfig holds the ERP matching service configuration
type ERPConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	APIKey  string        `mapstructure:"api_key"`
	Timeout time.Duration `mapstructure:"timeout"`
	// RequestsPerSecond throttles outbound calls. Zero means unthrottled.
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
}

// InboxConfig holds mailbox polling configuration
type InboxConfig struct {
	Enabled         bool   `mapstructure:"enabled"`
	Provider        string `mapstructure:"provider"`
	IntervalMinutes int    `mapstructure:"interval_minutes"`
	IMAPHost        string `mapstructure:"imap_host"`
	IMAPPort        int    `mapstructure:"imap_port"`
	IMAPUser        string `mapstructure:"imap_user"`
	IMAPPassword    string `mapstructure:"imap_password"`
	ClientID        string `mapstructure:"client_id"`
	ClientSecret    string `mapstructure:"client_secret"`
	RefreshToken    string `mapstructure:"refresh_token"`
	UserEmail       string `mapstructure:"user_email"`
}

// DuplicateConfig holds the duplicate detector thresholds
type DuplicateConfig struct {
	WindowDays        int     `mapstructure:"window_days"`
	ScanLimit         int     `mapstructure:"scan_limit"`
	ProbableThreshold float64 `mapstructure:"probable_threshold"`
	PossibleThreshold float64 `mapstructure:"possible_threshold"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level string `mapstructure:"level"`
}

// LoadConfig loads configuration from environment variables and config file
func LoadConfig() (*Config, error) {
	// A missing .env file is fine; real environment variables win over it.
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	// Environment variables override config file
	v.AutomaticEnv()
	bindEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.rate_limit", 20)
	v.SetDefault("server.rate_burst", 40)

	v.SetDefault("database.driver", "mysql")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 3306)
	v.SetDefault("database.path", "mail_to_quote.db")

	v.SetDefault("llm.model", "gpt-4o-mini")
	v.SetDefault("llm.timeout", "60s")
	v.SetDefault("erp.timeout", "30s")
	v.SetDefault("erp.requests_per_second", 10)

	v.SetDefault("inbox.enabled", false)
	v.SetDefault("inbox.provider", "imap")
	v.SetDefault("inbox.interval_minutes", 5)
	v.SetDefault("inbox.imap_host", "imap.gmail.com")
	v.SetDefault("inbox.imap_port", 993)

	v.SetDefault("duplicate.window_days", 30)
	v.SetDefault("duplicate.scan_limit", 10)
	v.SetDefault("duplicate.probable_threshold", 0.7)
	v.SetDefault("duplicate.possible_threshold", 0.8)

	v.SetDefault("log.level", "info")
}

func bindEnvVars(v *viper.Viper) {
	// Server
	v.BindEnv("server.port", "SERVER_PORT")
	v.BindEnv("server.read_timeout", "SERVER_READ_TIMEOUT")
	v.BindEnv("server.write_timeout", "SERVER_WRITE_TIMEOUT")
	v.BindEnv("server.rate_limit", "SERVER_RATE_LIMIT")
	v.BindEnv("server.rate_burst", "SERVER_RATE_BURST")

	// Database
	v.BindEnv("database.driver", "DB_DRIVER")
	v.BindEnv("database.host", "DB_HOST")
	v.BindEnv("database.port", "DB_PORT")
	v.BindEnv("database.user", "DB_USER")
	v.BindEnv("database.password", "DB_PASSWORD")
	v.BindEnv("database.dbname", "DB_NAME")
	v.BindEnv("database.path", "DB_PATH")

	// Collaborators
	v.BindEnv("llm.api_key", "LLM_API_KEY")
	v.BindEnv("llm.base_url", "LLM_BASE_URL")
	v.BindEnv("llm.model", "LLM_MODEL")
	v.BindEnv("erp.base_url", "ERP_BASE_URL")
	v.BindEnv("erp.api_key", "ERP_API_KEY")
	v.BindEnv("erp.timeout", "ERP_TIMEOUT")
	v.BindEnv("erp.requests_per_second", "ERP_REQUESTS_PER_SECOND")

	// Inbox
	v.BindEnv("inbox.enabled", "INBOX_ENABLED")
	v.BindEnv("inbox.provider", "INBOX_PROVIDER")
	v.BindEnv("inbox.interval_minutes", "INBOX_INTERVAL_MINUTES")
	v.BindEnv("inbox.imap_host", "INBOX_IMAP_HOST")
	v.BindEnv("inbox.imap_port", "INBOX_IMAP_PORT")
	v.BindEnv("inbox.imap_user", "INBOX_IMAP_USER")
	v.BindEnv("inbox.imap_password", "INBOX_IMAP_PASSWORD")
	v.BindEnv("inbox.client_id", "GMAIL_CLIENT_ID")
	v.BindEnv("inbox.client_secret", "GMAIL_CLIENT_SECRET")
	v.BindEnv("inbox.refresh_token", "GMAIL_REFRESH_TOKEN")
	v.BindEnv("inbox.user_email", "GMAIL_USER_EMAIL")

	v.BindEnv("log.level", "LOG_LEVEL")
}

// GetDSN returns the database connection string
func (c *DatabaseConfig) GetDSN() string {
	if c.Driver == "sqlite" {
		return c.Path
	}
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		c.User, c.Password, c.Host, c.Port, c.DBName)
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}

	switch c.Database.Driver {
	case "mysql":
		if c.Database.Host == "" || c.Database.User == "" || c.Database.DBName == "" {
			return fmt.Errorf("database host, user, and dbname are required")
		}
	case "sqlite":
		if c.Database.Path == "" {
			return fmt.Errorf("database path is required for sqlite")
		}
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}

	if c.Server.RateLimit < 0 || (c.Server.RateLimit > 0 && c.Server.RateBurst <= 0) {
		return fmt.Errorf("server rate limit must be >= 0 with a positive burst")
	}

	if c.LLM.APIKey == "" {
		return fmt.Errorf("llm api key is required")
	}
	if c.ERP.BaseURL == "" {
		return fmt.Errorf("erp base url is required")
	}

	if c.Inbox.Enabled {
		switch c.Inbox.Provider {
		case "imap":
			if c.Inbox.IMAPUser == "" || c.Inbox.IMAPPassword == "" {
				return fmt.Errorf("IMAP credentials are required when using IMAP")
			}
		case "gmail":
			if c.Inbox.ClientID == "" || c.Inbox.ClientSecret == "" || c.Inbox.RefreshToken == "" {
				return fmt.Errorf("Gmail OAuth2 credentials are required when using the Gmail API")
			}
		default:
			return fmt.Errorf("unsupported inbox provider %q", c.Inbox.Provider)
		}
		if c.Inbox.IntervalMinutes <= 0 {
			return fmt.Errorf("inbox interval must be greater than 0")
		}
	}

	if c.Duplicate.ScanLimit <= 0 || c.Duplicate.WindowDays <= 0 {
		return fmt.Errorf("duplicate scan limit and window must be greater than 0")
	}
	if !inUnitInterval(c.Duplicate.ProbableThreshold) || !inUnitInterval(c.Duplicate.PossibleThreshold) {
		return fmt.Errorf("duplicate thresholds must be within (0, 1]")
	}

	return nil
}

func inUnitInterval(f float64) bool {
	return f > 0 && f <= 1
}
