package internal

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"http_server"`
	Database DatabaseConfig `mapstructure:"database"`
	Security SecurityConfig `mapstructure:"security"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Mail     MailConfig     `mapstructure:"mail"`
	Currency CurrencyConfig `mapstructure:"currency"`
	Renewal  RenewalConfig  `mapstructure:"renewal"`
	Import   ImportConfig   `mapstructure:"import"`
}

type ServerConfig struct {
	Port              int           `mapstructure:"port"`
	BaseURL           string        `mapstructure:"base_url"`
	AllowedOrigins    string        `mapstructure:"allowed_origins"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout"`
	ReadTimeout       time.Duration `mapstructure:"read_timeout"`
	IdleTimeout       time.Duration `mapstructure:"idle_timeout"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"`
}

type DatabaseConfig struct {
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	Source          string        `mapstructure:"source"`
}

type SecurityConfig struct {
	ApprovalTokenSecret   string        `mapstructure:"approval_token_secret"`
	ApprovalTokenDuration time.Duration `mapstructure:"approval_token_duration"`
	BCryptCost            int           `mapstructure:"bcrypt_cost"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type MailConfig struct {
	SendGridAPIKey string `mapstructure:"sendgrid_api_key"`
	FromAddress    string `mapstructure:"from_address"`
	FromName       string `mapstructure:"from_name"`
	Enabled        bool   `mapstructure:"enabled"`
}

type CurrencyConfig struct {
	APIURL   string        `mapstructure:"api_url"`
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

type RenewalConfig struct {
	ReminderDays      int    `mapstructure:"reminder_days"`
	AutoCancelDays    int    `mapstructure:"auto_cancel_days"`
	RejectedRetention int    `mapstructure:"rejected_retention_days"`
	ReminderSpec      string `mapstructure:"reminder_spec"`
	AutoCancelSpec    string `mapstructure:"auto_cancel_spec"`
	FlagResetSpec     string `mapstructure:"flag_reset_spec"`
	CleanupSpec       string `mapstructure:"cleanup_spec"`
	RateRefreshSpec   string `mapstructure:"rate_refresh_spec"`
}

type ImportConfig struct {
	UploadDir      string `mapstructure:"upload_dir"`
	EmailBatchSize int    `mapstructure:"email_batch_size"`
}

// ----------------- ENV LOADING -----------------

// LoadConfigFromEnv builds a Config from environment variables for
// container deployments where no config file is mounted.
func LoadConfigFromEnv() *Config {
	return &Config{
		Server: ServerConfig{
			Port:              getEnvAsInt("HTTP_PORT", 8080),
			BaseURL:           getEnv("BASE_URL", "http://localhost:8080"),
			AllowedOrigins:    getEnv("ALLOWED_ORIGINS", "*"),
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		Database: DatabaseConfig{
			Source:          getEnv("DATABASE_URL", ""),
			MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 10),
			MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: time.Hour,
			ConnMaxIdleTime: 10 * time.Minute,
		},
		Security: SecurityConfig{
			ApprovalTokenSecret:   getEnv("APPROVAL_TOKEN_SECRET", ""),
			ApprovalTokenDuration: 7 * 24 * time.Hour,
			BCryptCost:            getEnvAsInt("BCRYPT_COST", 10),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		Mail: MailConfig{
			SendGridAPIKey: getEnv("SENDGRID_API_KEY", ""),
			FromAddress:    getEnv("MAIL_FROM_ADDRESS", "noreply@cardspend.app"),
			FromName:       getEnv("MAIL_FROM_NAME", "Cardspend"),
			Enabled:        getEnv("MAIL_ENABLED", "true") == "true",
		},
		Currency: CurrencyConfig{
			APIURL:   getEnv("CURRENCY_API_URL", "https://api.exchangerate-api.com/v4/latest"),
			CacheTTL: time.Hour,
			Timeout:  10 * time.Second,
		},
		Renewal: RenewalConfig{
			ReminderDays:      getEnvAsInt("RENEWAL_NOTIFICATION_DAYS", 5),
			AutoCancelDays:    getEnvAsInt("AUTO_CANCEL_DAYS_BEFORE", 2),
			RejectedRetention: getEnvAsInt("AUTO_DELETE_REJECTED_DAYS", 3),
			ReminderSpec:      getEnv("RENEWAL_REMINDER_SPEC", "0 14 * * *"),
			AutoCancelSpec:    getEnv("AUTO_CANCEL_SPEC", "0 10 * * *"),
			FlagResetSpec:     getEnv("FLAG_RESET_SPEC", "0 3 * * *"),
			CleanupSpec:       getEnv("CLEANUP_SPEC", "0 2 * * *"),
			RateRefreshSpec:   getEnv("RATE_REFRESH_SPEC", "30 1 * * *"),
		},
		Import: ImportConfig{
			UploadDir:      getEnv("UPLOAD_DIR", "uploads"),
			EmailBatchSize: getEnvAsInt("IMPORT_EMAIL_BATCH_SIZE", 25),
		},
	}
}

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

// ----------------- VALIDATION -----------------

func (c *Config) Validate() error {
	var errs []string

	if err := c.Server.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("server config: %v", err))
	}

	if err := c.Database.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("database config: %v", err))
	}

	if err := c.Renewal.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("renewal config: %v", err))
	}

	if err := c.Import.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("import config: %v", err))
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}

	return nil
}

func (c *ServerConfig) Validate() error {
	if c.AllowedOrigins != "" {
		origins := strings.Split(c.AllowedOrigins, ",")
		for _, origin := range origins {
			origin = strings.TrimSpace(origin)
			if origin == "*" {
				continue
			}
			if _, err := url.Parse(origin); err != nil {
				return fmt.Errorf("invalid allowed origin %s: %w", origin, err)
			}
		}
	}
	if c.ReadTimeout < c.ReadHeaderTimeout {
		return errors.New("read_timeout must be >= read_header_timeout")
	}
	return nil
}

func (c *DatabaseConfig) Validate() error {
	if c.MaxIdleConns > c.MaxOpenConns {
		return errors.New("max_idle_conns cannot be greater than max_open_conns")
	}
	return nil
}

func (c *DatabaseConfig) GetDSN() string {
	return c.Source
}

func (c *RenewalConfig) Validate() error {
	if c.ReminderDays < 0 {
		return errors.New("reminder_days cannot be negative")
	}
	if c.AutoCancelDays < 0 {
		return errors.New("auto_cancel_days cannot be negative")
	}
	return nil
}

func (c *ImportConfig) Validate() error {
	if c.EmailBatchSize <= 0 {
		return errors.New("email_batch_size must be positive")
	}
	return nil
}
