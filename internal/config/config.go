package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"skillconnect/internal/models"

	"github.com/joho/godotenv"
	yamlv2 "gopkg.in/yaml.v2"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App         AppConfig         `yaml:"app"`
	Database    DatabaseConfig    `yaml:"database"`
	Redis       RedisConfig       `yaml:"redis"`
	Backup      BackupConfig      `yaml:"backup"`
	Monitoring  MonitoringConfig  `yaml:"monitoring"`
	Logging     LoggingConfig     `yaml:"logging"`
	API         APIConfig         `yaml:"api"`
	Auth        AuthConfig        `yaml:"auth"`
	Marketplace MarketplaceConfig `yaml:"marketplace"`
	Realtime    RealtimeConfig    `yaml:"realtime"`
	Worker      WorkerConfig      `yaml:"worker"`
	Reports     ReportsConfig     `yaml:"reports"`
	Exports     ExportConfig      `yaml:"exports"`
	Google      GoogleConfig      `yaml:"google"`
	TradesFile  string            `yaml:"trades_file"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

type BackupConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Interval      time.Duration `yaml:"interval"`
	RetentionDays int           `yaml:"retention_days"`
	StoragePath   string        `yaml:"storage_path"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool `yaml:"prometheus_enabled"`
	PrometheusPort    int  `yaml:"prometheus_port"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
}

type APIConfig struct {
	HTTP      APIHTTPConfig      `yaml:"http"`
	CORS      APICORSConfig      `yaml:"cors"`
	RateLimit APIRateLimitConfig `yaml:"rate_limit"`
}

type APIHTTPConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type APICORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

type APIRateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

type AuthConfig struct {
	JWTSecret string          `yaml:"jwt_secret"`
	JWTExpire string          `yaml:"jwt_expire"`
	Admin     AdminSeedConfig `yaml:"admin"`
}

// AdminSeedConfig describes an admin account created at startup when missing.
type AdminSeedConfig struct {
	Email    string `yaml:"email"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

type MarketplaceConfig struct {
	RequestTTL time.Duration `yaml:"request_ttl"`
	OfferETA   time.Duration `yaml:"offer_eta"`
}

type RealtimeConfig struct {
	RedisChannel string        `yaml:"redis_channel"`
	PingInterval time.Duration `yaml:"ping_interval"`
	SendBuffer   int           `yaml:"send_buffer"`
}

type WorkerConfig struct {
	PollInterval time.Duration `yaml:"poll_interval"`
	BatchSize    int           `yaml:"batch_size"`
	MaxRetries   int           `yaml:"max_retries"`
	InitialDelay time.Duration `yaml:"initial_delay"`
	MaxDelay     time.Duration `yaml:"max_delay"`
}

type ReportsConfig struct {
	CacheTTL time.Duration `yaml:"cache_ttl"`
	Months   int           `yaml:"months"`
}

type ExportConfig struct {
	Path string `yaml:"path"`
}

type GoogleConfig struct {
	CredentialsFile       string `yaml:"credentials_file"`
	BookingsSpreadsheetID string `yaml:"bookings_spreadsheet_id"`
	BookingsSheet         string `yaml:"bookings_sheet"`
}

// LedgerEnabled reports whether bookings are mirrored to Google Sheets.
func (g GoogleConfig) LedgerEnabled() bool {
	return g.CredentialsFile != "" && g.BookingsSpreadsheetID != ""
}

func Load(configPath string) (*Config, error) {
	// .env is optional
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	expandedData := []byte(os.ExpandEnv(string(data)))

	var config Config
	if err := yaml.Unmarshal(expandedData, &config); err != nil {
		return nil, err
	}

	config.applyEnv()
	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// applyEnv lets the deployment variables win over the file.
func (c *Config) applyEnv() {
	if v := os.Getenv("JWT_SECRET_KEY"); v != "" {
		c.Auth.JWTSecret = v
	}
	if v := os.Getenv("JWT_EXPIRE"); v != "" {
		c.Auth.JWTExpire = v
	}
	if v := os.Getenv("DATABASE_PATH"); v != "" {
		c.Database.Path = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Redis.Address = v
	}
}

func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return errors.New("database path is required")
	}

	if len(c.Auth.JWTSecret) < 16 {
		return errors.New("auth.jwt_secret must be at least 16 characters")
	}

	if _, err := c.Auth.TokenTTL(); err != nil {
		return err
	}

	if c.API.HTTP.Port <= 0 || c.API.HTTP.Port > 65535 {
		return fmt.Errorf("invalid http port: %d", c.API.HTTP.Port)
	}

	if c.API.RateLimit.RPS < 0 || c.API.RateLimit.Burst < 0 {
		return errors.New("rate limit values must not be negative")
	}

	if c.Google.CredentialsFile != "" && c.Google.BookingsSpreadsheetID == "" {
		return errors.New("google.bookings_spreadsheet_id is required when credentials are set")
	}

	return nil
}

// TokenTTL parses jwt_expire. Plain Go durations and day counts ("7d") are accepted.
func (a AuthConfig) TokenTTL() (time.Duration, error) {
	raw := strings.TrimSpace(a.JWTExpire)
	if raw == "" {
		return 24 * time.Hour, nil
	}
	if strings.HasSuffix(raw, "d") {
		days, err := strconv.Atoi(strings.TrimSuffix(raw, "d"))
		if err != nil || days <= 0 {
			return 0, fmt.Errorf("invalid jwt_expire %q", a.JWTExpire)
		}
		return time.Duration(days) * 24 * time.Hour, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid jwt_expire %q", a.JWTExpire)
	}
	return d, nil
}

func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "skillconnect"
	}
	if c.API.HTTP.Port == 0 {
		c.API.HTTP.Port = 8080
	}
	if c.API.HTTP.ReadTimeout == 0 {
		c.API.HTTP.ReadTimeout = 15 * time.Second
	}
	if c.API.HTTP.WriteTimeout == 0 {
		c.API.HTTP.WriteTimeout = 30 * time.Second
	}
	if c.API.HTTP.ShutdownTimeout == 0 {
		c.API.HTTP.ShutdownTimeout = 10 * time.Second
	}
	if c.API.RateLimit.RPS == 0 {
		c.API.RateLimit.RPS = 20
	}
	if c.API.RateLimit.Burst == 0 {
		c.API.RateLimit.Burst = 40
	}
	if len(c.API.CORS.AllowedOrigins) == 0 {
		c.API.CORS.AllowedOrigins = []string{"*"}
	}
	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}

	if c.Marketplace.RequestTTL == 0 {
		c.Marketplace.RequestTTL = models.DefaultRequestTTL
	}
	if c.Marketplace.OfferETA == 0 {
		c.Marketplace.OfferETA = models.OfferETA
	}

	if c.Realtime.RedisChannel == "" {
		c.Realtime.RedisChannel = "skillconnect:realtime"
	}
	if c.Realtime.PingInterval == 0 {
		c.Realtime.PingInterval = 30 * time.Second
	}
	if c.Realtime.SendBuffer == 0 {
		c.Realtime.SendBuffer = 32
	}

	if c.Worker.PollInterval == 0 {
		c.Worker.PollInterval = 2 * time.Second
	}
	if c.Worker.BatchSize == 0 {
		c.Worker.BatchSize = 20
	}
	if c.Worker.MaxRetries == 0 {
		c.Worker.MaxRetries = 5
	}

	if c.Reports.CacheTTL == 0 {
		c.Reports.CacheTTL = time.Minute
	}
	if c.Reports.Months == 0 {
		c.Reports.Months = 12
	}

	if c.Backup.Enabled && c.Backup.Interval == 0 {
		c.Backup.Interval = 24 * time.Hour
	}
	if c.Google.BookingsSheet == "" {
		c.Google.BookingsSheet = "Bookings"
	}
}

// LoadTrades reads the trades catalog.
func LoadTrades(path string) ([]models.Trade, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var tradesConfig struct {
		Trades []models.Trade `yaml:"trades"`
	}
	if err := yamlv2.Unmarshal(data, &tradesConfig); err != nil {
		return nil, fmt.Errorf("parse trades: %w", err)
	}

	if err := ValidateTrades(tradesConfig.Trades); err != nil {
		return nil, err
	}
	return tradesConfig.Trades, nil
}

func ValidateTrades(trades []models.Trade) error {
	seen := make(map[string]bool)
	for _, t := range trades {
		name := strings.ToLower(strings.TrimSpace(t.Name))
		if name == "" {
			return errors.New("trade with empty name")
		}
		if seen[name] {
			return fmt.Errorf("duplicate trade found: %s", t.Name)
		}
		seen[name] = true
	}
	return nil
}
