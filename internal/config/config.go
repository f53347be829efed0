package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"

	apperrors "github.com/Lynx96-creator/ets2-mod-api/internal/errors"
)

// Config represents the complete application configuration
type Config struct {
	Server    ServerConfig    `yaml:"server" envconfig:"SERVER"`
	Logging   LoggingConfig   `yaml:"logging" envconfig:"LOGGING"`
	Store     StoreConfig     `yaml:"store" envconfig:"STORE"`
	Install   InstallConfig   `yaml:"install" envconfig:"INSTALL"`
	Auth      AuthConfig      `yaml:"auth" envconfig:"AUTH"`
	Telemetry TelemetryConfig `yaml:"telemetry" envconfig:"TELEMETRY"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Host            string        `yaml:"host" envconfig:"HOST"`
	Port            int           `yaml:"port" envconfig:"PORT"`
	ReadTimeout     time.Duration `yaml:"read_timeout" envconfig:"READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" envconfig:"IDLE_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT"`
	QueryAPIKey     string        `yaml:"query_api_key" envconfig:"QUERY_API_KEY"`
	RateLimit       float64       `yaml:"rate_limit" envconfig:"RATE_LIMIT"`
	RateBurst       int           `yaml:"rate_burst" envconfig:"RATE_BURST"`
}

// Address returns the listen address
func (s ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level    string `yaml:"level" envconfig:"LEVEL"`
	Format   string `yaml:"format" envconfig:"FORMAT"` // json, text
	Output   string `yaml:"output" envconfig:"OUTPUT"` // stdout, stderr, file, both
	FilePath string `yaml:"file_path" envconfig:"FILE_PATH"`
}

// StoreConfig selects and configures the record store driver
type StoreConfig struct {
	Driver          string `yaml:"driver" envconfig:"DRIVER"`
	SheetID         string `yaml:"sheet_id" envconfig:"SHEET_ID"`
	AccountsSheet   string `yaml:"accounts_sheet" envconfig:"ACCOUNTS_SHEET"`
	CatalogSheet    string `yaml:"catalog_sheet" envconfig:"CATALOG_SHEET"`
	CredentialsFile string `yaml:"credentials_file" envconfig:"CREDENTIALS_FILE"`
	XLSXPath        string `yaml:"xlsx_path" envconfig:"XLSX_PATH"`
}

// InstallConfig controls where and how artifacts are installed
type InstallConfig struct {
	InstallRoot       string        `yaml:"install_root" envconfig:"INSTALL_ROOT"`
	ArtifactExtension string        `yaml:"artifact_extension" envconfig:"ARTIFACT_EXTENSION"`
	MinArtifactSize   int64         `yaml:"min_artifact_size" envconfig:"MIN_ARTIFACT_SIZE"`
	DownloadTimeout   time.Duration `yaml:"download_timeout" envconfig:"DOWNLOAD_TIMEOUT"`
	Protect           bool          `yaml:"protect" envconfig:"PROTECT"`
	Fetcher           string        `yaml:"fetcher" envconfig:"FETCHER"`
	DownloadBaseURL   string        `yaml:"download_base_url" envconfig:"DOWNLOAD_BASE_URL"`
	ProgressInterval  time.Duration `yaml:"progress_interval" envconfig:"PROGRESS_INTERVAL"`

	// Retry is off with RetryAttempts <= 1
	RetryAttempts     int           `yaml:"retry_attempts" envconfig:"RETRY_ATTEMPTS"`
	RetryInitialDelay time.Duration `yaml:"retry_initial_delay" envconfig:"RETRY_INITIAL_DELAY"`
	RetryMaxDelay     time.Duration `yaml:"retry_max_delay" envconfig:"RETRY_MAX_DELAY"`
}

// AuthConfig configures session tokens
type AuthConfig struct {
	TokenSecret string        `yaml:"token_secret" envconfig:"TOKEN_SECRET"`
	TokenTTL    time.Duration `yaml:"token_ttl" envconfig:"TOKEN_TTL"`
	Issuer      string        `yaml:"issuer" envconfig:"ISSUER"`
}

// TelemetryConfig configures OpenTelemetry exporters
type TelemetryConfig struct {
	Enabled        bool   `yaml:"enabled" envconfig:"ENABLED"`
	Environment    string `yaml:"environment" envconfig:"ENVIRONMENT"`
	TraceExporter  string `yaml:"trace_exporter" envconfig:"TRACE_EXPORTER"`   // stdout, none
	MetricExporter string `yaml:"metric_exporter" envconfig:"METRIC_EXPORTER"` // prometheus, none
}

// Load builds the configuration from defaults, the optional YAML file and
// the environment, in that order.
func Load() (*Config, error) {
	return LoadFile(getConfigFilePath())
}

// LoadFile is Load with an explicit YAML path. An empty path skips the file.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := loadFromFile(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	if err := cfg.resolvePaths(); err != nil {
		return nil, fmt.Errorf("failed to resolve paths: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, apperrors.NewConfigError("config validation failed", err)
	}

	return cfg, nil
}

// loadFromFile overlays the YAML file onto cfg
func loadFromFile(filePath string, cfg *Config) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// resolvePaths expands a leading ~ in filesystem settings
func (c *Config) resolvePaths() error {
	var err error
	if c.Install.InstallRoot, err = expandHome(c.Install.InstallRoot); err != nil {
		return err
	}
	if c.Store.CredentialsFile, err = expandHome(c.Store.CredentialsFile); err != nil {
		return err
	}
	if c.Store.XLSXPath, err = expandHome(c.Store.XLSXPath); err != nil {
		return err
	}
	if c.Logging.FilePath, err = expandHome(c.Logging.FilePath); err != nil {
		return err
	}
	return nil
}

// Validate checks the configuration and normalizes a few fields
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Server.ReadTimeout <= 0 || c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("server timeouts must be positive")
	}

	switch c.Store.Driver {
	case StoreDriverSheets:
		if c.Store.SheetID == "" {
			return fmt.Errorf("store.sheet_id is required for the %s driver", StoreDriverSheets)
		}
		if c.Store.CredentialsFile == "" {
			return fmt.Errorf("store.credentials_file is required for the %s driver", StoreDriverSheets)
		}
	case StoreDriverXLSX:
		if c.Store.XLSXPath == "" {
			return fmt.Errorf("store.xlsx_path is required for the %s driver", StoreDriverXLSX)
		}
	case StoreDriverMemory:
	default:
		return fmt.Errorf("unknown store driver: %q", c.Store.Driver)
	}

	if c.Install.InstallRoot == "" {
		return fmt.Errorf("install.install_root is required")
	}

	if c.Install.ArtifactExtension == "" {
		c.Install.ArtifactExtension = DefaultArtifactExtension
	}
	if !strings.HasPrefix(c.Install.ArtifactExtension, ".") {
		c.Install.ArtifactExtension = "." + c.Install.ArtifactExtension
	}

	if c.Install.MinArtifactSize < 0 {
		return fmt.Errorf("install.min_artifact_size must not be negative")
	}

	if c.Install.DownloadTimeout <= 0 {
		return fmt.Errorf("install.download_timeout must be positive")
	}

	switch c.Install.Fetcher {
	case FetcherHTTP:
	case FetcherDrive:
		if c.Store.CredentialsFile == "" {
			return fmt.Errorf("store.credentials_file is required for the %s fetcher", FetcherDrive)
		}
	default:
		return fmt.Errorf("unknown fetcher: %q", c.Install.Fetcher)
	}

	if c.Install.RetryAttempts < 1 {
		c.Install.RetryAttempts = 1
	}

	if c.Auth.TokenSecret == "" {
		return fmt.Errorf("auth.token_secret is required")
	}

	if c.Auth.TokenTTL <= 0 {
		return fmt.Errorf("auth.token_ttl must be positive")
	}

	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "":
		c.Logging.Format = LogFormatJSON
	case LogFormatJSON, LogFormatText:
	default:
		return fmt.Errorf("unknown logging format: %q", c.Logging.Format)
	}

	return nil
}

// getConfigFilePath returns the config file to load, or "" when none exists
func getConfigFilePath() string {
	if path := os.Getenv(EnvPrefix + "_CONFIG_FILE"); path != "" {
		return path
	}

	locations := []string{DefaultConfigFile}
	if exe, err := os.Executable(); err == nil {
		locations = append(locations, filepath.Join(filepath.Dir(exe), DefaultConfigFile))
	}

	for _, location := range locations {
		if _, err := os.Stat(location); err == nil {
			return location
		}
	}

	return ""
}

// Default returns default configuration
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "127.0.0.1",
			Port:            5000,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			RateLimit:       20,
			RateBurst:       40,
		},
		Logging: LoggingConfig{
			Level:    "info",
			Format:   LogFormatJSON,
			Output:   "console",
			FilePath: "logs/mod_installer.log",
		},
		Store: StoreConfig{
			Driver:          StoreDriverSheets,
			AccountsSheet:   DefaultAccountsSheet,
			CatalogSheet:    DefaultCatalogSheet,
			CredentialsFile: "google_credentials.json",
		},
		Install: InstallConfig{
			InstallRoot:       DefaultInstallRoot(),
			ArtifactExtension: DefaultArtifactExtension,
			MinArtifactSize:   DefaultMinArtifactSize,
			DownloadTimeout:   DefaultDownloadTimeout,
			Protect:           true,
			Fetcher:           FetcherHTTP,
			DownloadBaseURL:   DefaultDownloadBaseURL,
			ProgressInterval:  DefaultProgressInterval,
			RetryAttempts:     1,
			RetryInitialDelay: 2 * time.Second,
			RetryMaxDelay:     30 * time.Second,
		},
		Auth: AuthConfig{
			TokenTTL: 24 * time.Hour,
			Issuer:   "ets2-mods",
		},
		Telemetry: TelemetryConfig{
			Enabled:        false,
			Environment:    "development",
			TraceExporter:  "none",
			MetricExporter: "prometheus",
		},
	}
}
