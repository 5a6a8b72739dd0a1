package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

// EnvPrefix namespaces every environment variable (STRAIT_SERVER_PORT, ...)
const EnvPrefix = "STRAIT"

// Config represents the complete application configuration
type Config struct {
	Server     ServerConfig     `yaml:"server" envconfig:"SERVER"`
	Security   SecurityConfig   `yaml:"security" envconfig:"SECURITY"`
	Logging    LoggingConfig    `yaml:"logging" envconfig:"LOGGING"`
	Paths      PathsConfig      `yaml:"paths" envconfig:"PATHS"`
	WebSocket  WebSocketConfig  `yaml:"websocket" envconfig:"WEBSOCKET"`
	Telemetry  TelemetryConfig  `yaml:"telemetry" envconfig:"TELEMETRY"`
	Dashboard  DashboardConfig  `yaml:"dashboard" envconfig:"DASHBOARD"`
	Export     ExportConfig     `yaml:"export" envconfig:"EXPORT"`
	DataSource DataSourceConfig `yaml:"datasource" envconfig:"DATASOURCE"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Port            int           `yaml:"port" envconfig:"PORT"`
	ReadTimeout     time.Duration `yaml:"read_timeout" envconfig:"READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" envconfig:"IDLE_TIMEOUT"`
	MaxHeaderBytes  int           `yaml:"max_header_bytes" envconfig:"MAX_HEADER_BYTES"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT"`
	RequestTimeout  time.Duration `yaml:"request_timeout" envconfig:"REQUEST_TIMEOUT"`
}

// SecurityConfig contains security-related configuration
type SecurityConfig struct {
	AllowedOrigins []string        `yaml:"allowed_origins" envconfig:"ALLOWED_ORIGINS"`
	EnableCORS     bool            `yaml:"enable_cors" envconfig:"ENABLE_CORS"`
	RateLimit      RateLimitConfig `yaml:"rate_limit" envconfig:"RATE_LIMIT"`
}

// RateLimitConfig contains rate limiting configuration
type RateLimitConfig struct {
	Enabled bool    `yaml:"enabled" envconfig:"ENABLED"`
	RPS     float64 `yaml:"rps" envconfig:"RPS"`
	Burst   int     `yaml:"burst" envconfig:"BURST"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level    string `yaml:"level" envconfig:"LEVEL"`
	Format   string `yaml:"format" envconfig:"FORMAT"`
	Output   string `yaml:"output" envconfig:"OUTPUT"`
	FilePath string `yaml:"file_path" envconfig:"FILE_PATH"`
}

// PathsConfig contains file system paths configuration.
// An empty BaseDir means the directory of the running executable.
type PathsConfig struct {
	BaseDir    string `yaml:"base_dir" envconfig:"BASE_DIR"`
	DataDir    string `yaml:"data_dir" envconfig:"DATA_DIR"`
	ExportsDir string `yaml:"exports_dir" envconfig:"EXPORTS_DIR"`
	LogsDir    string `yaml:"logs_dir" envconfig:"LOGS_DIR"`
}

// WebSocketConfig contains WebSocket configuration
type WebSocketConfig struct {
	ReadBufferSize  int           `yaml:"read_buffer_size" envconfig:"READ_BUFFER_SIZE"`
	WriteBufferSize int           `yaml:"write_buffer_size" envconfig:"WRITE_BUFFER_SIZE"`
	PingPeriod      time.Duration `yaml:"ping_period" envconfig:"PING_PERIOD"`
	PongWait        time.Duration `yaml:"pong_wait" envconfig:"PONG_WAIT"`
}

// TelemetryConfig controls tracing and metrics
type TelemetryConfig struct {
	ServiceName    string `yaml:"service_name" envconfig:"SERVICE_NAME"`
	Environment    string `yaml:"environment" envconfig:"ENVIRONMENT"`
	TracingEnabled bool   `yaml:"tracing_enabled" envconfig:"TRACING_ENABLED"`
	MetricsEnabled bool   `yaml:"metrics_enabled" envconfig:"METRICS_ENABLED"`
}

// DashboardConfig controls the panel/indicator layout and initial selection
type DashboardConfig struct {
	LayoutFile       string `yaml:"layout_file" envconfig:"LAYOUT_FILE"`
	DefaultRangeDays int    `yaml:"default_range_days" envconfig:"DEFAULT_RANGE_DAYS"`
}

// ExportConfig controls the CSV document format
type ExportConfig struct {
	LineTerminator string `yaml:"line_terminator" envconfig:"LINE_TERMINATOR"`
	BOM            bool   `yaml:"bom" envconfig:"BOM"`
	Concurrency    int    `yaml:"concurrency" envconfig:"CONCURRENCY"`
	Archive        bool   `yaml:"archive" envconfig:"ARCHIVE"`
	FilePrefix     string `yaml:"file_prefix" envconfig:"FILE_PREFIX"`
}

// DataSourceConfig selects and tunes the indicator data provider
type DataSourceConfig struct {
	Kind        string            `yaml:"kind" envconfig:"KIND"`
	Path        string            `yaml:"path" envconfig:"DATA_PATH"`
	DSN         string            `yaml:"dsn" envconfig:"DSN"`
	Symbols     map[string]string `yaml:"symbols" envconfig:"SYMBOLS"`
	ForwardFill bool              `yaml:"forward_fill" envconfig:"FORWARD_FILL"`
	Base100     bool              `yaml:"base100" envconfig:"BASE100"`
	BaseDate    string            `yaml:"base_date" envconfig:"BASE_DATE"`
	CacheTTL    time.Duration     `yaml:"cache_ttl" envconfig:"CACHE_TTL"`
	CacheSize   int               `yaml:"cache_size" envconfig:"CACHE_SIZE"`
	Watch       bool              `yaml:"watch" envconfig:"WATCH"`
	AutoMigrate bool              `yaml:"auto_migrate" envconfig:"AUTO_MIGRATE"`
}

var dataSourceKinds = map[string]bool{
	"memory": true, "csv": true, "xlsx": true, "postgres": true, "sqlite": true,
}

// Load builds the configuration from defaults, an optional YAML file and
// environment variables, in increasing order of precedence.
func Load() (*Config, error) {
	return LoadFile(getConfigFilePath())
}

// LoadFile is Load with an explicit config file; an empty path skips the file
func LoadFile(configFile string) (*Config, error) {
	cfg := Default()

	if configFile != "" {
		if err := loadFromFile(configFile, cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	// Only variables that are set override; unset ones leave the value alone
	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	cfg.normalize()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// loadFromFile overlays a YAML file onto cfg
func loadFromFile(filePath string, cfg *Config) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// ResolvePaths resolves the configured directories to absolute paths
func (c *Config) ResolvePaths() (*Paths, error) {
	return GetPaths(c.Paths)
}

func (c *Config) normalize() {
	c.Logging.Level = strings.ToLower(c.Logging.Level)
	c.Logging.Format = "json"
	c.DataSource.Kind = strings.ToLower(c.DataSource.Kind)
	c.Export.LineTerminator = strings.ToLower(c.Export.LineTerminator)
	if c.Export.Concurrency <= 0 {
		c.Export.Concurrency = DefaultExportConcurrency
	}
	if c.Telemetry.ServiceName == "" {
		c.Telemetry.ServiceName = ServiceName
	}
}

// validate validates the configuration
func (c *Config) validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("server read timeout must be positive")
	}

	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("server write timeout must be positive")
	}

	if c.Security.EnableCORS && len(c.Security.AllowedOrigins) == 0 {
		return fmt.Errorf("at least one allowed origin must be specified")
	}

	switch c.Logging.Output {
	case "console", "file", "both":
	default:
		return fmt.Errorf("invalid logging output %q: want console, file or both", c.Logging.Output)
	}

	if c.Dashboard.DefaultRangeDays < 1 {
		return fmt.Errorf("dashboard default range must be at least one day, got %d", c.Dashboard.DefaultRangeDays)
	}

	switch c.Export.LineTerminator {
	case "lf", "crlf":
	default:
		return fmt.Errorf("invalid export line terminator %q: want lf or crlf", c.Export.LineTerminator)
	}

	if !dataSourceKinds[c.DataSource.Kind] {
		return fmt.Errorf("invalid data source kind %q", c.DataSource.Kind)
	}
	switch c.DataSource.Kind {
	case "csv", "xlsx":
		if c.DataSource.Path == "" {
			return fmt.Errorf("data source %s requires a path", c.DataSource.Kind)
		}
	case "postgres", "sqlite":
		if c.DataSource.DSN == "" {
			return fmt.Errorf("data source %s requires a dsn", c.DataSource.Kind)
		}
	}

	return nil
}

// getConfigFilePath returns the path to the config file
func getConfigFilePath() string {
	if path := os.Getenv(EnvPrefix + "_CONFIG_FILE"); path != "" {
		return path
	}

	locations := []string{
		"config.yaml",
		"configs/config.yaml",
		"../configs/config.yaml",
	}

	for _, location := range locations {
		if _, err := os.Stat(location); err == nil {
			return location
		}
	}

	return "" // No config file found, use env vars only
}

// Default returns default configuration
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    60 * time.Second,
			IdleTimeout:     60 * time.Second,
			MaxHeaderBytes:  1 << 20, // 1MB
			ShutdownTimeout: 30 * time.Second,
			RequestTimeout:  DefaultRequestTimeout,
		},
		Security: SecurityConfig{
			AllowedOrigins: []string{"http://localhost:8080", "http://localhost:3000"},
			EnableCORS:     true,
			RateLimit: RateLimitConfig{
				Enabled: true,
				RPS:     DefaultRateLimit,
				Burst:   DefaultBurstSize,
			},
		},
		Logging: LoggingConfig{
			Level:    "info",
			Format:   "json",
			Output:   "console",
			FilePath: "logs/app.log",
		},
		Paths: PathsConfig{
			DataDir:    DefaultDataDir,
			ExportsDir: DefaultExportsDir,
			LogsDir:    DefaultLogsDir,
		},
		WebSocket: WebSocketConfig{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			PingPeriod:      WebSocketPingPeriod,
			PongWait:        WebSocketPongWait,
		},
		Telemetry: TelemetryConfig{
			ServiceName:    ServiceName,
			Environment:    "development",
			TracingEnabled: false,
			MetricsEnabled: true,
		},
		Dashboard: DashboardConfig{
			DefaultRangeDays: DefaultRangeDays,
		},
		Export: ExportConfig{
			LineTerminator: "lf",
			Concurrency:    DefaultExportConcurrency,
			FilePrefix:     DefaultExportPrefix,
		},
		DataSource: DataSourceConfig{
			Kind:        "memory",
			ForwardFill: true,
			CacheTTL:    DataCacheDuration,
			CacheSize:   DataCacheSize,
			Watch:       true,
		},
	}
}
