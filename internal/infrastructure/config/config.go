package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sosodev/duration"
	"gopkg.in/yaml.v3"
)

// Transport names accepted in the transport field.
const (
	TransportMQTT = "mqtt"
	TransportHTTP = "http"
)

// Config is the root configuration structure for the IoT client.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Transport string         `yaml:"transport"`
	Platform  PlatformConfig `yaml:"platform"`
	Auth      AuthConfig     `yaml:"auth"`
	MQTT      MQTTConfig     `yaml:"mqtt"`
	HTTP      HTTPConfig     `yaml:"http"`
	Store     StoreConfig    `yaml:"store"`
	InfluxDB  InfluxDBConfig `yaml:"influxdb"`
	Logging   LoggingConfig  `yaml:"logging"`
}

// PlatformConfig identifies the organisation and the broker to reach.
type PlatformConfig struct {
	OrgID  string `yaml:"org_id"`
	Domain string `yaml:"domain"`

	// BrokerURL, when set, is used as the broker host and OrgID/Domain
	// are ignored for address resolution.
	BrokerURL string `yaml:"broker_url"`

	// ClientID is the MQTT client identifier, e.g. "d:org1:sensor:s-01".
	// Generated when empty.
	ClientID string `yaml:"client_id"`
}

// AuthConfig contains platform credentials.
type AuthConfig struct {
	// Method is "token", "apikey" or empty for anonymous access.
	Method string `yaml:"method"`
	Key    string `yaml:"key"`
	Token  string `yaml:"token"`
}

// MQTTConfig contains MQTT transport settings.
type MQTTConfig struct {
	// Port overrides the default (8883 for TCP, 9001 for WebSockets).
	Port          int    `yaml:"port"`
	UseWebsockets bool   `yaml:"use_websockets"`
	DisableTLS    bool   `yaml:"disable_tls"`
	TLSVersion    string `yaml:"tls_version"`
	CAFile        string `yaml:"ca_file"`
	CleanSession  bool   `yaml:"clean_session"`

	// KeepAlive is the keepalive interval in seconds.
	KeepAlive int `yaml:"keep_alive"`

	// ConnectTimeout bounds Connect in seconds.
	ConnectTimeout int `yaml:"connect_timeout"`

	QoS           int                 `yaml:"qos"`
	AutoReconnect bool                `yaml:"auto_reconnect"`
	Reconnect     MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
// Only used when AutoReconnect is enabled.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// HTTPConfig contains HTTP transport settings.
type HTTPConfig struct {
	// BaseURL overrides the URL derived from the resolved platform address.
	BaseURL string `yaml:"base_url"`
	Port    int    `yaml:"port"`

	// Timeout is the per-request timeout in seconds.
	Timeout int `yaml:"timeout"`
}

// StoreConfig enables SQLite persistence of in-flight MQTT messages.
type StoreConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// InfluxDBConfig contains settings for exporting client statistics.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string            `yaml:"level"`
	Format string            `yaml:"format"`
	Output string            `yaml:"output"`
	File   FileLoggingConfig `yaml:"file"`
}

// FileLoggingConfig contains file-based logging settings.
// A Path enables the file sink; Enabled without a Path writes to a file
// named after the client ID.
type FileLoggingConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Path       string `yaml:"path"`
	MaxSize    int    `yaml:"max_size"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAge     int    `yaml:"max_age"`
	Compress   bool   `yaml:"compress"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: IOTF_SECTION_KEY
// For example: IOTF_PLATFORM_ORG_ID, IOTF_AUTH_TOKEN
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, fmt.Errorf("applying environment overrides: %w", err)
	}

	if cfg.Platform.ClientID == "" {
		cfg.Platform.ClientID = GenerateClientID()
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Default returns the default configuration with a generated client ID.
// Used when no configuration file is given.
func Default() *Config {
	cfg := defaultConfig()
	cfg.Platform.ClientID = GenerateClientID()
	return cfg
}

// GenerateClientID returns a random client identifier.
func GenerateClientID() string {
	return "a:quickstart:" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Transport: TransportMQTT,
		Platform: PlatformConfig{
			Domain: "internetofthings.ibmcloud.com",
		},
		MQTT: MQTTConfig{
			TLSVersion:     "TLSv1.2",
			CleanSession:   true,
			KeepAlive:      60,
			ConnectTimeout: 30,
			QoS:            1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		HTTP: HTTPConfig{
			Port:    443,
			Timeout: 10,
		},
		Store: StoreConfig{
			Path:        "./data/iotf-store.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stdout",
			File: FileLoggingConfig{
				MaxSize:    1,
				MaxBackups: 1,
			},
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: IOTF_SECTION_KEY
func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("IOTF_TRANSPORT"); v != "" {
		cfg.Transport = v
	}

	// Platform
	if v := os.Getenv("IOTF_PLATFORM_ORG_ID"); v != "" {
		cfg.Platform.OrgID = v
	}
	if v := os.Getenv("IOTF_PLATFORM_DOMAIN"); v != "" {
		cfg.Platform.Domain = v
	}
	if v := os.Getenv("IOTF_PLATFORM_BROKER_URL"); v != "" {
		cfg.Platform.BrokerURL = v
	}
	if v := os.Getenv("IOTF_PLATFORM_CLIENT_ID"); v != "" {
		cfg.Platform.ClientID = v
	}

	// Auth
	if v := os.Getenv("IOTF_AUTH_METHOD"); v != "" {
		cfg.Auth.Method = v
	}
	if v := os.Getenv("IOTF_AUTH_KEY"); v != "" {
		cfg.Auth.Key = v
	}
	if v := os.Getenv("IOTF_AUTH_TOKEN"); v != "" {
		cfg.Auth.Token = v
	}

	// MQTT
	if v := os.Getenv("IOTF_MQTT_KEEPALIVE"); v != "" {
		keepAlive, err := parseSeconds(v)
		if err != nil {
			return fmt.Errorf("IOTF_MQTT_KEEPALIVE: %w", err)
		}
		cfg.MQTT.KeepAlive = keepAlive
	}
	if v := os.Getenv("IOTF_MQTT_TLS_VERSION"); v != "" {
		cfg.MQTT.TLSVersion = v
	}
	if v := os.Getenv("IOTF_MQTT_CA_FILE"); v != "" {
		cfg.MQTT.CAFile = v
	}

	// InfluxDB
	if v := os.Getenv("IOTF_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	return nil
}

// parseSeconds accepts whole seconds ("45") or an ISO-8601 duration
// ("PT1M30S") and returns whole seconds.
func parseSeconds(v string) (int, error) {
	if n, err := strconv.Atoi(v); err == nil {
		return n, nil
	}
	d, err := duration.Parse(v)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", v, err)
	}
	return int(d.ToTimeDuration() / time.Second), nil
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	switch c.Transport {
	case TransportMQTT, TransportHTTP:
	default:
		errs = append(errs, "transport must be \"mqtt\" or \"http\"")
	}

	if c.Platform.BrokerURL == "" && (c.Platform.OrgID == "" || c.Platform.Domain == "") {
		errs = append(errs, "platform.broker_url or both platform.org_id and platform.domain are required")
	}

	switch c.Auth.Method {
	case "", "token", "apikey":
	default:
		errs = append(errs, fmt.Sprintf("auth.method %q is not supported", c.Auth.Method))
	}
	if c.Auth.Method != "" && c.Auth.Token == "" {
		errs = append(errs, "auth.token is required when auth.method is set (set IOTF_AUTH_TOKEN environment variable)")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.Port < 0 || c.MQTT.Port > 65535 {
		errs = append(errs, "mqtt.port must be between 0 and 65535")
	}
	if c.MQTT.KeepAlive < 0 {
		errs = append(errs, "mqtt.keep_alive must not be negative")
	}
	if c.MQTT.ConnectTimeout <= 0 {
		errs = append(errs, "mqtt.connect_timeout must be positive")
	}

	if c.HTTP.Port < 1 || c.HTTP.Port > 65535 {
		errs = append(errs, "http.port must be between 1 and 65535")
	}

	if c.Store.Enabled && c.Store.Path == "" {
		errs = append(errs, "store.path is required when the store is enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetConnectTimeout returns the MQTT connect timeout as a Duration.
func (c *Config) GetConnectTimeout() time.Duration {
	return time.Duration(c.MQTT.ConnectTimeout) * time.Second
}

// GetKeepAlive returns the MQTT keepalive interval as a Duration.
func (c *Config) GetKeepAlive() time.Duration {
	return time.Duration(c.MQTT.KeepAlive) * time.Second
}

// GetHTTPTimeout returns the HTTP request timeout as a Duration.
func (c *Config) GetHTTPTimeout() time.Duration {
	return time.Duration(c.HTTP.Timeout) * time.Second
}
