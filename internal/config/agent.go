package config

import (
	"net/url"
	"strings"
	"time"

	agenterrors "github.com/Schera-ole/fleetagent/internal/errors"
)

// AgentConfig is loaded once at startup and never changes afterwards.
type AgentConfig struct {
	BackendURL      string `mapstructure:"backend_url"`
	APIToken        string `mapstructure:"api_token"`
	InstanceName    string `mapstructure:"instance_name"`
	IntervalSeconds int    `mapstructure:"interval_seconds"`

	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	MaxRetries     int           `mapstructure:"max_retries"`
	BackoffBase    time.Duration `mapstructure:"backoff_base"`
	BackoffMax     time.Duration `mapstructure:"backoff_max"`
	Compress       bool          `mapstructure:"compress"`
	Encoding       string        `mapstructure:"encoding"`
	SigningKey     string        `mapstructure:"signing_key"`

	SourceTimeout time.Duration `mapstructure:"source_timeout"`
	ShutdownGrace time.Duration `mapstructure:"shutdown_grace"`
	StateDir      string        `mapstructure:"state_dir"`

	HomeAssistantURL   string `mapstructure:"ha_url"`
	HomeAssistantToken string `mapstructure:"ha_token"`
	ConfigDir          string `mapstructure:"ha_config_dir"`
	RecorderDBURL      string `mapstructure:"recorder_db_url"`
	CertFile           string `mapstructure:"cert_file"`
	SupervisorURL      string `mapstructure:"supervisor_url"`
	SupervisorToken    string `mapstructure:"supervisor_token"`

	LogFile           string        `mapstructure:"log_file"`
	LogMaxLines       int           `mapstructure:"log_max_lines"`
	LogDefaultLines   int           `mapstructure:"log_default_lines"`
	LogSensorInterval time.Duration `mapstructure:"log_sensor_interval"`

	ControlAddr string `mapstructure:"control_addr"`
	LogLevel    string `mapstructure:"log_level"`
	LogFormat   string `mapstructure:"log_format"`
}

// DefaultAgentConfig returns a config with every optional field set.
func DefaultAgentConfig() AgentConfig {
	return AgentConfig{
		IntervalSeconds:   DefaultIntervalSeconds,
		RequestTimeout:    DefaultRequestTimeout,
		MaxRetries:        DefaultMaxRetries,
		BackoffBase:       DefaultBackoffBase,
		BackoffMax:        DefaultBackoffMax,
		Encoding:          DefaultEncoding,
		SourceTimeout:     DefaultSourceTimeout,
		ShutdownGrace:     DefaultShutdownGrace,
		StateDir:          DefaultStateDir,
		SupervisorURL:     DefaultSupervisorURL,
		LogMaxLines:       DefaultLogMaxLines,
		LogDefaultLines:   DefaultLogLines,
		LogSensorInterval: DefaultLogSensorInterval,
		ControlAddr:       DefaultControlAddr,
		LogLevel:          "info",
		LogFormat:         "json",
	}
}

// Interval returns the cycle interval.
func (c AgentConfig) Interval() time.Duration {
	return time.Duration(c.IntervalSeconds) * time.Second
}

// LogPath returns the log file to serve, defaulting to the Home Assistant
// log inside the config directory.
func (c AgentConfig) LogPath() string {
	if c.LogFile != "" {
		return c.LogFile
	}
	if c.ConfigDir != "" {
		return strings.TrimRight(c.ConfigDir, "/") + "/home-assistant.log"
	}
	return ""
}

// Validate checks required fields and bounds.
func (c AgentConfig) Validate() error {
	if strings.TrimSpace(c.BackendURL) == "" {
		return &agenterrors.ConfigError{Field: "backend_url", Reason: "required"}
	}
	u, err := url.Parse(c.BackendURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return &agenterrors.ConfigError{Field: "backend_url", Reason: "must be an absolute http(s) URL"}
	}
	if strings.TrimSpace(c.APIToken) == "" {
		return &agenterrors.ConfigError{Field: "api_token", Reason: "required"}
	}
	if c.IntervalSeconds < 1 {
		return &agenterrors.ConfigError{Field: "interval_seconds", Reason: "must be >= 1"}
	}
	if c.RequestTimeout <= 0 {
		return &agenterrors.ConfigError{Field: "request_timeout", Reason: "must be > 0"}
	}
	if c.MaxRetries < 0 {
		return &agenterrors.ConfigError{Field: "max_retries", Reason: "must be >= 0"}
	}
	if c.BackoffBase <= 0 || c.BackoffMax < c.BackoffBase {
		return &agenterrors.ConfigError{Field: "backoff_base", Reason: "must be > 0 and <= backoff_max"}
	}
	if c.SourceTimeout <= 0 {
		return &agenterrors.ConfigError{Field: "source_timeout", Reason: "must be > 0"}
	}
	if c.ShutdownGrace <= 0 {
		return &agenterrors.ConfigError{Field: "shutdown_grace", Reason: "must be > 0"}
	}
	switch c.Encoding {
	case EncodingJSON, EncodingCBOR:
	default:
		return &agenterrors.ConfigError{Field: "encoding", Reason: "must be json or cbor"}
	}
	if c.LogMaxLines < 1 {
		return &agenterrors.ConfigError{Field: "log_max_lines", Reason: "must be >= 1"}
	}
	if c.LogDefaultLines < 1 || c.LogDefaultLines > c.LogMaxLines {
		return &agenterrors.ConfigError{Field: "log_default_lines", Reason: "must be within [1, log_max_lines]"}
	}
	if c.LogSensorInterval <= 0 {
		return &agenterrors.ConfigError{Field: "log_sensor_interval", Reason: "must be > 0"}
	}
	return nil
}
