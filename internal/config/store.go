package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Store loads the agent configuration from one source.
type Store interface {
	Load() (AgentConfig, error)
}

// NewStore picks the file store when a config file is given on the
// command line or in FLEET_CONFIG, and the flag store otherwise.
func NewStore(args []string) Store {
	if path := configPathFromArgs(args); path != "" {
		return &FileStore{Path: path}
	}
	if path := os.Getenv(EnvPrefix + "_CONFIG"); path != "" {
		return &FileStore{Path: path}
	}
	return &FlagStore{Args: args}
}

func configPathFromArgs(args []string) string {
	for i, arg := range args {
		switch {
		case arg == "--config" || arg == "-c":
			if i+1 < len(args) {
				return args[i+1]
			}
		case strings.HasPrefix(arg, "--config="):
			return strings.TrimPrefix(arg, "--config=")
		}
	}
	return ""
}

// FileStore reads a YAML file through viper. Every key can be overridden
// by FLEET_<KEY> in the environment.
type FileStore struct {
	Path string
}

func (s *FileStore) Load() (AgentConfig, error) {
	v := viper.New()
	v.SetConfigFile(s.Path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults also register every key so AutomaticEnv applies to it.
	defaults := DefaultAgentConfig()
	v.SetDefault("backend_url", "")
	v.SetDefault("api_token", "")
	v.SetDefault("instance_name", "")
	v.SetDefault("interval_seconds", defaults.IntervalSeconds)
	v.SetDefault("request_timeout", defaults.RequestTimeout)
	v.SetDefault("max_retries", defaults.MaxRetries)
	v.SetDefault("backoff_base", defaults.BackoffBase)
	v.SetDefault("backoff_max", defaults.BackoffMax)
	v.SetDefault("compress", defaults.Compress)
	v.SetDefault("encoding", defaults.Encoding)
	v.SetDefault("signing_key", "")
	v.SetDefault("source_timeout", defaults.SourceTimeout)
	v.SetDefault("shutdown_grace", defaults.ShutdownGrace)
	v.SetDefault("state_dir", defaults.StateDir)
	v.SetDefault("ha_url", "")
	v.SetDefault("ha_token", "")
	v.SetDefault("ha_config_dir", "")
	v.SetDefault("recorder_db_url", "")
	v.SetDefault("cert_file", "")
	v.SetDefault("supervisor_url", defaults.SupervisorURL)
	v.SetDefault("log_file", "")
	v.SetDefault("log_max_lines", defaults.LogMaxLines)
	v.SetDefault("log_default_lines", defaults.LogDefaultLines)
	v.SetDefault("log_sensor_interval", defaults.LogSensorInterval)
	v.SetDefault("control_addr", defaults.ControlAddr)
	v.SetDefault("log_level", defaults.LogLevel)
	v.SetDefault("log_format", defaults.LogFormat)
	if err := v.BindEnv("supervisor_token", EnvPrefix+"_SUPERVISOR_TOKEN", "SUPERVISOR_TOKEN"); err != nil {
		return AgentConfig{}, fmt.Errorf("bind env: %w", err)
	}

	if err := v.ReadInConfig(); err != nil {
		return AgentConfig{}, fmt.Errorf("read config: %w", err)
	}

	var cfg AgentConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return AgentConfig{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return AgentConfig{}, err
	}
	return cfg, nil
}

// FlagStore reads command line flags, then lets FLEET_* environment
// variables override them.
type FlagStore struct {
	Args []string
}

func (s *FlagStore) Load() (AgentConfig, error) {
	cfg := DefaultAgentConfig()

	fs := pflag.NewFlagSet("fleet-agent", pflag.ContinueOnError)
	fs.StringP("config", "c", "", "path to a YAML config file")
	backendURL := fs.StringP("backend-url", "u", cfg.BackendURL, "collector base URL")
	apiToken := fs.StringP("api-token", "t", cfg.APIToken, "bearer token for the collector")
	instanceName := fs.StringP("instance-name", "n", cfg.InstanceName, "display name of this installation")
	interval := fs.IntP("interval", "i", cfg.IntervalSeconds, "seconds between collection cycles")
	requestTimeout := fs.Duration("request-timeout", cfg.RequestTimeout, "per attempt HTTP timeout")
	maxRetries := fs.Int("max-retries", cfg.MaxRetries, "retries after the first delivery attempt")
	backoffBase := fs.Duration("backoff-base", cfg.BackoffBase, "first retry wait")
	backoffMax := fs.Duration("backoff-max", cfg.BackoffMax, "upper bound of a retry wait")
	compress := fs.Bool("compress", cfg.Compress, "gzip request bodies")
	encoding := fs.String("encoding", cfg.Encoding, "payload encoding, json or cbor")
	signingKey := fs.StringP("key", "k", cfg.SigningKey, "HMAC key used to sign payloads")
	sourceTimeout := fs.Duration("source-timeout", cfg.SourceTimeout, "per source sampling timeout")
	shutdownGrace := fs.Duration("shutdown-grace", cfg.ShutdownGrace, "how long shutdown waits for an in-flight cycle")
	stateDir := fs.String("state-dir", cfg.StateDir, "directory for the persisted instance identity")
	haURL := fs.String("ha-url", cfg.HomeAssistantURL, "Home Assistant base URL")
	haToken := fs.String("ha-token", cfg.HomeAssistantToken, "Home Assistant long lived access token")
	configDir := fs.String("ha-config-dir", cfg.ConfigDir, "Home Assistant config directory")
	recorderDB := fs.String("recorder-db-url", cfg.RecorderDBURL, "recorder database URL")
	certFile := fs.String("cert-file", cfg.CertFile, "PEM certificate to inspect instead of dialing")
	supervisorURL := fs.String("supervisor-url", cfg.SupervisorURL, "Supervisor API base URL")
	supervisorToken := fs.String("supervisor-token", cfg.SupervisorToken, "Supervisor API token")
	logFile := fs.String("log-file", cfg.LogFile, "log file served by the log service")
	logMax := fs.Int("log-max-lines", cfg.LogMaxLines, "upper bound of lines returned by the log service")
	logDefault := fs.Int("log-default-lines", cfg.LogDefaultLines, "lines returned when none are requested")
	logSensor := fs.Duration("log-sensor-interval", cfg.LogSensorInterval, "refresh interval of the log sensor")
	controlAddr := fs.String("control-addr", cfg.ControlAddr, "listen address of the control API, empty to disable")
	logLevel := fs.String("log-level", cfg.LogLevel, "log level")
	logFormat := fs.String("log-format", cfg.LogFormat, "log format, json or console")
	if err := fs.Parse(s.Args); err != nil {
		return AgentConfig{}, err
	}

	envVars := map[string]*string{
		"BACKEND_URL":      backendURL,
		"API_TOKEN":        apiToken,
		"INSTANCE_NAME":    instanceName,
		"ENCODING":         encoding,
		"SIGNING_KEY":      signingKey,
		"STATE_DIR":        stateDir,
		"HA_URL":           haURL,
		"HA_TOKEN":         haToken,
		"HA_CONFIG_DIR":    configDir,
		"RECORDER_DB_URL":  recorderDB,
		"CERT_FILE":        certFile,
		"SUPERVISOR_URL":   supervisorURL,
		"SUPERVISOR_TOKEN": supervisorToken,
		"LOG_FILE":         logFile,
		"CONTROL_ADDR":     controlAddr,
		"LOG_LEVEL":        logLevel,
		"LOG_FORMAT":       logFormat,
	}
	for envVar, flag := range envVars {
		if envValue := os.Getenv(EnvPrefix + "_" + envVar); envValue != "" {
			*flag = envValue
		}
	}
	if *supervisorToken == "" {
		*supervisorToken = os.Getenv("SUPERVISOR_TOKEN")
	}

	intVars := map[string]*int{
		"INTERVAL_SECONDS":  interval,
		"MAX_RETRIES":       maxRetries,
		"LOG_MAX_LINES":     logMax,
		"LOG_DEFAULT_LINES": logDefault,
	}
	for envVar, flag := range intVars {
		if envValue := os.Getenv(EnvPrefix + "_" + envVar); envValue != "" {
			parsed, err := strconv.Atoi(envValue)
			if err != nil {
				return AgentConfig{}, fmt.Errorf("%s_%s: %w", EnvPrefix, envVar, err)
			}
			*flag = parsed
		}
	}

	durationVars := map[string]*time.Duration{
		"REQUEST_TIMEOUT":     requestTimeout,
		"BACKOFF_BASE":        backoffBase,
		"BACKOFF_MAX":         backoffMax,
		"SOURCE_TIMEOUT":      sourceTimeout,
		"SHUTDOWN_GRACE":      shutdownGrace,
		"LOG_SENSOR_INTERVAL": logSensor,
	}
	for envVar, flag := range durationVars {
		if envValue := os.Getenv(EnvPrefix + "_" + envVar); envValue != "" {
			parsed, err := time.ParseDuration(envValue)
			if err != nil {
				return AgentConfig{}, fmt.Errorf("%s_%s: %w", EnvPrefix, envVar, err)
			}
			*flag = parsed
		}
	}

	if envCompress := os.Getenv(EnvPrefix + "_COMPRESS"); envCompress != "" {
		parsed, err := strconv.ParseBool(envCompress)
		if err != nil {
			return AgentConfig{}, fmt.Errorf("%s_COMPRESS: %w", EnvPrefix, err)
		}
		*compress = parsed
	}

	cfg.BackendURL = *backendURL
	cfg.APIToken = *apiToken
	cfg.InstanceName = *instanceName
	cfg.IntervalSeconds = *interval
	cfg.RequestTimeout = *requestTimeout
	cfg.MaxRetries = *maxRetries
	cfg.BackoffBase = *backoffBase
	cfg.BackoffMax = *backoffMax
	cfg.Compress = *compress
	cfg.Encoding = *encoding
	cfg.SigningKey = *signingKey
	cfg.SourceTimeout = *sourceTimeout
	cfg.ShutdownGrace = *shutdownGrace
	cfg.StateDir = *stateDir
	cfg.HomeAssistantURL = *haURL
	cfg.HomeAssistantToken = *haToken
	cfg.ConfigDir = *configDir
	cfg.RecorderDBURL = *recorderDB
	cfg.CertFile = *certFile
	cfg.SupervisorURL = *supervisorURL
	cfg.SupervisorToken = *supervisorToken
	cfg.LogFile = *logFile
	cfg.LogMaxLines = *logMax
	cfg.LogDefaultLines = *logDefault
	cfg.LogSensorInterval = *logSensor
	cfg.ControlAddr = *controlAddr
	cfg.LogLevel = *logLevel
	cfg.LogFormat = *logFormat

	if err := cfg.Validate(); err != nil {
		return AgentConfig{}, err
	}
	return cfg, nil
}
