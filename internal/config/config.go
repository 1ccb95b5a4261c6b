package config

import (
	"os"

	"github.com/spf13/pflag"
)

// ServerConfig configures the reference collector.
type ServerConfig struct {
	Address     string
	DatabaseDSN string
	APIToken    string
	SigningKey  string
	LogLevel    string
	AuditFile   string
	AuditURL    string
}

func NewServerConfig(args []string) (*ServerConfig, error) {
	config := &ServerConfig{
		Address:  "localhost:8100",
		LogLevel: "info",
	}

	fs := pflag.NewFlagSet("fleet-collector", pflag.ContinueOnError)
	address := fs.StringP("address", "a", config.Address, "listen address")
	databaseDSN := fs.StringP("database-dsn", "d", config.DatabaseDSN, "postgres dsn, in-memory storage when empty")
	apiToken := fs.StringP("api-token", "t", config.APIToken, "bearer token agents must present")
	signingKey := fs.StringP("key", "k", config.SigningKey, "HMAC key used to verify payload signatures")
	logLevel := fs.String("log-level", config.LogLevel, "log level")
	auditFile := fs.StringP("audit-file", "f", config.AuditFile, "file accepted payloads are audited to")
	auditURL := fs.StringP("audit-url", "u", config.AuditURL, "URL accepted payloads are audited to")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	envVars := map[string]*string{
		"ADDRESS":      address,
		"DATABASE_DSN": databaseDSN,
		"API_TOKEN":    apiToken,
		"KEY":          signingKey,
		"LOG_LEVEL":    logLevel,
		"AUDIT_FILE":   auditFile,
		"AUDIT_URL":    auditURL,
	}

	for envVar, flag := range envVars {
		if envValue := os.Getenv(envVar); envValue != "" {
			*flag = envValue
		}
	}

	config.Address = *address
	config.DatabaseDSN = *databaseDSN
	config.APIToken = *apiToken
	config.SigningKey = *signingKey
	config.LogLevel = *logLevel
	config.AuditFile = *auditFile
	config.AuditURL = *auditURL

	return config, nil
}
