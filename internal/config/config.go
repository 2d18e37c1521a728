// Package config loads process settings from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"github.com/gridbase/backend/pkg/constants"
)

// DBConfig holds the TiDB/MySQL connection settings.
type DBConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
}

// Config is the process configuration.
type Config struct {
	Port string
	DB   DBConfig
	// Debug lets internal errors fail requests instead of being reported.
	Debug            bool
	LogLevel         string
	PeriodicSchedule string
	EvalCacheSize    int
}

// Load reads an optional .env file and then the environment. Variables
// already set in the environment win over the file.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if _, err := os.Stat(f); err == nil {
			if err := godotenv.Load(f); err != nil {
				return nil, fmt.Errorf("failed to load %s: %w", f, err)
			}
		}
	}
	return FromEnv()
}

// FromEnv builds a Config from environment variables only.
func FromEnv() (*Config, error) {
	cfg := &Config{
		Port: getEnv(constants.EnvPort, constants.DefaultPort),
		DB: DBConfig{
			Host:     getEnv(constants.EnvDBHost, "127.0.0.1"),
			Port:     getEnv(constants.EnvDBPort, constants.DefaultDBPort),
			User:     getEnv(constants.EnvDBUser, "root"),
			Password: os.Getenv(constants.EnvDBPassword),
			Name:     getEnv(constants.EnvDBName, constants.DefaultDBName),
		},
		LogLevel:         strings.ToLower(getEnv(constants.EnvLogLevel, "info")),
		PeriodicSchedule: getEnv(constants.EnvPeriodicSchedule, constants.DefaultPeriodicSchedule),
		EvalCacheSize:    constants.DefaultEvalCacheSize,
	}

	if v := os.Getenv(constants.EnvDebug); v != "" {
		debug, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("invalid %s %q: %w", constants.EnvDebug, v, err)
		}
		cfg.Debug = debug
	}
	if v := os.Getenv(constants.EnvEvalCacheSize); v != "" {
		size, err := strconv.Atoi(v)
		if err != nil || size <= 0 {
			return nil, fmt.Errorf("invalid %s %q: must be a positive integer", constants.EnvEvalCacheSize, v)
		}
		cfg.EvalCacheSize = size
	}
	return cfg, nil
}

// DSN returns the go-sql-driver/mysql data source name. tlsConfig is the
// name of a registered TLS config, empty for none.
func (c DBConfig) DSN(tlsConfig string) string {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
		c.User, c.Password, c.Host, c.Port, c.Name)
	if tlsConfig != "" {
		dsn += "&tls=" + tlsConfig
	}
	return dsn
}

// IsLocal reports whether the database runs on this machine.
func (c DBConfig) IsLocal() bool {
	return c.Host == "" || c.Host == "127.0.0.1" || c.Host == "localhost"
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
