package config

import (
	"os"
	"strconv"
	"strings"
)

const envPrefix = "QG_"

// envString gets a string environment variable with the QG_ prefix
func envString(key, defaultValue string) string {
	value := os.Getenv(envPrefix + strings.ToUpper(key))
	if value == "" {
		return defaultValue
	}
	return value
}

// envInt gets an integer environment variable with the QG_ prefix
func envInt(key string, defaultValue int) int {
	value := envString(key, "")
	if value == "" {
		return defaultValue
	}
	if intValue, err := strconv.Atoi(value); err == nil {
		return intValue
	}
	return defaultValue
}

// envBool gets a boolean environment variable with the QG_ prefix
func envBool(key string, defaultValue bool) bool {
	value := envString(key, "")
	if value == "" {
		return defaultValue
	}
	if boolValue, err := strconv.ParseBool(value); err == nil {
		return boolValue
	}
	return defaultValue
}

// applyEnvOverrides overrides secrets and endpoints from the environment
// so that credentials never have to live in the YAML file
func applyEnvOverrides(c *Config) {
	c.Database.Host = envString("DB_HOST", c.Database.Host)
	c.Database.Port = envInt("DB_PORT", c.Database.Port)
	c.Database.User = envString("DB_USER", c.Database.User)
	c.Database.Password = envString("DB_PASSWORD", c.Database.Password)
	c.Database.DBName = envString("DB_NAME", c.Database.DBName)
	c.Database.SSLMode = envString("DB_SSLMODE", c.Database.SSLMode)

	c.Redis.Enabled = envBool("REDIS_ENABLED", c.Redis.Enabled)
	c.Redis.Addr = envString("REDIS_ADDR", c.Redis.Addr)
	c.Redis.Password = envString("REDIS_PASSWORD", c.Redis.Password)

	c.Storage.Backend = envString("STORAGE_BACKEND", c.Storage.Backend)
	c.Storage.Dir = envString("STORAGE_DIR", c.Storage.Dir)

	c.Logging.Level = envString("LOG_LEVEL", c.Logging.Level)
}
