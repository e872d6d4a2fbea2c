// internal/config/config.go
package config

import (
	"fmt"
	"strings"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/kelseyhightower/envconfig"
)

// Config holds every runtime knob the server reads from the environment.
// A .env file in the working directory is loaded automatically.
type Config struct {
	Addr     string `envconfig:"SERVER_ADDR" default:"0.0.0.0:8080"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`

	// DatabaseURL is a pgx connection string. Blank disables persistence;
	// the server runs fully in memory.
	DatabaseURL string `envconfig:"DATABASE_URL"`
	// RedisAddr is host:port for the action-log queue. Blank disables it.
	RedisAddr string `envconfig:"REDIS_ADDR"`
	RedisDB   int    `envconfig:"REDIS_DB" default:"0"`

	// JWT key file paths. Blank means a fresh key pair per process.
	JWTPrivateKeyPath string `envconfig:"JWT_PRIVATE_KEY_PATH"`
	JWTPublicKeyPath  string `envconfig:"JWT_PUBLIC_KEY_PATH"`

	EmptyRoomSweepInterval time.Duration `envconfig:"EMPTY_ROOM_SWEEP_INTERVAL" default:"30s"`
}

// Load reads the environment into a Config.
func Load() (Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, fmt.Errorf("process env config: %w", err)
	}
	cfg.LogLevel = strings.ToLower(cfg.LogLevel)
	return cfg, nil
}
