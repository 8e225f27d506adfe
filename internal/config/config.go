package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config is populated from the environment. StoreBackend selects the
// durable tier: fs, sqlite, badger, or ftp.
type Config struct {
	Port         string        `env:"PORT" envDefault:"8080"`
	StoreBackend string        `env:"SCRUMDECK_STORE" envDefault:"fs"`
	DataDir      string        `env:"SCRUMDECK_DATA_DIR" envDefault:"./data"`
	BaseDir      string        `env:"SCRUMDECK_BASE_DIR" envDefault:"rooms"`
	Debounce     time.Duration `env:"SCRUMDECK_DEBOUNCE" envDefault:"3s"`

	FTPAddr     string        `env:"SCRUMDECK_FTP_ADDR"`
	FTPUser     string        `env:"SCRUMDECK_FTP_USER"`
	FTPPassword string        `env:"SCRUMDECK_FTP_PASSWORD"`
	FTPTLS      bool          `env:"SCRUMDECK_FTP_TLS" envDefault:"false"`
	FTPTimeout  time.Duration `env:"SCRUMDECK_FTP_TIMEOUT" envDefault:"15s"`

	LogLevel string `env:"SCRUMDECK_LOG_LEVEL" envDefault:"info"`
}

// Load reads an optional .env file, then the process environment.
func Load() (Config, error) {
	// Missing .env is fine; the environment wins anyway.
	godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}

	switch cfg.StoreBackend {
	case "fs", "sqlite", "badger":
	case "ftp":
		if cfg.FTPAddr == "" {
			return Config{}, fmt.Errorf("SCRUMDECK_FTP_ADDR is required for the ftp backend")
		}
	default:
		return Config{}, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
	return cfg, nil
}
