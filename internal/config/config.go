package config

import (
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type SyncConfig struct {
	// PollIntervalMS is the fallback poll cadence while the change feed is
	// not live. The same interval is used on every surface.
	PollIntervalMS int `yaml:"poll_interval_ms"`
	// Listener reconnect bounds passed to pq.NewListener.
	ListenMinReconnectMS int `yaml:"listen_min_reconnect_ms"`
	ListenMaxReconnectMS int `yaml:"listen_max_reconnect_ms"`
}

func (s SyncConfig) PollInterval() time.Duration {
	return time.Duration(s.PollIntervalMS) * time.Millisecond
}

func (s SyncConfig) ListenMinReconnect() time.Duration {
	return time.Duration(s.ListenMinReconnectMS) * time.Millisecond
}

func (s SyncConfig) ListenMaxReconnect() time.Duration {
	return time.Duration(s.ListenMaxReconnectMS) * time.Millisecond
}

type Config struct {
	Server struct {
		Port int `yaml:"port"`
	} `yaml:"server"`
	Database struct {
		DSN string `yaml:"url"`
	} `yaml:"database"`
	Auth struct {
		JWTSecret string `yaml:"jwt_secret"`
	} `yaml:"auth"`
	Email struct {
		SMTPHost     string `yaml:"smtp_host"`
		SMTPPort     int    `yaml:"smtp_port"`
		SMTPUser     string `yaml:"smtp_user"`
		SMTPPassword string `yaml:"smtp_password"`
		FromEmail    string `yaml:"from_email"`
	} `yaml:"email"`
	Sync SyncConfig `yaml:"sync"`
}

func LoadConfig() *Config {
	// .env is optional; real environments set variables directly.
	_ = godotenv.Load()

	f, err := os.Open("config/config.yaml")
	if err != nil {
		panic("Failed to open config.yaml: " + err.Error())
	}
	defer f.Close()

	var cfg Config
	if err := yaml.NewDecoder(f).Decode(&cfg); err != nil {
		panic("Failed to parse config.yaml: " + err.Error())
	}

	// Environment overrides for secrets and the DSN.
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.DSN = v
	}
	if v := os.Getenv("JWT_SECRET"); v != "" {
		cfg.Auth.JWTSecret = v
	}
	if v := os.Getenv("SMTP_PASSWORD"); v != "" {
		cfg.Email.SMTPPassword = v
	}

	if cfg.Sync.PollIntervalMS <= 0 {
		cfg.Sync.PollIntervalMS = 2500
	}
	if cfg.Sync.ListenMinReconnectMS <= 0 {
		cfg.Sync.ListenMinReconnectMS = 1000
	}
	if cfg.Sync.ListenMaxReconnectMS <= 0 {
		cfg.Sync.ListenMaxReconnectMS = 30000
	}
	return &cfg
}
