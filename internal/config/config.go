// Package config loads the daemon configuration: a YAML file overlaid by
// WIOTP_* environment variables. Command-line flags are applied by the
// caller on top.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"watsoniot-bridge/go-backend/internal/dispatch"
	"watsoniot-bridge/go-backend/internal/platform/ratelimiter"
	"watsoniot-bridge/go-backend/internal/session"
	"watsoniot-bridge/go-backend/internal/status"
)

const (
	DefaultAddr          = "127.0.0.1:8790"
	DefaultPassphraseEnv = "WIOTP_VAULT_PASSPHRASE"
	TransportSimulator   = "simulator"
)

type Config struct {
	Server      ServerConfig              `yaml:"server"`
	Log         LogConfig                 `yaml:"log"`
	Status      StatusConfig              `yaml:"status"`
	Outbox      OutboxConfig              `yaml:"outbox"`
	Vault       VaultConfig               `yaml:"vault"`
	Redis       RedisConfig               `yaml:"redis"`
	Transport   string                    `yaml:"transport"`
	Credentials map[string]session.APIKey `yaml:"credentials"`
	Nodes       []dispatch.NodeConfig     `yaml:"nodes"`
}

type ServerConfig struct {
	Addr       string             `yaml:"addr"`
	AdminToken string             `yaml:"admin_token"`
	RateLimit  ratelimiter.Config `yaml:"rate_limit"`
	Streams    StreamConfig       `yaml:"streams"`
}

type StreamConfig struct {
	MaxGlobal    int `yaml:"max_global"`
	MaxPerClient int `yaml:"max_per_client"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type StatusConfig struct {
	ClearDelay time.Duration `yaml:"clear_delay"`
}

type OutboxConfig struct {
	Limit int `yaml:"limit"`
}

type VaultConfig struct {
	Path          string `yaml:"path"`
	PassphraseEnv string `yaml:"passphrase_env"`
}

type RedisConfig struct {
	URL     string        `yaml:"url"`
	TTL     time.Duration `yaml:"ttl"`
	Channel string        `yaml:"channel"`
}

func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:      DefaultAddr,
			RateLimit: ratelimiter.Config{RPS: 20, Burst: 40},
			Streams:   StreamConfig{MaxGlobal: 64, MaxPerClient: 4},
		},
		Log:       LogConfig{Level: "info", Format: "json"},
		Status:    StatusConfig{ClearDelay: status.DefaultClearDelay},
		Outbox:    OutboxConfig{Limit: 256},
		Vault:     VaultConfig{PassphraseEnv: DefaultPassphraseEnv},
		Transport: TransportSimulator,
	}
}

// Load reads the config file and applies env overrides. An explicit path
// must exist; configs/config.yaml under the working directory is optional.
func Load(path string, getenv func(string) string) (Config, string, error) {
	if getenv == nil {
		getenv = os.Getenv
	}
	cfg := Default()

	candidates := []string{path}
	explicit := strings.TrimSpace(path) != ""
	if !explicit {
		candidates = []string{"configs/config.yaml"}
	}

	used := ""
	for _, candidate := range candidates {
		data, err := os.ReadFile(candidate)
		if err != nil {
			if explicit || !errors.Is(err, os.ErrNotExist) {
				return Config{}, "", fmt.Errorf("read config %s: %w", candidate, err)
			}
			continue
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, "", fmt.Errorf("parse config %s: %w", candidate, err)
		}
		used = candidate
		break
	}

	if err := ApplyEnvOverrides(&cfg, getenv); err != nil {
		return Config{}, "", err
	}
	return cfg, used, nil
}

// ApplyEnvOverrides overlays WIOTP_* variables. Malformed numbers and
// durations are reported rather than ignored.
func ApplyEnvOverrides(cfg *Config, getenv func(string) string) error {
	str := func(name string, dst *string) {
		if v := strings.TrimSpace(getenv(name)); v != "" {
			*dst = v
		}
	}
	str("WIOTP_ADDR", &cfg.Server.Addr)
	str("WIOTP_ADMIN_TOKEN", &cfg.Server.AdminToken)
	str("WIOTP_LOG_LEVEL", &cfg.Log.Level)
	str("WIOTP_LOG_FORMAT", &cfg.Log.Format)
	str("WIOTP_TRANSPORT", &cfg.Transport)
	str("WIOTP_VAULT_PATH", &cfg.Vault.Path)
	str("WIOTP_REDIS_URL", &cfg.Redis.URL)

	if raw := strings.TrimSpace(getenv("WIOTP_STATUS_CLEAR_DELAY")); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("WIOTP_STATUS_CLEAR_DELAY: %w", err)
		}
		cfg.Status.ClearDelay = d
	}
	if raw := strings.TrimSpace(getenv("WIOTP_RATE_LIMIT_RPS")); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return fmt.Errorf("WIOTP_RATE_LIMIT_RPS: %w", err)
		}
		cfg.Server.RateLimit.RPS = v
	}
	if raw := strings.TrimSpace(getenv("WIOTP_RATE_LIMIT_BURST")); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			return fmt.Errorf("WIOTP_RATE_LIMIT_BURST: %w", err)
		}
		cfg.Server.RateLimit.Burst = v
	}
	return nil
}
