package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"
)

type Config struct {
	DataDir  string `json:"data_dir"`
	LogLevel string `json:"log_level"`
	Backend  struct {
		BaseURL      string `json:"base_url"`
		AppName      string `json:"app_name"`
		UserID       string `json:"user_id"`
		EventsURL    string `json:"events_url"`
		MCPHealthURL string `json:"mcp_health_url"`
	} `json:"backend"`
	Transport struct {
		StreamEnabled          bool    `json:"stream_enabled"`
		PollIntervalMS         int     `json:"poll_interval_ms"`
		PollStartDelayMS       int     `json:"poll_start_delay_ms"`
		PollMaxIntervalMS      int     `json:"poll_max_interval_ms"`
		PollBackoff            float64 `json:"poll_backoff"`
		StreamReconnectDelayMS int     `json:"stream_reconnect_delay_ms"`
		StreamMaxReconnects    int     `json:"stream_max_reconnects"`
	} `json:"transport"`
	Completion struct {
		IdleWindowMS  int `json:"idle_window_ms"`
		IdleMinEvents int `json:"idle_min_events"`
	} `json:"completion"`
	Health struct {
		TimeoutMS int    `json:"timeout_ms"`
		Schedule  string `json:"schedule"`
	} `json:"health"`
	HTTP struct {
		Enabled bool   `json:"enabled"`
		Listen  string `json:"listen"`
	} `json:"http"`
	Telegram struct {
		Token string `json:"token"`
	} `json:"telegram"`
}

// Default returns the configuration written on first load.
func Default() *Config {
	cfg := &Config{
		DataDir:  filepath.Join(os.Getenv("HOME"), ".feynwatch"),
		LogLevel: "info",
	}
	cfg.Backend.BaseURL = "http://localhost:8000"
	cfg.Backend.AppName = "feynmancraft_adk"
	cfg.Backend.UserID = "user"
	cfg.Backend.EventsURL = "http://localhost:8001/events"
	cfg.Backend.MCPHealthURL = "http://localhost:8002"

	cfg.Transport.StreamEnabled = true
	cfg.Transport.PollIntervalMS = 2000
	cfg.Transport.PollStartDelayMS = 5000
	cfg.Transport.PollMaxIntervalMS = 10000
	cfg.Transport.PollBackoff = 2.0
	cfg.Transport.StreamReconnectDelayMS = 3000
	cfg.Transport.StreamMaxReconnects = 5

	cfg.Completion.IdleWindowMS = 60000
	cfg.Completion.IdleMinEvents = 5

	cfg.Health.TimeoutMS = 5000
	cfg.Health.Schedule = "@every 30s"

	cfg.HTTP.Listen = "127.0.0.1:8090"
	return cfg
}

func Load(path string) (*Config, error) {
	cfg := Default()

	// Load from file if exists, otherwise write defaults
	if _, err := os.Stat(path); err == nil {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	} else if os.IsNotExist(err) {
		if err := Save(path, cfg); err != nil {
			return nil, err
		}
	}

	// Override from env (highest precedence)
	if v := os.Getenv("FEYNWATCH_BACKEND_URL"); v != "" {
		cfg.Backend.BaseURL = v
	}
	if v := os.Getenv("FEYNWATCH_MCP_HEALTH_URL"); v != "" {
		cfg.Backend.MCPHealthURL = v
	}
	if v := os.Getenv("FEYNWATCH_EVENTS_URL"); v != "" {
		cfg.Backend.EventsURL = v
	}
	if tgToken := os.Getenv("TELEGRAM_BOT_TOKEN"); tgToken != "" {
		cfg.Telegram.Token = tgToken
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the engine cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if _, err := url.ParseRequestURI(c.Backend.BaseURL); err != nil {
		errs = append(errs, fmt.Errorf("backend.base_url: %w", err))
	}
	if c.Backend.AppName == "" {
		errs = append(errs, errors.New("backend.app_name is required"))
	}
	if c.Transport.PollIntervalMS <= 0 {
		errs = append(errs, errors.New("transport.poll_interval_ms must be positive"))
	}
	if c.Transport.PollBackoff < 1 {
		errs = append(errs, errors.New("transport.poll_backoff must be at least 1"))
	}
	if c.Transport.StreamMaxReconnects < 0 {
		errs = append(errs, errors.New("transport.stream_max_reconnects must not be negative"))
	}
	if c.Completion.IdleWindowMS <= 0 {
		errs = append(errs, errors.New("completion.idle_window_ms must be positive"))
	}
	return errors.Join(errs...)
}

// Millis converts a millisecond setting to a duration.
func Millis(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

// Save writes cfg to path atomically, creating the directory if needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return writeFile(path, append(data, '\n'))
}

func writeFile(path string, data []byte) error {
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename config: %w", err)
	}
	return nil
}

// ToMap round-trips cfg through JSON into a nested map.
func ToMap(cfg *Config) (map[string]any, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return m, nil
}

// ListValues returns every setting under its dot-separated key.
func ListValues(cfg *Config, mask bool) (map[string]any, error) {
	m, err := ToMap(cfg)
	if err != nil {
		return nil, err
	}
	flat := Flatten(m)
	if mask {
		flat = MaskSecrets(flat)
	}
	return flat, nil
}

// GetValue reads one key from the file at path. The file is created with
// defaults when missing.
func GetValue(path, key string) (any, error) {
	if _, err := Load(path); err != nil {
		return nil, err
	}
	flat, err := readFlat(path)
	if err != nil {
		return nil, err
	}
	v, ok := flat[key]
	if !ok {
		return nil, fmt.Errorf("unknown config key: %s", key)
	}
	return v, nil
}

// SetValue stores raw under key. raw is decoded as JSON when it parses
// (numbers, booleans) and kept as a string otherwise. The file must exist.
func SetValue(path, key, raw string) error {
	flat, err := readFlat(path)
	if err != nil {
		return err
	}

	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		v = raw
	}
	flat[key] = v

	data, err := json.MarshalIndent(Unflatten(flat), "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return writeFile(path, append(data, '\n'))
}

func readFlat(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return Flatten(m), nil
}
