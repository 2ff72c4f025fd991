// Package config loads application configuration from environment variables
// and an optional TOML file.
package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Config holds the validated application configuration.
type Config struct {
	ListenAddr      string
	DBPath          string
	RelayURL        string
	UpstreamURL     string
	UpstreamTimeout time.Duration
	UpstreamRPS     float64
	Cooldown        time.Duration
	HistoryLimit    int
}

// CooldownSeconds returns the cooldown in whole seconds, rounded up.
func (c *Config) CooldownSeconds() int {
	return int((c.Cooldown + time.Second - 1) / time.Second)
}

// fileConfig is the TOML layout. Durations are strings such as "10s".
type fileConfig struct {
	ListenAddr      string   `toml:"listen_addr"`
	DBPath          string   `toml:"db_path"`
	RelayURL        string   `toml:"relay_url"`
	UpstreamURL     string   `toml:"upstream_url"`
	UpstreamTimeout string   `toml:"upstream_timeout"`
	UpstreamRPS     *float64 `toml:"upstream_rps"`
	Cooldown        string   `toml:"cooldown"`
	HistoryLimit    *int     `toml:"history_limit"`
}

func defaults() *Config {
	return &Config{
		ListenAddr:      "127.0.0.1:8080",
		DBPath:          "keyquota.db",
		UpstreamURL:     "https://api-free.deepl.com",
		UpstreamTimeout: 5 * time.Second,
		UpstreamRPS:     2,
		Cooldown:        10 * time.Second,
		HistoryLimit:    5,
	}
}

// Load reads configuration and returns a validated Config. Settings come from
// KEYQUOTA_CONFIG_FILE when set, then environment variables, which win:
// KEYQUOTA_LISTEN_ADDR (127.0.0.1:8080), KEYQUOTA_DB_PATH (keyquota.db),
// KEYQUOTA_RELAY_URL (derived from the listen address),
// KEYQUOTA_UPSTREAM_URL (https://api-free.deepl.com),
// KEYQUOTA_UPSTREAM_TIMEOUT (5s), KEYQUOTA_UPSTREAM_RPS (2),
// KEYQUOTA_COOLDOWN (10s), KEYQUOTA_HISTORY_LIMIT (5).
func Load() (*Config, error) {
	cfg := defaults()

	if path, ok := os.LookupEnv("KEYQUOTA_CONFIG_FILE"); ok && path != "" {
		if err := applyFile(cfg, path); err != nil {
			return nil, err
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}

	if cfg.RelayURL == "" {
		cfg.RelayURL = relayURLFor(cfg.ListenAddr)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}

	var fc fileConfig
	if err := toml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	setString(&cfg.ListenAddr, fc.ListenAddr)
	setString(&cfg.DBPath, fc.DBPath)
	setString(&cfg.RelayURL, fc.RelayURL)
	setString(&cfg.UpstreamURL, fc.UpstreamURL)
	if fc.UpstreamRPS != nil {
		cfg.UpstreamRPS = *fc.UpstreamRPS
	}
	if fc.HistoryLimit != nil {
		cfg.HistoryLimit = *fc.HistoryLimit
	}
	if err := setDuration(&cfg.UpstreamTimeout, "upstream_timeout", fc.UpstreamTimeout); err != nil {
		return err
	}
	return setDuration(&cfg.Cooldown, "cooldown", fc.Cooldown)
}

func applyEnv(cfg *Config) error {
	if v, ok := os.LookupEnv("KEYQUOTA_LISTEN_ADDR"); ok {
		cfg.ListenAddr = v
	}
	if v, ok := os.LookupEnv("KEYQUOTA_DB_PATH"); ok {
		cfg.DBPath = v
	}
	if v, ok := os.LookupEnv("KEYQUOTA_RELAY_URL"); ok {
		cfg.RelayURL = v
	}
	if v, ok := os.LookupEnv("KEYQUOTA_UPSTREAM_URL"); ok {
		cfg.UpstreamURL = v
	}

	if v, ok := os.LookupEnv("KEYQUOTA_UPSTREAM_TIMEOUT"); ok {
		if err := setDuration(&cfg.UpstreamTimeout, "KEYQUOTA_UPSTREAM_TIMEOUT", v); err != nil {
			return err
		}
	}
	if v, ok := os.LookupEnv("KEYQUOTA_COOLDOWN"); ok {
		if err := setDuration(&cfg.Cooldown, "KEYQUOTA_COOLDOWN", v); err != nil {
			return err
		}
	}

	if v, ok := os.LookupEnv("KEYQUOTA_UPSTREAM_RPS"); ok {
		parsed, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("KEYQUOTA_UPSTREAM_RPS has invalid number %q: %w", v, err)
		}
		cfg.UpstreamRPS = parsed
	}
	if v, ok := os.LookupEnv("KEYQUOTA_HISTORY_LIMIT"); ok {
		parsed, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("KEYQUOTA_HISTORY_LIMIT has invalid integer %q: %w", v, err)
		}
		cfg.HistoryLimit = parsed
	}
	return nil
}

func (c *Config) validate() error {
	var errs []error
	if c.ListenAddr == "" {
		errs = append(errs, errors.New("listen address must not be empty"))
	}
	if c.DBPath == "" {
		errs = append(errs, errors.New("database path must not be empty"))
	}
	if err := validateURL("relay URL", c.RelayURL); err != nil {
		errs = append(errs, err)
	}
	if err := validateURL("upstream URL", c.UpstreamURL); err != nil {
		errs = append(errs, err)
	}
	if c.UpstreamTimeout <= 0 {
		errs = append(errs, fmt.Errorf("upstream timeout must be positive, got %s", c.UpstreamTimeout))
	}
	if c.UpstreamRPS < 0 {
		errs = append(errs, fmt.Errorf("upstream rps must not be negative, got %g", c.UpstreamRPS))
	}
	if c.Cooldown < 0 {
		errs = append(errs, fmt.Errorf("cooldown must not be negative, got %s", c.Cooldown))
	}
	if c.HistoryLimit < 1 {
		errs = append(errs, fmt.Errorf("history limit must be at least 1, got %d", c.HistoryLimit))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}

// relayURLFor points the client at this process's own relay endpoints.
// Wildcard hosts are replaced by loopback.
func relayURLFor(listenAddr string) string {
	host, port, err := net.SplitHostPort(listenAddr)
	if err != nil {
		return "http://" + listenAddr
	}
	switch host {
	case "", "0.0.0.0":
		host = "127.0.0.1"
	case "::":
		host = "::1"
	}
	return "http://" + net.JoinHostPort(host, port)
}

func validateURL(name, raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s %q: %w", name, raw, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%s %q must be an absolute http(s) URL", name, raw)
	}
	return nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, name, v string) error {
	if v == "" {
		return nil
	}
	parsed, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%s has invalid duration %q: %w", name, v, err)
	}
	*dst = parsed
	return nil
}
