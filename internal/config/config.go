// Package config loads frostbox settings from an optional TOML file and
// FROSTBOX_* environment variables, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Duration reads Go duration strings ("24h", "90m") from TOML.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

type Config struct {
	ListenAddr string `toml:"listen_addr"`
	DBPath     string `toml:"db_path"`
	BaseURL    string `toml:"base_url"`

	Log     LogConfig     `toml:"log"`
	Auth    AuthConfig    `toml:"auth"`
	Invites InvitesConfig `toml:"invites"`
	Email   EmailConfig   `toml:"email"`
}

type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// AuthConfig names the headers the authenticating proxy sets.
type AuthConfig struct {
	EmailHeader     string `toml:"email_header"`
	HouseholdHeader string `toml:"household_header"`
}

type InvitesConfig struct {
	ResendCooldown Duration `toml:"resend_cooldown"`
	RateLimit      int      `toml:"rate_limit"`
	RateWindow     Duration `toml:"rate_window"`
}

type EmailConfig struct {
	PostmarkToken string `toml:"postmark_token"`
	From          string `toml:"from"`
}

func Default() *Config {
	return &Config{
		ListenAddr: ":8080",
		DBPath:     "frostbox.db",
		BaseURL:    "http://localhost:8080",
		Log:        LogConfig{Level: "info", Format: "text"},
		Auth: AuthConfig{
			EmailHeader:     "X-Forwarded-Email",
			HouseholdHeader: "X-Household-ID",
		},
		Invites: InvitesConfig{
			ResendCooldown: Duration{24 * time.Hour},
			RateLimit:      10,
			RateWindow:     Duration{time.Hour},
		},
		Email: EmailConfig{From: "frostbox@localhost"},
	}
}

// Load reads path (skipped when empty) over the defaults, then applies the
// environment. A missing or malformed file is an error; unknown keys are
// only logged.
func Load(path string, logger *slog.Logger) (*Config, error) {
	return load(path, os.Getenv, logger)
}

func load(path string, getenv func(string) string, logger *slog.Logger) (*Config, error) {
	if logger == nil {
		logger = slog.Default()
	}
	cfg := Default()

	if path != "" {
		md, err := toml.DecodeFile(path, cfg)
		if err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, len(undecoded))
			for i, k := range undecoded {
				keys[i] = k.String()
			}
			logger.Warn("config file contains undecoded keys", "path", path, "keys", keys)
		}
	}

	if err := applyEnv(cfg, getenv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config, getenv func(string) string) error {
	strs := map[string]*string{
		"FROSTBOX_LISTEN_ADDR":           &cfg.ListenAddr,
		"FROSTBOX_DB_PATH":               &cfg.DBPath,
		"FROSTBOX_BASE_URL":              &cfg.BaseURL,
		"FROSTBOX_LOG_LEVEL":             &cfg.Log.Level,
		"FROSTBOX_LOG_FORMAT":            &cfg.Log.Format,
		"FROSTBOX_AUTH_EMAIL_HEADER":     &cfg.Auth.EmailHeader,
		"FROSTBOX_AUTH_HOUSEHOLD_HEADER": &cfg.Auth.HouseholdHeader,
		"FROSTBOX_POSTMARK_TOKEN":        &cfg.Email.PostmarkToken,
		"FROSTBOX_EMAIL_FROM":            &cfg.Email.From,
	}
	for key, dst := range strs {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}

	durations := map[string]*Duration{
		"FROSTBOX_INVITES_RESEND_COOLDOWN": &cfg.Invites.ResendCooldown,
		"FROSTBOX_INVITES_RATE_WINDOW":     &cfg.Invites.RateWindow,
	}
	for key, dst := range durations {
		if v := getenv(key); v != "" {
			if err := dst.UnmarshalText([]byte(v)); err != nil {
				return fmt.Errorf("parse %s: %w", key, err)
			}
		}
	}

	if v := getenv("FROSTBOX_INVITES_RATE_LIMIT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse FROSTBOX_INVITES_RATE_LIMIT: %w", err)
		}
		cfg.Invites.RateLimit = n
	}
	return nil
}

// Validate rejects settings the server cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.ListenAddr == "" {
		errs = append(errs, errors.New("listen_addr is required"))
	}
	if c.DBPath == "" {
		errs = append(errs, errors.New("db_path is required"))
	}
	if c.Auth.EmailHeader == "" {
		errs = append(errs, errors.New("auth.email_header is required"))
	}
	if c.Auth.HouseholdHeader == "" {
		errs = append(errs, errors.New("auth.household_header is required"))
	}
	if c.Invites.ResendCooldown.Duration <= 0 {
		errs = append(errs, errors.New("invites.resend_cooldown must be positive"))
	}
	if c.Invites.RateLimit <= 0 {
		errs = append(errs, errors.New("invites.rate_limit must be positive"))
	}
	if c.Invites.RateWindow.Duration <= 0 {
		errs = append(errs, errors.New("invites.rate_window must be positive"))
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format %q must be text or json", c.Log.Format))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
