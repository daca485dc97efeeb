// ABOUTME: Configuration loading for the otpgate demo SSH server
// ABOUTME: Loads TOML config with environment variable expansion

package main

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/parallaxsec/otpgate/internal/otp"
)

type Config struct {
	Server   ServerConfig   `toml:"server"`
	Database DatabaseConfig `toml:"database"`
	TOTP     TOTPConfig     `toml:"totp"`
	Auth     AuthConfig     `toml:"auth"`
	Logging  LoggingConfig  `toml:"logging"`
}

type ServerConfig struct {
	Listen      string `toml:"listen"`
	HostKeyPath string `toml:"host_key"`
}

type DatabaseConfig struct {
	Path string `toml:"path"`
}

type TOTPConfig struct {
	Issuer    string `toml:"issuer"`
	Algorithm string `toml:"algorithm"`
	Digits    int    `toml:"digits"`
	PeriodSec int    `toml:"period_seconds"`

	// Skew is a pointer so an omitted field (default window) and an
	// explicit 0 (no drift accepted) stay distinguishable.
	Skew *int `toml:"skew"`
}

type AuthConfig struct {
	EnrollSecret  string `toml:"enroll_secret"`
	OnUnknownUser string `toml:"on_unknown_user"`
	MaxAttempts   int    `toml:"max_attempts"`
}

type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Load reads config from the given path, expanding environment variables.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables (${VAR} syntax)
	expanded := expandEnvVars(string(data))

	var cfg Config
	if _, err := toml.Decode(expanded, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR} with environment variable values.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)
	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := strings.TrimSuffix(strings.TrimPrefix(match, "${"), "}")
		return os.Getenv(varName)
	})
}

// Validate checks that required config fields are present and valid.
func (c *Config) Validate() error {
	if c.Server.Listen == "" {
		return fmt.Errorf("server.listen is required")
	}
	if c.Server.HostKeyPath == "" {
		return fmt.Errorf("server.host_key is required")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.TOTP.Algorithm != "" && !otp.Algorithm(c.TOTP.Algorithm).Valid() {
		return fmt.Errorf("totp.algorithm %q is not supported (SHA1, SHA256, SHA512)", c.TOTP.Algorithm)
	}
	if c.TOTP.Skew != nil && *c.TOTP.Skew < 0 {
		return fmt.Errorf("totp.skew must not be negative, got %d", *c.TOTP.Skew)
	}
	switch c.Auth.OnUnknownUser {
	case "", "deny", "ignore":
	default:
		return fmt.Errorf("auth.on_unknown_user must be \"deny\" or \"ignore\", got %q", c.Auth.OnUnknownUser)
	}
	return nil
}

// OTPParams returns the configured code parameters with defaults
// filled. An omitted skew gets the package default window; an explicit
// 0 disables drift.
func (c *Config) OTPParams() otp.Params {
	skew := 0
	if c.TOTP.Skew != nil {
		skew = *c.TOTP.Skew
		if skew == 0 {
			skew = otp.SkewNone
		}
	}
	return otp.Params{
		Algorithm: otp.Algorithm(c.TOTP.Algorithm),
		Digits:    c.TOTP.Digits,
		Period:    time.Duration(c.TOTP.PeriodSec) * time.Second,
		Skew:      skew,
	}.WithDefaults()
}
