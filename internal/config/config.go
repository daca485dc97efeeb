// ABOUTME: Configuration loading and parsing for otpgate
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/parallaxsec/otpgate/internal/conv"
	"github.com/parallaxsec/otpgate/internal/otp"
)

// Config represents the complete otpgate configuration
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	TOTP     TOTPConfig     `yaml:"totp"`
	Auth     AuthConfig     `yaml:"auth"`
	Replay   ReplayConfig   `yaml:"replay"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// TOTPConfig holds the code parameters applied to new enrollments
type TOTPConfig struct {
	Issuer    string `yaml:"issuer"`
	Algorithm string `yaml:"algorithm"`
	Digits    int    `yaml:"digits"`

	// Skew is a pointer so an omitted field (default window) and an
	// explicit 0 (no drift accepted) stay distinguishable.
	Skew *int `yaml:"skew"`

	Period time.Duration `yaml:"-"`

	// Raw string value for YAML unmarshaling
	PeriodRaw string `yaml:"period"`
}

// AuthConfig holds authentication policy configuration
type AuthConfig struct {
	// EnrollSecret signs self-service enrollment tokens. Empty
	// disables token-based enrollment.
	EnrollSecret string `yaml:"enroll_secret"`

	// OnUnknownUser decides the outcome for users without an active
	// enrollment: "deny" (default) or "ignore" to defer to the rest of
	// the host's stack.
	OnUnknownUser string `yaml:"on_unknown_user"`

	MaxAttempts int `yaml:"max_attempts"`

	TokenTTL time.Duration `yaml:"-"`

	// Raw string value for YAML unmarshaling
	TokenTTLRaw string `yaml:"token_ttl"`
}

// ReplayConfig holds the in-memory replay guard configuration
type ReplayConfig struct {
	MaxEntries int `yaml:"max_entries"`

	TTL time.Duration `yaml:"-"`

	// Raw string value for YAML unmarshaling
	TTLRaw string `yaml:"ttl"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw YAML content
	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Parse duration fields
	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	// Match ${VAR_NAME} pattern
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		// Extract variable name from ${VAR_NAME}
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	if c.TOTP.Algorithm != "" && !otp.Algorithm(c.TOTP.Algorithm).Valid() {
		return fmt.Errorf("totp.algorithm %q is not supported (SHA1, SHA256, SHA512)", c.TOTP.Algorithm)
	}
	if c.TOTP.Digits != 0 && (c.TOTP.Digits < 6 || c.TOTP.Digits > 8) {
		return fmt.Errorf("totp.digits must be between 6 and 8, got %d", c.TOTP.Digits)
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
// filled in. An omitted skew gets the package default window; an
// explicit 0 disables drift.
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
		Period:    c.TOTP.Period,
		Skew:      skew,
	}.WithDefaults()
}

// OnUnenrolledKind maps the configured unknown-user policy to a bridge
// status kind.
func (c *Config) OnUnenrolledKind() conv.Kind {
	if c.Auth.OnUnknownUser == "ignore" {
		return conv.KindIgnore
	}
	return conv.KindUserUnknown
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.TOTP.PeriodRaw != "" {
		cfg.TOTP.Period, err = time.ParseDuration(cfg.TOTP.PeriodRaw)
		if err != nil {
			return fmt.Errorf("parsing totp.period %q: %w", cfg.TOTP.PeriodRaw, err)
		}
	}

	if cfg.Auth.TokenTTLRaw != "" {
		cfg.Auth.TokenTTL, err = time.ParseDuration(cfg.Auth.TokenTTLRaw)
		if err != nil {
			return fmt.Errorf("parsing auth.token_ttl %q: %w", cfg.Auth.TokenTTLRaw, err)
		}
	}

	if cfg.Replay.TTLRaw != "" {
		cfg.Replay.TTL, err = time.ParseDuration(cfg.Replay.TTLRaw)
		if err != nil {
			return fmt.Errorf("parsing replay.ttl %q: %w", cfg.Replay.TTLRaw, err)
		}
	}

	return nil
}
