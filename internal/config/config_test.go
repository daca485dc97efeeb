// ABOUTME: Tests for configuration loading and parsing
// ABOUTME: Covers YAML loading, env var expansion, duration parsing, and validation

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/parallaxsec/otpgate/internal/conv"
	"github.com/parallaxsec/otpgate/internal/otp"
)

func intPtr(n int) *int { return &n }

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return configPath
}

func TestLoad_ValidConfig(t *testing.T) {
	configPath := writeConfig(t, `
database:
  path: "./test.db"

totp:
  issuer: "example.org"
  algorithm: "SHA256"
  digits: 8
  period: "60s"
  skew: 2

auth:
  enroll_secret: "test-enroll-secret"
  token_ttl: "24h"
  on_unknown_user: "ignore"
  max_attempts: 5

replay:
  ttl: "5m"
  max_entries: 10000

logging:
  level: "debug"
  format: "json"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Database.Path != "./test.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "./test.db")
	}

	if cfg.TOTP.Issuer != "example.org" {
		t.Errorf("TOTP.Issuer = %q, want %q", cfg.TOTP.Issuer, "example.org")
	}
	if cfg.TOTP.Algorithm != "SHA256" {
		t.Errorf("TOTP.Algorithm = %q, want %q", cfg.TOTP.Algorithm, "SHA256")
	}
	if cfg.TOTP.Digits != 8 {
		t.Errorf("TOTP.Digits = %d, want 8", cfg.TOTP.Digits)
	}
	if cfg.TOTP.Period != 60*time.Second {
		t.Errorf("TOTP.Period = %v, want 60s", cfg.TOTP.Period)
	}
	if cfg.TOTP.Skew == nil || *cfg.TOTP.Skew != 2 {
		t.Errorf("TOTP.Skew = %v, want 2", cfg.TOTP.Skew)
	}
	if got := cfg.OTPParams().Skew; got != 2 {
		t.Errorf("OTPParams().Skew = %d, want 2", got)
	}

	if cfg.Auth.EnrollSecret != "test-enroll-secret" {
		t.Errorf("Auth.EnrollSecret = %q, want %q", cfg.Auth.EnrollSecret, "test-enroll-secret")
	}
	if cfg.Auth.TokenTTL != 24*time.Hour {
		t.Errorf("Auth.TokenTTL = %v, want 24h", cfg.Auth.TokenTTL)
	}
	if cfg.Auth.OnUnknownUser != "ignore" {
		t.Errorf("Auth.OnUnknownUser = %q, want %q", cfg.Auth.OnUnknownUser, "ignore")
	}
	if cfg.Auth.MaxAttempts != 5 {
		t.Errorf("Auth.MaxAttempts = %d, want 5", cfg.Auth.MaxAttempts)
	}

	if cfg.Replay.TTL != 5*time.Minute {
		t.Errorf("Replay.TTL = %v, want 5m", cfg.Replay.TTL)
	}
	if cfg.Replay.MaxEntries != 10000 {
		t.Errorf("Replay.MaxEntries = %d, want 10000", cfg.Replay.MaxEntries)
	}

	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want %q", cfg.Logging.Level, "debug")
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("Logging.Format = %q, want %q", cfg.Logging.Format, "json")
	}
}

func TestLoad_MinimalConfig(t *testing.T) {
	configPath := writeConfig(t, `
database:
  path: "/var/lib/otpgate/otpgate.db"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	// Everything but the database path is optional and defaults apply
	// through OTPParams.
	p := cfg.OTPParams()
	if p.Algorithm != otp.AlgSHA1 {
		t.Errorf("OTPParams().Algorithm = %q, want %q", p.Algorithm, otp.AlgSHA1)
	}
	if p.Digits != otp.DefaultDigits {
		t.Errorf("OTPParams().Digits = %d, want %d", p.Digits, otp.DefaultDigits)
	}
	if p.Period != otp.DefaultPeriod {
		t.Errorf("OTPParams().Period = %v, want %v", p.Period, otp.DefaultPeriod)
	}
	if p.Skew != otp.DefaultSkew {
		t.Errorf("OTPParams().Skew = %d, want %d", p.Skew, otp.DefaultSkew)
	}
}

func TestLoad_SkewOmittedVsZero(t *testing.T) {
	// Omitting totp.skew yields the default window.
	cfg, err := Load(writeConfig(t, `
database:
  path: "/tmp/test.db"

totp:
  digits: 6
`))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got := cfg.OTPParams().Skew; got != otp.DefaultSkew {
		t.Errorf("omitted skew: OTPParams().Skew = %d, want %d", got, otp.DefaultSkew)
	}

	// An explicit 0 disables drift instead of falling back to the
	// default.
	cfg, err = Load(writeConfig(t, `
database:
  path: "/tmp/test.db"

totp:
  skew: 0
`))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got := cfg.OTPParams().Skew; got != 0 {
		t.Errorf("explicit zero skew: OTPParams().Skew = %d, want 0", got)
	}
}

func TestLoad_EnvVarExpansion(t *testing.T) {
	t.Setenv("OTPGATE_TEST_SECRET", "secret-from-env")
	t.Setenv("OTPGATE_TEST_DB", "/tmp/env.db")

	configPath := writeConfig(t, `
database:
  path: "${OTPGATE_TEST_DB}"

auth:
  enroll_secret: "${OTPGATE_TEST_SECRET}"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Database.Path != "/tmp/env.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/tmp/env.db")
	}
	if cfg.Auth.EnrollSecret != "secret-from-env" {
		t.Errorf("Auth.EnrollSecret = %q, want %q", cfg.Auth.EnrollSecret, "secret-from-env")
	}
}

func TestLoad_UnsetEnvVarExpandsEmpty(t *testing.T) {
	os.Unsetenv("OTPGATE_DEFINITELY_UNSET")

	configPath := writeConfig(t, `
database:
  path: "/tmp/test.db"

auth:
  enroll_secret: "${OTPGATE_DEFINITELY_UNSET}"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Auth.EnrollSecret != "" {
		t.Errorf("Auth.EnrollSecret = %q, want empty", cfg.Auth.EnrollSecret)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	if err == nil {
		t.Fatal("Load() expected error for missing file")
	}
	if !strings.Contains(err.Error(), "reading config file") {
		t.Errorf("error = %v, want reading config file error", err)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	configPath := writeConfig(t, "database:\n  path: [unclosed")

	_, err := Load(configPath)
	if err == nil {
		t.Fatal("Load() expected error for invalid YAML")
	}
	if !strings.Contains(err.Error(), "parsing config file") {
		t.Errorf("error = %v, want parsing config file error", err)
	}
}

func TestLoad_InvalidDuration(t *testing.T) {
	configPath := writeConfig(t, `
database:
  path: "/tmp/test.db"

totp:
  period: "not-a-duration"
`)

	_, err := Load(configPath)
	if err == nil {
		t.Fatal("Load() expected error for invalid duration")
	}
	if !strings.Contains(err.Error(), "totp.period") {
		t.Errorf("error = %v, want totp.period parse error", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{
			name:    "missing database path",
			cfg:     Config{},
			wantErr: "database.path is required",
		},
		{
			name: "unsupported algorithm",
			cfg: Config{
				Database: DatabaseConfig{Path: "/tmp/t.db"},
				TOTP:     TOTPConfig{Algorithm: "MD5"},
			},
			wantErr: "totp.algorithm",
		},
		{
			name: "digits out of range",
			cfg: Config{
				Database: DatabaseConfig{Path: "/tmp/t.db"},
				TOTP:     TOTPConfig{Digits: 4},
			},
			wantErr: "totp.digits",
		},
		{
			name: "negative skew",
			cfg: Config{
				Database: DatabaseConfig{Path: "/tmp/t.db"},
				TOTP:     TOTPConfig{Skew: intPtr(-1)},
			},
			wantErr: "totp.skew",
		},
		{
			name: "bad unknown-user policy",
			cfg: Config{
				Database: DatabaseConfig{Path: "/tmp/t.db"},
				Auth:     AuthConfig{OnUnknownUser: "shrug"},
			},
			wantErr: "auth.on_unknown_user",
		},
		{
			name: "valid",
			cfg: Config{
				Database: DatabaseConfig{Path: "/tmp/t.db"},
				TOTP:     TOTPConfig{Algorithm: "SHA512", Digits: 6},
				Auth:     AuthConfig{OnUnknownUser: "deny"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() expected error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestOnUnenrolledKind(t *testing.T) {
	cfg := Config{}
	if got := cfg.OnUnenrolledKind(); got != conv.KindUserUnknown {
		t.Errorf("OnUnenrolledKind() = %v, want KindUserUnknown", got)
	}

	cfg.Auth.OnUnknownUser = "ignore"
	if got := cfg.OnUnenrolledKind(); got != conv.KindIgnore {
		t.Errorf("OnUnenrolledKind() = %v, want KindIgnore", got)
	}
}
