// ABOUTME: TOTP generation and validation per RFC 6238 with a configurable skew window
// ABOUTME: Validation is constant-time per candidate and reports the matched time step

package otp

import (
	"crypto/subtle"
	"encoding/base32"
	"strings"
	"time"
)

// Default parameters, matching what authenticator apps assume.
const (
	DefaultDigits = 6
	DefaultPeriod = 30 * time.Second
	DefaultSkew   = 1
)

// SkewNone requests a window of exactly one step: no clock drift is
// accepted. A zero Skew means DefaultSkew, so "no drift" needs its own
// marker.
const SkewNone = -1

// Params holds the tunable TOTP parameters for one enrollment.
type Params struct {
	Algorithm Algorithm
	Digits    int
	Period    time.Duration
	Skew      int // accepted steps of drift each direction; 0 means DefaultSkew, SkewNone means none
}

// WithDefaults fills zero-valued fields with the package defaults.
func (p Params) WithDefaults() Params {
	if p.Algorithm == "" {
		p.Algorithm = AlgSHA1
	}
	if p.Digits == 0 {
		p.Digits = DefaultDigits
	}
	if p.Period <= 0 {
		p.Period = DefaultPeriod
	}
	switch {
	case p.Skew == 0:
		p.Skew = DefaultSkew
	case p.Skew < 0:
		p.Skew = 0
	}
	return p
}

// StepAt returns the TOTP time-step counter for t under p's period.
func (p Params) StepAt(t time.Time) uint64 {
	p = p.WithDefaults()
	return uint64(t.Unix() / int64(p.Period/time.Second))
}

// GenerateAt computes the code for the base32 secret at time t.
func GenerateAt(secret string, t time.Time, p Params) (string, error) {
	p = p.WithDefaults()
	key, err := DecodeSecret(secret)
	if err != nil {
		return "", err
	}
	return HOTP(key, p.StepAt(t), p.Algorithm, p.Digits)
}

// ValidateAt checks code against the secret at time t, accepting up to
// p.Skew steps of drift in each direction. On success it returns the
// time step the code matched so the caller can mark it used; a matched
// step must never be accepted a second time. The code is taken as
// bytes so callers holding sensitive input can wipe their buffer after
// the call; ValidateAt never copies or retains it.
func ValidateAt(secret string, code []byte, t time.Time, p Params) (step uint64, ok bool, err error) {
	p = p.WithDefaults()
	if len(code) != p.Digits {
		return 0, false, ErrCodeLength
	}
	key, err := DecodeSecret(secret)
	if err != nil {
		return 0, false, err
	}

	center := p.StepAt(t)
	for offset := -p.Skew; offset <= p.Skew; offset++ {
		candidate := center + uint64(int64(offset)) // unsigned wrap at step 0 is harmless
		want, err := HOTP(key, candidate, p.Algorithm, p.Digits)
		if err != nil {
			return 0, false, err
		}
		if subtle.ConstantTimeCompare([]byte(want), code) == 1 {
			return candidate, true, nil
		}
	}
	return 0, false, nil
}

// DecodeSecret decodes an unpadded base32 secret. Whitespace and case
// are tolerated since secrets are often transcribed by hand.
func DecodeSecret(secret string) ([]byte, error) {
	normalized := strings.ToUpper(strings.ReplaceAll(secret, " ", ""))
	normalized = strings.TrimRight(normalized, "=")
	key, err := base32.StdEncoding.WithPadding(base32.NoPadding).DecodeString(normalized)
	if err != nil {
		return nil, ErrSecretEncoding
	}
	return key, nil
}
