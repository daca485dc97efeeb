// ABOUTME: Secret generation and otpauth:// provisioning URI construction
// ABOUTME: Secrets come from crypto/rand and are base32-encoded without padding

package otp

import (
	"crypto/rand"
	"encoding/base32"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// DefaultSecretLen is the raw secret length in bytes. 20 bytes matches
// the SHA-1 block recommendation in RFC 4226 §4.
const DefaultSecretLen = 20

// GenerateSecret returns a new random secret of n bytes, base32-encoded
// without padding. n <= 0 uses DefaultSecretLen.
func GenerateSecret(n int) (string, error) {
	if n <= 0 {
		n = DefaultSecretLen
	}
	raw := make([]byte, n)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("generating secret: %w", err)
	}
	return base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(raw), nil
}

// ProvisioningURI builds the otpauth:// URI that authenticator apps
// import, usually rendered as a QR code by the caller.
func ProvisioningURI(issuer, account, secret string, p Params) string {
	p = p.WithDefaults()

	label := url.PathEscape(account)
	if issuer != "" {
		label = url.PathEscape(issuer) + ":" + label
	}

	q := url.Values{}
	q.Set("secret", strings.ToUpper(secret))
	if issuer != "" {
		q.Set("issuer", issuer)
	}
	q.Set("algorithm", string(p.Algorithm))
	q.Set("digits", fmt.Sprintf("%d", p.Digits))
	q.Set("period", fmt.Sprintf("%d", int(p.Period/time.Second)))

	return "otpauth://totp/" + label + "?" + q.Encode()
}
