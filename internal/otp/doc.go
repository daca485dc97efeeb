// Package otp implements HOTP (RFC 4226) and TOTP (RFC 6238) code
// generation and validation.
//
// Secrets are base32-encoded (unpadded, the authenticator-app
// convention). Validation compares candidates in constant time and
// reports the matched time step so callers can enforce that a code is
// accepted at most once.
//
// Defaults follow what authenticator apps expect: SHA-1, 6 digits,
// 30-second period, one step of clock skew in each direction.
package otp
