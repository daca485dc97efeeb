// ABOUTME: Enrollment token issuing and verification for self-service credential setup
// ABOUTME: Uses HS256 signing with a configurable secret and a fixed purpose claim

// Package enroll issues and verifies the short-lived tokens that let a
// user run credential setup for themselves without an admin present.
package enroll

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token errors
var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
	ErrMissingClaim = errors.New("missing required claim")
	ErrWrongPurpose = errors.New("token not issued for enrollment")
)

// purposeClaim pins tokens to enrollment so a token minted for any
// future purpose can't be replayed here.
const purposeClaim = "enroll"

// TokenVerifier defines the interface for enrollment token verification.
type TokenVerifier interface {
	Verify(tokenString string) (user string, err error)
}

// Issuer creates and verifies HS256-signed enrollment tokens.
type Issuer struct {
	secret []byte
}

// NewIssuer creates an Issuer with the given signing secret.
func NewIssuer(secret []byte) *Issuer {
	return &Issuer{secret: secret}
}

// Issue creates a token authorizing user to enroll within expiresIn.
func (i *Issuer) Issue(user string, expiresIn time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":     user,
		"purpose": purposeClaim,
		"iat":     now.Unix(),
		"exp":     now.Add(expiresIn).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(i.secret)
}

// Verify validates the token and extracts the user from the "sub"
// claim. The purpose claim must name enrollment.
func (i *Issuer) Verify(tokenString string) (user string, err error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		// Validate the signing method is HS256
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return i.secret, nil
	})

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrExpiredToken
		}
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if !token.Valid {
		return "", ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", ErrInvalidToken
	}

	if purpose, _ := claims["purpose"].(string); purpose != purposeClaim {
		return "", ErrWrongPurpose
	}

	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return "", fmt.Errorf("%w: sub", ErrMissingClaim)
	}

	return sub, nil
}

var _ TokenVerifier = (*Issuer)(nil)
