// ABOUTME: Package documentation for the config package
// ABOUTME: Describes the YAML layout, env expansion, and validation rules

// Package config loads and validates the otpgate YAML configuration.
//
// A configuration file looks like:
//
//	database:
//	  path: /var/lib/otpgate/otpgate.db
//
//	totp:
//	  issuer: example.org
//	  algorithm: SHA1
//	  digits: 6
//	  period: 30s
//	  skew: 1
//
//	auth:
//	  enroll_secret: ${OTPGATE_ENROLL_SECRET}
//	  token_ttl: 24h
//	  on_unknown_user: deny
//	  max_attempts: 3
//
//	replay:
//	  ttl: 5m
//	  max_entries: 10000
//
//	logging:
//	  level: info
//	  format: json
//
// Values in the form ${VAR_NAME} are expanded from the environment
// before parsing; unset variables expand to the empty string. Duration
// fields accept Go duration strings ("30s", "24h").
//
// Every section other than database is optional: Load fills missing
// TOTP parameters with the defaults authenticator apps assume, and an
// empty auth.enroll_secret simply disables self-service enrollment
// tokens.
package config
