// Package replay prevents one-time codes from being accepted more than
// once within their validity window, using a TTL-bounded cache keyed by
// user and matched time step.
package replay
