// Package store provides persistent storage for otpgate using SQLite.
//
// # Architecture
//
// Two interfaces cover the storage concerns:
//
//   - EnrollmentStore: per-user TOTP enrollments, monotonic last-used
//     step tracking, and single-use recovery codes
//   - AuditStore: append-only log of authentication and admin actions
//
// SQLiteStore implements both in a single struct; MockStore offers an
// in-memory double for consumer tests.
//
// # Data models
//
//   - Enrollment: user, base32 secret, code parameters, lifecycle
//     status (pending, active, revoked), last accepted time step
//   - RecoveryCode: bcrypt hash plus used-at marker; plaintext codes
//     never enter this package except transiently for verification
//   - AuditEntry: actor, action, user, timestamp, free-form detail
//
// # SQLite configuration
//
// WAL journal mode and foreign keys are enabled on open; the schema is
// created if missing and column migrations are applied in place.
//
// # Error handling
//
//   - ErrNotFound: requested entity does not exist
//   - ErrDuplicateEnrollment: user already has an enrollment
//   - ErrStepReplayed: a time step at or before the recorded last step
//   - ErrNoRecoveryMatch: no unused recovery code matched
package store
