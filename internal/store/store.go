// ABOUTME: Store interfaces and data types for otpgate persistence
// ABOUTME: Defines Enrollment, AuditEntry and the sentinel errors shared by implementations

package store

import (
	"context"
	"errors"
	"time"

	"github.com/parallaxsec/otpgate/internal/otp"
)

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrDuplicateEnrollment is returned when the user already has an enrollment.
var ErrDuplicateEnrollment = errors.New("enrollment already exists")

// ErrStepReplayed is returned when marking a time step at or before the
// last accepted one.
var ErrStepReplayed = errors.New("time step already used")

// ErrNoRecoveryMatch is returned when no unused recovery code matches.
var ErrNoRecoveryMatch = errors.New("no matching recovery code")

// Enrollment lifecycle statuses.
const (
	EnrollmentPending = "pending" // created, confirmation code not yet verified
	EnrollmentActive  = "active"
	EnrollmentRevoked = "revoked"
)

// Enrollment is one user's TOTP registration.
type Enrollment struct {
	ID        string
	User      string
	Secret    string // base32, unpadded
	Algorithm string // SHA1, SHA256, SHA512
	Digits    int
	PeriodSec int
	Skew      int
	LastStep  uint64 // highest time step ever accepted for this user
	Status    string
	CreatedAt time.Time
	UpdatedAt time.Time
	CreatedBy *string // actor that created the enrollment, nil for self-service
}

// Params returns the enrollment's code parameters with defaults filled.
// The stored skew is a resolved window, never "unset": a zero row value
// means no drift is accepted.
func (e *Enrollment) Params() otp.Params {
	skew := e.Skew
	if skew == 0 {
		skew = otp.SkewNone
	}
	return otp.Params{
		Algorithm: otp.Algorithm(e.Algorithm),
		Digits:    e.Digits,
		Period:    time.Duration(e.PeriodSec) * time.Second,
		Skew:      skew,
	}.WithDefaults()
}

// AuditAction identifies an auditable event.
type AuditAction string

const (
	AuditEnroll       AuditAction = "enroll"
	AuditActivate     AuditAction = "activate"
	AuditRevoke       AuditAction = "revoke"
	AuditAuthOK       AuditAction = "auth_ok"
	AuditAuthFail     AuditAction = "auth_fail"
	AuditRecoveryUsed AuditAction = "recovery_used"
	AuditTokenIssued  AuditAction = "token_issued"
)

// ValidAuditActions lists all valid audit actions.
var ValidAuditActions = []AuditAction{
	AuditEnroll,
	AuditActivate,
	AuditRevoke,
	AuditAuthOK,
	AuditAuthFail,
	AuditRecoveryUsed,
	AuditTokenIssued,
}

// AuditEntry records who did what to which user.
type AuditEntry struct {
	ID        string
	Actor     string // "module", "admin:<name>", or a username
	Action    AuditAction
	User      string
	Timestamp time.Time
	Detail    map[string]any
}

// AuditFilter narrows ListAuditLog results.
type AuditFilter struct {
	Since  *time.Time
	Until  *time.Time
	Actor  *string
	Action *AuditAction
	User   *string
	Limit  int // default 100, max 1000
}

// EnrollmentStore defines methods for managing enrollments and their
// recovery codes.
type EnrollmentStore interface {
	CreateEnrollment(ctx context.Context, e *Enrollment) error
	GetEnrollmentByUser(ctx context.Context, user string) (*Enrollment, error)
	UpdateEnrollment(ctx context.Context, e *Enrollment) error
	DeleteEnrollment(ctx context.Context, user string) error
	ListEnrollments(ctx context.Context) ([]*Enrollment, error)

	// MarkUsedStep persists the accepted time step; steps must be
	// strictly increasing per user.
	MarkUsedStep(ctx context.Context, user string, step uint64) error

	// Recovery codes; plaintext never persists, only bcrypt hashes.
	// ConsumeRecoveryCode takes the code as bytes so the caller can
	// wipe its buffer afterwards.
	AddRecoveryCodes(ctx context.Context, enrollmentID string, hashes []string) error
	ConsumeRecoveryCode(ctx context.Context, user string, code []byte) error
	CountUnusedRecoveryCodes(ctx context.Context, user string) (int, error)
}

// AuditStore defines methods for the audit log.
type AuditStore interface {
	AppendAuditLog(ctx context.Context, e *AuditEntry) error
	ListAuditLog(ctx context.Context, f AuditFilter) ([]*AuditEntry, error)
}
