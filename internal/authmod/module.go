// ABOUTME: Module service wiring the bridge, store, OTP engine, and replay guard together
// ABOUTME: Authenticate prompts for a code, validates with replay protection, and audits the outcome

package authmod

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/parallaxsec/otpgate/internal/conv"
	"github.com/parallaxsec/otpgate/internal/otp"
	"github.com/parallaxsec/otpgate/internal/replay"
	"github.com/parallaxsec/otpgate/internal/store"
)

// Prompt texts shown through the conversation.
const (
	promptCode      = "Verification code: "
	msgInvalidCode  = "Invalid verification code"
	msgCodeReplayed = "Verification code already used"
)

// Enrollments defines what the module needs from enrollment storage.
type Enrollments interface {
	CreateEnrollment(ctx context.Context, e *store.Enrollment) error
	GetEnrollmentByUser(ctx context.Context, user string) (*store.Enrollment, error)
	UpdateEnrollment(ctx context.Context, e *store.Enrollment) error
	MarkUsedStep(ctx context.Context, user string, step uint64) error
	ConsumeRecoveryCode(ctx context.Context, user string, code []byte) error
}

// Audit defines what the module needs from the audit log.
type Audit interface {
	AppendAuditLog(ctx context.Context, e *store.AuditEntry) error
}

// ReplayGuard defines the in-memory reuse check.
type ReplayGuard interface {
	CheckAndMark(key string) bool
}

// TokenVerifier validates self-service enrollment tokens.
type TokenVerifier interface {
	Verify(tokenString string) (user string, err error)
}

// Policy holds the module's tunable behavior.
type Policy struct {
	// Issuer names this installation in provisioning URIs.
	Issuer string

	// Params are the code parameters for new enrollments.
	Params otp.Params

	// OnUnenrolled is returned when the user has no usable enrollment:
	// KindIgnore passes the decision to the next module in the host's
	// stack, KindUserUnknown fails closed. Zero value means UserUnknown.
	OnUnenrolled conv.Kind

	// MaxAttempts bounds code prompts per call. Zero means 3.
	MaxAttempts int

	// Now is the clock, overridable in tests.
	Now func() time.Time
}

func (p Policy) withDefaults() Policy {
	p.Params = p.Params.WithDefaults()
	if p.OnUnenrolled == 0 {
		p.OnUnenrolled = conv.KindUserUnknown
	}
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 3
	}
	if p.Now == nil {
		p.Now = time.Now
	}
	return p
}

// Module is the authentication module built on the conversation bridge.
type Module struct {
	enrollments Enrollments
	audit       Audit
	guard       ReplayGuard
	tokens      TokenVerifier // nil disables self-service enrollment
	policy      Policy
	logger      *slog.Logger
}

// New creates a Module. tokens may be nil, in which case SetCredentials
// accepts admin actors only.
func New(enrollments Enrollments, audit Audit, guard ReplayGuard, tokens TokenVerifier, policy Policy, logger *slog.Logger) *Module {
	if logger == nil {
		logger = slog.Default()
	}
	return &Module{
		enrollments: enrollments,
		audit:       audit,
		guard:       guard,
		tokens:      tokens,
		policy:      policy.withDefaults(),
		logger:      logger.With("component", "authmod"),
	}
}

// Authenticate runs the verification conversation for the channel's
// user and returns the outcome as a bridge status.
func (m *Module) Authenticate(ctx context.Context, ch conv.Channel) conv.Status {
	if ch == nil {
		return conv.Local(conv.KindConvUnavailable)
	}
	user := ch.User()
	if user == "" {
		return conv.Local(conv.KindUserUnknown)
	}

	e, err := m.enrollments.GetEnrollmentByUser(ctx, user)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			m.logger.Debug("no enrollment", "user", user)
			return conv.Local(m.policy.OnUnenrolled)
		}
		m.logger.Error("enrollment lookup failed", "user", user, "error", err)
		return conv.Local(conv.KindAuthError)
	}
	if e.Status != store.EnrollmentActive {
		m.logger.Debug("enrollment not active", "user", user, "status", e.Status)
		return conv.Local(m.policy.OnUnenrolled)
	}

	for attempt := 1; attempt <= m.policy.MaxAttempts; attempt++ {
		secret, st := conv.Collect(ch, conv.StylePromptEchoOn, promptCode)
		if !st.Success() {
			return st
		}

		ok := m.verifyCode(ctx, e, secret)
		wipe(secret)
		if ok {
			m.auditLog(store.AuditAuthOK, user, nil)
			return conv.Local(conv.KindSuccess)
		}

		if attempt < m.policy.MaxAttempts {
			conv.ShowError(ch, msgInvalidCode+", try again")
		}
	}

	conv.ShowError(ch, msgInvalidCode)
	m.auditLog(store.AuditAuthFail, user, map[string]any{"attempts": m.policy.MaxAttempts})
	return conv.Local(conv.KindAuthError)
}

// verifyCode checks one entered code against the enrollment: TOTP with
// replay protection first, recovery codes as fallback. The code stays
// in the caller's buffer the whole way down so that wiping the buffer
// wipes every copy; the caller owns the wipe.
func (m *Module) verifyCode(ctx context.Context, e *store.Enrollment, secret []byte) bool {
	code := bytes.TrimSpace(secret)
	if len(code) == 0 {
		return false
	}
	user := e.User

	step, ok, err := otp.ValidateAt(e.Secret, code, m.policy.Now(), e.Params())
	if err != nil && !errors.Is(err, otp.ErrCodeLength) {
		m.logger.Error("code validation failed", "user", user, "error", err)
		return false
	}
	if ok {
		if m.guard != nil && m.guard.CheckAndMark(replay.Key(user, step)) {
			m.logger.Warn("replayed code rejected", "user", user, "step", step)
			return false
		}
		if err := m.enrollments.MarkUsedStep(ctx, user, step); err != nil {
			if errors.Is(err, store.ErrStepReplayed) {
				m.logger.Warn("replayed step rejected by store", "user", user, "step", step)
			} else {
				m.logger.Error("marking used step failed", "user", user, "error", err)
			}
			return false
		}
		return true
	}

	// Not a current TOTP code; maybe a recovery code.
	if err := m.enrollments.ConsumeRecoveryCode(ctx, user, code); err == nil {
		m.auditLog(store.AuditRecoveryUsed, user, nil)
		return true
	}
	return false
}

// auditLog appends an audit entry with a separate timeout context so a
// cancelled host request cannot skip the record.
func (m *Module) auditLog(action store.AuditAction, user string, detail map[string]any) {
	saveCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := m.audit.AppendAuditLog(saveCtx, &store.AuditEntry{
		Actor:  "module",
		Action: action,
		User:   user,
		Detail: detail,
	})
	if err != nil {
		m.logger.Error("failed to append audit entry", "action", action, "user", user, "error", err)
	}
}

// wipe zeroes a code buffer once it has served its purpose.
func wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
