// ABOUTME: SetCredentials entry point: generate, provision, and confirm a new enrollment
// ABOUTME: Activation requires the user to prove possession with a correct confirmation code

package authmod

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/parallaxsec/otpgate/internal/conv"
	"github.com/parallaxsec/otpgate/internal/otp"
	"github.com/parallaxsec/otpgate/internal/store"
)

const (
	msgProvisionIntro = "Add this account to your authenticator app:"
	promptConfirm     = "Enter a code from your app to confirm: "
	msgNotAuthorized  = "Not authorized to set up credentials"
)

// SetCredentialsOptions authorizes and shapes a SetCredentials call.
type SetCredentialsOptions struct {
	// Actor is the administrative identity driving the call, empty for
	// self-service.
	Actor string

	// Token is a self-service enrollment token. Its subject must match
	// the channel user.
	Token string
}

// SetCredentials creates or replaces the channel user's enrollment.
// The new enrollment stays pending until the user confirms a code
// generated from the freshly provisioned secret; pending enrollments
// never authenticate.
func (m *Module) SetCredentials(ctx context.Context, ch conv.Channel, opts SetCredentialsOptions) conv.Status {
	if ch == nil {
		return conv.Local(conv.KindConvUnavailable)
	}
	user := ch.User()
	if user == "" {
		return conv.Local(conv.KindUserUnknown)
	}

	actor, ok := m.authorizeSetCredentials(user, opts)
	if !ok {
		conv.ShowError(ch, msgNotAuthorized)
		return conv.Local(conv.KindAuthError)
	}

	secret, err := otp.GenerateSecret(0)
	if err != nil {
		m.logger.Error("secret generation failed", "user", user, "error", err)
		return conv.Local(conv.KindAuthError)
	}

	e, err := m.upsertPending(ctx, user, secret, actor)
	if err != nil {
		m.logger.Error("storing enrollment failed", "user", user, "error", err)
		return conv.Local(conv.KindAuthError)
	}
	m.auditLog(store.AuditEnroll, user, map[string]any{"actor": actor})

	uri := otp.ProvisioningURI(m.policy.Issuer, user, secret, m.policy.Params)
	if st := conv.ShowInfo(ch, msgProvisionIntro+"\n"+uri); !st.Success() {
		return st
	}

	for attempt := 1; attempt <= m.policy.MaxAttempts; attempt++ {
		entered, st := conv.Collect(ch, conv.StylePromptEchoOn, promptConfirm)
		if !st.Success() {
			return st
		}

		confirmed := m.confirmCode(e, entered)
		wipe(entered)
		if confirmed {
			e.Status = store.EnrollmentActive
			if err := m.enrollments.UpdateEnrollment(ctx, e); err != nil {
				m.logger.Error("activating enrollment failed", "user", user, "error", err)
				return conv.Local(conv.KindAuthError)
			}
			m.auditLog(store.AuditActivate, user, nil)
			conv.ShowInfo(ch, "Two-factor authentication enabled")
			return conv.Local(conv.KindSuccess)
		}

		if attempt < m.policy.MaxAttempts {
			conv.ShowError(ch, msgInvalidCode+", try again")
		}
	}

	// Confirmation failed; the enrollment stays pending and the user
	// must rerun setup.
	conv.ShowError(ch, "Could not confirm the new credentials")
	return conv.Local(conv.KindAuthError)
}

// authorizeSetCredentials resolves the acting identity. Admin actors
// are trusted as vouched for by the caller; tokens must verify and
// match the channel user.
func (m *Module) authorizeSetCredentials(user string, opts SetCredentialsOptions) (actor string, ok bool) {
	if opts.Actor != "" {
		return opts.Actor, true
	}
	if opts.Token != "" && m.tokens != nil {
		subject, err := m.tokens.Verify(opts.Token)
		if err != nil {
			m.logger.Warn("enrollment token rejected", "user", user, "error", err)
			return "", false
		}
		if subject != user {
			m.logger.Warn("enrollment token subject mismatch", "user", user, "subject", subject)
			return "", false
		}
		return user, true
	}
	return "", false
}

// upsertPending creates a pending enrollment with the new secret, or
// resets an existing one to pending with the new secret.
func (m *Module) upsertPending(ctx context.Context, user, secret, actor string) (*store.Enrollment, error) {
	p := m.policy.Params
	e := &store.Enrollment{
		User:      user,
		Secret:    secret,
		Algorithm: string(p.Algorithm),
		Digits:    p.Digits,
		PeriodSec: int(p.Period / time.Second),
		Skew:      p.Skew,
		Status:    store.EnrollmentPending,
		CreatedBy: &actor,
	}

	err := m.enrollments.CreateEnrollment(ctx, e)
	if err == nil {
		return e, nil
	}
	if !errors.Is(err, store.ErrDuplicateEnrollment) {
		return nil, err
	}

	existing, err := m.enrollments.GetEnrollmentByUser(ctx, user)
	if err != nil {
		return nil, fmt.Errorf("loading existing enrollment: %w", err)
	}
	existing.Secret = secret
	existing.Algorithm = e.Algorithm
	existing.Digits = e.Digits
	existing.PeriodSec = e.PeriodSec
	existing.Skew = e.Skew
	existing.Status = store.EnrollmentPending
	if err := m.enrollments.UpdateEnrollment(ctx, existing); err != nil {
		return nil, fmt.Errorf("resetting existing enrollment: %w", err)
	}
	return existing, nil
}

// confirmCode checks an entered code against the pending enrollment.
// Replay tracking is not engaged here: the enrollment is not yet
// active and the matched step is recorded on first real use.
func (m *Module) confirmCode(e *store.Enrollment, entered []byte) bool {
	code := bytes.TrimSpace(entered)
	if len(code) == 0 {
		return false
	}
	_, ok, err := otp.ValidateAt(e.Secret, code, m.policy.Now(), e.Params())
	if err != nil && !errors.Is(err, otp.ErrCodeLength) {
		m.logger.Error("confirmation validation failed", "user", e.User, "error", err)
		return false
	}
	return ok
}
