// ABOUTME: Mock store implementation for testing
// ABOUTME: Allows consumer tests to run without SQLite

package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// mockRecoveryCode mirrors one recovery_codes row.
type mockRecoveryCode struct {
	id           string
	enrollmentID string
	hash         string
	used         bool
}

// MockStore is an in-memory EnrollmentStore and AuditStore for testing.
type MockStore struct {
	mu          sync.RWMutex
	enrollments map[string]*Enrollment // keyed by username
	recovery    []*mockRecoveryCode
	audit       []*AuditEntry

	// Error injection: when set, the matching method returns the error.
	CreateErr error
	GetErr    error
	MarkErr   error
	AuditErr  error
}

// NewMockStore creates a new MockStore.
func NewMockStore() *MockStore {
	return &MockStore{
		enrollments: make(map[string]*Enrollment),
	}
}

// CreateEnrollment stores a new enrollment.
func (m *MockStore) CreateEnrollment(ctx context.Context, e *Enrollment) error {
	if m.CreateErr != nil {
		return m.CreateErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.enrollments[e.User]; ok {
		return ErrDuplicateEnrollment
	}
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.Status == "" {
		e.Status = EnrollmentPending
	}
	now := time.Now().UTC()
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	e.UpdatedAt = now

	// Copy to avoid external modification
	c := *e
	m.enrollments[e.User] = &c
	return nil
}

// GetEnrollmentByUser retrieves an enrollment by username.
func (m *MockStore) GetEnrollmentByUser(ctx context.Context, user string) (*Enrollment, error) {
	if m.GetErr != nil {
		return nil, m.GetErr
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.enrollments[user]
	if !ok {
		return nil, ErrNotFound
	}
	result := *e
	return &result, nil
}

// UpdateEnrollment updates a stored enrollment.
func (m *MockStore) UpdateEnrollment(ctx context.Context, e *Enrollment) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.enrollments[e.User]
	if !ok || stored.ID != e.ID {
		return ErrNotFound
	}
	c := *e
	c.UpdatedAt = time.Now().UTC()
	c.LastStep = stored.LastStep
	m.enrollments[e.User] = &c
	return nil
}

// DeleteEnrollment removes an enrollment and its recovery codes.
func (m *MockStore) DeleteEnrollment(ctx context.Context, user string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.enrollments[user]
	if !ok {
		return ErrNotFound
	}
	delete(m.enrollments, user)

	kept := m.recovery[:0]
	for _, rc := range m.recovery {
		if rc.enrollmentID != e.ID {
			kept = append(kept, rc)
		}
	}
	m.recovery = kept
	return nil
}

// ListEnrollments returns all enrollments ordered by username.
func (m *MockStore) ListEnrollments(ctx context.Context) ([]*Enrollment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*Enrollment
	for _, e := range m.enrollments {
		c := *e
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].User < out[j].User })
	return out, nil
}

// MarkUsedStep records the accepted step, enforcing monotonicity.
func (m *MockStore) MarkUsedStep(ctx context.Context, user string, step uint64) error {
	if m.MarkErr != nil {
		return m.MarkErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.enrollments[user]
	if !ok {
		return ErrNotFound
	}
	if step <= e.LastStep {
		return ErrStepReplayed
	}
	e.LastStep = step
	e.UpdatedAt = time.Now().UTC()
	return nil
}

// AddRecoveryCodes stores recovery code hashes.
func (m *MockStore) AddRecoveryCodes(ctx context.Context, enrollmentID string, hashes []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, h := range hashes {
		m.recovery = append(m.recovery, &mockRecoveryCode{
			id:           uuid.New().String(),
			enrollmentID: enrollmentID,
			hash:         h,
		})
	}
	return nil
}

// ConsumeRecoveryCode verifies and single-uses a recovery code.
func (m *MockStore) ConsumeRecoveryCode(ctx context.Context, user string, code []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.enrollments[user]
	if !ok {
		return ErrNotFound
	}
	for _, rc := range m.recovery {
		if rc.enrollmentID != e.ID || rc.used {
			continue
		}
		if bcrypt.CompareHashAndPassword([]byte(rc.hash), code) == nil {
			rc.used = true
			return nil
		}
	}
	return ErrNoRecoveryMatch
}

// CountUnusedRecoveryCodes counts remaining recovery codes.
func (m *MockStore) CountUnusedRecoveryCodes(ctx context.Context, user string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.enrollments[user]
	if !ok {
		return 0, ErrNotFound
	}
	count := 0
	for _, rc := range m.recovery {
		if rc.enrollmentID == e.ID && !rc.used {
			count++
		}
	}
	return count, nil
}

// AppendAuditLog records an audit entry.
func (m *MockStore) AppendAuditLog(ctx context.Context, e *AuditEntry) error {
	if m.AuditErr != nil {
		return m.AuditErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	c := *e
	m.audit = append(m.audit, &c)
	return nil
}

// ListAuditLog returns recorded entries newest first, ignoring filters
// beyond the user field, which is all consumer tests need.
func (m *MockStore) ListAuditLog(ctx context.Context, f AuditFilter) ([]*AuditEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*AuditEntry
	for i := len(m.audit) - 1; i >= 0; i-- {
		e := m.audit[i]
		if f.User != nil && e.User != *f.User {
			continue
		}
		c := *e
		out = append(out, &c)
	}
	return out, nil
}

// AuditEntries returns a snapshot of all recorded entries in order.
func (m *MockStore) AuditEntries() []*AuditEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*AuditEntry, 0, len(m.audit))
	for _, e := range m.audit {
		c := *e
		out = append(out, &c)
	}
	return out
}

// Ensure MockStore implements the store interfaces.
var (
	_ EnrollmentStore = (*MockStore)(nil)
	_ AuditStore      = (*MockStore)(nil)
)
