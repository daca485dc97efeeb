// ABOUTME: Tests for the audit log store
// ABOUTME: Covers append defaults, filters, ordering, and detail round-trip

package store

import (
	"context"
	"testing"
	"time"
)

func TestAppendAuditLog(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	e := &AuditEntry{
		Actor:  "module",
		Action: AuditAuthOK,
		User:   "alice",
		Detail: map[string]any{"step": float64(56666666)},
	}
	if err := store.AppendAuditLog(ctx, e); err != nil {
		t.Fatalf("AppendAuditLog failed: %v", err)
	}
	if e.ID == "" {
		t.Error("expected ID to be set")
	}
	if e.Timestamp.IsZero() {
		t.Error("expected Timestamp to be set")
	}

	entries, err := store.ListAuditLog(ctx, AuditFilter{})
	if err != nil {
		t.Fatalf("ListAuditLog failed: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if entries[0].Detail["step"] != float64(56666666) {
		t.Errorf("detail not round-tripped: %v", entries[0].Detail)
	}
}

func TestListAuditLogFilters(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	base := time.Now().UTC().Add(-time.Hour)
	seed := []struct {
		actor  string
		action AuditAction
		user   string
		at     time.Time
	}{
		{"module", AuditAuthOK, "alice", base},
		{"module", AuditAuthFail, "alice", base.Add(10 * time.Minute)},
		{"admin:root", AuditEnroll, "bob", base.Add(20 * time.Minute)},
		{"module", AuditAuthOK, "bob", base.Add(30 * time.Minute)},
	}
	for _, s := range seed {
		err := store.AppendAuditLog(ctx, &AuditEntry{
			Actor: s.actor, Action: s.action, User: s.user, Timestamp: s.at,
		})
		if err != nil {
			t.Fatalf("AppendAuditLog failed: %v", err)
		}
	}

	// Filter by user.
	alice := "alice"
	entries, err := store.ListAuditLog(ctx, AuditFilter{User: &alice})
	if err != nil {
		t.Fatalf("ListAuditLog failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("user filter: expected 2 entries, got %d", len(entries))
	}

	// Newest first.
	if entries[0].Action != AuditAuthFail {
		t.Errorf("expected newest entry first, got %s", entries[0].Action)
	}

	// Filter by action.
	action := AuditAuthOK
	entries, err = store.ListAuditLog(ctx, AuditFilter{Action: &action})
	if err != nil {
		t.Fatalf("ListAuditLog failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("action filter: expected 2 entries, got %d", len(entries))
	}

	// Filter by time window.
	since := base.Add(15 * time.Minute)
	entries, err = store.ListAuditLog(ctx, AuditFilter{Since: &since})
	if err != nil {
		t.Fatalf("ListAuditLog failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("since filter: expected 2 entries, got %d", len(entries))
	}

	// Limit.
	entries, err = store.ListAuditLog(ctx, AuditFilter{Limit: 1})
	if err != nil {
		t.Fatalf("ListAuditLog failed: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("limit: expected 1 entry, got %d", len(entries))
	}
}
