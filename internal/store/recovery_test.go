// ABOUTME: Tests for recovery code storage and single-use consumption
// ABOUTME: Verifies bcrypt matching, one-shot semantics, and counting

package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func hashCode(t *testing.T, code string) string {
	t.Helper()
	h, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.MinCost)
	require.NoError(t, err)
	return string(h)
}

func setupEnrollmentWithCodes(t *testing.T, store *SQLiteStore, user string, codes []string) *Enrollment {
	t.Helper()
	ctx := context.Background()

	e := &Enrollment{User: user, Secret: "GEZDGNBVGY3TQOJQ", Algorithm: "SHA1", Digits: 6, PeriodSec: 30}
	require.NoError(t, store.CreateEnrollment(ctx, e))

	hashes := make([]string, len(codes))
	for i, c := range codes {
		hashes[i] = hashCode(t, c)
	}
	require.NoError(t, store.AddRecoveryCodes(ctx, e.ID, hashes))
	return e
}

func TestConsumeRecoveryCode(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	setupEnrollmentWithCodes(t, store, "alice", []string{"rescue-one", "rescue-two"})

	require.NoError(t, store.ConsumeRecoveryCode(ctx, "alice", []byte("rescue-one")))

	// Single use: the same code cannot be consumed twice.
	require.ErrorIs(t, store.ConsumeRecoveryCode(ctx, "alice", []byte("rescue-one")), ErrNoRecoveryMatch)

	// The other code is unaffected.
	require.NoError(t, store.ConsumeRecoveryCode(ctx, "alice", []byte("rescue-two")))
}

func TestConsumeRecoveryCodeNoMatch(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	setupEnrollmentWithCodes(t, store, "bob", []string{"rescue-one"})

	require.ErrorIs(t, store.ConsumeRecoveryCode(ctx, "bob", []byte("wrong-code")), ErrNoRecoveryMatch)
	require.ErrorIs(t, store.ConsumeRecoveryCode(ctx, "nobody", []byte("rescue-one")), ErrNotFound)
}

func TestCountUnusedRecoveryCodes(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	setupEnrollmentWithCodes(t, store, "carol", []string{"a-code", "b-code", "c-code"})

	count, err := store.CountUnusedRecoveryCodes(ctx, "carol")
	require.NoError(t, err)
	require.Equal(t, 3, count)

	require.NoError(t, store.ConsumeRecoveryCode(ctx, "carol", []byte("b-code")))

	count, err = store.CountUnusedRecoveryCodes(ctx, "carol")
	require.NoError(t, err)
	require.Equal(t, 2, count)

	_, err = store.CountUnusedRecoveryCodes(ctx, "nobody")
	require.ErrorIs(t, err, ErrNotFound)
}
