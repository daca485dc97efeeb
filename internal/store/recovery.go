// ABOUTME: Single-use recovery code storage on SQLiteStore
// ABOUTME: Codes are stored as bcrypt hashes; plaintext exists only during verification

package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// AddRecoveryCodes stores bcrypt hashes of recovery codes for an
// enrollment. Hashing is the caller's job so this layer never sees the
// plaintext at issue time.
func (s *SQLiteStore) AddRecoveryCodes(ctx context.Context, enrollmentID string, hashes []string) error {
	query := `INSERT INTO recovery_codes (id, enrollment_id, code_hash) VALUES (?, ?, ?)`

	for _, h := range hashes {
		if _, err := s.db.ExecContext(ctx, query, uuid.New().String(), enrollmentID, h); err != nil {
			return fmt.Errorf("inserting recovery code: %w", err)
		}
	}

	s.logger.Debug("added recovery codes", "enrollment_id", enrollmentID, "count", len(hashes))
	return nil
}

// ConsumeRecoveryCode verifies a plaintext code against the user's
// unused recovery codes and marks the match as used. The match is
// one-shot: the used_at guard in the UPDATE keeps a concurrent consume
// of the same code from succeeding twice. The code arrives as bytes
// and is never copied, so the caller can wipe its buffer afterwards.
// Returns ErrNoRecoveryMatch when nothing matches, ErrNotFound when
// the user has no enrollment.
func (s *SQLiteStore) ConsumeRecoveryCode(ctx context.Context, user string, code []byte) error {
	var enrollmentID string
	err := s.db.QueryRowContext(ctx, `SELECT id FROM enrollments WHERE username = ?`, user).Scan(&enrollmentID)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("querying enrollment: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, code_hash FROM recovery_codes WHERE enrollment_id = ? AND used_at IS NULL`,
		enrollmentID,
	)
	if err != nil {
		return fmt.Errorf("querying recovery codes: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var matchedID string
	for rows.Next() {
		var id, hash string
		if err := rows.Scan(&id, &hash); err != nil {
			return fmt.Errorf("scanning recovery code row: %w", err)
		}
		if bcrypt.CompareHashAndPassword([]byte(hash), code) == nil {
			matchedID = id
			break
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterating recovery code rows: %w", err)
	}
	if matchedID == "" {
		return ErrNoRecoveryMatch
	}

	result, err := s.db.ExecContext(ctx,
		`UPDATE recovery_codes SET used_at = ? WHERE id = ? AND used_at IS NULL`,
		time.Now().UTC().Format(time.RFC3339),
		matchedID,
	)
	if err != nil {
		return fmt.Errorf("marking recovery code used: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		// Lost the race to a concurrent consume of the same code.
		return ErrNoRecoveryMatch
	}

	s.logger.Debug("consumed recovery code", "user", user)
	return nil
}

// CountUnusedRecoveryCodes returns how many recovery codes remain for a
// user. Returns ErrNotFound if the user has no enrollment.
func (s *SQLiteStore) CountUnusedRecoveryCodes(ctx context.Context, user string) (int, error) {
	var enrollmentID string
	err := s.db.QueryRowContext(ctx, `SELECT id FROM enrollments WHERE username = ?`, user).Scan(&enrollmentID)
	if err == sql.ErrNoRows {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("querying enrollment: %w", err)
	}

	var count int
	err = s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM recovery_codes WHERE enrollment_id = ? AND used_at IS NULL`,
		enrollmentID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting recovery codes: %w", err)
	}
	return count, nil
}
