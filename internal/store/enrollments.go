// ABOUTME: Enrollment CRUD and monotonic last-step tracking on SQLiteStore
// ABOUTME: Time steps only move forward so a code can never be accepted twice across restarts

package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// CreateEnrollment creates a new enrollment. Returns
// ErrDuplicateEnrollment if the user already has one.
func (s *SQLiteStore) CreateEnrollment(ctx context.Context, e *Enrollment) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	if e.UpdatedAt.IsZero() {
		e.UpdatedAt = now
	}
	if e.Status == "" {
		e.Status = EnrollmentPending
	}

	query := `
		INSERT INTO enrollments (id, username, secret, algorithm, digits, period_sec, skew, last_step, status, created_at, updated_at, created_by)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		e.ID,
		e.User,
		e.Secret,
		e.Algorithm,
		e.Digits,
		e.PeriodSec,
		e.Skew,
		e.LastStep,
		e.Status,
		e.CreatedAt.Format(time.RFC3339),
		e.UpdatedAt.Format(time.RFC3339),
		nullString(ptrToString(e.CreatedBy)),
	)
	if err != nil {
		if isConstraintViolation(err) {
			return ErrDuplicateEnrollment
		}
		return fmt.Errorf("inserting enrollment: %w", err)
	}

	s.logger.Debug("created enrollment", "id", e.ID, "user", e.User, "status", e.Status)
	return nil
}

// GetEnrollmentByUser retrieves an enrollment by username.
// Returns ErrNotFound if the user has no enrollment.
func (s *SQLiteStore) GetEnrollmentByUser(ctx context.Context, user string) (*Enrollment, error) {
	query := `
		SELECT id, username, secret, algorithm, digits, period_sec, skew, last_step, status, created_at, updated_at, created_by
		FROM enrollments
		WHERE username = ?
	`

	var e Enrollment
	var createdBy sql.NullString
	var createdAt, updatedAt string

	err := s.db.QueryRowContext(ctx, query, user).Scan(
		&e.ID,
		&e.User,
		&e.Secret,
		&e.Algorithm,
		&e.Digits,
		&e.PeriodSec,
		&e.Skew,
		&e.LastStep,
		&e.Status,
		&createdAt,
		&updatedAt,
		&createdBy,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying enrollment: %w", err)
	}

	if parsed, err := time.Parse(time.RFC3339, createdAt); err != nil {
		slog.Warn("failed to parse enrollment created_at", "id", e.ID, "error", err)
	} else {
		e.CreatedAt = parsed
	}
	if parsed, err := time.Parse(time.RFC3339, updatedAt); err != nil {
		slog.Warn("failed to parse enrollment updated_at", "id", e.ID, "error", err)
	} else {
		e.UpdatedAt = parsed
	}
	if createdBy.Valid {
		e.CreatedBy = &createdBy.String
	}

	return &e, nil
}

// UpdateEnrollment updates an enrollment's secret, parameters, and status.
// Returns ErrNotFound if the enrollment doesn't exist.
func (s *SQLiteStore) UpdateEnrollment(ctx context.Context, e *Enrollment) error {
	e.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE enrollments
		SET secret = ?, algorithm = ?, digits = ?, period_sec = ?, skew = ?, status = ?, updated_at = ?
		WHERE id = ?
	`

	result, err := s.db.ExecContext(ctx, query,
		e.Secret,
		e.Algorithm,
		e.Digits,
		e.PeriodSec,
		e.Skew,
		e.Status,
		e.UpdatedAt.Format(time.RFC3339),
		e.ID,
	)
	if err != nil {
		return fmt.Errorf("updating enrollment: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}

	s.logger.Debug("updated enrollment", "id", e.ID, "user", e.User, "status", e.Status)
	return nil
}

// DeleteEnrollment removes a user's enrollment and, via cascade, its
// recovery codes. Returns ErrNotFound if the user has no enrollment.
func (s *SQLiteStore) DeleteEnrollment(ctx context.Context, user string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM enrollments WHERE username = ?`, user)
	if err != nil {
		return fmt.Errorf("deleting enrollment: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}

	s.logger.Debug("deleted enrollment", "user", user)
	return nil
}

// ListEnrollments returns all enrollments ordered by username.
func (s *SQLiteStore) ListEnrollments(ctx context.Context) ([]*Enrollment, error) {
	query := `
		SELECT id, username, secret, algorithm, digits, period_sec, skew, last_step, status, created_at, updated_at, created_by
		FROM enrollments
		ORDER BY username
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying enrollments: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var enrollments []*Enrollment
	for rows.Next() {
		var e Enrollment
		var createdBy sql.NullString
		var createdAt, updatedAt string

		if err := rows.Scan(
			&e.ID,
			&e.User,
			&e.Secret,
			&e.Algorithm,
			&e.Digits,
			&e.PeriodSec,
			&e.Skew,
			&e.LastStep,
			&e.Status,
			&createdAt,
			&updatedAt,
			&createdBy,
		); err != nil {
			return nil, fmt.Errorf("scanning enrollment row: %w", err)
		}

		if parsed, err := time.Parse(time.RFC3339, createdAt); err != nil {
			slog.Warn("failed to parse enrollment created_at", "id", e.ID, "error", err)
		} else {
			e.CreatedAt = parsed
		}
		if parsed, err := time.Parse(time.RFC3339, updatedAt); err != nil {
			slog.Warn("failed to parse enrollment updated_at", "id", e.ID, "error", err)
		} else {
			e.UpdatedAt = parsed
		}
		if createdBy.Valid {
			e.CreatedBy = &createdBy.String
		}

		enrollments = append(enrollments, &e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating enrollment rows: %w", err)
	}

	return enrollments, nil
}

// MarkUsedStep records the accepted time step for a user. Steps are
// strictly increasing: marking a step at or before the recorded one
// returns ErrStepReplayed, which callers must treat as a failed
// authentication.
func (s *SQLiteStore) MarkUsedStep(ctx context.Context, user string, step uint64) error {
	query := `
		UPDATE enrollments
		SET last_step = ?, updated_at = ?
		WHERE username = ? AND last_step < ?
	`

	result, err := s.db.ExecContext(ctx, query,
		step,
		time.Now().UTC().Format(time.RFC3339),
		user,
		step,
	)
	if err != nil {
		return fmt.Errorf("marking used step: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		// Distinguish a missing user from a replayed step.
		var exists int
		err := s.db.QueryRowContext(ctx, `SELECT 1 FROM enrollments WHERE username = ?`, user).Scan(&exists)
		if err == sql.ErrNoRows {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("checking enrollment: %w", err)
		}
		return ErrStepReplayed
	}

	s.logger.Debug("marked used step", "user", user, "step", step)
	return nil
}
