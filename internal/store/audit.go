// ABOUTME: Audit log store methods for tracking authentication outcomes and admin actions
// ABOUTME: Records who did what to which user for compliance and debugging

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// AppendAuditLog appends a new entry to the audit log.
// Generates ID and Timestamp if not set.
func (s *SQLiteStore) AppendAuditLog(ctx context.Context, e *AuditEntry) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}

	var detailJSON *string
	if e.Detail != nil {
		data, err := json.Marshal(e.Detail)
		if err != nil {
			return fmt.Errorf("marshaling audit detail: %w", err)
		}
		str := string(data)
		detailJSON = &str
	}

	query := `
		INSERT INTO audit_log (id, actor, action, username, ts, detail_json)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		e.ID,
		e.Actor,
		string(e.Action),
		e.User,
		e.Timestamp.Format(time.RFC3339Nano),
		nullString(ptrToString(detailJSON)),
	)
	if err != nil {
		return fmt.Errorf("inserting audit entry: %w", err)
	}

	s.logger.Debug("appended audit entry", "id", e.ID, "action", e.Action, "user", e.User)
	return nil
}

// ListAuditLog returns audit entries matching the filter, newest first.
// Limit defaults to 100 and is capped at 1000.
func (s *SQLiteStore) ListAuditLog(ctx context.Context, f AuditFilter) ([]*AuditEntry, error) {
	query := `SELECT id, actor, action, username, ts, detail_json FROM audit_log WHERE 1=1`
	var args []any

	if f.Since != nil {
		query += ` AND ts >= ?`
		args = append(args, f.Since.UTC().Format(time.RFC3339Nano))
	}
	if f.Until != nil {
		query += ` AND ts <= ?`
		args = append(args, f.Until.UTC().Format(time.RFC3339Nano))
	}
	if f.Actor != nil {
		query += ` AND actor = ?`
		args = append(args, *f.Actor)
	}
	if f.Action != nil {
		query += ` AND action = ?`
		args = append(args, string(*f.Action))
	}
	if f.User != nil {
		query += ` AND username = ?`
		args = append(args, *f.User)
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	if limit > 1000 {
		limit = 1000
	}
	query += ` ORDER BY ts DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying audit log: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []*AuditEntry
	for rows.Next() {
		var e AuditEntry
		var action, ts string
		var detailJSON sql.NullString

		if err := rows.Scan(&e.ID, &e.Actor, &action, &e.User, &ts, &detailJSON); err != nil {
			return nil, fmt.Errorf("scanning audit row: %w", err)
		}

		e.Action = AuditAction(action)
		parsed, err := time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return nil, fmt.Errorf("parsing audit timestamp: %w", err)
		}
		e.Timestamp = parsed

		if detailJSON.Valid {
			if err := json.Unmarshal([]byte(detailJSON.String), &e.Detail); err != nil {
				return nil, fmt.Errorf("unmarshaling audit detail: %w", err)
			}
		}

		entries = append(entries, &e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating audit rows: %w", err)
	}

	return entries, nil
}
