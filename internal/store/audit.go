package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// AuditEntry records one security-relevant action.
type AuditEntry struct {
	ID        int64
	ActorID   *int64
	Action    string
	Detail    string
	Origin    string
	CreatedAt time.Time
}

// AppendAudit records an action. actorID may be zero when the actor is
// unknown (for example a failed login for a nonexistent account);
// origin is the request's remote address.
func (s *Store) AppendAudit(ctx context.Context, actorID int64, action, detail, origin string) error {
	var actor any
	if actorID != 0 {
		actor = actorID
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audit_logs (actor_id, action, detail, origin, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		actor, action, detail, origin, now())
	if err != nil {
		return fmt.Errorf("store: append audit: %w", err)
	}
	return nil
}

// ListAudit returns the newest entries first, capped at limit
// (0 means no cap).
func (s *Store) ListAudit(ctx context.Context, limit int) ([]*AuditEntry, error) {
	query := `SELECT id, actor_id, action, detail, origin, created_at
	          FROM audit_logs ORDER BY created_at DESC, id DESC`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: list audit: %w", err)
	}
	defer rows.Close()

	var entries []*AuditEntry
	for rows.Next() {
		var e AuditEntry
		var actor sql.NullInt64
		if err := rows.Scan(&e.ID, &actor, &e.Action, &e.Detail, &e.Origin, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("store: scan audit: %w", err)
		}
		if actor.Valid {
			id := actor.Int64
			e.ActorID = &id
		}
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}
