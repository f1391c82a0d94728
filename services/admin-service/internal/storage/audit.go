package storage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/md-rashed-zaman/bookingadmin/services/admin-service/internal/model"
)

func (s *Store) RecordAudit(ctx context.Context, eventType, actor string, metadata map[string]any) error {
	if metadata == nil {
		metadata = map[string]any{}
	}
	raw, err := json.Marshal(metadata)
	if err != nil {
		return err
	}
	_, err = s.q.Exec(ctx, `
		INSERT INTO audit_events (event_type, actor, metadata)
		VALUES ($1, $2, $3)
	`, eventType, actor, raw)
	return err
}

func (s *Store) ListAudit(ctx context.Context, limit int) ([]model.AuditEvent, error) {
	rows, err := s.q.Query(ctx, `
		SELECT id, event_type, actor, metadata, created_at
		FROM audit_events
		ORDER BY id DESC
		LIMIT $1
	`, clampLimit(limit, 50, 200))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []model.AuditEvent
	for rows.Next() {
		var e model.AuditEvent
		var raw []byte
		if err := rows.Scan(&e.ID, &e.EventType, &e.Actor, &raw, &e.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(raw, &e.Metadata); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return events, nil
}

// PurgeAudit deletes audit events created before the cutoff.
func (s *Store) PurgeAudit(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.q.Exec(ctx, `DELETE FROM audit_events WHERE created_at < $1`, before)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
