package storage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/md-rashed-zaman/bookingadmin/services/admin-service/internal/model"
)

func (s *Store) InsertWebhookLog(ctx context.Context, l model.WebhookLog) (int64, error) {
	headers, err := json.Marshal(l.Headers)
	if err != nil {
		return 0, err
	}
	var id int64
	err = s.q.QueryRow(ctx, `
		INSERT INTO webhook_logs (correlation_id, source, event_type, headers, payload, remote_addr, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`, l.CorrelationID, l.Source, l.EventType, headers, l.Payload, l.RemoteAddr, l.Status).Scan(&id)
	return id, err
}

// ListWebhookLogs omits payloads; GetWebhookLog returns the full row.
func (s *Store) ListWebhookLogs(ctx context.Context, f model.WebhookFilter) ([]model.WebhookLog, error) {
	w := &where{}
	if f.Source != "" {
		w.add("source = ?", f.Source)
	}
	if f.Status != "" {
		w.add("status = ?", f.Status)
	}
	if !f.From.IsZero() {
		w.add("created_at >= ?", f.From)
	}
	if !f.To.IsZero() {
		w.add("created_at < ?", f.To)
	}
	limitArg := w.next(clampLimit(f.Limit, 50, 500))
	offsetArg := w.next(max(f.Offset, 0))

	rows, err := s.q.Query(ctx, `
		SELECT id, correlation_id, source, event_type, headers, remote_addr, status, created_at
		FROM webhook_logs
		`+w.sql()+`
		ORDER BY id DESC
		LIMIT `+limitArg+` OFFSET `+offsetArg, w.args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.WebhookLog
	for rows.Next() {
		var l model.WebhookLog
		var headers []byte
		if err := rows.Scan(&l.ID, &l.CorrelationID, &l.Source, &l.EventType, &headers, &l.RemoteAddr, &l.Status, &l.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(headers, &l.Headers); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

func (s *Store) GetWebhookLog(ctx context.Context, id int64) (model.WebhookLog, error) {
	var l model.WebhookLog
	var headers []byte
	err := s.q.QueryRow(ctx, `
		SELECT id, correlation_id, source, event_type, headers, payload, remote_addr, status, created_at
		FROM webhook_logs
		WHERE id = $1
	`, id).Scan(&l.ID, &l.CorrelationID, &l.Source, &l.EventType, &headers, &l.Payload, &l.RemoteAddr, &l.Status, &l.CreatedAt)
	if err != nil {
		return model.WebhookLog{}, mapErr(err)
	}
	if err := json.Unmarshal(headers, &l.Headers); err != nil {
		return model.WebhookLog{}, err
	}
	return l, nil
}

func (s *Store) DeleteWebhookLog(ctx context.Context, id int64) error {
	tag, err := s.q.Exec(ctx, `DELETE FROM webhook_logs WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return affected(tag.RowsAffected())
}

func (s *Store) PurgeWebhookLogs(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.q.Exec(ctx, `DELETE FROM webhook_logs WHERE created_at < $1`, before)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
