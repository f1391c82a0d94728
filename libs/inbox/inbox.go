// Package inbox de-duplicates consumed Kafka events. An event is claimed in
// inbox_events in the same transaction as the handler's writes, so a failed
// handler leaves it unclaimed.
package inbox

import (
	"context"

	"github.com/md-rashed-zaman/bookingadmin/libs/db"
)

type Repository struct{}

func NewRepository() *Repository {
	return &Repository{}
}

// Record claims eventID. It returns false when the event was already seen,
// in which case q (usually a transaction) must not be used further.
func (r *Repository) Record(ctx context.Context, q db.Querier, eventID string, eventType string) (bool, error) {
	_, err := q.Exec(ctx, `
		INSERT INTO inbox_events (event_id, event_type)
		VALUES ($1, $2)
	`, eventID, eventType)
	if err == nil {
		return true, nil
	}
	if db.IsUniqueViolation(err) {
		return false, nil
	}
	return false, err
}
