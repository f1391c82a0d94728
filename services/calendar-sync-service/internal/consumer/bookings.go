// Package consumer maps booking events onto the calendar sync queue.
package consumer

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/segmentio/kafka-go"

	"github.com/md-rashed-zaman/bookingadmin/libs/inbox"
	"github.com/md-rashed-zaman/bookingadmin/libs/kafkax"
	"github.com/md-rashed-zaman/bookingadmin/services/calendar-sync-service/internal/jobs"
)

var bookingActions = map[string]string{
	"booking.created.v1":   jobs.ActionCreate,
	"booking.updated.v1":   jobs.ActionUpdate,
	"booking.cancelled.v1": jobs.ActionDelete,
}

type bookingEvent struct {
	BookingID     int64  `json:"booking_id"`
	SpecialistID  int64  `json:"specialist_id"`
	GoogleEventID string `json:"google_event_id"`
}

// Topics are the booking lifecycle events the sync service consumes.
var Topics = []string{"booking.created.v1", "booking.updated.v1", "booking.cancelled.v1"}

// BookingEvents turns booking lifecycle events into sync queue rows.
// Malformed events are logged and dropped.
func BookingEvents(repo *jobs.Repository, logger *slog.Logger) inbox.Handler {
	return func(ctx context.Context, tx pgx.Tx, msg kafka.Message) error {
		eventType := kafkax.ExtractEventMeta(msg).EventType
		action, ok := bookingActions[eventType]
		if !ok {
			logger.Warn("unexpected event type", "event_type", eventType)
			return nil
		}
		var payload bookingEvent
		if err := json.Unmarshal(msg.Value, &payload); err != nil {
			logger.Error("invalid booking event", "event_type", eventType, "err", err)
			return nil
		}
		if payload.BookingID <= 0 || payload.SpecialistID <= 0 {
			logger.Error("booking event missing ids", "event_type", eventType)
			return nil
		}
		queued, err := repo.Enqueue(ctx, tx, payload.BookingID, payload.SpecialistID, action, payload.GoogleEventID)
		if err != nil {
			return err
		}
		logger.Debug("booking event handled", "booking_id", payload.BookingID, "action", action, "queued", queued)
		return nil
	}
}
