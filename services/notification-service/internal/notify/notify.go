// Package notify turns back-office events into SMS and email messages.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/segmentio/kafka-go"

	"github.com/md-rashed-zaman/bookingadmin/libs/kafkax"
	"github.com/md-rashed-zaman/bookingadmin/libs/outbox"
	"github.com/md-rashed-zaman/bookingadmin/libs/sms"
	"github.com/md-rashed-zaman/bookingadmin/services/notification-service/internal/email"
	"github.com/md-rashed-zaman/bookingadmin/services/notification-service/internal/storage"
)

const (
	EventBookingCancelled = "admin.booking.cancelled.v1"
	EventSyncFailed       = "calendar.sync.failed.v1"

	EventSent   = "notification.sent.v1"
	EventFailed = "notification.failed.v1"
)

var Topics = []string{EventBookingCancelled, EventSyncFailed}

type Config struct {
	AlertEmail      string `env:"ALERT_EMAIL"`
	CancellationSMS bool   `env:"CANCELLATION_SMS" envDefault:"true"`
}

type message struct {
	kind      string
	reference string
	channel   string
	recipient string
	subject   string
	body      string
	skip      string
}

type Dispatcher struct {
	repo   *storage.Repository
	outbox *outbox.Repository
	sms    sms.Sender
	email  email.Sender
	cfg    Config
	logger *slog.Logger
	now    func() time.Time
}

func NewDispatcher(repo *storage.Repository, outboxRepo *outbox.Repository, smsSender sms.Sender, emailSender email.Sender, cfg Config, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		repo:   repo,
		outbox: outboxRepo,
		sms:    smsSender,
		email:  emailSender,
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
	}
}

// Handle is an inbox.Handler. The notification row and its outcome event
// are written in tx; the message itself is sent before commit, so a
// redelivered event may send twice.
func (d *Dispatcher) Handle(ctx context.Context, tx pgx.Tx, msg kafka.Message) error {
	meta := kafkax.ExtractEventMeta(msg)

	var (
		m   message
		ok  bool
		err error
	)
	switch meta.EventType {
	case EventBookingCancelled:
		m, ok, err = d.cancellation(ctx, tx, msg.Value)
	case EventSyncFailed:
		m, ok, err = d.syncFailure(ctx, tx, msg.Value)
	default:
		d.logger.Warn("unexpected event type", "event_type", meta.EventType)
		return nil
	}
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	n := storage.Notification{
		EventID:   meta.EventID,
		Kind:      m.kind,
		Reference: m.reference,
		Channel:   m.channel,
		Recipient: m.recipient,
		Body:      m.body,
	}
	if m.skip != "" {
		n.Status, n.Error = storage.StatusSkipped, m.skip
		d.logger.Info("notification skipped", "kind", m.kind, "reference", m.reference, "reason", m.skip)
		return d.repo.Insert(ctx, tx, n)
	}

	provider, sendErr := d.deliver(ctx, m)
	n.Provider = provider
	switch {
	case errors.Is(sendErr, sms.ErrNotConfigured), errors.Is(sendErr, email.ErrNotConfigured):
		n.Status, n.Error = storage.StatusSkipped, sendErr.Error()
		return d.repo.Insert(ctx, tx, n)
	case sendErr != nil:
		n.Status, n.Error = storage.StatusFailed, sendErr.Error()
		d.logger.Error("notification send failed", "kind", m.kind, "channel", m.channel, "reference", m.reference, "err", sendErr)
	default:
		n.Status = storage.StatusSent
	}
	if err := d.repo.Insert(ctx, tx, n); err != nil {
		return err
	}
	return d.emit(ctx, tx, n)
}

func (d *Dispatcher) deliver(ctx context.Context, m message) (string, error) {
	switch m.channel {
	case "sms":
		return d.sms.ProviderID(), d.sms.Send(ctx, m.recipient, m.body)
	case "email":
		return "smtp", d.email.Send(ctx, m.recipient, m.subject, m.body)
	}
	return "", fmt.Errorf("unsupported channel %q", m.channel)
}

func (d *Dispatcher) emit(ctx context.Context, tx pgx.Tx, n storage.Notification) error {
	eventType := EventSent
	payload := map[string]any{
		"kind":      n.Kind,
		"reference": n.Reference,
		"channel":   n.Channel,
		"provider":  n.Provider,
	}
	if n.Status == storage.StatusFailed {
		eventType = EventFailed
		payload["error_reason"] = n.Error
		payload["failed_at"] = d.now().UTC().Format(time.RFC3339)
	} else {
		payload["sent_at"] = d.now().UTC().Format(time.RFC3339)
	}
	evt, err := outbox.NewEvent("notification", n.Reference, eventType, payload)
	if err != nil {
		return err
	}
	return d.outbox.Insert(ctx, tx, evt)
}

type cancelledPayload struct {
	BookingID int64 `json:"booking_id"`
}

// cancellation tells the client by SMS that the booking was cancelled.
func (d *Dispatcher) cancellation(ctx context.Context, tx pgx.Tx, raw []byte) (message, bool, error) {
	var p cancelledPayload
	if err := json.Unmarshal(raw, &p); err != nil || p.BookingID <= 0 {
		d.logger.Error("invalid booking cancellation event", "err", err)
		return message{}, false, nil
	}
	m := message{kind: "booking_cancelled", reference: "booking:" + strconv.FormatInt(p.BookingID, 10), channel: "sms"}

	b, err := d.repo.Booking(ctx, tx, p.BookingID)
	if errors.Is(err, storage.ErrNotFound) {
		m.skip = "booking not found"
		return m, true, nil
	}
	if err != nil {
		return message{}, false, err
	}
	m.recipient = strings.TrimSpace(b.ClientPhone)
	m.body = cancellationText(b)
	switch {
	case !d.cfg.CancellationSMS:
		m.skip = "cancellation sms disabled"
	case m.recipient == "":
		m.skip = "no phone on file"
	}
	return m, true, nil
}

func cancellationText(b storage.Booking) string {
	start := b.Start
	if loc, err := time.LoadLocation(b.Timezone); err == nil {
		start = start.In(loc)
	}
	var sb strings.Builder
	if name := strings.TrimSpace(b.ClientName); name != "" {
		sb.WriteString("Hi " + name + ", your ")
	} else {
		sb.WriteString("Your ")
	}
	if b.ServiceName != "" {
		sb.WriteString(b.ServiceName + " ")
	}
	sb.WriteString("appointment")
	if b.PointName != "" {
		sb.WriteString(" at " + b.PointName)
	}
	sb.WriteString(" on " + start.Format("02 Jan 2006 15:04") + " was cancelled.")
	return sb.String()
}

type syncFailedPayload struct {
	SyncID       int64  `json:"sync_id"`
	BookingID    int64  `json:"booking_id"`
	SpecialistID int64  `json:"specialist_id"`
	Action       string `json:"action"`
	Attempts     int    `json:"attempts"`
	Error        string `json:"error"`
}

// syncFailure mails the operations address, or the specialist when no
// operations address is configured.
func (d *Dispatcher) syncFailure(ctx context.Context, tx pgx.Tx, raw []byte) (message, bool, error) {
	var p syncFailedPayload
	if err := json.Unmarshal(raw, &p); err != nil || p.SyncID <= 0 {
		d.logger.Error("invalid sync failure event", "err", err)
		return message{}, false, nil
	}
	m := message{
		kind:      "calendar_sync_failed",
		reference: "sync:" + strconv.FormatInt(p.SyncID, 10),
		channel:   "email",
		recipient: strings.TrimSpace(d.cfg.AlertEmail),
		subject:   fmt.Sprintf("Google Calendar sync failed for booking %d", p.BookingID),
		body: fmt.Sprintf("The calendar %s for booking %d (specialist %d) failed after %d attempts.\nLast error: %s",
			p.Action, p.BookingID, p.SpecialistID, p.Attempts, p.Error),
	}
	if m.recipient == "" {
		addr, err := d.repo.SpecialistEmail(ctx, tx, p.SpecialistID)
		if err != nil {
			return message{}, false, err
		}
		m.recipient = strings.TrimSpace(addr)
	}
	if m.recipient == "" {
		m.skip = "no alert address"
	}
	return m, true, nil
}
