package storage

import (
	"context"
	"errors"
	"time"

	"github.com/md-rashed-zaman/bookingadmin/libs/db"
)

const (
	StatusSent    = "sent"
	StatusFailed  = "failed"
	StatusSkipped = "skipped"
)

var ErrNotFound = errors.New("not found")

type Notification struct {
	EventID   string
	Kind      string
	Reference string
	Channel   string
	Recipient string
	Body      string
	Provider  string
	Status    string
	Error     string
}

// Booking is what the client-facing messages need.
type Booking struct {
	ID          int64
	ClientName  string
	ClientPhone string
	ServiceName string
	PointName   string
	Timezone    string
	Start       time.Time
}

type Repository struct{}

func NewRepository() *Repository {
	return &Repository{}
}

func (r *Repository) Insert(ctx context.Context, q db.Querier, n Notification) error {
	_, err := q.Exec(ctx, `
		INSERT INTO notifications (event_id, kind, reference, channel, recipient, body, provider, status, error)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, n.EventID, n.Kind, n.Reference, n.Channel, n.Recipient, n.Body, n.Provider, n.Status, n.Error)
	return err
}

func (r *Repository) Booking(ctx context.Context, q db.Querier, id int64) (Booking, error) {
	var b Booking
	err := q.QueryRow(ctx, `
		SELECT b.id, b.client_name, b.client_phone, b.service_name, COALESCE(wp.name, ''), COALESCE(wp.timezone, 'UTC'), b.start_time
		FROM bookings b
		LEFT JOIN working_points wp ON wp.id = b.working_point_id
		WHERE b.id = $1
	`, id).Scan(&b.ID, &b.ClientName, &b.ClientPhone, &b.ServiceName, &b.PointName, &b.Timezone, &b.Start)
	if db.IsNotFound(err) {
		return Booking{}, ErrNotFound
	}
	return b, err
}

// SpecialistEmail returns the contact address of a specialist, empty when
// none is on file.
func (r *Repository) SpecialistEmail(ctx context.Context, q db.Querier, id int64) (string, error) {
	var email string
	err := q.QueryRow(ctx, `SELECT email FROM specialists WHERE id = $1`, id).Scan(&email)
	if db.IsNotFound(err) {
		return "", nil
	}
	return email, err
}
