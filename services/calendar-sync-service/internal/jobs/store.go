package jobs

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"golang.org/x/oauth2"

	"github.com/md-rashed-zaman/bookingadmin/libs/db"
)

var (
	errNoCalendar     = errors.New("no calendar")
	errBookingMissing = errors.New("booking not found")
)

// Booking is what an event needs to be rendered.
type Booking struct {
	ID            int64
	ClientName    string
	ClientPhone   string
	ServiceName   string
	Specialist    string
	PointName     string
	Address       string
	Timezone      string
	Start         time.Time
	End           time.Time
	Status        string
	GoogleEventID string
}

type Credentials struct {
	SpecialistID int64
	CalendarID   string
	Token        *oauth2.Token
}

func loadBooking(ctx context.Context, q db.Querier, id int64) (Booking, error) {
	var b Booking
	err := q.QueryRow(ctx, `
		SELECT b.id, b.client_name, b.client_phone, b.service_name, COALESCE(sp.name, ''),
		       COALESCE(wp.name, ''), COALESCE(wp.address, ''), COALESCE(wp.timezone, 'UTC'),
		       b.start_time, b.end_time, b.status, b.google_event_id
		FROM bookings b
		LEFT JOIN specialists sp ON sp.id = b.specialist_id
		LEFT JOIN working_points wp ON wp.id = b.working_point_id
		WHERE b.id = $1
	`, id).Scan(&b.ID, &b.ClientName, &b.ClientPhone, &b.ServiceName, &b.Specialist,
		&b.PointName, &b.Address, &b.Timezone, &b.Start, &b.End, &b.Status, &b.GoogleEventID)
	if db.IsNotFound(err) {
		return Booking{}, errBookingMissing
	}
	return b, err
}

// loadCredentials returns errNoCalendar unless the specialist has a
// connected grant with a selected calendar.
func loadCredentials(ctx context.Context, q db.Querier, specialistID int64) (Credentials, error) {
	c := Credentials{SpecialistID: specialistID, Token: &oauth2.Token{}}
	var status string
	err := q.QueryRow(ctx, `
		SELECT access_token, refresh_token, token_type, expiry, calendar_id, status
		FROM google_calendar_credentials
		WHERE specialist_id = $1
	`, specialistID).Scan(&c.Token.AccessToken, &c.Token.RefreshToken, &c.Token.TokenType, &c.Token.Expiry, &c.CalendarID, &status)
	if db.IsNotFound(err) {
		return Credentials{}, errNoCalendar
	}
	if err != nil {
		return Credentials{}, err
	}
	if status != "connected" || c.CalendarID == "" {
		return Credentials{}, errNoCalendar
	}
	return c, nil
}

func saveToken(ctx context.Context, q db.Querier, specialistID int64, tok *oauth2.Token) error {
	_, err := q.Exec(ctx, `
		UPDATE google_calendar_credentials
		SET access_token = $2,
		    refresh_token = COALESCE(NULLIF($3, ''), refresh_token),
		    token_type = $4,
		    expiry = $5,
		    updated_at = now()
		WHERE specialist_id = $1
	`, specialistID, tok.AccessToken, tok.RefreshToken, tok.Type(), tok.Expiry)
	return err
}

func markRevoked(ctx context.Context, q db.Querier, specialistID int64) error {
	_, err := q.Exec(ctx, `
		UPDATE google_calendar_credentials
		SET status = 'revoked', access_token = '', updated_at = now()
		WHERE specialist_id = $1
	`, specialistID)
	return err
}

func setBookingEventID(ctx context.Context, tx pgx.Tx, bookingID int64, eventID string) error {
	_, err := tx.Exec(ctx, `
		UPDATE bookings SET google_event_id = $2 WHERE id = $1
	`, bookingID, eventID)
	return err
}

// clearBookingEventID drops eventID from the booking unless a newer event
// has replaced it.
func clearBookingEventID(ctx context.Context, tx pgx.Tx, bookingID int64, eventID string) error {
	_, err := tx.Exec(ctx, `
		UPDATE bookings SET google_event_id = '' WHERE id = $1 AND google_event_id = $2
	`, bookingID, eventID)
	return err
}
