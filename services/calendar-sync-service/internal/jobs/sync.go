package jobs

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/cenkalti/backoff/v5"
	"golang.org/x/oauth2"

	"github.com/md-rashed-zaman/bookingadmin/libs/gcal"
)

const (
	NoteNoCalendar      = "skipped: no calendar"
	NoteNoEvent         = "skipped: no event"
	NoteBookingMissing  = "skipped: booking not found"
	NoteBookingCanceled = "skipped: booking cancelled"
)

// Calendar is the part of *gcal.Client the worker drives.
type Calendar interface {
	InsertEvent(ctx context.Context, accessToken, calendarID string, ev gcal.Event) (string, error)
	UpdateEvent(ctx context.Context, accessToken, calendarID, eventID string, ev gcal.Event) error
	DeleteEvent(ctx context.Context, accessToken, calendarID, eventID string) error
}

// TokenRefresher is implemented by *gcal.OAuth.
type TokenRefresher interface {
	Refresh(ctx context.Context, tok *oauth2.Token) (*oauth2.Token, bool, error)
}

// result is what a sync run leaves to be recorded on the row and booking.
type result struct {
	note    string
	eventID string
	// link stores eventID on the booking; unlink clears it if still there.
	link   bool
	unlink bool
}

// sync applies one queue row to Google. It reads and refreshes tokens
// through the pool and holds no transaction. Errors wrapped with
// backoff.Permanent fail the row without further attempts.
func (w *Worker) sync(ctx context.Context, job Job) (result, error) {
	creds, err := loadCredentials(ctx, w.pool, job.SpecialistID)
	if errors.Is(err, errNoCalendar) {
		return result{note: NoteNoCalendar}, nil
	}
	if err != nil {
		return result{}, err
	}

	tok, changed, err := w.oauth.Refresh(ctx, creds.Token)
	if err != nil {
		if gcal.IsInvalidGrant(err) {
			if err := markRevoked(ctx, w.pool, job.SpecialistID); err != nil {
				return result{}, err
			}
			w.logger.Warn("google grant revoked", "specialist_id", job.SpecialistID)
			return result{}, backoff.Permanent(errors.New("google grant revoked (invalid_grant)"))
		}
		return result{}, fmt.Errorf("refresh token: %w", err)
	}
	if changed {
		if err := saveToken(ctx, w.pool, job.SpecialistID, tok); err != nil {
			return result{}, err
		}
	}

	switch job.Action {
	case ActionCreate, ActionUpdate:
		return w.upsertEvent(ctx, job, creds.CalendarID, tok.AccessToken)
	case ActionDelete:
		return w.deleteEvent(ctx, job, creds.CalendarID, tok.AccessToken)
	default:
		return result{}, backoff.Permanent(fmt.Errorf("unknown action %q", job.Action))
	}
}

// upsertEvent updates the booking's event when it has one and creates it
// otherwise, including when Google no longer knows the stored id.
func (w *Worker) upsertEvent(ctx context.Context, job Job, calendarID, token string) (result, error) {
	b, err := loadBooking(ctx, w.pool, job.BookingID)
	if errors.Is(err, errBookingMissing) {
		return result{note: NoteBookingMissing}, nil
	}
	if err != nil {
		return result{}, err
	}
	if b.Status == "cancelled" {
		return result{note: NoteBookingCanceled}, nil
	}

	ev := eventFor(b)
	eventID := b.GoogleEventID
	if eventID == "" {
		eventID = job.GoogleEventID
	}
	if eventID != "" {
		err := w.calendar.UpdateEvent(ctx, token, calendarID, eventID, ev)
		if err == nil {
			return result{eventID: eventID}, nil
		}
		if !errors.Is(err, gcal.ErrNotFound) {
			return result{}, classify(err)
		}
	}

	ev.ID = eventIDFor(job)
	id, err := w.calendar.InsertEvent(ctx, token, calendarID, ev)
	if err != nil {
		return result{}, classify(err)
	}
	return result{eventID: id, link: true}, nil
}

func (w *Worker) deleteEvent(ctx context.Context, job Job, calendarID, token string) (result, error) {
	eventID := job.GoogleEventID
	if eventID == "" {
		b, err := loadBooking(ctx, w.pool, job.BookingID)
		if err != nil && !errors.Is(err, errBookingMissing) {
			return result{}, err
		}
		eventID = b.GoogleEventID
	}
	if eventID == "" {
		return result{note: NoteNoEvent}, nil
	}

	if err := w.calendar.DeleteEvent(ctx, token, calendarID, eventID); err != nil {
		return result{}, classify(err)
	}
	return result{eventID: eventID, unlink: true}, nil
}

// eventIDFor is the client-chosen Google event id for a row's insert. It
// only uses base32hex characters and is stable across re-runs of the row,
// so a replayed insert hits 409 instead of creating a second event.
func eventIDFor(job Job) string {
	return fmt.Sprintf("bk%dj%d", job.BookingID, job.ID)
}

// classify marks client errors Google will keep returning as permanent.
// Throttling, auth expiry and server errors stay retryable.
func classify(err error) error {
	var apiErr *gcal.APIError
	if !errors.As(err, &apiErr) {
		return err
	}
	switch {
	case apiErr.Status == http.StatusTooManyRequests, apiErr.Status == http.StatusUnauthorized, apiErr.Status >= 500:
		return err
	case apiErr.Reason == "rateLimitExceeded", apiErr.Reason == "userRateLimitExceeded":
		return err
	default:
		return backoff.Permanent(err)
	}
}

func isPermanent(err error) bool {
	var perm *backoff.PermanentError
	return errors.As(err, &perm)
}

func eventFor(b Booking) gcal.Event {
	summary := b.ServiceName
	if b.ClientName != "" {
		summary += " - " + b.ClientName
	}
	var desc []string
	if b.ClientName != "" {
		desc = append(desc, "Client: "+b.ClientName)
	}
	if b.ClientPhone != "" {
		desc = append(desc, "Phone: "+b.ClientPhone)
	}
	if b.Specialist != "" {
		desc = append(desc, "Specialist: "+b.Specialist)
	}
	location := b.PointName
	if b.Address != "" {
		if location != "" {
			location += ", "
		}
		location += b.Address
	}
	return gcal.NewEvent(summary, strings.Join(desc, "\n"), location, b.Start, b.End, b.Timezone)
}
