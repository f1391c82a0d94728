package gcal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

// ErrNotFound is returned for 404/410 responses on a single event.
var ErrNotFound = errors.New("calendar resource not found")

// APIError carries the status and the first error reason Google returned.
type APIError struct {
	Status  int
	Reason  string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("google calendar api: %d %s", e.Status, e.Reason)
}

type googleError struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Errors  []struct {
			Reason string `json:"reason"`
		} `json:"errors"`
	} `json:"error"`
}

type Calendar struct {
	ID         string `json:"id"`
	Summary    string `json:"summary"`
	Primary    bool   `json:"primary,omitempty"`
	AccessRole string `json:"accessRole,omitempty"`
	TimeZone   string `json:"timeZone,omitempty"`
}

type EventTime struct {
	DateTime string `json:"dateTime"`
	TimeZone string `json:"timeZone,omitempty"`
}

type Event struct {
	ID          string    `json:"id,omitempty"`
	Summary     string    `json:"summary"`
	Description string    `json:"description,omitempty"`
	Location    string    `json:"location,omitempty"`
	Start       EventTime `json:"start"`
	End         EventTime `json:"end"`
}

// NewEvent formats start/end in the working point's zone.
func NewEvent(summary, description, location string, start, end time.Time, tz string) Event {
	if loc, err := time.LoadLocation(tz); err == nil {
		start, end = start.In(loc), end.In(loc)
	} else {
		tz = "UTC"
		start, end = start.UTC(), end.UTC()
	}
	return Event{
		Summary:     summary,
		Description: description,
		Location:    location,
		Start:       EventTime{DateTime: start.Format(time.RFC3339), TimeZone: tz},
		End:         EventTime{DateTime: end.Format(time.RFC3339), TimeZone: tz},
	}
}

type Client struct {
	r         *resty.Client
	calendars *expirable.LRU[string, []Calendar]
}

// NewClient builds a Calendar v3 client. Calendar lists are cached per key
// for cacheTTL; zero disables the cache.
func NewClient(baseURL string, httpClient *http.Client, cacheTTL time.Duration) *Client {
	if httpClient == nil {
		httpClient = NewHTTPClient(0)
	}
	r := resty.NewWithClient(httpClient).
		SetBaseURL(baseURL).
		SetHeader("Accept", "application/json").
		SetRetryCount(2).
		SetRetryWaitTime(200 * time.Millisecond).
		AddRetryCondition(func(resp *resty.Response, err error) bool {
			if err != nil || resp == nil || resp.Request == nil || resp.Request.Method == http.MethodPost {
				return false
			}
			return resp.StatusCode() >= http.StatusInternalServerError
		})

	c := &Client{r: r}
	if cacheTTL > 0 {
		c.calendars = expirable.NewLRU[string, []Calendar](256, nil, cacheTTL)
	}
	return c
}

// ListCalendars returns the calendars the token can write to.
func (c *Client) ListCalendars(ctx context.Context, accessToken, cacheKey string) ([]Calendar, error) {
	if c.calendars != nil && cacheKey != "" {
		if cached, ok := c.calendars.Get(cacheKey); ok {
			return cached, nil
		}
	}

	var out struct {
		Items []Calendar `json:"items"`
	}
	resp, err := c.r.R().
		SetContext(ctx).
		SetAuthToken(accessToken).
		SetQueryParam("minAccessRole", "writer").
		SetResult(&out).
		Get("/users/me/calendarList")
	if err := check(resp, err); err != nil {
		return nil, err
	}
	if c.calendars != nil && cacheKey != "" {
		c.calendars.Add(cacheKey, out.Items)
	}
	return out.Items, nil
}

func (c *Client) InvalidateCalendars(cacheKey string) {
	if c.calendars != nil {
		c.calendars.Remove(cacheKey)
	}
}

// InsertEvent creates ev. When ev.ID is set and Google already holds an
// event with that id, the earlier insert went through and ev.ID is returned.
func (c *Client) InsertEvent(ctx context.Context, accessToken, calendarID string, ev Event) (string, error) {
	var out Event
	resp, err := c.r.R().
		SetContext(ctx).
		SetAuthToken(accessToken).
		SetPathParam("calendarId", calendarID).
		SetBody(ev).
		SetResult(&out).
		Post("/calendars/{calendarId}/events")
	if err := check(resp, err); err != nil {
		var apiErr *APIError
		if ev.ID != "" && errors.As(err, &apiErr) && apiErr.Status == http.StatusConflict {
			return ev.ID, nil
		}
		return "", err
	}
	return out.ID, nil
}

func (c *Client) UpdateEvent(ctx context.Context, accessToken, calendarID, eventID string, ev Event) error {
	resp, err := c.r.R().
		SetContext(ctx).
		SetAuthToken(accessToken).
		SetPathParams(map[string]string{"calendarId": calendarID, "eventId": eventID}).
		SetBody(ev).
		Put("/calendars/{calendarId}/events/{eventId}")
	return check(resp, err)
}

// DeleteEvent treats an already-missing event as deleted.
func (c *Client) DeleteEvent(ctx context.Context, accessToken, calendarID, eventID string) error {
	resp, err := c.r.R().
		SetContext(ctx).
		SetAuthToken(accessToken).
		SetPathParams(map[string]string{"calendarId": calendarID, "eventId": eventID}).
		Delete("/calendars/{calendarId}/events/{eventId}")
	if err := check(resp, err); err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	return nil
}

func check(resp *resty.Response, err error) error {
	if err != nil {
		return err
	}
	if !resp.IsError() {
		return nil
	}
	status := resp.StatusCode()
	if status == http.StatusNotFound || status == http.StatusGone {
		return fmt.Errorf("%w (%d)", ErrNotFound, status)
	}
	apiErr := &APIError{Status: status}
	var body googleError
	if jsonErr := json.Unmarshal(resp.Body(), &body); jsonErr == nil {
		apiErr.Message = body.Error.Message
		if len(body.Error.Errors) > 0 {
			apiErr.Reason = body.Error.Errors[0].Reason
		}
	}
	return apiErr
}
