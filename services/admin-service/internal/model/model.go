// Package model holds the back-office domain types shared by storage,
// handlers and the importer.
package model

import "time"

type Role string

const (
	RoleSuperAdmin   Role = "superadmin"
	RoleOrganisation Role = "organisation"
	RoleWorkingPoint Role = "working_point"
	RoleSpecialist   Role = "specialist"
)

func (r Role) Valid() bool {
	switch r {
	case RoleSuperAdmin, RoleOrganisation, RoleWorkingPoint, RoleSpecialist:
		return true
	}
	return false
}

// Principal is the authenticated account behind a session. Scope ids are
// zero when they do not apply to the role.
type Principal struct {
	Role           Role   `json:"role"`
	AccountID      int64  `json:"account_id"`
	Username       string `json:"username"`
	OrganisationID int64  `json:"organisation_id,omitempty"`
	WorkingPointID int64  `json:"working_point_id,omitempty"`
	SpecialistID   int64  `json:"specialist_id,omitempty"`
}

// Account is a login row resolved across the four account tables.
type Account struct {
	Role           Role
	ID             int64
	Username       string
	PasswordHash   string
	OrganisationID int64
}

type Organisation struct {
	ID          int64     `json:"id"`
	Alias       string    `json:"alias"`
	CompanyName string    `json:"company_name"`
	Email       string    `json:"email"`
	Phone       string    `json:"phone"`
	Country     string    `json:"country"`
	Username    string    `json:"username"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type WorkingPoint struct {
	ID             int64     `json:"id"`
	OrganisationID int64     `json:"organisation_id"`
	Name           string    `json:"name"`
	Address        string    `json:"address"`
	Country        string    `json:"country"`
	Language       string    `json:"language"`
	Currency       string    `json:"currency"`
	Timezone       string    `json:"timezone"`
	Phone          string    `json:"phone"`
	BookingPhone   string    `json:"booking_phone"`
	LeadPersonName string    `json:"lead_person_name"`
	Username       string    `json:"username"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

type Specialist struct {
	ID             int64     `json:"id"`
	OrganisationID int64     `json:"organisation_id"`
	Name           string    `json:"name"`
	Speciality     string    `json:"speciality"`
	Email          string    `json:"email"`
	Phone          string    `json:"phone"`
	Username       string    `json:"username"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Shift is a half-open HH:MM interval. Empty Start and End mean unused.
type Shift struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// WorkingDay is one row of working_program.
type WorkingDay struct {
	SpecialistID   int64    `json:"specialist_id"`
	WorkingPointID int64    `json:"working_point_id"`
	DayOfWeek      int      `json:"day_of_week"`
	Shifts         [3]Shift `json:"shifts"`
}

type Service struct {
	ID              int64     `json:"id"`
	OrganisationID  int64     `json:"organisation_id"`
	WorkingPointID  int64     `json:"working_point_id"`
	SpecialistID    int64     `json:"specialist_id,omitempty"`
	Name            string    `json:"name"`
	DurationMinutes int       `json:"duration_minutes"`
	Price           string    `json:"price"`
	Currency        string    `json:"currency"`
	Suspended       bool      `json:"suspended"`
	Deleted         bool      `json:"deleted"`
	CreatedAt       time.Time `json:"created_at"`
}

// TimeOff is shared by the specialist and working point tables; OwnerID is
// the specialist or working point id.
type TimeOff struct {
	ID        int64  `json:"id"`
	OwnerID   int64  `json:"owner_id"`
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
	Reason    string `json:"reason"`
}

const (
	BookingBooked    = "booked"
	BookingCancelled = "cancelled"
)

type Booking struct {
	ID             int64      `json:"id"`
	OrganisationID int64      `json:"organisation_id"`
	WorkingPointID int64      `json:"working_point_id"`
	SpecialistID   int64      `json:"specialist_id"`
	ServiceID      int64      `json:"service_id"`
	ClientName     string     `json:"client_name"`
	ClientPhone    string     `json:"client_phone"`
	StartTime      time.Time  `json:"start_time"`
	EndTime        time.Time  `json:"end_time"`
	ServiceName    string     `json:"service_name"`
	Price          string     `json:"price"`
	Status         string     `json:"status"`
	Source         string     `json:"source"`
	GoogleEventID  string     `json:"google_event_id,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	CancelledAt    *time.Time `json:"cancelled_at,omitempty"`
}

type BookingFilter struct {
	OrganisationID int64
	WorkingPointID int64
	SpecialistID   int64
	From           time.Time
	To             time.Time
	Status         string
	Limit          int
	Offset         int
}

// StatsGroup selects the statistics dimension.
type StatsGroup string

const (
	GroupSpecialist   StatsGroup = "specialist"
	GroupService      StatsGroup = "service"
	GroupWorkingPoint StatsGroup = "working_point"
	GroupDay          StatsGroup = "day"
)

func (g StatsGroup) Valid() bool {
	switch g {
	case GroupSpecialist, GroupService, GroupWorkingPoint, GroupDay:
		return true
	}
	return false
}

type StatsFilter struct {
	OrganisationID int64
	WorkingPointID int64
	SpecialistID   int64
	From           time.Time
	To             time.Time
	Group          StatsGroup
}

type StatRow struct {
	Key       string `json:"key"`
	Label     string `json:"label"`
	Bookings  int64  `json:"bookings"`
	Cancelled int64  `json:"cancelled"`
	Revenue   string `json:"revenue"`
}

const (
	CredentialsConnected = "connected"
	CredentialsRevoked   = "revoked"
)

type CalendarCredentials struct {
	SpecialistID int64     `json:"specialist_id"`
	AccessToken  string    `json:"-"`
	RefreshToken string    `json:"-"`
	TokenType    string    `json:"-"`
	Expiry       time.Time `json:"expiry"`
	CalendarID   string    `json:"calendar_id"`
	CalendarName string    `json:"calendar_name"`
	Status       string    `json:"status"`
	UpdatedAt    time.Time `json:"updated_at"`
}

const (
	SyncCreate = "create"
	SyncUpdate = "update"
	SyncDelete = "delete"

	SyncPending = "pending"
	SyncDone    = "done"
	SyncFailed  = "failed"
)

type SyncRow struct {
	ID            int64     `json:"id"`
	BookingID     int64     `json:"booking_id"`
	SpecialistID  int64     `json:"specialist_id"`
	Action        string    `json:"action"`
	GoogleEventID string    `json:"google_event_id,omitempty"`
	Status        string    `json:"status"`
	Attempts      int       `json:"attempts"`
	MaxAttempts   int       `json:"max_attempts"`
	NextRunAt     time.Time `json:"next_run_at"`
	LastError     string    `json:"last_error,omitempty"`
	Note          string    `json:"note,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

const (
	WebhookReceived = "received"
	WebhookRejected = "rejected"
)

type WebhookLog struct {
	ID            int64             `json:"id"`
	CorrelationID string            `json:"correlation_id"`
	Source        string            `json:"source"`
	EventType     string            `json:"event_type"`
	Headers       map[string]string `json:"headers"`
	Payload       string            `json:"payload,omitempty"`
	RemoteAddr    string            `json:"remote_addr"`
	Status        string            `json:"status"`
	CreatedAt     time.Time         `json:"created_at"`
}

type WebhookFilter struct {
	Source string
	Status string
	From   time.Time
	To     time.Time
	Limit  int
	Offset int
}

type AuditEvent struct {
	ID        int64          `json:"id"`
	EventType string         `json:"event_type"`
	Actor     string         `json:"actor"`
	Metadata  map[string]any `json:"metadata"`
	CreatedAt time.Time      `json:"created_at"`
}
