package directory

import (
	"time"

	"github.com/google/uuid"
)

// Status is the appointment lifecycle vocabulary owned by the directory.
// The booking engine only ever creates appointments in StatusPending.
type Status string

const (
	StatusPending    Status = "Pending"
	StatusConfirmed  Status = "Confirmed"
	StatusCancelled  Status = "Cancelled"
	StatusNoShow     Status = "NoShow"
	StatusInProgress Status = "InProgress"
	StatusDone       Status = "Done"
)

// DefaultDurationMinutes applies when a service has no duration configured.
const DefaultDurationMinutes = 30

// Instance is a messaging channel instance bound to a tenant, carrying
// the tenant's dialogue settings.
type Instance struct {
	ID          uuid.UUID
	Name        string
	CompanyID   uuid.UUID
	Persona     string
	Model       string
	Temperature float64
}

// Professional is a bookable staff member. Read-only input to the engine.
type Professional struct {
	ID        uuid.UUID
	CompanyID uuid.UUID
	Name      string
	Active    bool
	WorkDays  []time.Weekday
	WorkStart string // "HH:MM"
	WorkEnd   string // "HH:MM"
}

// WorksOn reports whether the professional works on the given weekday.
func (p Professional) WorksOn(day time.Weekday) bool {
	for _, d := range p.WorkDays {
		if d == day {
			return true
		}
	}
	return false
}

// Service is a bookable offering. Read-only input to the engine.
type Service struct {
	ID              uuid.UUID
	CompanyID       uuid.UUID
	Name            string
	Active          bool
	DurationMinutes int
	PriceCents      int
}

// Client is an end customer, keyed by canonical digits-only phone.
type Client struct {
	ID        uuid.UUID
	CompanyID uuid.UUID
	Name      string
	Phone     string
	CreatedAt time.Time
}

// Appointment is a committed booking. Dates are civil "2006-01-02",
// times are "HH:MM"; duration in minutes is authoritative for the
// occupied interval end.
type Appointment struct {
	ID              uuid.UUID
	CompanyID       uuid.UUID
	ProfessionalID  uuid.UUID
	ServiceID       uuid.UUID
	ClientName      string
	ClientPhone     string
	Date            string
	StartTime       string
	DurationMinutes int
	Status          Status
	PriceCents      int
	Notes           string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}
