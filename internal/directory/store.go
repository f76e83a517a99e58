package directory

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrInstanceNotFound indicates the webhook named an unknown channel instance.
var ErrInstanceNotFound = errors.New("directory: instance not found")

// Store is the directory surface the booking engine depends on.
// Professionals, services and the status vocabulary are owned by the
// directory; the engine reads them and writes appointments.
type Store interface {
	GetInstanceByName(ctx context.Context, name string) (*Instance, error)
	ListActiveProfessionals(ctx context.Context, companyID uuid.UUID) ([]Professional, error)
	ListActiveServices(ctx context.Context, companyID uuid.UUID) ([]Service, error)

	// AppointmentsForRange returns non-cancelled appointments for one
	// professional with fromDate <= date <= toDate (civil dates).
	AppointmentsForRange(ctx context.Context, professionalID uuid.UUID, fromDate, toDate string) ([]Appointment, error)

	CreateAppointment(ctx context.Context, appt *Appointment) error
	RescheduleAppointment(ctx context.Context, id uuid.UUID, date, startTime string, durationMinutes int, notes string) error

	// RecentPendingByConversation finds a non-cancelled appointment whose
	// notes reference the conversation tag and that was created within the
	// given window. Used for idempotent commit retries.
	RecentPendingByConversation(ctx context.Context, companyID uuid.UUID, conversationTag string, within time.Duration) (*Appointment, error)

	// FindOrCreateClient resolves a client by canonical phone digits,
	// creating one with the given name when none exists.
	FindOrCreateClient(ctx context.Context, companyID uuid.UUID, phone, name string) (*Client, error)
}
