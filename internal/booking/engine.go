// Package booking commits validated booking details into appointments,
// guarding against duplicate webhook deliveries and double-booked slots.
package booking

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/atendeai/booking-engine/internal/availability"
	"github.com/atendeai/booking-engine/internal/directory"
	"github.com/atendeai/booking-engine/internal/events"
	"github.com/atendeai/booking-engine/internal/observability/metrics"
	"github.com/atendeai/booking-engine/pkg/logging"
)

// Outcome describes how a commit request resolved.
type Outcome string

const (
	OutcomeCreated     Outcome = "created"
	OutcomeRescheduled Outcome = "rescheduled"
	OutcomeDuplicate   Outcome = "duplicate"
	OutcomeConflict    Outcome = "conflict"
)

// CommitRequest carries everything needed to book one appointment.
type CommitRequest struct {
	CompanyID        uuid.UUID
	ConversationID   uuid.UUID
	ClientName       string
	ClientPhone      string
	ProfessionalID   uuid.UUID
	ProfessionalName string
	ServiceID        uuid.UUID
	ServiceName      string
	Date             string // "2006-01-02"
	StartTime        string // "HH:MM"
	DurationMinutes  int
	PriceCents       int
}

// Result is the outcome of a commit plus the appointment it resolved to.
type Result struct {
	Outcome     Outcome
	Appointment *directory.Appointment
}

// EngineConfig tunes commit behaviour.
type EngineConfig struct {
	// IdempotencyWindow is how long a repeated commit for the same
	// conversation resolves to the already-created appointment.
	IdempotencyWindow time.Duration
	// AllowConflicting books a different client into an occupied slot
	// instead of rejecting, leaving resolution to the staff.
	AllowConflicting bool
}

func (c *EngineConfig) applyDefaults() {
	if c.IdempotencyWindow <= 0 {
		c.IdempotencyWindow = 5 * time.Minute
	}
}

// Engine serializes commits per (professional, date) and applies the
// idempotency, overlap and reschedule rules.
type Engine struct {
	store   directory.Store
	redis   redis.UniversalClient
	bus     events.Bus
	cfg     EngineConfig
	logger  *logging.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewEngine creates a commit engine. The redis client is optional; without
// it idempotency relies on the store lookup alone.
func NewEngine(store directory.Store, rdb redis.UniversalClient, bus events.Bus, cfg EngineConfig, logger *logging.Logger, m *metrics.Metrics) *Engine {
	if store == nil {
		panic("booking: store required")
	}
	cfg.applyDefaults()
	if logger == nil {
		logger = logging.Default()
	}
	return &Engine{
		store:   store,
		redis:   rdb,
		bus:     bus,
		cfg:     cfg,
		logger:  logger,
		metrics: m,
		tracer:  otel.Tracer("booking"),
		locks:   make(map[string]*sync.Mutex),
	}
}

// Commit books the requested slot. Repeated deliveries inside the
// idempotency window return the existing appointment; a same-phone client
// holding the slot gets rescheduled rather than duplicated.
func (e *Engine) Commit(ctx context.Context, req CommitRequest) (*Result, error) {
	ctx, span := e.tracer.Start(ctx, "booking.commit",
		trace.WithAttributes(
			attribute.String("professional", req.ProfessionalName),
			attribute.String("date", req.Date),
			attribute.String("time", req.StartTime),
		))
	defer span.End()

	if req.DurationMinutes <= 0 {
		req.DurationMinutes = directory.DefaultDurationMinutes
	}
	start, err := availability.ParseClock(req.StartTime)
	if err != nil {
		return nil, fmt.Errorf("booking: %w", err)
	}
	requested := availability.Interval{Start: start, End: start + req.DurationMinutes}
	conversationTag := fmt.Sprintf("conv:%s", req.ConversationID)

	// Claim the conversation key once per commit, then check the store.
	// A held claim with no persisted row means another delivery is
	// mid-flight (possibly in another process), so this one skips.
	claimed := e.claimConversation(ctx, conversationTag)
	if dup, err := e.recentCommit(ctx, req.CompanyID, conversationTag); err != nil {
		return nil, err
	} else if dup != nil {
		e.metrics.IncBooking(string(OutcomeDuplicate))
		return &Result{Outcome: OutcomeDuplicate, Appointment: dup}, nil
	}
	if !claimed {
		e.logger.Info("skipping commit, conversation claim held elsewhere", "tag", conversationTag)
		e.metrics.IncBooking(string(OutcomeDuplicate))
		return &Result{Outcome: OutcomeDuplicate}, nil
	}

	unlock := e.lockSlot(req.ProfessionalID, req.Date)
	defer unlock()

	// Re-check under the lock: a racing duplicate may have just committed.
	if dup, err := e.recentCommit(ctx, req.CompanyID, conversationTag); err != nil {
		return nil, err
	} else if dup != nil {
		e.metrics.IncBooking(string(OutcomeDuplicate))
		return &Result{Outcome: OutcomeDuplicate, Appointment: dup}, nil
	}

	existing, err := e.store.AppointmentsForRange(ctx, req.ProfessionalID, req.Date, req.Date)
	if err != nil {
		return nil, fmt.Errorf("booking: load day: %w", err)
	}

	// Scan every overlap before deciding: a same-phone appointment anywhere
	// in the day wins and becomes a reschedule, regardless of which
	// different-client conflicts precede it in store order.
	phone := directory.CanonicalPhone(req.ClientPhone)
	var conflicting *directory.Appointment
	for i := range existing {
		appt := &existing[i]
		if appt.Status == directory.StatusCancelled {
			continue
		}
		occupiedStart, err := availability.ParseClock(appt.StartTime)
		if err != nil {
			continue
		}
		dur := appt.DurationMinutes
		if dur <= 0 {
			dur = directory.DefaultDurationMinutes
		}
		occupied := availability.Interval{Start: occupiedStart, End: occupiedStart + dur}
		if !requested.Overlaps(occupied) {
			continue
		}

		if directory.CanonicalPhone(appt.ClientPhone) == phone {
			// Same client moving within the day: update in place.
			notes := appendTag(appt.Notes, conversationTag)
			if err := e.store.RescheduleAppointment(ctx, appt.ID, req.Date, req.StartTime, req.DurationMinutes, notes); err != nil {
				return nil, fmt.Errorf("booking: reschedule: %w", err)
			}
			appt.Date = req.Date
			appt.StartTime = req.StartTime
			appt.DurationMinutes = req.DurationMinutes
			appt.Notes = notes
			e.metrics.IncBooking(string(OutcomeRescheduled))
			e.logger.Info("rescheduled appointment",
				"appointment_id", appt.ID, "date", req.Date, "time", req.StartTime)
			return &Result{Outcome: OutcomeRescheduled, Appointment: appt}, nil
		}
		if conflicting == nil {
			conflicting = appt
		}
	}
	if conflicting != nil {
		if !e.cfg.AllowConflicting {
			e.metrics.IncBooking(string(OutcomeConflict))
			return &Result{Outcome: OutcomeConflict, Appointment: conflicting}, nil
		}
		e.logger.Warn("slot already occupied, booking anyway",
			"professional", req.ProfessionalName, "date", req.Date,
			"time", req.StartTime, "occupied_by", conflicting.ClientName)
	}

	client, err := e.store.FindOrCreateClient(ctx, req.CompanyID, req.ClientPhone, req.ClientName)
	if err != nil {
		return nil, fmt.Errorf("booking: resolve client: %w", err)
	}

	appt := &directory.Appointment{
		ID:              uuid.New(),
		CompanyID:       req.CompanyID,
		ProfessionalID:  req.ProfessionalID,
		ServiceID:       req.ServiceID,
		ClientName:      client.Name,
		ClientPhone:     client.Phone,
		Date:            req.Date,
		StartTime:       req.StartTime,
		DurationMinutes: req.DurationMinutes,
		Status:          directory.StatusPending,
		PriceCents:      req.PriceCents,
		Notes:           conversationTag,
	}
	if req.ClientName != "" {
		appt.ClientName = req.ClientName
	}
	if err := e.store.CreateAppointment(ctx, appt); err != nil {
		return nil, fmt.Errorf("booking: create: %w", err)
	}
	e.metrics.IncBooking(string(OutcomeCreated))
	e.logger.Info("created appointment",
		"appointment_id", appt.ID, "professional", req.ProfessionalName,
		"date", req.Date, "time", req.StartTime)

	if e.bus != nil {
		e.bus.Publish(events.Event{
			Type: events.EventTypeBookingCreated,
			Appointment: events.AppointmentPayload{
				ID:               appt.ID.String(),
				ClientName:       appt.ClientName,
				ServiceName:      req.ServiceName,
				ProfessionalName: req.ProfessionalName,
				Date:             appt.Date,
				Time:             appt.StartTime,
			},
		})
	}
	return &Result{Outcome: OutcomeCreated, Appointment: appt}, nil
}

// claimConversation takes the SET NX EX claim on the conversation key.
// It reports true when this commit owns the window, and degrades to true
// (store check only) when redis is absent or unreachable.
func (e *Engine) claimConversation(ctx context.Context, conversationTag string) bool {
	if e.redis == nil {
		return true
	}
	key := "booking:" + conversationTag
	ok, err := e.redis.SetNX(ctx, key, "1", e.cfg.IdempotencyWindow).Result()
	if err != nil {
		e.logger.Warn("idempotency claim failed, falling back to store check", "error", err)
		return true
	}
	return ok
}

// recentCommit looks the store up for a commit of the same conversation
// inside the idempotency window.
func (e *Engine) recentCommit(ctx context.Context, companyID uuid.UUID, conversationTag string) (*directory.Appointment, error) {
	appt, err := e.store.RecentPendingByConversation(ctx, companyID, conversationTag, e.cfg.IdempotencyWindow)
	if err != nil {
		return nil, fmt.Errorf("booking: duplicate check: %w", err)
	}
	return appt, nil
}

func (e *Engine) lockSlot(professionalID uuid.UUID, date string) func() {
	key := professionalID.String() + "|" + date
	e.mu.Lock()
	lock, ok := e.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		e.locks[key] = lock
	}
	e.mu.Unlock()
	lock.Lock()
	return lock.Unlock
}

func appendTag(notes, tag string) string {
	if notes == "" {
		return tag
	}
	return notes + " " + tag
}
