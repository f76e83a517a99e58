package directory

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// PgxPool is the subset of pgxpool.Pool the store needs; pgxmock
// satisfies it in tests.
type PgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore persists directory entities in Postgres.
type PostgresStore struct {
	pool PgxPool
}

// NewPostgresStore initializes a store backed by pgx.
func NewPostgresStore(pool PgxPool) *PostgresStore {
	if pool == nil {
		panic("directory: pgx pool required")
	}
	return &PostgresStore{pool: pool}
}

var _ Store = (*PostgresStore)(nil)

// GetInstanceByName loads a channel instance and its tenant settings.
func (s *PostgresStore) GetInstanceByName(ctx context.Context, name string) (*Instance, error) {
	query := `
		SELECT id, name, company_id, COALESCE(persona, ''), COALESCE(model, ''), COALESCE(temperature, 0.7)
		FROM instances
		WHERE name = $1
	`
	var inst Instance
	if err := s.pool.QueryRow(ctx, query, name).Scan(
		&inst.ID, &inst.Name, &inst.CompanyID, &inst.Persona, &inst.Model, &inst.Temperature,
	); err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrInstanceNotFound
		}
		return nil, fmt.Errorf("directory: select instance: %w", err)
	}
	return &inst, nil
}

// ListActiveProfessionals returns the tenant's active professionals.
func (s *PostgresStore) ListActiveProfessionals(ctx context.Context, companyID uuid.UUID) ([]Professional, error) {
	query := `
		SELECT id, company_id, name, active, work_days, work_start, work_end
		FROM professionals
		WHERE company_id = $1 AND active = true
		ORDER BY name
	`
	rows, err := s.pool.Query(ctx, query, companyID)
	if err != nil {
		return nil, fmt.Errorf("directory: list professionals: %w", err)
	}
	defer rows.Close()

	var pros []Professional
	for rows.Next() {
		var p Professional
		var days []int32
		if err := rows.Scan(&p.ID, &p.CompanyID, &p.Name, &p.Active, &days, &p.WorkStart, &p.WorkEnd); err != nil {
			return nil, fmt.Errorf("directory: scan professional: %w", err)
		}
		for _, d := range days {
			p.WorkDays = append(p.WorkDays, time.Weekday(d))
		}
		pros = append(pros, p)
	}
	return pros, rows.Err()
}

// ListActiveServices returns the tenant's active services.
func (s *PostgresStore) ListActiveServices(ctx context.Context, companyID uuid.UUID) ([]Service, error) {
	query := `
		SELECT id, company_id, name, active, duration_minutes, price_cents
		FROM services
		WHERE company_id = $1 AND active = true
		ORDER BY name
	`
	rows, err := s.pool.Query(ctx, query, companyID)
	if err != nil {
		return nil, fmt.Errorf("directory: list services: %w", err)
	}
	defer rows.Close()

	var svcs []Service
	for rows.Next() {
		var svc Service
		if err := rows.Scan(&svc.ID, &svc.CompanyID, &svc.Name, &svc.Active, &svc.DurationMinutes, &svc.PriceCents); err != nil {
			return nil, fmt.Errorf("directory: scan service: %w", err)
		}
		svcs = append(svcs, svc)
	}
	return svcs, rows.Err()
}

// AppointmentsForRange returns non-cancelled appointments for a professional
// within [fromDate, toDate].
func (s *PostgresStore) AppointmentsForRange(ctx context.Context, professionalID uuid.UUID, fromDate, toDate string) ([]Appointment, error) {
	query := `
		SELECT id, company_id, professional_id, service_id, client_name, client_phone,
		       date, start_time, duration_minutes, status, price_cents, COALESCE(notes, ''),
		       created_at, updated_at
		FROM appointments
		WHERE professional_id = $1 AND date >= $2 AND date <= $3 AND status <> $4
		ORDER BY date, start_time
	`
	rows, err := s.pool.Query(ctx, query, professionalID, fromDate, toDate, string(StatusCancelled))
	if err != nil {
		return nil, fmt.Errorf("directory: list appointments: %w", err)
	}
	defer rows.Close()

	var appts []Appointment
	for rows.Next() {
		appt, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		appts = append(appts, *appt)
	}
	return appts, rows.Err()
}

// CreateAppointment inserts a new appointment row.
func (s *PostgresStore) CreateAppointment(ctx context.Context, appt *Appointment) error {
	if appt.ID == uuid.Nil {
		appt.ID = uuid.New()
	}
	if appt.Status == "" {
		appt.Status = StatusPending
	}
	now := time.Now().UTC()
	appt.CreatedAt = now
	appt.UpdatedAt = now

	query := `
		INSERT INTO appointments (
			id, company_id, professional_id, service_id, client_name, client_phone,
			date, start_time, duration_minutes, status, price_cents, notes,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`
	if _, err := s.pool.Exec(ctx, query,
		appt.ID, appt.CompanyID, appt.ProfessionalID, appt.ServiceID,
		appt.ClientName, appt.ClientPhone, appt.Date, appt.StartTime,
		appt.DurationMinutes, string(appt.Status), appt.PriceCents, appt.Notes,
		appt.CreatedAt, appt.UpdatedAt,
	); err != nil {
		return fmt.Errorf("directory: insert appointment: %w", err)
	}
	return nil
}

// RescheduleAppointment moves an existing appointment in place.
func (s *PostgresStore) RescheduleAppointment(ctx context.Context, id uuid.UUID, date, startTime string, durationMinutes int, notes string) error {
	query := `
		UPDATE appointments
		SET date = $1, start_time = $2, duration_minutes = $3, notes = $4, updated_at = $5
		WHERE id = $6
	`
	ct, err := s.pool.Exec(ctx, query, date, startTime, durationMinutes, notes, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("directory: reschedule appointment: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("directory: reschedule appointment: no row for %s", id)
	}
	return nil
}

// RecentPendingByConversation finds a recent non-cancelled appointment tagged
// with the conversation in its notes.
func (s *PostgresStore) RecentPendingByConversation(ctx context.Context, companyID uuid.UUID, conversationTag string, within time.Duration) (*Appointment, error) {
	cutoff := time.Now().UTC().Add(-within)
	query := `
		SELECT id, company_id, professional_id, service_id, client_name, client_phone,
		       date, start_time, duration_minutes, status, price_cents, COALESCE(notes, ''),
		       created_at, updated_at
		FROM appointments
		WHERE company_id = $1 AND notes LIKE $2 AND status <> $3 AND created_at >= $4
		ORDER BY created_at DESC
		LIMIT 1
	`
	rows, err := s.pool.Query(ctx, query, companyID, "%"+conversationTag+"%", string(StatusCancelled), cutoff)
	if err != nil {
		return nil, fmt.Errorf("directory: recent by conversation: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	return scanAppointment(rows)
}

// FindOrCreateClient resolves a client by canonical phone digits.
func (s *PostgresStore) FindOrCreateClient(ctx context.Context, companyID uuid.UUID, phone, name string) (*Client, error) {
	digits := CanonicalPhone(phone)
	if digits == "" {
		return nil, fmt.Errorf("directory: client phone required")
	}

	var client Client
	err := s.pool.QueryRow(ctx, `
		SELECT id, company_id, name, phone, created_at
		FROM clients
		WHERE company_id = $1 AND phone = $2
	`, companyID, digits).Scan(&client.ID, &client.CompanyID, &client.Name, &client.Phone, &client.CreatedAt)
	if err == nil {
		return &client, nil
	}
	if err != pgx.ErrNoRows {
		return nil, fmt.Errorf("directory: select client: %w", err)
	}

	if strings.TrimSpace(name) == "" {
		name = "Cliente " + digits
	}
	client = Client{
		ID:        uuid.New(),
		CompanyID: companyID,
		Name:      name,
		Phone:     digits,
		CreatedAt: time.Now().UTC(),
	}
	if _, err := s.pool.Exec(ctx, `
		INSERT INTO clients (id, company_id, name, phone, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (company_id, phone) DO NOTHING
	`, client.ID, client.CompanyID, client.Name, client.Phone, client.CreatedAt); err != nil {
		return nil, fmt.Errorf("directory: insert client: %w", err)
	}
	return &client, nil
}

// CanonicalPhone strips a phone number down to digits only.
func CanonicalPhone(phone string) string {
	var b strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAppointment(row rowScanner) (*Appointment, error) {
	var appt Appointment
	var status string
	if err := row.Scan(
		&appt.ID, &appt.CompanyID, &appt.ProfessionalID, &appt.ServiceID,
		&appt.ClientName, &appt.ClientPhone, &appt.Date, &appt.StartTime,
		&appt.DurationMinutes, &status, &appt.PriceCents, &appt.Notes,
		&appt.CreatedAt, &appt.UpdatedAt,
	); err != nil {
		return nil, fmt.Errorf("directory: scan appointment: %w", err)
	}
	appt.Status = Status(status)
	return &appt, nil
}
