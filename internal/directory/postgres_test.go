package directory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	pgxmock "github.com/pashagolub/pgxmock/v4"
)

func newMockStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	t.Cleanup(mock.Close)
	return NewPostgresStore(mock), mock
}

func TestGetInstanceByName(t *testing.T) {
	store, mock := newMockStore(t)
	instanceID := uuid.New()
	companyID := uuid.New()

	mock.ExpectQuery("SELECT id, name, company_id").
		WithArgs("clinic-a").
		WillReturnRows(pgxmock.NewRows([]string{"id", "name", "company_id", "persona", "model", "temperature"}).
			AddRow(instanceID, "clinic-a", companyID, "persona", "gpt-4o-mini", 0.7))

	inst, err := store.GetInstanceByName(context.Background(), "clinic-a")
	if err != nil {
		t.Fatalf("GetInstanceByName: %v", err)
	}
	if inst.CompanyID != companyID {
		t.Errorf("company id = %s, want %s", inst.CompanyID, companyID)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestGetInstanceByNameNotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("SELECT id, name, company_id").
		WithArgs("missing").
		WillReturnRows(pgxmock.NewRows([]string{"id", "name", "company_id", "persona", "model", "temperature"}))

	_, err := store.GetInstanceByName(context.Background(), "missing")
	if !errors.Is(err, ErrInstanceNotFound) {
		t.Errorf("err = %v, want ErrInstanceNotFound", err)
	}
}

func TestListActiveProfessionalsScansWorkDays(t *testing.T) {
	store, mock := newMockStore(t)
	companyID := uuid.New()
	profID := uuid.New()

	mock.ExpectQuery("SELECT id, company_id, name, active, work_days").
		WithArgs(companyID).
		WillReturnRows(pgxmock.NewRows([]string{"id", "company_id", "name", "active", "work_days", "work_start", "work_end"}).
			AddRow(profID, companyID, "Ana", true, []int32{2, 4, 6}, "09:00", "18:00"))

	pros, err := store.ListActiveProfessionals(context.Background(), companyID)
	if err != nil {
		t.Fatalf("ListActiveProfessionals: %v", err)
	}
	if len(pros) != 1 {
		t.Fatalf("got %d professionals", len(pros))
	}
	if !pros[0].WorksOn(time.Saturday) || pros[0].WorksOn(time.Sunday) {
		t.Errorf("work days scanned wrong: %v", pros[0].WorkDays)
	}
}

func TestCreateAppointment(t *testing.T) {
	store, mock := newMockStore(t)
	appt := &Appointment{
		CompanyID:       uuid.New(),
		ProfessionalID:  uuid.New(),
		ServiceID:       uuid.New(),
		ClientName:      "Carlos",
		ClientPhone:     "5511999998888",
		Date:            "2026-02-07",
		StartTime:       "09:00",
		DurationMinutes: 30,
		PriceCents:      5000,
		Notes:           "conv:abc",
	}

	mock.ExpectExec("INSERT INTO appointments").
		WithArgs(pgxmock.AnyArg(), appt.CompanyID, appt.ProfessionalID, appt.ServiceID,
			"Carlos", "5511999998888", "2026-02-07", "09:00", 30, "Pending", 5000, "conv:abc",
			pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	if err := store.CreateAppointment(context.Background(), appt); err != nil {
		t.Fatalf("CreateAppointment: %v", err)
	}
	if appt.ID == uuid.Nil {
		t.Error("appointment id was not assigned")
	}
	if appt.Status != StatusPending {
		t.Errorf("status = %s, want Pending", appt.Status)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestRescheduleAppointmentMissingRow(t *testing.T) {
	store, mock := newMockStore(t)
	id := uuid.New()

	mock.ExpectExec("UPDATE appointments").
		WithArgs("2026-02-07", "10:00", 30, "conv:abc", pgxmock.AnyArg(), id).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := store.RescheduleAppointment(context.Background(), id, "2026-02-07", "10:00", 30, "conv:abc")
	if err == nil {
		t.Fatal("expected error for missing appointment")
	}
}

func TestFindOrCreateClientCanonicalizesPhone(t *testing.T) {
	store, mock := newMockStore(t)
	companyID := uuid.New()

	mock.ExpectQuery("SELECT id, company_id, name, phone").
		WithArgs(companyID, "5511999998888").
		WillReturnRows(pgxmock.NewRows([]string{"id", "company_id", "name", "phone", "created_at"}))
	mock.ExpectExec("INSERT INTO clients").
		WithArgs(pgxmock.AnyArg(), companyID, "Carlos", "5511999998888", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	client, err := store.FindOrCreateClient(context.Background(), companyID, "+55 (11) 99999-8888", "Carlos")
	if err != nil {
		t.Fatalf("FindOrCreateClient: %v", err)
	}
	if client.Phone != "5511999998888" {
		t.Errorf("phone = %q, want digits only", client.Phone)
	}
}

func TestCanonicalPhone(t *testing.T) {
	if got := CanonicalPhone("+55 (11) 99999-8888"); got != "5511999998888" {
		t.Errorf("CanonicalPhone = %q", got)
	}
	if got := CanonicalPhone("sem numero"); got != "" {
		t.Errorf("CanonicalPhone = %q, want empty", got)
	}
}
