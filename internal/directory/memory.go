package directory

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemoryStore is a map-backed Store for tests and local development.
type InMemoryStore struct {
	mu            sync.Mutex
	instances     map[string]*Instance
	professionals []Professional
	services      []Service
	clients       map[string]*Client // companyID/phone -> client
	appointments  map[uuid.UUID]*Appointment
}

// NewInMemoryStore creates an empty in-memory directory.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		instances:    make(map[string]*Instance),
		clients:      make(map[string]*Client),
		appointments: make(map[uuid.UUID]*Appointment),
	}
}

var _ Store = (*InMemoryStore)(nil)

// AddInstance registers a channel instance.
func (s *InMemoryStore) AddInstance(inst Instance) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if inst.ID == uuid.Nil {
		inst.ID = uuid.New()
	}
	s.instances[inst.Name] = &inst
}

// AddProfessional registers a professional.
func (s *InMemoryStore) AddProfessional(p Professional) Professional {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	s.professionals = append(s.professionals, p)
	return p
}

// AddService registers a service.
func (s *InMemoryStore) AddService(svc Service) Service {
	s.mu.Lock()
	defer s.mu.Unlock()
	if svc.ID == uuid.Nil {
		svc.ID = uuid.New()
	}
	s.services = append(s.services, svc)
	return svc
}

func (s *InMemoryStore) GetInstanceByName(_ context.Context, name string) (*Instance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inst, ok := s.instances[name]
	if !ok {
		return nil, ErrInstanceNotFound
	}
	copied := *inst
	return &copied, nil
}

func (s *InMemoryStore) ListActiveProfessionals(_ context.Context, companyID uuid.UUID) ([]Professional, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Professional
	for _, p := range s.professionals {
		if p.Active && p.CompanyID == companyID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *InMemoryStore) ListActiveServices(_ context.Context, companyID uuid.UUID) ([]Service, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Service
	for _, svc := range s.services {
		if svc.Active && svc.CompanyID == companyID {
			out = append(out, svc)
		}
	}
	return out, nil
}

func (s *InMemoryStore) AppointmentsForRange(_ context.Context, professionalID uuid.UUID, fromDate, toDate string) ([]Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Appointment
	for _, appt := range s.appointments {
		if appt.ProfessionalID != professionalID || appt.Status == StatusCancelled {
			continue
		}
		if appt.Date < fromDate || appt.Date > toDate {
			continue
		}
		out = append(out, *appt)
	}
	return out, nil
}

func (s *InMemoryStore) CreateAppointment(_ context.Context, appt *Appointment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if appt.ID == uuid.Nil {
		appt.ID = uuid.New()
	}
	if appt.Status == "" {
		appt.Status = StatusPending
	}
	now := time.Now().UTC()
	appt.CreatedAt = now
	appt.UpdatedAt = now
	copied := *appt
	s.appointments[appt.ID] = &copied
	return nil
}

func (s *InMemoryStore) RescheduleAppointment(_ context.Context, id uuid.UUID, date, startTime string, durationMinutes int, notes string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	appt, ok := s.appointments[id]
	if !ok {
		return fmt.Errorf("directory: reschedule appointment: no row for %s", id)
	}
	appt.Date = date
	appt.StartTime = startTime
	appt.DurationMinutes = durationMinutes
	appt.Notes = notes
	appt.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *InMemoryStore) RecentPendingByConversation(_ context.Context, companyID uuid.UUID, conversationTag string, within time.Duration) (*Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := time.Now().UTC().Add(-within)
	var latest *Appointment
	for _, appt := range s.appointments {
		if appt.CompanyID != companyID || appt.Status == StatusCancelled {
			continue
		}
		if !strings.Contains(appt.Notes, conversationTag) || appt.CreatedAt.Before(cutoff) {
			continue
		}
		if latest == nil || appt.CreatedAt.After(latest.CreatedAt) {
			latest = appt
		}
	}
	if latest == nil {
		return nil, nil
	}
	copied := *latest
	return &copied, nil
}

func (s *InMemoryStore) FindOrCreateClient(_ context.Context, companyID uuid.UUID, phone, name string) (*Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	digits := CanonicalPhone(phone)
	key := companyID.String() + "/" + digits
	if c, ok := s.clients[key]; ok {
		copied := *c
		return &copied, nil
	}
	if strings.TrimSpace(name) == "" {
		name = "Cliente " + digits
	}
	c := &Client{
		ID:        uuid.New(),
		CompanyID: companyID,
		Name:      name,
		Phone:     digits,
		CreatedAt: time.Now().UTC(),
	}
	s.clients[key] = c
	copied := *c
	return &copied, nil
}

// Appointments returns a snapshot of all stored appointments, for tests.
func (s *InMemoryStore) Appointments() []Appointment {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Appointment, 0, len(s.appointments))
	for _, appt := range s.appointments {
		out = append(out, *appt)
	}
	return out
}
