package clinic

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/clinicdash/clinic/internal/calendar"
)

// Change topics and actions published after every successful mutation.
const (
	TopicPatients     = "patients"
	TopicServices     = "services"
	TopicReservations = "reservations"

	ActionCreated     = "created"
	ActionUpdated     = "updated"
	ActionRescheduled = "rescheduled"
	ActionDeleted     = "deleted"
)

// Change describes a committed mutation.
type Change struct {
	Topic  string
	Action string
	ID     uuid.UUID
	At     time.Time
}

// Notifier receives committed changes so views can refresh.
type Notifier interface {
	Notify(ctx context.Context, ch Change)
}

type NotifierFunc func(ctx context.Context, ch Change)

func (f NotifierFunc) Notify(ctx context.Context, ch Change) { f(ctx, ch) }

// Notifiers fans a change out to several notifiers in order.
func Notifiers(ns ...Notifier) Notifier {
	return NotifierFunc(func(ctx context.Context, ch Change) {
		for _, n := range ns {
			if n != nil {
				n.Notify(ctx, ch)
			}
		}
	})
}

// Transactor groups repository calls into one unit of work.
type Transactor interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type directTx struct{}

func (directTx) InTx(ctx context.Context, fn func(ctx context.Context) error) error { return fn(ctx) }

type Service struct {
	patients     PatientRepository
	services     ServiceRepository
	reservations ReservationRepository
	tx           Transactor
	notifier     Notifier
	logger       zerolog.Logger
	now          func() time.Time
}

func NewService(p PatientRepository, s ServiceRepository, r ReservationRepository, logger zerolog.Logger) *Service {
	return &Service{
		patients:     p,
		services:     s,
		reservations: r,
		tx:           directTx{},
		logger:       logger.With().Str("component", "clinic").Logger(),
		now:          func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) SetNotifier(n Notifier)     { s.notifier = n }
func (s *Service) SetTransactor(t Transactor) { s.tx = t }
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

func (s *Service) Now() time.Time { return s.now() }

func (s *Service) publish(ctx context.Context, topic, action string, id uuid.UUID) {
	s.logger.Info().Str("topic", topic).Str("action", action).Str("id", id.String()).Msg("clinic change")
	if s.notifier != nil {
		s.notifier.Notify(ctx, Change{Topic: topic, Action: action, ID: id, At: s.now()})
	}
}

// -- Patients --

func (s *Service) CreatePatient(ctx context.Context, in PatientInput) (*Patient, error) {
	p := &Patient{}
	if err := applyPatient(p, in, true); err != nil {
		return nil, err
	}
	if err := s.patients.Create(ctx, p); err != nil {
		return nil, fmt.Errorf("create patient: %w", err)
	}
	s.publish(ctx, TopicPatients, ActionCreated, p.ID)
	return p, nil
}

func (s *Service) GetPatient(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return s.patients.GetByID(ctx, id)
}

// GetPatientDetail returns the patient with reservations newest first.
func (s *Service) GetPatientDetail(ctx context.Context, id uuid.UUID) (*PatientDetail, error) {
	p, err := s.patients.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	res, err := s.reservations.ListByPatient(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list patient reservations: %w", err)
	}
	if res == nil {
		res = []*Reservation{}
	}
	return &PatientDetail{Patient: p, Reservations: res}, nil
}

func (s *Service) ListPatients(ctx context.Context, opts ListOptions) ([]*Patient, int, error) {
	return s.patients.List(ctx, opts)
}

func (s *Service) UpdatePatient(ctx context.Context, id uuid.UUID, in PatientInput) (*Patient, error) {
	p, err := s.patients.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := applyPatient(p, in, false); err != nil {
		return nil, err
	}
	if err := s.patients.Update(ctx, p); err != nil {
		return nil, fmt.Errorf("update patient: %w", err)
	}
	s.publish(ctx, TopicPatients, ActionUpdated, p.ID)
	return p, nil
}

// DeletePatient removes a patient that no reservation references.
func (s *Service) DeletePatient(ctx context.Context, id uuid.UUID) error {
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		if _, err := s.patients.GetByID(ctx, id); err != nil {
			return err
		}
		n, err := s.reservations.CountByPatient(ctx, id)
		if err != nil {
			return fmt.Errorf("count patient reservations: %w", err)
		}
		if n > 0 {
			return &ReferentialIntegrityError{Entity: "patient", ID: id.String(), Dependents: n}
		}
		return s.patients.Delete(ctx, id)
	})
	if err != nil {
		return err
	}
	s.publish(ctx, TopicPatients, ActionDeleted, id)
	return nil
}

// -- Services --

func (s *Service) CreateService(ctx context.Context, in ServiceInput) (*MedicalService, error) {
	svc := &MedicalService{}
	if err := applyService(svc, in, true); err != nil {
		return nil, err
	}
	if err := s.services.Create(ctx, svc); err != nil {
		return nil, fmt.Errorf("create service: %w", err)
	}
	s.publish(ctx, TopicServices, ActionCreated, svc.ID)
	return svc, nil
}

func (s *Service) GetService(ctx context.Context, id uuid.UUID) (*MedicalService, error) {
	return s.services.GetByID(ctx, id)
}

func (s *Service) ListServices(ctx context.Context, opts ListOptions) ([]*MedicalService, int, error) {
	return s.services.List(ctx, opts)
}

func (s *Service) UpdateService(ctx context.Context, id uuid.UUID, in ServiceInput) (*MedicalService, error) {
	svc, err := s.services.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := applyService(svc, in, false); err != nil {
		return nil, err
	}
	if err := s.services.Update(ctx, svc); err != nil {
		return nil, fmt.Errorf("update service: %w", err)
	}
	s.publish(ctx, TopicServices, ActionUpdated, svc.ID)
	return svc, nil
}

func (s *Service) DeleteService(ctx context.Context, id uuid.UUID) error {
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		if _, err := s.services.GetByID(ctx, id); err != nil {
			return err
		}
		n, err := s.reservations.CountByService(ctx, id)
		if err != nil {
			return fmt.Errorf("count service reservations: %w", err)
		}
		if n > 0 {
			return &ReferentialIntegrityError{Entity: "service", ID: id.String(), Dependents: n}
		}
		return s.services.Delete(ctx, id)
	})
	if err != nil {
		return err
	}
	s.publish(ctx, TopicServices, ActionDeleted, id)
	return nil
}

// -- Reservations --

// checkRefs verifies the referenced patient and service exist.
func (s *Service) checkRefs(ctx context.Context, r *Reservation) error {
	if _, err := s.patients.GetByID(ctx, r.PatientID); err != nil {
		return err
	}
	if _, err := s.services.GetByID(ctx, r.ServiceID); err != nil {
		return err
	}
	return nil
}

// CreateReservation validates in, checks the referenced patient and service
// and stores a new reservation. Status defaults to PENDING and origin to
// SYSTEM.
func (s *Service) CreateReservation(ctx context.Context, in ReservationInput) (*Reservation, error) {
	r := &Reservation{}
	if err := applyReservation(r, in, true); err != nil {
		return nil, err
	}
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		if err := s.checkRefs(ctx, r); err != nil {
			return err
		}
		return s.reservations.Create(ctx, r)
	})
	if err != nil {
		return nil, err
	}
	s.publish(ctx, TopicReservations, ActionCreated, r.ID)
	return r, nil
}

func (s *Service) GetReservation(ctx context.Context, id uuid.UUID) (*Reservation, error) {
	return s.reservations.GetByID(ctx, id)
}

func (s *Service) ListReservations(ctx context.Context, f ReservationFilter, opts ListOptions) ([]*Reservation, int, error) {
	return s.reservations.Search(ctx, f, opts)
}

// UpdateReservation applies the provided fields of patch and leaves the rest
// untouched.
func (s *Service) UpdateReservation(ctx context.Context, id uuid.UUID, patch ReservationInput) (*Reservation, error) {
	var r *Reservation
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		var err error
		if r, err = s.reservations.GetByID(ctx, id); err != nil {
			return err
		}
		if err := applyReservation(r, patch, false); err != nil {
			return err
		}
		if patch.PatientID != nil || patch.ServiceID != nil {
			if err := s.checkRefs(ctx, r); err != nil {
				return err
			}
		}
		return s.reservations.Update(ctx, r)
	})
	if err != nil {
		return nil, err
	}
	s.publish(ctx, TopicReservations, ActionUpdated, r.ID)
	return r, nil
}

// RescheduleReservation moves a reservation to another day; every other
// field is preserved.
func (s *Service) RescheduleReservation(ctx context.Context, id uuid.UUID, date time.Time) (*Reservation, error) {
	if date.IsZero() {
		return nil, invalid("date", "is required")
	}
	r, err := s.reservations.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	r.Date = calendar.Day(date)
	if err := s.reservations.Update(ctx, r); err != nil {
		return nil, fmt.Errorf("reschedule reservation: %w", err)
	}
	s.publish(ctx, TopicReservations, ActionRescheduled, r.ID)
	return r, nil
}

func (s *Service) DeleteReservation(ctx context.Context, id uuid.UUID) error {
	if err := s.reservations.Delete(ctx, id); err != nil {
		return err
	}
	s.publish(ctx, TopicReservations, ActionDeleted, id)
	return nil
}

// Snapshot loads all three collections concurrently, each in creation order.
func (s *Service) Snapshot(ctx context.Context) (*Snapshot, error) {
	var snap Snapshot
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		items, _, err := s.patients.List(gctx, ListOptions{})
		snap.Patients = items
		return err
	})
	g.Go(func() error {
		items, _, err := s.services.List(gctx, ListOptions{})
		snap.Services = items
		return err
	})
	g.Go(func() error {
		items, _, err := s.reservations.Search(gctx, ReservationFilter{}, ListOptions{})
		snap.Reservations = items
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	return &snap, nil
}
