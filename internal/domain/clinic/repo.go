package clinic

import (
	"context"

	"github.com/google/uuid"
)

type PatientRepository interface {
	Create(ctx context.Context, p *Patient) error
	GetByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	Update(ctx context.Context, p *Patient) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, opts ListOptions) ([]*Patient, int, error)
}

type ServiceRepository interface {
	Create(ctx context.Context, s *MedicalService) error
	GetByID(ctx context.Context, id uuid.UUID) (*MedicalService, error)
	Update(ctx context.Context, s *MedicalService) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, opts ListOptions) ([]*MedicalService, int, error)
}

type ReservationRepository interface {
	Create(ctx context.Context, r *Reservation) error
	GetByID(ctx context.Context, id uuid.UUID) (*Reservation, error)
	Update(ctx context.Context, r *Reservation) error
	Delete(ctx context.Context, id uuid.UUID) error
	Search(ctx context.Context, f ReservationFilter, opts ListOptions) ([]*Reservation, int, error)
	// ListByPatient returns a patient's reservations, latest date first.
	ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*Reservation, error)
	CountByPatient(ctx context.Context, patientID uuid.UUID) (int, error)
	CountByService(ctx context.Context, serviceID uuid.UUID) (int, error)
}

// sort keys accepted by each collection, mapped to their column.
var (
	patientSorts = map[string]string{
		"created_at": "created_at", "name": "name", "age": "age", "email": "email",
	}
	serviceSorts = map[string]string{
		"created_at": "created_at", "name": "name", "price": "price",
	}
	reservationSorts = map[string]string{
		"created_at": "created_at", "date": "date", "status": "status",
	}
)

// parseSort resolves a sort key against the allowed set. The empty key means
// creation order ascending.
func parseSort(key string, allowed map[string]string) (col string, desc bool, err error) {
	if key == "" {
		return "created_at", false, nil
	}
	if key[0] == '-' {
		desc = true
		key = key[1:]
	}
	col, ok := allowed[key]
	if !ok {
		return "", false, invalid("sort", "unknown sort key %q", key)
	}
	return col, desc, nil
}
