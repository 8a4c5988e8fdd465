package clinic

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/clinicdash/clinic/internal/calendar"
)

// Patient maps to the patients table.
type Patient struct {
	ID           uuid.UUID `db:"id" json:"id"`
	Name         string    `db:"name" json:"name"`
	Phone        string    `db:"phone" json:"phone"`
	Email        string    `db:"email" json:"email"`
	Age          int       `db:"age" json:"age"`
	Observations *string   `db:"observations" json:"observations,omitempty"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// MedicalService is an entry of the clinic's service catalog.
type MedicalService struct {
	ID          uuid.UUID `db:"id" json:"id"`
	Name        string    `db:"name" json:"name"`
	Price       float64   `db:"price" json:"price"`
	Description *string   `db:"description" json:"description,omitempty"`
	Color       string    `db:"color" json:"color"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusConfirmed Status = "CONFIRMED"
	StatusCompleted Status = "COMPLETED"
	StatusCancelled Status = "CANCELLED"
)

// Statuses lists every reservation status in display order.
var Statuses = []Status{StatusPending, StatusConfirmed, StatusCompleted, StatusCancelled}

var validStatuses = map[Status]bool{
	StatusPending: true, StatusConfirmed: true, StatusCompleted: true, StatusCancelled: true,
}

// ParseStatus accepts a status name in any case.
func ParseStatus(s string) (Status, bool) {
	st := Status(strings.ToUpper(strings.TrimSpace(s)))
	return st, validStatuses[st]
}

type Origin string

const (
	OriginSystem   Origin = "SYSTEM"
	OriginWhatsApp Origin = "WHATSAPP"
)

var validOrigins = map[Origin]bool{OriginSystem: true, OriginWhatsApp: true}

func ParseOrigin(s string) (Origin, bool) {
	o := Origin(strings.ToUpper(strings.TrimSpace(s)))
	return o, validOrigins[o]
}

// Reservation maps to the reservations table. Date is a calendar day at
// midnight UTC and Time an HH:MM clock value.
type Reservation struct {
	ID        uuid.UUID `db:"id" json:"id"`
	PatientID uuid.UUID `db:"patient_id" json:"patient_id"`
	ServiceID uuid.UUID `db:"service_id" json:"service_id"`
	Date      time.Time `db:"date" json:"date"`
	Time      string    `db:"time" json:"time"`
	Status    Status    `db:"status" json:"status"`
	Origin    Origin    `db:"origin" json:"origin"`
	Notes     *string   `db:"notes" json:"notes,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

func (r *Reservation) CalendarDate() time.Time { return r.Date }
func (r *Reservation) CalendarTime() string    { return r.Time }

// MarshalJSON writes Date as YYYY-MM-DD.
func (r Reservation) MarshalJSON() ([]byte, error) {
	type alias Reservation
	return json.Marshal(struct {
		alias
		Date string `json:"date"`
	}{alias: alias(r), Date: r.Date.Format(calendar.DateLayout)})
}

// PatientInput carries create and patch fields for a patient. Nil fields are
// left untouched on update.
type PatientInput struct {
	Name         *string `json:"name"`
	Phone        *string `json:"phone"`
	Email        *string `json:"email"`
	Age          *int    `json:"age"`
	Observations *string `json:"observations"`
}

type ServiceInput struct {
	Name        *string  `json:"name"`
	Price       *float64 `json:"price"`
	Description *string  `json:"description"`
	Color       *string  `json:"color"`
}

// ReservationInput carries reservation fields as received on the wire.
// Date accepts YYYY-MM-DD or RFC 3339.
type ReservationInput struct {
	PatientID *string `json:"patient_id"`
	ServiceID *string `json:"service_id"`
	Date      *string `json:"date"`
	Time      *string `json:"time"`
	Status    *string `json:"status"`
	Origin    *string `json:"origin"`
	Notes     *string `json:"notes"`
}

// ReservationFilter narrows reservation searches. Zero values match all.
type ReservationFilter struct {
	Status    Status
	Origin    Origin
	PatientID uuid.UUID
	ServiceID uuid.UUID
	From      time.Time
	To        time.Time
}

// Matches reports whether r passes every set criterion. From is inclusive,
// To exclusive.
func (f ReservationFilter) Matches(r *Reservation) bool {
	switch {
	case f.Status != "" && r.Status != f.Status:
		return false
	case f.Origin != "" && r.Origin != f.Origin:
		return false
	case f.PatientID != uuid.Nil && r.PatientID != f.PatientID:
		return false
	case f.ServiceID != uuid.Nil && r.ServiceID != f.ServiceID:
		return false
	case !f.From.IsZero() && r.Date.Before(f.From):
		return false
	case !f.To.IsZero() && !r.Date.Before(f.To):
		return false
	}
	return true
}

// ListOptions controls paging and ordering of list queries. Limit 0 returns
// every row. Sort is a column key, prefixed with "-" for descending order.
type ListOptions struct {
	Limit  int
	Offset int
	Sort   string
	Query  string
}

// Snapshot is a consistent copy of all three collections.
type Snapshot struct {
	Patients     []*Patient        `json:"patients"`
	Services     []*MedicalService `json:"services"`
	Reservations []*Reservation    `json:"reservations"`
}

// PatientDetail is a patient with their reservation history.
type PatientDetail struct {
	*Patient
	Reservations []*Reservation `json:"reservations"`
}
