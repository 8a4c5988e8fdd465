package clinic

import (
	"net/mail"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/clinicdash/clinic/internal/calendar"
)

const (
	maxNameLen  = 100
	maxTextLen  = 500
	maxColorLen = 50
	minPhoneLen = 6
	maxPhoneLen = 20
	maxAge      = 120
)

// DefaultServiceColor is used when a service is created without a color.
const DefaultServiceColor = "#3B82F6"

func checkLen(field, v string, min, max int) error {
	n := utf8.RuneCountInString(v)
	if n < min {
		if min == 1 {
			return invalid(field, "is required")
		}
		return invalid(field, "must be at least %d characters", min)
	}
	if n > max {
		return invalid(field, "must be at most %d characters", max)
	}
	return nil
}

func checkEmail(v string) error {
	addr, err := mail.ParseAddress(v)
	if err != nil || addr.Address != v || !strings.Contains(v[strings.LastIndex(v, "@")+1:], ".") {
		return invalid("email", "must be a valid email address")
	}
	return nil
}

// optionalText trims a free-text field and maps the empty string to nil.
func optionalText(v *string) *string {
	if v == nil {
		return nil
	}
	s := strings.TrimSpace(*v)
	if s == "" {
		return nil
	}
	return &s
}

// applyPatient validates in and copies its non-nil fields onto p. When
// create is set all mandatory fields must be present.
func applyPatient(p *Patient, in PatientInput, create bool) error {
	if create {
		switch {
		case in.Name == nil:
			return invalid("name", "is required")
		case in.Phone == nil:
			return invalid("phone", "is required")
		case in.Email == nil:
			return invalid("email", "is required")
		case in.Age == nil:
			return invalid("age", "is required")
		}
	}
	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if err := checkLen("name", name, 1, maxNameLen); err != nil {
			return err
		}
		p.Name = name
	}
	if in.Phone != nil {
		phone := strings.TrimSpace(*in.Phone)
		if err := checkLen("phone", phone, minPhoneLen, maxPhoneLen); err != nil {
			return err
		}
		p.Phone = phone
	}
	if in.Email != nil {
		email := strings.TrimSpace(*in.Email)
		if err := checkEmail(email); err != nil {
			return err
		}
		p.Email = email
	}
	if in.Age != nil {
		if *in.Age < 1 || *in.Age > maxAge {
			return invalid("age", "must be between 1 and %d", maxAge)
		}
		p.Age = *in.Age
	}
	if in.Observations != nil {
		obs := optionalText(in.Observations)
		if obs != nil {
			if err := checkLen("observations", *obs, 0, maxTextLen); err != nil {
				return err
			}
		}
		p.Observations = obs
	}
	return nil
}

func applyService(s *MedicalService, in ServiceInput, create bool) error {
	if create {
		switch {
		case in.Name == nil:
			return invalid("name", "is required")
		case in.Price == nil:
			return invalid("price", "is required")
		}
		if in.Color == nil {
			s.Color = DefaultServiceColor
		}
	}
	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if err := checkLen("name", name, 1, maxNameLen); err != nil {
			return err
		}
		s.Name = name
	}
	if in.Price != nil {
		if *in.Price <= 0 {
			return invalid("price", "must be greater than 0")
		}
		s.Price = *in.Price
	}
	if in.Description != nil {
		desc := optionalText(in.Description)
		if desc != nil {
			if err := checkLen("description", *desc, 0, maxTextLen); err != nil {
				return err
			}
		}
		s.Description = desc
	}
	if in.Color != nil {
		color := strings.TrimSpace(*in.Color)
		if err := checkLen("color", color, 1, maxColorLen); err != nil {
			return err
		}
		s.Color = color
	}
	return nil
}

// applyReservation validates in and copies its fields onto r. Referenced
// patient and service existence is checked by the caller.
func applyReservation(r *Reservation, in ReservationInput, create bool) error {
	if create {
		switch {
		case in.PatientID == nil:
			return invalid("patient_id", "is required")
		case in.ServiceID == nil:
			return invalid("service_id", "is required")
		case in.Date == nil:
			return invalid("date", "is required")
		case in.Time == nil:
			return invalid("time", "is required")
		}
		r.Status = StatusPending
		r.Origin = OriginSystem
	}
	if in.PatientID != nil {
		id, err := uuid.Parse(strings.TrimSpace(*in.PatientID))
		if err != nil {
			return invalid("patient_id", "must be a valid id")
		}
		r.PatientID = id
	}
	if in.ServiceID != nil {
		id, err := uuid.Parse(strings.TrimSpace(*in.ServiceID))
		if err != nil {
			return invalid("service_id", "must be a valid id")
		}
		r.ServiceID = id
	}
	if in.Date != nil {
		d, err := calendar.ParseDate(*in.Date)
		if err != nil {
			return invalid("date", "must be a date in YYYY-MM-DD format")
		}
		r.Date = d
	}
	if in.Time != nil {
		clock, err := calendar.ParseClock(*in.Time)
		if err != nil {
			return invalid("time", "must be a time in HH:MM format")
		}
		r.Time = clock
	}
	if in.Status != nil {
		st, ok := ParseStatus(*in.Status)
		if !ok {
			return invalid("status", "must be one of PENDING, CONFIRMED, COMPLETED, CANCELLED")
		}
		r.Status = st
	}
	if in.Origin != nil {
		o, ok := ParseOrigin(*in.Origin)
		if !ok {
			return invalid("origin", "must be SYSTEM or WHATSAPP")
		}
		r.Origin = o
	}
	if in.Notes != nil {
		notes := optionalText(in.Notes)
		if notes != nil {
			if err := checkLen("notes", *notes, 0, maxTextLen); err != nil {
				return err
			}
		}
		r.Notes = notes
	}
	return nil
}
