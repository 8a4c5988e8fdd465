package clinic

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore keeps all three collections in process memory. Reads return
// copies so callers never alias stored records.
type MemoryStore struct {
	mu           sync.RWMutex
	patients     map[uuid.UUID]*Patient
	services     map[uuid.UUID]*MedicalService
	reservations map[uuid.UUID]*Reservation
	seq          map[uuid.UUID]int
	next         int
	now          func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		patients:     make(map[uuid.UUID]*Patient),
		services:     make(map[uuid.UUID]*MedicalService),
		reservations: make(map[uuid.UUID]*Reservation),
		seq:          make(map[uuid.UUID]int),
		now:          func() time.Time { return time.Now().UTC() },
	}
}

func (m *MemoryStore) Patients() PatientRepository         { return memPatients{m} }
func (m *MemoryStore) Services() ServiceRepository         { return memServices{m} }
func (m *MemoryStore) Reservations() ReservationRepository { return memReservations{m} }

// stamp assigns an id, a creation time if unset, and an insertion sequence.
func (m *MemoryStore) stamp(id *uuid.UUID, createdAt *time.Time) {
	*id = uuid.New()
	if createdAt.IsZero() {
		*createdAt = m.now()
	}
	m.next++
	m.seq[*id] = m.next
}

func clonePatient(p *Patient) *Patient {
	c := *p
	if p.Observations != nil {
		v := *p.Observations
		c.Observations = &v
	}
	return &c
}

func cloneService(s *MedicalService) *MedicalService {
	c := *s
	if s.Description != nil {
		v := *s.Description
		c.Description = &v
	}
	return &c
}

func cloneReservation(r *Reservation) *Reservation {
	c := *r
	if r.Notes != nil {
		v := *r.Notes
		c.Notes = &v
	}
	return &c
}

// sortAndPage orders items by less (falling back to insertion order) and
// applies the page window.
func sortAndPage[T any](m *MemoryStore, items []T, id func(T) uuid.UUID, less func(a, b T) int, desc bool, opts ListOptions) []T {
	sort.SliceStable(items, func(i, j int) bool {
		c := 0
		if less != nil {
			c = less(items[i], items[j])
		}
		if c == 0 {
			c = m.seq[id(items[i])] - m.seq[id(items[j])]
		}
		if desc {
			return c > 0
		}
		return c < 0
	})
	if opts.Offset > 0 {
		if opts.Offset >= len(items) {
			return items[:0]
		}
		items = items[opts.Offset:]
	}
	if opts.Limit > 0 && opts.Limit < len(items) {
		items = items[:opts.Limit]
	}
	return items
}

func compareTime(a, b time.Time) int {
	switch {
	case a.Before(b):
		return -1
	case a.After(b):
		return 1
	}
	return 0
}

func compareFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func containsFold(s, sub string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}

// =========== Patients ===========

type memPatients struct{ m *MemoryStore }

func (r memPatients) Create(_ context.Context, p *Patient) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	r.m.stamp(&p.ID, &p.CreatedAt)
	r.m.patients[p.ID] = clonePatient(p)
	return nil
}

func (r memPatients) GetByID(_ context.Context, id uuid.UUID) (*Patient, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	p, ok := r.m.patients[id]
	if !ok {
		return nil, &NotFoundError{Entity: "patient", ID: id.String()}
	}
	return clonePatient(p), nil
}

func (r memPatients) Update(_ context.Context, p *Patient) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if _, ok := r.m.patients[p.ID]; !ok {
		return &NotFoundError{Entity: "patient", ID: p.ID.String()}
	}
	r.m.patients[p.ID] = clonePatient(p)
	return nil
}

func (r memPatients) Delete(_ context.Context, id uuid.UUID) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if _, ok := r.m.patients[id]; !ok {
		return &NotFoundError{Entity: "patient", ID: id.String()}
	}
	if n := r.m.countLocked(func(res *Reservation) bool { return res.PatientID == id }); n > 0 {
		return &ReferentialIntegrityError{Entity: "patient", ID: id.String(), Dependents: n}
	}
	delete(r.m.patients, id)
	delete(r.m.seq, id)
	return nil
}

var patientLess = map[string]func(a, b *Patient) int{
	"created_at": func(a, b *Patient) int { return compareTime(a.CreatedAt, b.CreatedAt) },
	"name":       func(a, b *Patient) int { return strings.Compare(a.Name, b.Name) },
	"age":        func(a, b *Patient) int { return a.Age - b.Age },
	"email":      func(a, b *Patient) int { return strings.Compare(a.Email, b.Email) },
}

func (r memPatients) List(_ context.Context, opts ListOptions) ([]*Patient, int, error) {
	col, desc, err := parseSort(opts.Sort, patientSorts)
	if err != nil {
		return nil, 0, err
	}
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()

	q := strings.TrimSpace(opts.Query)
	items := make([]*Patient, 0, len(r.m.patients))
	for _, p := range r.m.patients {
		if q != "" && !containsFold(p.Name, q) && !containsFold(p.Email, q) && !containsFold(p.Phone, q) {
			continue
		}
		items = append(items, clonePatient(p))
	}
	total := len(items)
	items = sortAndPage(r.m, items, func(p *Patient) uuid.UUID { return p.ID }, patientLess[col], desc, opts)
	return items, total, nil
}

// =========== Services ===========

type memServices struct{ m *MemoryStore }

func (r memServices) Create(_ context.Context, s *MedicalService) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	r.m.stamp(&s.ID, &s.CreatedAt)
	r.m.services[s.ID] = cloneService(s)
	return nil
}

func (r memServices) GetByID(_ context.Context, id uuid.UUID) (*MedicalService, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	s, ok := r.m.services[id]
	if !ok {
		return nil, &NotFoundError{Entity: "service", ID: id.String()}
	}
	return cloneService(s), nil
}

func (r memServices) Update(_ context.Context, s *MedicalService) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if _, ok := r.m.services[s.ID]; !ok {
		return &NotFoundError{Entity: "service", ID: s.ID.String()}
	}
	r.m.services[s.ID] = cloneService(s)
	return nil
}

func (r memServices) Delete(_ context.Context, id uuid.UUID) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if _, ok := r.m.services[id]; !ok {
		return &NotFoundError{Entity: "service", ID: id.String()}
	}
	if n := r.m.countLocked(func(res *Reservation) bool { return res.ServiceID == id }); n > 0 {
		return &ReferentialIntegrityError{Entity: "service", ID: id.String(), Dependents: n}
	}
	delete(r.m.services, id)
	delete(r.m.seq, id)
	return nil
}

var serviceLess = map[string]func(a, b *MedicalService) int{
	"created_at": func(a, b *MedicalService) int { return compareTime(a.CreatedAt, b.CreatedAt) },
	"name":       func(a, b *MedicalService) int { return strings.Compare(a.Name, b.Name) },
	"price":      func(a, b *MedicalService) int { return compareFloat(a.Price, b.Price) },
}

func (r memServices) List(_ context.Context, opts ListOptions) ([]*MedicalService, int, error) {
	col, desc, err := parseSort(opts.Sort, serviceSorts)
	if err != nil {
		return nil, 0, err
	}
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()

	q := strings.TrimSpace(opts.Query)
	items := make([]*MedicalService, 0, len(r.m.services))
	for _, s := range r.m.services {
		if q != "" && !containsFold(s.Name, q) {
			continue
		}
		items = append(items, cloneService(s))
	}
	total := len(items)
	items = sortAndPage(r.m, items, func(s *MedicalService) uuid.UUID { return s.ID }, serviceLess[col], desc, opts)
	return items, total, nil
}

// =========== Reservations ===========

type memReservations struct{ m *MemoryStore }

func (m *MemoryStore) countLocked(match func(*Reservation) bool) int {
	n := 0
	for _, res := range m.reservations {
		if match(res) {
			n++
		}
	}
	return n
}

func (m *MemoryStore) checkRefsLocked(res *Reservation) error {
	if _, ok := m.patients[res.PatientID]; !ok {
		return &NotFoundError{Entity: "patient", ID: res.PatientID.String()}
	}
	if _, ok := m.services[res.ServiceID]; !ok {
		return &NotFoundError{Entity: "service", ID: res.ServiceID.String()}
	}
	return nil
}

func (r memReservations) Create(_ context.Context, res *Reservation) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if err := r.m.checkRefsLocked(res); err != nil {
		return err
	}
	r.m.stamp(&res.ID, &res.CreatedAt)
	r.m.reservations[res.ID] = cloneReservation(res)
	return nil
}

func (r memReservations) GetByID(_ context.Context, id uuid.UUID) (*Reservation, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	res, ok := r.m.reservations[id]
	if !ok {
		return nil, &NotFoundError{Entity: "reservation", ID: id.String()}
	}
	return cloneReservation(res), nil
}

func (r memReservations) Update(_ context.Context, res *Reservation) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if _, ok := r.m.reservations[res.ID]; !ok {
		return &NotFoundError{Entity: "reservation", ID: res.ID.String()}
	}
	if err := r.m.checkRefsLocked(res); err != nil {
		return err
	}
	r.m.reservations[res.ID] = cloneReservation(res)
	return nil
}

func (r memReservations) Delete(_ context.Context, id uuid.UUID) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if _, ok := r.m.reservations[id]; !ok {
		return &NotFoundError{Entity: "reservation", ID: id.String()}
	}
	delete(r.m.reservations, id)
	delete(r.m.seq, id)
	return nil
}

var reservationLess = map[string]func(a, b *Reservation) int{
	"created_at": func(a, b *Reservation) int { return compareTime(a.CreatedAt, b.CreatedAt) },
	"date": func(a, b *Reservation) int {
		if c := compareTime(a.Date, b.Date); c != 0 {
			return c
		}
		return strings.Compare(a.Time, b.Time)
	},
	"status": func(a, b *Reservation) int { return strings.Compare(string(a.Status), string(b.Status)) },
}

func (r memReservations) Search(_ context.Context, f ReservationFilter, opts ListOptions) ([]*Reservation, int, error) {
	col, desc, err := parseSort(opts.Sort, reservationSorts)
	if err != nil {
		return nil, 0, err
	}
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()

	items := make([]*Reservation, 0, len(r.m.reservations))
	for _, res := range r.m.reservations {
		if f.Matches(res) {
			items = append(items, cloneReservation(res))
		}
	}
	total := len(items)
	items = sortAndPage(r.m, items, func(res *Reservation) uuid.UUID { return res.ID }, reservationLess[col], desc, opts)
	return items, total, nil
}

func (r memReservations) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*Reservation, error) {
	items, _, err := r.Search(ctx, ReservationFilter{PatientID: patientID}, ListOptions{Sort: "-date"})
	return items, err
}

func (r memReservations) CountByPatient(_ context.Context, patientID uuid.UUID) (int, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	return r.m.countLocked(func(res *Reservation) bool { return res.PatientID == patientID }), nil
}

func (r memReservations) CountByService(_ context.Context, serviceID uuid.UUID) (int, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	return r.m.countLocked(func(res *Reservation) bool { return res.ServiceID == serviceID }), nil
}
