package clinic

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinicdash/clinic/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

func connFor(ctx context.Context, pool *pgxpool.Pool) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return pool
}

const pgForeignKeyViolation = "23503"

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgForeignKeyViolation
}

func notFoundOr(err error, entity string, id uuid.UUID) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return &NotFoundError{Entity: entity, ID: id.String()}
	}
	return err
}

func orderClause(opts ListOptions, allowed map[string]string) (string, error) {
	col, desc, err := parseSort(opts.Sort, allowed)
	if err != nil {
		return "", err
	}
	dir := "ASC"
	if desc {
		dir = "DESC"
	}
	return fmt.Sprintf(" ORDER BY %s %s, id %s", col, dir, dir), nil
}

// limitArg maps a zero limit to NULL, which Postgres reads as no limit.
func limitArg(limit int) interface{} {
	if limit <= 0 {
		return nil
	}
	return limit
}

// =========== Patient Repository ===========

type patientRepoPG struct{ pool *pgxpool.Pool }

func NewPatientRepoPG(pool *pgxpool.Pool) PatientRepository { return &patientRepoPG{pool: pool} }

func (r *patientRepoPG) conn(ctx context.Context) queryable { return connFor(ctx, r.pool) }

const patientCols = `id, name, phone, email, age, observations, created_at`

func (r *patientRepoPG) scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	err := row.Scan(&p.ID, &p.Name, &p.Phone, &p.Email, &p.Age, &p.Observations, &p.CreatedAt)
	return &p, err
}

func (r *patientRepoPG) Create(ctx context.Context, p *Patient) error {
	p.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO patients (id, name, phone, email, age, observations)
		VALUES ($1,$2,$3,$4,$5,$6)
		RETURNING created_at`,
		p.ID, p.Name, p.Phone, p.Email, p.Age, p.Observations).Scan(&p.CreatedAt)
}

func (r *patientRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	p, err := r.scanPatient(r.conn(ctx).QueryRow(ctx, `SELECT `+patientCols+` FROM patients WHERE id = $1`, id))
	if err != nil {
		return nil, notFoundOr(err, "patient", id)
	}
	return p, nil
}

func (r *patientRepoPG) Update(ctx context.Context, p *Patient) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE patients SET name=$2, phone=$3, email=$4, age=$5, observations=$6
		WHERE id = $1`,
		p.ID, p.Name, p.Phone, p.Email, p.Age, p.Observations)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return &NotFoundError{Entity: "patient", ID: p.ID.String()}
	}
	return nil
}

func (r *patientRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM patients WHERE id = $1`, id)
	if err != nil {
		if isForeignKeyViolation(err) {
			return &ReferentialIntegrityError{Entity: "patient", ID: id.String(), Dependents: -1}
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return &NotFoundError{Entity: "patient", ID: id.String()}
	}
	return nil
}

func (r *patientRepoPG) List(ctx context.Context, opts ListOptions) ([]*Patient, int, error) {
	order, err := orderClause(opts, patientSorts)
	if err != nil {
		return nil, 0, err
	}
	where := ` WHERE 1=1`
	var args []interface{}
	if q := strings.TrimSpace(opts.Query); q != "" {
		where += ` AND (name ILIKE $1 OR email ILIKE $1 OR phone ILIKE $1)`
		args = append(args, "%"+q+"%")
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM patients`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	idx := len(args) + 1
	query := `SELECT ` + patientCols + ` FROM patients` + where + order +
		fmt.Sprintf(` LIMIT $%d OFFSET $%d`, idx, idx+1)
	args = append(args, limitArg(opts.Limit), opts.Offset)

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Patient
	for rows.Next() {
		p, err := r.scanPatient(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, p)
	}
	return items, total, rows.Err()
}

// =========== Service Repository ===========

type serviceRepoPG struct{ pool *pgxpool.Pool }

func NewServiceRepoPG(pool *pgxpool.Pool) ServiceRepository { return &serviceRepoPG{pool: pool} }

func (r *serviceRepoPG) conn(ctx context.Context) queryable { return connFor(ctx, r.pool) }

const serviceCols = `id, name, price, description, color, created_at`

func (r *serviceRepoPG) scanService(row pgx.Row) (*MedicalService, error) {
	var s MedicalService
	err := row.Scan(&s.ID, &s.Name, &s.Price, &s.Description, &s.Color, &s.CreatedAt)
	return &s, err
}

func (r *serviceRepoPG) Create(ctx context.Context, s *MedicalService) error {
	s.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO services (id, name, price, description, color)
		VALUES ($1,$2,$3,$4,$5)
		RETURNING created_at`,
		s.ID, s.Name, s.Price, s.Description, s.Color).Scan(&s.CreatedAt)
}

func (r *serviceRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*MedicalService, error) {
	s, err := r.scanService(r.conn(ctx).QueryRow(ctx, `SELECT `+serviceCols+` FROM services WHERE id = $1`, id))
	if err != nil {
		return nil, notFoundOr(err, "service", id)
	}
	return s, nil
}

func (r *serviceRepoPG) Update(ctx context.Context, s *MedicalService) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE services SET name=$2, price=$3, description=$4, color=$5
		WHERE id = $1`,
		s.ID, s.Name, s.Price, s.Description, s.Color)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return &NotFoundError{Entity: "service", ID: s.ID.String()}
	}
	return nil
}

func (r *serviceRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM services WHERE id = $1`, id)
	if err != nil {
		if isForeignKeyViolation(err) {
			return &ReferentialIntegrityError{Entity: "service", ID: id.String(), Dependents: -1}
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return &NotFoundError{Entity: "service", ID: id.String()}
	}
	return nil
}

func (r *serviceRepoPG) List(ctx context.Context, opts ListOptions) ([]*MedicalService, int, error) {
	order, err := orderClause(opts, serviceSorts)
	if err != nil {
		return nil, 0, err
	}
	where := ` WHERE 1=1`
	var args []interface{}
	if q := strings.TrimSpace(opts.Query); q != "" {
		where += ` AND name ILIKE $1`
		args = append(args, "%"+q+"%")
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM services`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	idx := len(args) + 1
	query := `SELECT ` + serviceCols + ` FROM services` + where + order +
		fmt.Sprintf(` LIMIT $%d OFFSET $%d`, idx, idx+1)
	args = append(args, limitArg(opts.Limit), opts.Offset)

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*MedicalService
	for rows.Next() {
		s, err := r.scanService(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, s)
	}
	return items, total, rows.Err()
}

// =========== Reservation Repository ===========

type reservationRepoPG struct{ pool *pgxpool.Pool }

func NewReservationRepoPG(pool *pgxpool.Pool) ReservationRepository {
	return &reservationRepoPG{pool: pool}
}

func (r *reservationRepoPG) conn(ctx context.Context) queryable { return connFor(ctx, r.pool) }

const reservationCols = `id, patient_id, service_id, date, time, status, origin, notes, created_at`

func (r *reservationRepoPG) scanReservation(row pgx.Row) (*Reservation, error) {
	var res Reservation
	err := row.Scan(&res.ID, &res.PatientID, &res.ServiceID, &res.Date, &res.Time,
		&res.Status, &res.Origin, &res.Notes, &res.CreatedAt)
	return &res, err
}

func (r *reservationRepoPG) Create(ctx context.Context, res *Reservation) error {
	res.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO reservations (id, patient_id, service_id, date, time, status, origin, notes)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		RETURNING created_at`,
		res.ID, res.PatientID, res.ServiceID, res.Date, res.Time,
		string(res.Status), string(res.Origin), res.Notes).Scan(&res.CreatedAt)
	if isForeignKeyViolation(err) {
		return &NotFoundError{Entity: "patient or service", ID: res.PatientID.String() + "," + res.ServiceID.String()}
	}
	return err
}

func (r *reservationRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Reservation, error) {
	res, err := r.scanReservation(r.conn(ctx).QueryRow(ctx, `SELECT `+reservationCols+` FROM reservations WHERE id = $1`, id))
	if err != nil {
		return nil, notFoundOr(err, "reservation", id)
	}
	return res, nil
}

func (r *reservationRepoPG) Update(ctx context.Context, res *Reservation) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE reservations SET patient_id=$2, service_id=$3, date=$4, time=$5,
			status=$6, origin=$7, notes=$8
		WHERE id = $1`,
		res.ID, res.PatientID, res.ServiceID, res.Date, res.Time,
		string(res.Status), string(res.Origin), res.Notes)
	if err != nil {
		if isForeignKeyViolation(err) {
			return &NotFoundError{Entity: "patient or service", ID: res.PatientID.String() + "," + res.ServiceID.String()}
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return &NotFoundError{Entity: "reservation", ID: res.ID.String()}
	}
	return nil
}

func (r *reservationRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM reservations WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return &NotFoundError{Entity: "reservation", ID: id.String()}
	}
	return nil
}

func (r *reservationRepoPG) Search(ctx context.Context, f ReservationFilter, opts ListOptions) ([]*Reservation, int, error) {
	order, err := orderClause(opts, reservationSorts)
	if err != nil {
		return nil, 0, err
	}
	where := ` WHERE 1=1`
	var args []interface{}
	idx := 1

	if f.Status != "" {
		where += fmt.Sprintf(` AND status = $%d`, idx)
		args = append(args, string(f.Status))
		idx++
	}
	if f.Origin != "" {
		where += fmt.Sprintf(` AND origin = $%d`, idx)
		args = append(args, string(f.Origin))
		idx++
	}
	if f.PatientID != uuid.Nil {
		where += fmt.Sprintf(` AND patient_id = $%d`, idx)
		args = append(args, f.PatientID)
		idx++
	}
	if f.ServiceID != uuid.Nil {
		where += fmt.Sprintf(` AND service_id = $%d`, idx)
		args = append(args, f.ServiceID)
		idx++
	}
	if !f.From.IsZero() {
		where += fmt.Sprintf(` AND date >= $%d`, idx)
		args = append(args, f.From)
		idx++
	}
	if !f.To.IsZero() {
		where += fmt.Sprintf(` AND date < $%d`, idx)
		args = append(args, f.To)
		idx++
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM reservations`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + reservationCols + ` FROM reservations` + where + order +
		fmt.Sprintf(` LIMIT $%d OFFSET $%d`, idx, idx+1)
	args = append(args, limitArg(opts.Limit), opts.Offset)

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Reservation
	for rows.Next() {
		res, err := r.scanReservation(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, res)
	}
	return items, total, rows.Err()
}

func (r *reservationRepoPG) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*Reservation, error) {
	items, _, err := r.Search(ctx, ReservationFilter{PatientID: patientID}, ListOptions{Sort: "-date"})
	return items, err
}

func (r *reservationRepoPG) CountByPatient(ctx context.Context, patientID uuid.UUID) (int, error) {
	var n int
	err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM reservations WHERE patient_id = $1`, patientID).Scan(&n)
	return n, err
}

func (r *reservationRepoPG) CountByService(ctx context.Context, serviceID uuid.UUID) (int, error) {
	var n int
	err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM reservations WHERE service_id = $1`, serviceID).Scan(&n)
	return n, err
}
