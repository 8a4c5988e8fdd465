package reporting

import (
	"encoding/csv"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/clinicdash/clinic/internal/calendar"
	"github.com/clinicdash/clinic/internal/domain/clinic"
)

// CSVHeader is the column row of the reservations export.
var CSVHeader = []string{"Fecha", "Hora", "Paciente", "Servicio", "Precio", "Estado", "Origen", "Notas"}

// WriteReservationsCSV writes the snapshot's reservations matching f, sorted
// by date and time, joined with patient and service names.
func WriteReservationsCSV(w io.Writer, snap *clinic.Snapshot, f clinic.ReservationFilter) error {
	patients := make(map[uuid.UUID]string, len(snap.Patients))
	for _, p := range snap.Patients {
		patients[p.ID] = p.Name
	}
	services := priceIndex(snap.Services)

	rows := make(Reservations, 0, len(snap.Reservations))
	for _, r := range snap.Reservations {
		if f.Matches(r) {
			rows = append(rows, r)
		}
	}
	sort.SliceStable(rows, func(a, b int) bool {
		if !rows[a].Date.Equal(rows[b].Date) {
			return rows[a].Date.Before(rows[b].Date)
		}
		return rows[a].Time < rows[b].Time
	})

	cw := csv.NewWriter(w)
	if err := cw.Write(CSVHeader); err != nil {
		return err
	}
	for _, r := range rows {
		var service, price string
		if s, ok := services[r.ServiceID]; ok {
			service = s.Name
			price = strconv.FormatFloat(s.Price, 'f', -1, 64)
		}
		var notes string
		if r.Notes != nil {
			notes = *r.Notes
		}
		record := []string{
			r.Date.Format(calendar.DateLayout),
			r.Time,
			safeCell(patients[r.PatientID]),
			safeCell(service),
			price,
			string(r.Status),
			string(r.Origin),
			safeCell(notes),
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// safeCell quotes free text that a spreadsheet would evaluate as a formula.
func safeCell(v string) string {
	if v != "" && strings.ContainsRune("=+-@", rune(v[0])) {
		return "'" + v
	}
	return v
}
