package reporting

import (
	"fmt"
	"time"

	"github.com/clinicdash/clinic/internal/calendar"
	"github.com/clinicdash/clinic/internal/domain/clinic"
)

// Period names a trailing reporting window.
type Period string

const (
	PeriodWeek    Period = "week"
	PeriodMonth   Period = "month"
	PeriodQuarter Period = "quarter"
	PeriodYear    Period = "year"
)

func ParsePeriod(s string) (Period, error) {
	switch p := Period(s); p {
	case "":
		return PeriodMonth, nil
	case PeriodWeek, PeriodMonth, PeriodQuarter, PeriodYear:
		return p, nil
	}
	return "", fmt.Errorf("unknown period %q: expected week, month, quarter or year", s)
}

// PeriodWindow returns [start, end) for the period ending today: the last 7
// days, or the last 1, 3 or 12 months. end is the day after now, so
// reservations booked for later dates are not counted.
func PeriodWindow(p Period, now time.Time) (time.Time, time.Time) {
	today := calendar.Day(now)
	end := today.AddDate(0, 0, 1)
	switch p {
	case PeriodWeek:
		return today.AddDate(0, 0, -7), end
	case PeriodQuarter:
		return calendar.AddMonths(today, -3), end
	case PeriodYear:
		return calendar.AddMonths(today, -12), end
	default:
		return calendar.AddMonths(today, -1), end
	}
}

// DashboardSummary backs the dashboard cards.
type DashboardSummary struct {
	TotalPatients         int                   `json:"total_patients"`
	NewPatientsThisMonth  int                   `json:"new_patients_this_month"`
	ReservationsThisMonth int                   `json:"reservations_this_month"`
	ActiveReservations    int                   `json:"active_reservations"`
	ServiceCount          int                   `json:"service_count"`
	AverageServicePrice   float64               `json:"average_service_price"`
	TotalRevenue          float64               `json:"total_revenue"`
	PendingRevenue        float64               `json:"pending_revenue"`
	OccupancyRate         float64               `json:"occupancy_rate"`
	StatusBreakdown       map[clinic.Status]int `json:"status_breakdown"`
}

func sameMonth(a, b time.Time) bool {
	return a.Year() == b.Year() && a.Month() == b.Month()
}

// Summary computes the dashboard cards over the whole snapshot.
func Summary(snap *clinic.Snapshot, now time.Time) DashboardSummary {
	out := DashboardSummary{
		TotalPatients:   len(snap.Patients),
		ServiceCount:    len(snap.Services),
		TotalRevenue:    TotalRevenue(snap.Reservations, snap.Services),
		PendingRevenue:  PendingRevenue(snap.Reservations, snap.Services),
		OccupancyRate:   OccupancyRate(snap.Reservations),
		StatusBreakdown: StatusBreakdown(snap.Reservations),
	}
	for _, p := range snap.Patients {
		if sameMonth(p.CreatedAt, now) {
			out.NewPatientsThisMonth++
		}
	}
	for _, r := range snap.Reservations {
		if sameMonth(r.Date, now) {
			out.ReservationsThisMonth++
		}
		if r.Status != clinic.StatusCancelled {
			out.ActiveReservations++
		}
	}
	var prices float64
	for _, s := range snap.Services {
		prices += s.Price
	}
	out.AverageServicePrice = AverageTicket(prices, len(snap.Services))
	return out
}

// PeriodReport is the reports page for one trailing period.
type PeriodReport struct {
	Period           Period                `json:"period"`
	Start            string                `json:"start"`
	End              string                `json:"end"`
	TotalRevenue     float64               `json:"total_revenue"`
	ReservationCount int                   `json:"reservation_count"`
	AverageTicket    float64               `json:"average_ticket"`
	RevenueByService []ServiceRevenue      `json:"revenue_by_service"`
	Patients         PatientSummary        `json:"patients"`
	StatusBreakdown  map[clinic.Status]int `json:"status_breakdown"`
}

// BuildPeriodReport restricts the snapshot to the period's window and
// aggregates it.
func BuildPeriodReport(snap *clinic.Snapshot, p Period, now time.Time) PeriodReport {
	start, end := PeriodWindow(p, now)
	window := inWindow(snap.Reservations, start, end)
	revenue := TotalRevenue(window, snap.Services)
	return PeriodReport{
		Period:           p,
		Start:            start.Format(calendar.DateLayout),
		End:              end.Format(calendar.DateLayout),
		TotalRevenue:     revenue,
		ReservationCount: len(window),
		AverageTicket:    AverageTicket(revenue, len(window)),
		RevenueByService: RevenueByService(window, snap.Services),
		Patients:         PatientStats(snap.Patients, window, now),
		StatusBreakdown:  StatusBreakdown(window),
	}
}
