// Package reporting derives dashboard figures from a clinic snapshot:
// revenue, rankings, status breakdowns and trends. Every function is pure,
// leaves its inputs untouched and returns zero values for empty input.
package reporting

import (
	"math"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/clinicdash/clinic/internal/calendar"
	"github.com/clinicdash/clinic/internal/domain/clinic"
)

type Reservations = []*clinic.Reservation
type Services = []*clinic.MedicalService

func priceIndex(services Services) map[uuid.UUID]*clinic.MedicalService {
	idx := make(map[uuid.UUID]*clinic.MedicalService, len(services))
	for _, s := range services {
		idx[s.ID] = s
	}
	return idx
}

func statusSet(statuses []clinic.Status) map[clinic.Status]bool {
	if len(statuses) == 0 {
		statuses = []clinic.Status{clinic.StatusCompleted}
	}
	set := make(map[clinic.Status]bool, len(statuses))
	for _, s := range statuses {
		set[s] = true
	}
	return set
}

// TotalRevenue sums the service price of every reservation whose status is
// in statuses, COMPLETED when none are given. Unknown services add 0.
func TotalRevenue(res Reservations, services Services, statuses ...clinic.Status) float64 {
	idx := priceIndex(services)
	want := statusSet(statuses)
	var total float64
	for _, r := range res {
		if !want[r.Status] {
			continue
		}
		if s, ok := idx[r.ServiceID]; ok {
			total += s.Price
		}
	}
	return total
}

// inWindow keeps reservations dated within [start, end).
func inWindow(res Reservations, start, end time.Time) Reservations {
	return calendar.Window(res, calendar.Day(start), calendar.Day(end))
}

// RevenueByWindow is the COMPLETED revenue of reservations dated within
// [start, end).
func RevenueByWindow(res Reservations, services Services, start, end time.Time) float64 {
	return TotalRevenue(inWindow(res, start, end), services)
}

// TrendPoint is one period of a revenue trend.
type TrendPoint struct {
	Label   string    `json:"label"`
	Start   time.Time `json:"start"`
	Revenue float64   `json:"revenue"`
	Count   int       `json:"count"`
}

// periodStart truncates now to the start of its month, week or year.
func periodStart(c *calendar.Calendar, now time.Time, unit calendar.Granularity) time.Time {
	switch unit {
	case calendar.Week:
		return c.StartOfWeek(now)
	case calendar.Year:
		return time.Date(now.Year(), time.January, 1, 0, 0, 0, 0, time.UTC)
	default:
		return calendar.StartOfMonth(now)
	}
}

func trendLabel(start time.Time, unit calendar.Granularity, loc calendar.Locale) string {
	switch unit {
	case calendar.Week:
		return strconv.Itoa(start.Day()) + " " + loc.ShortMonth(start.Month())
	case calendar.Year:
		return strconv.Itoa(start.Year())
	default:
		return loc.ShortMonth(start.Month())
	}
}

// RevenueTrend returns n periods of COMPLETED revenue, oldest first, ending
// with the period containing now. Periods step with calendar.Navigate so
// month buckets stay aligned with the calendar views.
func RevenueTrend(c *calendar.Calendar, res Reservations, services Services, n int, unit calendar.Granularity, now time.Time, loc calendar.Locale) []TrendPoint {
	if n <= 0 {
		return []TrendPoint{}
	}
	completed := filterStatus(res, clinic.StatusCompleted)
	current := periodStart(c, now, unit)
	points := make([]TrendPoint, 0, n)
	for i := n - 1; i >= 0; i-- {
		start := calendar.Navigate(current, unit, -i)
		end := calendar.Navigate(start, unit, 1)
		bucket := inWindow(completed, start, end)
		points = append(points, TrendPoint{
			Label:   trendLabel(start, unit, loc),
			Start:   start,
			Revenue: TotalRevenue(bucket, services),
			Count:   len(bucket),
		})
	}
	return points
}

func filterStatus(res Reservations, statuses ...clinic.Status) Reservations {
	want := statusSet(statuses)
	out := make(Reservations, 0, len(res))
	for _, r := range res {
		if want[r.Status] {
			out = append(out, r)
		}
	}
	return out
}

// RankingEntry is one service's line in the ranking.
type RankingEntry struct {
	ServiceID        uuid.UUID `json:"service_id"`
	Name             string    `json:"name"`
	Color            string    `json:"color"`
	Price            float64   `json:"price"`
	ReservationCount int       `json:"reservation_count"`
	CompletedCount   int       `json:"completed_count"`
	Revenue          float64   `json:"revenue"`
}

// ServiceRanking has one entry per service sorted by reservation count,
// highest first. Ties keep catalog order.
func ServiceRanking(res Reservations, services Services) []RankingEntry {
	entries := make([]RankingEntry, len(services))
	pos := make(map[uuid.UUID]int, len(services))
	for i, s := range services {
		entries[i] = RankingEntry{ServiceID: s.ID, Name: s.Name, Color: s.Color, Price: s.Price}
		pos[s.ID] = i
	}
	for _, r := range res {
		i, ok := pos[r.ServiceID]
		if !ok {
			continue
		}
		entries[i].ReservationCount++
		if r.Status == clinic.StatusCompleted {
			entries[i].CompletedCount++
			entries[i].Revenue += entries[i].Price
		}
	}
	sort.SliceStable(entries, func(a, b int) bool {
		return entries[a].ReservationCount > entries[b].ReservationCount
	})
	return entries
}

// StatusBreakdown counts reservations per status. Every status is present.
func StatusBreakdown(res Reservations) map[clinic.Status]int {
	out := make(map[clinic.Status]int, len(clinic.Statuses))
	for _, s := range clinic.Statuses {
		out[s] = 0
	}
	for _, r := range res {
		out[r.Status]++
	}
	return out
}

// OccupancyRate is the share of reservations not cancelled, in [0, 1].
func OccupancyRate(res Reservations) float64 {
	if len(res) == 0 {
		return 0
	}
	active := 0
	for _, r := range res {
		if r.Status != clinic.StatusCancelled {
			active++
		}
	}
	return float64(active) / float64(len(res))
}

// AverageTicket is revenue per reservation rounded to a whole unit.
func AverageTicket(revenue float64, count int) float64 {
	if count <= 0 {
		return 0
	}
	return math.Round(revenue / float64(count))
}

// PendingRevenue is the revenue still expected from CONFIRMED and PENDING
// reservations.
func PendingRevenue(res Reservations, services Services) float64 {
	return TotalRevenue(res, services, clinic.StatusConfirmed, clinic.StatusPending)
}

// PatientSummary counts patients for a reporting window.
type PatientSummary struct {
	Total  int `json:"total"`
	New    int `json:"new"`
	Active int `json:"active"`
}

// PatientStats counts all patients, those created during the month before
// now, and the distinct patients booked in window.
func PatientStats(patients []*clinic.Patient, window Reservations, now time.Time) PatientSummary {
	monthAgo := calendar.AddMonths(calendar.Day(now), -1)
	out := PatientSummary{Total: len(patients)}
	for _, p := range patients {
		if !p.CreatedAt.Before(monthAgo) {
			out.New++
		}
	}
	seen := make(map[uuid.UUID]struct{}, len(window))
	for _, r := range window {
		seen[r.PatientID] = struct{}{}
	}
	out.Active = len(seen)
	return out
}

// OriginWeek splits one week's reservations by channel.
type OriginWeek struct {
	Label    string    `json:"label"`
	Start    time.Time `json:"start"`
	System   int       `json:"system"`
	WhatsApp int       `json:"whatsapp"`
	Total    int       `json:"total"`
}

// OriginByWeek covers the last weeks weeks, oldest first, ending with the
// week containing now. Labels read "Sem 1" .. "Sem N".
func OriginByWeek(c *calendar.Calendar, res Reservations, weeks int, now time.Time) []OriginWeek {
	if weeks <= 0 {
		return []OriginWeek{}
	}
	current := c.StartOfWeek(now)
	out := make([]OriginWeek, 0, weeks)
	for i := weeks - 1; i >= 0; i-- {
		start := current.AddDate(0, 0, -7*i)
		w := OriginWeek{Label: "Sem " + strconv.Itoa(weeks-i), Start: start}
		for _, r := range inWindow(res, start, start.AddDate(0, 0, 7)) {
			switch r.Origin {
			case clinic.OriginWhatsApp:
				w.WhatsApp++
			default:
				w.System++
			}
			w.Total++
		}
		out = append(out, w)
	}
	return out
}

// Activity is a reservation with the names a feed displays.
type Activity struct {
	*clinic.Reservation
	PatientName string `json:"patient_name"`
	ServiceName string `json:"service_name"`
}

// RecentActivity returns the n most recently created reservations.
func RecentActivity(snap *clinic.Snapshot, n int) []Activity {
	sorted := append(Reservations(nil), snap.Reservations...)
	sort.SliceStable(sorted, func(a, b int) bool {
		return sorted[a].CreatedAt.After(sorted[b].CreatedAt)
	})
	if n >= 0 && len(sorted) > n {
		sorted = sorted[:n]
	}

	patients := make(map[uuid.UUID]string, len(snap.Patients))
	for _, p := range snap.Patients {
		patients[p.ID] = p.Name
	}
	services := priceIndex(snap.Services)

	out := make([]Activity, 0, len(sorted))
	for _, r := range sorted {
		a := Activity{Reservation: r, PatientName: patients[r.PatientID]}
		if s, ok := services[r.ServiceID]; ok {
			a.ServiceName = s.Name
		}
		out = append(out, a)
	}
	return out
}

// ServiceRevenue is one service's COMPLETED revenue.
type ServiceRevenue struct {
	ServiceID uuid.UUID `json:"service_id"`
	Name      string    `json:"name"`
	Color     string    `json:"color"`
	Revenue   float64   `json:"revenue"`
	Count     int       `json:"count"`
	Average   float64   `json:"average"`
}

// RevenueByService lists every service in catalog order with its COMPLETED
// revenue over res.
func RevenueByService(res Reservations, services Services) []ServiceRevenue {
	out := make([]ServiceRevenue, 0, len(services))
	counts := make(map[uuid.UUID]int, len(services))
	for _, r := range res {
		if r.Status == clinic.StatusCompleted {
			counts[r.ServiceID]++
		}
	}
	for _, s := range services {
		n := counts[s.ID]
		rev := float64(n) * s.Price
		out = append(out, ServiceRevenue{
			ServiceID: s.ID,
			Name:      s.Name,
			Color:     s.Color,
			Revenue:   rev,
			Count:     n,
			Average:   AverageTicket(rev, n),
		})
	}
	return out
}
