package calendar

import "time"

// Dated is anything placed on the calendar by a day and an HH:MM time.
type Dated interface {
	CalendarDate() time.Time
	CalendarTime() string
}

// Bucket returns the items that fall in cell, in input order. Month and week
// cells match by day, hour cells additionally by the hour of the time, and
// year cells by (year, month).
func Bucket[T Dated](items []T, cell Cell, g Granularity) []T {
	var out []T
	for _, it := range items {
		if inCell(it, cell, g) {
			out = append(out, it)
		}
	}
	return out
}

func inCell[T Dated](it T, cell Cell, g Granularity) bool {
	d := Day(it.CalendarDate())
	switch g {
	case Year:
		return d.Year() == cell.Date.Year() && d.Month() == cell.Date.Month()
	case Month, Week:
		if !d.Equal(Day(cell.Date)) {
			return false
		}
		if cell.Hour != nil {
			return ParseHour(it.CalendarTime()) == *cell.Hour
		}
		return true
	}
	return false
}

// Window returns the items whose day lies in [start, end).
func Window[T Dated](items []T, start, end time.Time) []T {
	var out []T
	for _, it := range items {
		d := Day(it.CalendarDate())
		if !d.Before(start) && d.Before(end) {
			out = append(out, it)
		}
	}
	return out
}
