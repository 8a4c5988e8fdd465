// Package calendar turns a reference date into the cells rendered by the
// month, week and year views, and assigns reservations to those cells.
//
// All dates are calendar days normalized to midnight UTC; the package never
// looks at wall-clock offsets once a value has gone through Day.
package calendar

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DateLayout is the wire format for calendar dates.
const DateLayout = "2006-01-02"

// MonthGridCells is the number of cells in a month view (six full weeks).
const MonthGridCells = 42

type Granularity string

const (
	Month Granularity = "month"
	Week  Granularity = "week"
	Year  Granularity = "year"
)

// ParseGranularity accepts "month", "week" or "year" in any case.
func ParseGranularity(s string) (Granularity, error) {
	switch g := Granularity(strings.ToLower(strings.TrimSpace(s))); g {
	case Month, Week, Year:
		return g, nil
	}
	return "", fmt.Errorf("invalid granularity: %q", s)
}

// Config controls the shape of the generated grids.
type Config struct {
	WeekStart time.Weekday
	FirstHour int
	Hours     int
}

func DefaultConfig() Config {
	return Config{WeekStart: time.Sunday, FirstHour: 8, Hours: 12}
}

// Calendar generates grids for a fixed Config.
type Calendar struct {
	cfg Config
}

func New(cfg Config) *Calendar {
	def := DefaultConfig()
	if cfg.WeekStart < time.Sunday || cfg.WeekStart > time.Saturday {
		cfg.WeekStart = def.WeekStart
	}
	if cfg.FirstHour < 0 || cfg.FirstHour > 23 {
		cfg.FirstHour = def.FirstHour
	}
	if cfg.Hours <= 0 {
		cfg.Hours = def.Hours
	}
	if cfg.FirstHour+cfg.Hours > 24 {
		cfg.Hours = 24 - cfg.FirstHour
	}
	return &Calendar{cfg: cfg}
}

func (c *Calendar) Config() Config { return c.cfg }

// Cell is one slot of a view: a day, a day-hour pair, or a month.
type Cell struct {
	Date           time.Time `json:"date"`
	Key            string    `json:"key"`
	InCurrentMonth bool      `json:"in_current_month"`
	Hour           *int      `json:"hour,omitempty"`
}

func dayCell(d time.Time, inMonth bool) Cell {
	return Cell{Date: d, Key: d.Format(DateLayout), InCurrentMonth: inMonth}
}

// Day returns midnight UTC of the calendar day t falls on in its own location.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDate accepts YYYY-MM-DD or an RFC 3339 timestamp and returns the day.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(DateLayout, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: expected YYYY-MM-DD", s)
	}
	return Day(t), nil
}

// DaysIn returns the number of days in the given month.
func DaysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// AddMonths moves t by n months, clamping the day to the target month's
// length so Jan 31 + 1 lands on the last day of February.
func AddMonths(t time.Time, n int) time.Time {
	y, m, d := t.Date()
	idx := int(m) - 1 + n
	y += idx / 12
	idx %= 12
	if idx < 0 {
		idx += 12
		y--
	}
	target := time.Month(idx + 1)
	if last := DaysIn(y, target); d > last {
		d = last
	}
	return time.Date(y, target, d, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

// StartOfMonth returns the first day of ref's month.
func StartOfMonth(ref time.Time) time.Time {
	y, m, _ := ref.Date()
	return time.Date(y, m, 1, 0, 0, 0, 0, time.UTC)
}

// StartOfWeek returns the configured week-start day on or before ref.
func (c *Calendar) StartOfWeek(ref time.Time) time.Time {
	d := Day(ref)
	diff := (int(d.Weekday()) - int(c.cfg.WeekStart) + 7) % 7
	return d.AddDate(0, 0, -diff)
}

// MonthGrid returns 42 consecutive days starting on the week-start day on or
// before the first of ref's month.
func (c *Calendar) MonthGrid(ref time.Time) []Cell {
	first := StartOfMonth(ref)
	start := c.StartOfWeek(first)
	cells := make([]Cell, MonthGridCells)
	for i := range cells {
		d := start.AddDate(0, 0, i)
		cells[i] = dayCell(d, d.Month() == first.Month() && d.Year() == first.Year())
	}
	return cells
}

// WeekGrid returns the seven days of the week containing ref.
func (c *Calendar) WeekGrid(ref time.Time) []Cell {
	start := c.StartOfWeek(ref)
	month := Day(ref).Month()
	cells := make([]Cell, 7)
	for i := range cells {
		d := start.AddDate(0, 0, i)
		cells[i] = dayCell(d, d.Month() == month)
	}
	return cells
}

// Hours lists the hours shown by the week view.
func (c *Calendar) Hours() []int {
	hours := make([]int, c.cfg.Hours)
	for i := range hours {
		hours[i] = c.cfg.FirstHour + i
	}
	return hours
}

// HourCells splits a day cell into the week view's hour slots.
func (c *Calendar) HourCells(day Cell) []Cell {
	hours := c.Hours()
	cells := make([]Cell, len(hours))
	for i, h := range hours {
		h := h
		cell := day
		cell.Hour = &h
		cell.Key = fmt.Sprintf("%sT%02d", day.Key, h)
		cells[i] = cell
	}
	return cells
}

// YearMonths returns one cell per month of the year.
func (c *Calendar) YearMonths(year int) []Cell {
	cells := make([]Cell, 12)
	for i := range cells {
		d := time.Date(year, time.Month(i+1), 1, 0, 0, 0, 0, time.UTC)
		cells[i] = Cell{Date: d, Key: d.Format("2006-01"), InCurrentMonth: true}
	}
	return cells
}

// Navigate moves ref by steps units of the granularity. Month and year steps
// clamp the day to the target month (Feb 29 + 1 year is Feb 28).
func Navigate(ref time.Time, g Granularity, steps int) time.Time {
	switch g {
	case Month:
		return AddMonths(ref, steps)
	case Week:
		return ref.AddDate(0, 0, 7*steps)
	case Year:
		return AddMonths(ref, 12*steps)
	}
	return ref
}

// ParseHour returns the hour part of an HH:MM clock string, or -1.
func ParseHour(clock string) int {
	hh, _, _ := strings.Cut(strings.TrimSpace(clock), ":")
	h, err := strconv.Atoi(hh)
	if err != nil || h < 0 || h > 23 {
		return -1
	}
	return h
}

// ParseClock validates an HH:MM 24h time and returns it zero padded.
func ParseClock(clock string) (string, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(clock))
	if err != nil {
		return "", fmt.Errorf("invalid time %q: expected HH:MM", clock)
	}
	return t.Format("15:04"), nil
}
