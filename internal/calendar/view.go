package calendar

import "time"

// DayCell is a cell with the items bucketed into it.
type DayCell[T any] struct {
	Cell
	Items []T `json:"items"`
}

// WeekDay is one column of the week view: the whole day plus its hour slots.
type WeekDay[T any] struct {
	Cell
	Items []T          `json:"items"`
	Slots []DayCell[T] `json:"slots"`
}

// MonthCell is one month of the year view with per-key counts.
type MonthCell struct {
	Cell
	Total int            `json:"total"`
	ByKey map[string]int `json:"by_key"`
}

type MonthView[T any] struct {
	Reference time.Time    `json:"reference"`
	Label     string       `json:"label"`
	Previous  time.Time    `json:"previous"`
	Next      time.Time    `json:"next"`
	Days      []DayCell[T] `json:"days"`
}

type WeekView[T any] struct {
	Reference time.Time    `json:"reference"`
	Label     string       `json:"label"`
	Previous  time.Time    `json:"previous"`
	Next      time.Time    `json:"next"`
	Hours     []int        `json:"hours"`
	Days      []WeekDay[T] `json:"days"`
}

type YearView struct {
	Reference time.Time   `json:"reference"`
	Label     string      `json:"label"`
	Previous  time.Time   `json:"previous"`
	Next      time.Time   `json:"next"`
	Total     int         `json:"total"`
	Months    []MonthCell `json:"months"`
}

// BuildMonth populates the 42-cell month grid around ref.
func BuildMonth[T Dated](c *Calendar, ref time.Time, items []T, loc Locale) MonthView[T] {
	ref = Day(ref)
	grid := c.MonthGrid(ref)
	visible := Window(items, grid[0].Date, grid[len(grid)-1].Date.AddDate(0, 0, 1))

	days := make([]DayCell[T], len(grid))
	for i, cell := range grid {
		days[i] = DayCell[T]{Cell: cell, Items: nonNil(Bucket(visible, cell, Month))}
	}
	return MonthView[T]{
		Reference: ref,
		Label:     RangeLabel(c, ref, Month, loc),
		Previous:  Navigate(ref, Month, -1),
		Next:      Navigate(ref, Month, 1),
		Days:      days,
	}
}

// BuildWeek populates the week grid and its hour slots around ref.
func BuildWeek[T Dated](c *Calendar, ref time.Time, items []T, loc Locale) WeekView[T] {
	ref = Day(ref)
	grid := c.WeekGrid(ref)
	visible := Window(items, grid[0].Date, grid[len(grid)-1].Date.AddDate(0, 0, 1))

	days := make([]WeekDay[T], len(grid))
	for i, cell := range grid {
		dayItems := Bucket(visible, cell, Week)
		hourCells := c.HourCells(cell)
		slots := make([]DayCell[T], len(hourCells))
		for j, hc := range hourCells {
			slots[j] = DayCell[T]{Cell: hc, Items: nonNil(Bucket(dayItems, hc, Week))}
		}
		days[i] = WeekDay[T]{Cell: cell, Items: nonNil(dayItems), Slots: slots}
	}
	return WeekView[T]{
		Reference: ref,
		Label:     RangeLabel(c, ref, Week, loc),
		Previous:  Navigate(ref, Week, -1),
		Next:      Navigate(ref, Week, 1),
		Hours:     c.Hours(),
		Days:      days,
	}
}

// BuildYear counts items per month of ref's year; key groups each month's
// items (for example by service) and may be nil.
func BuildYear[T Dated](c *Calendar, ref time.Time, items []T, key func(T) string, loc Locale) YearView {
	ref = Day(ref)
	cells := c.YearMonths(ref.Year())
	view := YearView{
		Reference: ref,
		Label:     RangeLabel(c, ref, Year, loc),
		Previous:  Navigate(ref, Year, -1),
		Next:      Navigate(ref, Year, 1),
		Months:    make([]MonthCell, len(cells)),
	}
	for i, cell := range cells {
		inMonth := Bucket(items, cell, Year)
		mc := MonthCell{Cell: cell, Total: len(inMonth), ByKey: map[string]int{}}
		if key != nil {
			for _, it := range inMonth {
				mc.ByKey[key(it)]++
			}
		}
		view.Total += mc.Total
		view.Months[i] = mc
	}
	return view
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
