package calendar

import (
	"fmt"
	"strconv"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Locale holds the month names used for view headings.
type Locale struct {
	Tag    language.Tag
	months [12]string
	short  [12]string
}

var (
	Spanish = Locale{
		Tag: language.Spanish,
		months: [12]string{"enero", "febrero", "marzo", "abril", "mayo", "junio",
			"julio", "agosto", "septiembre", "octubre", "noviembre", "diciembre"},
		short: [12]string{"ene", "feb", "mar", "abr", "may", "jun",
			"jul", "ago", "sep", "oct", "nov", "dic"},
	}
	English = Locale{
		Tag: language.English,
		months: [12]string{"January", "February", "March", "April", "May", "June",
			"July", "August", "September", "October", "November", "December"},
		short: [12]string{"Jan", "Feb", "Mar", "Apr", "May", "Jun",
			"Jul", "Aug", "Sep", "Oct", "Nov", "Dec"},
	}
)

var supported = []Locale{Spanish, English}

var matcher = language.NewMatcher([]language.Tag{language.Spanish, language.English})

// MatchLocale picks a supported locale for an Accept-Language header.
// Spanish is the fallback.
func MatchLocale(acceptLanguage string) Locale {
	tags, _, err := language.ParseAcceptLanguage(acceptLanguage)
	if err != nil || len(tags) == 0 {
		return Spanish
	}
	_, idx, conf := matcher.Match(tags...)
	if conf == language.No {
		return Spanish
	}
	return supported[idx]
}

// MonthName returns the capitalized month name.
func (l Locale) MonthName(m time.Month) string {
	return cases.Title(l.Tag).String(l.months[m-1])
}

// ShortMonth returns the abbreviated month name as written mid-sentence.
func (l Locale) ShortMonth(m time.Month) string {
	return l.short[m-1]
}

func (l Locale) isSpanish() bool {
	base, _ := l.Tag.Base()
	es, _ := language.Spanish.Base()
	return base == es
}

// RangeLabel renders the heading of the view containing ref.
func RangeLabel(c *Calendar, ref time.Time, g Granularity, loc Locale) string {
	ref = Day(ref)
	switch g {
	case Month:
		if loc.isSpanish() {
			return fmt.Sprintf("%s de %d", loc.MonthName(ref.Month()), ref.Year())
		}
		return fmt.Sprintf("%s %d", loc.MonthName(ref.Month()), ref.Year())
	case Week:
		start := c.StartOfWeek(ref)
		end := start.AddDate(0, 0, 6)
		if loc.isSpanish() {
			return fmt.Sprintf("%d %s - %d %s %d",
				start.Day(), loc.ShortMonth(start.Month()),
				end.Day(), loc.ShortMonth(end.Month()), end.Year())
		}
		return fmt.Sprintf("%s %d - %s %d, %d",
			loc.ShortMonth(start.Month()), start.Day(),
			loc.ShortMonth(end.Month()), end.Day(), end.Year())
	case Year:
		return strconv.Itoa(ref.Year())
	}
	return ref.Format(DateLayout)
}
