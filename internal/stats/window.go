package stats

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Month selects a calendar month, or the whole year with WholeYear.
type Month int

const WholeYear Month = -1

const (
	January Month = iota + 1
	February
	March
	April
	May
	June
	July
	August
	September
	October
	November
	December
)

// ErrInvalidMonth is returned for months outside 1..12 other than WholeYear.
var ErrInvalidMonth = errors.New("stats: invalid month")

func (m Month) String() string {
	if m == WholeYear {
		return "Year"
	}
	if m >= January && m <= December {
		return time.Month(m).String()
	}
	return "Month(" + strconv.Itoa(int(m)) + ")"
}

// Valid reports whether m is a calendar month or WholeYear.
func (m Month) Valid() bool {
	return m == WholeYear || (m >= January && m <= December)
}

// ParseMonth accepts a month number, an English month name, or "all".
func ParseMonth(s string) (Month, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" || s == "all" || s == "-1" {
		return WholeYear, nil
	}
	if n, err := strconv.Atoi(s); err == nil {
		m := Month(n)
		if !m.Valid() {
			return 0, fmt.Errorf("%w: %d", ErrInvalidMonth, n)
		}
		return m, nil
	}
	for m := January; m <= December; m++ {
		name := strings.ToLower(time.Month(m).String())
		if s == name || (len(s) >= 3 && strings.HasPrefix(name, s)) {
			return m, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidMonth, s)
}

// Window is a half-open time range [From, To).
type Window struct {
	Month Month
	Year  int
	From  time.Time
	To    time.Time
}

// ResolveWindow turns a month and year into a window in loc. A year of zero
// or less means the year of now.
func ResolveWindow(month Month, year int, now time.Time, loc *time.Location) (Window, error) {
	if !month.Valid() {
		return Window{}, fmt.Errorf("%w: %d", ErrInvalidMonth, int(month))
	}
	if loc == nil {
		loc = time.Local
	}
	if year <= 0 {
		year = now.In(loc).Year()
	}
	if month == WholeYear {
		from := time.Date(year, time.January, 1, 0, 0, 0, 0, loc)
		return Window{Month: month, Year: year, From: from, To: from.AddDate(1, 0, 0)}, nil
	}
	from := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, loc)
	return Window{Month: month, Year: year, From: from, To: from.AddDate(0, 1, 0)}, nil
}
