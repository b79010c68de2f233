package timeutil

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var ErrInvalidPeriod = errors.New("invalid period")

// Period identifies one calendar month.
type Period struct {
	Year  int
	Month int
}

// EnsureLocation returns UTC when loc is nil.
func EnsureLocation(loc *time.Location) *time.Location {
	if loc == nil {
		return time.UTC
	}
	return loc
}

// CurrentPeriod returns the month containing now in the provided zone.
func CurrentPeriod(now time.Time, loc *time.Location) Period {
	now = now.In(EnsureLocation(loc))
	return Period{Year: now.Year(), Month: int(now.Month())}
}

// ParsePeriod reads optional year and month values. Missing values fall back
// to the current month in loc; a year without a month is rejected.
func ParsePeriod(year, month string, now time.Time, loc *time.Location) (Period, error) {
	p := CurrentPeriod(now, loc)
	year = strings.TrimSpace(year)
	month = strings.TrimSpace(month)
	if year == "" && month == "" {
		return p, nil
	}
	if month == "" {
		return Period{}, fmt.Errorf("%w: month is required when year is set", ErrInvalidPeriod)
	}
	m, err := strconv.Atoi(month)
	if err != nil || m < 1 || m > 12 {
		return Period{}, fmt.Errorf("%w: month must be between 1 and 12", ErrInvalidPeriod)
	}
	p.Month = m
	if year != "" {
		y, err := strconv.Atoi(year)
		if err != nil || y < 1 || y > 9999 {
			return Period{}, fmt.Errorf("%w: year must be between 1 and 9999", ErrInvalidPeriod)
		}
		p.Year = y
	}
	return p, nil
}

// IsZero reports whether no month was selected.
func (p Period) IsZero() bool { return p.Year == 0 && p.Month == 0 }

// String formats the period as YYYY-MM.
func (p Period) String() string { return fmt.Sprintf("%04d-%02d", p.Year, p.Month) }

// Validate rejects months outside 1..12 and years outside 1..9999.
func (p Period) Validate() error {
	if p.Month < 1 || p.Month > 12 {
		return fmt.Errorf("%w: month must be between 1 and 12", ErrInvalidPeriod)
	}
	if p.Year < 1 || p.Year > 9999 {
		return fmt.Errorf("%w: year must be between 1 and 9999", ErrInvalidPeriod)
	}
	return nil
}

// End returns the first instant after the month in loc.
func (p Period) End(loc *time.Location) time.Time {
	return time.Date(p.Year, time.Month(p.Month)+1, 1, 0, 0, 0, 0, EnsureLocation(loc))
}
