package billing

import "time"

// IsLeapYear applies the Gregorian rule: every fourth year, except centuries
// not divisible by 400.
func IsLeapYear(year int) bool {
	if year%400 == 0 {
		return true
	}
	if year%100 == 0 {
		return false
	}
	return year%4 == 0
}

// DaysInMonth returns the number of calendar days in month (1-12) of year.
func DaysInMonth(year, month int) (int, error) {
	if err := validatePeriod(year, month); err != nil {
		return 0, err
	}
	switch time.Month(month) {
	case time.February:
		if IsLeapYear(year) {
			return 29, nil
		}
		return 28, nil
	case time.April, time.June, time.September, time.November:
		return 30, nil
	default:
		return 31, nil
	}
}

func validatePeriod(year, month int) error {
	if year < 1 {
		return invalidArgument("year", "must be positive, got %d", year)
	}
	if month < 1 || month > 12 {
		return invalidArgument("month", "must be between 1 and 12, got %d", month)
	}
	return nil
}

// monthBounds returns [start, end) of the month in loc.
func monthBounds(year, month int, loc *time.Location) (time.Time, time.Time) {
	start := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, loc)
	return start, start.AddDate(0, 1, 0)
}
