package billing

import (
	"errors"
	"testing"
)

func TestDaysInMonth(t *testing.T) {
	cases := []struct {
		year, month, want int
	}{
		{2024, 1, 31},
		{2024, 2, 29},
		{2023, 2, 28},
		{2000, 2, 29},
		{1900, 2, 28},
		{2100, 2, 28},
		{2024, 4, 30},
		{2024, 6, 30},
		{2024, 9, 30},
		{2024, 11, 30},
		{2024, 12, 31},
	}
	for _, tc := range cases {
		got, err := DaysInMonth(tc.year, tc.month)
		if err != nil {
			t.Fatalf("DaysInMonth(%d, %d): %v", tc.year, tc.month, err)
		}
		if got != tc.want {
			t.Fatalf("DaysInMonth(%d, %d) = %d, want %d", tc.year, tc.month, got, tc.want)
		}
	}
}

func TestDaysInMonthMatchesLeapRule(t *testing.T) {
	for year := 1; year <= 2400; year++ {
		for month := 1; month <= 12; month++ {
			days, err := DaysInMonth(year, month)
			if err != nil {
				t.Fatalf("DaysInMonth(%d, %d): %v", year, month, err)
			}
			if days < 28 || days > 31 {
				t.Fatalf("DaysInMonth(%d, %d) = %d out of range", year, month, days)
			}
			if (days == 29) != (month == 2 && IsLeapYear(year)) {
				t.Fatalf("DaysInMonth(%d, %d) = %d disagrees with leap rule", year, month, days)
			}
		}
	}
}

func TestDaysInMonthRejectsInvalidPeriod(t *testing.T) {
	for _, tc := range []struct{ year, month int }{{2024, 0}, {2024, 13}, {0, 5}, {-1, 1}} {
		_, err := DaysInMonth(tc.year, tc.month)
		if !errors.Is(err, ErrInvalidArgument) {
			t.Fatalf("DaysInMonth(%d, %d) expected ErrInvalidArgument, got %v", tc.year, tc.month, err)
		}
		var argErr *ArgumentError
		if !errors.As(err, &argErr) {
			t.Fatalf("expected *ArgumentError, got %T", err)
		}
	}
}
