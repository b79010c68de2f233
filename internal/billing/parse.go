package billing

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrMalformedReport is the root of every ParseError.
var ErrMalformedReport = errors.New("malformed billing report")

// ParseErrorKind enumerates the ways a report payload can be rejected.
type ParseErrorKind int

const (
	MalformedJSON ParseErrorKind = iota + 1
	EmptyPayload
	MissingSuccess
	Unsuccessful
	MissingSubscriptionData
	MissingCurrentMonth
	InvalidCurrentMonth
)

func (k ParseErrorKind) String() string {
	switch k {
	case MalformedJSON:
		return "malformed json"
	case EmptyPayload:
		return "empty payload"
	case MissingSuccess:
		return "missing success flag"
	case Unsuccessful:
		return "unsuccessful response"
	case MissingSubscriptionData:
		return "missing subscription_data"
	case MissingCurrentMonth:
		return "missing subscription_data.current_month"
	case InvalidCurrentMonth:
		return "invalid subscription_data.current_month"
	default:
		return "unknown"
	}
}

type ParseError struct {
	Kind ParseErrorKind
	Err  error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", ErrMalformedReport, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", ErrMalformedReport, e.Kind)
}

func (e *ParseError) Is(target error) bool { return target == ErrMalformedReport }

func (e *ParseError) Unwrap() error { return e.Err }

type rawReport struct {
	Success          *bool             `json:"success"`
	ClientID         string            `json:"client_id"`
	ClientName       string            `json:"client_name"`
	SubscriptionData *SubscriptionData `json:"subscription_data"`
}

// ParseReport decodes a billing report and accepts it only when success is
// true and subscription_data.current_month is present and coherent.
func ParseReport(data []byte) (*BillingReport, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, &ParseError{Kind: EmptyPayload}
	}

	var raw rawReport
	if err := json.Unmarshal(trimmed, &raw); err != nil {
		return nil, &ParseError{Kind: MalformedJSON, Err: err}
	}
	switch {
	case raw.Success == nil:
		return nil, &ParseError{Kind: MissingSuccess}
	case !*raw.Success:
		return nil, &ParseError{Kind: Unsuccessful}
	case raw.SubscriptionData == nil:
		return nil, &ParseError{Kind: MissingSubscriptionData}
	case raw.SubscriptionData.CurrentMonth == nil:
		return nil, &ParseError{Kind: MissingCurrentMonth}
	}
	if err := checkMonthReport(raw.SubscriptionData.CurrentMonth); err != nil {
		return nil, &ParseError{Kind: InvalidCurrentMonth, Err: err}
	}

	return &BillingReport{
		Success:          true,
		ClientID:         raw.ClientID,
		ClientName:       raw.ClientName,
		SubscriptionData: raw.SubscriptionData,
	}, nil
}

func checkMonthReport(m *MonthReport) error {
	days, err := DaysInMonth(m.Year, m.Month)
	if err != nil {
		return err
	}
	if m.DaysInMonth != days {
		return fmt.Errorf("days_in_month %d does not match %04d-%02d", m.DaysInMonth, m.Year, m.Month)
	}
	if m.TotalUsers < 0 {
		return fmt.Errorf("total_users %d is negative", m.TotalUsers)
	}
	if m.TotalUsers != len(m.UserDetails) {
		return fmt.Errorf("total_users %d but %d user_details", m.TotalUsers, len(m.UserDetails))
	}
	return nil
}
