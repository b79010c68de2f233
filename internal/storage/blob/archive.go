package blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/ncecere/seat_billing/internal/billing"
)

const reportContentType = "application/json"

// ReportArchive stores one JSON document per organization and month.
type ReportArchive struct {
	store Store
}

func NewReportArchive(store Store) *ReportArchive {
	return &ReportArchive{store: store}
}

// ReportKey returns the archive key for a report, e.g. reports/<client>/2024-02.json.
func ReportKey(clientID string, year, month int) string {
	return fmt.Sprintf("reports/%s/%04d-%02d.json", clientID, year, month)
}

// Save overwrites any earlier archived report for the same month.
func (a *ReportArchive) Save(ctx context.Context, report billing.BillingReport) (string, error) {
	if report.SubscriptionData == nil || report.SubscriptionData.CurrentMonth == nil {
		return "", fmt.Errorf("archive report for %s: no current month", report.ClientID)
	}
	current := report.SubscriptionData.CurrentMonth
	payload, err := json.Marshal(report)
	if err != nil {
		return "", fmt.Errorf("encode report: %w", err)
	}
	key := ReportKey(report.ClientID, current.Year, current.Month)
	_, err = a.store.Put(ctx, key, bytes.NewReader(payload), PutOptions{
		ContentType: reportContentType,
		Metadata: map[string]string{
			"client-id":   report.ClientID,
			"total-users": strconv.Itoa(current.TotalUsers),
		},
	})
	if err != nil {
		return "", err
	}
	return key, nil
}

// Load reads an archived report back through the strict parser.
func (a *ReportArchive) Load(ctx context.Context, clientID string, year, month int) (*billing.BillingReport, error) {
	body, _, err := a.store.Get(ctx, ReportKey(clientID, year, month))
	if err != nil {
		return nil, err
	}
	defer body.Close()
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(body); err != nil {
		return nil, err
	}
	return billing.ParseReport(buf.Bytes())
}
