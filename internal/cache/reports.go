package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ncecere/seat_billing/internal/billing"
)

// ReportCache keeps recently computed reports in Redis for a short TTL.
type ReportCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewReportCache returns nil when ttl is not positive, which disables caching.
func NewReportCache(client *redis.Client, ttl time.Duration) *ReportCache {
	if client == nil || ttl <= 0 {
		return nil
	}
	return &ReportCache{client: client, ttl: ttl}
}

func (c *ReportCache) Get(ctx context.Context, clientID string, year, month int) (*billing.BillingReport, bool) {
	if c == nil {
		return nil, false
	}
	data, err := c.client.Get(ctx, reportKey(clientID, year, month)).Bytes()
	if err != nil {
		return nil, false
	}
	report, err := billing.ParseReport(data)
	if err != nil {
		return nil, false
	}
	return report, true
}

func (c *ReportCache) Set(ctx context.Context, report billing.BillingReport) error {
	if c == nil {
		return nil
	}
	if report.SubscriptionData == nil || report.SubscriptionData.CurrentMonth == nil {
		return errors.New("cache report: no current month")
	}
	data, err := json.Marshal(report)
	if err != nil {
		return err
	}
	current := report.SubscriptionData.CurrentMonth
	return c.client.Set(ctx, reportKey(report.ClientID, current.Year, current.Month), data, c.ttl).Err()
}

func reportKey(clientID string, year, month int) string {
	return fmt.Sprintf("report:%s:%04d-%02d", clientID, year, month)
}
