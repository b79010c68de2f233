package cache

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/ncecere/seat_billing/internal/billing"
)

func TestReportCacheRoundTrip(t *testing.T) {
	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	cache := NewReportCache(client, time.Minute)
	require.NotNil(t, cache)
	ctx := context.Background()

	month, err := billing.ComputeBillingMonth(nil, billing.DefaultTiers(), 2024, 2)
	require.NoError(t, err)
	report := billing.NewReport("org-1", "Acme", month, billing.DefaultTiers())

	_, ok := cache.Get(ctx, "org-1", 2024, 2)
	require.False(t, ok)

	require.NoError(t, cache.Set(ctx, report))
	got, ok := cache.Get(ctx, "org-1", 2024, 2)
	require.True(t, ok)
	require.Equal(t, "Acme", got.ClientName)
	require.Equal(t, 29, got.SubscriptionData.CurrentMonth.DaysInMonth)

	server.FastForward(2 * time.Minute)
	_, ok = cache.Get(ctx, "org-1", 2024, 2)
	require.False(t, ok)
}

func TestReportCacheIgnoresCorruptEntries(t *testing.T) {
	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	require.NoError(t, server.Set(reportKey("org-1", 2024, 1), `{"success":false}`))
	cache := NewReportCache(client, time.Minute)
	_, ok := cache.Get(context.Background(), "org-1", 2024, 1)
	require.False(t, ok)

	require.Error(t, cache.Set(context.Background(), billing.BillingReport{ClientID: "x"}))
}

func TestNewReportCacheDisabled(t *testing.T) {
	cache := NewReportCache(nil, time.Minute)
	require.Nil(t, cache)
	_, ok := cache.Get(context.Background(), "org", 2024, 1)
	require.False(t, ok)
	require.NoError(t, cache.Set(context.Background(), billing.BillingReport{}))
}
