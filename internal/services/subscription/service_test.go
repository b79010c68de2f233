package subscription

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/ncecere/seat_billing/internal/billing"
	"github.com/ncecere/seat_billing/internal/orgstore"
	"github.com/ncecere/seat_billing/internal/timeutil"
)

type stubStore struct {
	org      orgstore.Organization
	users    []orgstore.User
	getErr   error
	listErr  error
	getCalls int
	before   time.Time
}

func (s *stubStore) GetOrganization(_ context.Context, id uuid.UUID) (orgstore.Organization, error) {
	s.getCalls++
	if s.getErr != nil {
		return orgstore.Organization{}, s.getErr
	}
	if id != s.org.ID {
		return orgstore.Organization{}, orgstore.ErrNotFound
	}
	return s.org, nil
}

func (s *stubStore) ListOrganizationUsers(_ context.Context, _ uuid.UUID, createdBefore time.Time) ([]orgstore.User, error) {
	s.before = createdBefore
	return s.users, s.listErr
}

type stubArchive struct {
	saved []billing.BillingReport
	err   error
}

func (a *stubArchive) Save(_ context.Context, report billing.BillingReport) (string, error) {
	if a.err != nil {
		return "", a.err
	}
	a.saved = append(a.saved, report)
	return "key", nil
}

type stubMetrics struct {
	outcomes []string
	cost     float64
}

func (m *stubMetrics) RecordReport(outcome string, _ int, cost float64) {
	m.outcomes = append(m.outcomes, outcome)
	m.cost = cost
}

func newTestService(t *testing.T, store OrganizationStore, opts Options) *Service {
	t.Helper()
	calc, err := billing.NewCalculator(billing.DefaultTiers(), billing.CalculatorOptions{})
	require.NoError(t, err)
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Date(2024, time.January, 25, 12, 0, 0, 0, time.UTC) }
	}
	return NewService(store, calc, opts)
}

func acmeStore() *stubStore {
	orgID := uuid.New()
	return &stubStore{
		org: orgstore.Organization{ID: orgID, Name: "Acme"},
		users: []orgstore.User{
			{ID: uuid.New(), OrganizationID: orgID, Name: "Admin", Email: "admin@acme.test", CreatedAt: time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)},
			{ID: uuid.New(), OrganizationID: orgID, Name: "Late", Email: "late@acme.test", CreatedAt: time.Date(2024, 1, 20, 9, 0, 0, 0, time.UTC)},
		},
	}
}

func TestGetSubscriptionBillingCurrentMonth(t *testing.T) {
	store := acmeStore()
	archive := &stubArchive{}
	metrics := &stubMetrics{}
	svc := newTestService(t, store, Options{Archive: archive, Metrics: metrics})

	report, err := svc.GetSubscriptionBilling(context.Background(), store.org.ID.String(), timeutil.Period{})
	require.NoError(t, err)
	require.True(t, report.Success)
	require.Equal(t, store.org.ID.String(), report.ClientID)
	require.Equal(t, "Acme", report.ClientName)

	current := report.SubscriptionData.CurrentMonth
	require.Equal(t, 2024, current.Year)
	require.Equal(t, 1, current.Month)
	require.Equal(t, 2, current.TotalUsers)
	require.Equal(t, 109.58, current.TotalCostPLN)
	require.Equal(t, "Late", current.UserDetails[0].UserName)
	require.Len(t, report.SubscriptionData.PricingTiers, 4)

	require.True(t, store.before.Equal(time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)))
	require.Len(t, archive.saved, 1)
	require.Equal(t, []string{"success"}, metrics.outcomes)
	require.Equal(t, 109.58, metrics.cost)
}

func TestGetSubscriptionBillingExplicitPeriod(t *testing.T) {
	store := acmeStore()
	svc := newTestService(t, store, Options{})

	report, err := svc.GetSubscriptionBilling(context.Background(), store.org.ID.String(), timeutil.Period{Year: 2023, Month: 12})
	require.NoError(t, err)
	current := report.SubscriptionData.CurrentMonth
	require.Equal(t, 0, current.TotalUsers)
	require.Zero(t, current.TotalCostPLN)
	require.Empty(t, current.UserDetails)
}

func TestGetSubscriptionBillingErrors(t *testing.T) {
	store := acmeStore()
	metrics := &stubMetrics{}
	svc := newTestService(t, store, Options{Metrics: metrics})
	ctx := context.Background()

	_, err := svc.GetSubscriptionBilling(ctx, "not-a-uuid", timeutil.Period{})
	require.ErrorIs(t, err, ErrInvalidClientID)
	require.Zero(t, store.getCalls)

	_, err = svc.GetSubscriptionBilling(ctx, uuid.NewString(), timeutil.Period{})
	require.ErrorIs(t, err, ErrOrganizationNotFound)

	_, err = svc.GetSubscriptionBilling(ctx, store.org.ID.String(), timeutil.Period{Year: 2024, Month: 13})
	require.ErrorIs(t, err, timeutil.ErrInvalidPeriod)
	require.Equal(t, 1, store.getCalls)

	store.users = append(store.users, orgstore.User{ID: uuid.New(), Name: "Unix epoch", CreatedAt: time.Unix(0, 0)})
	_, err = svc.GetSubscriptionBilling(ctx, store.org.ID.String(), timeutil.Period{})
	require.ErrorIs(t, err, ErrInvalidUserData)
	require.NotErrorIs(t, err, billing.ErrInvalidArgument)
	store.users = store.users[:len(store.users)-1]

	store.listErr = errors.New("connection refused")
	_, err = svc.GetSubscriptionBilling(ctx, store.org.ID.String(), timeutil.Period{})
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrOrganizationNotFound)

	require.Equal(t, []string{"invalid_client_id", "not_found", "invalid_period", "invalid_data", "error"}, metrics.outcomes)
}

func TestGetSubscriptionBillingBillsUsersBefore1970(t *testing.T) {
	store := acmeStore()
	store.users = append(store.users, orgstore.User{
		ID: uuid.New(), OrganizationID: store.org.ID, Name: "Pioneer", CreatedAt: time.Date(1969, 6, 1, 0, 0, 0, 0, time.UTC),
	})
	svc := newTestService(t, store, Options{})

	report, err := svc.GetSubscriptionBilling(context.Background(), store.org.ID.String(), timeutil.Period{})
	require.NoError(t, err)
	current := report.SubscriptionData.CurrentMonth
	require.Equal(t, 3, current.TotalUsers)
	require.Equal(t, "1969-06-01", current.UserDetails[2].CreatedDate)
	require.Equal(t, 1.0, current.UserDetails[2].BillingProportion)
	require.Equal(t, 188.58, current.TotalCostPLN)
}

func TestGetSubscriptionBillingArchiveFailureIsLogged(t *testing.T) {
	store := acmeStore()
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))
	svc := newTestService(t, store, Options{Archive: &stubArchive{err: errors.New("disk full")}, Logger: logger})

	report, err := svc.GetSubscriptionBilling(context.Background(), store.org.ID.String(), timeutil.Period{})
	require.NoError(t, err)
	require.True(t, report.Success)
	require.Contains(t, logs.String(), "archive billing report failed")
	require.Contains(t, logs.String(), "disk full")
}

func TestPricingTiers(t *testing.T) {
	svc := newTestService(t, acmeStore(), Options{})
	tiers := svc.PricingTiers()
	require.Equal(t, []billing.TierPrice{
		{Range: "1-3 users", PricePLN: 79},
		{Range: "4-9 users", PricePLN: 69},
		{Range: "10-19 users", PricePLN: 59},
		{Range: "20+ users", PricePLN: 54},
	}, tiers)
	require.Equal(t, timeutil.Period{Year: 2024, Month: 1}, svc.CurrentPeriod())
}

type mapCache struct {
	reports map[string]billing.BillingReport
	hits    int
}

func (m *mapCache) key(clientID string, year, month int) string {
	return timeutil.Period{Year: year, Month: month}.String() + "/" + clientID
}

func (m *mapCache) Get(_ context.Context, clientID string, year, month int) (*billing.BillingReport, bool) {
	report, ok := m.reports[m.key(clientID, year, month)]
	if ok {
		m.hits++
	}
	return &report, ok
}

func (m *mapCache) Set(_ context.Context, report billing.BillingReport) error {
	current := report.SubscriptionData.CurrentMonth
	m.reports[m.key(report.ClientID, current.Year, current.Month)] = report
	return nil
}

func TestGetSubscriptionBillingUsesCache(t *testing.T) {
	store := acmeStore()
	cache := &mapCache{reports: map[string]billing.BillingReport{}}
	archive := &stubArchive{}
	svc := newTestService(t, store, Options{Cache: cache, Archive: archive})
	ctx := context.Background()

	first, err := svc.GetSubscriptionBilling(ctx, store.org.ID.String(), timeutil.Period{})
	require.NoError(t, err)
	require.Equal(t, 1, store.getCalls)

	second, err := svc.GetSubscriptionBilling(ctx, store.org.ID.String(), timeutil.Period{Year: 2024, Month: 1})
	require.NoError(t, err)
	require.Equal(t, 1, store.getCalls)
	require.Equal(t, 1, cache.hits)
	require.Equal(t, first, second)
	require.Len(t, archive.saved, 1)
}
