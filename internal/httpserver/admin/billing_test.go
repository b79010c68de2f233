package admin

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/ncecere/seat_billing/internal/app"
	"github.com/ncecere/seat_billing/internal/auth"
	"github.com/ncecere/seat_billing/internal/billing"
	"github.com/ncecere/seat_billing/internal/config"
	"github.com/ncecere/seat_billing/internal/limits"
	"github.com/ncecere/seat_billing/internal/orgstore"
	"github.com/ncecere/seat_billing/internal/services/subscription"
)

type memoryStore struct {
	orgs  map[uuid.UUID]orgstore.Organization
	users map[uuid.UUID][]orgstore.User
	err   error
}

func (m *memoryStore) GetOrganization(_ context.Context, id uuid.UUID) (orgstore.Organization, error) {
	if m.err != nil {
		return orgstore.Organization{}, m.err
	}
	org, ok := m.orgs[id]
	if !ok {
		return orgstore.Organization{}, orgstore.ErrNotFound
	}
	return org, nil
}

func (m *memoryStore) ListOrganizationUsers(_ context.Context, id uuid.UUID, createdBefore time.Time) ([]orgstore.User, error) {
	var users []orgstore.User
	for _, user := range m.users[id] {
		if user.CreatedAt.Before(createdBefore) {
			users = append(users, user)
		}
	}
	return users, nil
}

type harness struct {
	app    *fiber.App
	tokens *auth.TokenManager
	store  *memoryStore
	orgID  uuid.UUID
}

func newHarness(t *testing.T, limit limits.LimitConfig) *harness {
	t.Helper()
	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	tokens, err := auth.NewTokenManager("test-secret", time.Minute, "seat-billing")
	require.NoError(t, err)

	orgID := uuid.New()
	store := &memoryStore{
		orgs: map[uuid.UUID]orgstore.Organization{orgID: {ID: orgID, Name: "Acme"}},
		users: map[uuid.UUID][]orgstore.User{orgID: {
			{ID: uuid.New(), OrganizationID: orgID, Name: "Admin", Email: "admin@acme.test", CreatedAt: time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)},
			{ID: uuid.New(), OrganizationID: orgID, Name: "Late", Email: "late@acme.test", CreatedAt: time.Date(2024, 1, 20, 9, 0, 0, 0, time.UTC)},
		}},
	}
	calc, err := billing.NewCalculator(billing.DefaultTiers(), billing.CalculatorOptions{})
	require.NoError(t, err)
	svc := subscription.NewService(store, calc, subscription.Options{
		Now: func() time.Time { return time.Date(2024, time.January, 28, 0, 0, 0, 0, time.UTC) },
	})

	container := &app.Container{
		Config:        &config.Config{Admin: config.AdminConfig{AdminRole: "admin"}},
		Subscriptions: svc,
		Tokens:        tokens,
		RateLimiter:   limits.NewRateLimiter(client),
		AdminLimit:    limit,
	}
	fiberApp := fiber.New()
	Register(fiberApp, container)
	return &harness{app: fiberApp, tokens: tokens, store: store, orgID: orgID}
}

func (h *harness) token(t *testing.T, subject string, roles ...string) string {
	t.Helper()
	token, _, err := h.tokens.Issue(subject, subject+"@example.com", roles...)
	require.NoError(t, err)
	return token
}

func (h *harness) get(t *testing.T, path, token string) (int, []byte) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := h.app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, body
}

func errorMessage(t *testing.T, body []byte) string {
	t.Helper()
	var payload struct {
		Error string `json:"error"`
	}
	require.NoError(t, json.Unmarshal(body, &payload))
	return payload.Error
}

func billingPath(clientID string) string {
	return "/admin/organizations/" + clientID + "/subscription-billing"
}

func TestSubscriptionBillingSuccess(t *testing.T) {
	h := newHarness(t, limits.LimitConfig{})
	status, body := h.get(t, billingPath(h.orgID.String()), h.token(t, "root", "admin"))
	require.Equal(t, http.StatusOK, status)

	report, err := billing.ParseReport(body)
	require.NoError(t, err)
	require.Equal(t, "Acme", report.ClientName)
	current := report.SubscriptionData.CurrentMonth
	require.Equal(t, 2024, current.Year)
	require.Equal(t, 1, current.Month)
	require.Equal(t, 109.58, current.TotalCostPLN)
	require.Equal(t, "Late", current.UserDetails[0].UserName)
}

func TestSubscriptionBillingHistoricalMonth(t *testing.T) {
	h := newHarness(t, limits.LimitConfig{})
	status, body := h.get(t, billingPath(h.orgID.String())+"?year=2023&month=12", h.token(t, "root", "admin"))
	require.Equal(t, http.StatusOK, status)
	report, err := billing.ParseReport(body)
	require.NoError(t, err)
	require.Zero(t, report.SubscriptionData.CurrentMonth.TotalUsers)

	status, _ = h.get(t, billingPath(h.orgID.String())+"?year=2024&month=13", h.token(t, "root", "admin"))
	require.Equal(t, http.StatusUnprocessableEntity, status)
}

func TestSubscriptionBillingErrorStatuses(t *testing.T) {
	h := newHarness(t, limits.LimitConfig{})
	admin := h.token(t, "root", "admin")

	cases := []struct {
		name    string
		path    string
		token   string
		status  int
		message string
	}{
		{"missing token", billingPath(h.orgID.String()), "", http.StatusUnauthorized, "Invalid or expired token"},
		{"garbage token", billingPath(h.orgID.String()), "not-a-jwt", http.StatusUnauthorized, "Invalid or expired token"},
		{"non admin", billingPath(h.orgID.String()), h.token(t, "viewer", "viewer"), http.StatusForbidden, "Admin access required"},
		{"bad client id", billingPath("acme"), admin, http.StatusUnprocessableEntity, "Invalid client_id format"},
		{"unknown org", billingPath(uuid.NewString()), admin, http.StatusNotFound, "Organization not found"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status, body := h.get(t, tc.path, tc.token)
			require.Equal(t, tc.status, status)
			require.Equal(t, tc.message, errorMessage(t, body))
		})
	}
}

func TestSubscriptionBillingInternalError(t *testing.T) {
	h := newHarness(t, limits.LimitConfig{})
	h.store.err = context.DeadlineExceeded
	status, body := h.get(t, billingPath(h.orgID.String()), h.token(t, "root", "admin"))
	require.Equal(t, http.StatusInternalServerError, status)
	require.Equal(t, "Internal server error", errorMessage(t, body))
}

func TestSubscriptionBillingStoredUserData(t *testing.T) {
	h := newHarness(t, limits.LimitConfig{})
	admin := h.token(t, "root", "admin")
	pioneer := orgstore.User{ID: uuid.New(), OrganizationID: h.orgID, Name: "Pioneer", CreatedAt: time.Date(1969, 6, 1, 0, 0, 0, 0, time.UTC)}
	h.store.users[h.orgID] = append(h.store.users[h.orgID], pioneer)

	status, body := h.get(t, billingPath(h.orgID.String()), admin)
	require.Equal(t, http.StatusOK, status)
	report, err := billing.ParseReport(body)
	require.NoError(t, err)
	require.Equal(t, 3, report.SubscriptionData.CurrentMonth.TotalUsers)

	broken := orgstore.User{ID: uuid.New(), OrganizationID: h.orgID, Name: "Epoch", CreatedAt: time.Unix(0, 0)}
	h.store.users[h.orgID] = append(h.store.users[h.orgID], broken)
	status, body = h.get(t, billingPath(h.orgID.String()), admin)
	require.Equal(t, http.StatusInternalServerError, status)
	require.Equal(t, "Internal server error", errorMessage(t, body))
	require.NotContains(t, string(body), broken.ID.String())
}

func TestSubscriptionBillingRateLimited(t *testing.T) {
	h := newHarness(t, limits.LimitConfig{RequestsPerMinute: 2})
	token := h.token(t, "root", "admin")
	for i := 0; i < 2; i++ {
		status, _ := h.get(t, billingPath(h.orgID.String()), token)
		require.Equal(t, http.StatusOK, status)
	}
	status, body := h.get(t, billingPath(h.orgID.String()), token)
	require.Equal(t, http.StatusTooManyRequests, status)
	require.Equal(t, "Rate limit exceeded", errorMessage(t, body))

	status, _ = h.get(t, billingPath(h.orgID.String()), h.token(t, "other", "admin"))
	require.Equal(t, http.StatusOK, status)
}

func TestPricingTiersRoute(t *testing.T) {
	h := newHarness(t, limits.LimitConfig{})
	status, body := h.get(t, "/admin/pricing-tiers", h.token(t, "root", "admin"))
	require.Equal(t, http.StatusOK, status)
	var payload struct {
		PricingTiers []billing.TierPrice `json:"pricing_tiers"`
	}
	require.NoError(t, json.Unmarshal(body, &payload))
	require.Len(t, payload.PricingTiers, 4)
	require.Equal(t, "1-3 users", payload.PricingTiers[0].Range)
	require.Equal(t, 79.0, payload.PricingTiers[0].PricePLN)
}
