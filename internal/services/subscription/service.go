package subscription

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ncecere/seat_billing/internal/billing"
	"github.com/ncecere/seat_billing/internal/orgstore"
	"github.com/ncecere/seat_billing/internal/requestctx"
	"github.com/ncecere/seat_billing/internal/timeutil"
)

var (
	ErrInvalidClientID      = errors.New("invalid client_id format")
	ErrOrganizationNotFound = errors.New("organization not found")
	// ErrInvalidUserData marks stored users the calculator refuses to bill.
	ErrInvalidUserData = errors.New("invalid organization user data")
)

// OrganizationStore loads organizations and their users.
type OrganizationStore interface {
	GetOrganization(ctx context.Context, id uuid.UUID) (orgstore.Organization, error)
	ListOrganizationUsers(ctx context.Context, organizationID uuid.UUID, createdBefore time.Time) ([]orgstore.User, error)
}

// ReportArchive keeps a copy of every generated report.
type ReportArchive interface {
	Save(ctx context.Context, report billing.BillingReport) (string, error)
}

// ReportCache short-circuits repeated queries for the same month.
type ReportCache interface {
	Get(ctx context.Context, clientID string, year, month int) (*billing.BillingReport, bool)
	Set(ctx context.Context, report billing.BillingReport) error
}

type Metrics interface {
	RecordReport(outcome string, totalUsers int, totalCost float64)
}

type Options struct {
	Archive ReportArchive
	Cache   ReportCache
	Metrics Metrics
	Logger  *slog.Logger
	Now     func() time.Time
}

// Service answers subscription billing queries for organizations.
type Service struct {
	store   OrganizationStore
	calc    *billing.Calculator
	archive ReportArchive
	cache   ReportCache
	metrics Metrics
	logger  *slog.Logger
	tracer  trace.Tracer
	now     func() time.Time
}

func NewService(store OrganizationStore, calc *billing.Calculator, opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		store:   store,
		calc:    calc,
		archive: opts.Archive,
		cache:   opts.Cache,
		metrics: opts.Metrics,
		logger:  logger,
		tracer:  otel.Tracer("seat_billing/subscription"),
		now:     now,
	}
}

// PricingTiers lists the tier table the service bills with.
func (s *Service) PricingTiers() []billing.TierPrice {
	return billing.TierPrices(s.calc.Tiers())
}

// CurrentPeriod returns the month that is billed when none is requested.
func (s *Service) CurrentPeriod() timeutil.Period {
	return timeutil.CurrentPeriod(s.now(), s.calc.Location())
}

// ParsePeriod reads optional year/month query values relative to the
// current month in the billing timezone.
func (s *Service) ParsePeriod(year, month string) (timeutil.Period, error) {
	return timeutil.ParsePeriod(year, month, s.now(), s.calc.Location())
}

// GetSubscriptionBilling computes the report for one organization. A zero
// period selects the current month in the billing timezone.
func (s *Service) GetSubscriptionBilling(ctx context.Context, clientID string, period timeutil.Period) (billing.BillingReport, error) {
	ctx, span := s.tracer.Start(ctx, "GetSubscriptionBilling")
	defer span.End()

	report, err := s.getSubscriptionBilling(ctx, clientID, period)
	outcome := outcomeFor(err)
	if err != nil {
		if outcome == "error" {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		s.record(outcome, 0, 0)
		return billing.BillingReport{}, err
	}

	current := report.SubscriptionData.CurrentMonth
	span.SetAttributes(
		attribute.String("billing.client_id", report.ClientID),
		attribute.Int("billing.total_users", current.TotalUsers),
	)
	s.record(outcome, current.TotalUsers, current.TotalCostPLN)
	s.logger.Info("subscription billing computed",
		slog.String("client_id", report.ClientID),
		slog.String("admin", requestctx.Subject(ctx)),
		slog.Int("year", current.Year),
		slog.Int("month", current.Month),
		slog.Int("total_users", current.TotalUsers),
		slog.Float64("total_cost_pln", current.TotalCostPLN),
	)
	return report, nil
}

func (s *Service) getSubscriptionBilling(ctx context.Context, clientID string, period timeutil.Period) (billing.BillingReport, error) {
	orgID, err := uuid.Parse(clientID)
	if err != nil {
		return billing.BillingReport{}, ErrInvalidClientID
	}
	if period.IsZero() {
		period = s.CurrentPeriod()
	}
	if err := period.Validate(); err != nil {
		return billing.BillingReport{}, err
	}
	if s.cache != nil {
		if cached, ok := s.cache.Get(ctx, orgID.String(), period.Year, period.Month); ok {
			return *cached, nil
		}
	}

	org, err := s.store.GetOrganization(ctx, orgID)
	if err != nil {
		if errors.Is(err, orgstore.ErrNotFound) {
			return billing.BillingReport{}, ErrOrganizationNotFound
		}
		return billing.BillingReport{}, fmt.Errorf("load organization %s: %w", orgID, err)
	}
	members, err := s.store.ListOrganizationUsers(ctx, orgID, period.End(s.calc.Location()))
	if err != nil {
		return billing.BillingReport{}, fmt.Errorf("list users for %s: %w", orgID, err)
	}

	users := make([]billing.OrganizationUser, 0, len(members))
	for _, member := range members {
		users = append(users, billing.OrganizationUser{
			UserID:    member.ID.String(),
			UserName:  member.Name,
			UserEmail: member.Email,
			CreatedAt: member.CreatedAt.Unix(),
		})
	}

	month, err := s.calc.ComputeBillingMonth(users, period.Year, period.Month)
	if err != nil {
		if errors.Is(err, billing.ErrInvalidArgument) {
			return billing.BillingReport{}, fmt.Errorf("%w: organization %s: %v", ErrInvalidUserData, orgID, err)
		}
		return billing.BillingReport{}, fmt.Errorf("compute billing for %s: %w", orgID, err)
	}
	report := billing.NewReport(orgID.String(), org.Name, month, s.calc.Tiers())

	if s.cache != nil {
		if err := s.cache.Set(ctx, report); err != nil {
			s.logger.Warn("cache billing report failed", slog.String("client_id", report.ClientID), slog.String("error", err.Error()))
		}
	}

	if s.archive != nil {
		key, err := s.archive.Save(ctx, report)
		if err != nil {
			s.logger.Warn("archive billing report failed",
				slog.String("client_id", report.ClientID),
				slog.String("period", period.String()),
				slog.String("error", err.Error()),
			)
		} else {
			s.logger.Debug("billing report archived", slog.String("key", key))
		}
	}
	return report, nil
}

func (s *Service) record(outcome string, users int, cost float64) {
	if s.metrics != nil {
		s.metrics.RecordReport(outcome, users, cost)
	}
}

func outcomeFor(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrInvalidClientID):
		return "invalid_client_id"
	case errors.Is(err, ErrOrganizationNotFound):
		return "not_found"
	case errors.Is(err, timeutil.ErrInvalidPeriod):
		return "invalid_period"
	case errors.Is(err, ErrInvalidUserData):
		return "invalid_data"
	default:
		return "error"
	}
}
