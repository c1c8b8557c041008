package commands

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mamadbah2/farmledger/internal/domain/models"
	"github.com/mamadbah2/farmledger/internal/service/reconciliation"
	"github.com/mamadbah2/farmledger/internal/service/reporting"
)

type fakeAnalytics struct {
	resolver   *reconciliation.PeriodResolver
	lastTarget models.Target
	lastPeriod models.DateRange
	estimate   decimal.Decimal
	err        error
}

func newFakeAnalytics() *fakeAnalytics {
	now := time.Date(2025, time.June, 15, 14, 30, 0, 0, time.UTC)
	return &fakeAnalytics{resolver: reconciliation.NewPeriodResolver(func() time.Time { return now }, time.UTC)}
}

func (f *fakeAnalytics) Resolver() *reconciliation.PeriodResolver { return f.resolver }

func (f *fakeAnalytics) Summarize(_ context.Context, target models.Target, period models.DateRange) (models.FinancialSummary, error) {
	f.lastTarget, f.lastPeriod = target, period
	return models.FinancialSummary{Target: target, Period: period, TotalRevenue: decimal.NewFromInt(320000)}, f.err
}

func (f *fakeAnalytics) AggregateProduction(_ context.Context, target models.Target, period models.DateRange) (models.ProductionTotals, error) {
	f.lastTarget, f.lastPeriod = target, period
	return models.ProductionTotals{Target: target, Period: period}, f.err
}

func (f *fakeAnalytics) EstimateEggRevenue(_ context.Context, target models.Target, period models.DateRange) (decimal.Decimal, error) {
	f.lastTarget, f.lastPeriod = target, period
	return f.estimate, f.err
}

func newDispatcher(analytics *fakeAnalytics) *Service {
	return NewService(analytics, reporting.NewFormatter("USD", time.UTC), nil)
}

func TestHandleCommand_Help(t *testing.T) {
	svc := newDispatcher(newFakeAnalytics())

	reply, err := svc.HandleCommand(context.Background(), models.Command{Type: models.CommandHelp}, "224600000000")
	require.NoError(t, err)
	assert.Equal(t, HelpMessage(), reply)
}

func TestHandleCommand_Unknown(t *testing.T) {
	svc := newDispatcher(newFakeAnalytics())

	_, err := svc.HandleCommand(context.Background(), models.Command{Type: models.CommandUnknown}, "224600000000")
	assert.True(t, errors.Is(err, ErrUnsupportedCommand))
}

func TestHandleCommand_SummaryForLot(t *testing.T) {
	analytics := newFakeAnalytics()
	svc := newDispatcher(analytics)

	reply, err := svc.HandleCommand(context.Background(), models.ParseCommand("/summary 7d L1"), "224600000000")
	require.NoError(t, err)

	assert.Equal(t, "L1", analytics.lastTarget.LotID)
	assert.Equal(t, time.Date(2025, time.June, 8, 0, 0, 0, 0, time.UTC), analytics.lastPeriod.Start)
	assert.Contains(t, reply, "*Lot L1 summary*")
	assert.Contains(t, reply, "$320,000.00")
}

func TestHandleCommand_DefaultsToOperationAnd30Days(t *testing.T) {
	analytics := newFakeAnalytics()
	svc := newDispatcher(analytics)

	reply, err := svc.HandleCommand(context.Background(), models.Command{Type: models.CommandProduction}, "224600000000")
	require.NoError(t, err)

	assert.False(t, analytics.lastTarget.IsLot())
	assert.Equal(t, time.Date(2025, time.May, 16, 0, 0, 0, 0, time.UTC), analytics.lastPeriod.Start)
	assert.Contains(t, reply, "No production records")
}

func TestHandleCommand_Estimate(t *testing.T) {
	analytics := newFakeAnalytics()
	analytics.estimate = decimal.NewFromInt(20)
	svc := newDispatcher(analytics)

	reply, err := svc.HandleCommand(context.Background(), models.Command{Type: models.CommandEstimate, Period: "all"}, "224600000000")
	require.NoError(t, err)
	assert.True(t, analytics.lastPeriod.Start.IsZero())
	assert.Contains(t, reply, "Unsold eggs valued at $20.00.")
}

func TestHandleCommand_Errors(t *testing.T) {
	analytics := newFakeAnalytics()
	svc := newDispatcher(analytics)

	_, err := svc.HandleCommand(context.Background(), models.Command{Type: models.CommandSummary, Period: "2w"}, "224600000000")
	assert.True(t, models.IsValidation(err))

	analytics.err = errors.New("store offline")
	_, err = svc.HandleCommand(context.Background(), models.Command{Type: models.CommandSummary}, "224600000000")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "summary: store offline")
}
