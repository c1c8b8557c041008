package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mamadbah2/farmledger/internal/domain/models"
	"github.com/mamadbah2/farmledger/internal/service/reconciliation"
	"github.com/mamadbah2/farmledger/internal/service/reporting"
)

// ErrUnsupportedCommand indicates we do not support the requested command.
var ErrUnsupportedCommand = errors.New("unsupported command")

const helpMessage = `*Farm reports*
/summary [period] [lot] - revenue, expenses and profit
/production [period] [lot] - eggs, feed, mortality and weight
/estimate [period] [lot] - value of unsold eggs
Periods: 7d, 30d (default), 90d, 365d, all`

// Analytics defines the reconciliation functions required by the dispatcher.
type Analytics interface {
	Resolver() *reconciliation.PeriodResolver
	Summarize(ctx context.Context, target models.Target, period models.DateRange) (models.FinancialSummary, error)
	AggregateProduction(ctx context.Context, target models.Target, period models.DateRange) (models.ProductionTotals, error)
	EstimateEggRevenue(ctx context.Context, target models.Target, period models.DateRange) (decimal.Decimal, error)
}

// Dispatcher answers parsed report commands.
type Dispatcher interface {
	HandleCommand(ctx context.Context, cmd models.Command, sender string) (string, error)
}

// Service implements the Dispatcher interface.
type Service struct {
	analytics Analytics
	formatter *reporting.Formatter
	logger    *zap.Logger
}

// NewService constructs a command dispatcher.
func NewService(analytics Analytics, formatter *reporting.Formatter, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if formatter == nil {
		formatter = reporting.NewFormatter("", analytics.Resolver().Location())
	}
	return &Service{analytics: analytics, formatter: formatter, logger: logger}
}

// HandleCommand runs the report named by cmd and returns the reply text.
// Validation errors (unknown period, unknown lot) are returned so the caller
// can echo them back to the sender.
func (s *Service) HandleCommand(ctx context.Context, cmd models.Command, sender string) (string, error) {
	s.logger.Debug("dispatching command",
		zap.String("command", string(cmd.Type)),
		zap.String("sender", sender),
		zap.String("period", cmd.Period),
		zap.String("lot_id", cmd.LotID))

	switch cmd.Type {
	case models.CommandHelp:
		return helpMessage, nil
	case models.CommandSummary, models.CommandProduction, models.CommandEstimate:
	default:
		return "", ErrUnsupportedCommand
	}

	period, err := s.analytics.Resolver().Resolve(cmd.Period)
	if err != nil {
		return "", err
	}
	target := models.OperationTarget()
	if cmd.LotID != "" {
		target = models.LotTarget(cmd.LotID)
	}

	switch cmd.Type {
	case models.CommandSummary:
		summary, err := s.analytics.Summarize(ctx, target, period)
		if err != nil {
			return "", fmt.Errorf("summary: %w", err)
		}
		return s.formatter.Summary(summary), nil
	case models.CommandProduction:
		totals, err := s.analytics.AggregateProduction(ctx, target, period)
		if err != nil {
			return "", fmt.Errorf("production: %w", err)
		}
		return s.formatter.Production(totals), nil
	default:
		estimate, err := s.analytics.EstimateEggRevenue(ctx, target, period)
		if err != nil {
			return "", fmt.Errorf("estimate: %w", err)
		}
		return s.formatter.Estimate(target, period, estimate), nil
	}
}

// HelpMessage lists the supported commands.
func HelpMessage() string {
	return helpMessage
}
