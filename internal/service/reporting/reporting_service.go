package reporting

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mamadbah2/farmledger/internal/domain/models"
	"github.com/mamadbah2/farmledger/internal/service/reconciliation"
)

// Analytics is the part of the reconciliation service that reports read.
type Analytics interface {
	Resolver() *reconciliation.PeriodResolver
	Summarize(ctx context.Context, target models.Target, period models.DateRange) (models.FinancialSummary, error)
	AggregateProduction(ctx context.Context, target models.Target, period models.DateRange) (models.ProductionTotals, error)
}

// SnapshotStore persists generated reports.
type SnapshotStore interface {
	SaveSnapshot(ctx context.Context, snapshot models.SummarySnapshot) error
}

// RowAppender appends a row to a spreadsheet tab.
type RowAppender interface {
	AppendRow(ctx context.Context, tab string, values []interface{}) error
}

// ReportsTab is the spreadsheet tab that receives one row per periodic report.
const ReportsTab = "Reports"

// Service builds periodic farm reports for WhatsApp delivery.
type Service struct {
	analytics Analytics
	snapshots SnapshotStore
	exporter  RowAppender
	formatter *Formatter
	logger    *zap.Logger
	newID     func() string
}

// NewService wires a new reporting service instance. snapshots may be nil, in
// which case reports are not persisted.
func NewService(analytics Analytics, snapshots SnapshotStore, formatter *Formatter, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if formatter == nil {
		formatter = NewFormatter(defaultCurrency, analytics.Resolver().Location())
	}
	return &Service{
		analytics: analytics,
		snapshots: snapshots,
		formatter: formatter,
		logger:    logger,
		newID:     uuid.NewString,
	}
}

// WithExporter makes every periodic report also append a row to ReportsTab.
func (s *Service) WithExporter(exporter RowAppender) *Service {
	s.exporter = exporter
	return s
}

// Formatter returns the text formatter used by the service.
func (s *Service) Formatter() *Formatter {
	return s.formatter
}

// BuildSnapshot computes the farm-wide financial and production summary for
// the named period.
func (s *Service) BuildSnapshot(ctx context.Context, periodName string) (models.SummarySnapshot, error) {
	period, err := s.analytics.Resolver().Resolve(periodName)
	if err != nil {
		return models.SummarySnapshot{}, err
	}

	target := models.OperationTarget()
	summary, err := s.analytics.Summarize(ctx, target, period)
	if err != nil {
		return models.SummarySnapshot{}, fmt.Errorf("summarize %s: %w", periodName, err)
	}
	production, err := s.analytics.AggregateProduction(ctx, target, period)
	if err != nil {
		return models.SummarySnapshot{}, fmt.Errorf("aggregate production %s: %w", periodName, err)
	}

	return models.SummarySnapshot{
		ID:         s.newID(),
		Summary:    summary,
		Production: production,
		CreatedAt:  time.Now().UTC(),
	}, nil
}

// GeneratePeriodicReport builds, persists and renders the report for the named
// period. A failure to persist the snapshot is logged and does not block the
// report.
func (s *Service) GeneratePeriodicReport(ctx context.Context, periodName string) (string, error) {
	snapshot, err := s.BuildSnapshot(ctx, periodName)
	if err != nil {
		return "", err
	}

	if s.snapshots != nil {
		if err := s.snapshots.SaveSnapshot(ctx, snapshot); err != nil {
			s.logger.Error("failed to save summary snapshot", zap.String("snapshot_id", snapshot.ID), zap.Error(err))
		}
	}

	if s.exporter != nil {
		if err := s.exporter.AppendRow(ctx, ReportsTab, snapshotRow(periodName, snapshot)); err != nil {
			s.logger.Error("failed to export summary snapshot", zap.String("snapshot_id", snapshot.ID), zap.Error(err))
		}
	}

	s.logger.Info("periodic report generated",
		zap.String("period", periodName),
		zap.String("revenue", snapshot.Summary.TotalRevenue.String()),
		zap.String("expenses", snapshot.Summary.TotalExpenses.String()),
		zap.Int("warnings", len(snapshot.Summary.Warnings)+len(snapshot.Production.Warnings)))

	return s.formatter.Snapshot(snapshot), nil
}

// GenerateWeeklyReport renders the report of the last seven days.
func (s *Service) GenerateWeeklyReport(ctx context.Context) (string, error) {
	return s.GeneratePeriodicReport(ctx, reconciliation.Period7Days)
}

func snapshotRow(periodName string, snapshot models.SummarySnapshot) []interface{} {
	summary, production := snapshot.Summary, snapshot.Production
	return []interface{}{
		snapshot.CreatedAt.Format(time.RFC3339),
		periodName,
		summary.TotalRevenue.String(),
		summary.TotalExpenses.String(),
		summary.Profit.String(),
		summary.ProfitMarginPercent.StringFixed(2),
		summary.AmountCollected.String(),
		summary.Outstanding.String(),
		production.TotalEggs,
		production.TotalMortality,
		len(summary.Warnings) + len(production.Warnings),
	}
}
