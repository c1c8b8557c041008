package reconciliation

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mamadbah2/farmledger/internal/domain/models"
)

// Source is the read side of the persistence layer.
type Source interface {
	ListLots(ctx context.Context, filter models.LotFilter) ([]models.Lot, error)
	ListSales(ctx context.Context, filter models.SaleFilter) ([]models.SaleRecord, error)
	ListExpenses(ctx context.Context, filter models.ExpenseFilter) ([]models.ExpenseRecord, error)
	ListProduction(ctx context.Context, filter models.ProductionFilter) ([]models.ProductionRecord, error)
	ListSplits(ctx context.Context, lotID string) ([]models.SplitRelationship, error)
	// GetAuthoritativeSummary returns nil without error when the lot has none.
	GetAuthoritativeSummary(ctx context.Context, lotID string) (*models.AuthoritativeSummary, error)
}

// Service loads rows from a Source and runs the reconciliation rules on them.
// It holds no mutable state and may be shared between goroutines.
type Service struct {
	source     Source
	resolver   *PeriodResolver
	reconciler *Reconciler
	pricing    EggPricing
	logger     *zap.Logger
}

// NewService wires a new reconciliation service instance.
func NewService(source Source, resolver *PeriodResolver, classifier *Classifier, pricing EggPricing, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if resolver == nil {
		resolver = NewPeriodResolver(nil, nil)
	}
	if pricing.EggsPerTray == 0 {
		pricing.EggsPerTray = DefaultEggsPerTray
	}
	return &Service{
		source:     source,
		resolver:   resolver,
		reconciler: NewReconciler(classifier, pricing),
		pricing:    pricing,
		logger:     logger,
	}
}

// WithCurrencyDecimals rounds recomputed split shares to the operating
// currency's minor unit.
func (s *Service) WithCurrencyDecimals(decimals int32) *Service {
	s.reconciler.SetCurrencyDecimals(decimals)
	return s
}

// Resolver exposes the period resolver so callers turn request parameters into ranges.
func (s *Service) Resolver() *PeriodResolver {
	return s.resolver
}

// Summarize returns the financial summary of the target over the period.
func (s *Service) Summarize(ctx context.Context, target models.Target, period models.DateRange) (models.FinancialSummary, error) {
	in, err := s.load(ctx, target, period)
	if err != nil {
		return models.FinancialSummary{}, err
	}

	summary := s.reconciler.Summarize(target, period, in)
	s.logGaps("financial summary", target, summary.Warnings)
	return summary, nil
}

// AggregateProduction reduces the target's production records over the period.
func (s *Service) AggregateProduction(ctx context.Context, target models.Target, period models.DateRange) (models.ProductionTotals, error) {
	lots, err := s.lots(ctx, target)
	if err != nil {
		return models.ProductionTotals{}, err
	}

	records, err := s.source.ListProduction(ctx, productionFilter(target, period))
	if err != nil {
		return models.ProductionTotals{}, fmt.Errorf("load production: %w", err)
	}

	birds := make(map[string]int, len(lots))
	for _, lot := range lots {
		birds[lot.ID] = lot.CurrentQuantity
	}

	totals := AggregateProduction(MatchProduction(records, target, period), birds, s.pricing.EggsPerTray)
	totals.Target = target
	totals.Period = period
	s.logGaps("production totals", target, totals.Warnings)
	return totals, nil
}

// EstimateEggRevenue values the target's unsold egg production over the period.
func (s *Service) EstimateEggRevenue(ctx context.Context, target models.Target, period models.DateRange) (decimal.Decimal, error) {
	totals, err := s.AggregateProduction(ctx, target, period)
	if err != nil {
		return decimal.Zero, err
	}

	sales, err := s.source.ListSales(ctx, saleFilter(target, period))
	if err != nil {
		return decimal.Zero, fmt.Errorf("load sales: %w", err)
	}

	return EstimateEggRevenue(totals.TotalEggs, MatchSales(sales, target, period), s.pricing), nil
}

// ExpenseBreakdown returns the reported per-category expense totals of a lot
// over its whole life, including split adjustments and any authoritative
// summary. Lot splitting distributes these figures.
func (s *Service) ExpenseBreakdown(ctx context.Context, lotID string) (map[models.ExpenseCategory]decimal.Decimal, error) {
	summary, err := s.Summarize(ctx, models.LotTarget(lotID), s.resolver.Lifetime())
	if err != nil {
		return nil, err
	}
	return summary.ExpensesBreakdown, nil
}

func (s *Service) load(ctx context.Context, target models.Target, period models.DateRange) (Inputs, error) {
	var in Inputs
	var err error

	if in.Lots, err = s.lots(ctx, target); err != nil {
		return Inputs{}, err
	}
	if in.Sales, err = s.source.ListSales(ctx, saleFilter(target, period)); err != nil {
		return Inputs{}, fmt.Errorf("load sales: %w", err)
	}
	if in.Production, err = s.source.ListProduction(ctx, productionFilter(target, period)); err != nil {
		return Inputs{}, fmt.Errorf("load production: %w", err)
	}

	if target.IsLot() {
		if in.Authoritative, err = s.source.GetAuthoritativeSummary(ctx, target.LotID); err != nil {
			return Inputs{}, fmt.Errorf("load authoritative summary: %w", err)
		}
		if in.Splits, err = s.source.ListSplits(ctx, target.LotID); err != nil {
			return Inputs{}, fmt.Errorf("load splits: %w", err)
		}
	}

	// Expenses are only needed on the composed path.
	if in.Authoritative == nil {
		if in.Expenses, err = s.source.ListExpenses(ctx, expenseFilter(target, period)); err != nil {
			return Inputs{}, fmt.Errorf("load expenses: %w", err)
		}
		if target.IsLot() {
			if err = s.loadLineage(ctx, &in, target, period); err != nil {
				return Inputs{}, err
			}
		}
	}
	return in, nil
}

// loadLineage adds the rows of every lot the target received distributed
// expenses from, walking up through parents of parents. Split shares are
// recomputed from those rows.
func (s *Service) loadLineage(ctx context.Context, in *Inputs, target models.Target, period models.DateRange) error {
	seen := map[string]bool{target.LotID: true}
	splitIDs := make(map[string]bool, len(in.Splits))
	for _, split := range in.Splits {
		splitIDs[split.ID] = true
	}

	pending := distributingParents(in.Splits, target.LotID)
	for len(pending) > 0 {
		lotID := pending[0]
		pending = pending[1:]
		if seen[lotID] {
			continue
		}
		seen[lotID] = true

		lots, err := s.source.ListLots(ctx, models.LotFilter{IDs: []string{lotID}})
		if err != nil {
			return fmt.Errorf("load parent lot %s: %w", lotID, err)
		}
		expenses, err := s.source.ListExpenses(ctx, expenseFilter(models.LotTarget(lotID), period))
		if err != nil {
			return fmt.Errorf("load expenses of parent lot %s: %w", lotID, err)
		}
		splits, err := s.source.ListSplits(ctx, lotID)
		if err != nil {
			return fmt.Errorf("load splits of parent lot %s: %w", lotID, err)
		}

		in.Lots = append(in.Lots, lots...)
		in.Expenses = append(in.Expenses, expenses...)
		for _, split := range splits {
			if splitIDs[split.ID] {
				continue
			}
			splitIDs[split.ID] = true
			in.Splits = append(in.Splits, split)
		}
		pending = append(pending, distributingParents(splits, lotID)...)
	}
	return nil
}

func distributingParents(splits []models.SplitRelationship, childID string) []string {
	var parents []string
	for _, split := range splits {
		if split.ChildLotID == childID && split.ExpensesDistributed {
			parents = append(parents, split.ParentLotID)
		}
	}
	return parents
}

func (s *Service) lots(ctx context.Context, target models.Target) ([]models.Lot, error) {
	filter := models.LotFilter{}
	if target.IsLot() {
		filter.IDs = []string{target.LotID}
	}
	lots, err := s.source.ListLots(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("load lots: %w", err)
	}
	return lots, nil
}

func (s *Service) logGaps(what string, target models.Target, gaps []models.DataGapWarning) {
	for _, gap := range gaps {
		s.logger.Debug("data gap in "+what,
			zap.String("lot_id", target.LotID),
			zap.String("kind", string(gap.Kind)),
			zap.String("reference", gap.Reference),
			zap.String("message", gap.Message))
	}
}

func upperBound(period models.DateRange) time.Time {
	if period.Rolling {
		return time.Time{}
	}
	return period.End
}

func saleFilter(target models.Target, period models.DateRange) models.SaleFilter {
	return models.SaleFilter{From: period.Start, To: upperBound(period), LotID: target.LotID}
}

func expenseFilter(target models.Target, period models.DateRange) models.ExpenseFilter {
	return models.ExpenseFilter{From: period.Start, To: upperBound(period), LotID: target.LotID}
}

func productionFilter(target models.Target, period models.DateRange) models.ProductionFilter {
	return models.ProductionFilter{From: period.Start, To: upperBound(period), LotID: target.LotID}
}
