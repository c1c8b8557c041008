package reconciliation

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mamadbah2/farmledger/internal/domain/models"
)

var testNow = time.Date(2025, time.June, 15, 14, 30, 0, 0, time.UTC)

func dec(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func fixedResolver() *PeriodResolver {
	return NewPeriodResolver(func() time.Time { return testNow }, time.UTC)
}

func mustResolve(t *testing.T, name string) models.DateRange {
	t.Helper()
	period, err := fixedResolver().Resolve(name)
	require.NoError(t, err)
	return period
}

// =============================================================================
// PERIODS
// =============================================================================

func TestResolve_NamedPeriods(t *testing.T) {
	period := mustResolve(t, Period30Days)
	assert.Equal(t, day(2025, time.May, 16), period.Start)
	assert.Equal(t, testNow, period.End)
	assert.True(t, period.Rolling)

	all := mustResolve(t, PeriodAll)
	assert.True(t, all.Start.IsZero())

	def := mustResolve(t, "")
	assert.Equal(t, period, def)

	_, err := fixedResolver().Resolve("2w")
	assert.True(t, models.IsValidation(err))
}

func TestResolveExplicit_WholeDays(t *testing.T) {
	r := fixedResolver()

	period, err := r.ResolveExplicit(day(2025, time.May, 1), day(2025, time.May, 31))
	require.NoError(t, err)
	assert.False(t, period.Rolling)
	assert.True(t, period.Contains(time.Date(2025, time.May, 31, 23, 0, 0, 0, time.UTC)))
	assert.False(t, period.Contains(day(2025, time.June, 1)))

	_, err = r.ResolveExplicit(day(2025, time.May, 31), day(2025, time.May, 1))
	assert.True(t, models.IsValidation(err))
}

// =============================================================================
// CATEGORIES
// =============================================================================

func TestClassifier_Aliases(t *testing.T) {
	c := NewClassifier(nil)

	cases := map[string]models.ExpenseCategory{
		"feed":          models.CategoryFeed,
		"Aliment":       models.CategoryFeed,
		" Vaccins ":     models.CategoryVeterinary,
		"électricité":   models.CategoryEnergy,
		"main d'oeuvre": models.CategoryLabor,
	}
	for raw, want := range cases {
		got, known := c.Classify(raw)
		assert.Equal(t, want, got, raw)
		assert.True(t, known, raw)
	}

	got, known := c.Classify("cadeaux")
	assert.Equal(t, models.CategoryOther, got)
	assert.False(t, known)
}

func TestLoadClassifier_YAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "aliases.yaml")
	require.NoError(t, os.WriteFile(path, []byte("feed:\n  - tourteau\nrent:\n  - bail\n"), 0o600))

	c, err := LoadClassifier(path)
	require.NoError(t, err)
	assert.Equal(t, models.CategoryFeed, c.Category("Tourteau"))
	assert.Equal(t, models.CategoryRent, c.Category("bail"))

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("snacks:\n  - chips\n"), 0o600))
	_, err = LoadClassifier(bad)
	assert.Error(t, err)
}

// =============================================================================
// EXPENSES
// =============================================================================

func TestExpenseAggregator_AcquisitionOnly(t *testing.T) {
	lot := models.Lot{
		ID:              "lot-a",
		InitialQuantity: 1000,
		CurrentQuantity: 1000,
		UnitPrice:       dec(300),
		TransportCost:   dec(20000),
		PlacementDate:   day(2025, time.June, 1),
	}

	totals := NewExpenseAggregator(nil).Compute([]models.Lot{lot}, nil, mustResolve(t, Period30Days), models.LotTarget("lot-a"))

	assert.True(t, totals.Total.Equal(dec(320000)), totals.Total.String())
	assert.True(t, totals.Breakdown[models.CategoryChicks].Equal(dec(300000)))
	assert.True(t, totals.Breakdown[models.CategoryTransport].Equal(dec(20000)))
	assert.Zero(t, totals.Count)
}

func TestExpenseAggregator_AcquisitionCountedOnce(t *testing.T) {
	lot := models.Lot{
		ID:              "lot-a",
		InitialQuantity: 500,
		UnitPrice:       dec(400),
		PlacementDate:   day(2025, time.April, 10),
	}
	r := fixedResolver()
	agg := NewExpenseAggregator(nil)

	var periods []models.DateRange
	for _, bounds := range [][2]time.Time{
		{day(2025, time.March, 1), day(2025, time.March, 31)},
		{day(2025, time.April, 1), day(2025, time.April, 30)},
		{day(2025, time.May, 1), day(2025, time.May, 31)},
	} {
		p, err := r.ResolveExplicit(bounds[0], bounds[1])
		require.NoError(t, err)
		periods = append(periods, p)
	}

	counted := 0
	for _, p := range periods {
		totals := agg.Compute([]models.Lot{lot}, nil, p, models.OperationTarget())
		if !totals.Acquisition.IsZero() {
			counted++
			assert.True(t, totals.Acquisition.Equal(dec(200000)))
		}
	}
	assert.Equal(t, 1, counted)
}

func TestExpenseAggregator_SplitChildAddsNoAcquisition(t *testing.T) {
	child := models.Lot{
		ID:              "lot-b",
		ParentLotID:     "lot-a",
		InitialQuantity: 400,
		UnitPrice:       dec(300),
		PlacementDate:   day(2025, time.June, 10),
	}

	totals := NewExpenseAggregator(nil).Compute([]models.Lot{child}, nil, mustResolve(t, Period30Days), models.LotTarget("lot-b"))
	assert.True(t, totals.Total.IsZero())
}

func TestExpenseAggregator_RecordedRowsAndGaps(t *testing.T) {
	lots := []models.Lot{{ID: "lot-a", PlacementDate: day(2024, time.January, 1)}}
	expenses := []models.ExpenseRecord{
		{ID: "e1", Date: day(2025, time.June, 2), Category: "aliment", LotID: "lot-a", Amount: dec(50000)},
		{ID: "e2", Date: day(2025, time.June, 3), Category: "", LotID: "lot-a", Amount: dec(1000)},
		{ID: "e3", Date: day(2025, time.June, 4), Category: "mystery", LotID: "ghost", Amount: dec(2000)},
		{ID: "e4", Date: day(2025, time.January, 4), Category: "feed", LotID: "lot-a", Amount: dec(9999)},
	}

	totals := NewExpenseAggregator(nil).Compute(lots, expenses, mustResolve(t, Period30Days), models.OperationTarget())

	assert.True(t, totals.Total.Equal(dec(53000)))
	assert.True(t, totals.Breakdown[models.CategoryFeed].Equal(dec(50000)))
	assert.True(t, totals.Breakdown[models.CategoryOther].Equal(dec(3000)))
	assert.Equal(t, 3, totals.Count)

	kinds := map[models.GapKind]int{}
	for _, w := range totals.Warnings {
		kinds[w.Kind]++
	}
	assert.Equal(t, 1, kinds[models.GapMissingCategory])
	assert.Equal(t, 1, kinds[models.GapUnknownCategory])
	assert.Equal(t, 1, kinds[models.GapUnresolvedLot])
}

func splitInputs() Inputs {
	return Inputs{
		Expenses: []models.ExpenseRecord{
			{ID: "e1", LotID: "lot-a", Date: day(2025, time.June, 5), Category: "aliment", Amount: dec(100000)},
		},
		Splits: []models.SplitRelationship{
			{
				ID: "s1", ParentLotID: "lot-a", ChildLotID: "lot-b",
				TransferredQuantity: 400, ParentQuantityBefore: 1000, Ratio: decimal.RequireFromString("0.4"),
				ExpensesDistributed: true, CreatedAt: day(2025, time.June, 10).Add(9 * time.Hour),
			},
			{
				ID: "s2", ParentLotID: "lot-b", ChildLotID: "lot-c",
				TransferredQuantity: 100, ParentQuantityBefore: 400, Ratio: decimal.RequireFromString("0.25"),
				ExpensesDistributed: true, CreatedAt: day(2025, time.June, 12).Add(9 * time.Hour),
			},
		},
	}
}

func adjustedTotal(t *testing.T, in Inputs, period models.DateRange, target models.Target) ExpenseTotals {
	t.Helper()
	agg := NewExpenseAggregator(nil)
	totals := agg.Compute(in.Lots, in.Expenses, period, target)
	agg.ApplySplitAdjustments(&totals, in, period, target, 0)
	return totals
}

func TestApplySplitAdjustments(t *testing.T) {
	in := splitInputs()
	period := mustResolve(t, Period30Days)

	parent := adjustedTotal(t, in, period, models.LotTarget("lot-a"))
	assert.True(t, parent.Total.Equal(dec(60000)), parent.Total.String())

	child := adjustedTotal(t, in, period, models.LotTarget("lot-b"))
	assert.True(t, child.Breakdown[models.CategoryFeed].Equal(dec(30000)), child.Total.String())

	grandchild := adjustedTotal(t, in, period, models.LotTarget("lot-c"))
	assert.True(t, grandchild.Total.Equal(dec(10000)), grandchild.Total.String())

	operation := adjustedTotal(t, in, period, models.OperationTarget())
	assert.True(t, operation.Total.Equal(dec(100000)))
}

func TestApplySplitAdjustments_WindowWithoutEarlierCosts(t *testing.T) {
	in := splitInputs()
	in.Expenses = append(in.Expenses, models.ExpenseRecord{
		ID: "e2", LotID: "lot-a", Date: day(2025, time.June, 9), Category: "vaccin", Amount: dec(10000),
	})
	period, err := fixedResolver().ResolveExplicit(day(2025, time.June, 8), day(2025, time.June, 15))
	require.NoError(t, err)

	parent := adjustedTotal(t, in, period, models.LotTarget("lot-a"))
	child := adjustedTotal(t, in, period, models.LotTarget("lot-b"))
	grandchild := adjustedTotal(t, in, period, models.LotTarget("lot-c"))

	assert.True(t, parent.Total.Equal(dec(6000)), parent.Total.String())
	assert.True(t, child.Total.Equal(dec(3000)), child.Total.String())
	assert.True(t, grandchild.Total.Equal(dec(1000)), grandchild.Total.String())
	assert.Equal(t, []models.ExpenseCategory{models.CategoryVeterinary}, keys(parent.Breakdown))

	after, err := fixedResolver().ResolveExplicit(day(2025, time.June, 13), day(2025, time.June, 15))
	require.NoError(t, err)
	for _, lot := range []string{"lot-a", "lot-b", "lot-c"} {
		totals := adjustedTotal(t, in, after, models.LotTarget(lot))
		assert.True(t, totals.Total.IsZero(), "%s: %s", lot, totals.Total)
	}
}

func TestApplySplitAdjustments_UndistributedSplitMovesNothing(t *testing.T) {
	in := splitInputs()
	in.Splits = in.Splits[:1]
	in.Splits[0].ExpensesDistributed = false
	period := mustResolve(t, PeriodAll)

	assert.True(t, adjustedTotal(t, in, period, models.LotTarget("lot-a")).Total.Equal(dec(100000)))
	assert.True(t, adjustedTotal(t, in, period, models.LotTarget("lot-b")).Total.IsZero())
}

func keys(m map[models.ExpenseCategory]decimal.Decimal) []models.ExpenseCategory {
	out := make([]models.ExpenseCategory, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

// =============================================================================
// EGGS AND PRODUCTION
// =============================================================================

func TestEstimateEggRevenue_SkipsWhenEggSalesExist(t *testing.T) {
	sales := make([]models.SaleRecord, 50)
	for i := range sales {
		sales[i] = models.SaleRecord{Type: models.SaleEggsTray, TotalAmount: dec(2500)}
	}
	pricing := EggPricing{TrayPrice: dec(2500), EggsPerTray: 30}

	assert.True(t, EstimateEggRevenue(9000, sales, pricing).IsZero())
}

func TestEstimateEggRevenue_TrayValue(t *testing.T) {
	pricing := EggPricing{TrayPrice: dec(2500), EggsPerTray: 30}

	got := EstimateEggRevenue(900, []models.SaleRecord{{Type: models.SaleLiveBirds}}, pricing)
	assert.True(t, got.Equal(dec(75000)), got.String())

	assert.True(t, EstimateEggRevenue(29, nil, pricing).IsZero())
}

func TestAggregateProduction(t *testing.T) {
	records := []models.ProductionRecord{
		{LotID: "lot-a", Date: day(2025, time.June, 1), Kind: models.ProductionEggs, NormalEggs: 800, LayingRate: 80, FeedKg: 110, Mortality: 2},
		{LotID: "lot-a", Date: day(2025, time.June, 2), Kind: models.ProductionEggs, NormalEggs: 850, CrackedEggs: 50, FeedKg: 110, Mortality: 3},
		{LotID: "lot-c", Date: day(2025, time.June, 2), Kind: models.ProductionEggs, NormalEggs: 10},
		{LotID: "lot-b", Date: day(2025, time.June, 1), Kind: models.ProductionWeight, AverageWeightGrams: 900},
		{LotID: "lot-b", Date: day(2025, time.June, 8), Kind: models.ProductionWeight, AverageWeightGrams: 1300},
	}

	totals := AggregateProduction(records, map[string]int{"lot-a": 1000}, 30)

	assert.Equal(t, 5, totals.Records)
	assert.Equal(t, 1710, totals.TotalEggs)
	assert.Equal(t, 57, totals.Trays)
	// (80 + 90 + 0) / 3
	assert.InDelta(t, 56.67, totals.AverageLayingRate, 0.001)
	assert.Equal(t, 5, totals.TotalMortality)
	assert.InDelta(t, 0.22, totals.FeedPerBirdKg, 0.0001)
	assert.InDelta(t, 1100, totals.AverageWeightGrams, 0.001)
	assert.InDelta(t, 400, totals.WeightGainGrams, 0.001)
	require.Len(t, totals.Warnings, 1)
	assert.Equal(t, models.GapMissingBirdCount, totals.Warnings[0].Kind)
}

func TestAggregateProduction_Empty(t *testing.T) {
	totals := AggregateProduction(nil, nil, 30)
	assert.Zero(t, totals.TotalEggs)
	assert.Zero(t, totals.AverageLayingRate)
	assert.Empty(t, totals.Warnings)
}

// =============================================================================
// RECONCILER
// =============================================================================

func TestReconciler_ComposedMatchesParts(t *testing.T) {
	period := mustResolve(t, Period30Days)
	in := Inputs{
		Lots: []models.Lot{{ID: "lot-a", InitialQuantity: 100, UnitPrice: dec(500), PlacementDate: day(2025, time.June, 1)}},
		Expenses: []models.ExpenseRecord{
			{ID: "e1", Date: day(2025, time.June, 5), Category: "feed", LotID: "lot-a", Amount: dec(30000)},
		},
		Sales: []models.SaleRecord{
			{ID: "s1", Date: day(2025, time.June, 6), Type: models.SaleLiveBirds, LotID: "lot-a", TotalAmount: dec(120000), AmountPaid: dec(100000)},
			{ID: "s2", Date: day(2025, time.June, 7), Type: models.SaleManure, LotID: "lot-z", TotalAmount: dec(5000), AmountPaid: dec(5000)},
		},
	}
	r := NewReconciler(nil, EggPricing{TrayPrice: dec(2500), EggsPerTray: 30})

	summary := r.Summarize(models.LotTarget("lot-a"), period, in)
	expected := r.Expenses().Compute(in.Lots, in.Expenses, period, models.LotTarget("lot-a"))

	assert.Equal(t, models.SourceComposed, summary.Source)
	assert.True(t, summary.TotalExpenses.Equal(expected.Total))
	assert.True(t, summary.TotalExpenses.Equal(dec(80000)))
	assert.True(t, summary.TotalRevenue.Equal(dec(120000)))
	assert.True(t, summary.Profit.Equal(dec(40000)))
	assert.True(t, summary.ProfitMarginPercent.Equal(decimal.RequireFromString("33.33")))
	assert.True(t, summary.Outstanding.Equal(dec(20000)))
	assert.Equal(t, 1, summary.SalesCount)
}

func TestReconciler_AuthoritativeWins(t *testing.T) {
	in := Inputs{
		Lots: []models.Lot{{ID: "lot-a", InitialQuantity: 100, UnitPrice: dec(500), PlacementDate: day(2025, time.June, 1)}},
		Authoritative: &models.AuthoritativeSummary{
			LotID:         "lot-a",
			TotalExpenses: dec(70000),
			TotalRevenue:  dec(100000),
			ExpensesBreakdown: map[models.ExpenseCategory]decimal.Decimal{
				"aliment":                 dec(50000),
				models.CategoryVeterinary: dec(20000),
			},
		},
	}

	summary := NewReconciler(nil, EggPricing{}).Summarize(models.LotTarget("lot-a"), mustResolve(t, Period7Days), in)

	assert.Equal(t, models.SourceAuthoritative, summary.Source)
	assert.True(t, summary.TotalExpenses.Equal(dec(70000)))
	assert.True(t, summary.Profit.Equal(dec(30000)))
	assert.True(t, summary.ExpensesBreakdown[models.CategoryFeed].Equal(dec(50000)))
}

func TestReconciler_ZeroRevenueMargin(t *testing.T) {
	summary := NewReconciler(nil, EggPricing{}).Summarize(models.OperationTarget(), mustResolve(t, Period7Days), Inputs{
		Expenses: []models.ExpenseRecord{{ID: "e1", Date: day(2025, time.June, 12), Category: "feed", Amount: dec(1000)}},
	})

	assert.True(t, summary.ProfitMarginPercent.IsZero())
	assert.True(t, summary.Profit.Equal(dec(-1000)))
}

func TestReconciler_UnknownLotIsFlagged(t *testing.T) {
	summary := NewReconciler(nil, EggPricing{}).Summarize(models.LotTarget("ghost"), mustResolve(t, Period7Days), Inputs{})

	require.NotEmpty(t, summary.Warnings)
	assert.Equal(t, models.GapUnresolvedLot, summary.Warnings[len(summary.Warnings)-1].Kind)
}

// =============================================================================
// SERVICE
// =============================================================================

type memorySource struct {
	lots          []models.Lot
	sales         []models.SaleRecord
	expenses      []models.ExpenseRecord
	production    []models.ProductionRecord
	splits        []models.SplitRelationship
	authoritative map[string]*models.AuthoritativeSummary
}

func (m *memorySource) ListLots(_ context.Context, filter models.LotFilter) ([]models.Lot, error) {
	if len(filter.IDs) == 0 {
		return m.lots, nil
	}
	var out []models.Lot
	for _, lot := range m.lots {
		for _, id := range filter.IDs {
			if lot.ID == id {
				out = append(out, lot)
			}
		}
	}
	return out, nil
}

func (m *memorySource) ListSales(context.Context, models.SaleFilter) ([]models.SaleRecord, error) {
	return m.sales, nil
}

func (m *memorySource) ListExpenses(context.Context, models.ExpenseFilter) ([]models.ExpenseRecord, error) {
	return m.expenses, nil
}

func (m *memorySource) ListProduction(context.Context, models.ProductionFilter) ([]models.ProductionRecord, error) {
	return m.production, nil
}

func (m *memorySource) ListSplits(context.Context, string) ([]models.SplitRelationship, error) {
	return m.splits, nil
}

func (m *memorySource) GetAuthoritativeSummary(_ context.Context, lotID string) (*models.AuthoritativeSummary, error) {
	return m.authoritative[lotID], nil
}

func TestService_EstimateAndBreakdown(t *testing.T) {
	src := &memorySource{
		lots: []models.Lot{{ID: "lot-a", CurrentQuantity: 1000, InitialQuantity: 1000, UnitPrice: dec(300), PlacementDate: day(2025, time.June, 1)}},
		production: []models.ProductionRecord{
			{LotID: "lot-a", Date: day(2025, time.June, 10), Kind: models.ProductionEggs, NormalEggs: 900},
		},
	}
	svc := NewService(src, fixedResolver(), nil, EggPricing{TrayPrice: dec(2500), EggsPerTray: 30}, nil)
	ctx := context.Background()

	estimate, err := svc.EstimateEggRevenue(ctx, models.LotTarget("lot-a"), mustResolve(t, Period30Days))
	require.NoError(t, err)
	assert.True(t, estimate.Equal(dec(75000)))

	breakdown, err := svc.ExpenseBreakdown(ctx, "lot-a")
	require.NoError(t, err)
	assert.True(t, breakdown[models.CategoryChicks].Equal(dec(300000)))

	totals, err := svc.AggregateProduction(ctx, models.OperationTarget(), mustResolve(t, Period30Days))
	require.NoError(t, err)
	assert.Equal(t, 1000, totals.BirdCount)
	assert.InDelta(t, 90, totals.AverageLayingRate, 0.001)
}

func TestService_SplitSharesFollowTheWindow(t *testing.T) {
	placed := testNow.AddDate(0, 0, -60)
	src := &memorySource{
		lots: []models.Lot{
			{ID: "lot-a", InitialQuantity: 1000, CurrentQuantity: 600, UnitPrice: dec(300), TransportCost: dec(20000), PlacementDate: placed},
			{ID: "lot-b", InitialQuantity: 400, CurrentQuantity: 400, UnitPrice: dec(300), TransportCost: dec(20000), PlacementDate: placed,
				ParentLotID: "lot-a", SplitRatio: decimal.RequireFromString("0.4")},
		},
		splits: []models.SplitRelationship{{
			ID: "s1", ParentLotID: "lot-a", ChildLotID: "lot-b",
			TransferredQuantity: 400, ParentQuantityBefore: 1000, Ratio: decimal.RequireFromString("0.4"),
			ExpensesDistributed: true, CreatedAt: testNow.Add(-5 * 24 * time.Hour),
		}},
	}
	svc := NewService(src, fixedResolver(), nil, EggPricing{}, nil).WithCurrencyDecimals(0)
	ctx := context.Background()

	recent := mustResolve(t, Period30Days)
	for _, lot := range []string{"lot-a", "lot-b"} {
		summary, err := svc.Summarize(ctx, models.LotTarget(lot), recent)
		require.NoError(t, err)
		assert.True(t, summary.TotalExpenses.IsZero(), "%s: %s", lot, summary.TotalExpenses)
		assert.True(t, summary.Profit.IsZero(), "%s: %s", lot, summary.Profit)
	}

	all := mustResolve(t, PeriodAll)
	parent, err := svc.Summarize(ctx, models.LotTarget("lot-a"), all)
	require.NoError(t, err)
	child, err := svc.Summarize(ctx, models.LotTarget("lot-b"), all)
	require.NoError(t, err)
	operation, err := svc.Summarize(ctx, models.OperationTarget(), all)
	require.NoError(t, err)

	assert.True(t, parent.TotalExpenses.Equal(dec(192000)), parent.TotalExpenses.String())
	assert.True(t, parent.ExpensesBreakdown[models.CategoryChicks].Equal(dec(180000)))
	assert.True(t, child.TotalExpenses.Equal(dec(128000)), child.TotalExpenses.String())
	assert.True(t, child.ExpensesBreakdown[models.CategoryTransport].Equal(dec(8000)))
	assert.True(t, operation.TotalExpenses.Equal(dec(320000)), operation.TotalExpenses.String())
	assert.True(t, parent.TotalExpenses.Add(child.TotalExpenses).Equal(operation.TotalExpenses))
}
