package reconciliation

import (
	"github.com/shopspring/decimal"

	"github.com/mamadbah2/farmledger/internal/domain/models"
)

var hundred = decimal.NewFromInt(100)

// DefaultCurrencyDecimals is the rounding applied to split shares until a
// currency is configured.
const DefaultCurrencyDecimals int32 = 2

// Inputs carries every raw row a summary may draw from. Rows outside the
// target or period are filtered here, so callers may pass broader sets. For a
// lot target, Lots, Expenses and Splits also hold the rows of the lots it was
// split from.
type Inputs struct {
	Lots          []models.Lot
	Expenses      []models.ExpenseRecord
	Sales         []models.SaleRecord
	Production    []models.ProductionRecord
	Splits        []models.SplitRelationship
	Authoritative *models.AuthoritativeSummary
}

// Reconciler produces financial summaries from raw rows.
type Reconciler struct {
	expenses   *ExpenseAggregator
	classifier *Classifier
	pricing    EggPricing
	decimals   int32
}

// NewReconciler wires a reconciler with the shared classifier and egg pricing.
func NewReconciler(classifier *Classifier, pricing EggPricing) *Reconciler {
	if classifier == nil {
		classifier = NewClassifier(nil)
	}
	return &Reconciler{
		expenses:   NewExpenseAggregator(classifier),
		classifier: classifier,
		pricing:    pricing,
		decimals:   DefaultCurrencyDecimals,
	}
}

// SetCurrencyDecimals sets the number of minor-unit digits split shares are
// rounded to.
func (r *Reconciler) SetCurrencyDecimals(decimals int32) {
	r.decimals = decimals
}

// Expenses exposes the aggregator used by the reconciler.
func (r *Reconciler) Expenses() *ExpenseAggregator {
	return r.expenses
}

// Summarize reconciles the inputs for the target and period. A single lot with
// an authoritative summary takes its totals and breakdown verbatim; otherwise
// the result is composed from recorded expenses, lot acquisition costs, split
// adjustments and recorded sales. Profit and margin are always derived from
// the final revenue and expense totals.
func (r *Reconciler) Summarize(target models.Target, period models.DateRange, in Inputs) models.FinancialSummary {
	sales := MatchSales(in.Sales, target, period)

	summary := models.FinancialSummary{
		Target:          target,
		Period:          period,
		SalesCount:      len(sales),
		AmountCollected: decimal.Zero,
	}

	revenue := decimal.Zero
	for _, sale := range sales {
		revenue = revenue.Add(sale.TotalAmount)
		summary.AmountCollected = summary.AmountCollected.Add(sale.AmountPaid)
	}

	if target.IsLot() && in.Authoritative != nil {
		summary.Source = models.SourceAuthoritative
		summary.TotalRevenue = in.Authoritative.TotalRevenue
		summary.TotalExpenses = in.Authoritative.TotalExpenses
		summary.ExpensesBreakdown = r.normalizeBreakdown(in.Authoritative.ExpensesBreakdown)
	} else {
		totals := r.expenses.Compute(in.Lots, in.Expenses, period, target)
		r.expenses.ApplySplitAdjustments(&totals, in, period, target, r.decimals)

		summary.Source = models.SourceComposed
		summary.TotalRevenue = revenue
		summary.TotalExpenses = totals.Total
		summary.ExpensesBreakdown = totals.Breakdown
		summary.ExpenseCount = totals.Count
		summary.Warnings = append(summary.Warnings, totals.Warnings...)
	}

	summary.Profit, summary.ProfitMarginPercent = ProfitAndMargin(summary.TotalRevenue, summary.TotalExpenses)
	summary.Outstanding = revenue.Sub(summary.AmountCollected)
	summary.CollectionRatePercent = Percent(summary.AmountCollected, revenue)

	if target.IsLot() && !containsLot(in.Lots, target.LotID) {
		summary.Warnings = append(summary.Warnings, models.DataGapWarning{
			Kind:      models.GapUnresolvedLot,
			Reference: target.LotID,
			Message:   "lot record not found; summary built from linked rows only",
		})
	}

	production := AggregateProduction(MatchProduction(in.Production, target, period), nil, r.pricing.EggsPerTray)
	summary.EstimatedEggRevenue = EstimateEggRevenue(production.TotalEggs, sales, r.pricing)

	return summary
}

// ProfitAndMargin derives profit and the margin percentage, which is zero
// whenever there is no revenue.
func ProfitAndMargin(revenue, expenses decimal.Decimal) (profit, marginPercent decimal.Decimal) {
	profit = revenue.Sub(expenses)
	return profit, Percent(profit, revenue)
}

// Percent returns 100 * part / whole rounded to two places, or zero when whole is zero.
func Percent(part, whole decimal.Decimal) decimal.Decimal {
	if whole.IsZero() {
		return decimal.Zero
	}
	return part.Mul(hundred).Div(whole).Round(2)
}

// MatchSales keeps the sales that belong to the target and fall inside the period.
func MatchSales(sales []models.SaleRecord, target models.Target, period models.DateRange) []models.SaleRecord {
	matched := make([]models.SaleRecord, 0, len(sales))
	for _, sale := range sales {
		if target.IsLot() && sale.LotID != target.LotID {
			continue
		}
		if !period.Contains(sale.Date) {
			continue
		}
		matched = append(matched, sale)
	}
	return matched
}

// MatchProduction keeps the production records that belong to the target and period.
func MatchProduction(records []models.ProductionRecord, target models.Target, period models.DateRange) []models.ProductionRecord {
	matched := make([]models.ProductionRecord, 0, len(records))
	for _, record := range records {
		if target.IsLot() && record.LotID != target.LotID {
			continue
		}
		if !period.Contains(record.Date) {
			continue
		}
		matched = append(matched, record)
	}
	return matched
}

func (r *Reconciler) normalizeBreakdown(in map[models.ExpenseCategory]decimal.Decimal) map[models.ExpenseCategory]decimal.Decimal {
	out := make(map[models.ExpenseCategory]decimal.Decimal, len(in))
	for code, amount := range in {
		category := r.classifier.Category(string(code))
		out[category] = out[category].Add(amount)
	}
	return out
}

func containsLot(lots []models.Lot, id string) bool {
	for _, lot := range lots {
		if lot.ID == id {
			return true
		}
	}
	return false
}
