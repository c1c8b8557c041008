package reconciliation

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/mamadbah2/farmledger/internal/domain/models"
)

// ExpenseTotals is the outcome of an expense aggregation.
type ExpenseTotals struct {
	Total       decimal.Decimal
	Recorded    decimal.Decimal
	Acquisition decimal.Decimal
	Breakdown   map[models.ExpenseCategory]decimal.Decimal
	Count       int
	Warnings    []models.DataGapWarning
}

func newExpenseTotals() ExpenseTotals {
	return ExpenseTotals{
		Total:       decimal.Zero,
		Recorded:    decimal.Zero,
		Acquisition: decimal.Zero,
		Breakdown:   make(map[models.ExpenseCategory]decimal.Decimal),
	}
}

func (t *ExpenseTotals) add(category models.ExpenseCategory, amount decimal.Decimal) {
	t.Breakdown[category] = t.Breakdown[category].Add(amount)
	t.Total = t.Total.Add(amount)
}

// ExpenseAggregator sums recorded expenses and the acquisition costs stored on lots.
type ExpenseAggregator struct {
	classifier *Classifier
}

// NewExpenseAggregator builds an aggregator around the shared classifier.
func NewExpenseAggregator(classifier *Classifier) *ExpenseAggregator {
	if classifier == nil {
		classifier = NewClassifier(nil)
	}
	return &ExpenseAggregator{classifier: classifier}
}

// Compute totals expenses for the target over the period.
//
// Recorded expense rows count when their lot matches the target and their date
// is inside the period. On top of that, every lot in scope whose placement date
// is inside the period adds its acquisition cost once: stock (unit price x
// initial quantity) under chicks, transport under transport, and other initial
// costs under other. Lots created by a split carry copies of their parent's
// acquisition fields and never add them again.
func (a *ExpenseAggregator) Compute(lots []models.Lot, expenses []models.ExpenseRecord, period models.DateRange, target models.Target) ExpenseTotals {
	totals := newExpenseTotals()

	known := make(map[string]bool, len(lots))
	for _, lot := range lots {
		known[lot.ID] = true
	}

	for _, expense := range expenses {
		if target.IsLot() && expense.LotID != target.LotID {
			continue
		}
		if !period.Contains(expense.Date) {
			continue
		}

		category, ok := a.classifier.Classify(expense.Category)
		if !ok {
			kind := models.GapUnknownCategory
			if expense.Category == "" {
				kind = models.GapMissingCategory
			}
			totals.Warnings = append(totals.Warnings, models.DataGapWarning{
				Kind:      kind,
				Reference: expense.ID,
				Message:   "expense category " + quoteOrEmpty(expense.Category) + " counted as other",
			})
		}
		if expense.LotID != "" && !known[expense.LotID] && !target.IsLot() {
			totals.Warnings = append(totals.Warnings, models.DataGapWarning{
				Kind:      models.GapUnresolvedLot,
				Reference: expense.LotID,
				Message:   "expense " + expense.ID + " references an unknown lot",
			})
		}

		totals.add(category, expense.Amount)
		totals.Recorded = totals.Recorded.Add(expense.Amount)
		totals.Count++
	}

	for _, lot := range lots {
		if target.IsLot() && lot.ID != target.LotID {
			continue
		}
		if lot.IsSplitChild() || !IsWithin(lot.PlacementDate, period) {
			continue
		}

		if lot.UnitPrice.IsZero() && lot.InitialQuantity > 0 {
			totals.Warnings = append(totals.Warnings, models.DataGapWarning{
				Kind:      models.GapMissingUnitPrice,
				Reference: lot.ID,
				Message:   "lot has no unit price; stock cost counted as zero",
			})
		}

		totals.add(models.CategoryChicks, lot.ChickCost())
		totals.add(models.CategoryTransport, lot.TransportCost)
		totals.add(models.CategoryOther, lot.OtherInitialCosts)
		totals.Acquisition = totals.Acquisition.Add(lot.AcquisitionCost())
	}

	pruneZero(totals.Breakdown)
	return totals
}

// ApplySplitAdjustments moves distributed split shares into the totals of a
// lot target: the child gains each share and the parent loses it. A share is
// the parent's cost per category dated inside the period and no later than the
// split instant, times the transferred fraction of its flock. A window that
// holds the split but none of the parent's earlier costs therefore moves
// nothing, and neither side ever goes below zero.
//
// in must carry the lot, expense and split rows of every lot the target
// descends from. Operation-wide targets are left untouched since the shares
// cancel out.
func (a *ExpenseAggregator) ApplySplitAdjustments(totals *ExpenseTotals, in Inputs, period models.DateRange, target models.Target, decimals int32) {
	if !target.IsLot() {
		return
	}
	shares := &splitShares{
		aggregator: a,
		in:         in,
		period:     period,
		decimals:   decimals,
		memo:       make(map[string]map[models.ExpenseCategory]decimal.Decimal),
	}
	for category, amount := range shares.net(target.LotID, time.Time{}) {
		totals.add(category, amount)
	}
	pruneZero(totals.Breakdown)
}

// splitShares recomputes split shares for one period. Shares are memoized per
// split since a parent's base includes the shares of its own earlier splits.
type splitShares struct {
	aggregator *ExpenseAggregator
	in         Inputs
	period     models.DateRange
	decimals   int32
	memo       map[string]map[models.ExpenseCategory]decimal.Decimal
}

// net sums the signed shares of the lot's distributed splits inside the
// period. A non-zero before keeps only splits strictly earlier than it.
func (s *splitShares) net(lotID string, before time.Time) map[models.ExpenseCategory]decimal.Decimal {
	out := make(map[models.ExpenseCategory]decimal.Decimal)
	for _, split := range s.in.Splits {
		if !split.ExpensesDistributed || !IsWithin(split.CreatedAt, s.period) {
			continue
		}
		if !before.IsZero() && !split.CreatedAt.Before(before) {
			continue
		}

		var negate bool
		switch lotID {
		case split.ChildLotID:
		case split.ParentLotID:
			negate = true
		default:
			continue
		}

		for category, share := range s.share(split) {
			if negate {
				share = share.Neg()
			}
			out[category] = out[category].Add(share)
		}
	}
	return out
}

func (s *splitShares) share(split models.SplitRelationship) map[models.ExpenseCategory]decimal.Decimal {
	key := split.ID
	if key == "" {
		key = split.ParentLotID + "/" + split.ChildLotID
	}
	if cached, ok := s.memo[key]; ok {
		return cached
	}

	cutoff := models.DateRange{Start: s.period.Start, End: split.CreatedAt}
	base := s.aggregator.Compute(s.in.Lots, s.in.Expenses, cutoff, models.LotTarget(split.ParentLotID)).Breakdown
	for category, amount := range s.net(split.ParentLotID, split.CreatedAt) {
		base[category] = base[category].Add(amount)
	}

	out := make(map[models.ExpenseCategory]decimal.Decimal, len(base))
	for category, total := range base {
		if total.Sign() <= 0 {
			continue
		}
		out[category] = transferredShare(total, split).Round(s.decimals)
	}
	s.memo[key] = out
	return out
}

func transferredShare(total decimal.Decimal, split models.SplitRelationship) decimal.Decimal {
	if split.ParentQuantityBefore > 0 {
		return total.Mul(decimal.NewFromInt(int64(split.TransferredQuantity))).Div(decimal.NewFromInt(int64(split.ParentQuantityBefore)))
	}
	return total.Mul(split.Ratio)
}

func pruneZero(breakdown map[models.ExpenseCategory]decimal.Decimal) {
	for category, amount := range breakdown {
		if amount.IsZero() {
			delete(breakdown, category)
		}
	}
}

func quoteOrEmpty(s string) string {
	if s == "" {
		return "(empty)"
	}
	return `"` + s + `"`
}
