package reporting

import (
	"fmt"
	"strings"
	"time"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"

	"github.com/mamadbah2/farmledger/internal/domain/models"
)

const (
	dateLayout       = "2006-01-02"
	defaultCurrency  = "GNF"
	defaultFraction  = 2
	maxGapsInMessage = 5
)

// CurrencyDecimals returns the number of minor-unit digits of the ISO 4217
// currency code, falling back to 2 for unknown codes.
func CurrencyDecimals(code string) int32 {
	if c := money.GetCurrency(strings.ToUpper(code)); c != nil {
		return int32(c.Fraction)
	}
	return defaultFraction
}

// Formatter renders summaries as plain text for WhatsApp. It is the only place
// where amounts are turned into display strings.
type Formatter struct {
	currency string
	fraction int32
	loc      *time.Location
}

// NewFormatter builds a formatter for the currency code. Dates are shown in loc.
func NewFormatter(currencyCode string, loc *time.Location) *Formatter {
	code := strings.ToUpper(strings.TrimSpace(currencyCode))
	if code == "" {
		code = defaultCurrency
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Formatter{currency: code, fraction: CurrencyDecimals(code), loc: loc}
}

// Money formats an amount with the currency's symbol and grouping.
func (f *Formatter) Money(amount decimal.Decimal) string {
	minor := amount.Shift(f.fraction).Round(0).IntPart()
	return money.New(minor, f.currency).Display()
}

// Period renders a date range as "start to end" or "since start" when the
// range has no lower bound.
func (f *Formatter) Period(period models.DateRange) string {
	end := period.End.In(f.loc).Format(dateLayout)
	if period.Start.IsZero() {
		return "lifetime to " + end
	}
	return period.Start.In(f.loc).Format(dateLayout) + " to " + end
}

// Summary renders a financial summary.
func (f *Formatter) Summary(s models.FinancialSummary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "*%s summary* (%s)\n", scope(s.Target), f.Period(s.Period))
	fmt.Fprintf(&b, "Revenue: %s (%d sales)\n", f.Money(s.TotalRevenue), s.SalesCount)
	fmt.Fprintf(&b, "Expenses: %s\n", f.Money(s.TotalExpenses))
	fmt.Fprintf(&b, "Profit: %s (margin %s%%)\n", f.Money(s.Profit), s.ProfitMarginPercent.StringFixed(2))
	fmt.Fprintf(&b, "Collected: %s (%s%%), outstanding %s\n",
		f.Money(s.AmountCollected), s.CollectionRatePercent.StringFixed(2), f.Money(s.Outstanding))
	if s.EstimatedEggRevenue.IsPositive() {
		fmt.Fprintf(&b, "Unsold eggs (estimate): %s\n", f.Money(s.EstimatedEggRevenue))
	}
	if s.Source == models.SourceAuthoritative {
		b.WriteString("Figures from the lot's recorded summary.\n")
	}

	if len(s.ExpensesBreakdown) > 0 {
		b.WriteString("Expenses by category:\n")
		for _, category := range models.ExpenseCategories {
			if amount, ok := s.ExpensesBreakdown[category]; ok {
				fmt.Fprintf(&b, "- %s: %s\n", category, f.Money(amount))
			}
		}
	}

	writeGaps(&b, s.Warnings)
	return strings.TrimRight(b.String(), "\n")
}

// Production renders production totals.
func (f *Formatter) Production(p models.ProductionTotals) string {
	var b strings.Builder
	fmt.Fprintf(&b, "*%s production* (%s)\n", scope(p.Target), f.Period(p.Period))
	if p.Records == 0 {
		b.WriteString("No production records in this period.")
		return b.String()
	}

	fmt.Fprintf(&b, "Records: %d, birds: %d\n", p.Records, p.BirdCount)
	if p.TotalEggs > 0 {
		fmt.Fprintf(&b, "Eggs: %d (%d trays), laying rate %.2f%%\n", p.TotalEggs, p.Trays, p.AverageLayingRate)
	}
	if p.TotalFeedKg > 0 {
		fmt.Fprintf(&b, "Feed: %.2f kg (%.3f kg per bird)\n", p.TotalFeedKg, p.FeedPerBirdKg)
	}
	fmt.Fprintf(&b, "Mortality: %d (%.2f%%)\n", p.TotalMortality, p.MortalityRatePercent)
	if p.AverageWeightGrams > 0 {
		fmt.Fprintf(&b, "Average weight: %.0f g (gain %+.0f g)\n", p.AverageWeightGrams, p.WeightGainGrams)
	}

	writeGaps(&b, p.Warnings)
	return strings.TrimRight(b.String(), "\n")
}

// Estimate renders an unsold egg valuation.
func (f *Formatter) Estimate(target models.Target, period models.DateRange, amount decimal.Decimal) string {
	if amount.IsZero() {
		return fmt.Sprintf("*%s egg estimate* (%s)\nNothing to estimate: eggs were sold or none were collected.", scope(target), f.Period(period))
	}
	return fmt.Sprintf("*%s egg estimate* (%s)\nUnsold eggs valued at %s.", scope(target), f.Period(period), f.Money(amount))
}

// Snapshot renders a periodic report.
func (f *Formatter) Snapshot(snapshot models.SummarySnapshot) string {
	return f.Summary(snapshot.Summary) + "\n\n" + f.Production(snapshot.Production)
}

func scope(target models.Target) string {
	if target.IsLot() {
		return "Lot " + target.LotID
	}
	return "Farm"
}

func writeGaps(b *strings.Builder, gaps []models.DataGapWarning) {
	if len(gaps) == 0 {
		return
	}
	fmt.Fprintf(b, "Data gaps: %d\n", len(gaps))
	for i, gap := range gaps {
		if i == maxGapsInMessage {
			fmt.Fprintf(b, "- ... and %d more\n", len(gaps)-maxGapsInMessage)
			break
		}
		fmt.Fprintf(b, "- %s\n", gap.String())
	}
}
