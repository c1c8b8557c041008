package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// DateRange is an inclusive [Start, End] window. A zero Start means "since the
// beginning". Rolling windows end at "now" and never exclude a date for being
// too recent.
type DateRange struct {
	Start   time.Time `bson:"start" json:"start"`
	End     time.Time `bson:"end" json:"end"`
	Rolling bool      `bson:"rolling" json:"rolling"`
}

// Contains reports whether t falls inside the range. Rolling ranges only
// check the lower bound.
func (r DateRange) Contains(t time.Time) bool {
	if t.Before(r.Start) {
		return false
	}
	return r.Rolling || !t.After(r.End)
}

// Target selects what a summary is computed for: one lot, or the whole
// operation when LotID is empty.
type Target struct {
	LotID string `bson:"lot_id" json:"lot_id,omitempty"`
}

// OperationTarget selects every lot and every unassigned record.
func OperationTarget() Target { return Target{} }

// LotTarget selects a single lot.
func LotTarget(lotID string) Target { return Target{LotID: lotID} }

// IsLot reports whether the target is a single lot.
func (t Target) IsLot() bool { return t.LotID != "" }

// SummarySource tells which path produced a FinancialSummary.
type SummarySource string

const (
	SourceAuthoritative SummarySource = "authoritative"
	SourceComposed      SummarySource = "composed"
)

// AuthoritativeSummary is a lot-level financial result computed outside this
// service. When present it is trusted over local recomputation.
type AuthoritativeSummary struct {
	LotID               string                              `bson:"lot_id" json:"lot_id"`
	TotalExpenses       decimal.Decimal                     `bson:"total_expenses" json:"total_expenses"`
	TotalRevenue        decimal.Decimal                     `bson:"total_revenue" json:"total_revenue"`
	NetProfit           decimal.Decimal                     `bson:"net_profit" json:"net_profit"`
	GrossProfit         decimal.Decimal                     `bson:"gross_profit" json:"gross_profit"`
	ProfitMarginPercent decimal.Decimal                     `bson:"profit_margin_percent" json:"profit_margin_percent"`
	ExpensesBreakdown   map[ExpenseCategory]decimal.Decimal `bson:"expenses_breakdown" json:"expenses_breakdown"`
	ComputedAt          time.Time                           `bson:"computed_at" json:"computed_at"`
}

// FinancialSummary is the reconciled financial view of a target over a period.
// EstimatedEggRevenue is informational and is never part of TotalRevenue.
type FinancialSummary struct {
	Target                Target                              `bson:"target" json:"target"`
	Period                DateRange                           `bson:"period" json:"period"`
	Source                SummarySource                       `bson:"source" json:"source"`
	TotalRevenue          decimal.Decimal                     `bson:"total_revenue" json:"total_revenue"`
	TotalExpenses         decimal.Decimal                     `bson:"total_expenses" json:"total_expenses"`
	Profit                decimal.Decimal                     `bson:"profit" json:"profit"`
	ProfitMarginPercent   decimal.Decimal                     `bson:"profit_margin_percent" json:"profit_margin_percent"`
	ExpensesBreakdown     map[ExpenseCategory]decimal.Decimal `bson:"expenses_breakdown" json:"expenses_breakdown"`
	AmountCollected       decimal.Decimal                     `bson:"amount_collected" json:"amount_collected"`
	Outstanding           decimal.Decimal                     `bson:"outstanding" json:"outstanding"`
	CollectionRatePercent decimal.Decimal                     `bson:"collection_rate_percent" json:"collection_rate_percent"`
	EstimatedEggRevenue   decimal.Decimal                     `bson:"estimated_egg_revenue" json:"estimated_egg_revenue"`
	SalesCount            int                                 `bson:"sales_count" json:"sales_count"`
	ExpenseCount          int                                 `bson:"expense_count" json:"expense_count"`
	Warnings              []DataGapWarning                    `bson:"warnings" json:"warnings,omitempty"`
}

// ProductionTotals reduces production records for a lot or the operation.
type ProductionTotals struct {
	Target               Target           `bson:"target" json:"target"`
	Period               DateRange        `bson:"period" json:"period"`
	Records              int              `bson:"records" json:"records"`
	TotalEggs            int              `bson:"total_eggs" json:"total_eggs"`
	Trays                int              `bson:"trays" json:"trays"`
	AverageLayingRate    float64          `bson:"average_laying_rate" json:"average_laying_rate"`
	TotalFeedKg          float64          `bson:"total_feed_kg" json:"total_feed_kg"`
	FeedPerBirdKg        float64          `bson:"feed_per_bird_kg" json:"feed_per_bird_kg"`
	TotalMortality       int              `bson:"total_mortality" json:"total_mortality"`
	MortalityRatePercent float64          `bson:"mortality_rate_percent" json:"mortality_rate_percent"`
	AverageWeightGrams   float64          `bson:"average_weight_grams" json:"average_weight_grams"`
	WeightGainGrams      float64          `bson:"weight_gain_grams" json:"weight_gain_grams"`
	BirdCount            int              `bson:"bird_count" json:"bird_count"`
	Warnings             []DataGapWarning `bson:"warnings" json:"warnings,omitempty"`
}

// SummarySnapshot is a periodic report persisted for history.
type SummarySnapshot struct {
	ID         string           `bson:"_id" json:"id"`
	Summary    FinancialSummary `bson:"summary" json:"summary"`
	Production ProductionTotals `bson:"production" json:"production"`
	CreatedAt  time.Time        `bson:"created_at" json:"created_at"`
}
