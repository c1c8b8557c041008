package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// ExpenseCategory is one bucket of the fixed reporting taxonomy.
type ExpenseCategory string

const (
	CategoryFeed        ExpenseCategory = "feed"
	CategoryChicks      ExpenseCategory = "chicks"
	CategoryVeterinary  ExpenseCategory = "veterinary"
	CategoryLabor       ExpenseCategory = "labor"
	CategoryEnergy      ExpenseCategory = "energy"
	CategoryWater       ExpenseCategory = "water"
	CategoryTransport   ExpenseCategory = "transport"
	CategoryPackaging   ExpenseCategory = "packaging"
	CategoryEquipment   ExpenseCategory = "equipment"
	CategoryMaintenance ExpenseCategory = "maintenance"
	CategoryRent        ExpenseCategory = "rent"
	CategoryOther       ExpenseCategory = "other"
)

// ExpenseCategories lists the taxonomy in reporting order.
var ExpenseCategories = []ExpenseCategory{
	CategoryFeed, CategoryChicks, CategoryVeterinary, CategoryLabor,
	CategoryEnergy, CategoryWater, CategoryTransport, CategoryPackaging,
	CategoryEquipment, CategoryMaintenance, CategoryRent, CategoryOther,
}

// ExpenseRecord captures an operating expense. Category holds the raw code as entered.
type ExpenseRecord struct {
	ID          string          `bson:"_id" json:"id"`
	Date        time.Time       `bson:"date" json:"date"`
	Category    string          `bson:"category" json:"category"`
	LotID       string          `bson:"lot_id" json:"lot_id,omitempty"`
	SiteID      string          `bson:"site_id" json:"site_id,omitempty"`
	SupplierID  string          `bson:"supplier_id" json:"supplier_id,omitempty"`
	Amount      decimal.Decimal `bson:"amount" json:"amount"`
	Description string          `bson:"description" json:"description,omitempty"`
}

// Validate checks an expense before it is persisted.
func (e ExpenseRecord) Validate() error {
	if e.Date.IsZero() {
		return NewValidationError("date", "expense date is required")
	}
	if e.Amount.IsNegative() {
		return NewValidationError("amount", "expense amount must not be negative")
	}
	return nil
}

// SaleType enumerates what was sold.
type SaleType string

const (
	SaleEggsTray     SaleType = "eggs_tray"
	SaleEggsCarton   SaleType = "eggs_carton"
	SaleLiveBirds    SaleType = "live_birds"
	SaleDressedBirds SaleType = "dressed_birds"
	SaleCulledHens   SaleType = "culled_hens"
	SaleManure       SaleType = "manure"
	SaleOther        SaleType = "other"
)

// IsEggSale reports whether the sale type covers eggs.
func (t SaleType) IsEggSale() bool {
	return t == SaleEggsTray || t == SaleEggsCarton
}

func (t SaleType) valid() bool {
	switch t {
	case SaleEggsTray, SaleEggsCarton, SaleLiveBirds, SaleDressedBirds, SaleCulledHens, SaleManure, SaleOther:
		return true
	}
	return false
}

// PaymentStatus describes how much of a sale was collected.
type PaymentStatus string

const (
	PaymentPaid    PaymentStatus = "paid"
	PaymentPending PaymentStatus = "pending"
	PaymentPartial PaymentStatus = "partial"
)

// SaleLine is one item of a multi-line sale.
type SaleLine struct {
	Description string          `bson:"description" json:"description,omitempty"`
	Quantity    int             `bson:"quantity" json:"quantity"`
	UnitPrice   decimal.Decimal `bson:"unit_price" json:"unit_price"`
}

// Total returns quantity times unit price.
func (l SaleLine) Total() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// SaleRecord captures sales transactions.
type SaleRecord struct {
	ID            string          `bson:"_id" json:"id"`
	Date          time.Time       `bson:"date" json:"date"`
	Type          SaleType        `bson:"sale_type" json:"sale_type"`
	Quantity      int             `bson:"quantity" json:"quantity"`
	UnitPrice     decimal.Decimal `bson:"unit_price" json:"unit_price"`
	Lines         []SaleLine      `bson:"lines" json:"lines,omitempty"`
	TotalAmount   decimal.Decimal `bson:"total_amount" json:"total_amount"`
	PaymentStatus PaymentStatus   `bson:"payment_status" json:"payment_status"`
	AmountPaid    decimal.Decimal `bson:"amount_paid" json:"amount_paid"`
	ClientID      string          `bson:"client_id" json:"client_id,omitempty"`
	LotID         string          `bson:"lot_id" json:"lot_id,omitempty"`
	SiteID        string          `bson:"site_id" json:"site_id,omitempty"`
}

// ExpectedTotal derives the total from the lines when present, otherwise
// from quantity times unit price.
func (s SaleRecord) ExpectedTotal() decimal.Decimal {
	if len(s.Lines) == 0 {
		return s.UnitPrice.Mul(decimal.NewFromInt(int64(s.Quantity)))
	}
	total := decimal.Zero
	for _, line := range s.Lines {
		total = total.Add(line.Total())
	}
	return total
}

// Normalize fills a missing total from quantity/lines. Payment fields are left
// untouched so a contradictory status is still rejected by Validate.
func (s SaleRecord) Normalize() SaleRecord {
	if s.TotalAmount.IsZero() {
		s.TotalAmount = s.ExpectedTotal()
	}
	if s.Type == "" {
		s.Type = SaleOther
	}
	return s
}

// Validate enforces the payment invariants of a sale.
func (s SaleRecord) Validate() error {
	if s.Date.IsZero() {
		return NewValidationError("date", "sale date is required")
	}
	if !s.Type.valid() {
		return NewValidationError("sale_type", fmt.Sprintf("unknown sale type %q", s.Type))
	}
	if s.Quantity < 0 {
		return NewValidationError("quantity", "quantity must not be negative")
	}
	if s.TotalAmount.IsNegative() || s.AmountPaid.IsNegative() {
		return NewValidationError("amount", "amounts must not be negative")
	}
	if expected := s.ExpectedTotal(); !expected.IsZero() && !expected.Equal(s.TotalAmount) {
		return NewValidationError("total_amount", fmt.Sprintf("total %s does not match lines/quantity %s", s.TotalAmount, expected))
	}
	if s.AmountPaid.GreaterThan(s.TotalAmount) {
		return NewValidationError("amount_paid", "amount paid exceeds total amount")
	}

	switch s.PaymentStatus {
	case PaymentPaid:
		if !s.AmountPaid.Equal(s.TotalAmount) {
			return NewValidationError("payment_status", "paid sale must have amount paid equal to total")
		}
	case PaymentPending:
		if !s.AmountPaid.IsZero() {
			return NewValidationError("payment_status", "pending sale must have nothing paid")
		}
	case PaymentPartial:
		if !s.AmountPaid.IsPositive() || !s.AmountPaid.LessThan(s.TotalAmount) {
			return NewValidationError("payment_status", "partial sale must have 0 < amount paid < total")
		}
	default:
		return NewValidationError("payment_status", fmt.Sprintf("unknown payment status %q", s.PaymentStatus))
	}
	return nil
}

// ProductionKind separates egg observations from weight observations.
type ProductionKind string

const (
	ProductionEggs   ProductionKind = "eggs"
	ProductionWeight ProductionKind = "weight"
)

// ProductionRecord is a dated observation for a lot. One record exists per
// (lot, date, kind); writing the same key again replaces it.
type ProductionRecord struct {
	ID                 string         `bson:"_id" json:"id"`
	LotID              string         `bson:"lot_id" json:"lot_id"`
	Date               time.Time      `bson:"date" json:"date"`
	Kind               ProductionKind `bson:"kind" json:"kind"`
	NormalEggs         int            `bson:"normal_eggs" json:"normal_eggs"`
	CrackedEggs        int            `bson:"cracked_eggs" json:"cracked_eggs"`
	DirtyEggs          int            `bson:"dirty_eggs" json:"dirty_eggs"`
	SmallEggs          int            `bson:"small_eggs" json:"small_eggs"`
	LayingRate         float64        `bson:"laying_rate" json:"laying_rate"`
	AverageWeightGrams float64        `bson:"average_weight_grams" json:"average_weight_grams"`
	AgeDays            int            `bson:"age_days" json:"age_days"`
	FeedKg             float64        `bson:"feed_kg" json:"feed_kg"`
	Mortality          int            `bson:"mortality" json:"mortality"`
	Notes              string         `bson:"notes" json:"notes,omitempty"`
}

// TotalEggs sums every egg grade collected.
func (r ProductionRecord) TotalEggs() int {
	return r.NormalEggs + r.CrackedEggs + r.DirtyEggs + r.SmallEggs
}

// Key identifies the upsert slot of the record.
func (r ProductionRecord) Key() string {
	return r.LotID + "|" + r.Date.Format(DateLayout) + "|" + string(r.Kind)
}

// Validate checks a production record before it is persisted.
func (r ProductionRecord) Validate() error {
	switch {
	case r.LotID == "":
		return NewValidationError("lot_id", "production record needs a lot")
	case r.Date.IsZero():
		return NewValidationError("date", "production date is required")
	case r.Kind != ProductionEggs && r.Kind != ProductionWeight:
		return NewValidationError("kind", fmt.Sprintf("unknown production kind %q", r.Kind))
	case r.NormalEggs < 0 || r.CrackedEggs < 0 || r.DirtyEggs < 0 || r.SmallEggs < 0:
		return NewValidationError("eggs", "egg counts must not be negative")
	case r.Mortality < 0 || r.FeedKg < 0 || r.AverageWeightGrams < 0:
		return NewValidationError("production", "production figures must not be negative")
	}
	return nil
}

// DateLayout is the calendar date format used across records and filters.
const DateLayout = "2006-01-02"

// TruncateDay drops the clock part of t in its own location.
func TruncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
