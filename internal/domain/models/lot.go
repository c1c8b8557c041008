package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// LotType distinguishes meat birds from laying hens.
type LotType string

const (
	LotTypeBroiler LotType = "broiler"
	LotTypeLayer   LotType = "layer"
)

// LotStatus tracks a lot through its lifecycle.
type LotStatus string

const (
	LotStatusPreparation LotStatus = "preparation"
	LotStatusActive      LotStatus = "active"
	LotStatusSuspended   LotStatus = "suspended"
	LotStatusCompleted   LotStatus = "completed"
)

// Lot is a cohort of birds placed together and managed as one unit.
type Lot struct {
	ID                 string          `bson:"_id" json:"id"`
	Name               string          `bson:"name" json:"name"`
	Type               LotType         `bson:"type" json:"type"`
	Breed              string          `bson:"breed" json:"breed,omitempty"`
	SiteID             string          `bson:"site_id" json:"site_id,omitempty"`
	BuildingID         string          `bson:"building_id" json:"building_id,omitempty"`
	PlacementDate      time.Time       `bson:"placement_date" json:"placement_date"`
	AgeAtPlacementDays int             `bson:"age_at_placement_days" json:"age_at_placement_days"`
	InitialQuantity    int             `bson:"initial_quantity" json:"initial_quantity"`
	CurrentQuantity    int             `bson:"current_quantity" json:"current_quantity"`
	UnitPrice          decimal.Decimal `bson:"unit_price" json:"unit_price"`
	TransportCost      decimal.Decimal `bson:"transport_cost" json:"transport_cost"`
	OtherInitialCosts  decimal.Decimal `bson:"other_initial_costs" json:"other_initial_costs"`
	Status             LotStatus       `bson:"status" json:"status"`
	ParentLotID        string          `bson:"parent_lot_id" json:"parent_lot_id,omitempty"`
	SplitRatio         decimal.Decimal `bson:"split_ratio" json:"split_ratio"`
	// Version is bumped on every quantity mutation and used for optimistic locking.
	Version   int64     `bson:"version" json:"version"`
	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

// IsSplitChild reports whether the lot was created by splitting another lot.
func (l Lot) IsSplitChild() bool {
	return l.ParentLotID != ""
}

// IsClosed reports whether the lot reached its terminal status.
func (l Lot) IsClosed() bool {
	return l.Status == LotStatusCompleted
}

// ChickCost is the stock acquisition cost: unit price times initial quantity.
func (l Lot) ChickCost() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.InitialQuantity)))
}

// AcquisitionCost sums every one-time cost recorded on the lot itself.
func (l Lot) AcquisitionCost() decimal.Decimal {
	return l.ChickCost().Add(l.TransportCost).Add(l.OtherInitialCosts)
}

// Validate checks the quantity invariants of a lot record.
func (l Lot) Validate() error {
	switch {
	case l.ID == "":
		return NewValidationError("lot_id", "lot id must not be empty")
	case l.InitialQuantity < 0:
		return NewValidationError("initial_quantity", "initial quantity must not be negative")
	case l.CurrentQuantity < 0:
		return NewValidationError("current_quantity", "current quantity must not be negative")
	case l.CurrentQuantity > l.InitialQuantity:
		return NewValidationError("current_quantity", "current quantity exceeds initial quantity")
	case l.UnitPrice.IsNegative() || l.TransportCost.IsNegative() || l.OtherInitialCosts.IsNegative():
		return NewValidationError("acquisition_cost", "acquisition costs must not be negative")
	}

	switch l.Status {
	case LotStatusPreparation, LotStatusActive, LotStatusSuspended, LotStatusCompleted:
	default:
		return NewValidationError("status", "unknown lot status "+string(l.Status))
	}

	switch l.Type {
	case LotTypeBroiler, LotTypeLayer:
	default:
		return NewValidationError("type", "unknown lot type "+string(l.Type))
	}
	return nil
}

// Building is a physical house on a site where lots are placed.
type Building struct {
	ID     string `bson:"_id" json:"id"`
	SiteID string `bson:"site_id" json:"site_id"`
	Name   string `bson:"name" json:"name"`
}

// SplitRelationship links a parent lot to the child created from it.
// It is an audit record and is never updated or removed.
type SplitRelationship struct {
	ID                   string           `bson:"_id" json:"id"`
	ParentLotID          string           `bson:"parent_lot_id" json:"parent_lot_id"`
	ChildLotID           string           `bson:"child_lot_id" json:"child_lot_id"`
	TransferredQuantity  int              `bson:"transferred_quantity" json:"transferred_quantity"`
	ParentQuantityBefore int              `bson:"parent_quantity_before" json:"parent_quantity_before"`
	Ratio                decimal.Decimal  `bson:"ratio" json:"ratio"`
	ExpensesDistributed  bool             `bson:"expenses_distributed" json:"expenses_distributed"`
	Adjustments          []CostAdjustment `bson:"adjustments" json:"adjustments,omitempty"`
	CreatedAt            time.Time        `bson:"created_at" json:"created_at"`
}

// CostAdjustment is the share of one expense category attributed to the child lot.
// OriginalTotal is the parent's reported category total at split time.
type CostAdjustment struct {
	Category      ExpenseCategory `bson:"category" json:"category"`
	OriginalTotal decimal.Decimal `bson:"original_total" json:"original_total"`
	ChildShare    decimal.Decimal `bson:"child_share" json:"child_share"`
}

// ParentShare is what remains attributed to the parent after the split.
func (a CostAdjustment) ParentShare() decimal.Decimal {
	return a.OriginalTotal.Sub(a.ChildShare)
}
