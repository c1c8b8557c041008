package splitting

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mamadbah2/farmledger/internal/domain/models"
)

// Store is the persistence surface a split needs.
type Store interface {
	GetLot(ctx context.Context, id string) (models.Lot, error)
	GetBuilding(ctx context.Context, id string) (models.Building, error)
	// RunInTx executes fn atomically: every write commits or none does.
	RunInTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Tx is the write side available inside a split transaction.
type Tx interface {
	// UpdateLotQuantity sets the lot's current quantity if its version still
	// equals expectedVersion, bumping the version. A stale version yields a
	// *models.ConflictError.
	UpdateLotQuantity(ctx context.Context, lotID string, expectedVersion int64, quantity int, at time.Time) error
	InsertLot(ctx context.Context, lot models.Lot) error
	InsertSplit(ctx context.Context, split models.SplitRelationship) error
}

// BreakdownProvider returns a lot's reported life-to-date expenses per category.
type BreakdownProvider interface {
	ExpenseBreakdown(ctx context.Context, lotID string) (map[models.ExpenseCategory]decimal.Decimal, error)
}

// Service splits one active lot into itself plus a new child lot.
type Service struct {
	store     Store
	breakdown BreakdownProvider
	decimals  int32
	logger    *zap.Logger
	now       func() time.Time
	newID     func() string
}

// NewService wires the splitter. decimals is the number of minor-unit digits of
// the operating currency; child cost shares are rounded to it.
func NewService(store Store, breakdown BreakdownProvider, decimals int32, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:     store,
		breakdown: breakdown,
		decimals:  decimals,
		logger:    logger,
		now:       time.Now,
		newID:     uuid.NewString,
	}
}

// Split moves req.Quantity birds of the parent lot into a new lot placed in
// req.BuildingID. When req.DistributeExpenses is set, the child is attributed
// its proportional share of every expense category of the parent; the
// expense rows themselves are left untouched.
//
// The parent update, the child insert and the split record are written in one
// transaction. A parent modified since it was read fails with a ConflictError
// and is not retried here.
func (s *Service) Split(ctx context.Context, req models.SplitRequest) (models.SplitResult, error) {
	parent, err := s.store.GetLot(ctx, req.ParentLotID)
	if err != nil {
		if models.IsNotFound(err) {
			return models.SplitResult{}, models.NewValidationError("parent_lot", fmt.Sprintf("lot %s does not exist", req.ParentLotID))
		}
		return models.SplitResult{}, fmt.Errorf("load parent lot: %w", err)
	}

	building, err := s.checkPreconditions(ctx, parent, req)
	if err != nil {
		return models.SplitResult{}, err
	}

	var breakdown map[models.ExpenseCategory]decimal.Decimal
	if req.DistributeExpenses {
		if breakdown, err = s.breakdown.ExpenseBreakdown(ctx, parent.ID); err != nil {
			return models.SplitResult{}, fmt.Errorf("load parent expense breakdown: %w", err)
		}
	}

	result, err := s.plan(parent, building, req, breakdown)
	if err != nil {
		return models.SplitResult{}, err
	}

	err = s.store.RunInTx(ctx, func(ctx context.Context, tx Tx) error {
		if err := tx.UpdateLotQuantity(ctx, parent.ID, parent.Version, result.Parent.CurrentQuantity, result.Parent.UpdatedAt); err != nil {
			return err
		}
		if err := tx.InsertLot(ctx, result.Child); err != nil {
			return fmt.Errorf("insert child lot: %w", err)
		}
		if err := tx.InsertSplit(ctx, result.Relationship); err != nil {
			return fmt.Errorf("insert split relationship: %w", err)
		}
		return nil
	})
	if err != nil {
		var conflict *models.ConflictError
		if errors.As(err, &conflict) {
			s.logger.Warn("split lost a concurrent update", zap.String("lot_id", parent.ID), zap.Int64("version", parent.Version))
			return models.SplitResult{}, err
		}
		return models.SplitResult{}, fmt.Errorf("commit split: %w", err)
	}

	s.logger.Info("lot split committed",
		zap.String("parent_lot_id", parent.ID),
		zap.String("child_lot_id", result.Child.ID),
		zap.Int("transferred", req.Quantity),
		zap.String("ratio", result.Relationship.Ratio.String()),
		zap.Bool("expenses_distributed", req.DistributeExpenses))

	return result, nil
}

func (s *Service) checkPreconditions(ctx context.Context, parent models.Lot, req models.SplitRequest) (models.Building, error) {
	if parent.Status != models.LotStatusActive {
		return models.Building{}, models.NewValidationError("parent_status", fmt.Sprintf("lot %s is %s, only active lots can be split", parent.ID, parent.Status))
	}
	if req.Quantity <= 0 {
		return models.Building{}, models.NewValidationError("quantity", "transfer quantity must be positive")
	}
	if req.Quantity >= parent.CurrentQuantity {
		return models.Building{}, models.NewValidationError("quantity", fmt.Sprintf("transfer quantity %d must be below the lot's %d birds", req.Quantity, parent.CurrentQuantity))
	}
	if req.BuildingID == "" {
		return models.Building{}, models.NewValidationError("building", "target building is required")
	}

	building, err := s.store.GetBuilding(ctx, req.BuildingID)
	if err != nil {
		if models.IsNotFound(err) {
			return models.Building{}, models.NewValidationError("building", fmt.Sprintf("building %s does not exist", req.BuildingID))
		}
		return models.Building{}, fmt.Errorf("load building: %w", err)
	}
	return building, nil
}

// plan builds every record of the split in memory and checks the quantity
// invariants before anything is written.
func (s *Service) plan(parent models.Lot, building models.Building, req models.SplitRequest, breakdown map[models.ExpenseCategory]decimal.Decimal) (models.SplitResult, error) {
	now := s.now()
	before := parent.CurrentQuantity
	transferred := decimal.NewFromInt(int64(req.Quantity))
	base := decimal.NewFromInt(int64(before))
	ratio := transferred.Div(base)

	name := req.Name
	if name == "" {
		name = fmt.Sprintf("%s (split %s)", parent.Name, now.Format(models.DateLayout))
	}

	child := models.Lot{
		ID:                 s.newID(),
		Name:               name,
		Type:               parent.Type,
		Breed:              parent.Breed,
		SiteID:             building.SiteID,
		BuildingID:         building.ID,
		PlacementDate:      parent.PlacementDate,
		AgeAtPlacementDays: parent.AgeAtPlacementDays,
		InitialQuantity:    req.Quantity,
		CurrentQuantity:    req.Quantity,
		UnitPrice:          parent.UnitPrice,
		TransportCost:      parent.TransportCost,
		OtherInitialCosts:  parent.OtherInitialCosts,
		Status:             models.LotStatusActive,
		ParentLotID:        parent.ID,
		SplitRatio:         ratio,
		Version:            1,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	updated := parent
	updated.CurrentQuantity = before - req.Quantity
	updated.Version = parent.Version + 1
	updated.UpdatedAt = now

	relationship := models.SplitRelationship{
		ID:                   s.newID(),
		ParentLotID:          parent.ID,
		ChildLotID:           child.ID,
		TransferredQuantity:  req.Quantity,
		ParentQuantityBefore: before,
		Ratio:                ratio,
		ExpensesDistributed:  req.DistributeExpenses,
		CreatedAt:            now,
	}

	if req.DistributeExpenses {
		for _, category := range models.ExpenseCategories {
			total, ok := breakdown[category]
			if !ok || total.IsZero() {
				continue
			}
			relationship.Adjustments = append(relationship.Adjustments, models.CostAdjustment{
				Category:      category,
				OriginalTotal: total,
				ChildShare:    total.Mul(transferred).Div(base).Round(s.decimals),
			})
		}
	}

	if updated.CurrentQuantity+child.CurrentQuantity != before {
		return models.SplitResult{}, fmt.Errorf("split of lot %s does not conserve quantity", parent.ID)
	}
	if err := updated.Validate(); err != nil {
		return models.SplitResult{}, err
	}
	if err := child.Validate(); err != nil {
		return models.SplitResult{}, err
	}

	return models.SplitResult{Parent: updated, Child: child, Relationship: relationship}, nil
}
