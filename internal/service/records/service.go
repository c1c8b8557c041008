package records

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mamadbah2/farmledger/internal/domain/models"
)

// Store is the write side used to record farm activity.
type Store interface {
	GetLot(ctx context.Context, id string) (models.Lot, error)
	SaveLot(ctx context.Context, lot models.Lot) error
	SaveBuilding(ctx context.Context, b models.Building) error
	SaveSale(ctx context.Context, sale models.SaleRecord) error
	SaveExpense(ctx context.Context, e models.ExpenseRecord) error
	UpsertProduction(ctx context.Context, r models.ProductionRecord) error
	SaveAuthoritativeSummary(ctx context.Context, summary models.AuthoritativeSummary) error
}

// Service validates records and hands them to the store.
type Service struct {
	store  Store
	logger *zap.Logger
	now    func() time.Time
	newID  func() string
}

// NewService creates a new records service.
func NewService(store Store, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, logger: logger, now: time.Now, newID: uuid.NewString}
}

// RegisterLot creates a lot. An id already in use is rejected: quantities,
// status and split lineage of a stored lot only change through their own
// operations. A missing status defaults to active.
func (s *Service) RegisterLot(ctx context.Context, lot models.Lot) (models.Lot, error) {
	lot.ID = strings.TrimSpace(lot.ID)
	if lot.ID == "" {
		lot.ID = s.newID()
	}
	if lot.Status == "" {
		lot.Status = models.LotStatusActive
	}
	if _, err := s.store.GetLot(ctx, lot.ID); err == nil {
		return models.Lot{}, models.NewValidationError("lot_id", fmt.Sprintf("lot %s already exists", lot.ID))
	} else if !models.IsNotFound(err) {
		return models.Lot{}, fmt.Errorf("load lot %s: %w", lot.ID, err)
	}
	now := s.now()
	if lot.CreatedAt.IsZero() {
		lot.CreatedAt = now
	}
	lot.UpdatedAt = now

	if err := lot.Validate(); err != nil {
		return models.Lot{}, err
	}
	if err := s.store.SaveLot(ctx, lot); err != nil {
		return models.Lot{}, err
	}
	s.logger.Info("lot registered", zap.String("lot_id", lot.ID), zap.Int("birds", lot.CurrentQuantity))
	return lot, nil
}

// SaveBuilding creates or replaces a building.
func (s *Service) SaveBuilding(ctx context.Context, b models.Building) error {
	if strings.TrimSpace(b.ID) == "" {
		return models.NewValidationError("building", "building id must not be empty")
	}
	return s.store.SaveBuilding(ctx, b)
}

// CreateSale records a sale after checking its payment invariants.
func (s *Service) CreateSale(ctx context.Context, sale models.SaleRecord) (models.SaleRecord, error) {
	sale = sale.Normalize()
	if sale.ID == "" {
		sale.ID = s.newID()
	}
	if err := sale.Validate(); err != nil {
		return models.SaleRecord{}, err
	}
	if err := s.checkLotOpen(ctx, sale.LotID); err != nil {
		return models.SaleRecord{}, err
	}

	if err := s.store.SaveSale(ctx, sale); err != nil {
		return models.SaleRecord{}, err
	}
	s.logger.Info("sale recorded",
		zap.String("sale_id", sale.ID),
		zap.String("lot_id", sale.LotID),
		zap.String("total", sale.TotalAmount.String()),
		zap.String("payment_status", string(sale.PaymentStatus)))
	return sale, nil
}

// CreateExpense records an expense. The category is stored as entered and
// classified when summaries are computed.
func (s *Service) CreateExpense(ctx context.Context, e models.ExpenseRecord) (models.ExpenseRecord, error) {
	if e.ID == "" {
		e.ID = s.newID()
	}
	if err := e.Validate(); err != nil {
		return models.ExpenseRecord{}, err
	}
	if err := s.checkLotOpen(ctx, e.LotID); err != nil {
		return models.ExpenseRecord{}, err
	}

	if err := s.store.SaveExpense(ctx, e); err != nil {
		return models.ExpenseRecord{}, err
	}
	s.logger.Info("expense recorded",
		zap.String("expense_id", e.ID),
		zap.String("lot_id", e.LotID),
		zap.String("category", e.Category),
		zap.String("amount", e.Amount.String()))
	return e, nil
}

// RecordProduction writes a production observation, replacing any earlier
// record for the same lot, day and kind.
func (s *Service) RecordProduction(ctx context.Context, r models.ProductionRecord) (models.ProductionRecord, error) {
	if r.ID == "" {
		r.ID = s.newID()
	}
	if r.Kind == "" {
		r.Kind = models.ProductionEggs
	}
	r.Date = models.TruncateDay(r.Date)
	if err := r.Validate(); err != nil {
		return models.ProductionRecord{}, err
	}
	if err := s.checkLotOpen(ctx, r.LotID); err != nil {
		return models.ProductionRecord{}, err
	}

	if err := s.store.UpsertProduction(ctx, r); err != nil {
		return models.ProductionRecord{}, err
	}
	s.logger.Debug("production recorded", zap.String("key", r.Key()), zap.Int("eggs", r.TotalEggs()))
	return r, nil
}

// SaveAuthoritativeSummary stores a lot summary computed by an external system.
func (s *Service) SaveAuthoritativeSummary(ctx context.Context, summary models.AuthoritativeSummary) error {
	if summary.LotID == "" {
		return models.NewValidationError("lot_id", "authoritative summary needs a lot")
	}
	if err := s.checkLotOpen(ctx, summary.LotID); err != nil {
		return err
	}
	if summary.ComputedAt.IsZero() {
		summary.ComputedAt = s.now()
	}
	return s.store.SaveAuthoritativeSummary(ctx, summary)
}

// checkLotOpen rejects records against unknown or completed lots. Records
// without a lot are operation-wide and always accepted.
func (s *Service) checkLotOpen(ctx context.Context, lotID string) error {
	if lotID == "" {
		return nil
	}
	lot, err := s.store.GetLot(ctx, lotID)
	if err != nil {
		if models.IsNotFound(err) {
			return models.NewValidationError("lot_id", fmt.Sprintf("lot %s does not exist", lotID))
		}
		return fmt.Errorf("load lot %s: %w", lotID, err)
	}
	if lot.IsClosed() {
		return models.NewValidationError("lot_status", fmt.Sprintf("lot %s is completed and accepts no new records", lotID))
	}
	return nil
}
