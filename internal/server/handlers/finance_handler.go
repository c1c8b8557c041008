package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mamadbah2/farmledger/internal/domain/models"
	"github.com/mamadbah2/farmledger/internal/service/importer"
	"github.com/mamadbah2/farmledger/internal/service/reconciliation"
)

// Analytics is the read side served by the API.
type Analytics interface {
	Resolver() *reconciliation.PeriodResolver
	Summarize(ctx context.Context, target models.Target, period models.DateRange) (models.FinancialSummary, error)
	AggregateProduction(ctx context.Context, target models.Target, period models.DateRange) (models.ProductionTotals, error)
	EstimateEggRevenue(ctx context.Context, target models.Target, period models.DateRange) (decimal.Decimal, error)
}

// Splitter splits lots.
type Splitter interface {
	Split(ctx context.Context, req models.SplitRequest) (models.SplitResult, error)
}

// Recorder validates and stores farm records.
type Recorder interface {
	RegisterLot(ctx context.Context, lot models.Lot) (models.Lot, error)
	SaveBuilding(ctx context.Context, b models.Building) error
	CreateSale(ctx context.Context, sale models.SaleRecord) (models.SaleRecord, error)
	CreateExpense(ctx context.Context, e models.ExpenseRecord) (models.ExpenseRecord, error)
	RecordProduction(ctx context.Context, r models.ProductionRecord) (models.ProductionRecord, error)
	SaveAuthoritativeSummary(ctx context.Context, summary models.AuthoritativeSummary) error
}

// Ledger reads stored lots, split history and report snapshots.
type Ledger interface {
	GetLot(ctx context.Context, id string) (models.Lot, error)
	ListLots(ctx context.Context, filter models.LotFilter) ([]models.Lot, error)
	ListSplits(ctx context.Context, lotID string) ([]models.SplitRelationship, error)
	ListSnapshots(ctx context.Context, limit int) ([]models.SummarySnapshot, error)
}

// ImportRunner triggers a sheet import on demand.
type ImportRunner interface {
	Run(ctx context.Context) (importer.Report, error)
}

// FinanceHandler serves the reconciliation, split and record endpoints.
type FinanceHandler struct {
	analytics Analytics
	splitter  Splitter
	recorder  Recorder
	ledger    Ledger
	importer  ImportRunner
	logger    *zap.Logger
}

// NewFinanceHandler constructs the HTTP handler adapter. imp may be nil when
// the sheet import is disabled.
func NewFinanceHandler(analytics Analytics, splitter Splitter, recorder Recorder, ledger Ledger, imp ImportRunner, logger *zap.Logger) *FinanceHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FinanceHandler{
		analytics: analytics,
		splitter:  splitter,
		recorder:  recorder,
		ledger:    ledger,
		importer:  imp,
		logger:    logger,
	}
}

// Summary returns the operation-wide financial summary.
func (h *FinanceHandler) Summary(c *gin.Context) {
	h.summary(c, models.OperationTarget())
}

// LotSummary returns the financial summary of one lot.
func (h *FinanceHandler) LotSummary(c *gin.Context) {
	h.summary(c, models.LotTarget(c.Param("id")))
}

func (h *FinanceHandler) summary(c *gin.Context, target models.Target) {
	period, err := h.period(c)
	if err != nil {
		h.fail(c, err)
		return
	}

	summary, err := h.analytics.Summarize(c.Request.Context(), target, period)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

// Production returns operation-wide production totals.
func (h *FinanceHandler) Production(c *gin.Context) {
	h.production(c, models.OperationTarget())
}

// LotProduction returns the production totals of one lot.
func (h *FinanceHandler) LotProduction(c *gin.Context) {
	h.production(c, models.LotTarget(c.Param("id")))
}

func (h *FinanceHandler) production(c *gin.Context, target models.Target) {
	period, err := h.period(c)
	if err != nil {
		h.fail(c, err)
		return
	}

	totals, err := h.analytics.AggregateProduction(c.Request.Context(), target, period)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, totals)
}

// EggEstimate values the lot's unsold eggs.
func (h *FinanceHandler) EggEstimate(c *gin.Context) {
	period, err := h.period(c)
	if err != nil {
		h.fail(c, err)
		return
	}

	target := models.LotTarget(c.Param("id"))
	estimate, err := h.analytics.EstimateEggRevenue(c.Request.Context(), target, period)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"lot_id": target.LotID, "period": period, "estimated_egg_revenue": estimate})
}

// Split moves birds of a lot into a new lot.
func (h *FinanceHandler) Split(c *gin.Context) {
	var req models.SplitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}
	req.ParentLotID = c.Param("id")

	result, err := h.splitter.Split(c.Request.Context(), req)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, result)
}

// Splits lists the split history of a lot.
func (h *FinanceHandler) Splits(c *gin.Context) {
	splits, err := h.ledger.ListSplits(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	if splits == nil {
		splits = []models.SplitRelationship{}
	}
	c.JSON(http.StatusOK, gin.H{"splits": splits})
}

// GetLot returns one lot.
func (h *FinanceHandler) GetLot(c *gin.Context) {
	lot, err := h.ledger.GetLot(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, lot)
}

// ListLots lists lots filtered by site, building and status.
func (h *FinanceHandler) ListLots(c *gin.Context) {
	lots, err := h.ledger.ListLots(c.Request.Context(), models.LotFilter{
		SiteID:     c.Query("site_id"),
		BuildingID: c.Query("building_id"),
		Status:     models.LotStatus(c.Query("status")),
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	if lots == nil {
		lots = []models.Lot{}
	}
	c.JSON(http.StatusOK, gin.H{"lots": lots})
}

type lotRequest struct {
	ID                 string           `json:"id"`
	Name               string           `json:"name"`
	Type               models.LotType   `json:"type" binding:"required"`
	Breed              string           `json:"breed"`
	SiteID             string           `json:"site_id"`
	BuildingID         string           `json:"building_id"`
	PlacementDate      string           `json:"placement_date" binding:"required"`
	AgeAtPlacementDays int              `json:"age_at_placement_days"`
	InitialQuantity    int              `json:"initial_quantity" binding:"required"`
	CurrentQuantity    *int             `json:"current_quantity"`
	UnitPrice          decimal.Decimal  `json:"unit_price"`
	TransportCost      decimal.Decimal  `json:"transport_cost"`
	OtherInitialCosts  decimal.Decimal  `json:"other_initial_costs"`
	Status             models.LotStatus `json:"status"`
}

// CreateLot registers a new lot. Without current_quantity the flock is
// assumed intact; an explicit 0 registers a depleted lot.
func (h *FinanceHandler) CreateLot(c *gin.Context) {
	var req lotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}
	placed, err := h.parseDate(req.PlacementDate)
	if err != nil {
		h.fail(c, err)
		return
	}
	current := req.InitialQuantity
	if req.CurrentQuantity != nil {
		current = *req.CurrentQuantity
	}

	lot, err := h.recorder.RegisterLot(c.Request.Context(), models.Lot{
		ID:                 req.ID,
		Name:               req.Name,
		Type:               req.Type,
		Breed:              req.Breed,
		SiteID:             req.SiteID,
		BuildingID:         req.BuildingID,
		PlacementDate:      placed,
		AgeAtPlacementDays: req.AgeAtPlacementDays,
		InitialQuantity:    req.InitialQuantity,
		CurrentQuantity:    current,
		UnitPrice:          req.UnitPrice,
		TransportCost:      req.TransportCost,
		OtherInitialCosts:  req.OtherInitialCosts,
		Status:             req.Status,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, lot)
}

// SaveBuilding creates or replaces a building.
func (h *FinanceHandler) SaveBuilding(c *gin.Context) {
	var b models.Building
	if err := c.ShouldBindJSON(&b); err != nil {
		h.badRequest(c, err)
		return
	}
	if err := h.recorder.SaveBuilding(c.Request.Context(), b); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}

type saleRequest struct {
	Date          string               `json:"date" binding:"required"`
	Type          models.SaleType      `json:"sale_type"`
	Quantity      int                  `json:"quantity"`
	UnitPrice     decimal.Decimal      `json:"unit_price"`
	Lines         []models.SaleLine    `json:"lines"`
	TotalAmount   decimal.Decimal      `json:"total_amount"`
	PaymentStatus models.PaymentStatus `json:"payment_status" binding:"required"`
	AmountPaid    decimal.Decimal      `json:"amount_paid"`
	ClientID      string               `json:"client_id"`
	LotID         string               `json:"lot_id"`
	SiteID        string               `json:"site_id"`
}

// CreateSale records a sale.
func (h *FinanceHandler) CreateSale(c *gin.Context) {
	var req saleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}
	date, err := h.parseDate(req.Date)
	if err != nil {
		h.fail(c, err)
		return
	}

	sale, err := h.recorder.CreateSale(c.Request.Context(), models.SaleRecord{
		Date:          date,
		Type:          req.Type,
		Quantity:      req.Quantity,
		UnitPrice:     req.UnitPrice,
		Lines:         req.Lines,
		TotalAmount:   req.TotalAmount,
		PaymentStatus: req.PaymentStatus,
		AmountPaid:    req.AmountPaid,
		ClientID:      req.ClientID,
		LotID:         req.LotID,
		SiteID:        req.SiteID,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, sale)
}

type expenseRequest struct {
	Date        string          `json:"date" binding:"required"`
	Category    string          `json:"category"`
	LotID       string          `json:"lot_id"`
	SiteID      string          `json:"site_id"`
	SupplierID  string          `json:"supplier_id"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
}

// CreateExpense records an expense.
func (h *FinanceHandler) CreateExpense(c *gin.Context) {
	var req expenseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}
	date, err := h.parseDate(req.Date)
	if err != nil {
		h.fail(c, err)
		return
	}

	expense, err := h.recorder.CreateExpense(c.Request.Context(), models.ExpenseRecord{
		Date:        date,
		Category:    req.Category,
		LotID:       req.LotID,
		SiteID:      req.SiteID,
		SupplierID:  req.SupplierID,
		Amount:      req.Amount,
		Description: req.Description,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, expense)
}

type productionRequest struct {
	LotID              string                `json:"lot_id" binding:"required"`
	Date               string                `json:"date" binding:"required"`
	Kind               models.ProductionKind `json:"kind"`
	NormalEggs         int                   `json:"normal_eggs"`
	CrackedEggs        int                   `json:"cracked_eggs"`
	DirtyEggs          int                   `json:"dirty_eggs"`
	SmallEggs          int                   `json:"small_eggs"`
	LayingRate         float64               `json:"laying_rate"`
	AverageWeightGrams float64               `json:"average_weight_grams"`
	AgeDays            int                   `json:"age_days"`
	FeedKg             float64               `json:"feed_kg"`
	Mortality          int                   `json:"mortality"`
	Notes              string                `json:"notes"`
}

// RecordProduction upserts a production observation.
func (h *FinanceHandler) RecordProduction(c *gin.Context) {
	var req productionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}
	date, err := h.parseDate(req.Date)
	if err != nil {
		h.fail(c, err)
		return
	}

	record, err := h.recorder.RecordProduction(c.Request.Context(), models.ProductionRecord{
		LotID:              req.LotID,
		Date:               date,
		Kind:               req.Kind,
		NormalEggs:         req.NormalEggs,
		CrackedEggs:        req.CrackedEggs,
		DirtyEggs:          req.DirtyEggs,
		SmallEggs:          req.SmallEggs,
		LayingRate:         req.LayingRate,
		AverageWeightGrams: req.AverageWeightGrams,
		AgeDays:            req.AgeDays,
		FeedKg:             req.FeedKg,
		Mortality:          req.Mortality,
		Notes:              req.Notes,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, record)
}

// SaveAuthoritativeSummary stores an externally computed lot summary.
func (h *FinanceHandler) SaveAuthoritativeSummary(c *gin.Context) {
	var summary models.AuthoritativeSummary
	if err := c.ShouldBindJSON(&summary); err != nil {
		h.badRequest(c, err)
		return
	}
	summary.LotID = c.Param("id")

	if err := h.recorder.SaveAuthoritativeSummary(c.Request.Context(), summary); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Snapshots lists the most recent periodic reports.
func (h *FinanceHandler) Snapshots(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "10"))
	if err != nil || limit <= 0 {
		h.fail(c, models.NewValidationError("limit", "limit must be a positive integer"))
		return
	}

	snapshots, err := h.ledger.ListSnapshots(c.Request.Context(), limit)
	if err != nil {
		h.fail(c, err)
		return
	}
	if snapshots == nil {
		snapshots = []models.SummarySnapshot{}
	}
	c.JSON(http.StatusOK, gin.H{"snapshots": snapshots})
}

// Import runs the sheet import now.
func (h *FinanceHandler) Import(c *gin.Context) {
	if h.importer == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "sheet import is not configured"})
		return
	}

	report, err := h.importer.Run(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// period reads either ?period=<name> or ?start=YYYY-MM-DD&end=YYYY-MM-DD.
func (h *FinanceHandler) period(c *gin.Context) (models.DateRange, error) {
	resolver := h.analytics.Resolver()
	start, end := c.Query("start"), c.Query("end")
	if start == "" && end == "" {
		return resolver.Resolve(c.Query("period"))
	}

	from, err := h.parseDate(start)
	if err != nil {
		return models.DateRange{}, err
	}
	to, err := h.parseDate(end)
	if err != nil {
		return models.DateRange{}, err
	}
	return resolver.ResolveExplicit(from, to)
}

// parseDate accepts a calendar date in the operation's zone or an RFC 3339 instant.
func (h *FinanceHandler) parseDate(value string) (time.Time, error) {
	loc := h.analytics.Resolver().Location()
	if t, err := time.ParseInLocation(models.DateLayout, value, loc); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t.In(loc), nil
	}
	return time.Time{}, models.NewValidationError("date", fmt.Sprintf("invalid date %q, expected YYYY-MM-DD", value))
}

func (h *FinanceHandler) badRequest(c *gin.Context, err error) {
	h.logger.Debug("invalid request body", zap.String("path", c.FullPath()), zap.Error(err))
	c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "detail": err.Error()})
}

// fail maps the error taxonomy onto HTTP statuses.
func (h *FinanceHandler) fail(c *gin.Context, err error) {
	var validation *models.ValidationError
	var conflict *models.ConflictError

	switch {
	case errors.As(err, &validation):
		c.JSON(http.StatusBadRequest, gin.H{"error": validation.Message, "rule": validation.Rule})
	case errors.As(err, &conflict):
		c.JSON(http.StatusConflict, gin.H{"error": conflict.Error(), "lot_id": conflict.LotID})
	case models.IsNotFound(err):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	default:
		h.logger.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
