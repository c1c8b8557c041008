// Package importer copies the farm's Google Sheets journal into the store.
//
// Each tab is read as a header-keyed table. Rows are parsed and validated at
// this boundary; a row that cannot be turned into a valid record is skipped
// and reported as a data gap instead of failing the whole import. Sales and
// expenses get ids derived from their content (or from an "id" column) so a
// re-import replaces rows instead of duplicating them. Lots are only created,
// never overwritten: quantities of known lots are owned by the application.
// Rows that point at an unknown or completed lot are skipped like bad rows.
package importer

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mamadbah2/farmledger/internal/domain/models"
	"github.com/mamadbah2/farmledger/internal/repository/sheets"
)

// Tab names of the journal spreadsheet.
const (
	TabLots       = "Lots"
	TabSales      = "Sales"
	TabExpenses   = "Expenses"
	TabProduction = "Production"
)

var rowNamespace = uuid.MustParse("5b1f7c3e-2d0a-4c55-9a8e-6f1d2e3c4b5a")

// Reader is the spreadsheet side of the import.
type Reader interface {
	ReadTable(ctx context.Context, tab string) ([]sheets.Row, error)
}

// Store is the write side of the import.
type Store interface {
	GetLot(ctx context.Context, id string) (models.Lot, error)
	SaveLot(ctx context.Context, lot models.Lot) error
	SaveSale(ctx context.Context, sale models.SaleRecord) error
	SaveExpense(ctx context.Context, e models.ExpenseRecord) error
	UpsertProduction(ctx context.Context, r models.ProductionRecord) error
}

// TabResult counts what happened to one tab.
type TabResult struct {
	Tab      string                  `json:"tab"`
	Imported int                     `json:"imported"`
	Skipped  int                     `json:"skipped"`
	Gaps     []models.DataGapWarning `json:"gaps,omitempty"`
}

// Report is the outcome of one import run.
type Report struct {
	StartedAt  time.Time   `json:"started_at"`
	FinishedAt time.Time   `json:"finished_at"`
	Tabs       []TabResult `json:"tabs"`
}

// Imported sums imported rows across tabs.
func (r Report) Imported() int {
	total := 0
	for _, tab := range r.Tabs {
		total += tab.Imported
	}
	return total
}

// Skipped sums skipped rows across tabs.
func (r Report) Skipped() int {
	total := 0
	for _, tab := range r.Tabs {
		total += tab.Skipped
	}
	return total
}

// Service runs sheet imports.
type Service struct {
	reader Reader
	store  Store
	loc    *time.Location
	logger *zap.Logger
	now    func() time.Time
}

// NewService wires an importer. Dates without a zone are read in loc.
func NewService(reader Reader, store Store, loc *time.Location, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Service{reader: reader, store: store, loc: loc, logger: logger, now: time.Now}
}

// Run imports every tab. Lots go first so later rows resolve against them. A
// tab that cannot be read aborts the run; bad rows never do.
func (s *Service) Run(ctx context.Context) (Report, error) {
	report := Report{StartedAt: s.now()}

	steps := []struct {
		tab    string
		handle func(context.Context, sheets.Row) error
	}{
		{TabLots, s.importLot},
		{TabSales, s.importSale},
		{TabExpenses, s.importExpense},
		{TabProduction, s.importProduction},
	}

	for _, step := range steps {
		rows, err := s.reader.ReadTable(ctx, step.tab)
		if err != nil {
			return report, fmt.Errorf("import %s: %w", step.tab, err)
		}

		result := TabResult{Tab: step.tab}
		for _, row := range rows {
			err := step.handle(ctx, row)
			switch {
			case err == nil:
				result.Imported++
			case models.IsValidation(err):
				result.Skipped++
				gap := models.DataGapWarning{
					Kind:      gapKind(err),
					Reference: fmt.Sprintf("%s!%d", step.tab, row.Number),
					Message:   err.Error(),
				}
				result.Gaps = append(result.Gaps, gap)
				s.logger.Warn("skipping sheet row", zap.String("reference", gap.Reference), zap.String("reason", gap.Message))
			default:
				return report, fmt.Errorf("import %s row %d: %w", step.tab, row.Number, err)
			}
		}
		report.Tabs = append(report.Tabs, result)
	}

	report.FinishedAt = s.now()
	s.logger.Info("sheet import finished",
		zap.Int("imported", report.Imported()),
		zap.Int("skipped", report.Skipped()),
		zap.Duration("duration", report.FinishedAt.Sub(report.StartedAt)))
	return report, nil
}

func (s *Service) importLot(ctx context.Context, row sheets.Row) error {
	lot, err := s.parseLot(row)
	if err != nil {
		return err
	}

	if _, err := s.store.GetLot(ctx, lot.ID); err == nil {
		s.logger.Debug("lot already known, keeping stored version", zap.String("lot_id", lot.ID))
		return nil
	} else if !models.IsNotFound(err) {
		return err
	}
	return s.store.SaveLot(ctx, lot)
}

func (s *Service) parseLot(row sheets.Row) (models.Lot, error) {
	var lot models.Lot
	var err error

	lot.ID = row.Get("id", "lot", "lot_id")
	lot.Name = row.Get("name", "nom")
	if lot.Name == "" {
		lot.Name = lot.ID
	}
	lot.Type = models.LotType(strings.ToLower(row.Get("type")))
	if lot.Type == "" {
		lot.Type = models.LotTypeLayer
	}
	lot.Breed = row.Get("breed", "race")
	lot.SiteID = row.Get("site", "site_id")
	lot.BuildingID = row.Get("building", "building_id", "batiment")
	lot.Status = models.LotStatus(strings.ToLower(row.Get("status", "statut")))
	if lot.Status == "" {
		lot.Status = models.LotStatusActive
	}

	if lot.PlacementDate, err = parseDate(row.Get("placement_date", "date"), s.loc); err != nil {
		return models.Lot{}, invalid("placement_date", err)
	}
	if lot.AgeAtPlacementDays, err = parseInt(row.Get("age_at_placement_days", "age")); err != nil {
		return models.Lot{}, invalid("age_at_placement_days", err)
	}
	if lot.InitialQuantity, err = parseInt(row.Get("initial_quantity", "quantity")); err != nil {
		return models.Lot{}, invalid("initial_quantity", err)
	}
	if lot.CurrentQuantity, err = parseInt(row.Get("current_quantity")); err != nil {
		return models.Lot{}, invalid("current_quantity", err)
	}
	if lot.CurrentQuantity == 0 {
		lot.CurrentQuantity = lot.InitialQuantity
	}
	if lot.UnitPrice, err = parseAmount(row.Get("unit_price", "price")); err != nil {
		return models.Lot{}, invalid("unit_price", err)
	}
	if lot.TransportCost, err = parseAmount(row.Get("transport_cost", "transport")); err != nil {
		return models.Lot{}, invalid("transport_cost", err)
	}
	if lot.OtherInitialCosts, err = parseAmount(row.Get("other_initial_costs", "other_costs")); err != nil {
		return models.Lot{}, invalid("other_initial_costs", err)
	}

	now := s.now()
	lot.Version = 1
	lot.CreatedAt = now
	lot.UpdatedAt = now
	return lot, lot.Validate()
}

func (s *Service) importSale(ctx context.Context, row sheets.Row) error {
	sale, err := s.parseSale(row)
	if err != nil {
		return err
	}
	if err := s.checkLot(ctx, sale.LotID); err != nil {
		return err
	}
	return s.store.SaveSale(ctx, sale)
}

func (s *Service) parseSale(row sheets.Row) (models.SaleRecord, error) {
	var sale models.SaleRecord
	var err error

	if sale.Date, err = parseDate(row.Get("date"), s.loc); err != nil {
		return models.SaleRecord{}, invalid("date", err)
	}
	sale.Type = models.SaleType(strings.ToLower(row.Get("type", "sale_type")))
	if sale.Quantity, err = parseInt(row.Get("quantity", "quantite")); err != nil {
		return models.SaleRecord{}, invalid("quantity", err)
	}
	if sale.UnitPrice, err = parseAmount(row.Get("unit_price", "price", "prix")); err != nil {
		return models.SaleRecord{}, invalid("unit_price", err)
	}
	if sale.TotalAmount, err = parseAmount(row.Get("total", "total_amount")); err != nil {
		return models.SaleRecord{}, invalid("total_amount", err)
	}
	if sale.AmountPaid, err = parseAmount(row.Get("paid", "amount_paid", "paye")); err != nil {
		return models.SaleRecord{}, invalid("amount_paid", err)
	}
	sale.PaymentStatus = models.PaymentStatus(strings.ToLower(row.Get("payment_status", "status")))
	sale.ClientID = row.Get("client", "client_id")
	sale.LotID = row.Get("lot", "lot_id")
	sale.SiteID = row.Get("site", "site_id")

	sale = sale.Normalize()
	if sale.PaymentStatus == "" {
		sale.PaymentStatus = inferPaymentStatus(sale)
	}
	sale.ID = rowID(TabSales, row)
	return sale, sale.Validate()
}

func (s *Service) importExpense(ctx context.Context, row sheets.Row) error {
	expense, err := s.parseExpense(row)
	if err != nil {
		return err
	}
	if err := s.checkLot(ctx, expense.LotID); err != nil {
		return err
	}
	return s.store.SaveExpense(ctx, expense)
}

func (s *Service) parseExpense(row sheets.Row) (models.ExpenseRecord, error) {
	var e models.ExpenseRecord
	var err error

	if e.Date, err = parseDate(row.Get("date"), s.loc); err != nil {
		return models.ExpenseRecord{}, invalid("date", err)
	}
	if e.Amount, err = parseAmount(row.Get("amount", "montant")); err != nil {
		return models.ExpenseRecord{}, invalid("amount", err)
	}
	e.Category = row.Get("category", "categorie")
	e.LotID = row.Get("lot", "lot_id")
	e.SiteID = row.Get("site", "site_id")
	e.SupplierID = row.Get("supplier", "supplier_id", "fournisseur")
	e.Description = row.Get("description", "label", "libelle")
	e.ID = rowID(TabExpenses, row)
	return e, e.Validate()
}

func (s *Service) importProduction(ctx context.Context, row sheets.Row) error {
	record, err := s.parseProduction(row)
	if err != nil {
		return err
	}
	if err := s.checkLot(ctx, record.LotID); err != nil {
		return err
	}
	return s.store.UpsertProduction(ctx, record)
}

func (s *Service) parseProduction(row sheets.Row) (models.ProductionRecord, error) {
	var r models.ProductionRecord
	var err error

	date, err := parseDate(row.Get("date"), s.loc)
	if err != nil {
		return models.ProductionRecord{}, invalid("date", err)
	}
	r.Date = models.TruncateDay(date)
	r.LotID = row.Get("lot", "lot_id")
	r.Kind = models.ProductionKind(strings.ToLower(row.Get("kind", "type")))
	if r.Kind == "" {
		r.Kind = models.ProductionEggs
	}

	ints := []struct {
		dst     *int
		headers []string
	}{
		{&r.NormalEggs, []string{"normal_eggs", "eggs", "oeufs"}},
		{&r.CrackedEggs, []string{"cracked_eggs", "cracked", "casses"}},
		{&r.DirtyEggs, []string{"dirty_eggs", "dirty"}},
		{&r.SmallEggs, []string{"small_eggs", "small", "petits"}},
		{&r.AgeDays, []string{"age_days", "age"}},
		{&r.Mortality, []string{"mortality", "mortalite"}},
	}
	for _, field := range ints {
		if *field.dst, err = parseInt(row.Get(field.headers...)); err != nil {
			return models.ProductionRecord{}, invalid(field.headers[0], err)
		}
	}

	floats := []struct {
		dst     *float64
		headers []string
	}{
		{&r.LayingRate, []string{"laying_rate", "taux_de_ponte"}},
		{&r.AverageWeightGrams, []string{"average_weight_grams", "weight", "poids"}},
		{&r.FeedKg, []string{"feed_kg", "feed", "aliment"}},
	}
	for _, field := range floats {
		if *field.dst, err = parseFloat(row.Get(field.headers...)); err != nil {
			return models.ProductionRecord{}, invalid(field.headers[0], err)
		}
	}

	r.Notes = row.Get("notes", "observations")
	r.ID = rowID(TabProduction, row)
	return r, r.Validate()
}

// checkLot keeps rows off lots the store does not know and off completed
// lots. Rows without a lot are operation-wide.
func (s *Service) checkLot(ctx context.Context, lotID string) error {
	if lotID == "" {
		return nil
	}
	lot, err := s.store.GetLot(ctx, lotID)
	if err != nil {
		if models.IsNotFound(err) {
			return models.NewValidationError(string(models.GapUnresolvedLot), fmt.Sprintf("lot %s does not exist", lotID))
		}
		return fmt.Errorf("load lot %s: %w", lotID, err)
	}
	if lot.IsClosed() {
		return models.NewValidationError("lot_status", fmt.Sprintf("lot %s is completed and accepts no new records", lotID))
	}
	return nil
}

func gapKind(err error) models.GapKind {
	var verr *models.ValidationError
	if errors.As(err, &verr) && verr.Rule == string(models.GapUnresolvedLot) {
		return models.GapUnresolvedLot
	}
	return models.GapUnparseableRecord
}

// inferPaymentStatus derives the status of sheet rows that only carry amounts.
func inferPaymentStatus(sale models.SaleRecord) models.PaymentStatus {
	switch {
	case sale.AmountPaid.IsZero():
		return models.PaymentPending
	case sale.AmountPaid.LessThan(sale.TotalAmount):
		return models.PaymentPartial
	default:
		return models.PaymentPaid
	}
}

// rowID returns the row's own id column, or a name-based UUID of its content.
func rowID(tab string, row sheets.Row) string {
	if id := row.Get("id"); id != "" {
		return id
	}

	keys := make([]string, 0, len(row.Values))
	for key := range row.Values {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(tab)
	for _, key := range keys {
		b.WriteString("|" + key + "=" + row.Values[key])
	}
	return uuid.NewSHA1(rowNamespace, []byte(b.String())).String()
}

func invalid(field string, err error) error {
	return models.NewValidationError(field, err.Error())
}
