package sqlite

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mamadbah2/farmledger/internal/domain/models"
)

// SaveExpense inserts an expense or replaces the row with the same id.
func (s *Store) SaveExpense(ctx context.Context, e models.ExpenseRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO expenses (id, expense_date, category, lot_id, site_id, supplier_id, amount, description)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			expense_date = excluded.expense_date, category = excluded.category, lot_id = excluded.lot_id,
			site_id = excluded.site_id, supplier_id = excluded.supplier_id, amount = excluded.amount,
			description = excluded.description`,
		e.ID, formatTime(e.Date), e.Category, e.LotID, e.SiteID, e.SupplierID, e.Amount.String(), e.Description)
	if err != nil {
		return fmt.Errorf("save expense %s: %w", e.ID, err)
	}
	return nil
}

// ListExpenses returns expenses matching the filter ordered by date.
func (s *Store) ListExpenses(ctx context.Context, filter models.ExpenseFilter) ([]models.ExpenseRecord, error) {
	where, args := rangeConditions("expense_date", filter.From, filter.To)
	if filter.LotID != "" {
		where, args = append(where, "lot_id = ?"), append(args, filter.LotID)
	}
	if filter.SiteID != "" {
		where, args = append(where, "site_id = ?"), append(args, filter.SiteID)
	}
	if filter.Category != "" {
		where, args = append(where, "category = ?"), append(args, filter.Category)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, expense_date, category, lot_id, site_id, supplier_id, amount, description
		FROM expenses`+whereClause(where)+` ORDER BY expense_date, id`, args...)
	if err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}
	defer rows.Close()

	var expenses []models.ExpenseRecord
	for rows.Next() {
		var e models.ExpenseRecord
		var date, amount string
		if err := rows.Scan(&e.ID, &date, &e.Category, &e.LotID, &e.SiteID, &e.SupplierID, &amount, &e.Description); err != nil {
			return nil, fmt.Errorf("scan expense: %w", err)
		}
		if e.Date, err = parseTime(date); err != nil {
			return nil, fmt.Errorf("expense %s date: %w", e.ID, err)
		}
		if e.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("expense %s amount: %w", e.ID, err)
		}
		expenses = append(expenses, e)
	}
	return expenses, rows.Err()
}

// SaveSale inserts a sale or replaces the row with the same id.
func (s *Store) SaveSale(ctx context.Context, sale models.SaleRecord) error {
	lines, err := json.Marshal(sale.Lines)
	if err != nil {
		return fmt.Errorf("encode sale lines: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sales (id, sale_date, sale_type, quantity, unit_price, lines_json, total_amount,
			payment_status, amount_paid, client_id, lot_id, site_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			sale_date = excluded.sale_date, sale_type = excluded.sale_type, quantity = excluded.quantity,
			unit_price = excluded.unit_price, lines_json = excluded.lines_json, total_amount = excluded.total_amount,
			payment_status = excluded.payment_status, amount_paid = excluded.amount_paid,
			client_id = excluded.client_id, lot_id = excluded.lot_id, site_id = excluded.site_id`,
		sale.ID, formatTime(sale.Date), string(sale.Type), sale.Quantity, sale.UnitPrice.String(), string(lines),
		sale.TotalAmount.String(), string(sale.PaymentStatus), sale.AmountPaid.String(), sale.ClientID, sale.LotID, sale.SiteID)
	if err != nil {
		return fmt.Errorf("save sale %s: %w", sale.ID, err)
	}
	return nil
}

// ListSales returns sales matching the filter ordered by date.
func (s *Store) ListSales(ctx context.Context, filter models.SaleFilter) ([]models.SaleRecord, error) {
	where, args := rangeConditions("sale_date", filter.From, filter.To)
	if filter.LotID != "" {
		where, args = append(where, "lot_id = ?"), append(args, filter.LotID)
	}
	if filter.SiteID != "" {
		where, args = append(where, "site_id = ?"), append(args, filter.SiteID)
	}
	if filter.ClientID != "" {
		where, args = append(where, "client_id = ?"), append(args, filter.ClientID)
	}
	if filter.PaymentStatus != "" {
		where, args = append(where, "payment_status = ?"), append(args, string(filter.PaymentStatus))
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, sale_date, sale_type, quantity, unit_price, lines_json, total_amount,
			payment_status, amount_paid, client_id, lot_id, site_id
		FROM sales`+whereClause(where)+` ORDER BY sale_date, id`, args...)
	if err != nil {
		return nil, fmt.Errorf("list sales: %w", err)
	}
	defer rows.Close()

	var sales []models.SaleRecord
	for rows.Next() {
		var (
			sale                          models.SaleRecord
			date, saleType, status, lines string
			unitPrice, total, paid        string
		)
		if err := rows.Scan(&sale.ID, &date, &saleType, &sale.Quantity, &unitPrice, &lines, &total,
			&status, &paid, &sale.ClientID, &sale.LotID, &sale.SiteID); err != nil {
			return nil, fmt.Errorf("scan sale: %w", err)
		}
		sale.Type = models.SaleType(saleType)
		sale.PaymentStatus = models.PaymentStatus(status)
		if sale.Date, err = parseTime(date); err != nil {
			return nil, fmt.Errorf("sale %s date: %w", sale.ID, err)
		}
		if err := json.Unmarshal([]byte(lines), &sale.Lines); err != nil {
			return nil, fmt.Errorf("sale %s lines: %w", sale.ID, err)
		}
		for _, field := range []struct {
			raw string
			dst *decimal.Decimal
		}{{unitPrice, &sale.UnitPrice}, {total, &sale.TotalAmount}, {paid, &sale.AmountPaid}} {
			if *field.dst, err = decimal.NewFromString(field.raw); err != nil {
				return nil, fmt.Errorf("sale %s amount %q: %w", sale.ID, field.raw, err)
			}
		}
		sales = append(sales, sale)
	}
	return sales, rows.Err()
}

// UpsertProduction writes a production record, replacing any record with the
// same lot, day and kind. The stored record keeps the id of the first write.
func (s *Store) UpsertProduction(ctx context.Context, r models.ProductionRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO production (id, lot_id, record_date, kind, normal_eggs, cracked_eggs, dirty_eggs, small_eggs,
			laying_rate, average_weight_grams, age_days, feed_kg, mortality, notes)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(lot_id, record_date, kind) DO UPDATE SET
			normal_eggs = excluded.normal_eggs, cracked_eggs = excluded.cracked_eggs,
			dirty_eggs = excluded.dirty_eggs, small_eggs = excluded.small_eggs,
			laying_rate = excluded.laying_rate, average_weight_grams = excluded.average_weight_grams,
			age_days = excluded.age_days, feed_kg = excluded.feed_kg, mortality = excluded.mortality,
			notes = excluded.notes`,
		r.ID, r.LotID, formatTime(models.TruncateDay(r.Date)), string(r.Kind), r.NormalEggs, r.CrackedEggs, r.DirtyEggs,
		r.SmallEggs, r.LayingRate, r.AverageWeightGrams, r.AgeDays, r.FeedKg, r.Mortality, r.Notes)
	if err != nil {
		return fmt.Errorf("upsert production %s: %w", r.Key(), err)
	}
	return nil
}

// ListProduction returns production records matching the filter ordered by date.
func (s *Store) ListProduction(ctx context.Context, filter models.ProductionFilter) ([]models.ProductionRecord, error) {
	where, args := rangeConditions("record_date", filter.From, filter.To)
	if filter.LotID != "" {
		where, args = append(where, "lot_id = ?"), append(args, filter.LotID)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, lot_id, record_date, kind, normal_eggs, cracked_eggs, dirty_eggs, small_eggs,
			laying_rate, average_weight_grams, age_days, feed_kg, mortality, notes
		FROM production`+whereClause(where)+` ORDER BY record_date, lot_id, kind`, args...)
	if err != nil {
		return nil, fmt.Errorf("list production: %w", err)
	}
	defer rows.Close()

	var records []models.ProductionRecord
	for rows.Next() {
		var r models.ProductionRecord
		var date, kind string
		if err := rows.Scan(&r.ID, &r.LotID, &date, &kind, &r.NormalEggs, &r.CrackedEggs, &r.DirtyEggs, &r.SmallEggs,
			&r.LayingRate, &r.AverageWeightGrams, &r.AgeDays, &r.FeedKg, &r.Mortality, &r.Notes); err != nil {
			return nil, fmt.Errorf("scan production: %w", err)
		}
		r.Kind = models.ProductionKind(kind)
		if r.Date, err = parseTime(date); err != nil {
			return nil, fmt.Errorf("production %s date: %w", r.ID, err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// SaveAuthoritativeSummary stores the externally computed summary of a lot.
func (s *Store) SaveAuthoritativeSummary(ctx context.Context, summary models.AuthoritativeSummary) error {
	breakdown, err := json.Marshal(summary.ExpensesBreakdown)
	if err != nil {
		return fmt.Errorf("encode breakdown: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO authoritative_summaries (lot_id, total_expenses, total_revenue, net_profit, gross_profit,
			profit_margin_percent, breakdown_json, computed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(lot_id) DO UPDATE SET
			total_expenses = excluded.total_expenses, total_revenue = excluded.total_revenue,
			net_profit = excluded.net_profit, gross_profit = excluded.gross_profit,
			profit_margin_percent = excluded.profit_margin_percent, breakdown_json = excluded.breakdown_json,
			computed_at = excluded.computed_at`,
		summary.LotID, summary.TotalExpenses.String(), summary.TotalRevenue.String(), summary.NetProfit.String(),
		summary.GrossProfit.String(), summary.ProfitMarginPercent.String(), string(breakdown), formatTime(summary.ComputedAt))
	if err != nil {
		return fmt.Errorf("save authoritative summary %s: %w", summary.LotID, err)
	}
	return nil
}

// GetAuthoritativeSummary returns the lot's authoritative summary, or nil when none exists.
func (s *Store) GetAuthoritativeSummary(ctx context.Context, lotID string) (*models.AuthoritativeSummary, error) {
	var (
		summary                               models.AuthoritativeSummary
		expenses, revenue, net, gross, margin string
		breakdown, computed                   string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT lot_id, total_expenses, total_revenue, net_profit, gross_profit, profit_margin_percent,
			breakdown_json, computed_at
		FROM authoritative_summaries WHERE lot_id = ?`, lotID).
		Scan(&summary.LotID, &expenses, &revenue, &net, &gross, &margin, &breakdown, &computed)
	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get authoritative summary %s: %w", lotID, err)
	}

	for _, field := range []struct {
		raw string
		dst *decimal.Decimal
	}{{expenses, &summary.TotalExpenses}, {revenue, &summary.TotalRevenue}, {net, &summary.NetProfit},
		{gross, &summary.GrossProfit}, {margin, &summary.ProfitMarginPercent}} {
		if *field.dst, err = decimal.NewFromString(field.raw); err != nil {
			return nil, fmt.Errorf("authoritative summary %s amount %q: %w", lotID, field.raw, err)
		}
	}
	if err := json.Unmarshal([]byte(breakdown), &summary.ExpensesBreakdown); err != nil {
		return nil, fmt.Errorf("authoritative summary %s breakdown: %w", lotID, err)
	}
	if summary.ComputedAt, err = parseTime(computed); err != nil {
		return nil, fmt.Errorf("authoritative summary %s computed_at: %w", lotID, err)
	}
	return &summary, nil
}

// SaveSnapshot stores a periodic report.
func (s *Store) SaveSnapshot(ctx context.Context, snapshot models.SummarySnapshot) error {
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO summary_snapshots (id, payload_json, created_at) VALUES (?, ?, ?)`,
		snapshot.ID, string(payload), formatTime(snapshot.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert snapshot %s: %w", snapshot.ID, err)
	}
	return nil
}

// ListSnapshots returns the most recent snapshots first.
func (s *Store) ListSnapshots(ctx context.Context, limit int) ([]models.SummarySnapshot, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx, `SELECT payload_json FROM summary_snapshots ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	defer rows.Close()

	var snapshots []models.SummarySnapshot
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		var snapshot models.SummarySnapshot
		if err := json.Unmarshal([]byte(payload), &snapshot); err != nil {
			return nil, fmt.Errorf("decode snapshot: %w", err)
		}
		snapshots = append(snapshots, snapshot)
	}
	return snapshots, rows.Err()
}

func rangeConditions(column string, from, to time.Time) ([]string, []any) {
	var where []string
	var args []any
	if !from.IsZero() {
		where, args = append(where, column+" >= ?"), append(args, formatTime(from))
	}
	if !to.IsZero() {
		where, args = append(where, column+" <= ?"), append(args, formatTime(to))
	}
	return where, args
}
