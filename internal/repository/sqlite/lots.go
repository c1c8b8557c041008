package sqlite

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mamadbah2/farmledger/internal/domain/models"
	"github.com/mamadbah2/farmledger/internal/service/splitting"
)

const lotColumns = `id, name, lot_type, breed, site_id, building_id, placement_date, age_at_placement_days,
	initial_quantity, current_quantity, unit_price, transport_cost, other_initial_costs, status,
	parent_lot_id, split_ratio, version, created_at, updated_at`

// SaveLot inserts or replaces a lot record.
func (s *Store) SaveLot(ctx context.Context, lot models.Lot) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO lots (`+lotColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name, lot_type = excluded.lot_type, breed = excluded.breed,
			site_id = excluded.site_id, building_id = excluded.building_id,
			placement_date = excluded.placement_date, age_at_placement_days = excluded.age_at_placement_days,
			initial_quantity = excluded.initial_quantity, current_quantity = excluded.current_quantity,
			unit_price = excluded.unit_price, transport_cost = excluded.transport_cost,
			other_initial_costs = excluded.other_initial_costs, status = excluded.status,
			parent_lot_id = excluded.parent_lot_id, split_ratio = excluded.split_ratio,
			version = lots.version + 1, updated_at = excluded.updated_at`,
		lotArgs(lot)...)
	if err != nil {
		return fmt.Errorf("save lot %s: %w", lot.ID, err)
	}
	return nil
}

// GetLot returns one lot or models.ErrNotFound.
func (s *Store) GetLot(ctx context.Context, id string) (models.Lot, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+lotColumns+` FROM lots WHERE id = ?`, id)
	lot, err := scanLot(row)
	if isNoRows(err) {
		return models.Lot{}, fmt.Errorf("lot %s: %w", id, models.ErrNotFound)
	}
	return lot, err
}

// ListLots returns lots matching the filter ordered by placement date.
func (s *Store) ListLots(ctx context.Context, filter models.LotFilter) ([]models.Lot, error) {
	var where []string
	var args []any
	if filter.SiteID != "" {
		where, args = append(where, "site_id = ?"), append(args, filter.SiteID)
	}
	if filter.BuildingID != "" {
		where, args = append(where, "building_id = ?"), append(args, filter.BuildingID)
	}
	if filter.Status != "" {
		where, args = append(where, "status = ?"), append(args, string(filter.Status))
	}
	if len(filter.IDs) > 0 {
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(filter.IDs)), ",")
		where = append(where, "id IN ("+placeholders+")")
		for _, id := range filter.IDs {
			args = append(args, id)
		}
	}

	rows, err := s.db.QueryContext(ctx, `SELECT `+lotColumns+` FROM lots`+whereClause(where)+` ORDER BY placement_date, id`, args...)
	if err != nil {
		return nil, fmt.Errorf("list lots: %w", err)
	}
	defer rows.Close()

	var lots []models.Lot
	for rows.Next() {
		lot, err := scanLot(rows)
		if err != nil {
			return nil, err
		}
		lots = append(lots, lot)
	}
	return lots, rows.Err()
}

// SaveBuilding inserts or replaces a building.
func (s *Store) SaveBuilding(ctx context.Context, b models.Building) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO buildings (id, site_id, name) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET site_id = excluded.site_id, name = excluded.name`,
		b.ID, b.SiteID, b.Name)
	if err != nil {
		return fmt.Errorf("save building %s: %w", b.ID, err)
	}
	return nil
}

// GetBuilding returns one building or models.ErrNotFound.
func (s *Store) GetBuilding(ctx context.Context, id string) (models.Building, error) {
	var b models.Building
	err := s.db.QueryRowContext(ctx, `SELECT id, site_id, name FROM buildings WHERE id = ?`, id).Scan(&b.ID, &b.SiteID, &b.Name)
	if isNoRows(err) {
		return models.Building{}, fmt.Errorf("building %s: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return models.Building{}, fmt.Errorf("get building %s: %w", id, err)
	}
	return b, nil
}

// ListSplits returns the splits in which the lot is parent or child, oldest first.
func (s *Store) ListSplits(ctx context.Context, lotID string) ([]models.SplitRelationship, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, parent_lot_id, child_lot_id, transferred_quantity, parent_quantity_before,
			ratio, expenses_distributed, adjustments_json, created_at
		FROM lot_splits WHERE parent_lot_id = ? OR child_lot_id = ?
		ORDER BY created_at, id`, lotID, lotID)
	if err != nil {
		return nil, fmt.Errorf("list splits for %s: %w", lotID, err)
	}
	defer rows.Close()

	var splits []models.SplitRelationship
	for rows.Next() {
		var (
			split              models.SplitRelationship
			ratio, adjJSON, at string
			distributed        int
		)
		if err := rows.Scan(&split.ID, &split.ParentLotID, &split.ChildLotID, &split.TransferredQuantity,
			&split.ParentQuantityBefore, &ratio, &distributed, &adjJSON, &at); err != nil {
			return nil, fmt.Errorf("scan split: %w", err)
		}
		if split.Ratio, err = decimal.NewFromString(ratio); err != nil {
			return nil, fmt.Errorf("split %s ratio: %w", split.ID, err)
		}
		if err := json.Unmarshal([]byte(adjJSON), &split.Adjustments); err != nil {
			return nil, fmt.Errorf("split %s adjustments: %w", split.ID, err)
		}
		if split.CreatedAt, err = parseTime(at); err != nil {
			return nil, fmt.Errorf("split %s created_at: %w", split.ID, err)
		}
		split.ExpensesDistributed = distributed == 1
		splits = append(splits, split)
	}
	return splits, rows.Err()
}

// RunInTx runs fn inside a database transaction, committing only when fn succeeds.
func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context, tx splitting.Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(ctx, &txStore{q: sqlTx}); err != nil {
		return err
	}
	return sqlTx.Commit()
}

// txStore is the split write side bound to one transaction.
type txStore struct {
	q queryer
}

func (t *txStore) UpdateLotQuantity(ctx context.Context, lotID string, expectedVersion int64, quantity int, at time.Time) error {
	res, err := t.q.ExecContext(ctx, `
		UPDATE lots SET current_quantity = ?, version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?`, quantity, formatTime(at), lotID, expectedVersion)
	if err != nil {
		return fmt.Errorf("update lot %s quantity: %w", lotID, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update lot %s quantity: %w", lotID, err)
	}
	if affected == 0 {
		var exists int
		if err := t.q.QueryRowContext(ctx, `SELECT COUNT(1) FROM lots WHERE id = ?`, lotID).Scan(&exists); err != nil {
			return fmt.Errorf("check lot %s: %w", lotID, err)
		}
		if exists == 0 {
			return fmt.Errorf("lot %s: %w", lotID, models.ErrNotFound)
		}
		return &models.ConflictError{LotID: lotID, ExpectedVersion: expectedVersion}
	}
	return nil
}

func (t *txStore) InsertLot(ctx context.Context, lot models.Lot) error {
	_, err := t.q.ExecContext(ctx, `INSERT INTO lots (`+lotColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, lotArgs(lot)...)
	return err
}

func (t *txStore) InsertSplit(ctx context.Context, split models.SplitRelationship) error {
	adjustments, err := json.Marshal(split.Adjustments)
	if err != nil {
		return fmt.Errorf("encode adjustments: %w", err)
	}
	distributed := 0
	if split.ExpensesDistributed {
		distributed = 1
	}
	_, err = t.q.ExecContext(ctx, `
		INSERT INTO lot_splits (id, parent_lot_id, child_lot_id, transferred_quantity, parent_quantity_before,
			ratio, expenses_distributed, adjustments_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		split.ID, split.ParentLotID, split.ChildLotID, split.TransferredQuantity, split.ParentQuantityBefore,
		split.Ratio.String(), distributed, string(adjustments), formatTime(split.CreatedAt))
	return err
}

func lotArgs(lot models.Lot) []any {
	version := lot.Version
	if version == 0 {
		version = 1
	}
	return []any{
		lot.ID, lot.Name, string(lot.Type), lot.Breed, lot.SiteID, lot.BuildingID,
		formatTime(lot.PlacementDate), lot.AgeAtPlacementDays, lot.InitialQuantity, lot.CurrentQuantity,
		lot.UnitPrice.String(), lot.TransportCost.String(), lot.OtherInitialCosts.String(), string(lot.Status),
		lot.ParentLotID, lot.SplitRatio.String(), version, formatTime(lot.CreatedAt), formatTime(lot.UpdatedAt),
	}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanLot(row scanner) (models.Lot, error) {
	var (
		lot                                models.Lot
		lotType, status                    string
		placement, created, updated        string
		unitPrice, transport, other, ratio string
	)
	err := row.Scan(&lot.ID, &lot.Name, &lotType, &lot.Breed, &lot.SiteID, &lot.BuildingID, &placement,
		&lot.AgeAtPlacementDays, &lot.InitialQuantity, &lot.CurrentQuantity, &unitPrice, &transport, &other,
		&status, &lot.ParentLotID, &ratio, &lot.Version, &created, &updated)
	if err != nil {
		if isNoRows(err) {
			return models.Lot{}, err
		}
		return models.Lot{}, fmt.Errorf("scan lot: %w", err)
	}

	lot.Type = models.LotType(lotType)
	lot.Status = models.LotStatus(status)
	if lot.PlacementDate, err = parseTime(placement); err != nil {
		return models.Lot{}, fmt.Errorf("lot %s placement_date: %w", lot.ID, err)
	}
	if lot.CreatedAt, err = parseTime(created); err != nil {
		return models.Lot{}, fmt.Errorf("lot %s created_at: %w", lot.ID, err)
	}
	if lot.UpdatedAt, err = parseTime(updated); err != nil {
		return models.Lot{}, fmt.Errorf("lot %s updated_at: %w", lot.ID, err)
	}
	for _, field := range []struct {
		raw string
		dst *decimal.Decimal
	}{{unitPrice, &lot.UnitPrice}, {transport, &lot.TransportCost}, {other, &lot.OtherInitialCosts}, {ratio, &lot.SplitRatio}} {
		if *field.dst, err = decimal.NewFromString(field.raw); err != nil {
			return models.Lot{}, fmt.Errorf("lot %s amount %q: %w", lot.ID, field.raw, err)
		}
	}
	return lot, nil
}

func whereClause(conditions []string) string {
	if len(conditions) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(conditions, " AND ")
}
