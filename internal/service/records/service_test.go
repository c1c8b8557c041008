package records

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mamadbah2/farmledger/internal/domain/models"
)

type memoryStore struct {
	lots       map[string]models.Lot
	buildings  []models.Building
	sales      []models.SaleRecord
	expenses   []models.ExpenseRecord
	production []models.ProductionRecord
	summaries  []models.AuthoritativeSummary
	lotErr     error
}

func newMemoryStore(lots ...models.Lot) *memoryStore {
	s := &memoryStore{lots: map[string]models.Lot{}}
	for _, lot := range lots {
		s.lots[lot.ID] = lot
	}
	return s
}

func (m *memoryStore) GetLot(_ context.Context, id string) (models.Lot, error) {
	if m.lotErr != nil {
		return models.Lot{}, m.lotErr
	}
	lot, ok := m.lots[id]
	if !ok {
		return models.Lot{}, models.ErrNotFound
	}
	return lot, nil
}

func (m *memoryStore) SaveLot(_ context.Context, lot models.Lot) error {
	m.lots[lot.ID] = lot
	return nil
}

func (m *memoryStore) SaveBuilding(_ context.Context, b models.Building) error {
	m.buildings = append(m.buildings, b)
	return nil
}

func (m *memoryStore) SaveSale(_ context.Context, sale models.SaleRecord) error {
	m.sales = append(m.sales, sale)
	return nil
}

func (m *memoryStore) SaveExpense(_ context.Context, e models.ExpenseRecord) error {
	m.expenses = append(m.expenses, e)
	return nil
}

func (m *memoryStore) UpsertProduction(_ context.Context, r models.ProductionRecord) error {
	m.production = append(m.production, r)
	return nil
}

func (m *memoryStore) SaveAuthoritativeSummary(_ context.Context, summary models.AuthoritativeSummary) error {
	m.summaries = append(m.summaries, summary)
	return nil
}

var fixedNow = time.Date(2025, time.June, 15, 9, 0, 0, 0, time.UTC)

func newTestService(store Store) *Service {
	svc := NewService(store, nil)
	svc.now = func() time.Time { return fixedNow }
	counter := 0
	svc.newID = func() string {
		counter++
		return "id-" + string(rune('0'+counter))
	}
	return svc
}

func openLot() models.Lot {
	return models.Lot{ID: "lot-1", Type: models.LotTypeLayer, InitialQuantity: 1000, CurrentQuantity: 950, Status: models.LotStatusActive}
}

func ruleOf(t *testing.T, err error) string {
	t.Helper()
	var verr *models.ValidationError
	require.True(t, errors.As(err, &verr), "expected validation error, got %v", err)
	return verr.Rule
}

func TestRegisterLot_AppliesDefaults(t *testing.T) {
	store := newMemoryStore()
	svc := newTestService(store)

	lot, err := svc.RegisterLot(context.Background(), models.Lot{
		ID:              "  lot-9 ",
		Type:            models.LotTypeBroiler,
		InitialQuantity: 500,
		CurrentQuantity: 500,
		UnitPrice:       decimal.NewFromInt(350),
	})
	require.NoError(t, err)

	assert.Equal(t, "lot-9", lot.ID)
	assert.Equal(t, models.LotStatusActive, lot.Status)
	assert.Equal(t, 500, lot.CurrentQuantity)
	assert.Equal(t, fixedNow, lot.CreatedAt)
	assert.Equal(t, fixedNow, lot.UpdatedAt)
	assert.Contains(t, store.lots, "lot-9")
}

func TestRegisterLot_GeneratesIDAndRejectsInvalid(t *testing.T) {
	store := newMemoryStore()
	svc := newTestService(store)

	lot, err := svc.RegisterLot(context.Background(), models.Lot{Type: models.LotTypeLayer, InitialQuantity: 10})
	require.NoError(t, err)
	assert.Equal(t, "id-1", lot.ID)

	_, err = svc.RegisterLot(context.Background(), models.Lot{ID: "bad", Type: models.LotTypeLayer, InitialQuantity: 10, CurrentQuantity: 20})
	require.Error(t, err)
	assert.True(t, models.IsValidation(err))
	assert.NotContains(t, store.lots, "bad")
}

func TestRegisterLot_KeepsDepletedQuantity(t *testing.T) {
	store := newMemoryStore()
	svc := newTestService(store)

	lot, err := svc.RegisterLot(context.Background(), models.Lot{
		ID:              "lot-old",
		Type:            models.LotTypeBroiler,
		InitialQuantity: 800,
		CurrentQuantity: 0,
		Status:          models.LotStatusCompleted,
	})
	require.NoError(t, err)
	assert.Equal(t, 0, lot.CurrentQuantity)
	assert.Equal(t, 0, store.lots["lot-old"].CurrentQuantity)
}

func TestRegisterLot_RejectsExistingID(t *testing.T) {
	child := models.Lot{
		ID:              "lot-2",
		Type:            models.LotTypeLayer,
		InitialQuantity: 400,
		CurrentQuantity: 400,
		Status:          models.LotStatusActive,
		ParentLotID:     "lot-1",
		SplitRatio:      decimal.RequireFromString("0.4"),
		Version:         1,
	}
	closed := openLot()
	closed.ID = "lot-3"
	closed.Status = models.LotStatusCompleted
	store := newMemoryStore(openLot(), child, closed)
	svc := newTestService(store)
	ctx := context.Background()

	cases := map[string]models.Lot{
		"parent":    {ID: "lot-1", Type: models.LotTypeLayer, InitialQuantity: 1000, CurrentQuantity: 1000},
		"child":     {ID: " lot-2 ", Name: "renamed", Type: models.LotTypeLayer, InitialQuantity: 400, CurrentQuantity: 400},
		"completed": {ID: "lot-3", Type: models.LotTypeLayer, InitialQuantity: 1000, CurrentQuantity: 950, Status: models.LotStatusActive},
	}
	for name, lot := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := svc.RegisterLot(ctx, lot)
			assert.Equal(t, "lot_id", ruleOf(t, err))
		})
	}

	assert.Equal(t, 950, store.lots["lot-1"].CurrentQuantity)
	assert.Equal(t, "lot-1", store.lots["lot-2"].ParentLotID)
	assert.True(t, store.lots["lot-2"].SplitRatio.Equal(decimal.RequireFromString("0.4")))
	assert.Empty(t, store.lots["lot-2"].Name)
	assert.Equal(t, models.LotStatusCompleted, store.lots["lot-3"].Status)
}

func TestRegisterLot_LookupFailureIsWrapped(t *testing.T) {
	store := newMemoryStore()
	store.lotErr = errors.New("connection reset")
	svc := newTestService(store)

	_, err := svc.RegisterLot(context.Background(), models.Lot{ID: "lot-9", Type: models.LotTypeLayer, InitialQuantity: 10, CurrentQuantity: 10})
	require.Error(t, err)
	assert.False(t, models.IsValidation(err))
	assert.Contains(t, err.Error(), "connection reset")
	assert.Empty(t, store.lots)
}

func TestSaveBuilding_RequiresID(t *testing.T) {
	store := newMemoryStore()
	svc := newTestService(store)

	err := svc.SaveBuilding(context.Background(), models.Building{Name: "House 3"})
	assert.Equal(t, "building", ruleOf(t, err))

	require.NoError(t, svc.SaveBuilding(context.Background(), models.Building{ID: "house-3", Name: "House 3"}))
	assert.Len(t, store.buildings, 1)
}

func TestCreateSale_ChecksLot(t *testing.T) {
	closed := models.Lot{ID: "lot-old", Type: models.LotTypeBroiler, InitialQuantity: 10, CurrentQuantity: 10, Status: models.LotStatusCompleted}
	store := newMemoryStore(openLot(), closed)
	svc := newTestService(store)
	ctx := context.Background()

	sale := models.SaleRecord{
		Date:          fixedNow,
		Type:          models.SaleEggsTray,
		Quantity:      10,
		UnitPrice:     decimal.NewFromInt(2500),
		PaymentStatus: models.PaymentPending,
	}

	cases := map[string]struct {
		lotID string
		rule  string
	}{
		"unknown lot":   {"ghost", "lot_id"},
		"completed lot": {"lot-old", "lot_status"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			s := sale
			s.LotID = tc.lotID
			_, err := svc.CreateSale(ctx, s)
			assert.Equal(t, tc.rule, ruleOf(t, err))
		})
	}
	assert.Empty(t, store.sales)

	sale.LotID = "lot-1"
	saved, err := svc.CreateSale(ctx, sale)
	require.NoError(t, err)
	assert.NotEmpty(t, saved.ID)
	assert.True(t, saved.TotalAmount.Equal(decimal.NewFromInt(25000)))
	require.Len(t, store.sales, 1)
}

func TestCreateSale_RejectsBrokenPaymentBeforeTouchingStore(t *testing.T) {
	store := newMemoryStore(openLot())
	store.lotErr = errors.New("should not be called")
	svc := newTestService(store)

	_, err := svc.CreateSale(context.Background(), models.SaleRecord{
		Date:          fixedNow,
		Type:          models.SaleEggsTray,
		TotalAmount:   decimal.NewFromInt(10000),
		AmountPaid:    decimal.NewFromInt(10000),
		PaymentStatus: models.PaymentPartial,
		LotID:         "lot-1",
	})
	assert.Equal(t, "payment_status", ruleOf(t, err))
}

func TestCreateExpense_OperationWideSkipsLotCheck(t *testing.T) {
	store := newMemoryStore()
	svc := newTestService(store)

	e, err := svc.CreateExpense(context.Background(), models.ExpenseRecord{
		Date:     fixedNow,
		Category: "électricité",
		Amount:   decimal.NewFromInt(45000),
	})
	require.NoError(t, err)
	assert.Equal(t, "électricité", e.Category)
	require.Len(t, store.expenses, 1)
}

func TestCreateExpense_StoreFailureIsWrapped(t *testing.T) {
	store := newMemoryStore(openLot())
	store.lotErr = errors.New("connection reset")
	svc := newTestService(store)

	_, err := svc.CreateExpense(context.Background(), models.ExpenseRecord{
		Date: fixedNow, Category: "feed", Amount: decimal.NewFromInt(1), LotID: "lot-1",
	})
	require.Error(t, err)
	assert.False(t, models.IsValidation(err))
	assert.Contains(t, err.Error(), "connection reset")
}

func TestRecordProduction_DefaultsKindAndTruncatesDate(t *testing.T) {
	store := newMemoryStore(openLot())
	svc := newTestService(store)

	r, err := svc.RecordProduction(context.Background(), models.ProductionRecord{
		LotID:      "lot-1",
		Date:       time.Date(2025, time.June, 14, 17, 45, 0, 0, time.UTC),
		NormalEggs: 800,
	})
	require.NoError(t, err)

	assert.Equal(t, models.ProductionEggs, r.Kind)
	assert.Equal(t, time.Date(2025, time.June, 14, 0, 0, 0, 0, time.UTC), r.Date)
	require.Len(t, store.production, 1)
}

func TestSaveAuthoritativeSummary(t *testing.T) {
	store := newMemoryStore()
	svc := newTestService(store)
	ctx := context.Background()

	err := svc.SaveAuthoritativeSummary(ctx, models.AuthoritativeSummary{})
	assert.Equal(t, "lot_id", ruleOf(t, err))

	err = svc.SaveAuthoritativeSummary(ctx, models.AuthoritativeSummary{LotID: "lot-1", TotalRevenue: decimal.NewFromInt(5)})
	assert.Equal(t, "lot_id", ruleOf(t, err))
	assert.Empty(t, store.summaries)

	closed := openLot()
	closed.ID = "lot-done"
	closed.Status = models.LotStatusCompleted
	store.lots[closed.ID] = closed
	err = svc.SaveAuthoritativeSummary(ctx, models.AuthoritativeSummary{LotID: "lot-done"})
	assert.Equal(t, "lot_status", ruleOf(t, err))
	assert.Empty(t, store.summaries)

	store.lots["lot-1"] = openLot()
	require.NoError(t, svc.SaveAuthoritativeSummary(ctx, models.AuthoritativeSummary{LotID: "lot-1", TotalRevenue: decimal.NewFromInt(5)}))
	require.Len(t, store.summaries, 1)
	assert.Equal(t, fixedNow, store.summaries[0].ComputedAt)
}
