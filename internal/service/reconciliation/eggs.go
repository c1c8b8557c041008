package reconciliation

import (
	"github.com/shopspring/decimal"

	"github.com/mamadbah2/farmledger/internal/domain/models"
)

// EggPricing configures egg revenue estimation.
type EggPricing struct {
	TrayPrice   decimal.Decimal
	EggsPerTray int
}

// EstimateEggRevenue infers the value of eggs produced but not sold on record:
// floor(totalEggs / eggsPerTray) trays at the configured tray price. As soon
// as the matched sales contain an egg sale the estimate is zero, since those
// eggs are already counted in revenue.
func EstimateEggRevenue(totalEggs int, sales []models.SaleRecord, pricing EggPricing) decimal.Decimal {
	for _, sale := range sales {
		if sale.Type.IsEggSale() {
			return decimal.Zero
		}
	}
	if pricing.EggsPerTray <= 0 || totalEggs <= 0 {
		return decimal.Zero
	}

	trays := int64(totalEggs / pricing.EggsPerTray)
	return pricing.TrayPrice.Mul(decimal.NewFromInt(trays))
}
