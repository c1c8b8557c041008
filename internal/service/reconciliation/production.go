package reconciliation

import (
	"math"
	"sort"

	"github.com/mamadbah2/farmledger/internal/domain/models"
)

// DefaultEggsPerTray is the size of a standard alveole.
const DefaultEggsPerTray = 30

// AggregateProduction reduces production records into totals. birdCounts maps
// lot ids to their current bird count and is used for per-bird figures and for
// records that carry no laying rate. Empty input yields zero totals.
//
// The average laying rate is the plain mean of the per-record rates, not a
// bird-day weighted rate.
func AggregateProduction(records []models.ProductionRecord, birdCounts map[string]int, eggsPerTray int) models.ProductionTotals {
	var totals models.ProductionTotals
	for _, count := range birdCounts {
		totals.BirdCount += count
	}

	var (
		rateSum     float64
		rateSamples int
		weights     []models.ProductionRecord
		missingLots = make(map[string]bool)
	)

	for _, record := range records {
		totals.Records++
		totals.TotalFeedKg += record.FeedKg
		totals.TotalMortality += record.Mortality

		switch record.Kind {
		case models.ProductionEggs:
			eggs := record.TotalEggs()
			totals.TotalEggs += eggs

			rate := record.LayingRate
			if rate == 0 && eggs > 0 {
				birds := birdCounts[record.LotID]
				if birds > 0 {
					rate = 100 * float64(eggs) / float64(birds)
				} else if !missingLots[record.LotID] {
					missingLots[record.LotID] = true
					totals.Warnings = append(totals.Warnings, models.DataGapWarning{
						Kind:      models.GapMissingBirdCount,
						Reference: record.LotID,
						Message:   "no bird count to derive laying rate; using 0",
					})
				}
			}
			rateSum += rate
			rateSamples++
		case models.ProductionWeight:
			if record.AverageWeightGrams > 0 {
				weights = append(weights, record)
			}
		}
	}

	totals.AverageLayingRate = round2(safeDiv(rateSum, float64(rateSamples)))
	totals.FeedPerBirdKg = round3(safeDiv(totals.TotalFeedKg, float64(totals.BirdCount)))
	totals.MortalityRatePercent = round2(100 * safeDiv(float64(totals.TotalMortality), float64(totals.BirdCount+totals.TotalMortality)))
	if eggsPerTray > 0 {
		totals.Trays = totals.TotalEggs / eggsPerTray
	}

	if len(weights) > 0 {
		sort.SliceStable(weights, func(i, j int) bool { return weights[i].Date.Before(weights[j].Date) })
		var sum float64
		for _, w := range weights {
			sum += w.AverageWeightGrams
		}
		totals.AverageWeightGrams = round2(sum / float64(len(weights)))
		totals.WeightGainGrams = round2(weights[len(weights)-1].AverageWeightGrams - weights[0].AverageWeightGrams)
	}

	return totals
}

func safeDiv(numerator, denominator float64) float64 {
	if denominator == 0 {
		return 0
	}
	return numerator / denominator
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }

func round3(v float64) float64 { return math.Round(v*1000) / 1000 }
