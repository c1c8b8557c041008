package mongodb

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/mamadbah2/farmledger/internal/domain/models"
)

var byDate = options.Find().SetSort(bson.D{{Key: "date", Value: 1}, {Key: "_id", Value: 1}})

// SaveExpense inserts an expense or replaces the document with the same id.
func (r *MongoDBRepository) SaveExpense(ctx context.Context, e models.ExpenseRecord) error {
	if _, err := r.collection(expensesCollection).ReplaceOne(ctx, bson.M{"_id": e.ID}, e, options.Replace().SetUpsert(true)); err != nil {
		return fmt.Errorf("failed to save expense %s: %w", e.ID, err)
	}
	return nil
}

// ListExpenses returns expenses matching the filter ordered by date.
func (r *MongoDBRepository) ListExpenses(ctx context.Context, filter models.ExpenseFilter) ([]models.ExpenseRecord, error) {
	query := rangeFilter(bson.D{}, "date", filter.From, filter.To)
	query = eqFilter(query, "lot_id", filter.LotID)
	query = eqFilter(query, "site_id", filter.SiteID)
	query = eqFilter(query, "category", filter.Category)

	cursor, err := r.collection(expensesCollection).Find(ctx, query, byDate)
	if err != nil {
		return nil, fmt.Errorf("failed to list expenses: %w", err)
	}
	var expenses []models.ExpenseRecord
	if err := cursor.All(ctx, &expenses); err != nil {
		return nil, fmt.Errorf("failed to decode expenses: %w", err)
	}
	return expenses, nil
}

// SaveSale inserts a sale or replaces the document with the same id.
func (r *MongoDBRepository) SaveSale(ctx context.Context, sale models.SaleRecord) error {
	if _, err := r.collection(salesCollection).ReplaceOne(ctx, bson.M{"_id": sale.ID}, sale, options.Replace().SetUpsert(true)); err != nil {
		return fmt.Errorf("failed to save sale %s: %w", sale.ID, err)
	}
	return nil
}

// ListSales returns sales matching the filter ordered by date.
func (r *MongoDBRepository) ListSales(ctx context.Context, filter models.SaleFilter) ([]models.SaleRecord, error) {
	query := rangeFilter(bson.D{}, "date", filter.From, filter.To)
	query = eqFilter(query, "lot_id", filter.LotID)
	query = eqFilter(query, "site_id", filter.SiteID)
	query = eqFilter(query, "client_id", filter.ClientID)
	query = eqFilter(query, "payment_status", string(filter.PaymentStatus))

	cursor, err := r.collection(salesCollection).Find(ctx, query, byDate)
	if err != nil {
		return nil, fmt.Errorf("failed to list sales: %w", err)
	}
	var sales []models.SaleRecord
	if err := cursor.All(ctx, &sales); err != nil {
		return nil, fmt.Errorf("failed to decode sales: %w", err)
	}
	return sales, nil
}

// UpsertProduction writes a production record, replacing the record with the
// same lot, day and kind while keeping the id of the first write.
func (r *MongoDBRepository) UpsertProduction(ctx context.Context, rec models.ProductionRecord) error {
	day := models.TruncateDay(rec.Date)
	update := bson.M{
		"$set": bson.M{
			"normal_eggs":          rec.NormalEggs,
			"cracked_eggs":         rec.CrackedEggs,
			"dirty_eggs":           rec.DirtyEggs,
			"small_eggs":           rec.SmallEggs,
			"laying_rate":          rec.LayingRate,
			"average_weight_grams": rec.AverageWeightGrams,
			"age_days":             rec.AgeDays,
			"feed_kg":              rec.FeedKg,
			"mortality":            rec.Mortality,
			"notes":                rec.Notes,
		},
		"$setOnInsert": bson.M{"_id": rec.ID},
	}
	filter := bson.M{"lot_id": rec.LotID, "date": day, "kind": rec.Kind}
	if _, err := r.collection(productionCollection).UpdateOne(ctx, filter, update, options.Update().SetUpsert(true)); err != nil {
		return fmt.Errorf("failed to upsert production %s: %w", rec.Key(), err)
	}
	return nil
}

// ListProduction returns production records matching the filter ordered by date.
func (r *MongoDBRepository) ListProduction(ctx context.Context, filter models.ProductionFilter) ([]models.ProductionRecord, error) {
	query := rangeFilter(bson.D{}, "date", filter.From, filter.To)
	query = eqFilter(query, "lot_id", filter.LotID)

	opts := options.Find().SetSort(bson.D{{Key: "date", Value: 1}, {Key: "lot_id", Value: 1}, {Key: "kind", Value: 1}})
	cursor, err := r.collection(productionCollection).Find(ctx, query, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list production: %w", err)
	}
	var records []models.ProductionRecord
	if err := cursor.All(ctx, &records); err != nil {
		return nil, fmt.Errorf("failed to decode production: %w", err)
	}
	return records, nil
}

// SaveAuthoritativeSummary stores the externally computed summary of a lot.
func (r *MongoDBRepository) SaveAuthoritativeSummary(ctx context.Context, summary models.AuthoritativeSummary) error {
	_, err := r.collection(authoritativeCollection).ReplaceOne(ctx,
		bson.M{"lot_id": summary.LotID}, summary, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to save authoritative summary %s: %w", summary.LotID, err)
	}
	return nil
}

// GetAuthoritativeSummary returns the lot's authoritative summary, or nil when none exists.
func (r *MongoDBRepository) GetAuthoritativeSummary(ctx context.Context, lotID string) (*models.AuthoritativeSummary, error) {
	var summary models.AuthoritativeSummary
	err := r.collection(authoritativeCollection).FindOne(ctx, bson.M{"lot_id": lotID}).Decode(&summary)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get authoritative summary %s: %w", lotID, err)
	}
	return &summary, nil
}

// SaveSnapshot saves a periodic report to the database.
func (r *MongoDBRepository) SaveSnapshot(ctx context.Context, snapshot models.SummarySnapshot) error {
	if _, err := r.collection(snapshotsCollection).InsertOne(ctx, snapshot); err != nil {
		return fmt.Errorf("failed to insert summary snapshot: %w", err)
	}
	return nil
}

// ListSnapshots returns the most recent snapshots first.
func (r *MongoDBRepository) ListSnapshots(ctx context.Context, limit int) ([]models.SummarySnapshot, error) {
	if limit <= 0 {
		limit = 10
	}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}).SetLimit(int64(limit))
	cursor, err := r.collection(snapshotsCollection).Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list summary snapshots: %w", err)
	}
	var snapshots []models.SummarySnapshot
	if err := cursor.All(ctx, &snapshots); err != nil {
		return nil, fmt.Errorf("failed to decode summary snapshots: %w", err)
	}
	return snapshots, nil
}
