package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/mamadbah2/farmledger/internal/domain/models"
	"github.com/mamadbah2/farmledger/internal/service/splitting"
)

// SaveLot inserts or replaces a lot, bumping its version.
func (r *MongoDBRepository) SaveLot(ctx context.Context, lot models.Lot) error {
	update := bson.M{
		"$set": bson.M{
			"name":                  lot.Name,
			"type":                  lot.Type,
			"breed":                 lot.Breed,
			"site_id":               lot.SiteID,
			"building_id":           lot.BuildingID,
			"placement_date":        lot.PlacementDate,
			"age_at_placement_days": lot.AgeAtPlacementDays,
			"initial_quantity":      lot.InitialQuantity,
			"current_quantity":      lot.CurrentQuantity,
			"unit_price":            lot.UnitPrice,
			"transport_cost":        lot.TransportCost,
			"other_initial_costs":   lot.OtherInitialCosts,
			"status":                lot.Status,
			"parent_lot_id":         lot.ParentLotID,
			"split_ratio":           lot.SplitRatio,
			"updated_at":            lot.UpdatedAt,
		},
		"$inc":         bson.M{"version": 1},
		"$setOnInsert": bson.M{"created_at": lot.CreatedAt},
	}
	_, err := r.collection(lotsCollection).UpdateByID(ctx, lot.ID, update, options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to save lot %s: %w", lot.ID, err)
	}
	return nil
}

// GetLot returns one lot or models.ErrNotFound.
func (r *MongoDBRepository) GetLot(ctx context.Context, id string) (models.Lot, error) {
	var lot models.Lot
	err := r.collection(lotsCollection).FindOne(ctx, bson.M{"_id": id}).Decode(&lot)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.Lot{}, fmt.Errorf("lot %s: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return models.Lot{}, fmt.Errorf("failed to get lot %s: %w", id, err)
	}
	return lot, nil
}

// ListLots returns lots matching the filter ordered by placement date.
func (r *MongoDBRepository) ListLots(ctx context.Context, filter models.LotFilter) ([]models.Lot, error) {
	query := bson.D{}
	query = eqFilter(query, "site_id", filter.SiteID)
	query = eqFilter(query, "building_id", filter.BuildingID)
	query = eqFilter(query, "status", string(filter.Status))
	if len(filter.IDs) > 0 {
		query = append(query, bson.E{Key: "_id", Value: bson.M{"$in": filter.IDs}})
	}

	opts := options.Find().SetSort(bson.D{{Key: "placement_date", Value: 1}, {Key: "_id", Value: 1}})
	cursor, err := r.collection(lotsCollection).Find(ctx, query, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list lots: %w", err)
	}

	var lots []models.Lot
	if err := cursor.All(ctx, &lots); err != nil {
		return nil, fmt.Errorf("failed to decode lots: %w", err)
	}
	return lots, nil
}

// SaveBuilding inserts or replaces a building.
func (r *MongoDBRepository) SaveBuilding(ctx context.Context, b models.Building) error {
	_, err := r.collection(buildingsCollection).ReplaceOne(ctx, bson.M{"_id": b.ID}, b, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to save building %s: %w", b.ID, err)
	}
	return nil
}

// GetBuilding returns one building or models.ErrNotFound.
func (r *MongoDBRepository) GetBuilding(ctx context.Context, id string) (models.Building, error) {
	var b models.Building
	err := r.collection(buildingsCollection).FindOne(ctx, bson.M{"_id": id}).Decode(&b)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.Building{}, fmt.Errorf("building %s: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return models.Building{}, fmt.Errorf("failed to get building %s: %w", id, err)
	}
	return b, nil
}

// ListSplits returns the splits in which the lot is parent or child, oldest first.
func (r *MongoDBRepository) ListSplits(ctx context.Context, lotID string) ([]models.SplitRelationship, error) {
	query := bson.M{"$or": bson.A{bson.M{"parent_lot_id": lotID}, bson.M{"child_lot_id": lotID}}}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
	cursor, err := r.collection(splitsCollection).Find(ctx, query, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list splits for %s: %w", lotID, err)
	}

	var splits []models.SplitRelationship
	if err := cursor.All(ctx, &splits); err != nil {
		return nil, fmt.Errorf("failed to decode splits: %w", err)
	}
	return splits, nil
}

// RunInTx runs fn inside a multi-document transaction. The driver retries fn
// on transient transaction errors; a version conflict is not transient.
func (r *MongoDBRepository) RunInTx(ctx context.Context, fn func(ctx context.Context, tx splitting.Tx) error) error {
	session, err := r.client.StartSession()
	if err != nil {
		return fmt.Errorf("failed to start session: %w", err)
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, fn(sc, &txRepository{repo: r})
	})
	return err
}

// txRepository is the split write side. Its methods must receive the session
// context handed to the RunInTx callback.
type txRepository struct {
	repo *MongoDBRepository
}

func (t *txRepository) UpdateLotQuantity(ctx context.Context, lotID string, expectedVersion int64, quantity int, at time.Time) error {
	coll := t.repo.collection(lotsCollection)
	res, err := coll.UpdateOne(ctx,
		bson.M{"_id": lotID, "version": expectedVersion},
		bson.M{
			"$set": bson.M{"current_quantity": quantity, "updated_at": at},
			"$inc": bson.M{"version": 1},
		})
	if err != nil {
		return fmt.Errorf("failed to update lot %s quantity: %w", lotID, err)
	}
	if res.MatchedCount > 0 {
		return nil
	}

	count, err := coll.CountDocuments(ctx, bson.M{"_id": lotID})
	if err != nil {
		return fmt.Errorf("failed to check lot %s: %w", lotID, err)
	}
	if count == 0 {
		return fmt.Errorf("lot %s: %w", lotID, models.ErrNotFound)
	}
	return &models.ConflictError{LotID: lotID, ExpectedVersion: expectedVersion}
}

func (t *txRepository) InsertLot(ctx context.Context, lot models.Lot) error {
	if lot.Version == 0 {
		lot.Version = 1
	}
	_, err := t.repo.collection(lotsCollection).InsertOne(ctx, lot)
	return err
}

func (t *txRepository) InsertSplit(ctx context.Context, split models.SplitRelationship) error {
	_, err := t.repo.collection(splitsCollection).InsertOne(ctx, split)
	return err
}
