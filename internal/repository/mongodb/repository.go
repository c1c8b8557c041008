package mongodb

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	lotsCollection          = "lots"
	buildingsCollection     = "buildings"
	expensesCollection      = "expenses"
	salesCollection         = "sales"
	productionCollection    = "production"
	splitsCollection        = "lot_splits"
	authoritativeCollection = "authoritative_summaries"
	snapshotsCollection     = "summary_snapshots"
)

// MongoDBRepository stores farm records in MongoDB. Split transactions need
// the server to run as a replica set.
type MongoDBRepository struct {
	client *mongo.Client
	dbName string
}

// NewMongoDBRepository creates a new MongoDB repository.
func NewMongoDBRepository(ctx context.Context, uri string, dbName string) (*MongoDBRepository, error) {
	clientOptions := options.Client().ApplyURI(uri).SetRegistry(newRegistry())
	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}

	// Ping the database to verify connection
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}

	repo := &MongoDBRepository{client: client, dbName: dbName}
	if err := repo.ensureIndexes(ctx); err != nil {
		return nil, err
	}
	return repo, nil
}

func (r *MongoDBRepository) collection(name string) *mongo.Collection {
	return r.client.Database(r.dbName).Collection(name)
}

func (r *MongoDBRepository) ensureIndexes(ctx context.Context) error {
	indexes := map[string][]mongo.IndexModel{
		productionCollection: {{
			Keys:    bson.D{{Key: "lot_id", Value: 1}, {Key: "date", Value: 1}, {Key: "kind", Value: 1}},
			Options: options.Index().SetUnique(true),
		}},
		expensesCollection: {{Keys: bson.D{{Key: "lot_id", Value: 1}, {Key: "date", Value: 1}}}},
		salesCollection:    {{Keys: bson.D{{Key: "lot_id", Value: 1}, {Key: "date", Value: 1}}}},
		splitsCollection: {
			{Keys: bson.D{{Key: "parent_lot_id", Value: 1}}},
			{Keys: bson.D{{Key: "child_lot_id", Value: 1}}},
		},
		authoritativeCollection: {{
			Keys:    bson.D{{Key: "lot_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		}},
	}
	for name, specs := range indexes {
		if _, err := r.collection(name).Indexes().CreateMany(ctx, specs); err != nil {
			return fmt.Errorf("failed to create indexes on %s: %w", name, err)
		}
	}
	return nil
}

// Close closes the MongoDB connection.
func (r *MongoDBRepository) Close(ctx context.Context) error {
	return r.client.Disconnect(ctx)
}

func rangeFilter(filter bson.D, field string, from, to time.Time) bson.D {
	cond := bson.D{}
	if !from.IsZero() {
		cond = append(cond, bson.E{Key: "$gte", Value: from})
	}
	if !to.IsZero() {
		cond = append(cond, bson.E{Key: "$lte", Value: to})
	}
	if len(cond) > 0 {
		filter = append(filter, bson.E{Key: field, Value: cond})
	}
	return filter
}

func eqFilter(filter bson.D, field, value string) bson.D {
	if value == "" {
		return filter
	}
	return append(filter, bson.E{Key: field, Value: value})
}
