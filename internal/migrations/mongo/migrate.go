package mongo

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"qrparking/internal/migrations/mongo/validators"
	"qrparking/pkg/logger"
)

const (
	ParkingSlotsCollection      = "Parking_slots"
	CompletedParkingsCollection = "Completed_parkings"
	UsersCollection             = "Users"
)

var (
	ParkingSlotsIndexes = []mongo.IndexModel{
		{
			// a user holds at most one slot; available slots carry a null holder
			Keys: bson.D{{Key: "booked_by", Value: 1}},
			Options: options.Index().
				SetName("uniq_booked_by").
				SetUnique(true).
				SetPartialFilterExpression(bson.M{"booked_by": bson.M{"$type": "string"}}),
		},
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "reservation_time", Value: 1}}},
		{Keys: bson.D{{Key: "occupied_request_status", Value: 1}}},
		{Keys: bson.D{{Key: "leaving_request_status", Value: 1}}},
	}

	CompletedParkingsIndexes = []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "session_key", Value: 1}},
			Options: options.Index().SetName("uniq_session_key").SetUnique(true),
		},
		{Keys: bson.D{{Key: "user", Value: 1}, {Key: "completed_time", Value: -1}}},
		{Keys: bson.D{{Key: "completed_time", Value: -1}}},
	}

	UsersIndexes = []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetName("uniq_email").SetUnique(true),
		},
		{Keys: bson.D{{Key: "role", Value: 1}, {Key: "is_blocked", Value: 1}}},
	}
)

type collectionDef struct {
	Name      string
	Indexes   []mongo.IndexModel
	Validator bson.M
}

func collections() []collectionDef {
	return []collectionDef{
		{Name: ParkingSlotsCollection, Indexes: ParkingSlotsIndexes, Validator: validators.ParkingSlotValidator},
		{Name: CompletedParkingsCollection, Indexes: CompletedParkingsIndexes, Validator: validators.CompletedParkingValidator},
		{Name: UsersCollection, Indexes: UsersIndexes, Validator: validators.UserValidator},
	}
}

// RunMigration creates or updates the collections, their validators and
// their indexes. It is safe to run repeatedly.
func RunMigration(ctx context.Context, client *mongo.Client, dbName string, log *logger.Logger) error {
	db := client.Database(dbName)
	log.Info("Running Mongo migrations", "database", dbName)

	for _, def := range collections() {
		if err := ensureCollection(ctx, db, def.Name, def.Validator, log); err != nil {
			return fmt.Errorf("failed to ensure collection %s: %w", def.Name, err)
		}
		if err := ensureIndexes(ctx, db, def.Name, def.Indexes, log); err != nil {
			return fmt.Errorf("failed to ensure indexes for %s: %w", def.Name, err)
		}
	}

	log.Info("All migrations applied successfully")
	return nil
}

func ensureCollection(ctx context.Context, db *mongo.Database, name string, validator bson.M, log *logger.Logger) error {
	existing, err := db.ListCollectionNames(ctx, bson.D{{Key: "name", Value: name}})
	if err != nil {
		return err
	}

	if len(existing) == 0 {
		log.Info("Creating collection", "collection", name)
		opts := options.CreateCollection().SetValidator(validator)
		if err := db.CreateCollection(ctx, name, opts); err != nil {
			return fmt.Errorf("failed creating %s: %w", name, err)
		}
		return nil
	}

	log.Info("Collection already exists, updating validator", "collection", name)
	command := bson.D{
		{Key: "collMod", Value: name},
		{Key: "validator", Value: validator},
	}
	if err := db.RunCommand(ctx, command).Err(); err != nil {
		log.Warn("Failed updating validator", "collection", name, "error", err)
	}
	return nil
}

func ensureIndexes(ctx context.Context, db *mongo.Database, name string, models []mongo.IndexModel, log *logger.Logger) error {
	names, err := db.Collection(name).Indexes().CreateMany(ctx, models)
	if err != nil {
		return err
	}
	log.Info("Ensured indexes", "collection", name, "indexes", names)
	return nil
}
