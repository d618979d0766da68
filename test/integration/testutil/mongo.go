package testutil

import (
	"context"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	migrations "qrparking/internal/migrations/mongo"
	"qrparking/pkg/model"
)

const (
	DefaultMongoURI     = "mongodb://localhost:27017"
	DefaultDatabaseName = "qrparking"
	ConnectionTimeout   = 10 * time.Second
)

// MongoHelper provides MongoDB test utilities
type MongoHelper struct {
	Client   *mongo.Client
	Database *mongo.Database
	DBName   string
}

// NewMongoHelper creates a new MongoDB test helper
func NewMongoHelper(t *testing.T, mongoURI, dbName string) *MongoHelper {
	t.Helper()

	if mongoURI == "" {
		mongoURI = DefaultMongoURI
	}
	if dbName == "" {
		dbName = DefaultDatabaseName
	}

	ctx, cancel := context.WithTimeout(context.Background(), ConnectionTimeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(mongoURI))
	if err != nil {
		t.Fatalf("failed to connect to MongoDB: %v", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		t.Fatalf("failed to ping MongoDB: %v", err)
	}

	t.Log("Connected to MongoDB successfully")

	return &MongoHelper{
		Client:   client,
		Database: client.Database(dbName),
		DBName:   dbName,
	}
}

// Close closes MongoDB connection
func (m *MongoHelper) Close(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := m.Client.Disconnect(ctx); err != nil {
		t.Logf("warning: failed to disconnect from MongoDB: %v", err)
	}
}

// ResetParkingState frees every slot, clears the archive and removes all
// non-admin users. The slot grid seeded by the service stays in place.
func (m *MongoHelper) ResetParkingState(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := m.Database.Collection(migrations.ParkingSlotsCollection).UpdateMany(ctx,
		bson.M{"status": bson.M{"$ne": model.SlotAvailable}},
		bson.M{
			"$set": bson.M{
				"status":                  model.SlotAvailable,
				"vehicle_number":          nil,
				"booked_by":               nil,
				"reservation_time":        nil,
				"arrival_time":            nil,
				"parked_time":             nil,
				"leaving_request_time":    nil,
				"occupied_request_status": nil,
				"leaving_request_status":  nil,
				"cost":                    0,
				"payment_status":          nil,
				"payment_time":            nil,
				"reservation_qr_code":     nil,
				"occupied_qr_code":        nil,
				"updated_at":              time.Now().UTC(),
			},
			"$inc": bson.M{"version": 1},
		},
	)
	if err != nil {
		t.Fatalf("failed to reset parking slots: %v", err)
	}

	if _, err := m.Database.Collection(migrations.CompletedParkingsCollection).DeleteMany(ctx, bson.M{}); err != nil {
		t.Fatalf("failed to clear completed parkings: %v", err)
	}
	if _, err := m.Database.Collection(migrations.UsersCollection).DeleteMany(ctx, bson.M{"role": bson.M{"$ne": model.RoleAdmin}}); err != nil {
		t.Fatalf("failed to clear users: %v", err)
	}
}

// InsertUser stores user directly, bypassing the registration flow.
func (m *MongoHelper) InsertUser(t *testing.T, user *model.User) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := m.Database.Collection(migrations.UsersCollection).InsertOne(ctx, user); err != nil {
		t.Fatalf("failed to insert user %s: %v", user.ID, err)
	}
}

// FindSlot reads a slot straight from the store.
func (m *MongoHelper) FindSlot(t *testing.T, id string) *model.ParkingSlot {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var slot model.ParkingSlot
	if err := m.Database.Collection(migrations.ParkingSlotsCollection).FindOne(ctx, bson.M{"_id": id}).Decode(&slot); err != nil {
		t.Fatalf("failed to find slot %s: %v", id, err)
	}
	return &slot
}

// BackdateReservation moves a reservation start into the past so the next
// read sees it as expired.
func (m *MongoHelper) BackdateReservation(t *testing.T, id string, by time.Duration) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	slot := m.FindSlot(t, id)
	if slot.ReservationTime == nil {
		t.Fatalf("slot %s has no reservation", id)
	}
	reserved := slot.ReservationTime.Add(-by)
	arrival := slot.ArrivalTime.Add(-by)
	_, err := m.Database.Collection(migrations.ParkingSlotsCollection).UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{"reservation_time": reserved, "arrival_time": arrival}},
	)
	if err != nil {
		t.Fatalf("failed to backdate slot %s: %v", id, err)
	}
}

// CountDocuments returns the number of documents in a collection
func (m *MongoHelper) CountDocuments(t *testing.T, collectionName string) int64 {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	count, err := m.Database.Collection(collectionName).CountDocuments(ctx, bson.M{})
	if err != nil {
		t.Fatalf("failed to count documents in %s: %v", collectionName, err)
	}
	return count
}
