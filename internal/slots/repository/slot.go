package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	slotserrors "qrparking/internal/slots/errors"
	"qrparking/pkg/config"
	mongotx "qrparking/pkg/db/mongo"
	"qrparking/pkg/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	CollectionName = "Parking_slots"
)

var activeStatuses = []model.SlotStatus{model.SlotReserved, model.SlotOccupied, model.SlotLeaving}

type SlotRepository interface {
	FindByID(ctx context.Context, id string) (*model.ParkingSlot, error)
	FindActiveByUser(ctx context.Context, userID string) (*model.ParkingSlot, error)
	FindAll(ctx context.Context) ([]*model.ParkingSlot, error)
	FindVisibleTo(ctx context.Context, userID string) ([]*model.ParkingSlot, error)
	FindPendingRequests(ctx context.Context, occupied, leaving bool) ([]*model.ParkingSlot, error)
	FindReservedBefore(ctx context.Context, cutoff time.Time) ([]*model.ParkingSlot, error)
	CountByStatus(ctx context.Context) (map[model.SlotStatus]int64, error)
	CountPendingRequests(ctx context.Context) (occupied int64, leaving int64, err error)

	// ConditionalUpdate stores next only if the slot still has the expected
	// status and version, and returns the stored document with its new version.
	ConditionalUpdate(ctx context.Context, id string, expectStatus model.SlotStatus, expectVersion int64, next *model.ParkingSlot) (*model.ParkingSlot, error)
	ResetPendingOccupiedRequests(ctx context.Context, at time.Time) (int64, error)
	InsertMissing(ctx context.Context, slots []*model.ParkingSlot) (int64, error)

	ExecuteTransaction(ctx context.Context, fn mongotx.TransactionFunc) error
}

type mongoSlotRepository struct {
	cfg        *config.Config
	collection *mongo.Collection
	txManager  mongotx.TransactionManager
}

func NewMongoSlotRepository(cfg *config.Config) SlotRepository {
	db := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)
	return &mongoSlotRepository{
		cfg:        cfg,
		collection: db.Collection(CollectionName),
		txManager:  mongotx.NewTransactionManager(cfg.Client.Mongo),
	}
}

func (r *mongoSlotRepository) FindByID(ctx context.Context, id string) (*model.ParkingSlot, error) {
	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	var slot model.ParkingSlot
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&slot)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("%w: %s", slotserrors.ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to find parking slot: %w", err)
	}
	return &slot, nil
}

func (r *mongoSlotRepository) FindActiveByUser(ctx context.Context, userID string) (*model.ParkingSlot, error) {
	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	filter := bson.M{
		"booked_by": userID,
		"status":    bson.M{"$in": activeStatuses},
	}

	var slot model.ParkingSlot
	err := r.collection.FindOne(ctx, filter).Decode(&slot)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("%w: no active slot for user %s", slotserrors.ErrNotFound, userID)
		}
		return nil, fmt.Errorf("failed to find active slot: %w", err)
	}
	return &slot, nil
}

func (r *mongoSlotRepository) FindAll(ctx context.Context) ([]*model.ParkingSlot, error) {
	return r.find(ctx, bson.M{})
}

// FindVisibleTo returns the free slots plus the user's own reservation.
func (r *mongoSlotRepository) FindVisibleTo(ctx context.Context, userID string) ([]*model.ParkingSlot, error) {
	return r.find(ctx, bson.M{
		"$or": bson.A{
			bson.M{"status": model.SlotAvailable},
			bson.M{"status": model.SlotReserved, "booked_by": userID},
		},
	})
}

func (r *mongoSlotRepository) FindPendingRequests(ctx context.Context, occupied, leaving bool) ([]*model.ParkingSlot, error) {
	var clauses bson.A
	if occupied {
		clauses = append(clauses, bson.M{"status": model.SlotReserved, "occupied_request_status": model.RequestPending})
	}
	if leaving {
		clauses = append(clauses, bson.M{"status": model.SlotLeaving, "leaving_request_status": model.RequestPending})
	}
	if len(clauses) == 0 {
		return []*model.ParkingSlot{}, nil
	}
	return r.find(ctx, bson.M{"$or": clauses}, options.Find().SetSort(bson.D{{Key: "updated_at", Value: -1}}))
}

func (r *mongoSlotRepository) FindReservedBefore(ctx context.Context, cutoff time.Time) ([]*model.ParkingSlot, error) {
	return r.find(ctx, bson.M{
		"status":                  model.SlotReserved,
		"reservation_time":        bson.M{"$lt": cutoff},
		"occupied_request_status": bson.M{"$ne": model.RequestPending},
	})
}

func (r *mongoSlotRepository) find(ctx context.Context, filter bson.M, opts ...*options.FindOptions) ([]*model.ParkingSlot, error) {
	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	if len(opts) == 0 {
		opts = append(opts, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	}

	cursor, err := r.collection.Find(ctx, filter, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to query parking slots: %w", err)
	}
	defer cursor.Close(ctx)

	slots := []*model.ParkingSlot{}
	if err = cursor.All(ctx, &slots); err != nil {
		return nil, fmt.Errorf("failed to decode parking slots: %w", err)
	}
	return slots, nil
}

func (r *mongoSlotRepository) CountByStatus(ctx context.Context) (map[model.SlotStatus]int64, error) {
	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	pipeline := mongo.Pipeline{
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$status"},
			{Key: "count", Value: bson.D{{Key: "$sum", Value: 1}}},
		}}},
	}

	cursor, err := r.collection.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate slot statuses: %w", err)
	}
	defer cursor.Close(ctx)

	var rows []struct {
		Status model.SlotStatus `bson:"_id"`
		Count  int64            `bson:"count"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("failed to decode slot status counts: %w", err)
	}

	counts := make(map[model.SlotStatus]int64, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}

func (r *mongoSlotRepository) CountPendingRequests(ctx context.Context) (int64, int64, error) {
	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	occupied, err := r.collection.CountDocuments(ctx, bson.M{
		"status":                  model.SlotReserved,
		"occupied_request_status": model.RequestPending,
	})
	if err != nil {
		return 0, 0, fmt.Errorf("failed to count occupied requests: %w", err)
	}

	leaving, err := r.collection.CountDocuments(ctx, bson.M{
		"status":                 model.SlotLeaving,
		"leaving_request_status": model.RequestPending,
		"payment_status":         model.PaymentPaid,
	})
	if err != nil {
		return 0, 0, fmt.Errorf("failed to count leaving requests: %w", err)
	}

	return occupied, leaving, nil
}

func (r *mongoSlotRepository) ConditionalUpdate(
	ctx context.Context,
	id string,
	expectStatus model.SlotStatus,
	expectVersion int64,
	next *model.ParkingSlot,
) (*model.ParkingSlot, error) {
	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	filter := bson.M{
		"_id":     id,
		"status":  expectStatus,
		"version": expectVersion,
	}
	update := bson.M{
		"$set": mutableFields(next),
		"$inc": bson.M{"version": 1},
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var updated model.ParkingSlot
	err := r.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&updated)
	if err == nil {
		return &updated, nil
	}
	if mongo.IsDuplicateKeyError(err) {
		return nil, fmt.Errorf("%w: slot %s", slotserrors.ErrHolderTaken, id)
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("failed to update parking slot: %w", err)
	}

	exists, countErr := r.collection.CountDocuments(ctx, bson.M{"_id": id}, options.Count().SetLimit(1))
	if countErr != nil {
		return nil, fmt.Errorf("failed to check parking slot existence: %w", countErr)
	}
	if exists == 0 {
		return nil, fmt.Errorf("%w: %s", slotserrors.ErrNotFound, id)
	}
	return nil, fmt.Errorf("%w: %s expected %s at version %d", slotserrors.ErrConflict, id, expectStatus, expectVersion)
}

func (r *mongoSlotRepository) ResetPendingOccupiedRequests(ctx context.Context, at time.Time) (int64, error) {
	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	result, err := r.collection.UpdateMany(ctx,
		bson.M{
			"status":                  model.SlotReserved,
			"occupied_request_status": model.RequestPending,
		},
		bson.M{
			"$set": bson.M{"occupied_request_status": nil, "updated_at": at},
			"$inc": bson.M{"version": 1},
		},
	)
	if err != nil {
		return 0, fmt.Errorf("failed to reset pending requests: %w", err)
	}
	return result.ModifiedCount, nil
}

// InsertMissing creates the given slots, leaving existing ones untouched.
func (r *mongoSlotRepository) InsertMissing(ctx context.Context, slots []*model.ParkingSlot) (int64, error) {
	if len(slots) == 0 {
		return 0, nil
	}

	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	models := make([]mongo.WriteModel, 0, len(slots))
	for _, slot := range slots {
		models = append(models, mongo.NewUpdateOneModel().
			SetFilter(bson.M{"_id": slot.ID}).
			SetUpdate(bson.M{"$setOnInsert": slot}).
			SetUpsert(true))
	}

	result, err := r.collection.BulkWrite(ctx, models, options.BulkWrite().SetOrdered(false))
	if err != nil {
		return 0, fmt.Errorf("failed to seed parking slots: %w", err)
	}
	return result.UpsertedCount, nil
}

func (r *mongoSlotRepository) ExecuteTransaction(ctx context.Context, fn mongotx.TransactionFunc) error {
	return r.txManager.ExecuteTransaction(ctx, fn)
}

// mutableFields lists every lifecycle field explicitly so that fields absent
// from next are stored as null rather than left over from the previous state.
func mutableFields(next *model.ParkingSlot) bson.M {
	return bson.M{
		"status":                  next.Status,
		"vehicle_number":          next.VehicleNumber,
		"booked_by":               next.BookedBy,
		"reservation_time":        next.ReservationTime,
		"arrival_time":            next.ArrivalTime,
		"parked_time":             next.ParkedTime,
		"leaving_request_time":    next.LeavingRequestTime,
		"occupied_request_status": next.OccupiedRequestStatus,
		"leaving_request_status":  next.LeavingRequestStatus,
		"cost":                    next.Cost,
		"payment_status":          next.PaymentStatus,
		"payment_time":            next.PaymentTime,
		"reservation_qr_code":     next.ReservationQRCode,
		"occupied_qr_code":        next.OccupiedQRCode,
		"updated_at":              next.UpdatedAt,
	}
}
