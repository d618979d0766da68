package repository

import (
	"context"
	"errors"
	"fmt"

	historyerrors "qrparking/internal/history/errors"
	"qrparking/pkg/config"
	mongotx "qrparking/pkg/db/mongo"
	"qrparking/pkg/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	CollectionName = "Completed_parkings"
)

type CompletedParkingRepository interface {
	Append(ctx context.Context, record *model.CompletedParking) error
	FindBySessionKey(ctx context.Context, key string) (*model.CompletedParking, error)
	FindAll(ctx context.Context, filter model.CompletedParkingFilter) ([]*model.CompletedParking, error)
	Count(ctx context.Context, filter model.CompletedParkingFilter) (int64, error)
}

type mongoCompletedParkingRepository struct {
	cfg        *config.Config
	collection *mongo.Collection
}

func NewMongoCompletedParkingRepository(cfg *config.Config) CompletedParkingRepository {
	db := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)
	return &mongoCompletedParkingRepository{
		cfg:        cfg,
		collection: db.Collection(CollectionName),
	}
}

func (r *mongoCompletedParkingRepository) Append(ctx context.Context, record *model.CompletedParking) error {
	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	if _, err := r.collection.InsertOne(ctx, record); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("%w: %s", historyerrors.ErrAlreadyArchived, record.SessionKey)
		}
		return fmt.Errorf("failed to insert completed parking: %w", err)
	}
	return nil
}

func (r *mongoCompletedParkingRepository) FindBySessionKey(ctx context.Context, key string) (*model.CompletedParking, error) {
	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	var record model.CompletedParking
	err := r.collection.FindOne(ctx, bson.M{"session_key": key}).Decode(&record)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("%w: %s", historyerrors.ErrNotFound, key)
		}
		return nil, fmt.Errorf("failed to find completed parking: %w", err)
	}
	return &record, nil
}

func (r *mongoCompletedParkingRepository) FindAll(ctx context.Context, filter model.CompletedParkingFilter) ([]*model.CompletedParking, error) {
	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	opts := options.Find().
		SetLimit(int64(filter.Limit)).
		SetSkip(filter.Offset).
		SetSort(bson.D{{Key: "completed_time", Value: -1}})

	cursor, err := r.collection.Find(ctx, toQuery(filter), opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query completed parkings: %w", err)
	}
	defer cursor.Close(ctx)

	records := []*model.CompletedParking{}
	if err = cursor.All(ctx, &records); err != nil {
		return nil, fmt.Errorf("failed to decode completed parkings: %w", err)
	}
	return records, nil
}

func (r *mongoCompletedParkingRepository) Count(ctx context.Context, filter model.CompletedParkingFilter) (int64, error) {
	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	count, err := r.collection.CountDocuments(ctx, toQuery(filter))
	if err != nil {
		return 0, fmt.Errorf("failed to count completed parkings: %w", err)
	}
	return count, nil
}

func toQuery(filter model.CompletedParkingFilter) bson.M {
	query := bson.M{}
	if filter.UserID != "" {
		query["user"] = filter.UserID
	}
	return query
}
