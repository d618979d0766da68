package repository

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	userserrors "qrparking/internal/users/errors"
	"qrparking/pkg/config"
	mongotx "qrparking/pkg/db/mongo"
	"qrparking/pkg/model"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	CollectionName = "Users"
)

type UserFilter struct {
	Search  string
	Blocked *bool
	Limit   int
	Offset  int64
}

type UserCounts struct {
	Total   int64
	Blocked int64
}

type UserRepository interface {
	Create(ctx context.Context, user *model.User) error
	FindByID(ctx context.Context, id string) (*model.User, error)
	FindByEmail(ctx context.Context, email string) (*model.User, error)
	FindAll(ctx context.Context, filter UserFilter) ([]*model.User, error)
	Count(ctx context.Context, filter UserFilter) (int64, error)
	CountUsers(ctx context.Context) (UserCounts, error)
	SetBlocked(ctx context.Context, id string, blocked bool, by string, at time.Time) error
}

type mongoUserRepository struct {
	cfg        *config.Config
	collection *mongo.Collection
}

func NewMongoUserRepository(cfg *config.Config) UserRepository {
	db := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)
	return &mongoUserRepository{
		cfg:        cfg,
		collection: db.Collection(CollectionName),
	}
}

func (r *mongoUserRepository) Create(ctx context.Context, user *model.User) error {
	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC().Truncate(time.Millisecond)
	}

	if _, err := r.collection.InsertOne(ctx, user); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("%w: %s", userserrors.ErrDuplicateEmail, user.Email)
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

func (r *mongoUserRepository) FindByID(ctx context.Context, id string) (*model.User, error) {
	return r.findOne(ctx, bson.M{"_id": id}, id)
}

func (r *mongoUserRepository) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	return r.findOne(ctx, bson.M{"email": email}, email)
}

func (r *mongoUserRepository) findOne(ctx context.Context, filter bson.M, key string) (*model.User, error) {
	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	var user model.User
	if err := r.collection.FindOne(ctx, filter).Decode(&user); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("%w: %s", userserrors.ErrNotFound, key)
		}
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	return &user, nil
}

func (r *mongoUserRepository) FindAll(ctx context.Context, filter UserFilter) ([]*model.User, error) {
	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	opts := options.Find().
		SetLimit(int64(filter.Limit)).
		SetSkip(filter.Offset).
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetProjection(bson.M{"password_hash": 0})

	cursor, err := r.collection.Find(ctx, toQuery(filter), opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	defer cursor.Close(ctx)

	users := []*model.User{}
	if err = cursor.All(ctx, &users); err != nil {
		return nil, fmt.Errorf("failed to decode users: %w", err)
	}
	return users, nil
}

func (r *mongoUserRepository) Count(ctx context.Context, filter UserFilter) (int64, error) {
	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	count, err := r.collection.CountDocuments(ctx, toQuery(filter))
	if err != nil {
		return 0, fmt.Errorf("failed to count users: %w", err)
	}
	return count, nil
}

func (r *mongoUserRepository) CountUsers(ctx context.Context) (UserCounts, error) {
	total, err := r.Count(ctx, UserFilter{})
	if err != nil {
		return UserCounts{}, err
	}
	blocked := true
	blockedCount, err := r.Count(ctx, UserFilter{Blocked: &blocked})
	if err != nil {
		return UserCounts{}, err
	}
	return UserCounts{Total: total, Blocked: blockedCount}, nil
}

func (r *mongoUserRepository) SetBlocked(ctx context.Context, id string, blocked bool, by string, at time.Time) error {
	ctx, cancel := mongotx.WithTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	set := bson.M{"is_blocked": blocked}
	update := bson.M{"$set": set}
	if blocked {
		set["blocked_at"] = at
		set["blocked_by"] = by
	} else {
		update["$unset"] = bson.M{"blocked_at": "", "blocked_by": ""}
	}

	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		return fmt.Errorf("failed to update user block state: %w", err)
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("%w: %s", userserrors.ErrNotFound, id)
	}
	return nil
}

// toQuery only ever selects regular users; administrators are not listed.
func toQuery(filter UserFilter) bson.M {
	query := bson.M{"role": model.RoleUser}
	if filter.Search != "" {
		pattern := caseInsensitive(filter.Search)
		query["$or"] = bson.A{
			bson.M{"name": pattern},
			bson.M{"email": pattern},
		}
	}
	if filter.Blocked != nil {
		query["is_blocked"] = *filter.Blocked
	}
	return query
}

func caseInsensitive(search string) bson.M {
	return bson.M{"$regex": regexp.QuoteMeta(search), "$options": "i"}
}
