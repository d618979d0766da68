package service

import (
	"context"
	"errors"

	userserrors "qrparking/internal/users/errors"
	"qrparking/internal/users/repository"
	"qrparking/pkg/clock"
	"qrparking/pkg/config"
	apperrors "qrparking/pkg/errors"
	"qrparking/pkg/logger"
	"qrparking/pkg/model"
)

// SlotReleaser frees whatever slot a user currently holds.
type SlotReleaser interface {
	ReleaseHeldBy(ctx context.Context, adminID, userID string) error
}

type UserService interface {
	GetByID(ctx context.Context, id string) (*model.User, error)
	List(ctx context.Context, filter repository.UserFilter) ([]*model.User, int64, error)
	Block(ctx context.Context, adminID, userID string) (*model.User, error)
	Unblock(ctx context.Context, adminID, userID string) (*model.User, error)
}

type userService struct {
	repo     repository.UserRepository
	releaser SlotReleaser
	clock    clock.Clock
	log      *logger.Logger
}

func NewUserService(repo repository.UserRepository, releaser SlotReleaser, clk clock.Clock, cfg *config.Config) UserService {
	return &userService{
		repo:     repo,
		releaser: releaser,
		clock:    clk,
		log:      cfg.Log.With("component", "users"),
	}
}

func (s *userService) GetByID(ctx context.Context, id string) (*model.User, error) {
	if id == "" {
		return nil, apperrors.InvalidInput("User ID cannot be empty")
	}

	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, userserrors.ErrNotFound) {
			return nil, apperrors.NotFoundWithID("User", id)
		}
		s.log.Error("Failed to get user by ID", "id", id, "error", err)
		return nil, apperrors.Internal("Failed to retrieve user", err)
	}
	return user, nil
}

func (s *userService) List(ctx context.Context, filter repository.UserFilter) ([]*model.User, int64, error) {
	filter.Limit = config.NormalizePaginationLimit(filter.Limit)
	filter.Offset = config.NormalizeOffset(filter.Offset)

	users, err := s.repo.FindAll(ctx, filter)
	if err != nil {
		s.log.Error("Failed to list users", "error", err)
		return nil, 0, apperrors.Internal("Failed to retrieve users", err)
	}
	count, err := s.repo.Count(ctx, filter)
	if err != nil {
		s.log.Error("Failed to count users", "error", err)
		return nil, 0, apperrors.Internal("Failed to count users", err)
	}
	return users, count, nil
}

// Block marks the user as blocked and releases the slot they hold, if any.
func (s *userService) Block(ctx context.Context, adminID, userID string) (*model.User, error) {
	user, err := s.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.Role == model.RoleAdmin {
		return nil, apperrors.InvalidInput("Cannot block admin users")
	}
	if user.IsBlocked {
		return nil, apperrors.InvalidState("User is already blocked")
	}

	now := s.clock.Now()
	if err := s.repo.SetBlocked(ctx, userID, true, adminID, now); err != nil {
		s.log.Error("Failed to block user", "user_id", userID, "error", err)
		return nil, apperrors.Internal("Failed to block user", err)
	}

	if err := s.releaser.ReleaseHeldBy(ctx, adminID, userID); err != nil {
		s.log.Error("User blocked but slot release failed",
			"user_id", userID,
			"admin_id", adminID,
			"error", err,
		)
		return nil, err
	}

	s.log.Info("User blocked", "user_id", userID, "admin_id", adminID)

	user.IsBlocked = true
	user.BlockedAt = &now
	user.BlockedBy = &adminID
	return user, nil
}

func (s *userService) Unblock(ctx context.Context, adminID, userID string) (*model.User, error) {
	user, err := s.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !user.IsBlocked {
		return nil, apperrors.InvalidState("User is not blocked")
	}

	if err := s.repo.SetBlocked(ctx, userID, false, "", s.clock.Now()); err != nil {
		s.log.Error("Failed to unblock user", "user_id", userID, "error", err)
		return nil, apperrors.Internal("Failed to unblock user", err)
	}

	s.log.Info("User unblocked", "user_id", userID, "admin_id", adminID)

	user.IsBlocked = false
	user.BlockedAt = nil
	user.BlockedBy = nil
	return user, nil
}
