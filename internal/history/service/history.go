package service

import (
	"context"
	"sync"
	"time"

	"qrparking/internal/history/repository"
	"qrparking/internal/lifecycle"
	"qrparking/pkg/config"
	apperrors "qrparking/pkg/errors"
	"qrparking/pkg/logger"
	"qrparking/pkg/model"
)

type HistoryService interface {
	// Archive appends the completed session. Callers run it in the same
	// transaction as the slot reset.
	Archive(ctx context.Context, slotID string, done lifecycle.Leaving, completedAt time.Time, adminID string) (*model.CompletedParking, error)
	List(ctx context.Context, filter model.CompletedParkingFilter) ([]*model.CompletedParking, int64, error)
}

type historyService struct {
	repo repository.CompletedParkingRepository
	cfg  *config.Config
	log  *logger.Logger
}

func NewHistoryService(repo repository.CompletedParkingRepository, cfg *config.Config) HistoryService {
	return &historyService{
		repo: repo,
		cfg:  cfg,
		log:  cfg.Log.With("component", "history"),
	}
}

func (s *historyService) List(ctx context.Context, filter model.CompletedParkingFilter) ([]*model.CompletedParking, int64, error) {
	filter.Limit = config.NormalizePaginationLimit(filter.Limit)
	filter.Offset = config.NormalizeOffset(filter.Offset)

	var count int64
	var records []*model.CompletedParking
	var errCount, errFind error
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		var err error
		count, err = s.repo.Count(ctx, filter)
		if err != nil {
			s.log.Error("Failed to count completed parkings", "user", filter.UserID, "error", err)
			errCount = apperrors.Internal("Failed to count parking history", err)
		}
	}()

	go func() {
		defer wg.Done()
		var err error
		records, err = s.repo.FindAll(ctx, filter)
		if err != nil {
			s.log.Error("Failed to list completed parkings",
				"user", filter.UserID,
				"limit", filter.Limit,
				"offset", filter.Offset,
				"error", err,
			)
			errFind = apperrors.Internal("Failed to retrieve parking history", err)
		}
	}()
	wg.Wait()

	if errCount != nil {
		return nil, 0, errCount
	}
	if errFind != nil {
		return nil, 0, errFind
	}

	return records, count, nil
}
