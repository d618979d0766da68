package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	historyerrors "qrparking/internal/history/errors"
	"qrparking/internal/lifecycle"
	apperrors "qrparking/pkg/errors"
	"qrparking/pkg/model"

	"github.com/google/uuid"
)

// SessionKey identifies one parked session of a slot. The history collection
// holds a unique index on it so a session is archived at most once.
func SessionKey(slotID string, parkedTime time.Time) string {
	return fmt.Sprintf("%s:%d", slotID, parkedTime.UnixMilli())
}

// Snapshot builds the archive record of a completed session. The duration
// runs from parking to completion while the cost stays the one frozen at the
// leaving request.
func Snapshot(slotID string, done lifecycle.Leaving, completedAt time.Time, adminID string) *model.CompletedParking {
	return &model.CompletedParking{
		ID:                 uuid.NewString(),
		SessionKey:         SessionKey(slotID, done.ParkedTime),
		User:               done.UserID,
		SlotID:             slotID,
		VehicleNumber:      done.VehicleNumber,
		ReservationTime:    done.ReservationTime,
		ArrivalTime:        done.ArrivalTime,
		ParkedTime:         done.ParkedTime,
		LeavingRequestTime: done.LeavingRequestTime,
		CompletedTime:      completedAt,
		Duration:           lifecycle.DurationBetween(done.ParkedTime, completedAt),
		Cost:               done.Cost,
		PaymentStatus:      model.PaymentPaid,
		PaymentTime:        done.PaymentTime,
		ApprovedBy:         adminID,
		CreatedAt:          completedAt,
	}
}

func (s *historyService) Archive(ctx context.Context, slotID string, done lifecycle.Leaving, completedAt time.Time, adminID string) (*model.CompletedParking, error) {
	record := Snapshot(slotID, done, completedAt, adminID)

	if err := s.repo.Append(ctx, record); err != nil {
		if errors.Is(err, historyerrors.ErrAlreadyArchived) {
			s.log.Warn("Parking session already archived",
				"slot_id", slotID,
				"session_key", record.SessionKey,
			)
			return nil, apperrors.Conflict(fmt.Sprintf("Parking session %s was already completed", record.SessionKey))
		}
		s.log.Error("Failed to archive parking session",
			"slot_id", slotID,
			"session_key", record.SessionKey,
			"error", err,
		)
		return nil, apperrors.ArchivalFailed("Failed to archive parking session", err)
	}

	s.log.Info("Parking session archived",
		"slot_id", slotID,
		"record_id", record.ID,
		"user", record.User,
		"cost", record.Cost,
		"total_minutes", record.Duration.TotalMinutes,
	)
	return record, nil
}
