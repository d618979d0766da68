package service

import (
	"context"
	"errors"
	"time"

	"qrparking/internal/events"
	"qrparking/internal/lifecycle"
	slotserrors "qrparking/internal/slots/errors"
	"qrparking/internal/slots/validator"
	userserrors "qrparking/internal/users/errors"
	apperrors "qrparking/pkg/errors"
	"qrparking/pkg/model"
	"qrparking/pkg/sanitizer"
)

func (s *slotService) ListForUser(ctx context.Context, userID string) ([]*model.ParkingSlot, error) {
	docs, err := s.repo.FindVisibleTo(ctx, userID)
	if err != nil {
		s.log.Error("Failed to list slots for user", "user_id", userID, "error", err)
		return nil, apperrors.Internal("Failed to retrieve parking slots", err)
	}
	return s.settle(ctx, docs, s.clock.Now()), nil
}

func (s *slotService) CurrentBooking(ctx context.Context, userID string) (*Booking, error) {
	_, doc, expired, err := s.held(ctx, userID, s.clock.Now())
	if err != nil {
		return nil, err
	}
	return &Booking{Slot: doc, Expired: expired}, nil
}

// held returns the slot userID holds after lazy expiry. All results are nil
// when the user holds nothing; expired is set when the hold just lapsed.
func (s *slotService) held(ctx context.Context, userID string, now time.Time) (*lifecycle.Slot, *model.ParkingSlot, bool, error) {
	doc, err := s.repo.FindActiveByUser(ctx, userID)
	if err != nil {
		if errors.Is(err, slotserrors.ErrNotFound) {
			return nil, nil, false, nil
		}
		s.log.Error("Failed to find user's slot", "user_id", userID, "error", err)
		return nil, nil, false, apperrors.Internal("Failed to retrieve booking", err)
	}

	slot, stored, expired, err := s.load(ctx, doc, now)
	if err != nil {
		return nil, nil, false, err
	}
	if expired {
		return nil, nil, true, nil
	}
	return slot, stored, false, nil
}

// heldOrFail is held for actions that need an existing booking.
func (s *slotService) heldOrFail(ctx context.Context, userID string, now time.Time, missing error) (*lifecycle.Slot, error) {
	slot, doc, expired, err := s.held(ctx, userID, now)
	if err != nil {
		return nil, err
	}
	if expired {
		return nil, expiredError("")
	}
	if doc == nil {
		return nil, lifecycleError("", missing)
	}
	return slot, nil
}

func (s *slotService) Reserve(ctx context.Context, userID string, req *model.ReserveRequest) (*SessionQR, error) {
	req.SlotID = sanitizer.NormalizeSlotID(req.SlotID)
	req.VehicleNumber = sanitizer.NormalizeVehicleNumber(req.VehicleNumber)
	if err := s.validator.ValidateReserve(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			return nil, apperrors.Validation("Invalid reservation request", verrs.Details())
		}
		return nil, apperrors.InvalidInput(err.Error())
	}

	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, userserrors.ErrNotFound) {
			return nil, apperrors.NotFoundWithID("User", userID)
		}
		s.log.Error("Failed to load user for reservation", "user_id", userID, "error", err)
		return nil, apperrors.Internal("Failed to retrieve user", err)
	}
	if user.IsBlocked {
		return nil, apperrors.Forbidden("Your account has been blocked")
	}

	now := s.clock.Now()
	if current, _, _, err := s.held(ctx, userID, now); err != nil {
		if errors.Is(err, lifecycle.ErrCorruptSlot) {
			return nil, apperrors.Conflict("Your current booking must be released by an administrator before reserving again")
		}
		return nil, err
	} else if current != nil {
		return nil, apperrors.Conflict("You already have an active reservation").
			WithDetail("slot_id", current.ID)
	}

	doc, err := s.find(ctx, req.SlotID)
	if err != nil {
		return nil, err
	}
	slot, _, _, err := s.load(ctx, doc, now)
	if err != nil {
		return nil, err
	}

	holder := lifecycle.Holder{UserID: userID, VehicleNumber: req.VehicleNumber}
	next, err := s.engine.Reserve(slot.State, holder, now)
	if err != nil {
		return nil, lifecycleError(slot.ID, err)
	}

	payload, image, err := s.render(lifecycle.ReservationPayload(slot, next, identityOf(user), now))
	if err != nil {
		return nil, err
	}
	next.ReservationQR = payload

	stored, err := s.apply(ctx, slot, next, now)
	if err != nil {
		return nil, err
	}

	s.log.Info("Slot reserved",
		"slot_id", stored.ID,
		"user_id", userID,
		"vehicle_number", req.VehicleNumber,
		"arrival_time", next.ArrivalTime,
	)
	s.publish(ctx, transition(events.SlotReserved, slot.State, stored, holder, userID))

	return &SessionQR{Slot: stored, QRCode: image}, nil
}

func (s *slotService) RequestOccupied(ctx context.Context, userID string) (*model.ParkingSlot, error) {
	now := s.clock.Now()
	slot, err := s.heldOrFail(ctx, userID, now, lifecycle.ErrNoReservation)
	if err != nil {
		return nil, err
	}

	next, err := s.engine.SubmitRequest(slot.State, lifecycle.RequestOccupied, now)
	if err != nil {
		return nil, lifecycleError(slot.ID, err)
	}
	stored, err := s.apply(ctx, slot, next, now)
	if err != nil {
		return nil, err
	}

	holder, _ := lifecycle.HolderOf(next)
	s.log.Info("Occupied request submitted", "slot_id", stored.ID, "user_id", userID)
	s.publish(ctx, transition(events.OccupiedRequested, slot.State, stored, holder, userID))
	return stored, nil
}

func (s *slotService) RequestLeaving(ctx context.Context, userID string) (*LeavingQuote, error) {
	now := s.clock.Now()
	slot, err := s.heldOrFail(ctx, userID, now, lifecycle.ErrNoActiveParking)
	if err != nil {
		return nil, err
	}

	next, err := s.engine.RequestLeaving(slot.State, now)
	if err != nil {
		return nil, lifecycleError(slot.ID, err)
	}
	stored, err := s.apply(ctx, slot, next, now)
	if err != nil {
		return nil, err
	}

	s.log.Info("Leaving request submitted",
		"slot_id", stored.ID,
		"user_id", userID,
		"cost", next.Cost,
	)
	s.publish(ctx, transition(events.LeavingRequested, slot.State, stored, next.Holder, userID))

	return &LeavingQuote{
		Slot:     stored,
		Duration: lifecycle.DurationBetween(next.ParkedTime, next.LeavingRequestTime),
		Cost:     next.Cost,
	}, nil
}

func (s *slotService) Pay(ctx context.Context, userID string) (*model.ParkingSlot, error) {
	now := s.clock.Now()
	slot, err := s.heldOrFail(ctx, userID, now, lifecycle.ErrNoPendingPayment)
	if err != nil {
		return nil, err
	}

	next, err := s.engine.Pay(slot.State, now)
	if err != nil {
		if errors.Is(err, lifecycle.ErrAlreadyPaid) {
			err = lifecycle.ErrNoPendingPayment
		}
		return nil, lifecycleError(slot.ID, err)
	}
	stored, err := s.apply(ctx, slot, next, now)
	if err != nil {
		return nil, err
	}

	s.log.Info("Payment received", "slot_id", stored.ID, "user_id", userID, "cost", next.Cost)
	s.publish(ctx, transition(events.PaymentReceived, slot.State, stored, next.Holder, userID))
	return stored, nil
}

func (s *slotService) Cancel(ctx context.Context, userID string) (*model.ParkingSlot, error) {
	now := s.clock.Now()
	slot, err := s.heldOrFail(ctx, userID, now, lifecycle.ErrNoReservation)
	if err != nil {
		return nil, err
	}

	next, err := s.engine.Cancel(slot.State)
	if err != nil {
		return nil, lifecycleError(slot.ID, err)
	}
	holder, _ := lifecycle.HolderOf(slot.State)
	stored, err := s.apply(ctx, slot, next, now)
	if err != nil {
		return nil, err
	}

	s.log.Info("Reservation cancelled", "slot_id", stored.ID, "user_id", userID)
	s.publish(ctx, transition(events.SlotCancelled, slot.State, stored, holder, userID))
	return stored, nil
}

func identityOf(user *model.User) lifecycle.Identity {
	return lifecycle.Identity{
		ID:            user.ID,
		Name:          user.Name,
		Email:         user.Email,
		VehicleNumber: user.VehicleNumber,
	}
}
