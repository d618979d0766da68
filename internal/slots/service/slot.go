package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"qrparking/internal/events"
	historyservice "qrparking/internal/history/service"
	"qrparking/internal/lifecycle"
	"qrparking/internal/qrcode"
	slotserrors "qrparking/internal/slots/errors"
	"qrparking/internal/slots/repository"
	"qrparking/internal/slots/validator"
	usersrepo "qrparking/internal/users/repository"
	"qrparking/pkg/clock"
	"qrparking/pkg/config"
	apperrors "qrparking/pkg/errors"
	"qrparking/pkg/logger"
	"qrparking/pkg/middleware"
	"qrparking/pkg/model"
)

// Booking is the caller's current slot. Slot is nil when the user holds
// nothing; Expired reports that this read just reset a stale reservation.
type Booking struct {
	Slot    *model.ParkingSlot `json:"slot"`
	Expired bool               `json:"expired"`
}

// SessionQR pairs a slot with the rendered QR image of its payload.
type SessionQR struct {
	Slot   *model.ParkingSlot `json:"slot"`
	QRCode string             `json:"qr_code"`
}

type LeavingQuote struct {
	Slot     *model.ParkingSlot `json:"slot"`
	Duration model.Duration     `json:"duration"`
	Cost     int64              `json:"cost"`
}

type DecisionResult struct {
	Slot      *model.ParkingSlot      `json:"slot"`
	QRCode    string                  `json:"qr_code,omitempty"`
	Completed *model.CompletedParking `json:"completed_parking,omitempty"`
}

type SlotService interface {
	ListForUser(ctx context.Context, userID string) ([]*model.ParkingSlot, error)
	CurrentBooking(ctx context.Context, userID string) (*Booking, error)
	Reserve(ctx context.Context, userID string, req *model.ReserveRequest) (*SessionQR, error)
	RequestOccupied(ctx context.Context, userID string) (*model.ParkingSlot, error)
	RequestLeaving(ctx context.Context, userID string) (*LeavingQuote, error)
	Pay(ctx context.Context, userID string) (*model.ParkingSlot, error)
	Cancel(ctx context.Context, userID string) (*model.ParkingSlot, error)

	ListAll(ctx context.Context) ([]*model.ParkingSlot, error)
	Stats(ctx context.Context) (*model.SlotStats, error)
	PendingRequests(ctx context.Context, kind lifecycle.RequestKind) ([]*model.ParkingSlot, error)
	Decide(ctx context.Context, adminID, slotID string, kind lifecycle.RequestKind, outcome lifecycle.Outcome) (*DecisionResult, error)
	MarkPayment(ctx context.Context, adminID, slotID string) (*model.ParkingSlot, error)
	Release(ctx context.Context, adminID, slotID string) (*model.ParkingSlot, error)
	SetStatus(ctx context.Context, adminID, slotID string, update *model.SlotStatusUpdate) (*model.ParkingSlot, error)
	ResetPendingRequests(ctx context.Context, adminID string) (int64, error)
	SlotQRCode(ctx context.Context, slotID string) (*SessionQR, error)

	// ReleaseHeldBy frees the slot userID holds, if any.
	ReleaseHeldBy(ctx context.Context, adminID, userID string) error
	// ExpireStale resets every reservation whose window has passed.
	ExpireStale(ctx context.Context) (int, error)
}

type slotService struct {
	repo      repository.SlotRepository
	users     usersrepo.UserRepository
	history   historyservice.HistoryService
	engine    *lifecycle.Engine
	renderer  qrcode.Renderer
	events    events.Publisher
	validator *validator.SlotValidator
	clock     clock.Clock
	log       *logger.Logger
}

func NewSlotService(
	repo repository.SlotRepository,
	users usersrepo.UserRepository,
	history historyservice.HistoryService,
	engine *lifecycle.Engine,
	renderer qrcode.Renderer,
	publisher events.Publisher,
	validator *validator.SlotValidator,
	clk clock.Clock,
	cfg *config.Config,
) SlotService {
	return &slotService{
		repo:      repo,
		users:     users,
		history:   history,
		engine:    engine,
		renderer:  renderer,
		events:    publisher,
		validator: validator,
		clock:     clk,
		log:       cfg.Log.With("component", "slots"),
	}
}

// apply stores next in place of slot's current state, guarded by the status
// and version slot was read at.
func (s *slotService) apply(ctx context.Context, slot *lifecycle.Slot, next lifecycle.State, now time.Time) (*model.ParkingSlot, error) {
	doc := lifecycle.Encode(slot, next, now)
	stored, err := s.repo.ConditionalUpdate(ctx, slot.ID, slot.State.Status(), slot.Version, doc)
	if err != nil {
		return nil, s.storeError(slot.ID, err)
	}
	return stored, nil
}

func (s *slotService) storeError(slotID string, err error) error {
	switch {
	case errors.Is(err, slotserrors.ErrNotFound):
		return apperrors.NotFoundWithID("Parking slot", slotID)
	case errors.Is(err, slotserrors.ErrHolderTaken):
		return apperrors.Conflict("You already have an active reservation")
	case errors.Is(err, slotserrors.ErrConflict):
		s.log.Info("Slot changed concurrently", "slot_id", slotID, "error", err)
		return apperrors.Conflict(fmt.Sprintf("Parking slot %s was modified by another request, refresh and retry", slotID)).
			WithDetail("slot_id", slotID)
	}
	s.log.Error("Parking slot store failure", "slot_id", slotID, "error", err)
	return apperrors.Internal("Failed to update parking slot", err)
}

func (s *slotService) find(ctx context.Context, slotID string) (*model.ParkingSlot, error) {
	if slotID == "" {
		return nil, apperrors.InvalidInput("Slot ID cannot be empty")
	}
	doc, err := s.repo.FindByID(ctx, slotID)
	if err != nil {
		if errors.Is(err, slotserrors.ErrNotFound) {
			return nil, apperrors.NotFoundWithID("Parking slot", slotID)
		}
		s.log.Error("Failed to get parking slot", "slot_id", slotID, "error", err)
		return nil, apperrors.Internal("Failed to retrieve parking slot", err)
	}
	return doc, nil
}

func (s *slotService) decode(doc *model.ParkingSlot) (*lifecycle.Slot, error) {
	slot, err := lifecycle.Decode(doc)
	if err != nil {
		s.log.Error("Corrupt parking slot document", "slot_id", doc.ID, "error", err)
		return nil, apperrors.Internal("Parking slot is in an inconsistent state", err)
	}
	return slot, nil
}

// load decodes doc and resets it when it is a reservation past its window.
// expired reports that this call performed the reset.
func (s *slotService) load(ctx context.Context, doc *model.ParkingSlot, now time.Time) (*lifecycle.Slot, *model.ParkingSlot, bool, error) {
	slot, err := s.decode(doc)
	if err != nil {
		return nil, nil, false, err
	}
	return s.expire(ctx, slot, doc, now)
}

// expire is load for a slot that is already decoded.
func (s *slotService) expire(ctx context.Context, slot *lifecycle.Slot, doc *model.ParkingSlot, now time.Time) (*lifecycle.Slot, *model.ParkingSlot, bool, error) {
	if !s.engine.Expired(slot.State, now) {
		return slot, doc, false, nil
	}

	holder, _ := lifecycle.HolderOf(slot.State)
	stored, err := s.apply(ctx, slot, s.engine.Release(slot.State), now)
	if err != nil {
		return nil, nil, false, err
	}

	s.log.Info("Reservation expired",
		"slot_id", slot.ID,
		"user_id", holder.UserID,
		"reservation_time", slot.State.(lifecycle.Reserved).ReservationTime,
	)
	s.publish(ctx, transition(events.SlotExpired, slot.State, stored, holder, ""))

	fresh, err := s.decode(stored)
	if err != nil {
		return nil, nil, false, err
	}
	return fresh, stored, true, nil
}

// settle applies lazy expiry to a listing. A slot that cannot be reset right
// now is shown as stored; the next touch retries.
func (s *slotService) settle(ctx context.Context, docs []*model.ParkingSlot, now time.Time) []*model.ParkingSlot {
	for i, doc := range docs {
		if doc.Status != model.SlotReserved {
			continue
		}
		_, stored, _, err := s.load(ctx, doc, now)
		if err != nil {
			s.log.Warn("Lazy expiry skipped", "slot_id", doc.ID, "error", err)
			continue
		}
		docs[i] = stored
	}
	return docs
}

func (s *slotService) publish(ctx context.Context, event events.LifecycleEvent) {
	event.RequestID = middleware.RequestIDFrom(ctx)
	s.events.Publish(ctx, event)
}

func transition(typ events.Type, from lifecycle.State, stored *model.ParkingSlot, holder lifecycle.Holder, actorID string) events.LifecycleEvent {
	return events.LifecycleEvent{
		Type:          typ,
		SlotID:        stored.ID,
		From:          from.Status(),
		To:            stored.Status,
		UserID:        holder.UserID,
		ActorID:       actorID,
		VehicleNumber: holder.VehicleNumber,
		Cost:          stored.Cost,
		Version:       stored.Version,
		OccurredAt:    stored.UpdatedAt,
	}
}

// render encodes payload and draws it. Both happen before any write so a
// rendering failure leaves the slot untouched.
func (s *slotService) render(payload model.QRPayload) (string, string, error) {
	encoded, err := lifecycle.EncodePayload(payload)
	if err != nil {
		return "", "", apperrors.Internal("Failed to build QR payload", err)
	}
	image, err := s.renderer.Render(encoded)
	if err != nil {
		s.log.Error("Failed to render QR code", "slot_id", payload.SlotID, "error", err)
		return "", "", apperrors.Internal("Failed to generate QR code", err)
	}
	return encoded, image, nil
}

// lifecycleError maps a rejected transition onto the error reported to the
// caller.
func lifecycleError(slotID string, err error) error {
	var appErr *apperrors.AppError
	switch {
	case errors.Is(err, lifecycle.ErrSlotNotAvailable):
		appErr = apperrors.Conflict(fmt.Sprintf("Slot %s is not available", slotID))
	case errors.Is(err, lifecycle.ErrNoReservation):
		appErr = apperrors.New(apperrors.CodeNotFound, "No active reservation found", http.StatusNotFound)
	case errors.Is(err, lifecycle.ErrNoActiveParking):
		appErr = apperrors.New(apperrors.CodeNotFound, "No active parking found", http.StatusNotFound)
	case errors.Is(err, lifecycle.ErrNoPendingPayment):
		appErr = apperrors.New(apperrors.CodeNotFound, "No pending payment found", http.StatusNotFound)
	case errors.Is(err, lifecycle.ErrNotCancellable):
		appErr = apperrors.Conflict("Only reservations that are not yet parked can be cancelled")
	case errors.Is(err, lifecycle.ErrRequestPending):
		appErr = apperrors.Conflict("A request of this kind is already pending")
	case errors.Is(err, lifecycle.ErrNoPendingRequest):
		appErr = apperrors.InvalidState("No pending request of this kind found")
	case errors.Is(err, lifecycle.ErrLeavingNotRejected):
		appErr = apperrors.InvalidState("Leaving requests cannot be rejected")
	case errors.Is(err, lifecycle.ErrAlreadyPaid):
		appErr = apperrors.InvalidState("Payment already marked as paid")
	case errors.Is(err, lifecycle.ErrPaymentNotComplete):
		appErr = apperrors.PaymentIncomplete("Payment not completed")
	case errors.Is(err, lifecycle.ErrReservationExpired):
		return expiredError(slotID)
	case errors.Is(err, lifecycle.ErrUnknownRequestKind):
		appErr = apperrors.InvalidInput("Unknown request type")
	default:
		return apperrors.Internal("Unexpected lifecycle failure", err)
	}
	appErr.Err = err
	return withSlot(appErr, slotID)
}

func expiredError(slotID string) error {
	return withSlot(apperrors.Expired("Your reservation has expired. Please make a new reservation."), slotID)
}

func withSlot(err *apperrors.AppError, slotID string) *apperrors.AppError {
	if slotID == "" {
		return err
	}
	return err.WithDetail("slot_id", slotID)
}
