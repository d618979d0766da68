package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"qrparking/internal/events"
	"qrparking/internal/lifecycle"
	slotserrors "qrparking/internal/slots/errors"
	"qrparking/internal/slots/validator"
	userserrors "qrparking/internal/users/errors"
	apperrors "qrparking/pkg/errors"
	"qrparking/pkg/model"

	"golang.org/x/sync/errgroup"
)

func (s *slotService) ListAll(ctx context.Context) ([]*model.ParkingSlot, error) {
	docs, err := s.repo.FindAll(ctx)
	if err != nil {
		s.log.Error("Failed to list slots", "error", err)
		return nil, apperrors.Internal("Failed to retrieve parking slots", err)
	}
	return s.settle(ctx, docs, s.clock.Now()), nil
}

func (s *slotService) Stats(ctx context.Context) (*model.SlotStats, error) {
	var (
		byStatus                map[model.SlotStatus]int64
		pendingOcc, pendingLeav int64
		totalUsers, blocked     int64
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		byStatus, err = s.repo.CountByStatus(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		pendingOcc, pendingLeav, err = s.repo.CountPendingRequests(gctx)
		return err
	})
	g.Go(func() error {
		counts, err := s.users.CountUsers(gctx)
		totalUsers, blocked = counts.Total, counts.Blocked
		return err
	})
	if err := g.Wait(); err != nil {
		s.log.Error("Failed to compute dashboard stats", "error", err)
		return nil, apperrors.Internal("Failed to retrieve statistics", err)
	}

	var total int64
	for _, n := range byStatus {
		total += n
	}
	return &model.SlotStats{
		Parking: model.ParkingCounts{
			TotalSlots:       total,
			AvailableSlots:   byStatus[model.SlotAvailable],
			ReservedSlots:    byStatus[model.SlotReserved],
			OccupiedSlots:    byStatus[model.SlotOccupied],
			LeavingSlots:     byStatus[model.SlotLeaving],
			MaintenanceSlots: byStatus[model.SlotMaintenance],
		},
		Users: model.UserCounts{
			TotalUsers:   totalUsers,
			ActiveUsers:  totalUsers - blocked,
			BlockedUsers: blocked,
		},
		Requests: model.RequestCounts{
			PendingOccupiedRequests: pendingOcc,
			PendingLeavingRequests:  pendingLeav,
		},
	}, nil
}

// PendingRequests lists slots waiting on an administrator. An empty kind
// returns both kinds.
func (s *slotService) PendingRequests(ctx context.Context, kind lifecycle.RequestKind) ([]*model.ParkingSlot, error) {
	if kind != "" && !kind.Valid() {
		return nil, apperrors.InvalidInput(fmt.Sprintf("Unknown request type %q", kind))
	}
	occupied := kind == "" || kind == lifecycle.RequestOccupied
	leaving := kind == "" || kind == lifecycle.RequestLeaving

	docs, err := s.repo.FindPendingRequests(ctx, occupied, leaving)
	if err != nil {
		s.log.Error("Failed to list pending requests", "kind", kind, "error", err)
		return nil, apperrors.Internal("Failed to retrieve pending requests", err)
	}
	return docs, nil
}

// Decide approves or rejects the pending request on a slot. Approving a
// leaving request archives the session and frees the slot in one
// transaction; if the archive cannot be written the slot stays leaving.
func (s *slotService) Decide(ctx context.Context, adminID, slotID string, kind lifecycle.RequestKind, outcome lifecycle.Outcome) (*DecisionResult, error) {
	if !kind.Valid() {
		return nil, apperrors.InvalidInput(fmt.Sprintf("Unknown request type %q", kind))
	}

	now := s.clock.Now()
	doc, err := s.find(ctx, slotID)
	if err != nil {
		return nil, err
	}
	slot, _, expired, err := s.load(ctx, doc, now)
	if err != nil {
		return nil, err
	}
	if expired {
		return nil, expiredError(slot.ID)
	}

	decision, err := s.engine.Decide(slot.State, kind, outcome, now)
	if err != nil {
		return nil, lifecycleError(slot.ID, err)
	}
	holder, _ := lifecycle.HolderOf(slot.State)
	result := &DecisionResult{}

	if occupied, ok := decision.Next.(lifecycle.Occupied); ok {
		payload, image, err := s.render(lifecycle.OccupiedPayload(slot, occupied, s.holderIdentity(ctx, holder), adminID, now))
		if err != nil {
			return nil, err
		}
		occupied.OccupiedQR = payload
		decision.Next = occupied
		result.QRCode = image
	}

	if decision.Archive != nil {
		err = s.repo.ExecuteTransaction(ctx, func(txCtx context.Context) error {
			record, err := s.history.Archive(txCtx, slot.ID, *decision.Archive, now, adminID)
			if err != nil {
				return err
			}
			stored, err := s.apply(txCtx, slot, decision.Next, now)
			if err != nil {
				return err
			}
			result.Completed = record
			result.Slot = stored
			return nil
		})
		if err != nil {
			if !apperrors.IsAppError(err) {
				s.log.Error("Completion transaction failed", "slot_id", slot.ID, "error", err)
				err = apperrors.ArchivalFailed("Failed to complete parking session", err)
			}
			return nil, err
		}
	} else {
		result.Slot, err = s.apply(ctx, slot, decision.Next, now)
		if err != nil {
			return nil, err
		}
	}

	event := transition(decisionEvent(kind, outcome), slot.State, result.Slot, holder, adminID)
	if result.Completed != nil {
		event.Cost = result.Completed.Cost
	}
	s.log.Info("Request decided",
		"slot_id", slot.ID,
		"kind", kind,
		"outcome", outcome,
		"admin_id", adminID,
		"status", result.Slot.Status,
	)
	s.publish(ctx, event)
	return result, nil
}

func decisionEvent(kind lifecycle.RequestKind, outcome lifecycle.Outcome) events.Type {
	switch {
	case kind == lifecycle.RequestLeaving:
		return events.SessionCompleted
	case outcome == lifecycle.Approve:
		return events.OccupiedApproved
	}
	return events.OccupiedRejected
}

// holderIdentity looks up the holder for the occupied QR payload. A missing
// profile only thins the payload.
func (s *slotService) holderIdentity(ctx context.Context, holder lifecycle.Holder) lifecycle.Identity {
	user, err := s.users.FindByID(ctx, holder.UserID)
	if err != nil {
		if !errors.Is(err, userserrors.ErrNotFound) {
			s.log.Warn("Failed to load slot holder", "user_id", holder.UserID, "error", err)
		}
		return lifecycle.Identity{ID: holder.UserID, VehicleNumber: holder.VehicleNumber}
	}
	return identityOf(user)
}

func (s *slotService) MarkPayment(ctx context.Context, adminID, slotID string) (*model.ParkingSlot, error) {
	now := s.clock.Now()
	doc, err := s.find(ctx, slotID)
	if err != nil {
		return nil, err
	}
	slot, _, expired, err := s.load(ctx, doc, now)
	if err != nil {
		return nil, err
	}
	if expired {
		return nil, expiredError(slot.ID)
	}

	next, err := s.engine.Pay(slot.State, now)
	if err != nil {
		if errors.Is(err, lifecycle.ErrNoPendingPayment) {
			err = lifecycle.ErrNoPendingRequest
		}
		return nil, lifecycleError(slot.ID, err)
	}
	stored, err := s.apply(ctx, slot, next, now)
	if err != nil {
		return nil, err
	}

	s.log.Info("Payment marked by admin", "slot_id", stored.ID, "admin_id", adminID, "cost", next.Cost)
	s.publish(ctx, transition(events.PaymentReceived, slot.State, stored, next.Holder, adminID))
	return stored, nil
}

// Release forces the slot back to available whatever it holds. Releasing an
// available slot writes nothing.
func (s *slotService) Release(ctx context.Context, adminID, slotID string) (*model.ParkingSlot, error) {
	doc, err := s.find(ctx, slotID)
	if err != nil {
		return nil, err
	}
	return s.releaseDoc(ctx, adminID, doc)
}

// releaseDoc frees doc. A lapsed reservation is expired rather than
// released. A document that no longer decodes is reset as stored.
func (s *slotService) releaseDoc(ctx context.Context, adminID string, doc *model.ParkingSlot) (*model.ParkingSlot, error) {
	now := s.clock.Now()
	slot, err := lifecycle.Decode(doc)
	if err != nil {
		return s.resetCorrupt(ctx, adminID, doc, err, now)
	}
	slot, doc, _, err = s.expire(ctx, slot, doc, now)
	if err != nil {
		return nil, err
	}
	return s.release(ctx, adminID, slot, doc, now)
}

func (s *slotService) release(ctx context.Context, adminID string, slot *lifecycle.Slot, doc *model.ParkingSlot, now time.Time) (*model.ParkingSlot, error) {
	if _, ok := slot.State.(lifecycle.Available); ok {
		return doc, nil
	}

	holder, _ := lifecycle.HolderOf(slot.State)
	stored, err := s.apply(ctx, slot, s.engine.Release(slot.State), now)
	if err != nil {
		return nil, err
	}

	s.log.Info("Slot released",
		"slot_id", stored.ID,
		"from", slot.State.Status(),
		"user_id", holder.UserID,
		"admin_id", adminID,
	)
	s.publish(ctx, transition(events.SlotReleased, slot.State, stored, holder, adminID))
	return stored, nil
}

// resetCorrupt clears a slot whose stored fields do not form a valid state.
// The write is guarded by the status and version as read.
func (s *slotService) resetCorrupt(ctx context.Context, adminID string, doc *model.ParkingSlot, cause error, now time.Time) (*model.ParkingSlot, error) {
	s.log.Warn("Resetting inconsistent parking slot",
		"slot_id", doc.ID,
		"status", doc.Status,
		"admin_id", adminID,
		"error", cause,
	)

	blank := &lifecycle.Slot{ID: doc.ID, Floor: doc.Floor, QRCode: doc.QRCode, Version: doc.Version}
	stored, err := s.repo.ConditionalUpdate(ctx, doc.ID, doc.Status, doc.Version, lifecycle.Encode(blank, lifecycle.Available{}, now))
	if err != nil {
		return nil, s.storeError(doc.ID, err)
	}

	s.publish(ctx, events.LifecycleEvent{
		Type:          events.SlotReleased,
		SlotID:        stored.ID,
		From:          doc.Status,
		To:            stored.Status,
		UserID:        deref(doc.BookedBy),
		ActorID:       adminID,
		VehicleNumber: deref(doc.VehicleNumber),
		Version:       stored.Version,
		OccurredAt:    stored.UpdatedAt,
	})
	return stored, nil
}

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

// SetStatus toggles a slot between available and maintenance. Slots with a
// booking must be released first.
func (s *slotService) SetStatus(ctx context.Context, adminID, slotID string, update *model.SlotStatusUpdate) (*model.ParkingSlot, error) {
	if err := s.validator.ValidateStatusUpdate(update); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			return nil, apperrors.Validation("Invalid status update", verrs.Details())
		}
		return nil, apperrors.InvalidInput(err.Error())
	}

	now := s.clock.Now()
	doc, err := s.find(ctx, slotID)
	if err != nil {
		return nil, err
	}
	slot, doc, _, err := s.load(ctx, doc, now)
	if err != nil {
		return nil, err
	}
	if slot.State.Status() == update.Status {
		return doc, nil
	}

	switch update.Status {
	case model.SlotMaintenance:
		next, err := s.engine.SetMaintenance(slot.State)
		if err != nil {
			return nil, withSlot(apperrors.Conflict("Only available slots can be put under maintenance"), slot.ID)
		}
		stored, err := s.apply(ctx, slot, next, now)
		if err != nil {
			return nil, err
		}
		s.log.Info("Slot under maintenance", "slot_id", stored.ID, "admin_id", adminID)
		s.publish(ctx, transition(events.SlotMaintenance, slot.State, stored, lifecycle.Holder{}, adminID))
		return stored, nil

	default:
		if _, ok := slot.State.(lifecycle.Maintenance); !ok {
			return nil, withSlot(apperrors.Conflict("Slot has an active booking, release it instead"), slot.ID)
		}
		return s.release(ctx, adminID, slot, doc, now)
	}
}

func (s *slotService) ResetPendingRequests(ctx context.Context, adminID string) (int64, error) {
	now := s.clock.Now()
	n, err := s.repo.ResetPendingOccupiedRequests(ctx, now)
	if err != nil {
		s.log.Error("Failed to reset pending requests", "admin_id", adminID, "error", err)
		return 0, apperrors.Internal("Failed to reset pending requests", err)
	}

	s.log.Info("Pending occupied requests reset", "count", n, "admin_id", adminID)
	s.publish(ctx, events.LifecycleEvent{
		Type:       events.PendingRequestsReset,
		SlotID:     events.AllSlots,
		ActorID:    adminID,
		Affected:   n,
		OccurredAt: now,
	})
	return n, nil
}

// SlotQRCode renders the static code printed on the physical slot.
func (s *slotService) SlotQRCode(ctx context.Context, slotID string) (*SessionQR, error) {
	doc, err := s.find(ctx, slotID)
	if err != nil {
		return nil, err
	}
	payload := doc.QRCode
	if payload == "" {
		payload = lifecycle.StaticPayload(doc.ID)
	}
	image, err := s.renderer.Render(payload)
	if err != nil {
		s.log.Error("Failed to render slot QR code", "slot_id", doc.ID, "error", err)
		return nil, apperrors.Internal("Failed to generate QR code", err)
	}
	return &SessionQR{Slot: doc, QRCode: image}, nil
}

func (s *slotService) ReleaseHeldBy(ctx context.Context, adminID, userID string) error {
	doc, err := s.repo.FindActiveByUser(ctx, userID)
	if err != nil {
		if errors.Is(err, slotserrors.ErrNotFound) {
			return nil
		}
		s.log.Error("Failed to find user's slot", "user_id", userID, "error", err)
		return apperrors.Internal("Failed to retrieve booking", err)
	}
	_, err = s.releaseDoc(ctx, adminID, doc)
	return err
}

func (s *slotService) ExpireStale(ctx context.Context) (int, error) {
	now := s.clock.Now()
	docs, err := s.repo.FindReservedBefore(ctx, now.Add(-s.engine.Window()))
	if err != nil {
		return 0, apperrors.Internal("Failed to find stale reservations", err)
	}

	expired := 0
	for _, doc := range docs {
		if err := ctx.Err(); err != nil {
			return expired, err
		}
		_, _, ok, err := s.load(ctx, doc, now)
		if err != nil {
			s.log.Warn("Stale reservation not reset", "slot_id", doc.ID, "error", err)
			continue
		}
		if ok {
			expired++
		}
	}
	return expired, nil
}
