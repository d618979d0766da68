package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"qrparking/internal/events"
	historyservice "qrparking/internal/history/service"
	"qrparking/internal/lifecycle"
	apperrors "qrparking/pkg/errors"
	"qrparking/pkg/model"
)

func assertCode(t *testing.T, err error, code string) {
	t.Helper()
	if !apperrors.HasCode(err, code) {
		t.Fatalf("expected %s, got %v", code, err)
	}
}

func assertIdle(t *testing.T, doc *model.ParkingSlot) {
	t.Helper()
	if doc.BookedBy != nil || doc.VehicleNumber != nil {
		t.Errorf("idle slot %s still carries a holder: booked_by=%v vehicle=%v", doc.ID, doc.BookedBy, doc.VehicleNumber)
	}
	if doc.ReservationTime != nil || doc.ParkedTime != nil || doc.PaymentStatus != nil || doc.Cost != 0 {
		t.Errorf("idle slot %s kept session fields: %+v", doc.ID, doc)
	}
}

// ────────────────────────────────────────────────
// Reserve
// ────────────────────────────────────────────────

func TestReserve_Success(t *testing.T) {
	f := newFixture(t)

	res, err := f.svc.Reserve(context.Background(), "user-1", &model.ReserveRequest{SlotID: "a-1", VehicleNumber: "ka 01 ab-1234"})
	if err != nil {
		t.Fatalf("Reserve() error = %v", err)
	}

	slot := res.Slot
	if slot.ID != "A-01" || slot.Status != model.SlotReserved {
		t.Fatalf("unexpected slot %s in %s", slot.ID, slot.Status)
	}
	if *slot.BookedBy != "user-1" || *slot.VehicleNumber != "KA01AB1234" {
		t.Errorf("holder = %v/%v", *slot.BookedBy, *slot.VehicleNumber)
	}
	if !slot.ReservationTime.Equal(startTime) || !slot.ArrivalTime.Equal(startTime.Add(time.Hour)) {
		t.Errorf("reservation window = %v..%v", slot.ReservationTime, slot.ArrivalTime)
	}
	if res.QRCode == "" {
		t.Error("expected rendered QR code")
	}

	var payload model.QRPayload
	if err := json.Unmarshal([]byte(*slot.ReservationQRCode), &payload); err != nil {
		t.Fatalf("stored payload is not JSON: %v", err)
	}
	if payload.Type != model.QRReservation || payload.User.Name != "Asha" || payload.VehicleNumber != "KA01AB1234" {
		t.Errorf("unexpected payload %+v", payload)
	}
	if slot.Version != 1 {
		t.Errorf("version = %d, want 1", slot.Version)
	}
	if got := f.events.types(); len(got) != 1 || got[0] != events.SlotReserved {
		t.Errorf("events = %v", got)
	}
}

func TestReserve_Rejections(t *testing.T) {
	tests := []struct {
		name     string
		userID   string
		req      model.ReserveRequest
		setup    func(t *testing.T, f *fixture)
		wantCode string
	}{
		{
			name:     "malformed slot id",
			userID:   "user-1",
			req:      model.ReserveRequest{SlotID: "garage", VehicleNumber: "KA01AB1234"},
			wantCode: apperrors.CodeValidation,
		},
		{
			name:     "unknown slot",
			userID:   "user-1",
			req:      model.ReserveRequest{SlotID: "Z-99", VehicleNumber: "KA01AB1234"},
			wantCode: apperrors.CodeNotFound,
		},
		{
			name:     "blocked user",
			userID:   "user-blocked",
			req:      model.ReserveRequest{SlotID: "A-01", VehicleNumber: "KA01AB1234"},
			wantCode: apperrors.CodeForbidden,
		},
		{
			name:     "unknown user",
			userID:   "ghost",
			req:      model.ReserveRequest{SlotID: "A-01", VehicleNumber: "KA01AB1234"},
			wantCode: apperrors.CodeNotFound,
		},
		{
			name:   "user already holds a slot",
			userID: "user-1",
			req:    model.ReserveRequest{SlotID: "A-02", VehicleNumber: "KA01AB1234"},
			setup: func(t *testing.T, f *fixture) {
				f.reserve(t, "user-1", "A-01")
			},
			wantCode: apperrors.CodeConflict,
		},
		{
			name:   "slot taken by someone else",
			userID: "user-2",
			req:    model.ReserveRequest{SlotID: "A-01", VehicleNumber: "MH12DE1433"},
			setup: func(t *testing.T, f *fixture) {
				f.reserve(t, "user-1", "A-01")
			},
			wantCode: apperrors.CodeConflict,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			if tt.setup != nil {
				tt.setup(t, f)
			}
			req := tt.req
			_, err := f.svc.Reserve(context.Background(), tt.userID, &req)
			assertCode(t, err, tt.wantCode)
		})
	}
}

func TestReserve_ConcurrentSameSlotHasOneWinner(t *testing.T) {
	for round := 0; round < 50; round++ {
		f := newFixture(t)

		var wg sync.WaitGroup
		start := make(chan struct{})
		errs := make([]error, 2)
		for i, userID := range []string{"user-1", "user-2"} {
			wg.Add(1)
			go func(i int, userID string) {
				defer wg.Done()
				<-start
				_, errs[i] = f.svc.Reserve(context.Background(), userID, &model.ReserveRequest{SlotID: "A-01", VehicleNumber: "KA01AB1234"})
			}(i, userID)
		}
		close(start)
		wg.Wait()

		successes := 0
		for _, err := range errs {
			if err == nil {
				successes++
				continue
			}
			assertCode(t, err, apperrors.CodeConflict)
		}
		if successes != 1 {
			t.Fatalf("round %d: %d reservations succeeded, want exactly 1", round, successes)
		}
		if doc := f.store.get("A-01"); doc.Status != model.SlotReserved || doc.Version != 1 {
			t.Fatalf("round %d: slot in %s at version %d", round, doc.Status, doc.Version)
		}
	}
}

func TestReserve_ConcurrentSameUserHoldsOneSlot(t *testing.T) {
	for round := 0; round < 50; round++ {
		f := newFixture(t)

		var wg sync.WaitGroup
		start := make(chan struct{})
		errs := make([]error, 2)
		for i, slotID := range []string{"A-01", "A-02"} {
			wg.Add(1)
			go func(i int, slotID string) {
				defer wg.Done()
				<-start
				_, errs[i] = f.svc.Reserve(context.Background(), "user-1", &model.ReserveRequest{SlotID: slotID, VehicleNumber: "KA01AB1234"})
			}(i, slotID)
		}
		close(start)
		wg.Wait()

		held := 0
		for _, id := range []string{"A-01", "A-02"} {
			if f.store.get(id).Status == model.SlotReserved {
				held++
			}
		}
		if held != 1 {
			t.Fatalf("round %d: user holds %d slots (errs=%v)", round, held, errs)
		}
	}
}

// ────────────────────────────────────────────────
// Lazy expiry
// ────────────────────────────────────────────────

func TestCurrentBooking_Expiry(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.reserve(t, "user-1", "A-01")

	f.clock.Advance(59 * time.Minute)
	booking, err := f.svc.CurrentBooking(ctx, "user-1")
	if err != nil {
		t.Fatalf("CurrentBooking() error = %v", err)
	}
	if booking.Expired || booking.Slot == nil || booking.Slot.Status != model.SlotReserved {
		t.Fatalf("at T+59m: %+v", booking)
	}

	f.clock.Advance(2 * time.Minute)
	booking, err = f.svc.CurrentBooking(ctx, "user-1")
	if err != nil {
		t.Fatalf("CurrentBooking() error = %v", err)
	}
	if !booking.Expired || booking.Slot != nil {
		t.Fatalf("at T+61m: %+v", booking)
	}

	doc := f.store.get("A-01")
	if doc.Status != model.SlotAvailable {
		t.Errorf("status = %s, want available", doc.Status)
	}
	assertIdle(t, doc)

	booking, _ = f.svc.CurrentBooking(ctx, "user-1")
	if booking.Expired {
		t.Error("expiry reported twice")
	}
}

func TestRequestOccupied_ExpiryBoundary(t *testing.T) {
	tests := []struct {
		name    string
		elapsed time.Duration
		expired bool
	}{
		{"inside window", 59 * time.Minute, false},
		{"window end is inclusive", time.Hour, false},
		{"one millisecond late", time.Hour + time.Millisecond, true},
		{"past window", 61 * time.Minute, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.reserve(t, "user-1", "A-01")
			f.clock.Advance(tt.elapsed)

			doc, err := f.svc.RequestOccupied(context.Background(), "user-1")
			if !tt.expired {
				if err != nil {
					t.Fatalf("RequestOccupied() error = %v", err)
				}
				if *doc.OccupiedRequestStatus != model.RequestPending {
					t.Errorf("occupied request = %v", *doc.OccupiedRequestStatus)
				}
				return
			}

			assertCode(t, err, apperrors.CodeExpired)
			if apperrors.AsAppError(err).Details["expired"] != true {
				t.Error("expired detail missing")
			}
			assertIdle(t, f.store.get("A-01"))
		})
	}
}

func TestListForUser_ExpiresOwnStaleReservation(t *testing.T) {
	f := newFixture(t)
	f.reserve(t, "user-1", "A-01")
	f.clock.Advance(61 * time.Minute)

	slots, err := f.svc.ListForUser(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("ListForUser() error = %v", err)
	}
	if len(slots) != 3 {
		t.Fatalf("got %d slots, want 3", len(slots))
	}
	for _, s := range slots {
		if s.Status != model.SlotAvailable {
			t.Errorf("slot %s is %s", s.ID, s.Status)
		}
	}
}

func TestExpireStale_SkipsPendingRequests(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.reserve(t, "user-1", "A-01")
	f.reserve(t, "user-2", "A-02")
	if _, err := f.svc.RequestOccupied(ctx, "user-2"); err != nil {
		t.Fatalf("RequestOccupied() error = %v", err)
	}

	f.clock.Advance(2 * time.Hour)
	n, err := f.svc.ExpireStale(ctx)
	if err != nil {
		t.Fatalf("ExpireStale() error = %v", err)
	}
	if n != 1 {
		t.Errorf("expired %d, want 1", n)
	}
	if f.store.get("A-01").Status != model.SlotAvailable {
		t.Error("stale reservation kept")
	}
	if f.store.get("A-02").Status != model.SlotReserved {
		t.Error("reservation awaiting approval was expired")
	}
}

// ────────────────────────────────────────────────
// Full session and completion
// ────────────────────────────────────────────────

func TestFullSession_ArchivesExactlyOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	f.reserve(t, "user-1", "A-01")
	f.clock.Advance(20 * time.Minute)
	if _, err := f.svc.RequestOccupied(ctx, "user-1"); err != nil {
		t.Fatalf("RequestOccupied() error = %v", err)
	}
	parkedAt := f.clock.Now()
	approved, err := f.svc.Decide(ctx, "admin-1", "A-01", lifecycle.RequestOccupied, lifecycle.Approve)
	if err != nil {
		t.Fatalf("approve occupied error = %v", err)
	}
	if approved.Slot.Status != model.SlotOccupied || approved.QRCode == "" || approved.Slot.OccupiedQRCode == nil {
		t.Fatalf("unexpected occupied result %+v", approved)
	}

	f.clock.Advance(150 * time.Minute)
	quote, err := f.svc.RequestLeaving(ctx, "user-1")
	if err != nil {
		t.Fatalf("RequestLeaving() error = %v", err)
	}
	if quote.Cost != 125 {
		t.Errorf("cost = %d, want 125", quote.Cost)
	}
	if quote.Duration.Hours != 2 || quote.Duration.Minutes != 30 || quote.Duration.TotalMinutes != 150 {
		t.Errorf("duration = %+v", quote.Duration)
	}

	if _, err := f.svc.Pay(ctx, "user-1"); err != nil {
		t.Fatalf("Pay() error = %v", err)
	}
	f.clock.Advance(10 * time.Minute)

	done, err := f.svc.Decide(ctx, "admin-1", "A-01", lifecycle.RequestLeaving, lifecycle.Approve)
	if err != nil {
		t.Fatalf("approve leaving error = %v", err)
	}
	if done.Slot.Status != model.SlotAvailable {
		t.Errorf("status = %s, want available", done.Slot.Status)
	}
	assertIdle(t, done.Slot)

	record := done.Completed
	if record == nil {
		t.Fatal("expected completed parking record")
	}
	if record.Cost != 125 || record.Duration.TotalMinutes != 160 || record.ApprovedBy != "admin-1" {
		t.Errorf("unexpected record %+v", record)
	}
	if record.SessionKey != historyservice.SessionKey("A-01", parkedAt) {
		t.Errorf("session key = %s", record.SessionKey)
	}

	_, err = f.svc.Decide(ctx, "admin-1", "A-01", lifecycle.RequestLeaving, lifecycle.Approve)
	assertCode(t, err, apperrors.CodeInvalidState)
	if n, _ := f.history.Count(ctx, model.CompletedParkingFilter{}); n != 1 {
		t.Errorf("archived %d records, want 1", n)
	}

	want := []events.Type{
		events.SlotReserved, events.OccupiedRequested, events.OccupiedApproved,
		events.LeavingRequested, events.PaymentReceived, events.SessionCompleted,
	}
	got := f.events.types()
	if len(got) != len(want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("event %d = %s, want %s", i, got[i], want[i])
		}
	}
}

// leavingFixture returns a fixture with user-1 leaving A-01, paid or not.
func leavingFixture(t *testing.T, paid bool) *fixture {
	t.Helper()
	f := newFixture(t)
	f.park(t, "user-1", "A-01")
	f.clock.Advance(time.Hour)
	if _, err := f.svc.RequestLeaving(context.Background(), "user-1"); err != nil {
		t.Fatalf("RequestLeaving() error = %v", err)
	}
	if paid {
		if _, err := f.svc.MarkPayment(context.Background(), "admin-1", "A-01"); err != nil {
			t.Fatalf("MarkPayment() error = %v", err)
		}
	}
	return f
}

func TestApproveLeaving_RequiresPayment(t *testing.T) {
	f := leavingFixture(t, false)

	_, err := f.svc.Decide(context.Background(), "admin-1", "A-01", lifecycle.RequestLeaving, lifecycle.Approve)
	assertCode(t, err, apperrors.CodePaymentIncomplete)
	if f.store.get("A-01").Status != model.SlotLeaving {
		t.Error("slot left leaving without payment")
	}
}

func TestApproveLeaving_ArchivalFailureKeepsSession(t *testing.T) {
	f := leavingFixture(t, true)
	f.history.appendErr = errors.New("disk full")
	before := f.store.get("A-01")

	_, err := f.svc.Decide(context.Background(), "admin-1", "A-01", lifecycle.RequestLeaving, lifecycle.Approve)
	assertCode(t, err, apperrors.CodeArchivalFailed)

	after := f.store.get("A-01")
	if after.Status != model.SlotLeaving || after.Version != before.Version || *after.PaymentStatus != model.PaymentPaid {
		t.Errorf("slot changed after failed archive: %+v", after)
	}

	f.history.appendErr = nil
	if _, err := f.svc.Decide(context.Background(), "admin-1", "A-01", lifecycle.RequestLeaving, lifecycle.Approve); err != nil {
		t.Fatalf("retry after archive recovery error = %v", err)
	}
}

func TestApproveLeaving_AlreadyArchivedSession(t *testing.T) {
	f := leavingFixture(t, true)
	doc := f.store.get("A-01")
	f.history.records = append(f.history.records, &model.CompletedParking{
		SessionKey: historyservice.SessionKey("A-01", *doc.ParkedTime),
	})

	_, err := f.svc.Decide(context.Background(), "admin-1", "A-01", lifecycle.RequestLeaving, lifecycle.Approve)
	assertCode(t, err, apperrors.CodeConflict)
	if f.store.get("A-01").Status != model.SlotLeaving {
		t.Error("slot reset although archive was rejected")
	}
}

func TestDecide_Rejections(t *testing.T) {
	tests := []struct {
		name     string
		setup    func(t *testing.T) *fixture
		kind     lifecycle.RequestKind
		outcome  lifecycle.Outcome
		wantCode string
	}{
		{
			name:     "leaving cannot be rejected",
			setup:    func(t *testing.T) *fixture { return leavingFixture(t, true) },
			kind:     lifecycle.RequestLeaving,
			outcome:  lifecycle.Reject,
			wantCode: apperrors.CodeInvalidState,
		},
		{
			name: "approve occupied without request",
			setup: func(t *testing.T) *fixture {
				f := newFixture(t)
				f.reserve(t, "user-1", "A-01")
				return f
			},
			kind:     lifecycle.RequestOccupied,
			outcome:  lifecycle.Approve,
			wantCode: apperrors.CodeInvalidState,
		},
		{
			name:     "unknown kind",
			setup:    newFixture,
			kind:     "exit",
			outcome:  lifecycle.Approve,
			wantCode: apperrors.CodeInvalidInput,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := tt.setup(t)
			_, err := f.svc.Decide(context.Background(), "admin-1", "A-01", tt.kind, tt.outcome)
			assertCode(t, err, tt.wantCode)
		})
	}
}

func TestRejectOccupied_AllowsResubmit(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.reserve(t, "user-1", "A-01")
	if _, err := f.svc.RequestOccupied(ctx, "user-1"); err != nil {
		t.Fatalf("RequestOccupied() error = %v", err)
	}

	res, err := f.svc.Decide(ctx, "admin-1", "A-01", lifecycle.RequestOccupied, lifecycle.Reject)
	if err != nil {
		t.Fatalf("reject error = %v", err)
	}
	if res.Slot.Status != model.SlotReserved || *res.Slot.OccupiedRequestStatus != model.RequestRejected {
		t.Fatalf("unexpected slot after reject %+v", res.Slot)
	}

	if _, err := f.svc.RequestOccupied(ctx, "user-1"); err != nil {
		t.Fatalf("resubmit error = %v", err)
	}
	_, err = f.svc.RequestOccupied(ctx, "user-1")
	assertCode(t, err, apperrors.CodeConflict)
}

// ────────────────────────────────────────────────
// Payment, cancel, release and maintenance
// ────────────────────────────────────────────────

func TestPay_Twice(t *testing.T) {
	f := leavingFixture(t, false)
	ctx := context.Background()

	if _, err := f.svc.Pay(ctx, "user-1"); err != nil {
		t.Fatalf("Pay() error = %v", err)
	}
	_, err := f.svc.Pay(ctx, "user-1")
	assertCode(t, err, apperrors.CodeNotFound)

	_, err = f.svc.MarkPayment(ctx, "admin-1", "A-01")
	assertCode(t, err, apperrors.CodeInvalidState)
}

func TestCancel(t *testing.T) {
	ctx := context.Background()

	t.Run("reservation", func(t *testing.T) {
		f := newFixture(t)
		f.reserve(t, "user-1", "A-01")
		doc, err := f.svc.Cancel(ctx, "user-1")
		if err != nil {
			t.Fatalf("Cancel() error = %v", err)
		}
		assertIdle(t, doc)
	})

	t.Run("nothing held", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.Cancel(ctx, "user-1")
		assertCode(t, err, apperrors.CodeNotFound)
	})

	t.Run("parked car", func(t *testing.T) {
		f := newFixture(t)
		f.park(t, "user-1", "A-01")
		_, err := f.svc.Cancel(ctx, "user-1")
		assertCode(t, err, apperrors.CodeConflict)
	})
}

func TestRelease(t *testing.T) {
	ctx := context.Background()
	f := leavingFixture(t, false)

	doc, err := f.svc.Release(ctx, "admin-1", "A-01")
	if err != nil {
		t.Fatalf("Release() error = %v", err)
	}
	assertIdle(t, doc)
	version := doc.Version

	again, err := f.svc.Release(ctx, "admin-1", "A-01")
	if err != nil {
		t.Fatalf("second Release() error = %v", err)
	}
	if again.Version != version {
		t.Error("releasing an available slot wrote to the store")
	}
	if f.history.records != nil {
		t.Error("forced release archived a session")
	}

	_, err = f.svc.Release(ctx, "admin-1", "Z-99")
	assertCode(t, err, apperrors.CodeNotFound)
}

func TestSetStatus(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	doc, err := f.svc.SetStatus(ctx, "admin-1", "A-02", &model.SlotStatusUpdate{Status: model.SlotMaintenance})
	if err != nil || doc.Status != model.SlotMaintenance {
		t.Fatalf("SetStatus(maintenance) = %v, %v", doc, err)
	}

	_, err = f.svc.Reserve(ctx, "user-1", &model.ReserveRequest{SlotID: "A-02", VehicleNumber: "KA01AB1234"})
	assertCode(t, err, apperrors.CodeConflict)

	doc, err = f.svc.SetStatus(ctx, "admin-1", "A-02", &model.SlotStatusUpdate{Status: model.SlotAvailable})
	if err != nil || doc.Status != model.SlotAvailable {
		t.Fatalf("SetStatus(available) = %v, %v", doc, err)
	}

	f.reserve(t, "user-1", "A-01")
	_, err = f.svc.SetStatus(ctx, "admin-1", "A-01", &model.SlotStatusUpdate{Status: model.SlotMaintenance})
	assertCode(t, err, apperrors.CodeConflict)

	_, err = f.svc.SetStatus(ctx, "admin-1", "A-01", &model.SlotStatusUpdate{Status: model.SlotLeaving})
	assertCode(t, err, apperrors.CodeValidation)
}

func TestReleaseHeldBy(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	if err := f.svc.ReleaseHeldBy(ctx, "admin-1", "user-1"); err != nil {
		t.Fatalf("ReleaseHeldBy() with nothing held error = %v", err)
	}

	f.park(t, "user-1", "B-01")
	if err := f.svc.ReleaseHeldBy(ctx, "admin-1", "user-1"); err != nil {
		t.Fatalf("ReleaseHeldBy() error = %v", err)
	}
	assertIdle(t, f.store.get("B-01"))
}

// corruptHold stores a reserved slot that lost its vehicle number.
func corruptHold(f *fixture, slotID, userID string) {
	user := userID
	reservedAt := startTime.Add(-10 * time.Minute)
	f.store.put(&model.ParkingSlot{
		ID:              slotID,
		Status:          model.SlotReserved,
		Floor:           1,
		QRCode:          lifecycle.StaticPayload(slotID),
		BookedBy:        &user,
		ReservationTime: &reservedAt,
		Version:         3,
	})
}

func TestRelease_InconsistentDocument(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	corruptHold(f, "A-01", "user-1")

	_, err := f.svc.Reserve(ctx, "user-1", &model.ReserveRequest{SlotID: "A-02", VehicleNumber: "KA01AB1234"})
	assertCode(t, err, apperrors.CodeConflict)

	doc, err := f.svc.Release(ctx, "admin-1", "A-01")
	if err != nil {
		t.Fatalf("Release() error = %v", err)
	}
	if doc.Status != model.SlotAvailable || doc.Version != 4 {
		t.Errorf("Release() = status %s version %d, want available version 4", doc.Status, doc.Version)
	}
	assertIdle(t, f.store.get("A-01"))

	f.events.mu.Lock()
	last := f.events.events[len(f.events.events)-1]
	f.events.mu.Unlock()
	if last.Type != events.SlotReleased || last.UserID != "user-1" || last.From != model.SlotReserved {
		t.Errorf("release event = %+v", last)
	}

	f.reserve(t, "user-1", "A-02")
}

func TestReleaseHeldBy_InconsistentDocument(t *testing.T) {
	f := newFixture(t)
	corruptHold(f, "B-01", "user-2")

	if err := f.svc.ReleaseHeldBy(context.Background(), "admin-1", "user-2"); err != nil {
		t.Fatalf("ReleaseHeldBy() error = %v", err)
	}
	assertIdle(t, f.store.get("B-01"))
}

func TestAdminActions_ExpiredReservation(t *testing.T) {
	ctx := context.Background()
	lapse := time.Hour + time.Minute

	t.Run("maintenance after expiry", func(t *testing.T) {
		f := newFixture(t)
		f.reserve(t, "user-1", "A-01")
		f.clock.Advance(lapse)

		doc, err := f.svc.SetStatus(ctx, "admin-1", "A-01", &model.SlotStatusUpdate{Status: model.SlotMaintenance})
		if err != nil {
			t.Fatalf("SetStatus(maintenance) error = %v", err)
		}
		if doc.Status != model.SlotMaintenance {
			t.Errorf("status = %s, want maintenance", doc.Status)
		}
		assertIdle(t, doc)
		types := f.events.types()
		if types[len(types)-2] != events.SlotExpired || types[len(types)-1] != events.SlotMaintenance {
			t.Errorf("events = %v, want expiry then maintenance", types)
		}
	})

	t.Run("release reports expiry", func(t *testing.T) {
		f := newFixture(t)
		f.reserve(t, "user-1", "A-01")
		f.clock.Advance(lapse)

		doc, err := f.svc.Release(ctx, "admin-1", "A-01")
		if err != nil {
			t.Fatalf("Release() error = %v", err)
		}
		assertIdle(t, doc)
		for _, typ := range f.events.types() {
			if typ == events.SlotReleased {
				t.Errorf("events = %v, lapsed hold must be reported as expired", f.events.types())
			}
		}
	})

	t.Run("mark payment", func(t *testing.T) {
		f := newFixture(t)
		f.reserve(t, "user-1", "A-01")
		f.clock.Advance(lapse)

		_, err := f.svc.MarkPayment(ctx, "admin-1", "A-01")
		assertCode(t, err, apperrors.CodeExpired)
		assertIdle(t, f.store.get("A-01"))
	})

	t.Run("decide after rejection", func(t *testing.T) {
		f := newFixture(t)
		f.reserve(t, "user-1", "A-01")
		if _, err := f.svc.RequestOccupied(ctx, "user-1"); err != nil {
			t.Fatalf("RequestOccupied() error = %v", err)
		}
		if _, err := f.svc.Decide(ctx, "admin-1", "A-01", lifecycle.RequestOccupied, lifecycle.Reject); err != nil {
			t.Fatalf("reject error = %v", err)
		}
		f.clock.Advance(lapse)

		_, err := f.svc.Decide(ctx, "admin-1", "A-01", lifecycle.RequestOccupied, lifecycle.Approve)
		assertCode(t, err, apperrors.CodeExpired)
	})
}

// ────────────────────────────────────────────────
// Admin views
// ────────────────────────────────────────────────

func TestStatsAndPendingRequests(t *testing.T) {
	ctx := context.Background()
	f := leavingFixture(t, true)
	f.reserve(t, "user-2", "A-02")
	if _, err := f.svc.RequestOccupied(ctx, "user-2"); err != nil {
		t.Fatalf("RequestOccupied() error = %v", err)
	}

	stats, err := f.svc.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if stats.Parking.TotalSlots != 3 || stats.Parking.LeavingSlots != 1 || stats.Parking.ReservedSlots != 1 || stats.Parking.AvailableSlots != 1 {
		t.Errorf("parking counts = %+v", stats.Parking)
	}
	if stats.Users.TotalUsers != 3 || stats.Users.BlockedUsers != 1 || stats.Users.ActiveUsers != 2 {
		t.Errorf("user counts = %+v", stats.Users)
	}
	if stats.Requests.PendingOccupiedRequests != 1 || stats.Requests.PendingLeavingRequests != 1 {
		t.Errorf("request counts = %+v", stats.Requests)
	}

	occupied, err := f.svc.PendingRequests(ctx, lifecycle.RequestOccupied)
	if err != nil || len(occupied) != 1 || occupied[0].ID != "A-02" {
		t.Errorf("PendingRequests(occupied) = %v, %v", occupied, err)
	}
	all, err := f.svc.PendingRequests(ctx, "")
	if err != nil || len(all) != 2 {
		t.Errorf("PendingRequests(all) = %v, %v", all, err)
	}
	_, err = f.svc.PendingRequests(ctx, "exit")
	assertCode(t, err, apperrors.CodeInvalidInput)

	n, err := f.svc.ResetPendingRequests(ctx, "admin-1")
	if err != nil || n != 1 {
		t.Fatalf("ResetPendingRequests() = %d, %v", n, err)
	}
	if f.store.get("A-02").OccupiedRequestStatus != nil {
		t.Error("pending request not cleared")
	}
}

func TestSlotQRCode(t *testing.T) {
	f := newFixture(t)

	res, err := f.svc.SlotQRCode(context.Background(), "B-01")
	if err != nil {
		t.Fatalf("SlotQRCode() error = %v", err)
	}
	if res.QRCode == "" || f.renderer.rendered[0] != "parking_slot:B-01" {
		t.Errorf("rendered %v", f.renderer.rendered)
	}
}

func TestReserve_RenderFailureLeavesSlotAvailable(t *testing.T) {
	f := newFixture(t)
	f.renderer.err = errors.New("encoder broke")

	_, err := f.svc.Reserve(context.Background(), "user-1", &model.ReserveRequest{SlotID: "A-01", VehicleNumber: "KA01AB1234"})
	assertCode(t, err, apperrors.CodeInternal)
	if doc := f.store.get("A-01"); doc.Status != model.SlotAvailable || doc.Version != 0 {
		t.Errorf("slot touched after render failure: %+v", doc)
	}
}
