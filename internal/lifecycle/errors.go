package lifecycle

import "errors"

var (
	ErrCorruptSlot = errors.New("slot document violates lifecycle invariants")

	ErrSlotNotAvailable   = errors.New("slot is not available")
	ErrNoReservation      = errors.New("no active reservation found")
	ErrNoActiveParking    = errors.New("no active parking found")
	ErrNoPendingPayment   = errors.New("no pending payment found")
	ErrNotCancellable     = errors.New("only reservations can be cancelled")
	ErrRequestPending     = errors.New("a request of this kind is already pending")
	ErrNoPendingRequest   = errors.New("no pending request of this kind")
	ErrLeavingNotRejected = errors.New("leaving requests cannot be rejected")
	ErrAlreadyPaid        = errors.New("payment already marked as paid")
	ErrPaymentNotComplete = errors.New("payment not completed")
	ErrReservationExpired = errors.New("reservation has expired")
	ErrUnknownRequestKind = errors.New("unknown request kind")
)
