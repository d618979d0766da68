package lifecycle

import (
	"time"

	"qrparking/pkg/model"
)

const millisPerHour = int64(time.Hour / time.Millisecond)

// Engine computes slot transitions. It holds no state of its own and never
// reads the clock; callers pass the instant the action happens at.
type Engine struct {
	window       time.Duration
	pricePerHour int64
}

func NewEngine(window time.Duration, pricePerHour int64) *Engine {
	return &Engine{
		window:       window,
		pricePerHour: pricePerHour,
	}
}

func (e *Engine) Window() time.Duration {
	return e.window
}

func (e *Engine) PricePerHour() int64 {
	return e.pricePerHour
}

// Expired reports whether st is a reservation whose window has elapsed at now.
// The window end itself is still valid. A reservation with a pending occupied
// request is waiting on an administrator and deliberately does not expire,
// even though the user may already be past the window; administrators clear
// stuck requests through the bulk reset instead.
func (e *Engine) Expired(st State, now time.Time) bool {
	r, ok := st.(Reserved)
	if !ok || r.OccupiedRequest == model.RequestPending {
		return false
	}
	return now.After(r.ReservationTime.Add(e.window))
}

func (e *Engine) Reserve(st State, holder Holder, now time.Time) (Reserved, error) {
	if _, ok := st.(Available); !ok {
		return Reserved{}, ErrSlotNotAvailable
	}
	return Reserved{
		Holder:          holder,
		ReservationTime: now,
		ArrivalTime:     now.Add(e.window),
	}, nil
}

func (e *Engine) RequestOccupied(st State, now time.Time) (Reserved, error) {
	r, ok := st.(Reserved)
	if !ok {
		return Reserved{}, ErrNoReservation
	}
	if r.OccupiedRequest == model.RequestPending {
		return Reserved{}, ErrRequestPending
	}
	if e.Expired(r, now) {
		return Reserved{}, ErrReservationExpired
	}
	r.OccupiedRequest = model.RequestPending
	return r, nil
}

func (e *Engine) ApproveOccupied(st State, now time.Time) (Occupied, error) {
	r, ok := st.(Reserved)
	if !ok || r.OccupiedRequest != model.RequestPending {
		return Occupied{}, ErrNoPendingRequest
	}
	return Occupied{Session: Session{
		Holder:          r.Holder,
		ReservationTime: r.ReservationTime,
		ArrivalTime:     r.ArrivalTime,
		ParkedTime:      now,
		ReservationQR:   r.ReservationQR,
	}}, nil
}

func (e *Engine) RejectOccupied(st State) (Reserved, error) {
	r, ok := st.(Reserved)
	if !ok || r.OccupiedRequest != model.RequestPending {
		return Reserved{}, ErrNoPendingRequest
	}
	r.OccupiedRequest = model.RequestRejected
	return r, nil
}

// RequestLeaving freezes the session cost at now.
func (e *Engine) RequestLeaving(st State, now time.Time) (Leaving, error) {
	o, ok := st.(Occupied)
	if !ok {
		if _, leaving := st.(Leaving); leaving {
			return Leaving{}, ErrRequestPending
		}
		return Leaving{}, ErrNoActiveParking
	}
	return Leaving{
		Session:            o.Session,
		LeavingRequestTime: now,
		Cost:               e.Cost(o.ParkedTime, now),
		Payment:            model.PaymentPending,
	}, nil
}

func (e *Engine) Pay(st State, now time.Time) (Leaving, error) {
	l, ok := st.(Leaving)
	if !ok {
		return Leaving{}, ErrNoPendingPayment
	}
	if l.Paid() {
		return Leaving{}, ErrAlreadyPaid
	}
	l.Payment = model.PaymentPaid
	l.PaymentTime = now
	return l, nil
}

// Complete validates that st is a paid leaving request ready to be archived.
func (e *Engine) Complete(st State) (Leaving, error) {
	l, ok := st.(Leaving)
	if !ok {
		return Leaving{}, ErrNoPendingRequest
	}
	if !l.Paid() {
		return Leaving{}, ErrPaymentNotComplete
	}
	return l, nil
}

func (e *Engine) Cancel(st State) (Available, error) {
	switch st.(type) {
	case Reserved:
		return Available{}, nil
	case Available, Maintenance:
		return Available{}, ErrNoReservation
	}
	return Available{}, ErrNotCancellable
}

// Release forces any state back to Available.
func (e *Engine) Release(State) Available {
	return Available{}
}

func (e *Engine) SetMaintenance(st State) (Maintenance, error) {
	if _, ok := st.(Available); !ok {
		return Maintenance{}, ErrSlotNotAvailable
	}
	return Maintenance{}, nil
}

// Cost is ceil(elapsedHours * pricePerHour) with elapsed measured in
// milliseconds from parked to leavingAt.
func (e *Engine) Cost(parked, leavingAt time.Time) int64 {
	elapsed := leavingAt.Sub(parked).Milliseconds()
	if elapsed <= 0 {
		return 0
	}
	scaled := elapsed * e.pricePerHour
	cost := scaled / millisPerHour
	if scaled%millisPerHour != 0 {
		cost++
	}
	return cost
}

// DurationBetween splits the elapsed time into whole hours, the remaining
// whole minutes and the total whole minutes.
func DurationBetween(from, to time.Time) model.Duration {
	elapsed := to.Sub(from)
	if elapsed < 0 {
		elapsed = 0
	}
	total := int64(elapsed / time.Minute)
	return model.Duration{
		Hours:        int64(elapsed / time.Hour),
		Minutes:      total % 60,
		TotalMinutes: total,
	}
}
