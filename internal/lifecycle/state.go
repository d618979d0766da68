package lifecycle

import (
	"fmt"
	"time"

	"qrparking/pkg/model"
)

// State is one of Available, Maintenance, Reserved, Occupied or Leaving.
// Each variant carries only the fields that are legal for its status.
type State interface {
	Status() model.SlotStatus
	isState()
}

type Holder struct {
	UserID        string
	VehicleNumber string
}

type Available struct{}

type Maintenance struct{}

type Reserved struct {
	Holder
	ReservationTime time.Time
	ArrivalTime     time.Time
	// OccupiedRequest is empty until the holder asks to be marked as parked.
	OccupiedRequest model.RequestStatus
	ReservationQR   string
}

// Session holds what a reservation accumulates once the car is parked.
type Session struct {
	Holder
	ReservationTime time.Time
	ArrivalTime     time.Time
	ParkedTime      time.Time
	ReservationQR   string
	OccupiedQR      string
}

type Occupied struct {
	Session
}

type Leaving struct {
	Session
	LeavingRequestTime time.Time
	Cost               int64
	Payment            model.PaymentStatus
	PaymentTime        time.Time
}

func (Available) Status() model.SlotStatus   { return model.SlotAvailable }
func (Maintenance) Status() model.SlotStatus { return model.SlotMaintenance }
func (Reserved) Status() model.SlotStatus    { return model.SlotReserved }
func (Occupied) Status() model.SlotStatus    { return model.SlotOccupied }
func (Leaving) Status() model.SlotStatus     { return model.SlotLeaving }

func (Available) isState()   {}
func (Maintenance) isState() {}
func (Reserved) isState()    {}
func (Occupied) isState()    {}
func (Leaving) isState()     {}

func (l Leaving) Paid() bool {
	return l.Payment == model.PaymentPaid
}

// Slot is a decoded parking slot: its identity plus the current State.
type Slot struct {
	ID        string
	Floor     int
	QRCode    string
	Version   int64
	UpdatedAt time.Time
	State     State
}

// HolderOf returns the holder of an active state.
func HolderOf(st State) (Holder, bool) {
	switch s := st.(type) {
	case Reserved:
		return s.Holder, true
	case Occupied:
		return s.Holder, true
	case Leaving:
		return s.Holder, true
	}
	return Holder{}, false
}

// Decode maps a stored document onto its State variant and rejects
// documents whose fields do not match their status.
func Decode(doc *model.ParkingSlot) (*Slot, error) {
	if doc == nil {
		return nil, fmt.Errorf("%w: nil document", ErrCorruptSlot)
	}

	slot := &Slot{
		ID:        doc.ID,
		Floor:     doc.Floor,
		QRCode:    doc.QRCode,
		Version:   doc.Version,
		UpdatedAt: doc.UpdatedAt,
	}

	switch doc.Status {
	case model.SlotAvailable, model.SlotMaintenance:
		if doc.BookedBy != nil || doc.VehicleNumber != nil {
			return nil, corrupt(doc, "idle slot carries a holder")
		}
		if doc.Status == model.SlotAvailable {
			slot.State = Available{}
		} else {
			slot.State = Maintenance{}
		}
		return slot, nil

	case model.SlotReserved:
		holder, err := decodeHolder(doc)
		if err != nil {
			return nil, err
		}
		if doc.ReservationTime == nil || doc.ArrivalTime == nil {
			return nil, corrupt(doc, "reservation timestamps missing")
		}
		var request model.RequestStatus
		if doc.OccupiedRequestStatus != nil {
			request = *doc.OccupiedRequestStatus
			if request != model.RequestPending && request != model.RequestRejected {
				return nil, corrupt(doc, "unexpected occupied request status "+string(request))
			}
		}
		slot.State = Reserved{
			Holder:          holder,
			ReservationTime: *doc.ReservationTime,
			ArrivalTime:     *doc.ArrivalTime,
			OccupiedRequest: request,
			ReservationQR:   deref(doc.ReservationQRCode),
		}
		return slot, nil

	case model.SlotOccupied:
		session, err := decodeSession(doc)
		if err != nil {
			return nil, err
		}
		slot.State = Occupied{Session: session}
		return slot, nil

	case model.SlotLeaving:
		session, err := decodeSession(doc)
		if err != nil {
			return nil, err
		}
		if doc.LeavingRequestTime == nil || doc.PaymentStatus == nil {
			return nil, corrupt(doc, "leaving request fields missing")
		}
		leaving := Leaving{
			Session:            session,
			LeavingRequestTime: *doc.LeavingRequestTime,
			Cost:               doc.Cost,
			Payment:            *doc.PaymentStatus,
		}
		if leaving.Paid() {
			if doc.PaymentTime == nil {
				return nil, corrupt(doc, "paid slot without payment time")
			}
			leaving.PaymentTime = *doc.PaymentTime
		}
		slot.State = leaving
		return slot, nil
	}

	return nil, corrupt(doc, "unknown status "+string(doc.Status))
}

// Encode renders next as the flat document stored for slot s.
func Encode(s *Slot, next State, now time.Time) *model.ParkingSlot {
	doc := &model.ParkingSlot{
		ID:        s.ID,
		Status:    next.Status(),
		Floor:     s.Floor,
		QRCode:    s.QRCode,
		Version:   s.Version,
		UpdatedAt: now,
	}

	switch st := next.(type) {
	case Reserved:
		encodeHolder(doc, st.Holder)
		doc.ReservationTime = timePtr(st.ReservationTime)
		doc.ArrivalTime = timePtr(st.ArrivalTime)
		if st.OccupiedRequest != "" {
			request := st.OccupiedRequest
			doc.OccupiedRequestStatus = &request
		}
		doc.ReservationQRCode = strPtr(st.ReservationQR)

	case Occupied:
		encodeSession(doc, st.Session)

	case Leaving:
		encodeSession(doc, st.Session)
		doc.LeavingRequestTime = timePtr(st.LeavingRequestTime)
		pending := model.RequestPending
		doc.LeavingRequestStatus = &pending
		doc.Cost = st.Cost
		payment := st.Payment
		doc.PaymentStatus = &payment
		if st.Paid() {
			doc.PaymentTime = timePtr(st.PaymentTime)
		}
	}

	return doc
}

func decodeHolder(doc *model.ParkingSlot) (Holder, error) {
	if doc.BookedBy == nil || *doc.BookedBy == "" || doc.VehicleNumber == nil || *doc.VehicleNumber == "" {
		return Holder{}, corrupt(doc, "active slot without holder")
	}
	return Holder{UserID: *doc.BookedBy, VehicleNumber: *doc.VehicleNumber}, nil
}

func decodeSession(doc *model.ParkingSlot) (Session, error) {
	holder, err := decodeHolder(doc)
	if err != nil {
		return Session{}, err
	}
	if doc.ReservationTime == nil || doc.ArrivalTime == nil || doc.ParkedTime == nil {
		return Session{}, corrupt(doc, "session timestamps missing")
	}
	return Session{
		Holder:          holder,
		ReservationTime: *doc.ReservationTime,
		ArrivalTime:     *doc.ArrivalTime,
		ParkedTime:      *doc.ParkedTime,
		ReservationQR:   deref(doc.ReservationQRCode),
		OccupiedQR:      deref(doc.OccupiedQRCode),
	}, nil
}

func encodeHolder(doc *model.ParkingSlot, h Holder) {
	doc.BookedBy = strPtr(h.UserID)
	doc.VehicleNumber = strPtr(h.VehicleNumber)
}

func encodeSession(doc *model.ParkingSlot, s Session) {
	encodeHolder(doc, s.Holder)
	doc.ReservationTime = timePtr(s.ReservationTime)
	doc.ArrivalTime = timePtr(s.ArrivalTime)
	doc.ParkedTime = timePtr(s.ParkedTime)
	approved := model.RequestApproved
	doc.OccupiedRequestStatus = &approved
	doc.ReservationQRCode = strPtr(s.ReservationQR)
	doc.OccupiedQRCode = strPtr(s.OccupiedQR)
}

func corrupt(doc *model.ParkingSlot, reason string) error {
	return fmt.Errorf("%w: slot %s (%s): %s", ErrCorruptSlot, doc.ID, doc.Status, reason)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func timePtr(t time.Time) *time.Time {
	return &t
}
