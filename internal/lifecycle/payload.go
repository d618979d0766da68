package lifecycle

import (
	"encoding/json"
	"fmt"
	"time"

	"qrparking/pkg/model"
)

// Identity is the user information embedded in session QR payloads.
type Identity struct {
	ID            string
	Name          string
	Email         string
	VehicleNumber string
}

func ReservationPayload(s *Slot, r Reserved, who Identity, now time.Time) model.QRPayload {
	p := basePayload(s, r.Holder, who, now)
	p.Type = model.QRReservation
	p.ReservationTime = isoTime(r.ReservationTime)
	p.ArrivalTime = isoTime(r.ArrivalTime)
	return p
}

func OccupiedPayload(s *Slot, o Occupied, who Identity, adminID string, now time.Time) model.QRPayload {
	p := basePayload(s, o.Holder, who, now)
	p.Type = model.QRArrival
	p.ReservationTime = isoTime(o.ReservationTime)
	p.ArrivalTime = isoTime(o.ArrivalTime)
	p.ParkedTime = isoTime(o.ParkedTime)
	p.ApprovedBy = adminID
	p.ApprovedAt = isoTime(now)
	p.Status = model.SlotOccupied
	return p
}

// EncodePayload returns the string stored on the slot and rendered as a QR image.
func EncodePayload(p model.QRPayload) (string, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("failed to encode QR payload: %w", err)
	}
	return string(raw), nil
}

// StaticPayload is the fixed content printed on the physical slot.
func StaticPayload(slotID string) string {
	return "parking_slot:" + slotID
}

func basePayload(s *Slot, h Holder, who Identity, now time.Time) model.QRPayload {
	floor := s.Floor
	if floor == 0 {
		floor = 1
	}
	return model.QRPayload{
		SlotID:        s.ID,
		VehicleNumber: h.VehicleNumber,
		User: model.QRUser{
			ID:            h.UserID,
			Name:          who.Name,
			Email:         who.Email,
			VehicleNumber: who.VehicleNumber,
		},
		Slot: model.QRSlot{
			ID:       s.ID,
			Location: "Slot " + s.ID,
			Floor:    floor,
		},
		Timestamp: isoTime(now),
		Version:   model.QRPayloadVersion,
		System:    model.QRPayloadSystem,
	}
}

func isoTime(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z")
}
