package model

const (
	QRPayloadVersion = "1.0"
	QRPayloadSystem  = "QR Parking Management"
)

type QRKind string

const (
	QRReservation QRKind = "reservation"
	QRArrival     QRKind = "occupied"
)

// QRPayload is the structured session info embedded in reservation and
// occupancy QR codes. Optional fields are omitted for reservation codes.
type QRPayload struct {
	Type            QRKind     `json:"type"`
	SlotID          string     `json:"slotId"`
	ReservationTime string     `json:"reservationTime"`
	ArrivalTime     string     `json:"arrivalTime"`
	ParkedTime      string     `json:"parkedTime,omitempty"`
	VehicleNumber   string     `json:"vehicleNumber"`
	User            QRUser     `json:"user"`
	Slot            QRSlot     `json:"slot"`
	ApprovedBy      string     `json:"approvedBy,omitempty"`
	ApprovedAt      string     `json:"approvedAt,omitempty"`
	Timestamp       string     `json:"timestamp"`
	Version         string     `json:"version"`
	System          string     `json:"system"`
	Status          SlotStatus `json:"status,omitempty"`
}

type QRUser struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Email         string `json:"email"`
	VehicleNumber string `json:"vehicleNumber,omitempty"`
}

type QRSlot struct {
	ID       string `json:"id"`
	Location string `json:"location"`
	Floor    int    `json:"floor"`
}
