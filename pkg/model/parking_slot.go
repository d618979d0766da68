package model

import "time"

type SlotStatus string

const (
	SlotAvailable   SlotStatus = "available"
	SlotReserved    SlotStatus = "reserved"
	SlotOccupied    SlotStatus = "occupied"
	SlotLeaving     SlotStatus = "leaving"
	SlotMaintenance SlotStatus = "maintenance"
)

// Active reports whether the status belongs to a booking session.
func (s SlotStatus) Active() bool {
	return s == SlotReserved || s == SlotOccupied || s == SlotLeaving
}

func (s SlotStatus) Valid() bool {
	switch s {
	case SlotAvailable, SlotReserved, SlotOccupied, SlotLeaving, SlotMaintenance:
		return true
	}
	return false
}

type RequestStatus string

const (
	RequestPending  RequestStatus = "pending"
	RequestApproved RequestStatus = "approved"
	RequestRejected RequestStatus = "rejected"
)

type PaymentStatus string

const (
	PaymentPending PaymentStatus = "pending"
	PaymentPaid    PaymentStatus = "paid"
)

// ParkingSlot is the persisted shape of one physical space. Only the fields
// legal for Status are set; internal/lifecycle owns the mapping.
type ParkingSlot struct {
	ID      string     `json:"id" bson:"_id"`
	Status  SlotStatus `json:"status" bson:"status"`
	Floor   int        `json:"floor" bson:"floor"`
	QRCode  string     `json:"qr_code" bson:"qr_code"`
	Version int64      `json:"version" bson:"version"`

	VehicleNumber *string `json:"vehicle_number" bson:"vehicle_number"`
	BookedBy      *string `json:"booked_by" bson:"booked_by"`

	ReservationTime    *time.Time `json:"reservation_time" bson:"reservation_time"`
	ArrivalTime        *time.Time `json:"arrival_time" bson:"arrival_time"`
	ParkedTime         *time.Time `json:"parked_time" bson:"parked_time"`
	LeavingRequestTime *time.Time `json:"leaving_request_time" bson:"leaving_request_time"`

	OccupiedRequestStatus *RequestStatus `json:"occupied_request_status" bson:"occupied_request_status"`
	LeavingRequestStatus  *RequestStatus `json:"leaving_request_status" bson:"leaving_request_status"`

	Cost          int64          `json:"cost" bson:"cost"`
	PaymentStatus *PaymentStatus `json:"payment_status" bson:"payment_status"`
	PaymentTime   *time.Time     `json:"payment_time" bson:"payment_time"`

	ReservationQRCode *string `json:"reservation_qr_code" bson:"reservation_qr_code"`
	OccupiedQRCode    *string `json:"occupied_qr_code" bson:"occupied_qr_code"`

	UpdatedAt time.Time `json:"updated_at" bson:"updated_at"`
}

// SlotStats groups the dashboard counters shown to administrators.
type SlotStats struct {
	Parking  ParkingCounts `json:"parking"`
	Users    UserCounts    `json:"users"`
	Requests RequestCounts `json:"requests"`
}

type ParkingCounts struct {
	TotalSlots       int64 `json:"total_slots"`
	AvailableSlots   int64 `json:"available_slots"`
	ReservedSlots    int64 `json:"reserved_slots"`
	OccupiedSlots    int64 `json:"occupied_slots"`
	LeavingSlots     int64 `json:"leaving_slots"`
	MaintenanceSlots int64 `json:"maintenance_slots"`
}

type UserCounts struct {
	TotalUsers   int64 `json:"total_users"`
	ActiveUsers  int64 `json:"active_users"`
	BlockedUsers int64 `json:"blocked_users"`
}

type RequestCounts struct {
	PendingOccupiedRequests int64 `json:"pending_occupied_requests"`
	PendingLeavingRequests  int64 `json:"pending_leaving_requests"`
}

type ReserveRequest struct {
	SlotID        string `json:"slot_id" validate:"required,slot_id"`
	VehicleNumber string `json:"vehicle_number" validate:"required,min=2,max=20,vehicle_number"`
}

type SlotStatusUpdate struct {
	Status SlotStatus `json:"status" validate:"required,oneof=available maintenance"`
}
