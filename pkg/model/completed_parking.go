package model

import "time"

type Duration struct {
	Hours        int64 `json:"hours" bson:"hours"`
	Minutes      int64 `json:"minutes" bson:"minutes"`
	TotalMinutes int64 `json:"total_minutes" bson:"total_minutes"`
}

// CompletedParking is the immutable archive of one finished session.
type CompletedParking struct {
	ID                 string        `json:"id" bson:"_id"`
	SessionKey         string        `json:"session_key" bson:"session_key"`
	User               string        `json:"user" bson:"user"`
	SlotID             string        `json:"slot_id" bson:"slot_id"`
	VehicleNumber      string        `json:"vehicle_number" bson:"vehicle_number"`
	ReservationTime    time.Time     `json:"reservation_time" bson:"reservation_time"`
	ArrivalTime        time.Time     `json:"arrival_time" bson:"arrival_time"`
	ParkedTime         time.Time     `json:"parked_time" bson:"parked_time"`
	LeavingRequestTime time.Time     `json:"leaving_request_time" bson:"leaving_request_time"`
	CompletedTime      time.Time     `json:"completed_time" bson:"completed_time"`
	Duration           Duration      `json:"duration" bson:"duration"`
	Cost               int64         `json:"cost" bson:"cost"`
	PaymentStatus      PaymentStatus `json:"payment_status" bson:"payment_status"`
	PaymentTime        time.Time     `json:"payment_time" bson:"payment_time"`
	ApprovedBy         string        `json:"approved_by" bson:"approved_by"`
	CreatedAt          time.Time     `json:"created_at" bson:"created_at"`
}

type CompletedParkingFilter struct {
	UserID string
	Limit  int
	Offset int64
}
