package model

import "time"

type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

type User struct {
	ID            string     `json:"id" bson:"_id"`
	Name          string     `json:"name" bson:"name"`
	Email         string     `json:"email" bson:"email"`
	PasswordHash  string     `json:"-" bson:"password_hash"`
	Role          Role       `json:"role" bson:"role"`
	VehicleNumber string     `json:"vehicle_number,omitempty" bson:"vehicle_number,omitempty"`
	IsBlocked     bool       `json:"is_blocked" bson:"is_blocked"`
	BlockedAt     *time.Time `json:"blocked_at,omitempty" bson:"blocked_at,omitempty"`
	BlockedBy     *string    `json:"blocked_by,omitempty" bson:"blocked_by,omitempty"`
	CreatedAt     time.Time  `json:"created_at" bson:"created_at"`
}
