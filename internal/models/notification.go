package models

import "time"

type Notification struct {
	ID               int64     `json:"id"`
	UserID           int64     `json:"userId"`
	Title            string    `json:"title"`
	Message          string    `json:"message"`
	Type             string    `json:"type"`
	ServiceRequestID *int64    `json:"serviceRequestId,omitempty"`
	BookingID        *int64    `json:"bookingId,omitempty"`
	Read             bool      `json:"read"`
	CreatedAt        time.Time `json:"createdAt"`
}
