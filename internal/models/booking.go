package models

import "time"

type Booking struct {
	ID               int64      `json:"id"`
	RequesterID      int64      `json:"requesterId"`
	ProviderID       int64      `json:"providerId"`
	ServiceRequestID int64      `json:"serviceRequestId"`
	Status           string     `json:"status"` // Working, Complete
	CreatedAt        time.Time  `json:"createdAt"`
	UpdatedAt        time.Time  `json:"updatedAt"`
	CompletedAt      *time.Time `json:"completedAt,omitempty"`
	Version          int64      `json:"version"`
}

func (b *Booking) IsParty(userID int64) bool {
	return b.RequesterID == userID || b.ProviderID == userID
}

// OtherParty returns the counterpart of userID in the booking.
func (b *Booking) OtherParty(userID int64) int64 {
	if b.RequesterID == userID {
		return b.ProviderID
	}
	return b.RequesterID
}

func (b *Booking) Parties() []int64 {
	return []int64{b.RequesterID, b.ProviderID}
}
