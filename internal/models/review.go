package models

import "time"

type Review struct {
	ID         int64     `json:"id"`
	BookingID  int64     `json:"bookingId"`
	ReviewerID int64     `json:"reviewerId"`
	RevieweeID int64     `json:"revieweeId"`
	Rating     int       `json:"rating"`
	Comment    string    `json:"comment"`
	Images     []string  `json:"images"`
	CreatedAt  time.Time `json:"createdAt"`
}

// ValidRating reports whether r is inside [MinRating, MaxRating].
func ValidRating(r int) bool {
	return r >= MinRating && r <= MaxRating
}
