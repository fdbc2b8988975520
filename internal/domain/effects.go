package domain

import "skillconnect/internal/models"

// Effects are rows written in the same transaction as a state change.
type Effects struct {
	Notifications []*models.Notification
	Tasks         []*models.OutboxTask
}

// EffectsFunc derives the effects from the rows a transaction produced.
// booking is nil for transitions that do not touch a booking.
type EffectsFunc func(booking *models.Booking, request *models.ServiceRequest) (Effects, error)
