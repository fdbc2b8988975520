package models

import "time"

// Roles.
const (
	RoleServiceProvider = "Service Provider"
	RoleCommunityMember = "Community Member"
	RoleAdmin           = "admin"
)

// Service request statuses.
const (
	RequestWaiting   = "Waiting"
	RequestWorking   = "Working"
	RequestComplete  = "Complete"
	RequestCancelled = "Cancelled"
)

// Booking statuses.
const (
	BookingWorking  = "Working"
	BookingComplete = "Complete"
)

// Notification types.
const (
	NotificationOfferAccepted    = "offer_accepted"
	NotificationOfferRejected    = "offer_rejected"
	NotificationOfferReceived    = "offer_received"
	NotificationBookingCompleted = "booking_completed"
	NotificationRequestCancelled = "request_cancelled"
	NotificationReviewReceived   = "review_received"
)

// Realtime event names and channels.
const (
	EventServiceRequestUpdated = "service-request-updated"
	EventBookingUpdated        = "booking-updated"

	ChannelBookings             = "bookings"
	ChannelServiceRequestPrefix = "service-request:"
)

// Event actions.
const (
	ActionCreated    = "created"
	ActionAccepted   = "accepted"
	ActionRejected   = "rejected"
	ActionCompleted  = "completed"
	ActionCancelled  = "cancelled"
	ActionRetargeted = "retargeted"
)

const (
	// OfferETA is added to the acceptance time to get the informational eta.
	OfferETA = 30 * time.Minute

	// DefaultRequestTTL applies when a request is created without expiresAt.
	DefaultRequestTTL = 72 * time.Hour

	// OfflineCacheTTL is the fixed lifetime of offline cache entries.
	OfflineCacheTTL = 24 * time.Hour

	DefaultPageSize = 10
	MaxPageSize     = 100

	MinRating = 1
	MaxRating = 5
)
