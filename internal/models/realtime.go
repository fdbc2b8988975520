package models

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// RealtimeMessage is a server push delivered over the websocket hub.
// An empty Audience means every authorized subscriber of Channel receives it.
type RealtimeMessage struct {
	Event    string          `json:"event"`
	Channel  string          `json:"channel"`
	Audience []int64         `json:"audience,omitempty"`
	Payload  json.RawMessage `json:"payload"`
}

// Reaches reports whether userID belongs to the message audience.
func (m *RealtimeMessage) Reaches(userID int64) bool {
	if len(m.Audience) == 0 {
		return true
	}
	for _, id := range m.Audience {
		if id == userID {
			return true
		}
	}
	return false
}

// ServiceRequestEvent is the payload of service-request-updated.
type ServiceRequestEvent struct {
	RequestID         int64  `json:"requestId"`
	Action            string `json:"action"`
	Status            string `json:"status"`
	ServiceProviderID *int64 `json:"serviceProviderId,omitempty"`
	Version           int64  `json:"version"`
}

// BookingEvent is the payload of booking-updated.
type BookingEvent struct {
	BookingID        int64  `json:"bookingId"`
	ServiceRequestID int64  `json:"serviceRequestId"`
	Action           string `json:"action"`
	Status           string `json:"status"`
}

// ServiceRequestChannel names the realtime channel of one request.
func ServiceRequestChannel(id int64) string {
	return ChannelServiceRequestPrefix + strconv.FormatInt(id, 10)
}

// ParseServiceRequestChannel extracts the request id from a request channel name.
func ParseServiceRequestChannel(channel string) (int64, bool) {
	if !strings.HasPrefix(channel, ChannelServiceRequestPrefix) {
		return 0, false
	}
	id, err := strconv.ParseInt(strings.TrimPrefix(channel, ChannelServiceRequestPrefix), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// LedgerRow is one booking line mirrored to the external spreadsheet.
type LedgerRow struct {
	BookingID        int64      `json:"booking_id"`
	ServiceRequestID int64      `json:"service_request_id"`
	RequesterID      int64      `json:"requester_id"`
	ProviderID       int64      `json:"provider_id"`
	TypeOfWork       string     `json:"type_of_work"`
	Budget           float64    `json:"budget"`
	Status           string     `json:"status"`
	CreatedAt        time.Time  `json:"created_at"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`
}

// Claims are the authenticated identity carried by an access token.
type Claims struct {
	UserID    int64
	Role      string
	ExpiresAt time.Time
}
