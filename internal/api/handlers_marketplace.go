package api

import (
	"net/http"
	"time"

	"skillconnect/internal/service"
)

type createRequestRequest struct {
	TypeOfWork       string     `json:"typeOfWork" validate:"required,max=100"`
	Budget           float64    `json:"budget" validate:"gte=0"`
	Notes            string     `json:"notes" validate:"max=2000"`
	TargetProviderID *int64     `json:"targetProviderId" validate:"omitempty,gt=0"`
	ExpiresAt        *time.Time `json:"expiresAt"`
}

func (s *HTTPServer) handleCreateRequest(w http.ResponseWriter, r *http.Request) {
	var req createRequestRequest
	if err := decode(r, &req); err != nil {
		fail(w, r, err)
		return
	}

	created, err := s.deps.Marketplace.CreateServiceRequest(r.Context(), currentUser(r), service.CreateServiceRequestInput{
		TypeOfWork:       req.TypeOfWork,
		Budget:           req.Budget,
		Notes:            req.Notes,
		TargetProviderID: req.TargetProviderID,
		ExpiresAt:        req.ExpiresAt,
	})
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"success": true, "request": created})
}

func (s *HTTPServer) handleMyRequests(w http.ResponseWriter, r *http.Request) {
	requests, err := s.deps.Marketplace.ListMyServiceRequests(r.Context(), currentUser(r))
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "requests": requests})
}

func (s *HTTPServer) handleGetRequest(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "requestId")
	if err != nil {
		fail(w, r, err)
		return
	}
	request, err := s.deps.Marketplace.GetServiceRequest(r.Context(), currentUser(r), id)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "request": request})
}

func (s *HTTPServer) handleAcceptOffer(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "requestId")
	if err != nil {
		fail(w, r, err)
		return
	}
	booking, request, err := s.deps.Marketplace.AcceptOffer(r.Context(), currentUser(r), id)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"success": true, "booking": booking, "request": request})
}

func (s *HTTPServer) handleRejectOffer(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "requestId")
	if err != nil {
		fail(w, r, err)
		return
	}
	request, err := s.deps.Marketplace.RejectOffer(r.Context(), currentUser(r), id)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Offer rejected", "request": request})
}

func (s *HTTPServer) handleCancelRequest(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "requestId")
	if err != nil {
		fail(w, r, err)
		return
	}
	request, err := s.deps.Marketplace.CancelServiceRequest(r.Context(), currentUser(r), id)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "request": request})
}

func (s *HTTPServer) handleAvailableRequests(w http.ResponseWriter, r *http.Request) {
	requests, err := s.deps.Marketplace.AvailableServiceRequests(r.Context(), currentUser(r))
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "requests": requests})
}

func (s *HTTPServer) handleMyBookings(w http.ResponseWriter, r *http.Request) {
	bookings, err := s.deps.Marketplace.ListMyBookings(r.Context(), currentUser(r))
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "bookings": bookings})
}

func (s *HTTPServer) handleGetBooking(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		fail(w, r, err)
		return
	}
	booking, err := s.deps.Marketplace.GetBooking(r.Context(), currentUser(r), id)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "booking": booking})
}

func (s *HTTPServer) handleCompleteBooking(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		fail(w, r, err)
		return
	}
	booking, err := s.deps.Marketplace.CompleteBooking(r.Context(), currentUser(r), id)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "booking": booking})
}
