package api

import (
	"net/http"

	"skillconnect/internal/service"
)

type createReviewRequest struct {
	BookingID int64    `json:"bookingId" validate:"required,gt=0"`
	Rating    int      `json:"rating" validate:"required,min=1,max=5"`
	Comment   string   `json:"comment" validate:"max=2000"`
	Images    []string `json:"images" validate:"max=10,dive,url"`
}

func (s *HTTPServer) handleCreateReview(w http.ResponseWriter, r *http.Request) {
	var req createReviewRequest
	if err := decode(r, &req); err != nil {
		fail(w, r, err)
		return
	}

	review, err := s.deps.Reviews.CreateReview(r.Context(), currentUser(r), service.ReviewInput{
		BookingID: req.BookingID,
		Rating:    req.Rating,
		Comment:   req.Comment,
		Images:    req.Images,
	})
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"success": true, "review": review})
}

func (s *HTTPServer) handleUserReviews(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "userId")
	if err != nil {
		fail(w, r, err)
		return
	}
	reviews, err := s.deps.Reviews.ListForUser(r.Context(), id)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "reviews": reviews})
}

func (s *HTTPServer) handleNotifications(w http.ResponseWriter, r *http.Request) {
	unread := r.URL.Query().Get("unread") == "true"
	notifications, err := s.deps.Notifications.List(r.Context(), currentUser(r), unread)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "notifications": notifications})
}

func (s *HTTPServer) handleReadNotification(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		fail(w, r, err)
		return
	}
	if err := s.deps.Notifications.MarkRead(r.Context(), currentUser(r), id); err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *HTTPServer) handleReadAllNotifications(w http.ResponseWriter, r *http.Request) {
	n, err := s.deps.Notifications.MarkAllRead(r.Context(), currentUser(r))
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "updated": n})
}
