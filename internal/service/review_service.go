package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"skillconnect/internal/domain"
	"skillconnect/internal/models"

	"github.com/rs/zerolog"
)

const (
	maxCommentLength = 2000
	maxReviewImages  = 10
)

type ReviewInput struct {
	BookingID int64
	Rating    int
	Comment   string
	Images    []string
}

type ReviewService struct {
	reviews  domain.ReviewRepository
	bookings domain.BookingRepository
	logger   *zerolog.Logger
}

func NewReviewService(reviews domain.ReviewRepository, bookings domain.BookingRepository, logger *zerolog.Logger) *ReviewService {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &ReviewService{reviews: reviews, bookings: bookings, logger: logger}
}

// CreateReview lets the requester rate the provider of a completed booking once.
func (s *ReviewService) CreateReview(ctx context.Context, actor *models.User, in ReviewInput) (*models.Review, error) {
	if !models.ValidRating(in.Rating) {
		return nil, domain.Validation(fmt.Sprintf("rating must be between %d and %d", models.MinRating, models.MaxRating))
	}
	if len(in.Comment) > maxCommentLength {
		return nil, domain.Validation("comment is too long")
	}
	if len(in.Images) > maxReviewImages {
		return nil, domain.Validation(fmt.Sprintf("at most %d images are allowed", maxReviewImages))
	}

	booking, err := s.bookings.GetBooking(ctx, in.BookingID)
	if err != nil {
		return nil, notFound(err, "booking not found")
	}
	if booking.RequesterID != actor.ID {
		return nil, domain.Forbidden("only the requester can review this booking")
	}
	if booking.Status != models.BookingComplete {
		return nil, domain.Conflict("booking is not complete yet")
	}

	images := make([]string, 0, len(in.Images))
	for _, img := range in.Images {
		if img = strings.TrimSpace(img); img != "" {
			images = append(images, img)
		}
	}

	review := &models.Review{
		BookingID:  booking.ID,
		ReviewerID: actor.ID,
		RevieweeID: booking.ProviderID,
		Rating:     in.Rating,
		Comment:    strings.TrimSpace(in.Comment),
		Images:     images,
	}
	extra := domain.Effects{
		Notifications: []*models.Notification{{
			UserID:           booking.ProviderID,
			Title:            "New Review",
			Message:          fmt.Sprintf("%s rated your work %d/%d", actor.Username, in.Rating, models.MaxRating),
			Type:             models.NotificationReviewReceived,
			ServiceRequestID: &booking.ServiceRequestID,
			BookingID:        &booking.ID,
		}},
	}

	if err := s.reviews.CreateReview(ctx, review, extra); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			return nil, domain.Conflict("booking has already been reviewed")
		}
		return nil, err
	}

	s.logger.Info().Int64("review_id", review.ID).Int64("booking_id", booking.ID).Int("rating", review.Rating).Msg("review created")
	return review, nil
}

func (s *ReviewService) ListForUser(ctx context.Context, userID int64) ([]*models.Review, error) {
	reviews, err := s.reviews.ListReviewsForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if reviews == nil {
		reviews = []*models.Review{}
	}
	return reviews, nil
}
