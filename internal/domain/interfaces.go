package domain

import (
	"context"
	"time"

	"skillconnect/internal/models"
)

type UserRepository interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByID(ctx context.Context, id int64) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	UpdateUserProfile(ctx context.Context, user *models.User) error
	SetUserBanned(ctx context.Context, id int64, banned bool) error
	SetUserVerified(ctx context.Context, id int64, verified bool) error
	ListUsers(ctx context.Context, filter models.UserFilter) ([]*models.User, error)
}

type ServiceRequestRepository interface {
	CreateServiceRequest(ctx context.Context, r *models.ServiceRequest, effects EffectsFunc) error
	GetServiceRequest(ctx context.Context, id int64) (*models.ServiceRequest, error)
	ListAvailableServiceRequests(ctx context.Context, providerID int64, now time.Time) ([]*models.ServiceRequest, error)
	ListServiceRequestsForUser(ctx context.Context, userID int64) ([]*models.ServiceRequest, error)
	ListServiceRequests(ctx context.Context, filter models.ServiceRequestFilter) (*models.ServiceRequestPage, error)
	AcceptOffer(
		ctx context.Context,
		r *models.ServiceRequest,
		providerID int64,
		eta time.Time,
		effects EffectsFunc,
	) (*models.Booking, *models.ServiceRequest, error)
	RejectOffer(ctx context.Context, r *models.ServiceRequest, providerID int64, effects EffectsFunc) (*models.ServiceRequest, error)
	CancelServiceRequest(ctx context.Context, r *models.ServiceRequest, effects EffectsFunc) (*models.ServiceRequest, error)
	RetargetServiceRequest(
		ctx context.Context,
		r *models.ServiceRequest,
		target *int64,
		effects EffectsFunc,
	) (*models.ServiceRequest, error)
}

type BookingRepository interface {
	GetBooking(ctx context.Context, id int64) (*models.Booking, error)
	GetBookingByServiceRequest(ctx context.Context, requestID int64) (*models.Booking, error)
	ListBookingsForUser(ctx context.Context, userID int64) ([]*models.Booking, error)
	CompleteBooking(ctx context.Context, b *models.Booking, effects EffectsFunc) (*models.Booking, error)
}

type ReviewRepository interface {
	CreateReview(ctx context.Context, review *models.Review, extra Effects) error
	ListReviewsForUser(ctx context.Context, revieweeID int64) ([]*models.Review, error)
}

type NotificationRepository interface {
	ListNotifications(ctx context.Context, userID int64, unreadOnly bool, limit int) ([]*models.Notification, error)
	MarkNotificationRead(ctx context.Context, id, userID int64) error
	MarkAllNotificationsRead(ctx context.Context, userID int64) (int64, error)
}

type ReportRepository interface {
	Totals(ctx context.Context) (*models.Totals, error)
	Demographics(ctx context.Context) (*models.Demographics, error)
	ProviderSkills(ctx context.Context) ([][]string, error)
	MostBookedServices(ctx context.Context, limit int) ([]models.ServiceCount, error)
	TotalsOverTime(ctx context.Context, now time.Time, months int) ([]models.PeriodTotals, error)
}

type OutboxRepository interface {
	GetPendingOutboxTasks(ctx context.Context, now time.Time, limit int) ([]*models.OutboxTask, error)
	ClaimOutboxTask(ctx context.Context, id int64) (bool, error)
	UpdateOutboxTaskStatus(ctx context.Context, id int64, status, errMsg string, nextRetryAt *time.Time) error
	ReleaseStaleOutboxTasks(ctx context.Context, cutoff time.Time) (int64, error)
}

type IdempotencyStore interface {
	BeginIdempotent(ctx context.Context, userID int64, key, method, path string) (*models.IdempotencyRecord, bool, error)
	CompleteIdempotent(ctx context.Context, userID int64, key string, status int, body []byte) error
	ReleaseIdempotent(ctx context.Context, userID int64, key string) error
}

// CacheStore is a TTL key-value store. Get returns nil, nil for a missing key.
type CacheStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// ListStore keeps ordered queues of opaque entries.
type ListStore interface {
	Append(ctx context.Context, list string, value []byte) error
	Range(ctx context.Context, list string) ([][]byte, error)
	Remove(ctx context.Context, list string, value []byte) error
}

// RateCounter counts hits per key inside a fixed window.
type RateCounter interface {
	CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// TaskDispatcher schedules committed outbox tasks for prompt delivery.
type TaskDispatcher interface {
	Dispatch(ctx context.Context, tasks []*models.OutboxTask)
}

// EventPublisher delivers realtime messages to connected subscribers.
type EventPublisher interface {
	Publish(ctx context.Context, msg *models.RealtimeMessage) error
}

// LedgerWriter mirrors bookings to an external spreadsheet.
type LedgerWriter interface {
	UpsertBooking(ctx context.Context, row *models.LedgerRow) error
}

// PasswordHasher hashes and checks user passwords.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Compare(hash, password string) error
}

// TokenIssuer creates and validates access tokens.
type TokenIssuer interface {
	Issue(user *models.User) (string, time.Time, error)
	Parse(token string) (*models.Claims, error)
}
