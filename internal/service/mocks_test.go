package service

import (
	"context"
	"time"

	"skillconnect/internal/domain"
	"skillconnect/internal/models"

	"github.com/stretchr/testify/mock"
)

// mockRequests runs the effects callback like the database does, so tests
// can inspect the rows a transition would write.
type mockRequests struct {
	mock.Mock
	effects domain.Effects
}

func (m *mockRequests) run(fn domain.EffectsFunc, b *models.Booking, r *models.ServiceRequest) error {
	if fn == nil {
		return nil
	}
	effects, err := fn(b, r)
	m.effects = effects
	return err
}

func (m *mockRequests) CreateServiceRequest(ctx context.Context, r *models.ServiceRequest, effects domain.EffectsFunc) error {
	args := m.Called(ctx, r)
	if err := args.Error(0); err != nil {
		return err
	}
	r.ID = 42
	r.Version = 1
	return m.run(effects, nil, r)
}

func (m *mockRequests) GetServiceRequest(ctx context.Context, id int64) (*models.ServiceRequest, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ServiceRequest), args.Error(1)
}

func (m *mockRequests) ListAvailableServiceRequests(ctx context.Context, providerID int64, now time.Time) ([]*models.ServiceRequest, error) {
	args := m.Called(ctx, providerID, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.ServiceRequest), args.Error(1)
}

func (m *mockRequests) ListServiceRequestsForUser(ctx context.Context, userID int64) ([]*models.ServiceRequest, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.ServiceRequest), args.Error(1)
}

func (m *mockRequests) ListServiceRequests(ctx context.Context, filter models.ServiceRequestFilter) (*models.ServiceRequestPage, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ServiceRequestPage), args.Error(1)
}

func (m *mockRequests) AcceptOffer(
	ctx context.Context,
	r *models.ServiceRequest,
	providerID int64,
	eta time.Time,
	effects domain.EffectsFunc,
) (*models.Booking, *models.ServiceRequest, error) {
	args := m.Called(ctx, r, providerID, eta)
	if err := args.Error(2); err != nil {
		return nil, nil, err
	}
	b := args.Get(0).(*models.Booking)
	updated := args.Get(1).(*models.ServiceRequest)
	if err := m.run(effects, b, updated); err != nil {
		return nil, nil, err
	}
	return b, updated, nil
}

func (m *mockRequests) RejectOffer(ctx context.Context, r *models.ServiceRequest, providerID int64, effects domain.EffectsFunc) (*models.ServiceRequest, error) {
	args := m.Called(ctx, r, providerID)
	return m.updated(args, effects)
}

func (m *mockRequests) CancelServiceRequest(ctx context.Context, r *models.ServiceRequest, effects domain.EffectsFunc) (*models.ServiceRequest, error) {
	args := m.Called(ctx, r)
	return m.updated(args, effects)
}

func (m *mockRequests) RetargetServiceRequest(
	ctx context.Context,
	r *models.ServiceRequest,
	target *int64,
	effects domain.EffectsFunc,
) (*models.ServiceRequest, error) {
	args := m.Called(ctx, r, target)
	return m.updated(args, effects)
}

func (m *mockRequests) updated(args mock.Arguments, effects domain.EffectsFunc) (*models.ServiceRequest, error) {
	if err := args.Error(1); err != nil {
		return nil, err
	}
	updated := args.Get(0).(*models.ServiceRequest)
	if err := m.run(effects, nil, updated); err != nil {
		return nil, err
	}
	return updated, nil
}

type mockBookings struct {
	mock.Mock
	effects domain.Effects
}

func (m *mockBookings) GetBooking(ctx context.Context, id int64) (*models.Booking, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Booking), args.Error(1)
}

func (m *mockBookings) GetBookingByServiceRequest(ctx context.Context, requestID int64) (*models.Booking, error) {
	args := m.Called(ctx, requestID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Booking), args.Error(1)
}

func (m *mockBookings) ListBookingsForUser(ctx context.Context, userID int64) ([]*models.Booking, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Booking), args.Error(1)
}

func (m *mockBookings) CompleteBooking(ctx context.Context, b *models.Booking, effects domain.EffectsFunc) (*models.Booking, error) {
	args := m.Called(ctx, b)
	if err := args.Error(2); err != nil {
		return nil, err
	}
	updated := args.Get(0).(*models.Booking)
	var request *models.ServiceRequest
	if args.Get(1) != nil {
		request = args.Get(1).(*models.ServiceRequest)
	}
	if effects != nil {
		out, err := effects(updated, request)
		if err != nil {
			return nil, err
		}
		m.effects = out
	}
	return updated, nil
}

type mockUsers struct {
	mock.Mock
}

func (m *mockUsers) CreateUser(ctx context.Context, user *models.User) error {
	args := m.Called(ctx, user)
	if args.Error(0) == nil {
		user.ID = 7
	}
	return args.Error(0)
}

func (m *mockUsers) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *mockUsers) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *mockUsers) UpdateUserProfile(ctx context.Context, user *models.User) error {
	return m.Called(ctx, user).Error(0)
}

func (m *mockUsers) SetUserBanned(ctx context.Context, id int64, banned bool) error {
	return m.Called(ctx, id, banned).Error(0)
}

func (m *mockUsers) SetUserVerified(ctx context.Context, id int64, verified bool) error {
	return m.Called(ctx, id, verified).Error(0)
}

func (m *mockUsers) ListUsers(ctx context.Context, filter models.UserFilter) ([]*models.User, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.User), args.Error(1)
}

type mockDispatcher struct {
	mock.Mock
}

func (m *mockDispatcher) Dispatch(ctx context.Context, tasks []*models.OutboxTask) {
	m.Called(ctx, tasks)
}

type mockReviews struct {
	mock.Mock
}

func (m *mockReviews) CreateReview(ctx context.Context, review *models.Review, extra domain.Effects) error {
	args := m.Called(ctx, review, extra)
	if args.Error(0) == nil {
		review.ID = 1
	}
	return args.Error(0)
}

func (m *mockReviews) ListReviewsForUser(ctx context.Context, revieweeID int64) ([]*models.Review, error) {
	args := m.Called(ctx, revieweeID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Review), args.Error(1)
}

type mockNotifications struct {
	mock.Mock
}

func (m *mockNotifications) ListNotifications(ctx context.Context, userID int64, unreadOnly bool, limit int) ([]*models.Notification, error) {
	args := m.Called(ctx, userID, unreadOnly, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Notification), args.Error(1)
}

func (m *mockNotifications) MarkNotificationRead(ctx context.Context, id, userID int64) error {
	return m.Called(ctx, id, userID).Error(0)
}

func (m *mockNotifications) MarkAllNotificationsRead(ctx context.Context, userID int64) (int64, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(int64), args.Error(1)
}

type mockReports struct {
	mock.Mock
}

func (m *mockReports) Totals(ctx context.Context) (*models.Totals, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Totals), args.Error(1)
}

func (m *mockReports) Demographics(ctx context.Context) (*models.Demographics, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Demographics), args.Error(1)
}

func (m *mockReports) ProviderSkills(ctx context.Context) ([][]string, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([][]string), args.Error(1)
}

func (m *mockReports) MostBookedServices(ctx context.Context, limit int) ([]models.ServiceCount, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.ServiceCount), args.Error(1)
}

func (m *mockReports) TotalsOverTime(ctx context.Context, now time.Time, months int) ([]models.PeriodTotals, error) {
	args := m.Called(ctx, now, months)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.PeriodTotals), args.Error(1)
}

// plainHasher stores passwords as "hashed:<password>".
type plainHasher struct{}

func (plainHasher) Hash(password string) (string, error) {
	if len(password) < 8 {
		return "", domain.Validation("password too short")
	}
	return "hashed:" + password, nil
}

func (plainHasher) Compare(hash, password string) error {
	if hash != "hashed:"+password {
		return domain.Unauthorized("invalid email or password")
	}
	return nil
}

type fakeTokens struct{}

func (fakeTokens) Issue(user *models.User) (string, time.Time, error) {
	return "token-" + user.Email, time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC), nil
}

func (fakeTokens) Parse(token string) (*models.Claims, error) {
	if token != "good" {
		return nil, domain.Unauthorized("invalid token")
	}
	return &models.Claims{UserID: 7, Role: models.RoleCommunityMember}, nil
}

type fakeLimiter struct {
	allowed bool
	keys    []string
}

func (f *fakeLimiter) CheckRateLimit(_ context.Context, key string, _ int, _ time.Duration) (bool, error) {
	f.keys = append(f.keys, key)
	return f.allowed, nil
}

func int64Ptr(v int64) *int64 { return &v }
