package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"skillconnect/internal/domain"
	"skillconnect/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateServiceRequest_WritesEffects(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	member := createTestUser(t, db, models.RoleCommunityMember)
	provider := createTestUser(t, db, models.RoleServiceProvider)

	r := &models.ServiceRequest{
		RequesterID:      member.ID,
		TypeOfWork:       "Electrical",
		Budget:           250,
		TargetProviderID: idOf(provider),
		ExpiresAt:        time.Now().Add(time.Hour),
	}
	err := db.CreateServiceRequest(ctx, r, func(_ *models.Booking, req *models.ServiceRequest) (domain.Effects, error) {
		return domain.Effects{
			Notifications: []*models.Notification{{UserID: provider.ID, Title: "New offer", Message: "m", Type: models.NotificationOfferReceived, ServiceRequestID: &req.ID}},
			Tasks:         []*models.OutboxTask{{TaskType: models.TaskRealtime, AggregateID: req.ID, Payload: `{}`}},
		}, nil
	})
	require.NoError(t, err)

	assert.Equal(t, models.RequestWaiting, r.Status)
	assert.Equal(t, int64(1), r.Version)
	require.NotNil(t, r.Requester)
	assert.Equal(t, member.Username, r.Requester.Username)
	assert.Equal(t, 1, countRows(t, db, `SELECT COUNT(*) FROM notifications WHERE user_id = ?`, provider.ID))
	assert.Equal(t, 1, countRows(t, db, `SELECT COUNT(*) FROM outbox WHERE aggregate_id = ?`, r.ID))
}

func TestCreateServiceRequest_EffectsErrorRollsBack(t *testing.T) {
	db := setupTestDB(t)
	member := createTestUser(t, db, models.RoleCommunityMember)

	r := &models.ServiceRequest{RequesterID: member.ID, TypeOfWork: "x", ExpiresAt: time.Now().Add(time.Hour)}
	err := db.CreateServiceRequest(context.Background(), r, func(*models.Booking, *models.ServiceRequest) (domain.Effects, error) {
		return domain.Effects{}, errors.New("boom")
	})
	require.Error(t, err)
	assert.Equal(t, 0, countRows(t, db, `SELECT COUNT(*) FROM service_requests`))
}

func TestListAvailableServiceRequests(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	member := createTestUser(t, db, models.RoleCommunityMember)
	p1 := createTestUser(t, db, models.RoleServiceProvider)
	p2 := createTestUser(t, db, models.RoleServiceProvider)

	open := createTestRequest(t, db, member.ID, nil, time.Hour)
	forP1 := createTestRequest(t, db, member.ID, idOf(p1), time.Hour)
	forP2 := createTestRequest(t, db, member.ID, idOf(p2), time.Hour)
	createTestRequest(t, db, member.ID, nil, -time.Minute)

	cancelled := createTestRequest(t, db, member.ID, nil, time.Hour)
	_, err := db.CancelServiceRequest(ctx, cancelled, nil)
	require.NoError(t, err)

	got, err := db.ListAvailableServiceRequests(ctx, p1.ID, time.Now())
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, forP1.ID, got[0].ID, "newest first")
	assert.Equal(t, open.ID, got[1].ID)

	got, err = db.ListAvailableServiceRequests(ctx, p2.ID, time.Now())
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, forP2.ID, got[0].ID)

	for _, r := range got {
		assert.True(t, r.ExpiresAt.After(time.Now()))
	}

	// Everything expires eventually.
	got, err = db.ListAvailableServiceRequests(ctx, p1.ID, time.Now().Add(2*time.Hour))
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestAcceptOffer(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	member := createTestUser(t, db, models.RoleCommunityMember)
	p1 := createTestUser(t, db, models.RoleServiceProvider)
	r := createTestRequest(t, db, member.ID, idOf(p1), time.Hour)

	eta := time.Now().Add(models.OfferETA)
	var seenBooking *models.Booking
	booking, updated, err := db.AcceptOffer(ctx, r, p1.ID, eta, func(b *models.Booking, _ *models.ServiceRequest) (domain.Effects, error) {
		seenBooking = b
		return domain.Effects{Notifications: []*models.Notification{{UserID: member.ID, Title: "Offer Accepted", Message: "m", Type: models.NotificationOfferAccepted, BookingID: &b.ID}}}, nil
	})
	require.NoError(t, err)

	assert.Equal(t, models.BookingWorking, booking.Status)
	assert.Equal(t, p1.ID, booking.ProviderID)
	assert.Equal(t, member.ID, booking.RequesterID)
	assert.Equal(t, r.ID, booking.ServiceRequestID)
	assert.Same(t, booking, seenBooking)

	assert.Equal(t, models.RequestWorking, updated.Status)
	require.NotNil(t, updated.ServiceProviderID)
	assert.Equal(t, p1.ID, *updated.ServiceProviderID)
	require.NotNil(t, updated.ETA)
	assert.WithinDuration(t, eta, *updated.ETA, time.Second)
	assert.Equal(t, r.Version+1, updated.Version)

	assert.Equal(t, 1, countRows(t, db, `SELECT COUNT(*) FROM bookings WHERE service_request_id = ? AND status = 'Working'`, r.ID))
	assert.Equal(t, 1, countRows(t, db, `SELECT COUNT(*) FROM notifications WHERE user_id = ?`, member.ID))

	t.Run("StaleVersion", func(t *testing.T) {
		_, _, err := db.AcceptOffer(ctx, r, p1.ID, eta, nil)
		assert.ErrorIs(t, err, ErrConcurrentModification)
		assert.True(t, errors.Is(err, domain.ErrConflict))
		assert.Equal(t, 1, countRows(t, db, `SELECT COUNT(*) FROM bookings`))
	})

	t.Run("WrongProviderLeavesRequestUntouched", func(t *testing.T) {
		p2 := createTestUser(t, db, models.RoleServiceProvider)
		other := createTestRequest(t, db, member.ID, idOf(p1), time.Hour)

		_, _, err := db.AcceptOffer(ctx, other, p2.ID, eta, nil)
		assert.ErrorIs(t, err, ErrConcurrentModification)

		again, err := db.GetServiceRequest(ctx, other.ID)
		require.NoError(t, err)
		assert.Equal(t, models.RequestWaiting, again.Status)
		assert.Nil(t, again.ServiceProviderID)
		assert.Equal(t, other.Version, again.Version)
	})

	t.Run("EffectsFailureRollsBack", func(t *testing.T) {
		fresh := createTestRequest(t, db, member.ID, idOf(p1), time.Hour)
		_, _, err := db.AcceptOffer(ctx, fresh, p1.ID, eta, func(*models.Booking, *models.ServiceRequest) (domain.Effects, error) {
			return domain.Effects{}, errors.New("boom")
		})
		require.Error(t, err)

		again, err := db.GetServiceRequest(ctx, fresh.ID)
		require.NoError(t, err)
		assert.Equal(t, models.RequestWaiting, again.Status)
		_, err = db.GetBookingByServiceRequest(ctx, fresh.ID)
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestRejectOffer(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	member := createTestUser(t, db, models.RoleCommunityMember)
	p1 := createTestUser(t, db, models.RoleServiceProvider)
	p2 := createTestUser(t, db, models.RoleServiceProvider)
	r := createTestRequest(t, db, member.ID, idOf(p1), time.Hour)

	_, err := db.RejectOffer(ctx, r, p2.ID, nil)
	assert.ErrorIs(t, err, ErrConcurrentModification)

	updated, err := db.RejectOffer(ctx, r, p1.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, models.RequestWaiting, updated.Status)
	assert.Nil(t, updated.TargetProviderID)
	assert.Nil(t, updated.ServiceProviderID)

	// Open again for everyone, including the provider who rejected.
	for _, p := range []*models.User{p1, p2} {
		got, err := db.ListAvailableServiceRequests(ctx, p.ID, time.Now())
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, r.ID, got[0].ID)
	}
}

func TestCancelAndRetarget(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	member := createTestUser(t, db, models.RoleCommunityMember)
	p1 := createTestUser(t, db, models.RoleServiceProvider)
	p2 := createTestUser(t, db, models.RoleServiceProvider)

	r := createTestRequest(t, db, member.ID, idOf(p1), time.Hour)
	retargeted, err := db.RetargetServiceRequest(ctx, r, idOf(p2), nil)
	require.NoError(t, err)
	require.NotNil(t, retargeted.TargetProviderID)
	assert.Equal(t, p2.ID, *retargeted.TargetProviderID)

	// The old observation is stale now.
	_, err = db.CancelServiceRequest(ctx, r, nil)
	assert.ErrorIs(t, err, ErrConcurrentModification)

	cancelled, err := db.CancelServiceRequest(ctx, retargeted, nil)
	require.NoError(t, err)
	assert.Equal(t, models.RequestCancelled, cancelled.Status)

	_, err = db.RetargetServiceRequest(ctx, cancelled, nil, nil)
	assert.ErrorIs(t, err, ErrConcurrentModification)
}

func TestListServiceRequests_Admin(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	member := createTestUser(t, db, models.RoleCommunityMember)
	for i, work := range []string{"Plumbing", "Electrical wiring", "Plumbing repair", "Gardening", "Plumbing"} {
		r := &models.ServiceRequest{
			RequesterID: member.ID,
			TypeOfWork:  work,
			Budget:      float64((i + 1) * 10),
			ExpiresAt:   time.Now().Add(time.Hour),
		}
		require.NoError(t, db.CreateServiceRequest(ctx, r, nil))
	}

	page, err := db.ListServiceRequests(ctx, models.ServiceRequestFilter{Page: 1, Limit: 2, Skill: "plumb"})
	require.NoError(t, err)
	assert.Equal(t, 3, page.Count)
	assert.Equal(t, 2, page.TotalPages)
	require.Len(t, page.Requests, 2)
	assert.Equal(t, "Plumbing", page.Requests[0].TypeOfWork, "newest first")

	page, err = db.ListServiceRequests(ctx, models.ServiceRequestFilter{Page: 2, Limit: 2, Skill: "plumb"})
	require.NoError(t, err)
	assert.Len(t, page.Requests, 1)

	page, err = db.ListServiceRequests(ctx, models.ServiceRequestFilter{Sort: "budget_desc"})
	require.NoError(t, err)
	require.Len(t, page.Requests, 5)
	assert.Equal(t, float64(50), page.Requests[0].Budget)

	page, err = db.ListServiceRequests(ctx, models.ServiceRequestFilter{Status: models.RequestWorking})
	require.NoError(t, err)
	assert.Equal(t, 0, page.Count)
	assert.Empty(t, page.Requests)
	assert.Equal(t, 0, page.TotalPages)
}

func TestListServiceRequestsForUser(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	member := createTestUser(t, db, models.RoleCommunityMember)
	p1 := createTestUser(t, db, models.RoleServiceProvider)
	p2 := createTestUser(t, db, models.RoleServiceProvider)
	createTestRequest(t, db, member.ID, idOf(p1), time.Hour)
	createTestRequest(t, db, member.ID, nil, time.Hour)

	mine, err := db.ListServiceRequestsForUser(ctx, member.ID)
	require.NoError(t, err)
	assert.Len(t, mine, 2)

	mine, err = db.ListServiceRequestsForUser(ctx, p1.ID)
	require.NoError(t, err)
	assert.Len(t, mine, 1)

	mine, err = db.ListServiceRequestsForUser(ctx, p2.ID)
	require.NoError(t, err)
	assert.Empty(t, mine)
}
