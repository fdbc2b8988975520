package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"skillconnect/internal/database"
	"skillconnect/internal/domain"
	"skillconnect/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

type marketplaceFixture struct {
	svc        *MarketplaceService
	requests   *mockRequests
	bookings   *mockBookings
	users      *mockUsers
	dispatcher *mockDispatcher
}

func newMarketplaceFixture(ledger bool) *marketplaceFixture {
	f := &marketplaceFixture{
		requests:   new(mockRequests),
		bookings:   new(mockBookings),
		users:      new(mockUsers),
		dispatcher: new(mockDispatcher),
	}
	f.svc = NewMarketplaceService(f.requests, f.bookings, f.users, f.dispatcher,
		MarketplaceOptions{LedgerEnabled: ledger}, nil)
	f.svc.now = func() time.Time { return fixedNow }
	return f
}

var (
	member   = &models.User{ID: 1, Username: "alice", Role: models.RoleCommunityMember}
	provider = &models.User{ID: 2, Username: "bob", Role: models.RoleServiceProvider}
	stranger = &models.User{ID: 3, Username: "carol", Role: models.RoleServiceProvider}
	admin    = &models.User{ID: 9, Username: "root", Role: models.RoleAdmin}
)

func waitingRequest() *models.ServiceRequest {
	return &models.ServiceRequest{
		ID:               10,
		RequesterID:      member.ID,
		TypeOfWork:       "Plumbing",
		Budget:           120,
		Status:           models.RequestWaiting,
		TargetProviderID: int64Ptr(provider.ID),
		ExpiresAt:        fixedNow.Add(time.Hour),
		Version:          1,
	}
}

func decodeMessage(t *testing.T, task *models.OutboxTask) models.RealtimeMessage {
	t.Helper()
	require.Equal(t, models.TaskRealtime, task.TaskType)
	var msg models.RealtimeMessage
	require.NoError(t, json.Unmarshal([]byte(task.Payload), &msg))
	return msg
}

func TestCreateServiceRequest(t *testing.T) {
	ctx := context.Background()

	t.Run("success with target", func(t *testing.T) {
		f := newMarketplaceFixture(false)
		f.users.On("GetUserByID", ctx, provider.ID).Return(provider, nil)
		f.requests.On("CreateServiceRequest", ctx, mock.AnythingOfType("*models.ServiceRequest")).Return(nil)
		f.dispatcher.On("Dispatch", ctx, mock.Anything).Return()

		r, err := f.svc.CreateServiceRequest(ctx, member, CreateServiceRequestInput{
			TypeOfWork:       "  Plumbing ",
			Budget:           50,
			TargetProviderID: int64Ptr(provider.ID),
		})
		require.NoError(t, err)
		assert.Equal(t, "Plumbing", r.TypeOfWork)
		assert.Equal(t, models.RequestWaiting, r.Status)
		assert.Equal(t, fixedNow.Add(models.DefaultRequestTTL), r.ExpiresAt)

		require.Len(t, f.requests.effects.Notifications, 1)
		n := f.requests.effects.Notifications[0]
		assert.Equal(t, provider.ID, n.UserID)
		assert.Equal(t, models.NotificationOfferReceived, n.Type)

		require.Len(t, f.requests.effects.Tasks, 1)
		msg := decodeMessage(t, f.requests.effects.Tasks[0])
		assert.Equal(t, models.EventServiceRequestUpdated, msg.Event)
		assert.Equal(t, "service-request:42", msg.Channel)
		f.dispatcher.AssertNumberOfCalls(t, "Dispatch", 1)
	})

	t.Run("providers cannot create", func(t *testing.T) {
		f := newMarketplaceFixture(false)
		_, err := f.svc.CreateServiceRequest(ctx, provider, CreateServiceRequestInput{TypeOfWork: "x"})
		assert.ErrorIs(t, err, domain.ErrForbidden)
	})

	t.Run("validation", func(t *testing.T) {
		f := newMarketplaceFixture(false)
		past := fixedNow.Add(-time.Minute)
		cases := []CreateServiceRequestInput{
			{TypeOfWork: " "},
			{TypeOfWork: "Plumbing", Budget: -1},
			{TypeOfWork: "Plumbing", ExpiresAt: &past},
		}
		for _, in := range cases {
			_, err := f.svc.CreateServiceRequest(ctx, member, in)
			assert.ErrorIs(t, err, domain.ErrValidation)
		}
	})

	t.Run("banned or non-provider target", func(t *testing.T) {
		f := newMarketplaceFixture(false)
		banned := &models.User{ID: 5, Role: models.RoleServiceProvider, Banned: true}
		f.users.On("GetUserByID", ctx, int64(5)).Return(banned, nil)
		f.users.On("GetUserByID", ctx, member.ID).Return(member, nil)
		f.users.On("GetUserByID", ctx, int64(404)).Return(nil, database.ErrNotFound)

		for _, id := range []int64{5, member.ID, 404} {
			_, err := f.svc.CreateServiceRequest(ctx, member, CreateServiceRequestInput{
				TypeOfWork:       "Plumbing",
				TargetProviderID: int64Ptr(id),
			})
			assert.ErrorIs(t, err, domain.ErrValidation)
		}
		f.requests.AssertNotCalled(t, "CreateServiceRequest", mock.Anything, mock.Anything)
	})
}

func TestAcceptOffer(t *testing.T) {
	ctx := context.Background()

	t.Run("success", func(t *testing.T) {
		f := newMarketplaceFixture(true)
		request := waitingRequest()
		booking := &models.Booking{
			ID:               100,
			RequesterID:      member.ID,
			ProviderID:       provider.ID,
			ServiceRequestID: request.ID,
			Status:           models.BookingWorking,
		}
		updated := *request
		updated.Status = models.RequestWorking
		updated.ServiceProviderID = int64Ptr(provider.ID)
		updated.Version = 2

		f.requests.On("GetServiceRequest", ctx, request.ID).Return(request, nil)
		f.requests.On("AcceptOffer", ctx, request, provider.ID, fixedNow.Add(30*time.Minute)).
			Return(booking, &updated, nil)
		f.dispatcher.On("Dispatch", ctx, mock.Anything).Return()

		b, r, err := f.svc.AcceptOffer(ctx, provider, request.ID)
		require.NoError(t, err)
		assert.Equal(t, booking, b)
		assert.Equal(t, models.RequestWorking, r.Status)

		require.Len(t, f.requests.effects.Notifications, 1)
		n := f.requests.effects.Notifications[0]
		assert.Equal(t, member.ID, n.UserID)
		assert.Equal(t, "Offer Accepted", n.Title)
		assert.Equal(t, models.NotificationOfferAccepted, n.Type)
		assert.Equal(t, int64(100), *n.BookingID)

		tasks := f.requests.effects.Tasks
		require.Len(t, tasks, 3)
		requestMsg := decodeMessage(t, tasks[0])
		assert.Equal(t, models.EventServiceRequestUpdated, requestMsg.Event)
		assert.Equal(t, models.ServiceRequestChannel(request.ID), requestMsg.Channel)
		assert.True(t, requestMsg.Reaches(member.ID))
		assert.True(t, requestMsg.Reaches(provider.ID))
		assert.False(t, requestMsg.Reaches(stranger.ID))

		bookingMsg := decodeMessage(t, tasks[1])
		assert.Equal(t, models.EventBookingUpdated, bookingMsg.Event)
		assert.Equal(t, models.ChannelBookings, bookingMsg.Channel)
		assert.ElementsMatch(t, []int64{member.ID, provider.ID}, bookingMsg.Audience)

		assert.Equal(t, models.TaskLedgerUpsert, tasks[2].TaskType)
		var row models.LedgerRow
		require.NoError(t, json.Unmarshal([]byte(tasks[2].Payload), &row))
		assert.Equal(t, "Plumbing", row.TypeOfWork)
		assert.Equal(t, 120.0, row.Budget)

		f.dispatcher.AssertCalled(t, "Dispatch", ctx, tasks)
	})

	t.Run("not found", func(t *testing.T) {
		f := newMarketplaceFixture(false)
		f.requests.On("GetServiceRequest", ctx, int64(1)).Return(nil, database.ErrNotFound)
		_, _, err := f.svc.AcceptOffer(ctx, provider, 1)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("not the target", func(t *testing.T) {
		f := newMarketplaceFixture(false)
		f.requests.On("GetServiceRequest", ctx, int64(10)).Return(waitingRequest(), nil)
		_, _, err := f.svc.AcceptOffer(ctx, stranger, 10)
		assert.ErrorIs(t, err, domain.ErrForbidden)
	})

	t.Run("untargeted request is forbidden", func(t *testing.T) {
		f := newMarketplaceFixture(false)
		open := waitingRequest()
		open.TargetProviderID = nil
		f.requests.On("GetServiceRequest", ctx, int64(10)).Return(open, nil)
		_, _, err := f.svc.AcceptOffer(ctx, provider, 10)
		assert.ErrorIs(t, err, domain.ErrForbidden)
	})

	t.Run("already working", func(t *testing.T) {
		f := newMarketplaceFixture(false)
		working := waitingRequest()
		working.Status = models.RequestWorking
		f.requests.On("GetServiceRequest", ctx, int64(10)).Return(working, nil)
		_, _, err := f.svc.AcceptOffer(ctx, provider, 10)
		assert.ErrorIs(t, err, domain.ErrConflict)
		f.requests.AssertNotCalled(t, "AcceptOffer", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("lost race", func(t *testing.T) {
		f := newMarketplaceFixture(false)
		request := waitingRequest()
		f.requests.On("GetServiceRequest", ctx, request.ID).Return(request, nil)
		f.requests.On("AcceptOffer", ctx, request, provider.ID, mock.Anything).
			Return(nil, nil, database.ErrConcurrentModification)

		_, _, err := f.svc.AcceptOffer(ctx, provider, request.ID)
		assert.ErrorIs(t, err, domain.ErrConflict)
		f.dispatcher.AssertNotCalled(t, "Dispatch", mock.Anything, mock.Anything)
	})
}

func TestRejectOffer(t *testing.T) {
	ctx := context.Background()
	f := newMarketplaceFixture(false)
	request := waitingRequest()
	updated := *request
	updated.TargetProviderID = nil
	updated.Version = 2

	f.requests.On("GetServiceRequest", ctx, request.ID).Return(request, nil)
	f.requests.On("RejectOffer", ctx, request, provider.ID).Return(&updated, nil)
	f.dispatcher.On("Dispatch", ctx, mock.Anything).Return()

	r, err := f.svc.RejectOffer(ctx, provider, request.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RequestWaiting, r.Status)
	assert.Nil(t, r.TargetProviderID)

	require.Len(t, f.requests.effects.Notifications, 1)
	assert.Equal(t, "Offer Rejected", f.requests.effects.Notifications[0].Title)
	assert.Equal(t, member.ID, f.requests.effects.Notifications[0].UserID)

	require.Len(t, f.requests.effects.Tasks, 1)
	msg := decodeMessage(t, f.requests.effects.Tasks[0])
	assert.True(t, msg.Reaches(provider.ID))
	assert.True(t, msg.Reaches(member.ID))

	_, err = f.svc.RejectOffer(ctx, stranger, request.ID)
	assert.ErrorIs(t, err, domain.ErrForbidden)
}

func TestCompleteBooking(t *testing.T) {
	ctx := context.Background()
	working := func() *models.Booking {
		return &models.Booking{
			ID:               100,
			RequesterID:      member.ID,
			ProviderID:       provider.ID,
			ServiceRequestID: 10,
			Status:           models.BookingWorking,
			Version:          1,
		}
	}

	t.Run("provider completes", func(t *testing.T) {
		f := newMarketplaceFixture(false)
		b := working()
		done := *b
		done.Status = models.BookingComplete
		completedAt := fixedNow
		done.CompletedAt = &completedAt
		request := waitingRequest()
		request.Status = models.RequestComplete

		f.bookings.On("GetBooking", ctx, b.ID).Return(b, nil)
		f.bookings.On("CompleteBooking", ctx, b).Return(&done, request, nil)
		f.dispatcher.On("Dispatch", ctx, mock.Anything).Return()

		got, err := f.svc.CompleteBooking(ctx, provider, b.ID)
		require.NoError(t, err)
		assert.Equal(t, models.BookingComplete, got.Status)

		require.Len(t, f.bookings.effects.Notifications, 1)
		n := f.bookings.effects.Notifications[0]
		assert.Equal(t, member.ID, n.UserID)
		assert.Equal(t, "Booking Completed", n.Title)

		require.Len(t, f.bookings.effects.Tasks, 2)
		assert.Equal(t, models.EventBookingUpdated, decodeMessage(t, f.bookings.effects.Tasks[1]).Event)
	})

	t.Run("already complete is a no-op", func(t *testing.T) {
		f := newMarketplaceFixture(false)
		b := working()
		b.Status = models.BookingComplete
		f.bookings.On("GetBooking", ctx, b.ID).Return(b, nil)

		got, err := f.svc.CompleteBooking(ctx, member, b.ID)
		require.NoError(t, err)
		assert.Equal(t, b, got)
		f.bookings.AssertNotCalled(t, "CompleteBooking", mock.Anything, mock.Anything)
		f.dispatcher.AssertNotCalled(t, "Dispatch", mock.Anything, mock.Anything)
	})

	t.Run("losing a concurrent completion returns the completed booking", func(t *testing.T) {
		f := newMarketplaceFixture(false)
		b := working()
		done := *b
		done.Status = models.BookingComplete
		done.Version = 2

		f.bookings.On("GetBooking", ctx, b.ID).Return(b, nil).Once()
		f.bookings.On("CompleteBooking", ctx, b).Return(nil, nil, database.ErrConcurrentModification)
		f.bookings.On("GetBooking", ctx, b.ID).Return(&done, nil).Once()

		got, err := f.svc.CompleteBooking(ctx, member, b.ID)
		require.NoError(t, err)
		assert.Equal(t, models.BookingComplete, got.Status)
		assert.Equal(t, int64(2), got.Version)
		f.dispatcher.AssertNotCalled(t, "Dispatch", mock.Anything, mock.Anything)
	})

	t.Run("conflict that did not complete stays a conflict", func(t *testing.T) {
		f := newMarketplaceFixture(false)
		b := working()
		f.bookings.On("GetBooking", ctx, b.ID).Return(b, nil)
		f.bookings.On("CompleteBooking", ctx, b).Return(nil, nil, database.ErrConcurrentModification)

		_, err := f.svc.CompleteBooking(ctx, member, b.ID)
		assert.ErrorIs(t, err, domain.ErrConflict)
	})

	t.Run("outsider", func(t *testing.T) {
		f := newMarketplaceFixture(false)
		f.bookings.On("GetBooking", ctx, int64(100)).Return(working(), nil)
		_, err := f.svc.CompleteBooking(ctx, stranger, 100)
		assert.ErrorIs(t, err, domain.ErrForbidden)
	})

	t.Run("missing", func(t *testing.T) {
		f := newMarketplaceFixture(false)
		f.bookings.On("GetBooking", ctx, int64(5)).Return(nil, database.ErrNotFound)
		_, err := f.svc.CompleteBooking(ctx, member, 5)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})
}

func TestAvailableServiceRequests(t *testing.T) {
	ctx := context.Background()
	f := newMarketplaceFixture(false)

	_, err := f.svc.AvailableServiceRequests(ctx, member)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	open := waitingRequest()
	open.TargetProviderID = nil
	mine := waitingRequest()
	mine.ID = 11
	f.requests.On("ListAvailableServiceRequests", ctx, provider.ID, fixedNow).
		Return([]*models.ServiceRequest{mine, open}, nil)

	list, err := f.svc.AvailableServiceRequests(ctx, provider)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, provider.ID, *list[0].TargetProviderID)
	assert.Nil(t, list[1].TargetProviderID)
}

func TestGetServiceRequestVisibility(t *testing.T) {
	ctx := context.Background()
	f := newMarketplaceFixture(false)
	f.requests.On("GetServiceRequest", ctx, int64(10)).Return(waitingRequest(), nil)

	for _, u := range []*models.User{member, provider, admin} {
		r, err := f.svc.GetServiceRequest(ctx, u, 10)
		require.NoError(t, err)
		assert.Equal(t, provider.ID, *r.TargetProviderID)
	}

	_, err := f.svc.GetServiceRequest(ctx, stranger, 10)
	assert.ErrorIs(t, err, domain.ErrForbidden)
}

func TestCancelServiceRequest(t *testing.T) {
	ctx := context.Background()
	f := newMarketplaceFixture(false)
	request := waitingRequest()
	cancelled := *request
	cancelled.Status = models.RequestCancelled

	f.requests.On("GetServiceRequest", ctx, request.ID).Return(request, nil)
	f.requests.On("CancelServiceRequest", ctx, request).Return(&cancelled, nil)
	f.dispatcher.On("Dispatch", ctx, mock.Anything).Return()

	_, err := f.svc.CancelServiceRequest(ctx, provider, request.ID)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	r, err := f.svc.CancelServiceRequest(ctx, member, request.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RequestCancelled, r.Status)
	require.Len(t, f.requests.effects.Notifications, 1)
	assert.Equal(t, provider.ID, f.requests.effects.Notifications[0].UserID)
}

func TestRetargetServiceRequest(t *testing.T) {
	ctx := context.Background()
	f := newMarketplaceFixture(false)
	request := waitingRequest()
	updated := *request
	updated.TargetProviderID = int64Ptr(stranger.ID)

	_, err := f.svc.RetargetServiceRequest(ctx, member, request.ID, int64Ptr(stranger.ID))
	assert.ErrorIs(t, err, domain.ErrForbidden)

	f.requests.On("GetServiceRequest", ctx, request.ID).Return(request, nil)
	f.users.On("GetUserByID", ctx, stranger.ID).Return(stranger, nil)
	f.requests.On("RetargetServiceRequest", ctx, request, int64Ptr(stranger.ID)).Return(&updated, nil)
	f.dispatcher.On("Dispatch", ctx, mock.Anything).Return()

	r, err := f.svc.RetargetServiceRequest(ctx, admin, request.ID, int64Ptr(stranger.ID))
	require.NoError(t, err)
	assert.Equal(t, stranger.ID, *r.TargetProviderID)

	require.Len(t, f.requests.effects.Notifications, 1)
	assert.Equal(t, stranger.ID, f.requests.effects.Notifications[0].UserID)
	msg := decodeMessage(t, f.requests.effects.Tasks[0])
	assert.True(t, msg.Reaches(provider.ID), "previous target is told about the change")
	assert.True(t, msg.Reaches(stranger.ID))
}

func TestChannelSnapshot(t *testing.T) {
	ctx := context.Background()
	f := newMarketplaceFixture(false)
	f.users.On("GetUserByID", ctx, member.ID).Return(member, nil)
	f.users.On("GetUserByID", ctx, stranger.ID).Return(stranger, nil)
	f.requests.On("GetServiceRequest", ctx, int64(10)).Return(waitingRequest(), nil)
	f.bookings.On("ListBookingsForUser", ctx, member.ID).Return(nil, nil)

	snap, err := f.svc.ChannelSnapshot(ctx, member.ID, "service-request:10")
	require.NoError(t, err)
	assert.Equal(t, int64(10), snap.(*models.ServiceRequest).ID)

	snap, err = f.svc.ChannelSnapshot(ctx, member.ID, models.ChannelBookings)
	require.NoError(t, err)
	assert.Empty(t, snap)

	_, err = f.svc.ChannelSnapshot(ctx, stranger.ID, "service-request:10")
	assert.ErrorIs(t, err, domain.ErrForbidden)

	_, err = f.svc.ChannelSnapshot(ctx, member.ID, "lobby")
	assert.ErrorIs(t, err, domain.ErrValidation)
}
