package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"skillconnect/internal/domain"
	"skillconnect/internal/events"
	"skillconnect/internal/metrics"
	"skillconnect/internal/models"

	"github.com/rs/zerolog"
)

const (
	maxTypeOfWorkLength = 100
	maxNotesLength      = 2000
)

// CreateServiceRequestInput carries the fields a community member may set.
type CreateServiceRequestInput struct {
	TypeOfWork       string
	Budget           float64
	Notes            string
	TargetProviderID *int64
	ExpiresAt        *time.Time
}

type MarketplaceOptions struct {
	RequestTTL    time.Duration
	OfferETA      time.Duration
	LedgerEnabled bool
}

// MarketplaceService runs the service-request and booking lifecycle.
type MarketplaceService struct {
	requests   domain.ServiceRequestRepository
	bookings   domain.BookingRepository
	users      domain.UserRepository
	dispatcher domain.TaskDispatcher
	opts       MarketplaceOptions
	logger     *zerolog.Logger
	now        func() time.Time
}

func NewMarketplaceService(
	requests domain.ServiceRequestRepository,
	bookings domain.BookingRepository,
	users domain.UserRepository,
	dispatcher domain.TaskDispatcher,
	opts MarketplaceOptions,
	logger *zerolog.Logger,
) *MarketplaceService {
	if opts.RequestTTL <= 0 {
		opts.RequestTTL = models.DefaultRequestTTL
	}
	if opts.OfferETA <= 0 {
		opts.OfferETA = models.OfferETA
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &MarketplaceService{
		requests:   requests,
		bookings:   bookings,
		users:      users,
		dispatcher: dispatcher,
		opts:       opts,
		logger:     logger,
		now:        time.Now,
	}
}

func (s *MarketplaceService) CreateServiceRequest(
	ctx context.Context,
	actor *models.User,
	in CreateServiceRequestInput,
) (*models.ServiceRequest, error) {
	if !actor.IsMember() {
		return nil, domain.Forbidden("only community members can create service requests")
	}

	typeOfWork := strings.TrimSpace(in.TypeOfWork)
	switch {
	case typeOfWork == "":
		return nil, domain.Validation("typeOfWork is required")
	case len(typeOfWork) > maxTypeOfWorkLength:
		return nil, domain.Validation("typeOfWork is too long")
	case in.Budget < 0:
		return nil, domain.Validation("budget must not be negative")
	case len(in.Notes) > maxNotesLength:
		return nil, domain.Validation("notes are too long")
	}

	now := s.now()
	expiresAt := now.Add(s.opts.RequestTTL)
	if in.ExpiresAt != nil {
		if !in.ExpiresAt.After(now) {
			return nil, domain.Validation("expiresAt must be in the future")
		}
		expiresAt = *in.ExpiresAt
	}

	if in.TargetProviderID != nil {
		if err := s.checkTarget(ctx, *in.TargetProviderID); err != nil {
			return nil, err
		}
	}

	request := &models.ServiceRequest{
		RequesterID:      actor.ID,
		TypeOfWork:       typeOfWork,
		Budget:           in.Budget,
		Notes:            in.Notes,
		Status:           models.RequestWaiting,
		TargetProviderID: in.TargetProviderID,
		ExpiresAt:        expiresAt,
	}

	var tasks []*models.OutboxTask
	err := s.requests.CreateServiceRequest(ctx, request, func(_ *models.Booking, r *models.ServiceRequest) (domain.Effects, error) {
		var effects domain.Effects
		if r.TargetProviderID != nil {
			effects.Notifications = append(effects.Notifications, &models.Notification{
				UserID:           *r.TargetProviderID,
				Title:            "New Offer",
				Message:          fmt.Sprintf("%s sent you a request for %s", actor.Username, r.TypeOfWork),
				Type:             models.NotificationOfferReceived,
				ServiceRequestID: &r.ID,
			})
		}
		task, err := requestEventTask(r, models.ActionCreated, nil)
		if err != nil {
			return effects, err
		}
		effects.Tasks = append(effects.Tasks, task)
		tasks = effects.Tasks
		return effects, nil
	})
	if err != nil {
		metrics.IncTransition(models.ActionCreated, "error")
		return nil, err
	}

	metrics.IncTransition(models.ActionCreated, "ok")
	s.dispatch(ctx, tasks)
	s.logger.Info().
		Int64("request_id", request.ID).
		Int64("requester_id", actor.ID).
		Str("type_of_work", request.TypeOfWork).
		Msg("service request created")
	return request, nil
}

// AcceptOffer lets the targeted provider take a Waiting request. The booking,
// the request update and every side effect commit together.
func (s *MarketplaceService) AcceptOffer(
	ctx context.Context,
	actor *models.User,
	requestID int64,
) (*models.Booking, *models.ServiceRequest, error) {
	request, err := s.requests.GetServiceRequest(ctx, requestID)
	if err != nil {
		return nil, nil, notFound(err, "service request not found")
	}
	if !request.IsTargetedAt(actor.ID) {
		metrics.IncTransition(models.ActionAccepted, "forbidden")
		return nil, nil, domain.Forbidden("this offer is not addressed to you")
	}
	if request.Status != models.RequestWaiting {
		metrics.IncTransition(models.ActionAccepted, "conflict")
		return nil, nil, domain.Conflict("service request is no longer waiting")
	}

	eta := s.now().Add(s.opts.OfferETA)

	var tasks []*models.OutboxTask
	booking, updated, err := s.requests.AcceptOffer(ctx, request, actor.ID, eta,
		func(b *models.Booking, r *models.ServiceRequest) (domain.Effects, error) {
			effects := domain.Effects{
				Notifications: []*models.Notification{{
					UserID:           r.RequesterID,
					Title:            "Offer Accepted",
					Message:          fmt.Sprintf("%s accepted your request for %s", actor.Username, r.TypeOfWork),
					Type:             models.NotificationOfferAccepted,
					ServiceRequestID: &r.ID,
					BookingID:        &b.ID,
				}},
			}
			built, err := s.transitionTasks(b, r, models.ActionAccepted, nil)
			if err != nil {
				return effects, err
			}
			effects.Tasks = built
			tasks = built
			return effects, nil
		})
	if err != nil {
		metrics.IncTransition(models.ActionAccepted, "error")
		return nil, nil, conflict(err, "service request was changed by someone else, reload and retry")
	}

	metrics.IncTransition(models.ActionAccepted, "ok")
	s.dispatch(ctx, tasks)
	s.logger.Info().
		Int64("request_id", updated.ID).
		Int64("booking_id", booking.ID).
		Int64("provider_id", actor.ID).
		Msg("offer accepted")
	return booking, updated, nil
}

func (s *MarketplaceService) RejectOffer(ctx context.Context, actor *models.User, requestID int64) (*models.ServiceRequest, error) {
	request, err := s.requests.GetServiceRequest(ctx, requestID)
	if err != nil {
		return nil, notFound(err, "service request not found")
	}
	if !request.IsTargetedAt(actor.ID) {
		metrics.IncTransition(models.ActionRejected, "forbidden")
		return nil, domain.Forbidden("this offer is not addressed to you")
	}
	if request.Status != models.RequestWaiting {
		metrics.IncTransition(models.ActionRejected, "conflict")
		return nil, domain.Conflict("service request is no longer waiting")
	}

	var tasks []*models.OutboxTask
	updated, err := s.requests.RejectOffer(ctx, request, actor.ID,
		func(_ *models.Booking, r *models.ServiceRequest) (domain.Effects, error) {
			effects := domain.Effects{
				Notifications: []*models.Notification{{
					UserID:           r.RequesterID,
					Title:            "Offer Rejected",
					Message:          fmt.Sprintf("%s declined your request for %s", actor.Username, r.TypeOfWork),
					Type:             models.NotificationOfferRejected,
					ServiceRequestID: &r.ID,
				}},
			}
			// The rejecting provider is no longer a party but still watches the channel.
			task, err := requestEventTask(r, models.ActionRejected, []int64{actor.ID})
			if err != nil {
				return effects, err
			}
			effects.Tasks = []*models.OutboxTask{task}
			tasks = effects.Tasks
			return effects, nil
		})
	if err != nil {
		metrics.IncTransition(models.ActionRejected, "error")
		return nil, conflict(err, "service request was changed by someone else, reload and retry")
	}

	metrics.IncTransition(models.ActionRejected, "ok")
	s.dispatch(ctx, tasks)
	s.logger.Info().Int64("request_id", updated.ID).Int64("provider_id", actor.ID).Msg("offer rejected")
	return updated, nil
}

// CompleteBooking closes a booking and its request. Completing an already
// complete booking returns it unchanged.
func (s *MarketplaceService) CompleteBooking(ctx context.Context, actor *models.User, bookingID int64) (*models.Booking, error) {
	booking, err := s.bookings.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, notFound(err, "booking not found")
	}
	if !booking.IsParty(actor.ID) {
		metrics.IncTransition(models.ActionCompleted, "forbidden")
		return nil, domain.Forbidden("you are not a party to this booking")
	}
	if booking.Status == models.BookingComplete {
		metrics.IncTransition(models.ActionCompleted, "noop")
		return booking, nil
	}

	var tasks []*models.OutboxTask
	updated, err := s.bookings.CompleteBooking(ctx, booking,
		func(b *models.Booking, r *models.ServiceRequest) (domain.Effects, error) {
			typeOfWork := "your booking"
			if r != nil {
				typeOfWork = r.TypeOfWork
			}
			effects := domain.Effects{
				Notifications: []*models.Notification{{
					UserID:           b.OtherParty(actor.ID),
					Title:            "Booking Completed",
					Message:          fmt.Sprintf("%s marked %s as complete", actor.Username, typeOfWork),
					Type:             models.NotificationBookingCompleted,
					ServiceRequestID: &b.ServiceRequestID,
					BookingID:        &b.ID,
				}},
			}
			built, err := s.transitionTasks(b, r, models.ActionCompleted, nil)
			if err != nil {
				return effects, err
			}
			effects.Tasks = built
			tasks = built
			return effects, nil
		})
	if err != nil {
		// A concurrent completion by the other party reaches the same end state.
		if errors.Is(err, domain.ErrConflict) {
			if current, gerr := s.bookings.GetBooking(ctx, bookingID); gerr == nil && current.Status == models.BookingComplete {
				metrics.IncTransition(models.ActionCompleted, "noop")
				return current, nil
			}
		}
		metrics.IncTransition(models.ActionCompleted, "error")
		return nil, conflict(err, "booking was changed by someone else, reload and retry")
	}

	metrics.IncTransition(models.ActionCompleted, "ok")
	s.dispatch(ctx, tasks)
	s.logger.Info().Int64("booking_id", updated.ID).Int64("user_id", actor.ID).Msg("booking completed")
	return updated, nil
}

// AvailableServiceRequests lists the open requests a provider may accept.
func (s *MarketplaceService) AvailableServiceRequests(ctx context.Context, actor *models.User) ([]*models.ServiceRequest, error) {
	if !actor.IsProvider() {
		return nil, domain.Forbidden("only service providers can browse available requests")
	}

	requests, err := s.requests.ListAvailableServiceRequests(ctx, actor.ID, s.now())
	if err != nil {
		return nil, err
	}

	out := make([]*models.ServiceRequest, 0, len(requests))
	for _, r := range requests {
		out = append(out, r.RedactFor(actor.ID))
	}
	return out, nil
}

func (s *MarketplaceService) CancelServiceRequest(ctx context.Context, actor *models.User, requestID int64) (*models.ServiceRequest, error) {
	request, err := s.requests.GetServiceRequest(ctx, requestID)
	if err != nil {
		return nil, notFound(err, "service request not found")
	}
	if request.RequesterID != actor.ID {
		return nil, domain.Forbidden("only the requester can cancel a service request")
	}
	if request.Status != models.RequestWaiting {
		return nil, domain.Conflict("only waiting requests can be cancelled")
	}

	var tasks []*models.OutboxTask
	updated, err := s.requests.CancelServiceRequest(ctx, request,
		func(_ *models.Booking, r *models.ServiceRequest) (domain.Effects, error) {
			var effects domain.Effects
			if r.TargetProviderID != nil {
				effects.Notifications = append(effects.Notifications, &models.Notification{
					UserID:           *r.TargetProviderID,
					Title:            "Request Cancelled",
					Message:          fmt.Sprintf("%s cancelled the request for %s", actor.Username, r.TypeOfWork),
					Type:             models.NotificationRequestCancelled,
					ServiceRequestID: &r.ID,
				})
			}
			task, err := requestEventTask(r, models.ActionCancelled, nil)
			if err != nil {
				return effects, err
			}
			effects.Tasks = []*models.OutboxTask{task}
			tasks = effects.Tasks
			return effects, nil
		})
	if err != nil {
		metrics.IncTransition(models.ActionCancelled, "error")
		return nil, conflict(err, "service request was changed by someone else, reload and retry")
	}

	metrics.IncTransition(models.ActionCancelled, "ok")
	s.dispatch(ctx, tasks)
	return updated, nil
}

// RetargetServiceRequest points a Waiting request at another provider, or
// opens it to everyone when targetID is nil. Admin only.
func (s *MarketplaceService) RetargetServiceRequest(
	ctx context.Context,
	actor *models.User,
	requestID int64,
	targetID *int64,
) (*models.ServiceRequest, error) {
	if !actor.IsAdmin() {
		return nil, domain.Forbidden("admin access required")
	}

	request, err := s.requests.GetServiceRequest(ctx, requestID)
	if err != nil {
		return nil, notFound(err, "service request not found")
	}
	if request.Status != models.RequestWaiting {
		return nil, domain.Conflict("only waiting requests can be retargeted")
	}
	if targetID != nil {
		if err := s.checkTarget(ctx, *targetID); err != nil {
			return nil, err
		}
	}

	var previous []int64
	if request.TargetProviderID != nil {
		previous = append(previous, *request.TargetProviderID)
	}

	var tasks []*models.OutboxTask
	updated, err := s.requests.RetargetServiceRequest(ctx, request, targetID,
		func(_ *models.Booking, r *models.ServiceRequest) (domain.Effects, error) {
			var effects domain.Effects
			if r.TargetProviderID != nil {
				effects.Notifications = append(effects.Notifications, &models.Notification{
					UserID:           *r.TargetProviderID,
					Title:            "New Offer",
					Message:          fmt.Sprintf("A request for %s was assigned to you", r.TypeOfWork),
					Type:             models.NotificationOfferReceived,
					ServiceRequestID: &r.ID,
				})
			}
			task, err := requestEventTask(r, models.ActionRetargeted, previous)
			if err != nil {
				return effects, err
			}
			effects.Tasks = []*models.OutboxTask{task}
			tasks = effects.Tasks
			return effects, nil
		})
	if err != nil {
		metrics.IncTransition(models.ActionRetargeted, "error")
		return nil, conflict(err, "service request was changed by someone else, reload and retry")
	}

	metrics.IncTransition(models.ActionRetargeted, "ok")
	s.dispatch(ctx, tasks)
	s.logger.Info().Int64("request_id", updated.ID).Int64("admin_id", actor.ID).Msg("service request retargeted")
	return updated, nil
}

// GetServiceRequest returns a request to its parties and to admins.
func (s *MarketplaceService) GetServiceRequest(ctx context.Context, actor *models.User, requestID int64) (*models.ServiceRequest, error) {
	request, err := s.requests.GetServiceRequest(ctx, requestID)
	if err != nil {
		return nil, notFound(err, "service request not found")
	}
	if !actor.IsAdmin() && !request.IsParty(actor.ID) {
		return nil, domain.Forbidden("you are not a party to this service request")
	}
	return viewFor(actor, request), nil
}

func (s *MarketplaceService) ListMyServiceRequests(ctx context.Context, actor *models.User) ([]*models.ServiceRequest, error) {
	requests, err := s.requests.ListServiceRequestsForUser(ctx, actor.ID)
	if err != nil {
		return nil, err
	}
	out := make([]*models.ServiceRequest, 0, len(requests))
	for _, r := range requests {
		out = append(out, viewFor(actor, r))
	}
	return out, nil
}

func (s *MarketplaceService) ListServiceRequests(
	ctx context.Context,
	actor *models.User,
	filter models.ServiceRequestFilter,
) (*models.ServiceRequestPage, error) {
	if !actor.IsAdmin() {
		return nil, domain.Forbidden("admin access required")
	}
	return s.requests.ListServiceRequests(ctx, filter)
}

func (s *MarketplaceService) ListMyBookings(ctx context.Context, actor *models.User) ([]*models.Booking, error) {
	return s.bookings.ListBookingsForUser(ctx, actor.ID)
}

func (s *MarketplaceService) GetBooking(ctx context.Context, actor *models.User, bookingID int64) (*models.Booking, error) {
	booking, err := s.bookings.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, notFound(err, "booking not found")
	}
	if !actor.IsAdmin() && !booking.IsParty(actor.ID) {
		return nil, domain.Forbidden("you are not a party to this booking")
	}
	return booking, nil
}

// ChannelSnapshot authorizes a realtime subscription and returns what the
// subscriber should render right away.
func (s *MarketplaceService) ChannelSnapshot(ctx context.Context, userID int64, channel string) (interface{}, error) {
	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return nil, notFound(err, "user not found")
	}
	if user.Banned {
		return nil, domain.Forbidden("account is banned")
	}

	if channel == models.ChannelBookings {
		bookings, err := s.bookings.ListBookingsForUser(ctx, userID)
		if err != nil {
			return nil, err
		}
		if bookings == nil {
			bookings = []*models.Booking{}
		}
		return bookings, nil
	}

	if id, ok := models.ParseServiceRequestChannel(channel); ok {
		return s.GetServiceRequest(ctx, user, id)
	}
	return nil, domain.Validation(fmt.Sprintf("unknown channel %q", channel))
}

func (s *MarketplaceService) checkTarget(ctx context.Context, providerID int64) error {
	target, err := s.users.GetUserByID(ctx, providerID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Validation("target provider does not exist")
		}
		return err
	}
	if !target.IsProvider() {
		return domain.Validation("target must be a service provider")
	}
	if target.Banned {
		return domain.Validation("target provider is banned")
	}
	return nil
}

// transitionTasks builds the outbox rows shared by accept and complete.
func (s *MarketplaceService) transitionTasks(
	b *models.Booking,
	r *models.ServiceRequest,
	action string,
	extra []int64,
) ([]*models.OutboxTask, error) {
	var tasks []*models.OutboxTask
	if r != nil {
		task, err := requestEventTask(r, action, extra)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}

	task, err := bookingEventTask(b, action)
	if err != nil {
		return nil, err
	}
	tasks = append(tasks, task)

	if s.opts.LedgerEnabled {
		task, err := ledgerTask(b, r)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, nil
}

func (s *MarketplaceService) dispatch(ctx context.Context, tasks []*models.OutboxTask) {
	if s.dispatcher == nil || len(tasks) == 0 {
		return
	}
	s.dispatcher.Dispatch(ctx, tasks)
}

func requestEventTask(r *models.ServiceRequest, action string, extra []int64) (*models.OutboxTask, error) {
	audience := append(r.Parties(), extra...)
	msg, err := events.NewMessage(models.EventServiceRequestUpdated, models.ServiceRequestChannel(r.ID), audience,
		models.ServiceRequestEvent{
			RequestID:         r.ID,
			Action:            action,
			Status:            r.Status,
			ServiceProviderID: r.ServiceProviderID,
			Version:           r.Version,
		})
	if err != nil {
		return nil, err
	}
	return realtimeTask(r.ID, msg)
}

func bookingEventTask(b *models.Booking, action string) (*models.OutboxTask, error) {
	msg, err := events.NewMessage(models.EventBookingUpdated, models.ChannelBookings, b.Parties(),
		models.BookingEvent{
			BookingID:        b.ID,
			ServiceRequestID: b.ServiceRequestID,
			Action:           action,
			Status:           b.Status,
		})
	if err != nil {
		return nil, err
	}
	return realtimeTask(b.ServiceRequestID, msg)
}

func realtimeTask(aggregateID int64, msg *models.RealtimeMessage) (*models.OutboxTask, error) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("marshal realtime message: %w", err)
	}
	return &models.OutboxTask{
		TaskType:    models.TaskRealtime,
		AggregateID: aggregateID,
		Payload:     string(payload),
		Status:      models.TaskPending,
	}, nil
}

func ledgerTask(b *models.Booking, r *models.ServiceRequest) (*models.OutboxTask, error) {
	row := models.LedgerRow{
		BookingID:        b.ID,
		ServiceRequestID: b.ServiceRequestID,
		RequesterID:      b.RequesterID,
		ProviderID:       b.ProviderID,
		Status:           b.Status,
		CreatedAt:        b.CreatedAt,
		CompletedAt:      b.CompletedAt,
	}
	if r != nil {
		row.TypeOfWork = r.TypeOfWork
		row.Budget = r.Budget
	}

	payload, err := json.Marshal(row)
	if err != nil {
		return nil, fmt.Errorf("marshal ledger row: %w", err)
	}
	return &models.OutboxTask{
		TaskType:    models.TaskLedgerUpsert,
		AggregateID: b.ID,
		Payload:     string(payload),
		Status:      models.TaskPending,
	}, nil
}

// viewFor hides provider ids that are not the viewer's own unless the
// viewer owns the request or is an admin.
func viewFor(actor *models.User, r *models.ServiceRequest) *models.ServiceRequest {
	if actor.IsAdmin() || r.RequesterID == actor.ID {
		return r
	}
	return r.RedactFor(actor.ID)
}

func notFound(err error, msg string) error {
	if errors.Is(err, domain.ErrNotFound) {
		return domain.NotFound(msg)
	}
	return err
}

func conflict(err error, msg string) error {
	if errors.Is(err, domain.ErrConflict) {
		return domain.Conflict(msg)
	}
	return err
}
