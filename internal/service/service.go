// Package service implements business logic, validation, and orchestration
// between HTTP handlers and the repository layer, and publishes booking
// lifecycle events after each committed mutation.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"ticketline/internal/model"
	"ticketline/internal/pubsub"
	"ticketline/internal/repository"
)

// EventStore is the persistence surface the service needs for events.
type EventStore interface {
	Create(ctx context.Context, req model.CreateEventRequest) (*model.Event, error)
	GetByID(ctx context.Context, id string) (*model.Event, error)
	List(ctx context.Context) ([]model.Event, error)
}

// BookingStore is the persistence surface for bookings, including the
// transactional book and cancel/promote flows.
type BookingStore interface {
	Book(ctx context.Context, eventID, user string) (*model.Booking, error)
	Cancel(ctx context.Context, bookingID string) (cancelled, promoted *model.Booking, err error)
	ListByEvent(ctx context.Context, eventID string) ([]model.Booking, error)
	CountWaitlisted(ctx context.Context, eventID string) (int, error)
}

// Publisher emits booking lifecycle events after a mutation commits.
type Publisher interface {
	Publish(topic string, ev pubsub.BookingEvent) error
}

// TicketService exposes the allocation engine to the transport layer.
type TicketService interface {
	InitializeEvent(ctx context.Context, req model.CreateEventRequest) (*model.Event, error)
	ListEvents(ctx context.Context) ([]model.Event, error)
	GetEvent(ctx context.Context, id string) (*model.Event, error)
	GetEventStatus(ctx context.Context, eventID string) (*model.EventStatus, error)
	BookTicket(ctx context.Context, eventID string, req model.BookTicketRequest) (*model.Booking, error)
	CancelBooking(ctx context.Context, bookingID string) error
	ListBookings(ctx context.Context, eventID string) ([]model.Booking, error)
}

type ticketService struct {
	logger    *logrus.Logger
	validate  *validator.Validate
	events    EventStore
	bookings  BookingStore
	publisher Publisher
}

// NewTicketService constructs the service with its dependencies.
func NewTicketService(logger *logrus.Logger, events EventStore, bookings BookingStore, publisher Publisher) TicketService {
	return &ticketService{
		logger:    logger,
		validate:  validator.New(),
		events:    events,
		bookings:  bookings,
		publisher: publisher,
	}
}

// InitializeEvent validates the request and creates the event with a full
// ticket pool.
func (s *ticketService) InitializeEvent(ctx context.Context, req model.CreateEventRequest) (*model.Event, error) {
	req.Name = strings.TrimSpace(req.Name)
	if err := s.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("invalid event: %w", err)
	}

	event, err := s.events.Create(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("initialize event: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"event_id":      event.ID,
		"total_tickets": event.TotalTickets,
	}).Info("event initialized")
	return event, nil
}

// ListEvents returns all events.
func (s *ticketService) ListEvents(ctx context.Context) ([]model.Event, error) {
	return s.events.List(ctx)
}

// GetEvent returns a single event by ID.
func (s *ticketService) GetEvent(ctx context.Context, id string) (*model.Event, error) {
	if id == "" {
		return nil, fmt.Errorf("event id is required")
	}
	event, err := s.events.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrEventNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("get event: %w", err)
	}
	return event, nil
}

// GetEventStatus returns the event's current counter together with the
// waiting-list size. Both reads are lock-free, so the view is eventually
// consistent with in-flight transactions.
func (s *ticketService) GetEventStatus(ctx context.Context, eventID string) (*model.EventStatus, error) {
	event, err := s.GetEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	waiting, err := s.bookings.CountWaitlisted(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("get event status: %w", err)
	}
	return &model.EventStatus{
		AvailableTickets: event.AvailableTickets,
		WaitingListCount: waiting,
	}, nil
}

// BookTicket validates the request and delegates the concurrency-safe
// allocation to the repository. The resulting booking is confirmed or
// waitlisted; the matching lifecycle event is published after commit.
func (s *ticketService) BookTicket(ctx context.Context, eventID string, req model.BookTicketRequest) (*model.Booking, error) {
	req.User = strings.TrimSpace(req.User)
	if err := s.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("invalid booking: %w", err)
	}
	if eventID == "" {
		return nil, fmt.Errorf("event id is required")
	}

	booking, err := s.bookings.Book(ctx, eventID, req.User)
	if err != nil {
		// Surface domain errors directly so handlers can set correct HTTP status.
		if errors.Is(err, repository.ErrEventNotFound) ||
			errors.Is(err, repository.ErrContention) {
			return nil, err
		}
		return nil, fmt.Errorf("book ticket: %w", err)
	}

	topic := pubsub.TopicBookingWaitlisted
	if booking.Status == model.StatusConfirmed {
		topic = pubsub.TopicBookingConfirmed
	}
	s.publish(topic, booking)

	s.logger.WithFields(logrus.Fields{
		"booking_id": booking.ID,
		"event_id":   booking.EventID,
		"status":     booking.Status,
	}).Info("ticket booked")
	return booking, nil
}

// CancelBooking marks the booking cancelled; a held ticket is returned to
// the event and the oldest waitlisted booking, if any, is promoted in the
// same transaction.
func (s *ticketService) CancelBooking(ctx context.Context, bookingID string) error {
	if bookingID == "" {
		return fmt.Errorf("booking id is required")
	}

	cancelled, promoted, err := s.bookings.Cancel(ctx, bookingID)
	if err != nil {
		if errors.Is(err, repository.ErrBookingNotFound) ||
			errors.Is(err, repository.ErrEventNotFound) ||
			errors.Is(err, repository.ErrAlreadyCancelled) ||
			errors.Is(err, repository.ErrContention) {
			return err
		}
		return fmt.Errorf("cancel booking: %w", err)
	}

	s.publish(pubsub.TopicBookingCancelled, cancelled)
	if promoted != nil {
		s.publish(pubsub.TopicBookingPromoted, promoted)
	}

	s.logger.WithFields(logrus.Fields{
		"booking_id": cancelled.ID,
		"event_id":   cancelled.EventID,
		"promoted":   promoted != nil,
	}).Info("booking cancelled")
	return nil
}

// ListBookings returns all bookings for an event in creation order.
func (s *ticketService) ListBookings(ctx context.Context, eventID string) ([]model.Booking, error) {
	if _, err := s.events.GetByID(ctx, eventID); err != nil {
		return nil, repository.ErrEventNotFound
	}
	return s.bookings.ListByEvent(ctx, eventID)
}

// publish emits a lifecycle event. The mutation is already committed, so a
// publish failure is logged rather than unwinding the caller.
func (s *ticketService) publish(topic string, b *model.Booking) {
	ev := pubsub.BookingEvent{BookingID: b.ID, EventID: b.EventID, User: b.User}
	if err := s.publisher.Publish(topic, ev); err != nil {
		s.logger.WithError(err).WithField("topic", topic).Warn("publish booking event")
	}
}
