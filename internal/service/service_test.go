package service

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ticketline/internal/model"
	"ticketline/internal/pubsub"
	"ticketline/internal/repository"
)

// Mock stores for testing.
type mockEventStore struct {
	createFunc func(ctx context.Context, req model.CreateEventRequest) (*model.Event, error)
	getFunc    func(ctx context.Context, id string) (*model.Event, error)
	listFunc   func(ctx context.Context) ([]model.Event, error)
}

func (m *mockEventStore) Create(ctx context.Context, req model.CreateEventRequest) (*model.Event, error) {
	if m.createFunc != nil {
		return m.createFunc(ctx, req)
	}
	return &model.Event{ID: "ev-1", Name: req.Name, TotalTickets: req.TotalTickets, AvailableTickets: req.TotalTickets}, nil
}

func (m *mockEventStore) GetByID(ctx context.Context, id string) (*model.Event, error) {
	if m.getFunc != nil {
		return m.getFunc(ctx, id)
	}
	return &model.Event{ID: id}, nil
}

func (m *mockEventStore) List(ctx context.Context) ([]model.Event, error) {
	if m.listFunc != nil {
		return m.listFunc(ctx)
	}
	return []model.Event{}, nil
}

type mockBookingStore struct {
	bookFunc   func(ctx context.Context, eventID, user string) (*model.Booking, error)
	cancelFunc func(ctx context.Context, bookingID string) (*model.Booking, *model.Booking, error)
	listFunc   func(ctx context.Context, eventID string) ([]model.Booking, error)
	countFunc  func(ctx context.Context, eventID string) (int, error)
}

func (m *mockBookingStore) Book(ctx context.Context, eventID, user string) (*model.Booking, error) {
	if m.bookFunc != nil {
		return m.bookFunc(ctx, eventID, user)
	}
	return &model.Booking{ID: "bk-1", EventID: eventID, User: user, Status: model.StatusConfirmed}, nil
}

func (m *mockBookingStore) Cancel(ctx context.Context, bookingID string) (*model.Booking, *model.Booking, error) {
	if m.cancelFunc != nil {
		return m.cancelFunc(ctx, bookingID)
	}
	return &model.Booking{ID: bookingID, Status: model.StatusCancelled}, nil, nil
}

func (m *mockBookingStore) ListByEvent(ctx context.Context, eventID string) ([]model.Booking, error) {
	if m.listFunc != nil {
		return m.listFunc(ctx, eventID)
	}
	return []model.Booking{}, nil
}

func (m *mockBookingStore) CountWaitlisted(ctx context.Context, eventID string) (int, error) {
	if m.countFunc != nil {
		return m.countFunc(ctx, eventID)
	}
	return 0, nil
}

// mockPublisher records every published topic and payload.
type mockPublisher struct {
	topics []string
	events []pubsub.BookingEvent
}

func (m *mockPublisher) Publish(topic string, ev pubsub.BookingEvent) error {
	m.topics = append(m.topics, topic)
	m.events = append(m.events, ev)
	return nil
}

func newTestService(events EventStore, bookings BookingStore, pub Publisher) TicketService {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return NewTicketService(logger, events, bookings, pub)
}

func TestInitializeEvent_RequiresName(t *testing.T) {
	created := false
	events := &mockEventStore{
		createFunc: func(ctx context.Context, req model.CreateEventRequest) (*model.Event, error) {
			created = true
			return nil, nil
		},
	}
	svc := newTestService(events, &mockBookingStore{}, &mockPublisher{})

	_, err := svc.InitializeEvent(context.Background(), model.CreateEventRequest{Name: "   ", TotalTickets: 10})

	require.Error(t, err)
	assert.False(t, created, "store must not be called on validation failure")
}

func TestInitializeEvent_RejectsNegativeCapacity(t *testing.T) {
	svc := newTestService(&mockEventStore{}, &mockBookingStore{}, &mockPublisher{})

	_, err := svc.InitializeEvent(context.Background(), model.CreateEventRequest{Name: "Concert", TotalTickets: -1})

	require.Error(t, err)
}

func TestInitializeEvent_AllowsZeroCapacity(t *testing.T) {
	svc := newTestService(&mockEventStore{}, &mockBookingStore{}, &mockPublisher{})

	event, err := svc.InitializeEvent(context.Background(), model.CreateEventRequest{Name: "Pop-up show", TotalTickets: 0})

	require.NoError(t, err)
	assert.Equal(t, 0, event.TotalTickets)
}

func TestInitializeEvent_TrimsName(t *testing.T) {
	var gotName string
	events := &mockEventStore{
		createFunc: func(ctx context.Context, req model.CreateEventRequest) (*model.Event, error) {
			gotName = req.Name
			return &model.Event{ID: "ev-1", Name: req.Name}, nil
		},
	}
	svc := newTestService(events, &mockBookingStore{}, &mockPublisher{})

	_, err := svc.InitializeEvent(context.Background(), model.CreateEventRequest{Name: "  Concert  ", TotalTickets: 5})

	require.NoError(t, err)
	assert.Equal(t, "Concert", gotName)
}

func TestBookTicket_RequiresUser(t *testing.T) {
	booked := false
	bookings := &mockBookingStore{
		bookFunc: func(ctx context.Context, eventID, user string) (*model.Booking, error) {
			booked = true
			return nil, nil
		},
	}
	svc := newTestService(&mockEventStore{}, bookings, &mockPublisher{})

	_, err := svc.BookTicket(context.Background(), "ev-1", model.BookTicketRequest{User: "  "})

	require.Error(t, err)
	assert.False(t, booked)
}

func TestBookTicket_PublishesConfirmed(t *testing.T) {
	pub := &mockPublisher{}
	svc := newTestService(&mockEventStore{}, &mockBookingStore{}, pub)

	booking, err := svc.BookTicket(context.Background(), "ev-1", model.BookTicketRequest{User: "alice"})

	require.NoError(t, err)
	assert.Equal(t, model.StatusConfirmed, booking.Status)
	require.Len(t, pub.topics, 1)
	assert.Equal(t, pubsub.TopicBookingConfirmed, pub.topics[0])
	assert.Equal(t, booking.ID, pub.events[0].BookingID)
}

func TestBookTicket_PublishesWaitlisted(t *testing.T) {
	pub := &mockPublisher{}
	bookings := &mockBookingStore{
		bookFunc: func(ctx context.Context, eventID, user string) (*model.Booking, error) {
			return &model.Booking{ID: "bk-2", EventID: eventID, User: user, Status: model.StatusWaitlist}, nil
		},
	}
	svc := newTestService(&mockEventStore{}, bookings, pub)

	booking, err := svc.BookTicket(context.Background(), "ev-1", model.BookTicketRequest{User: "bob"})

	require.NoError(t, err)
	assert.Equal(t, model.StatusWaitlist, booking.Status)
	require.Len(t, pub.topics, 1)
	assert.Equal(t, pubsub.TopicBookingWaitlisted, pub.topics[0])
}

func TestBookTicket_EventNotFoundPassesThrough(t *testing.T) {
	bookings := &mockBookingStore{
		bookFunc: func(ctx context.Context, eventID, user string) (*model.Booking, error) {
			return nil, repository.ErrEventNotFound
		},
	}
	svc := newTestService(&mockEventStore{}, bookings, &mockPublisher{})

	_, err := svc.BookTicket(context.Background(), "missing", model.BookTicketRequest{User: "alice"})

	require.ErrorIs(t, err, repository.ErrEventNotFound)
}

func TestCancelBooking_PublishesCancelledAndPromoted(t *testing.T) {
	pub := &mockPublisher{}
	bookings := &mockBookingStore{
		cancelFunc: func(ctx context.Context, bookingID string) (*model.Booking, *model.Booking, error) {
			cancelled := &model.Booking{ID: bookingID, EventID: "ev-1", User: "alice", Status: model.StatusCancelled}
			promoted := &model.Booking{ID: "bk-2", EventID: "ev-1", User: "bob", Status: model.StatusConfirmed}
			return cancelled, promoted, nil
		},
	}
	svc := newTestService(&mockEventStore{}, bookings, pub)

	err := svc.CancelBooking(context.Background(), "bk-1")

	require.NoError(t, err)
	require.Equal(t, []string{pubsub.TopicBookingCancelled, pubsub.TopicBookingPromoted}, pub.topics)
	assert.Equal(t, "bk-1", pub.events[0].BookingID)
	assert.Equal(t, "bk-2", pub.events[1].BookingID)
}

func TestCancelBooking_NoPromotionPublishesCancelledOnly(t *testing.T) {
	pub := &mockPublisher{}
	svc := newTestService(&mockEventStore{}, &mockBookingStore{}, pub)

	err := svc.CancelBooking(context.Background(), "bk-1")

	require.NoError(t, err)
	assert.Equal(t, []string{pubsub.TopicBookingCancelled}, pub.topics)
}

func TestCancelBooking_AlreadyCancelledPassesThrough(t *testing.T) {
	pub := &mockPublisher{}
	bookings := &mockBookingStore{
		cancelFunc: func(ctx context.Context, bookingID string) (*model.Booking, *model.Booking, error) {
			return nil, nil, repository.ErrAlreadyCancelled
		},
	}
	svc := newTestService(&mockEventStore{}, bookings, pub)

	err := svc.CancelBooking(context.Background(), "bk-1")

	require.ErrorIs(t, err, repository.ErrAlreadyCancelled)
	assert.Empty(t, pub.topics, "no event may be published for a rejected cancellation")
}

func TestGetEventStatus_CombinesCounterAndWaitlist(t *testing.T) {
	events := &mockEventStore{
		getFunc: func(ctx context.Context, id string) (*model.Event, error) {
			return &model.Event{ID: id, TotalTickets: 3, AvailableTickets: 0, CreatedAt: time.Now()}, nil
		},
	}
	bookings := &mockBookingStore{
		countFunc: func(ctx context.Context, eventID string) (int, error) {
			return 7, nil
		},
	}
	svc := newTestService(events, bookings, &mockPublisher{})

	status, err := svc.GetEventStatus(context.Background(), "ev-1")

	require.NoError(t, err)
	assert.Equal(t, 0, status.AvailableTickets)
	assert.Equal(t, 7, status.WaitingListCount)
}

func TestGetEventStatus_EventNotFound(t *testing.T) {
	events := &mockEventStore{
		getFunc: func(ctx context.Context, id string) (*model.Event, error) {
			return nil, repository.ErrEventNotFound
		},
	}
	svc := newTestService(events, &mockBookingStore{}, &mockPublisher{})

	_, err := svc.GetEventStatus(context.Background(), "missing")

	require.ErrorIs(t, err, repository.ErrEventNotFound)
}

func TestListBookings_EventMissing(t *testing.T) {
	events := &mockEventStore{
		getFunc: func(ctx context.Context, id string) (*model.Event, error) {
			return nil, repository.ErrEventNotFound
		},
	}
	svc := newTestService(events, &mockBookingStore{}, &mockPublisher{})

	_, err := svc.ListBookings(context.Background(), "missing")

	require.ErrorIs(t, err, repository.ErrEventNotFound)
}
