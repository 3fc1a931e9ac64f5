// Package model defines the core domain types for the ticket allocation
// service.
package model

import "time"

// BookingStatus is the disposition of a booking. Values are stored and
// serialized lowercase.
type BookingStatus string

const (
	// StatusConfirmed means the booking currently holds a ticket.
	StatusConfirmed BookingStatus = "confirmed"
	// StatusWaitlist means the booking is queued for a ticket, FIFO by
	// creation time.
	StatusWaitlist BookingStatus = "waitlist"
	// StatusCancelled is terminal; a held ticket has been released.
	StatusCancelled BookingStatus = "cancelled"
)

// Event is the capacity ledger for a single bookable event.
// TotalTickets is fixed at creation; AvailableTickets stays within
// [0, TotalTickets] and is mutated only under the event's row lock.
type Event struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	TotalTickets     int       `json:"total_tickets"`
	AvailableTickets int       `json:"available_tickets"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// SoldOut returns true when no tickets remain.
func (e *Event) SoldOut() bool {
	return e.AvailableTickets <= 0
}

// Booking records one allocation request and its current disposition.
type Booking struct {
	ID        string        `json:"id"`
	EventID   string        `json:"event_id"`
	User      string        `json:"user"`
	Status    BookingStatus `json:"status"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// Cancelled reports whether the booking reached its terminal state.
func (b *Booking) Cancelled() bool {
	return b.Status == StatusCancelled
}

// CreateEventRequest is the payload for initializing a new event.
// TotalTickets of zero is allowed; every booking then waitlists.
type CreateEventRequest struct {
	Name         string `json:"name" validate:"required"`
	TotalTickets int    `json:"total_tickets" validate:"gte=0,lte=100000"`
}

// BookTicketRequest is the payload for booking a ticket.
type BookTicketRequest struct {
	User string `json:"user" validate:"required"`
}

// EventStatus is the read-only capacity view of an event.
type EventStatus struct {
	AvailableTickets int `json:"available_tickets"`
	WaitingListCount int `json:"waiting_list_count"`
}

// ErrorResponse is a standard JSON error envelope.
type ErrorResponse struct {
	Error string `json:"error"`
}
