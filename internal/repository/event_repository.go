// Package repository implements all database queries for the ticket
// allocation engine. It uses pgx directly (no ORM) for transparency and
// performance; the transactional book/cancel flows live in
// BookingRepository.
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"ticketline/internal/model"
)

// EventRepository handles persistence for events.
type EventRepository struct {
	db *pgxpool.Pool
}

// NewEventRepository constructs an EventRepository.
func NewEventRepository(db *pgxpool.Pool) *EventRepository {
	return &EventRepository{db: db}
}

// Create inserts a new event with a generated UUID and a full ticket pool.
// No locking is needed: there is no prior state to race against.
func (r *EventRepository) Create(ctx context.Context, req model.CreateEventRequest) (*model.Event, error) {
	now := time.Now().UTC()
	event := &model.Event{
		ID:               uuid.New().String(),
		Name:             req.Name,
		TotalTickets:     req.TotalTickets,
		AvailableTickets: req.TotalTickets,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	_, err := r.db.Exec(ctx,
		`INSERT INTO events (id, name, total_tickets, available_tickets, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		event.ID, event.Name, event.TotalTickets, event.AvailableTickets, event.CreatedAt, event.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert event: %w", classify(err))
	}
	return event, nil
}

// List returns all events ordered by creation time descending.
func (r *EventRepository) List(ctx context.Context) ([]model.Event, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, name, total_tickets, available_tickets, created_at, updated_at
		 FROM events
		 ORDER BY created_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var events []model.Event
	for rows.Next() {
		var e model.Event
		if err := rows.Scan(&e.ID, &e.Name, &e.TotalTickets, &e.AvailableTickets, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// GetByID returns a single event or ErrEventNotFound. The read takes no
// lock, so the counter is eventually consistent with in-flight transactions.
func (r *EventRepository) GetByID(ctx context.Context, id string) (*model.Event, error) {
	var e model.Event
	err := r.db.QueryRow(ctx,
		`SELECT id, name, total_tickets, available_tickets, created_at, updated_at
		 FROM events WHERE id = $1`,
		id,
	).Scan(&e.ID, &e.Name, &e.TotalTickets, &e.AvailableTickets, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrEventNotFound
		}
		return nil, fmt.Errorf("get event: %w", err)
	}
	return &e, nil
}
