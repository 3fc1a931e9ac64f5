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

// BookingRepository owns the transactional allocation flows. Every mutation
// of an event's capacity, and of any booking belonging to it, happens inside
// a transaction that first takes SELECT ... FOR UPDATE on the event row.
//
// That single row lock is the whole concurrency model:
//
//   - two bookings for the same event serialize on it, so the read-decide-
//     write sequence on available_tickets can never lose an update or
//     oversell;
//   - booking and cancellation serialize on it, so a freed ticket is either
//     handed to the oldest waitlisted booking or returned to the pool before
//     any new booking can observe it;
//   - two cancellations serialize on it, so they cannot race to promote the
//     same waitlisted booking.
//
// Operations on different events take different row locks and run fully in
// parallel.
type BookingRepository struct {
	db *pgxpool.Pool
}

// NewBookingRepository constructs a BookingRepository.
func NewBookingRepository(db *pgxpool.Pool) *BookingRepository {
	return &BookingRepository{db: db}
}

// Book creates a booking for the given event as one atomic unit of work.
// The booking is confirmed when a ticket is available under the lock and
// waitlisted otherwise; either way exactly one booking row is created.
//
// available_tickets must be re-read after the lock is acquired. A value read
// before the lock may be stale the moment another transaction commits, which
// is exactly the lost-update race this method exists to prevent.
func (r *BookingRepository) Book(ctx context.Context, eventID, user string) (booking *model.Booking, err error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	// Ensure the transaction is always resolved.
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	// Exclusive row lock on the event. Concurrent book/cancel calls for the
	// same event queue up here until we commit or roll back.
	var available int
	err = tx.QueryRow(ctx,
		`SELECT available_tickets
		 FROM events
		 WHERE id = $1
		 FOR UPDATE`,
		eventID,
	).Scan(&available)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrEventNotFound
		}
		return nil, fmt.Errorf("lock event row: %w", classify(err))
	}

	now := time.Now().UTC()
	status := model.StatusWaitlist
	if available > 0 {
		status = model.StatusConfirmed
		_, err = tx.Exec(ctx,
			`UPDATE events
			 SET available_tickets = available_tickets - 1, updated_at = $2
			 WHERE id = $1`,
			eventID, now,
		)
		if err != nil {
			return nil, fmt.Errorf("decrement available tickets: %w", classify(err))
		}
	}

	booking = &model.Booking{
		ID:        uuid.New().String(),
		EventID:   eventID,
		User:      user,
		Status:    status,
		CreatedAt: now,
		UpdatedAt: now,
	}
	_, err = tx.Exec(ctx,
		`INSERT INTO bookings (id, event_id, user_name, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		booking.ID, booking.EventID, booking.User, booking.Status, booking.CreatedAt, booking.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert booking: %w", classify(err))
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", classify(err))
	}
	return booking, nil
}

// Cancel marks the booking cancelled and, when it held a confirmed ticket,
// returns that ticket to the event and promotes the oldest waitlisted
// booking in the same transaction. promoted is nil when nobody was waiting.
//
// Freeing the ticket and promoting must happen under one event lock: if the
// lock were released in between, a fresh booking could grab the freed ticket
// ahead of a longer-waiting one.
func (r *BookingRepository) Cancel(ctx context.Context, bookingID string) (cancelled, promoted *model.Booking, err error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	// Load the booking to learn its owning event. No lock yet; the fast
	// rejections below are rechecked once the lock is held.
	b := &model.Booking{ID: bookingID}
	err = tx.QueryRow(ctx,
		`SELECT event_id, user_name, status, created_at
		 FROM bookings WHERE id = $1`,
		bookingID,
	).Scan(&b.EventID, &b.User, &b.Status, &b.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil, ErrBookingNotFound
		}
		return nil, nil, fmt.Errorf("get booking: %w", err)
	}
	if b.Cancelled() {
		return nil, nil, ErrAlreadyCancelled
	}

	// Lock the owning event row. All booking-row mutations for this event
	// happen under this lock.
	var available int
	err = tx.QueryRow(ctx,
		`SELECT available_tickets
		 FROM events
		 WHERE id = $1
		 FOR UPDATE`,
		b.EventID,
	).Scan(&available)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Internal consistency fault: a booking referencing a missing event.
			return nil, nil, ErrEventNotFound
		}
		return nil, nil, fmt.Errorf("lock event row: %w", classify(err))
	}

	// Re-read the status now that the lock is held. A concurrent
	// cancellation may have won the race between our first read and the
	// lock acquisition; the loser must fail, not double-free the ticket.
	err = tx.QueryRow(ctx,
		`SELECT status FROM bookings WHERE id = $1`, bookingID,
	).Scan(&b.Status)
	if err != nil {
		return nil, nil, fmt.Errorf("reread booking status: %w", err)
	}
	if b.Cancelled() {
		return nil, nil, ErrAlreadyCancelled
	}

	wasConfirmed := b.Status == model.StatusConfirmed
	now := time.Now().UTC()

	_, err = tx.Exec(ctx,
		`UPDATE bookings SET status = $2, updated_at = $3 WHERE id = $1`,
		bookingID, model.StatusCancelled, now,
	)
	if err != nil {
		return nil, nil, fmt.Errorf("cancel booking: %w", classify(err))
	}
	b.Status = model.StatusCancelled
	b.UpdatedAt = now

	if wasConfirmed {
		// The cancelled booking's ticket returns to the pool.
		available++

		// Oldest waitlisted booking for this event, FIFO with a
		// deterministic tie-break on insertion order.
		w := &model.Booking{EventID: b.EventID}
		err = tx.QueryRow(ctx,
			`SELECT id, user_name, created_at
			 FROM bookings
			 WHERE event_id = $1 AND status = $2
			 ORDER BY created_at ASC, seq ASC
			 LIMIT 1`,
			b.EventID, model.StatusWaitlist,
		).Scan(&w.ID, &w.User, &w.CreatedAt)
		switch {
		case err == nil:
			// Hand the freed ticket straight to the promoted booking; the
			// counter ends up where it started.
			available--
			_, err = tx.Exec(ctx,
				`UPDATE bookings SET status = $2, updated_at = $3 WHERE id = $1`,
				w.ID, model.StatusConfirmed, now,
			)
			if err != nil {
				return nil, nil, fmt.Errorf("promote booking: %w", classify(err))
			}
			w.Status = model.StatusConfirmed
			w.UpdatedAt = now
			promoted = w
		case errors.Is(err, pgx.ErrNoRows):
			// Nobody waiting; the ticket stays in the pool.
			err = nil
		default:
			return nil, nil, fmt.Errorf("find oldest waitlisted booking: %w", classify(err))
		}

		_, err = tx.Exec(ctx,
			`UPDATE events SET available_tickets = $2, updated_at = $3 WHERE id = $1`,
			b.EventID, available, now,
		)
		if err != nil {
			return nil, nil, fmt.Errorf("update available tickets: %w", classify(err))
		}
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, nil, fmt.Errorf("commit transaction: %w", classify(err))
	}
	return b, promoted, nil
}

// GetByID returns a single booking or ErrBookingNotFound.
func (r *BookingRepository) GetByID(ctx context.Context, id string) (*model.Booking, error) {
	var b model.Booking
	err := r.db.QueryRow(ctx,
		`SELECT id, event_id, user_name, status, created_at, updated_at
		 FROM bookings WHERE id = $1`,
		id,
	).Scan(&b.ID, &b.EventID, &b.User, &b.Status, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrBookingNotFound
		}
		return nil, fmt.Errorf("get booking: %w", err)
	}
	return &b, nil
}

// ListByEvent returns all bookings for an event in creation order.
func (r *BookingRepository) ListByEvent(ctx context.Context, eventID string) ([]model.Booking, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, event_id, user_name, status, created_at, updated_at
		 FROM bookings
		 WHERE event_id = $1
		 ORDER BY created_at ASC, seq ASC`,
		eventID,
	)
	if err != nil {
		return nil, fmt.Errorf("list bookings: %w", err)
	}
	defer rows.Close()

	var bookings []model.Booking
	for rows.Next() {
		var b model.Booking
		if err := rows.Scan(&b.ID, &b.EventID, &b.User, &b.Status, &b.CreatedAt, &b.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan booking: %w", err)
		}
		bookings = append(bookings, b)
	}
	return bookings, rows.Err()
}

// CountWaitlisted counts the bookings queued for a ticket on the event.
func (r *BookingRepository) CountWaitlisted(ctx context.Context, eventID string) (int, error) {
	var n int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM bookings WHERE event_id = $1 AND status = $2`,
		eventID, model.StatusWaitlist,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count waitlisted bookings: %w", err)
	}
	return n, nil
}
