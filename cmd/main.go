// cmd/main.go is the application entry point.
// It wires together all layers and starts the HTTP server.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"ticketline/internal/database"
	"ticketline/internal/handler"
	"ticketline/internal/pubsub"
	"ticketline/internal/repository"
	"ticketline/internal/service"
)

func main() {
	ctx := context.Background()

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	// ── 1. Connect to PostgreSQL and apply the schema ─────────────────────
	pool, err := database.NewPool(ctx)
	if err != nil {
		logger.WithError(err).Fatal("database connection failed")
	}
	defer pool.Close()
	if err := database.Migrate(ctx, pool); err != nil {
		logger.WithError(err).Fatal("schema migration failed")
	}
	logger.Info("connected to postgres")

	// ── 2. Booking lifecycle events over an in-process pub/sub ───────────
	goch := pubsub.NewGoChannel()
	defer goch.Close()
	for _, topic := range pubsub.Topics {
		messages, err := goch.Subscribe(ctx, topic)
		if err != nil {
			logger.WithError(err).Fatal("subscribe to booking events failed")
		}
		go logBookingEvents(logger, topic, messages)
	}
	publisher := pubsub.NewPublisher(goch)

	// ── 3. Wire up layers ────────────────────────────────────────────────
	eventRepo := repository.NewEventRepository(pool)
	bookingRepo := repository.NewBookingRepository(pool)
	ticketSvc := service.NewTicketService(logger, eventRepo, bookingRepo, publisher)
	ticketHandler := handler.NewTicketHandler(ticketSvc)

	// ── 4. Build the router ───────────────────────────────────────────────
	r := chi.NewRouter()

	// Global middleware stack
	r.Use(chimiddleware.Recoverer) // recover from panics, return 500
	r.Use(chimiddleware.RequestID) // attach request IDs
	r.Use(chimiddleware.RealIP)    // trust X-Forwarded-For
	r.Use(handler.Logger(logger))  // structured access log
	r.Use(handler.CORS)            // permissive CORS

	// Health
	r.Get("/health", handler.HealthCheck)

	// API routes
	r.Route("/events", func(r chi.Router) {
		r.Post("/", ticketHandler.CreateEvent)
		r.Get("/", ticketHandler.ListEvents)
		r.Get("/{id}", ticketHandler.GetEvent)
		r.Get("/{id}/status", ticketHandler.EventStatus)
		r.Get("/{id}/bookings", ticketHandler.ListBookings)
		r.Post("/{id}/bookings", ticketHandler.BookTicket)
	})
	r.Delete("/bookings/{id}", ticketHandler.CancelBooking)

	// ── 5. Start server with graceful shutdown ────────────────────────────
	port := getEnv("PORT", "8080")
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Run in background goroutine so we can listen for shutdown signal.
	go func() {
		logger.WithField("port", port).Info("server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("server error")
		}
	}()

	// Block until SIGINT or SIGTERM.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Fatal("graceful shutdown failed")
	}
	logger.Info("server stopped")
}

// logBookingEvents drains one lifecycle topic into the structured log.
func logBookingEvents(logger *logrus.Logger, topic string, messages <-chan *message.Message) {
	for m := range messages {
		logger.WithFields(logrus.Fields{
			"topic":   topic,
			"payload": string(m.Payload),
		}).Info("booking event")
		m.Ack()
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
