// Package pubsub publishes booking lifecycle events over watermill so other
// components can react to allocation changes without touching the engine.
// The service binary uses the in-process gochannel transport; swapping in a
// broker-backed publisher only requires another message.Publisher.
package pubsub

import (
	"encoding/json"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/google/uuid"
)

// Topics carrying booking lifecycle events.
const (
	TopicBookingConfirmed  = "booking.confirmed"
	TopicBookingWaitlisted = "booking.waitlisted"
	TopicBookingCancelled  = "booking.cancelled"
	TopicBookingPromoted   = "booking.promoted"
)

// Topics lists every booking lifecycle topic, for subscribers that want all
// of them.
var Topics = []string{
	TopicBookingConfirmed,
	TopicBookingWaitlisted,
	TopicBookingCancelled,
	TopicBookingPromoted,
}

// BookingEvent is the payload published on every booking lifecycle topic.
type BookingEvent struct {
	BookingID string `json:"booking_id"`
	EventID   string `json:"event_id"`
	User      string `json:"user"`
}

// Publisher wraps a watermill publisher with JSON marshalling of
// BookingEvent payloads.
type Publisher struct {
	pub message.Publisher
}

// NewPublisher constructs a Publisher on top of any watermill publisher.
func NewPublisher(pub message.Publisher) *Publisher {
	return &Publisher{pub: pub}
}

// Publish emits one BookingEvent on the given topic.
func (p *Publisher) Publish(topic string, ev BookingEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", topic, err)
	}
	return p.pub.Publish(topic, message.NewMessage(uuid.New().String(), payload))
}

// NewGoChannel builds the in-process pub/sub used by the service binary.
func NewGoChannel() *gochannel.GoChannel {
	return gochannel.NewGoChannel(gochannel.Config{}, watermill.NewStdLogger(false, false))
}
