package services

import (
	"context"
	"encoding/json"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const bookingConfirmedQueue = "booking.confirmed"

// BookingConfirmedEvent is consumed downstream (notifications, loyalty) after
// a booking becomes permanent. Losing one never affects seat correctness.
type BookingConfirmedEvent struct {
	BookingID   string    `json:"booking_id"`
	TripID      string    `json:"trip_id"`
	UserID      string    `json:"user_id"`
	Seats       []string  `json:"seats"`
	TotalAmount string    `json:"total_amount"`
	ConfirmedAt time.Time `json:"confirmed_at"`
}

// BookingEventPublisher writes booking events to RabbitMQ. Messages are
// persistent; the connection is per publish so a broker restart between
// bookings needs no reconnect handling here.
type BookingEventPublisher struct {
	url string
}

func NewBookingEventPublisher(url string) *BookingEventPublisher {
	return &BookingEventPublisher{url: url}
}

func (p *BookingEventPublisher) PublishBookingConfirmed(ctx context.Context, event BookingConfirmedEvent) error {
	conn, err := amqp.Dial(p.url)
	if err != nil {
		return err
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		return err
	}
	defer func() { _ = ch.Close() }()

	// Idempotent declare; durable so messages survive broker restarts.
	if _, err := ch.QueueDeclare(bookingConfirmedQueue, true, false, false, false, nil); err != nil {
		return err
	}

	body, err := json.Marshal(event)
	if err != nil {
		return err
	}

	return ch.PublishWithContext(ctx,
		"",                     // default exchange
		bookingConfirmedQueue,  // routing key = queue name
		false,                  // mandatory
		false,                  // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now().UTC(),
			Body:         body,
		},
	)
}
