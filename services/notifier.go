package services

import (
	"context"
	"fmt"
	"log/slog"

	"bus-ticketing/models"
	"bus-ticketing/utils"

	pubnub "github.com/pubnub/go"
)

// Notifier broadcasts seat-state changes to live sessions watching a trip.
// Delivery is best effort: implementations must never block the caller and
// never surface an error to it. A client that misses events recovers by
// re-reading the occupancy snapshot.
type Notifier interface {
	Broadcast(ctx context.Context, event models.SeatEvent)
}

// PubNubNotifier publishes seat events on the trip's realtime channel.
// Publishes run behind a circuit breaker so a down notifier is skipped
// instead of hammered.
type PubNubNotifier struct {
	pubnub  *pubnub.PubNub
	breaker *utils.CircuitBreaker
}

func NewPubNubNotifier(pn *pubnub.PubNub) *PubNubNotifier {
	return &PubNubNotifier{
		pubnub:  pn,
		breaker: utils.NewCircuitBreaker("seat-broadcast"),
	}
}

func TripChannel(tripID string) string {
	return fmt.Sprintf("trip-%s", tripID)
}

func (n *PubNubNotifier) Broadcast(ctx context.Context, event models.SeatEvent) {
	go func() {
		_, err := n.breaker.Execute(ctx, func() (any, error) {
			_, _, err := n.pubnub.Publish().
				Channel(TripChannel(event.TripID)).
				Message(map[string]any{
					"type":         event.Type,
					"trip_id":      event.TripID,
					"seat_numbers": event.SeatNumbers,
					"holder_id":    event.HolderID,
				}).
				Execute()
			return nil, err
		})
		if err != nil {
			slog.Warn("seat broadcast dropped",
				"trip_id", event.TripID,
				"type", event.Type,
				"error", err,
			)
		}
	}()
}

// NopNotifier drops every event. Used in tests and when PubNub keys are not
// configured.
type NopNotifier struct{}

func (NopNotifier) Broadcast(context.Context, models.SeatEvent) {}
