package services

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"bus-ticketing/config"

	pubnub "github.com/pubnub/go/v7"
	"golang.org/x/crypto/bcrypt"
)

// paymentPayload is the provider's notification message. The trip, user and
// seat fields are merchant metadata echoed back from payment creation.
type paymentPayload struct {
	PaymentID string   `json:"payment_id"`
	Status    string   `json:"status"`
	Secret    string   `json:"secret"`
	TripID    string   `json:"trip_id"`
	UserID    string   `json:"user_id"`
	Seats     []string `json:"seats"`
}

// PaymentListener subscribes to the payment provider's notification channel
// and hands successful payments to the booking finalizer. Payment processing
// itself lives with the provider; this is only the trigger boundary.
type PaymentListener struct {
	pn         *pubnub.PubNub
	listener   *pubnub.Listener
	bookings   *BookingService
	channel    string
	secretHash string
}

func NewPaymentListener(cfg *config.Config, bookings *BookingService) *PaymentListener {
	pnCfg := pubnub.NewConfigWithUserId(pubnub.UserId(cfg.PaymentListenerUUID))
	pnCfg.SubscribeKey = cfg.PaymentSubscribeKey

	return &PaymentListener{
		pn:         pubnub.NewPubNub(pnCfg),
		listener:   pubnub.NewListener(),
		bookings:   bookings,
		channel:    cfg.PaymentChannel,
		secretHash: cfg.PaymentSecretHash,
	}
}

// Start blocks until the context is cancelled.
func (l *PaymentListener) Start(ctx context.Context) {
	l.pn.AddListener(l.listener)
	l.pn.Subscribe().Channels([]string{l.channel}).Execute()

	for {
		select {
		case st := <-l.listener.Status:
			switch st.Category {
			case pubnub.PNConnectedCategory:
				slog.Info("payment listener connected", "channel", l.channel)
			case pubnub.PNReconnectedCategory:
				slog.Info("payment listener reconnected", "channel", l.channel)
			case pubnub.PNDisconnectedCategory:
				slog.Warn("payment listener disconnected", "channel", l.channel)
			default:
				slog.Debug("payment listener status", "category", st.Category)
			}

		case message := <-l.listener.Message:
			l.handleMessage(ctx, message)

		case <-ctx.Done():
			l.pn.Unsubscribe().Channels([]string{l.channel}).Execute()
			slog.Info("payment listener stopped")
			return
		}
	}
}

func (l *PaymentListener) handleMessage(ctx context.Context, message *pubnub.PNMessage) {
	payload, ok := l.decode(message)
	if !ok {
		return
	}

	if !l.verifySecret(payload.Secret) {
		slog.Warn("payment notification with bad secret dropped", "payment_id", payload.PaymentID)
		return
	}

	if payload.Status != "success" {
		slog.Info("ignoring non-success payment notification",
			"payment_id", payload.PaymentID,
			"status", payload.Status,
		)
		return
	}

	booking, err := l.bookings.FinalizeBooking(ctx, payload.TripID, payload.Seats, payload.UserID, payload.PaymentID)
	if err != nil {
		slog.Error("failed to finalize paid booking",
			"payment_id", payload.PaymentID,
			"trip_id", payload.TripID,
			"error", err,
		)
		return
	}

	slog.Info("booking finalized from payment notification",
		"payment_id", payload.PaymentID,
		"booking_id", booking.ID,
	)
}

func (l *PaymentListener) decode(message *pubnub.PNMessage) (*paymentPayload, bool) {
	var payload paymentPayload

	switch msg := message.Message.(type) {
	case string:
		if err := json.NewDecoder(strings.NewReader(msg)).Decode(&payload); err != nil {
			slog.Warn("unparseable payment notification", "error", err)
			return nil, false
		}
	case map[string]any:
		raw, err := json.Marshal(msg)
		if err != nil {
			return nil, false
		}
		if err := json.Unmarshal(raw, &payload); err != nil {
			slog.Warn("unparseable payment notification", "error", err)
			return nil, false
		}
	default:
		slog.Warn("unexpected payment notification type")
		return nil, false
	}

	return &payload, true
}

func (l *PaymentListener) verifySecret(secret string) bool {
	if l.secretHash == "" {
		// No shared secret configured (development); accept everything.
		return true
	}
	return bcrypt.CompareHashAndPassword([]byte(l.secretHash), []byte(secret)) == nil
}
