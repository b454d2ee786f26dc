package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"

	"github.com/cermofi/ReserveUMT/pkg/logger"
)

type Publisher interface {
	Publish(ctx context.Context, subject string, data interface{}) error
	Close() error
}

type NATSEventBus struct {
	conn *nats.Conn
}

func NewNATSEventBus(url string) (*NATSEventBus, error) {
	conn, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return &NATSEventBus{conn: conn}, nil
}

func (n *NATSEventBus) Publish(ctx context.Context, subject string, data interface{}) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal event data: %w", err)
	}

	logger.DebugContext(ctx, "publishing event", "subject", subject, "data", string(payload))

	return n.conn.Publish(subject, payload)
}

func (n *NATSEventBus) Close() error {
	n.conn.Close()
	return nil
}

// NopBus is used when no NATS URL is configured.
type NopBus struct{}

func (NopBus) Publish(context.Context, string, interface{}) error { return nil }
func (NopBus) Close() error                                       { return nil }

// Event subjects
const (
	ReservationConfirmed = "reservation.confirmed"
	ReservationUpdated   = "reservation.updated"
	ReservationDeleted   = "reservation.deleted"
	RecurringRuleCreated = "reservation.rule.created"
	RecurringRuleDeleted = "reservation.rule.deleted"
)

type ReservationConfirmedEvent struct {
	BookingID int64  `json:"booking_id"`
	StartTs   int64  `json:"start_ts"`
	EndTs     int64  `json:"end_ts"`
	Space     string `json:"space"`
	Name      string `json:"name"`
	Actor     string `json:"actor"`
}

type ReservationUpdatedEvent struct {
	BookingID int64  `json:"booking_id"`
	StartTs   int64  `json:"start_ts"`
	EndTs     int64  `json:"end_ts"`
	Space     string `json:"space"`
	Actor     string `json:"actor"`
}

type ReservationDeletedEvent struct {
	BookingID int64  `json:"booking_id"`
	Actor     string `json:"actor"`
}

type RecurringRuleCreatedEvent struct {
	RuleID  int64  `json:"rule_id"`
	Title   string `json:"title"`
	Space   string `json:"space"`
	Weekday int    `json:"weekday"`
}

type RecurringRuleDeletedEvent struct {
	RuleID int64 `json:"rule_id"`
}
