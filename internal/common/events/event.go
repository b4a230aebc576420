package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/oklog/ulid/v2"
)

// Event represents a domain event envelope
type Event struct {
	ID            string          `json:"event_id"`
	Type          string          `json:"type"`
	Version       int             `json:"version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	Data          json.RawMessage `json:"data"`
}

// NewEvent creates a new event
func NewEvent(eventType, aggregateType, aggregateID string, data interface{}) (*Event, error) {
	dataBytes, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	return &Event{
		ID:            ulid.Make().String(),
		Type:          eventType,
		Version:       1,
		OccurredAt:    time.Now().UTC(),
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		Data:          dataBytes,
	}, nil
}

// WithCorrelation adds a correlation ID
func (e *Event) WithCorrelation(correlationID string) *Event {
	e.CorrelationID = correlationID
	return e
}

// DecodeData decodes the event data into a struct
func (e *Event) DecodeData(v interface{}) error {
	return json.Unmarshal(e.Data, v)
}

// Publisher publishes events to a message broker
type Publisher interface {
	Publish(ctx context.Context, event *Event) error
}

// Event types emitted by the payment integration.
const (
	EventReferenceGenerated = "easypay.reference.generated"
	EventPaymentRegistered  = "easypay.payment.registered"
	EventScanCompleted      = "easypay.scan.completed"
)

// ReferenceGeneratedData is the data for easypay.reference.generated events
type ReferenceGeneratedData struct {
	OrderNumber string `json:"order_number"`
	StoreID     string `json:"store_id"`
	Entity      int    `json:"entity"`
	Reference   int    `json:"reference"`
	Value       string `json:"value"`
	Split       bool   `json:"split"`
}

// PaymentRegisteredData is the data for easypay.payment.registered events
type PaymentRegisteredData struct {
	OrderID       string    `json:"order_id"`
	OrderNumber   string    `json:"order_number"`
	PaymentID     string    `json:"payment_id"`
	TransactionID string    `json:"transaction_id"`
	Value         string    `json:"value"`
	AuthorizedAt  time.Time `json:"authorized_at"`
}

// ScanCompletedData is the data for easypay.scan.completed events
type ScanCompletedData struct {
	StoresScanned int       `json:"stores_scanned"`
	Registered    int       `json:"registered"`
	Failed        int       `json:"failed"`
	FinishedAt    time.Time `json:"finished_at"`
}
