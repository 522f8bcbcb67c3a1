package registry

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/modacart/modacart-backend/pkg/config"
	"github.com/modacart/modacart-backend/pkg/db/models"
	"github.com/modacart/modacart-backend/pkg/enums"
	"github.com/modacart/modacart-backend/pkg/outbox"
	"github.com/modacart/modacart-backend/pkg/outbox/payloads"
)

// EventDescriptor fixes where an event type is published and how its
// payload decodes. The aggregate type doubles as a consistency check
// against the row.
type EventDescriptor struct {
	EventType      enums.OutboxEventType
	AggregateType  enums.OutboxAggregateType
	Topic          string
	PayloadFactory func() interface{}
}

// ResolvedEvent is a fully decoded outbox row, ready to publish.
type ResolvedEvent struct {
	Descriptor EventDescriptor
	Envelope   outbox.PayloadEnvelope
	Payload    interface{}
}

type EventRegistry struct {
	entries map[enums.OutboxEventType]EventDescriptor
}

// NonRetryableError marks a failure retrying cannot fix, such as a row
// that does not decode. The publisher dead-letters these immediately.
type NonRetryableError struct {
	Err error
}

func (e NonRetryableError) Error() string {
	if e.Err == nil {
		return "non-retryable error"
	}
	return e.Err.Error()
}

func (e NonRetryableError) Unwrap() error {
	return e.Err
}

func NewNonRetryableError(err error) NonRetryableError {
	return NonRetryableError{Err: err}
}

// NewEventRegistry wires every event type the system emits to its
// topic. An event type missing here cannot leave the outbox, so new
// event types must be added alongside their payload schema.
func NewEventRegistry(cfg config.PubSubConfig) (*EventRegistry, error) {
	switch {
	case cfg.OrdersTopic == "":
		return nil, fmt.Errorf("orders topic is required")
	case cfg.RefundsTopic == "":
		return nil, fmt.Errorf("refunds topic is required")
	case cfg.NotificationTopic == "":
		return nil, fmt.Errorf("notification topic is required")
	}

	reg := &EventRegistry{entries: make(map[enums.OutboxEventType]EventDescriptor)}
	add := func(event enums.OutboxEventType, agg enums.OutboxAggregateType, topic string, factory func() interface{}) {
		reg.entries[event] = EventDescriptor{
			EventType:      event,
			AggregateType:  agg,
			Topic:          topic,
			PayloadFactory: factory,
		}
	}

	add(enums.EventOrderCreated, enums.AggregateOrder, cfg.OrdersTopic, func() interface{} { return &payloads.OrderCreatedEvent{} })
	add(enums.EventOrderCanceled, enums.AggregateOrder, cfg.OrdersTopic, func() interface{} { return &payloads.OrderCanceledEvent{} })
	add(enums.EventOrderExpired, enums.AggregateOrder, cfg.OrdersTopic, func() interface{} { return &payloads.OrderExpiredEvent{} })
	add(enums.EventOrderStatusChanged, enums.AggregateOrder, cfg.OrdersTopic, func() interface{} { return &payloads.OrderStatusChangedEvent{} })
	add(enums.EventPaymentSucceeded, enums.AggregatePayment, cfg.OrdersTopic, func() interface{} { return &payloads.PaymentStatusEvent{} })
	add(enums.EventPaymentFailed, enums.AggregatePayment, cfg.OrdersTopic, func() interface{} { return &payloads.PaymentStatusEvent{} })

	add(enums.EventReturnRequested, enums.AggregateReturnRequest, cfg.RefundsTopic, func() interface{} { return &payloads.ReturnRequestedEvent{} })
	add(enums.EventReturnRejected, enums.AggregateReturnRequest, cfg.RefundsTopic, func() interface{} { return &payloads.ReturnRejectedEvent{} })
	add(enums.EventRefundRequested, enums.AggregateRefundRequest, cfg.RefundsTopic, func() interface{} { return &payloads.RefundRequestedEvent{} })
	add(enums.EventRefundSucceeded, enums.AggregateRefundRequest, cfg.RefundsTopic, func() interface{} { return &payloads.RefundOutcomeEvent{} })
	add(enums.EventRefundFailed, enums.AggregateRefundRequest, cfg.RefundsTopic, func() interface{} { return &payloads.RefundOutcomeEvent{} })

	add(enums.EventNotificationRequested, enums.AggregateNotification, cfg.NotificationTopic, func() interface{} { return &payloads.NotificationRequestedEvent{} })

	return reg, nil
}

// Resolve checks a row against its descriptor and decodes the typed
// payload. Every failure is non-retryable: a row that fails to resolve
// now will fail identically on every retry.
func (r *EventRegistry) Resolve(event models.OutboxEvent) (*ResolvedEvent, error) {
	desc, known := r.entries[event.EventType]
	if !known {
		return nil, NewNonRetryableError(fmt.Errorf("no descriptor for event type %s", event.EventType))
	}
	if desc.AggregateType != event.AggregateType {
		return nil, NewNonRetryableError(fmt.Errorf("event %s carries aggregate %s, descriptor expects %s", event.EventType, event.AggregateType, desc.AggregateType))
	}
	if event.AggregateID == uuid.Nil {
		return nil, NewNonRetryableError(fmt.Errorf("missing aggregate_id"))
	}

	var envelope outbox.PayloadEnvelope
	if err := json.Unmarshal(event.Payload, &envelope); err != nil {
		return nil, NewNonRetryableError(fmt.Errorf("decode envelope: %w", err))
	}
	data := bytes.TrimSpace(envelope.Data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil, NewNonRetryableError(fmt.Errorf("empty payload for %s", event.EventType))
	}

	payload := desc.PayloadFactory()
	if err := json.Unmarshal(envelope.Data, payload); err != nil {
		return nil, NewNonRetryableError(fmt.Errorf("decode %s payload: %w", event.EventType, err))
	}

	return &ResolvedEvent{
		Descriptor: desc,
		Envelope:   envelope,
		Payload:    payload,
	}, nil
}
