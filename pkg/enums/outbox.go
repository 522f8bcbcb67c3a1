package enums

import "fmt"

// OutboxAggregateType maps to the aggregate_type enum in Postgres.
type OutboxAggregateType string

const (
	AggregateOrder         OutboxAggregateType = "order"
	AggregatePayment       OutboxAggregateType = "payment"
	AggregateReturnRequest OutboxAggregateType = "return_request"
	AggregateRefundRequest OutboxAggregateType = "refund_request"
	AggregateNotification  OutboxAggregateType = "notification"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateOrder,
	AggregatePayment,
	AggregateReturnRequest,
	AggregateRefundRequest,
	AggregateNotification,
}

// IsValid reports whether the value matches the canonical aggregate_type enum.
func (a OutboxAggregateType) IsValid() bool {
	for _, candidate := range validAggregateTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	for _, candidate := range validAggregateTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid aggregate type %q", value)
}

// OutboxEventType maps to the event_type enum in Postgres.
type OutboxEventType string

const (
	EventOrderCreated          OutboxEventType = "order_created"
	EventOrderPaid             OutboxEventType = "order_paid"
	EventOrderCanceled         OutboxEventType = "order_canceled"
	EventOrderExpired          OutboxEventType = "order_expired"
	EventOrderStatusChanged    OutboxEventType = "order_status_changed"
	EventPaymentSucceeded      OutboxEventType = "payment_succeeded"
	EventPaymentFailed         OutboxEventType = "payment_failed"
	EventReturnRequested       OutboxEventType = "return_requested"
	EventReturnRejected        OutboxEventType = "return_rejected"
	EventRefundRequested       OutboxEventType = "refund_requested"
	EventRefundSucceeded       OutboxEventType = "refund_succeeded"
	EventRefundFailed          OutboxEventType = "refund_failed"
	EventNotificationRequested OutboxEventType = "notification_requested"
)

var validOutboxEventTypes = []OutboxEventType{
	EventOrderCreated,
	EventOrderPaid,
	EventOrderCanceled,
	EventOrderExpired,
	EventOrderStatusChanged,
	EventPaymentSucceeded,
	EventPaymentFailed,
	EventReturnRequested,
	EventReturnRejected,
	EventRefundRequested,
	EventRefundSucceeded,
	EventRefundFailed,
	EventNotificationRequested,
}

// IsValid reports whether the value matches the canonical event_type enum.
func (e OutboxEventType) IsValid() bool {
	for _, candidate := range validOutboxEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validOutboxEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid event type %q", value)
}
