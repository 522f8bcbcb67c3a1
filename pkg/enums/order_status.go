package enums

import "fmt"

// OrderStatus tracks the lifecycle of a customer order.
type OrderStatus string

const (
	OrderStatusPendingPayment OrderStatus = "pending_payment"
	OrderStatusPaid           OrderStatus = "paid"
	OrderStatusProcessing     OrderStatus = "processing"
	OrderStatusShipped        OrderStatus = "shipped"
	OrderStatusDelivered      OrderStatus = "delivered"
	OrderStatusCancelled      OrderStatus = "cancelled"
	OrderStatusRefunded       OrderStatus = "refunded"
)

var validOrderStatuses = []OrderStatus{
	OrderStatusPendingPayment,
	OrderStatusPaid,
	OrderStatusProcessing,
	OrderStatusShipped,
	OrderStatusDelivered,
	OrderStatusCancelled,
	OrderStatusRefunded,
}

// String implements fmt.Stringer.
func (o OrderStatus) String() string {
	return string(o)
}

// IsValid reports whether the value is a known OrderStatus.
func (o OrderStatus) IsValid() bool {
	for _, candidate := range validOrderStatuses {
		if candidate == o {
			return true
		}
	}
	return false
}

// ParseOrderStatus converts raw input into an OrderStatus.
func ParseOrderStatus(value string) (OrderStatus, error) {
	for _, candidate := range validOrderStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid order status %q", value)
}

// IsTerminal reports whether no further transitions are allowed.
func (o OrderStatus) IsTerminal() bool {
	switch o {
	case OrderStatusCancelled, OrderStatusRefunded:
		return true
	case OrderStatusPendingPayment, OrderStatusPaid, OrderStatusProcessing,
		OrderStatusShipped, OrderStatusDelivered:
		return false
	}
	return false
}

// CanTransitionTo reports whether the move from o to next is allowed.
// Refunded is reachable only through the refund workflow, never by a
// direct status update.
func (o OrderStatus) CanTransitionTo(next OrderStatus) bool {
	switch o {
	case OrderStatusPendingPayment:
		return next == OrderStatusPaid || next == OrderStatusCancelled
	case OrderStatusPaid:
		return next == OrderStatusProcessing || next == OrderStatusCancelled ||
			next == OrderStatusRefunded
	case OrderStatusProcessing:
		return next == OrderStatusShipped
	case OrderStatusShipped:
		return next == OrderStatusDelivered
	case OrderStatusDelivered:
		return next == OrderStatusRefunded
	case OrderStatusCancelled, OrderStatusRefunded:
		return false
	}
	return false
}
