package enums

import "fmt"

// PaymentStatus tracks the lifecycle of a payment attempt.
type PaymentStatus string

const (
	PaymentStatusPending  PaymentStatus = "pending"
	PaymentStatusSuccess  PaymentStatus = "success"
	PaymentStatusFailed   PaymentStatus = "failed"
	PaymentStatusRefunded PaymentStatus = "refunded"
)

var validPaymentStatuses = []PaymentStatus{
	PaymentStatusPending,
	PaymentStatusSuccess,
	PaymentStatusFailed,
	PaymentStatusRefunded,
}

// String implements fmt.Stringer.
func (p PaymentStatus) String() string {
	return string(p)
}

// IsValid reports whether the value is a known PaymentStatus.
func (p PaymentStatus) IsValid() bool {
	for _, candidate := range validPaymentStatuses {
		if candidate == p {
			return true
		}
	}
	return false
}

// ParsePaymentStatus converts raw input into a PaymentStatus.
func ParsePaymentStatus(value string) (PaymentStatus, error) {
	for _, candidate := range validPaymentStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payment status %q", value)
}

// IsTerminal reports whether the status is final for a charge attempt.
// Refunded is reachable from success through the refund workflow.
func (p PaymentStatus) IsTerminal() bool {
	switch p {
	case PaymentStatusSuccess, PaymentStatusFailed, PaymentStatusRefunded:
		return true
	case PaymentStatusPending:
		return false
	}
	return false
}

// CanTransitionTo reports whether the move from p to next is allowed.
func (p PaymentStatus) CanTransitionTo(next PaymentStatus) bool {
	switch p {
	case PaymentStatusPending:
		return next == PaymentStatusSuccess || next == PaymentStatusFailed
	case PaymentStatusSuccess:
		return next == PaymentStatusRefunded
	case PaymentStatusFailed, PaymentStatusRefunded:
		return false
	}
	return false
}
