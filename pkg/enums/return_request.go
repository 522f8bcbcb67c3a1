package enums

import "fmt"

// ReturnRequestStatus tracks the review lifecycle of a return request.
type ReturnRequestStatus string

const (
	ReturnRequestStatusPending       ReturnRequestStatus = "pending"
	ReturnRequestStatusRefundPending ReturnRequestStatus = "refund_pending"
	ReturnRequestStatusRefunded      ReturnRequestStatus = "refunded"
	ReturnRequestStatusRejected      ReturnRequestStatus = "rejected"
)

var validReturnRequestStatuses = []ReturnRequestStatus{
	ReturnRequestStatusPending,
	ReturnRequestStatusRefundPending,
	ReturnRequestStatusRefunded,
	ReturnRequestStatusRejected,
}

// String implements fmt.Stringer.
func (r ReturnRequestStatus) String() string {
	return string(r)
}

// IsValid reports whether the value is a known ReturnRequestStatus.
func (r ReturnRequestStatus) IsValid() bool {
	for _, candidate := range validReturnRequestStatuses {
		if candidate == r {
			return true
		}
	}
	return false
}

// ParseReturnRequestStatus converts raw input into a ReturnRequestStatus.
func ParseReturnRequestStatus(value string) (ReturnRequestStatus, error) {
	for _, candidate := range validReturnRequestStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid return request status %q", value)
}

// IsActive reports whether the request still blocks a new one for the
// same order.
func (r ReturnRequestStatus) IsActive() bool {
	switch r {
	case ReturnRequestStatusPending, ReturnRequestStatusRefundPending:
		return true
	case ReturnRequestStatusRefunded, ReturnRequestStatusRejected:
		return false
	}
	return false
}

// CanTransitionTo reports whether the move from r to next is allowed.
func (r ReturnRequestStatus) CanTransitionTo(next ReturnRequestStatus) bool {
	switch r {
	case ReturnRequestStatusPending:
		return next == ReturnRequestStatusRefundPending || next == ReturnRequestStatusRejected
	case ReturnRequestStatusRefundPending:
		return next == ReturnRequestStatusRefunded
	case ReturnRequestStatusRefunded, ReturnRequestStatusRejected:
		return false
	}
	return false
}

// ReturnRequestType distinguishes refunds from replacements.
type ReturnRequestType string

const (
	ReturnRequestTypeReturn      ReturnRequestType = "return"
	ReturnRequestTypeReplacement ReturnRequestType = "replacement"
)

var validReturnRequestTypes = []ReturnRequestType{
	ReturnRequestTypeReturn,
	ReturnRequestTypeReplacement,
}

// String implements fmt.Stringer.
func (r ReturnRequestType) String() string {
	return string(r)
}

// IsValid reports whether the value is a known ReturnRequestType.
func (r ReturnRequestType) IsValid() bool {
	for _, candidate := range validReturnRequestTypes {
		if candidate == r {
			return true
		}
	}
	return false
}

// ParseReturnRequestType converts raw input into a ReturnRequestType.
func ParseReturnRequestType(value string) (ReturnRequestType, error) {
	for _, candidate := range validReturnRequestTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid return request type %q", value)
}
