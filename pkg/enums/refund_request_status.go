package enums

import "fmt"

// RefundRequestStatus tracks the execution of a refund against the gateway.
type RefundRequestStatus string

const (
	RefundRequestStatusPending   RefundRequestStatus = "pending"
	RefundRequestStatusSucceeded RefundRequestStatus = "succeeded"
	RefundRequestStatusFailed    RefundRequestStatus = "failed"
)

var validRefundRequestStatuses = []RefundRequestStatus{
	RefundRequestStatusPending,
	RefundRequestStatusSucceeded,
	RefundRequestStatusFailed,
}

// String implements fmt.Stringer.
func (r RefundRequestStatus) String() string {
	return string(r)
}

// IsValid reports whether the value is a known RefundRequestStatus.
func (r RefundRequestStatus) IsValid() bool {
	for _, candidate := range validRefundRequestStatuses {
		if candidate == r {
			return true
		}
	}
	return false
}

// ParseRefundRequestStatus converts raw input into a RefundRequestStatus.
func ParseRefundRequestStatus(value string) (RefundRequestStatus, error) {
	for _, candidate := range validRefundRequestStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid refund request status %q", value)
}

// IsTerminal reports whether the refund attempt already reached an outcome.
func (r RefundRequestStatus) IsTerminal() bool {
	switch r {
	case RefundRequestStatusSucceeded, RefundRequestStatusFailed:
		return true
	case RefundRequestStatusPending:
		return false
	}
	return false
}
