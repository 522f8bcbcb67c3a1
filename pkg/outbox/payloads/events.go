package payloads

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/modacart/modacart-backend/pkg/enums"
)

// OrderCreatedEvent signals a cart converted into a pending-payment order.
type OrderCreatedEvent struct {
	OrderID  uuid.UUID       `json:"order_id"`
	UserID   uuid.UUID       `json:"user_id"`
	Total    decimal.Decimal `json:"total"`
	Currency enums.Currency  `json:"currency"`
	ItemQty  int             `json:"item_qty"`
}

// OrderCanceledEvent is emitted whenever a buyer cancels before shipment.
type OrderCanceledEvent struct {
	OrderID    uuid.UUID `json:"order_id"`
	UserID     uuid.UUID `json:"user_id"`
	CanceledAt time.Time `json:"canceled_at"`
	Reason     string    `json:"reason,omitempty"`
}

// OrderExpiredEvent describes a pending-payment order swept by the TTL job.
type OrderExpiredEvent struct {
	OrderID   uuid.UUID `json:"order_id"`
	UserID    uuid.UUID `json:"user_id"`
	ExpiredAt time.Time `json:"expired_at"`
}

// OrderStatusChangedEvent reports admin-driven fulfillment transitions.
type OrderStatusChangedEvent struct {
	OrderID uuid.UUID         `json:"order_id"`
	From    enums.OrderStatus `json:"from"`
	To      enums.OrderStatus `json:"to"`
}

// PaymentStatusEvent carries the outcome of a charge attempt.
type PaymentStatusEvent struct {
	OrderID       uuid.UUID           `json:"order_id"`
	PaymentID     uuid.UUID           `json:"payment_id"`
	Status        enums.PaymentStatus `json:"status"`
	Amount        decimal.Decimal     `json:"amount"`
	Currency      enums.Currency      `json:"currency"`
	FailureReason string              `json:"failure_reason,omitempty"`
}

// ReturnRequestedEvent signals a new customer return claim.
type ReturnRequestedEvent struct {
	ReturnRequestID uuid.UUID               `json:"return_request_id"`
	OrderID         uuid.UUID               `json:"order_id"`
	UserID          uuid.UUID               `json:"user_id"`
	Type            enums.ReturnRequestType `json:"type"`
	RequestedAmount decimal.Decimal         `json:"requested_amount"`
}

// ReturnRejectedEvent signals a reviewer closed the claim without refund.
type ReturnRejectedEvent struct {
	ReturnRequestID uuid.UUID `json:"return_request_id"`
	OrderID         uuid.UUID `json:"order_id"`
	UserID          uuid.UUID `json:"user_id"`
	ReviewNote      string    `json:"review_note,omitempty"`
}

// RefundRequestedEvent hands an approved return to the refund executor.
type RefundRequestedEvent struct {
	RefundRequestID uuid.UUID       `json:"refund_request_id"`
	ReturnRequestID uuid.UUID       `json:"return_request_id"`
	OrderID         uuid.UUID       `json:"order_id"`
	UserID          uuid.UUID       `json:"user_id"`
	Amount          decimal.Decimal `json:"amount"`
	Currency        enums.Currency  `json:"currency"`
}

// RefundOutcomeEvent reports the terminal state of a refund execution.
type RefundOutcomeEvent struct {
	RefundRequestID uuid.UUID                 `json:"refund_request_id"`
	OrderID         uuid.UUID                 `json:"order_id"`
	UserID          uuid.UUID                 `json:"user_id"`
	Status          enums.RefundRequestStatus `json:"status"`
	Amount          decimal.Decimal           `json:"amount"`
	FailureReason   string                    `json:"failure_reason,omitempty"`
}

// NotificationRequestedEvent tells downstream systems to alert a customer.
type NotificationRequestedEvent struct {
	OrderID uuid.UUID `json:"order_id"`
	UserID  uuid.UUID `json:"user_id"`
	Type    string    `json:"type"`
}
