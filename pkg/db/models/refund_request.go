package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/modacart/modacart-backend/pkg/enums"
)

// RefundRequest executes the money movement for an approved return. The
// idempotency key is derived from the return request id, so re-approvals
// and consumer redeliveries always target the same gateway refund.
type RefundRequest struct {
	ID               uuid.UUID                 `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	ReturnRequestID  uuid.UUID                 `gorm:"column:return_request_id;type:uuid;not null;uniqueIndex:ux_refund_requests_return_request_id"`
	OrderID          uuid.UUID                 `gorm:"column:order_id;type:uuid;not null;index"`
	PaymentID        *uuid.UUID                `gorm:"column:payment_id;type:uuid"`
	Amount           decimal.Decimal           `gorm:"column:amount;type:numeric(12,2);not null"`
	Currency         enums.Currency            `gorm:"column:currency;type:text;not null;default:'TRY'"`
	Status           enums.RefundRequestStatus `gorm:"column:status;type:refund_request_status;not null;default:'pending'"`
	IdempotencyKey   string                    `gorm:"column:idempotency_key;not null;uniqueIndex:ux_refund_requests_idempotency_key"`
	ProviderRefundID *string                   `gorm:"column:provider_refund_id"`
	FailureReason    *string                   `gorm:"column:failure_reason"`
	ProcessedAt      *time.Time                `gorm:"column:processed_at"`
	CreatedAt        time.Time                 `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time                 `gorm:"column:updated_at;autoUpdateTime"`
}
