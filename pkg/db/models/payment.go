package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/modacart/modacart-backend/pkg/enums"
)

// Payment tracks one charge attempt against an order. The idempotency key
// is unique across all payments; the gateway receives the same key on every
// retry of the same logical charge. The order-id index is partial: failed
// attempts stay behind as history so the customer can retry with a new key,
// while at most one live payment exists per order.
type Payment struct {
	ID                uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID           uuid.UUID           `gorm:"column:order_id;type:uuid;not null;uniqueIndex:ux_payments_order_id,where:status <> 'failed'"`
	Method            enums.PaymentMethod `gorm:"column:method;type:payment_method;not null;default:'card'"`
	Status            enums.PaymentStatus `gorm:"column:status;type:payment_status;not null;default:'pending'"`
	Amount            decimal.Decimal     `gorm:"column:amount;type:numeric(12,2);not null"`
	Currency          enums.Currency      `gorm:"column:currency;type:text;not null;default:'TRY'"`
	IdempotencyKey    string              `gorm:"column:idempotency_key;not null;uniqueIndex:ux_payments_idempotency_key"`
	ProviderPaymentID *string             `gorm:"column:provider_payment_id;index"`
	ConversationID    string              `gorm:"column:conversation_id;not null;index"`
	FailureReason     *string             `gorm:"column:failure_reason"`
	RefundedAt        *time.Time          `gorm:"column:refunded_at"`
	CreatedAt         time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}
