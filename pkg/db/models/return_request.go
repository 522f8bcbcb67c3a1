package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/modacart/modacart-backend/pkg/enums"
)

// ReturnRequest records a customer's return or replacement claim against a
// delivered order. A partial unique index on order_id (statuses pending and
// refund_pending) keeps at most one active request per order.
type ReturnRequest struct {
	ID              uuid.UUID                 `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID         uuid.UUID                 `gorm:"column:order_id;type:uuid;not null;index"`
	UserID          uuid.UUID                 `gorm:"column:user_id;type:uuid;not null;index"`
	Type            enums.ReturnRequestType   `gorm:"column:type;type:return_request_type;not null;default:'return'"`
	Status          enums.ReturnRequestStatus `gorm:"column:status;type:return_request_status;not null;default:'pending'"`
	Reason          string                    `gorm:"column:reason;not null"`
	RequestedAmount decimal.Decimal           `gorm:"column:requested_amount;type:numeric(12,2);not null"`
	ReviewerID      *uuid.UUID                `gorm:"column:reviewer_id;type:uuid"`
	ReviewNote      *string                   `gorm:"column:review_note"`
	ReviewedAt      *time.Time                `gorm:"column:reviewed_at"`
	RefundRequest   *RefundRequest            `gorm:"foreignKey:ReturnRequestID;constraint:OnDelete:CASCADE"`
	CreatedAt       time.Time                 `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time                 `gorm:"column:updated_at;autoUpdateTime"`
}
