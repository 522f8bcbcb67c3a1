package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/modacart/modacart-backend/pkg/enums"
)

// Order represents a customer order produced from a converted cart.
// Total always equals Subtotal minus DiscountTotal; the invariant is
// enforced at creation and amounts never change afterwards.
type Order struct {
	ID                 uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	UserID             uuid.UUID           `gorm:"column:user_id;type:uuid;not null;index"`
	Status             enums.OrderStatus   `gorm:"column:status;type:order_status;not null;default:'pending_payment'"`
	Currency           enums.Currency      `gorm:"column:currency;type:text;not null;default:'TRY'"`
	Subtotal           decimal.Decimal     `gorm:"column:subtotal;type:numeric(12,2);not null"`
	DiscountTotal      decimal.Decimal     `gorm:"column:discount_total;type:numeric(12,2);not null;default:0"`
	Total              decimal.Decimal     `gorm:"column:total;type:numeric(12,2);not null"`
	PaymentMethod      enums.PaymentMethod `gorm:"column:payment_method;type:payment_method;not null;default:'card'"`
	ShippingAddressEnc []byte              `gorm:"column:shipping_address_enc;type:bytea"`
	CouponCode         *string             `gorm:"column:coupon_code"`
	LoyaltyPointsUsed  int                 `gorm:"column:loyalty_points_used;not null;default:0"`
	PaidAt             *time.Time          `gorm:"column:paid_at"`
	DeliveredAt        *time.Time          `gorm:"column:delivered_at"`
	CanceledAt         *time.Time          `gorm:"column:canceled_at"`
	RefundedAt         *time.Time          `gorm:"column:refunded_at"`
	Items              []OrderItem         `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	Payment            *Payment            `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	CreatedAt          time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}
