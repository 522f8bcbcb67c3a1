package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/modacart/modacart-backend/pkg/enums"
)

// CartRecord is the per-user active cart that checkout converts into an
// order. One active cart per user at a time.
type CartRecord struct {
	ID          uuid.UUID        `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	UserID      uuid.UUID        `gorm:"column:user_id;type:uuid;not null;index"`
	Status      enums.CartStatus `gorm:"column:status;type:cart_status;not null;default:'active'"`
	Currency    enums.Currency   `gorm:"column:currency;type:text;not null;default:'TRY'"`
	ConvertedAt *time.Time       `gorm:"column:converted_at"`
	Items       []CartItem       `gorm:"foreignKey:CartID;constraint:OnDelete:CASCADE"`
	CreatedAt   time.Time        `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time        `gorm:"column:updated_at;autoUpdateTime"`
}
