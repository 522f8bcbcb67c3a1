package models

import (
	"time"

	"github.com/google/uuid"
)

// InventoryItem holds per-product stock counters. Reservations move
// quantity from available to reserved at checkout and back on cancel
// or expiry, always under a row lock.
type InventoryItem struct {
	ProductID    uuid.UUID `gorm:"column:product_id;type:uuid;primaryKey"`
	AvailableQty int       `gorm:"column:available_qty;not null;default:0"`
	ReservedQty  int       `gorm:"column:reserved_qty;not null;default:0"`
	UpdatedAt    time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
