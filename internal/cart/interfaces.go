package cart

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/modacart/modacart-backend/pkg/db/models"
)

// CartRepository defines the persistence surface required by checkout.
type CartRepository interface {
	WithTx(tx *gorm.DB) CartRepository
	FindActiveByUser(ctx context.Context, userID uuid.UUID) (*models.CartRecord, error)
	FindByIDAndUser(ctx context.Context, id, userID uuid.UUID) (*models.CartRecord, error)
	Create(ctx context.Context, record *models.CartRecord) (*models.CartRecord, error)
	ReplaceItems(ctx context.Context, cartID uuid.UUID, items []models.CartItem) error
	MarkConverted(ctx context.Context, id, userID uuid.UUID) error
}
