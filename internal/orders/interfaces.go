package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/modacart/modacart-backend/pkg/db/models"
	"github.com/modacart/modacart-backend/pkg/enums"
	"github.com/modacart/modacart-backend/pkg/pagination"
)

// Repository defines the persistence surface for orders.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, order *models.Order) (*models.Order, error)
	CreateItems(ctx context.Context, items []models.OrderItem) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	FindByIDAndUser(ctx context.Context, id, userID uuid.UUID) (*models.Order, error)
	ListByUser(ctx context.Context, userID uuid.UUID, params pagination.Params) ([]models.Order, string, error)
	TransitionStatus(ctx context.Context, id uuid.UUID, from, to enums.OrderStatus, extra map[string]any) (bool, error)
	FindExpiredPendingPayment(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error)
}
