package cart

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/modacart/modacart-backend/pkg/db/models"
	"github.com/modacart/modacart-backend/pkg/enums"
	pkgerrors "github.com/modacart/modacart-backend/pkg/errors"
)

type repository struct {
	db *gorm.DB
}

// NewRepository binds the cart repository to the provided GORM handle.
func NewRepository(db *gorm.DB) CartRepository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) CartRepository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// FindActiveByUser returns the latest active cart for the user.
func (r *repository) FindActiveByUser(ctx context.Context, userID uuid.UUID) (*models.CartRecord, error) {
	var record models.CartRecord
	err := r.db.WithContext(ctx).
		Preload("Items").
		Where("user_id = ? AND status = ?", userID, enums.CartStatusActive).
		Order("created_at DESC").
		First(&record).Error
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// FindByIDAndUser returns the cart record belonging to the user.
func (r *repository) FindByIDAndUser(ctx context.Context, id, userID uuid.UUID) (*models.CartRecord, error) {
	var record models.CartRecord
	err := r.db.WithContext(ctx).
		Preload("Items").
		Where("id = ? AND user_id = ?", id, userID).
		First(&record).Error
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// Create inserts the provided cart record.
func (r *repository) Create(ctx context.Context, record *models.CartRecord) (*models.CartRecord, error) {
	if record.Status == "" {
		record.Status = enums.CartStatusActive
	}
	if err := r.db.WithContext(ctx).Create(record).Error; err != nil {
		return nil, err
	}
	return record, nil
}

// ReplaceItems swaps the cart's line items for the provided set.
func (r *repository) ReplaceItems(ctx context.Context, cartID uuid.UUID, items []models.CartItem) error {
	if err := r.db.WithContext(ctx).
		Where("cart_id = ?", cartID).
		Delete(&models.CartItem{}).Error; err != nil {
		return err
	}
	if len(items) == 0 {
		return nil
	}
	for i := range items {
		items[i].CartID = cartID
	}
	return r.db.WithContext(ctx).Create(&items).Error
}

// MarkConverted flips an active cart to converted. A cart that was already
// converted by a concurrent checkout reports a conflict.
func (r *repository) MarkConverted(ctx context.Context, id, userID uuid.UUID) error {
	now := time.Now().UTC()
	res := r.db.WithContext(ctx).
		Model(&models.CartRecord{}).
		Where("id = ? AND user_id = ? AND status = ?", id, userID, enums.CartStatusActive).
		Updates(map[string]any{
			"status":       enums.CartStatusConverted,
			"converted_at": now,
			"updated_at":   now,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeConflict, "cart already processed")
	}
	return nil
}
