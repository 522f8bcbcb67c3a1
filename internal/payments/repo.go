package payments

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/modacart/modacart-backend/pkg/db/models"
	"github.com/modacart/modacart-backend/pkg/enums"
)

type repository struct {
	db *gorm.DB
}

// NewRepository builds a payments repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, payment *models.Payment) (*models.Payment, error) {
	if err := r.db.WithContext(ctx).Create(payment).Error; err != nil {
		return nil, err
	}
	return payment, nil
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Payment, error) {
	var payment models.Payment
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&payment).Error
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

func (r *repository) FindByIdempotencyKey(ctx context.Context, key string) (*models.Payment, error) {
	var payment models.Payment
	err := r.db.WithContext(ctx).Where("idempotency_key = ?", key).First(&payment).Error
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

// FindByOrderID returns the order's live payment. Failed attempts are
// history only; the refund flow must never pick one up.
func (r *repository) FindByOrderID(ctx context.Context, orderID uuid.UUID) (*models.Payment, error) {
	var payment models.Payment
	err := r.db.WithContext(ctx).
		Where("order_id = ? AND status <> ?", orderID, enums.PaymentStatusFailed).
		First(&payment).Error
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

func (r *repository) FindByProviderPaymentID(ctx context.Context, providerID string) (*models.Payment, error) {
	var payment models.Payment
	err := r.db.WithContext(ctx).Where("provider_payment_id = ?", providerID).First(&payment).Error
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

func (r *repository) FindByConversationID(ctx context.Context, conversationID string) (*models.Payment, error) {
	var payment models.Payment
	err := r.db.WithContext(ctx).Where("conversation_id = ?", conversationID).First(&payment).Error
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

// TransitionStatus flips the payment status only when the current status still
// matches, mirroring the optimistic re-validation used for orders.
func (r *repository) TransitionStatus(ctx context.Context, id uuid.UUID, from, to enums.PaymentStatus, extra map[string]any) (bool, error) {
	updates := map[string]any{
		"status":     to,
		"updated_at": time.Now().UTC(),
	}
	for k, v := range extra {
		updates[k] = v
	}
	res := r.db.WithContext(ctx).
		Model(&models.Payment{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
