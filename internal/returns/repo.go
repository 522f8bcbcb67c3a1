package returns

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

// NewRepository builds a returns repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) CreateReturnRequest(ctx context.Context, request *models.ReturnRequest) (*models.ReturnRequest, error) {
	if err := r.db.WithContext(ctx).Create(request).Error; err != nil {
		return nil, err
	}
	return request, nil
}

func (r *repository) FindReturnByID(ctx context.Context, id uuid.UUID) (*models.ReturnRequest, error) {
	var request models.ReturnRequest
	err := r.db.WithContext(ctx).
		Preload("RefundRequest").
		Where("id = ?", id).
		First(&request).Error
	if err != nil {
		return nil, err
	}
	return &request, nil
}

func (r *repository) FindActiveReturnByOrder(ctx context.Context, orderID uuid.UUID) (*models.ReturnRequest, error) {
	var request models.ReturnRequest
	err := r.db.WithContext(ctx).
		Preload("RefundRequest").
		Where("order_id = ? AND status IN ?", orderID, []enums.ReturnRequestStatus{
			enums.ReturnRequestStatusPending,
			enums.ReturnRequestStatusRefundPending,
		}).
		First(&request).Error
	if err != nil {
		return nil, err
	}
	return &request, nil
}

func (r *repository) ListReturnsByStatus(ctx context.Context, status enums.ReturnRequestStatus, limit int) ([]models.ReturnRequest, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	var requests []models.ReturnRequest
	err := r.db.WithContext(ctx).
		Preload("RefundRequest").
		Where("status = ?", status).
		Order("created_at ASC").
		Limit(limit).
		Find(&requests).Error
	if err != nil {
		return nil, err
	}
	return requests, nil
}

func (r *repository) TransitionReturnStatus(ctx context.Context, id uuid.UUID, from, to enums.ReturnRequestStatus, extra map[string]any) (bool, error) {
	updates := map[string]any{
		"status":     to,
		"updated_at": time.Now().UTC(),
	}
	for k, v := range extra {
		updates[k] = v
	}
	res := r.db.WithContext(ctx).
		Model(&models.ReturnRequest{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repository) CreateRefundRequest(ctx context.Context, request *models.RefundRequest) (*models.RefundRequest, error) {
	if err := r.db.WithContext(ctx).Create(request).Error; err != nil {
		return nil, err
	}
	return request, nil
}

func (r *repository) FindRefundByID(ctx context.Context, id uuid.UUID) (*models.RefundRequest, error) {
	var request models.RefundRequest
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&request).Error
	if err != nil {
		return nil, err
	}
	return &request, nil
}

func (r *repository) FindRefundByReturnRequest(ctx context.Context, returnRequestID uuid.UUID) (*models.RefundRequest, error) {
	var request models.RefundRequest
	err := r.db.WithContext(ctx).Where("return_request_id = ?", returnRequestID).First(&request).Error
	if err != nil {
		return nil, err
	}
	return &request, nil
}

func (r *repository) TransitionRefundStatus(ctx context.Context, id uuid.UUID, from, to enums.RefundRequestStatus, extra map[string]any) (bool, error) {
	updates := map[string]any{
		"status":     to,
		"updated_at": time.Now().UTC(),
	}
	for k, v := range extra {
		updates[k] = v
	}
	res := r.db.WithContext(ctx).
		Model(&models.RefundRequest{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
