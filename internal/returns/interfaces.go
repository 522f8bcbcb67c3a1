package returns

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/modacart/modacart-backend/pkg/db/models"
	"github.com/modacart/modacart-backend/pkg/enums"
)

// Repository defines the persistence surface for return and refund requests.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateReturnRequest(ctx context.Context, request *models.ReturnRequest) (*models.ReturnRequest, error)
	FindReturnByID(ctx context.Context, id uuid.UUID) (*models.ReturnRequest, error)
	FindActiveReturnByOrder(ctx context.Context, orderID uuid.UUID) (*models.ReturnRequest, error)
	ListReturnsByStatus(ctx context.Context, status enums.ReturnRequestStatus, limit int) ([]models.ReturnRequest, error)
	TransitionReturnStatus(ctx context.Context, id uuid.UUID, from, to enums.ReturnRequestStatus, extra map[string]any) (bool, error)
	CreateRefundRequest(ctx context.Context, request *models.RefundRequest) (*models.RefundRequest, error)
	FindRefundByID(ctx context.Context, id uuid.UUID) (*models.RefundRequest, error)
	FindRefundByReturnRequest(ctx context.Context, returnRequestID uuid.UUID) (*models.RefundRequest, error)
	TransitionRefundStatus(ctx context.Context, id uuid.UUID, from, to enums.RefundRequestStatus, extra map[string]any) (bool, error)
}

// RefundInput carries what the gateway needs to refund a captured payment.
type RefundInput struct {
	ProviderPaymentID string
	Amount            decimal.Decimal
	Currency          enums.Currency
	IdempotencyKey    string
	Reason            string
}

// RefundOutcome is the gateway's answer for a refund attempt.
type RefundOutcome struct {
	ProviderRefundID string
	Completed        bool
	FailureReason    string
}

// RefundGateway abstracts the card processor's refund operation.
type RefundGateway interface {
	Refund(ctx context.Context, input RefundInput) (*RefundOutcome, error)
}
