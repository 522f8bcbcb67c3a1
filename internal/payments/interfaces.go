package payments

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/modacart/modacart-backend/pkg/db/models"
	"github.com/modacart/modacart-backend/pkg/enums"
)

// Repository defines the persistence surface for payments.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, payment *models.Payment) (*models.Payment, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.Payment, error)
	FindByIdempotencyKey(ctx context.Context, key string) (*models.Payment, error)
	FindByOrderID(ctx context.Context, orderID uuid.UUID) (*models.Payment, error)
	FindByProviderPaymentID(ctx context.Context, providerID string) (*models.Payment, error)
	FindByConversationID(ctx context.Context, conversationID string) (*models.Payment, error)
	TransitionStatus(ctx context.Context, id uuid.UUID, from, to enums.PaymentStatus, extra map[string]any) (bool, error)
}

// ChargeInput carries what the gateway needs to attempt a card charge.
type ChargeInput struct {
	Amount         decimal.Decimal
	Currency       enums.Currency
	SourceID       string
	IdempotencyKey string
	ReferenceID    string
}

// ChargeOutcome is the gateway's answer for a charge or a status lookup.
type ChargeOutcome struct {
	ProviderPaymentID string
	Completed         bool
	FailureReason     string
}

// Gateway abstracts the card processor. Implementations map processor errors
// onto the domain error codes, declines included.
type Gateway interface {
	Charge(ctx context.Context, input ChargeInput) (*ChargeOutcome, error)
	LookupPayment(ctx context.Context, providerPaymentID string) (*ChargeOutcome, error)
}
