package payments

import (
	"context"
	"fmt"
	"strings"

	sq "github.com/square/square-go-sdk"

	pkgerrors "github.com/modacart/modacart-backend/pkg/errors"
	"github.com/modacart/modacart-backend/pkg/square"
)

type squareClient interface {
	CreatePayment(ctx context.Context, params square.PaymentCreateParams) (*sq.Payment, error)
	GetPayment(ctx context.Context, paymentID string) (*sq.Payment, error)
	LocationID() string
}

type squareGateway struct {
	client squareClient
}

// NewSquareGateway adapts the Square client to the payments gateway port.
func NewSquareGateway(client squareClient) (Gateway, error) {
	if client == nil {
		return nil, fmt.Errorf("square client required")
	}
	return &squareGateway{client: client}, nil
}

func (g *squareGateway) Charge(ctx context.Context, input ChargeInput) (*ChargeOutcome, error) {
	payment, err := g.client.CreatePayment(ctx, square.PaymentCreateParams{
		AmountCents:    input.Amount.Shift(2).IntPart(),
		Currency:       string(input.Currency),
		LocationID:     g.client.LocationID(),
		SourceID:       input.SourceID,
		IdempotencyKey: input.IdempotencyKey,
		ReferenceID:    input.ReferenceID,
	})
	if err != nil {
		return nil, err
	}
	return outcomeFromSquare(payment), nil
}

func (g *squareGateway) LookupPayment(ctx context.Context, providerPaymentID string) (*ChargeOutcome, error) {
	if strings.TrimSpace(providerPaymentID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "provider payment id required")
	}
	payment, err := g.client.GetPayment(ctx, providerPaymentID)
	if err != nil {
		return nil, err
	}
	return outcomeFromSquare(payment), nil
}

func outcomeFromSquare(payment *sq.Payment) *ChargeOutcome {
	outcome := &ChargeOutcome{}
	if payment == nil {
		return outcome
	}
	if id := payment.GetID(); id != nil {
		outcome.ProviderPaymentID = *id
	}
	status := ""
	if s := payment.GetStatus(); s != nil {
		status = strings.ToUpper(*s)
	}
	switch status {
	case "COMPLETED", "APPROVED":
		outcome.Completed = true
	case "FAILED", "CANCELED":
		outcome.FailureReason = fmt.Sprintf("gateway reported status %s", status)
	}
	return outcome
}
