package returns

import (
	"context"
	"fmt"
	"strings"

	sq "github.com/square/square-go-sdk"

	"github.com/modacart/modacart-backend/pkg/square"
)

type squareClient interface {
	RefundPayment(ctx context.Context, params square.RefundCreateParams) (*sq.PaymentRefund, error)
}

type squareRefundGateway struct {
	client squareClient
}

// NewSquareRefundGateway adapts the Square client to the refund gateway port.
func NewSquareRefundGateway(client squareClient) (RefundGateway, error) {
	if client == nil {
		return nil, fmt.Errorf("square client required")
	}
	return &squareRefundGateway{client: client}, nil
}

func (g *squareRefundGateway) Refund(ctx context.Context, input RefundInput) (*RefundOutcome, error) {
	refund, err := g.client.RefundPayment(ctx, square.RefundCreateParams{
		PaymentID:      input.ProviderPaymentID,
		AmountCents:    input.Amount.Shift(2).IntPart(),
		Currency:       string(input.Currency),
		IdempotencyKey: input.IdempotencyKey,
		Reason:         input.Reason,
	})
	if err != nil {
		return nil, err
	}
	return outcomeFromRefund(refund), nil
}

func outcomeFromRefund(refund *sq.PaymentRefund) *RefundOutcome {
	outcome := &RefundOutcome{}
	if refund == nil {
		return outcome
	}
	outcome.ProviderRefundID = refund.GetID()
	status := ""
	if s := refund.GetStatus(); s != nil {
		status = strings.ToUpper(*s)
	}
	switch status {
	// Square refunds settle asynchronously; PENDING is the normal accepted state.
	case "PENDING", "COMPLETED":
		outcome.Completed = true
	case "REJECTED", "FAILED":
		outcome.FailureReason = fmt.Sprintf("gateway reported status %s", status)
	}
	return outcome
}
