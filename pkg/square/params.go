package square

import (
	"strings"

	sq "github.com/square/square-go-sdk"
)

// PaymentCreateParams captures the inputs for charging a card source.
type PaymentCreateParams struct {
	AmountCents    int64
	Currency       string
	LocationID     string
	SourceID       string
	IdempotencyKey string
	Note           string
	ReferenceID    string
}

func (p PaymentCreateParams) toSquareRequest(idempotencyKey string) *sq.CreatePaymentRequest {
	req := &sq.CreatePaymentRequest{
		SourceID:       p.SourceID,
		IdempotencyKey: idempotencyKey,
		AmountMoney:    moneyPtr(p.AmountCents, p.Currency),
		LocationID:     ptrString(p.LocationID),
		Note:           ptrString(p.Note),
		ReferenceID:    ptrString(p.ReferenceID),
	}
	return req
}

// RefundCreateParams captures the inputs for refunding a captured payment.
type RefundCreateParams struct {
	PaymentID      string
	AmountCents    int64
	Currency       string
	IdempotencyKey string
	Reason         string
}

func (p RefundCreateParams) toSquareRequest(idempotencyKey string) *sq.RefundPaymentRequest {
	req := &sq.RefundPaymentRequest{
		IdempotencyKey: idempotencyKey,
		PaymentID:      ptrString(p.PaymentID),
		AmountMoney:    moneyPtr(p.AmountCents, p.Currency),
		Reason:         ptrString(p.Reason),
	}
	return req
}

func ptrString(value string) *string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func int64Ptr(value int64) *int64 {
	return &value
}

func currencyPtr(code string) *sq.Currency {
	trimmed := strings.TrimSpace(strings.ToUpper(code))
	if trimmed == "" {
		return nil
	}
	currency := sq.Currency(trimmed)
	return &currency
}

func moneyPtr(amountCents int64, currency string) *sq.Money {
	return &sq.Money{
		Amount:   int64Ptr(amountCents),
		Currency: currencyPtr(currency),
	}
}
