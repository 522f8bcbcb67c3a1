package controllers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/modacart/modacart-backend/internal/payments"
	"github.com/modacart/modacart-backend/pkg/config"
	"github.com/modacart/modacart-backend/pkg/db/models"
	"github.com/modacart/modacart-backend/pkg/enums"
	pkgerrors "github.com/modacart/modacart-backend/pkg/errors"
)

type stubPaymentsService struct {
	processInput   *payments.ProcessPaymentInput
	callbackConvID string
	payment        *models.Payment
	err            error
}

func (s *stubPaymentsService) ProcessPayment(_ context.Context, input payments.ProcessPaymentInput) (*models.Payment, error) {
	s.processInput = &input
	return s.payment, s.err
}

func (s *stubPaymentsService) HandleWebhook(context.Context, payments.WebhookInput) error {
	return nil
}

func (s *stubPaymentsService) FinalizeCallback(_ context.Context, conversationID string) (*models.Payment, error) {
	s.callbackConvID = conversationID
	return s.payment, s.err
}

func TestProcessPaymentRequiresIdempotencyKey(t *testing.T) {
	svc := &stubPaymentsService{}
	handler := ProcessPayment(svc, nil)

	body := `{"order_id":"` + uuid.NewString() + `","source_id":"cnon:card-ok"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/payments", strings.NewReader(body))
	req = identify(req, uuid.New(), "customer")
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
	if svc.processInput != nil {
		t.Fatalf("service should not run without a key")
	}
}

func TestProcessPaymentBodyKeyWinsOverHeader(t *testing.T) {
	orderID := uuid.New()
	svc := &stubPaymentsService{payment: &models.Payment{
		ID:       uuid.New(),
		OrderID:  orderID,
		Status:   enums.PaymentStatusPending,
		Amount:   decimal.RequireFromString("100.00"),
		Currency: enums.CurrencyTRY,
	}}
	handler := ProcessPayment(svc, nil)

	body := `{"order_id":"` + orderID.String() + `","source_id":"cnon:card-ok","idempotency_key":"pay-body"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/payments", strings.NewReader(body))
	req.Header.Set("Idempotency-Key", "pay-header")
	req = identify(req, uuid.New(), "customer")
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", resp.Code, resp.Body.String())
	}
	if svc.processInput == nil || svc.processInput.IdempotencyKey != "pay-body" {
		t.Fatalf("expected body key to win, got %+v", svc.processInput)
	}
}

func TestProcessPaymentForwardsKeyAndActor(t *testing.T) {
	orderID := uuid.New()
	userID := uuid.New()
	svc := &stubPaymentsService{payment: &models.Payment{
		ID:       uuid.New(),
		OrderID:  orderID,
		Status:   enums.PaymentStatusSuccess,
		Amount:   decimal.RequireFromString("249.50"),
		Currency: enums.CurrencyTRY,
	}}
	handler := ProcessPayment(svc, nil)

	body := `{"order_id":"` + orderID.String() + `","source_id":"cnon:card-ok"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/payments", strings.NewReader(body))
	req.Header.Set("Idempotency-Key", "pay-once")
	req = identify(req, userID, "customer")
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", resp.Code, resp.Body.String())
	}
	if svc.processInput == nil {
		t.Fatalf("service was not called")
	}
	if svc.processInput.IdempotencyKey != "pay-once" {
		t.Fatalf("unexpected key %q", svc.processInput.IdempotencyKey)
	}
	if svc.processInput.OrderID != orderID || svc.processInput.ActorUserID != userID {
		t.Fatalf("unexpected input %+v", svc.processInput)
	}
}

func TestProcessPaymentSurfacesDecline(t *testing.T) {
	svc := &stubPaymentsService{err: pkgerrors.New(pkgerrors.CodeGatewayDeclined, "card declined by issuer")}
	handler := ProcessPayment(svc, nil)

	body := `{"order_id":"` + uuid.NewString() + `","source_id":"cnon:card-bad"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/payments", strings.NewReader(body))
	req.Header.Set("Idempotency-Key", "pay-declined")
	req = identify(req, uuid.New(), "customer")
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 got %d", resp.Code)
	}
}

func TestPaymentCallbackRedirects(t *testing.T) {
	cfg := config.CheckoutConfig{SuccessURL: "/done", FailureURL: "/sorry"}

	tests := []struct {
		name     string
		payment  *models.Payment
		err      error
		wantPath string
	}{
		{"settled payment", &models.Payment{Status: enums.PaymentStatusSuccess}, nil, "/done"},
		{"failed payment", &models.Payment{Status: enums.PaymentStatusFailed}, nil, "/sorry"},
		{"finalize error", nil, pkgerrors.New(pkgerrors.CodeNotFound, "no payment for conversation"), "/sorry"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &stubPaymentsService{payment: tt.payment, err: tt.err}
			handler := PaymentCallback(svc, cfg, nil)

			form := url.Values{"conversation_id": {"conv-123"}}
			req := httptest.NewRequest(http.MethodPost, "/api/v1/payments/callback", strings.NewReader(form.Encode()))
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
			resp := httptest.NewRecorder()
			handler.ServeHTTP(resp, req)

			if resp.Code != http.StatusSeeOther {
				t.Fatalf("expected 303 got %d", resp.Code)
			}
			if got := resp.Header().Get("Location"); got != tt.wantPath {
				t.Fatalf("expected redirect to %s got %s", tt.wantPath, got)
			}
			if svc.callbackConvID != "conv-123" {
				t.Fatalf("conversation id not forwarded, got %q", svc.callbackConvID)
			}
		})
	}
}
