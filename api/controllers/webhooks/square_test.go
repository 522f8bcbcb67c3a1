package webhooks

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/modacart/modacart-backend/internal/payments"
	"github.com/modacart/modacart-backend/pkg/db/models"
	pkgerrors "github.com/modacart/modacart-backend/pkg/errors"
)

type stubVerifier struct {
	valid bool
}

func (s stubVerifier) VerifyWebhookSignature([]byte, string) bool {
	return s.valid
}

type stubWebhookService struct {
	input *payments.WebhookInput
	err   error
}

func (s *stubWebhookService) ProcessPayment(context.Context, payments.ProcessPaymentInput) (*models.Payment, error) {
	return nil, nil
}

func (s *stubWebhookService) HandleWebhook(_ context.Context, input payments.WebhookInput) error {
	s.input = &input
	return s.err
}

func (s *stubWebhookService) FinalizeCallback(context.Context, string) (*models.Payment, error) {
	return nil, nil
}

const webhookBody = `{
	"event_id": "evt-1",
	"type": "payment.updated",
	"data": {"object": {"payment": {"id": "sq-pay-9", "status": "COMPLETED"}}}
}`

func TestWebhookRejectsBadSignature(t *testing.T) {
	svc := &stubWebhookService{}
	handler := SquarePaymentWebhook(svc, stubVerifier{valid: false}, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/payments/webhook", strings.NewReader(webhookBody))
	req.Header.Set(signatureHeader, "forged")
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
	if svc.input != nil {
		t.Fatalf("unverified event must not reach the service")
	}
}

func TestWebhookRejectsMissingSignature(t *testing.T) {
	svc := &stubWebhookService{}
	handler := SquarePaymentWebhook(svc, stubVerifier{valid: true}, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/payments/webhook", strings.NewReader(webhookBody))
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
}

func TestWebhookForwardsDecodedEvent(t *testing.T) {
	svc := &stubWebhookService{}
	handler := SquarePaymentWebhook(svc, stubVerifier{valid: true}, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/payments/webhook", strings.NewReader(webhookBody))
	req.Header.Set(signatureHeader, "good")
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if svc.input == nil {
		t.Fatalf("service was not called")
	}
	if svc.input.EventID != "evt-1" || svc.input.ProviderPaymentID != "sq-pay-9" || svc.input.Status != "COMPLETED" {
		t.Fatalf("unexpected input %+v", svc.input)
	}
}

func TestWebhookAcksWhenProcessingFails(t *testing.T) {
	svc := &stubWebhookService{err: pkgerrors.New(pkgerrors.CodeDependency, "db unavailable")}
	handler := SquarePaymentWebhook(svc, stubVerifier{valid: true}, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/payments/webhook", strings.NewReader(webhookBody))
	req.Header.Set(signatureHeader, "good")
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("verified events are acknowledged even on failure, got %d", resp.Code)
	}
}
