package square

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"net/http"
	"strings"
	"testing"

	sq "github.com/square/square-go-sdk"
	sqcore "github.com/square/square-go-sdk/core"

	pkgerrors "github.com/modacart/modacart-backend/pkg/errors"
)

func TestEnsureIdempotencyKeyPrefersCallerKey(t *testing.T) {
	c := &Client{}
	if got := c.ensureIdempotencyKey("payment.create", "caller-key"); got != "caller-key" {
		t.Fatalf("got %q, want the caller's key untouched", got)
	}
	generated := c.ensureIdempotencyKey("payment.create", "")
	if !strings.HasPrefix(generated, "payment.create-") {
		t.Fatalf("generated key %q missing operation prefix", generated)
	}
}

func TestRedactBlanksSensitiveFields(t *testing.T) {
	c := &Client{}
	if got := c.redact("payment_token", "tok_abc"); got != "[REDACTED]" {
		t.Fatalf("token survived redaction: %v", got)
	}
	if got := c.redact("card_number", "4111"); got != "[REDACTED]" {
		t.Fatalf("card number survived redaction: %v", got)
	}
	if got := c.redact("status", "COMPLETED"); got != "COMPLETED" {
		t.Fatalf("safe field was redacted: %v", got)
	}
}

func TestVerifyWebhookSignature(t *testing.T) {
	c := &Client{
		webhookSecret:   "wh-secret",
		notificationURL: "https://api.modacart.dev/api/v1/payments/webhook",
	}
	body := []byte(`{"event_id":"evt-1","type":"payment.updated"}`)

	mac := hmac.New(sha256.New, []byte(c.webhookSecret))
	mac.Write([]byte(c.notificationURL))
	mac.Write(body)
	genuine := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	if !c.VerifyWebhookSignature(body, genuine) {
		t.Fatal("genuine signature rejected")
	}
	for name, attempt := range map[string]struct {
		body []byte
		sig  string
	}{
		"forged signature": {body, "not-the-signature"},
		"empty signature":  {body, ""},
		"tampered body":    {append(append([]byte{}, body...), '!'), genuine},
	} {
		if c.VerifyWebhookSignature(attempt.body, attempt.sig) {
			t.Fatalf("%s accepted", name)
		}
	}
}

func TestDomainCodeForStatus(t *testing.T) {
	cases := []struct {
		status int
		want   pkgerrors.Code
	}{
		{http.StatusUnauthorized, pkgerrors.CodeUnauthorized},
		{http.StatusForbidden, pkgerrors.CodeForbidden},
		{http.StatusNotFound, pkgerrors.CodeNotFound},
		{http.StatusConflict, pkgerrors.CodeConflict},
		{http.StatusTooManyRequests, pkgerrors.CodeDependency},
		{http.StatusBadRequest, pkgerrors.CodeValidation},
		{http.StatusUnprocessableEntity, pkgerrors.CodeStateConflict},
		{http.StatusTeapot, pkgerrors.CodeValidation},
		{http.StatusInternalServerError, pkgerrors.CodeDependency},
	}
	for _, tc := range cases {
		if got := domainCodeForStatus(tc.status); got != tc.want {
			t.Fatalf("status %d mapped to %s, want %s", tc.status, got, tc.want)
		}
	}
}

func TestMapSquareErrorSharpensCodeFromBody(t *testing.T) {
	c := &Client{}
	cases := []struct {
		name     string
		status   int
		payload  string
		wantCode pkgerrors.Code
	}{
		{
			name:     "authentication error",
			status:   http.StatusUnauthorized,
			payload:  `{"errors":[{"category":"AUTHENTICATION_ERROR","code":"UNAUTHORIZED"}]}`,
			wantCode: pkgerrors.CodeUnauthorized,
		},
		{
			name:     "idempotency key reused",
			status:   http.StatusConflict,
			payload:  `{"errors":[{"category":"API_ERROR","code":"IDEMPOTENCY_KEY_REUSED"}]}`,
			wantCode: pkgerrors.CodeIdempotency,
		},
		{
			name:     "card declined",
			status:   http.StatusBadRequest,
			payload:  `{"errors":[{"category":"PAYMENT_METHOD_ERROR","code":"GENERIC_DECLINE","detail":"Card declined."}]}`,
			wantCode: pkgerrors.CodeGatewayDeclined,
		},
		{
			name:     "insufficient funds",
			status:   http.StatusBadRequest,
			payload:  `{"errors":[{"category":"PAYMENT_METHOD_ERROR","code":"INSUFFICIENT_FUNDS"}]}`,
			wantCode: pkgerrors.CodeGatewayDeclined,
		},
		{
			name:     "refund error",
			status:   http.StatusBadRequest,
			payload:  `{"errors":[{"category":"REFUND_ERROR","code":"REFUND_DECLINED"}]}`,
			wantCode: pkgerrors.CodeGatewayDeclined,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			apiErr := sqcore.NewAPIError(tc.status, errors.New(tc.payload))
			typed := pkgerrors.As(c.mapSquareError(apiErr, "create payment"))
			if typed == nil {
				t.Fatal("mapped error is not a domain error")
			}
			if typed.Code() != tc.wantCode {
				t.Fatalf("code = %s, want %s", typed.Code(), tc.wantCode)
			}
		})
	}
}

func TestMapSquareErrorNonAPIErrorIsDependency(t *testing.T) {
	c := &Client{}
	typed := pkgerrors.As(c.mapSquareError(errors.New("connection reset"), "get payment"))
	if typed == nil || typed.Code() != pkgerrors.CodeDependency {
		t.Fatalf("transport failure mapped to %v, want dependency", typed)
	}
}

func TestExtractSquareErrors(t *testing.T) {
	c := &Client{}
	payload := `{"errors":[{"category":"API_ERROR","code":"BAD_REQUEST","detail":"oops"}]}`
	apiErr := sqcore.NewAPIError(http.StatusBadRequest, errors.New(payload))

	extracted := c.extractSquareErrors(apiErr)
	if len(extracted) != 1 {
		t.Fatalf("extracted %d errors, want 1", len(extracted))
	}
	if extracted[0].GetCode() != sq.ErrorCodeBadRequest {
		t.Fatalf("code = %s", extracted[0].GetCode())
	}
	if c.extractSquareErrors(nil) != nil {
		t.Fatal("nil API error should yield no errors")
	}
}
