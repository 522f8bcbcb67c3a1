package webhooks

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/modacart/modacart-backend/api/responses"
	"github.com/modacart/modacart-backend/internal/payments"
	pkgerrors "github.com/modacart/modacart-backend/pkg/errors"
	"github.com/modacart/modacart-backend/pkg/logger"
)

const signatureHeader = "X-Square-Hmacsha256-Signature"

type signatureVerifier interface {
	VerifyWebhookSignature(payload []byte, signature string) bool
}

type squareEvent struct {
	EventID string `json:"event_id"`
	Type    string `json:"type"`
	Data    struct {
		Object struct {
			Payment struct {
				ID     string `json:"id"`
				Status string `json:"status"`
			} `json:"payment"`
		} `json:"object"`
	} `json:"data"`
}

// SquarePaymentWebhook reconciles asynchronous gateway notifications against
// locally recorded payments. Unsigned or badly signed requests are rejected
// outright; once the signature checks out the gateway always gets a 200 so
// it stops redelivering, even when local processing fails.
func SquarePaymentWebhook(svc payments.Service, verifier signatureVerifier, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payments service unavailable"))
			return
		}
		if verifier == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "signature verifier unavailable"))
			return
		}

		payload, err := io.ReadAll(r.Body)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read request body"))
			return
		}

		signature := strings.TrimSpace(r.Header.Get(signatureHeader))
		if signature == "" || !verifier.VerifyWebhookSignature(payload, signature) {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid webhook signature"))
			return
		}

		var event squareEvent
		if err := json.Unmarshal(payload, &event); err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode webhook event"))
			return
		}

		err = svc.HandleWebhook(ctx, payments.WebhookInput{
			EventID:           event.EventID,
			EventType:         event.Type,
			ProviderPaymentID: event.Data.Object.Payment.ID,
			Status:            event.Data.Object.Payment.Status,
		})
		if err != nil && logg != nil {
			// Acknowledged anyway. Failing here would make the gateway
			// redeliver forever; the miss is reconciled manually.
			logg.Error(logg.WithField(ctx, "event_id", event.EventID), "webhook reconciliation failed", err)
		}

		responses.WriteSuccess(w, nil)
	}
}
