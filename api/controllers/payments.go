package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/modacart/modacart-backend/api/responses"
	"github.com/modacart/modacart-backend/api/validators"
	"github.com/modacart/modacart-backend/internal/payments"
	"github.com/modacart/modacart-backend/pkg/config"
	"github.com/modacart/modacart-backend/pkg/db/models"
	"github.com/modacart/modacart-backend/pkg/enums"
	pkgerrors "github.com/modacart/modacart-backend/pkg/errors"
	"github.com/modacart/modacart-backend/pkg/logger"
)

// ProcessPayment charges a pending order. The idempotency key in the body
// (or the Idempotency-Key header when the body omits it) gates the gateway
// call; replaying the same key returns the recorded outcome.
func ProcessPayment(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payments service unavailable"))
			return
		}

		userID, err := actorUserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload processPaymentRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		key := strings.TrimSpace(payload.IdempotencyKey)
		if key == "" {
			key = strings.TrimSpace(r.Header.Get("Idempotency-Key"))
		}
		if key == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "idempotency key required"))
			return
		}

		payment, err := svc.ProcessPayment(r.Context(), payments.ProcessPaymentInput{
			OrderID:        payload.OrderID,
			ActorUserID:    userID,
			SourceID:       payload.SourceID,
			IdempotencyKey: key,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, newPaymentResponse(payment))
	}
}

// PaymentCallback finalizes the buyer-redirect leg of a card charge and
// bounces the browser to the configured success or failure page. The gateway
// posts this as a form, not JSON.
func PaymentCallback(svc payments.Service, cfg config.CheckoutConfig, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payments service unavailable"))
			return
		}

		if err := r.ParseForm(); err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "parse callback form"))
			return
		}

		conversationID := strings.TrimSpace(r.FormValue("conversation_id"))
		if conversationID == "" {
			conversationID = strings.TrimSpace(r.FormValue("conversationId"))
		}
		if conversationID == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "conversation id required"))
			return
		}

		payment, err := svc.FinalizeCallback(r.Context(), conversationID)
		if err != nil {
			if logg != nil {
				logg.Error(r.Context(), "payment callback finalization failed", err)
			}
			http.Redirect(w, r, cfg.FailureURL, http.StatusSeeOther)
			return
		}

		target := cfg.FailureURL
		if payment.Status == enums.PaymentStatusSuccess {
			target = cfg.SuccessURL
		}
		http.Redirect(w, r, target, http.StatusSeeOther)
	}
}

type processPaymentRequest struct {
	OrderID        uuid.UUID `json:"order_id" validate:"required"`
	SourceID       string    `json:"source_id" validate:"required,max=256"`
	IdempotencyKey string    `json:"idempotency_key" validate:"omitempty,max=128"`
}

type paymentResponse struct {
	PaymentID     uuid.UUID       `json:"payment_id"`
	OrderID       uuid.UUID       `json:"order_id"`
	Status        string          `json:"status"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	FailureReason *string         `json:"failure_reason,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

func newPaymentResponse(payment *models.Payment) paymentResponse {
	if payment == nil {
		return paymentResponse{}
	}
	return paymentResponse{
		PaymentID:     payment.ID,
		OrderID:       payment.OrderID,
		Status:        string(payment.Status),
		Amount:        payment.Amount,
		Currency:      string(payment.Currency),
		FailureReason: payment.FailureReason,
		CreatedAt:     payment.CreatedAt,
	}
}
