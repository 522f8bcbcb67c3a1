package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/modacart/modacart-backend/api/responses"
	"github.com/modacart/modacart-backend/api/validators"
	checkoutsvc "github.com/modacart/modacart-backend/internal/checkout"
	pkgerrors "github.com/modacart/modacart-backend/pkg/errors"
	"github.com/modacart/modacart-backend/pkg/logger"
	"github.com/modacart/modacart-backend/pkg/types"
)

// Checkout converts the caller's cart into a pending order with reserved stock.
func Checkout(svc checkoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}

		userID, err := actorUserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload checkoutRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		order, err := svc.Execute(r.Context(), userID, payload.CartID, checkoutsvc.CheckoutInput{
			ShippingAddress: payload.ShippingAddress,
			CouponCode:      payload.CouponCode,
			LoyaltyPoints:   payload.LoyaltyPoints,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, newOrderResponse(order))
	}
}

type checkoutRequest struct {
	CartID          uuid.UUID     `json:"cart_id" validate:"required"`
	ShippingAddress types.Address `json:"shipping_address" validate:"required"`
	CouponCode      *string       `json:"coupon_code,omitempty" validate:"omitempty,max=64"`
	LoyaltyPoints   int           `json:"loyalty_points,omitempty" validate:"omitempty,min=0"`
}
