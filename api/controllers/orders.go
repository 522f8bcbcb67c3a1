package controllers

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/modacart/modacart-backend/api/middleware"
	"github.com/modacart/modacart-backend/api/responses"
	"github.com/modacart/modacart-backend/api/validators"
	internalorders "github.com/modacart/modacart-backend/internal/orders"
	"github.com/modacart/modacart-backend/pkg/db/models"
	"github.com/modacart/modacart-backend/pkg/enums"
	pkgerrors "github.com/modacart/modacart-backend/pkg/errors"
	"github.com/modacart/modacart-backend/pkg/logger"
	"github.com/modacart/modacart-backend/pkg/pagination"
)

// ListOrders returns a cursor page of the caller's orders, newest first.
func ListOrders(repo internalorders.Repository, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if repo == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders repository unavailable"))
			return
		}

		userID, err := actorUserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		orders, nextCursor, err := repo.ListByUser(r.Context(), userID, pagination.Params{
			Limit:  limit,
			Cursor: r.URL.Query().Get("cursor"),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		list := make([]orderResponse, 0, len(orders))
		for i := range orders {
			list = append(list, newOrderResponse(&orders[i]))
		}
		responses.WriteSuccess(w, orderListResponse{Orders: list, NextCursor: nextCursor})
	}
}

// OrderDetail returns a single order owned by the caller.
func OrderDetail(repo internalorders.Repository, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if repo == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders repository unavailable"))
			return
		}

		userID, err := actorUserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		orderID, err := pathUUID(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		order, err := repo.FindByIDAndUser(r.Context(), orderID, userID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "order not found"))
				return
			}
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "fetch order"))
			return
		}

		responses.WriteSuccess(w, newOrderResponse(order))
	}
}

// CancelOrder aborts a pending order and releases its reserved stock.
func CancelOrder(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}

		userID, err := actorUserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		orderID, err := pathUUID(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload cancelOrderRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		order, err := svc.Cancel(r.Context(), internalorders.CancelInput{
			OrderID:     orderID,
			ActorUserID: userID,
			Reason:      validators.SanitizeString(payload.Reason, 500),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, newOrderResponse(order))
	}
}

// AdminUpdateOrderStatus drives fulfillment transitions from the back office.
func AdminUpdateOrderStatus(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}

		userID, err := actorUserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		orderID, err := pathUUID(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload updateOrderStatusRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		target, err := enums.ParseOrderStatus(payload.Status)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid target status"))
			return
		}

		order, err := svc.UpdateStatus(r.Context(), internalorders.UpdateStatusInput{
			OrderID:     orderID,
			Target:      target,
			ActorUserID: userID,
			ActorRole:   middleware.RoleFromContext(r.Context()),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, newOrderResponse(order))
	}
}

type cancelOrderRequest struct {
	Reason string `json:"reason" validate:"omitempty,max=500"`
}

type updateOrderStatusRequest struct {
	Status string `json:"status" validate:"required"`
}

type orderListResponse struct {
	Orders     []orderResponse `json:"orders"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

type orderResponse struct {
	OrderID           uuid.UUID           `json:"order_id"`
	Status            string              `json:"status"`
	Currency          string              `json:"currency"`
	Subtotal          decimal.Decimal     `json:"subtotal"`
	DiscountTotal     decimal.Decimal     `json:"discount_total"`
	Total             decimal.Decimal     `json:"total"`
	PaymentMethod     string              `json:"payment_method"`
	CouponCode        *string             `json:"coupon_code,omitempty"`
	LoyaltyPointsUsed int                 `json:"loyalty_points_used,omitempty"`
	PaidAt            *time.Time          `json:"paid_at,omitempty"`
	DeliveredAt       *time.Time          `json:"delivered_at,omitempty"`
	CanceledAt        *time.Time          `json:"canceled_at,omitempty"`
	RefundedAt        *time.Time          `json:"refunded_at,omitempty"`
	Items             []orderItemResponse `json:"items"`
	CreatedAt         time.Time           `json:"created_at"`
}

type orderItemResponse struct {
	ItemID    uuid.UUID       `json:"item_id"`
	ProductID uuid.UUID       `json:"product_id"`
	Name      string          `json:"name"`
	Qty       int             `json:"qty"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	LineTotal decimal.Decimal `json:"line_total"`
}

func newOrderResponse(order *models.Order) orderResponse {
	if order == nil {
		return orderResponse{}
	}
	items := make([]orderItemResponse, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, orderItemResponse{
			ItemID:    item.ID,
			ProductID: item.ProductID,
			Name:      item.Name,
			Qty:       item.Qty,
			UnitPrice: item.UnitPrice,
			LineTotal: item.LineTotal,
		})
	}
	return orderResponse{
		OrderID:           order.ID,
		Status:            string(order.Status),
		Currency:          string(order.Currency),
		Subtotal:          order.Subtotal,
		DiscountTotal:     order.DiscountTotal,
		Total:             order.Total,
		PaymentMethod:     string(order.PaymentMethod),
		CouponCode:        order.CouponCode,
		LoyaltyPointsUsed: order.LoyaltyPointsUsed,
		PaidAt:            order.PaidAt,
		DeliveredAt:       order.DeliveredAt,
		CanceledAt:        order.CanceledAt,
		RefundedAt:        order.RefundedAt,
		Items:             items,
		CreatedAt:         order.CreatedAt,
	}
}
