package controllers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/modacart/modacart-backend/api/middleware"
	"github.com/modacart/modacart-backend/api/responses"
	"github.com/modacart/modacart-backend/api/validators"
	"github.com/modacart/modacart-backend/internal/returns"
	"github.com/modacart/modacart-backend/pkg/db/models"
	"github.com/modacart/modacart-backend/pkg/enums"
	pkgerrors "github.com/modacart/modacart-backend/pkg/errors"
	"github.com/modacart/modacart-backend/pkg/logger"
)

// CreateReturn opens a return or replacement claim against a delivered order.
func CreateReturn(svc returns.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "returns service unavailable"))
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

		var payload createReturnRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		requestType, err := enums.ParseReturnRequestType(payload.Type)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid return type"))
			return
		}

		request, err := svc.CreateReturnRequest(r.Context(), returns.CreateReturnInput{
			OrderID:         orderID,
			UserID:          userID,
			Type:            requestType,
			Reason:          validators.SanitizeString(payload.Reason, 1000),
			RequestedAmount: payload.RequestedAmount,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, newReturnResponse(request))
	}
}

// AdminReturnDetail returns a single return request with its refund, if any.
func AdminReturnDetail(repo returns.Repository, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if repo == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "returns repository unavailable"))
			return
		}

		returnID, err := pathUUID(r, "returnId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		request, err := repo.FindReturnByID(r.Context(), returnID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "return request not found"))
				return
			}
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "fetch return request"))
			return
		}

		responses.WriteSuccess(w, newReturnResponse(request))
	}
}

// AdminListReturns pages pending review work for the back office.
func AdminListReturns(repo returns.Repository, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if repo == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "returns repository unavailable"))
			return
		}

		rawStatus := strings.TrimSpace(r.URL.Query().Get("status"))
		if rawStatus == "" {
			rawStatus = string(enums.ReturnRequestStatusPending)
		}
		status, err := enums.ParseReturnRequestStatus(rawStatus)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status filter"))
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", 50, 1, 100)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		list, err := repo.ListReturnsByStatus(r.Context(), status, limit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list return requests"))
			return
		}

		out := make([]returnResponse, 0, len(list))
		for i := range list {
			out = append(out, newReturnResponse(&list[i]))
		}
		responses.WriteSuccess(w, out)
	}
}

// AdminReviewReturn approves or rejects a pending return request. Approval
// opens the refund; the refund executor settles it asynchronously.
func AdminReviewReturn(svc returns.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "returns service unavailable"))
			return
		}

		reviewerID, err := actorUserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		returnID, err := pathUUID(r, "returnId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload reviewReturnRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var approve bool
		switch payload.Status {
		case "approved":
			approve = true
		case "rejected":
			approve = false
		default:
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "status must be approved or rejected"))
			return
		}

		request, err := svc.ReviewReturnRequest(r.Context(), returns.ReviewInput{
			ReturnRequestID: returnID,
			ReviewerID:      reviewerID,
			ReviewerRole:    middleware.RoleFromContext(r.Context()),
			Approve:         approve,
			ReviewNote:      validators.SanitizeString(payload.ReviewNote, 1000),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, newReturnResponse(request))
	}
}

type createReturnRequest struct {
	Type            string          `json:"type" validate:"required"`
	Reason          string          `json:"reason" validate:"required,max=1000"`
	RequestedAmount decimal.Decimal `json:"requested_amount" validate:"required"`
}

type reviewReturnRequest struct {
	Status     string `json:"status" validate:"required"`
	ReviewNote string `json:"review_note" validate:"omitempty,max=1000"`
}

type returnResponse struct {
	ReturnRequestID uuid.UUID       `json:"return_request_id"`
	OrderID         uuid.UUID       `json:"order_id"`
	Type            string          `json:"type"`
	Status          string          `json:"status"`
	Reason          string          `json:"reason"`
	RequestedAmount decimal.Decimal `json:"requested_amount"`
	ReviewNote      *string         `json:"review_note,omitempty"`
	ReviewedAt      *time.Time      `json:"reviewed_at,omitempty"`
	Refund          *refundResponse `json:"refund,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
}

type refundResponse struct {
	RefundRequestID uuid.UUID       `json:"refund_request_id"`
	Status          string          `json:"status"`
	Amount          decimal.Decimal `json:"amount"`
	Currency        string          `json:"currency"`
	FailureReason   *string         `json:"failure_reason,omitempty"`
	ProcessedAt     *time.Time      `json:"processed_at,omitempty"`
}

func newReturnResponse(request *models.ReturnRequest) returnResponse {
	if request == nil {
		return returnResponse{}
	}
	resp := returnResponse{
		ReturnRequestID: request.ID,
		OrderID:         request.OrderID,
		Type:            string(request.Type),
		Status:          string(request.Status),
		Reason:          request.Reason,
		RequestedAmount: request.RequestedAmount,
		ReviewNote:      request.ReviewNote,
		ReviewedAt:      request.ReviewedAt,
		CreatedAt:       request.CreatedAt,
	}
	if refund := request.RefundRequest; refund != nil {
		resp.Refund = &refundResponse{
			RefundRequestID: refund.ID,
			Status:          string(refund.Status),
			Amount:          refund.Amount,
			Currency:        string(refund.Currency),
			FailureReason:   refund.FailureReason,
			ProcessedAt:     refund.ProcessedAt,
		}
	}
	return resp
}
