package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/modacart/modacart-backend/api/middleware"
	"github.com/modacart/modacart-backend/internal/returns"
	"github.com/modacart/modacart-backend/pkg/db/models"
	"github.com/modacart/modacart-backend/pkg/enums"
	pkgerrors "github.com/modacart/modacart-backend/pkg/errors"
)

type stubReturnsService struct {
	createInput *returns.CreateReturnInput
	reviewInput *returns.ReviewInput
	result      *models.ReturnRequest
	err         error
}

func (s *stubReturnsService) CreateReturnRequest(_ context.Context, input returns.CreateReturnInput) (*models.ReturnRequest, error) {
	s.createInput = &input
	return s.result, s.err
}

func (s *stubReturnsService) ReviewReturnRequest(_ context.Context, input returns.ReviewInput) (*models.ReturnRequest, error) {
	s.reviewInput = &input
	return s.result, s.err
}

func (s *stubReturnsService) ProcessRefund(context.Context, uuid.UUID) (*models.RefundRequest, error) {
	return nil, nil
}

func identify(req *http.Request, userID uuid.UUID, role string) *http.Request {
	ctx := middleware.WithUserID(req.Context(), userID.String())
	if role != "" {
		ctx = middleware.WithRole(ctx, role)
	}
	return req.WithContext(ctx)
}

func TestCreateReturnPassesActorAndOrder(t *testing.T) {
	orderID := uuid.New()
	userID := uuid.New()
	svc := &stubReturnsService{result: &models.ReturnRequest{
		ID:      uuid.New(),
		OrderID: orderID,
		Status:  enums.ReturnRequestStatusPending,
	}}

	router := chi.NewRouter()
	router.Post("/api/v1/orders/{orderId}/returns", CreateReturn(svc, nil))

	body := `{"type":"return","reason":"box arrived crushed","requested_amount":149.90}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders/"+orderID.String()+"/returns", strings.NewReader(body))
	req = identify(req, userID, "customer")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", resp.Code, resp.Body.String())
	}
	if svc.createInput == nil {
		t.Fatalf("service was not called")
	}
	if svc.createInput.OrderID != orderID || svc.createInput.UserID != userID {
		t.Fatalf("unexpected input %+v", svc.createInput)
	}
	if svc.createInput.Type != enums.ReturnRequestTypeReturn {
		t.Fatalf("unexpected type %s", svc.createInput.Type)
	}
	if !svc.createInput.RequestedAmount.Equal(decimal.RequireFromString("149.90")) {
		t.Fatalf("unexpected amount %s", svc.createInput.RequestedAmount)
	}
}

func TestCreateReturnRequiresIdentity(t *testing.T) {
	svc := &stubReturnsService{}
	router := chi.NewRouter()
	router.Post("/api/v1/orders/{orderId}/returns", CreateReturn(svc, nil))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders/"+uuid.NewString()+"/returns", strings.NewReader(`{}`))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
	if svc.createInput != nil {
		t.Fatalf("service should not run without identity")
	}
}

func TestCreateReturnRejectsUnknownType(t *testing.T) {
	svc := &stubReturnsService{}
	router := chi.NewRouter()
	router.Post("/api/v1/orders/{orderId}/returns", CreateReturn(svc, nil))

	body := `{"type":"exchange","reason":"wrong size","requested_amount":10}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders/"+uuid.NewString()+"/returns", strings.NewReader(body))
	req = identify(req, uuid.New(), "customer")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestAdminReviewReturnApproves(t *testing.T) {
	returnID := uuid.New()
	reviewerID := uuid.New()
	svc := &stubReturnsService{result: &models.ReturnRequest{
		ID:     returnID,
		Status: enums.ReturnRequestStatusRefundPending,
	}}

	router := chi.NewRouter()
	router.Patch("/api/v1/admin/returns/{returnId}", AdminReviewReturn(svc, nil))

	body := `{"status":"approved","review_note":"photos check out"}`
	req := httptest.NewRequest(http.MethodPatch, "/api/v1/admin/returns/"+returnID.String(), strings.NewReader(body))
	req = identify(req, reviewerID, returns.RoleAdmin)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}
	if svc.reviewInput == nil {
		t.Fatalf("service was not called")
	}
	if !svc.reviewInput.Approve {
		t.Fatalf("expected approval")
	}
	if svc.reviewInput.ReviewerID != reviewerID || svc.reviewInput.ReviewerRole != returns.RoleAdmin {
		t.Fatalf("unexpected reviewer %+v", svc.reviewInput)
	}
}

func TestAdminReviewReturnValidatesStatus(t *testing.T) {
	svc := &stubReturnsService{}
	router := chi.NewRouter()
	router.Patch("/api/v1/admin/returns/{returnId}", AdminReviewReturn(svc, nil))

	req := httptest.NewRequest(http.MethodPatch, "/api/v1/admin/returns/"+uuid.NewString(), strings.NewReader(`{"status":"maybe"}`))
	req = identify(req, uuid.New(), returns.RoleAdmin)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
	if svc.reviewInput != nil {
		t.Fatalf("service should not see an invalid status")
	}
}

func TestAdminReviewReturnSurfacesServiceErrors(t *testing.T) {
	svc := &stubReturnsService{err: pkgerrors.New(pkgerrors.CodeForbidden, "reviewer cannot act on this order")}
	router := chi.NewRouter()
	router.Patch("/api/v1/admin/returns/{returnId}", AdminReviewReturn(svc, nil))

	req := httptest.NewRequest(http.MethodPatch, "/api/v1/admin/returns/"+uuid.NewString(), strings.NewReader(`{"status":"rejected"}`))
	req = identify(req, uuid.New(), returns.RoleSeller)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403 got %d", resp.Code)
	}
	var payload struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode error payload: %v", err)
	}
	if payload.Error.Code != string(pkgerrors.CodeForbidden) {
		t.Fatalf("unexpected code %s", payload.Error.Code)
	}
}
