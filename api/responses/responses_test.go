package responses

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	pkgerrors "github.com/modacart/modacart-backend/pkg/errors"
	"github.com/modacart/modacart-backend/pkg/types"
)

func decodeError(t *testing.T, w *httptest.ResponseRecorder) types.ErrorEnvelope {
	t.Helper()
	var body types.ErrorEnvelope
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode error envelope: %v", err)
	}
	return body
}

func TestWriteSuccessWrapsDataEnvelope(t *testing.T) {
	w := httptest.NewRecorder()
	WriteSuccess(w, map[string]string{"order_id": "ord-1"})

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var body types.SuccessEnvelope
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode success envelope: %v", err)
	}
	if body.Data.(map[string]any)["order_id"] != "ord-1" {
		t.Fatalf("unexpected payload %v", body.Data)
	}
}

func TestWriteErrorClientFacingCodesKeepMessageAndDetails(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   pkgerrors.Code
	}{
		{
			name: "insufficient stock",
			err: pkgerrors.New(pkgerrors.CodeInsufficientStock, "only 2 units left").
				WithDetails(map[string]any{"product_id": "p1", "available": 2}),
			wantStatus: http.StatusConflict,
			wantCode:   pkgerrors.CodeInsufficientStock,
		},
		{
			name: "gateway declined",
			err: pkgerrors.New(pkgerrors.CodeGatewayDeclined, "card declined by issuer").
				WithDetails(map[string]any{"gateway_code": "CARD_DECLINED"}),
			wantStatus: http.StatusUnprocessableEntity,
			wantCode:   pkgerrors.CodeGatewayDeclined,
		},
		{
			name: "validation",
			err: pkgerrors.New(pkgerrors.CodeValidation, "bad input").
				WithDetails(map[string]string{"field": "quantity"}),
			wantStatus: http.StatusBadRequest,
			wantCode:   pkgerrors.CodeValidation,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			WriteError(context.Background(), nil, w, tc.err)

			if w.Code != tc.wantStatus {
				t.Fatalf("status = %d, want %d", w.Code, tc.wantStatus)
			}
			body := decodeError(t, w)
			if body.Error.Code != string(tc.wantCode) {
				t.Fatalf("code = %s, want %s", body.Error.Code, tc.wantCode)
			}
			if body.Error.Message != tc.err.(*pkgerrors.Error).Message() {
				t.Fatalf("message = %q, want passthrough", body.Error.Message)
			}
			if body.Error.Details == nil {
				t.Fatal("details dropped for a code that allows them")
			}
		})
	}
}

func TestWriteErrorUntypedBecomesInternal(t *testing.T) {
	w := httptest.NewRecorder()
	WriteError(context.Background(), nil, w, errors.New("pq: deadlock detected"))

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", w.Code)
	}
	body := decodeError(t, w)
	if body.Error.Code != string(pkgerrors.CodeInternal) {
		t.Fatalf("code = %s, want internal", body.Error.Code)
	}
	if body.Error.Details != nil {
		t.Fatal("internal errors must not carry details")
	}
}

func TestWriteErrorInternalMessageStaysOpaque(t *testing.T) {
	w := httptest.NewRecorder()
	WriteError(context.Background(), nil, w, pkgerrors.New(pkgerrors.CodeInternal, "pg connection pool exhausted"))

	body := decodeError(t, w)
	if body.Error.Message == "pg connection pool exhausted" {
		t.Fatal("internal message leaked to the client")
	}
}
