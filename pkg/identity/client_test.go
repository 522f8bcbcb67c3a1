package identity

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	pkgerrors "github.com/modacart/modacart-backend/pkg/errors"
	"github.com/modacart/modacart-backend/pkg/logger"
)

func testClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewClient(server.URL, logger.New(logger.Options{ServiceName: "identity-test"}))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return client
}

func TestEmailForResolvesContact(t *testing.T) {
	var requested string
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		requested = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"email":"customer@example.com"}`))
	})

	email, err := client.EmailFor(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("EmailFor: %v", err)
	}
	if email != "customer@example.com" {
		t.Fatalf("unexpected email %q", email)
	}
	if requested != "/internal/v1/users/user-1/contact" {
		t.Fatalf("unexpected path %q", requested)
	}
}

func TestEmailForUnknownUserIsNotFound(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	_, err := client.EmailFor(context.Background(), "user-unknown")
	if appErr := pkgerrors.As(err); appErr == nil || appErr.Code() != pkgerrors.CodeNotFound {
		t.Fatalf("expected NOT_FOUND, got %v", err)
	}
}

func TestEmailForGatewayTroubleIsDependency(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := client.EmailFor(context.Background(), "user-1")
	if appErr := pkgerrors.As(err); appErr == nil || appErr.Code() != pkgerrors.CodeDependency {
		t.Fatalf("expected DEPENDENCY, got %v", err)
	}
}

func TestEmailForEmptyAddressIsNotFound(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"email":""}`))
	})

	_, err := client.EmailFor(context.Background(), "user-1")
	if appErr := pkgerrors.As(err); appErr == nil || appErr.Code() != pkgerrors.CodeNotFound {
		t.Fatalf("expected NOT_FOUND, got %v", err)
	}
}
