package square

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	sq "github.com/square/square-go-sdk"
	sqclient "github.com/square/square-go-sdk/client"
	sqcore "github.com/square/square-go-sdk/core"
	sqoption "github.com/square/square-go-sdk/option"

	"github.com/modacart/modacart-backend/pkg/config"
	pkgerrors "github.com/modacart/modacart-backend/pkg/errors"
	"github.com/modacart/modacart-backend/pkg/logger"
)

const (
	sandboxEnv    = "sandbox"
	productionEnv = "production"
)

var (
	errAccessTokenRequired     = errors.New("square access token is required")
	errWebhookSecretRequired   = errors.New("square webhook secret is required")
	errNotificationURLRequired = errors.New("square notification url is required")
	errInvalidSquareEnv        = fmt.Errorf("square environment must be %q or %q", sandboxEnv, productionEnv)
	errLoggerRequired          = errors.New("square logger is required")
)

var baseURLs = map[string]string{
	sandboxEnv:    "https://connect.squareupsandbox.com",
	productionEnv: "https://connect.squareup.com",
}

// Client wraps the Square SDK behind this codebase's error codes. Every
// call logs request and response phases with sensitive fields redacted,
// and SDK errors come back as domain errors rather than raw API errors.
type Client struct {
	sdk             *sqclient.Client
	accessToken     string
	environment     string
	webhookSecret   string
	notificationURL string
	locationID      string
	baseURL         string
	logger          *logger.Logger
}

// NewClient validates the Square credentials and builds the wrapper.
func NewClient(ctx context.Context, cfg config.SquareConfig, logg *logger.Logger) (*Client, error) {
	if logg == nil {
		return nil, errLoggerRequired
	}
	env, err := normalizeEnv(cfg.Environment())
	if err != nil {
		return nil, err
	}

	accessToken, err := requireSetting(cfg.AccessToken, errAccessTokenRequired)
	if err != nil {
		return nil, err
	}
	webhookSecret, err := requireSetting(cfg.WebhookSecret, errWebhookSecretRequired)
	if err != nil {
		return nil, err
	}
	notificationURL, err := requireSetting(cfg.NotificationURL, errNotificationURLRequired)
	if err != nil {
		return nil, err
	}

	baseURL := baseURLs[env]
	sdk := sqclient.NewClient(
		sqoption.WithBaseURL(baseURL),
		sqoption.WithToken(accessToken),
	)

	c := &Client{
		sdk:             sdk,
		accessToken:     accessToken,
		environment:     env,
		webhookSecret:   webhookSecret,
		notificationURL: notificationURL,
		locationID:      strings.TrimSpace(cfg.LocationID),
		baseURL:         baseURL,
		logger:          logg,
	}

	logg.Info(ctx, "square client initialized")
	return c, nil
}

// AccessToken returns the configured Square token.
func (c *Client) AccessToken() string {
	if c == nil {
		return ""
	}
	return c.accessToken
}

// Environment reports the normalized Square environment.
func (c *Client) Environment() string {
	if c == nil {
		return ""
	}
	return c.environment
}

// SigningSecret returns the Square webhook secret.
func (c *Client) SigningSecret() string {
	if c == nil {
		return ""
	}
	return c.webhookSecret
}

// LocationID returns the Square location payments are charged against.
func (c *Client) LocationID() string {
	if c == nil {
		return ""
	}
	return c.locationID
}

// NewIdempotencyKey returns a unique key for Square operations.
func (c *Client) NewIdempotencyKey(prefix string) string {
	key := strings.TrimSpace(prefix)
	if key == "" {
		key = "mc"
	}
	return fmt.Sprintf("%s-%s", key, uuid.NewString())
}

// VerifyWebhookSignature checks the x-square-hmacsha256-signature header against
// the HMAC of the notification URL concatenated with the raw request body.
func (c *Client) VerifyWebhookSignature(payload []byte, signature string) bool {
	if c == nil || c.webhookSecret == "" {
		return false
	}
	signature = strings.TrimSpace(signature)
	if signature == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(c.webhookSecret))
	mac.Write([]byte(c.notificationURL))
	mac.Write(payload)
	expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

// Payment operations
func (c *Client) CreatePayment(ctx context.Context, params PaymentCreateParams) (*sq.Payment, error) {
	req := params.toSquareRequest(c.ensureIdempotencyKey("payment.create", params.IdempotencyKey))
	c.log(ctx, "request", "create_payment", map[string]any{
		"location_id":  params.LocationID,
		"reference_id": params.ReferenceID,
		"amount":       params.AmountCents,
	})

	resp, err := c.sdk.Payments.Create(ctx, req)
	if err != nil {
		c.log(ctx, "error", "create_payment", map[string]any{"error": err.Error()})
		return nil, c.mapSquareError(err, "create payment")
	}

	payment := resp.GetPayment()
	c.log(ctx, "response", "create_payment", map[string]any{
		"payment_id": stringValue(payment.GetID()),
		"status":     stringValue(payment.GetStatus()),
	})
	return payment, nil
}

func (c *Client) GetPayment(ctx context.Context, paymentID string) (*sq.Payment, error) {
	req := &sq.GetPaymentsRequest{PaymentID: paymentID}
	c.log(ctx, "request", "get_payment", map[string]any{"payment_id": paymentID})

	resp, err := c.sdk.Payments.Get(ctx, req)
	if err != nil {
		c.log(ctx, "error", "get_payment", map[string]any{"error": err.Error()})
		return nil, c.mapSquareError(err, "get payment")
	}

	payment := resp.GetPayment()
	c.log(ctx, "response", "get_payment", map[string]any{
		"payment_id": stringValue(payment.GetID()),
		"status":     stringValue(payment.GetStatus()),
	})
	return payment, nil
}

// Refund operations
func (c *Client) RefundPayment(ctx context.Context, params RefundCreateParams) (*sq.PaymentRefund, error) {
	req := params.toSquareRequest(c.ensureIdempotencyKey("refund.create", params.IdempotencyKey))
	c.log(ctx, "request", "refund_payment", map[string]any{
		"payment_id": params.PaymentID,
		"amount":     params.AmountCents,
	})

	resp, err := c.sdk.Refunds.RefundPayment(ctx, req)
	if err != nil {
		c.log(ctx, "error", "refund_payment", map[string]any{"error": err.Error()})
		return nil, c.mapSquareError(err, "refund payment")
	}

	refund := resp.GetRefund()
	c.log(ctx, "response", "refund_payment", map[string]any{
		"refund_id": refund.GetID(),
		"status":    refund.GetStatus(),
	})
	return refund, nil
}

func (c *Client) ensureIdempotencyKey(prefix, provided string) string {
	if strings.TrimSpace(provided) != "" {
		return provided
	}
	return c.NewIdempotencyKey(prefix)
}

func (c *Client) log(ctx context.Context, phase, op string, fields map[string]any) {
	if c == nil || c.logger == nil {
		return
	}
	scoped := map[string]any{
		"operation": op,
		"phase":     phase,
	}
	for key, value := range fields {
		scoped[key] = c.redact(key, value)
	}
	ctx = c.logger.WithFields(ctx, scoped)
	if phase == "error" {
		c.logger.Error(ctx, fmt.Sprintf("square %s", op), errors.New(fmt.Sprint(fields["error"])))
		return
	}
	c.logger.Info(ctx, fmt.Sprintf("square %s", phase))
}

// redact blanks any field whose name suggests cardholder data or
// credentials before it reaches the log.
func (c *Client) redact(key string, value any) any {
	lower := strings.ToLower(key)
	for _, marker := range []string{"card", "nonce", "token", "cvv", "cvc", "secret", "email", "phone"} {
		if strings.Contains(lower, marker) {
			return "[REDACTED]"
		}
	}
	return value
}

// mapSquareError translates an SDK failure into a domain error. The
// HTTP status picks a baseline code; the embedded Square error list can
// sharpen it, and a payment-method or refund error becomes a gateway
// decline carrying the decline reason.
func (c *Client) mapSquareError(err error, op string) error {
	if err == nil {
		return nil
	}
	var apiErr *sqcore.APIError
	if !errors.As(err, &apiErr) {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, fmt.Sprintf("square %s failed", op))
	}

	code := domainCodeForStatus(apiErr.StatusCode)
	for _, sqErr := range c.extractSquareErrors(apiErr) {
		if sqErr == nil {
			continue
		}
		switch {
		case sqErr.Code == sq.ErrorCodeIdempotencyKeyReused:
			code = pkgerrors.CodeIdempotency
		case sqErr.Category == sq.ErrorCategoryAuthenticationError:
			code = pkgerrors.CodeUnauthorized
		case sqErr.Category == sq.ErrorCategoryPaymentMethodError,
			sqErr.Category == sq.ErrorCategoryRefundError:
			reason := strings.TrimSpace(stringValue(sqErr.Detail))
			if reason == "" {
				reason = string(sqErr.Code)
			}
			return pkgerrors.Wrap(pkgerrors.CodeGatewayDeclined, err, fmt.Sprintf("square %s declined", op)).
				WithDetails(map[string]string{"reason": reason})
		default:
			continue
		}
		break
	}
	return pkgerrors.Wrap(code, err, fmt.Sprintf("square %s failed", op))
}

// extractSquareErrors digs the structured error list out of the API
// error body. The SDK only surfaces it as the wrapped error's text.
func (c *Client) extractSquareErrors(apiErr *sqcore.APIError) []*sq.Error {
	if apiErr == nil || apiErr.Unwrap() == nil {
		return nil
	}
	raw := strings.TrimSpace(apiErr.Unwrap().Error())
	if raw == "" {
		return nil
	}
	var body struct {
		Errors []*sq.Error `json:"errors"`
	}
	if err := json.Unmarshal([]byte(raw), &body); err != nil {
		return nil
	}
	return body.Errors
}

func domainCodeForStatus(status int) pkgerrors.Code {
	switch status {
	case http.StatusUnauthorized:
		return pkgerrors.CodeUnauthorized
	case http.StatusForbidden:
		return pkgerrors.CodeForbidden
	case http.StatusNotFound:
		return pkgerrors.CodeNotFound
	case http.StatusConflict:
		return pkgerrors.CodeConflict
	case http.StatusTooManyRequests:
		return pkgerrors.CodeDependency
	case http.StatusBadRequest:
		return pkgerrors.CodeValidation
	case http.StatusUnprocessableEntity:
		return pkgerrors.CodeStateConflict
	}
	if status >= 400 && status < 500 {
		return pkgerrors.CodeValidation
	}
	return pkgerrors.CodeDependency
}

func stringValue(ptr *string) string {
	if ptr == nil {
		return ""
	}
	return *ptr
}

func requireSetting(raw string, missing error) (string, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return "", missing
	}
	return value, nil
}

func normalizeEnv(raw string) (string, error) {
	env := strings.TrimSpace(strings.ToLower(raw))
	if env == "" {
		env = sandboxEnv
	}
	switch env {
	case sandboxEnv, productionEnv:
		return env, nil
	}
	return "", errInvalidSquareEnv
}
