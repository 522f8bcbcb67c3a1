package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	pkgerrors "github.com/modacart/modacart-backend/pkg/errors"
	"github.com/modacart/modacart-backend/pkg/logger"
)

const requestTimeout = 5 * time.Second

var (
	errBaseURLRequired = errors.New("identity base url is required")
	errLoggerRequired  = errors.New("identity logger is required")
)

// Client resolves customer contact details from the identity gateway that
// fronts this service. The gateway owns accounts; this service only ever
// sees user ids.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *logger.Logger
}

// NewClient validates the gateway address and returns a contact resolver.
func NewClient(baseURL string, logg *logger.Logger) (*Client, error) {
	if logg == nil {
		return nil, errLoggerRequired
	}
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errBaseURLRequired
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: requestTimeout},
		logger:     logg,
	}, nil
}

type contactResponse struct {
	Email string `json:"email"`
}

// EmailFor returns the customer's email address. Unknown users map to
// CodeNotFound; gateway trouble maps to CodeDependency so callers can treat
// the lookup as best effort.
func (c *Client) EmailFor(ctx context.Context, userID string) (string, error) {
	if strings.TrimSpace(userID) == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}

	url := fmt.Sprintf("%s/internal/v1/users/%s/contact", c.baseURL, userID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build contact request")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup contact")
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return "", pkgerrors.New(pkgerrors.CodeNotFound, "user has no contact record")
	case resp.StatusCode >= 300:
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", pkgerrors.New(pkgerrors.CodeDependency,
			fmt.Sprintf("identity gateway rejected lookup: status %d %s", resp.StatusCode, strings.TrimSpace(string(detail))))
	}

	var contact contactResponse
	if err := json.NewDecoder(resp.Body).Decode(&contact); err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode contact response")
	}
	email := strings.TrimSpace(contact.Email)
	if email == "" {
		return "", pkgerrors.New(pkgerrors.CodeNotFound, "user has no email on file")
	}
	return email, nil
}
