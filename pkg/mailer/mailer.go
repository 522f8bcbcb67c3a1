package mailer

import (
	"bytes"
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

const (
	sendEndpoint   = "https://api.sendgrid.com/v3/mail/send"
	requestTimeout = 10 * time.Second
)

var (
	errAPIKeyRequired = errors.New("sendgrid api key is required")
	errFromRequired   = errors.New("sendgrid from address is required")
	errLoggerRequired = errors.New("mailer logger is required")
)

// Message is a single outbound email.
type Message struct {
	To       string
	Subject  string
	PlainText string
}

// Sender delivers transactional email.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// Client sends mail through the SendGrid v3 REST API.
type Client struct {
	apiKey     string
	from       string
	httpClient *http.Client
	logger     *logger.Logger
}

// NewClient validates credentials and returns a SendGrid-backed sender.
func NewClient(apiKey, from string, logg *logger.Logger) (*Client, error) {
	if logg == nil {
		return nil, errLoggerRequired
	}
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errAPIKeyRequired
	}
	from = strings.TrimSpace(from)
	if from == "" {
		return nil, errFromRequired
	}
	return &Client{
		apiKey:     apiKey,
		from:       from,
		httpClient: &http.Client{Timeout: requestTimeout},
		logger:     logg,
	}, nil
}

type sendRequest struct {
	Personalizations []personalization `json:"personalizations"`
	From             emailAddress      `json:"from"`
	Subject          string            `json:"subject"`
	Content          []content         `json:"content"`
}

type personalization struct {
	To []emailAddress `json:"to"`
}

type emailAddress struct {
	Email string `json:"email"`
}

type content struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// Send delivers the message. Delivery failures map to CodeDependency so callers
// can decide whether the send is best effort.
func (c *Client) Send(ctx context.Context, msg Message) error {
	to := strings.TrimSpace(msg.To)
	if to == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "recipient address required")
	}
	if strings.TrimSpace(msg.Subject) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "subject required")
	}

	payload := sendRequest{
		Personalizations: []personalization{{To: []emailAddress{{Email: to}}}},
		From:             emailAddress{Email: c.from},
		Subject:          msg.Subject,
		Content:          []content{{Type: "text/plain", Value: msg.PlainText}},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode mail payload")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, sendEndpoint, bytes.NewReader(body))
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build mail request")
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "send mail")
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return pkgerrors.New(pkgerrors.CodeDependency,
			fmt.Sprintf("sendgrid rejected mail: status %d %s", resp.StatusCode, strings.TrimSpace(string(detail))))
	}

	c.logger.Info(c.logger.WithFields(ctx, map[string]any{"subject": msg.Subject}), "mail sent")
	return nil
}
