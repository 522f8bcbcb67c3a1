package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/modacart/modacart-backend/internal/inbox"
	"github.com/modacart/modacart-backend/pkg/enums"
	"github.com/modacart/modacart-backend/pkg/logger"
	"github.com/modacart/modacart-backend/pkg/mailer"
	"github.com/modacart/modacart-backend/pkg/metrics"
	"github.com/modacart/modacart-backend/pkg/outbox"
	"github.com/modacart/modacart-backend/pkg/outbox/payloads"
	"github.com/modacart/modacart-backend/pkg/outbox/registry"
)

// ConsumerName is the inbox consumer identity of the ops mailer.
const ConsumerName = "ops-notifications"

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Consumer turns refund failures into operator emails. A failed refund
// leaves the return request stuck in refund_pending until someone retries,
// so the alert is what closes that loop.
type Consumer struct {
	sender   mailer.Sender
	opsEmail string
	guard    inbox.Guard
	tx       txRunner
	metrics  *metrics.ConsumerMetrics
	logg     *logger.Logger
}

// NewConsumer builds the notifications consumer.
func NewConsumer(sender mailer.Sender, opsEmail string, guard inbox.Guard, tx txRunner, m *metrics.ConsumerMetrics, logg *logger.Logger) (*Consumer, error) {
	if sender == nil {
		return nil, fmt.Errorf("mail sender required")
	}
	if strings.TrimSpace(opsEmail) == "" {
		return nil, fmt.Errorf("ops email required")
	}
	if guard == nil {
		return nil, fmt.Errorf("inbox guard required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Consumer{
		sender:   sender,
		opsEmail: strings.TrimSpace(opsEmail),
		guard:    guard,
		tx:       tx,
		metrics:  m,
		logg:     logg,
	}, nil
}

// Name implements consumers.Processor.
func (c *Consumer) Name() string { return ConsumerName }

// Process emails the operations inbox about a failed refund.
func (c *Consumer) Process(ctx context.Context, eventType enums.OutboxEventType, envelope outbox.PayloadEnvelope) error {
	if eventType != enums.EventRefundFailed {
		return nil
	}
	if envelope.EventID == "" {
		return registry.NewNonRetryableError(fmt.Errorf("event id missing"))
	}

	processed, err := c.guard.IsProcessed(ctx, nil, ConsumerName, envelope.EventID)
	if err != nil {
		return fmt.Errorf("inbox pre-check: %w", err)
	}
	if processed {
		c.metrics.IncDuplicate(ConsumerName)
		c.logg.Info(ctx, "event already processed")
		return nil
	}

	var payload payloads.RefundOutcomeEvent
	if err := json.Unmarshal(envelope.Data, &payload); err != nil {
		return registry.NewNonRetryableError(fmt.Errorf("decode refund outcome payload: %w", err))
	}

	msg := mailer.Message{
		To:      c.opsEmail,
		Subject: fmt.Sprintf("Refund %s failed for order %s", payload.RefundRequestID, payload.OrderID),
		PlainText: fmt.Sprintf(
			"Refund %s for order %s failed: %s\nAmount: %s\nThe return request is still refund_pending and needs a retry.",
			payload.RefundRequestID, payload.OrderID, payload.FailureReason, payload.Amount.StringFixed(2),
		),
	}
	if err := c.sender.Send(ctx, msg); err != nil {
		return fmt.Errorf("send ops alert: %w", err)
	}

	return c.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if _, err := c.guard.Record(ctx, tx, ConsumerName, envelope.EventID, string(eventType)); err != nil {
			return fmt.Errorf("record inbox: %w", err)
		}
		return nil
	})
}
