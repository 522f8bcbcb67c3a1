package refunds

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/modacart/modacart-backend/internal/inbox"
	"github.com/modacart/modacart-backend/internal/returns"
	"github.com/modacart/modacart-backend/pkg/db/models"
	"github.com/modacart/modacart-backend/pkg/enums"
	pkgerrors "github.com/modacart/modacart-backend/pkg/errors"
	"github.com/modacart/modacart-backend/pkg/logger"
	"github.com/modacart/modacart-backend/pkg/mailer"
	"github.com/modacart/modacart-backend/pkg/metrics"
	"github.com/modacart/modacart-backend/pkg/outbox"
	"github.com/modacart/modacart-backend/pkg/outbox/payloads"
	"github.com/modacart/modacart-backend/pkg/outbox/registry"
)

// ConsumerName is the inbox consumer identity of the refund executor.
const ConsumerName = "refund-executor"

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// CustomerDirectory resolves a user id to a contact address. Accounts live
// behind the identity gateway, not in this service's database.
type CustomerDirectory interface {
	EmailFor(ctx context.Context, userID string) (string, error)
}

// Consumer executes approved refunds delivered on the refunds topic. The
// refund request's derived idempotency key plus the inbox guard make
// redeliveries converge on a single gateway refund. The customer is mailed
// on either outcome; mail is best effort and never fails the message.
type Consumer struct {
	service   returns.Service
	sender    mailer.Sender
	directory CustomerDirectory
	guard     inbox.Guard
	tx        txRunner
	metrics   *metrics.ConsumerMetrics
	logg      *logger.Logger
}

// NewConsumer builds the refund executor.
func NewConsumer(service returns.Service, sender mailer.Sender, directory CustomerDirectory, guard inbox.Guard, tx txRunner, m *metrics.ConsumerMetrics, logg *logger.Logger) (*Consumer, error) {
	if service == nil {
		return nil, fmt.Errorf("returns service required")
	}
	if sender == nil {
		return nil, fmt.Errorf("mail sender required")
	}
	if directory == nil {
		return nil, fmt.Errorf("customer directory required")
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
		service:   service,
		sender:    sender,
		directory: directory,
		guard:     guard,
		tx:        tx,
		metrics:   m,
		logg:      logg,
	}, nil
}

// Name implements consumers.Processor.
func (c *Consumer) Name() string { return ConsumerName }

// Process executes the refund for a refund_requested event.
func (c *Consumer) Process(ctx context.Context, eventType enums.OutboxEventType, envelope outbox.PayloadEnvelope) error {
	if eventType != enums.EventRefundRequested {
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

	var payload payloads.RefundRequestedEvent
	if err := json.Unmarshal(envelope.Data, &payload); err != nil {
		return registry.NewNonRetryableError(fmt.Errorf("decode refund_requested payload: %w", err))
	}
	if payload.RefundRequestID == uuid.Nil {
		return registry.NewNonRetryableError(fmt.Errorf("refund request id missing"))
	}

	logCtx := c.logg.WithOrderID(ctx, payload.OrderID.String())
	refund, err := c.service.ProcessRefund(logCtx, payload.RefundRequestID)
	if err != nil {
		if appErr := pkgerrors.As(err); appErr != nil {
			switch appErr.Code() {
			case pkgerrors.CodeNotFound, pkgerrors.CodeValidation, pkgerrors.CodeStateConflict:
				// Retrying cannot fix these; the refund row records the state.
				return registry.NewNonRetryableError(err)
			}
		}
		return err
	}

	c.mailOutcome(logCtx, payload.UserID, refund)

	return c.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if _, err := c.guard.Record(ctx, tx, ConsumerName, envelope.EventID, string(eventType)); err != nil {
			return fmt.Errorf("record inbox: %w", err)
		}
		return nil
	})
}

// mailOutcome tells the customer how the refund ended. Lookup or delivery
// trouble is logged and swallowed: the refund itself already settled.
func (c *Consumer) mailOutcome(ctx context.Context, userID uuid.UUID, refund *models.RefundRequest) {
	if refund == nil || userID == uuid.Nil {
		return
	}

	var msg mailer.Message
	amount := refund.Amount.StringFixed(2)
	switch refund.Status {
	case enums.RefundRequestStatusSucceeded:
		msg = mailer.Message{
			Subject: fmt.Sprintf("Your refund for order %s is on its way", refund.OrderID),
			PlainText: fmt.Sprintf(
				"We refunded %s %s for order %s. Depending on your bank it can take a few days to appear on your statement.",
				amount, refund.Currency, refund.OrderID,
			),
		}
	case enums.RefundRequestStatusFailed:
		msg = mailer.Message{
			Subject: fmt.Sprintf("We could not complete your refund for order %s", refund.OrderID),
			PlainText: fmt.Sprintf(
				"The refund of %s %s for order %s did not go through. Our team has been notified and will retry; you do not need to do anything.",
				amount, refund.Currency, refund.OrderID,
			),
		}
	default:
		return
	}

	email, err := c.directory.EmailFor(ctx, userID.String())
	if err != nil {
		c.logg.Warn(ctx, fmt.Sprintf("customer contact lookup failed, skipping refund mail: %v", err))
		return
	}
	msg.To = email
	if err := c.sender.Send(ctx, msg); err != nil {
		c.logg.Warn(ctx, fmt.Sprintf("refund outcome mail failed: %v", err))
	}
}
