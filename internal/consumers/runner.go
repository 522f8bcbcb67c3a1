package consumers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	pubsub "cloud.google.com/go/pubsub/v2"

	"github.com/modacart/modacart-backend/pkg/enums"
	"github.com/modacart/modacart-backend/pkg/logger"
	"github.com/modacart/modacart-backend/pkg/metrics"
	"github.com/modacart/modacart-backend/pkg/outbox"
	"github.com/modacart/modacart-backend/pkg/outbox/registry"
)

// Processor handles one decoded outbox envelope. Returning a
// registry.NonRetryableError acks the message instead of redelivering it.
type Processor interface {
	Name() string
	Process(ctx context.Context, eventType enums.OutboxEventType, envelope outbox.PayloadEnvelope) error
}

// Runner binds a Pub/Sub subscription to a Processor and translates
// processing outcomes into ack/nack decisions.
type Runner struct {
	subscription *pubsub.Subscriber
	processor    Processor
	metrics      *metrics.ConsumerMetrics
	logg         *logger.Logger
}

// NewRunner builds a consumer runner for the given subscription.
func NewRunner(subscription *pubsub.Subscriber, processor Processor, m *metrics.ConsumerMetrics, logg *logger.Logger) (*Runner, error) {
	if subscription == nil {
		return nil, fmt.Errorf("subscription required")
	}
	if processor == nil {
		return nil, fmt.Errorf("processor required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Runner{
		subscription: subscription,
		processor:    processor,
		metrics:      m,
		logg:         logg,
	}, nil
}

// Run consumes messages until the context is canceled.
func (r *Runner) Run(ctx context.Context) error {
	return r.subscription.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		if r.process(ctx, msg) {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

// process returns true when the message should be nacked.
func (r *Runner) process(ctx context.Context, msg *pubsub.Message) bool {
	eventType := enums.OutboxEventType(msg.Attributes["event_type"])
	logCtx := r.logg.WithConsumer(ctx, r.processor.Name())
	logCtx = r.logg.WithFields(logCtx, map[string]any{
		"message_id": msg.ID,
		"event_type": eventType,
	})

	var envelope outbox.PayloadEnvelope
	if err := json.Unmarshal(msg.Data, &envelope); err != nil {
		// Malformed envelopes never become valid; drop instead of retrying.
		r.logg.Warn(logCtx, fmt.Sprintf("dropping undecodable envelope: %v", err))
		r.metrics.IncFailure(r.processor.Name())
		return false
	}

	if err := r.processor.Process(logCtx, eventType, envelope); err != nil {
		var nonRetryable registry.NonRetryableError
		if errors.As(err, &nonRetryable) {
			r.logg.Warn(logCtx, fmt.Sprintf("dropping message: %v", err))
			r.metrics.IncFailure(r.processor.Name())
			return false
		}
		r.logg.Error(logCtx, "processing failed, message will be redelivered", err)
		r.metrics.IncFailure(r.processor.Name())
		return true
	}

	r.metrics.IncProcessed(r.processor.Name())
	return false
}
