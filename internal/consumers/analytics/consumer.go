package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	cbigquery "cloud.google.com/go/bigquery"
	"gorm.io/gorm"

	"github.com/modacart/modacart-backend/internal/inbox"
	"github.com/modacart/modacart-backend/pkg/enums"
	"github.com/modacart/modacart-backend/pkg/logger"
	"github.com/modacart/modacart-backend/pkg/metrics"
	"github.com/modacart/modacart-backend/pkg/outbox"
	"github.com/modacart/modacart-backend/pkg/outbox/registry"
)

// ConsumerName is the inbox consumer identity of the analytics sink.
const ConsumerName = "analytics"

type tableInserter interface {
	InsertRows(ctx context.Context, table string, rows []any) error
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Consumer streams order lifecycle events into BigQuery. The inbox guard
// keeps redelivered events from producing duplicate rows.
type Consumer struct {
	client      tableInserter
	table       string
	guard       inbox.Guard
	tx          txRunner
	metrics     *metrics.ConsumerMetrics
	logg        *logger.Logger
	eventFilter map[enums.OutboxEventType]struct{}
}

// NewConsumer builds the analytics consumer.
func NewConsumer(client tableInserter, table string, guard inbox.Guard, tx txRunner, m *metrics.ConsumerMetrics, logg *logger.Logger) (*Consumer, error) {
	if client == nil {
		return nil, fmt.Errorf("bigquery client required")
	}
	if strings.TrimSpace(table) == "" {
		return nil, fmt.Errorf("bigquery table name required")
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
		client:  client,
		table:   strings.TrimSpace(table),
		guard:   guard,
		tx:      tx,
		metrics: m,
		logg:    logg,
		eventFilter: map[enums.OutboxEventType]struct{}{
			enums.EventOrderCreated:     {},
			enums.EventOrderPaid:        {},
			enums.EventOrderCanceled:    {},
			enums.EventOrderExpired:     {},
			enums.EventPaymentSucceeded: {},
			enums.EventPaymentFailed:    {},
			enums.EventReturnRequested:  {},
			enums.EventReturnRejected:   {},
			enums.EventRefundSucceeded:  {},
			enums.EventRefundFailed:     {},
		},
	}, nil
}

// Name implements consumers.Processor.
func (c *Consumer) Name() string { return ConsumerName }

// Process ingests the envelope into BigQuery if the event is supported.
func (c *Consumer) Process(ctx context.Context, eventType enums.OutboxEventType, envelope outbox.PayloadEnvelope) error {
	if _, ok := c.eventFilter[eventType]; !ok {
		c.logg.Info(ctx, "event not handled by analytics consumer")
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

	row, err := buildRow(eventType, envelope)
	if err != nil {
		return registry.NewNonRetryableError(err)
	}
	if err := c.client.InsertRows(ctx, c.table, []any{row}); err != nil {
		return fmt.Errorf("insert order event row: %w", err)
	}

	return c.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if _, err := c.guard.Record(ctx, tx, ConsumerName, envelope.EventID, string(eventType)); err != nil {
			return fmt.Errorf("record inbox: %w", err)
		}
		return nil
	})
}

type orderEventRow struct {
	EventID    string             `bigquery:"event_id"`
	EventType  string             `bigquery:"event_type"`
	OccurredAt time.Time          `bigquery:"occurred_at"`
	OrderID    *string            `bigquery:"order_id"`
	UserID     *string            `bigquery:"user_id"`
	Payload    cbigquery.NullJSON `bigquery:"payload"`
}

func buildRow(eventType enums.OutboxEventType, envelope outbox.PayloadEnvelope) (*orderEventRow, error) {
	payload := map[string]any{}
	if len(envelope.Data) > 0 {
		if err := json.Unmarshal(envelope.Data, &payload); err != nil {
			return nil, fmt.Errorf("decode payload: %w", err)
		}
		if payload == nil {
			payload = map[string]any{}
		}
	}

	payloadJSON := cbigquery.NullJSON{}
	if len(envelope.Data) > 0 {
		payloadJSON.Valid = true
		payloadJSON.JSONVal = string(envelope.Data)
	}

	return &orderEventRow{
		EventID:    envelope.EventID,
		EventType:  string(eventType),
		OccurredAt: envelope.OccurredAt,
		OrderID:    stringValue(payload, "order_id"),
		UserID:     stringValue(payload, "user_id"),
		Payload:    payloadJSON,
	}, nil
}

func stringValue(payload map[string]any, key string) *string {
	if payload == nil {
		return nil
	}
	if raw, ok := payload[key]; ok {
		if str, ok := raw.(string); ok {
			trimmed := strings.TrimSpace(str)
			if trimmed != "" {
				return &trimmed
			}
		}
	}
	return nil
}
