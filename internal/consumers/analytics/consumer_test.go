package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/modacart/modacart-backend/pkg/enums"
	"github.com/modacart/modacart-backend/pkg/logger"
	"github.com/modacart/modacart-backend/pkg/outbox"
	"github.com/modacart/modacart-backend/pkg/outbox/registry"
)

func TestAnalyticsConsumerProcessesOrderCreated(t *testing.T) {
	inserter := &fakeInserter{}
	guard := &fakeGuard{}
	consumer := mustConsumer(t, inserter, guard)

	orderID := uuid.New()
	userID := uuid.New()
	envelope := buildEnvelope(t, map[string]any{
		"order_id": orderID.String(),
		"user_id":  userID.String(),
		"total":    "500",
	})

	if err := consumer.Process(context.Background(), enums.EventOrderCreated, envelope); err != nil {
		t.Fatalf("Process() error: %v", err)
	}

	if len(inserter.rows) != 1 {
		t.Fatalf("expected 1 row inserted, got %d", len(inserter.rows))
	}
	row, ok := inserter.rows[0].(*orderEventRow)
	if !ok {
		t.Fatalf("expected orderEventRow, got %T", inserter.rows[0])
	}
	if row.EventType != string(enums.EventOrderCreated) {
		t.Fatalf("unexpected event type: %s", row.EventType)
	}
	if row.OrderID == nil || *row.OrderID != orderID.String() {
		t.Fatal("order id mismatch")
	}
	if row.UserID == nil || *row.UserID != userID.String() {
		t.Fatal("user id mismatch")
	}
	if !row.Payload.Valid {
		t.Fatal("payload should be valid json")
	}
	var payload map[string]any
	if err := json.Unmarshal([]byte(row.Payload.JSONVal), &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if _, ok := payload["total"]; !ok {
		t.Fatal("payload missing total")
	}
	if len(guard.recorded) != 1 {
		t.Fatalf("expected 1 inbox record, got %d", len(guard.recorded))
	}
}

func TestAnalyticsConsumerSkipsProcessedEvents(t *testing.T) {
	inserter := &fakeInserter{}
	guard := &fakeGuard{processed: true}
	consumer := mustConsumer(t, inserter, guard)

	envelope := buildEnvelope(t, map[string]any{})
	if err := consumer.Process(context.Background(), enums.EventOrderCreated, envelope); err != nil {
		t.Fatalf("Process() error: %v", err)
	}
	if len(inserter.rows) != 0 {
		t.Fatal("expected no rows inserted for a processed event")
	}
	if len(guard.recorded) != 0 {
		t.Fatal("expected no additional inbox records")
	}
}

func TestAnalyticsConsumerIgnoresUnrelatedEvents(t *testing.T) {
	inserter := &fakeInserter{}
	guard := &fakeGuard{}
	consumer := mustConsumer(t, inserter, guard)

	envelope := buildEnvelope(t, map[string]any{})
	if err := consumer.Process(context.Background(), enums.EventNotificationRequested, envelope); err != nil {
		t.Fatalf("Process() error: %v", err)
	}
	if len(inserter.rows) != 0 {
		t.Fatal("unrelated event must not be inserted")
	}
}

func TestAnalyticsConsumerRetriesOnInsertFailure(t *testing.T) {
	inserter := &fakeInserter{err: errors.New("bigquery down")}
	guard := &fakeGuard{}
	consumer := mustConsumer(t, inserter, guard)

	envelope := buildEnvelope(t, map[string]any{})
	err := consumer.Process(context.Background(), enums.EventOrderPaid, envelope)
	if err == nil {
		t.Fatal("expected error when insert fails")
	}
	var nonRetryable registry.NonRetryableError
	if errors.As(err, &nonRetryable) {
		t.Fatal("insert failures must be retryable")
	}
	if len(guard.recorded) != 0 {
		t.Fatal("failed insert must not be recorded as processed")
	}
}

func TestAnalyticsConsumerDropsEnvelopeWithoutEventID(t *testing.T) {
	inserter := &fakeInserter{}
	guard := &fakeGuard{}
	consumer := mustConsumer(t, inserter, guard)

	envelope := buildEnvelope(t, map[string]any{})
	envelope.EventID = ""

	err := consumer.Process(context.Background(), enums.EventOrderPaid, envelope)
	var nonRetryable registry.NonRetryableError
	if !errors.As(err, &nonRetryable) {
		t.Fatalf("expected non-retryable error, got %v", err)
	}
}

type fakeInserter struct {
	rows []any
	err  error
}

func (f *fakeInserter) InsertRows(_ context.Context, _ string, rows []any) error {
	if f.err != nil {
		return f.err
	}
	f.rows = append(f.rows, rows...)
	return nil
}

type fakeGuard struct {
	processed bool
	recorded  []string
}

func (f *fakeGuard) IsProcessed(_ context.Context, _ *gorm.DB, _ string, _ string) (bool, error) {
	return f.processed, nil
}

func (f *fakeGuard) Record(_ context.Context, _ *gorm.DB, _ string, messageID string, _ string) (bool, error) {
	f.recorded = append(f.recorded, messageID)
	return false, nil
}

func (f *fakeGuard) PurgeOlderThan(_ context.Context, _ *gorm.DB, _ time.Time) (int64, error) {
	return 0, nil
}

type nopTxRunner struct{}

func (nopTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

func mustConsumer(t *testing.T, inserter *fakeInserter, guard *fakeGuard) *Consumer {
	t.Helper()
	logg := logger.New(logger.Options{ServiceName: "analytics-test"})
	consumer, err := NewConsumer(inserter, "order_events", guard, nopTxRunner{}, nil, logg)
	if err != nil {
		t.Fatalf("NewConsumer() error: %v", err)
	}
	return consumer
}

func buildEnvelope(t *testing.T, payload map[string]any) outbox.PayloadEnvelope {
	t.Helper()
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return outbox.PayloadEnvelope{
		Version:    1,
		EventID:    uuid.NewString(),
		OccurredAt: time.Now().UTC(),
		Data:       data,
	}
}
