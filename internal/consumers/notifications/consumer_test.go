package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/modacart/modacart-backend/pkg/enums"
	"github.com/modacart/modacart-backend/pkg/logger"
	"github.com/modacart/modacart-backend/pkg/mailer"
	"github.com/modacart/modacart-backend/pkg/outbox"
	"github.com/modacart/modacart-backend/pkg/outbox/payloads"
)

func TestNotificationsConsumerAlertsOnRefundFailure(t *testing.T) {
	sender := &fakeSender{}
	guard := &fakeGuard{}
	consumer := mustConsumer(t, sender, guard)

	refundID := uuid.New()
	envelope := buildEnvelope(t, payloads.RefundOutcomeEvent{
		RefundRequestID: refundID,
		OrderID:         uuid.New(),
		Status:          enums.RefundRequestStatusFailed,
		Amount:          decimal.NewFromInt(500),
		FailureReason:   "gateway reported status REJECTED",
	})

	if err := consumer.Process(context.Background(), enums.EventRefundFailed, envelope); err != nil {
		t.Fatalf("Process() error: %v", err)
	}
	if len(sender.sent) != 1 {
		t.Fatalf("expected 1 email, got %d", len(sender.sent))
	}
	msg := sender.sent[0]
	if msg.To != "ops@example.com" {
		t.Fatalf("unexpected recipient %q", msg.To)
	}
	if !strings.Contains(msg.PlainText, refundID.String()) {
		t.Fatal("email body missing refund id")
	}
	if !strings.Contains(msg.PlainText, "REJECTED") {
		t.Fatal("email body missing failure reason")
	}
	if len(guard.recorded) != 1 {
		t.Fatalf("expected 1 inbox record, got %d", len(guard.recorded))
	}
}

func TestNotificationsConsumerIgnoresOtherEvents(t *testing.T) {
	sender := &fakeSender{}
	guard := &fakeGuard{}
	consumer := mustConsumer(t, sender, guard)

	envelope := buildEnvelope(t, payloads.RefundOutcomeEvent{RefundRequestID: uuid.New()})
	if err := consumer.Process(context.Background(), enums.EventRefundSucceeded, envelope); err != nil {
		t.Fatalf("Process() error: %v", err)
	}
	if len(sender.sent) != 0 {
		t.Fatal("succeeded refund must not alert ops")
	}
}

func TestNotificationsConsumerSkipsProcessedEvents(t *testing.T) {
	sender := &fakeSender{}
	guard := &fakeGuard{processed: true}
	consumer := mustConsumer(t, sender, guard)

	envelope := buildEnvelope(t, payloads.RefundOutcomeEvent{RefundRequestID: uuid.New()})
	if err := consumer.Process(context.Background(), enums.EventRefundFailed, envelope); err != nil {
		t.Fatalf("Process() error: %v", err)
	}
	if len(sender.sent) != 0 {
		t.Fatal("processed event must not be re-sent")
	}
}

func TestNotificationsConsumerRetriesSendFailures(t *testing.T) {
	sender := &fakeSender{err: errors.New("sendgrid down")}
	guard := &fakeGuard{}
	consumer := mustConsumer(t, sender, guard)

	envelope := buildEnvelope(t, payloads.RefundOutcomeEvent{RefundRequestID: uuid.New()})
	if err := consumer.Process(context.Background(), enums.EventRefundFailed, envelope); err == nil {
		t.Fatal("expected error when send fails")
	}
	if len(guard.recorded) != 0 {
		t.Fatal("failed send must not be recorded as processed")
	}
}

type fakeSender struct {
	sent []mailer.Message
	err  error
}

func (f *fakeSender) Send(_ context.Context, msg mailer.Message) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, msg)
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

func mustConsumer(t *testing.T, sender *fakeSender, guard *fakeGuard) *Consumer {
	t.Helper()
	logg := logger.New(logger.Options{ServiceName: "notifications-test"})
	consumer, err := NewConsumer(sender, "ops@example.com", guard, nopTxRunner{}, nil, logg)
	if err != nil {
		t.Fatalf("NewConsumer() error: %v", err)
	}
	return consumer
}

func buildEnvelope(t *testing.T, payload payloads.RefundOutcomeEvent) outbox.PayloadEnvelope {
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
