package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/modacart/modacart-backend/pkg/logger"
)

func TestOrderTTLJobSweepsWithConfiguredTTL(t *testing.T) {
	expirer := &fakeOrderExpirer{swept: 3}
	job, err := NewOrderTTLJob(OrderTTLJobParams{
		Logger:     logger.New(logger.Options{ServiceName: "test"}),
		Expirer:    expirer,
		TTL:        45 * time.Minute,
		SweepLimit: 50,
	})
	if err != nil {
		t.Fatalf("NewOrderTTLJob: %v", err)
	}

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if expirer.calls != 1 {
		t.Fatalf("expected one sweep, got %d", expirer.calls)
	}
	if expirer.lastTTL != 45*time.Minute {
		t.Fatalf("expected ttl 45m, got %s", expirer.lastTTL)
	}
	if expirer.lastLimit != 50 {
		t.Fatalf("expected limit 50, got %d", expirer.lastLimit)
	}
}

func TestOrderTTLJobDefaults(t *testing.T) {
	expirer := &fakeOrderExpirer{}
	job, err := NewOrderTTLJob(OrderTTLJobParams{
		Logger:  logger.New(logger.Options{ServiceName: "test"}),
		Expirer: expirer,
	})
	if err != nil {
		t.Fatalf("NewOrderTTLJob: %v", err)
	}

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if expirer.lastTTL != defaultOrderTTL {
		t.Fatalf("expected default ttl, got %s", expirer.lastTTL)
	}
	if expirer.lastLimit != defaultOrderSweepLimit {
		t.Fatalf("expected default limit, got %d", expirer.lastLimit)
	}
}

func TestOrderTTLJobPropagatesError(t *testing.T) {
	expirer := &fakeOrderExpirer{err: errors.New("db down")}
	job, err := NewOrderTTLJob(OrderTTLJobParams{
		Logger:  logger.New(logger.Options{ServiceName: "test"}),
		Expirer: expirer,
	})
	if err != nil {
		t.Fatalf("NewOrderTTLJob: %v", err)
	}
	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

type fakeOrderExpirer struct {
	calls     int
	lastTTL   time.Duration
	lastLimit int
	swept     int
	err       error
}

func (f *fakeOrderExpirer) ExpirePendingPayment(_ context.Context, olderThan time.Duration, limit int) (int, error) {
	f.calls++
	f.lastTTL = olderThan
	f.lastLimit = limit
	if f.err != nil {
		return 0, f.err
	}
	return f.swept, nil
}
