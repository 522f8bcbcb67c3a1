package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/modacart/modacart-backend/pkg/logger"
)

func TestInboxRetentionJobPurgesWithCutoff(t *testing.T) {
	now := time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC)
	purger := &fakeInboxPurger{deleted: 4}
	jobIface, err := NewInboxRetentionJob(InboxRetentionJobParams{
		Logger:    logger.New(logger.Options{ServiceName: "test"}),
		DB:        passthroughRunner{},
		Guard:     purger,
		Retention: 14 * 24 * time.Hour,
	})
	if err != nil {
		t.Fatalf("NewInboxRetentionJob: %v", err)
	}
	job, ok := jobIface.(*inboxRetentionJob)
	if !ok {
		t.Fatalf("expected inboxRetentionJob, got %T", jobIface)
	}
	job.now = func() time.Time { return now }

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	expected := now.UTC().Add(-14 * 24 * time.Hour)
	if !purger.lastCutoff.Equal(expected) {
		t.Fatalf("expected cutoff %s, got %s", expected, purger.lastCutoff)
	}
	if purger.calls != 1 {
		t.Fatalf("expected one purge, got %d", purger.calls)
	}
}

func TestInboxRetentionJobPropagatesError(t *testing.T) {
	purger := &fakeInboxPurger{err: errors.New("boom")}
	job, err := NewInboxRetentionJob(InboxRetentionJobParams{
		Logger: logger.New(logger.Options{ServiceName: "test"}),
		DB:     passthroughRunner{},
		Guard:  purger,
	})
	if err != nil {
		t.Fatalf("NewInboxRetentionJob: %v", err)
	}
	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

type fakeInboxPurger struct {
	calls      int
	lastCutoff time.Time
	deleted    int64
	err        error
}

func (f *fakeInboxPurger) PurgeOlderThan(_ context.Context, _ *gorm.DB, cutoff time.Time) (int64, error) {
	f.calls++
	f.lastCutoff = cutoff
	if f.err != nil {
		return 0, f.err
	}
	return f.deleted, nil
}
