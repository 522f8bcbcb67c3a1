package inbox

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/modacart/modacart-backend/pkg/db/models"
)

func TestGuardRecordDetectsDuplicate(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	g := NewGuard(db)
	ctx := context.Background()

	err := db.Transaction(func(tx *gorm.DB) error {
		already, err := g.Record(ctx, tx, "refund-executor", "msg-1", "refund_requested")
		if err != nil {
			return err
		}
		if already {
			t.Fatal("first record should not report duplicate")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("first record: %v", err)
	}

	// Same consumer and message id hits the unique index.
	err = db.Transaction(func(tx *gorm.DB) error {
		already, err := g.Record(ctx, tx, "refund-executor", "msg-1", "refund_requested")
		if err != nil {
			return err
		}
		if !already {
			t.Fatal("second record should report duplicate")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("second record: %v", err)
	}

	// A different consumer processing the same message is independent.
	err = db.Transaction(func(tx *gorm.DB) error {
		already, err := g.Record(ctx, tx, "analytics", "msg-1", "refund_requested")
		if err != nil {
			return err
		}
		if already {
			t.Fatal("different consumer should not report duplicate")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("cross-consumer record: %v", err)
	}
}

func TestGuardIsProcessed(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	g := NewGuard(db)
	ctx := context.Background()

	processed, err := g.IsProcessed(ctx, nil, "refund-executor", "msg-2")
	if err != nil {
		t.Fatalf("is processed: %v", err)
	}
	if processed {
		t.Fatal("unseen message reported as processed")
	}

	err = db.Transaction(func(tx *gorm.DB) error {
		_, err := g.Record(ctx, tx, "refund-executor", "msg-2", "refund_requested")
		return err
	})
	if err != nil {
		t.Fatalf("record: %v", err)
	}

	processed, err = g.IsProcessed(ctx, nil, "refund-executor", "msg-2")
	if err != nil {
		t.Fatalf("is processed: %v", err)
	}
	if !processed {
		t.Fatal("recorded message not reported as processed")
	}
}

func TestGuardPurgeOlderThan(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	g := NewGuard(db)
	ctx := context.Background()

	old := models.InboxRecord{
		ID:          uuid.New(),
		Consumer:    "refund-executor",
		MessageID:   "old-msg",
		MessageType: "refund_requested",
	}
	if err := db.Create(&old).Error; err != nil {
		t.Fatalf("seed old record: %v", err)
	}
	if err := db.Model(&models.InboxRecord{}).
		Where("id = ?", old.ID).
		Update("processed_at", time.Now().UTC().Add(-48*time.Hour)).Error; err != nil {
		t.Fatalf("age old record: %v", err)
	}
	if err := db.Create(&models.InboxRecord{
		ID:          uuid.New(),
		Consumer:    "refund-executor",
		MessageID:   "fresh-msg",
		MessageType: "refund_requested",
	}).Error; err != nil {
		t.Fatalf("seed fresh record: %v", err)
	}

	deleted, err := g.PurgeOlderThan(ctx, nil, time.Now().UTC().Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if deleted != 1 {
		t.Fatalf("expected 1 deleted record, got %d", deleted)
	}

	var remaining int64
	if err := db.Model(&models.InboxRecord{}).Count(&remaining).Error; err != nil {
		t.Fatalf("count remaining: %v", err)
	}
	if remaining != 1 {
		t.Fatalf("expected 1 remaining record, got %d", remaining)
	}
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:inbox_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	// gen_random_uuid defaults do not exist in sqlite, so the table is
	// created by hand instead of AutoMigrate.
	schema := `
CREATE TABLE IF NOT EXISTS inbox_records (
  id TEXT,
  consumer TEXT NOT NULL,
  message_id TEXT NOT NULL,
  message_type TEXT NOT NULL,
  processed_at DATETIME
);
CREATE UNIQUE INDEX IF NOT EXISTS ux_inbox_consumer_message ON inbox_records (consumer, message_id);`
	if err := db.Exec(schema).Error; err != nil {
		t.Fatalf("create inbox schema: %v", err)
	}
	return db
}
