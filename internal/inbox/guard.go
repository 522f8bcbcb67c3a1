package inbox

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	pkgdb "github.com/modacart/modacart-backend/pkg/db"
	"github.com/modacart/modacart-backend/pkg/db/models"
	pkgerrors "github.com/modacart/modacart-backend/pkg/errors"
)

// Guard is the database-backed dedupe check consumers run before and after
// doing work. The unique index on (consumer, message_id) is the actual
// protection; the pre-check just avoids redundant work on the happy path.
type Guard interface {
	IsProcessed(ctx context.Context, tx *gorm.DB, consumer, messageID string) (bool, error)
	Record(ctx context.Context, tx *gorm.DB, consumer, messageID, messageType string) (bool, error)
	PurgeOlderThan(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error)
}

type guard struct {
	db *gorm.DB
}

// NewGuard binds the inbox guard to the provided GORM handle.
func NewGuard(db *gorm.DB) Guard {
	return &guard{db: db}
}

func (g *guard) handle(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return g.db
}

// IsProcessed reports whether the consumer already handled the message.
func (g *guard) IsProcessed(ctx context.Context, tx *gorm.DB, consumer, messageID string) (bool, error) {
	consumer = strings.TrimSpace(consumer)
	messageID = strings.TrimSpace(messageID)
	if consumer == "" || messageID == "" {
		return false, pkgerrors.New(pkgerrors.CodeValidation, "consumer and message id required")
	}

	var count int64
	err := g.handle(tx).WithContext(ctx).
		Model(&models.InboxRecord{}).
		Where("consumer = ? AND message_id = ?", consumer, messageID).
		Count(&count).Error
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check inbox record")
	}
	return count > 0, nil
}

// Record marks the message processed inside the caller's transaction. It must
// run in the same transaction as the work itself so the mark and the work
// commit or roll back together. A duplicate-key failure means another worker
// already processed the message; the returned bool reports that case and is
// not an error.
func (g *guard) Record(ctx context.Context, tx *gorm.DB, consumer, messageID, messageType string) (bool, error) {
	consumer = strings.TrimSpace(consumer)
	messageID = strings.TrimSpace(messageID)
	if consumer == "" || messageID == "" {
		return false, pkgerrors.New(pkgerrors.CodeValidation, "consumer and message id required")
	}
	if tx == nil {
		return false, pkgerrors.New(pkgerrors.CodeDependency, "transaction required to record inbox message")
	}

	record := models.InboxRecord{
		Consumer:    consumer,
		MessageID:   messageID,
		MessageType: messageType,
	}
	err := tx.WithContext(ctx).Create(&record).Error
	if err != nil {
		if pkgdb.IsUniqueViolation(err, "ux_inbox_consumer_message") || errors.Is(err, gorm.ErrDuplicatedKey) {
			return true, nil
		}
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record inbox message")
	}
	return false, nil
}

// PurgeOlderThan deletes records processed before the cutoff.
func (g *guard) PurgeOlderThan(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error) {
	res := g.handle(tx).WithContext(ctx).
		Where("processed_at < ?", cutoff).
		Delete(&models.InboxRecord{})
	if res.Error != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "purge inbox records")
	}
	return res.RowsAffected, nil
}
