package models

import (
	"time"

	"github.com/google/uuid"
)

// InboxRecord marks a broker message as processed by one consumer. The
// composite unique index is the whole point: a second insert for the same
// consumer and message id fails with a unique violation, which callers
// treat as "already done".
type InboxRecord struct {
	ID          uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Consumer    string    `gorm:"column:consumer;not null;uniqueIndex:ux_inbox_consumer_message"`
	MessageID   string    `gorm:"column:message_id;not null;uniqueIndex:ux_inbox_consumer_message"`
	MessageType string    `gorm:"column:message_type;not null"`
	ProcessedAt time.Time `gorm:"column:processed_at;autoCreateTime;index"`
}
