package cron

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/modacart/modacart-backend/pkg/logger"
)

const defaultInboxRetention = 30 * 24 * time.Hour

// InboxRetentionJobParams configure the inbox record cleanup.
type InboxRetentionJobParams struct {
	Logger    *logger.Logger
	DB        txRunner
	Guard     inboxPurger
	Retention time.Duration
}

type inboxPurger interface {
	PurgeOlderThan(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error)
}

// NewInboxRetentionJob builds the cron job that deletes old inbox records.
// Records must outlive the broker's maximum redelivery window, so the
// retention should stay generous.
func NewInboxRetentionJob(params InboxRetentionJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	if params.Guard == nil {
		return nil, fmt.Errorf("inbox guard required")
	}
	retention := params.Retention
	if retention <= 0 {
		retention = defaultInboxRetention
	}
	return &inboxRetentionJob{
		logg:      params.Logger,
		db:        params.DB,
		guard:     params.Guard,
		retention: retention,
		now:       time.Now,
	}, nil
}

type inboxRetentionJob struct {
	logg      *logger.Logger
	db        txRunner
	guard     inboxPurger
	retention time.Duration
	now       func() time.Time
}

func (j *inboxRetentionJob) Name() string { return "inbox-retention" }

func (j *inboxRetentionJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.retention)
	var deleted int64
	err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
		rows, err := j.guard.PurgeOlderThan(ctx, tx, cutoff)
		if err != nil {
			return err
		}
		deleted = rows
		return nil
	})
	if err != nil {
		return fmt.Errorf("inbox retention: %w", err)
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"cutoff":       cutoff,
		"retention":    j.retention.String(),
		"rows_deleted": deleted,
	})
	j.logg.Info(logCtx, "inbox retention cleanup complete")
	return nil
}
