package cron

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/modacart/modacart-backend/pkg/logger"
)

// Published outbox rows are kept a month for audit queries before the
// nightly sweep prunes them. Rows that never reached a handful of
// attempts are left alone so an investigation still has the evidence.
const (
	outboxRetentionDays = 30
	outboxMinAttempts   = 5
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxRetentionRepo interface {
	DeletePublishedBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time, minAttemptCount int) (int64, error)
}

type OutboxRetentionJobParams struct {
	Logger      *logger.Logger
	DB          txRunner
	Repository  outboxRetentionRepo
	Retention   int
	MinAttempts int
}

type outboxRetentionJob struct {
	logg        *logger.Logger
	db          txRunner
	repo        outboxRetentionRepo
	retention   int
	minAttempts int
	now         func() time.Time
}

// NewOutboxRetentionJob builds the nightly outbox pruning job. Zero
// values for Retention and MinAttempts take the package defaults.
func NewOutboxRetentionJob(params OutboxRetentionJobParams) (Job, error) {
	switch {
	case params.Logger == nil:
		return nil, fmt.Errorf("logger required")
	case params.DB == nil:
		return nil, fmt.Errorf("db runner required")
	case params.Repository == nil:
		return nil, fmt.Errorf("outbox repository required")
	}

	job := &outboxRetentionJob{
		logg:        params.Logger,
		db:          params.DB,
		repo:        params.Repository,
		retention:   params.Retention,
		minAttempts: params.MinAttempts,
		now:         time.Now,
	}
	if job.retention <= 0 {
		job.retention = outboxRetentionDays
	}
	if job.minAttempts <= 0 {
		job.minAttempts = outboxMinAttempts
	}
	return job, nil
}

func (j *outboxRetentionJob) Name() string { return "outbox-retention" }

func (j *outboxRetentionJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-time.Duration(j.retention) * 24 * time.Hour)

	var pruned int64
	err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
		rows, err := j.repo.DeletePublishedBefore(ctx, tx, cutoff, j.minAttempts)
		pruned = rows
		return err
	})
	if err != nil {
		return fmt.Errorf("outbox retention: %w", err)
	}

	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"cutoff":         cutoff,
		"retention_days": j.retention,
		"min_attempts":   j.minAttempts,
		"rows_deleted":   pruned,
	}), "outbox retention sweep pruned published events")
	return nil
}
