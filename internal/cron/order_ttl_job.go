package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/modacart/modacart-backend/pkg/logger"
)

const (
	defaultOrderTTL        = 30 * time.Minute
	defaultOrderSweepLimit = 200
)

// OrderTTLJobParams configure the pending-payment sweeper.
type OrderTTLJobParams struct {
	Logger     *logger.Logger
	Expirer    orderExpirer
	TTL        time.Duration
	SweepLimit int
}

type orderExpirer interface {
	ExpirePendingPayment(ctx context.Context, olderThan time.Duration, limit int) (int, error)
}

// NewOrderTTLJob builds the cron job that cancels pending-payment orders the
// buyer abandoned and returns their reserved stock.
func NewOrderTTLJob(params OrderTTLJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Expirer == nil {
		return nil, fmt.Errorf("order expirer required")
	}
	ttl := params.TTL
	if ttl <= 0 {
		ttl = defaultOrderTTL
	}
	limit := params.SweepLimit
	if limit <= 0 {
		limit = defaultOrderSweepLimit
	}
	return &orderTTLJob{
		logg:    params.Logger,
		expirer: params.Expirer,
		ttl:     ttl,
		limit:   limit,
	}, nil
}

type orderTTLJob struct {
	logg    *logger.Logger
	expirer orderExpirer
	ttl     time.Duration
	limit   int
}

func (j *orderTTLJob) Name() string { return "order-ttl" }

func (j *orderTTLJob) Run(ctx context.Context) error {
	swept, err := j.expirer.ExpirePendingPayment(ctx, j.ttl, j.limit)
	if err != nil {
		return fmt.Errorf("expire pending orders: %w", err)
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"ttl":          j.ttl.String(),
		"orders_swept": swept,
		"sweep_limit":  j.limit,
	})
	j.logg.Info(logCtx, "pending order sweep complete")
	return nil
}
