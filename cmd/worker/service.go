package main

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/multierr"

	"github.com/modacart/modacart-backend/internal/consumers"
	"github.com/modacart/modacart-backend/pkg/bigquery"
	"github.com/modacart/modacart-backend/pkg/config"
	"github.com/modacart/modacart-backend/pkg/db"
	"github.com/modacart/modacart-backend/pkg/logger"
	"github.com/modacart/modacart-backend/pkg/pubsub"
)

type ServiceParams struct {
	Config   *config.Config
	Logger   *logger.Logger
	DB       *db.Client
	PubSub   *pubsub.Client
	BigQuery *bigquery.Client
	Runners  []*consumers.Runner
}

type Service struct {
	cfg      *config.Config
	logg     *logger.Logger
	db       *db.Client
	pubsub   *pubsub.Client
	bigquery *bigquery.Client
	runners  []*consumers.Runner
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Config == nil {
		return nil, errors.New("config is required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if params.DB == nil {
		return nil, errors.New("database client is required")
	}
	if params.PubSub == nil {
		return nil, errors.New("pubsub client is required")
	}
	if params.BigQuery == nil {
		return nil, errors.New("bigquery client is required")
	}
	if len(params.Runners) == 0 {
		return nil, errors.New("at least one consumer runner is required")
	}

	return &Service{
		cfg:      params.Config,
		logg:     params.Logger,
		db:       params.DB,
		pubsub:   params.PubSub,
		bigquery: params.BigQuery,
		runners:  params.Runners,
	}, nil
}

// ensureReadiness pings every dependency before any consumer starts, so a
// single probe run reports all the broken ones at once.
func (s *Service) ensureReadiness(ctx context.Context) error {
	err := multierr.Combine(
		pingDependency(ctx, s.logg, "database", s.db.Ping),
		pingDependency(ctx, s.logg, "pubsub", s.pubsub.Ping),
		pingDependency(ctx, s.logg, "bigquery", s.bigquery.Ping),
	)
	if err != nil {
		return err
	}
	s.logg.Info(ctx, "all worker dependencies are ready")
	return nil
}

func pingDependency(ctx context.Context, logg *logger.Logger, name string, fn func(context.Context) error) error {
	if err := fn(ctx); err != nil {
		logg.Error(ctx, fmt.Sprintf("%s ping failed", name), err)
		return fmt.Errorf("%s ping failed: %w", name, err)
	}
	return nil
}

// Run blocks until the context is canceled or a runner stops on its own.
func (s *Service) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	if err := s.ensureReadiness(ctx); err != nil {
		return err
	}

	errCh := make(chan error, len(s.runners))
	for _, runner := range s.runners {
		runner := runner
		go func() {
			errCh <- runner.Run(ctx)
		}()
	}

	select {
	case <-ctx.Done():
		s.logg.Info(ctx, "worker context canceled")
		return ctx.Err()
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			s.logg.Error(ctx, "consumer stopped unexpectedly", err)
		}
		return err
	}
}
