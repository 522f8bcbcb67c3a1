package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/modacart/modacart-backend/pkg/config"
	"github.com/modacart/modacart-backend/pkg/db/models"
	"github.com/modacart/modacart-backend/pkg/enums"
	"github.com/modacart/modacart-backend/pkg/logger"
	"github.com/modacart/modacart-backend/pkg/outbox"
	"github.com/modacart/modacart-backend/pkg/outbox/registry"
)

const (
	defaultBatchSize   = 50
	defaultPollMs      = 500
	defaultMaxAttempts = 10
	publishTimeout     = 15 * time.Second
	backoffCeiling     = 10 * time.Second
	jitterWindow       = 250 * time.Millisecond
)

var jitterSource = rand.New(rand.NewSource(time.Now().UnixNano()))

type txRunner interface {
	Ping(context.Context) error
	WithTx(context.Context, func(tx *gorm.DB) error) error
}

type broker interface {
	Ping(context.Context) error
	Publisher(name string) *gcppubsub.Publisher
}

type eventStore interface {
	FetchUnpublishedForPublish(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error)
	MarkPublishedTx(tx *gorm.DB, id uuid.UUID) error
	MarkFailedTx(tx *gorm.DB, id uuid.UUID, err error) error
	MarkTerminalTx(tx *gorm.DB, id uuid.UUID, err error, terminalAttempts int) error
}

type deadLetterStore interface {
	InsertTx(tx *gorm.DB, entry models.OutboxDLQ) error
}

type eventResolver interface {
	Resolve(models.OutboxEvent) (*registry.ResolvedEvent, error)
}

type publisherFactory func(topic string) publisher

type publisher interface {
	Publish(context.Context, *gcppubsub.Message) publishResult
}

type publishResult interface {
	Get(context.Context) (string, error)
}

type ServiceParams struct {
	Config           *config.Config
	Logger           *logger.Logger
	DB               txRunner
	PubSub           broker
	Repository       eventStore
	Registry         eventResolver
	PublisherFactory publisherFactory
	DLQRepository    deadLetterStore
}

// Service drains the outbox_events table and relays each row to its
// Pub/Sub topic. Rows are claimed with row locks inside a transaction,
// so several publisher replicas can run against the same database.
type Service struct {
	cfg              *config.Config
	logg             *logger.Logger
	db               txRunner
	store            eventStore
	pubsub           broker
	resolver         eventResolver
	dlq              deadLetterStore
	publisherFactory publisherFactory
	batchSize        int
	maxAttempts      int
	pollInterval     time.Duration
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
	if params.Repository == nil {
		return nil, errors.New("outbox repository is required")
	}
	if params.Registry == nil {
		return nil, errors.New("event registry is required")
	}
	if params.DLQRepository == nil {
		return nil, errors.New("dead letter repository is required")
	}

	factory := params.PublisherFactory
	if factory == nil {
		factory = func(topic string) publisher {
			p := params.PubSub.Publisher(topic)
			if p == nil {
				return nil
			}
			return wrapPublisher(p)
		}
	}

	s := &Service{
		cfg:              params.Config,
		logg:             params.Logger,
		db:               params.DB,
		store:            params.Repository,
		pubsub:           params.PubSub,
		resolver:         params.Registry,
		dlq:              params.DLQRepository,
		publisherFactory: factory,
		batchSize:        params.Config.Outbox.BatchSize,
		maxAttempts:      params.Config.Outbox.MaxAttempts,
		pollInterval:     time.Duration(params.Config.Outbox.PollIntervalMS) * time.Millisecond,
	}
	if s.batchSize <= 0 {
		s.batchSize = defaultBatchSize
	}
	if s.maxAttempts <= 0 {
		s.maxAttempts = defaultMaxAttempts
	}
	if s.pollInterval <= 0 {
		s.pollInterval = defaultPollMs * time.Millisecond
	}
	return s, nil
}

func (s *Service) ensureReadiness(ctx context.Context) error {
	if err := s.db.Ping(ctx); err != nil {
		s.logg.Error(ctx, "database ping failed", err)
		return fmt.Errorf("database ping failed: %w", err)
	}
	if err := s.pubsub.Ping(ctx); err != nil {
		s.logg.Error(ctx, "pubsub ping failed", err)
		return fmt.Errorf("pubsub ping failed: %w", err)
	}
	return nil
}

// Run polls until ctx is canceled. An error from a batch does not stop
// the loop; the poll interval backs off while the error persists and
// resets on the next clean batch.
func (s *Service) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	if err := s.ensureReadiness(ctx); err != nil {
		return err
	}

	backoff := s.pollInterval
	for {
		select {
		case <-ctx.Done():
			s.logg.Info(ctx, "outbox relay stopping")
			return ctx.Err()
		default:
		}

		drained, err := s.drainBatch(ctx)
		if err != nil {
			s.logg.Error(ctx, "outbox batch failed", err)
			backoff = doubleCapped(backoff, s.pollInterval, backoffCeiling)
			if err := s.wait(ctx, jittered(backoff)); err != nil {
				return err
			}
			continue
		}

		backoff = s.pollInterval
		if drained {
			// More rows may be waiting, go straight back in.
			continue
		}
		if err := s.wait(ctx, jittered(s.pollInterval)); err != nil {
			return err
		}
	}
}

// drainBatch claims up to batchSize pending rows in one transaction and
// relays each. The bool reports whether any rows were claimed at all.
func (s *Service) drainBatch(ctx context.Context) (bool, error) {
	claimed := false
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		events, err := s.store.FetchUnpublishedForPublish(tx, s.batchSize, s.maxAttempts)
		if err != nil {
			return err
		}
		if len(events) == 0 {
			return nil
		}

		claimed = true
		for _, event := range events {
			if err := s.relay(ctx, tx, event); err != nil {
				return err
			}
		}
		return nil
	})
	return claimed, err
}

// relay pushes a single claimed row to its topic and records the
// outcome. Only bookkeeping failures are returned; publish failures are
// absorbed into the row's attempt counter or the dead letter table.
func (s *Service) relay(ctx context.Context, tx *gorm.DB, event models.OutboxEvent) error {
	resolved, err := s.resolver.Resolve(event)
	if err != nil {
		return s.deadLetter(ctx, tx, event, enums.OutboxDLQReasonNonRetryable, err, "", nil)
	}

	fields := s.relayFields(event, resolved.Envelope, resolved.Descriptor.Topic)
	if err := s.publish(ctx, event, resolved); err != nil {
		var nonRetry registry.NonRetryableError
		if errors.As(err, &nonRetry) {
			return s.deadLetter(ctx, tx, event, enums.OutboxDLQReasonNonRetryable, err, resolved.Descriptor.Topic, fields)
		}

		nextAttempt := event.AttemptCount + 1
		fields["attempt_count"] = nextAttempt

		if nextAttempt >= s.maxAttempts {
			fields["terminal_reason"] = "max_attempts"
			terminalErr := fmt.Errorf("max publish attempts reached: %w", err)
			return s.deadLetter(ctx, tx, event, enums.OutboxDLQReasonMaxAttempts, terminalErr, resolved.Descriptor.Topic, fields)
		}

		warnCtx := s.logg.WithFields(ctx, fields)
		warnCtx = s.logg.WithField(warnCtx, "error", err.Error())
		s.logg.Warn(warnCtx, "outbox publish failed, will retry")
		if markErr := s.store.MarkFailedTx(tx, event.ID, err); markErr != nil {
			return fmt.Errorf("mark failure %s: %w", event.ID, markErr)
		}
		return nil
	}

	if markErr := s.store.MarkPublishedTx(tx, event.ID); markErr != nil {
		return fmt.Errorf("mark published %s: %w", event.ID, markErr)
	}
	s.logg.Info(s.logg.WithFields(ctx, fields), "outbox event published")

	s.mirrorToAnalytics(ctx, event, resolved, fields)
	return nil
}

// deadLetter copies the row into outbox_dlq and retires it. The DLQ
// insert and the terminal mark share the batch transaction, so a row is
// never retired without its dead letter copy.
func (s *Service) deadLetter(ctx context.Context, tx *gorm.DB, event models.OutboxEvent, reason enums.OutboxDLQErrorReason, err error, topic string, fields map[string]any) error {
	if fields == nil {
		fields = s.relayFields(event, outbox.PayloadEnvelope{}, topic)
	}
	fields["error_reason"] = reason
	warnCtx := s.logg.WithFields(ctx, fields)
	warnCtx = s.logg.WithField(warnCtx, "error", err.Error())
	s.logg.Warn(warnCtx, "outbox event moved to dead letter")

	entry := models.OutboxDLQ{
		EventID:       event.ID,
		EventType:     event.EventType,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		Payload:       event.Payload,
		ErrorReason:   reason,
		ErrorMessage:  errorMessage(err),
		AttemptCount:  event.AttemptCount,
		FailedAt:      time.Now().UTC(),
	}
	if dlqErr := s.dlq.InsertTx(tx, entry); dlqErr != nil {
		return fmt.Errorf("insert dlq %s: %w", event.ID, dlqErr)
	}
	if markErr := s.store.MarkTerminalTx(tx, event.ID, err, s.maxAttempts); markErr != nil {
		return fmt.Errorf("mark terminal %s: %w", event.ID, markErr)
	}
	return nil
}

func errorMessage(err error) *string {
	if err == nil {
		return nil
	}
	msg := err.Error()
	return &msg
}

func (s *Service) publish(ctx context.Context, event models.OutboxEvent, resolved *registry.ResolvedEvent) error {
	return s.publishTo(ctx, resolved.Descriptor.Topic, event, resolved)
}

// mirrorToAnalytics duplicates a delivered event onto the analytics
// topic, where the BigQuery sink consumes the full stream. The row is
// already marked published, so a mirror failure only costs analytics a
// record and is logged rather than retried.
func (s *Service) mirrorToAnalytics(ctx context.Context, event models.OutboxEvent, resolved *registry.ResolvedEvent, fields map[string]any) {
	analyticsTopic := s.cfg.PubSub.AnalyticsTopic
	if analyticsTopic == "" || analyticsTopic == resolved.Descriptor.Topic {
		return
	}
	if err := s.publishTo(ctx, analyticsTopic, event, resolved); err != nil {
		warnCtx := s.logg.WithFields(ctx, fields)
		warnCtx = s.logg.WithField(warnCtx, "analytics_topic", analyticsTopic)
		warnCtx = s.logg.WithField(warnCtx, "error", err.Error())
		s.logg.Warn(warnCtx, "analytics mirror publish failed")
	}
}

func (s *Service) publishTo(ctx context.Context, topic string, event models.OutboxEvent, resolved *registry.ResolvedEvent) error {
	pub := s.publisherFactory(topic)
	if pub == nil {
		return registry.NewNonRetryableError(fmt.Errorf("publisher not configured for topic %s", topic))
	}

	msg := &gcppubsub.Message{
		Data: event.Payload,
		Attributes: map[string]string{
			"event_id":       resolved.Envelope.EventID,
			"event_type":     string(event.EventType),
			"aggregate_type": string(event.AggregateType),
			"aggregate_id":   event.AggregateID.String(),
			"created_at":     event.CreatedAt.Format(time.RFC3339Nano),
		},
	}

	publishCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	result := pub.Publish(publishCtx, msg)
	if result == nil {
		return registry.NewNonRetryableError(fmt.Errorf("publisher returned nil for topic %s", topic))
	}
	_, err := result.Get(publishCtx)
	return err
}

func (s *Service) relayFields(event models.OutboxEvent, envelope outbox.PayloadEnvelope, topic string) map[string]any {
	fields := map[string]any{
		"outbox_id":      event.ID.String(),
		"event_type":     event.EventType,
		"aggregate_type": event.AggregateType,
		"aggregate_id":   event.AggregateID.String(),
		"batch_size":     s.batchSize,
		"attempt_count":  event.AttemptCount,
	}
	if envelope.EventID != "" {
		fields["event_id"] = envelope.EventID
		fields["occurred_at"] = envelope.OccurredAt.Format(time.RFC3339Nano)
	}
	if topic != "" {
		fields["topic"] = topic
	}
	if event.LastError != nil {
		fields["last_error"] = *event.LastError
	}
	return fields
}

func (s *Service) wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func doubleCapped(current, floor, ceiling time.Duration) time.Duration {
	if current <= 0 {
		current = floor
	}
	next := current * 2
	if next > ceiling {
		return ceiling
	}
	return next
}

func jittered(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return d + time.Duration(jitterSource.Int63n(int64(jitterWindow)))
}

func wrapPublisher(p *gcppubsub.Publisher) publisher {
	if p == nil {
		return nil
	}
	return &gcpPublisher{Publisher: p}
}

type gcpPublisher struct {
	*gcppubsub.Publisher
}

func (p *gcpPublisher) Publish(ctx context.Context, msg *gcppubsub.Message) publishResult {
	if p == nil || p.Publisher == nil {
		return nil
	}
	return &gcpPublishResult{PublishResult: p.Publisher.Publish(ctx, msg)}
}

type gcpPublishResult struct {
	*gcppubsub.PublishResult
}

func (r *gcpPublishResult) Get(ctx context.Context) (string, error) {
	if r == nil || r.PublishResult == nil {
		return "", errors.New("publish result is nil")
	}
	return r.PublishResult.Get(ctx)
}
