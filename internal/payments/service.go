package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/modacart/modacart-backend/internal/checkout/reservation"
	"github.com/modacart/modacart-backend/internal/inbox"
	"github.com/modacart/modacart-backend/internal/orders"
	pkgdb "github.com/modacart/modacart-backend/pkg/db"
	"github.com/modacart/modacart-backend/pkg/db/models"
	"github.com/modacart/modacart-backend/pkg/enums"
	pkgerrors "github.com/modacart/modacart-backend/pkg/errors"
	"github.com/modacart/modacart-backend/pkg/logger"
	"github.com/modacart/modacart-backend/pkg/outbox"
	"github.com/modacart/modacart-backend/pkg/outbox/payloads"
)

// WebhookConsumer is the inbox consumer name for gateway webhook events.
const WebhookConsumer = "payments-webhook"

var errAlreadyHandled = errors.New("webhook event already handled")

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Service drives the payment lifecycle: charging, webhook settlement, and
// buyer-redirect finalization.
type Service interface {
	ProcessPayment(ctx context.Context, input ProcessPaymentInput) (*models.Payment, error)
	HandleWebhook(ctx context.Context, input WebhookInput) error
	FinalizeCallback(ctx context.Context, conversationID string) (*models.Payment, error)
}

// ProcessPaymentInput carries a charge attempt for a pending order.
type ProcessPaymentInput struct {
	OrderID        uuid.UUID
	ActorUserID    uuid.UUID
	SourceID       string
	IdempotencyKey string
}

// WebhookInput is the decoded, signature-verified gateway notification.
type WebhookInput struct {
	EventID           string
	EventType         string
	ProviderPaymentID string
	Status            string
}

type service struct {
	repo       Repository
	ordersRepo orders.Repository
	tx         txRunner
	gateway    Gateway
	outbox     outboxPublisher
	guard      inbox.Guard
	logger     *logger.Logger
}

// NewService builds the payments service with the required dependencies.
func NewService(
	repo Repository,
	ordersRepo orders.Repository,
	tx txRunner,
	gateway Gateway,
	publisher outboxPublisher,
	guard inbox.Guard,
	logg *logger.Logger,
) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("payments repository required")
	}
	if ordersRepo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if gateway == nil {
		return nil, fmt.Errorf("payment gateway required")
	}
	if publisher == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if guard == nil {
		return nil, fmt.Errorf("inbox guard required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		repo:       repo,
		ordersRepo: ordersRepo,
		tx:         tx,
		gateway:    gateway,
		outbox:     publisher,
		guard:      guard,
		logger:     logg,
	}, nil
}

// ProcessPayment charges a pending order exactly once per idempotency key.
// Replaying a key returns the stored outcome without touching the gateway.
// Reusing a key that belongs to another order, or presenting a second key for
// an order that already has a payment, is rejected.
func (s *service) ProcessPayment(ctx context.Context, input ProcessPaymentInput) (*models.Payment, error) {
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if input.ActorUserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if strings.TrimSpace(input.SourceID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment source required")
	}
	key := strings.TrimSpace(input.IdempotencyKey)
	if key == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "idempotency key required")
	}

	existing, err := s.repo.FindByIdempotencyKey(ctx, key)
	if err != nil && err != gorm.ErrRecordNotFound {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup payment by key")
	}
	if existing != nil {
		return s.replayStoredOutcome(existing, input.OrderID)
	}

	order, err := s.ordersRepo.FindByIDAndUser(ctx, input.OrderID, input.ActorUserID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	if order.Status != enums.OrderStatusPendingPayment {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict,
			fmt.Sprintf("order in status %s cannot be charged", order.Status))
	}

	payment := &models.Payment{
		ID:             uuid.New(),
		OrderID:        order.ID,
		Method:         enums.PaymentMethodCard,
		Status:         enums.PaymentStatusPending,
		Amount:         order.Total,
		Currency:       order.Currency,
		IdempotencyKey: key,
		ConversationID: uuid.NewString(),
	}
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		_, err := s.repo.WithTx(tx).Create(ctx, payment)
		return err
	})
	if err != nil {
		// A concurrent request with the same key won the insert race.
		if pkgdb.IsUniqueViolation(err, "ux_payments_idempotency_key") {
			stored, lookupErr := s.repo.FindByIdempotencyKey(ctx, key)
			if lookupErr != nil {
				return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, lookupErr, "reload payment by key")
			}
			return s.replayStoredOutcome(stored, input.OrderID)
		}
		if pkgdb.IsUniqueViolation(err, "ux_payments_order_id") || errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, pkgerrors.New(pkgerrors.CodeIdempotency,
				"order already has a payment under a different idempotency key")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create payment")
	}

	// The charge happens outside any DB transaction. The pending row above is
	// the claim that makes retries and webhooks converge on one outcome.
	outcome, chargeErr := s.gateway.Charge(ctx, ChargeInput{
		Amount:         order.Total,
		Currency:       order.Currency,
		SourceID:       input.SourceID,
		IdempotencyKey: key,
		ReferenceID:    order.ID.String(),
	})
	if chargeErr != nil {
		if typed := pkgerrors.As(chargeErr); typed != nil && typed.Code() == pkgerrors.CodeGatewayDeclined {
			reason := typed.Message()
			if failErr := s.settleFailure(ctx, payment.ID, reason); failErr != nil {
				s.logger.Error(ctx, "recording declined payment failed", failErr)
			}
			return nil, chargeErr
		}
		// Transport or processor trouble: the payment stays pending and the
		// webhook or callback settles it later.
		return nil, chargeErr
	}

	if outcome.Completed {
		if err := s.settleSuccess(ctx, payment.ID, outcome.ProviderPaymentID); err != nil {
			return nil, err
		}
	} else if outcome.FailureReason != "" {
		if err := s.settleFailure(ctx, payment.ID, outcome.FailureReason); err != nil {
			return nil, err
		}
		return nil, pkgerrors.New(pkgerrors.CodeGatewayDeclined, outcome.FailureReason)
	} else if outcome.ProviderPaymentID != "" {
		err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			res := tx.WithContext(ctx).Model(&models.Payment{}).
				Where("id = ?", payment.ID).
				Update("provider_payment_id", outcome.ProviderPaymentID)
			return res.Error
		})
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store provider payment id")
		}
	}

	settled, err := s.repo.FindByID(ctx, payment.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload payment")
	}
	return settled, nil
}

// replayStoredOutcome reproduces the original response for an idempotency key
// the system has already seen.
func (s *service) replayStoredOutcome(stored *models.Payment, orderID uuid.UUID) (*models.Payment, error) {
	if stored.OrderID != orderID {
		return nil, pkgerrors.New(pkgerrors.CodeIdempotency, "idempotency key already used for another order")
	}
	if stored.Status == enums.PaymentStatusFailed {
		reason := "payment declined"
		if stored.FailureReason != nil && *stored.FailureReason != "" {
			reason = *stored.FailureReason
		}
		return nil, pkgerrors.New(pkgerrors.CodeGatewayDeclined, reason)
	}
	return stored, nil
}

// HandleWebhook settles a payment from a verified gateway notification. Events
// for payments already in a terminal state are no-ops, and the inbox record
// keeps redelivered events from applying twice.
func (s *service) HandleWebhook(ctx context.Context, input WebhookInput) error {
	eventID := strings.TrimSpace(input.EventID)
	if eventID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "event id required")
	}

	processed, err := s.guard.IsProcessed(ctx, nil, WebhookConsumer, eventID)
	if err != nil {
		return err
	}
	if processed {
		return nil
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		if strings.TrimSpace(input.ProviderPaymentID) != "" {
			payment, err := repo.FindByProviderPaymentID(ctx, input.ProviderPaymentID)
			if err != nil && err != gorm.ErrRecordNotFound {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment for webhook")
			}
			if payment != nil {
				if err := s.applyWebhookStatusTx(ctx, tx, payment, input.Status); err != nil {
					return err
				}
			} else {
				s.logger.Warn(ctx, fmt.Sprintf("webhook %s references unknown payment %s", eventID, input.ProviderPaymentID))
			}
		}

		already, err := s.guard.Record(ctx, tx, WebhookConsumer, eventID, input.EventType)
		if err != nil {
			return err
		}
		if already {
			return errAlreadyHandled
		}
		return nil
	})
	if errors.Is(err, errAlreadyHandled) {
		return nil
	}
	return err
}

func (s *service) applyWebhookStatusTx(ctx context.Context, tx *gorm.DB, payment *models.Payment, status string) error {
	if payment.Status.IsTerminal() {
		return nil
	}
	switch strings.ToUpper(strings.TrimSpace(status)) {
	case "COMPLETED", "APPROVED":
		return s.settleSuccessTx(ctx, tx, payment.ID, valueOrEmpty(payment.ProviderPaymentID))
	case "FAILED", "CANCELED":
		return s.settleFailureTx(ctx, tx, payment.ID, fmt.Sprintf("gateway reported status %s", status))
	default:
		return nil
	}
}

// FinalizeCallback resolves the payment the buyer was redirected back for.
// A still-pending payment is reconciled against the gateway.
func (s *service) FinalizeCallback(ctx context.Context, conversationID string) (*models.Payment, error) {
	conversationID = strings.TrimSpace(conversationID)
	if conversationID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "conversation id required")
	}

	payment, err := s.repo.FindByConversationID(ctx, conversationID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment")
	}
	if payment.Status.IsTerminal() || payment.ProviderPaymentID == nil {
		return payment, nil
	}

	outcome, err := s.gateway.LookupPayment(ctx, *payment.ProviderPaymentID)
	if err != nil {
		return nil, err
	}
	if outcome.Completed {
		if err := s.settleSuccess(ctx, payment.ID, outcome.ProviderPaymentID); err != nil {
			return nil, err
		}
	} else if outcome.FailureReason != "" {
		if err := s.settleFailure(ctx, payment.ID, outcome.FailureReason); err != nil {
			return nil, err
		}
	}

	settled, err := s.repo.FindByID(ctx, payment.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload payment")
	}
	return settled, nil
}

func (s *service) settleSuccess(ctx context.Context, paymentID uuid.UUID, providerPaymentID string) error {
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		return s.settleSuccessTx(ctx, tx, paymentID, providerPaymentID)
	})
}

func (s *service) settleFailure(ctx context.Context, paymentID uuid.UUID, reason string) error {
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		return s.settleFailureTx(ctx, tx, paymentID, reason)
	})
}

// settleSuccessTx marks the payment successful, moves the order to paid, and
// burns the inventory reservation. Status is re-checked inside the
// transaction so a webhook and a synchronous charge racing each other settle
// exactly once.
func (s *service) settleSuccessTx(ctx context.Context, tx *gorm.DB, paymentID uuid.UUID, providerPaymentID string) error {
	repo := s.repo.WithTx(tx)
	ordersRepo := s.ordersRepo.WithTx(tx)

	payment, err := repo.FindByID(ctx, paymentID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment for settlement")
	}
	if payment.Status == enums.PaymentStatusSuccess {
		return nil
	}

	extra := map[string]any{}
	if providerPaymentID != "" {
		extra["provider_payment_id"] = providerPaymentID
	}
	changed, err := repo.TransitionStatus(ctx, payment.ID, enums.PaymentStatusPending, enums.PaymentStatusSuccess, extra)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark payment successful")
	}
	if !changed {
		// Someone else settled it first.
		return nil
	}

	order, err := ordersRepo.FindByID(ctx, payment.OrderID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order for settlement")
	}

	now := time.Now().UTC()
	orderChanged, err := ordersRepo.TransitionStatus(ctx, order.ID, enums.OrderStatusPendingPayment, enums.OrderStatusPaid, map[string]any{
		"paid_at": now,
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark order paid")
	}
	if orderChanged {
		for _, item := range order.Items {
			if err := reservation.CommitReservation(ctx, tx, item.ProductID, item.Qty); err != nil {
				return err
			}
		}
	} else {
		s.logger.Warn(s.logger.WithOrderID(ctx, order.ID.String()),
			fmt.Sprintf("payment settled but order was in status %s", order.Status))
	}

	paymentEvent := outbox.DomainEvent{
		EventType:     enums.EventPaymentSucceeded,
		AggregateType: enums.AggregatePayment,
		AggregateID:   payment.ID,
		Version:       1,
		Data: payloads.PaymentStatusEvent{
			OrderID:   order.ID,
			PaymentID: payment.ID,
			Status:    enums.PaymentStatusSuccess,
			Amount:    payment.Amount,
			Currency:  payment.Currency,
		},
	}
	if err := s.outbox.Emit(ctx, tx, paymentEvent); err != nil {
		return err
	}

	orderEvent := outbox.DomainEvent{
		EventType:     enums.EventOrderPaid,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Version:       1,
		Data: payloads.OrderStatusChangedEvent{
			OrderID: order.ID,
			From:    enums.OrderStatusPendingPayment,
			To:      enums.OrderStatusPaid,
		},
	}
	return s.outbox.Emit(ctx, tx, orderEvent)
}

// settleFailureTx marks the payment failed. The order stays in
// pending_payment so the buyer can retry with a fresh idempotency key.
func (s *service) settleFailureTx(ctx context.Context, tx *gorm.DB, paymentID uuid.UUID, reason string) error {
	repo := s.repo.WithTx(tx)

	payment, err := repo.FindByID(ctx, paymentID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment for settlement")
	}
	if payment.Status.IsTerminal() {
		return nil
	}

	changed, err := repo.TransitionStatus(ctx, payment.ID, enums.PaymentStatusPending, enums.PaymentStatusFailed, map[string]any{
		"failure_reason": reason,
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark payment failed")
	}
	if !changed {
		return nil
	}

	event := outbox.DomainEvent{
		EventType:     enums.EventPaymentFailed,
		AggregateType: enums.AggregatePayment,
		AggregateID:   payment.ID,
		Version:       1,
		Data: payloads.PaymentStatusEvent{
			OrderID:       payment.OrderID,
			PaymentID:     payment.ID,
			Status:        enums.PaymentStatusFailed,
			Amount:        payment.Amount,
			Currency:      payment.Currency,
			FailureReason: reason,
		},
	}
	return s.outbox.Emit(ctx, tx, event)
}

func valueOrEmpty(ptr *string) string {
	if ptr == nil {
		return ""
	}
	return *ptr
}
