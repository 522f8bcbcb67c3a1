package orders

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/modacart/modacart-backend/internal/checkout/reservation"
	"github.com/modacart/modacart-backend/pkg/db/models"
	"github.com/modacart/modacart-backend/pkg/enums"
	pkgerrors "github.com/modacart/modacart-backend/pkg/errors"
	"github.com/modacart/modacart-backend/pkg/logger"
	"github.com/modacart/modacart-backend/pkg/outbox"
	"github.com/modacart/modacart-backend/pkg/outbox/payloads"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// InventoryReleaser returns reserved stock when an order is cancelled or expires.
type InventoryReleaser interface {
	Release(ctx context.Context, tx *gorm.DB, productID uuid.UUID, qty int) error
}

// Service defines order lifecycle operations beyond repository reads.
type Service interface {
	Get(ctx context.Context, orderID, userID uuid.UUID) (*models.Order, error)
	Cancel(ctx context.Context, input CancelInput) (*models.Order, error)
	UpdateStatus(ctx context.Context, input UpdateStatusInput) (*models.Order, error)
	ExpirePendingPayment(ctx context.Context, olderThan time.Duration, limit int) (int, error)
}

type service struct {
	repo      Repository
	tx        txRunner
	outbox    outboxPublisher
	inventory InventoryReleaser
	logger    *logger.Logger
}

// CancelInput captures a buyer's request to cancel their order.
type CancelInput struct {
	OrderID     uuid.UUID
	ActorUserID uuid.UUID
	Reason      string
}

// UpdateStatusInput captures an admin-driven fulfillment transition.
type UpdateStatusInput struct {
	OrderID     uuid.UUID
	Target      enums.OrderStatus
	ActorUserID uuid.UUID
	ActorRole   string
}

// NewService builds an order service with the required dependencies.
func NewService(repo Repository, tx txRunner, publisher outboxPublisher, inventory InventoryReleaser, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if publisher == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if inventory == nil {
		inventory = inventoryReleaserImpl{}
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		repo:      repo,
		tx:        tx,
		outbox:    publisher,
		inventory: inventory,
		logger:    logg,
	}, nil
}

func (s *service) Get(ctx context.Context, orderID, userID uuid.UUID) (*models.Order, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	order, err := s.repo.FindByIDAndUser(ctx, orderID, userID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	return order, nil
}

// Cancel aborts an order before shipment and returns reserved stock. Cancelling
// an order that is already cancelled is a no-op.
func (s *service) Cancel(ctx context.Context, input CancelInput) (*models.Order, error) {
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if input.ActorUserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}

	var result *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		order, err := repo.FindByIDAndUser(ctx, input.OrderID, input.ActorUserID)
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
		}
		if order.Status == enums.OrderStatusCancelled {
			result = order
			return nil
		}
		if !order.Status.CanTransitionTo(enums.OrderStatusCancelled) {
			return pkgerrors.New(pkgerrors.CodeStateConflict,
				fmt.Sprintf("order in status %s cannot be cancelled", order.Status))
		}

		now := time.Now().UTC()
		changed, err := repo.TransitionStatus(ctx, order.ID, order.Status, enums.OrderStatusCancelled, map[string]any{
			"canceled_at": now,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "cancel order")
		}
		if !changed {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order changed concurrently, retry")
		}

		// Stock was only reserved while payment was pending. Paid orders
		// already committed their reservation.
		if order.Status == enums.OrderStatusPendingPayment {
			for _, item := range order.Items {
				if err := s.inventory.Release(ctx, tx, item.ProductID, item.Qty); err != nil {
					return err
				}
			}
		}

		order.Status = enums.OrderStatusCancelled
		order.CanceledAt = &now
		result = order

		event := outbox.DomainEvent{
			EventType:     enums.EventOrderCanceled,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Version:       1,
			Actor:         &outbox.ActorRef{UserID: input.ActorUserID},
			Data: payloads.OrderCanceledEvent{
				OrderID:    order.ID,
				UserID:     order.UserID,
				CanceledAt: now,
				Reason:     input.Reason,
			},
		}
		return s.outbox.Emit(ctx, tx, event)
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// UpdateStatus moves an order along the fulfillment path. Cancelled and
// refunded are not reachable here: cancellation has its own flow and refunds
// only happen through the return workflow.
func (s *service) UpdateStatus(ctx context.Context, input UpdateStatusInput) (*models.Order, error) {
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if !input.Target.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid target status")
	}
	if input.Target == enums.OrderStatusCancelled || input.Target == enums.OrderStatusRefunded {
		return nil, pkgerrors.New(pkgerrors.CodeValidation,
			fmt.Sprintf("status %s cannot be set directly", input.Target))
	}
	if input.ActorUserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}

	var result *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		order, err := repo.FindByID(ctx, input.OrderID)
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
		}
		if order.Status == input.Target {
			result = order
			return nil
		}
		if !order.Status.CanTransitionTo(input.Target) {
			return pkgerrors.New(pkgerrors.CodeStateConflict,
				fmt.Sprintf("cannot move order from %s to %s", order.Status, input.Target))
		}

		extra := map[string]any{}
		now := time.Now().UTC()
		if input.Target == enums.OrderStatusDelivered {
			extra["delivered_at"] = now
		}

		changed, err := repo.TransitionStatus(ctx, order.ID, order.Status, input.Target, extra)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order status")
		}
		if !changed {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order changed concurrently, retry")
		}

		from := order.Status
		order.Status = input.Target
		if input.Target == enums.OrderStatusDelivered {
			order.DeliveredAt = &now
		}
		result = order

		event := outbox.DomainEvent{
			EventType:     enums.EventOrderStatusChanged,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Version:       1,
			Actor:         &outbox.ActorRef{UserID: input.ActorUserID, Role: input.ActorRole},
			Data: payloads.OrderStatusChangedEvent{
				OrderID: order.ID,
				From:    from,
				To:      input.Target,
			},
		}
		return s.outbox.Emit(ctx, tx, event)
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ExpirePendingPayment cancels pending-payment orders older than the TTL and
// returns their reserved stock. Each order gets its own transaction so one
// bad row does not poison the sweep.
func (s *service) ExpirePendingPayment(ctx context.Context, olderThan time.Duration, limit int) (int, error) {
	if olderThan <= 0 {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "expiry window must be positive")
	}

	cutoff := time.Now().UTC().Add(-olderThan)
	expired, err := s.repo.FindExpiredPendingPayment(ctx, cutoff, limit)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list expired orders")
	}

	swept := 0
	for _, order := range expired {
		order := order
		err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			repo := s.repo.WithTx(tx)

			now := time.Now().UTC()
			changed, err := repo.TransitionStatus(ctx, order.ID, enums.OrderStatusPendingPayment, enums.OrderStatusCancelled, map[string]any{
				"canceled_at": now,
			})
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "expire order")
			}
			// Paid or cancelled in the meantime, leave it alone.
			if !changed {
				return nil
			}

			for _, item := range order.Items {
				if err := s.inventory.Release(ctx, tx, item.ProductID, item.Qty); err != nil {
					return err
				}
			}

			swept++
			event := outbox.DomainEvent{
				EventType:     enums.EventOrderExpired,
				AggregateType: enums.AggregateOrder,
				AggregateID:   order.ID,
				Version:       1,
				Data: payloads.OrderExpiredEvent{
					OrderID:   order.ID,
					UserID:    order.UserID,
					ExpiredAt: now,
				},
			}
			return s.outbox.Emit(ctx, tx, event)
		})
		if err != nil {
			s.logger.Warn(s.logger.WithOrderID(ctx, order.ID.String()), "expiring order failed: "+err.Error())
		}
	}
	return swept, nil
}

type inventoryReleaserImpl struct{}

// NewInventoryReleaser exposes the default inventory release implementation.
func NewInventoryReleaser() InventoryReleaser {
	return inventoryReleaserImpl{}
}

func (inventoryReleaserImpl) Release(ctx context.Context, tx *gorm.DB, productID uuid.UUID, qty int) error {
	return reservation.ReleaseInventory(ctx, tx, productID, qty)
}
