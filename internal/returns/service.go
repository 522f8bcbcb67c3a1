package returns

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/modacart/modacart-backend/internal/orders"
	"github.com/modacart/modacart-backend/internal/payments"
	pkgdb "github.com/modacart/modacart-backend/pkg/db"
	"github.com/modacart/modacart-backend/pkg/db/models"
	"github.com/modacart/modacart-backend/pkg/enums"
	pkgerrors "github.com/modacart/modacart-backend/pkg/errors"
	"github.com/modacart/modacart-backend/pkg/logger"
	"github.com/modacart/modacart-backend/pkg/outbox"
	"github.com/modacart/modacart-backend/pkg/outbox/payloads"
)

// RoleAdmin and RoleSeller are the reviewer roles accepted by
// ReviewReturnRequest.
const (
	RoleAdmin  = "admin"
	RoleSeller = "seller"
)

// DeriveRefundIdempotencyKey builds the gateway idempotency key for the
// refund that settles a given return request. It is a pure function of the
// return request id, so approving twice or redelivering the refund message
// can never produce a second gateway refund.
func DeriveRefundIdempotencyKey(returnRequestID uuid.UUID) string {
	return fmt.Sprintf("refund-%s", returnRequestID)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Service drives the return lifecycle: customer claims, reviewer decisions,
// and refund execution against the gateway.
type Service interface {
	CreateReturnRequest(ctx context.Context, input CreateReturnInput) (*models.ReturnRequest, error)
	ReviewReturnRequest(ctx context.Context, input ReviewInput) (*models.ReturnRequest, error)
	ProcessRefund(ctx context.Context, refundRequestID uuid.UUID) (*models.RefundRequest, error)
}

// CreateReturnInput carries a customer's claim against a delivered order.
type CreateReturnInput struct {
	OrderID         uuid.UUID
	UserID          uuid.UUID
	Type            enums.ReturnRequestType
	Reason          string
	RequestedAmount decimal.Decimal
}

// ReviewInput carries a reviewer's decision on a pending return request.
type ReviewInput struct {
	ReturnRequestID uuid.UUID
	ReviewerID      uuid.UUID
	ReviewerRole    string
	Approve         bool
	ReviewNote      string
}

type service struct {
	repo         Repository
	ordersRepo   orders.Repository
	paymentsRepo payments.Repository
	tx           txRunner
	gateway      RefundGateway
	outbox       outboxPublisher
	logger       *logger.Logger
}

// NewService builds the returns service with the required dependencies.
func NewService(
	repo Repository,
	ordersRepo orders.Repository,
	paymentsRepo payments.Repository,
	tx txRunner,
	gateway RefundGateway,
	publisher outboxPublisher,
	logg *logger.Logger,
) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("returns repository required")
	}
	if ordersRepo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if paymentsRepo == nil {
		return nil, fmt.Errorf("payments repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if gateway == nil {
		return nil, fmt.Errorf("refund gateway required")
	}
	if publisher == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		repo:         repo,
		ordersRepo:   ordersRepo,
		paymentsRepo: paymentsRepo,
		tx:           tx,
		gateway:      gateway,
		outbox:       publisher,
		logger:       logg,
	}, nil
}

// CreateReturnRequest opens a claim against a delivered order. An order can
// carry at most one active request at a time; the partial unique index on
// order_id backstops the pre-check under concurrency.
func (s *service) CreateReturnRequest(ctx context.Context, input CreateReturnInput) (*models.ReturnRequest, error) {
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if input.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	if !input.Type.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid return request type")
	}
	if strings.TrimSpace(input.Reason) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reason required")
	}
	if input.RequestedAmount.LessThanOrEqual(decimal.Zero) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "requested amount must be positive")
	}

	order, err := s.ordersRepo.FindByIDAndUser(ctx, input.OrderID, input.UserID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	if order.Status != enums.OrderStatusDelivered {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict,
			fmt.Sprintf("order in status %s cannot be returned", order.Status))
	}
	if input.RequestedAmount.GreaterThan(order.Total) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "requested amount exceeds order total")
	}

	var created *models.ReturnRequest
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		if _, err := repo.FindActiveReturnByOrder(ctx, order.ID); err == nil {
			return pkgerrors.New(pkgerrors.CodeConflict, "order already has an active return request")
		} else if err != gorm.ErrRecordNotFound {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check active return")
		}

		request := &models.ReturnRequest{
			ID:              uuid.New(),
			OrderID:         order.ID,
			UserID:          input.UserID,
			Type:            input.Type,
			Status:          enums.ReturnRequestStatusPending,
			Reason:          strings.TrimSpace(input.Reason),
			RequestedAmount: input.RequestedAmount,
		}
		request, err := repo.CreateReturnRequest(ctx, request)
		if err != nil {
			if pkgdb.IsUniqueViolation(err, "ux_return_requests_active_order") || pkgdb.IsDuplicateKey(err) {
				return pkgerrors.New(pkgerrors.CodeConflict, "order already has an active return request")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create return request")
		}
		created = request

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventReturnRequested,
			AggregateType: enums.AggregateReturnRequest,
			AggregateID:   request.ID,
			Version:       1,
			Actor:         &outbox.ActorRef{UserID: input.UserID, Role: "customer"},
			Data: payloads.ReturnRequestedEvent{
				ReturnRequestID: request.ID,
				OrderID:         order.ID,
				UserID:          input.UserID,
				Type:            request.Type,
				RequestedAmount: request.RequestedAmount,
			},
		})
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// ReviewReturnRequest applies a reviewer decision to a pending request.
// Approving moves it to refund_pending and opens the refund request that the
// refund executor will settle; rejecting closes it. Re-approving an already
// approved request returns the existing refund instead of opening another.
func (s *service) ReviewReturnRequest(ctx context.Context, input ReviewInput) (*models.ReturnRequest, error) {
	if input.ReturnRequestID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "return request id required")
	}
	if input.ReviewerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reviewer id required")
	}

	request, err := s.repo.FindReturnByID(ctx, input.ReturnRequestID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "return request not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load return request")
	}

	order, err := s.ordersRepo.FindByID(ctx, request.OrderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	if err := authorizeReviewer(input, order); err != nil {
		return nil, err
	}

	// Re-approval of an already approved request is a no-op.
	if input.Approve && request.Status == enums.ReturnRequestStatusRefundPending && request.RefundRequest != nil {
		return request, nil
	}
	if request.Status != enums.ReturnRequestStatusPending {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict,
			fmt.Sprintf("return request in status %s cannot be reviewed", request.Status))
	}

	if input.Approve {
		return s.approveTx(ctx, request, order, input)
	}
	return s.rejectTx(ctx, request, input)
}

func authorizeReviewer(input ReviewInput, order *models.Order) error {
	switch input.ReviewerRole {
	case RoleAdmin:
		return nil
	case RoleSeller:
		// A seller may only decide claims on orders they fully own.
		for _, item := range order.Items {
			if item.SellerID != input.ReviewerID {
				return pkgerrors.New(pkgerrors.CodeForbidden, "order contains items from other sellers")
			}
		}
		if len(order.Items) == 0 {
			return pkgerrors.New(pkgerrors.CodeForbidden, "order has no items for this seller")
		}
		return nil
	default:
		return pkgerrors.New(pkgerrors.CodeForbidden, "reviewer role not allowed")
	}
}

func (s *service) approveTx(ctx context.Context, request *models.ReturnRequest, order *models.Order, input ReviewInput) (*models.ReturnRequest, error) {
	payment, err := s.paymentsRepo.FindByOrderID(ctx, order.ID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order has no payment to refund")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment")
	}
	if payment.Status != enums.PaymentStatusSuccess {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict,
			fmt.Sprintf("payment in status %s cannot be refunded", payment.Status))
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		now := time.Now().UTC()
		changed, err := repo.TransitionReturnStatus(ctx, request.ID,
			enums.ReturnRequestStatusPending, enums.ReturnRequestStatusRefundPending, map[string]any{
				"reviewer_id": input.ReviewerID,
				"review_note": input.ReviewNote,
				"reviewed_at": now,
			})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "approve return request")
		}
		if !changed {
			// A concurrent reviewer got there first; surface the stored state.
			return nil
		}

		refund := &models.RefundRequest{
			ID:              uuid.New(),
			ReturnRequestID: request.ID,
			OrderID:         order.ID,
			PaymentID:       &payment.ID,
			Amount:          request.RequestedAmount,
			Currency:        payment.Currency,
			Status:          enums.RefundRequestStatusPending,
			IdempotencyKey:  DeriveRefundIdempotencyKey(request.ID),
		}
		refund, err = repo.CreateRefundRequest(ctx, refund)
		if err != nil {
			if pkgdb.IsUniqueViolation(err, "ux_refund_requests_return_request_id") || pkgdb.IsDuplicateKey(err) {
				return nil
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create refund request")
		}

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventRefundRequested,
			AggregateType: enums.AggregateRefundRequest,
			AggregateID:   refund.ID,
			Version:       1,
			Actor:         &outbox.ActorRef{UserID: input.ReviewerID, Role: input.ReviewerRole},
			Data: payloads.RefundRequestedEvent{
				RefundRequestID: refund.ID,
				ReturnRequestID: request.ID,
				OrderID:         order.ID,
				UserID:          request.UserID,
				Amount:          refund.Amount,
				Currency:        refund.Currency,
			},
		})
	})
	if err != nil {
		return nil, err
	}
	return s.repo.FindReturnByID(ctx, request.ID)
}

func (s *service) rejectTx(ctx context.Context, request *models.ReturnRequest, input ReviewInput) (*models.ReturnRequest, error) {
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		now := time.Now().UTC()
		changed, err := repo.TransitionReturnStatus(ctx, request.ID,
			enums.ReturnRequestStatusPending, enums.ReturnRequestStatusRejected, map[string]any{
				"reviewer_id": input.ReviewerID,
				"review_note": input.ReviewNote,
				"reviewed_at": now,
			})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reject return request")
		}
		if !changed {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "return request was already reviewed")
		}

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventReturnRejected,
			AggregateType: enums.AggregateReturnRequest,
			AggregateID:   request.ID,
			Version:       1,
			Actor:         &outbox.ActorRef{UserID: input.ReviewerID, Role: input.ReviewerRole},
			Data: payloads.ReturnRejectedEvent{
				ReturnRequestID: request.ID,
				OrderID:         request.OrderID,
				UserID:          request.UserID,
				ReviewNote:      input.ReviewNote,
			},
		})
	})
	if err != nil {
		return nil, err
	}
	return s.repo.FindReturnByID(ctx, request.ID)
}

// ProcessRefund executes a pending refund against the gateway and settles
// the refund, return, order, and payment rows on success. A terminal refund
// is returned as-is, so redeliveries are harmless. On gateway failure the
// refund is marked failed while the return stays refund_pending; an operator
// re-approves or retries after fixing the cause.
func (s *service) ProcessRefund(ctx context.Context, refundRequestID uuid.UUID) (*models.RefundRequest, error) {
	if refundRequestID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "refund request id required")
	}

	refund, err := s.repo.FindRefundByID(ctx, refundRequestID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "refund request not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load refund request")
	}
	if refund.Status.IsTerminal() {
		return refund, nil
	}

	payment, err := s.paymentsRepo.FindByOrderID(ctx, refund.OrderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment")
	}
	if payment.ProviderPaymentID == nil || *payment.ProviderPaymentID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "payment has no provider reference to refund")
	}

	// The gateway call stays outside the transaction. The refund row's
	// derived idempotency key makes a replay after a crash converge on the
	// same gateway refund.
	outcome, err := s.gateway.Refund(ctx, RefundInput{
		ProviderPaymentID: *payment.ProviderPaymentID,
		Amount:            refund.Amount,
		Currency:          refund.Currency,
		IdempotencyKey:    refund.IdempotencyKey,
		Reason:            "customer return",
	})
	if err != nil {
		if typed := pkgerrors.As(err); typed != nil {
			switch typed.Code() {
			case pkgerrors.CodeGatewayDeclined, pkgerrors.CodeDependency:
				// A decline or gateway fault is an outcome, not a reason to
				// redeliver: the refund records the failure and the return
				// stays refund_pending for the operator.
				if failErr := s.settleRefundFailure(ctx, refund, typed.Message()); failErr != nil {
					return nil, failErr
				}
				return s.repo.FindRefundByID(ctx, refund.ID)
			}
		}
		return nil, err
	}

	if !outcome.Completed {
		if err := s.settleRefundFailure(ctx, refund, outcome.FailureReason); err != nil {
			return nil, err
		}
		return s.repo.FindRefundByID(ctx, refund.ID)
	}
	if err := s.settleRefundSuccess(ctx, refund, payment, outcome.ProviderRefundID); err != nil {
		return nil, err
	}
	return s.repo.FindRefundByID(ctx, refund.ID)
}

func (s *service) settleRefundSuccess(ctx context.Context, refund *models.RefundRequest, payment *models.Payment, providerRefundID string) error {
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		ordersRepo := s.ordersRepo.WithTx(tx)
		paymentsRepo := s.paymentsRepo.WithTx(tx)

		now := time.Now().UTC()
		extra := map[string]any{"processed_at": now}
		if providerRefundID != "" {
			extra["provider_refund_id"] = providerRefundID
		}
		changed, err := repo.TransitionRefundStatus(ctx, refund.ID,
			enums.RefundRequestStatusPending, enums.RefundRequestStatusSucceeded, extra)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark refund succeeded")
		}
		if !changed {
			// Someone else settled it first.
			return nil
		}

		request, err := repo.FindReturnByID(ctx, refund.ReturnRequestID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load return request")
		}

		returnChanged, err := repo.TransitionReturnStatus(ctx, refund.ReturnRequestID,
			enums.ReturnRequestStatusRefundPending, enums.ReturnRequestStatusRefunded, nil)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark return refunded")
		}
		if !returnChanged {
			s.logger.Warn(s.logger.WithOrderID(ctx, refund.OrderID.String()),
				"refund succeeded but return request was not refund_pending")
		}

		orderChanged, err := ordersRepo.TransitionStatus(ctx, refund.OrderID,
			enums.OrderStatusDelivered, enums.OrderStatusRefunded, map[string]any{
				"refunded_at": now,
			})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark order refunded")
		}
		if !orderChanged {
			s.logger.Warn(s.logger.WithOrderID(ctx, refund.OrderID.String()),
				"refund succeeded but order was not in delivered status")
		}

		if _, err := paymentsRepo.TransitionStatus(ctx, payment.ID,
			enums.PaymentStatusSuccess, enums.PaymentStatusRefunded, map[string]any{
				"refunded_at": now,
			}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark payment refunded")
		}

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventRefundSucceeded,
			AggregateType: enums.AggregateRefundRequest,
			AggregateID:   refund.ID,
			Version:       1,
			Data: payloads.RefundOutcomeEvent{
				RefundRequestID: refund.ID,
				OrderID:         refund.OrderID,
				UserID:          request.UserID,
				Status:          enums.RefundRequestStatusSucceeded,
				Amount:          refund.Amount,
			},
		})
	})
}

func (s *service) settleRefundFailure(ctx context.Context, refund *models.RefundRequest, reason string) error {
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		now := time.Now().UTC()
		changed, err := repo.TransitionRefundStatus(ctx, refund.ID,
			enums.RefundRequestStatusPending, enums.RefundRequestStatusFailed, map[string]any{
				"failure_reason": reason,
				"processed_at":   now,
			})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark refund failed")
		}
		if !changed {
			return nil
		}

		// The return stays refund_pending so an operator can retry once the
		// cause is fixed.
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventRefundFailed,
			AggregateType: enums.AggregateRefundRequest,
			AggregateID:   refund.ID,
			Version:       1,
			Data: payloads.RefundOutcomeEvent{
				RefundRequestID: refund.ID,
				OrderID:         refund.OrderID,
				Status:          enums.RefundRequestStatusFailed,
				Amount:          refund.Amount,
				FailureReason:   reason,
			},
		})
	})
}
