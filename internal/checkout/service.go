package checkout

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/modacart/modacart-backend/internal/cart"
	"github.com/modacart/modacart-backend/internal/checkout/reservation"
	"github.com/modacart/modacart-backend/internal/orders"
	"github.com/modacart/modacart-backend/pkg/db/models"
	"github.com/modacart/modacart-backend/pkg/enums"
	pkgerrors "github.com/modacart/modacart-backend/pkg/errors"
	"github.com/modacart/modacart-backend/pkg/outbox"
	"github.com/modacart/modacart-backend/pkg/outbox/payloads"
	"github.com/modacart/modacart-backend/pkg/types"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type reservationRunner interface {
	Reserve(ctx context.Context, tx *gorm.DB, requests []reservation.InventoryReservationRequest) ([]reservation.InventoryReservationResult, error)
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type addressSealer interface {
	Seal(addr types.Address) ([]byte, error)
}

// CouponPort resolves a coupon code to the discount it grants on the subtotal.
type CouponPort interface {
	Discount(ctx context.Context, code string, subtotal decimal.Decimal) (decimal.Decimal, error)
}

// LoyaltyPort converts loyalty points into a discount and burns them.
type LoyaltyPort interface {
	Redeem(ctx context.Context, tx *gorm.DB, userID uuid.UUID, points int) (decimal.Decimal, error)
}

type reservationEngine struct{}

func (reservationEngine) Reserve(ctx context.Context, tx *gorm.DB, requests []reservation.InventoryReservationRequest) ([]reservation.InventoryReservationResult, error) {
	return reservation.ReserveInventory(ctx, tx, requests)
}

// Service executes checkout orchestration.
type Service interface {
	Execute(ctx context.Context, userID, cartID uuid.UUID, input CheckoutInput) (*models.Order, error)
}

// CheckoutInput captures the buyer-provided checkout data.
type CheckoutInput struct {
	ShippingAddress types.Address
	CouponCode      *string
	LoyaltyPoints   int
}

type service struct {
	tx          txRunner
	cartRepo    cart.CartRepository
	ordersRepo  orders.Repository
	reservation reservationRunner
	outbox      outboxPublisher
	sealer      addressSealer
	coupons     CouponPort
	loyalty     LoyaltyPort
}

// NewService builds the checkout service. Coupon and loyalty ports are
// optional; when absent the matching inputs are rejected.
func NewService(
	tx txRunner,
	cartRepo cart.CartRepository,
	ordersRepo orders.Repository,
	reservationRunner reservationRunner,
	publisher outboxPublisher,
	sealer addressSealer,
	coupons CouponPort,
	loyalty LoyaltyPort,
) (Service, error) {
	if tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if cartRepo == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	if ordersRepo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if reservationRunner == nil {
		reservationRunner = reservationEngine{}
	}
	if publisher == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if sealer == nil {
		return nil, fmt.Errorf("address sealer required")
	}
	return &service{
		tx:          tx,
		cartRepo:    cartRepo,
		ordersRepo:  ordersRepo,
		reservation: reservationRunner,
		outbox:      publisher,
		sealer:      sealer,
		coupons:     coupons,
		loyalty:     loyalty,
	}, nil
}

func (s *service) Execute(ctx context.Context, userID, cartID uuid.UUID, input CheckoutInput) (*models.Order, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if cartID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cart id required")
	}
	if err := input.ShippingAddress.Validate(); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid shipping address")
	}
	if input.LoyaltyPoints < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "loyalty points cannot be negative")
	}

	sealed, err := s.sealer.Seal(input.ShippingAddress)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "seal shipping address")
	}

	var result *models.Order
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		cartRepo := s.cartRepo.WithTx(tx)
		ordersRepo := s.ordersRepo.WithTx(tx)

		record, err := cartRepo.FindByIDAndUser(ctx, cartID, userID)
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				return pkgerrors.New(pkgerrors.CodeNotFound, "cart not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
		}
		if record.Status != enums.CartStatusActive {
			return pkgerrors.New(pkgerrors.CodeConflict, "cart already processed")
		}
		if len(record.Items) == 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, "cart contains no items")
		}

		requests := make([]reservation.InventoryReservationRequest, len(record.Items))
		for i, item := range record.Items {
			requests[i] = reservation.InventoryReservationRequest{
				CartItemID: item.ID,
				ProductID:  item.ProductID,
				Qty:        item.Quantity,
			}
		}

		reservations, err := s.reservation.Reserve(ctx, tx, requests)
		if err != nil {
			return err
		}
		var shortages []string
		for _, res := range reservations {
			if !res.Reserved {
				shortages = append(shortages, res.ProductID.String())
			}
		}
		// One unavailable item fails the whole checkout. The transaction
		// rollback undoes the reservations that did land.
		if len(shortages) > 0 {
			return pkgerrors.New(pkgerrors.CodeInsufficientStock, "some items are out of stock").
				WithDetails(map[string]any{"product_ids": shortages})
		}

		subtotal := decimal.Zero
		for _, item := range record.Items {
			subtotal = subtotal.Add(item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity))))
		}

		discount := decimal.Zero
		if input.CouponCode != nil && *input.CouponCode != "" {
			if s.coupons == nil {
				return pkgerrors.New(pkgerrors.CodeValidation, "coupons are not supported")
			}
			couponDiscount, err := s.coupons.Discount(ctx, *input.CouponCode, subtotal)
			if err != nil {
				return err
			}
			discount = discount.Add(couponDiscount)
		}
		if input.LoyaltyPoints > 0 {
			if s.loyalty == nil {
				return pkgerrors.New(pkgerrors.CodeValidation, "loyalty redemption is not supported")
			}
			loyaltyDiscount, err := s.loyalty.Redeem(ctx, tx, userID, input.LoyaltyPoints)
			if err != nil {
				return err
			}
			discount = discount.Add(loyaltyDiscount)
		}
		if discount.GreaterThan(subtotal) {
			discount = subtotal
		}
		total := subtotal.Sub(discount)

		order := &models.Order{
			ID:                 uuid.New(),
			UserID:             userID,
			Status:             enums.OrderStatusPendingPayment,
			Currency:           record.Currency,
			Subtotal:           subtotal,
			DiscountTotal:      discount,
			Total:              total,
			PaymentMethod:      enums.PaymentMethodCard,
			ShippingAddressEnc: sealed,
			CouponCode:         input.CouponCode,
			LoyaltyPointsUsed:  input.LoyaltyPoints,
		}
		created, err := ordersRepo.Create(ctx, order)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order")
		}

		itemQty := 0
		items := make([]models.OrderItem, 0, len(record.Items))
		for _, cartItem := range record.Items {
			itemQty += cartItem.Quantity
			items = append(items, models.OrderItem{
				ID:        uuid.New(),
				OrderID:   created.ID,
				ProductID: cartItem.ProductID,
				SellerID:  cartItem.SellerID,
				Name:      cartItem.Name,
				Qty:       cartItem.Quantity,
				UnitPrice: cartItem.UnitPrice,
				LineTotal: cartItem.UnitPrice.Mul(decimal.NewFromInt(int64(cartItem.Quantity))),
			})
		}
		if err := ordersRepo.CreateItems(ctx, items); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order items")
		}

		if err := cartRepo.MarkConverted(ctx, record.ID, userID); err != nil {
			return err
		}

		event := outbox.DomainEvent{
			EventType:     enums.EventOrderCreated,
			AggregateType: enums.AggregateOrder,
			AggregateID:   created.ID,
			Version:       1,
			Actor:         &outbox.ActorRef{UserID: userID},
			Data: payloads.OrderCreatedEvent{
				OrderID:  created.ID,
				UserID:   userID,
				Total:    total,
				Currency: record.Currency,
				ItemQty:  itemQty,
			},
		}
		if err := s.outbox.Emit(ctx, tx, event); err != nil {
			return err
		}

		result, err = ordersRepo.FindByID(ctx, created.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
