package payments

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/modacart/modacart-backend/internal/inbox"
	"github.com/modacart/modacart-backend/internal/orders"
	"github.com/modacart/modacart-backend/pkg/db/models"
	"github.com/modacart/modacart-backend/pkg/enums"
	pkgerrors "github.com/modacart/modacart-backend/pkg/errors"
	"github.com/modacart/modacart-backend/pkg/logger"
	"github.com/modacart/modacart-backend/pkg/outbox"
)

func TestProcessPaymentChargesAndSettles(t *testing.T) {
	t.Parallel()

	db := setupPaymentsTestDB(t)
	svc, gateway, publisher := newPaymentsTestService(t, db)
	ctx := context.Background()

	order, item := seedPendingOrder(t, db)
	seedInventory(t, db, item.ProductID, 0, item.Qty)

	gateway.chargeOutcome = &ChargeOutcome{ProviderPaymentID: "sq-pay-1", Completed: true}

	payment, err := svc.ProcessPayment(ctx, ProcessPaymentInput{
		OrderID:        order.ID,
		ActorUserID:    order.UserID,
		SourceID:       "cnon:card-nonce",
		IdempotencyKey: "charge-1",
	})
	if err != nil {
		t.Fatalf("process payment: %v", err)
	}
	if payment.Status != enums.PaymentStatusSuccess {
		t.Fatalf("expected success, got %s", payment.Status)
	}
	if gateway.chargeCalls != 1 {
		t.Fatalf("expected one charge call, got %d", gateway.chargeCalls)
	}
	if gateway.lastCharge.IdempotencyKey != "charge-1" || gateway.lastCharge.ReferenceID != order.ID.String() {
		t.Fatalf("unexpected charge input %+v", gateway.lastCharge)
	}

	var reloaded models.Order
	if err := db.First(&reloaded, "id = ?", order.ID).Error; err != nil {
		t.Fatalf("reload order: %v", err)
	}
	if reloaded.Status != enums.OrderStatusPaid || reloaded.PaidAt == nil {
		t.Fatalf("expected paid order, got %+v", reloaded)
	}

	var inv models.InventoryItem
	if err := db.First(&inv, "product_id = ?", item.ProductID).Error; err != nil {
		t.Fatalf("reload inventory: %v", err)
	}
	if inv.ReservedQty != 0 {
		t.Fatalf("expected reservation burnt, got reserved=%d", inv.ReservedQty)
	}

	assertEventTypes(t, publisher, enums.EventPaymentSucceeded, enums.EventOrderPaid)
}

func TestProcessPaymentDeclineLeavesOrderRetryable(t *testing.T) {
	t.Parallel()

	db := setupPaymentsTestDB(t)
	svc, gateway, publisher := newPaymentsTestService(t, db)
	ctx := context.Background()

	order, _ := seedPendingOrder(t, db)
	gateway.chargeErr = pkgerrors.New(pkgerrors.CodeGatewayDeclined, "card declined")

	_, err := svc.ProcessPayment(ctx, ProcessPaymentInput{
		OrderID:        order.ID,
		ActorUserID:    order.UserID,
		SourceID:       "cnon:card-nonce",
		IdempotencyKey: "charge-declined",
	})
	if appErr := pkgerrors.As(err); appErr == nil || appErr.Code() != pkgerrors.CodeGatewayDeclined {
		t.Fatalf("expected GATEWAY_DECLINED, got %v", err)
	}

	var payment models.Payment
	if err := db.First(&payment, "idempotency_key = ?", "charge-declined").Error; err != nil {
		t.Fatalf("reload payment: %v", err)
	}
	if payment.Status != enums.PaymentStatusFailed {
		t.Fatalf("expected failed payment, got %s", payment.Status)
	}

	var reloaded models.Order
	if err := db.First(&reloaded, "id = ?", order.ID).Error; err != nil {
		t.Fatalf("reload order: %v", err)
	}
	if reloaded.Status != enums.OrderStatusPendingPayment {
		t.Fatalf("declined charge must keep the order retryable, got %s", reloaded.Status)
	}

	assertEventTypes(t, publisher, enums.EventPaymentFailed)
}

func TestProcessPaymentNewKeyAfterDeclineCharges(t *testing.T) {
	t.Parallel()

	db := setupPaymentsTestDB(t)
	svc, gateway, _ := newPaymentsTestService(t, db)
	ctx := context.Background()

	order, item := seedPendingOrder(t, db)
	seedInventory(t, db, item.ProductID, 0, item.Qty)
	reason := "card declined"
	seedPayment(t, db, order, enums.PaymentStatusFailed, func(p *models.Payment) {
		p.IdempotencyKey = "charge-attempt-1"
		p.FailureReason = &reason
	})

	gateway.chargeOutcome = &ChargeOutcome{ProviderPaymentID: "sq-pay-retry", Completed: true}

	payment, err := svc.ProcessPayment(ctx, ProcessPaymentInput{
		OrderID:        order.ID,
		ActorUserID:    order.UserID,
		SourceID:       "cnon:card-nonce",
		IdempotencyKey: "charge-attempt-2",
	})
	if err != nil {
		t.Fatalf("retry after decline: %v", err)
	}
	if payment.Status != enums.PaymentStatusSuccess {
		t.Fatalf("expected success, got %s", payment.Status)
	}
	if gateway.chargeCalls != 1 {
		t.Fatalf("expected one charge call, got %d", gateway.chargeCalls)
	}

	var count int64
	if err := db.Model(&models.Payment{}).Where("order_id = ?", order.ID).Count(&count).Error; err != nil {
		t.Fatalf("count payments: %v", err)
	}
	if count != 2 {
		t.Fatalf("failed attempt must stay behind as history, got %d rows", count)
	}
}

func TestProcessPaymentReplaysStoredOutcome(t *testing.T) {
	t.Parallel()

	db := setupPaymentsTestDB(t)
	svc, gateway, _ := newPaymentsTestService(t, db)
	ctx := context.Background()

	order, item := seedPendingOrder(t, db)
	seedInventory(t, db, item.ProductID, 0, item.Qty)
	gateway.chargeOutcome = &ChargeOutcome{ProviderPaymentID: "sq-pay-2", Completed: true}

	input := ProcessPaymentInput{
		OrderID:        order.ID,
		ActorUserID:    order.UserID,
		SourceID:       "cnon:card-nonce",
		IdempotencyKey: "charge-replay",
	}
	first, err := svc.ProcessPayment(ctx, input)
	if err != nil {
		t.Fatalf("first charge: %v", err)
	}

	second, err := svc.ProcessPayment(ctx, input)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if gateway.chargeCalls != 1 {
		t.Fatalf("replay must not reach the gateway, got %d calls", gateway.chargeCalls)
	}
	if second.ID != first.ID {
		t.Fatalf("replay returned a different payment: %s vs %s", second.ID, first.ID)
	}
}

func TestProcessPaymentReplaysStoredDecline(t *testing.T) {
	t.Parallel()

	db := setupPaymentsTestDB(t)
	svc, gateway, _ := newPaymentsTestService(t, db)
	ctx := context.Background()

	order, _ := seedPendingOrder(t, db)
	reason := "insufficient funds"
	seedPayment(t, db, order, enums.PaymentStatusFailed, func(p *models.Payment) {
		p.IdempotencyKey = "charge-failed"
		p.FailureReason = &reason
	})

	_, err := svc.ProcessPayment(ctx, ProcessPaymentInput{
		OrderID:        order.ID,
		ActorUserID:    order.UserID,
		SourceID:       "cnon:card-nonce",
		IdempotencyKey: "charge-failed",
	})
	appErr := pkgerrors.As(err)
	if appErr == nil || appErr.Code() != pkgerrors.CodeGatewayDeclined {
		t.Fatalf("expected GATEWAY_DECLINED, got %v", err)
	}
	if appErr.Message() != reason {
		t.Fatalf("expected stored reason %q, got %q", reason, appErr.Message())
	}
	if gateway.chargeCalls != 0 {
		t.Fatalf("stored decline must not reach the gateway, got %d calls", gateway.chargeCalls)
	}
}

func TestProcessPaymentRejectsKeyForAnotherOrder(t *testing.T) {
	t.Parallel()

	db := setupPaymentsTestDB(t)
	svc, _, _ := newPaymentsTestService(t, db)
	ctx := context.Background()

	first, _ := seedPendingOrder(t, db)
	seedPayment(t, db, first, enums.PaymentStatusSuccess, func(p *models.Payment) {
		p.IdempotencyKey = "charge-shared"
	})
	second, _ := seedPendingOrder(t, db)

	_, err := svc.ProcessPayment(ctx, ProcessPaymentInput{
		OrderID:        second.ID,
		ActorUserID:    second.UserID,
		SourceID:       "cnon:card-nonce",
		IdempotencyKey: "charge-shared",
	})
	if appErr := pkgerrors.As(err); appErr == nil || appErr.Code() != pkgerrors.CodeIdempotency {
		t.Fatalf("expected IDEMPOTENCY_CONFLICT, got %v", err)
	}
}

func TestProcessPaymentTransportErrorStaysPending(t *testing.T) {
	t.Parallel()

	db := setupPaymentsTestDB(t)
	svc, gateway, _ := newPaymentsTestService(t, db)
	ctx := context.Background()

	order, _ := seedPendingOrder(t, db)
	gateway.chargeErr = fmt.Errorf("connection reset")

	_, err := svc.ProcessPayment(ctx, ProcessPaymentInput{
		OrderID:        order.ID,
		ActorUserID:    order.UserID,
		SourceID:       "cnon:card-nonce",
		IdempotencyKey: "charge-timeout",
	})
	if err == nil {
		t.Fatal("expected an error")
	}

	var payment models.Payment
	if err := db.First(&payment, "idempotency_key = ?", "charge-timeout").Error; err != nil {
		t.Fatalf("reload payment: %v", err)
	}
	if payment.Status != enums.PaymentStatusPending {
		t.Fatalf("transport error must leave the payment pending, got %s", payment.Status)
	}
}

func TestHandleWebhookSettlesPendingPayment(t *testing.T) {
	t.Parallel()

	db := setupPaymentsTestDB(t)
	svc, _, publisher := newPaymentsTestService(t, db)
	ctx := context.Background()

	order, item := seedPendingOrder(t, db)
	seedInventory(t, db, item.ProductID, 0, item.Qty)
	providerID := "sq-pay-webhook"
	seedPayment(t, db, order, enums.PaymentStatusPending, func(p *models.Payment) {
		p.ProviderPaymentID = &providerID
	})

	input := WebhookInput{
		EventID:           "evt-1",
		EventType:         "payment.updated",
		ProviderPaymentID: providerID,
		Status:            "COMPLETED",
	}
	if err := svc.HandleWebhook(ctx, input); err != nil {
		t.Fatalf("handle webhook: %v", err)
	}

	var reloaded models.Order
	if err := db.First(&reloaded, "id = ?", order.ID).Error; err != nil {
		t.Fatalf("reload order: %v", err)
	}
	if reloaded.Status != enums.OrderStatusPaid {
		t.Fatalf("expected paid order, got %s", reloaded.Status)
	}
	assertEventTypes(t, publisher, enums.EventPaymentSucceeded, enums.EventOrderPaid)

	// Redelivery of the same event must not apply twice.
	if err := svc.HandleWebhook(ctx, input); err != nil {
		t.Fatalf("redelivered webhook: %v", err)
	}
	assertEventTypes(t, publisher, enums.EventPaymentSucceeded, enums.EventOrderPaid)
}

func TestHandleWebhookIgnoresTerminalPayment(t *testing.T) {
	t.Parallel()

	db := setupPaymentsTestDB(t)
	svc, _, publisher := newPaymentsTestService(t, db)
	ctx := context.Background()

	order, _ := seedPendingOrder(t, db)
	providerID := "sq-pay-settled"
	seedPayment(t, db, order, enums.PaymentStatusSuccess, func(p *models.Payment) {
		p.ProviderPaymentID = &providerID
	})

	err := svc.HandleWebhook(ctx, WebhookInput{
		EventID:           "evt-late",
		EventType:         "payment.updated",
		ProviderPaymentID: providerID,
		Status:            "FAILED",
	})
	if err != nil {
		t.Fatalf("handle webhook: %v", err)
	}

	var payment models.Payment
	if err := db.First(&payment, "provider_payment_id = ?", providerID).Error; err != nil {
		t.Fatalf("reload payment: %v", err)
	}
	if payment.Status != enums.PaymentStatusSuccess {
		t.Fatalf("terminal payment must not change, got %s", payment.Status)
	}
	assertEventTypes(t, publisher)
}

func TestFinalizeCallbackReconcilesPendingPayment(t *testing.T) {
	t.Parallel()

	db := setupPaymentsTestDB(t)
	svc, gateway, _ := newPaymentsTestService(t, db)
	ctx := context.Background()

	order, item := seedPendingOrder(t, db)
	seedInventory(t, db, item.ProductID, 0, item.Qty)
	providerID := "sq-pay-callback"
	seeded := seedPayment(t, db, order, enums.PaymentStatusPending, func(p *models.Payment) {
		p.ProviderPaymentID = &providerID
	})
	gateway.lookupOutcome = &ChargeOutcome{ProviderPaymentID: providerID, Completed: true}

	payment, err := svc.FinalizeCallback(ctx, seeded.ConversationID)
	if err != nil {
		t.Fatalf("finalize callback: %v", err)
	}
	if payment.Status != enums.PaymentStatusSuccess {
		t.Fatalf("expected success, got %s", payment.Status)
	}
	if gateway.lookupCalls != 1 {
		t.Fatalf("expected one lookup call, got %d", gateway.lookupCalls)
	}
}

func TestFinalizeCallbackUnknownConversation(t *testing.T) {
	t.Parallel()

	db := setupPaymentsTestDB(t)
	svc, _, _ := newPaymentsTestService(t, db)

	_, err := svc.FinalizeCallback(context.Background(), uuid.NewString())
	if appErr := pkgerrors.As(err); appErr == nil || appErr.Code() != pkgerrors.CodeNotFound {
		t.Fatalf("expected NOT_FOUND, got %v", err)
	}
}

type stubGateway struct {
	chargeCalls   int
	lastCharge    ChargeInput
	chargeOutcome *ChargeOutcome
	chargeErr     error

	lookupCalls   int
	lookupOutcome *ChargeOutcome
	lookupErr     error
}

func (g *stubGateway) Charge(_ context.Context, input ChargeInput) (*ChargeOutcome, error) {
	g.chargeCalls++
	g.lastCharge = input
	if g.chargeErr != nil {
		return nil, g.chargeErr
	}
	if g.chargeOutcome != nil {
		return g.chargeOutcome, nil
	}
	return &ChargeOutcome{Completed: true}, nil
}

func (g *stubGateway) LookupPayment(_ context.Context, providerPaymentID string) (*ChargeOutcome, error) {
	g.lookupCalls++
	if g.lookupErr != nil {
		return nil, g.lookupErr
	}
	if g.lookupOutcome != nil {
		return g.lookupOutcome, nil
	}
	return &ChargeOutcome{ProviderPaymentID: providerPaymentID, Completed: true}, nil
}

type capturePublisher struct {
	events []outbox.DomainEvent
}

func (p *capturePublisher) Emit(_ context.Context, _ *gorm.DB, event outbox.DomainEvent) error {
	p.events = append(p.events, event)
	return nil
}

type gormTxRunner struct {
	db *gorm.DB
}

func (r gormTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(fn)
}

func newPaymentsTestService(t *testing.T, db *gorm.DB) (Service, *stubGateway, *capturePublisher) {
	t.Helper()

	gateway := &stubGateway{}
	publisher := &capturePublisher{}
	logg := logger.New(logger.Options{ServiceName: "payments-test"})

	svc, err := NewService(
		NewRepository(db),
		orders.NewRepository(db),
		gormTxRunner{db: db},
		gateway,
		publisher,
		inbox.NewGuard(db),
		logg,
	)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc, gateway, publisher
}

func assertEventTypes(t *testing.T, publisher *capturePublisher, want ...enums.OutboxEventType) {
	t.Helper()

	if len(publisher.events) != len(want) {
		t.Fatalf("expected %d events, got %+v", len(want), publisher.events)
	}
	for i, eventType := range want {
		if publisher.events[i].EventType != eventType {
			t.Fatalf("event %d: expected %s, got %s", i, eventType, publisher.events[i].EventType)
		}
	}
}

func setupPaymentsTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := "file:payments_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}

	schema := `
CREATE TABLE IF NOT EXISTS orders (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL,
  status TEXT NOT NULL,
  currency TEXT NOT NULL,
  subtotal NUMERIC NOT NULL,
  discount_total NUMERIC NOT NULL DEFAULT 0,
  total NUMERIC NOT NULL,
  payment_method TEXT NOT NULL,
  shipping_address_enc BLOB,
  coupon_code TEXT,
  loyalty_points_used INTEGER NOT NULL DEFAULT 0,
  paid_at DATETIME,
  delivered_at DATETIME,
  canceled_at DATETIME,
  refunded_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);
CREATE TABLE IF NOT EXISTS order_items (
  id TEXT PRIMARY KEY,
  order_id TEXT NOT NULL,
  product_id TEXT NOT NULL,
  seller_id TEXT NOT NULL,
  name TEXT NOT NULL,
  qty INTEGER NOT NULL,
  unit_price NUMERIC NOT NULL,
  line_total NUMERIC NOT NULL,
  created_at DATETIME,
  updated_at DATETIME
);
CREATE TABLE IF NOT EXISTS payments (
  id TEXT PRIMARY KEY,
  order_id TEXT NOT NULL,
  method TEXT NOT NULL,
  status TEXT NOT NULL,
  amount NUMERIC NOT NULL,
  currency TEXT NOT NULL,
  idempotency_key TEXT NOT NULL,
  provider_payment_id TEXT,
  conversation_id TEXT NOT NULL,
  failure_reason TEXT,
  refunded_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);
CREATE UNIQUE INDEX IF NOT EXISTS ux_payments_order_id ON payments (order_id) WHERE status <> 'failed';
CREATE UNIQUE INDEX IF NOT EXISTS ux_payments_idempotency_key ON payments (idempotency_key);
CREATE TABLE IF NOT EXISTS inventory_items (
  product_id TEXT PRIMARY KEY,
  available_qty INTEGER NOT NULL DEFAULT 0,
  reserved_qty INTEGER NOT NULL DEFAULT 0,
  updated_at DATETIME
);
CREATE TABLE IF NOT EXISTS inbox_records (
  id TEXT,
  consumer TEXT NOT NULL,
  message_id TEXT NOT NULL,
  message_type TEXT NOT NULL,
  processed_at DATETIME
);
CREATE UNIQUE INDEX IF NOT EXISTS ux_inbox_consumer_message ON inbox_records (consumer, message_id);`
	if err := db.Exec(schema).Error; err != nil {
		t.Fatalf("create schema: %v", err)
	}
	return db
}

func seedPendingOrder(t *testing.T, db *gorm.DB) (*models.Order, *models.OrderItem) {
	t.Helper()

	order := &models.Order{
		ID:            uuid.New(),
		UserID:        uuid.New(),
		Status:        enums.OrderStatusPendingPayment,
		Currency:      enums.CurrencyTRY,
		Subtotal:      decimal.NewFromInt(300),
		DiscountTotal: decimal.Zero,
		Total:         decimal.NewFromInt(300),
		PaymentMethod: enums.PaymentMethodCard,
	}
	if err := db.Create(order).Error; err != nil {
		t.Fatalf("seed order: %v", err)
	}
	item := &models.OrderItem{
		ID:        uuid.New(),
		OrderID:   order.ID,
		ProductID: uuid.New(),
		SellerID:  uuid.New(),
		Name:      "test product",
		Qty:       2,
		UnitPrice: decimal.NewFromInt(150),
		LineTotal: decimal.NewFromInt(300),
	}
	if err := db.Create(item).Error; err != nil {
		t.Fatalf("seed order item: %v", err)
	}
	return order, item
}

func seedInventory(t *testing.T, db *gorm.DB, productID uuid.UUID, available, reserved int) {
	t.Helper()

	item := &models.InventoryItem{
		ProductID:    productID,
		AvailableQty: available,
		ReservedQty:  reserved,
	}
	if err := db.Create(item).Error; err != nil {
		t.Fatalf("seed inventory: %v", err)
	}
}

func seedPayment(t *testing.T, db *gorm.DB, order *models.Order, status enums.PaymentStatus, mutate func(*models.Payment)) *models.Payment {
	t.Helper()

	payment := &models.Payment{
		ID:             uuid.New(),
		OrderID:        order.ID,
		Method:         enums.PaymentMethodCard,
		Status:         status,
		Amount:         order.Total,
		Currency:       order.Currency,
		IdempotencyKey: "pay-" + uuid.NewString(),
		ConversationID: uuid.NewString(),
	}
	if mutate != nil {
		mutate(payment)
	}
	if err := db.Create(payment).Error; err != nil {
		t.Fatalf("seed payment: %v", err)
	}
	return payment
}
