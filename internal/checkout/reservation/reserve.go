package reservation

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	pkgerrors "github.com/modacart/modacart-backend/pkg/errors"
)

// InventoryReservationRequest asks for qty units of a product on behalf of a cart item.
type InventoryReservationRequest struct {
	CartItemID uuid.UUID
	ProductID  uuid.UUID
	Qty        int
}

// InventoryReservationResult reports whether the reservation was applied.
type InventoryReservationResult struct {
	CartItemID uuid.UUID
	ProductID  uuid.UUID
	Reserved   bool
	Reason     string
}

// ReserveInventory moves stock from available to reserved for each request.
// The conditional UPDATE only applies when enough stock remains, so concurrent
// checkouts cannot oversell. Requests that cannot be satisfied come back with
// Reserved=false and a reason instead of failing the whole batch.
func ReserveInventory(ctx context.Context, tx *gorm.DB, requests []InventoryReservationRequest) ([]InventoryReservationResult, error) {
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "transaction required for inventory reservation")
	}

	results := make([]InventoryReservationResult, 0, len(requests))
	for _, req := range requests {
		if req.ProductID == uuid.Nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id required for reservation")
		}
		if req.Qty <= 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "reservation qty must be positive")
		}

		res := tx.WithContext(ctx).Exec(`
			UPDATE inventory_items
			SET available_qty = available_qty - ?,
				reserved_qty = reserved_qty + ?,
				updated_at = CURRENT_TIMESTAMP
			WHERE product_id = ? AND available_qty >= ?
		`, req.Qty, req.Qty, req.ProductID, req.Qty)
		if res.Error != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "reserve inventory")
		}

		result := InventoryReservationResult{
			CartItemID: req.CartItemID,
			ProductID:  req.ProductID,
			Reserved:   res.RowsAffected == 1,
		}
		if !result.Reserved {
			result.Reason = fmt.Sprintf("insufficient stock for product %s", req.ProductID)
		}
		results = append(results, result)
	}
	return results, nil
}

// ReleaseInventory returns previously reserved stock to the available pool.
// The guard on reserved_qty keeps double releases from going negative.
func ReleaseInventory(ctx context.Context, tx *gorm.DB, productID uuid.UUID, qty int) error {
	if qty <= 0 {
		return nil
	}
	if tx == nil {
		return pkgerrors.New(pkgerrors.CodeDependency, "transaction required for inventory release")
	}

	res := tx.WithContext(ctx).Exec(`
		UPDATE inventory_items
		SET available_qty = available_qty + ?,
			reserved_qty = reserved_qty - ?,
			updated_at = CURRENT_TIMESTAMP
		WHERE product_id = ? AND reserved_qty >= ?
	`, qty, qty, productID, qty)
	if res.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "release inventory")
	}
	return nil
}

// CommitReservation permanently removes reserved stock once an order is paid.
func CommitReservation(ctx context.Context, tx *gorm.DB, productID uuid.UUID, qty int) error {
	if qty <= 0 {
		return nil
	}
	if tx == nil {
		return pkgerrors.New(pkgerrors.CodeDependency, "transaction required for reservation commit")
	}

	res := tx.WithContext(ctx).Exec(`
		UPDATE inventory_items
		SET reserved_qty = reserved_qty - ?,
			updated_at = CURRENT_TIMESTAMP
		WHERE product_id = ? AND reserved_qty >= ?
	`, qty, productID, qty)
	if res.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "commit reservation")
	}
	return nil
}
