package orders

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"checkout-service/internal/products"
)

type Conf struct {
	db        *sql.DB
	inventory *products.Conf
}

func NewConf(db *sql.DB, inventory *products.Conf) (Conf, error) {
	if db == nil {
		return Conf{}, fmt.Errorf("db is nil")
	}
	if inventory == nil {
		return Conf{}, fmt.Errorf("inventory is nil")
	}
	return Conf{db: db, inventory: inventory}, nil
}

// CreateOrder persists the order header and its frozen line items within the
// caller's transaction. Only the checkout orchestrator calls this.
func (c *Conf) CreateOrder(ctx context.Context, tx *sql.Tx, o Order) error {
	queryOrder := `
		INSERT INTO orders (id, user_id, shipping_address, payment_method, payment_ref,
			subtotal, shipping, tax, total, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW(), NOW())
	`
	_, err := tx.ExecContext(ctx, queryOrder,
		o.ID, o.UserID, o.ShippingAddress, o.PaymentMethod, o.PaymentRef,
		o.Subtotal, o.Shipping, o.Tax, o.Total, o.Status)
	if err != nil {
		return fmt.Errorf("failed to insert order: %w", err)
	}

	queryItem := `
		INSERT INTO order_items (order_id, product_id, name, quantity, unit_price, line_total)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	for _, item := range o.Items {
		_, err := tx.ExecContext(ctx, queryItem,
			o.ID, item.ProductID, item.Name, item.Quantity, item.UnitPrice, item.LineTotal)
		if err != nil {
			return fmt.Errorf("failed to insert order item for product %s: %w", item.ProductID, err)
		}
	}
	return nil
}

// GetOrdersForUser returns the user's orders newest-first with their frozen
// line items joined for display.
func (c *Conf) GetOrdersForUser(ctx context.Context, userID string) ([]Order, error) {
	queryOrders := `
		SELECT id, user_id, shipping_address, payment_method, payment_ref,
			subtotal, shipping, tax, total, status, created_at, updated_at
		FROM orders
		WHERE user_id = $1
		ORDER BY created_at DESC
	`
	rows, err := c.db.QueryContext(ctx, queryOrders, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query orders: %w", err)
	}
	defer rows.Close()

	var list []Order
	index := map[string]int{}
	for rows.Next() {
		var o Order
		if err := rows.Scan(&o.ID, &o.UserID, &o.ShippingAddress, &o.PaymentMethod, &o.PaymentRef,
			&o.Subtotal, &o.Shipping, &o.Tax, &o.Total, &o.Status, &o.CreatedAt, &o.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		index[o.ID] = len(list)
		list = append(list, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating orders: %w", err)
	}
	if len(list) == 0 {
		return []Order{}, nil
	}

	queryItems := `
		SELECT oi.id, oi.order_id, oi.product_id, oi.name, oi.quantity, oi.unit_price, oi.line_total
		FROM order_items oi
		JOIN orders o ON o.id = oi.order_id
		WHERE o.user_id = $1
		ORDER BY oi.id
	`
	itemRows, err := c.db.QueryContext(ctx, queryItems, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query order items: %w", err)
	}
	defer itemRows.Close()

	for itemRows.Next() {
		var item OrderItem
		var orderID string
		if err := itemRows.Scan(&item.ID, &orderID, &item.ProductID, &item.Name,
			&item.Quantity, &item.UnitPrice, &item.LineTotal); err != nil {
			return nil, fmt.Errorf("failed to scan order item: %w", err)
		}
		if i, ok := index[orderID]; ok {
			list[i].Items = append(list[i].Items, item)
		}
	}
	if err := itemRows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating order items: %w", err)
	}

	return list, nil
}

// UpdateStatus moves an order along the fulfilment flow. Cancelling an order
// restores the stock its lines reserved, in the same transaction, so
// cancellation is never "free".
func (c *Conf) UpdateStatus(ctx context.Context, orderID string, next Status) error {
	if !next.Valid() {
		return fmt.Errorf("unknown status %q: %w", next, ErrInvalidTransition)
	}

	return c.withTx(ctx, func(tx *sql.Tx) error {
		queryStatus := `
			SELECT status
			FROM orders
			WHERE id = $1
			FOR UPDATE
		`
		var current Status
		err := tx.QueryRowContext(ctx, queryStatus, orderID).Scan(&current)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrOrderNotFound
			}
			return fmt.Errorf("failed to query order status: %w", err)
		}

		if !current.CanTransitionTo(next) {
			return fmt.Errorf("cannot move order %s from %s to %s: %w",
				orderID, current, next, ErrInvalidTransition)
		}

		queryUpdate := `
			UPDATE orders
			SET status = $1, updated_at = NOW()
			WHERE id = $2
		`
		if _, err := tx.ExecContext(ctx, queryUpdate, next, orderID); err != nil {
			return fmt.Errorf("failed to update order status: %w", err)
		}

		if next == StatusCancelled {
			if err := c.restoreStockForOrder(ctx, tx, orderID); err != nil {
				return err
			}
		}
		return nil
	})
}

func (c *Conf) restoreStockForOrder(ctx context.Context, tx *sql.Tx, orderID string) error {
	queryItems := `
		SELECT product_id, quantity
		FROM order_items
		WHERE order_id = $1
	`
	rows, err := tx.QueryContext(ctx, queryItems, orderID)
	if err != nil {
		return fmt.Errorf("failed to query order items: %w", err)
	}
	defer rows.Close()

	type restore struct {
		productID string
		quantity  int
	}
	var restores []restore
	for rows.Next() {
		var r restore
		if err := rows.Scan(&r.productID, &r.quantity); err != nil {
			return fmt.Errorf("failed to scan order item: %w", err)
		}
		restores = append(restores, r)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating order items: %w", err)
	}

	for _, r := range restores {
		if err := c.inventory.RestoreStock(ctx, tx, r.productID, r.quantity); err != nil {
			return err
		}
	}
	return nil
}

func (c *Conf) withTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}

	if err := fn(tx); err != nil {
		if er := tx.Rollback(); er != nil && !errors.Is(er, sql.ErrTxDone) {
			return fmt.Errorf("failed to rollback withTx: %w", err)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit withTx: %w", err)
	}
	return nil
}
