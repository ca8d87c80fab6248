package cart

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"checkout-service/internal/products"
)

type Conf struct {
	db *sql.DB
}

func NewConf(db *sql.DB) (Conf, error) {
	if db == nil {
		return Conf{}, fmt.Errorf("db is nil")
	}
	return Conf{db: db}, nil
}

// AddItem puts quantity of a product into the user's active cart, creating
// the cart on first use. If the product is already in the cart the quantities
// are summed. The stock check here is advisory only; nothing is reserved.
// The authoritative, race-free check happens at checkout.
func (c *Conf) AddItem(ctx context.Context, userID, productID string, quantity int) (CartLine, error) {
	if quantity <= 0 {
		return CartLine{}, fmt.Errorf("quantity must be positive, got %d", quantity)
	}

	var line CartLine
	err := c.withTx(ctx, func(tx *sql.Tx) error {
		cartID, err := activeCartForUpdate(ctx, tx, userID, true)
		if err != nil {
			return err
		}

		queryStock := `
			SELECT stock
			FROM products
			WHERE id = $1
		`
		var stock int
		err = tx.QueryRowContext(ctx, queryStock, productID).Scan(&stock)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return products.ErrProductNotFound
			}
			return fmt.Errorf("failed to query product stock: %w", err)
		}

		queryCartItem := `
			SELECT id, quantity
			FROM cart_items
			WHERE cart_id = $1 AND product_id = $2
		`
		var lineID int64
		var existingQuantity int
		err = tx.QueryRowContext(ctx, queryCartItem, cartID, productID).Scan(&lineID, &existingQuantity)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("failed to query cart items: %w", err)
		}

		newQuantity := existingQuantity + quantity
		if newQuantity > stock {
			return &OutOfStockError{ProductID: productID, Requested: newQuantity, Available: stock}
		}

		if errors.Is(err, sql.ErrNoRows) {
			queryInsert := `
				INSERT INTO cart_items (cart_id, product_id, quantity, created_at, updated_at)
				VALUES ($1, $2, $3, NOW(), NOW())
				RETURNING id
			`
			if err := tx.QueryRowContext(ctx, queryInsert, cartID, productID, quantity).Scan(&lineID); err != nil {
				return fmt.Errorf("failed to add product to cart: %w", err)
			}
		} else {
			queryUpdate := `
				UPDATE cart_items
				SET quantity = $1, updated_at = NOW()
				WHERE id = $2
			`
			if _, err := tx.ExecContext(ctx, queryUpdate, newQuantity, lineID); err != nil {
				return fmt.Errorf("failed to update cart item quantity: %w", err)
			}
		}

		line = CartLine{ID: lineID, ProductID: productID, Quantity: newQuantity}
		return nil
	})
	if err != nil {
		return CartLine{}, err
	}
	return line, nil
}

// UpdateItem sets the quantity of an existing line. Quantity must be at
// least 1; use RemoveItem to delete a line.
func (c *Conf) UpdateItem(ctx context.Context, userID string, lineID int64, quantity int) (CartLine, error) {
	if quantity < 1 {
		return CartLine{}, fmt.Errorf("quantity must be at least 1, got %d", quantity)
	}

	var line CartLine
	err := c.withTx(ctx, func(tx *sql.Tx) error {
		queryLine := `
			SELECT ci.product_id, p.stock
			FROM cart_items ci
			JOIN cart c ON c.id = ci.cart_id
			JOIN products p ON p.id = ci.product_id
			WHERE ci.id = $1 AND c.user_id = $2 AND c.status = 'active'
			FOR UPDATE OF ci
		`
		var productID string
		var stock int
		err := tx.QueryRowContext(ctx, queryLine, lineID, userID).Scan(&productID, &stock)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrLineNotFound
			}
			return fmt.Errorf("failed to query cart line: %w", err)
		}

		if quantity > stock {
			return &OutOfStockError{ProductID: productID, Requested: quantity, Available: stock}
		}

		queryUpdate := `
			UPDATE cart_items
			SET quantity = $1, updated_at = NOW()
			WHERE id = $2
		`
		if _, err := tx.ExecContext(ctx, queryUpdate, quantity, lineID); err != nil {
			return fmt.Errorf("failed to update cart item quantity: %w", err)
		}

		line = CartLine{ID: lineID, ProductID: productID, Quantity: quantity}
		return nil
	})
	if err != nil {
		return CartLine{}, err
	}
	return line, nil
}

// RemoveItem deletes a line from the user's active cart.
func (c *Conf) RemoveItem(ctx context.Context, userID string, lineID int64) error {
	query := `
		DELETE FROM cart_items ci
		USING cart c
		WHERE ci.cart_id = c.id AND ci.id = $1 AND c.user_id = $2 AND c.status = 'active'
	`
	res, err := c.db.ExecContext(ctx, query, lineID, userID)
	if err != nil {
		return fmt.Errorf("failed to remove cart item: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return ErrLineNotFound
	}
	return nil
}

// GetCart returns the user's cart lines in insertion order with current
// product display data. A user without a cart gets an empty cart, not an
// error.
func (c *Conf) GetCart(ctx context.Context, userID string) (CartResponse, error) {
	query := `
		SELECT ci.id, ci.product_id, p.name, p.image_url, p.price, ci.quantity
		FROM cart_items ci
		JOIN cart c ON c.id = ci.cart_id
		JOIN products p ON p.id = ci.product_id
		WHERE c.user_id = $1 AND c.status = 'active'
		ORDER BY ci.id
	`
	rows, err := c.db.QueryContext(ctx, query, userID)
	if err != nil {
		return CartResponse{}, fmt.Errorf("failed to query cart items: %w", err)
	}
	defer rows.Close()

	lines := []CartLine{}
	for rows.Next() {
		var l CartLine
		if err := rows.Scan(&l.ID, &l.ProductID, &l.Name, &l.ImageURL, &l.UnitPrice, &l.Quantity); err != nil {
			return CartResponse{}, fmt.Errorf("failed to scan cart item: %w", err)
		}
		lines = append(lines, l)
	}
	if err := rows.Err(); err != nil {
		return CartResponse{}, fmt.Errorf("error iterating cart items: %w", err)
	}

	return CartResponse{Lines: lines}, nil
}

// Lines is the checkout orchestrator's view of the cart.
func (c *Conf) Lines(ctx context.Context, userID string) ([]CartLine, error) {
	resp, err := c.GetCart(ctx, userID)
	if err != nil {
		return nil, err
	}
	return resp.Lines, nil
}

// DeleteLines empties the user's active cart within the caller's transaction.
// Only a committing checkout calls this.
func (c *Conf) DeleteLines(ctx context.Context, tx *sql.Tx, userID string) error {
	query := `
		DELETE FROM cart_items ci
		USING cart c
		WHERE ci.cart_id = c.id AND c.user_id = $1 AND c.status = 'active'
	`
	if _, err := tx.ExecContext(ctx, query, userID); err != nil {
		return fmt.Errorf("failed to clear cart: %w", err)
	}
	return nil
}

// activeCartForUpdate finds the user's active cart and locks it, creating it
// when create is set and none exists.
func activeCartForUpdate(ctx context.Context, tx *sql.Tx, userID string, create bool) (int64, error) {
	queryActiveCart := `
		SELECT id
		FROM cart
		WHERE user_id = $1 AND status = 'active'
		FOR UPDATE
	`
	var cartID int64
	err := tx.QueryRowContext(ctx, queryActiveCart, userID).Scan(&cartID)
	if err == nil {
		return cartID, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("failed to query active cart: %w", err)
	}
	if !create {
		return 0, ErrLineNotFound
	}

	queryCreateCart := `
		INSERT INTO cart (user_id, status, created_at, updated_at)
		VALUES ($1, 'active', NOW(), NOW())
		RETURNING id
	`
	if err := tx.QueryRowContext(ctx, queryCreateCart, userID).Scan(&cartID); err != nil {
		return 0, fmt.Errorf("failed to create new cart: %w", err)
	}
	return cartID, nil
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
