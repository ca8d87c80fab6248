package checkout

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"checkout-service/internal/cart"
	"checkout-service/internal/orders"
	"checkout-service/internal/products"
	"checkout-service/pkg/logkey"
	"checkout-service/pkg/metrics"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sethvargo/go-retry"
)

// State of one checkout attempt. Committed, Rejected and RolledBack are
// terminal; Rejected means no writes happened, RolledBack means every write
// of the attempt was undone.
type State string

const (
	StateInitiated  State = "INITIATED"
	StateValidating State = "VALIDATING"
	StateReserving  State = "RESERVING"
	StateCommitted  State = "COMMITTED"
	StateRejected   State = "REJECTED"
	StateRolledBack State = "ROLLED_BACK"
)

type Request struct {
	ShippingAddress string
	PaymentMethod   string
}

type Result struct {
	OrderID string
	Total   int64
	State   State
}

type CartStore interface {
	Lines(ctx context.Context, userID string) ([]cart.CartLine, error)
	DeleteLines(ctx context.Context, tx *sql.Tx, userID string) error
}

type InventoryStore interface {
	CheckAvailable(ctx context.Context, productID string, quantity int) (int, bool, error)
	DecrementStock(ctx context.Context, tx *sql.Tx, productID string, quantity int) error
}

type OrderStore interface {
	CreateOrder(ctx context.Context, tx *sql.Tx, o orders.Order) error
}

// TxRunner owns the unit of work: everything the callback writes commits or
// rolls back together, under a bounded timeout.
type TxRunner interface {
	WithinTx(ctx context.Context, fn func(*sql.Tx) error) error
}

// EventPublisher emits post-commit notifications. Failures are logged, never
// surfaced; the order is already durable by then.
type EventPublisher interface {
	OrderPlaced(ctx context.Context, orderID, userID string, total int64) error
}

// Orchestrator drives a cart through validation, reservation and commit as
// one atomic unit against the shared relational store. It holds no state
// between calls.
type Orchestrator struct {
	txr       TxRunner
	carts     CartStore
	inventory InventoryStore
	orders    OrderStore
	payments  PaymentAuthorizer
	events    EventPublisher
	policy    PricingPolicy

	maxAttempts uint64
	retryDelay  time.Duration

	m *metrics.CheckoutMetrics
}

type OrchestratorOption func(*Orchestrator)

func WithEventPublisher(p EventPublisher) OrchestratorOption {
	return func(o *Orchestrator) { o.events = p }
}

func WithMetrics(m *metrics.CheckoutMetrics) OrchestratorOption {
	return func(o *Orchestrator) { o.m = m }
}

func WithRetryPolicy(maxAttempts uint64, delay time.Duration) OrchestratorOption {
	return func(o *Orchestrator) {
		if maxAttempts > 0 {
			o.maxAttempts = maxAttempts
		}
		o.retryDelay = delay
	}
}

func NewOrchestrator(txr TxRunner, carts CartStore, inventory InventoryStore,
	orderStore OrderStore, payments PaymentAuthorizer, policy PricingPolicy,
	opts ...OrchestratorOption) (*Orchestrator, error) {

	if txr == nil || carts == nil || inventory == nil || orderStore == nil || payments == nil {
		return nil, fmt.Errorf("orchestrator dependencies must not be nil")
	}
	o := &Orchestrator{
		txr:         txr,
		carts:       carts,
		inventory:   inventory,
		orders:      orderStore,
		payments:    payments,
		policy:      policy,
		maxAttempts: 3,
		retryDelay:  25 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// Checkout converts the user's cart into a durable order. Attempts that lose
// a stock race are retried internally; every other failure leaves cart,
// stock and order ledger exactly as they were.
//
// A retried call after a committed checkout finds an empty cart and fails
// fast with ErrEmptyCart, so no duplicate order can be created.
func (o *Orchestrator) Checkout(ctx context.Context, userID string, req Request) (Result, error) {
	if strings.TrimSpace(req.ShippingAddress) == "" {
		return Result{State: StateRejected}, ErrMissingShippingInfo
	}

	var res Result
	backoff := retry.WithMaxRetries(o.maxAttempts-1, retry.NewConstant(o.retryDelay))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attemptRes, err := o.attempt(ctx, userID, req)
		if err != nil {
			if errors.Is(err, ErrConflict) {
				if o.m != nil {
					o.m.ConflictRetries.Inc()
				}
				res = attemptRes
				return retry.RetryableError(err)
			}
			res = attemptRes
			return err
		}
		res = attemptRes
		return nil
	})
	if err != nil {
		var ce *conflictError
		if errors.As(err, &ce) {
			// Retries exhausted; report the product we kept losing on.
			err = &OutOfStockError{Shortages: []Shortage{ce.shortage}}
			res.State = StateRejected
		}
		o.count(res.State)
		return res, err
	}

	o.count(StateCommitted)
	if o.events != nil {
		if pubErr := o.events.OrderPlaced(ctx, res.OrderID, userID, res.Total); pubErr != nil {
			slog.Error("failed to publish order-placed event",
				slog.String(logkey.OrderID, res.OrderID), slog.String(logkey.ERROR, pubErr.Error()))
		}
	}
	return res, nil
}

func (o *Orchestrator) attempt(ctx context.Context, userID string, req Request) (Result, error) {
	// Validating: no writes happen in this phase.
	lines, err := o.carts.Lines(ctx, userID)
	if err != nil {
		return Result{State: StateValidating}, fmt.Errorf("failed to load cart: %w", err)
	}
	if len(lines) == 0 {
		return Result{State: StateRejected}, ErrEmptyCart
	}

	var shortages []Shortage
	for _, l := range lines {
		available, ok, err := o.inventory.CheckAvailable(ctx, l.ProductID, l.Quantity)
		if err != nil {
			return Result{State: StateValidating}, fmt.Errorf("failed to check stock: %w", err)
		}
		if !ok {
			shortages = append(shortages, Shortage{ProductID: l.ProductID, Requested: l.Quantity, Available: available})
		}
	}
	if len(shortages) > 0 {
		return Result{State: StateRejected}, &OutOfStockError{Shortages: shortages}
	}

	snap := ComputeSnapshot(lines, o.policy)

	paymentRef, err := o.payments.Authorize(ctx, userID, snap.Total)
	if err != nil {
		return Result{State: StateRejected}, fmt.Errorf("payment authorization failed: %w", err)
	}

	order := orders.Order{
		ID:              uuid.NewString(),
		UserID:          userID,
		ShippingAddress: req.ShippingAddress,
		PaymentMethod:   req.PaymentMethod,
		PaymentRef:      paymentRef,
		Subtotal:        snap.Subtotal,
		Shipping:        snap.Shipping,
		Tax:             snap.Tax,
		Total:           snap.Total,
		Status:          orders.StatusPending,
	}
	for _, l := range snap.Lines {
		order.Items = append(order.Items, orders.OrderItem{
			ProductID: l.ProductID,
			Name:      l.Name,
			Quantity:  l.Quantity,
			UnitPrice: l.UnitPrice,
			LineTotal: l.LineTotal,
		})
	}

	// Reserving: decrements, order write and cart clear share one unit of
	// work. Any failure below rolls back all of it.
	var lost *Shortage
	txErr := o.txr.WithinTx(ctx, func(tx *sql.Tx) error {
		for _, l := range snap.Lines {
			if err := o.inventory.DecrementStock(ctx, tx, l.ProductID, l.Quantity); err != nil {
				if errors.Is(err, products.ErrInsufficientStock) {
					lost = &Shortage{ProductID: l.ProductID, Requested: l.Quantity}
				}
				return err
			}
		}
		if err := o.orders.CreateOrder(ctx, tx, order); err != nil {
			return err
		}
		return o.carts.DeleteLines(ctx, tx, userID)
	})
	if txErr != nil {
		if lost != nil {
			// The advisory check passed but the write-time check did not:
			// another checkout won the race. Re-read to decide whether a
			// retry could still succeed.
			available, ok, checkErr := o.inventory.CheckAvailable(ctx, lost.ProductID, lost.Requested)
			lost.Available = available
			if checkErr == nil && ok {
				return Result{State: StateRolledBack}, &conflictError{shortage: *lost}
			}
			return Result{State: StateRejected}, &OutOfStockError{Shortages: []Shortage{*lost}}
		}
		if isSerializationFailure(txErr) {
			return Result{State: StateRolledBack}, fmt.Errorf("%w: %v", ErrConflict, txErr)
		}
		return Result{State: StateRolledBack}, fmt.Errorf("checkout transaction failed: %w", txErr)
	}

	return Result{OrderID: order.ID, Total: snap.Total, State: StateCommitted}, nil
}

func (o *Orchestrator) count(s State) {
	if o.m != nil {
		o.m.Outcomes.WithLabelValues(string(s)).Inc()
	}
}

// isSerializationFailure reports whether the error is a Postgres
// serialization failure or deadlock, both of which are safe to retry.
func isSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "40001" || pgErr.Code == "40P01"
	}
	return false
}
