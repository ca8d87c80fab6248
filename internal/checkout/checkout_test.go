package checkout

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"checkout-service/internal/cart"
	"checkout-service/internal/orders"
	"checkout-service/internal/products"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockInventory keeps authoritative stock for DecrementStock; CheckAvailable
// can be fed stale values to model the advisory read lagging the writes.
type mockInventory struct {
	mu             sync.Mutex
	stock          map[string]int
	staleAvailable map[string]int
	decrements     int
}

func (m *mockInventory) CheckAvailable(_ context.Context, productID string, quantity int) (int, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	available, ok := m.staleAvailable[productID]
	if !ok {
		available = m.stock[productID]
	}
	return available, available >= quantity, nil
}

func (m *mockInventory) DecrementStock(_ context.Context, _ *sql.Tx, productID string, quantity int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.decrements++
	if m.stock[productID] < quantity {
		return fmt.Errorf("product %s: %w", productID, products.ErrInsufficientStock)
	}
	m.stock[productID] -= quantity
	return nil
}

func (m *mockInventory) snapshot() map[string]int {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]int, len(m.stock))
	for k, v := range m.stock {
		out[k] = v
	}
	return out
}

func (m *mockInventory) restore(snap map[string]int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stock = snap
}

type mockCarts struct {
	lines      []cart.CartLine
	linesErr   error
	linesCalls int
	cleared    bool
}

func (m *mockCarts) Lines(_ context.Context, _ string) ([]cart.CartLine, error) {
	m.linesCalls++
	if m.linesErr != nil {
		return nil, m.linesErr
	}
	return m.lines, nil
}

func (m *mockCarts) DeleteLines(_ context.Context, _ *sql.Tx, _ string) error {
	m.cleared = true
	m.lines = nil
	return nil
}

type mockOrders struct {
	created []orders.Order
	err     error
}

func (m *mockOrders) CreateOrder(_ context.Context, _ *sql.Tx, o orders.Order) error {
	if m.err != nil {
		return m.err
	}
	m.created = append(m.created, o)
	return nil
}

// fakeTxRunner simulates transactional semantics over the mocks: on error it
// restores the inventory snapshot taken at begin, as a rollback would.
type fakeTxRunner struct {
	inv       *mockInventory
	commits   int
	rollbacks int
}

func (f *fakeTxRunner) WithinTx(_ context.Context, fn func(*sql.Tx) error) error {
	snap := f.inv.snapshot()
	if err := fn(nil); err != nil {
		f.inv.restore(snap)
		f.rollbacks++
		return err
	}
	f.commits++
	return nil
}

type failingPayments struct{}

func (failingPayments) Authorize(_ context.Context, _ string, _ int64) (string, error) {
	return "", errors.New("payment declined")
}

func testPolicy() PricingPolicy {
	return PricingPolicy{ShippingFee: 599, TaxRateBasisPoints: 800}
}

func newTestOrchestrator(t *testing.T, carts CartStore, inv *mockInventory, ord *mockOrders,
	payments PaymentAuthorizer) (*Orchestrator, *fakeTxRunner) {
	t.Helper()
	txr := &fakeTxRunner{inv: inv}
	o, err := NewOrchestrator(txr, carts, inv, ord, payments, testPolicy(),
		WithRetryPolicy(3, time.Millisecond))
	require.NoError(t, err)
	return o, txr
}

func TestCheckout_CommitsOrderAndClearsCart(t *testing.T) {
	carts := &mockCarts{lines: []cart.CartLine{
		{ID: 1, ProductID: "p1", Name: "Protein Powder", UnitPrice: 1000, Quantity: 2},
	}}
	inv := &mockInventory{stock: map[string]int{"p1": 5}}
	ord := &mockOrders{}
	o, txr := newTestOrchestrator(t, carts, inv, ord, AutoApprove{})

	res, err := o.Checkout(context.Background(), "user-1", Request{ShippingAddress: "1 Main St", PaymentMethod: "card"})

	require.NoError(t, err)
	assert.Equal(t, StateCommitted, res.State)
	assert.Equal(t, int64(2759), res.Total)
	assert.NotEmpty(t, res.OrderID)

	require.Len(t, ord.created, 1)
	created := ord.created[0]
	assert.Equal(t, int64(2000), created.Subtotal)
	assert.Equal(t, int64(599), created.Shipping)
	assert.Equal(t, int64(160), created.Tax)
	assert.Equal(t, int64(2759), created.Total)
	assert.Equal(t, orders.StatusPending, created.Status)
	require.Len(t, created.Items, 1)
	assert.Equal(t, int64(1000), created.Items[0].UnitPrice)
	assert.Equal(t, int64(2000), created.Items[0].LineTotal)
	assert.NotEmpty(t, created.PaymentRef)

	assert.True(t, carts.cleared)
	assert.Equal(t, 3, inv.stock["p1"])
	assert.Equal(t, 1, txr.commits)
	assert.Equal(t, 0, txr.rollbacks)
}

func TestCheckout_EmptyCartFailsFast(t *testing.T) {
	carts := &mockCarts{}
	inv := &mockInventory{stock: map[string]int{}}
	ord := &mockOrders{}
	o, txr := newTestOrchestrator(t, carts, inv, ord, AutoApprove{})

	res, err := o.Checkout(context.Background(), "user-1", Request{ShippingAddress: "1 Main St"})

	assert.ErrorIs(t, err, ErrEmptyCart)
	assert.Equal(t, StateRejected, res.State)
	assert.Empty(t, ord.created)
	assert.Equal(t, 0, txr.commits+txr.rollbacks)
}

func TestCheckout_MissingShippingInfo(t *testing.T) {
	carts := &mockCarts{lines: []cart.CartLine{{ProductID: "p1", UnitPrice: 100, Quantity: 1}}}
	inv := &mockInventory{stock: map[string]int{"p1": 1}}
	ord := &mockOrders{}
	o, txr := newTestOrchestrator(t, carts, inv, ord, AutoApprove{})

	_, err := o.Checkout(context.Background(), "user-1", Request{ShippingAddress: "   "})

	assert.ErrorIs(t, err, ErrMissingShippingInfo)
	assert.Equal(t, 0, carts.linesCalls)
	assert.Equal(t, 0, txr.commits+txr.rollbacks)
}

func TestCheckout_AdvisoryRejectionNamesProductAndAvailability(t *testing.T) {
	carts := &mockCarts{lines: []cart.CartLine{
		{ProductID: "q1", UnitPrice: 500, Quantity: 1},
	}}
	inv := &mockInventory{stock: map[string]int{"q1": 0}}
	ord := &mockOrders{}
	o, txr := newTestOrchestrator(t, carts, inv, ord, AutoApprove{})

	res, err := o.Checkout(context.Background(), "user-1", Request{ShippingAddress: "1 Main St"})

	var oos *OutOfStockError
	require.ErrorAs(t, err, &oos)
	require.Len(t, oos.Shortages, 1)
	assert.Equal(t, "q1", oos.Shortages[0].ProductID)
	assert.Equal(t, 1, oos.Shortages[0].Requested)
	assert.Equal(t, 0, oos.Shortages[0].Available)
	assert.Equal(t, StateRejected, res.State)
	assert.Equal(t, 0, txr.commits+txr.rollbacks)
	assert.Empty(t, ord.created)
}

func TestCheckout_LostRaceRetriesThenSurfacesOutOfStock(t *testing.T) {
	// The advisory read keeps reporting one unit while the authoritative
	// stock is already gone: every decrement loses, so the orchestrator
	// retries its bounded number of attempts and then gives up.
	carts := &mockCarts{lines: []cart.CartLine{
		{ProductID: "p1", UnitPrice: 1000, Quantity: 1},
	}}
	inv := &mockInventory{
		stock:          map[string]int{"p1": 0},
		staleAvailable: map[string]int{"p1": 1},
	}
	ord := &mockOrders{}
	o, txr := newTestOrchestrator(t, carts, inv, ord, AutoApprove{})

	res, err := o.Checkout(context.Background(), "user-1", Request{ShippingAddress: "1 Main St"})

	var oos *OutOfStockError
	require.ErrorAs(t, err, &oos)
	assert.Equal(t, "p1", oos.Shortages[0].ProductID)
	assert.Equal(t, StateRejected, res.State)
	assert.Equal(t, 3, inv.decrements)
	assert.Equal(t, 3, txr.rollbacks)
	assert.Equal(t, 0, txr.commits)
	assert.Empty(t, ord.created)
	assert.False(t, carts.cleared)
}

func TestCheckout_NoOversellAcrossTwoShoppers(t *testing.T) {
	inv := &mockInventory{stock: map[string]int{"p1": 1}}
	ord := &mockOrders{}

	cartsA := &mockCarts{lines: []cart.CartLine{{ProductID: "p1", UnitPrice: 1000, Quantity: 1}}}
	cartsB := &mockCarts{lines: []cart.CartLine{{ProductID: "p1", UnitPrice: 1000, Quantity: 1}}}

	oA, _ := newTestOrchestrator(t, cartsA, inv, ord, AutoApprove{})
	oB, _ := newTestOrchestrator(t, cartsB, inv, ord, AutoApprove{})

	resA, errA := oA.Checkout(context.Background(), "user-a", Request{ShippingAddress: "1 Main St"})
	_, errB := oB.Checkout(context.Background(), "user-b", Request{ShippingAddress: "2 Main St"})

	require.NoError(t, errA)
	assert.Equal(t, StateCommitted, resA.State)

	var oos *OutOfStockError
	require.ErrorAs(t, errB, &oos)

	assert.Len(t, ord.created, 1)
	assert.Equal(t, 0, inv.stock["p1"])
}

func TestCheckout_OrderWriteFailureRollsBackEverything(t *testing.T) {
	carts := &mockCarts{lines: []cart.CartLine{
		{ProductID: "p1", UnitPrice: 1000, Quantity: 2},
	}}
	inv := &mockInventory{stock: map[string]int{"p1": 5}}
	ord := &mockOrders{err: errors.New("order ledger unavailable")}
	o, txr := newTestOrchestrator(t, carts, inv, ord, AutoApprove{})

	res, err := o.Checkout(context.Background(), "user-1", Request{ShippingAddress: "1 Main St"})

	require.Error(t, err)
	assert.Equal(t, StateRolledBack, res.State)
	assert.Equal(t, 5, inv.stock["p1"], "rolled-back checkout must not consume stock")
	assert.False(t, carts.cleared)
	assert.Empty(t, ord.created)
	assert.Equal(t, 1, txr.rollbacks)
}

func TestCheckout_RetryAfterCommitFindsEmptyCart(t *testing.T) {
	carts := &mockCarts{lines: []cart.CartLine{
		{ProductID: "p1", UnitPrice: 1000, Quantity: 1},
	}}
	inv := &mockInventory{stock: map[string]int{"p1": 5}}
	ord := &mockOrders{}
	o, _ := newTestOrchestrator(t, carts, inv, ord, AutoApprove{})

	_, err := o.Checkout(context.Background(), "user-1", Request{ShippingAddress: "1 Main St"})
	require.NoError(t, err)

	_, err = o.Checkout(context.Background(), "user-1", Request{ShippingAddress: "1 Main St"})
	assert.ErrorIs(t, err, ErrEmptyCart)
	assert.Len(t, ord.created, 1, "a retried checkout must not create a duplicate order")
}

func TestCheckout_PaymentFailureLeavesNoWrites(t *testing.T) {
	carts := &mockCarts{lines: []cart.CartLine{
		{ProductID: "p1", UnitPrice: 1000, Quantity: 1},
	}}
	inv := &mockInventory{stock: map[string]int{"p1": 5}}
	ord := &mockOrders{}
	o, txr := newTestOrchestrator(t, carts, inv, ord, failingPayments{})

	res, err := o.Checkout(context.Background(), "user-1", Request{ShippingAddress: "1 Main St"})

	require.Error(t, err)
	assert.Equal(t, StateRejected, res.State)
	assert.Equal(t, 5, inv.stock["p1"])
	assert.Empty(t, ord.created)
	assert.Equal(t, 0, txr.commits+txr.rollbacks)
}
