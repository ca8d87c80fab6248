package orders

import (
	"context"
	"database/sql"
	"testing"

	"checkout-service/internal/products"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMock(t *testing.T) (sqlmock.Sqlmock, Conf) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	pconf, err := products.NewConf(db)
	require.NoError(t, err)
	conf, err := NewConf(db, &pconf)
	require.NoError(t, err)
	return mock, conf
}

func TestUpdateStatus_AllowedTransition(t *testing.T) {
	mock, conf := newMock(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT status\s+FROM orders`).
		WithArgs("o1").
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("pending"))
	mock.ExpectExec(`UPDATE orders\s+SET status`).
		WithArgs(StatusProcessing, "o1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := conf.UpdateStatus(context.Background(), "o1", StatusProcessing)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateStatus_InvalidTransition(t *testing.T) {
	mock, conf := newMock(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT status\s+FROM orders`).
		WithArgs("o1").
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("delivered"))
	mock.ExpectRollback()

	err := conf.UpdateStatus(context.Background(), "o1", StatusPending)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateStatus_UnknownStatus(t *testing.T) {
	_, conf := newMock(t)

	err := conf.UpdateStatus(context.Background(), "o1", Status("paid"))
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestUpdateStatus_OrderNotFound(t *testing.T) {
	mock, conf := newMock(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT status\s+FROM orders`).
		WithArgs("ghost").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	err := conf.UpdateStatus(context.Background(), "ghost", StatusProcessing)
	assert.ErrorIs(t, err, ErrOrderNotFound)
}

func TestUpdateStatus_CancellationRestoresStock(t *testing.T) {
	// Cancelling is not free: every line's quantity goes back to the
	// inventory within the same transaction.
	mock, conf := newMock(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT status\s+FROM orders`).
		WithArgs("o1").
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("pending"))
	mock.ExpectExec(`UPDATE orders\s+SET status`).
		WithArgs(StatusCancelled, "o1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`SELECT product_id, quantity\s+FROM order_items`).
		WithArgs("o1").
		WillReturnRows(sqlmock.NewRows([]string{"product_id", "quantity"}).
			AddRow("p1", 2).
			AddRow("p2", 1))
	mock.ExpectExec(`UPDATE products\s+SET stock = stock \+`).
		WithArgs("p1", 2).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE products\s+SET stock = stock \+`).
		WithArgs("p2", 1).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := conf.UpdateStatus(context.Background(), "o1", StatusCancelled)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateOrder_InsertsHeaderAndItems(t *testing.T) {
	mock, conf := newMock(t)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO orders`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO order_items`).
		WithArgs("o1", "p1", "Protein Powder", 2, int64(1000), int64(2000)).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	tx, err := confDB(t, conf).Begin()
	require.NoError(t, err)

	order := Order{
		ID: "o1", UserID: "u1", ShippingAddress: "1 Main St", PaymentMethod: "card",
		Subtotal: 2000, Shipping: 599, Tax: 160, Total: 2759, Status: StatusPending,
		Items: []OrderItem{{ProductID: "p1", Name: "Protein Powder", Quantity: 2, UnitPrice: 1000, LineTotal: 2000}},
	}
	err = conf.CreateOrder(context.Background(), tx, order)
	require.NoError(t, err)
	require.NoError(t, tx.Commit())
	assert.NoError(t, mock.ExpectationsWereMet())
}

// confDB exposes the wrapped *sql.DB for tests that drive the transaction
// themselves.
func confDB(t *testing.T, c Conf) *sql.DB {
	t.Helper()
	return c.db
}
