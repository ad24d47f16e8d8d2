package inventory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vitrine_back_end/internal/apperr"
	"vitrine_back_end/internal/database"
	"vitrine_back_end/internal/models"
)

type recordingInvalidator struct{ ids []string }

func (r *recordingInvalidator) Invalidate(_ context.Context, ids ...string) {
	r.ids = append(r.ids, ids...)
}

func newMock(t *testing.T) pgxmock.PgxPoolIface {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return mock
}

func TestReserveDecrementsAndRecords(t *testing.T) {
	mock := newMock(t)
	inv := &recordingInvalidator{}
	res := NewPostgresReservations(mock, inv)
	expires := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery("UPDATE stock_reservations").
		WithArgs("C1").
		WillReturnRows(mock.NewRows([]string{"product_id", "quantity"}))
	mock.ExpectQuery("SELECT stock FROM products").WithArgs("P1").
		WillReturnRows(mock.NewRows([]string{"stock"}).AddRow(10))
	mock.ExpectExec("UPDATE products SET stock = stock - ").
		WithArgs("P1", 3, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("INSERT INTO stock_reservations").
		WithArgs(pgxmock.AnyArg(), "C1", "P1", 3, expires, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	err := res.Reserve(context.Background(), "C1", []models.StockLine{
		{ProductID: "P1", Quantity: 2},
		{ProductID: "P1", Quantity: 1},
	}, expires)
	require.NoError(t, err)
	assert.Equal(t, []string{"P1"}, inv.ids)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReserveShortageRollsBack(t *testing.T) {
	mock := newMock(t)
	res := NewPostgresReservations(mock, nil)

	mock.ExpectBegin()
	mock.ExpectQuery("UPDATE stock_reservations").
		WithArgs("C1").
		WillReturnRows(mock.NewRows([]string{"product_id", "quantity"}))
	mock.ExpectQuery("SELECT stock FROM products").WithArgs("P1").
		WillReturnRows(mock.NewRows([]string{"stock"}).AddRow(1))
	mock.ExpectRollback()

	err := res.Reserve(context.Background(), "C1", []models.StockLine{{ProductID: "P1", Quantity: 2}}, time.Now())
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.InvalidState))

	var shortage *ShortageError
	require.True(t, errors.As(err, &shortage))
	assert.Equal(t, []models.StockShortage{{ProductID: "P1", Requested: 2, Available: 1}}, shortage.Shortages)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReleaseRestoresStock(t *testing.T) {
	mock := newMock(t)
	inv := &recordingInvalidator{}
	res := NewPostgresReservations(mock, inv)

	mock.ExpectBegin()
	mock.ExpectQuery("UPDATE stock_reservations").
		WithArgs("C1").
		WillReturnRows(mock.NewRows([]string{"product_id", "quantity"}).AddRow("P2", 1).AddRow("P1", 2))
	mock.ExpectExec("UPDATE products SET stock = stock \\+").
		WithArgs("P1", 2).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("UPDATE products SET stock = stock \\+").
		WithArgs("P2", 1).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	n, err := res.Release(context.Background(), "C1", "")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"P1", "P2"}, inv.ids)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReleaseScopedToSession(t *testing.T) {
	mock := newMock(t)
	res := NewPostgresReservations(mock, nil)

	mock.ExpectBegin()
	mock.ExpectQuery("UPDATE stock_reservations (.+) WHERE cart_id = \\$1 AND payment_session_id = \\$2").
		WithArgs("C1", "cs_1").
		WillReturnRows(mock.NewRows([]string{"product_id", "quantity"}))
	mock.ExpectCommit()

	n, err := res.Release(context.Background(), "C1", "cs_1")
	require.NoError(t, err)
	assert.Zero(t, n, "la session cs_1 a été remplacée, rien à libérer")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAttachSessionTagsUnassignedRows(t *testing.T) {
	mock := newMock(t)
	res := NewPostgresReservations(mock, nil)

	mock.ExpectExec("UPDATE stock_reservations (.+) payment_session_id IS NULL").
		WithArgs("C1", "cs_2").
		WillReturnResult(pgxmock.NewResult("UPDATE", 2))

	require.NoError(t, res.AttachSession(context.Background(), "C1", "cs_2"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func consume(mock pgxmock.PgxPoolIface, lines []models.StockLine, allowOversell bool) ([]models.StockShortage, error) {
	var shortages []models.StockShortage
	err := database.WithTx(context.Background(), mock, func(tx pgx.Tx) error {
		var err error
		shortages, err = ConsumeWithTx(context.Background(), tx, "C1", "O1", lines, allowOversell)
		return err
	})
	return shortages, err
}

func TestConsumeReservedUnreservedAndRemovedLines(t *testing.T) {
	mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectQuery("UPDATE stock_reservations\\s+SET status = 'CONSUMED'").
		WithArgs("C1", "O1").
		WillReturnRows(mock.NewRows([]string{"product_id", "quantity"}).
			AddRow("P1", 4).AddRow("P2", 1).AddRow("P3", 2))
	// P1 : réservé 4, commandé 3, l'excédent revient au stock.
	mock.ExpectExec("UPDATE products SET stock = stock \\+").
		WithArgs("P1", 1).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	// P2 : réservé 1, commandé 2, le reste est pris sous verrou.
	mock.ExpectQuery("SELECT stock FROM products WHERE id = \\$1 FOR UPDATE").
		WithArgs("P2").
		WillReturnRows(mock.NewRows([]string{"stock"}).AddRow(5))
	mock.ExpectExec("UPDATE products SET stock = stock \\+").
		WithArgs("P2", -1).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	// P3 : retiré du panier depuis la réservation.
	mock.ExpectExec("UPDATE products SET stock = stock \\+").
		WithArgs("P3", 2).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	shortages, err := consume(mock, []models.StockLine{
		{ProductID: "P1", Quantity: 3},
		{ProductID: "P2", Quantity: 2},
	}, false)
	require.NoError(t, err)
	assert.Empty(t, shortages)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConsumeShortage(t *testing.T) {
	expectShortage := func(mock pgxmock.PgxPoolIface) {
		mock.ExpectBegin()
		mock.ExpectQuery("UPDATE stock_reservations\\s+SET status = 'CONSUMED'").
			WithArgs("C1", "O1").
			WillReturnRows(mock.NewRows([]string{"product_id", "quantity"}))
		mock.ExpectQuery("SELECT stock FROM products").
			WithArgs("P1").
			WillReturnRows(mock.NewRows([]string{"stock"}).AddRow(1))
		mock.ExpectExec("UPDATE products SET stock = stock \\+").
			WithArgs("P1", -1).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	}
	lines := []models.StockLine{{ProductID: "P1", Quantity: 3}}
	want := []models.StockShortage{{ProductID: "P1", Requested: 3, Available: 1}}

	t.Run("oversell autorisé", func(t *testing.T) {
		mock := newMock(t)
		expectShortage(mock)
		mock.ExpectCommit()

		shortages, err := consume(mock, lines, true)
		require.NoError(t, err)
		assert.Equal(t, want, shortages)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("oversell refusé", func(t *testing.T) {
		mock := newMock(t)
		expectShortage(mock)
		mock.ExpectRollback()

		shortages, err := consume(mock, lines, false)
		assert.True(t, apperr.Is(err, apperr.InvalidState))
		assert.Equal(t, want, shortages)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestConsumeFailureRollsBack(t *testing.T) {
	mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectQuery("UPDATE stock_reservations\\s+SET status = 'CONSUMED'").
		WithArgs("C1", "O1").
		WillReturnRows(mock.NewRows([]string{"product_id", "quantity"}).AddRow("P1", 1).AddRow("P9", 2))
	mock.ExpectExec("UPDATE products SET stock = stock \\+").
		WithArgs("P9", 2).
		WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	_, err := consume(mock, []models.StockLine{{ProductID: "P1", Quantity: 1}}, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mise à jour stock P9")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMergeLinesSortsAndDropsEmpty(t *testing.T) {
	got := mergeLines([]models.StockLine{
		{ProductID: "b", Quantity: 1},
		{ProductID: "a", Quantity: 2},
		{ProductID: "b", Quantity: 2},
		{ProductID: "c", Quantity: 0},
	})
	assert.Equal(t, []models.StockLine{{ProductID: "a", Quantity: 2}, {ProductID: "b", Quantity: 3}}, got)
}
