package order

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vitrine_back_end/internal/apperr"
	"vitrine_back_end/internal/models"
)

func newMockRepo(t *testing.T) (*PostgresRepository, pgxmock.PgxPoolIface) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return NewPostgresRepository(mock, nil), mock
}

func TestUpdateStatusCompareAndSet(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectExec("UPDATE orders SET status").
		WithArgs("o1", "Pending", "PaymentReceived", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	_, err := repo.UpdateStatus(context.Background(), "o1", models.StatusPending, models.StatusPaymentReceived, time.Now())
	assert.True(t, apperr.Is(err, apperr.Conflict))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindByPaymentRefMissing(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectQuery("SELECT (.+) FROM orders WHERE payment_session_id").
		WithArgs("cs_missing").
		WillReturnError(pgx.ErrNoRows)

	_, err := repo.FindByPaymentRef(context.Background(), "cs_missing")
	assert.True(t, apperr.Is(err, apperr.NotFound))

	_, err = repo.FindByPaymentRef(context.Background(), "")
	assert.True(t, apperr.Is(err, apperr.NotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateFromCartMissingCartIsInvalidState(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT (.+) FROM carts WHERE id").
		WithArgs("C1").
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectRollback()

	_, err := repo.CreateFromCart(context.Background(), BuildRequest{CartID: "C1"}, func(*models.Cart) (*models.Order, error) {
		t.Fatal("build ne doit pas être appelé")
		return nil, nil
	})
	assert.True(t, apperr.Is(err, apperr.InvalidState))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateFromCartUniqueViolationIsConflict(t *testing.T) {
	repo, mock := newMockRepo(t)
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT (.+) FROM carts WHERE id").
		WithArgs("C1").
		WillReturnRows(mock.NewRows([]string{"id", "session_id", "payment_session_id", "payment_intent_id", "client_secret", "version", "created_at", "updated_at"}).
			AddRow("C1", "", "cs_1", "", "", int64(2), now, now))
	mock.ExpectQuery("SELECT ci.id").
		WithArgs("C1").
		WillReturnRows(mock.NewRows([]string{"id", "product_id", "quantity", "name", "image_key", "price_cents", "shipping_price_cents", "stock"}).
			AddRow("i1", "P1", 2, "Widget", "", int64(2999), int64(599), 10))
	mock.ExpectExec("INSERT INTO orders").
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "orders_payment_session_id_key"})
	mock.ExpectRollback()

	_, err := repo.CreateFromCart(context.Background(), BuildRequest{CartID: "C1", PaymentSessionID: "cs_1"}, func(c *models.Cart) (*models.Order, error) {
		return NewBuilder().Build(c, BuildRequest{PaymentSessionID: "cs_1"})
	})
	assert.True(t, apperr.Is(err, apperr.Conflict))
	assert.NoError(t, mock.ExpectationsWereMet())
}

type recordingInvalidator struct{ ids []string }

func (r *recordingInvalidator) Invalidate(_ context.Context, ids ...string) {
	r.ids = append(r.ids, ids...)
}

// expectCartToOrder attend la lecture verrouillée du panier C1 (P1×2, réservé) puis l'écriture de la commande.
func expectCartToOrder(mock pgxmock.PgxPoolIface) {
	now := time.Now()
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT (.+) FROM carts WHERE id = \\$1 FOR UPDATE").
		WithArgs("C1").
		WillReturnRows(mock.NewRows([]string{"id", "session_id", "payment_session_id", "payment_intent_id", "client_secret", "version", "created_at", "updated_at"}).
			AddRow("C1", "", "cs_1", "", "", int64(2), now, now))
	mock.ExpectQuery("SELECT ci.id").
		WithArgs("C1").
		WillReturnRows(mock.NewRows([]string{"id", "product_id", "quantity", "name", "image_key", "price_cents", "shipping_price_cents", "stock"}).
			AddRow("i1", "P1", 2, "Widget", "", int64(2999), int64(599), 8))
	mock.ExpectExec("INSERT INTO orders").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO order_items").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), "P1", "Widget", 2, int64(2999), int64(599)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectQuery("UPDATE stock_reservations\\s+SET status = 'CONSUMED'").
		WithArgs("C1", pgxmock.AnyArg()).
		WillReturnRows(mock.NewRows([]string{"product_id", "quantity"}).AddRow("P1", 2))
}

func buildFromCart(c *models.Cart) (*models.Order, error) {
	return NewBuilder().Build(c, BuildRequest{PaymentSessionID: "cs_1"})
}

func TestCreateFromCartSingleTransaction(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	inv := &recordingInvalidator{}
	repo := NewPostgresRepository(mock, inv)

	expectCartToOrder(mock)
	mock.ExpectExec("DELETE FROM carts WHERE id").
		WithArgs("C1").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectCommit()

	o, err := repo.CreateFromCart(context.Background(), BuildRequest{CartID: "C1", PaymentSessionID: "cs_1"}, buildFromCart)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, o.Status)
	assert.Equal(t, "C1", o.CartID)
	assert.Equal(t, int64(2*2999+2*599), o.TotalCents)
	assert.Equal(t, []string{"P1"}, inv.ids)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateFromCartLateFailureRollsBack(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	inv := &recordingInvalidator{}
	repo := NewPostgresRepository(mock, inv)

	expectCartToOrder(mock)
	mock.ExpectExec("DELETE FROM carts WHERE id").
		WithArgs("C1").
		WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	_, err = repo.CreateFromCart(context.Background(), BuildRequest{CartID: "C1", PaymentSessionID: "cs_1"}, buildFromCart)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "suppression panier C1")
	assert.Empty(t, inv.ids, "aucune invalidation sans commit")
	assert.NoError(t, mock.ExpectationsWereMet())
}
