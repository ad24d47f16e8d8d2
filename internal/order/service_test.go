package order_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vitrine_back_end/internal/apperr"
	"vitrine_back_end/internal/cart"
	"vitrine_back_end/internal/inventory"
	"vitrine_back_end/internal/models"
	"vitrine_back_end/internal/order"
	"vitrine_back_end/internal/store/memory"
)

var address = models.ShippingAddress{
	FullName:     "Ada Lovelace",
	AddressLine1: "12 St James's Square",
	City:         "London",
	PostalCode:   "SW1Y 4JH",
	Country:      "GB",
}

type changeRecorder struct {
	mu      sync.Mutex
	changes []cart.Change
}

func (r *changeRecorder) CartChanged(_ context.Context, ch cart.Change) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changes = append(r.changes, ch)
}

type fixture struct {
	store   *memory.Store
	carts   *cart.Manager
	orders  *order.Service
	changes *changeRecorder
}

func setup(t *testing.T) fixture {
	t.Helper()
	store := memory.New()
	store.PutProduct(models.Product{ID: "P1", Name: "Widget", PriceCents: 2999, ShippingCents: 599, Stock: 10, IsVisible: true})
	store.PutProduct(models.Product{ID: "P2", Name: "Gadget", PriceCents: 1000, Stock: 3, IsVisible: true})
	changes := &changeRecorder{}
	return fixture{
		store:   store,
		carts:   cart.NewManager(store.Carts(), store.Catalog(), nil),
		orders:  order.NewService(store.Orders(), store.Carts(), changes),
		changes: changes,
	}
}

func TestCreateFromCartNotifiesClearedCart(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.store.PutCart(models.Cart{ID: "C1", SessionID: "legacy-1", Items: []models.CartItem{{ID: "i1", ProductID: "P1", Quantity: 1}}})

	_, err := f.orders.CreateFromCart(ctx, order.BuildRequest{CartID: "legacy-1", ShippingAddress: address})
	require.NoError(t, err)
	assert.Equal(t, []cart.Change{{Type: cart.ChangeCleared, CartID: "C1"}}, f.changes.changes)

	_, err = f.orders.CreateFromCart(ctx, order.BuildRequest{CartID: "legacy-1", ShippingAddress: address})
	assert.True(t, apperr.Is(err, apperr.InvalidState))
	assert.Len(t, f.changes.changes, 1, "pas de notification sans commande")
}

func TestCreateFromCartFreezesPricesAndDeletesCart(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.carts.AddItem(ctx, "C1", "P1", 2)
	require.NoError(t, err)

	o, err := f.orders.CreateFromCart(ctx, order.BuildRequest{CartID: "C1", UserID: "u1", ShippingAddress: address})
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, o.Status)
	assert.Equal(t, int64(5998), o.SubtotalCents)
	assert.Equal(t, int64(1198), o.ShippingCents)
	assert.Equal(t, int64(7196), o.TotalCents)
	assert.Equal(t, "C1", o.CartID)
	assert.Equal(t, 8, f.store.Stock("P1"))

	_, err = f.carts.GetCart(ctx, "C1")
	assert.True(t, apperr.Is(err, apperr.NotFound), "le panier est supprimé avec la création")

	f.store.PutProduct(models.Product{ID: "P1", Name: "Widget", PriceCents: 9999, ShippingCents: 599, Stock: 8, IsVisible: true})
	got, err := f.orders.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2999), got.Items[0].PriceAtPurchaseCents)
	assert.Equal(t, int64(7196), got.TotalCents)
}

func TestCreateFromEmptyOrMissingCart(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.orders.CreateFromCart(ctx, order.BuildRequest{CartID: "nope", ShippingAddress: address})
	assert.True(t, apperr.Is(err, apperr.InvalidState))

	_, err = f.carts.AddItem(ctx, "C1", "P1", 1)
	require.NoError(t, err)
	_, err = f.carts.RemoveItem(ctx, "C1", "P1")
	require.NoError(t, err)

	_, err = f.orders.CreateFromCart(ctx, order.BuildRequest{CartID: "C1", ShippingAddress: address})
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.InvalidState))
	assert.Equal(t, "Cart is empty", apperr.MessageOf(err))
}

func TestCreateFromCartRequiresAddress(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	_, err := f.carts.AddItem(ctx, "C1", "P1", 1)
	require.NoError(t, err)

	_, err = f.orders.CreateFromCart(ctx, order.BuildRequest{CartID: "C1"})
	assert.True(t, apperr.Is(err, apperr.Invalid))
}

func TestCreateFromCartStockShortage(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.carts.AddItem(ctx, "C1", "P2", 3)
	require.NoError(t, err)
	_, err = f.store.Catalog().AdjustStock(ctx, "P2", -2)
	require.NoError(t, err)

	_, err = f.orders.CreateFromCart(ctx, order.BuildRequest{CartID: "C1", ShippingAddress: address})
	require.Error(t, err)
	var shortage *inventory.ShortageError
	assert.True(t, errors.As(err, &shortage))
	assert.Equal(t, 1, f.store.Stock("P2"))

	o, err := f.orders.CreateFromCart(ctx, order.BuildRequest{CartID: "C1", ShippingAddress: address, AllowOversell: true})
	require.NoError(t, err)
	assert.Equal(t, 3, o.Items[0].Quantity)
	assert.Equal(t, 0, f.store.Stock("P2"))
}

func TestCreateFromCartConsumesReservation(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.carts.AddItem(ctx, "C1", "P1", 2)
	require.NoError(t, err)
	require.NoError(t, f.store.Reservations().Reserve(ctx, "C1", []models.StockLine{{ProductID: "P1", Quantity: 2}}, timeIn(30)))
	assert.Equal(t, 8, f.store.Stock("P1"))

	o, err := f.orders.CreateFromCart(ctx, order.BuildRequest{CartID: "C1", ShippingAddress: address, PaymentSessionID: "cs_1"})
	require.NoError(t, err)
	assert.Equal(t, 8, f.store.Stock("P1"), "la réservation couvre déjà la commande")

	res := f.store.ReservationsFor("C1")
	require.Len(t, res, 1)
	assert.Equal(t, models.ReservationConsumed, res[0].Status)
	assert.Equal(t, o.ID, res[0].OrderID)
}

func TestDuplicatePaymentSessionIsConflict(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.carts.AddItem(ctx, "C1", "P1", 1)
	require.NoError(t, err)
	_, err = f.orders.CreateFromCart(ctx, order.BuildRequest{CartID: "C1", ShippingAddress: address, PaymentSessionID: "cs_1"})
	require.NoError(t, err)

	_, err = f.carts.AddItem(ctx, "C2", "P1", 1)
	require.NoError(t, err)
	_, err = f.orders.CreateFromCart(ctx, order.BuildRequest{CartID: "C2", ShippingAddress: address, PaymentSessionID: "cs_1"})
	assert.True(t, apperr.Is(err, apperr.Conflict))

	_, err = f.carts.GetCart(ctx, "C2")
	assert.NoError(t, err, "le panier survit à un conflit")
}

func TestUpdateStatusFollowsStateMachine(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.carts.AddItem(ctx, "C1", "P1", 1)
	require.NoError(t, err)
	o, err := f.orders.CreateFromCart(ctx, order.BuildRequest{CartID: "C1", ShippingAddress: address})
	require.NoError(t, err)

	_, err = f.orders.UpdateStatus(ctx, o.ID, models.StatusShipped)
	assert.True(t, apperr.Is(err, apperr.InvalidState))

	for _, s := range []models.OrderStatus{models.StatusPaymentReceived, models.StatusProcessing, models.StatusShipped, models.StatusDelivered} {
		o, err = f.orders.UpdateStatus(ctx, o.ID, s)
		require.NoError(t, err)
		assert.Equal(t, s, o.Status)
	}

	_, err = f.orders.UpdateStatus(ctx, o.ID, models.StatusCancelled)
	assert.True(t, apperr.Is(err, apperr.InvalidState))
	_, err = f.orders.UpdateStatus(ctx, o.ID, "Lost")
	assert.True(t, apperr.Is(err, apperr.Invalid))
	_, err = f.orders.UpdateStatus(ctx, "missing", models.StatusCancelled)
	assert.True(t, apperr.Is(err, apperr.NotFound))
}

func TestListings(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	for _, c := range []struct{ cart, user string }{{"C1", "u1"}, {"C2", "u2"}, {"C3", ""}} {
		_, err := f.carts.AddItem(ctx, c.cart, "P1", 1)
		require.NoError(t, err)
		_, err = f.orders.CreateFromCart(ctx, order.BuildRequest{CartID: c.cart, UserID: c.user, ShippingAddress: address, PaymentSessionID: "cs_" + c.cart})
		require.NoError(t, err)
	}

	mine, err := f.orders.ListForUser(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, "C1", mine[0].CartID)

	all, err := f.orders.ListAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	_, err = f.orders.ListForUser(ctx, "")
	assert.True(t, apperr.Is(err, apperr.Unauthenticated))

	byRef, err := f.orders.FindByPaymentRef(ctx, "cs_C3")
	require.NoError(t, err)
	assert.True(t, byRef.IsAnonymous())

	byCart, err := f.orders.FindByCart(ctx, "C2")
	require.NoError(t, err)
	assert.Equal(t, "u2", byCart.UserID)
}

func timeIn(minutes int) time.Time {
	return time.Now().Add(time.Duration(minutes) * time.Minute)
}
