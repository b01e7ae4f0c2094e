package cart

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/aura-storefront/internal/guestcart"
	"github.com/example/aura-storefront/internal/models"
	"github.com/example/aura-storefront/internal/services"
	"github.com/example/aura-storefront/internal/storage"
)

type fakeCartAPI struct {
	mu        sync.Mutex
	cart      services.ServerCart
	gets      atomic.Int32
	getDelay  time.Duration
	updateErr error
	removeErr error
	addErr    map[string]error
	added     []services.AddCartItemRequest
	tokens    []string
}

func (f *fakeCartAPI) Get(ctx context.Context, token string) (*services.ServerCart, error) {
	f.gets.Add(1)
	if f.getDelay > 0 {
		time.Sleep(f.getDelay)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tokens = append(f.tokens, token)
	c := cloneCart(&f.cart)
	return c, nil
}

func (f *fakeCartAPI) AddItem(_ context.Context, _ string, req services.AddCartItemRequest) (*services.ServerCart, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.addErr[req.ProductID]; err != nil {
		return nil, err
	}
	f.added = append(f.added, req)
	f.cart.Items = append(f.cart.Items, services.ServerCartItem{
		ID:       "line-" + req.ProductID,
		Product:  models.ProductSnapshot{ID: req.ProductID, Price: 100},
		Quantity: req.Quantity,
	})
	recomputeTotals(&f.cart)
	return cloneCart(&f.cart), nil
}

func (f *fakeCartAPI) UpdateItem(_ context.Context, _ string, itemID string, quantity int) (*services.ServerCart, error) {
	if f.updateErr != nil {
		return nil, f.updateErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.cart.Items {
		if f.cart.Items[i].ID == itemID {
			f.cart.Items[i].Quantity = quantity
		}
	}
	recomputeTotals(&f.cart)
	return cloneCart(&f.cart), nil
}

func (f *fakeCartAPI) RemoveItem(_ context.Context, _ string, itemID string) (*services.ServerCart, error) {
	if f.removeErr != nil {
		return nil, f.removeErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	kept := f.cart.Items[:0]
	for _, item := range f.cart.Items {
		if item.ID != itemID {
			kept = append(kept, item)
		}
	}
	f.cart.Items = kept
	recomputeTotals(&f.cart)
	return cloneCart(&f.cart), nil
}

func (f *fakeCartAPI) Clear(context.Context, string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cart = services.ServerCart{}
	return nil
}

func seededAPI() *fakeCartAPI {
	api := &fakeCartAPI{cart: services.ServerCart{
		Items: []services.ServerCartItem{
			{ID: "line-1", Product: models.ProductSnapshot{ID: "p1", Name: "Sofa", Price: 1000}, Quantity: 2},
			{ID: "line-2", Product: models.ProductSnapshot{ID: "p2", Name: "Lamp", Price: 900}, Price: 250, Quantity: 1},
		},
	}}
	recomputeTotals(&api.cart)
	return api
}

func TestBackendsSatisfyInterface(t *testing.T) {
	var _ Backend = (*GuestBackend)(nil)
	var _ Backend = (*ServerBackend)(nil)
	var _ CartAPI = (*services.CartService)(nil)
}

func TestGuestBackend(t *testing.T) {
	ctx := context.Background()
	store := guestcart.Open(ctx, storage.NewMemoryStorage(0), "v1")
	b := NewGuestBackend(store)
	assert.Equal(t, KindGuest, b.Kind())

	require.NoError(t, b.AddItem(ctx, models.ProductSnapshot{ID: "p1", Price: 1000}, 2, nil))
	lines, err := b.Lines(ctx)
	require.NoError(t, err)
	require.Len(t, lines, 1)

	require.NoError(t, b.UpdateQuantity(ctx, lines[0].ID, 5))
	totals, err := b.Totals(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.CartTotals{ItemCount: 5, Subtotal: 5000}, totals)

	require.NoError(t, b.RemoveItem(ctx, lines[0].ID))
	lines, _ = b.Lines(ctx)
	assert.Empty(t, lines)
}

func TestServerBackend_LinesUseLinePrice(t *testing.T) {
	b := NewServerBackend(seededAPI(), "tok")

	lines, err := b.Lines(context.Background())
	require.NoError(t, err)
	require.Len(t, lines, 2)
	assert.Equal(t, 1000.0, lines[0].Product.Price)
	assert.Equal(t, 250.0, lines[1].Product.Price)

	totals, err := b.Totals(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.CartTotals{ItemCount: 3, Subtotal: 2250}, totals)
}

func TestServerBackend_CachesUntilMutation(t *testing.T) {
	api := seededAPI()
	b := NewServerBackend(api, "tok")
	ctx := context.Background()

	_, _ = b.Lines(ctx)
	_, _ = b.Totals(ctx)
	assert.Equal(t, int32(1), api.gets.Load())

	require.NoError(t, b.UpdateQuantity(ctx, "line-1", 4))
	totals, err := b.Totals(ctx)
	require.NoError(t, err)
	assert.Equal(t, int32(2), api.gets.Load())
	assert.Equal(t, 5, totals.ItemCount)
}

func TestServerBackend_ConcurrentReadsShareOneFetch(t *testing.T) {
	api := seededAPI()
	api.getDelay = 50 * time.Millisecond
	b := NewServerBackend(api, "tok")

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := b.Lines(context.Background())
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), api.gets.Load())
}

func TestServerBackend_RollsBackFailedUpdate(t *testing.T) {
	api := seededAPI()
	api.updateErr = &services.APIError{Status: 409, Message: "Only 2 left in stock"}
	b := NewServerBackend(api, "tok")
	ctx := context.Background()

	before, err := b.Lines(ctx)
	require.NoError(t, err)

	err = b.UpdateQuantity(ctx, "line-1", 9)
	var apiErr *services.APIError
	require.ErrorAs(t, err, &apiErr)

	after, err := b.Lines(ctx)
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.Equal(t, int32(1), api.gets.Load())
}

func TestServerBackend_RollsBackFailedRemove(t *testing.T) {
	api := seededAPI()
	api.removeErr = errors.New("boom")
	b := NewServerBackend(api, "tok")
	ctx := context.Background()

	_, _ = b.Lines(ctx)
	require.Error(t, b.RemoveItem(ctx, "line-2"))

	lines, err := b.Lines(ctx)
	require.NoError(t, err)
	assert.Len(t, lines, 2)
}

func TestServerBackend_ZeroQuantityRemoves(t *testing.T) {
	api := seededAPI()
	b := NewServerBackend(api, "tok")
	ctx := context.Background()

	require.NoError(t, b.UpdateQuantity(ctx, "line-1", 0))

	lines, err := b.Lines(ctx)
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Equal(t, "line-2", lines[0].ID)
}

func TestServerBackend_AddAndClear(t *testing.T) {
	api := seededAPI()
	b := NewServerBackend(api, "tok")
	ctx := context.Background()

	require.NoError(t, b.AddItem(ctx, models.ProductSnapshot{ID: "p3"}, 0, nil))
	lines, err := b.Lines(ctx)
	require.NoError(t, err)
	assert.Len(t, lines, 3)
	assert.Equal(t, 1, lines[2].Quantity)

	require.NoError(t, b.Clear(ctx))
	lines, err = b.Lines(ctx)
	require.NoError(t, err)
	assert.Empty(t, lines)
}

func TestServerBackend_SetTokenInvalidates(t *testing.T) {
	api := seededAPI()
	b := NewServerBackend(api, "old")
	ctx := context.Background()

	_, _ = b.Lines(ctx)
	b.SetToken("new")
	_, _ = b.Lines(ctx)

	assert.Equal(t, []string{"old", "new"}, api.tokens)
}

func TestServerBackend_SharedFetchSurvivesLeaderCancel(t *testing.T) {
	api := seededAPI()
	api.getDelay = 50 * time.Millisecond
	b := NewServerBackend(api, "tok")

	leaderCtx, cancel := context.WithCancel(context.Background())
	leaderDone := make(chan struct{})
	go func() {
		defer close(leaderDone)
		_, _ = b.Lines(leaderCtx)
	}()
	require.Eventually(t, func() bool { return api.gets.Load() == 1 }, time.Second, time.Millisecond)
	cancel()

	lines, err := b.Lines(context.Background())
	require.NoError(t, err)
	assert.Len(t, lines, 2)
	<-leaderDone
}

func guestWith(t *testing.T, lines ...models.CartItem) *guestcart.Store {
	t.Helper()
	ctx := context.Background()
	store := guestcart.Open(ctx, storage.NewMemoryStorage(0), "v-merge")
	for _, l := range lines {
		store.AddItem(ctx, l.Product, l.Quantity, l.Variant)
	}
	return store
}

func TestReconcile_MovesGuestLinesToServer(t *testing.T) {
	ctx := context.Background()
	api := &fakeCartAPI{}
	server := NewServerBackend(api, "tok")
	guest := guestWith(t,
		models.CartItem{Product: models.ProductSnapshot{ID: "p1"}, Quantity: 2, Variant: models.Variant{"color": "sand"}},
		models.CartItem{Product: models.ProductSnapshot{ID: "p1"}, Quantity: 1, Variant: models.Variant{"color": "ink"}},
		models.CartItem{Product: models.ProductSnapshot{ID: "p2"}, Quantity: 3},
	)

	merged, err := Reconcile(ctx, guest, server)
	require.NoError(t, err)

	assert.Equal(t, 3, merged)
	assert.Empty(t, guest.Items())
	require.Len(t, api.added, 3)
	assert.Equal(t, services.AddCartItemRequest{ProductID: "p1", Quantity: 2, Variant: models.Variant{"color": "sand"}}, api.added[0])
	assert.Equal(t, models.Variant{"color": "ink"}, api.added[1].Variant)
	assert.Equal(t, 3, api.added[2].Quantity)
}

func TestReconcile_PartialFailureKeepsUnmergedLines(t *testing.T) {
	ctx := context.Background()
	api := &fakeCartAPI{addErr: map[string]error{"p2": errors.New("out of stock")}}
	server := NewServerBackend(api, "tok")
	guest := guestWith(t,
		models.CartItem{Product: models.ProductSnapshot{ID: "p1"}, Quantity: 1},
		models.CartItem{Product: models.ProductSnapshot{ID: "p2"}, Quantity: 4},
	)

	merged, err := Reconcile(ctx, guest, server)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "out of stock")
	assert.Equal(t, 1, merged)

	left := guest.Items()
	require.Len(t, left, 1)
	assert.Equal(t, "p2", left[0].Product.ID)
	assert.Equal(t, 4, left[0].Quantity)

	api.addErr = nil
	merged, err = Reconcile(ctx, guest, server)
	require.NoError(t, err)
	assert.Equal(t, 1, merged)
	assert.Empty(t, guest.Items())
	require.Len(t, api.added, 2, "the line merged first is not added again")
}

func TestReconcile_EmptyGuestCartIsNoop(t *testing.T) {
	api := &fakeCartAPI{}
	merged, err := Reconcile(context.Background(), guestWith(t), NewServerBackend(api, "tok"))
	require.NoError(t, err)
	assert.Zero(t, merged)
	assert.Empty(t, api.added)
}
