package repositories

import (
	"group-cart/domain"
	"group-cart/errors"
	"sync"
	"testing"

	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
)

var banana = domain.Product{ID: "p1", Name: "Banana", Price: 1.5, ImageURL: "/img/banana.png", Description: "Yellow"}

func Test_Concurrent_Adds_Keep_Every_Item(t *testing.T) {
	req := require.New(t)
	store := newTestStore(t, nil)
	ctx := t.Context()
	n := 50

	// Given n writers adding the same product at once
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.AddCartItem(ctx, domain.NewCartItem("g1", banana, "u1"))
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		req.NoError(err)
	}

	// Then the cart holds exactly n distinct rows in id order
	cart, err := store.GetCart(ctx, "g1")
	req.NoError(err)
	req.Len(cart, n)
	ids := lo.Map(cart, func(item domain.CartItem, _ int) uint64 { return item.ID })
	req.Len(lo.Uniq(ids), n)
	req.IsIncreasing(ids)
}

func Test_Cart_Item_Keeps_Product_Fields_Of_Insert_Time(t *testing.T) {
	req := require.New(t)
	store := newTestStore(t, nil)
	ctx := t.Context()

	req.NoError(store.UpsertProduct(ctx, banana))
	item, err := store.AddCartItem(ctx, domain.NewCartItem("g1", banana, "u1"))
	req.NoError(err)

	// When the catalog entry changes afterwards
	repriced := banana
	repriced.Price = 3
	req.NoError(store.UpsertProduct(ctx, repriced))

	// Then the cart still shows the price paid at insert time
	cart, err := store.GetCart(ctx, "g1")
	req.NoError(err)
	req.Equal([]domain.CartItem{item}, cart)
	req.Equal(1.5, cart[0].Price)
}

func Test_Products_Are_Listed_By_ID(t *testing.T) {
	req := require.New(t)
	store := newTestStore(t, nil)
	ctx := t.Context()

	req.NoError(store.UpsertProduct(ctx, domain.Product{ID: "p2", Name: "Cherry", Price: 4}))
	req.NoError(store.UpsertProduct(ctx, banana))

	products, err := store.ListProducts(ctx)
	req.NoError(err)
	req.Equal([]string{"p1", "p2"}, lo.Map(products, func(p domain.Product, _ int) string { return p.ID }))

	_, err = store.GetProduct(ctx, "missing")
	req.ErrorIs(err, errors.ErrNotFound)

	err = store.UpsertProduct(ctx, domain.Product{ID: "p3", Price: -1})
	req.ErrorIs(err, errors.ErrValidation)
}
