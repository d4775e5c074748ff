package usecase

import (
	"context"
	"net/http"
	"testing"

	"app/internal/domain/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type cartFixture struct {
	carts     *CartRepoMock
	cartItems *CartItemRepoMock
	variants  *VariantRepoMock
	products  *ProductRepoMock
	uc        *CartUsecase
}

func newCartFixture() *cartFixture {
	f := &cartFixture{
		carts:     &CartRepoMock{},
		cartItems: &CartItemRepoMock{},
		variants:  &VariantRepoMock{},
		products:  &ProductRepoMock{},
	}
	f.uc = NewCartUsecase(f.carts, f.cartItems, f.variants, f.products)
	return f
}

func TestAddToCart_NewItem(t *testing.T) {
	f := newCartFixture()

	f.carts.On("GetOrCreateActiveByUserID", mock.Anything, int64(1)).
		Return(model.Cart{ID: 5, UserID: 1}, nil)
	f.variants.On("FindByID", mock.Anything, int64(100)).
		Return(model.Variant{ID: 100, ProductID: 1000, SKU: "CG-ROB-50", Price: 1200, Inventory: 10}, nil)
	f.products.On("FindByID", mock.Anything, int64(1000)).
		Return(model.Product{ID: 1000, Name: "Robusto", IsActive: true}, nil)

	//最初は空 → upsert後は1件
	f.cartItems.On("ListByCartID", mock.Anything, int64(5)).
		Return([]model.CartItem{}, nil).Once()
	f.cartItems.On("UpsertByCartAndVariant", mock.Anything, int64(5), int64(100), int64(2), int64(1200)).
		Return(nil)
	f.cartItems.On("ListByCartID", mock.Anything, int64(5)).
		Return([]model.CartItem{
			{ID: 1, CartID: 5, VariantID: 100, Quantity: 2, UnitPriceSnapshot: 1200},
		}, nil)

	out, err := f.uc.AddToCart(context.Background(), 1, AddCartInput{VariantID: 100, Quantity: 2})

	assert.NoError(t, err)
	assert.Len(t, out.Items, 1)
	assert.Equal(t, int64(2400), out.Total)
	f.cartItems.AssertExpectations(t)
}

func TestAddToCart_StockExceeded(t *testing.T) {
	f := newCartFixture()

	f.carts.On("GetOrCreateActiveByUserID", mock.Anything, int64(1)).
		Return(model.Cart{ID: 5, UserID: 1}, nil)
	f.variants.On("FindByID", mock.Anything, int64(100)).
		Return(model.Variant{ID: 100, ProductID: 1000, Price: 1200, Inventory: 3}, nil)
	f.products.On("FindByID", mock.Anything, int64(1000)).
		Return(model.Product{ID: 1000, IsActive: true}, nil)

	//既に2個入っている。+2だと在庫3を超える
	f.cartItems.On("ListByCartID", mock.Anything, int64(5)).
		Return([]model.CartItem{{ID: 1, CartID: 5, VariantID: 100, Quantity: 2}}, nil)

	_, err := f.uc.AddToCart(context.Background(), 1, AddCartInput{VariantID: 100, Quantity: 2})

	he, ok := AsHTTPError(err)
	assert.True(t, ok)
	assert.Equal(t, http.StatusBadRequest, he.Status)
	assert.Equal(t, "stock exceeded", he.Message)
	f.cartItems.AssertNotCalled(t, "UpsertByCartAndVariant",
		mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestAddToCart_InactiveProduct(t *testing.T) {
	f := newCartFixture()

	f.carts.On("GetOrCreateActiveByUserID", mock.Anything, int64(1)).
		Return(model.Cart{ID: 5, UserID: 1}, nil)
	f.variants.On("FindByID", mock.Anything, int64(100)).
		Return(model.Variant{ID: 100, ProductID: 1000, Price: 1200, Inventory: 10}, nil)
	f.products.On("FindByID", mock.Anything, int64(1000)).
		Return(model.Product{ID: 1000, IsActive: false}, nil)

	_, err := f.uc.AddToCart(context.Background(), 1, AddCartInput{VariantID: 100, Quantity: 1})

	he, ok := AsHTTPError(err)
	assert.True(t, ok)
	assert.Equal(t, http.StatusBadRequest, he.Status)
}

func TestUpdateCartItem_NotOwned(t *testing.T) {
	f := newCartFixture()

	f.cartItems.On("IsOwnedByUser", mock.Anything, int64(9), int64(1)).
		Return(false, nil)

	_, err := f.uc.UpdateCartItem(context.Background(), 1, 9, UpdateCartItemInput{Quantity: 2})

	//他人の明細は存在しない扱い
	he, ok := AsHTTPError(err)
	assert.True(t, ok)
	assert.Equal(t, http.StatusNotFound, he.Status)
}

func TestDeleteCartItem(t *testing.T) {
	f := newCartFixture()

	f.cartItems.On("IsOwnedByUser", mock.Anything, int64(9), int64(1)).Return(true, nil)
	f.cartItems.On("DeleteByID", mock.Anything, int64(9)).Return(nil)
	f.carts.On("FindActiveByUserID", mock.Anything, int64(1)).
		Return(model.Cart{ID: 5, UserID: 1}, nil)
	f.cartItems.On("ListByCartID", mock.Anything, int64(5)).
		Return([]model.CartItem{}, nil)

	out, err := f.uc.DeleteCartItem(context.Background(), 1, 9)

	assert.NoError(t, err)
	assert.Empty(t, out.Items)
	assert.Equal(t, int64(0), out.Total)
}

func TestGetCart_SkipsInactiveProducts(t *testing.T) {
	f := newCartFixture()

	f.carts.On("GetOrCreateActiveByUserID", mock.Anything, int64(1)).
		Return(model.Cart{ID: 5, UserID: 1}, nil)
	f.cartItems.On("ListByCartID", mock.Anything, int64(5)).
		Return([]model.CartItem{
			{ID: 1, CartID: 5, VariantID: 100, Quantity: 1, UnitPriceSnapshot: 1200},
			{ID: 2, CartID: 5, VariantID: 200, Quantity: 1, UnitPriceSnapshot: 500},
		}, nil)

	f.variants.On("FindByID", mock.Anything, int64(100)).
		Return(model.Variant{ID: 100, ProductID: 1000, SKU: "CG-ROB-50"}, nil)
	f.variants.On("FindByID", mock.Anything, int64(200)).
		Return(model.Variant{ID: 200, ProductID: 2000, SKU: "CG-TOR-25"}, nil)

	f.products.On("FindByID", mock.Anything, int64(1000)).
		Return(model.Product{ID: 1000, Name: "Robusto", IsActive: true}, nil)
	//こちらは販売停止中
	f.products.On("FindByID", mock.Anything, int64(2000)).
		Return(model.Product{ID: 2000, Name: "Torpedo", IsActive: false}, nil)

	out, err := f.uc.GetCart(context.Background(), 1)

	assert.NoError(t, err)
	assert.Len(t, out.Items, 1)
	assert.Equal(t, int64(1200), out.Total)
}
