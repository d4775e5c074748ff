package usecase

import (
	"context"
	"net/http"
	"testing"

	"app/internal/domain/model"
	repo "app/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type productFixture struct {
	products  *ProductRepoMock
	variants  *VariantRepoMock
	inventory *InventoryRepoMock
	audit     *AuditRepoMock
	uc        *ProductUsecase
}

func newProductFixture() *productFixture {
	f := &productFixture{
		products:  &ProductRepoMock{},
		variants:  &VariantRepoMock{},
		inventory: &InventoryRepoMock{},
		audit:     &AuditRepoMock{},
	}
	f.uc = NewProductUsecase(f.products, f.variants, f.inventory, f.audit)
	return f
}

func TestListPublicProducts(t *testing.T) {
	f := newProductFixture()

	q := repo.ProductListQuery{Page: 1, Limit: 20, Brand: "Montecristo"}
	f.products.On("ListPublic", mock.Anything, q).
		Return([]model.Product{
			{ID: 1, Name: "No.2", Brand: "Montecristo", IsActive: true},
		}, int64(1), nil)
	f.variants.On("ListByProductID", mock.Anything, int64(1)).
		Return([]model.Variant{
			{ID: 10, ProductID: 1, SKU: "MC-N2-1", Price: 1500, Inventory: 0},
			{ID: 11, ProductID: 1, SKU: "MC-N2-5", Price: 7000, Inventory: 4},
		}, nil)

	out, err := f.uc.ListPublicProducts(context.Background(), q)

	assert.NoError(t, err)
	assert.Equal(t, int64(1), out.Total)
	assert.Len(t, out.Items, 1)
	//一覧は最安値と在庫有無だけ
	assert.Equal(t, int64(1500), out.Items[0].MinPrice)
	assert.True(t, out.Items[0].InStock)
}

func TestGetProductDetail_InactiveHiddenFromPublic(t *testing.T) {
	f := newProductFixture()

	f.products.On("FindByID", mock.Anything, int64(1)).
		Return(model.Product{ID: 1, Name: "No.2", IsActive: false}, nil)

	_, err := f.uc.GetProductDetail(context.Background(), 1, false)

	he, ok := AsHTTPError(err)
	assert.True(t, ok)
	assert.Equal(t, http.StatusNotFound, he.Status)
}

func TestGetProductDetail_InactiveVisibleToAdmin(t *testing.T) {
	f := newProductFixture()

	f.products.On("FindByID", mock.Anything, int64(1)).
		Return(model.Product{ID: 1, Name: "No.2", IsActive: false}, nil)
	f.variants.On("ListByProductID", mock.Anything, int64(1)).
		Return([]model.Variant{}, nil)

	out, err := f.uc.GetProductDetail(context.Background(), 1, true)

	assert.NoError(t, err)
	assert.Equal(t, int64(1), out.ID)
	assert.False(t, out.IsActive)
}

func TestAdminCreateProduct_RequiresName(t *testing.T) {
	f := newProductFixture()

	_, err := f.uc.AdminCreateProduct(context.Background(), AdminCreateProductInput{Name: "   "})

	he, ok := AsHTTPError(err)
	assert.True(t, ok)
	assert.Equal(t, http.StatusBadRequest, he.Status)
	f.products.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestAdminCreateVariant(t *testing.T) {
	f := newProductFixture()

	f.products.On("FindByID", mock.Anything, int64(1)).
		Return(model.Product{ID: 1, Name: "No.2"}, nil)
	f.variants.On("Create", mock.Anything, mock.MatchedBy(func(v model.Variant) bool {
		return v.ProductID == 1 && v.SKU == "MC-N2-1" && v.Price == 1500 && v.Inventory == 20
	})).Return(model.Variant{ID: 10, ProductID: 1, SKU: "MC-N2-1", Price: 1500, Inventory: 20}, nil)

	out, err := f.uc.AdminCreateVariant(context.Background(), 1, AdminCreateVariantInput{
		SKU:       "MC-N2-1",
		Price:     1500,
		Inventory: 20,
	})

	assert.NoError(t, err)
	assert.Equal(t, int64(10), out.ID)
}

func TestAdminUpdateInventory_WritesAdjustmentAndAudit(t *testing.T) {
	f := newProductFixture()

	f.variants.On("FindByID", mock.Anything, int64(10)).
		Return(model.Variant{ID: 10, ProductID: 1, Inventory: 5}, nil)
	f.inventory.On("SetStockWithAdjustment", mock.Anything, int64(99), int64(10), int64(30), "restock").
		Return(nil)
	f.audit.On("Create", mock.Anything, mock.MatchedBy(func(l model.AuditLog) bool {
		return l.ActorUserID == 99 &&
			l.Action == model.AuditActionUpdateStock &&
			l.ResourceType == model.AuditResourceVariant &&
			l.ResourceID == 10 &&
			l.BeforeJSON == `{"inventory":5}` &&
			l.AfterJSON == `{"inventory":30}`
	})).Return(nil)

	out, err := f.uc.AdminUpdateInventory(context.Background(), 99, 10, AdminUpdateInventoryInput{
		Inventory: 30,
		Reason:    "restock",
	})

	assert.NoError(t, err)
	assert.Equal(t, int64(30), out.Inventory)
	f.inventory.AssertExpectations(t)
	f.audit.AssertExpectations(t)
}

func TestAdminUpdateInventory_NegativeRejected(t *testing.T) {
	f := newProductFixture()

	_, err := f.uc.AdminUpdateInventory(context.Background(), 99, 10, AdminUpdateInventoryInput{Inventory: -1})

	he, ok := AsHTTPError(err)
	assert.True(t, ok)
	assert.Equal(t, http.StatusBadRequest, he.Status)
	f.inventory.AssertNotCalled(t, "SetStockWithAdjustment",
		mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}
