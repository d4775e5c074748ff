package usecase

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"app/internal/domain/model"
	repo "app/internal/repository"
)

// 商品カタログ。公開側（一覧・詳細）と管理側（CRUD・在庫設定）の両方
type ProductUsecase struct {
	productRepo   repo.ProductRepository
	variantRepo   repo.VariantRepository
	inventoryRepo repo.InventoryRepository
	auditRepo     repo.AuditLogRepository
}

func NewProductUsecase(
	productRepo repo.ProductRepository,
	variantRepo repo.VariantRepository,
	inventoryRepo repo.InventoryRepository,
	auditRepo repo.AuditLogRepository,
) *ProductUsecase {
	return &ProductUsecase{
		productRepo:   productRepo,
		variantRepo:   variantRepo,
		inventoryRepo: inventoryRepo,
		auditRepo:     auditRepo,
	}
}

type VariantOutput struct {
	ID        int64  `json:"id"`
	SKU       string `json:"sku"`
	Size      string `json:"size"`
	Color     string `json:"color"`
	Price     int64  `json:"price"`
	Inventory int64  `json:"inventory"`
}

type ProductListItem struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Brand    string `json:"brand"`
	MinPrice int64  `json:"min_price"`
	InStock  bool   `json:"in_stock"`
}

type ProductListOutput struct {
	Items []ProductListItem `json:"items"`
	Total int64             `json:"total"`
	Page  int               `json:"page"`
	Limit int               `json:"limit"`
}

type ProductDetailOutput struct {
	ID          int64           `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Brand       string          `json:"brand"`
	IsActive    bool            `json:"is_active"`
	Variants    []VariantOutput `json:"variants"`
}

// 公開中の商品一覧（検索・ブランド・価格帯・並び替え）
func (u *ProductUsecase) ListPublicProducts(ctx context.Context, q repo.ProductListQuery) (ProductListOutput, error) {
	if q.Page < 1 {
		return ProductListOutput{}, NewHTTPError(http.StatusBadRequest, "invalid page")
	}
	if q.Limit < 1 || q.Limit > 100 {
		return ProductListOutput{}, NewHTTPError(http.StatusBadRequest, "invalid limit")
	}
	switch q.Sort {
	case "", "name_asc", "name_desc", "new":
	default:
		return ProductListOutput{}, NewHTTPError(http.StatusBadRequest, "invalid sort")
	}

	products, total, err := u.productRepo.ListPublic(ctx, q)
	if err != nil {
		return ProductListOutput{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}

	items := make([]ProductListItem, 0, len(products))
	for _, p := range products {
		variants, err := u.variantRepo.ListByProductID(ctx, p.ID)
		if err != nil {
			return ProductListOutput{}, NewHTTPError(http.StatusInternalServerError, "db error")
		}

		//一覧には最安値と在庫有無だけ出す
		var minPrice int64 = 0
		inStock := false
		for i, v := range variants {
			if i == 0 || v.Price < minPrice {
				minPrice = v.Price
			}
			if v.Inventory > 0 {
				inStock = true
			}
		}

		items = append(items, ProductListItem{
			ID:       p.ID,
			Name:     p.Name,
			Brand:    p.Brand,
			MinPrice: minPrice,
			InStock:  inStock,
		})
	}

	return ProductListOutput{
		Items: items,
		Total: total,
		Page:  q.Page,
		Limit: q.Limit,
	}, nil
}

// 商品詳細。非公開商品は一般ユーザーには404
func (u *ProductUsecase) GetProductDetail(ctx context.Context, productID int64, includeInactive bool) (ProductDetailOutput, error) {
	if productID <= 0 {
		return ProductDetailOutput{}, NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	p, err := u.productRepo.FindByID(ctx, productID)
	if errors.Is(err, repo.ErrNotFound) {
		return ProductDetailOutput{}, NewHTTPError(http.StatusNotFound, "not found")
	}
	if err != nil {
		return ProductDetailOutput{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}
	if !p.IsActive && !includeInactive {
		return ProductDetailOutput{}, NewHTTPError(http.StatusNotFound, "not found")
	}

	variants, err := u.variantRepo.ListByProductID(ctx, productID)
	if err != nil {
		return ProductDetailOutput{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}

	return toProductDetail(p, variants), nil
}

type AdminCreateProductInput struct {
	Name        string
	Description string
	Brand       string
	IsActive    bool
}

type AdminUpdateProductInput struct {
	Name        string
	Description string
	Brand       string
	IsActive    bool
}

// 商品作成（管理者）
func (u *ProductUsecase) AdminCreateProduct(ctx context.Context, in AdminCreateProductInput) (ProductDetailOutput, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return ProductDetailOutput{}, NewHTTPError(http.StatusBadRequest, "name is required")
	}

	p := model.Product{
		Name:        name,
		Description: in.Description,
		Brand:       strings.TrimSpace(in.Brand),
		IsActive:    in.IsActive,
	}

	created, err := u.productRepo.Create(ctx, p)
	if err != nil {
		return ProductDetailOutput{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}

	return toProductDetail(created, nil), nil
}

// 商品更新（管理者）
func (u *ProductUsecase) AdminUpdateProduct(ctx context.Context, productID int64, in AdminUpdateProductInput) (ProductDetailOutput, error) {
	if productID <= 0 {
		return ProductDetailOutput{}, NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return ProductDetailOutput{}, NewHTTPError(http.StatusBadRequest, "name is required")
	}

	p, err := u.productRepo.FindByID(ctx, productID)
	if errors.Is(err, repo.ErrNotFound) {
		return ProductDetailOutput{}, NewHTTPError(http.StatusNotFound, "not found")
	}
	if err != nil {
		return ProductDetailOutput{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}

	p.Name = name
	p.Description = in.Description
	p.Brand = strings.TrimSpace(in.Brand)
	p.IsActive = in.IsActive

	if err := u.productRepo.Update(ctx, p); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ProductDetailOutput{}, NewHTTPError(http.StatusNotFound, "not found")
		}
		return ProductDetailOutput{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}

	variants, err := u.variantRepo.ListByProductID(ctx, productID)
	if err != nil {
		return ProductDetailOutput{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}
	return toProductDetail(p, variants), nil
}

// 商品削除（論理削除）。注文履歴のスナップショットには影響しない
func (u *ProductUsecase) AdminDeleteProduct(ctx context.Context, productID int64) error {
	if productID <= 0 {
		return NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	if err := u.productRepo.SoftDelete(ctx, productID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return NewHTTPError(http.StatusNotFound, "not found")
		}
		return NewHTTPError(http.StatusInternalServerError, "db error")
	}
	return nil
}

type AdminCreateVariantInput struct {
	SKU       string
	Size      string
	Color     string
	Price     int64
	Inventory int64
}

type AdminUpdateVariantInput struct {
	SKU   string
	Size  string
	Color string
	Price int64
}

// SKU追加（管理者）
func (u *ProductUsecase) AdminCreateVariant(ctx context.Context, productID int64, in AdminCreateVariantInput) (VariantOutput, error) {
	if productID <= 0 {
		return VariantOutput{}, NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	sku := strings.TrimSpace(in.SKU)
	if sku == "" {
		return VariantOutput{}, NewHTTPError(http.StatusBadRequest, "sku is required")
	}
	if in.Price < 0 {
		return VariantOutput{}, NewHTTPError(http.StatusBadRequest, "invalid price")
	}
	if in.Inventory < 0 {
		return VariantOutput{}, NewHTTPError(http.StatusBadRequest, "invalid inventory")
	}

	//親商品の存在チェック
	if _, err := u.productRepo.FindByID(ctx, productID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return VariantOutput{}, NewHTTPError(http.StatusNotFound, "not found")
		}
		return VariantOutput{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}

	v := model.Variant{
		ProductID: productID,
		SKU:       sku,
		Size:      strings.TrimSpace(in.Size),
		Color:     strings.TrimSpace(in.Color),
		Price:     in.Price,
		Inventory: in.Inventory,
	}

	created, err := u.variantRepo.Create(ctx, v)
	if err != nil {
		return VariantOutput{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}
	return toVariantOutput(created), nil
}

// SKU更新（管理者）。在庫はここでは触らない（AdminUpdateInventoryを使う）
func (u *ProductUsecase) AdminUpdateVariant(ctx context.Context, variantID int64, in AdminUpdateVariantInput) (VariantOutput, error) {
	if variantID <= 0 {
		return VariantOutput{}, NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	sku := strings.TrimSpace(in.SKU)
	if sku == "" {
		return VariantOutput{}, NewHTTPError(http.StatusBadRequest, "sku is required")
	}
	if in.Price < 0 {
		return VariantOutput{}, NewHTTPError(http.StatusBadRequest, "invalid price")
	}

	v, err := u.variantRepo.FindByID(ctx, variantID)
	if errors.Is(err, repo.ErrNotFound) {
		return VariantOutput{}, NewHTTPError(http.StatusNotFound, "not found")
	}
	if err != nil {
		return VariantOutput{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}

	v.SKU = sku
	v.Size = strings.TrimSpace(in.Size)
	v.Color = strings.TrimSpace(in.Color)
	v.Price = in.Price

	if err := u.variantRepo.Update(ctx, v); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return VariantOutput{}, NewHTTPError(http.StatusNotFound, "not found")
		}
		return VariantOutput{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}
	return toVariantOutput(v), nil
}

// SKU削除（管理者）
func (u *ProductUsecase) AdminDeleteVariant(ctx context.Context, variantID int64) error {
	if variantID <= 0 {
		return NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	if err := u.variantRepo.Delete(ctx, variantID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return NewHTTPError(http.StatusNotFound, "not found")
		}
		return NewHTTPError(http.StatusInternalServerError, "db error")
	}
	return nil
}

type AdminUpdateInventoryInput struct {
	Inventory int64
	Reason    string
}

// 在庫の直接設定（管理者）。調整履歴と監査ログを残す
func (u *ProductUsecase) AdminUpdateInventory(ctx context.Context, actorAdminUserID int64, variantID int64, in AdminUpdateInventoryInput) (VariantOutput, error) {
	if actorAdminUserID <= 0 {
		return VariantOutput{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if variantID <= 0 {
		return VariantOutput{}, NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	if in.Inventory < 0 {
		return VariantOutput{}, NewHTTPError(http.StatusBadRequest, "invalid inventory")
	}

	v, err := u.variantRepo.FindByID(ctx, variantID)
	if errors.Is(err, repo.ErrNotFound) {
		return VariantOutput{}, NewHTTPError(http.StatusNotFound, "not found")
	}
	if err != nil {
		return VariantOutput{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}

	before := v.Inventory

	//設定＋調整履歴は同一トランザクション
	if err := u.inventoryRepo.SetStockWithAdjustment(ctx, actorAdminUserID, variantID, in.Inventory, in.Reason); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return VariantOutput{}, NewHTTPError(http.StatusNotFound, "not found")
		}
		return VariantOutput{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}

	//監査ログ（UPDATE_STOCK）
	beforeJSON := fmt.Sprintf(`{"inventory":%d}`, before)
	afterJSON := fmt.Sprintf(`{"inventory":%d}`, in.Inventory)
	if err := u.auditRepo.Create(ctx, model.AuditLog{
		ActorUserID:  actorAdminUserID,
		Action:       model.AuditActionUpdateStock,
		ResourceType: model.AuditResourceVariant,
		ResourceID:   variantID,
		BeforeJSON:   beforeJSON,
		AfterJSON:    afterJSON,
		CreatedAt:    time.Now(),
	}); err != nil {
		return VariantOutput{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}

	v.Inventory = in.Inventory
	return toVariantOutput(v), nil
}

func toVariantOutput(v model.Variant) VariantOutput {
	return VariantOutput{
		ID:        v.ID,
		SKU:       v.SKU,
		Size:      v.Size,
		Color:     v.Color,
		Price:     v.Price,
		Inventory: v.Inventory,
	}
}

func toProductDetail(p model.Product, variants []model.Variant) ProductDetailOutput {
	outs := make([]VariantOutput, 0, len(variants))
	for _, v := range variants {
		outs = append(outs, toVariantOutput(v))
	}
	return ProductDetailOutput{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		Brand:       p.Brand,
		IsActive:    p.IsActive,
		Variants:    outs,
	}
}
