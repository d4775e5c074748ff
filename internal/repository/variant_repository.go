package repository

import (
	"context"

	"app/internal/domain/model"
)

// SKU（バリエーション）の永続化
type VariantRepository interface {
	FindByID(ctx context.Context, variantID int64) (model.Variant, error)
	ListByProductID(ctx context.Context, productID int64) ([]model.Variant, error)

	Create(ctx context.Context, v model.Variant) (model.Variant, error)
	Update(ctx context.Context, v model.Variant) error
	Delete(ctx context.Context, variantID int64) error
}
