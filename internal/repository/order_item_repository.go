package repository

import (
	"context"

	"app/internal/domain/model"
)

// 注文明細の永続化。明細は注文確定時に一括作成され、以後変更しない
type OrderItemRepository interface {
	CreateBulk(ctx context.Context, orderID int64, items []model.OrderItem) error
	ListByOrderID(ctx context.Context, orderID int64) ([]model.OrderItem, error)
}
