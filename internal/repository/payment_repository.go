package repository

import (
	"context"

	"app/internal/domain/model"
)

// 決済記録の保存・取得。注文1件につき必ず1件
type PaymentRepository interface {
	Create(ctx context.Context, p model.Payment) (int64, error)
	FindByOrderID(ctx context.Context, orderID int64) (model.Payment, error)
	UpdateStatus(ctx context.Context, paymentID int64, status model.PaymentStatus) error
}
