package repository

import (
	"context"

	"app/internal/domain/model"
)

// 在庫の永続化。減算は必ず条件付きUPDATE（WHERE inventory >= qty）で行い、
// アプリ内ロックは使わない
type InventoryRepository interface {
	// 在庫が足りるときだけ減算。falseなら在庫不足
	DecreaseStockIfEnough(ctx context.Context, variantID int64, qty int64) (bool, error)

	// 在庫戻し（キャンセル・返金）
	IncreaseStock(ctx context.Context, variantID int64, qty int64) error

	// 管理者による在庫の直接設定＋調整履歴の保存
	SetStockWithAdjustment(ctx context.Context, adminUserID int64, variantID int64, newStock int64, reason string) error

	// 調整履歴作成
	CreateAdjustment(ctx context.Context, adjustment model.InventoryAdjustment) error
}
