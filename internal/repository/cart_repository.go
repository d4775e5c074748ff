package repository

import (
	"context"

	"app/internal/domain/model"
)

// カート本体の永続化。ACTIVEカートは1ユーザー1つ
type CartRepository interface {
	GetOrCreateActiveByUserID(ctx context.Context, userID int64) (model.Cart, error)
	FindActiveByUserID(ctx context.Context, userID int64) (model.Cart, error)
	UpdateStatus(ctx context.Context, cartID int64, status model.CartStatus) error
	//明細を全削除（カート自体は残す）
	Clear(ctx context.Context, cartID int64) error
}
