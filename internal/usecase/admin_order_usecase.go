package usecase

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"app/internal/domain/model"
	"app/internal/notify"
	repo "app/internal/repository"

	"github.com/labstack/gommon/log"
)

type AdminOrderUsecase struct {
	tx       repo.TransactionManager
	users    repo.UserRepository
	notifier notify.Notifier
}

func NewAdminOrderUsecase(
	tx repo.TransactionManager,
	users repo.UserRepository,
	notifier notify.Notifier,
) *AdminOrderUsecase {
	return &AdminOrderUsecase{tx: tx, users: users, notifier: notifier}
}

type AdminUpdateOrderStatusInput struct {
	Status string
}

// 注文一覧（管理者）
func (u *AdminOrderUsecase) List(ctx context.Context, f repo.AdminOrderListFilter) ([]OrderOutput, error) {
	// page/limitの最低限チェック
	if f.Page < 1 {
		return []OrderOutput{}, NewHTTPError(http.StatusBadRequest, "invalid page")
	}
	if f.Limit < 1 || f.Limit > 100 {
		return []OrderOutput{}, NewHTTPError(http.StatusBadRequest, "invalid limit")
	}

	var outs []OrderOutput

	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		orders, _, err := r.Orders().ListAdmin(ctx, f)
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}

		outs = make([]OrderOutput, 0, len(orders))
		for _, o := range orders {
			items, err := r.OrderItems().ListByOrderID(ctx, o.ID)
			if err != nil {
				return NewHTTPError(http.StatusInternalServerError, "db error")
			}
			outs = append(outs, toOrderOutput(o, items))
		}
		return nil
	})

	if err != nil {
		return []OrderOutput{}, err
	}
	return outs, nil
}

// NextStatuses は指定注文から進められるステータス一覧を返す。
// 画面側のプレビューもこの結果を使う（遷移表を二重に持たない）
func (u *AdminOrderUsecase) NextStatuses(ctx context.Context, orderID int64) ([]model.OrderStatus, error) {
	if orderID <= 0 {
		return nil, NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	var next []model.OrderStatus
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		o, err := r.Orders().FindByID(ctx, orderID)
		if errors.Is(err, repo.ErrNotFound) {
			return NewHTTPError(http.StatusNotFound, "not found")
		}
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}
		next = model.NextStatuses(o.Status)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return next, nil
}

// ステータス更新。遷移表にない変更は拒否する。
// CANCELLED/REFUNDEDでは在庫戻し、REFUNDEDでは決済もREFUNDEDへ更新
func (u *AdminOrderUsecase) UpdateStatus(ctx context.Context, actorAdminUserID int64, orderID int64, in AdminUpdateOrderStatusInput) error {
	if actorAdminUserID <= 0 {
		return NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if orderID <= 0 {
		return NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	newStatus, ok := model.ParseOrderStatus(strings.TrimSpace(in.Status))
	if !ok {
		return NewHTTPError(http.StatusBadRequest, "invalid status")
	}

	var notifyUserID int64
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		// 注文取得
		o, err := r.Orders().FindByID(ctx, orderID)
		if errors.Is(err, repo.ErrNotFound) {
			return NewHTTPError(http.StatusNotFound, "not found")
		}
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}

		// 遷移表チェック（同一ステータスへの変更も不可）
		if !model.CanTransition(o.Status, newStatus) {
			return NewHTTPError(http.StatusConflict, "invalid transition")
		}

		// キャンセルは未出荷のときだけ来る（遷移表で保証）。在庫を戻す
		if newStatus == model.OrderStatusCancelled {
			if err := u.restock(ctx, r, orderID); err != nil {
				return err
			}
		}

		// 返金。PAIDからの返金は未出荷なので在庫も戻す
		if newStatus == model.OrderStatusRefunded {
			if o.Status == model.OrderStatusPaid {
				if err := u.restock(ctx, r, orderID); err != nil {
					return err
				}
			}
			p, err := r.Payments().FindByOrderID(ctx, orderID)
			if err != nil && !errors.Is(err, repo.ErrNotFound) {
				return NewHTTPError(http.StatusInternalServerError, "db error")
			}
			if err == nil {
				if err := r.Payments().UpdateStatus(ctx, p.ID, model.PaymentStatusRefunded); err != nil {
					return NewHTTPError(http.StatusInternalServerError, "db error")
				}
			}
		}

		// ステータス更新
		beforeStatus := string(o.Status)
		if err := r.Orders().UpdateStatus(ctx, orderID, newStatus); err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return NewHTTPError(http.StatusNotFound, "not found")
			}
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}

		// 監査ログ（UPDATE_ORDER_STATUS）。ロールバック時に残らないよう同一Txで書く
		beforeJSON := fmt.Sprintf(`{"status":%q}`, beforeStatus)
		afterJSON := fmt.Sprintf(`{"status":%q}`, string(newStatus))
		if err := r.AuditLogs().Create(ctx, model.AuditLog{
			ActorUserID:  actorAdminUserID,
			Action:       model.AuditActionUpdateOrderStatus,
			ResourceType: model.AuditResourceOrder,
			ResourceID:   orderID,
			BeforeJSON:   beforeJSON,
			AfterJSON:    afterJSON,
			CreatedAt:    time.Now(),
		}); err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}

		notifyUserID = o.UserID
		return nil
	})
	if err != nil {
		return err
	}

	//コミット後の通知は非同期・ベストエフォート
	go func() {
		user, err := u.users.FindByID(context.Background(), notifyUserID)
		if err != nil {
			log.Warnf("status mail skipped, user lookup failed: order_id=%d err=%v", orderID, err)
			return
		}
		if err := u.notifier.SendStatusUpdate(context.Background(), user.Email, notify.StatusMail{
			OrderID:   orderID,
			NewStatus: newStatus,
		}); err != nil {
			log.Warnf("status mail failed: order_id=%d err=%v", orderID, err)
		}
	}()

	return nil
}

// 注文明細の数量をぜんぶ在庫へ戻す
func (u *AdminOrderUsecase) restock(ctx context.Context, r repo.TxRepos, orderID int64) error {
	items, err := r.OrderItems().ListByOrderID(ctx, orderID)
	if err != nil {
		return NewHTTPError(http.StatusInternalServerError, "db error")
	}
	for _, it := range items {
		if err := r.Inventory().IncreaseStock(ctx, it.VariantID, it.Quantity); err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}
	}
	return nil
}
