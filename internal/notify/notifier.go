package notify

import (
	"context"

	"app/internal/domain/model"

	"github.com/labstack/gommon/log"
)

// 注文確認メールの中身
type OrderMail struct {
	OrderID    int64
	TotalPrice int64
	Currency   string
	Items      []OrderMailItem
}

type OrderMailItem struct {
	Name     string
	Quantity int64
	Price    int64
}

// ステータス更新メールの中身
type StatusMail struct {
	OrderID   int64
	NewStatus model.OrderStatus
}

// 通知の約束。送信失敗は呼び出し元のトランザクション結果に影響させない
type Notifier interface {
	SendOrderConfirmation(ctx context.Context, to string, m OrderMail) error
	SendStatusUpdate(ctx context.Context, to string, m StatusMail) error
}

// SMTP未設定の環境向け。内容をログに出すだけ
type LogNotifier struct{}

func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

func (n *LogNotifier) SendOrderConfirmation(ctx context.Context, to string, m OrderMail) error {
	log.Infof("order confirmation (not sent, smtp disabled): to=%s order_id=%d total=%d", to, m.OrderID, m.TotalPrice)
	return nil
}

func (n *LogNotifier) SendStatusUpdate(ctx context.Context, to string, m StatusMail) error {
	log.Infof("status update (not sent, smtp disabled): to=%s order_id=%d status=%s", to, m.OrderID, m.NewStatus)
	return nil
}
