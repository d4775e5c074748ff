package model

import "time"

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "PENDING"
	OrderStatusPaid      OrderStatus = "PAID"
	OrderStatusShipped   OrderStatus = "SHIPPED"
	OrderStatusDelivered OrderStatus = "DELIVERED"
	OrderStatusCancelled OrderStatus = "CANCELLED"
	OrderStatusRefunded  OrderStatus = "REFUNDED"
)

// 遷移表はここだけ。APIも画面側のプレビューもこの表を参照する
var orderStatusTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:   {OrderStatusPaid, OrderStatusCancelled},
	OrderStatusPaid:      {OrderStatusShipped, OrderStatusCancelled, OrderStatusRefunded},
	OrderStatusShipped:   {OrderStatusDelivered, OrderStatusRefunded},
	OrderStatusDelivered: {OrderStatusRefunded},
	OrderStatusCancelled: {},
	OrderStatusRefunded:  {},
}

// ParseOrderStatus は文字列をOrderStatusへ変換（不明ならfalse）
func ParseOrderStatus(s string) (OrderStatus, bool) {
	switch OrderStatus(s) {
	case OrderStatusPending, OrderStatusPaid, OrderStatusShipped,
		OrderStatusDelivered, OrderStatusCancelled, OrderStatusRefunded:
		return OrderStatus(s), true
	}
	return "", false
}

// CanTransition は from→to が許可された遷移かを返す。
// 同一ステータスへの遷移は不可
func CanTransition(from, to OrderStatus) bool {
	for _, next := range orderStatusTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// NextStatuses は現在のステータスから進める先の一覧を返す
func NextStatuses(from OrderStatus) []OrderStatus {
	next := orderStatusTransitions[from]
	out := make([]OrderStatus, len(next))
	copy(out, next)
	return out
}

// IsTerminal は終端ステータスかどうか
func IsTerminal(s OrderStatus) bool {
	return len(orderStatusTransitions[s]) == 0
}

// 注文。明細(OrderItem)と決済(Payment)は必ず同一トランザクションで作る
type Order struct {
	ID                int64       `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID            int64       `gorm:"not null;index" json:"user_id"`
	Status            OrderStatus `gorm:"type:varchar(20);not null;index" json:"status"`
	ShippingAddressID int64       `gorm:"not null" json:"shipping_address_id"`
	BillingAddressID  int64       `gorm:"not null" json:"billing_address_id"`

	//表示用の合計（真値は明細のprice×qtyの合計）
	TotalPrice int64 `gorm:"not null" json:"total_price"`

	//二重送信防止キー
	IdempotencyKey string `gorm:"type:varchar(255);not null;uniqueIndex" json:"-"`

	CreatedAt time.Time `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime" json:"updated_at"`
}
