package model

import "time"

type PaymentStatus string

const (
	PaymentStatusCaptured PaymentStatus = "CAPTURED"
	PaymentStatusRefunded PaymentStatus = "REFUNDED"
)

// 決済記録。注文1件につき必ず1件、注文と同一トランザクションで作る
type Payment struct {
	ID      int64         `gorm:"primaryKey;autoIncrement" json:"id"`
	OrderID int64         `gorm:"not null;uniqueIndex" json:"order_id"`
	Status  PaymentStatus `gorm:"type:varchar(20);not null" json:"status"`

	//最小通貨単位
	Amount   int64  `gorm:"not null" json:"amount"`
	Currency string `gorm:"type:varchar(10);not null" json:"currency"`

	//決済プロバイダ名
	Provider string `gorm:"type:varchar(50);not null" json:"provider"`

	//ゲートウェイ側の取引ID（照合・返金に使う）
	TransactionID string `gorm:"type:varchar(255);not null" json:"transaction_id"`

	CreatedAt time.Time `gorm:"not null;autoCreateTime" json:"created_at"`
}
