package model

import "time"

// 購入単位のSKU。価格と在庫はここで持つ
type Variant struct {
	ID        int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	ProductID int64  `gorm:"not null;index" json:"product_id"`
	SKU       string `gorm:"type:varchar(100);not null;uniqueIndex" json:"sku"`

	//サイズ・カラー
	Size  string `gorm:"type:varchar(50)" json:"size"`
	Color string `gorm:"type:varchar(50)" json:"color"`

	//最小通貨単位（セント）
	Price int64 `gorm:"not null" json:"price"`

	//在庫数。checkout確定トランザクションの条件付きUPDATEでのみ減算する
	Inventory int64 `gorm:"not null;default:0" json:"inventory"`

	CreatedAt time.Time `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime" json:"updated_at"`
}
