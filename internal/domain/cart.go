package domain

import "time"

// CartItem is one line of a user's cart. A (userId, productId) pair is unique;
// adding the same product again increments the quantity on the existing row.
type CartItem struct {
	ID        uint64    `json:"id" gorm:"primaryKey;autoIncrement"`
	UserID    uint64    `json:"userId" gorm:"not null;uniqueIndex:idx_cart_user_product"`
	ProductID uint64    `json:"productId" gorm:"not null;uniqueIndex:idx_cart_user_product"`
	Quantity  int64     `json:"quantity" gorm:"not null"`
	CreatedAt time.Time `json:"createdAt" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updatedAt" gorm:"autoUpdateTime"`
}
