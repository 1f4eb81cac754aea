package domain

import "time"

type OrderStatus string

const (
	StatusPending    OrderStatus = "pending"
	StatusProcessing OrderStatus = "processing"
	StatusShipped    OrderStatus = "shipped"
	StatusDelivered  OrderStatus = "delivered"
	StatusCancelled  OrderStatus = "cancelled"
)

// forward-only; cancellation is reachable until the order ships
var orderTransitions = map[OrderStatus][]OrderStatus{
	StatusPending:    {StatusProcessing, StatusCancelled},
	StatusProcessing: {StatusShipped, StatusCancelled},
	StatusShipped:    {StatusDelivered},
	StatusDelivered:  {},
	StatusCancelled:  {},
}

func (s OrderStatus) Valid() bool {
	_, ok := orderTransitions[s]
	return ok
}

func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	for _, allowed := range orderTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

type Order struct {
	ID          uint64      `json:"id" gorm:"primaryKey;autoIncrement"`
	UserID      uint64      `json:"userId" gorm:"not null;index"`
	Status      OrderStatus `json:"status" gorm:"type:enum('pending','processing','shipped','delivered','cancelled');default:'pending'"`
	TotalAmount int64       `json:"totalAmount" gorm:"not null"`
	Items       []OrderItem `json:"items" gorm:"constraint:OnDelete:CASCADE"`
	CreatedAt   time.Time   `json:"createdAt" gorm:"autoCreateTime"`
	UpdatedAt   time.Time   `json:"updatedAt" gorm:"autoUpdateTime"`
}

// OrderItem carries the unit price frozen at order creation; it is never
// re-read from the catalog afterwards.
type OrderItem struct {
	ID        uint64 `json:"id" gorm:"primaryKey;autoIncrement"`
	OrderID   uint64 `json:"orderId" gorm:"not null;index"`
	ProductID uint64 `json:"productId" gorm:"not null"`
	Quantity  int64  `json:"quantity" gorm:"not null"`
	UnitPrice int64  `json:"unitPrice" gorm:"not null"`
}
