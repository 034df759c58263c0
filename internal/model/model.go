// Package model содержит доменные сущности сервиса продаж.
package model

import "time"

// AccessLevel описывает уровень доступа пользователя.
type AccessLevel string

const (
	AccessLevelAdmin  AccessLevel = "admin"
	AccessLevelUser   AccessLevel = "user"
	AccessLevelSeller AccessLevel = "seller"
)

// CanManageSales сообщает, может ли пользователь управлять каталогом и заказами.
func (a AccessLevel) CanManageSales() bool {
	return a == AccessLevelAdmin || a == AccessLevelSeller
}

// User представляет учётную запись сотрудника или покупателя.
type User struct {
	ID           int64
	Name         string
	Email        string
	Phone        string
	PasswordHash []byte
	IsActive     bool
	AccessLevel  AccessLevel
	CreatedAt    time.Time
}

// Client представляет покупателя, для которого оформляются заказы.
type Client struct {
	ID      int64
	Name    string
	Email   string
	Phone   string
	CPF     string
	Address string
}

// Product представляет товар каталога. Цена хранится в центах, остаток — в штуках.
type Product struct {
	ID          int64
	Description string
	PriceCents  int64
	Barcode     string
	Section     string
	Stock       int
	ExpiresAt   time.Time
	Image       *string
}

// OrderStatus описывает статус обработки заказа.
type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusShipped    OrderStatus = "shipped"
	OrderStatusDelivered  OrderStatus = "delivered"
	OrderStatusCanceled   OrderStatus = "canceled"
)

// Valid сообщает, входит ли статус в закрытый набор допустимых значений.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusProcessing, OrderStatusShipped,
		OrderStatusDelivered, OrderStatusCanceled:
		return true
	}
	return false
}

// OrderItem описывает позицию заказа: товар и количество.
type OrderItem struct {
	ProductID int64
	Quantity  int
}

// Order описывает заказ клиента вместе с позициями.
type Order struct {
	ID        int64
	ClientID  int64
	Status    OrderStatus
	CreatedAt time.Time
	Items     []OrderItem
}

// OrderStatusEvent описывает запись журнала смены статуса заказа.
type OrderStatusEvent struct {
	ID             int64
	OrderID        int64
	PreviousStatus OrderStatus
	NewStatus      OrderStatus
}
