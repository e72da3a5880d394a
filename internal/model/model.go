// Package model содержит доменные сущности сервиса приёма заказов.
package model

import "time"

// OrderStatus описывает статус жизненного цикла заказа.
type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusConfirmed  OrderStatus = "confirmed"
	OrderStatusShipped    OrderStatus = "shipped"
	OrderStatusDelivered  OrderStatus = "delivered"
	OrderStatusCancelled  OrderStatus = "cancelled"
)

// Типы доставки, поддерживаемые при оформлении заказа.
const (
	DeliverySimple  = "simple"
	DeliveryExpress = "express"
)

// statusRank задаёт порядок статусов вдоль жизненного цикла.
// Статус cancelled вне последовательности: в него можно перейти
// из любого нетерминального состояния.
var statusRank = map[OrderStatus]int{
	OrderStatusPending:    0,
	OrderStatusProcessing: 1,
	OrderStatusConfirmed:  2,
	OrderStatusShipped:    3,
	OrderStatusDelivered:  4,
}

// ValidStatus сообщает, входит ли значение в перечень статусов жизненного цикла.
func ValidStatus(s OrderStatus) bool {
	if s == OrderStatusCancelled {
		return true
	}
	_, ok := statusRank[s]
	return ok
}

// Terminal сообщает, является ли статус конечным: из него нет переходов.
func (s OrderStatus) Terminal() bool {
	return s == OrderStatusDelivered || s == OrderStatusCancelled
}

// CanTransition проверяет допустимость перехода заказа из статуса from в статус to.
// Разрешено движение только вперёд по жизненному циклу (пропуск промежуточных
// статусов допустим), а также отмена из любого нетерминального состояния.
func CanTransition(from, to OrderStatus) bool {
	if !ValidStatus(from) || !ValidStatus(to) {
		return false
	}
	if from.Terminal() {
		return false
	}
	if to == OrderStatusCancelled {
		return true
	}
	return statusRank[to] > statusRank[from]
}

// OrderItem описывает одну позицию заказа.
type OrderItem struct {
	ProductID   string  `json:"productId"`
	ProductName string  `json:"productName"`
	Quantity    int     `json:"quantity"`
	UnitPrice   float64 `json:"price"`
	LineTotal   float64 `json:"totalPrice"`
}

// Contact содержит контактные данные и параметры доставки заказа.
type Contact struct {
	UserName     string `json:"userName"`
	UserPhone    string `json:"userPhone"`
	UserEmail    string `json:"userEmail,omitempty"`
	Address      string `json:"address"`
	Zone         string `json:"zone,omitempty"`
	DeliveryType string `json:"deliveryType"`
}

// Order описывает принятый и нормализованный заказ.
type Order struct {
	ID          string      `json:"id"`
	OwnerUserID string      `json:"userId"`
	Status      OrderStatus `json:"status"`
	Items       []OrderItem `json:"items"`
	TotalItems  int         `json:"totalItems"`
	TotalPrice  float64     `json:"totalPrice"`
	Contact     Contact     `json:"contact"`
	CreatedAt   time.Time   `json:"createdAt"`
	UpdatedAt   time.Time   `json:"updatedAt"`
}

// OrderSubmission описывает необработанный заказ, присланный клиентским приложением.
// Контактные поля приходят на верхнем уровне JSON, как их отправляет клиент.
type OrderSubmission struct {
	Contact
	UserID     string      `json:"userId"`
	Status     string      `json:"status,omitempty"`
	Items      []OrderItem `json:"items"`
	TotalItems int         `json:"totalItems"`
	TotalPrice float64     `json:"totalPrice"`
}

// Identity описывает проверенную личность отправителя запроса.
// Сущность живёт только в рамках запроса и не сохраняется сервисом.
type Identity struct {
	UID           string
	Email         string
	EmailVerified bool
}
