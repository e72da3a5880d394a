package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/mmeshcher/orderdesk-system/internal/model"
)

// MemoryRepository хранит заказы в памяти. Используется в тестах и как
// деградированный режим работы без БД: сервис продолжает принимать заказы,
// но сообщает клиенту, что они не сохранены долговременно.
type MemoryRepository struct {
	mu     sync.RWMutex
	orders map[string]model.Order
	admins map[string]bool
}

// NewMemoryRepository создаёт пустое хранилище заказов в памяти.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		orders: make(map[string]model.Order),
		admins: make(map[string]bool),
	}
}

// Close освобождает ресурсы хранилища.
func (r *MemoryRepository) Close() error {
	return nil
}

// Persistent сообщает, что заказы не переживут перезапуск процесса.
func (r *MemoryRepository) Persistent() bool {
	return false
}

// Ping проверяет доступность хранилища.
func (r *MemoryRepository) Ping(ctx context.Context) error {
	return nil
}

// GrantAdmin добавляет uid в список администраторов.
func (r *MemoryRepository) GrantAdmin(uid string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.admins[uid] = true
}

// IsAdmin реализует контракт хранилища ролей.
func (r *MemoryRepository) IsAdmin(ctx context.Context, uid string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.admins[uid], nil
}

// CreateOrder сохраняет новый заказ. Коллизия идентификаторов — ошибка.
func (r *MemoryRepository) CreateOrder(ctx context.Context, order *model.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.orders[order.ID]; exists {
		return ErrOrderExists
	}

	now := time.Now().UTC()
	order.CreatedAt = now
	order.UpdatedAt = now

	r.orders[order.ID] = *order
	return nil
}

// GetOrder возвращает заказ по идентификатору.
func (r *MemoryRepository) GetOrder(ctx context.Context, id string) (*model.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	order, ok := r.orders[id]
	if !ok {
		return nil, ErrOrderNotFound
	}
	return &order, nil
}

// ListOrders возвращает все заказы, сначала новые.
func (r *MemoryRepository) ListOrders(ctx context.Context) ([]model.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	orders := make([]model.Order, 0, len(r.orders))
	for _, o := range r.orders {
		orders = append(orders, o)
	}
	sortNewestFirst(orders)

	return orders, nil
}

// ListOrdersByOwner возвращает заказы указанного владельца, сначала новые.
func (r *MemoryRepository) ListOrdersByOwner(ctx context.Context, ownerUserID string, limit int) ([]model.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var orders []model.Order
	for _, o := range r.orders {
		if o.OwnerUserID == ownerUserID {
			orders = append(orders, o)
		}
	}
	sortNewestFirst(orders)

	if limit > 0 && len(orders) > limit {
		orders = orders[:limit]
	}

	return orders, nil
}

// UpdateOrderStatus атомарно меняет статус заказа и возвращает обновлённый заказ.
func (r *MemoryRepository) UpdateOrderStatus(ctx context.Context, id string, status model.OrderStatus) (*model.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	order, ok := r.orders[id]
	if !ok {
		return nil, ErrOrderNotFound
	}

	order.Status = status
	order.UpdatedAt = time.Now().UTC()
	r.orders[id] = order

	return &order, nil
}

// DeleteOrder удаляет заказ по идентификатору.
func (r *MemoryRepository) DeleteOrder(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.orders[id]; !ok {
		return ErrOrderNotFound
	}

	delete(r.orders, id)
	return nil
}

// CountOrdersByStatus возвращает количество заказов по каждому статусу.
func (r *MemoryRepository) CountOrdersByStatus(ctx context.Context) (map[model.OrderStatus]int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	counts := make(map[model.OrderStatus]int64)
	for _, o := range r.orders {
		counts[o.Status]++
	}

	return counts, nil
}

func sortNewestFirst(orders []model.Order) {
	sort.Slice(orders, func(i, j int) bool {
		if orders[i].CreatedAt.Equal(orders[j].CreatedAt) {
			return orders[i].ID > orders[j].ID
		}
		return orders[i].CreatedAt.After(orders[j].CreatedAt)
	})
}
