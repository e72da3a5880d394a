// Package repository содержит реализации хранилища заказов.
package repository

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/mmeshcher/orderdesk-system/internal/model"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrOrderNotFound возвращается, если заказ с указанным идентификатором отсутствует.
var (
	ErrOrderNotFound = errors.New("order not found")
	// ErrOrderExists возвращается при коллизии идентификаторов заказов.
	// Существующий заказ никогда не перезаписывается молча.
	ErrOrderExists = errors.New("order id already exists")
)

// PostgresRepository предоставляет доступ к хранилищу заказов в PostgreSQL.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository создаёт новый репозиторий и инициализирует схему БД через миграции.
func NewPostgresRepository(dsn string) (*PostgresRepository, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	r := &PostgresRepository{pool: pool}

	if err := r.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return r, nil
}

func (r *PostgresRepository) runMigrations(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(r.pool)
	defer db.Close()

	goose.SetBaseFS(migrationsFS)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

// Close закрывает пул соединений с БД.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

// Persistent сообщает, что заказы сохраняются долговременно.
func (r *PostgresRepository) Persistent() bool {
	return true
}

// Ping проверяет доступность БД.
func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// CreateOrder сохраняет новый заказ. Коллизия идентификаторов — ошибка.
func (r *PostgresRepository) CreateOrder(ctx context.Context, order *model.Order) error {
	items, err := json.Marshal(order.Items)
	if err != nil {
		return fmt.Errorf("marshal items: %w", err)
	}
	contact, err := json.Marshal(order.Contact)
	if err != nil {
		return fmt.Errorf("marshal contact: %w", err)
	}

	now := time.Now().UTC()
	order.CreatedAt = now
	order.UpdatedAt = now

	_, err = r.pool.Exec(ctx,
		`INSERT INTO orders (id, owner_user_id, status, items, contact, total_items, total_price, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		order.ID, order.OwnerUserID, string(order.Status), items, contact,
		order.TotalItems, order.TotalPrice, order.CreatedAt, order.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return fmt.Errorf("%w: %s", ErrOrderExists, order.ID)
		}
		return fmt.Errorf("insert order: %w", err)
	}

	return nil
}

// GetOrder возвращает заказ по идентификатору.
func (r *PostgresRepository) GetOrder(ctx context.Context, id string) (*model.Order, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, owner_user_id, status, items, contact, total_items, total_price, created_at, updated_at
		 FROM orders
		 WHERE id = $1`,
		id,
	)

	order, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order: %w", err)
	}

	return order, nil
}

// ListOrders возвращает все заказы, сначала новые.
func (r *PostgresRepository) ListOrders(ctx context.Context) ([]model.Order, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, owner_user_id, status, items, contact, total_items, total_price, created_at, updated_at
		 FROM orders
		 ORDER BY created_at DESC, id DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("select orders: %w", err)
	}
	defer rows.Close()

	return collectOrders(rows)
}

// ListOrdersByOwner возвращает заказы указанного владельца, сначала новые.
func (r *PostgresRepository) ListOrdersByOwner(ctx context.Context, ownerUserID string, limit int) ([]model.Order, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, owner_user_id, status, items, contact, total_items, total_price, created_at, updated_at
		 FROM orders
		 WHERE owner_user_id = $1
		 ORDER BY created_at DESC, id DESC
		 LIMIT $2`,
		ownerUserID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("select orders by owner: %w", err)
	}
	defer rows.Close()

	return collectOrders(rows)
}

// UpdateOrderStatus атомарно меняет статус заказа и возвращает обновлённый заказ.
func (r *PostgresRepository) UpdateOrderStatus(ctx context.Context, id string, status model.OrderStatus) (*model.Order, error) {
	row := r.pool.QueryRow(ctx,
		`UPDATE orders
		 SET status = $2, updated_at = now()
		 WHERE id = $1
		 RETURNING id, owner_user_id, status, items, contact, total_items, total_price, created_at, updated_at`,
		id, string(status),
	)

	order, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("update order status: %w", err)
	}

	return order, nil
}

// DeleteOrder удаляет заказ по идентификатору.
func (r *PostgresRepository) DeleteOrder(ctx context.Context, id string) error {
	cmdTag, err := r.pool.Exec(ctx, `DELETE FROM orders WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete order: %w", err)
	}

	if cmdTag.RowsAffected() == 0 {
		return ErrOrderNotFound
	}

	return nil
}

// CountOrdersByStatus возвращает количество заказов по каждому статусу.
func (r *PostgresRepository) CountOrdersByStatus(ctx context.Context) (map[model.OrderStatus]int64, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT status, COUNT(*) FROM orders GROUP BY status`,
	)
	if err != nil {
		return nil, fmt.Errorf("count orders: %w", err)
	}
	defer rows.Close()

	counts := make(map[model.OrderStatus]int64)
	for rows.Next() {
		var status string
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		counts[model.OrderStatus(status)] = count
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return counts, nil
}

// IsAdmin сообщает, числится ли uid в таблице администраторов.
// Реализует контракт хранилища ролей.
func (r *PostgresRepository) IsAdmin(ctx context.Context, uid string) (bool, error) {
	var admin bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM admins WHERE uid = $1)`,
		uid,
	).Scan(&admin)
	if err != nil {
		return false, fmt.Errorf("lookup admin role: %w", err)
	}

	return admin, nil
}

func scanOrder(row pgx.Row) (*model.Order, error) {
	var (
		o       model.Order
		status  string
		items   []byte
		contact []byte
	)

	err := row.Scan(&o.ID, &o.OwnerUserID, &status, &items, &contact,
		&o.TotalItems, &o.TotalPrice, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, err
	}

	o.Status = model.OrderStatus(status)

	if err := json.Unmarshal(items, &o.Items); err != nil {
		return nil, fmt.Errorf("unmarshal items: %w", err)
	}
	if err := json.Unmarshal(contact, &o.Contact); err != nil {
		return nil, fmt.Errorf("unmarshal contact: %w", err)
	}

	return &o, nil
}

func collectOrders(rows pgx.Rows) ([]model.Order, error) {
	var orders []model.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, *order)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return orders, nil
}
