package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/mmeshcher/sales-system/internal/model"
)

// reserveStock выполняет атомарное условное списание остатка.
// Ноль затронутых строк означает либо отсутствие товара, либо нехватку остатка.
func reserveStock(ctx context.Context, tx pgx.Tx, productID int64, quantity int) error {
	cmdTag, err := tx.Exec(ctx,
		`UPDATE products SET stock = stock - $2 WHERE id = $1 AND stock >= $2`,
		productID, quantity,
	)
	if err != nil {
		return fmt.Errorf("reserve stock: %w", err)
	}
	if cmdTag.RowsAffected() == 1 {
		return nil
	}

	var exists bool
	err = tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM products WHERE id = $1)`, productID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check product: %w", err)
	}
	if !exists {
		return fmt.Errorf("%w: id %d", ErrProductNotFound, productID)
	}
	return fmt.Errorf("%w: product %d", ErrInsufficientStock, productID)
}

// CreateOrder создаёт заказ со статусом pending, резервируя остаток по каждой позиции.
// Операция атомарна: при любой ошибке ни одна позиция не фиксируется.
func (r *PostgresRepository) CreateOrder(ctx context.Context, clientID int64, createdAt time.Time, items []model.OrderItem) (*model.Order, error) {
	var order *model.Order

	err := r.withRetry(ctx, func() error {
		var err error
		order, err = r.createOrderTx(ctx, clientID, createdAt, items)
		return err
	})
	if err != nil {
		return nil, err
	}

	return order, nil
}

func (r *PostgresRepository) createOrderTx(ctx context.Context, clientID int64, createdAt time.Time, items []model.OrderItem) (*model.Order, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var exists bool
	err = tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM clients WHERE id = $1)`, clientID).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("check client: %w", err)
	}
	if !exists {
		return nil, ErrClientNotFound
	}

	for _, item := range items {
		if err := reserveStock(ctx, tx, item.ProductID, item.Quantity); err != nil {
			return nil, err
		}
	}

	var orderID int64
	err = tx.QueryRow(ctx,
		`INSERT INTO orders (client_id, status, created_at) VALUES ($1, $2, $3) RETURNING id`,
		clientID, string(model.OrderStatusPending), createdAt,
	).Scan(&orderID)
	if err != nil {
		return nil, fmt.Errorf("insert order: %w", err)
	}

	for _, item := range items {
		_, err = tx.Exec(ctx,
			`INSERT INTO order_items (order_id, product_id, quantity) VALUES ($1, $2, $3)`,
			orderID, item.ProductID, item.Quantity,
		)
		if err != nil {
			return nil, fmt.Errorf("insert order item: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	return &model.Order{
		ID:        orderID,
		ClientID:  clientID,
		Status:    model.OrderStatusPending,
		CreatedAt: createdAt,
		Items:     items,
	}, nil
}

// UpdateOrder заменяет клиента и набор позиций заказа. Возврат старых резервов,
// удаление старых позиций и резервирование новых выполняются в одной транзакции,
// поэтому ошибка на любом шаге откатывает и возврат остатков.
func (r *PostgresRepository) UpdateOrder(ctx context.Context, orderID, clientID int64, items []model.OrderItem) (*model.Order, error) {
	var order *model.Order

	err := r.withRetry(ctx, func() error {
		var err error
		order, err = r.updateOrderTx(ctx, orderID, clientID, items)
		return err
	})
	if err != nil {
		return nil, err
	}

	return order, nil
}

func (r *PostgresRepository) updateOrderTx(ctx context.Context, orderID, clientID int64, items []model.OrderItem) (*model.Order, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var status string
	var createdAt time.Time
	err = tx.QueryRow(ctx,
		`SELECT status, created_at FROM orders WHERE id = $1 FOR UPDATE`,
		orderID,
	).Scan(&status, &createdAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("lock order: %w", err)
	}

	var exists bool
	err = tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM clients WHERE id = $1)`, clientID).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("check client: %w", err)
	}
	if !exists {
		return nil, ErrClientNotFound
	}

	// Возврат остатков по текущим позициям заказа
	_, err = tx.Exec(ctx,
		`UPDATE products p SET stock = p.stock + oi.quantity
		 FROM order_items oi
		 WHERE oi.order_id = $1 AND oi.product_id = p.id`,
		orderID,
	)
	if err != nil {
		return nil, fmt.Errorf("restock items: %w", err)
	}

	_, err = tx.Exec(ctx, `DELETE FROM order_items WHERE order_id = $1`, orderID)
	if err != nil {
		return nil, fmt.Errorf("delete order items: %w", err)
	}

	for _, item := range items {
		if err := reserveStock(ctx, tx, item.ProductID, item.Quantity); err != nil {
			return nil, err
		}
		_, err = tx.Exec(ctx,
			`INSERT INTO order_items (order_id, product_id, quantity) VALUES ($1, $2, $3)`,
			orderID, item.ProductID, item.Quantity,
		)
		if err != nil {
			return nil, fmt.Errorf("insert order item: %w", err)
		}
	}

	_, err = tx.Exec(ctx, `UPDATE orders SET client_id = $2 WHERE id = $1`, orderID, clientID)
	if err != nil {
		return nil, fmt.Errorf("update order: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	return &model.Order{
		ID:        orderID,
		ClientID:  clientID,
		Status:    model.OrderStatus(status),
		CreatedAt: createdAt,
		Items:     items,
	}, nil
}

// UpdateOrderStatus меняет статус заказа и добавляет ровно одну запись в журнал смен статуса.
// Возвращает предыдущий статус и идентификатор клиента заказа.
func (r *PostgresRepository) UpdateOrderStatus(ctx context.Context, orderID int64, status model.OrderStatus) (model.OrderStatus, int64, error) {
	var previous model.OrderStatus
	var clientID int64

	err := r.withRetry(ctx, func() error {
		var err error
		previous, clientID, err = r.updateOrderStatusTx(ctx, orderID, status)
		return err
	})
	if err != nil {
		return "", 0, err
	}

	return previous, clientID, nil
}

func (r *PostgresRepository) updateOrderStatusTx(ctx context.Context, orderID int64, status model.OrderStatus) (model.OrderStatus, int64, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return "", 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var previous string
	var clientID int64
	err = tx.QueryRow(ctx,
		`SELECT status, client_id FROM orders WHERE id = $1 FOR UPDATE`,
		orderID,
	).Scan(&previous, &clientID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", 0, ErrOrderNotFound
		}
		return "", 0, fmt.Errorf("lock order: %w", err)
	}

	_, err = tx.Exec(ctx, `UPDATE orders SET status = $2 WHERE id = $1`, orderID, string(status))
	if err != nil {
		return "", 0, fmt.Errorf("update order status: %w", err)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO order_status_events (order_id, previous_status, new_status) VALUES ($1, $2, $3)`,
		orderID, previous, string(status),
	)
	if err != nil {
		return "", 0, fmt.Errorf("insert status event: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return "", 0, fmt.Errorf("commit tx: %w", err)
	}

	return model.OrderStatus(previous), clientID, nil
}

// DeleteOrder удаляет заказ вместе с позициями и журналом статусов (каскадно).
// Остатки товаров при этом не восстанавливаются.
func (r *PostgresRepository) DeleteOrder(ctx context.Context, orderID int64) error {
	return r.withRetry(ctx, func() error {
		cmdTag, err := r.pool.Exec(ctx, `DELETE FROM orders WHERE id = $1`, orderID)
		if err != nil {
			return fmt.Errorf("delete order: %w", err)
		}
		if cmdTag.RowsAffected() == 0 {
			return ErrOrderNotFound
		}
		return nil
	})
}

// GetOrderByID возвращает заказ вместе с позициями.
func (r *PostgresRepository) GetOrderByID(ctx context.Context, orderID int64) (*model.Order, error) {
	var o model.Order
	var status string
	err := r.pool.QueryRow(ctx,
		`SELECT id, client_id, status, created_at FROM orders WHERE id = $1`,
		orderID,
	).Scan(&o.ID, &o.ClientID, &status, &o.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order: %w", err)
	}
	o.Status = model.OrderStatus(status)

	itemsByOrder, err := r.loadOrderItems(ctx, []int64{o.ID})
	if err != nil {
		return nil, err
	}
	o.Items = itemsByOrder[o.ID]

	return &o, nil
}

// OrderFilter задаёт фильтры и пагинацию для выборки заказов. Фильтры объединяются по AND.
type OrderFilter struct {
	ClientID  *int64
	Status    *model.OrderStatus
	StartDate *time.Time
	EndDate   *time.Time
	Skip      int
	Limit     int
}

// ListOrders возвращает заказы, удовлетворяющие фильтрам, вместе с позициями.
func (r *PostgresRepository) ListOrders(ctx context.Context, f OrderFilter) ([]model.Order, error) {
	query := `SELECT id, client_id, status, created_at FROM orders`
	var conds []string
	var args []any

	if f.ClientID != nil {
		args = append(args, *f.ClientID)
		conds = append(conds, fmt.Sprintf("client_id = $%d", len(args)))
	}
	if f.Status != nil {
		args = append(args, string(*f.Status))
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}
	if f.StartDate != nil {
		args = append(args, *f.StartDate)
		conds = append(conds, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if f.EndDate != nil {
		args = append(args, *f.EndDate)
		conds = append(conds, fmt.Sprintf("created_at <= $%d", len(args)))
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}

	args = append(args, f.Skip, f.Limit)
	query += fmt.Sprintf(" ORDER BY id OFFSET $%d LIMIT $%d", len(args)-1, len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select orders: %w", err)
	}
	defer rows.Close()

	var orders []model.Order
	var ids []int64
	for rows.Next() {
		var o model.Order
		var status string
		if err := rows.Scan(&o.ID, &o.ClientID, &status, &o.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		o.Status = model.OrderStatus(status)
		orders = append(orders, o)
		ids = append(ids, o.ID)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	if len(orders) == 0 {
		return orders, nil
	}

	itemsByOrder, err := r.loadOrderItems(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range orders {
		orders[i].Items = itemsByOrder[orders[i].ID]
	}

	return orders, nil
}

func (r *PostgresRepository) loadOrderItems(ctx context.Context, orderIDs []int64) (map[int64][]model.OrderItem, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT order_id, product_id, quantity FROM order_items WHERE order_id = ANY($1) ORDER BY order_id, product_id`,
		orderIDs,
	)
	if err != nil {
		return nil, fmt.Errorf("select order items: %w", err)
	}
	defer rows.Close()

	res := make(map[int64][]model.OrderItem, len(orderIDs))
	for rows.Next() {
		var orderID int64
		var item model.OrderItem
		if err := rows.Scan(&orderID, &item.ProductID, &item.Quantity); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		res[orderID] = append(res[orderID], item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}
