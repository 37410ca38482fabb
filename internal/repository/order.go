package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/flicky/grocery-storefront/internal/model"
)

type OrderFilter struct {
	Status model.PaymentStatus
	// Search matches order number, payment reference or product name.
	Search string
	Limit  int
	Offset int
}

type OrderRepository interface {
	Create(ctx context.Context, order *model.Order) error
	GetByOrderNumber(ctx context.Context, orderNumber string) (*model.Order, error)
	ListForUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]model.Order, int, error)
	ListAll(ctx context.Context, f OrderFilter) ([]model.Order, int, error)
	ListByPaymentRef(ctx context.Context, paymentRef string) ([]model.Order, error)
	// UpdateStatus is a compare-and-set on the current status and returns
	// ErrVersionConflict if the order moved in the meantime.
	UpdateStatus(ctx context.Context, order *model.Order, from model.PaymentStatus) error
	Delete(ctx context.Context, orderNumber string) error
}

type pgOrderRepo struct{ pool *pgxpool.Pool }

func NewOrderRepository(pool *pgxpool.Pool) OrderRepository {
	return &pgOrderRepo{pool: pool}
}

const orderColumns = `id, order_number, user_id, product_id, quantity, product_details, subtotal, total,
	payment_status, delivery_address_id, payment_ref, invoice_ref, created_at, updated_at`

func scanOrder(row pgx.Row, o *model.Order) error {
	return row.Scan(&o.ID, &o.OrderNumber, &o.UserID, &o.ProductID, &o.Quantity, &o.ProductDetails,
		&o.Subtotal, &o.Total, &o.PaymentStatus, &o.DeliveryAddressID, &o.PaymentRef, &o.InvoiceRef,
		&o.CreatedAt, &o.UpdatedAt)
}

const insertOrderSQL = `INSERT INTO orders (id, order_number, user_id, product_id, quantity, product_details,
		subtotal, total, payment_status, delivery_address_id, payment_ref, invoice_ref, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NOW(), NOW())
	RETURNING created_at, updated_at`

func insertOrder(ctx context.Context, q interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}, o *model.Order) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	if o.ProductDetails.Images == nil {
		o.ProductDetails.Images = []string{}
	}
	return q.QueryRow(ctx, insertOrderSQL,
		o.ID, o.OrderNumber, o.UserID, o.ProductID, o.Quantity, o.ProductDetails,
		o.Subtotal, o.Total, o.PaymentStatus, o.DeliveryAddressID, o.PaymentRef, o.InvoiceRef,
	).Scan(&o.CreatedAt, &o.UpdatedAt)
}

func (r *pgOrderRepo) Create(ctx context.Context, o *model.Order) error {
	if err := insertOrder(ctx, r.pool, o); err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

func (r *pgOrderRepo) GetByOrderNumber(ctx context.Context, orderNumber string) (*model.Order, error) {
	o := &model.Order{}
	err := scanOrder(r.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE order_number = $1`, orderNumber), o)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get order: %w", err)
	}
	return o, nil
}

func (r *pgOrderRepo) ListForUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]model.Order, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM orders WHERE user_id = $1`, userID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count orders: %w", err)
	}
	orders, err := r.query(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE user_id = $1 ORDER BY created_at DESC, order_number LIMIT $2 OFFSET $3`,
		userID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	return orders, total, nil
}

func (r *pgOrderRepo) ListAll(ctx context.Context, f OrderFilter) ([]model.Order, int, error) {
	where := `($1 = '' OR payment_status = $1)
		AND ($2 = '' OR order_number ILIKE '%' || $2 || '%' OR payment_ref ILIKE '%' || $2 || '%'
		     OR product_details->>'name' ILIKE '%' || $2 || '%')`

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM orders WHERE `+where, string(f.Status), f.Search).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count orders: %w", err)
	}
	orders, err := r.query(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE `+where+` ORDER BY created_at DESC, order_number LIMIT $3 OFFSET $4`,
		string(f.Status), f.Search, f.Limit, f.Offset)
	if err != nil {
		return nil, 0, err
	}
	return orders, total, nil
}

func (r *pgOrderRepo) ListByPaymentRef(ctx context.Context, paymentRef string) ([]model.Order, error) {
	return r.query(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE payment_ref = $1 ORDER BY order_number`, paymentRef)
}

func (r *pgOrderRepo) query(ctx context.Context, sql string, args ...any) ([]model.Order, error) {
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	var orders []model.Order
	for rows.Next() {
		var o model.Order
		if err := scanOrder(rows, &o); err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

func (r *pgOrderRepo) UpdateStatus(ctx context.Context, o *model.Order, from model.PaymentStatus) error {
	err := r.pool.QueryRow(ctx,
		`UPDATE orders SET payment_status = $3, payment_ref = $4, invoice_ref = $5, updated_at = NOW()
		 WHERE order_number = $1 AND payment_status = $2
		 RETURNING updated_at`,
		o.OrderNumber, from, o.PaymentStatus, o.PaymentRef, o.InvoiceRef,
	).Scan(&o.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrVersionConflict
		}
		return fmt.Errorf("update order status: %w", err)
	}
	return nil
}

func (r *pgOrderRepo) Delete(ctx context.Context, orderNumber string) error {
	ct, err := r.pool.Exec(ctx, `DELETE FROM orders WHERE order_number = $1`, orderNumber)
	if err != nil {
		return fmt.Errorf("delete order: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}
