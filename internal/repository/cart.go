package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/flicky/grocery-storefront/internal/model"
)

type CartRepository interface {
	// ListLines returns the user's lines joined with live product data.
	// Line.Product is nil when the product no longer exists.
	ListLines(ctx context.Context, userID uuid.UUID) ([]model.CartLine, error)
	GetLine(ctx context.Context, lineID uuid.UUID) (*model.CartLine, error)
	GetLineByProduct(ctx context.Context, userID, productID uuid.UUID) (*model.CartLine, error)
	// InsertLine returns ErrVersionConflict if a line for the same product
	// was inserted concurrently.
	InsertLine(ctx context.Context, line *model.CartLine) error
	// UpdateQuantity applies only when line.Version matches the stored version.
	UpdateQuantity(ctx context.Context, line *model.CartLine) error
	DeleteLine(ctx context.Context, userID, lineID uuid.UUID) error
	Clear(ctx context.Context, userID uuid.UUID) error
}

type pgCartRepo struct{ pool *pgxpool.Pool }

func NewCartRepository(pool *pgxpool.Pool) CartRepository {
	return &pgCartRepo{pool: pool}
}

func (r *pgCartRepo) ListLines(ctx context.Context, userID uuid.UUID) ([]model.CartLine, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT c.id, c.user_id, c.product_id, c.quantity, c.version, c.created_at, c.updated_at,
		        p.id, p.name, p.description, p.images, p.unit, p.price, p.discount, p.stock, p.publish, p.version,
		        p.created_at, p.updated_at
		 FROM cart_lines c
		 LEFT JOIN products p ON p.id = c.product_id
		 WHERE c.user_id = $1
		 ORDER BY c.created_at, c.id`, userID)
	if err != nil {
		return nil, fmt.Errorf("list cart lines: %w", err)
	}
	defer rows.Close()

	var lines []model.CartLine
	for rows.Next() {
		var (
			l        model.CartLine
			pid      *uuid.UUID
			name     *string
			desc     *string
			images   []string
			unit     *string
			price    decimal.NullDecimal
			discount decimal.NullDecimal
			stock    *int
			publish  *bool
			version  *int
			pc, pu   *time.Time
		)
		if err := rows.Scan(&l.ID, &l.UserID, &l.ProductID, &l.Quantity, &l.Version, &l.CreatedAt, &l.UpdatedAt,
			&pid, &name, &desc, &images, &unit, &price, &discount, &stock, &publish, &version, &pc, &pu); err != nil {
			return nil, fmt.Errorf("scan cart line: %w", err)
		}
		if pid != nil {
			l.Product = &model.Product{
				ID: *pid, Name: *name, Description: *desc, Images: images, Unit: *unit,
				Price: price.Decimal, Discount: discount.Decimal, Stock: *stock, Publish: *publish,
				Version: *version, CreatedAt: *pc, UpdatedAt: *pu,
			}
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

func (r *pgCartRepo) GetLine(ctx context.Context, lineID uuid.UUID) (*model.CartLine, error) {
	return r.getLine(ctx, `WHERE id = $1`, lineID)
}

func (r *pgCartRepo) GetLineByProduct(ctx context.Context, userID, productID uuid.UUID) (*model.CartLine, error) {
	return r.getLine(ctx, `WHERE user_id = $1 AND product_id = $2`, userID, productID)
}

func (r *pgCartRepo) getLine(ctx context.Context, where string, args ...any) (*model.CartLine, error) {
	l := &model.CartLine{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, user_id, product_id, quantity, version, created_at, updated_at FROM cart_lines `+where, args...,
	).Scan(&l.ID, &l.UserID, &l.ProductID, &l.Quantity, &l.Version, &l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get cart line: %w", err)
	}
	return l, nil
}

func (r *pgCartRepo) InsertLine(ctx context.Context, l *model.CartLine) error {
	l.ID = uuid.New()
	l.Version = 1
	err := r.pool.QueryRow(ctx,
		`INSERT INTO cart_lines (id, user_id, product_id, quantity, version, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, 1, NOW(), NOW())
		 RETURNING created_at, updated_at`,
		l.ID, l.UserID, l.ProductID, l.Quantity,
	).Scan(&l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrVersionConflict
		}
		return fmt.Errorf("insert cart line: %w", err)
	}
	return nil
}

func (r *pgCartRepo) UpdateQuantity(ctx context.Context, l *model.CartLine) error {
	err := r.pool.QueryRow(ctx,
		`UPDATE cart_lines SET quantity = $3, version = version + 1, updated_at = NOW()
		 WHERE id = $1 AND version = $2
		 RETURNING version, updated_at`,
		l.ID, l.Version, l.Quantity,
	).Scan(&l.Version, &l.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrVersionConflict
		}
		return fmt.Errorf("update cart line: %w", err)
	}
	return nil
}

func (r *pgCartRepo) DeleteLine(ctx context.Context, userID, lineID uuid.UUID) error {
	ct, err := r.pool.Exec(ctx, `DELETE FROM cart_lines WHERE id = $1 AND user_id = $2`, lineID, userID)
	if err != nil {
		return fmt.Errorf("delete cart line: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *pgCartRepo) Clear(ctx context.Context, userID uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM cart_lines WHERE user_id = $1`, userID)
	if err != nil {
		return fmt.Errorf("clear cart: %w", err)
	}
	return nil
}
