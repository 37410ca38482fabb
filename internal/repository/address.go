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

type AddressRepository interface {
	Create(ctx context.Context, addr *model.Address) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.Address, error)
	ListActive(ctx context.Context, userID uuid.UUID) ([]model.Address, error)
	// Update rewrites the editable fields of an active address owned by
	// addr.UserID.
	Update(ctx context.Context, addr *model.Address) error
	Deactivate(ctx context.Context, id, userID uuid.UUID) error
}

type pgAddressRepo struct{ pool *pgxpool.Pool }

func NewAddressRepository(pool *pgxpool.Pool) AddressRepository {
	return &pgAddressRepo{pool: pool}
}

const addressColumns = `id, user_id, address_line, city, state, pincode, country, mobile, active, created_at, updated_at`

func scanAddress(row pgx.Row, a *model.Address) error {
	return row.Scan(&a.ID, &a.UserID, &a.AddressLine, &a.City, &a.State, &a.Pincode,
		&a.Country, &a.Mobile, &a.Active, &a.CreatedAt, &a.UpdatedAt)
}

func (r *pgAddressRepo) Create(ctx context.Context, a *model.Address) error {
	a.ID = uuid.New()
	a.Active = true
	err := r.pool.QueryRow(ctx,
		`INSERT INTO addresses (id, user_id, address_line, city, state, pincode, country, mobile, active, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, TRUE, NOW(), NOW())
		 RETURNING created_at, updated_at`,
		a.ID, a.UserID, a.AddressLine, a.City, a.State, a.Pincode, a.Country, a.Mobile,
	).Scan(&a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create address: %w", err)
	}
	return nil
}

func (r *pgAddressRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.Address, error) {
	a := &model.Address{}
	err := scanAddress(r.pool.QueryRow(ctx, `SELECT `+addressColumns+` FROM addresses WHERE id = $1`, id), a)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get address: %w", err)
	}
	return a, nil
}

func (r *pgAddressRepo) ListActive(ctx context.Context, userID uuid.UUID) ([]model.Address, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+addressColumns+` FROM addresses WHERE user_id = $1 AND active ORDER BY created_at`, userID)
	if err != nil {
		return nil, fmt.Errorf("list addresses: %w", err)
	}
	defer rows.Close()

	var out []model.Address
	for rows.Next() {
		var a model.Address
		if err := scanAddress(rows, &a); err != nil {
			return nil, fmt.Errorf("scan address: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// Deactivate soft-deletes an address so orders keep a valid reference.
func (r *pgAddressRepo) Deactivate(ctx context.Context, id, userID uuid.UUID) error {
	ct, err := r.pool.Exec(ctx,
		`UPDATE addresses SET active = FALSE, updated_at = NOW() WHERE id = $1 AND user_id = $2 AND active`,
		id, userID)
	if err != nil {
		return fmt.Errorf("deactivate address: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *pgAddressRepo) Update(ctx context.Context, a *model.Address) error {
	err := r.pool.QueryRow(ctx,
		`UPDATE addresses SET address_line = $3, city = $4, state = $5, pincode = $6, country = $7, mobile = $8,
		 updated_at = NOW()
		 WHERE id = $1 AND user_id = $2 AND active
		 RETURNING updated_at`,
		a.ID, a.UserID, a.AddressLine, a.City, a.State, a.Pincode, a.Country, a.Mobile,
	).Scan(&a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return err
	}
	if err != nil {
		return fmt.Errorf("update address: %w", err)
	}
	return nil
}
