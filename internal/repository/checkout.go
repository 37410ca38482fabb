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

var ErrAlreadyMaterialized = errors.New("checkout already materialized")

// ConsumedLine identifies a cart line read at confirmation time. It is
// deleted only if its version is unchanged.
type ConsumedLine struct {
	ID      uuid.UUID
	Version int
}

type CheckoutRepository interface {
	// CreateIntent inserts a pending intent, or returns the stored one if the
	// payment reference is already known.
	CreateIntent(ctx context.Context, intent *model.CheckoutIntent) (*model.CheckoutIntent, error)
	GetIntent(ctx context.Context, paymentRef string) (*model.CheckoutIntent, error)
	MarkFailed(ctx context.Context, paymentRef string) error
	// Materialize inserts the orders, deletes the consumed cart lines and
	// marks the intent materialized in one transaction.
	Materialize(ctx context.Context, paymentRef string, orders []model.Order, consumed []ConsumedLine) error
}

type pgCheckoutRepo struct{ pool *pgxpool.Pool }

func NewCheckoutRepository(pool *pgxpool.Pool) CheckoutRepository {
	return &pgCheckoutRepo{pool: pool}
}

const intentColumns = `payment_ref, user_id, delivery_address_id, discount_code, amount_minor, currency, status, created_at, updated_at`

func scanIntent(row pgx.Row) (*model.CheckoutIntent, error) {
	i := &model.CheckoutIntent{}
	err := row.Scan(&i.PaymentRef, &i.UserID, &i.DeliveryAddressID, &i.DiscountCode, &i.AmountMinor,
		&i.Currency, &i.Status, &i.CreatedAt, &i.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return i, nil
}

func (r *pgCheckoutRepo) CreateIntent(ctx context.Context, in *model.CheckoutIntent) (*model.CheckoutIntent, error) {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO checkout_intents (payment_ref, user_id, delivery_address_id, discount_code, amount_minor, currency, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, 'pending', NOW(), NOW())
		 ON CONFLICT (payment_ref) DO NOTHING`,
		in.PaymentRef, in.UserID, in.DeliveryAddressID, in.DiscountCode, in.AmountMinor, in.Currency)
	if err != nil {
		return nil, fmt.Errorf("create checkout intent: %w", err)
	}
	stored, err := r.GetIntent(ctx, in.PaymentRef)
	if err != nil {
		return nil, err
	}
	if stored == nil {
		return nil, fmt.Errorf("checkout intent %s vanished after insert", in.PaymentRef)
	}
	return stored, nil
}

func (r *pgCheckoutRepo) GetIntent(ctx context.Context, paymentRef string) (*model.CheckoutIntent, error) {
	i, err := scanIntent(r.pool.QueryRow(ctx,
		`SELECT `+intentColumns+` FROM checkout_intents WHERE payment_ref = $1`, paymentRef))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get checkout intent: %w", err)
	}
	return i, nil
}

func (r *pgCheckoutRepo) MarkFailed(ctx context.Context, paymentRef string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE checkout_intents SET status = 'failed', updated_at = NOW()
		 WHERE payment_ref = $1 AND status = 'pending'`, paymentRef)
	if err != nil {
		return fmt.Errorf("mark checkout intent failed: %w", err)
	}
	return nil
}

func (r *pgCheckoutRepo) Materialize(ctx context.Context, paymentRef string, orders []model.Order, consumed []ConsumedLine) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var status model.IntentStatus
	var userID uuid.UUID
	err = tx.QueryRow(ctx,
		`SELECT status, user_id FROM checkout_intents WHERE payment_ref = $1 FOR UPDATE`, paymentRef,
	).Scan(&status, &userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("checkout intent %s not found", paymentRef)
		}
		return fmt.Errorf("lock checkout intent: %w", err)
	}
	if status == model.IntentMaterialized {
		return ErrAlreadyMaterialized
	}

	for i := range orders {
		if err := insertOrder(ctx, tx, &orders[i]); err != nil {
			return fmt.Errorf("insert order: %w", err)
		}
	}

	for _, l := range consumed {
		ct, err := tx.Exec(ctx,
			`DELETE FROM cart_lines WHERE id = $1 AND user_id = $2 AND version = $3`, l.ID, userID, l.Version)
		if err != nil {
			return fmt.Errorf("delete cart line: %w", err)
		}
		if ct.RowsAffected() == 0 {
			return fmt.Errorf("cart line %s: %w", l.ID, ErrVersionConflict)
		}
	}

	if _, err := tx.Exec(ctx,
		`UPDATE checkout_intents SET status = 'materialized', updated_at = NOW() WHERE payment_ref = $1`, paymentRef,
	); err != nil {
		return fmt.Errorf("mark checkout intent materialized: %w", err)
	}
	return tx.Commit(ctx)
}
