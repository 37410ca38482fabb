package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/flicky/grocery-storefront/internal/model"
)

type UserRepository interface {
	Create(ctx context.Context, user *model.User) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.User, error)
	GetByEmailOrUsername(ctx context.Context, login string) (*model.User, error)
	// SetRefreshTokenID replaces the user's single refresh slot. An empty
	// jti revokes every refresh token of the user.
	SetRefreshTokenID(ctx context.Context, id uuid.UUID, jti string) error
	RecordLogin(ctx context.Context, id uuid.UUID, jti string) error
	UpdateStatus(ctx context.Context, id uuid.UUID, status model.UserStatus) error
	UpdateRole(ctx context.Context, id uuid.UUID, role model.Role) error
	// UpdateProfile writes name, email, username and password hash.
	UpdateProfile(ctx context.Context, user *model.User) error
	List(ctx context.Context, limit, offset int) ([]model.User, int, error)
	SetPasswordReset(ctx context.Context, id uuid.UUID, otpHash string, expiresAt time.Time) error
	MarkPasswordResetVerified(ctx context.Context, id uuid.UUID) error
	// ResetPassword stores the new hash, clears the pending reset and
	// revokes the refresh slot in one statement.
	ResetPassword(ctx context.Context, id uuid.UUID, passwordHash string) error
}

type pgUserRepo struct{ pool *pgxpool.Pool }

func NewUserRepository(pool *pgxpool.Pool) UserRepository {
	return &pgUserRepo{pool: pool}
}

const userColumns = `id, name, email, COALESCE(username, ''), password_hash, role, status,
	refresh_token_id, password_reset_otp_hash, password_reset_expires_at, password_reset_verified,
	last_login_at, created_at, updated_at`

func scanUser(row pgx.Row) (*model.User, error) {
	u := &model.User{}
	err := row.Scan(&u.ID, &u.Name, &u.Email, &u.Username, &u.Password, &u.Role, &u.Status,
		&u.RefreshTokenID, &u.PasswordReset.OTPHash, &u.PasswordReset.ExpiresAt, &u.PasswordReset.Verified,
		&u.LastLoginAt, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return u, nil
}

func (r *pgUserRepo) Create(ctx context.Context, user *model.User) error {
	user.ID = uuid.New()
	var username *string
	if user.Username != "" {
		username = &user.Username
	}
	query := `INSERT INTO users (id, name, email, username, password_hash, role, status, created_at, updated_at)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW())
			  RETURNING created_at, updated_at`
	err := r.pool.QueryRow(ctx, query,
		user.ID, user.Name, user.Email, username, user.Password, user.Role, user.Status,
	).Scan(&user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (r *pgUserRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.User, error) {
	u, err := scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get user by id: %w", err)
	}
	return u, nil
}

func (r *pgUserRepo) GetByEmailOrUsername(ctx context.Context, login string) (*model.User, error) {
	u, err := scanUser(r.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE lower(email) = lower($1) OR username = $1 LIMIT 1`, login))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get user by login: %w", err)
	}
	return u, nil
}

func (r *pgUserRepo) SetRefreshTokenID(ctx context.Context, id uuid.UUID, jti string) error {
	ct, err := r.pool.Exec(ctx,
		`UPDATE users SET refresh_token_id = $2, updated_at = NOW() WHERE id = $1`, id, jti)
	if err != nil {
		return fmt.Errorf("set refresh token: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *pgUserRepo) RecordLogin(ctx context.Context, id uuid.UUID, jti string) error {
	ct, err := r.pool.Exec(ctx,
		`UPDATE users SET refresh_token_id = $2, last_login_at = NOW(), updated_at = NOW() WHERE id = $1`, id, jti)
	if err != nil {
		return fmt.Errorf("record login: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *pgUserRepo) UpdateStatus(ctx context.Context, id uuid.UUID, status model.UserStatus) error {
	ct, err := r.pool.Exec(ctx,
		`UPDATE users SET status = $2, updated_at = NOW() WHERE id = $1`, id, status)
	if err != nil {
		return fmt.Errorf("update user status: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *pgUserRepo) UpdateRole(ctx context.Context, id uuid.UUID, role model.Role) error {
	return r.exec(ctx, "update user role",
		`UPDATE users SET role = $2, updated_at = NOW() WHERE id = $1`, id, role)
}

func (r *pgUserRepo) UpdateProfile(ctx context.Context, user *model.User) error {
	var username *string
	if user.Username != "" {
		username = &user.Username
	}
	ct, err := r.pool.Exec(ctx,
		`UPDATE users SET name = $2, email = $3, username = $4, password_hash = $5, updated_at = NOW()
		 WHERE id = $1`,
		user.ID, user.Name, user.Email, username, user.Password)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("update user profile: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *pgUserRepo) List(ctx context.Context, limit, offset int) ([]model.User, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM users`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count users: %w", err)
	}

	rows, err := r.pool.Query(ctx,
		`SELECT `+userColumns+` FROM users ORDER BY created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var users []model.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, *u)
	}
	return users, total, rows.Err()
}

func (r *pgUserRepo) SetPasswordReset(ctx context.Context, id uuid.UUID, otpHash string, expiresAt time.Time) error {
	return r.exec(ctx, "set password reset",
		`UPDATE users SET password_reset_otp_hash = $2, password_reset_expires_at = $3,
		 password_reset_verified = FALSE, updated_at = NOW() WHERE id = $1`,
		id, otpHash, expiresAt)
}

func (r *pgUserRepo) MarkPasswordResetVerified(ctx context.Context, id uuid.UUID) error {
	return r.exec(ctx, "verify password reset",
		`UPDATE users SET password_reset_verified = TRUE, updated_at = NOW()
		 WHERE id = $1 AND password_reset_otp_hash <> ''`, id)
}

func (r *pgUserRepo) ResetPassword(ctx context.Context, id uuid.UUID, passwordHash string) error {
	return r.exec(ctx, "reset password",
		`UPDATE users SET password_hash = $2, refresh_token_id = '',
		 password_reset_otp_hash = '', password_reset_expires_at = NULL, password_reset_verified = FALSE,
		 updated_at = NOW()
		 WHERE id = $1`, id, passwordHash)
}

func (r *pgUserRepo) exec(ctx context.Context, op, query string, args ...any) error {
	ct, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if ct.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}
