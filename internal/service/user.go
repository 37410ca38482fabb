package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/flicky/grocery-storefront/internal/apperr"
	"github.com/flicky/grocery-storefront/internal/dto"
	"github.com/flicky/grocery-storefront/internal/model"
	"github.com/flicky/grocery-storefront/internal/repository"
)

var (
	ErrUserNotFound      = apperr.New(apperr.NotFound, "user_not_found", "user not found")
	ErrInvalidUserStatus = apperr.New(apperr.Validation, "invalid_status", "invalid user status")
	ErrInvalidRole       = apperr.New(apperr.Validation, "invalid_role", "invalid role")
	ErrSelfRoleChange    = apperr.New(apperr.Forbidden, "self_role_change", "admins cannot change their own role")
)

type UserService struct {
	userRepo repository.UserRepository
	log      *slog.Logger
}

func NewUserService(userRepo repository.UserRepository, log *slog.Logger) *UserService {
	return &UserService{userRepo: userRepo, log: log}
}

func (s *UserService) Get(ctx context.Context, id uuid.UUID) (*model.User, error) {
	user, err := s.userRepo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	return user, nil
}

// UpdateStatus sets the account status. Leaving Active also revokes the
// user's refresh token.
func (s *UserService) UpdateStatus(ctx context.Context, id uuid.UUID, status model.UserStatus) (*model.User, error) {
	if !status.Valid() {
		return nil, ErrInvalidUserStatus
	}
	if err := s.userRepo.UpdateStatus(ctx, id, status); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("update user status: %w", err)
	}
	if status != model.UserActive {
		if err := s.userRepo.SetRefreshTokenID(ctx, id, ""); err != nil {
			return nil, fmt.Errorf("revoke refresh token: %w", err)
		}
	}
	s.log.Info("user status updated", "user_id", id, "status", status)
	return s.Get(ctx, id)
}

// List returns one page of users, newest first.
func (s *UserService) List(ctx context.Context, page, limit int) ([]model.User, int, error) {
	users, total, err := s.userRepo.List(ctx, limit, (page-1)*limit)
	if err != nil {
		return nil, 0, fmt.Errorf("list users: %w", err)
	}
	return users, total, nil
}

// UpdateRole changes a user's role. Authorize reloads the user on every
// request, so the new role applies from the next call on.
func (s *UserService) UpdateRole(ctx context.Context, actorID, id uuid.UUID, role model.Role) (*model.User, error) {
	if !role.Valid() {
		return nil, ErrInvalidRole
	}
	if actorID == id {
		return nil, ErrSelfRoleChange
	}
	if err := s.userRepo.UpdateRole(ctx, id, role); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("update user role: %w", err)
	}
	s.log.Info("user role updated", "user_id", id, "role", role, "by", actorID)
	return s.Get(ctx, id)
}

// UpdateProfile applies the non-nil fields of req. A password change also
// revokes the refresh slot.
func (s *UserService) UpdateProfile(ctx context.Context, id uuid.UUID, req dto.UpdateUserRequest) (*model.User, error) {
	user, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.Name != nil {
		user.Name = strings.TrimSpace(*req.Name)
	}
	if req.Email != nil {
		user.Email = strings.ToLower(strings.TrimSpace(*req.Email))
	}
	if req.Username != nil {
		user.Username = *req.Username
	}
	if req.Password != nil {
		hashed, err := bcrypt.GenerateFromPassword([]byte(*req.Password), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("hash password: %w", err)
		}
		user.Password = string(hashed)
	}
	if user.Name == "" {
		return nil, apperr.New(apperr.Validation, "validation_error", "name cannot be blank")
	}

	if err := s.userRepo.UpdateProfile(ctx, user); err != nil {
		switch {
		case errors.Is(err, repository.ErrDuplicate):
			return nil, ErrUserAlreadyExists
		case errors.Is(err, pgx.ErrNoRows):
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("update user: %w", err)
	}
	if req.Password != nil {
		if err := s.userRepo.SetRefreshTokenID(ctx, id, ""); err != nil {
			return nil, fmt.Errorf("revoke refresh token: %w", err)
		}
	}
	s.log.Info("user updated", "user_id", id)
	return s.Get(ctx, id)
}
