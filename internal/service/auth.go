package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/flicky/grocery-storefront/internal/apperr"
	"github.com/flicky/grocery-storefront/internal/dto"
	"github.com/flicky/grocery-storefront/internal/model"
	"github.com/flicky/grocery-storefront/internal/repository"
	"github.com/flicky/grocery-storefront/internal/token"
)

var (
	ErrUserAlreadyExists  = apperr.New(apperr.Conflict, "user_exists", "user already exists")
	ErrInvalidCredentials = apperr.New(apperr.Auth, "invalid_credentials", "invalid credentials")
	ErrAccountInactive    = apperr.New(apperr.Forbidden, "account_inactive", "account is not active")
	ErrAuthRequired       = apperr.New(apperr.Auth, "auth_required", "authentication required")
	ErrTokenExpired       = apperr.New(apperr.Auth, "token_expired", "token expired")
	ErrTokenInvalid       = apperr.New(apperr.Auth, "invalid_token", "invalid token")
	ErrTokenRevoked       = apperr.New(apperr.Auth, "token_revoked", "refresh token revoked")
)

// TokenError maps a token package error onto the auth error kinds.
func TokenError(err error) error {
	switch {
	case errors.Is(err, token.ErrExpired):
		return ErrTokenExpired
	case errors.Is(err, token.ErrMalformed):
		return ErrTokenInvalid
	}
	return err
}

type Session struct {
	User         *model.User
	AccessToken  string
	RefreshToken string
}

type AuthService struct {
	userRepo repository.UserRepository
	tokens   *token.Service
	log      *slog.Logger
}

func NewAuthService(userRepo repository.UserRepository, tokens *token.Service, log *slog.Logger) *AuthService {
	return &AuthService{userRepo: userRepo, tokens: tokens, log: log}
}

func (s *AuthService) Register(ctx context.Context, req dto.RegisterRequest) (*model.User, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	existing, err := s.userRepo.GetByEmailOrUsername(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("check user: %w", err)
	}
	if existing != nil {
		return nil, ErrUserAlreadyExists
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &model.User{
		Name: req.Name, Email: email, Username: req.Username, Password: string(hashed),
		Role: model.RoleUser, Status: model.UserActive,
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrUserAlreadyExists
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	s.log.Info("user registered", "user_id", user.ID)
	return user, nil
}

// Login verifies credentials and opens a session. The new refresh token
// replaces any previous one.
func (s *AuthService) Login(ctx context.Context, req dto.LoginRequest) (*Session, error) {
	user, err := s.userRepo.GetByEmailOrUsername(ctx, strings.TrimSpace(req.EmailOrUsername))
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	if user == nil {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	if user.Status != model.UserActive {
		return nil, ErrAccountInactive
	}

	access, err := s.tokens.IssueAccess(user.ID)
	if err != nil {
		return nil, fmt.Errorf("issue access token: %w", err)
	}
	refresh, jti, err := s.tokens.IssueRefresh(user.ID)
	if err != nil {
		return nil, fmt.Errorf("issue refresh token: %w", err)
	}
	if err := s.userRepo.RecordLogin(ctx, user.ID, jti); err != nil {
		return nil, fmt.Errorf("record login: %w", err)
	}
	user.RefreshTokenID = jti

	s.log.Info("user logged in", "user_id", user.ID)
	return &Session{User: user, AccessToken: access, RefreshToken: refresh}, nil
}

// Refresh exchanges a live refresh token for a new access token with the
// same subject.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (string, uuid.UUID, error) {
	if refreshToken == "" {
		return "", uuid.Nil, ErrAuthRequired
	}
	userID, jti, err := s.tokens.ParseRefresh(refreshToken)
	if err != nil {
		return "", uuid.Nil, TokenError(err)
	}

	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return "", uuid.Nil, fmt.Errorf("get user: %w", err)
	}
	if user == nil || user.RefreshTokenID == "" || user.RefreshTokenID != jti {
		return "", uuid.Nil, ErrTokenRevoked
	}
	if user.Status != model.UserActive {
		return "", uuid.Nil, ErrAccountInactive
	}

	access, err := s.tokens.IssueAccess(user.ID)
	if err != nil {
		return "", uuid.Nil, fmt.Errorf("issue access token: %w", err)
	}
	return access, user.ID, nil
}

// Logout clears the refresh slot, revoking every refresh token of the user.
func (s *AuthService) Logout(ctx context.Context, userID uuid.UUID) error {
	if err := s.userRepo.SetRefreshTokenID(ctx, userID, ""); err != nil {
		return fmt.Errorf("revoke refresh token: %w", err)
	}
	s.log.Info("user logged out", "user_id", userID)
	return nil
}
