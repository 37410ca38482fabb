package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/flicky/grocery-storefront/internal/apperr"
	"github.com/flicky/grocery-storefront/internal/dto"
	"github.com/flicky/grocery-storefront/internal/model"
	"github.com/flicky/grocery-storefront/internal/repository"
)

const (
	resetOTPDigits = 6
	resetOTPTTL    = time.Hour
)

var (
	ErrResetNotRequested = apperr.New(apperr.Validation, "reset_not_requested", "no password reset in progress")
	ErrResetOTPExpired   = apperr.New(apperr.Validation, "otp_expired", "reset code expired")
	ErrResetOTPInvalid   = apperr.New(apperr.Validation, "invalid_otp", "invalid reset code")
	ErrResetNotVerified  = apperr.New(apperr.Validation, "otp_not_verified", "reset code not verified")
	ErrPasswordMismatch  = apperr.New(apperr.Validation, "password_mismatch", "new password and confirm password differ")
)

// ResetMailer delivers the one-time reset code to the account's email.
type ResetMailer interface {
	SendPasswordResetOTP(ctx context.Context, user *model.User, otp string, expiresAt time.Time) error
}

// PasswordResetService runs forgot-password, code verification and the
// final reset. Only the bcrypt hash of the code is stored.
type PasswordResetService struct {
	userRepo repository.UserRepository
	mailer   ResetMailer
	log      *slog.Logger
	now      func() time.Time
}

func NewPasswordResetService(userRepo repository.UserRepository, mailer ResetMailer, log *slog.Logger) *PasswordResetService {
	return &PasswordResetService{userRepo: userRepo, mailer: mailer, log: log, now: time.Now}
}

// Forgot issues a fresh code, replacing any earlier one. Unknown emails
// succeed silently so the endpoint does not reveal which accounts exist.
func (s *PasswordResetService) Forgot(ctx context.Context, req dto.ForgotPasswordRequest) error {
	user, err := s.lookup(ctx, req.Email)
	if err != nil {
		return err
	}
	if user == nil {
		s.log.Info("password reset for unknown email")
		return nil
	}

	otp, err := newOTP()
	if err != nil {
		return fmt.Errorf("generate otp: %w", err)
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(otp), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash otp: %w", err)
	}
	expiresAt := s.now().Add(resetOTPTTL)
	if err := s.userRepo.SetPasswordReset(ctx, user.ID, string(hashed), expiresAt); err != nil {
		return fmt.Errorf("store password reset: %w", err)
	}
	if err := s.mailer.SendPasswordResetOTP(ctx, user, otp, expiresAt); err != nil {
		return fmt.Errorf("send reset code: %w", err)
	}
	s.log.Info("password reset requested", "user_id", user.ID)
	return nil
}

func (s *PasswordResetService) VerifyOTP(ctx context.Context, req dto.VerifyResetOTPRequest) error {
	user, err := s.pending(ctx, req.Email)
	if err != nil {
		return err
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordReset.OTPHash), []byte(req.OTP)) != nil {
		return ErrResetOTPInvalid
	}
	if err := s.userRepo.MarkPasswordResetVerified(ctx, user.ID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrResetNotRequested
		}
		return fmt.Errorf("verify password reset: %w", err)
	}
	return nil
}

// Reset replaces the password of a verified request and clears the
// refresh slot, ending every open session of the user.
func (s *PasswordResetService) Reset(ctx context.Context, req dto.ResetPasswordRequest) error {
	if req.NewPassword != req.ConfirmPassword {
		return ErrPasswordMismatch
	}
	user, err := s.pending(ctx, req.Email)
	if err != nil {
		return err
	}
	if !user.PasswordReset.Verified {
		return ErrResetNotVerified
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.userRepo.ResetPassword(ctx, user.ID, string(hashed)); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrUserNotFound
		}
		return fmt.Errorf("reset password: %w", err)
	}
	s.log.Info("password reset", "user_id", user.ID)
	return nil
}

// pending loads the user behind email with a live reset request.
func (s *PasswordResetService) pending(ctx context.Context, email string) (*model.User, error) {
	user, err := s.lookup(ctx, email)
	if err != nil {
		return nil, err
	}
	if user == nil || user.PasswordReset.OTPHash == "" {
		return nil, ErrResetNotRequested
	}
	if !user.PasswordReset.Pending(s.now()) {
		return nil, ErrResetOTPExpired
	}
	return user, nil
}

func (s *PasswordResetService) lookup(ctx context.Context, email string) (*model.User, error) {
	user, err := s.userRepo.GetByEmailOrUsername(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return user, nil
}

func newOTP() (string, error) {
	limit := big.NewInt(1)
	for i := 0; i < resetOTPDigits; i++ {
		limit.Mul(limit, big.NewInt(10))
	}
	n, err := rand.Int(rand.Reader, limit)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", resetOTPDigits, n), nil
}
