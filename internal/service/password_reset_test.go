package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/flicky/grocery-storefront/internal/dto"
	"github.com/flicky/grocery-storefront/internal/model"
)

type captureMailer struct {
	sent []string
	err  error
}

func (m *captureMailer) SendPasswordResetOTP(_ context.Context, _ *model.User, otp string, _ time.Time) error {
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, otp)
	return nil
}

type resetFixture struct {
	svc    *PasswordResetService
	users  *mockUserRepo
	mailer *captureMailer
	user   *model.User
	now    time.Time
}

func newResetFixture(t *testing.T) *resetFixture {
	t.Helper()
	f := &resetFixture{users: newMockUserRepo(), mailer: &captureMailer{}, now: time.Now()}
	f.user = seedLoginUser(t, f.users, model.UserActive)
	f.svc = NewPasswordResetService(f.users, f.mailer, testLog)
	f.svc.now = func() time.Time { return f.now }
	return f
}

func (f *resetFixture) forgot(t *testing.T) string {
	t.Helper()
	require.NoError(t, f.svc.Forgot(context.Background(), dto.ForgotPasswordRequest{Email: "Test@Example.com"}))
	require.NotEmpty(t, f.mailer.sent)
	return f.mailer.sent[len(f.mailer.sent)-1]
}

func TestPasswordReset_FullFlowRevokesRefresh(t *testing.T) {
	f := newResetFixture(t)
	tokens := newTestTokens()
	auth := NewAuthService(f.users, tokens, testLog)
	ctx := context.Background()

	sess, err := auth.Login(ctx, dto.LoginRequest{EmailOrUsername: "tester", Password: "password123"})
	require.NoError(t, err)

	otp := f.forgot(t)
	assert.Len(t, otp, resetOTPDigits)
	stored := f.users.byID[f.user.ID].PasswordReset
	assert.NotEqual(t, otp, stored.OTPHash, "only the hash is stored")
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(stored.OTPHash), []byte(otp)))

	require.NoError(t, f.svc.VerifyOTP(ctx, dto.VerifyResetOTPRequest{Email: "test@example.com", OTP: otp}))
	require.NoError(t, f.svc.Reset(ctx, dto.ResetPasswordRequest{
		Email: "test@example.com", NewPassword: "brand-new-pass", ConfirmPassword: "brand-new-pass",
	}))

	got := f.users.byID[f.user.ID]
	assert.Empty(t, got.RefreshTokenID)
	assert.Equal(t, model.PasswordReset{}, got.PasswordReset)

	_, _, err = auth.Refresh(ctx, sess.RefreshToken)
	assert.ErrorIs(t, err, ErrTokenRevoked)

	_, err = auth.Login(ctx, dto.LoginRequest{EmailOrUsername: "tester", Password: "password123"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = auth.Login(ctx, dto.LoginRequest{EmailOrUsername: "tester", Password: "brand-new-pass"})
	assert.NoError(t, err)

	err = f.svc.VerifyOTP(ctx, dto.VerifyResetOTPRequest{Email: "test@example.com", OTP: otp})
	assert.ErrorIs(t, err, ErrResetNotRequested, "a used code cannot be replayed")
}

func TestPasswordReset_UnknownEmailIsSilent(t *testing.T) {
	f := newResetFixture(t)

	err := f.svc.Forgot(context.Background(), dto.ForgotPasswordRequest{Email: "nobody@example.com"})
	require.NoError(t, err)
	assert.Empty(t, f.mailer.sent)
}

func TestPasswordReset_WrongAndExpiredCode(t *testing.T) {
	f := newResetFixture(t)
	ctx := context.Background()
	otp := f.forgot(t)

	wrong := "000000"
	if otp == wrong {
		wrong = "111111"
	}
	err := f.svc.VerifyOTP(ctx, dto.VerifyResetOTPRequest{Email: "test@example.com", OTP: wrong})
	assert.ErrorIs(t, err, ErrResetOTPInvalid)

	f.now = f.now.Add(resetOTPTTL + time.Second)
	err = f.svc.VerifyOTP(ctx, dto.VerifyResetOTPRequest{Email: "test@example.com", OTP: otp})
	assert.ErrorIs(t, err, ErrResetOTPExpired)
}

func TestPasswordReset_ResetRejections(t *testing.T) {
	f := newResetFixture(t)
	ctx := context.Background()
	req := dto.ResetPasswordRequest{Email: "test@example.com", NewPassword: "brand-new-pass", ConfirmPassword: "brand-new-pass"}

	assert.ErrorIs(t, f.svc.Reset(ctx, req), ErrResetNotRequested)

	f.forgot(t)
	assert.ErrorIs(t, f.svc.Reset(ctx, req), ErrResetNotVerified)

	mismatch := req
	mismatch.ConfirmPassword = "something-else"
	assert.ErrorIs(t, f.svc.Reset(ctx, mismatch), ErrPasswordMismatch)

	assert.NotEmpty(t, f.users.byID[f.user.ID].PasswordReset.OTPHash, "rejected resets keep the pending code")
}

func TestPasswordReset_NewRequestReplacesCode(t *testing.T) {
	f := newResetFixture(t)
	ctx := context.Background()
	first := f.forgot(t)
	second := f.forgot(t)
	if first == second {
		t.Skip("random codes collided")
	}

	err := f.svc.VerifyOTP(ctx, dto.VerifyResetOTPRequest{Email: "test@example.com", OTP: first})
	assert.ErrorIs(t, err, ErrResetOTPInvalid)
	assert.NoError(t, f.svc.VerifyOTP(ctx, dto.VerifyResetOTPRequest{Email: "test@example.com", OTP: second}))
}

func TestPasswordReset_MailerFailureSurfaces(t *testing.T) {
	f := newResetFixture(t)
	f.mailer.err = errors.New("smtp down")

	err := f.svc.Forgot(context.Background(), dto.ForgotPasswordRequest{Email: "test@example.com"})
	assert.ErrorContains(t, err, "smtp down")
}

func TestNewOTP_SixDigits(t *testing.T) {
	for i := 0; i < 50; i++ {
		otp, err := newOTP()
		require.NoError(t, err)
		assert.Regexp(t, `^[0-9]{6}$`, otp)
	}
}
