// Package token issues and verifies the HS256 access and refresh tokens
// used by the session guard.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrExpired   = errors.New("token expired")
	ErrMalformed = errors.New("token malformed")
)

const (
	kindAccess  = "access"
	kindRefresh = "refresh"
)

type claims struct {
	jwt.RegisteredClaims
	Kind string `json:"typ"`
}

type Service struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
	now           func() time.Time
}

type Option func(*Service)

// WithClock overrides the time source used for issuing and validating.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(accessSecret, refreshSecret string, accessTTL, refreshTTL time.Duration, opts ...Option) *Service {
	s := &Service{
		accessSecret:  []byte(accessSecret),
		refreshSecret: []byte(refreshSecret),
		accessTTL:     accessTTL,
		refreshTTL:    refreshTTL,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) AccessTTL() time.Duration  { return s.accessTTL }
func (s *Service) RefreshTTL() time.Duration { return s.refreshTTL }

func (s *Service) IssueAccess(userID uuid.UUID) (string, error) {
	tok, _, err := s.issue(userID, kindAccess, s.accessSecret, s.accessTTL)
	return tok, err
}

// IssueRefresh returns the signed token and its jti. The caller stores the
// jti in the user's refresh slot.
func (s *Service) IssueRefresh(userID uuid.UUID) (string, string, error) {
	return s.issue(userID, kindRefresh, s.refreshSecret, s.refreshTTL)
}

func (s *Service) issue(userID uuid.UUID, kind string, secret []byte, ttl time.Duration) (string, string, error) {
	now := s.now()
	id := uuid.NewString()
	c := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			ID:        id,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Kind: kind,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(secret)
	if err != nil {
		return "", "", fmt.Errorf("sign %s token: %w", kind, err)
	}
	return signed, id, nil
}

// Verify validates an access token and returns its subject.
func (s *Service) Verify(tok string) (uuid.UUID, error) {
	c, err := s.parse(tok, kindAccess, s.accessSecret)
	if err != nil {
		return uuid.Nil, err
	}
	return subject(c)
}

// ParseRefresh validates a refresh token's signature and expiry and returns
// its subject and jti. Revocation is checked by the caller against storage.
func (s *Service) ParseRefresh(tok string) (uuid.UUID, string, error) {
	c, err := s.parse(tok, kindRefresh, s.refreshSecret)
	if err != nil {
		return uuid.Nil, "", err
	}
	userID, err := subject(c)
	if err != nil {
		return uuid.Nil, "", err
	}
	if c.ID == "" {
		return uuid.Nil, "", ErrMalformed
	}
	return userID, c.ID, nil
}

func (s *Service) parse(tok, kind string, secret []byte) (*claims, error) {
	c := &claims{}
	_, err := jwt.ParseWithClaims(tok, c, func(t *jwt.Token) (interface{}, error) {
		return secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpired
		}
		return nil, ErrMalformed
	}
	if c.Kind != kind {
		return nil, ErrMalformed
	}
	return c, nil
}

func subject(c *claims) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Subject)
	if err != nil || id == uuid.Nil {
		return uuid.Nil, ErrMalformed
	}
	return id, nil
}
