package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flicky/grocery-storefront/internal/dto"
)

// fakeAPI hands out numbered access tokens. Tokens listed in expired are
// answered with token_expired.
type fakeAPI struct {
	refreshCalls atomic.Int32
	cartCalls    atomic.Int32
	refreshFails bool
	expired      map[string]bool
	invalid      map[string]bool
	lastBearer   atomic.Value
}

func newFakeAPI(t *testing.T) (*fakeAPI, *Client) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	api := &fakeAPI{expired: map[string]bool{}, invalid: map[string]bool{}}

	r := gin.New()
	r.POST("/api/v1/auth/login", func(c *gin.Context) {
		var req dto.LoginRequest
		if err := c.ShouldBindJSON(&req); err != nil || req.Password != "secret123" {
			c.JSON(http.StatusUnauthorized, dto.Fail("invalid_credentials", "invalid credentials"))
			return
		}
		c.JSON(http.StatusOK, dto.OK("login successful", dto.TokenPair{AccessToken: "access-1", RefreshToken: "refresh-1"}))
	})
	r.POST("/api/v1/auth/refresh", func(c *gin.Context) {
		n := api.refreshCalls.Add(1)
		var req dto.RefreshRequest
		_ = c.ShouldBindJSON(&req)
		if api.refreshFails || req.RefreshToken != "refresh-1" {
			c.JSON(http.StatusUnauthorized, dto.Fail("token_revoked", "refresh token revoked"))
			return
		}
		c.JSON(http.StatusOK, dto.OK("access token refreshed", dto.AccessTokenResponse{AccessToken: "access-" + string(rune('1'+n))}))
	})
	r.POST("/api/v1/auth/logout", func(c *gin.Context) {
		c.JSON(http.StatusOK, dto.OK("logout successful", nil))
	})
	r.GET("/api/v1/cart", func(c *gin.Context) {
		api.cartCalls.Add(1)
		tok := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
		api.lastBearer.Store(tok)
		switch {
		case tok == "":
			c.JSON(http.StatusUnauthorized, dto.Fail("auth_required", "authentication required"))
		case api.expired[tok]:
			c.JSON(http.StatusUnauthorized, dto.Fail("token_expired", "access token expired"))
		case api.invalid[tok]:
			c.JSON(http.StatusUnauthorized, dto.Fail("invalid_token", "invalid access token"))
		default:
			c.JSON(http.StatusOK, dto.OK("cart", dto.CartResponse{DiscountCode: "WELCOME10"}))
		}
	})
	r.GET("/api/v1/orders/missing", func(c *gin.Context) {
		c.JSON(http.StatusNotFound, dto.Fail("order_not_found", "order not found"))
	})

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return api, New(srv.URL + "/api/v1")
}

func login(t *testing.T, c *Client) {
	t.Helper()
	require.NoError(t, c.Login(context.Background(), "ada@example.com", "secret123"))
	require.Equal(t, Authenticated, c.State())
}

func TestLogin_AuthenticatesAndSendsBearer(t *testing.T) {
	api, c := newFakeAPI(t)
	assert.Equal(t, Anonymous, c.State())
	login(t, c)

	var cart dto.CartResponse
	require.NoError(t, c.Do(context.Background(), http.MethodGet, "/cart", nil, &cart))
	assert.Equal(t, "WELCOME10", cart.DiscountCode)
	assert.Equal(t, "access-1", api.lastBearer.Load())
}

func TestLogin_BadPassword(t *testing.T) {
	_, c := newFakeAPI(t)
	err := c.Login(context.Background(), "ada@example.com", "nope")

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "invalid_credentials", apiErr.Code)
	assert.Equal(t, Anonymous, c.State())
}

func TestDo_ExpiredRefreshesOnceAndRetries(t *testing.T) {
	api, c := newFakeAPI(t)
	login(t, c)
	api.expired["access-1"] = true

	require.NoError(t, c.Do(context.Background(), http.MethodGet, "/cart", nil, nil))
	assert.Equal(t, int32(1), api.refreshCalls.Load())
	assert.Equal(t, int32(2), api.cartCalls.Load())
	assert.Equal(t, "access-2", api.lastBearer.Load())
	assert.Equal(t, Authenticated, c.State())
}

func TestDo_FailedRefreshLogsOut(t *testing.T) {
	api, c := newFakeAPI(t)
	login(t, c)
	api.expired["access-1"] = true
	api.refreshFails = true

	err := c.Do(context.Background(), http.MethodGet, "/cart", nil, nil)
	assert.ErrorIs(t, err, ErrLoggedOut)
	assert.Equal(t, LoggedOut, c.State())

	err = c.Do(context.Background(), http.MethodGet, "/cart", nil, nil)
	assert.ErrorIs(t, err, ErrLoggedOut)
	assert.Equal(t, int32(1), api.cartCalls.Load())
}

func TestDo_RetryStillExpiredLogsOut(t *testing.T) {
	api, c := newFakeAPI(t)
	login(t, c)
	api.expired["access-1"] = true
	api.expired["access-2"] = true

	err := c.Do(context.Background(), http.MethodGet, "/cart", nil, nil)
	assert.ErrorIs(t, err, ErrLoggedOut)
	assert.Equal(t, int32(1), api.refreshCalls.Load())
	assert.Equal(t, int32(2), api.cartCalls.Load())
	assert.Equal(t, LoggedOut, c.State())
}

func TestDo_InvalidTokenLogsOutWithoutRefresh(t *testing.T) {
	api, c := newFakeAPI(t)
	login(t, c)
	api.invalid["access-1"] = true

	err := c.Do(context.Background(), http.MethodGet, "/cart", nil, nil)
	assert.ErrorIs(t, err, ErrLoggedOut)
	assert.Zero(t, api.refreshCalls.Load())
	assert.Equal(t, LoggedOut, c.State())
}

func TestDo_AnonymousUnauthorizedStaysAnonymous(t *testing.T) {
	_, c := newFakeAPI(t)

	err := c.Do(context.Background(), http.MethodGet, "/cart", nil, nil)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "auth_required", apiErr.Code)
	assert.False(t, errors.Is(err, ErrLoggedOut))
	assert.Equal(t, Anonymous, c.State())
}

func TestDo_OtherErrorsPassThrough(t *testing.T) {
	api, c := newFakeAPI(t)
	login(t, c)

	err := c.Do(context.Background(), http.MethodGet, "/orders/missing", nil, nil)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.Status)
	assert.Equal(t, Authenticated, c.State())
	assert.Zero(t, api.refreshCalls.Load())
}

func TestLogout_DropsTokens(t *testing.T) {
	_, c := newFakeAPI(t)
	login(t, c)

	require.NoError(t, c.Logout(context.Background()))
	assert.Equal(t, LoggedOut, c.State())
	assert.ErrorIs(t, c.Do(context.Background(), http.MethodGet, "/cart", nil, nil), ErrLoggedOut)
}
