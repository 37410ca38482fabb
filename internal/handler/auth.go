package handler

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/flicky/grocery-storefront/internal/dto"
	"github.com/flicky/grocery-storefront/internal/middleware"
	"github.com/flicky/grocery-storefront/internal/service"
)

type CookieConfig struct {
	Domain string
	Secure bool
}

type AuthHandler struct {
	authService *service.AuthService
	accessTTL   time.Duration
	refreshTTL  time.Duration
	cookies     CookieConfig
}

func NewAuthHandler(authService *service.AuthService, accessTTL, refreshTTL time.Duration, cookies CookieConfig) *AuthHandler {
	return &AuthHandler{authService: authService, accessTTL: accessTTL, refreshTTL: refreshTTL, cookies: cookies}
}

func (h *AuthHandler) Register(c *gin.Context) {
	var req dto.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	user, err := h.authService.Register(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusCreated, "user registered", toUserResponse(user))
}

func (h *AuthHandler) Login(c *gin.Context) {
	var req dto.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	sess, err := h.authService.Login(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	h.setCookie(c, middleware.AccessCookie, sess.AccessToken, h.accessTTL)
	h.setCookie(c, middleware.RefreshCookie, sess.RefreshToken, h.refreshTTL)
	respond(c, http.StatusOK, "login successful", dto.TokenPair{AccessToken: sess.AccessToken, RefreshToken: sess.RefreshToken})
}

// Refresh takes the refresh token from the body, the bearer header or the
// refresh cookie, in that order.
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req dto.RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		badRequest(c, err)
		return
	}
	raw := req.RefreshToken
	if raw == "" {
		raw = middleware.BearerOrCookie(c, middleware.RefreshCookie)
	}

	access, _, err := h.authService.Refresh(c.Request.Context(), raw)
	if err != nil {
		respondError(c, err)
		return
	}
	h.setCookie(c, middleware.AccessCookie, access, h.accessTTL)
	respond(c, http.StatusOK, "access token refreshed", dto.AccessTokenResponse{AccessToken: access})
}

func (h *AuthHandler) Logout(c *gin.Context) {
	if err := h.authService.Logout(c.Request.Context(), middleware.GetUserID(c)); err != nil {
		respondError(c, err)
		return
	}
	h.setCookie(c, middleware.AccessCookie, "", -1)
	h.setCookie(c, middleware.RefreshCookie, "", -1)
	respond(c, http.StatusOK, "logout successful", nil)
}

func (h *AuthHandler) setCookie(c *gin.Context, name, value string, ttl time.Duration) {
	maxAge := int(ttl.Seconds())
	if ttl < 0 {
		maxAge = -1
	}
	c.SetSameSite(http.SameSiteNoneMode)
	c.SetCookie(name, value, maxAge, "/", h.cookies.Domain, h.cookies.Secure, true)
}
