package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/flicky/grocery-storefront/internal/apperr"
	"github.com/flicky/grocery-storefront/internal/dto"
	"github.com/flicky/grocery-storefront/internal/model"
	"github.com/flicky/grocery-storefront/internal/repository"
	"github.com/flicky/grocery-storefront/internal/service"
	"github.com/flicky/grocery-storefront/internal/token"
)

const (
	AccessCookie  = "accessToken"
	RefreshCookie = "refreshToken"

	ctxUserID   = "userID"
	ctxUserRole = "userRole"
)

var (
	errUserUnknown = apperr.New(apperr.Auth, "user_not_found", "user no longer exists")
	errRole        = apperr.New(apperr.Forbidden, "forbidden", "insufficient role")
)

// Abort writes err as an error envelope and stops the chain.
func Abort(c *gin.Context, err error) {
	c.AbortWithStatusJSON(apperr.KindOf(err).Status(), dto.Fail(apperr.CodeOf(err), apperr.MessageOf(err)))
}

// BearerOrCookie returns the token from the Authorization header, falling
// back to the named cookie.
func BearerOrCookie(c *gin.Context, cookie string) string {
	if h := c.GetHeader("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(h[7:])
	}
	if v, err := c.Cookie(cookie); err == nil {
		return v
	}
	return ""
}

// Authenticate verifies the access token and stores the subject on the
// context. It does not touch storage.
func Authenticate(tokens *token.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := BearerOrCookie(c, AccessCookie)
		if raw == "" {
			Abort(c, service.ErrAuthRequired)
			return
		}
		userID, err := tokens.Verify(raw)
		if err != nil {
			Abort(c, service.TokenError(err))
			return
		}
		c.Set(ctxUserID, userID)
		c.Next()
	}
}

// Authorize reloads the caller on every request, so a role or status change
// applies to tokens already issued. With no roles any Active user passes.
func Authorize(users repository.UserRepository, roles ...model.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := users.GetByID(c.Request.Context(), GetUserID(c))
		if err != nil {
			Abort(c, err)
			return
		}
		if user == nil {
			Abort(c, errUserUnknown)
			return
		}
		if user.Status != model.UserActive {
			Abort(c, service.ErrAccountInactive)
			return
		}
		if len(roles) > 0 && !hasRole(user.Role, roles) {
			Abort(c, errRole)
			return
		}
		c.Set(ctxUserRole, user.Role)
		c.Next()
	}
}

func hasRole(r model.Role, roles []model.Role) bool {
	for _, want := range roles {
		if r == want {
			return true
		}
	}
	return false
}

func GetUserID(c *gin.Context) uuid.UUID {
	id, _ := c.Get(ctxUserID)
	uid, _ := id.(uuid.UUID)
	return uid
}

func GetUserRole(c *gin.Context) model.Role {
	role, _ := c.Get(ctxUserRole)
	r, _ := role.(model.Role)
	return r
}

func IsAdmin(c *gin.Context) bool { return GetUserRole(c) == model.RoleAdmin }
