// Package handler holds the gin handlers. Every response body is a
// dto.Envelope.
package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/flicky/grocery-storefront/internal/apperr"
	"github.com/flicky/grocery-storefront/internal/dto"
)

// respondError maps err to its status and envelope. Internal errors are
// attached to the context for the request logger and never leak.
func respondError(c *gin.Context, err error) {
	kind := apperr.KindOf(err)
	if kind == apperr.Internal {
		_ = c.Error(err)
	}
	c.JSON(kind.Status(), dto.Fail(apperr.CodeOf(err), apperr.MessageOf(err)))
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, dto.Fail("validation_error", err.Error()))
}

func respond(c *gin.Context, status int, msg string, data any) {
	c.JSON(status, dto.OK(msg, data))
}

func paramUUID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		c.JSON(http.StatusBadRequest, dto.Fail("validation_error", "invalid "+name))
		return uuid.Nil, false
	}
	return id, true
}
