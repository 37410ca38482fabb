package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/flicky/grocery-storefront/internal/dto"
	"github.com/flicky/grocery-storefront/internal/service"
)

type PasswordResetHandler struct {
	resetService *service.PasswordResetService
}

func NewPasswordResetHandler(resetService *service.PasswordResetService) *PasswordResetHandler {
	return &PasswordResetHandler{resetService: resetService}
}

func (h *PasswordResetHandler) Forgot(c *gin.Context) {
	var req dto.ForgotPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if err := h.resetService.Forgot(c.Request.Context(), req); err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, "if the account exists, a reset code was sent", nil)
}

func (h *PasswordResetHandler) VerifyOTP(c *gin.Context) {
	var req dto.VerifyResetOTPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if err := h.resetService.VerifyOTP(c.Request.Context(), req); err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, "reset code verified", nil)
}

func (h *PasswordResetHandler) Reset(c *gin.Context) {
	var req dto.ResetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if err := h.resetService.Reset(c.Request.Context(), req); err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, "password updated", nil)
}
