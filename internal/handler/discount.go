package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/flicky/grocery-storefront/internal/discount"
	"github.com/flicky/grocery-storefront/internal/dto"
	"github.com/flicky/grocery-storefront/internal/service"
)

type DiscountHandler struct {
	resolver *discount.Resolver
}

func NewDiscountHandler(resolver *discount.Resolver) *DiscountHandler {
	return &DiscountHandler{resolver: resolver}
}

func (h *DiscountHandler) Preview(c *gin.Context) {
	d, found := h.resolver.Resolve(c.Param("code"))
	if !found {
		respondError(c, service.ErrUnknownDiscount)
		return
	}
	respond(c, http.StatusOK, "discount code", dto.DiscountResponse{Code: d.Code, Kind: string(d.Kind), Value: d.Value})
}
