package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/flicky/grocery-storefront/internal/dto"
	"github.com/flicky/grocery-storefront/internal/middleware"
	"github.com/flicky/grocery-storefront/internal/model"
	"github.com/flicky/grocery-storefront/internal/service"
)

type CartHandler struct {
	cartService *service.CartService
}

func NewCartHandler(cartService *service.CartService) *CartHandler {
	return &CartHandler{cartService: cartService}
}

func (h *CartHandler) View(c *gin.Context) {
	var q dto.CartQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		badRequest(c, err)
		return
	}
	quote, err := h.cartService.View(c.Request.Context(), middleware.GetUserID(c), q.DiscountCode)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, "cart", toCartResponse(quote))
}

func (h *CartHandler) AddLine(c *gin.Context) {
	var req dto.AddCartLineRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	line, err := h.cartService.AddLine(c.Request.Context(), middleware.GetUserID(c), req.ProductID, req.Quantity)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusCreated, "item added to cart", toCartLineResponse(line))
}

func (h *CartHandler) UpdateLine(c *gin.Context) {
	lineID, valid := paramUUID(c, "id")
	if !valid {
		return
	}
	var req dto.UpdateCartLineRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	line, err := h.cartService.UpdateLine(c.Request.Context(), middleware.GetUserID(c), lineID, req.Quantity, req.Version)
	if err != nil {
		respondError(c, err)
		return
	}
	if line == nil {
		respond(c, http.StatusOK, "item removed from cart", nil)
		return
	}
	respond(c, http.StatusOK, "cart updated", toCartLineResponse(line))
}

func (h *CartHandler) RemoveLine(c *gin.Context) {
	lineID, valid := paramUUID(c, "id")
	if !valid {
		return
	}
	if err := h.cartService.RemoveLine(c.Request.Context(), middleware.GetUserID(c), lineID); err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, "item removed from cart", nil)
}

func (h *CartHandler) Clear(c *gin.Context) {
	if err := h.cartService.Clear(c.Request.Context(), middleware.GetUserID(c)); err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, "cart cleared", nil)
}

func toCartLineResponse(l *model.CartLine) dto.CartLineResponse {
	resp := dto.CartLineResponse{
		ID:        l.ID,
		ProductID: l.ProductID,
		Quantity:  l.Quantity,
		Version:   l.Version,
		Images:    []string{},
		UnitPrice: decimal.Zero,
		LineTotal: decimal.Zero,
	}
	if l.Product != nil {
		unit := l.Product.EffectivePrice()
		resp.Name = l.Product.Name
		resp.Images = l.Product.Images
		resp.UnitPrice = unit
		resp.LineTotal = unit.Mul(decimal.NewFromInt(int64(l.Quantity)))
		resp.Available = true
	}
	return resp
}

func toCartResponse(q *service.Quote) dto.CartResponse {
	lines := make([]dto.CartLineResponse, 0, len(q.Lines)+len(q.Unavailable))
	for i := range q.Lines {
		lines = append(lines, toCartLineResponse(&q.Lines[i].Line))
	}
	for i := range q.Unavailable {
		lines = append(lines, toCartLineResponse(&q.Unavailable[i]))
	}
	resp := dto.CartResponse{
		Lines:          lines,
		Subtotal:       q.Subtotal,
		DiscountAmount: q.DiscountAmount,
		Total:          q.Total,
	}
	if q.Discount != nil {
		resp.DiscountCode = q.Discount.Code
	}
	return resp
}
