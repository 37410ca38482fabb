package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/flicky/grocery-storefront/internal/dto"
	"github.com/flicky/grocery-storefront/internal/middleware"
	"github.com/flicky/grocery-storefront/internal/service"
)

type OrderHandler struct {
	orderService *service.OrderService
}

func NewOrderHandler(orderService *service.OrderService) *OrderHandler {
	return &OrderHandler{orderService: orderService}
}

func (h *OrderHandler) MyOrders(c *gin.Context) {
	var req dto.ListOrdersRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		badRequest(c, err)
		return
	}
	orders, total, err := h.orderService.ListForUser(c.Request.Context(), middleware.GetUserID(c), req.Page, req.Limit)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, "order list", dto.OrderListResponse{
		Orders: service.ToOrderResponses(orders), Total: total, Page: req.Page, Limit: req.Limit,
	})
}

func (h *OrderHandler) Get(c *gin.Context) {
	order, err := h.orderService.GetByOrderNumber(c.Request.Context(), c.Param("orderId"),
		middleware.GetUserID(c), middleware.IsAdmin(c))
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, "order details", service.ToOrderResponse(order))
}

func (h *OrderHandler) ListAll(c *gin.Context) {
	var req dto.ListOrdersRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		badRequest(c, err)
		return
	}
	orders, total, err := h.orderService.ListAll(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, "order list", dto.OrderListResponse{
		Orders: service.ToOrderResponses(orders), Total: total, Page: req.Page, Limit: req.Limit,
	})
}

func (h *OrderHandler) Create(c *gin.Context) {
	var req dto.CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	order, err := h.orderService.Create(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusCreated, "order created", service.ToOrderResponse(order))
}

func (h *OrderHandler) UpdateStatus(c *gin.Context) {
	var req dto.UpdateOrderStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	order, err := h.orderService.UpdateStatus(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, "order status updated", service.ToOrderResponse(order))
}

func (h *OrderHandler) Delete(c *gin.Context) {
	var req dto.DeleteOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if err := h.orderService.Delete(c.Request.Context(), req.OrderID); err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, "order deleted", nil)
}
