package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/flicky/grocery-storefront/internal/dto"
	"github.com/flicky/grocery-storefront/internal/service"
)

type ProductHandler struct {
	productService *service.ProductService
}

func NewProductHandler(productService *service.ProductService) *ProductHandler {
	return &ProductHandler{productService: productService}
}

func (h *ProductHandler) Create(c *gin.Context) {
	var req dto.CreateProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	resp, err := h.productService.Create(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusCreated, "product created", resp)
}

func (h *ProductHandler) GetByID(c *gin.Context) { h.get(c, false) }

// AdminGetByID also returns unpublished products.
func (h *ProductHandler) AdminGetByID(c *gin.Context) { h.get(c, true) }

func (h *ProductHandler) get(c *gin.Context, includeHidden bool) {
	id, valid := paramUUID(c, "id")
	if !valid {
		return
	}
	resp, err := h.productService.GetByID(c.Request.Context(), id, includeHidden)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, "product details", resp)
}

func (h *ProductHandler) List(c *gin.Context) { h.list(c, false) }

func (h *ProductHandler) AdminList(c *gin.Context) { h.list(c, true) }

func (h *ProductHandler) list(c *gin.Context, includeHidden bool) {
	var req dto.ListProductsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		badRequest(c, err)
		return
	}
	resp, err := h.productService.List(c.Request.Context(), req, includeHidden)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, "product list", resp)
}

func (h *ProductHandler) Update(c *gin.Context) {
	id, valid := paramUUID(c, "id")
	if !valid {
		return
	}
	var req dto.UpdateProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	resp, err := h.productService.Update(c.Request.Context(), id, req)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, "product updated", resp)
}

func (h *ProductHandler) Delete(c *gin.Context) {
	id, valid := paramUUID(c, "id")
	if !valid {
		return
	}
	if err := h.productService.Delete(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, "product deleted", nil)
}
