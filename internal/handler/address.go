package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/flicky/grocery-storefront/internal/dto"
	"github.com/flicky/grocery-storefront/internal/middleware"
	"github.com/flicky/grocery-storefront/internal/model"
	"github.com/flicky/grocery-storefront/internal/service"
)

type AddressHandler struct {
	addressService *service.AddressService
}

func NewAddressHandler(addressService *service.AddressService) *AddressHandler {
	return &AddressHandler{addressService: addressService}
}

func (h *AddressHandler) List(c *gin.Context) {
	addrs, err := h.addressService.List(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	out := make([]dto.AddressResponse, 0, len(addrs))
	for i := range addrs {
		out = append(out, toAddressResponse(&addrs[i]))
	}
	respond(c, http.StatusOK, "address list", out)
}

func (h *AddressHandler) Add(c *gin.Context) {
	var req dto.CreateAddressRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	addr, err := h.addressService.Add(c.Request.Context(), middleware.GetUserID(c), req)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusCreated, "address created", toAddressResponse(addr))
}

func (h *AddressHandler) Update(c *gin.Context) {
	id, valid := paramUUID(c, "id")
	if !valid {
		return
	}
	var req dto.UpdateAddressRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	addr, err := h.addressService.Update(c.Request.Context(), middleware.GetUserID(c), id, req)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, "address updated", toAddressResponse(addr))
}

func (h *AddressHandler) Delete(c *gin.Context) {
	id, valid := paramUUID(c, "id")
	if !valid {
		return
	}
	if err := h.addressService.Delete(c.Request.Context(), middleware.GetUserID(c), id); err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, "address removed", nil)
}

func toAddressResponse(a *model.Address) dto.AddressResponse {
	return dto.AddressResponse{
		ID:          a.ID,
		AddressLine: a.AddressLine,
		City:        a.City,
		State:       a.State,
		Pincode:     a.Pincode,
		Country:     a.Country,
		Mobile:      a.Mobile,
		CreatedAt:   a.CreatedAt,
	}
}
