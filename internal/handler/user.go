package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/flicky/grocery-storefront/internal/dto"
	"github.com/flicky/grocery-storefront/internal/middleware"
	"github.com/flicky/grocery-storefront/internal/model"
	"github.com/flicky/grocery-storefront/internal/service"
)

type UserHandler struct {
	userService *service.UserService
}

func NewUserHandler(userService *service.UserService) *UserHandler {
	return &UserHandler{userService: userService}
}

func (h *UserHandler) Me(c *gin.Context) {
	user, err := h.userService.Get(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, "user details", toUserResponse(user))
}

func (h *UserHandler) UpdateStatus(c *gin.Context) {
	id, valid := paramUUID(c, "id")
	if !valid {
		return
	}
	var req dto.UpdateUserStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	user, err := h.userService.UpdateStatus(c.Request.Context(), id, req.Status)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, "user status updated", toUserResponse(user))
}

func (h *UserHandler) UpdateMe(c *gin.Context) {
	var req dto.UpdateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	user, err := h.userService.UpdateProfile(c.Request.Context(), middleware.GetUserID(c), req)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, "user updated", toUserResponse(user))
}

func (h *UserHandler) List(c *gin.Context) {
	var req dto.ListUsersRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		badRequest(c, err)
		return
	}
	users, total, err := h.userService.List(c.Request.Context(), req.Page, req.Limit)
	if err != nil {
		respondError(c, err)
		return
	}
	out := dto.UserListResponse{Users: make([]dto.UserResponse, 0, len(users)), Total: total, Page: req.Page, Limit: req.Limit}
	for i := range users {
		out.Users = append(out.Users, toUserResponse(&users[i]))
	}
	respond(c, http.StatusOK, "user list", out)
}

func (h *UserHandler) UpdateRole(c *gin.Context) {
	id, valid := paramUUID(c, "id")
	if !valid {
		return
	}
	var req dto.UpdateUserRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	user, err := h.userService.UpdateRole(c.Request.Context(), middleware.GetUserID(c), id, req.Role)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, "user role updated", toUserResponse(user))
}

func toUserResponse(u *model.User) dto.UserResponse {
	return dto.UserResponse{
		ID:       u.ID,
		Name:     u.Name,
		Email:    u.Email,
		Username: u.Username,
		Role:     u.Role,
		Status:   u.Status,
	}
}
