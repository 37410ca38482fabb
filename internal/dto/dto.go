package dto

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/flicky/grocery-storefront/internal/model"
)

// Envelope wraps every JSON response body.
type Envelope struct {
	Success bool   `json:"success"`
	Error   bool   `json:"error"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
	Data    any    `json:"data,omitempty"`
}

func OK(message string, data any) Envelope {
	return Envelope{Success: true, Message: message, Data: data}
}

func Fail(code, message string) Envelope {
	return Envelope{Error: true, Code: code, Message: message}
}

// --- Auth ---

type RegisterRequest struct {
	Name     string `json:"name" binding:"required"`
	Email    string `json:"email" binding:"required,email"`
	Username string `json:"username" binding:"omitempty,alphanum,min=3,max=32"`
	Password string `json:"password" binding:"required,min=8"`
}

type LoginRequest struct {
	EmailOrUsername string `json:"emailOrUsername" binding:"required"`
	Password        string `json:"password" binding:"required"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

type AccessTokenResponse struct {
	AccessToken string `json:"accessToken"`
}

type UserResponse struct {
	ID       uuid.UUID        `json:"id"`
	Name     string           `json:"name"`
	Email    string           `json:"email"`
	Username string           `json:"username,omitempty"`
	Role     model.Role       `json:"role"`
	Status   model.UserStatus `json:"status"`
}

type UpdateUserStatusRequest struct {
	Status model.UserStatus `json:"status" binding:"required,oneof=Active Inactive Suspended"`
}

type UpdateUserRoleRequest struct {
	Role model.Role `json:"role" binding:"required,oneof=USER ADMIN"`
}

type UpdateUserRequest struct {
	Name     *string `json:"name" binding:"omitempty,min=1"`
	Email    *string `json:"email" binding:"omitempty,email"`
	Username *string `json:"username" binding:"omitempty,alphanum,min=3,max=32"`
	Password *string `json:"password" binding:"omitempty,min=8"`
}

type ListUsersRequest struct {
	Page  int `form:"page,default=1" binding:"min=1"`
	Limit int `form:"limit,default=20" binding:"min=1,max=100"`
}

type UserListResponse struct {
	Users []UserResponse `json:"users"`
	Total int            `json:"total"`
	Page  int            `json:"page"`
	Limit int            `json:"limit"`
}

type ForgotPasswordRequest struct {
	Email string `json:"email" binding:"required,email"`
}

type VerifyResetOTPRequest struct {
	Email string `json:"email" binding:"required,email"`
	OTP   string `json:"otp" binding:"required,numeric,len=6"`
}

type ResetPasswordRequest struct {
	Email           string `json:"email" binding:"required,email"`
	NewPassword     string `json:"newPassword" binding:"required,min=8"`
	ConfirmPassword string `json:"confirmPassword" binding:"required"`
}

// --- Address ---

type CreateAddressRequest struct {
	AddressLine string `json:"addressLine" binding:"required"`
	City        string `json:"city" binding:"required"`
	State       string `json:"state" binding:"required"`
	Pincode     string `json:"pincode" binding:"required"`
	Country     string `json:"country" binding:"required"`
	Mobile      string `json:"mobile" binding:"required"`
}

type UpdateAddressRequest struct {
	AddressLine *string `json:"addressLine"`
	City        *string `json:"city"`
	State       *string `json:"state"`
	Pincode     *string `json:"pincode"`
	Country     *string `json:"country"`
	Mobile      *string `json:"mobile"`
}

type AddressResponse struct {
	ID          uuid.UUID `json:"id"`
	AddressLine string    `json:"addressLine"`
	City        string    `json:"city"`
	State       string    `json:"state"`
	Pincode     string    `json:"pincode"`
	Country     string    `json:"country"`
	Mobile      string    `json:"mobile"`
	CreatedAt   time.Time `json:"createdAt"`
}

// --- Product ---

type CreateProductRequest struct {
	Name        string          `json:"name" binding:"required"`
	Description string          `json:"description"`
	Images      []string        `json:"images"`
	Unit        string          `json:"unit"`
	Price       decimal.Decimal `json:"price"`
	Discount    decimal.Decimal `json:"discount"`
	Stock       int             `json:"stock" binding:"min=0"`
	Publish     *bool           `json:"publish"`
}

type UpdateProductRequest struct {
	// Version must match the stored version for the update to apply.
	Version     int              `json:"version" binding:"required,min=1"`
	Name        *string          `json:"name"`
	Description *string          `json:"description"`
	Images      []string         `json:"images"`
	Unit        *string          `json:"unit"`
	Price       *decimal.Decimal `json:"price"`
	Discount    *decimal.Decimal `json:"discount"`
	Stock       *int             `json:"stock" binding:"omitempty,min=0"`
	Publish     *bool            `json:"publish"`
}

type ListProductsRequest struct {
	Page   int    `form:"page,default=1" binding:"min=1"`
	Limit  int    `form:"limit,default=20" binding:"min=1,max=100"`
	Search string `form:"search"`
	Sort   string `form:"sort,default=created_at" binding:"oneof=name price created_at"`
	Order  string `form:"order,default=desc" binding:"oneof=asc desc"`
}

type ProductResponse struct {
	ID             uuid.UUID       `json:"id"`
	Name           string          `json:"name"`
	Description    string          `json:"description"`
	Images         []string        `json:"images"`
	Unit           string          `json:"unit"`
	Price          decimal.Decimal `json:"price"`
	Discount       decimal.Decimal `json:"discount"`
	EffectivePrice decimal.Decimal `json:"effectivePrice"`
	Stock          int             `json:"stock"`
	Publish        bool            `json:"publish"`
	Version        int             `json:"version"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
}

type ProductListResponse struct {
	Products []ProductResponse `json:"products"`
	Total    int               `json:"total"`
	Page     int               `json:"page"`
	Limit    int               `json:"limit"`
}

// --- Cart ---

type AddCartLineRequest struct {
	ProductID uuid.UUID `json:"productId" binding:"required"`
	Quantity  int       `json:"qty" binding:"required,min=1"`
}

type UpdateCartLineRequest struct {
	// Quantity of zero or less removes the line.
	Quantity int  `json:"qty"`
	Version  *int `json:"version"`
}

type CartQuery struct {
	DiscountCode string `form:"discountCode"`
}

type CartLineResponse struct {
	ID        uuid.UUID       `json:"id"`
	ProductID uuid.UUID       `json:"productId"`
	Name      string          `json:"name"`
	Images    []string        `json:"images"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
	Quantity  int             `json:"qty"`
	LineTotal decimal.Decimal `json:"lineTotal"`
	Available bool            `json:"available"`
	Version   int             `json:"version"`
}

type CartResponse struct {
	Lines          []CartLineResponse `json:"lines"`
	Subtotal       decimal.Decimal    `json:"subtotal"`
	DiscountCode   string             `json:"discountCode,omitempty"`
	DiscountAmount decimal.Decimal    `json:"discountAmount"`
	Total          decimal.Decimal    `json:"total"`
}

// --- Discount ---

type DiscountResponse struct {
	Code  string          `json:"code"`
	Kind  string          `json:"kind"`
	Value decimal.Decimal `json:"value"`
}

// --- Payment ---

type CreateIntentRequest struct {
	DiscountCode      string    `json:"discountCode"`
	DeliveryAddressID uuid.UUID `json:"deliveryAddressId" binding:"required"`
}

type CreateIntentResponse struct {
	ClientSecret    string          `json:"clientSecret"`
	PaymentIntentID string          `json:"paymentIntentId"`
	Amount          int64           `json:"amount"`
	Currency        string          `json:"currency"`
	Subtotal        decimal.Decimal `json:"subtotal"`
	DiscountAmount  decimal.Decimal `json:"discountAmount"`
	Total           decimal.Decimal `json:"total"`
}

type ConfirmPaymentRequest struct {
	PaymentIntentID   string    `json:"paymentIntentId" binding:"required"`
	DeliveryAddressID uuid.UUID `json:"deliveryAddressId" binding:"required"`
}

type ConfirmPaymentResponse struct {
	Orders          []OrderResponse `json:"orders"`
	PaymentIntentID string          `json:"paymentIntentId"`
}

// --- Order ---

type OrderResponse struct {
	ID                uuid.UUID             `json:"id"`
	OrderID           string                `json:"orderId"`
	UserID            uuid.UUID             `json:"userId"`
	ProductID         uuid.UUID             `json:"productId"`
	Quantity          int                   `json:"qty"`
	ProductDetails    model.ProductSnapshot `json:"product_details"`
	Subtotal          decimal.Decimal       `json:"subTotalAmt"`
	Total             decimal.Decimal       `json:"totalAmt"`
	PaymentStatus     model.PaymentStatus   `json:"payment_status"`
	DeliveryAddressID *uuid.UUID            `json:"delivery_address,omitempty"`
	PaymentRef        string                `json:"paymentId,omitempty"`
	InvoiceRef        string                `json:"invoice_receipt,omitempty"`
	CreatedAt         time.Time             `json:"createdAt"`
	UpdatedAt         time.Time             `json:"updatedAt"`
}

type OrderListResponse struct {
	Orders []OrderResponse `json:"orders"`
	Total  int             `json:"total"`
	Page   int             `json:"page"`
	Limit  int             `json:"limit"`
}

type ListOrdersRequest struct {
	Page   int    `form:"page,default=1" binding:"min=1"`
	Limit  int    `form:"limit,default=10" binding:"min=1,max=100"`
	Status string `form:"status" binding:"omitempty,oneof=pending success completed failed"`
	Search string `form:"search"`
}

type UpdateOrderStatusRequest struct {
	OrderID    string              `json:"orderId" binding:"required"`
	Status     model.PaymentStatus `json:"status" binding:"required,oneof=pending success completed failed"`
	PaymentRef *string             `json:"paymentId"`
	InvoiceRef *string             `json:"invoice_receipt"`
	Force      bool                `json:"force"`
}

type DeleteOrderRequest struct {
	OrderID string `json:"orderId" binding:"required"`
}

type CreateOrderRequest struct {
	UserID            uuid.UUID `json:"userId" binding:"required"`
	ProductID         uuid.UUID `json:"productId" binding:"required"`
	Quantity          int       `json:"qty" binding:"required,min=1"`
	DeliveryAddressID uuid.UUID `json:"deliveryAddressId" binding:"required"`
}
