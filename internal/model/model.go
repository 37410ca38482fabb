package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Role string

const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
)

func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAdmin
}

type UserStatus string

const (
	UserActive    UserStatus = "Active"
	UserInactive  UserStatus = "Inactive"
	UserSuspended UserStatus = "Suspended"
)

func (s UserStatus) Valid() bool {
	switch s {
	case UserActive, UserInactive, UserSuspended:
		return true
	}
	return false
}

type User struct {
	ID       uuid.UUID
	Name     string
	Email    string
	Username string
	Password string
	Role     Role
	Status   UserStatus
	// RefreshTokenID is the jti of the only refresh token the user may
	// present. Empty means no live refresh token.
	RefreshTokenID string
	// PasswordReset is the pending forgot-password request, if any.
	PasswordReset PasswordReset
	LastLoginAt   *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// PasswordReset holds the bcrypt hash of the one-time code mailed to the
// user. Verified flips once the code is accepted; only then may the
// password be replaced.
type PasswordReset struct {
	OTPHash   string
	ExpiresAt *time.Time
	Verified  bool
}

func (p PasswordReset) Pending(now time.Time) bool {
	return p.OTPHash != "" && p.ExpiresAt != nil && now.Before(*p.ExpiresAt)
}

type Address struct {
	ID          uuid.UUID
	UserID      uuid.UUID
	AddressLine string
	City        string
	State       string
	Pincode     string
	Country     string
	Mobile      string
	Active      bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type Product struct {
	ID          uuid.UUID
	Name        string
	Description string
	Images      []string
	Unit        string
	Price       decimal.Decimal
	// Discount is a percentage in [0,100].
	Discount  decimal.Decimal
	Stock     int
	Publish   bool
	Version   int
	CreatedAt time.Time
	UpdatedAt time.Time
}

var hundred = decimal.NewFromInt(100)

// EffectivePrice is price × (1 − discount/100).
func (p *Product) EffectivePrice() decimal.Decimal {
	if p.Discount.IsZero() {
		return p.Price
	}
	return p.Price.Mul(hundred.Sub(p.Discount)).Div(hundred)
}

type CartLine struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	ProductID uuid.UUID
	Quantity  int
	Version   int
	CreatedAt time.Time
	UpdatedAt time.Time
	// Product is joined at read time; nil when the product no longer exists.
	Product *Product
}

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentSuccess   PaymentStatus = "success"
	PaymentCompleted PaymentStatus = "completed"
	PaymentFailed    PaymentStatus = "failed"
)

func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentPending, PaymentSuccess, PaymentCompleted, PaymentFailed:
		return true
	}
	return false
}

// ProductSnapshot is captured at order time so later product edits never
// alter historical orders.
type ProductSnapshot struct {
	Name   string   `json:"name"`
	Images []string `json:"images"`
}

type Order struct {
	ID                uuid.UUID
	OrderNumber       string
	UserID            uuid.UUID
	ProductID         uuid.UUID
	Quantity          int
	ProductDetails    ProductSnapshot
	Subtotal          decimal.Decimal
	Total             decimal.Decimal
	PaymentStatus     PaymentStatus
	DeliveryAddressID *uuid.UUID
	PaymentRef        string
	InvoiceRef        string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

type IntentStatus string

const (
	IntentPending      IntentStatus = "pending"
	IntentMaterialized IntentStatus = "materialized"
	IntentFailed       IntentStatus = "failed"
)

// CheckoutIntent is the durable record of one confirmed payment attempt,
// keyed by the gateway's payment reference.
type CheckoutIntent struct {
	PaymentRef        string
	UserID            uuid.UUID
	DeliveryAddressID *uuid.UUID
	DiscountCode      string
	AmountMinor       int64
	Currency          string
	Status            IntentStatus
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// SettlementMessage is published once per materialized checkout.
type SettlementMessage struct {
	PaymentRef   string    `json:"payment_ref"`
	UserID       uuid.UUID `json:"user_id"`
	OrderNumbers []string  `json:"order_numbers"`
	AmountMinor  int64     `json:"amount_minor"`
	Currency     string    `json:"currency"`
	SettledAt    time.Time `json:"settled_at"`
}
