package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Product struct {
	ID          int64           `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	ImageURL    string          `json:"image_url,omitempty"`
	TotalStock  int             `json:"total_stock"`
	Batches     []Batch         `json:"batches,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

type ProductCreateRequest struct {
	Name          string           `json:"name"`
	Description   string           `json:"description"`
	Price         decimal.Decimal  `json:"price"`
	ImageURL      string           `json:"image_url"`
	InitialStock  int              `json:"initial_stock"`
	PurchasePrice *decimal.Decimal `json:"purchase_price,omitempty"`
}

type ProductUpdateRequest struct {
	Name        *string          `json:"name,omitempty"`
	Description *string          `json:"description,omitempty"`
	Price       *decimal.Decimal `json:"price,omitempty"`
	ImageURL    *string          `json:"image_url,omitempty"`
}

// Batch is one received lot of stock. Quantity is what remains of it.
type Batch struct {
	ID            int64           `json:"id"`
	ProductID     int64           `json:"product_id"`
	Quantity      int             `json:"quantity"`
	PurchasePrice decimal.Decimal `json:"purchase_price"`
	PurchasedAt   time.Time       `json:"purchased_at"`
	CreatedAt     time.Time       `json:"created_at"`
}

type RestockRequest struct {
	Quantity      int             `json:"quantity"`
	PurchasePrice decimal.Decimal `json:"purchase_price"`
	PurchasedAt   *time.Time      `json:"purchased_at,omitempty"`
}

// BatchDeduction records how much a single FIFO step took from a batch.
type BatchDeduction struct {
	BatchID   int64 `json:"batch_id"`
	Taken     int   `json:"taken"`
	Remaining int   `json:"remaining"`
	Removed   bool  `json:"removed"`
}

type Sale struct {
	ID           int64           `json:"id"`
	UserID       int64           `json:"user_id"`
	TotalAmount  decimal.Decimal `json:"total_amount"`
	CashReceived decimal.Decimal `json:"cash_received"`
	ChangeGiven  decimal.Decimal `json:"change_given"`
	CreatedAt    time.Time       `json:"created_at"`
	Items        []SaleLineItem  `json:"items,omitempty"`
}

// SaleLineItem keeps the price and name the product had when it was sold.
// ProductID is zero once the product has been deleted.
type SaleLineItem struct {
	ID          int64           `json:"id"`
	SaleID      int64           `json:"sale_id"`
	ProductID   int64           `json:"product_id"`
	ProductName string          `json:"product_name"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	TotalPrice  decimal.Decimal `json:"total_price"`
	CreatedAt   time.Time       `json:"created_at"`
}

type CartLine struct {
	ProductID int64           `json:"product_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// CommitSaleRequest is the validated cart handed to the sale coordinator.
type CommitSaleRequest struct {
	UserID       int64
	Lines        []CartLine
	TotalAmount  decimal.Decimal
	CashReceived decimal.Decimal
	ChangeGiven  decimal.Decimal
}

type CheckoutRequest struct {
	Cart         []CartLine       `json:"cart"`
	TotalAmount  *decimal.Decimal `json:"total_amount,omitempty"`
	CashReceived decimal.Decimal  `json:"cash_received"`
}

type CheckoutResponse struct {
	SaleID       int64           `json:"sale_id"`
	TotalAmount  decimal.Decimal `json:"total_amount"`
	CashReceived decimal.Decimal `json:"cash_received"`
	ChangeGiven  decimal.Decimal `json:"change_given"`
	ItemCount    int             `json:"item_count"`
	CreatedAt    string          `json:"created_at"`
	Items        []SaleLineItem  `json:"items"`
}

type ProductSales struct {
	ProductID   int64           `json:"product_id"`
	ProductName string          `json:"product_name"`
	Quantity    int64           `json:"quantity"`
	Revenue     decimal.Decimal `json:"revenue"`
}

type SalesReport struct {
	From        string          `json:"from"`
	To          string          `json:"to"`
	Sales       int64           `json:"sales"`
	Revenue     decimal.Decimal `json:"revenue"`
	UnitsSold   int64           `json:"units_sold"`
	TopProducts []ProductSales  `json:"top_products"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type RegisterRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role,omitempty"`
}

// Actor is the authenticated caller carried through request contexts.
type Actor struct {
	UserID int64  `json:"id"`
	Name   string `json:"name"`
	Email  string `json:"email"`
	Role   string `json:"role"`
}

// User is the persistence model for accounts, including lockout state.
type User struct {
	ID            int64
	Name          string
	Email         string
	PasswordHash  string
	Role          string
	LoginAttempts int
	LockUntil     *time.Time
	CreatedAt     time.Time
}

type UserView struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

const (
	RoleAdmin   = "admin"
	RoleCashier = "cashier"
)
