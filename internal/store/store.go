package store

import (
	"context"
	"errors"
	"time"

	"stockpos/backend/internal/domain"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrConflict     = errors.New("conflict")
)

// Ledger is the view of the batch ledger inside one open transaction.
// Everything read through it sees the transaction's own uncommitted writes.
type Ledger interface {
	GetProduct(ctx context.Context, id int64) (*domain.Product, error)
	// LockBatches takes row locks on every batch of the given products for the
	// rest of the transaction.
	LockBatches(ctx context.Context, productIDs []int64) error
	// ListBatches returns the product's batches oldest first (PurchasedAt, ID).
	ListBatches(ctx context.Context, productID int64) ([]domain.Batch, error)
	UpdateBatchQuantity(ctx context.Context, batchID int64, qty int) error
	DeleteBatch(ctx context.Context, batchID int64) error
	CreateSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error)
	CreateSaleLineItem(ctx context.Context, item domain.SaleLineItem) (*domain.SaleLineItem, error)
}

// TxRunner runs fn inside a single transaction. The transaction commits when
// fn returns nil and rolls back on any error, panic or context cancellation.
type TxRunner interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, ledger Ledger) error) error
}

type Repository interface {
	TxRunner

	ListProducts(ctx context.Context) ([]domain.Product, error)
	SearchProducts(ctx context.Context, query string, limit int) ([]domain.Product, error)
	GetProduct(ctx context.Context, id int64) (*domain.Product, error)
	GetProductsByIDs(ctx context.Context, ids []int64) (map[int64]domain.Product, error)
	CreateProduct(ctx context.Context, product domain.Product, initial *domain.Batch) (*domain.Product, error)
	UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	DeleteProduct(ctx context.Context, id int64) error

	ListBatches(ctx context.Context, productID int64) ([]domain.Batch, error)
	CreateBatch(ctx context.Context, batch domain.Batch) (*domain.Batch, error)
	GetStockTotals(ctx context.Context, productIDs []int64) (map[int64]int, error)

	GetSale(ctx context.Context, id int64) (*domain.Sale, error)
	ListSales(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.Sale, error)
	GetSalesReport(ctx context.Context, from time.Time, to time.Time, topN int) (domain.SalesReport, error)

	CreateUser(ctx context.Context, user domain.User) (*domain.User, error)
	GetUserByEmail(ctx context.Context, email string) (*domain.User, error)
	GetUserByID(ctx context.Context, id int64) (*domain.User, error)
	ListUsers(ctx context.Context) ([]domain.User, error)
	UpdateLoginState(ctx context.Context, userID int64, attempts int, lockUntil *time.Time) error
	UpdateUserPassword(ctx context.Context, userID int64, passwordHash string) error
}
