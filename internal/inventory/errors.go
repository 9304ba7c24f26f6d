package inventory

import (
	"errors"
	"fmt"
)

var (
	ErrEmptyCart          = errors.New("cart is empty")
	ErrInvalidQuantity    = errors.New("invalid quantity")
	ErrProductNotFound    = errors.New("product not found")
	ErrInsufficientStock  = errors.New("insufficient stock")
	ErrTransactionFailure = errors.New("transaction failure")
)

// StockError reports a product whose batches cannot cover a request.
type StockError struct {
	ProductID   int64
	ProductName string
	Requested   int
	Available   int
}

func (e *StockError) Error() string {
	name := e.ProductName
	if name == "" {
		name = fmt.Sprintf("product %d", e.ProductID)
	}
	return fmt.Sprintf("insufficient stock for %s: requested %d, available %d, short by %d",
		name, e.Requested, e.Available, e.Shortfall())
}

func (e *StockError) Shortfall() int {
	if e.Requested <= e.Available {
		return 0
	}
	return e.Requested - e.Available
}

func (e *StockError) Unwrap() error {
	return ErrInsufficientStock
}

func invalidQuantity(productID int64, qty int) error {
	return fmt.Errorf("%w: product %d quantity %d", ErrInvalidQuantity, productID, qty)
}

func productNotFound(productID int64) error {
	return fmt.Errorf("%w: id %d", ErrProductNotFound, productID)
}

// IsUserError reports whether err is a rejection the caller can correct
// (as opposed to a storage failure).
func IsUserError(err error) bool {
	return errors.Is(err, ErrEmptyCart) ||
		errors.Is(err, ErrInvalidQuantity) ||
		errors.Is(err, ErrProductNotFound) ||
		errors.Is(err, ErrInsufficientStock)
}
