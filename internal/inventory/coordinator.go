package inventory

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"

	"github.com/shopspring/decimal"

	"stockpos/backend/internal/domain"
	"stockpos/backend/internal/store"
)

// Coordinator commits a whole cart as one sale: validate every line, write the
// sale and its line items, then consume stock FIFO, all in one transaction.
type Coordinator struct {
	tx store.TxRunner
}

func NewCoordinator(tx store.TxRunner) *Coordinator {
	return &Coordinator{tx: tx}
}

// CommitSale validates the entire cart before writing anything. Batches of
// every product in the cart are row-locked first, so a concurrent checkout
// waits instead of racing; a shortfall found during deduction is still
// reported as ErrInsufficientStock and rolls the sale back.
func (c *Coordinator) CommitSale(ctx context.Context, req domain.CommitSaleRequest) (*domain.Sale, error) {
	if len(req.Lines) == 0 {
		return nil, ErrEmptyCart
	}
	for _, line := range req.Lines {
		if line.Quantity < 1 {
			return nil, invalidQuantity(line.ProductID, line.Quantity)
		}
	}

	requested, productIDs := aggregateLines(req.Lines)

	var committed *domain.Sale
	err := c.tx.WithinTx(ctx, func(ctx context.Context, ledger store.Ledger) error {
		if err := ledger.LockBatches(ctx, productIDs); err != nil {
			return err
		}

		products := make(map[int64]*domain.Product, len(productIDs))
		for _, line := range req.Lines {
			if _, seen := products[line.ProductID]; seen {
				continue
			}
			product, err := ledger.GetProduct(ctx, line.ProductID)
			if err != nil {
				if errors.Is(err, store.ErrNotFound) {
					return productNotFound(line.ProductID)
				}
				return err
			}
			products[line.ProductID] = product
		}

		for _, id := range productIDs {
			available, err := TotalStock(ctx, ledger, id)
			if err != nil {
				return err
			}
			if available < requested[id] {
				return &StockError{
					ProductID:   id,
					ProductName: products[id].Name,
					Requested:   requested[id],
					Available:   available,
				}
			}
		}

		sale, err := ledger.CreateSale(ctx, domain.Sale{
			UserID:       req.UserID,
			TotalAmount:  req.TotalAmount,
			CashReceived: req.CashReceived,
			ChangeGiven:  req.ChangeGiven,
		})
		if err != nil {
			return err
		}

		items := make([]domain.SaleLineItem, 0, len(req.Lines))
		for _, line := range req.Lines {
			product := products[line.ProductID]
			item, err := ledger.CreateSaleLineItem(ctx, domain.SaleLineItem{
				SaleID:      sale.ID,
				ProductID:   line.ProductID,
				ProductName: product.Name,
				Quantity:    line.Quantity,
				UnitPrice:   line.UnitPrice,
				TotalPrice:  LineTotal(line),
				CreatedAt:   sale.CreatedAt,
			})
			if err != nil {
				return err
			}

			if _, err := Deduct(ctx, ledger, line.ProductID, line.Quantity); err != nil {
				var stockErr *StockError
				if errors.As(err, &stockErr) {
					stockErr.ProductName = product.Name
				}
				return err
			}
			items = append(items, *item)
		}

		sale.Items = items
		committed = sale
		return nil
	})
	if err != nil {
		if IsUserError(err) {
			return nil, err
		}
		log.Printf("[sales] ERROR: commit rolled back user=%d lines=%d: %v", req.UserID, len(req.Lines), err)
		return nil, fmt.Errorf("%w: %w", ErrTransactionFailure, err)
	}

	log.Printf("[sales] committed sale id=%d user=%d total=%s lines=%d", committed.ID, committed.UserID, committed.TotalAmount.StringFixed(2), len(committed.Items))
	return committed, nil
}

// LineTotal is unit price times quantity for one cart line.
func LineTotal(line domain.CartLine) decimal.Decimal {
	return line.UnitPrice.Mul(decimal.NewFromInt(int64(line.Quantity)))
}

// aggregateLines sums quantities per product so a product that appears on
// several lines is validated against its combined demand. The id list is
// sorted to give every transaction the same lock order.
func aggregateLines(lines []domain.CartLine) (map[int64]int, []int64) {
	requested := make(map[int64]int, len(lines))
	for _, line := range lines {
		requested[line.ProductID] += line.Quantity
	}
	ids := make([]int64, 0, len(requested))
	for id := range requested {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return requested, ids
}
