package inventory

import (
	"context"
	"slices"

	"stockpos/backend/internal/domain"
	"stockpos/backend/internal/store"
)

// Deduct removes qty units of a product from its batches, oldest first.
// An emptied batch is deleted; a partially used one keeps the remainder.
// It must run inside a transaction: on error the caller rolls back.
func Deduct(ctx context.Context, ledger store.Ledger, productID int64, qty int) ([]domain.BatchDeduction, error) {
	if qty < 0 {
		return nil, invalidQuantity(productID, qty)
	}
	if qty == 0 {
		return nil, nil
	}

	batches, err := ledger.ListBatches(ctx, productID)
	if err != nil {
		return nil, err
	}
	SortFIFO(batches)

	if available := SumQuantities(batches); available < qty {
		return nil, &StockError{ProductID: productID, Requested: qty, Available: available}
	}

	remaining := qty
	deductions := make([]domain.BatchDeduction, 0, len(batches))
	for _, batch := range batches {
		if remaining == 0 {
			break
		}
		if batch.Quantity < 1 {
			continue
		}

		taken := min(batch.Quantity, remaining)
		left := batch.Quantity - taken
		if left == 0 {
			if err := ledger.DeleteBatch(ctx, batch.ID); err != nil {
				return nil, err
			}
		} else {
			if err := ledger.UpdateBatchQuantity(ctx, batch.ID, left); err != nil {
				return nil, err
			}
		}
		remaining -= taken
		deductions = append(deductions, domain.BatchDeduction{
			BatchID:   batch.ID,
			Taken:     taken,
			Remaining: left,
			Removed:   left == 0,
		})
	}

	if remaining > 0 {
		return nil, &StockError{ProductID: productID, Requested: qty, Available: qty - remaining}
	}
	return deductions, nil
}

// SortFIFO orders batches by purchase time, then by id (creation order).
func SortFIFO(batches []domain.Batch) {
	slices.SortStableFunc(batches, compareBatchFIFO)
}

func compareBatchFIFO(a, b domain.Batch) int {
	if c := a.PurchasedAt.Compare(b.PurchasedAt); c != 0 {
		return c
	}
	switch {
	case a.ID < b.ID:
		return -1
	case a.ID > b.ID:
		return 1
	}
	return 0
}
