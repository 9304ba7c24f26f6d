package inventory

import (
	"context"

	"stockpos/backend/internal/domain"
)

// BatchReader is the read side of the ledger the aggregator needs.
type BatchReader interface {
	ListBatches(ctx context.Context, productID int64) ([]domain.Batch, error)
}

// TotalStock sums the remaining quantity of every batch of the product.
// Read through a transaction's ledger it includes that transaction's own
// pending deductions. A product without batches has stock 0.
func TotalStock(ctx context.Context, ledger BatchReader, productID int64) (int, error) {
	batches, err := ledger.ListBatches(ctx, productID)
	if err != nil {
		return 0, err
	}
	return SumQuantities(batches), nil
}

func SumQuantities(batches []domain.Batch) int {
	total := 0
	for _, b := range batches {
		total += b.Quantity
	}
	return total
}
