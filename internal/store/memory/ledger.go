package memory

import (
	"context"
	"time"

	"stockpos/backend/internal/domain"
	"stockpos/backend/internal/store"
)

// ledger is the in-transaction view handed out by WithinTx. It writes only to
// the transaction's private state.
type ledger struct {
	st  *state
	now func() time.Time
}

func (l *ledger) GetProduct(_ context.Context, id int64) (*domain.Product, error) {
	p, ok := l.st.products[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	p.TotalStock = l.st.totalStock(id)
	return &p, nil
}

// LockBatches is a no-op: WithinTx already holds the store exclusively.
func (l *ledger) LockBatches(_ context.Context, _ []int64) error {
	return nil
}

func (l *ledger) ListBatches(_ context.Context, productID int64) ([]domain.Batch, error) {
	return l.st.productBatches(productID), nil
}

func (l *ledger) UpdateBatchQuantity(_ context.Context, batchID int64, qty int) error {
	if qty < 0 {
		return store.ErrInvalidInput
	}
	batch, ok := l.st.batches[batchID]
	if !ok {
		return store.ErrNotFound
	}
	batch.Quantity = qty
	l.st.batches[batchID] = batch
	return nil
}

func (l *ledger) DeleteBatch(_ context.Context, batchID int64) error {
	if _, ok := l.st.batches[batchID]; !ok {
		return store.ErrNotFound
	}
	delete(l.st.batches, batchID)
	return nil
}

func (l *ledger) CreateSale(_ context.Context, sale domain.Sale) (*domain.Sale, error) {
	sale.ID = l.st.allocate("sale")
	if sale.CreatedAt.IsZero() {
		sale.CreatedAt = l.now()
	}
	sale.Items = nil
	l.st.sales[sale.ID] = sale
	return &sale, nil
}

func (l *ledger) CreateSaleLineItem(_ context.Context, item domain.SaleLineItem) (*domain.SaleLineItem, error) {
	if item.Quantity < 1 {
		return nil, store.ErrInvalidInput
	}
	sale, ok := l.st.sales[item.SaleID]
	if !ok {
		return nil, store.ErrInvalidInput
	}
	item.ID = l.st.allocate("sale_line_item")
	if item.CreatedAt.IsZero() {
		item.CreatedAt = sale.CreatedAt
	}
	l.st.lineItems[item.ID] = item
	return &item, nil
}
