package inventory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockpos/backend/internal/domain"
	"stockpos/backend/internal/store"
	"stockpos/backend/internal/store/memory"
)

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func addProduct(t *testing.T, repo *memory.Store, name string, price string) int64 {
	t.Helper()
	p, err := repo.CreateProduct(context.Background(), domain.Product{
		Name:  name,
		Price: decimal.RequireFromString(price),
	}, nil)
	require.NoError(t, err)
	return p.ID
}

func addBatch(t *testing.T, repo *memory.Store, productID int64, qty int, purchasedAt time.Time) int64 {
	t.Helper()
	b, err := repo.CreateBatch(context.Background(), domain.Batch{
		ProductID:     productID,
		Quantity:      qty,
		PurchasePrice: decimal.RequireFromString("1.00"),
		PurchasedAt:   purchasedAt,
	})
	require.NoError(t, err)
	return b.ID
}

func batchQuantities(t *testing.T, repo *memory.Store, productID int64) map[int64]int {
	t.Helper()
	batches, err := repo.ListBatches(context.Background(), productID)
	require.NoError(t, err)
	out := make(map[int64]int, len(batches))
	for _, b := range batches {
		out[b.ID] = b.Quantity
	}
	return out
}

func deductInTx(t *testing.T, repo *memory.Store, productID int64, qty int) ([]domain.BatchDeduction, error) {
	t.Helper()
	var out []domain.BatchDeduction
	err := repo.WithinTx(context.Background(), func(ctx context.Context, ledger store.Ledger) error {
		var err error
		out, err = Deduct(ctx, ledger, productID, qty)
		return err
	})
	return out, err
}

func saleCount(t *testing.T, repo *memory.Store) int {
	t.Helper()
	sales, err := repo.ListSales(context.Background(), time.Time{}, time.Now().Add(time.Hour), 1000)
	require.NoError(t, err)
	return len(sales)
}

func TestTotalStockSumsBatches(t *testing.T) {
	repo := memory.New()
	p := addProduct(t, repo, "Milk", "1.50")
	addBatch(t, repo, p, 4, t0)
	addBatch(t, repo, p, 6, t0.Add(time.Hour))

	total, err := TotalStock(context.Background(), repo, p)
	require.NoError(t, err)
	assert.Equal(t, 10, total)
}

func TestTotalStockWithoutBatchesIsZero(t *testing.T) {
	repo := memory.New()
	p := addProduct(t, repo, "Juice", "2.50")

	total, err := TotalStock(context.Background(), repo, p)
	require.NoError(t, err)
	assert.Equal(t, 0, total)
}

func TestDeductConsumesOldestBatchFirst(t *testing.T) {
	repo := memory.New()
	p := addProduct(t, repo, "Rice", "1.20")
	// Inserted out of order so id order and purchase order disagree.
	b3 := addBatch(t, repo, p, 10, t0.Add(48*time.Hour))
	b1 := addBatch(t, repo, p, 10, t0)
	b2 := addBatch(t, repo, p, 10, t0.Add(24*time.Hour))

	deductions, err := deductInTx(t, repo, p, 15)
	require.NoError(t, err)
	require.Len(t, deductions, 2)
	assert.Equal(t, domain.BatchDeduction{BatchID: b1, Taken: 10, Remaining: 0, Removed: true}, deductions[0])
	assert.Equal(t, domain.BatchDeduction{BatchID: b2, Taken: 5, Remaining: 5, Removed: false}, deductions[1])

	assert.Equal(t, map[int64]int{b2: 5, b3: 10}, batchQuantities(t, repo, p))
}

func TestDeductBreaksPurchaseTiesByID(t *testing.T) {
	repo := memory.New()
	p := addProduct(t, repo, "Eggs", "3.00")
	first := addBatch(t, repo, p, 3, t0)
	second := addBatch(t, repo, p, 3, t0)

	_, err := deductInTx(t, repo, p, 4)
	require.NoError(t, err)
	assert.Equal(t, map[int64]int{second: 2}, batchQuantities(t, repo, p))
	assert.NotContains(t, batchQuantities(t, repo, p), first)
}

func TestDeductExactExhaustionRemovesAllBatches(t *testing.T) {
	repo := memory.New()
	p := addProduct(t, repo, "Coffee", "5.50")
	addBatch(t, repo, p, 7, t0)
	addBatch(t, repo, p, 5, t0.Add(time.Hour))

	_, err := deductInTx(t, repo, p, 12)
	require.NoError(t, err)

	assert.Empty(t, batchQuantities(t, repo, p))
	total, err := TotalStock(context.Background(), repo, p)
	require.NoError(t, err)
	assert.Equal(t, 0, total)
}

func TestDeductZeroIsNoOp(t *testing.T) {
	repo := memory.New()
	p := addProduct(t, repo, "Bread", "2.20")
	b := addBatch(t, repo, p, 5, t0)

	deductions, err := deductInTx(t, repo, p, 0)
	require.NoError(t, err)
	assert.Empty(t, deductions)
	assert.Equal(t, map[int64]int{b: 5}, batchQuantities(t, repo, p))
}

func TestDeductRejectsNegativeQuantity(t *testing.T) {
	repo := memory.New()
	p := addProduct(t, repo, "Bread", "2.20")
	b := addBatch(t, repo, p, 5, t0)

	_, err := deductInTx(t, repo, p, -1)
	require.ErrorIs(t, err, ErrInvalidQuantity)
	assert.Equal(t, map[int64]int{b: 5}, batchQuantities(t, repo, p))
}

func TestDeductShortfallTouchesNothing(t *testing.T) {
	repo := memory.New()
	p := addProduct(t, repo, "Oil", "8.50")
	b1 := addBatch(t, repo, p, 2, t0)
	b2 := addBatch(t, repo, p, 2, t0.Add(time.Hour))

	_, err := deductInTx(t, repo, p, 5)
	require.ErrorIs(t, err, ErrInsufficientStock)

	var stockErr *StockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, 5, stockErr.Requested)
	assert.Equal(t, 4, stockErr.Available)
	assert.Equal(t, 1, stockErr.Shortfall())
	assert.Equal(t, map[int64]int{b1: 2, b2: 2}, batchQuantities(t, repo, p))
}

func commitRequest(lines ...domain.CartLine) domain.CommitSaleRequest {
	total := decimal.Zero
	for _, line := range lines {
		total = total.Add(LineTotal(line))
	}
	cash := total.Add(decimal.NewFromInt(5))
	return domain.CommitSaleRequest{
		UserID:       1,
		Lines:        lines,
		TotalAmount:  total,
		CashReceived: cash,
		ChangeGiven:  cash.Sub(total),
	}
}

func TestCommitSaleSuccess(t *testing.T) {
	repo := memory.New()
	p := addProduct(t, repo, "Sugar", "3.00")
	b := addBatch(t, repo, p, 20, t0)

	sale, err := NewCoordinator(repo).CommitSale(context.Background(), domain.CommitSaleRequest{
		UserID:       7,
		Lines:        []domain.CartLine{{ProductID: p, Quantity: 5, UnitPrice: decimal.RequireFromString("3.00")}},
		TotalAmount:  decimal.RequireFromString("15.00"),
		CashReceived: decimal.RequireFromString("20.00"),
		ChangeGiven:  decimal.RequireFromString("5.00"),
	})
	require.NoError(t, err)
	require.NotZero(t, sale.ID)
	assert.Equal(t, int64(7), sale.UserID)
	assert.True(t, sale.TotalAmount.Equal(decimal.RequireFromString("15")))
	assert.Equal(t, map[int64]int{b: 15}, batchQuantities(t, repo, p))

	stored, err := repo.GetSale(context.Background(), sale.ID)
	require.NoError(t, err)
	require.Len(t, stored.Items, 1)
	item := stored.Items[0]
	assert.Equal(t, p, item.ProductID)
	assert.Equal(t, "Sugar", item.ProductName)
	assert.Equal(t, 5, item.Quantity)
	assert.True(t, item.UnitPrice.Equal(decimal.RequireFromString("3.00")))
	assert.True(t, item.TotalPrice.Equal(decimal.RequireFromString("15.00")))
}

func TestCommitSaleInsufficientStockPersistsNothing(t *testing.T) {
	repo := memory.New()
	p := addProduct(t, repo, "Tea", "4.00")
	b := addBatch(t, repo, p, 5, t0)

	_, err := NewCoordinator(repo).CommitSale(context.Background(), commitRequest(
		domain.CartLine{ProductID: p, Quantity: 6, UnitPrice: decimal.RequireFromString("4.00")},
	))
	require.ErrorIs(t, err, ErrInsufficientStock)
	assert.Contains(t, err.Error(), "Tea")
	assert.Contains(t, err.Error(), "short by 1")

	assert.Equal(t, 0, saleCount(t, repo))
	assert.Equal(t, map[int64]int{b: 5}, batchQuantities(t, repo, p))
}

func TestCommitSaleConsumesAcrossBatches(t *testing.T) {
	repo := memory.New()
	p := addProduct(t, repo, "Flour", "2.00")
	b1 := addBatch(t, repo, p, 3, t0)
	b2 := addBatch(t, repo, p, 4, t0.Add(24*time.Hour))

	_, err := NewCoordinator(repo).CommitSale(context.Background(), commitRequest(
		domain.CartLine{ProductID: p, Quantity: 5, UnitPrice: decimal.RequireFromString("2.00")},
	))
	require.NoError(t, err)

	got := batchQuantities(t, repo, p)
	assert.NotContains(t, got, b1)
	assert.Equal(t, map[int64]int{b2: 2}, got)
}

func TestCommitSaleEmptyCart(t *testing.T) {
	tx := &countingTx{}
	_, err := NewCoordinator(tx).CommitSale(context.Background(), domain.CommitSaleRequest{UserID: 1})
	require.ErrorIs(t, err, ErrEmptyCart)
	assert.Zero(t, tx.calls)
}

func TestCommitSaleInvalidQuantityBeforeStorage(t *testing.T) {
	tx := &countingTx{}
	_, err := NewCoordinator(tx).CommitSale(context.Background(), commitRequest(
		domain.CartLine{ProductID: 1, Quantity: 2, UnitPrice: decimal.RequireFromString("1.00")},
		domain.CartLine{ProductID: 2, Quantity: 0, UnitPrice: decimal.RequireFromString("1.00")},
	))
	require.ErrorIs(t, err, ErrInvalidQuantity)
	assert.Zero(t, tx.calls)
}

func TestCommitSaleUnknownProduct(t *testing.T) {
	repo := memory.New()
	p := addProduct(t, repo, "Salt", "0.90")
	b := addBatch(t, repo, p, 10, t0)

	_, err := NewCoordinator(repo).CommitSale(context.Background(), commitRequest(
		domain.CartLine{ProductID: p, Quantity: 1, UnitPrice: decimal.RequireFromString("0.90")},
		domain.CartLine{ProductID: 999, Quantity: 1, UnitPrice: decimal.RequireFromString("1.00")},
	))
	require.ErrorIs(t, err, ErrProductNotFound)
	assert.Equal(t, 0, saleCount(t, repo))
	assert.Equal(t, map[int64]int{b: 10}, batchQuantities(t, repo, p))
}

func TestCommitSaleValidatesCombinedDemandOfRepeatedLines(t *testing.T) {
	repo := memory.New()
	p := addProduct(t, repo, "Chips", "1.80")
	addBatch(t, repo, p, 5, t0)

	line := domain.CartLine{ProductID: p, Quantity: 3, UnitPrice: decimal.RequireFromString("1.80")}
	_, err := NewCoordinator(repo).CommitSale(context.Background(), commitRequest(line, line))

	var stockErr *StockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, 6, stockErr.Requested)
	assert.Equal(t, 5, stockErr.Available)
	assert.Equal(t, 0, saleCount(t, repo))
}

func TestCommitSaleStorageFailureRollsBackEverything(t *testing.T) {
	repo := memory.New()
	a := addProduct(t, repo, "Apples", "1.00")
	b := addProduct(t, repo, "Pears", "1.00")
	a1 := addBatch(t, repo, a, 4, t0)
	a2 := addBatch(t, repo, a, 4, t0.Add(time.Hour))
	b1 := addBatch(t, repo, b, 4, t0)

	// The first line deducts successfully, the second line's item insert fails.
	tx := &failingTx{inner: repo, failLineItemAfter: 1}
	_, err := NewCoordinator(tx).CommitSale(context.Background(), commitRequest(
		domain.CartLine{ProductID: a, Quantity: 6, UnitPrice: decimal.RequireFromString("1.00")},
		domain.CartLine{ProductID: b, Quantity: 2, UnitPrice: decimal.RequireFromString("1.00")},
	))
	require.ErrorIs(t, err, ErrTransactionFailure)
	require.ErrorIs(t, err, errStorage)
	assert.False(t, IsUserError(err))

	assert.Equal(t, 0, saleCount(t, repo))
	assert.Equal(t, map[int64]int{a1: 4, a2: 4}, batchQuantities(t, repo, a))
	assert.Equal(t, map[int64]int{b1: 4}, batchQuantities(t, repo, b))
}

func TestCommitSaleCancelledContextRollsBack(t *testing.T) {
	repo := memory.New()
	p := addProduct(t, repo, "Butter", "2.40")
	b := addBatch(t, repo, p, 3, t0)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewCoordinator(repo).CommitSale(ctx, commitRequest(
		domain.CartLine{ProductID: p, Quantity: 1, UnitPrice: decimal.RequireFromString("2.40")},
	))
	require.ErrorIs(t, err, ErrTransactionFailure)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, map[int64]int{b: 3}, batchQuantities(t, repo, p))
}

func TestConcurrentCommitsNeverOversell(t *testing.T) {
	repo := memory.New()
	p := addProduct(t, repo, "Cheese", "6.00")
	addBatch(t, repo, p, 4, t0)
	addBatch(t, repo, p, 6, t0.Add(time.Hour))

	coord := NewCoordinator(repo)
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		rejected  int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := coord.CommitSale(context.Background(), commitRequest(
				domain.CartLine{ProductID: p, Quantity: 3, UnitPrice: decimal.RequireFromString("6.00")},
			))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, ErrInsufficientStock):
				rejected++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 3, succeeded)
	assert.Equal(t, 5, rejected)
	total, err := TotalStock(context.Background(), repo, p)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, 3, saleCount(t, repo))
}

func TestAggregateLinesSortsIDs(t *testing.T) {
	requested, ids := aggregateLines([]domain.CartLine{
		{ProductID: 9, Quantity: 1},
		{ProductID: 3, Quantity: 2},
		{ProductID: 9, Quantity: 4},
	})
	assert.Equal(t, []int64{3, 9}, ids)
	assert.Equal(t, map[int64]int{3: 2, 9: 5}, requested)
}

type countingTx struct {
	calls int
}

func (c *countingTx) WithinTx(context.Context, func(context.Context, store.Ledger) error) error {
	c.calls++
	return errors.New("unexpected transaction")
}

var errStorage = errors.New("disk on fire")

type failingTx struct {
	inner             store.TxRunner
	failLineItemAfter int
}

func (f *failingTx) WithinTx(ctx context.Context, fn func(context.Context, store.Ledger) error) error {
	return f.inner.WithinTx(ctx, func(ctx context.Context, ledger store.Ledger) error {
		return fn(ctx, &failingLedger{Ledger: ledger, allowItems: f.failLineItemAfter})
	})
}

type failingLedger struct {
	store.Ledger
	allowItems int
}

func (l *failingLedger) CreateSaleLineItem(ctx context.Context, item domain.SaleLineItem) (*domain.SaleLineItem, error) {
	if l.allowItems == 0 {
		return nil, errStorage
	}
	l.allowItems--
	return l.Ledger.CreateSaleLineItem(ctx, item)
}
