package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/Masterminds/squirrel"

	"stockpos/backend/internal/domain"
	"stockpos/backend/internal/store"
)

// ledger is the batch ledger seen through one open transaction.
type ledger struct {
	tx *sql.Tx
}

// GetProduct takes a share lock so the product cannot be deleted while the
// sale that references it is in flight.
func (l *ledger) GetProduct(ctx context.Context, id int64) (*domain.Product, error) {
	query, args, err := productBaseSelect().
		Where(squirrel.Eq{"p.id": id}).
		Suffix("FOR SHARE").
		ToSql()
	if err != nil {
		return nil, err
	}

	var p domain.Product
	err = l.tx.QueryRowContext(ctx, query, args...).Scan(
		&p.ID, &p.Name, &p.Description, &p.Price, &p.ImageURL, &p.CreatedAt, &p.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// LockBatches locks every batch row of the products in (product_id, id)
// order. Transactions locking overlapping carts therefore queue rather than
// deadlock.
func (l *ledger) LockBatches(ctx context.Context, productIDs []int64) error {
	if len(productIDs) == 0 {
		return nil
	}
	query, args, err := psql.Select("id").
		From("batches").
		Where(squirrel.Eq{"product_id": productIDs}).
		OrderBy("product_id", "id").
		Suffix("FOR UPDATE").
		ToSql()
	if err != nil {
		return err
	}

	rows, err := l.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return err
		}
	}
	return rows.Err()
}

func (l *ledger) ListBatches(ctx context.Context, productID int64) ([]domain.Batch, error) {
	return queryBatches(ctx, l.tx, productID)
}

func (l *ledger) UpdateBatchQuantity(ctx context.Context, batchID int64, qty int) error {
	if qty < 0 {
		return store.ErrInvalidInput
	}
	query, args, err := psql.Update("batches").
		Set("quantity", qty).
		Where(squirrel.Eq{"id": batchID}).
		ToSql()
	if err != nil {
		return err
	}
	return execOne(ctx, l.tx, query, args...)
}

func (l *ledger) DeleteBatch(ctx context.Context, batchID int64) error {
	query, args, err := psql.Delete("batches").Where(squirrel.Eq{"id": batchID}).ToSql()
	if err != nil {
		return err
	}
	return execOne(ctx, l.tx, query, args...)
}

func (l *ledger) CreateSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error) {
	query, args, err := psql.Insert("sales").
		Columns("user_id", "total_amount", "cash_received", "change_given").
		Values(nullIfZero(sale.UserID), sale.TotalAmount, sale.CashReceived, sale.ChangeGiven).
		Suffix("RETURNING id, created_at").
		ToSql()
	if err != nil {
		return nil, err
	}
	if err := l.tx.QueryRowContext(ctx, query, args...).Scan(&sale.ID, &sale.CreatedAt); err != nil {
		return nil, err
	}
	sale.Items = nil
	return &sale, nil
}

func (l *ledger) CreateSaleLineItem(ctx context.Context, item domain.SaleLineItem) (*domain.SaleLineItem, error) {
	if item.Quantity < 1 {
		return nil, store.ErrInvalidInput
	}
	insert := psql.Insert("sale_line_items").
		Columns("sale_id", "product_id", "product_name", "quantity", "unit_price", "total_price", "created_at")
	if item.CreatedAt.IsZero() {
		insert = insert.Values(item.SaleID, nullIfZero(item.ProductID), item.ProductName, item.Quantity,
			item.UnitPrice, item.TotalPrice, squirrel.Expr("now()"))
	} else {
		insert = insert.Values(item.SaleID, nullIfZero(item.ProductID), item.ProductName, item.Quantity,
			item.UnitPrice, item.TotalPrice, item.CreatedAt)
	}
	query, args, err := insert.Suffix("RETURNING id, created_at").ToSql()
	if err != nil {
		return nil, err
	}
	if err := l.tx.QueryRowContext(ctx, query, args...).Scan(&item.ID, &item.CreatedAt); err != nil {
		if isForeignKeyViolation(err) || isCheckViolation(err) {
			return nil, store.ErrInvalidInput
		}
		return nil, err
	}
	return &item, nil
}

func queryBatches(ctx context.Context, q queryer, productID int64) ([]domain.Batch, error) {
	query, args, err := psql.Select("id", "product_id", "quantity", "purchase_price", "purchased_at", "created_at").
		From("batches").
		Where(squirrel.Eq{"product_id": productID}).
		OrderBy("purchased_at", "id").
		ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	batches := make([]domain.Batch, 0, 4)
	for rows.Next() {
		var b domain.Batch
		if err := rows.Scan(&b.ID, &b.ProductID, &b.Quantity, &b.PurchasePrice, &b.PurchasedAt, &b.CreatedAt); err != nil {
			return nil, err
		}
		batches = append(batches, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return batches, nil
}

// execOne runs a statement that must touch exactly one row.
func execOne(ctx context.Context, q queryer, query string, args ...any) error {
	res, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		if isCheckViolation(err) {
			return store.ErrInvalidInput
		}
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}
