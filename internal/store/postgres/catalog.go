package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"strings"

	"github.com/Masterminds/squirrel"

	"stockpos/backend/internal/domain"
	"stockpos/backend/internal/store"
)

const stockTotalExpr = "COALESCE((SELECT SUM(b.quantity) FROM batches b WHERE b.product_id = p.id), 0)"

func productBaseSelect() squirrel.SelectBuilder {
	return psql.Select(
		"p.id", "p.name", "p.description", "p.price", "COALESCE(p.image_url, '')", "p.created_at", "p.updated_at",
	).From("products p")
}

func productStockSelect() squirrel.SelectBuilder {
	return productBaseSelect().Column(stockTotalExpr)
}

func queryProducts(ctx context.Context, q queryer, builder squirrel.SelectBuilder) ([]domain.Product, error) {
	query, args, err := builder.ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 64)
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(
			&p.ID, &p.Name, &p.Description, &p.Price, &p.ImageURL, &p.CreatedAt, &p.UpdatedAt, &p.TotalStock,
		); err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return products, nil
}

func (s *Store) ListProducts(ctx context.Context) ([]domain.Product, error) {
	return queryProducts(ctx, s.db, productStockSelect().OrderBy("p.id DESC"))
}

// SearchProducts matches the name case-insensitively or the exact id, and
// only returns products that are in stock.
func (s *Store) SearchProducts(ctx context.Context, query string, limit int) ([]domain.Product, error) {
	if limit < 1 {
		limit = 10
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return []domain.Product{}, nil
	}

	match := squirrel.Or{squirrel.ILike{"p.name": likePattern(query)}}
	if id, err := strconv.ParseInt(query, 10, 64); err == nil {
		match = append(match, squirrel.Eq{"p.id": id})
	}

	return queryProducts(ctx, s.db, productStockSelect().
		Where(match).
		Where(stockTotalExpr+" > 0").
		OrderBy("p.name").
		Limit(uint64(limit)))
}

func (s *Store) GetProduct(ctx context.Context, id int64) (*domain.Product, error) {
	products, err := queryProducts(ctx, s.db, productStockSelect().Where(squirrel.Eq{"p.id": id}))
	if err != nil {
		return nil, err
	}
	if len(products) == 0 {
		return nil, store.ErrNotFound
	}

	p := products[0]
	p.Batches, err = queryBatches(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Store) GetProductsByIDs(ctx context.Context, ids []int64) (map[int64]domain.Product, error) {
	result := make(map[int64]domain.Product, len(ids))
	if len(ids) == 0 {
		return result, nil
	}
	products, err := queryProducts(ctx, s.db, productStockSelect().Where(squirrel.Eq{"p.id": ids}))
	if err != nil {
		return nil, err
	}
	for _, p := range products {
		result[p.ID] = p
	}
	return result, nil
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product, initial *domain.Batch) (*domain.Product, error) {
	if strings.TrimSpace(product.Name) == "" || product.Price.IsNegative() {
		return nil, store.ErrInvalidInput
	}
	if initial != nil && (initial.Quantity < 0 || initial.PurchasePrice.IsNegative()) {
		return nil, store.ErrInvalidInput
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	query, args, err := psql.Insert("products").
		Columns("name", "description", "price", "image_url").
		Values(product.Name, product.Description, product.Price, nullIfEmpty(product.ImageURL)).
		Suffix("RETURNING id, created_at, updated_at").
		ToSql()
	if err != nil {
		return nil, err
	}
	if err := tx.QueryRowContext(ctx, query, args...).Scan(&product.ID, &product.CreatedAt, &product.UpdatedAt); err != nil {
		return nil, err
	}
	product.Batches = nil
	product.TotalStock = 0

	if initial != nil && initial.Quantity > 0 {
		batch := *initial
		batch.ProductID = product.ID
		created, err := insertBatch(ctx, tx, batch)
		if err != nil {
			return nil, err
		}
		product.Batches = []domain.Batch{*created}
		product.TotalStock = created.Quantity
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &product, nil
}

func (s *Store) UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if strings.TrimSpace(product.Name) == "" || product.Price.IsNegative() {
		return nil, store.ErrInvalidInput
	}

	query, args, err := psql.Update("products").
		Set("name", product.Name).
		Set("description", product.Description).
		Set("price", product.Price).
		Set("image_url", nullIfEmpty(product.ImageURL)).
		Set("updated_at", squirrel.Expr("now()")).
		Where(squirrel.Eq{"id": product.ID}).
		Suffix("RETURNING created_at, updated_at").
		ToSql()
	if err != nil {
		return nil, err
	}
	err = s.db.QueryRowContext(ctx, query, args...).Scan(&product.CreatedAt, &product.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	totals, err := s.GetStockTotals(ctx, []int64{product.ID})
	if err != nil {
		return nil, err
	}
	product.TotalStock = totals[product.ID]
	product.Batches = nil
	return &product, nil
}

// DeleteProduct removes the product and its batches. Sale line items keep
// their captured name and price and lose the product reference.
func (s *Store) DeleteProduct(ctx context.Context, id int64) error {
	query, args, err := psql.Delete("products").Where(squirrel.Eq{"id": id}).ToSql()
	if err != nil {
		return err
	}
	return execOne(ctx, s.db, query, args...)
}

func (s *Store) ListBatches(ctx context.Context, productID int64) ([]domain.Batch, error) {
	var exists bool
	if err := s.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM products WHERE id = $1)`, productID).Scan(&exists); err != nil {
		return nil, err
	}
	if !exists {
		return nil, store.ErrNotFound
	}
	return queryBatches(ctx, s.db, productID)
}

func (s *Store) CreateBatch(ctx context.Context, batch domain.Batch) (*domain.Batch, error) {
	if batch.Quantity < 1 || batch.PurchasePrice.IsNegative() {
		return nil, store.ErrInvalidInput
	}
	created, err := insertBatch(ctx, s.db, batch)
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return created, nil
}

func insertBatch(ctx context.Context, q queryer, batch domain.Batch) (*domain.Batch, error) {
	var purchasedAt any = squirrel.Expr("now()")
	if !batch.PurchasedAt.IsZero() {
		purchasedAt = batch.PurchasedAt
	}
	query, args, err := psql.Insert("batches").
		Columns("product_id", "quantity", "purchase_price", "purchased_at").
		Values(batch.ProductID, batch.Quantity, batch.PurchasePrice, purchasedAt).
		Suffix("RETURNING id, purchased_at, created_at").
		ToSql()
	if err != nil {
		return nil, err
	}
	if err := q.QueryRowContext(ctx, query, args...).Scan(&batch.ID, &batch.PurchasedAt, &batch.CreatedAt); err != nil {
		return nil, err
	}
	return &batch, nil
}

func (s *Store) GetStockTotals(ctx context.Context, productIDs []int64) (map[int64]int, error) {
	totals := make(map[int64]int, len(productIDs))
	if len(productIDs) == 0 {
		return totals, nil
	}
	for _, id := range productIDs {
		totals[id] = 0
	}

	query, args, err := psql.Select("product_id", "COALESCE(SUM(quantity), 0)").
		From("batches").
		Where(squirrel.Eq{"product_id": productIDs}).
		GroupBy("product_id").
		ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id    int64
			total int
		)
		if err := rows.Scan(&id, &total); err != nil {
			return nil, err
		}
		totals[id] = total
	}
	return totals, rows.Err()
}
