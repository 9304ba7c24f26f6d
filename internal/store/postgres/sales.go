package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/shopspring/decimal"

	"stockpos/backend/internal/domain"
	"stockpos/backend/internal/store"
)

func saleSelect() squirrel.SelectBuilder {
	return psql.Select("id", "COALESCE(user_id, 0)", "total_amount", "cash_received", "change_given", "created_at").
		From("sales")
}

func scanSale(row interface{ Scan(dest ...any) error }) (domain.Sale, error) {
	var sale domain.Sale
	err := row.Scan(&sale.ID, &sale.UserID, &sale.TotalAmount, &sale.CashReceived, &sale.ChangeGiven, &sale.CreatedAt)
	return sale, err
}

func (s *Store) GetSale(ctx context.Context, id int64) (*domain.Sale, error) {
	query, args, err := saleSelect().Where(squirrel.Eq{"id": id}).ToSql()
	if err != nil {
		return nil, err
	}
	sale, err := scanSale(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	query, args, err = psql.Select(
		"id", "sale_id", "COALESCE(product_id, 0)", "product_name", "quantity", "unit_price", "total_price", "created_at",
	).From("sale_line_items").
		Where(squirrel.Eq{"sale_id": id}).
		OrderBy("id").
		ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sale.Items = make([]domain.SaleLineItem, 0, 4)
	for rows.Next() {
		var item domain.SaleLineItem
		if err := rows.Scan(
			&item.ID, &item.SaleID, &item.ProductID, &item.ProductName, &item.Quantity,
			&item.UnitPrice, &item.TotalPrice, &item.CreatedAt,
		); err != nil {
			return nil, err
		}
		sale.Items = append(sale.Items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &sale, nil
}

func (s *Store) ListSales(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.Sale, error) {
	if limit < 1 {
		limit = 100
	}
	query, args, err := saleSelect().
		Where(squirrel.GtOrEq{"created_at": from}).
		Where(squirrel.Lt{"created_at": to}).
		OrderBy("created_at DESC", "id DESC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sales := make([]domain.Sale, 0, limit)
	for rows.Next() {
		sale, err := scanSale(rows)
		if err != nil {
			return nil, err
		}
		sales = append(sales, sale)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return sales, nil
}

func (s *Store) GetSalesReport(ctx context.Context, from time.Time, to time.Time, topN int) (domain.SalesReport, error) {
	if topN < 1 {
		topN = 5
	}
	report := domain.SalesReport{
		From:        from.Format(time.RFC3339),
		To:          to.Format(time.RFC3339),
		Revenue:     decimal.Zero,
		TopProducts: []domain.ProductSales{},
	}

	inRange := squirrel.And{
		squirrel.GtOrEq{"s.created_at": from},
		squirrel.Lt{"s.created_at": to},
	}

	query, args, err := psql.Select("COUNT(*)", "COALESCE(SUM(s.total_amount), 0)").
		From("sales s").
		Where(inRange).
		ToSql()
	if err != nil {
		return report, err
	}
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&report.Sales, &report.Revenue); err != nil {
		return report, err
	}

	query, args, err = psql.Select("COALESCE(SUM(i.quantity), 0)").
		From("sale_line_items i").
		Join("sales s ON s.id = i.sale_id").
		Where(inRange).
		ToSql()
	if err != nil {
		return report, err
	}
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&report.UnitsSold); err != nil {
		return report, err
	}

	query, args, err = psql.Select(
		"COALESCE(i.product_id, 0)", "i.product_name", "SUM(i.quantity) AS qty", "SUM(i.total_price)",
	).From("sale_line_items i").
		Join("sales s ON s.id = i.sale_id").
		Where(inRange).
		GroupBy("i.product_id", "i.product_name").
		OrderBy("qty DESC", "i.product_name").
		Limit(uint64(topN)).
		ToSql()
	if err != nil {
		return report, err
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return report, err
	}
	defer rows.Close()

	for rows.Next() {
		var ps domain.ProductSales
		if err := rows.Scan(&ps.ProductID, &ps.ProductName, &ps.Quantity, &ps.Revenue); err != nil {
			return report, err
		}
		report.TopProducts = append(report.TopProducts, ps)
	}
	return report, rows.Err()
}
