package service

import (
	"context"
	"time"

	"stockpos/backend/internal/domain"
	"stockpos/backend/internal/store"
)

// GetSale returns a sale with its line items. Cashiers only see their own.
func (s *Service) GetSale(ctx context.Context, id int64) (*domain.Sale, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return nil, ErrForbidden
	}
	sale, err := s.repo.GetSale(ctx, id)
	if err != nil {
		return nil, err
	}
	if actor.Role != domain.RoleAdmin && sale.UserID != actor.UserID {
		return nil, store.ErrNotFound
	}
	return sale, nil
}

func (s *Service) ListSales(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.Sale, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	if !from.Before(to) {
		return nil, store.ErrInvalidInput
	}
	return s.repo.ListSales(ctx, from, to, limit)
}

func (s *Service) SalesReport(ctx context.Context, from time.Time, to time.Time, topN int) (domain.SalesReport, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return domain.SalesReport{}, err
	}
	if !from.Before(to) {
		return domain.SalesReport{}, store.ErrInvalidInput
	}
	return s.repo.GetSalesReport(ctx, from, to, topN)
}
