package service

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"stockpos/backend/internal/domain"
	"stockpos/backend/internal/store"
)

// defaultCostRatio prices an initial batch when no purchase price is given.
var defaultCostRatio = decimal.RequireFromString("0.8")

func (s *Service) ListProducts(ctx context.Context) ([]domain.Product, error) {
	return s.repo.ListProducts(ctx)
}

func (s *Service) SearchProducts(ctx context.Context, query string, limit int) ([]domain.Product, error) {
	return s.repo.SearchProducts(ctx, query, limit)
}

func (s *Service) GetProduct(ctx context.Context, id int64) (*domain.Product, error) {
	return s.repo.GetProduct(ctx, id)
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return domain.Product{}, err
	}

	req.Name = strings.TrimSpace(req.Name)
	req.Description = strings.TrimSpace(req.Description)
	if req.Name == "" || req.Price.IsNegative() || req.InitialStock < 0 {
		return domain.Product{}, store.ErrInvalidInput
	}

	product := domain.Product{
		Name:        req.Name,
		Description: req.Description,
		Price:       req.Price.Round(2),
		ImageURL:    strings.TrimSpace(req.ImageURL),
	}

	var initial *domain.Batch
	if req.InitialStock > 0 {
		cost := product.Price.Mul(defaultCostRatio).Round(2)
		if req.PurchasePrice != nil {
			if req.PurchasePrice.IsNegative() {
				return domain.Product{}, store.ErrInvalidInput
			}
			cost = req.PurchasePrice.Round(2)
		}
		initial = &domain.Batch{
			Quantity:      req.InitialStock,
			PurchasePrice: cost,
			PurchasedAt:   time.Now().UTC(),
		}
	}

	created, err := s.repo.CreateProduct(ctx, product, initial)
	if err != nil {
		return domain.Product{}, err
	}

	s.logAudit(ctx, "product_create", "product", created.ID,
		fmt.Sprintf("name=%q price=%s stock=%d", created.Name, created.Price.StringFixed(2), req.InitialStock))
	return *created, nil
}

func (s *Service) UpdateProduct(ctx context.Context, id int64, req domain.ProductUpdateRequest) (domain.Product, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return domain.Product{}, err
	}

	existing, err := s.repo.GetProduct(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}

	updated := *existing
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return domain.Product{}, store.ErrInvalidInput
		}
		updated.Name = name
	}
	if req.Description != nil {
		updated.Description = strings.TrimSpace(*req.Description)
	}
	if req.Price != nil {
		if req.Price.IsNegative() {
			return domain.Product{}, store.ErrInvalidInput
		}
		updated.Price = req.Price.Round(2)
	}
	if req.ImageURL != nil {
		updated.ImageURL = strings.TrimSpace(*req.ImageURL)
	}

	saved, err := s.repo.UpdateProduct(ctx, updated)
	if err != nil {
		return domain.Product{}, err
	}

	s.logAudit(ctx, "product_update", "product", saved.ID, "price="+saved.Price.StringFixed(2))
	return *saved, nil
}

func (s *Service) DeleteProduct(ctx context.Context, id int64) error {
	if _, err := requireAdmin(ctx); err != nil {
		return err
	}
	if err := s.repo.DeleteProduct(ctx, id); err != nil {
		return err
	}
	s.invalidateStock(ctx, id)
	s.logAudit(ctx, "product_delete", "product", id, "")
	return nil
}

func (s *Service) ListBatches(ctx context.Context, productID int64) ([]domain.Batch, error) {
	return s.repo.ListBatches(ctx, productID)
}

// Restock records a newly received batch for the product.
func (s *Service) Restock(ctx context.Context, productID int64, req domain.RestockRequest) (domain.Batch, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return domain.Batch{}, err
	}
	if req.Quantity < 1 || req.PurchasePrice.IsNegative() {
		return domain.Batch{}, store.ErrInvalidInput
	}

	purchasedAt := time.Now().UTC()
	if req.PurchasedAt != nil {
		if req.PurchasedAt.After(purchasedAt.Add(time.Minute)) {
			return domain.Batch{}, store.ErrInvalidInput
		}
		purchasedAt = req.PurchasedAt.UTC()
	}

	batch, err := s.repo.CreateBatch(ctx, domain.Batch{
		ProductID:     productID,
		Quantity:      req.Quantity,
		PurchasePrice: req.PurchasePrice.Round(2),
		PurchasedAt:   purchasedAt,
	})
	if err != nil {
		return domain.Batch{}, err
	}

	s.invalidateStock(ctx, productID)
	s.logAudit(ctx, "restock", "product", productID,
		fmt.Sprintf("batch=%d qty=%d cost=%s", batch.ID, batch.Quantity, batch.PurchasePrice.StringFixed(2)))
	return *batch, nil
}

// ProductStock returns the product's total stock through the cache.
// Concurrent misses for the same product share one database read.
func (s *Service) ProductStock(ctx context.Context, productID int64) (int, error) {
	if total, ok, err := s.stockCache.Get(ctx, productID); err != nil {
		log.Printf("[service] WARN: stock cache get failed id=%d: %v", productID, err)
	} else if ok {
		return total, nil
	}

	val, err, _ := s.stockGroup.Do(strconv.FormatInt(productID, 10), func() (any, error) {
		products, err := s.repo.GetProductsByIDs(ctx, []int64{productID})
		if err != nil {
			return 0, err
		}
		product, ok := products[productID]
		if !ok {
			return 0, store.ErrNotFound
		}
		if err := s.stockCache.Set(ctx, productID, product.TotalStock, s.cacheTTL); err != nil {
			log.Printf("[service] WARN: stock cache set failed id=%d: %v", productID, err)
		}
		return product.TotalStock, nil
	})
	if err != nil {
		return 0, err
	}
	return val.(int), nil
}
