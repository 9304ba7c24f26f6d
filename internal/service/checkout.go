package service

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"stockpos/backend/internal/domain"
	"stockpos/backend/internal/inventory"
	"stockpos/backend/internal/store"
)

// Checkout prices the cart from the catalog, settles the cash payment and
// hands the sale to the coordinator.
func (s *Service) Checkout(ctx context.Context, req domain.CheckoutRequest) (domain.CheckoutResponse, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return domain.CheckoutResponse{}, ErrForbidden
	}

	if len(req.Cart) == 0 {
		return domain.CheckoutResponse{}, inventory.ErrEmptyCart
	}
	for _, line := range req.Cart {
		if line.Quantity < 1 {
			return domain.CheckoutResponse{}, fmt.Errorf("%w: product %d quantity %d", inventory.ErrInvalidQuantity, line.ProductID, line.Quantity)
		}
	}
	if req.CashReceived.IsNegative() {
		return domain.CheckoutResponse{}, fmt.Errorf("%w: cash received is negative", store.ErrInvalidInput)
	}

	normalized := normalizeCart(req.Cart)
	ids := make([]int64, 0, len(normalized))
	for _, line := range normalized {
		ids = append(ids, line.ProductID)
	}
	products, err := s.repo.GetProductsByIDs(ctx, ids)
	if err != nil {
		return domain.CheckoutResponse{}, err
	}

	total := decimal.Zero
	for i, line := range normalized {
		product, exists := products[line.ProductID]
		if !exists {
			return domain.CheckoutResponse{}, fmt.Errorf("%w: id %d", inventory.ErrProductNotFound, line.ProductID)
		}
		normalized[i].UnitPrice = product.Price
		total = total.Add(inventory.LineTotal(normalized[i]))
	}
	total = total.Round(2)

	if req.TotalAmount != nil && !req.TotalAmount.Round(2).Equal(total) {
		return domain.CheckoutResponse{}, fmt.Errorf("%w: total %s does not match cart total %s",
			store.ErrInvalidInput, req.TotalAmount.StringFixed(2), total.StringFixed(2))
	}
	cash := req.CashReceived.Round(2)
	if cash.LessThan(total) {
		return domain.CheckoutResponse{}, fmt.Errorf("%w: cash received %s is less than total %s",
			store.ErrInvalidInput, cash.StringFixed(2), total.StringFixed(2))
	}

	sale, err := s.coordinator.CommitSale(ctx, domain.CommitSaleRequest{
		UserID:       actor.UserID,
		Lines:        normalized,
		TotalAmount:  total,
		CashReceived: cash,
		ChangeGiven:  cash.Sub(total),
	})
	if err != nil {
		return domain.CheckoutResponse{}, err
	}
	s.invalidateStock(ctx, ids...)

	return toCheckoutResponse(sale), nil
}

// normalizeCart merges repeated products into one line, keeping first-seen
// order.
func normalizeCart(cart []domain.CartLine) []domain.CartLine {
	index := make(map[int64]int, len(cart))
	out := make([]domain.CartLine, 0, len(cart))
	for _, line := range cart {
		if i, seen := index[line.ProductID]; seen {
			out[i].Quantity += line.Quantity
			continue
		}
		index[line.ProductID] = len(out)
		out = append(out, domain.CartLine{ProductID: line.ProductID, Quantity: line.Quantity})
	}
	return out
}

func toCheckoutResponse(sale *domain.Sale) domain.CheckoutResponse {
	count := 0
	for _, item := range sale.Items {
		count += item.Quantity
	}
	items := sale.Items
	if items == nil {
		items = []domain.SaleLineItem{}
	}
	return domain.CheckoutResponse{
		SaleID:       sale.ID,
		TotalAmount:  sale.TotalAmount,
		CashReceived: sale.CashReceived,
		ChangeGiven:  sale.ChangeGiven,
		ItemCount:    count,
		CreatedAt:    sale.CreatedAt.Format(time.RFC3339),
		Items:        items,
	}
}
