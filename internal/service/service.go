package service

import (
	"context"
	"errors"
	"log"
	"time"

	"golang.org/x/sync/singleflight"

	"stockpos/backend/internal/cache"
	"stockpos/backend/internal/domain"
	"stockpos/backend/internal/inventory"
	"stockpos/backend/internal/store"
)

var ErrForbidden = errors.New("admin role required")

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Service struct {
	repo        store.Repository
	coordinator *inventory.Coordinator
	stockCache  cache.StockCache
	cacheTTL    time.Duration
	stockGroup  singleflight.Group
}

func New(repo store.Repository, stockCache cache.StockCache, cacheTTL time.Duration) *Service {
	if stockCache == nil {
		stockCache = cache.NoopStockCache{}
	}
	if cacheTTL <= 0 {
		cacheTTL = 30 * time.Second
	}

	return &Service{
		repo:        repo,
		coordinator: inventory.NewCoordinator(repo),
		stockCache:  stockCache,
		cacheTTL:    cacheTTL,
	}
}

func requireAdmin(ctx context.Context) (domain.Actor, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != domain.RoleAdmin {
		return domain.Actor{}, ErrForbidden
	}
	return actor, nil
}

// logAudit writes one line per privileged change.
func (s *Service) logAudit(ctx context.Context, action string, entityType string, entityID int64, detail string) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		actor = domain.Actor{Email: "system", Role: "system"}
	}
	log.Printf("[audit] action=%s entity=%s/%d actor=%s role=%s %s", action, entityType, entityID, actor.Email, actor.Role, detail)
}

func (s *Service) invalidateStock(ctx context.Context, productIDs ...int64) {
	if err := s.stockCache.Invalidate(ctx, productIDs...); err != nil {
		log.Printf("[service] WARN: failed to invalidate stock cache ids=%v: %v", productIDs, err)
	}
}
