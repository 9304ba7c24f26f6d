package memory

import (
	"context"
	"log"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"stockpos/backend/internal/domain"
	"stockpos/backend/internal/store"
)

// state is everything a transaction can touch. WithinTx works on a clone and
// swaps it in on commit, so a failed transaction leaves no trace.
type state struct {
	products  map[int64]domain.Product
	batches   map[int64]domain.Batch
	sales     map[int64]domain.Sale
	lineItems map[int64]domain.SaleLineItem
	nextID    map[string]int64
}

func newState() *state {
	return &state{
		products:  make(map[int64]domain.Product),
		batches:   make(map[int64]domain.Batch),
		sales:     make(map[int64]domain.Sale),
		lineItems: make(map[int64]domain.SaleLineItem),
		nextID:    make(map[string]int64),
	}
}

func (st *state) clone() *state {
	dup := &state{
		products:  make(map[int64]domain.Product, len(st.products)),
		batches:   make(map[int64]domain.Batch, len(st.batches)),
		sales:     make(map[int64]domain.Sale, len(st.sales)),
		lineItems: make(map[int64]domain.SaleLineItem, len(st.lineItems)),
		nextID:    make(map[string]int64, len(st.nextID)),
	}
	for k, v := range st.products {
		dup.products[k] = v
	}
	for k, v := range st.batches {
		dup.batches[k] = v
	}
	for k, v := range st.sales {
		dup.sales[k] = v
	}
	for k, v := range st.lineItems {
		dup.lineItems[k] = v
	}
	for k, v := range st.nextID {
		dup.nextID[k] = v
	}
	return dup
}

func (st *state) allocate(kind string) int64 {
	st.nextID[kind]++
	return st.nextID[kind]
}

func (st *state) productBatches(productID int64) []domain.Batch {
	out := make([]domain.Batch, 0, 4)
	for _, b := range st.batches {
		if b.ProductID == productID {
			out = append(out, b)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return batchLess(out[i], out[j]) })
	return out
}

func (st *state) totalStock(productID int64) int {
	total := 0
	for _, b := range st.batches {
		if b.ProductID == productID {
			total += b.Quantity
		}
	}
	return total
}

func (st *state) saleItems(saleID int64) []domain.SaleLineItem {
	items := make([]domain.SaleLineItem, 0, 4)
	for _, item := range st.lineItems {
		if item.SaleID == saleID {
			items = append(items, item)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return items
}

type Store struct {
	mu         sync.RWMutex
	st         *state
	users      map[int64]domain.User
	nextUserID int64
	now        func() time.Time
}

func New() *Store {
	return &Store{
		st:    newState(),
		users: make(map[int64]domain.User),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// seedUsers builds the dev/demo accounts. Passwords come from
// SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD, falling back to dev defaults
// with a warning.
func seedUsers(s *Store) {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "Admin123*")
	cashierPwd := envOr("SEED_CASHIER_PASSWORD", "Cashier123*")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_CASHIER_PASSWORD") == "" {
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD to override.")
	}

	for _, u := range []struct {
		name     string
		email    string
		password string
		role     string
	}{
		{"Admin", envOr("SEED_ADMIN_EMAIL", "admin@stockpos.local"), adminPwd, domain.RoleAdmin},
		{"Cashier", "cashier@stockpos.local", cashierPwd, domain.RoleCashier},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("[memory-store] failed to hash seed password for %s: %v", u.email, err)
		}
		s.nextUserID++
		s.users[s.nextUserID] = domain.User{
			ID:           s.nextUserID,
			Name:         u.name,
			Email:        strings.ToLower(u.email),
			PasswordHash: string(hash),
			Role:         u.role,
			CreatedAt:    s.now(),
		}
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// NewSeeded returns a store with demo users, a small catalog and several
// purchase batches per product received on different days.
func NewSeeded() *Store {
	s := New()
	seedUsers(s)

	now := s.now()
	daysAgo := func(d int) time.Time { return now.Add(-time.Duration(d) * 24 * time.Hour) }

	type seedBatch struct {
		qty  int
		cost string
		age  int
	}
	catalog := []struct {
		name        string
		description string
		price       string
		image       string
		batches     []seedBatch
	}{
		{"Whole Milk (1L)", "Fresh pasteurised cow milk.", "1.50", "/img/products/milk.png", []seedBatch{{40, "1.10", 30}, {60, "1.15", 10}}},
		{"Sliced Bread", "Soft white sandwich bread.", "2.20", "/img/products/bread.png", []seedBatch{{25, "1.60", 20}, {25, "1.65", 5}}},
		{"Eggs (dozen)", "Large free-range eggs.", "3.00", "/img/products/eggs.png", []seedBatch{{20, "2.20", 15}}},
		{"Rice (1kg)", "Long grain white rice.", "1.20", "/img/products/rice.png", []seedBatch{{100, "0.80", 40}, {80, "0.85", 12}, {50, "0.90", 2}}},
		{"Ground Coffee (500g)", "Fine ground coffee beans.", "5.50", "/img/products/coffee.png", []seedBatch{{12, "4.10", 25}}},
		{"Orange Juice (1L)", "Fresh squeezed orange juice.", "2.50", "/img/products/orange_juice.png", nil},
		{"Olive Oil (500ml)", "Extra virgin olive oil.", "8.50", "/img/products/olive_oil.png", []seedBatch{{10, "6.40", 8}}},
		{"Potato Chips (150g)", "Crunchy salted potato chips.", "1.80", "/img/products/chips.png", []seedBatch{{45, "1.20", 3}}},
	}

	for _, item := range catalog {
		id := s.st.allocate("product")
		created := daysAgo(60)
		s.st.products[id] = domain.Product{
			ID:          id,
			Name:        item.name,
			Description: item.description,
			Price:       decimal.RequireFromString(item.price),
			ImageURL:    item.image,
			CreatedAt:   created,
			UpdatedAt:   created,
		}
		for _, b := range item.batches {
			batchID := s.st.allocate("batch")
			s.st.batches[batchID] = domain.Batch{
				ID:            batchID,
				ProductID:     id,
				Quantity:      b.qty,
				PurchasePrice: decimal.RequireFromString(b.cost),
				PurchasedAt:   daysAgo(b.age),
				CreatedAt:     daysAgo(b.age),
			}
		}
	}

	return s
}

// WithinTx serialises transactions: the store is exclusively locked while fn
// runs against a private copy of the state.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, ledger store.Ledger) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.st.clone()
	if err := fn(ctx, &ledger{st: work, now: s.now}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.st = work
	return nil
}

func (s *Store) ListProducts(_ context.Context) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]domain.Product, 0, len(s.st.products))
	for _, p := range s.st.products {
		p.TotalStock = s.st.totalStock(p.ID)
		products = append(products, p)
	}
	sort.Slice(products, func(i, j int) bool { return products[i].ID > products[j].ID })
	return products, nil
}

func (s *Store) SearchProducts(_ context.Context, query string, limit int) ([]domain.Product, error) {
	if limit < 1 {
		limit = 10
	}
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return []domain.Product{}, nil
	}
	numericID, numErr := strconv.ParseInt(query, 10, 64)

	s.mu.RLock()
	defer s.mu.RUnlock()

	matches := make([]domain.Product, 0, limit)
	for _, p := range s.st.products {
		nameMatch := strings.Contains(strings.ToLower(p.Name), query)
		idMatch := numErr == nil && p.ID == numericID
		if !nameMatch && !idMatch {
			continue
		}
		p.TotalStock = s.st.totalStock(p.ID)
		if p.TotalStock < 1 {
			continue
		}
		matches = append(matches, p)
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].Name < matches[j].Name })
	if len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

func (s *Store) GetProduct(_ context.Context, id int64) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.st.products[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	p.Batches = s.st.productBatches(id)
	p.TotalStock = s.st.totalStock(id)
	return &p, nil
}

func (s *Store) GetProductsByIDs(_ context.Context, ids []int64) (map[int64]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[int64]domain.Product, len(ids))
	for _, id := range ids {
		if p, ok := s.st.products[id]; ok {
			p.TotalStock = s.st.totalStock(id)
			result[id] = p
		}
	}
	return result, nil
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product, initial *domain.Batch) (*domain.Product, error) {
	if strings.TrimSpace(product.Name) == "" || product.Price.IsNegative() {
		return nil, store.ErrInvalidInput
	}
	if initial != nil && (initial.Quantity < 0 || initial.PurchasePrice.IsNegative()) {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	product.ID = s.st.allocate("product")
	product.CreatedAt = now
	product.UpdatedAt = now
	product.Batches = nil
	product.TotalStock = 0
	s.st.products[product.ID] = product

	if initial != nil && initial.Quantity > 0 {
		batch := *initial
		batch.ID = s.st.allocate("batch")
		batch.ProductID = product.ID
		batch.CreatedAt = now
		if batch.PurchasedAt.IsZero() {
			batch.PurchasedAt = now
		}
		s.st.batches[batch.ID] = batch
		product.Batches = []domain.Batch{batch}
		product.TotalStock = batch.Quantity
	}

	return &product, nil
}

func (s *Store) UpdateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	if strings.TrimSpace(product.Name) == "" || product.Price.IsNegative() {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.st.products[product.ID]
	if !ok {
		return nil, store.ErrNotFound
	}
	existing.Name = product.Name
	existing.Description = product.Description
	existing.Price = product.Price
	existing.ImageURL = product.ImageURL
	existing.UpdatedAt = s.now()
	s.st.products[product.ID] = existing

	existing.TotalStock = s.st.totalStock(product.ID)
	return &existing, nil
}

func (s *Store) DeleteProduct(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.st.products[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.st.products, id)
	for batchID, b := range s.st.batches {
		if b.ProductID == id {
			delete(s.st.batches, batchID)
		}
	}
	for itemID, item := range s.st.lineItems {
		if item.ProductID == id {
			item.ProductID = 0
			s.st.lineItems[itemID] = item
		}
	}
	return nil
}

func (s *Store) ListBatches(_ context.Context, productID int64) ([]domain.Batch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.st.products[productID]; !ok {
		return nil, store.ErrNotFound
	}
	return s.st.productBatches(productID), nil
}

func (s *Store) CreateBatch(_ context.Context, batch domain.Batch) (*domain.Batch, error) {
	if batch.Quantity < 1 || batch.PurchasePrice.IsNegative() {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.st.products[batch.ProductID]; !ok {
		return nil, store.ErrNotFound
	}
	now := s.now()
	batch.ID = s.st.allocate("batch")
	batch.CreatedAt = now
	if batch.PurchasedAt.IsZero() {
		batch.PurchasedAt = now
	}
	s.st.batches[batch.ID] = batch
	return &batch, nil
}

func (s *Store) GetStockTotals(_ context.Context, productIDs []int64) (map[int64]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	totals := make(map[int64]int, len(productIDs))
	for _, id := range productIDs {
		totals[id] = s.st.totalStock(id)
	}
	return totals, nil
}

func (s *Store) GetSale(_ context.Context, id int64) (*domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sale, ok := s.st.sales[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	sale.Items = s.st.saleItems(id)
	return &sale, nil
}

func (s *Store) ListSales(_ context.Context, from time.Time, to time.Time, limit int) ([]domain.Sale, error) {
	if limit < 1 {
		limit = 100
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	sales := make([]domain.Sale, 0, limit)
	for _, sale := range s.st.sales {
		if sale.CreatedAt.Before(from) || !sale.CreatedAt.Before(to) {
			continue
		}
		sales = append(sales, sale)
	}
	sort.Slice(sales, func(i, j int) bool {
		if sales[i].CreatedAt.Equal(sales[j].CreatedAt) {
			return sales[i].ID > sales[j].ID
		}
		return sales[i].CreatedAt.After(sales[j].CreatedAt)
	})
	if len(sales) > limit {
		sales = sales[:limit]
	}
	return sales, nil
}

func (s *Store) GetSalesReport(_ context.Context, from time.Time, to time.Time, topN int) (domain.SalesReport, error) {
	if topN < 1 {
		topN = 5
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	report := domain.SalesReport{
		From:        from.Format(time.RFC3339),
		To:          to.Format(time.RFC3339),
		Revenue:     decimal.Zero,
		TopProducts: []domain.ProductSales{},
	}
	inRange := make(map[int64]struct{})
	for _, sale := range s.st.sales {
		if sale.CreatedAt.Before(from) || !sale.CreatedAt.Before(to) {
			continue
		}
		inRange[sale.ID] = struct{}{}
		report.Sales++
		report.Revenue = report.Revenue.Add(sale.TotalAmount)
	}

	type productKey struct {
		id   int64
		name string
	}
	byProduct := make(map[productKey]*domain.ProductSales)
	for _, item := range s.st.lineItems {
		if _, ok := inRange[item.SaleID]; !ok {
			continue
		}
		report.UnitsSold += int64(item.Quantity)
		key := productKey{id: item.ProductID, name: item.ProductName}
		agg, ok := byProduct[key]
		if !ok {
			agg = &domain.ProductSales{ProductID: item.ProductID, ProductName: item.ProductName, Revenue: decimal.Zero}
			byProduct[key] = agg
		}
		agg.Quantity += int64(item.Quantity)
		agg.Revenue = agg.Revenue.Add(item.TotalPrice)
	}

	for _, agg := range byProduct {
		report.TopProducts = append(report.TopProducts, *agg)
	}
	sort.Slice(report.TopProducts, func(i, j int) bool {
		a, b := report.TopProducts[i], report.TopProducts[j]
		if a.Quantity != b.Quantity {
			return a.Quantity > b.Quantity
		}
		return a.ProductName < b.ProductName
	})
	if len(report.TopProducts) > topN {
		report.TopProducts = report.TopProducts[:topN]
	}
	return report, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.User) (*domain.User, error) {
	user.Email = strings.ToLower(strings.TrimSpace(user.Email))
	if user.Email == "" || user.PasswordHash == "" {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.users {
		if existing.Email == user.Email {
			return nil, store.ErrConflict
		}
	}
	s.nextUserID++
	user.ID = s.nextUserID
	if user.CreatedAt.IsZero() {
		user.CreatedAt = s.now()
	}
	s.users[user.ID] = user
	return &user, nil
}

func (s *Store) GetUserByEmail(_ context.Context, email string) (*domain.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, user := range s.users {
		if user.Email == email {
			u := user
			return &u, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) GetUserByID(_ context.Context, id int64) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &user, nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.User, 0, len(s.users))
	for _, user := range s.users {
		users = append(users, user)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	return users, nil
}

func (s *Store) UpdateLoginState(_ context.Context, userID int64, attempts int, lockUntil *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[userID]
	if !ok {
		return store.ErrNotFound
	}
	user.LoginAttempts = attempts
	user.LockUntil = lockUntil
	s.users[userID] = user
	return nil
}

func (s *Store) UpdateUserPassword(_ context.Context, userID int64, passwordHash string) error {
	if passwordHash == "" {
		return store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[userID]
	if !ok {
		return store.ErrNotFound
	}
	user.PasswordHash = passwordHash
	user.LoginAttempts = 0
	user.LockUntil = nil
	s.users[userID] = user
	return nil
}

func batchLess(a, b domain.Batch) bool {
	if !a.PurchasedAt.Equal(b.PurchasedAt) {
		return a.PurchasedAt.Before(b.PurchasedAt)
	}
	return a.ID < b.ID
}
