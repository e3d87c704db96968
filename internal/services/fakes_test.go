package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"restaurant_ordering_backend/internal/models"
	"restaurant_ordering_backend/internal/repositories"
)

// fakeStore is an in-memory database shared by the fake repositories. Transactions are
// serialized and roll back every table on error, which stands in for row locks.
type fakeStore struct {
	txMu sync.Mutex
	mu   sync.Mutex

	nextID     int64
	menu       map[int64]models.MenuItem
	orders     map[int64]models.Order
	orderItems map[int64][]models.OrderItem
	payments   map[int64]models.Payment
	users      map[int64]fakeUser

	// duplicateOrderNumbers makes the next N CreateOrder calls fail with ErrDuplicateKey.
	duplicateOrderNumbers int
	orderCreateCalls      int
}

type fakeUser struct {
	user models.User
	hash string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		menu:       map[int64]models.MenuItem{},
		orders:     map[int64]models.Order{},
		orderItems: map[int64][]models.OrderItem{},
		payments:   map[int64]models.Payment{},
		users:      map[int64]fakeUser{},
	}
}

func (s *fakeStore) id() int64 {
	s.nextID++
	return s.nextID
}

type fakeSnapshot struct {
	nextID     int64
	menu       map[int64]models.MenuItem
	orders     map[int64]models.Order
	orderItems map[int64][]models.OrderItem
	payments   map[int64]models.Payment
	users      map[int64]fakeUser
}

func copyMap[K comparable, V any](in map[K]V) map[K]V {
	out := make(map[K]V, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func (s *fakeStore) snapshot() fakeSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fakeSnapshot{
		nextID:     s.nextID,
		menu:       copyMap(s.menu),
		orders:     copyMap(s.orders),
		orderItems: copyMap(s.orderItems),
		payments:   copyMap(s.payments),
		users:      copyMap(s.users),
	}
}

func (s *fakeStore) restore(snap fakeSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID = snap.nextID
	s.menu = snap.menu
	s.orders = snap.orders
	s.orderItems = snap.orderItems
	s.payments = snap.payments
	s.users = snap.users
}

func (s *fakeStore) addMenuItem(name string, price int64, prepTime int, available bool) models.MenuItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	item := models.MenuItem{
		ID: s.id(), Name: name, Price: price, Category: models.CategoryMain,
		IsAvailable: available, PreparationTime: prepTime, Ingredients: []string{"bread"},
	}
	s.menu[item.ID] = item
	return item
}

func (s *fakeStore) putOrder(o models.Order) models.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	if o.ID == 0 {
		o.ID = s.id()
	}
	s.orders[o.ID] = o
	return o
}

func (s *fakeStore) order(id int64) models.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.orders[id]
}

func (s *fakeStore) payment(id int64) models.Payment {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.payments[id]
}

func (s *fakeStore) orderCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.orders)
}

// --- transactor ---

type fakeTransactor struct{ store *fakeStore }

func (t fakeTransactor) WithinTransaction(ctx context.Context, fn func(exec repositories.SQLExecutor) error) error {
	t.store.txMu.Lock()
	defer t.store.txMu.Unlock()
	snap := t.store.snapshot()
	if err := fn(nil); err != nil {
		t.store.restore(snap)
		return err
	}
	return nil
}

// --- menu repository ---

type fakeMenuRepo struct{ store *fakeStore }

func (r fakeMenuRepo) Create(ctx context.Context, _ repositories.SQLExecutor, item *models.MenuItem) (int64, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	for _, existing := range r.store.menu {
		if strings.EqualFold(existing.Name, item.Name) {
			return 0, repositories.ErrDuplicateKey
		}
	}
	item.ID = r.store.id()
	r.store.menu[item.ID] = *item
	return item.ID, nil
}

func (r fakeMenuRepo) GetByID(ctx context.Context, id int64) (*models.MenuItem, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	item, ok := r.store.menu[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	return &item, nil
}

func (r fakeMenuRepo) GetForOrder(ctx context.Context, _ repositories.SQLExecutor, id int64) (*models.MenuItem, error) {
	return r.GetByID(ctx, id)
}

func (r fakeMenuRepo) List(ctx context.Context, filters models.MenuFilters) ([]models.MenuItem, int, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	items := []models.MenuItem{}
	for _, item := range r.store.menu {
		if filters.IsAvailable != nil && item.IsAvailable != *filters.IsAvailable {
			continue
		}
		if filters.Category != nil && item.Category != *filters.Category {
			continue
		}
		items = append(items, item)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return items, len(items), nil
}

func (r fakeMenuRepo) Update(ctx context.Context, _ repositories.SQLExecutor, item *models.MenuItem) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if _, ok := r.store.menu[item.ID]; !ok {
		return repositories.ErrNotFound
	}
	r.store.menu[item.ID] = *item
	return nil
}

func (r fakeMenuRepo) SetAvailability(ctx context.Context, _ repositories.SQLExecutor, id int64, available bool) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	item, ok := r.store.menu[id]
	if !ok {
		return repositories.ErrNotFound
	}
	item.IsAvailable = available
	r.store.menu[id] = item
	return nil
}

func (r fakeMenuRepo) CountOrderReferences(ctx context.Context, _ repositories.SQLExecutor, id int64) (int, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	count := 0
	for _, items := range r.store.orderItems {
		for _, item := range items {
			if item.MenuItemID == id {
				count++
			}
		}
	}
	return count, nil
}

func (r fakeMenuRepo) Delete(ctx context.Context, _ repositories.SQLExecutor, id int64) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if _, ok := r.store.menu[id]; !ok {
		return repositories.ErrNotFound
	}
	delete(r.store.menu, id)
	return nil
}

// --- order repository ---

type fakeOrderRepo struct{ store *fakeStore }

func (r fakeOrderRepo) CreateOrder(ctx context.Context, _ repositories.SQLExecutor, order *models.Order) (int64, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	r.store.orderCreateCalls++
	if r.store.duplicateOrderNumbers > 0 {
		r.store.duplicateOrderNumbers--
		return 0, fmt.Errorf("%w: order_number", repositories.ErrDuplicateKey)
	}
	order.ID = r.store.id()
	stored := *order
	stored.Items = nil
	r.store.orders[order.ID] = stored
	return order.ID, nil
}

func (r fakeOrderRepo) get(id int64) (*models.Order, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	o, ok := r.store.orders[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	return &o, nil
}

func (r fakeOrderRepo) GetOrderByID(ctx context.Context, orderID int64) (*models.Order, error) {
	return r.get(orderID)
}

func (r fakeOrderRepo) GetOrderByNumber(ctx context.Context, orderNumber string) (*models.Order, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	for _, o := range r.store.orders {
		if o.OrderNumber == orderNumber {
			return &o, nil
		}
	}
	return nil, repositories.ErrNotFound
}

func (r fakeOrderRepo) LockOrderByID(ctx context.Context, _ repositories.SQLExecutor, orderID int64) (*models.Order, error) {
	return r.get(orderID)
}

func (r fakeOrderRepo) GetOrders(ctx context.Context, filters models.OrderFilters) ([]models.Order, int, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	orders := []models.Order{}
	for _, o := range r.store.orders {
		if filters.Status != nil && o.Status != *filters.Status {
			continue
		}
		orders = append(orders, o)
	}
	sort.Slice(orders, func(i, j int) bool { return orders[i].ID < orders[j].ID })
	return orders, len(orders), nil
}

func (r fakeOrderRepo) UpdateOrderStatus(ctx context.Context, _ repositories.SQLExecutor, orderID int64, newStatus models.OrderStatus, reason *string, updatedAt time.Time) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	o, ok := r.store.orders[orderID]
	if !ok {
		return repositories.ErrNotFound
	}
	o.Status = newStatus
	if reason != nil {
		o.CancellationReason = reason
	}
	o.UpdatedAt = updatedAt
	r.store.orders[orderID] = o
	return nil
}

func (r fakeOrderRepo) CountActiveOrders(ctx context.Context, _ repositories.SQLExecutor) (int, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	count := 0
	for _, o := range r.store.orders {
		if o.Status == models.OrderConfirmed || o.Status == models.OrderPreparing {
			count++
		}
	}
	return count, nil
}

func (r fakeOrderRepo) CreateOrderItems(ctx context.Context, _ repositories.SQLExecutor, orderID int64, items []models.OrderItem) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	stored := make([]models.OrderItem, len(items))
	for i := range items {
		items[i].ID = r.store.id()
		items[i].OrderID = orderID
		stored[i] = items[i]
	}
	r.store.orderItems[orderID] = stored
	return nil
}

func (r fakeOrderRepo) GetOrderItemsByOrderID(ctx context.Context, orderID int64) ([]models.OrderItem, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	return append([]models.OrderItem{}, r.store.orderItems[orderID]...), nil
}

// --- payment repository ---

type fakePaymentRepo struct{ store *fakeStore }

func clonePayment(p models.Payment) models.Payment {
	if p.Metadata != nil {
		p.Metadata = copyMap(p.Metadata)
	}
	return p
}

func (r fakePaymentRepo) Create(ctx context.Context, _ repositories.SQLExecutor, payment *models.Payment) (int64, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	payment.ID = r.store.id()
	payment.CreatedAt = time.Now().UTC()
	payment.UpdatedAt = payment.CreatedAt
	r.store.payments[payment.ID] = clonePayment(*payment)
	return payment.ID, nil
}

func (r fakePaymentRepo) find(match func(models.Payment) bool) (*models.Payment, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	for _, p := range r.store.payments {
		if match(p) {
			c := clonePayment(p)
			return &c, nil
		}
	}
	return nil, repositories.ErrNotFound
}

func (r fakePaymentRepo) GetByID(ctx context.Context, id int64) (*models.Payment, error) {
	return r.find(func(p models.Payment) bool { return p.ID == id })
}

func (r fakePaymentRepo) GetByReference(ctx context.Context, reference string) (*models.Payment, error) {
	return r.find(func(p models.Payment) bool { return p.Reference == reference })
}

func (r fakePaymentRepo) GetByTransactionID(ctx context.Context, transactionID string) (*models.Payment, error) {
	return r.find(func(p models.Payment) bool { return p.TransactionID != nil && *p.TransactionID == transactionID })
}

func (r fakePaymentRepo) ListByOrderID(ctx context.Context, _ repositories.SQLExecutor, orderID int64) ([]models.Payment, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	out := []models.Payment{}
	for _, p := range r.store.payments {
		if p.OrderID == orderID {
			out = append(out, clonePayment(p))
		}
	}
	return out, nil
}

func (r fakePaymentRepo) LockByID(ctx context.Context, _ repositories.SQLExecutor, id int64) (*models.Payment, error) {
	return r.GetByID(ctx, id)
}

func (r fakePaymentRepo) LockByReference(ctx context.Context, _ repositories.SQLExecutor, reference string) (*models.Payment, error) {
	return r.GetByReference(ctx, reference)
}

func (r fakePaymentRepo) Update(ctx context.Context, _ repositories.SQLExecutor, payment *models.Payment) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if _, ok := r.store.payments[payment.ID]; !ok {
		return repositories.ErrNotFound
	}
	payment.UpdatedAt = time.Now().UTC()
	r.store.payments[payment.ID] = clonePayment(*payment)
	return nil
}

func (r fakePaymentRepo) GetStats(ctx context.Context) (*models.PaymentStats, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	stats := &models.PaymentStats{PaymentMethodDistribution: map[models.PaymentMethod]int64{}}
	for _, p := range r.store.payments {
		stats.TotalPayments++
		stats.PaymentMethodDistribution[p.Method]++
		switch p.Status {
		case models.PaymentCompleted:
			stats.SuccessfulPayments++
			stats.TotalRevenue += p.Amount
		case models.PaymentFailed:
			stats.FailedPayments++
		case models.PaymentRefunded:
			stats.RefundedAmount += p.Amount
		}
	}
	return stats, nil
}

// --- auth repository ---

type fakeAuthRepo struct{ store *fakeStore }

func (r fakeAuthRepo) CreateUser(ctx context.Context, _ repositories.SQLExecutor, user *models.User, hashedPassword string) (int64, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	for _, u := range r.store.users {
		if u.user.Username == user.Username {
			return 0, repositories.ErrDuplicateKey
		}
	}
	user.ID = r.store.id()
	user.IsActive = true
	r.store.users[user.ID] = fakeUser{user: *user, hash: hashedPassword}
	return user.ID, nil
}

func (r fakeAuthRepo) FindUserByUsername(ctx context.Context, username string) (*models.User, string, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	for _, u := range r.store.users {
		if u.user.Username == username {
			user := u.user
			return &user, u.hash, nil
		}
	}
	return nil, "", repositories.ErrNotFound
}

func (r fakeAuthRepo) FindUserByID(ctx context.Context, userID int64) (*models.User, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	u, ok := r.store.users[userID]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	user := u.user
	return &user, nil
}

// --- payment provider ---

type fakeProvider struct {
	mu sync.Mutex

	intent    ProviderIntent
	createErr error
	getErr    error
	refundErr error

	createCalls   int
	retrieveCalls int
	refundCalls   int
	lastIntent    IntentRequest
	lastRefund    RefundRequest

	// onRefund runs after the provider accepts a refund.
	onRefund func()
}

func (p *fakeProvider) CreateIntent(ctx context.Context, req IntentRequest) (*ProviderIntent, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.createCalls++
	p.lastIntent = req
	if p.createErr != nil {
		return nil, p.createErr
	}
	intent := p.intent
	if intent.ID == "" {
		intent.ID = "pi_test_1"
	}
	if intent.ClientSecret == "" {
		intent.ClientSecret = intent.ID + "_secret"
	}
	if intent.Status == "" {
		intent.Status = IntentRequiresAction
	}
	return &intent, nil
}

func (p *fakeProvider) RetrieveIntent(ctx context.Context, intentID string) (*ProviderIntent, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.retrieveCalls++
	if p.getErr != nil {
		return nil, p.getErr
	}
	intent := p.intent
	intent.ID = intentID
	return &intent, nil
}

func (p *fakeProvider) CreateRefund(ctx context.Context, req RefundRequest) (*ProviderRefund, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.refundCalls++
	p.lastRefund = req
	if p.refundErr != nil {
		return nil, p.refundErr
	}
	if p.onRefund != nil {
		p.onRefund()
	}
	return &ProviderRefund{ID: "re_test_1", Status: "succeeded"}, nil
}

func (p *fakeProvider) setStatus(status IntentStatus, reason string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.intent.Status = status
	p.intent.FailureReason = reason
}

func (p *fakeProvider) calls() (create, retrieve, refund int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.createCalls, p.retrieveCalls, p.refundCalls
}

type retryableErr struct{ retry bool }

func (e retryableErr) Error() string   { return "provider unavailable" }
func (e retryableErr) Retryable() bool { return e.retry }

// --- de-duplication and cache ---

type fakeDedup struct {
	mu   sync.Mutex
	seen map[string]bool
	err  error
}

func (d *fakeDedup) Seen(ctx context.Context, key string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return false, d.err
	}
	if d.seen == nil {
		d.seen = map[string]bool{}
	}
	if d.seen[key] {
		return true, nil
	}
	d.seen[key] = true
	return false, nil
}

func (d *fakeDedup) Release(ctx context.Context, key string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.seen, key)
	return nil
}

type fakeMenuCache struct {
	items       []models.MenuItem
	cached      bool
	gets        int
	sets        int
	invalidates int
	getErr      error
}

func (c *fakeMenuCache) GetMenu(ctx context.Context) ([]models.MenuItem, bool, error) {
	c.gets++
	if c.getErr != nil {
		return nil, false, c.getErr
	}
	return c.items, c.cached, nil
}

func (c *fakeMenuCache) SetMenu(ctx context.Context, items []models.MenuItem) error {
	c.sets++
	c.items, c.cached = items, true
	return nil
}

func (c *fakeMenuCache) Invalidate(ctx context.Context) error {
	c.invalidates++
	c.items, c.cached = nil, false
	return nil
}

var errBoom = errors.New("boom")
