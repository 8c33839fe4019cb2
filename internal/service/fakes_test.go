package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"checkout-service/internal/apperr"
	"checkout-service/internal/models"

	"github.com/shopspring/decimal"
)

type memCatalog struct {
	products map[int64]*models.Product
}

func newMemCatalog(products ...models.Product) *memCatalog {
	c := &memCatalog{products: make(map[int64]*models.Product)}
	for i := range products {
		p := products[i]
		c.products[p.ID] = &p
	}
	return c
}

func (c *memCatalog) GetProductByID(_ context.Context, id int64) (*models.Product, error) {
	p, ok := c.products[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", apperr.ErrProductNotFound, id)
	}
	return p, nil
}

type cartKey struct {
	userID    string
	productID int64
}

// memCarts keeps cart lines in memory; the mutex makes upsert atomic like
// the ON CONFLICT statement does.
type memCarts struct {
	mu       sync.Mutex
	catalog  *memCatalog
	lines    map[cartKey]*models.CartLine
	nextID   int64
	clearErr error
}

func newMemCarts(catalog *memCatalog) *memCarts {
	return &memCarts{catalog: catalog, lines: make(map[cartKey]*models.CartLine)}
}

func (m *memCarts) UpsertCartLine(_ context.Context, userID string, productID int64, quantity int) (*models.CartLine, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.catalog.products[productID]; !ok {
		return nil, apperr.ErrProductNotFound
	}
	key := cartKey{userID, productID}
	line, ok := m.lines[key]
	if !ok {
		m.nextID++
		line = &models.CartLine{ID: m.nextID, UserID: userID, ProductID: productID}
		m.lines[key] = line
	}
	line.Quantity += quantity
	cp := *line
	return &cp, nil
}

func (m *memCarts) UpdateCartLineQuantity(_ context.Context, userID string, productID int64, quantity int) (*models.CartLine, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	line, ok := m.lines[cartKey{userID, productID}]
	if !ok {
		return nil, apperr.ErrLineNotFound
	}
	line.Quantity = quantity
	cp := *line
	return &cp, nil
}

func (m *memCarts) DeleteCartLine(_ context.Context, userID string, productID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := cartKey{userID, productID}
	if _, ok := m.lines[key]; !ok {
		return apperr.ErrLineNotFound
	}
	delete(m.lines, key)
	return nil
}

func (m *memCarts) ListCartItems(_ context.Context, userID string) ([]models.CartItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	items := []models.CartItem{}
	for key, line := range m.lines {
		if key.userID != userID {
			continue
		}
		p := m.catalog.products[key.productID]
		items = append(items, models.CartItem{
			ProductID: p.ID,
			Name:      p.Name,
			Image:     p.Image,
			MRPPrice:  p.MRPPrice,
			UnitPrice: p.DiscountPrice,
			Quantity:  line.Quantity,
		})
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ProductID < items[j].ProductID })
	return items, nil
}

func (m *memCarts) ClearCart(_ context.Context, userID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.clearErr != nil {
		return 0, m.clearErr
	}
	var n int64
	for key := range m.lines {
		if key.userID == userID {
			delete(m.lines, key)
			n++
		}
	}
	return n, nil
}

type memCoupons map[string]*models.Coupon

func (m memCoupons) GetCouponByCode(_ context.Context, code string) (*models.Coupon, error) {
	c, ok := m[code]
	if !ok {
		return nil, apperr.ErrCouponNotFound
	}
	return c, nil
}

type memOrders struct {
	mu     sync.Mutex
	orders map[int64]*models.Order
	nextID int64
}

func newMemOrders() *memOrders {
	return &memOrders{orders: make(map[int64]*models.Order)}
}

func (m *memOrders) put(order models.Order) *models.Order {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	order.ID = m.nextID
	m.orders[order.ID] = &order
	cp := order
	return &cp
}

func (m *memOrders) CreateOrder(_ context.Context, order *models.Order, items []models.OrderItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	order.ID = m.nextID
	order.CreatedAt = time.Now()
	order.UpdatedAt = order.CreatedAt
	order.Items = make([]models.OrderItem, len(items))
	for i, item := range items {
		item.ID = int64(i + 1)
		item.OrderID = order.ID
		order.Items[i] = item
	}
	cp := *order
	m.orders[order.ID] = &cp
	return nil
}

func (m *memOrders) get(match func(*models.Order) bool) (*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, o := range m.orders {
		if match(o) {
			cp := *o
			return &cp, nil
		}
	}
	return nil, apperr.ErrOrderNotFound
}

func (m *memOrders) GetOrderByID(_ context.Context, id int64) (*models.Order, error) {
	return m.get(func(o *models.Order) bool { return o.ID == id })
}

func (m *memOrders) GetOrderByProviderOrderID(_ context.Context, providerOrderID string) (*models.Order, error) {
	return m.get(func(o *models.Order) bool { return o.ProviderOrderID == providerOrderID })
}

func (m *memOrders) GetOrderByIdempotencyKey(_ context.Context, key string) (*models.Order, error) {
	o, err := m.get(func(o *models.Order) bool { return o.IdempotencyKey == key })
	if errors.Is(err, apperr.ErrOrderNotFound) {
		return nil, nil
	}
	return o, err
}

func (m *memOrders) list(match func(*models.Order) bool) []models.Order {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := []models.Order{}
	for _, o := range m.orders {
		if match(o) {
			out = append(out, *o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out
}

func (m *memOrders) ListOrdersByUserID(_ context.Context, userID string) ([]models.Order, error) {
	return m.list(func(o *models.Order) bool { return o.UserID == userID }), nil
}

func (m *memOrders) ListOrders(_ context.Context) ([]models.Order, error) {
	return m.list(func(*models.Order) bool { return true }), nil
}

func (m *memOrders) ListStalePendingOrders(_ context.Context, method models.PaymentMethod, before time.Time, limit int) ([]models.Order, error) {
	out := m.list(func(o *models.Order) bool {
		return o.Status == models.OrderStatusPending && !o.IsPaid && o.PaymentMethod == method && o.CreatedAt.Before(before)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memOrders) UpdateOrderStatus(_ context.Context, orderID int64, from, to models.OrderStatus) (*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.orders[orderID]
	if !ok || o.Status != from {
		return nil, apperr.ErrInvalidTransition
	}
	o.Status = to
	cp := *o
	return &cp, nil
}

func (m *memOrders) CancelUnpaidOrder(_ context.Context, orderID int64) (*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.orders[orderID]
	if !ok || o.Status != models.OrderStatusPending || o.IsPaid {
		return nil, apperr.ErrInvalidTransition
	}
	o.Status = models.OrderStatusCancelled
	cp := *o
	return &cp, nil
}

func (m *memOrders) SetOrderPaid(_ context.Context, orderID int64, paid bool, providerPaymentID string) (*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.orders[orderID]
	if !ok || o.IsPaid == paid {
		return nil, apperr.ErrConflict
	}
	o.IsPaid = paid
	o.PaymentID = providerPaymentID
	cp := *o
	return &cp, nil
}

type fakeGateway struct {
	mu       sync.Mutex
	created  []decimal.Decimal
	notes    []map[string]string
	createFn func(amount decimal.Decimal) error
	validSig string
}

func (g *fakeGateway) CreatePaymentOrder(_ context.Context, amount decimal.Decimal, currency string, notes map[string]string) (*models.PaymentIntent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.createFn != nil {
		if err := g.createFn(amount); err != nil {
			return nil, err
		}
	}
	g.created = append(g.created, amount)
	g.notes = append(g.notes, notes)
	return &models.PaymentIntent{
		ProviderOrderID: fmt.Sprintf("order_fake%d", len(g.created)),
		Amount:          amount.Shift(2).IntPart(),
		Currency:        currency,
	}, nil
}

func (g *fakeGateway) VerifySignature(_, _, signature string) (bool, error) {
	if signature == "" {
		return false, apperr.Validation("signature is required")
	}
	return signature == g.validSig, nil
}

type fakeLocker struct {
	mu       sync.Mutex
	held     map[string]string
	released []string
}

func newFakeLocker() *fakeLocker {
	return &fakeLocker{held: make(map[string]string)}
}

func (l *fakeLocker) AcquireLock(_ context.Context, name string, _ time.Duration) (string, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.held[name]; ok {
		return "", false, nil
	}
	token := fmt.Sprintf("tok-%s", name)
	l.held[name] = token
	return token, true, nil
}

func (l *fakeLocker) ReleaseLock(_ context.Context, name, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.held[name] == token {
		delete(l.held, name)
	}
	l.released = append(l.released, name)
	return nil
}

type recordingPublisher struct {
	mu        sync.Mutex
	placed    []*models.OrderPlacedEvent
	paid      []*models.OrderPaidEvent
	changed   []*models.OrderStatusChangedEvent
	cancelled []*models.OrderCancelledEvent
	err       error
}

func (p *recordingPublisher) PublishOrderPlaced(_ context.Context, e *models.OrderPlacedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.placed = append(p.placed, e)
	return p.err
}

func (p *recordingPublisher) PublishOrderPaid(_ context.Context, e *models.OrderPaidEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.paid = append(p.paid, e)
	return p.err
}

func (p *recordingPublisher) PublishOrderStatusChanged(_ context.Context, e *models.OrderStatusChangedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.changed = append(p.changed, e)
	return p.err
}

func (p *recordingPublisher) PublishOrderCancelled(_ context.Context, e *models.OrderCancelledEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cancelled = append(p.cancelled, e)
	return p.err
}
