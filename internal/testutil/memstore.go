package testutil

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/ariefcatur/go-order-inventory/internal/orders"
)

type memTxKey struct{}

// MemStore is an in-memory stand-in for the Postgres store. Transactions are
// fully serialized and roll back to a snapshot on error, which is stricter
// than the real isolation level but keeps the same all-or-nothing contract.
type MemStore struct {
	txMu sync.Mutex
	mu   sync.Mutex

	products map[string]orders.Product
	orders   map[string]orders.Order

	// Conflicts makes the next N transactions fail with a ConflictError after
	// running (and rolling back) their body.
	Conflicts atomic.Int32
	// Commits counts successful transactions.
	Commits atomic.Int32
}

func NewMemStore(products ...orders.Product) *MemStore {
	m := &MemStore{
		products: make(map[string]orders.Product),
		orders:   make(map[string]orders.Order),
	}
	for _, p := range products {
		m.PutProduct(p)
	}
	return m
}

func (m *MemStore) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(memTxKey{}) != nil {
		return fn(ctx)
	}
	m.txMu.Lock()
	defer m.txMu.Unlock()

	m.mu.Lock()
	snapProducts := make(map[string]orders.Product, len(m.products))
	for k, v := range m.products {
		snapProducts[k] = v
	}
	snapOrders := make(map[string]orders.Order, len(m.orders))
	for k, v := range m.orders {
		snapOrders[k] = v
	}
	m.mu.Unlock()

	rollback := func() {
		m.mu.Lock()
		m.products = snapProducts
		m.orders = snapOrders
		m.mu.Unlock()
	}

	if err := fn(context.WithValue(ctx, memTxKey{}, true)); err != nil {
		rollback()
		return err
	}
	if m.Conflicts.Load() > 0 {
		m.Conflicts.Add(-1)
		rollback()
		return &orders.ConflictError{}
	}
	m.Commits.Add(1)
	return nil
}

// ---- fixtures ----

func (m *MemStore) PutProduct(p orders.Product) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p.IsOutOfStock = p.StockQuantity == 0
	m.products[p.ID] = p
}

func (m *MemStore) SetPrice(productID string, price int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.products[productID]
	p.UnitPrice = price
	m.products[productID] = p
}

func (m *MemStore) DeleteProduct(productID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.products, productID)
}

// Product returns the current row; ok is false when it does not exist.
func (m *MemStore) Product(productID string) (orders.Product, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.products[productID]
	return p, ok
}

func (m *MemStore) Stock(productID string) int {
	p, _ := m.Product(productID)
	return p.StockQuantity
}

func (m *MemStore) OrderCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.orders)
}

// ---- inventory.Store ----

func (m *MemStore) GetProductForUpdate(ctx context.Context, productID string) (orders.Product, error) {
	return m.GetProduct(ctx, productID)
}

func (m *MemStore) GetProduct(_ context.Context, productID string) (orders.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.products[productID]
	if !ok {
		return orders.Product{}, orders.ProductNotFound(productID)
	}
	return p, nil
}

func (m *MemStore) SetStock(_ context.Context, productID string, qty int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.products[productID]
	if !ok {
		return orders.ProductNotFound(productID)
	}
	if qty < 0 {
		panic("testutil: negative stock for " + productID)
	}
	p.StockQuantity = qty
	p.IsOutOfStock = qty == 0
	m.products[productID] = p
	return nil
}

func (m *MemStore) ListProducts(_ context.Context) ([]orders.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]orders.Product, 0, len(m.products))
	for _, p := range m.products {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// ---- workflow.Repository ----

func (m *MemStore) InsertOrder(_ context.Context, o orders.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.orders[o.ID]; ok {
		return orders.ErrDuplicateOrder
	}
	if o.ExternalID != "" {
		for _, existing := range m.orders {
			if existing.OwnerID == o.OwnerID && existing.ExternalID == o.ExternalID {
				return orders.ErrDuplicateOrder
			}
		}
	}
	o.Lines = cloneLines(o.Lines)
	for i := range o.Lines {
		o.Lines[i].ProductName = ""
	}
	o.UpdatedAt = o.CreatedAt
	m.orders[o.ID] = o
	return nil
}

func (m *MemStore) GetOrder(_ context.Context, orderID string) (orders.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[orderID]
	if !ok {
		return orders.Order{}, orders.OrderNotFound(orderID)
	}
	return m.materialize(o), nil
}

func (m *MemStore) GetOrderForUpdate(ctx context.Context, orderID string) (orders.Order, error) {
	return m.GetOrder(ctx, orderID)
}

func (m *MemStore) FindOrderByExternalID(_ context.Context, ownerID, externalID string) (*orders.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.orders {
		if o.OwnerID == ownerID && o.ExternalID == externalID {
			out := m.materialize(o)
			return &out, nil
		}
	}
	return nil, nil
}

func (m *MemStore) UpdateOrderStatus(_ context.Context, orderID string, status orders.Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[orderID]
	if !ok {
		return orders.OrderNotFound(orderID)
	}
	o.Status = status
	m.orders[orderID] = o
	return nil
}

func (m *MemStore) ListOrders(_ context.Context, f orders.ListFilter) ([]orders.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []orders.Order
	for _, o := range m.orders {
		if f.OwnerID != "" && o.OwnerID != f.OwnerID {
			continue
		}
		if f.Status != "" && o.Status != f.Status {
			continue
		}
		out = append(out, m.materialize(o))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

// materialize copies the order and resolves product names from the live
// catalog, like the SQL LEFT JOIN does. Caller holds m.mu.
func (m *MemStore) materialize(o orders.Order) orders.Order {
	o.Lines = cloneLines(o.Lines)
	for i := range o.Lines {
		o.Lines[i].ProductName = m.products[o.Lines[i].ProductID].Name
	}
	return o
}

func cloneLines(lines []orders.OrderLine) []orders.OrderLine {
	if lines == nil {
		return nil
	}
	out := make([]orders.OrderLine, len(lines))
	copy(out, lines)
	return out
}
