package inventory

import (
	"context"
	"errors"
	"sort"

	"github.com/ariefcatur/go-order-inventory/internal/orders"
)

// Store is the product half of the unit of work. Both methods run inside the
// transaction carried by ctx.
type Store interface {
	// GetProductForUpdate reads a product and holds its row lock until the
	// surrounding transaction ends. Missing products yield orders.ErrNotFound.
	GetProductForUpdate(ctx context.Context, productID string) (orders.Product, error)
	// SetStock writes the new quantity; isOutOfStock is derived from it in the
	// same write.
	SetStock(ctx context.Context, productID string, qty int) error
}

// Ledger is the only code that mutates product stock. It holds no state of
// its own; counters live in the Store.
type Ledger struct {
	store Store
}

func NewLedger(store Store) *Ledger {
	return &Ledger{store: store}
}

func (l *Ledger) TryReserve(ctx context.Context, productID string, qty int) (orders.Reservation, error) {
	if err := checkQty(qty, productID); err != nil {
		return orders.Reservation{}, err
	}
	p, err := l.store.GetProductForUpdate(ctx, productID)
	if err != nil {
		return orders.Reservation{}, err
	}
	if qty > p.StockQuantity {
		return orders.Reservation{}, &orders.InsufficientStockError{
			ProductID: productID, Requested: qty, Available: p.StockQuantity,
		}
	}
	remaining := p.StockQuantity - qty
	if err := l.store.SetStock(ctx, productID, remaining); err != nil {
		return orders.Reservation{}, err
	}
	return orders.Reservation{
		ProductID:   p.ID,
		ProductName: p.Name,
		Quantity:    qty,
		UnitPrice:   p.UnitPrice,
		Remaining:   remaining,
	}, nil
}

// TryReserveAll locks every product of the batch, checks the summed demand
// per product, and only then writes. On any shortage nothing is written and
// the first offending line (in request order) is reported.
//
// Rows are locked in product id order so two batches touching the same
// products cannot deadlock each other.
func (l *Ledger) TryReserveAll(ctx context.Context, lines []orders.LineInput) ([]orders.Reservation, error) {
	if len(lines) == 0 {
		return nil, &orders.ValidationError{Field: "items", Reason: "must not be empty"}
	}
	demand := make(map[string]int, len(lines))
	for _, it := range lines {
		if err := checkQty(it.Qty, it.ProductID); err != nil {
			return nil, err
		}
		if demand[it.ProductID] > orders.MaxLineQty-it.Qty {
			return nil, &orders.ValidationError{Field: "qty", Reason: "total quantity out of range for product " + it.ProductID}
		}
		demand[it.ProductID] += it.Qty
	}

	ids := make([]string, 0, len(demand))
	for id := range demand {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	products := make(map[string]orders.Product, len(ids))
	for _, id := range ids {
		p, err := l.store.GetProductForUpdate(ctx, id)
		if err != nil {
			return nil, err
		}
		products[id] = p
	}

	for _, it := range lines {
		if p := products[it.ProductID]; demand[it.ProductID] > p.StockQuantity {
			return nil, &orders.InsufficientStockError{
				ProductID: it.ProductID, Requested: demand[it.ProductID], Available: p.StockQuantity,
			}
		}
	}

	remaining := make(map[string]int, len(ids))
	for _, id := range ids {
		remaining[id] = products[id].StockQuantity - demand[id]
		if err := l.store.SetStock(ctx, id, remaining[id]); err != nil {
			return nil, err
		}
	}

	out := make([]orders.Reservation, 0, len(lines))
	for _, it := range lines {
		p := products[it.ProductID]
		out = append(out, orders.Reservation{
			ProductID:   p.ID,
			ProductName: p.Name,
			Quantity:    it.Qty,
			UnitPrice:   p.UnitPrice,
			Remaining:   remaining[it.ProductID],
		})
	}
	return out, nil
}

// Release adds qty back to the product. It does not know about orders;
// callers guarantee one release per reserved line.
func (l *Ledger) Release(ctx context.Context, productID string, qty int) error {
	if err := checkQty(qty, productID); err != nil {
		return err
	}
	p, err := l.store.GetProductForUpdate(ctx, productID)
	if err != nil {
		return err
	}
	if p.StockQuantity > orders.MaxLineQty-qty {
		return &orders.ValidationError{Field: "qty", Reason: "stock out of range for product " + productID}
	}
	return l.store.SetStock(ctx, productID, p.StockQuantity+qty)
}

// ReleaseAll restocks every line in product id order. Lines whose product no
// longer exists are skipped and returned; any other error aborts.
func (l *Ledger) ReleaseAll(ctx context.Context, lines []orders.OrderLine) (skipped []orders.OrderLine, err error) {
	sorted := make([]orders.OrderLine, len(lines))
	copy(sorted, lines)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].ProductID < sorted[j].ProductID })

	for _, line := range sorted {
		err := l.Release(ctx, line.ProductID, line.Quantity)
		if isNotFound(err) {
			skipped = append(skipped, line)
			continue
		}
		if err != nil {
			return nil, err
		}
	}
	return skipped, nil
}

func checkQty(qty int, productID string) error {
	if qty <= 0 {
		return &orders.ValidationError{Field: "qty", Reason: "must be positive for product " + productID}
	}
	if qty > orders.MaxLineQty {
		return &orders.ValidationError{Field: "qty", Reason: "too large for product " + productID}
	}
	return nil
}

func isNotFound(err error) bool { return errors.Is(err, orders.ErrNotFound) }
