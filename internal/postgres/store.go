package postgres

import (
	"context"
	"errors"
	"github.com/ariefcatur/go-order-inventory/internal/orders"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Store struct {
	pool   *pgxpool.Pool
	txOpts pgx.TxOptions
}

func NewStore(pool *pgxpool.Pool, iso pgx.TxIsoLevel) *Store {
	if iso == "" {
		iso = pgx.ReadCommitted
	}
	return &Store{pool: pool, txOpts: pgx.TxOptions{IsoLevel: iso}}
}

func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return withTx(ctx, s.pool, s.txOpts, fn)
}

// ---- products ----

const productColumns = `id, sku, name, stock_quantity, unit_price, is_out_of_stock, created_at, updated_at`

func scanProduct(row pgx.Row) (orders.Product, error) {
	var p orders.Product
	err := row.Scan(&p.ID, &p.SKU, &p.Name, &p.StockQuantity, &p.UnitPrice, &p.IsOutOfStock, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func (s *Store) GetProductForUpdate(ctx context.Context, productID string) (orders.Product, error) {
	p, err := scanProduct(s.queryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id=$1 FOR UPDATE`, productID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return orders.Product{}, orders.ProductNotFound(productID)
		}
		return orders.Product{}, classify("get product", err)
	}
	return p, nil
}

// SetStock relies on is_out_of_stock being a generated column, so the flag
// can never disagree with stock_quantity. The CHECK constraint rejects negative stock.
func (s *Store) SetStock(ctx context.Context, productID string, qty int) error {
	tag, err := s.exec(ctx, `UPDATE products SET stock_quantity=$2, updated_at=NOW() WHERE id=$1`, productID, qty)
	if err != nil {
		return classify("set stock", err)
	}
	if tag.RowsAffected() != 1 {
		return orders.ProductNotFound(productID)
	}
	return nil
}

func (s *Store) ListProducts(ctx context.Context) ([]orders.Product, error) {
	rows, err := s.query(ctx, `SELECT `+productColumns+` FROM products ORDER BY sku`)
	if err != nil {
		return nil, classify("list products", err)
	}
	defer rows.Close()

	var out []orders.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, classify("scan product", err)
		}
		out = append(out, p)
	}
	return out, classify("list products", rows.Err())
}

// ---- orders ----

const orderColumns = `id, COALESCE(external_id, ''), owner_id, status, contact_name, contact_phone,
	contact_email, contact_address, note, total_price, created_at, updated_at`

func scanOrder(row pgx.Row) (orders.Order, error) {
	var o orders.Order
	var status string
	err := row.Scan(&o.ID, &o.ExternalID, &o.OwnerID, &status,
		&o.Contact.Name, &o.Contact.Phone, &o.Contact.Email, &o.Contact.Address,
		&o.Note, &o.TotalPrice, &o.CreatedAt, &o.UpdatedAt)
	o.Status = orders.Status(status)
	return o, err
}

// InsertOrder writes the order row and its lines. A duplicate external id
// returns orders.ErrDuplicateOrder.
func (s *Store) InsertOrder(ctx context.Context, o orders.Order) error {
	var externalID any
	if o.ExternalID != "" {
		externalID = o.ExternalID
	}
	_, err := s.exec(ctx, `
		INSERT INTO orders(id, external_id, owner_id, status, contact_name, contact_phone,
			contact_email, contact_address, note, total_price, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$11)`,
		o.ID, externalID, o.OwnerID, string(o.Status),
		o.Contact.Name, o.Contact.Phone, o.Contact.Email, o.Contact.Address,
		o.Note, o.TotalPrice, o.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return orders.ErrDuplicateOrder
		}
		return classify("insert order", err)
	}

	for i, l := range o.Lines {
		if _, err := s.exec(ctx, `
			INSERT INTO order_lines(order_id, line_no, product_id, quantity, price_at_purchase)
			VALUES ($1,$2,$3,$4,$5)`,
			o.ID, i+1, l.ProductID, l.Quantity, l.PriceAtPurchase,
		); err != nil {
			return classify("insert order line", err)
		}
	}
	return nil
}

func (s *Store) GetOrder(ctx context.Context, orderID string) (orders.Order, error) {
	return s.getOrder(ctx, `SELECT `+orderColumns+` FROM orders WHERE id=$1`, orderID)
}

// GetOrderForUpdate locks the order row so concurrent status changes of the
// same order serialize and restock runs at most once.
func (s *Store) GetOrderForUpdate(ctx context.Context, orderID string) (orders.Order, error) {
	return s.getOrder(ctx, `SELECT `+orderColumns+` FROM orders WHERE id=$1 FOR UPDATE`, orderID)
}

func (s *Store) getOrder(ctx context.Context, sql, orderID string) (orders.Order, error) {
	o, err := scanOrder(s.queryRow(ctx, sql, orderID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return orders.Order{}, orders.OrderNotFound(orderID)
		}
		return orders.Order{}, classify("get order", err)
	}
	lines, err := s.loadLines(ctx, []string{o.ID})
	if err != nil {
		return orders.Order{}, err
	}
	o.Lines = lines[o.ID]
	return o, nil
}

// FindOrderByExternalID returns nil when the owner has no order with the key.
func (s *Store) FindOrderByExternalID(ctx context.Context, ownerID, externalID string) (*orders.Order, error) {
	o, err := s.getOrder(ctx, `SELECT `+orderColumns+` FROM orders WHERE owner_id=$1 AND external_id=$2`, ownerID, externalID)
	if err != nil {
		if errors.Is(err, orders.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &o, nil
}

func (s *Store) UpdateOrderStatus(ctx context.Context, orderID string, status orders.Status) error {
	tag, err := s.exec(ctx, `UPDATE orders SET status=$2, updated_at=NOW() WHERE id=$1`, orderID, string(status))
	if err != nil {
		return classify("update order status", err)
	}
	if tag.RowsAffected() == 0 {
		return orders.OrderNotFound(orderID)
	}
	return nil
}

func (s *Store) ListOrders(ctx context.Context, f orders.ListFilter) ([]orders.Order, error) {
	limit := f.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := s.query(ctx, `
		SELECT `+orderColumns+` FROM orders
		WHERE ($1 = '' OR owner_id = $1) AND ($2 = '' OR status = $2)
		ORDER BY created_at DESC, id
		LIMIT $3`, f.OwnerID, string(f.Status), limit)
	if err != nil {
		return nil, classify("list orders", err)
	}
	defer rows.Close()

	var out []orders.Order
	var ids []string
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, classify("scan order", err)
		}
		out = append(out, o)
		ids = append(ids, o.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("list orders", err)
	}
	rows.Close()

	if len(ids) == 0 {
		return out, nil
	}
	lines, err := s.loadLines(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range out {
		out[i].Lines = lines[out[i].ID]
	}
	return out, nil
}

// loadLines reads the recorded lines; product names are joined from the live
// catalog and come back empty for deleted products. Quantities and prices
// always come from order_lines.
func (s *Store) loadLines(ctx context.Context, orderIDs []string) (map[string][]orders.OrderLine, error) {
	rows, err := s.query(ctx, `
		SELECT l.order_id, l.product_id, COALESCE(p.name, ''), l.quantity, l.price_at_purchase
		FROM order_lines l
		LEFT JOIN products p ON p.id = l.product_id
		WHERE l.order_id = ANY($1)
		ORDER BY l.order_id, l.line_no`, orderIDs)
	if err != nil {
		return nil, classify("load order lines", err)
	}
	defer rows.Close()

	out := make(map[string][]orders.OrderLine, len(orderIDs))
	for rows.Next() {
		var orderID string
		var l orders.OrderLine
		if err := rows.Scan(&orderID, &l.ProductID, &l.ProductName, &l.Quantity, &l.PriceAtPurchase); err != nil {
			return nil, classify("scan order line", err)
		}
		out[orderID] = append(out[orderID], l)
	}
	return out, classify("load order lines", rows.Err())
}

// ---- tx-aware helpers ----

func (s *Store) exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if tx := txFromContext(ctx); tx != nil {
		return tx.Exec(ctx, sql, args...)
	}
	return s.pool.Exec(ctx, sql, args...)
}

func (s *Store) queryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	if tx := txFromContext(ctx); tx != nil {
		return tx.QueryRow(ctx, sql, args...)
	}
	return s.pool.QueryRow(ctx, sql, args...)
}

func (s *Store) query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	if tx := txFromContext(ctx); tx != nil {
		return tx.Query(ctx, sql, args...)
	}
	return s.pool.Query(ctx, sql, args...)
}
