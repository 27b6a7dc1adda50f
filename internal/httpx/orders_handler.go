package httpx

import (
	"context"
	"encoding/json"
	"github.com/ariefcatur/go-order-inventory/internal/orders"
	"github.com/ariefcatur/go-order-inventory/internal/redisx"
	"github.com/ariefcatur/go-order-inventory/internal/workflow"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
	"net/http"
	"strconv"
	"time"
)

const headerUserID = "X-User-Id"

type OrderService interface {
	CreateOrder(ctx context.Context, in workflow.CreateOrderInput) (workflow.CreateOrderResult, error)
	UpdateStatus(ctx context.Context, orderID, status string) (orders.Order, error)
	CancelOwnOrder(ctx context.Context, orderID, requesterID string) (orders.Order, error)
	GetOrder(ctx context.Context, orderID string) (orders.Order, error)
	ListOrders(ctx context.Context, f orders.ListFilter) ([]orders.Order, error)
}

type ProductLister interface {
	ListProducts(ctx context.Context) ([]orders.Product, error)
}

type StatusCache interface {
	Get(ctx context.Context, orderID string) (redisx.StatusEntry, bool, error)
	Set(ctx context.Context, o orders.Order) error
	Fill(ctx context.Context, o orders.Order) error
}

type IdempotencyCache interface {
	Lookup(ctx context.Context, ownerID, key string) (string, bool, error)
	Remember(ctx context.Context, ownerID, key, orderID string) error
}

// OrdersHandler serves the order API. Status and Idem are optional
// shortcuts; Postgres behind Orders stays authoritative.
type OrdersHandler struct {
	Orders   OrderService
	Products ProductLister
	Status   StatusCache
	Idem     IdempotencyCache
	Logger   *zap.Logger
}

func (h *OrdersHandler) Register(r chi.Router) {
	if h.Logger == nil {
		h.Logger = zap.NewNop()
	}
	r.Get("/products", h.listProducts)
	r.Route("/orders", func(r chi.Router) {
		r.Post("/", h.createOrder)
		r.Get("/", h.listOrders)
		r.Get("/{id}", h.getOrder)
		r.Get("/{id}/status", h.getOrderStatus)
		r.Put("/{id}/status", h.updateStatus)
		r.Put("/{id}/cancel", h.cancelOrder)
	})
}

type CreateOrderReq struct {
	IdempotencyKey string             `json:"idempotency_key"`
	Contact        orders.Contact     `json:"contact"`
	Note           string             `json:"note"`
	Items          []orders.LineInput `json:"items"`
}

type CreateOrderResp struct {
	Order      OrderResp `json:"order"`
	Idempotent bool      `json:"idempotent"`
}

type UpdateStatusReq struct {
	Status string `json:"status"`
}

type LineResp struct {
	ProductID       string `json:"product_id"`
	ProductName     string `json:"product_name,omitempty"`
	Qty             int    `json:"qty"`
	PriceAtPurchase int64  `json:"price_at_purchase"`
	LineTotal       int64  `json:"line_total"`
}

type OrderResp struct {
	ID         string         `json:"id"`
	OwnerID    string         `json:"owner_id"`
	Status     orders.Status  `json:"status"`
	Contact    orders.Contact `json:"contact"`
	Note       string         `json:"note,omitempty"`
	TotalPrice int64          `json:"total_price"`
	Items      []LineResp     `json:"items"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

type ProductResp struct {
	ID            string `json:"id"`
	SKU           string `json:"sku"`
	Name          string `json:"name"`
	StockQuantity int    `json:"stock_quantity"`
	UnitPrice     int64  `json:"unit_price"`
	IsOutOfStock  bool   `json:"is_out_of_stock"`
}

func toOrderResp(o orders.Order) OrderResp {
	items := make([]LineResp, 0, len(o.Lines))
	for _, l := range o.Lines {
		items = append(items, LineResp{
			ProductID:       l.ProductID,
			ProductName:     l.ProductName,
			Qty:             l.Quantity,
			PriceAtPurchase: l.PriceAtPurchase,
			LineTotal:       l.Total(),
		})
	}
	return OrderResp{
		ID:         o.ID,
		OwnerID:    o.OwnerID,
		Status:     o.Status,
		Contact:    o.Contact,
		Note:       o.Note,
		TotalPrice: o.TotalPrice,
		Items:      items,
		CreatedAt:  o.CreatedAt,
		UpdatedAt:  o.UpdatedAt,
	}
}

func (h *OrdersHandler) createOrder(w http.ResponseWriter, r *http.Request) {
	var req CreateOrderReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, &orders.ValidationError{Reason: "invalid json"})
		return
	}
	if req.IdempotencyKey == "" {
		req.IdempotencyKey = r.Header.Get("Idempotency-Key")
	}
	owner := r.Header.Get(headerUserID)
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	// Fast path for replays; a miss or Redis error falls through to Postgres.
	if req.IdempotencyKey != "" && owner != "" && h.Idem != nil {
		if id, ok, err := h.Idem.Lookup(ctx, owner, req.IdempotencyKey); err == nil && ok {
			if o, err := h.Orders.GetOrder(ctx, id); err == nil && o.OwnerID == owner {
				writeJSON(w, http.StatusOK, CreateOrderResp{Order: toOrderResp(o), Idempotent: true})
				return
			}
		}
	}

	res, err := h.Orders.CreateOrder(ctx, workflow.CreateOrderInput{
		OwnerID:        owner,
		Contact:        req.Contact,
		Note:           req.Note,
		Items:          req.Items,
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	if req.IdempotencyKey != "" && h.Idem != nil {
		if err := h.Idem.Remember(ctx, owner, req.IdempotencyKey, res.Order.ID); err != nil {
			h.Logger.Warn("idempotency cache write failed", zap.String("order_id", res.Order.ID), zap.Error(err))
		}
	}
	h.refreshStatus(ctx, res.Order)

	code := http.StatusCreated
	if !res.Created {
		code = http.StatusOK
	}
	writeJSON(w, code, CreateOrderResp{Order: toOrderResp(res.Order), Idempotent: !res.Created})
}

func (h *OrdersHandler) listOrders(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := orders.ListFilter{OwnerID: q.Get("owner"), Status: orders.Status(q.Get("status"))}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, &orders.ValidationError{Field: "limit", Reason: "must be a positive integer"})
			return
		}
		f.Limit = n
	}
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	list, err := h.Orders.ListOrders(ctx, f)
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]OrderResp, 0, len(list))
	for _, o := range list {
		out = append(out, toOrderResp(o))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *OrdersHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	o, err := h.Orders.GetOrder(ctx, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResp(o))
}

func (h *OrdersHandler) getOrderStatus(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	if h.Status != nil {
		if e, ok, err := h.Status.Get(ctx, orderID); err == nil && ok {
			w.Header().Set("X-Cache", "hit")
			writeJSON(w, http.StatusOK, e)
			return
		}
	}
	o, err := h.Orders.GetOrder(ctx, orderID)
	if err != nil {
		writeError(w, err)
		return
	}
	if h.Status != nil {
		if err := h.Status.Fill(ctx, o); err != nil {
			h.Logger.Warn("status cache fill failed", zap.String("order_id", o.ID), zap.Error(err))
		}
	}
	w.Header().Set("X-Cache", "miss")
	writeJSON(w, http.StatusOK, redisx.StatusEntry{OrderID: o.ID, Status: o.Status, UpdatedAt: o.UpdatedAt})
}

func (h *OrdersHandler) updateStatus(w http.ResponseWriter, r *http.Request) {
	var req UpdateStatusReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, &orders.ValidationError{Reason: "invalid json"})
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	o, err := h.Orders.UpdateStatus(ctx, chi.URLParam(r, "id"), req.Status)
	if err != nil {
		writeError(w, err)
		return
	}
	h.refreshStatus(ctx, o)
	writeJSON(w, http.StatusOK, toOrderResp(o))
}

func (h *OrdersHandler) cancelOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	o, err := h.Orders.CancelOwnOrder(ctx, chi.URLParam(r, "id"), r.Header.Get(headerUserID))
	if err != nil {
		writeError(w, err)
		return
	}
	h.refreshStatus(ctx, o)
	writeJSON(w, http.StatusOK, toOrderResp(o))
}

func (h *OrdersHandler) listProducts(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	ps, err := h.Products.ListProducts(ctx)
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]ProductResp, 0, len(ps))
	for _, p := range ps {
		out = append(out, ProductResp{
			ID:            p.ID,
			SKU:           p.SKU,
			Name:          p.Name,
			StockQuantity: p.StockQuantity,
			UnitPrice:     p.UnitPrice,
			IsOutOfStock:  p.IsOutOfStock,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *OrdersHandler) refreshStatus(ctx context.Context, o orders.Order) {
	if h.Status == nil {
		return
	}
	if err := h.Status.Set(ctx, o); err != nil {
		h.Logger.Warn("status cache write failed", zap.String("order_id", o.ID), zap.Error(err))
	}
}
