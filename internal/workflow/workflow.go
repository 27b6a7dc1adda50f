package workflow

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/ariefcatur/go-order-inventory/internal/clock"
	"github.com/ariefcatur/go-order-inventory/internal/inventory"
	"github.com/ariefcatur/go-order-inventory/internal/orders"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Repository is the order half of the unit of work. WithTx opens the single
// transaction every other call joins through ctx; the ledger's Store calls
// made with the same ctx land in that transaction too.
type Repository interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	InsertOrder(ctx context.Context, o orders.Order) error
	GetOrder(ctx context.Context, orderID string) (orders.Order, error)
	GetOrderForUpdate(ctx context.Context, orderID string) (orders.Order, error)
	FindOrderByExternalID(ctx context.Context, ownerID, externalID string) (*orders.Order, error)
	UpdateOrderStatus(ctx context.Context, orderID string, status orders.Status) error
	ListOrders(ctx context.Context, f orders.ListFilter) ([]orders.Order, error)
}

// Notifier receives committed orders. Notify must not block the caller and
// reports nothing back; failed deliveries are the notifier's to log.
type Notifier interface {
	Notify(ctx context.Context, order orders.Order)
}

type Workflow struct {
	repo     Repository
	ledger   *inventory.Ledger
	notifier Notifier
	clock    clock.Clock
	logger   *zap.Logger
	tracer   trace.Tracer
	retry    RetryPolicy
}

func New(repo Repository, ledger *inventory.Ledger, notifier Notifier, clk clock.Clock, logger *zap.Logger, retry RetryPolicy) *Workflow {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	if clk == nil {
		clk = clock.NewSystem()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Workflow{
		repo:     repo,
		ledger:   ledger,
		notifier: notifier,
		clock:    clk,
		logger:   logger,
		tracer:   otel.Tracer("github.com/ariefcatur/go-order-inventory/internal/workflow"),
		retry:    retry.withDefaults(),
	}
}

type CreateOrderInput struct {
	OwnerID        string
	Contact        orders.Contact
	Note           string
	Items          []orders.LineInput
	IdempotencyKey string
}

type CreateOrderResult struct {
	Order   orders.Order
	Created bool
}

func validateCreate(in CreateOrderInput) error {
	if strings.TrimSpace(in.OwnerID) == "" {
		return &orders.ValidationError{Field: "owner_id", Reason: "required"}
	}
	if len(in.Items) == 0 {
		return &orders.ValidationError{Field: "items", Reason: "must not be empty"}
	}
	for i, it := range in.Items {
		if it.ProductID == "" {
			return &orders.ValidationError{Field: "items", Reason: "missing product_id at line " + strconv.Itoa(i+1)}
		}
		if it.Qty <= 0 || it.Qty > orders.MaxLineQty {
			return &orders.ValidationError{Field: "qty", Reason: "out of range for product " + it.ProductID}
		}
	}
	return nil
}

// CreateOrder reserves stock for every line and persists the order in one
// transaction. The notifier is called only after that transaction commits.
// A key the same owner already used returns that order with Created=false and
// reserves nothing. Keys never match across owners.
func (w *Workflow) CreateOrder(ctx context.Context, in CreateOrderInput) (res CreateOrderResult, err error) {
	if err := validateCreate(in); err != nil {
		return CreateOrderResult{}, err
	}

	ctx, span := w.tracer.Start(ctx, "orders.create", trace.WithAttributes(
		attribute.String("order.owner_id", in.OwnerID),
		attribute.Int("order.lines", len(in.Items)),
	))
	defer func() { endSpan(span, err) }()

	err = w.inTx(ctx, "create order", func(txCtx context.Context) error {
		res = CreateOrderResult{}
		if in.IdempotencyKey != "" {
			existing, err := w.repo.FindOrderByExternalID(txCtx, in.OwnerID, in.IdempotencyKey)
			if err != nil {
				return err
			}
			if existing != nil {
				res.Order = *existing
				return nil
			}
		}

		reservations, err := w.ledger.TryReserveAll(txCtx, in.Items)
		if err != nil {
			return err
		}
		lines := make([]orders.OrderLine, 0, len(reservations))
		for _, r := range reservations {
			lines = append(lines, orders.OrderLine{
				ProductID:       r.ProductID,
				ProductName:     r.ProductName,
				Quantity:        r.Quantity,
				PriceAtPurchase: r.UnitPrice,
			})
		}
		total, err := orders.TotalPrice(lines)
		if err != nil {
			return err
		}
		order := orders.Order{
			ID:         uuid.NewString(),
			ExternalID: in.IdempotencyKey,
			OwnerID:    in.OwnerID,
			Status:     orders.StatusPending,
			Contact:    in.Contact,
			Note:       in.Note,
			Lines:      lines,
			TotalPrice: total,
			CreatedAt:  w.clock.Now(),
		}
		order.UpdatedAt = order.CreatedAt
		if err := w.repo.InsertOrder(txCtx, order); err != nil {
			return err
		}
		res = CreateOrderResult{Order: order, Created: true}
		return nil
	})

	// A concurrent request with the same key won the insert.
	if errors.Is(err, orders.ErrDuplicateOrder) && in.IdempotencyKey != "" {
		existing, ferr := w.repo.FindOrderByExternalID(ctx, in.OwnerID, in.IdempotencyKey)
		if ferr != nil {
			return CreateOrderResult{}, ferr
		}
		if existing != nil {
			res, err = CreateOrderResult{Order: *existing}, nil
		}
	}
	if err != nil {
		return CreateOrderResult{}, err
	}

	span.SetAttributes(attribute.String("order.id", res.Order.ID), attribute.Bool("order.created", res.Created))
	if res.Created {
		w.logger.Info("order created",
			zap.String("order_id", res.Order.ID),
			zap.String("owner_id", res.Order.OwnerID),
			zap.Int64("total_price", res.Order.TotalPrice),
			zap.Int("lines", len(res.Order.Lines)),
		)
		w.notifier.Notify(context.WithoutCancel(ctx), res.Order)
	}
	return res, nil
}

// UpdateStatus applies an administrative status change. Re-applying the
// current status is a successful no-op; Pending -> Cancelled restocks every
// line in the same transaction as the status write.
func (w *Workflow) UpdateStatus(ctx context.Context, orderID, statusToken string) (orders.Order, error) {
	target, err := orders.ParseStatus(statusToken)
	if err != nil {
		return orders.Order{}, err
	}
	if orderID == "" {
		return orders.Order{}, &orders.ValidationError{Field: "order_id", Reason: "required"}
	}
	return w.transition(ctx, "orders.update_status", orderID, target, nil)
}

// CancelOwnOrder cancels on behalf of the order's owner. Orders owned by
// someone else are reported as not found.
func (w *Workflow) CancelOwnOrder(ctx context.Context, orderID, requesterID string) (orders.Order, error) {
	if orderID == "" {
		return orders.Order{}, &orders.ValidationError{Field: "order_id", Reason: "required"}
	}
	if requesterID == "" {
		return orders.Order{}, &orders.ValidationError{Field: "requester_id", Reason: "required"}
	}
	return w.transition(ctx, "orders.cancel", orderID, orders.StatusCancelled, func(o orders.Order) error {
		if o.OwnerID != requesterID {
			return orders.OrderNotFound(orderID)
		}
		return nil
	})
}

func (w *Workflow) transition(ctx context.Context, spanName, orderID string, target orders.Status, guard func(orders.Order) error) (out orders.Order, err error) {
	ctx, span := w.tracer.Start(ctx, spanName, trace.WithAttributes(
		attribute.String("order.id", orderID),
		attribute.String("order.target_status", string(target)),
	))
	defer func() { endSpan(span, err) }()

	var from orders.Status
	var skipped []orders.OrderLine
	err = w.inTx(ctx, "update order status", func(txCtx context.Context) error {
		skipped = nil
		o, err := w.repo.GetOrderForUpdate(txCtx, orderID)
		if err != nil {
			return err
		}
		if guard != nil {
			if err := guard(o); err != nil {
				return err
			}
		}
		from = o.Status
		if o.Status == target {
			out = o
			return nil
		}
		if !orders.CanTransition(o.Status, target) {
			return &orders.InvalidTransitionError{From: o.Status, To: target}
		}
		if target == orders.StatusCancelled {
			// Restock from the order's own recorded lines, never the catalog.
			skipped, err = w.ledger.ReleaseAll(txCtx, o.Lines)
			if err != nil {
				return err
			}
		}
		if err := w.repo.UpdateOrderStatus(txCtx, o.ID, target); err != nil {
			return err
		}
		o.Status = target
		o.UpdatedAt = w.clock.Now()
		out = o
		return nil
	})
	if err != nil {
		return orders.Order{}, err
	}

	for _, l := range skipped {
		w.logger.Warn("restock skipped: product no longer exists",
			zap.String("order_id", orderID),
			zap.String("product_id", l.ProductID),
			zap.Int("qty", l.Quantity),
		)
	}
	if from != target {
		w.logger.Info("order status changed",
			zap.String("order_id", orderID),
			zap.String("from", string(from)),
			zap.String("to", string(target)),
		)
	}
	return out, nil
}

func (w *Workflow) GetOrder(ctx context.Context, orderID string) (orders.Order, error) {
	if orderID == "" {
		return orders.Order{}, &orders.ValidationError{Field: "order_id", Reason: "required"}
	}
	return w.repo.GetOrder(ctx, orderID)
}

func (w *Workflow) ListOrders(ctx context.Context, f orders.ListFilter) ([]orders.Order, error) {
	if f.Status != "" && !f.Status.Valid() {
		return nil, &orders.ValidationError{Field: "status", Reason: "unknown status " + string(f.Status)}
	}
	return w.repo.ListOrders(ctx, f)
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, orders.Order) {}
