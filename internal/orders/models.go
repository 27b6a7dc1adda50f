package orders

import (
	"math"
	"time"
)

type Product struct {
	ID            string
	SKU           string
	Name          string
	StockQuantity int
	UnitPrice     int64 // minor currency units
	IsOutOfStock  bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Contact is opaque to the order core; it is stored and echoed back.
type Contact struct {
	Name    string `json:"name"`
	Phone   string `json:"phone"`
	Email   string `json:"email"`
	Address string `json:"address"`
}

type Order struct {
	ID         string
	ExternalID string // client idempotency key, optional
	OwnerID    string
	Status     Status // see status.go
	Contact    Contact
	Note       string
	TotalPrice int64
	Lines      []OrderLine
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// OrderLine is fixed at creation. ProductName is resolved on read and may be
// empty when the product has since been deleted.
type OrderLine struct {
	ProductID       string
	ProductName     string
	Quantity        int
	PriceAtPurchase int64
}

func (l OrderLine) Total() int64 { return int64(l.Quantity) * l.PriceAtPurchase }

// MaxLineQty bounds a single line and the summed demand per product. It
// matches the INTEGER stock and quantity columns.
const MaxLineQty = math.MaxInt32

type LineInput struct {
	ProductID string `json:"product_id"`
	Qty       int    `json:"qty"`
}

// Reservation records a stock decrement taken against one product, with the
// unit price read under the same row lock.
type Reservation struct {
	ProductID   string
	ProductName string
	Quantity    int
	UnitPrice   int64
	Remaining   int
}

// TotalPrice sums line totals. Called once when the order is built.
func TotalPrice(lines []OrderLine) (int64, error) {
	var total int64
	for _, l := range lines {
		if l.Quantity < 0 || l.PriceAtPurchase < 0 {
			return 0, &ValidationError{Field: "items", Reason: "negative line for product " + l.ProductID}
		}
		if l.Quantity > 0 && l.PriceAtPurchase > (math.MaxInt64-total)/int64(l.Quantity) {
			return 0, &ValidationError{Field: "total_price", Reason: "order total out of range"}
		}
		total += l.Total()
	}
	return total, nil
}

type ListFilter struct {
	OwnerID string
	Status  Status
	Limit   int
}
