package sales

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/meridian-pos/meridian-pos/internal/ledger"
	"github.com/meridian-pos/meridian-pos/internal/shared"
)

// Status is the order lifecycle state.
type Status string

const (
	// StatusPending marks a saved draft cart that holds no inventory.
	StatusPending Status = "PENDING"
	// StatusCompleted marks a checked-out order whose stock is consumed.
	StatusCompleted Status = "COMPLETED"
)

// Order is one sale at the register. PaymentStatus is false for drafts
// and true once checkout commits; CustomerPayment is the cash tendered.
type Order struct {
	ID              int64
	UserID          int64
	UserName        string
	CustomerName    string
	Status          Status
	Total           decimal.Decimal
	PaymentMethod   string
	PaymentStatus   bool
	CustomerPayment decimal.Decimal
	Note            string
	CreatedAt       time.Time
	Items           []Item
}

// Item is one allocated slice of a sold product. Checkout writes one
// item per ledger batch it drew from, so the discount decision stays
// attached to the batch that justified it.
type Item struct {
	ID         int64
	OrderID    int64
	ProductID  int64
	BatchID    int64
	Quantity   float64
	UnitPrice  decimal.Decimal
	Discounted bool
	LineTotal  decimal.Decimal
}

// ListFilter narrows order listings.
type ListFilter struct {
	Status Status
	Date   time.Time
	Limit  int
}

// RevenuePoint is aggregated completed-order revenue for one day.
// DiscountedLines over Lines gives the share of sales moved by the
// near-expiry discount.
type RevenuePoint struct {
	Date            time.Time
	Orders          int
	Revenue         decimal.Decimal
	Lines           int
	DiscountedLines int
}

const nearExpiryDays = 30

var (
	// ErrOrderNotFound indicates a missing order.
	ErrOrderNotFound = fmt.Errorf("order %w", shared.ErrNotFound)
	// ErrEmptyOrder indicates an order without items.
	ErrEmptyOrder = fmt.Errorf("order requires at least one item: %w", shared.ErrValidation)
	// ErrBadItem indicates an item with a non-positive quantity.
	ErrBadItem = fmt.Errorf("order item quantity must be positive: %w", shared.ErrValidation)
	// ErrUnknownBatch indicates a scanned batch number that resolves to nothing.
	ErrUnknownBatch = fmt.Errorf("scanned batch %w", shared.ErrNotFound)
	// ErrBatchProductMismatch indicates a scanned batch of a different product.
	ErrBatchProductMismatch = fmt.Errorf("scanned batch belongs to another product: %w", shared.ErrValidation)
)

// NearExpiry reports whether the batch expires within the discount
// window. The day count rounds up, so a lot expiring 30 days and one
// hour from now still counts as 31 days and sells at full price.
func NearExpiry(batch ledger.Batch, now time.Time) bool {
	if batch.ExpiryDate == nil {
		return false
	}
	return batch.DaysUntilExpiry(now) <= nearExpiryDays
}

// ComputeLineTotal prices quantity units drawn from one batch, applying
// the 50% near-expiry discount when it applies. Returns the line total
// and whether the discount fired.
func ComputeLineTotal(unitPrice decimal.Decimal, quantity float64, batch ledger.Batch, now time.Time) (decimal.Decimal, bool) {
	price := unitPrice
	discounted := NearExpiry(batch, now)
	if discounted {
		price = shared.Half(price)
	}
	return price.Mul(decimal.NewFromFloat(quantity)), discounted
}
