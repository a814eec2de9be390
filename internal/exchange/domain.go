package exchange

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/meridian-pos/meridian-pos/internal/shared"
)

// Status tracks an exchange record through its lifecycle. Confirmed
// exchanges commit in one transaction, so persisted rows are COMPLETED;
// the earlier states cover quotes a client holds open.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusExchanging Status = "EXCHANGING"
	StatusCompleted  Status = "COMPLETED"
)

// Exchange records one return-and-exchange against a completed order
// item. The returned quantity goes back to its original batch; the
// replacement drains the specific lot the cashier scanned.
type Exchange struct {
	ID                int64
	OrderID           int64
	OrderItemID       int64
	Status            Status
	OldProductID      int64
	OldBatchID        int64
	OldQuantity       float64
	NewProductID      int64
	NewBatchID        int64
	NewQuantity       float64
	ExchangeValue     decimal.Decimal
	NewTotal          decimal.Decimal
	AdditionalPayment decimal.Decimal
	UserID            int64
	UserName          string
	Note              string
	CreatedAt         time.Time
}

// Quote is the opening position of an exchange: what the customer is
// giving back and what the replacement must at least be worth.
type Quote struct {
	OrderID   int64
	SoldAt    time.Time
	Items     []QuoteItem
	ExpiresAt time.Time
}

// QuoteItem is one exchangeable sold line with its exchange value.
type QuoteItem struct {
	OrderItemID   int64
	ProductID     int64
	BatchID       int64
	Quantity      float64
	ExchangeValue decimal.Decimal
}

// OrderSnapshot is the locked order state an exchange runs against.
type OrderSnapshot struct {
	ID        int64
	Status    string
	CreatedAt time.Time
}

// ItemSnapshot is the sold item being returned.
type ItemSnapshot struct {
	ID        int64
	OrderID   int64
	ProductID int64
	BatchID   int64
	Quantity  float64
	LineTotal decimal.Decimal
}

// exchangeWindow is the return eligibility period after the sale.
const exchangeWindow = 7 * 24 * time.Hour

var (
	// ErrExchangeNotFound indicates a missing exchange record.
	ErrExchangeNotFound = fmt.Errorf("exchange %w", shared.ErrNotFound)
	// ErrOrderNotFound indicates the order does not exist.
	ErrOrderNotFound = fmt.Errorf("order %w", shared.ErrNotFound)
	// ErrItemNotFound indicates the order item does not exist on the order.
	ErrItemNotFound = fmt.Errorf("order item %w", shared.ErrNotFound)
	// ErrAlreadyExchanged indicates the order item was exchanged before.
	ErrAlreadyExchanged = fmt.Errorf("order item already exchanged: %w", shared.ErrConflict)
	// ErrOrderNotCompleted indicates an exchange against a draft order.
	ErrOrderNotCompleted = fmt.Errorf("exchange requires a completed order: %w", shared.ErrConflict)
	// ErrWindowClosed indicates the 7-day return period has passed.
	ErrWindowClosed = fmt.Errorf("exchange window closed: %w", shared.ErrExpired)
	// ErrValueGate indicates the replacement is worth less than the return.
	ErrValueGate = fmt.Errorf("replacement value must cover the returned value: %w", shared.ErrValidation)
	// ErrBadQuantity indicates a non-positive exchange quantity.
	ErrBadQuantity = fmt.Errorf("exchange quantity must be positive: %w", shared.ErrValidation)
	// ErrNoBatch indicates the replacement lot was not identified.
	ErrNoBatch = fmt.Errorf("replacement batch required: %w", shared.ErrValidation)
	// ErrNoActor indicates the acting user could not be resolved.
	ErrNoActor = fmt.Errorf("acting user unresolved: %w", shared.ErrUnauthorized)
	// ErrItemNotBatched indicates a returned item with no ledger batch.
	ErrItemNotBatched = fmt.Errorf("returned item carries no batch: %w", shared.ErrConflict)
	// ErrNoItems indicates an order with nothing on it to exchange.
	ErrNoItems = fmt.Errorf("order has no line items: %w", shared.ErrValidation)
)

// WithinWindow reports whether an order sold at soldAt is still
// exchange-eligible at now.
func WithinWindow(soldAt, now time.Time) bool {
	return !now.After(soldAt.Add(exchangeWindow))
}
