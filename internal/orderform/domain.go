package orderform

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/meridian-pos/meridian-pos/internal/shared"
)

// Status is the order-form lifecycle state.
type Status string

const (
	// StatusPending marks a form awaiting a warehouse receipt.
	StatusPending Status = "PENDING"
	// StatusCompleted marks a form consumed by exactly one receipt.
	StatusCompleted Status = "COMPLETED"
)

// OrderForm is an internal purchase request to a supplier.
type OrderForm struct {
	ID         int64
	SupplierID int64
	Status     Status
	Lines      []Line
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Line is one requested product on a form. One line per product.
type Line struct {
	ID          int64
	OrderFormID int64
	ProductID   int64
	UnitID      int64
	Quantity    float64
	InputPrice  decimal.Decimal
}

// ListFilter narrows form listings.
type ListFilter struct {
	SupplierID int64
	Status     Status
	Date       time.Time
	Unconsumed bool
	Limit      int
}

var (
	// ErrFormNotFound indicates a missing form.
	ErrFormNotFound = fmt.Errorf("order form %w", shared.ErrNotFound)
	// ErrAlreadyCompleted indicates a form past its single completion.
	ErrAlreadyCompleted = fmt.Errorf("order form already completed: %w", shared.ErrConflict)
	// ErrEmptyLines indicates a form without product lines.
	ErrEmptyLines = fmt.Errorf("order form requires at least one line: %w", shared.ErrValidation)
	// ErrBadLine indicates a line with non-positive quantity/price or no unit.
	ErrBadLine = fmt.Errorf("order form line invalid: %w", shared.ErrValidation)
	// ErrDuplicateProduct indicates the same product twice on one form.
	ErrDuplicateProduct = fmt.Errorf("duplicate product on order form: %w", shared.ErrValidation)
	// ErrSupplierRequired indicates a missing supplier.
	ErrSupplierRequired = fmt.Errorf("supplier required: %w", shared.ErrValidation)
)
