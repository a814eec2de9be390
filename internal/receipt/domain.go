package receipt

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/meridian-pos/meridian-pos/internal/shared"
)

// Receipt records goods physically received against one order form.
// A form is consumed by at most one receipt, enforced by a unique
// constraint on supplier_receipt_id.
type Receipt struct {
	ID          int64
	OrderFormID int64
	SupplierID  int64
	UserID      int64
	UserName    string
	Total       decimal.Decimal
	Note        string
	CreatedAt   time.Time
	Lines       []Line
}

// Line is one received product with the ledger batch it produced.
type Line struct {
	ID                int64
	ReceiptID         int64
	ProductID         int64
	UnitID            int64
	BatchID           int64
	BatchNumber       string
	Quantity          float64
	InputPrice        decimal.Decimal
	DateOfManufacture time.Time
	ExpiryDate        time.Time
	Note              string
}

// PendingForm is the locked order-form snapshot a submission runs against.
type PendingForm struct {
	ID         int64
	SupplierID int64
	Status     string
	Lines      []FormLine
}

// FormLine mirrors one requested product on the locked form.
type FormLine struct {
	ProductID  int64
	UnitID     int64
	Quantity   float64
	InputPrice decimal.Decimal
}

// ListFilter narrows receipt listings.
type ListFilter struct {
	SupplierID int64
	Date       time.Time
	Limit      int
}

var (
	// ErrReceiptNotFound indicates a missing receipt.
	ErrReceiptNotFound = fmt.Errorf("warehouse receipt %w", shared.ErrNotFound)
	// ErrFormNotPending indicates the form was already completed or deleted.
	ErrFormNotPending = fmt.Errorf("order form is not pending: %w", shared.ErrConflict)
	// ErrFormAlreadyReceived indicates a second receipt for the same form.
	ErrFormAlreadyReceived = fmt.Errorf("order form already has a receipt: %w", shared.ErrConflict)
	// ErrNoActor indicates the acting user could not be resolved.
	ErrNoActor = fmt.Errorf("acting user unresolved: %w", shared.ErrUnauthorized)
	// ErrBadLine indicates a line below the minimum quantity or price.
	ErrBadLine = fmt.Errorf("receipt line requires quantity >= 1 and price >= 1: %w", shared.ErrValidation)
	// ErrLineMismatch indicates receipt lines that do not cover the form's products.
	ErrLineMismatch = fmt.Errorf("receipt lines must match the order form's products: %w", shared.ErrValidation)
	// ErrEmptyLines indicates a submission without lines.
	ErrEmptyLines = fmt.Errorf("receipt requires at least one line: %w", shared.ErrValidation)
)
