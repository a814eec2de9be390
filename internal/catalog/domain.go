package catalog

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/meridian-pos/meridian-pos/internal/shared"
)

// Product is a sellable catalog entry with current prices.
type Product struct {
	ID          int64
	Code        string
	Name        string
	UnitID      int64
	InputPrice  decimal.Decimal
	OutputPrice decimal.Decimal
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Unit is a sales unit with a conversion ratio to the base unit
// (e.g. box of 12 has ratio 12).
type Unit struct {
	ID    int64
	Name  string
	Ratio float64
}

// Supplier is a purchasing counterparty.
type Supplier struct {
	ID      int64
	Name    string
	Phone   string
	Address string
}

// PriceHistory records a catalog price change with its author.
type PriceHistory struct {
	ID             int64
	ProductID      int64
	OldInputPrice  decimal.Decimal
	NewInputPrice  decimal.Decimal
	OldOutputPrice decimal.Decimal
	NewOutputPrice decimal.Decimal
	ChangedAt      time.Time
	UserName       string
	Note           string
}

var (
	// ErrProductNotFound indicates a missing product.
	ErrProductNotFound = fmt.Errorf("product %w", shared.ErrNotFound)
	// ErrUnitNotFound indicates a missing unit.
	ErrUnitNotFound = fmt.Errorf("unit %w", shared.ErrNotFound)
	// ErrSupplierNotFound indicates a missing supplier.
	ErrSupplierNotFound = fmt.Errorf("supplier %w", shared.ErrNotFound)
	// ErrNameRequired indicates a blank name.
	ErrNameRequired = fmt.Errorf("name required: %w", shared.ErrValidation)
	// ErrBadPrice indicates a non-positive price.
	ErrBadPrice = fmt.Errorf("price must be positive: %w", shared.ErrValidation)
	// ErrBadRatio indicates a non-positive unit ratio.
	ErrBadRatio = fmt.Errorf("unit ratio must be positive: %w", shared.ErrValidation)
)
