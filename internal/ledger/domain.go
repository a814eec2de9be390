package ledger

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/meridian-pos/meridian-pos/internal/shared"
)

// Batch is one dated lot of a product received by a warehouse receipt.
// Rows are never deleted; consumption only moves OutputQuantity.
type Batch struct {
	ID                int64
	ProductID         int64
	UnitID            int64
	BatchNumber       string
	InputQuantity     float64
	OutputQuantity    float64
	DateOfManufacture *time.Time
	ExpiryDate        *time.Time
	InputPrice        decimal.Decimal
	Note              string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Available returns the quantity still on hand.
func (b Batch) Available() float64 {
	return b.InputQuantity - b.OutputQuantity
}

// DaysUntilExpiry returns the whole number of days until expiry, rounded
// up, or -1 when the batch carries no expiry date.
func (b Batch) DaysUntilExpiry(now time.Time) int {
	if b.ExpiryDate == nil {
		return -1
	}
	diff := b.ExpiryDate.Sub(now)
	days := int(diff.Hours() / 24)
	if diff > 0 && diff%(24*time.Hour) != 0 {
		days++
	}
	return days
}

// Allocation assigns part of a requested quantity to one batch.
type Allocation struct {
	BatchID  int64
	Quantity float64
}

// CreateBatchInput describes a new lot entering the ledger.
type CreateBatchInput struct {
	ProductID         int64
	UnitID            int64
	Quantity          float64
	InputPrice        decimal.Decimal
	DateOfManufacture time.Time
	ExpiryDate        time.Time
	BatchNumber       string
	Note              string
	ActorID           int64
}

// ListFilter narrows batch listings.
type ListFilter struct {
	ProductID   int64
	BatchNumber string
	OnlyInStock bool
	Limit       int
}

var (
	// ErrBatchNotFound indicates a missing ledger row.
	ErrBatchNotFound = fmt.Errorf("ledger: batch %w", shared.ErrNotFound)
	// ErrInsufficientInventory indicates eligible batches cannot cover the request.
	ErrInsufficientInventory = fmt.Errorf("ledger: %w", shared.ErrInsufficientStock)
	// ErrOutputRange indicates output_quantity would leave [0, input_quantity].
	ErrOutputRange = fmt.Errorf("ledger: output quantity out of range: %w", shared.ErrInvariant)
	// ErrBadDates indicates manufacture/expiry dates that fail validation.
	ErrBadDates = fmt.Errorf("ledger: manufacture date must precede expiry and lie in the past: %w", shared.ErrValidation)
	// ErrBadQuantity indicates a non-positive quantity or price.
	ErrBadQuantity = fmt.Errorf("ledger: quantity and price must be positive: %w", shared.ErrValidation)
	// ErrDuplicateBatchNumber indicates the batch number is already taken.
	ErrDuplicateBatchNumber = fmt.Errorf("ledger: batch number already exists: %w", shared.ErrConflict)
)

// PlanAllocation selects batches to cover needed units of one product.
// The pinned batch, when present, is drained first; the remainder follows
// manufacture date ascending with undated batches deterministically last.
// All-or-nothing: when total availability is short, no allocation is
// returned at all.
func PlanAllocation(batches []Batch, needed float64, pinnedBatchID int64) ([]Allocation, error) {
	if needed <= 0 {
		return nil, ErrBadQuantity
	}

	ordered := make([]Batch, len(batches))
	copy(ordered, batches)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].ID == pinnedBatchID {
			return ordered[j].ID != pinnedBatchID
		}
		if ordered[j].ID == pinnedBatchID {
			return false
		}
		return fifoLess(ordered[i], ordered[j])
	})

	var plan []Allocation
	remaining := needed
	for _, b := range ordered {
		if remaining <= 0 {
			break
		}
		avail := b.Available()
		if avail <= 0 {
			continue
		}
		take := avail
		if take > remaining {
			take = remaining
		}
		plan = append(plan, Allocation{BatchID: b.ID, Quantity: take})
		remaining -= take
	}
	if remaining > 0 {
		return nil, ErrInsufficientInventory
	}
	return plan, nil
}

// fifoLess orders batches oldest manufacture date first. Undated batches
// sort last so they are never preferred over dated stock; ties fall back
// to row id for a total order.
func fifoLess(a, b Batch) bool {
	switch {
	case a.DateOfManufacture == nil && b.DateOfManufacture == nil:
		return a.ID < b.ID
	case a.DateOfManufacture == nil:
		return false
	case b.DateOfManufacture == nil:
		return true
	case a.DateOfManufacture.Equal(*b.DateOfManufacture):
		return a.ID < b.ID
	default:
		return a.DateOfManufacture.Before(*b.DateOfManufacture)
	}
}
