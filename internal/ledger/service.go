package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/meridian-pos/meridian-pos/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	ListBatches(ctx context.Context, filter ListFilter) ([]Batch, error)
	GetBatch(ctx context.Context, id int64) (Batch, error)
	GetBatchByNumber(ctx context.Context, number string) (Batch, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service coordinates ledger operations.
type Service struct {
	repo  RepositoryPort
	audit AuditPort
}

// NewService builds Service.
func NewService(repo RepositoryPort, audit AuditPort) *Service {
	return &Service{repo: repo, audit: audit}
}

const batchNumberAttempts = 5

// CreateBatch inserts one lot. The batch number is derived from the
// product id with a sequence suffix when the caller leaves it blank.
func (s *Service) CreateBatch(ctx context.Context, input CreateBatchInput) (Batch, error) {
	if input.ProductID == 0 {
		return Batch{}, fmt.Errorf("ledger: product required: %w", shared.ErrValidation)
	}
	if input.Quantity <= 0 || input.InputPrice.Sign() <= 0 {
		return Batch{}, ErrBadQuantity
	}
	if err := ValidateBatchDates(input.DateOfManufacture, input.ExpiryDate, time.Now()); err != nil {
		return Batch{}, err
	}

	var created Batch
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		number := input.BatchNumber
		if number == "" {
			seq, err := tx.CountBatchesForProduct(ctx, input.ProductID)
			if err != nil {
				return err
			}
			for attempt := 0; ; attempt++ {
				number = BatchNumber(input.ProductID, seq+1+attempt)
				taken, err := tx.BatchNumberExists(ctx, number)
				if err != nil {
					return err
				}
				if !taken {
					break
				}
				if attempt >= batchNumberAttempts {
					return ErrDuplicateBatchNumber
				}
			}
		}
		mfg := input.DateOfManufacture
		expiry := input.ExpiryDate
		batch := Batch{
			ProductID:         input.ProductID,
			UnitID:            input.UnitID,
			BatchNumber:       number,
			InputQuantity:     input.Quantity,
			OutputQuantity:    0,
			DateOfManufacture: &mfg,
			ExpiryDate:        &expiry,
			InputPrice:        input.InputPrice,
			Note:              input.Note,
		}
		id, err := tx.InsertBatch(ctx, batch)
		if err != nil {
			return err
		}
		batch.ID = id
		created = batch
		return nil
	})
	if err != nil {
		return Batch{}, err
	}
	s.recordAudit(ctx, input.ActorID, "BATCH_CREATE", created.ID, map[string]any{
		"batch_number": created.BatchNumber,
		"product_id":   created.ProductID,
		"quantity":     created.InputQuantity,
	})
	return created, nil
}

// Allocate drains batches to cover needed units, committing every output
// increment in one transaction so a shortage mutates nothing.
func (s *Service) Allocate(ctx context.Context, productID int64, needed float64, pinnedBatchID int64) ([]Allocation, error) {
	if productID == 0 {
		return nil, fmt.Errorf("ledger: product required: %w", shared.ErrValidation)
	}
	var plan []Allocation
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		batches, err := tx.GetBatchesForUpdate(ctx, productID)
		if err != nil {
			return err
		}
		plan, err = PlanAllocation(batches, needed, pinnedBatchID)
		if err != nil {
			return err
		}
		for _, alloc := range plan {
			if err := tx.AddOutput(ctx, alloc.BatchID, alloc.Quantity); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return plan, nil
}

// AdjustOutput moves output_quantity by delta. Positive deltas consume
// stock, negative deltas return it.
func (s *Service) AdjustOutput(ctx context.Context, batchID int64, delta float64, actorID int64) (Batch, error) {
	if delta == 0 {
		return Batch{}, ErrBadQuantity
	}
	var updated Batch
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		batch, err := tx.GetBatchForUpdate(ctx, batchID)
		if err != nil {
			return err
		}
		next := batch.OutputQuantity + delta
		if next < 0 || next > batch.InputQuantity {
			return ErrOutputRange
		}
		if err := tx.AddOutput(ctx, batchID, delta); err != nil {
			return err
		}
		batch.OutputQuantity = next
		updated = batch
		return nil
	})
	if err != nil {
		return Batch{}, err
	}
	s.recordAudit(ctx, actorID, "BATCH_ADJUST", batchID, map[string]any{"delta": delta})
	return updated, nil
}

// SetOutput rewrites output_quantity to an absolute value, used by the
// PATCH endpoint whose clients send the resulting quantity.
func (s *Service) SetOutput(ctx context.Context, batchID int64, output float64, actorID int64) (Batch, error) {
	var updated Batch
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		batch, err := tx.GetBatchForUpdate(ctx, batchID)
		if err != nil {
			return err
		}
		if output < 0 || output > batch.InputQuantity {
			return ErrOutputRange
		}
		if err := tx.AddOutput(ctx, batchID, output-batch.OutputQuantity); err != nil {
			return err
		}
		batch.OutputQuantity = output
		updated = batch
		return nil
	})
	if err != nil {
		return Batch{}, err
	}
	s.recordAudit(ctx, actorID, "BATCH_SET_OUTPUT", batchID, map[string]any{"output_quantity": output})
	return updated, nil
}

// List returns ledger rows matching the filter.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Batch, error) {
	return s.repo.ListBatches(ctx, filter)
}

// Get returns one batch by id.
func (s *Service) Get(ctx context.Context, id int64) (Batch, error) {
	return s.repo.GetBatch(ctx, id)
}

// GetByNumber resolves a batch from its scannable number.
func (s *Service) GetByNumber(ctx context.Context, number string) (Batch, error) {
	if number == "" {
		return Batch{}, fmt.Errorf("ledger: batch number required: %w", shared.ErrValidation)
	}
	return s.repo.GetBatchByNumber(ctx, number)
}

// ValidateBatchDates enforces the receipt date rules at day granularity:
// manufacture strictly before today and strictly before expiry. A lot
// manufactured today is not accepted.
func ValidateBatchDates(mfg, expiry, now time.Time) error {
	if mfg.IsZero() || expiry.IsZero() {
		return ErrBadDates
	}
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	if !mfg.Before(today) {
		return ErrBadDates
	}
	if !expiry.After(mfg) {
		return ErrBadDates
	}
	return nil
}

// BatchNumber derives a deterministic lot code from the product id.
func BatchNumber(productID int64, seq int) string {
	return fmt.Sprintf("LOT-%d-%03d", productID, seq)
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{ActorID: actorID, Action: action, Entity: "ledger_batch", EntityID: fmt.Sprintf("%d", entityID), Meta: meta})
}
