package orderform

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/meridian-pos/meridian-pos/internal/shared"
)

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetForm(ctx context.Context, id int64) (OrderForm, error)
	ListForms(ctx context.Context, filter ListFilter) ([]OrderForm, error)
}

// AuditPort reused from shared.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service orchestrates the order-form lifecycle.
type Service struct {
	repo  RepositoryPort
	audit AuditPort
}

// NewService constructs order-form service.
func NewService(repo RepositoryPort, audit AuditPort) *Service {
	return &Service{repo: repo, audit: audit}
}

// CreateInput describes creation payload.
type CreateInput struct {
	SupplierID int64
	Lines      []LineInput
	ActorID    int64
}

// LineInput describes one requested product.
type LineInput struct {
	ProductID  int64
	UnitID     int64
	Quantity   float64
	InputPrice decimal.Decimal
}

// Create persists a PENDING form with its lines.
func (s *Service) Create(ctx context.Context, input CreateInput) (OrderForm, error) {
	if input.SupplierID == 0 {
		return OrderForm{}, ErrSupplierRequired
	}
	if len(input.Lines) == 0 {
		return OrderForm{}, ErrEmptyLines
	}
	seen := make(map[int64]bool, len(input.Lines))
	for _, line := range input.Lines {
		if line.ProductID == 0 || line.UnitID == 0 || line.Quantity <= 0 || line.InputPrice.Sign() <= 0 {
			return OrderForm{}, ErrBadLine
		}
		if seen[line.ProductID] {
			return OrderForm{}, ErrDuplicateProduct
		}
		seen[line.ProductID] = true
	}

	form := OrderForm{SupplierID: input.SupplierID, Status: StatusPending}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		id, err := tx.InsertForm(ctx, form)
		if err != nil {
			return err
		}
		form.ID = id
		for _, line := range input.Lines {
			inserted, err := tx.InsertLine(ctx, Line{
				OrderFormID: id,
				ProductID:   line.ProductID,
				UnitID:      line.UnitID,
				Quantity:    line.Quantity,
				InputPrice:  line.InputPrice,
			})
			if err != nil {
				return err
			}
			form.Lines = append(form.Lines, inserted)
		}
		return nil
	})
	if err != nil {
		return OrderForm{}, err
	}
	s.recordAudit(ctx, input.ActorID, "ORDER_FORM_CREATE", form.ID, map[string]any{"supplier_id": form.SupplierID, "lines": len(form.Lines)})
	return form, nil
}

// Get returns one form with lines.
func (s *Service) Get(ctx context.Context, id int64) (OrderForm, error) {
	return s.repo.GetForm(ctx, id)
}

// List returns forms matching the filter. With Unconsumed set it excludes
// forms already referenced by a warehouse receipt, computed server-side.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]OrderForm, error) {
	return s.repo.ListForms(ctx, filter)
}

// ListPending returns PENDING forms not yet consumed by any receipt,
// the pool the receipt builder may draw from.
func (s *Service) ListPending(ctx context.Context, supplierID int64) ([]OrderForm, error) {
	return s.repo.ListForms(ctx, ListFilter{SupplierID: supplierID, Status: StatusPending, Unconsumed: true})
}

// Delete removes a PENDING form. Completed forms are immutable.
func (s *Service) Delete(ctx context.Context, id int64, actorID int64) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		deleted, err := tx.DeletePending(ctx, id)
		if err != nil {
			return err
		}
		if !deleted {
			if _, err := s.repo.GetForm(ctx, id); err != nil {
				return err
			}
			return ErrAlreadyCompleted
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, "ORDER_FORM_DELETE", id, nil)
	return nil
}

// MarkCompleted flips PENDING to COMPLETED exactly once. A second call
// fails instead of silently re-applying.
func (s *Service) MarkCompleted(ctx context.Context, id int64, actorID int64) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		completed, err := tx.CompleteForm(ctx, id)
		if err != nil {
			return err
		}
		if !completed {
			if _, err := s.repo.GetForm(ctx, id); err != nil {
				return err
			}
			return ErrAlreadyCompleted
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, "ORDER_FORM_COMPLETE", id, nil)
	return nil
}

// UpdateSupplier reassigns the supplier of a PENDING form.
func (s *Service) UpdateSupplier(ctx context.Context, id, supplierID, actorID int64) error {
	if supplierID == 0 {
		return ErrSupplierRequired
	}
	form, err := s.repo.GetForm(ctx, id)
	if err != nil {
		return err
	}
	if form.Status != StatusPending {
		return ErrAlreadyCompleted
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.UpdateSupplier(ctx, id, supplierID)
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, "ORDER_FORM_UPDATE", id, map[string]any{"supplier_id": supplierID})
	return nil
}

// ReplaceLines swaps the product lines of a PENDING form.
func (s *Service) ReplaceLines(ctx context.Context, id int64, lines []LineInput, actorID int64) error {
	if len(lines) == 0 {
		return ErrEmptyLines
	}
	seen := make(map[int64]bool, len(lines))
	for _, line := range lines {
		if line.ProductID == 0 || line.UnitID == 0 || line.Quantity <= 0 || line.InputPrice.Sign() <= 0 {
			return ErrBadLine
		}
		if seen[line.ProductID] {
			return ErrDuplicateProduct
		}
		seen[line.ProductID] = true
	}
	form, err := s.repo.GetForm(ctx, id)
	if err != nil {
		return err
	}
	if form.Status != StatusPending {
		return ErrAlreadyCompleted
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.DeleteLines(ctx, id); err != nil {
			return err
		}
		for _, line := range lines {
			if _, err := tx.InsertLine(ctx, Line{
				OrderFormID: id,
				ProductID:   line.ProductID,
				UnitID:      line.UnitID,
				Quantity:    line.Quantity,
				InputPrice:  line.InputPrice,
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, "ORDER_FORM_UPDATE", id, map[string]any{"lines": len(lines)})
	return nil
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{ActorID: actorID, Action: action, Entity: "order_form", EntityID: fmt.Sprintf("%d", entityID), Meta: meta})
}
