package receipt

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/meridian-pos/meridian-pos/internal/ledger"
	"github.com/meridian-pos/meridian-pos/internal/shared"
)

// TxRepository is the transactional surface Submit runs on. Form
// completion, batch creation and price-history writes share the receipt
// insert's transaction so a failure anywhere leaves nothing behind.
type TxRepository interface {
	GetFormForUpdate(ctx context.Context, formID int64) (PendingForm, error)
	InsertReceipt(ctx context.Context, rc Receipt) (int64, error)
	InsertLine(ctx context.Context, line Line) (int64, error)
	InsertBatch(ctx context.Context, batch ledger.Batch) (int64, error)
	CountBatchesForProduct(ctx context.Context, productID int64) (int, error)
	BatchNumberExists(ctx context.Context, number string) (bool, error)
	CompleteForm(ctx context.Context, formID int64) (bool, error)
	GetProductInputPrice(ctx context.Context, productID int64) (decimal.Decimal, error)
	UpdateProductInputPrice(ctx context.Context, productID int64, price decimal.Decimal) error
	InsertPriceHistory(ctx context.Context, change PriceChange) error
}

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetReceipt(ctx context.Context, id int64) (Receipt, error)
	GetReceiptByForm(ctx context.Context, formID int64) (Receipt, error)
	ListReceipts(ctx context.Context, filter ListFilter) ([]Receipt, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// IdempotencyPort guards retried submissions.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// PriceChange is one catalog price movement observed at receiving time.
type PriceChange struct {
	ProductID int64
	OldPrice  decimal.Decimal
	NewPrice  decimal.Decimal
	UserName  string
	ChangedAt time.Time
}

// SubmitLine carries the actually received values for one form product.
// BatchNumber is optional; a blank one is generated from the product id.
type SubmitLine struct {
	ProductID         int64
	Quantity          float64
	InputPrice        decimal.Decimal
	BatchNumber       string
	DateOfManufacture time.Time
	ExpiryDate        time.Time
	Note              string
}

// SubmitInput is the full receiving command.
type SubmitInput struct {
	OrderFormID    int64
	UserID         int64
	UserName       string
	Note           string
	IdempotencyKey string
	Lines          []SubmitLine
}

// Service coordinates receipt operations.
type Service struct {
	repo  RepositoryPort
	audit AuditPort
	idem  IdempotencyPort
	now   func() time.Time
}

// NewService builds Service.
func NewService(repo RepositoryPort, audit AuditPort, idem IdempotencyPort) *Service {
	return &Service{repo: repo, audit: audit, idem: idem, now: time.Now}
}

var minLineValue = decimal.NewFromInt(1)

// Submit receives goods against one pending order form. Everything runs
// in a single transaction: the receipt and its lines are inserted, one
// ledger batch is created per line, the form flips to COMPLETED exactly
// once, and price history records any cost movement. The unique index on
// supplier_receipt_id rejects a second receipt even under races.
func (s *Service) Submit(ctx context.Context, input SubmitInput) (Receipt, error) {
	if input.UserID == 0 || input.UserName == "" {
		return Receipt{}, ErrNoActor
	}
	if len(input.Lines) == 0 {
		return Receipt{}, ErrEmptyLines
	}
	now := s.now()
	for _, line := range input.Lines {
		if line.Quantity < 1 || line.InputPrice.LessThan(minLineValue) {
			return Receipt{}, ErrBadLine
		}
		if err := ledger.ValidateBatchDates(line.DateOfManufacture, line.ExpiryDate, now); err != nil {
			return Receipt{}, err
		}
	}

	if input.IdempotencyKey != "" && s.idem != nil {
		if err := s.idem.CheckAndInsert(ctx, input.IdempotencyKey, "warehouse_receipt"); err != nil {
			return Receipt{}, err
		}
	}

	var created Receipt
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		form, err := tx.GetFormForUpdate(ctx, input.OrderFormID)
		if err != nil {
			return err
		}
		if form.Status != "PENDING" {
			return ErrFormNotPending
		}
		formLines := make(map[int64]FormLine, len(form.Lines))
		for _, fl := range form.Lines {
			formLines[fl.ProductID] = fl
		}
		if len(input.Lines) != len(form.Lines) {
			return ErrLineMismatch
		}
		// Exactly one submitted line per form product: a repeat of one
		// product would otherwise hide a missing line behind the length
		// check and leave part of the form unreceived.
		seen := make(map[int64]bool, len(input.Lines))
		for _, line := range input.Lines {
			if _, ok := formLines[line.ProductID]; !ok || seen[line.ProductID] {
				return ErrLineMismatch
			}
			seen[line.ProductID] = true
		}

		total := decimal.Zero
		for _, line := range input.Lines {
			total = total.Add(line.InputPrice.Mul(decimal.NewFromFloat(line.Quantity)))
		}

		rc := Receipt{
			OrderFormID: input.OrderFormID,
			SupplierID:  form.SupplierID,
			UserID:      input.UserID,
			UserName:    input.UserName,
			Total:       total,
			Note:        input.Note,
		}
		receiptID, err := tx.InsertReceipt(ctx, rc)
		if err != nil {
			return err
		}
		rc.ID = receiptID

		for _, line := range input.Lines {
			formLine := formLines[line.ProductID]

			number := line.BatchNumber
			if number == "" {
				number, err = nextBatchNumber(ctx, tx, line.ProductID)
				if err != nil {
					return err
				}
			} else {
				taken, err := tx.BatchNumberExists(ctx, number)
				if err != nil {
					return err
				}
				if taken {
					return ledger.ErrDuplicateBatchNumber
				}
			}
			mfg := line.DateOfManufacture
			expiry := line.ExpiryDate
			batchID, err := tx.InsertBatch(ctx, ledger.Batch{
				ProductID:         line.ProductID,
				UnitID:            formLine.UnitID,
				BatchNumber:       number,
				InputQuantity:     line.Quantity,
				DateOfManufacture: &mfg,
				ExpiryDate:        &expiry,
				InputPrice:        line.InputPrice,
				Note:              line.Note,
			})
			if err != nil {
				return err
			}

			persisted := Line{
				ReceiptID:         receiptID,
				ProductID:         line.ProductID,
				UnitID:            formLine.UnitID,
				BatchID:           batchID,
				BatchNumber:       number,
				Quantity:          line.Quantity,
				InputPrice:        line.InputPrice,
				DateOfManufacture: line.DateOfManufacture,
				ExpiryDate:        line.ExpiryDate,
				Note:              line.Note,
			}
			lineID, err := tx.InsertLine(ctx, persisted)
			if err != nil {
				return err
			}
			persisted.ID = lineID
			rc.Lines = append(rc.Lines, persisted)

			if err := s.trackPriceChange(ctx, tx, line, input.UserName, now); err != nil {
				return err
			}
		}

		completed, err := tx.CompleteForm(ctx, input.OrderFormID)
		if err != nil {
			return err
		}
		if !completed {
			return ErrFormAlreadyReceived
		}
		created = rc
		return nil
	})
	if err != nil {
		if input.IdempotencyKey != "" && s.idem != nil {
			_ = s.idem.Delete(ctx, input.IdempotencyKey)
		}
		return Receipt{}, err
	}

	s.recordAudit(ctx, input.UserID, "RECEIPT_SUBMIT", created.ID, map[string]any{
		"order_form_id": created.OrderFormID,
		"total":         created.Total.String(),
		"lines":         len(created.Lines),
	})
	return created, nil
}

// trackPriceChange moves the catalog cost and appends history when the
// received price differs from the current catalog price.
func (s *Service) trackPriceChange(ctx context.Context, tx TxRepository, line SubmitLine, userName string, now time.Time) error {
	current, err := tx.GetProductInputPrice(ctx, line.ProductID)
	if err != nil {
		return err
	}
	if current.Equal(line.InputPrice) {
		return nil
	}
	if err := tx.UpdateProductInputPrice(ctx, line.ProductID, line.InputPrice); err != nil {
		return err
	}
	return tx.InsertPriceHistory(ctx, PriceChange{
		ProductID: line.ProductID,
		OldPrice:  current,
		NewPrice:  line.InputPrice,
		UserName:  userName,
		ChangedAt: now,
	})
}

const batchNumberAttempts = 5

func nextBatchNumber(ctx context.Context, tx TxRepository, productID int64) (string, error) {
	seq, err := tx.CountBatchesForProduct(ctx, productID)
	if err != nil {
		return "", err
	}
	for attempt := 0; ; attempt++ {
		number := ledger.BatchNumber(productID, seq+1+attempt)
		taken, err := tx.BatchNumberExists(ctx, number)
		if err != nil {
			return "", err
		}
		if !taken {
			return number, nil
		}
		if attempt >= batchNumberAttempts {
			return "", ledger.ErrDuplicateBatchNumber
		}
	}
}

// Get returns one receipt with lines.
func (s *Service) Get(ctx context.Context, id int64) (Receipt, error) {
	return s.repo.GetReceipt(ctx, id)
}

// GetByForm resolves the receipt that consumed a form.
func (s *Service) GetByForm(ctx context.Context, formID int64) (Receipt, error) {
	return s.repo.GetReceiptByForm(ctx, formID)
}

// List returns receipts matching the filter.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Receipt, error) {
	return s.repo.ListReceipts(ctx, filter)
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{ActorID: actorID, Action: action, Entity: "warehouse_receipt", EntityID: fmt.Sprintf("%d", entityID), Meta: meta})
}
