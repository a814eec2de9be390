package sales

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/meridian-pos/meridian-pos/internal/ledger"
	"github.com/meridian-pos/meridian-pos/internal/shared"
)

// TxRepository is the transactional surface checkout runs on. Order
// rows and the ledger output increments they imply commit or roll back
// together.
type TxRepository interface {
	InsertOrder(ctx context.Context, order Order) (int64, error)
	InsertItem(ctx context.Context, item Item) (int64, error)
	GetBatchesForUpdate(ctx context.Context, productID int64) ([]ledger.Batch, error)
	GetBatchIDByNumber(ctx context.Context, number string) (int64, error)
	AddOutput(ctx context.Context, batchID int64, delta float64) error
	GetProductOutputPrice(ctx context.Context, productID int64) (decimal.Decimal, error)
}

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetOrder(ctx context.Context, id int64) (Order, error)
	ListOrders(ctx context.Context, filter ListFilter) ([]Order, error)
	RevenueByDay(ctx context.Context, from, to time.Time) ([]RevenuePoint, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// IdempotencyPort guards retried checkouts.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// CheckoutLine is one product on the register. BatchNumber carries a
// scanned lot code; its batch is drained before FIFO order applies.
type CheckoutLine struct {
	ProductID   int64
	Quantity    float64
	BatchNumber string
}

// CheckoutInput is the full checkout command.
type CheckoutInput struct {
	UserID          int64
	UserName        string
	CustomerName    string
	PaymentMethod   string
	CustomerPayment decimal.Decimal
	Note            string
	IdempotencyKey  string
	Lines           []CheckoutLine
}

// Service coordinates sales operations.
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

// Checkout sells the cart. In one transaction it allocates stock
// FIFO per product (scanned batches first), prices every allocated
// slice with the near-expiry discount, increments batch outputs and
// inserts the order with its items. A shortage on any line aborts the
// whole sale.
func (s *Service) Checkout(ctx context.Context, input CheckoutInput) (Order, error) {
	if len(input.Lines) == 0 {
		return Order{}, ErrEmptyOrder
	}
	for _, line := range input.Lines {
		if line.ProductID == 0 || line.Quantity <= 0 {
			return Order{}, ErrBadItem
		}
	}

	if input.IdempotencyKey != "" && s.idem != nil {
		if err := s.idem.CheckAndInsert(ctx, input.IdempotencyKey, "order"); err != nil {
			return Order{}, err
		}
	}

	now := s.now()
	var created Order
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		total := decimal.Zero
		var items []Item

		for _, line := range input.Lines {
			unitPrice, err := tx.GetProductOutputPrice(ctx, line.ProductID)
			if err != nil {
				return err
			}

			pinned := int64(0)
			if line.BatchNumber != "" {
				pinned, err = tx.GetBatchIDByNumber(ctx, line.BatchNumber)
				if err != nil {
					return err
				}
			}

			batches, err := tx.GetBatchesForUpdate(ctx, line.ProductID)
			if err != nil {
				return err
			}
			if pinned != 0 && !containsBatch(batches, pinned) {
				return ErrBatchProductMismatch
			}

			plan, err := ledger.PlanAllocation(batches, line.Quantity, pinned)
			if err != nil {
				return err
			}

			byID := make(map[int64]ledger.Batch, len(batches))
			for _, b := range batches {
				byID[b.ID] = b
			}
			for _, alloc := range plan {
				if err := tx.AddOutput(ctx, alloc.BatchID, alloc.Quantity); err != nil {
					return err
				}
				lineTotal, discounted := ComputeLineTotal(unitPrice, alloc.Quantity, byID[alloc.BatchID], now)
				items = append(items, Item{
					ProductID:  line.ProductID,
					BatchID:    alloc.BatchID,
					Quantity:   alloc.Quantity,
					UnitPrice:  unitPrice,
					Discounted: discounted,
					LineTotal:  lineTotal,
				})
				total = total.Add(lineTotal)
			}
		}

		order := Order{
			UserID:          input.UserID,
			UserName:        input.UserName,
			CustomerName:    input.CustomerName,
			Status:          StatusCompleted,
			Total:           total,
			PaymentMethod:   paymentMethod(input.PaymentMethod),
			PaymentStatus:   true,
			CustomerPayment: input.CustomerPayment,
			Note:            input.Note,
		}
		orderID, err := tx.InsertOrder(ctx, order)
		if err != nil {
			return err
		}
		order.ID = orderID
		for i := range items {
			items[i].OrderID = orderID
			itemID, err := tx.InsertItem(ctx, items[i])
			if err != nil {
				return err
			}
			items[i].ID = itemID
		}
		order.Items = items
		created = order
		return nil
	})
	if err != nil {
		if input.IdempotencyKey != "" && s.idem != nil {
			_ = s.idem.Delete(ctx, input.IdempotencyKey)
		}
		return Order{}, err
	}

	s.recordAudit(ctx, input.UserID, "ORDER_CHECKOUT", created.ID, map[string]any{
		"total": created.Total.String(),
		"items": len(created.Items),
	})
	return created, nil
}

// SaveDraft stores a cart without touching the ledger. Draft items
// carry no batch; allocation happens at checkout.
func (s *Service) SaveDraft(ctx context.Context, input CheckoutInput) (Order, error) {
	if len(input.Lines) == 0 {
		return Order{}, ErrEmptyOrder
	}
	for _, line := range input.Lines {
		if line.ProductID == 0 || line.Quantity <= 0 {
			return Order{}, ErrBadItem
		}
	}

	var created Order
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		total := decimal.Zero
		var items []Item
		for _, line := range input.Lines {
			unitPrice, err := tx.GetProductOutputPrice(ctx, line.ProductID)
			if err != nil {
				return err
			}
			lineTotal := unitPrice.Mul(decimal.NewFromFloat(line.Quantity))
			items = append(items, Item{
				ProductID: line.ProductID,
				Quantity:  line.Quantity,
				UnitPrice: unitPrice,
				LineTotal: lineTotal,
			})
			total = total.Add(lineTotal)
		}

		order := Order{
			UserID:        input.UserID,
			UserName:      input.UserName,
			CustomerName:  input.CustomerName,
			Status:        StatusPending,
			Total:         total,
			PaymentMethod: paymentMethod(input.PaymentMethod),
			Note:          input.Note,
		}
		orderID, err := tx.InsertOrder(ctx, order)
		if err != nil {
			return err
		}
		order.ID = orderID
		for i := range items {
			items[i].OrderID = orderID
			itemID, err := tx.InsertItem(ctx, items[i])
			if err != nil {
				return err
			}
			items[i].ID = itemID
		}
		order.Items = items
		created = order
		return nil
	})
	if err != nil {
		return Order{}, err
	}

	s.recordAudit(ctx, input.UserID, "ORDER_DRAFT", created.ID, map[string]any{"total": created.Total.String()})
	return created, nil
}

// Get returns one order with items.
func (s *Service) Get(ctx context.Context, id int64) (Order, error) {
	return s.repo.GetOrder(ctx, id)
}

// List returns orders matching the filter.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Order, error) {
	return s.repo.ListOrders(ctx, filter)
}

// Revenue aggregates completed-order revenue per day over [from, to].
func (s *Service) Revenue(ctx context.Context, from, to time.Time) ([]RevenuePoint, error) {
	if to.Before(from) {
		return nil, fmt.Errorf("sales: revenue range reversed: %w", shared.ErrValidation)
	}
	return s.repo.RevenueByDay(ctx, from, to)
}

func paymentMethod(method string) string {
	if method == "" {
		return "cash"
	}
	return method
}

func containsBatch(batches []ledger.Batch, id int64) bool {
	for _, b := range batches {
		if b.ID == id {
			return true
		}
	}
	return false
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{ActorID: actorID, Action: action, Entity: "order", EntityID: fmt.Sprintf("%d", entityID), Meta: meta})
}
