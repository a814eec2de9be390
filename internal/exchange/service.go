package exchange

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/meridian-pos/meridian-pos/internal/ledger"
	"github.com/meridian-pos/meridian-pos/internal/shared"
)

// TxRepository is the transactional surface Process runs on. The
// exchange row, the return adjustment and the replacement allocation
// commit or roll back together.
type TxRepository interface {
	GetOrderForUpdate(ctx context.Context, orderID int64) (OrderSnapshot, error)
	GetOrderItem(ctx context.Context, orderID, itemID int64) (ItemSnapshot, error)
	ExchangeExistsForItem(ctx context.Context, itemID int64) (bool, error)
	GetBatchForUpdate(ctx context.Context, batchID int64) (ledger.Batch, error)
	AddOutput(ctx context.Context, batchID int64, delta float64) error
	GetProductOutputPrice(ctx context.Context, productID int64) (decimal.Decimal, error)
	GetProductUnitRatio(ctx context.Context, productID int64) (float64, error)
	InsertExchange(ctx context.Context, ex Exchange) (int64, error)
}

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetExchange(ctx context.Context, id int64) (Exchange, error)
	ListExchanges(ctx context.Context, limit int) ([]Exchange, error)
	GetOrder(ctx context.Context, orderID int64) (OrderSnapshot, error)
	ListOrderItems(ctx context.Context, orderID int64) ([]ItemSnapshot, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// ProcessInput is the full exchange command. NewBatchID identifies the
// scanned replacement lot; its product is derived from the batch.
type ProcessInput struct {
	OrderID     int64
	OrderItemID int64
	NewBatchID  int64
	NewQuantity float64
	UserID      int64
	UserName    string
	Note        string
}

// Service coordinates exchange operations.
type Service struct {
	repo  RepositoryPort
	audit AuditPort
	now   func() time.Time
}

// NewService builds Service.
func NewService(repo RepositoryPort, audit AuditPort) *Service {
	return &Service{repo: repo, audit: audit, now: time.Now}
}

// Open quotes an exchange against a completed order: each sold line
// with the value the replacement must cover. The quote is advisory;
// eligibility is re-checked when the exchange is processed.
func (s *Service) Open(ctx context.Context, orderID int64) (Quote, error) {
	order, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return Quote{}, err
	}
	if order.Status != "COMPLETED" {
		return Quote{}, ErrOrderNotCompleted
	}
	now := s.now()
	if !WithinWindow(order.CreatedAt, now) {
		return Quote{}, ErrWindowClosed
	}
	items, err := s.repo.ListOrderItems(ctx, orderID)
	if err != nil {
		return Quote{}, err
	}
	if len(items) == 0 {
		return Quote{}, ErrNoItems
	}
	quote := Quote{
		OrderID:   order.ID,
		SoldAt:    order.CreatedAt,
		ExpiresAt: order.CreatedAt.Add(exchangeWindow),
	}
	for _, it := range items {
		quote.Items = append(quote.Items, QuoteItem{
			OrderItemID:   it.ID,
			ProductID:     it.ProductID,
			BatchID:       it.BatchID,
			Quantity:      it.Quantity,
			ExchangeValue: it.LineTotal,
		})
	}
	return quote, nil
}

// Process executes a return-and-exchange in one transaction. The sold
// item returns to its original batch, the replacement drains the lot
// the cashier scanned at base-unit granularity, and the customer pays
// the difference. A replacement cheaper than the return is rejected
// outright; the gate does not care what extra payment the client
// claims to offer. An item may be exchanged at most once.
func (s *Service) Process(ctx context.Context, input ProcessInput) (Exchange, error) {
	if input.UserID == 0 || input.UserName == "" {
		return Exchange{}, ErrNoActor
	}
	if input.NewBatchID == 0 {
		return Exchange{}, ErrNoBatch
	}
	if input.NewQuantity <= 0 {
		return Exchange{}, ErrBadQuantity
	}

	now := s.now()
	var created Exchange
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		order, err := tx.GetOrderForUpdate(ctx, input.OrderID)
		if err != nil {
			return err
		}
		if order.Status != "COMPLETED" {
			return ErrOrderNotCompleted
		}
		if !WithinWindow(order.CreatedAt, now) {
			return ErrWindowClosed
		}

		item, err := tx.GetOrderItem(ctx, input.OrderID, input.OrderItemID)
		if err != nil {
			return err
		}
		if item.BatchID == 0 {
			return ErrItemNotBatched
		}
		exchanged, err := tx.ExchangeExistsForItem(ctx, item.ID)
		if err != nil {
			return err
		}
		if exchanged {
			return ErrAlreadyExchanged
		}

		newBatch, err := tx.GetBatchForUpdate(ctx, input.NewBatchID)
		if err != nil {
			return err
		}
		newPrice, err := tx.GetProductOutputPrice(ctx, newBatch.ProductID)
		if err != nil {
			return err
		}
		newTotal := newPrice.Mul(decimal.NewFromFloat(input.NewQuantity))
		if newTotal.LessThan(item.LineTotal) {
			return ErrValueGate
		}

		ratio, err := tx.GetProductUnitRatio(ctx, newBatch.ProductID)
		if err != nil {
			return err
		}
		if ratio <= 0 {
			ratio = 1
		}
		needed := input.NewQuantity * ratio

		// The scanned lot alone must cover the replacement; there is no
		// fall-through to other lots of the same product.
		if newBatch.Available() < needed {
			return ledger.ErrInsufficientInventory
		}
		if err := tx.AddOutput(ctx, newBatch.ID, needed); err != nil {
			return err
		}

		// Returned goods go back on hand in the batch they came from.
		if err := tx.AddOutput(ctx, item.BatchID, -item.Quantity); err != nil {
			return err
		}

		ex := Exchange{
			OrderID:           input.OrderID,
			OrderItemID:       item.ID,
			Status:            StatusCompleted,
			OldProductID:      item.ProductID,
			OldBatchID:        item.BatchID,
			OldQuantity:       item.Quantity,
			NewProductID:      newBatch.ProductID,
			NewBatchID:        newBatch.ID,
			NewQuantity:       input.NewQuantity,
			ExchangeValue:     item.LineTotal,
			NewTotal:          newTotal,
			AdditionalPayment: newTotal.Sub(item.LineTotal),
			UserID:            input.UserID,
			UserName:          input.UserName,
			Note:              input.Note,
		}
		id, err := tx.InsertExchange(ctx, ex)
		if err != nil {
			return err
		}
		ex.ID = id
		created = ex
		return nil
	})
	if err != nil {
		return Exchange{}, err
	}

	s.recordAudit(ctx, input.UserID, "EXCHANGE_PROCESS", created.ID, map[string]any{
		"order_id":           created.OrderID,
		"additional_payment": created.AdditionalPayment.String(),
	})
	return created, nil
}

// Get returns one exchange record.
func (s *Service) Get(ctx context.Context, id int64) (Exchange, error) {
	return s.repo.GetExchange(ctx, id)
}

// List returns recent exchanges.
func (s *Service) List(ctx context.Context, limit int) ([]Exchange, error) {
	return s.repo.ListExchanges(ctx, limit)
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{ActorID: actorID, Action: action, Entity: "return_exchange", EntityID: fmt.Sprintf("%d", entityID), Meta: meta})
}
