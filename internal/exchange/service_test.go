package exchange

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/meridian-pos/meridian-pos/internal/ledger"
)

type memoryState struct {
	orders    map[int64]OrderSnapshot
	items     map[int64]ItemSnapshot
	batches   map[int64]ledger.Batch
	prices    map[int64]decimal.Decimal
	ratios    map[int64]float64
	exchanges map[int64]Exchange
	nextID    int64
}

type memoryRepo struct {
	state memoryState
}

type memoryTx struct {
	state *memoryState
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{state: memoryState{
		orders:    map[int64]OrderSnapshot{},
		items:     map[int64]ItemSnapshot{},
		batches:   map[int64]ledger.Batch{},
		prices:    map[int64]decimal.Decimal{},
		ratios:    map[int64]float64{},
		exchanges: map[int64]Exchange{},
		nextID:    100,
	}}
}

func (s *memoryState) clone() memoryState {
	out := memoryState{
		orders:    map[int64]OrderSnapshot{},
		items:     map[int64]ItemSnapshot{},
		batches:   map[int64]ledger.Batch{},
		prices:    map[int64]decimal.Decimal{},
		ratios:    map[int64]float64{},
		exchanges: map[int64]Exchange{},
		nextID:    s.nextID,
	}
	for k, v := range s.orders {
		out.orders[k] = v
	}
	for k, v := range s.items {
		out.items[k] = v
	}
	for k, v := range s.batches {
		out.batches[k] = v
	}
	for k, v := range s.prices {
		out.prices[k] = v
	}
	for k, v := range s.ratios {
		out.ratios[k] = v
	}
	for k, v := range s.exchanges {
		out.exchanges[k] = v
	}
	return out
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	staged := r.state.clone()
	if err := fn(ctx, &memoryTx{state: &staged}); err != nil {
		return err
	}
	r.state = staged
	return nil
}

func (r *memoryRepo) GetExchange(_ context.Context, id int64) (Exchange, error) {
	ex, ok := r.state.exchanges[id]
	if !ok {
		return Exchange{}, ErrExchangeNotFound
	}
	return ex, nil
}

func (r *memoryRepo) ListExchanges(_ context.Context, _ int) ([]Exchange, error) {
	var out []Exchange
	for _, ex := range r.state.exchanges {
		out = append(out, ex)
	}
	return out, nil
}

func (r *memoryRepo) GetOrder(_ context.Context, orderID int64) (OrderSnapshot, error) {
	snap, ok := r.state.orders[orderID]
	if !ok {
		return OrderSnapshot{}, ErrOrderNotFound
	}
	return snap, nil
}

func (r *memoryRepo) ListOrderItems(_ context.Context, orderID int64) ([]ItemSnapshot, error) {
	var out []ItemSnapshot
	for _, it := range r.state.items {
		if it.OrderID == orderID {
			out = append(out, it)
		}
	}
	return out, nil
}

func (tx *memoryTx) GetOrderForUpdate(_ context.Context, orderID int64) (OrderSnapshot, error) {
	snap, ok := tx.state.orders[orderID]
	if !ok {
		return OrderSnapshot{}, ErrOrderNotFound
	}
	return snap, nil
}

func (tx *memoryTx) GetOrderItem(_ context.Context, orderID, itemID int64) (ItemSnapshot, error) {
	item, ok := tx.state.items[itemID]
	if !ok || item.OrderID != orderID {
		return ItemSnapshot{}, ErrItemNotFound
	}
	return item, nil
}

func (tx *memoryTx) ExchangeExistsForItem(_ context.Context, itemID int64) (bool, error) {
	for _, ex := range tx.state.exchanges {
		if ex.OrderItemID == itemID {
			return true, nil
		}
	}
	return false, nil
}

func (tx *memoryTx) GetBatchForUpdate(_ context.Context, batchID int64) (ledger.Batch, error) {
	b, ok := tx.state.batches[batchID]
	if !ok {
		return ledger.Batch{}, ledger.ErrBatchNotFound
	}
	return b, nil
}

func (tx *memoryTx) AddOutput(_ context.Context, batchID int64, delta float64) error {
	b, ok := tx.state.batches[batchID]
	if !ok {
		return ledger.ErrBatchNotFound
	}
	next := b.OutputQuantity + delta
	if next < 0 || next > b.InputQuantity {
		return ledger.ErrOutputRange
	}
	b.OutputQuantity = next
	tx.state.batches[batchID] = b
	return nil
}

func (tx *memoryTx) GetProductOutputPrice(_ context.Context, productID int64) (decimal.Decimal, error) {
	price, ok := tx.state.prices[productID]
	if !ok {
		return decimal.Zero, ErrItemNotFound
	}
	return price, nil
}

func (tx *memoryTx) GetProductUnitRatio(_ context.Context, productID int64) (float64, error) {
	return tx.state.ratios[productID], nil
}

func (tx *memoryTx) InsertExchange(_ context.Context, ex Exchange) (int64, error) {
	ex.ID = tx.state.nextID
	tx.state.nextID++
	tx.state.exchanges[ex.ID] = ex
	return ex.ID, nil
}

var testNow = time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)

func price(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func newTestService(repo *memoryRepo) *Service {
	svc := NewService(repo, nil)
	svc.now = func() time.Time { return testNow }
	return svc
}

// seedSale installs a completed order with one item: 2 units of product
// 1 from batch 1 for 2000 total, sold soldAgo before testNow.
func seedSale(repo *memoryRepo, soldAgo time.Duration) {
	repo.state.orders[1] = OrderSnapshot{ID: 1, Status: "COMPLETED", CreatedAt: testNow.Add(-soldAgo)}
	repo.state.items[10] = ItemSnapshot{ID: 10, OrderID: 1, ProductID: 1, BatchID: 1, Quantity: 2, LineTotal: price(2000)}

	mfg := testNow.AddDate(0, -3, 0)
	expiry := testNow.AddDate(1, 0, 0)
	repo.state.batches[1] = ledger.Batch{ID: 1, ProductID: 1, InputQuantity: 10, OutputQuantity: 5, DateOfManufacture: &mfg, ExpiryDate: &expiry}
	repo.state.batches[2] = ledger.Batch{ID: 2, ProductID: 2, InputQuantity: 20, OutputQuantity: 0, DateOfManufacture: &mfg, ExpiryDate: &expiry}
	repo.state.prices[1] = price(1000)
	repo.state.prices[2] = price(1500)
	repo.state.ratios[2] = 1
}

func TestProcessExchange(t *testing.T) {
	repo := newMemoryRepo()
	seedSale(repo, 2*24*time.Hour)
	svc := newTestService(repo)

	ex, err := svc.Process(context.Background(), ProcessInput{
		OrderID: 1, OrderItemID: 10,
		NewBatchID: 2, NewQuantity: 2,
		UserID: 7, UserName: "alice",
	})
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, ex.Status)
	require.Equal(t, int64(2), ex.NewProductID, "product derived from the scanned lot")
	require.Equal(t, int64(2), ex.NewBatchID)
	require.True(t, ex.NewTotal.Equal(price(3000)), "2 * 1500")
	require.True(t, ex.AdditionalPayment.Equal(price(1000)), "3000 - 2000")
	require.Equal(t, float64(3), repo.state.batches[1].OutputQuantity, "returned units go back on hand")
	require.Equal(t, float64(2), repo.state.batches[2].OutputQuantity, "replacement consumed")
}

func TestProcessEqualValueNoPayment(t *testing.T) {
	repo := newMemoryRepo()
	seedSale(repo, 2*24*time.Hour)
	repo.state.prices[2] = price(1000)
	svc := newTestService(repo)

	ex, err := svc.Process(context.Background(), ProcessInput{
		OrderID: 1, OrderItemID: 10,
		NewBatchID: 2, NewQuantity: 2,
		UserID: 7, UserName: "alice",
	})
	require.NoError(t, err)
	require.True(t, ex.AdditionalPayment.IsZero())
}

func TestProcessValueGate(t *testing.T) {
	repo := newMemoryRepo()
	seedSale(repo, 2*24*time.Hour)
	repo.state.prices[2] = price(500)
	svc := newTestService(repo)

	// 1 * 500 < 2000: rejected no matter what the customer offers to pay.
	_, err := svc.Process(context.Background(), ProcessInput{
		OrderID: 1, OrderItemID: 10,
		NewBatchID: 2, NewQuantity: 1,
		UserID: 7, UserName: "alice",
	})
	require.ErrorIs(t, err, ErrValueGate)
	require.Equal(t, float64(5), repo.state.batches[1].OutputQuantity, "nothing moved")
	require.Equal(t, float64(0), repo.state.batches[2].OutputQuantity)
}

func TestProcessWindowBoundary(t *testing.T) {
	repo := newMemoryRepo()
	seedSale(repo, 7*24*time.Hour)
	svc := newTestService(repo)

	// Exactly 7 days is still eligible.
	_, err := svc.Process(context.Background(), ProcessInput{
		OrderID: 1, OrderItemID: 10,
		NewBatchID: 2, NewQuantity: 2,
		UserID: 7, UserName: "alice",
	})
	require.NoError(t, err)

	repo2 := newMemoryRepo()
	seedSale(repo2, 7*24*time.Hour+time.Minute)
	svc2 := newTestService(repo2)

	_, err = svc2.Process(context.Background(), ProcessInput{
		OrderID: 1, OrderItemID: 10,
		NewBatchID: 2, NewQuantity: 2,
		UserID: 7, UserName: "alice",
	})
	require.ErrorIs(t, err, ErrWindowClosed)
}

func TestProcessUnitRatioScalesAllocation(t *testing.T) {
	repo := newMemoryRepo()
	seedSale(repo, 2*24*time.Hour)
	repo.state.ratios[2] = 6
	svc := newTestService(repo)

	// 2 boxes of 6 consume 12 base units.
	ex, err := svc.Process(context.Background(), ProcessInput{
		OrderID: 1, OrderItemID: 10,
		NewBatchID: 2, NewQuantity: 2,
		UserID: 7, UserName: "alice",
	})
	require.NoError(t, err)
	require.Equal(t, float64(12), repo.state.batches[2].OutputQuantity)
	require.True(t, ex.NewTotal.Equal(price(3000)), "price stays per sales unit")
}

func TestProcessInsufficientReplacementStock(t *testing.T) {
	repo := newMemoryRepo()
	seedSale(repo, 2*24*time.Hour)
	repo.state.ratios[2] = 15
	svc := newTestService(repo)

	// 2 * 15 = 30 needed, only 20 on hand.
	_, err := svc.Process(context.Background(), ProcessInput{
		OrderID: 1, OrderItemID: 10,
		NewBatchID: 2, NewQuantity: 2,
		UserID: 7, UserName: "alice",
	})
	require.ErrorIs(t, err, ledger.ErrInsufficientInventory)
	require.Equal(t, float64(5), repo.state.batches[1].OutputQuantity, "return rolled back with the rest")
}

func TestProcessDrainsScannedLot(t *testing.T) {
	repo := newMemoryRepo()
	seedSale(repo, 2*24*time.Hour)
	older := testNow.AddDate(-1, 0, 0)
	expiry := testNow.AddDate(1, 0, 0)
	repo.state.batches[3] = ledger.Batch{ID: 3, ProductID: 2, InputQuantity: 20, OutputQuantity: 0, DateOfManufacture: &older, ExpiryDate: &expiry}
	svc := newTestService(repo)

	// The cashier scanned lot 2; lot 3 being older does not matter.
	ex, err := svc.Process(context.Background(), ProcessInput{
		OrderID: 1, OrderItemID: 10,
		NewBatchID: 2, NewQuantity: 2,
		UserID: 7, UserName: "alice",
	})
	require.NoError(t, err)
	require.Equal(t, int64(2), ex.NewBatchID)
	require.Equal(t, float64(2), repo.state.batches[2].OutputQuantity, "scanned lot drained")
	require.Equal(t, float64(0), repo.state.batches[3].OutputQuantity, "older lot untouched")
}

func TestProcessUnknownBatch(t *testing.T) {
	repo := newMemoryRepo()
	seedSale(repo, 2*24*time.Hour)
	svc := newTestService(repo)

	_, err := svc.Process(context.Background(), ProcessInput{
		OrderID: 1, OrderItemID: 10,
		NewBatchID: 99, NewQuantity: 2,
		UserID: 7, UserName: "alice",
	})
	require.ErrorIs(t, err, ledger.ErrBatchNotFound)
}

func TestProcessRepeatRejected(t *testing.T) {
	repo := newMemoryRepo()
	seedSale(repo, 2*24*time.Hour)
	svc := newTestService(repo)

	input := ProcessInput{
		OrderID: 1, OrderItemID: 10,
		NewBatchID: 2, NewQuantity: 2,
		UserID: 7, UserName: "alice",
	}
	_, err := svc.Process(context.Background(), input)
	require.NoError(t, err)

	// A second pass would return the sold units again and inflate stock.
	_, err = svc.Process(context.Background(), input)
	require.ErrorIs(t, err, ErrAlreadyExchanged)
	require.Equal(t, float64(3), repo.state.batches[1].OutputQuantity, "old batch adjusted exactly once")
	require.Equal(t, float64(2), repo.state.batches[2].OutputQuantity)
	require.Len(t, repo.state.exchanges, 1)
}

func TestOpenExchangeQuote(t *testing.T) {
	repo := newMemoryRepo()
	seedSale(repo, 2*24*time.Hour)
	svc := newTestService(repo)

	quote, err := svc.Open(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, quote.Items, 1)
	require.Equal(t, int64(10), quote.Items[0].OrderItemID)
	require.True(t, quote.Items[0].ExchangeValue.Equal(price(2000)))
	require.Equal(t, quote.SoldAt.Add(7*24*time.Hour), quote.ExpiresAt)
}

func TestOpenExchangeNoItems(t *testing.T) {
	repo := newMemoryRepo()
	repo.state.orders[1] = OrderSnapshot{ID: 1, Status: "COMPLETED", CreatedAt: testNow.Add(-time.Hour)}
	svc := newTestService(repo)

	_, err := svc.Open(context.Background(), 1)
	require.ErrorIs(t, err, ErrNoItems)
}

func TestOpenExchangeOrderNotFound(t *testing.T) {
	svc := newTestService(newMemoryRepo())

	_, err := svc.Open(context.Background(), 42)
	require.ErrorIs(t, err, ErrOrderNotFound)
}

func TestOpenExchangeWindowClosed(t *testing.T) {
	repo := newMemoryRepo()
	seedSale(repo, 8*24*time.Hour)
	svc := newTestService(repo)

	_, err := svc.Open(context.Background(), 1)
	require.ErrorIs(t, err, ErrWindowClosed)
}

func TestProcessRequiresActor(t *testing.T) {
	repo := newMemoryRepo()
	seedSale(repo, time.Hour)
	svc := newTestService(repo)

	_, err := svc.Process(context.Background(), ProcessInput{
		OrderID: 1, OrderItemID: 10, NewBatchID: 2, NewQuantity: 2,
	})
	require.ErrorIs(t, err, ErrNoActor)
}
