package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type memoryRepo struct {
	batches map[int64]*Batch
	nextID  int64
}

type memoryTx struct {
	repo    *memoryRepo
	applied map[int64]float64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{batches: make(map[int64]*Batch)}
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	tx := &memoryTx{repo: r, applied: make(map[int64]float64)}
	if err := fn(ctx, tx); err != nil {
		// roll back output increments applied before the failure
		for id, delta := range tx.applied {
			r.batches[id].OutputQuantity -= delta
		}
		return err
	}
	return nil
}

func (r *memoryRepo) ListBatches(ctx context.Context, filter ListFilter) ([]Batch, error) {
	var out []Batch
	for _, b := range r.batches {
		if filter.ProductID != 0 && b.ProductID != filter.ProductID {
			continue
		}
		out = append(out, *b)
	}
	return out, nil
}

func (r *memoryRepo) GetBatch(ctx context.Context, id int64) (Batch, error) {
	if b, ok := r.batches[id]; ok {
		return *b, nil
	}
	return Batch{}, ErrBatchNotFound
}

func (r *memoryRepo) GetBatchByNumber(ctx context.Context, number string) (Batch, error) {
	for _, b := range r.batches {
		if b.BatchNumber == number {
			return *b, nil
		}
	}
	return Batch{}, ErrBatchNotFound
}

func (tx *memoryTx) InsertBatch(ctx context.Context, batch Batch) (int64, error) {
	for _, b := range tx.repo.batches {
		if b.BatchNumber == batch.BatchNumber {
			return 0, ErrDuplicateBatchNumber
		}
	}
	tx.repo.nextID++
	batch.ID = tx.repo.nextID
	tx.repo.batches[batch.ID] = &batch
	return batch.ID, nil
}

func (tx *memoryTx) GetBatchForUpdate(ctx context.Context, id int64) (Batch, error) {
	if b, ok := tx.repo.batches[id]; ok {
		return *b, nil
	}
	return Batch{}, ErrBatchNotFound
}

func (tx *memoryTx) GetBatchesForUpdate(ctx context.Context, productID int64) ([]Batch, error) {
	var out []Batch
	for _, b := range tx.repo.batches {
		if b.ProductID == productID {
			out = append(out, *b)
		}
	}
	return out, nil
}

func (tx *memoryTx) AddOutput(ctx context.Context, id int64, delta float64) error {
	b, ok := tx.repo.batches[id]
	if !ok {
		return ErrBatchNotFound
	}
	next := b.OutputQuantity + delta
	if next < 0 || next > b.InputQuantity {
		return ErrOutputRange
	}
	b.OutputQuantity = next
	tx.applied[id] += delta
	return nil
}

func (tx *memoryTx) CountBatchesForProduct(ctx context.Context, productID int64) (int, error) {
	count := 0
	for _, b := range tx.repo.batches {
		if b.ProductID == productID {
			count++
		}
	}
	return count, nil
}

func (tx *memoryTx) BatchNumberExists(ctx context.Context, number string) (bool, error) {
	for _, b := range tx.repo.batches {
		if b.BatchNumber == number {
			return true, nil
		}
	}
	return false, nil
}

func datePtr(t time.Time) *time.Time { return &t }

func seedBatch(repo *memoryRepo, productID int64, number string, qty float64, mfg *time.Time) int64 {
	repo.nextID++
	repo.batches[repo.nextID] = &Batch{
		ID:                repo.nextID,
		ProductID:         productID,
		BatchNumber:       number,
		InputQuantity:     qty,
		DateOfManufacture: mfg,
		ExpiryDate:        datePtr(time.Now().AddDate(1, 0, 0)),
		InputPrice:        decimal.NewFromInt(1000),
	}
	return repo.nextID
}

func TestAllocateFIFO(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)
	ctx := context.Background()

	b1 := seedBatch(repo, 1, "LOT-1-001", 5, datePtr(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)))
	b2 := seedBatch(repo, 1, "LOT-1-002", 5, datePtr(time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)))

	plan, err := svc.Allocate(ctx, 1, 7, 0)
	require.NoError(t, err)
	require.Equal(t, []Allocation{{BatchID: b1, Quantity: 5}, {BatchID: b2, Quantity: 2}}, plan)
	require.InDelta(t, 0, repo.batches[b1].Available(), 0.0001)
	require.InDelta(t, 3, repo.batches[b2].Available(), 0.0001)
}

func TestAllocatePinnedBatchFirst(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)
	ctx := context.Background()

	b1 := seedBatch(repo, 1, "LOT-1-001", 5, datePtr(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)))
	b2 := seedBatch(repo, 1, "LOT-1-002", 5, datePtr(time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)))

	plan, err := svc.Allocate(ctx, 1, 3, b2)
	require.NoError(t, err)
	require.Equal(t, []Allocation{{BatchID: b2, Quantity: 3}}, plan)
	require.InDelta(t, 5, repo.batches[b1].Available(), 0.0001)
	require.InDelta(t, 2, repo.batches[b2].Available(), 0.0001)
}

func TestAllocatePinnedOverflowFallsBackToFIFO(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)
	ctx := context.Background()

	b1 := seedBatch(repo, 1, "LOT-1-001", 5, datePtr(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)))
	b2 := seedBatch(repo, 1, "LOT-1-002", 4, datePtr(time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)))

	plan, err := svc.Allocate(ctx, 1, 6, b2)
	require.NoError(t, err)
	require.Equal(t, []Allocation{{BatchID: b2, Quantity: 4}, {BatchID: b1, Quantity: 2}}, plan)
}

func TestAllocateAllOrNothing(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)
	ctx := context.Background()

	b1 := seedBatch(repo, 1, "LOT-1-001", 5, datePtr(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)))
	b2 := seedBatch(repo, 1, "LOT-1-002", 5, datePtr(time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)))

	_, err := svc.Allocate(ctx, 1, 11, 0)
	require.ErrorIs(t, err, ErrInsufficientInventory)
	require.InDelta(t, 5, repo.batches[b1].Available(), 0.0001)
	require.InDelta(t, 5, repo.batches[b2].Available(), 0.0001)
}

func TestPlanAllocationUndatedBatchesLast(t *testing.T) {
	batches := []Batch{
		{ID: 1, ProductID: 1, InputQuantity: 5},
		{ID: 2, ProductID: 1, InputQuantity: 5, DateOfManufacture: datePtr(time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC))},
	}
	plan, err := PlanAllocation(batches, 6, 0)
	require.NoError(t, err)
	require.Equal(t, []Allocation{{BatchID: 2, Quantity: 5}, {BatchID: 1, Quantity: 1}}, plan)
}

func TestAdjustOutputInvariants(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)
	ctx := context.Background()

	id := seedBatch(repo, 1, "LOT-1-001", 10, datePtr(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)))

	batch, err := svc.AdjustOutput(ctx, id, 3, 0)
	require.NoError(t, err)
	require.InDelta(t, 3, batch.OutputQuantity, 0.0001)

	_, err = svc.AdjustOutput(ctx, id, 8, 0)
	require.ErrorIs(t, err, ErrOutputRange)

	_, err = svc.AdjustOutput(ctx, id, -4, 0)
	require.ErrorIs(t, err, ErrOutputRange)

	batch, err = svc.AdjustOutput(ctx, id, -3, 0)
	require.NoError(t, err)
	require.InDelta(t, 0, batch.OutputQuantity, 0.0001)
}

func TestCreateBatchDateValidation(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)
	ctx := context.Background()

	today := time.Now()
	yesterday := today.AddDate(0, 0, -1)

	_, err := svc.CreateBatch(ctx, CreateBatchInput{
		ProductID:         1,
		Quantity:          10,
		InputPrice:        decimal.NewFromInt(1000),
		DateOfManufacture: today.Add(time.Hour),
		ExpiryDate:        today.AddDate(1, 0, 0),
	})
	require.ErrorIs(t, err, ErrBadDates)

	_, err = svc.CreateBatch(ctx, CreateBatchInput{
		ProductID:         1,
		Quantity:          10,
		InputPrice:        decimal.NewFromInt(1000),
		DateOfManufacture: yesterday,
		ExpiryDate:        yesterday,
	})
	require.ErrorIs(t, err, ErrBadDates)
}

func TestCreateBatchGeneratesNumber(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)
	ctx := context.Background()

	yesterday := time.Now().AddDate(0, 0, -1)
	first, err := svc.CreateBatch(ctx, CreateBatchInput{
		ProductID:         7,
		Quantity:          10,
		InputPrice:        decimal.NewFromInt(1000),
		DateOfManufacture: yesterday,
		ExpiryDate:        yesterday.AddDate(1, 0, 0),
	})
	require.NoError(t, err)
	require.Equal(t, "LOT-7-001", first.BatchNumber)

	second, err := svc.CreateBatch(ctx, CreateBatchInput{
		ProductID:         7,
		Quantity:          5,
		InputPrice:        decimal.NewFromInt(1200),
		DateOfManufacture: yesterday,
		ExpiryDate:        yesterday.AddDate(1, 0, 0),
	})
	require.NoError(t, err)
	require.Equal(t, "LOT-7-002", second.BatchNumber)
}

func TestDaysUntilExpiryRoundsUp(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	b := Batch{ExpiryDate: datePtr(now.Add(30*24*time.Hour - time.Hour))}
	require.Equal(t, 30, b.DaysUntilExpiry(now))

	b = Batch{ExpiryDate: datePtr(now.Add(30*24*time.Hour + time.Hour))}
	require.Equal(t, 31, b.DaysUntilExpiry(now))

	b = Batch{}
	require.Equal(t, -1, b.DaysUntilExpiry(now))
}
