package receipt

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/meridian-pos/meridian-pos/internal/ledger"
	"github.com/meridian-pos/meridian-pos/internal/shared"
)

type memoryState struct {
	forms    map[int64]PendingForm
	batches  map[int64]ledger.Batch
	receipts map[int64]Receipt
	lines    []Line
	products map[int64]decimal.Decimal
	history  []PriceChange
	nextID   int64
}

type memoryRepo struct {
	state memoryState
}

type memoryTx struct {
	state *memoryState
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{state: memoryState{
		forms:    map[int64]PendingForm{},
		batches:  map[int64]ledger.Batch{},
		receipts: map[int64]Receipt{},
		products: map[int64]decimal.Decimal{},
		nextID:   1,
	}}
}

func (s *memoryState) clone() memoryState {
	out := memoryState{
		forms:    map[int64]PendingForm{},
		batches:  map[int64]ledger.Batch{},
		receipts: map[int64]Receipt{},
		products: map[int64]decimal.Decimal{},
		nextID:   s.nextID,
	}
	for k, v := range s.forms {
		out.forms[k] = v
	}
	for k, v := range s.batches {
		out.batches[k] = v
	}
	for k, v := range s.receipts {
		out.receipts[k] = v
	}
	for k, v := range s.products {
		out.products[k] = v
	}
	out.lines = append(out.lines, s.lines...)
	out.history = append(out.history, s.history...)
	return out
}

// WithTx runs fn on a copy of the state; the copy is only kept on success
// so a failed submission mutates nothing, matching the real transaction.
func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	staged := r.state.clone()
	if err := fn(ctx, &memoryTx{state: &staged}); err != nil {
		return err
	}
	r.state = staged
	return nil
}

func (r *memoryRepo) GetReceipt(_ context.Context, id int64) (Receipt, error) {
	rc, ok := r.state.receipts[id]
	if !ok {
		return Receipt{}, ErrReceiptNotFound
	}
	return rc, nil
}

func (r *memoryRepo) GetReceiptByForm(_ context.Context, formID int64) (Receipt, error) {
	for _, rc := range r.state.receipts {
		if rc.OrderFormID == formID {
			return rc, nil
		}
	}
	return Receipt{}, ErrReceiptNotFound
}

func (r *memoryRepo) ListReceipts(_ context.Context, _ ListFilter) ([]Receipt, error) {
	var out []Receipt
	for _, rc := range r.state.receipts {
		out = append(out, rc)
	}
	return out, nil
}

func (tx *memoryTx) next() int64 {
	id := tx.state.nextID
	tx.state.nextID++
	return id
}

func (tx *memoryTx) GetFormForUpdate(_ context.Context, formID int64) (PendingForm, error) {
	form, ok := tx.state.forms[formID]
	if !ok {
		return PendingForm{}, ErrFormNotPending
	}
	return form, nil
}

func (tx *memoryTx) InsertReceipt(_ context.Context, rc Receipt) (int64, error) {
	for _, existing := range tx.state.receipts {
		if existing.OrderFormID == rc.OrderFormID {
			return 0, ErrFormAlreadyReceived
		}
	}
	rc.ID = tx.next()
	tx.state.receipts[rc.ID] = rc
	return rc.ID, nil
}

func (tx *memoryTx) InsertLine(_ context.Context, line Line) (int64, error) {
	line.ID = tx.next()
	tx.state.lines = append(tx.state.lines, line)
	return line.ID, nil
}

func (tx *memoryTx) InsertBatch(_ context.Context, batch ledger.Batch) (int64, error) {
	batch.ID = tx.next()
	tx.state.batches[batch.ID] = batch
	return batch.ID, nil
}

func (tx *memoryTx) CountBatchesForProduct(_ context.Context, productID int64) (int, error) {
	count := 0
	for _, b := range tx.state.batches {
		if b.ProductID == productID {
			count++
		}
	}
	return count, nil
}

func (tx *memoryTx) BatchNumberExists(_ context.Context, number string) (bool, error) {
	for _, b := range tx.state.batches {
		if b.BatchNumber == number {
			return true, nil
		}
	}
	return false, nil
}

func (tx *memoryTx) CompleteForm(_ context.Context, formID int64) (bool, error) {
	form, ok := tx.state.forms[formID]
	if !ok || form.Status != "PENDING" {
		return false, nil
	}
	form.Status = "COMPLETED"
	tx.state.forms[formID] = form
	return true, nil
}

func (tx *memoryTx) GetProductInputPrice(_ context.Context, productID int64) (decimal.Decimal, error) {
	price, ok := tx.state.products[productID]
	if !ok {
		return decimal.Zero, ErrLineMismatch
	}
	return price, nil
}

func (tx *memoryTx) UpdateProductInputPrice(_ context.Context, productID int64, price decimal.Decimal) error {
	tx.state.products[productID] = price
	return nil
}

func (tx *memoryTx) InsertPriceHistory(_ context.Context, change PriceChange) error {
	tx.state.history = append(tx.state.history, change)
	return nil
}

func price(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func seedForm(repo *memoryRepo, formID int64, lines ...FormLine) {
	repo.state.forms[formID] = PendingForm{ID: formID, SupplierID: 3, Status: "PENDING", Lines: lines}
	for _, l := range lines {
		if _, ok := repo.state.products[l.ProductID]; !ok {
			repo.state.products[l.ProductID] = l.InputPrice
		}
	}
}

func validLine(productID int64, qty float64, p int64) SubmitLine {
	mfg := time.Now().AddDate(0, 0, -10)
	return SubmitLine{
		ProductID:         productID,
		Quantity:          qty,
		InputPrice:        price(p),
		DateOfManufacture: mfg,
		ExpiryDate:        mfg.AddDate(1, 0, 0),
	}
}

func TestSubmitHappyPath(t *testing.T) {
	repo := newMemoryRepo()
	seedForm(repo, 10,
		FormLine{ProductID: 1, UnitID: 2, Quantity: 5, InputPrice: price(100)},
		FormLine{ProductID: 2, UnitID: 2, Quantity: 3, InputPrice: price(200)},
	)
	svc := NewService(repo, nil, nil)

	rc, err := svc.Submit(context.Background(), SubmitInput{
		OrderFormID: 10,
		UserID:      7,
		UserName:    "alice",
		Lines:       []SubmitLine{validLine(1, 5, 100), validLine(2, 3, 200)},
	})
	require.NoError(t, err)
	require.Len(t, rc.Lines, 2)
	require.True(t, rc.Total.Equal(price(1100)), "total = 5*100 + 3*200")
	require.Equal(t, "COMPLETED", repo.state.forms[10].Status)
	require.Len(t, repo.state.batches, 2)
	require.Equal(t, "LOT-1-001", rc.Lines[0].BatchNumber)
	require.Empty(t, repo.state.history, "unchanged prices record no history")

	batch := repo.state.batches[rc.Lines[0].BatchID]
	require.Equal(t, float64(5), batch.InputQuantity)
	require.Equal(t, float64(0), batch.OutputQuantity)
	require.Equal(t, int64(2), batch.UnitID, "unit comes from the form line")
}

func TestSubmitRequiresActor(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil, nil)
	_, err := svc.Submit(context.Background(), SubmitInput{
		OrderFormID: 10,
		Lines:       []SubmitLine{validLine(1, 5, 100)},
	})
	require.ErrorIs(t, err, shared.ErrUnauthorized)
}

func TestSubmitDateRules(t *testing.T) {
	repo := newMemoryRepo()
	seedForm(repo, 10, FormLine{ProductID: 1, UnitID: 2, Quantity: 5, InputPrice: price(100)})
	svc := NewService(repo, nil, nil)

	today := validLine(1, 5, 100)
	today.DateOfManufacture = time.Now()
	_, err := svc.Submit(context.Background(), SubmitInput{
		OrderFormID: 10, UserID: 7, UserName: "alice",
		Lines: []SubmitLine{today},
	})
	require.ErrorIs(t, err, ledger.ErrBadDates, "manufactured today is rejected")

	flat := validLine(1, 5, 100)
	flat.ExpiryDate = flat.DateOfManufacture
	_, err = svc.Submit(context.Background(), SubmitInput{
		OrderFormID: 10, UserID: 7, UserName: "alice",
		Lines: []SubmitLine{flat},
	})
	require.ErrorIs(t, err, ledger.ErrBadDates, "expiry must be strictly after manufacture")

	require.Equal(t, "PENDING", repo.state.forms[10].Status)
	require.Empty(t, repo.state.batches)
}

func TestSubmitLineMinimums(t *testing.T) {
	repo := newMemoryRepo()
	seedForm(repo, 10, FormLine{ProductID: 1, UnitID: 2, Quantity: 5, InputPrice: price(100)})
	svc := NewService(repo, nil, nil)

	small := validLine(1, 0.5, 100)
	_, err := svc.Submit(context.Background(), SubmitInput{
		OrderFormID: 10, UserID: 7, UserName: "alice",
		Lines: []SubmitLine{small},
	})
	require.ErrorIs(t, err, ErrBadLine)

	free := validLine(1, 5, 0)
	_, err = svc.Submit(context.Background(), SubmitInput{
		OrderFormID: 10, UserID: 7, UserName: "alice",
		Lines: []SubmitLine{free},
	})
	require.ErrorIs(t, err, ErrBadLine)
}

func TestSubmitSecondReceiptRejected(t *testing.T) {
	repo := newMemoryRepo()
	seedForm(repo, 10, FormLine{ProductID: 1, UnitID: 2, Quantity: 5, InputPrice: price(100)})
	svc := NewService(repo, nil, nil)

	input := SubmitInput{
		OrderFormID: 10, UserID: 7, UserName: "alice",
		Lines: []SubmitLine{validLine(1, 5, 100)},
	}
	_, err := svc.Submit(context.Background(), input)
	require.NoError(t, err)

	_, err = svc.Submit(context.Background(), input)
	require.ErrorIs(t, err, ErrFormNotPending)
	require.Len(t, repo.state.batches, 1, "failed resubmission creates no batches")
}

func TestSubmitLineMismatch(t *testing.T) {
	repo := newMemoryRepo()
	seedForm(repo, 10, FormLine{ProductID: 1, UnitID: 2, Quantity: 5, InputPrice: price(100)})
	svc := NewService(repo, nil, nil)

	_, err := svc.Submit(context.Background(), SubmitInput{
		OrderFormID: 10, UserID: 7, UserName: "alice",
		Lines: []SubmitLine{validLine(99, 5, 100)},
	})
	require.ErrorIs(t, err, ErrLineMismatch)
	require.Empty(t, repo.state.receipts)
}

func TestSubmitDuplicateLineRejected(t *testing.T) {
	repo := newMemoryRepo()
	seedForm(repo, 10,
		FormLine{ProductID: 1, UnitID: 2, Quantity: 5, InputPrice: price(100)},
		FormLine{ProductID: 2, UnitID: 2, Quantity: 3, InputPrice: price(200)},
	)
	svc := NewService(repo, nil, nil)

	// Two lines for product 1 pass the length check against a two-line
	// form but would leave product 2 unreceived.
	_, err := svc.Submit(context.Background(), SubmitInput{
		OrderFormID: 10, UserID: 7, UserName: "alice",
		Lines: []SubmitLine{validLine(1, 5, 100), validLine(1, 5, 100)},
	})
	require.ErrorIs(t, err, ErrLineMismatch)
	require.Empty(t, repo.state.receipts)
	require.Empty(t, repo.state.batches)
	require.Equal(t, "PENDING", repo.state.forms[10].Status)
}

func TestSubmitCallerBatchNumber(t *testing.T) {
	repo := newMemoryRepo()
	seedForm(repo, 10,
		FormLine{ProductID: 1, UnitID: 2, Quantity: 10, InputPrice: price(1000)},
		FormLine{ProductID: 2, UnitID: 2, Quantity: 3, InputPrice: price(200)},
	)
	svc := NewService(repo, nil, nil)

	scanned := validLine(1, 10, 1000)
	scanned.BatchNumber = "LOT-P-001"
	rc, err := svc.Submit(context.Background(), SubmitInput{
		OrderFormID: 10, UserID: 7, UserName: "alice",
		Lines: []SubmitLine{scanned, validLine(2, 3, 200)},
	})
	require.NoError(t, err)
	require.Equal(t, "LOT-P-001", rc.Lines[0].BatchNumber, "caller-provided number wins")
	require.Equal(t, "LOT-2-001", rc.Lines[1].BatchNumber, "blank number is generated")
}

func TestSubmitDuplicateBatchNumberRejected(t *testing.T) {
	repo := newMemoryRepo()
	repo.state.batches[99] = ledger.Batch{ID: 99, ProductID: 5, BatchNumber: "LOT-P-001"}
	seedForm(repo, 10, FormLine{ProductID: 1, UnitID: 2, Quantity: 5, InputPrice: price(100)})
	svc := NewService(repo, nil, nil)

	taken := validLine(1, 5, 100)
	taken.BatchNumber = "LOT-P-001"
	_, err := svc.Submit(context.Background(), SubmitInput{
		OrderFormID: 10, UserID: 7, UserName: "alice",
		Lines: []SubmitLine{taken},
	})
	require.ErrorIs(t, err, ledger.ErrDuplicateBatchNumber)
	require.Equal(t, "PENDING", repo.state.forms[10].Status)
}

func TestSubmitRecordsPriceChange(t *testing.T) {
	repo := newMemoryRepo()
	seedForm(repo, 10, FormLine{ProductID: 1, UnitID: 2, Quantity: 5, InputPrice: price(100)})
	svc := NewService(repo, nil, nil)

	_, err := svc.Submit(context.Background(), SubmitInput{
		OrderFormID: 10, UserID: 7, UserName: "alice",
		Lines: []SubmitLine{validLine(1, 5, 120)},
	})
	require.NoError(t, err)
	require.Len(t, repo.state.history, 1)
	require.True(t, repo.state.history[0].OldPrice.Equal(price(100)))
	require.True(t, repo.state.history[0].NewPrice.Equal(price(120)))
	require.True(t, repo.state.products[1].Equal(price(120)), "catalog cost follows the received price")
}
