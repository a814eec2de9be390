package orderform

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type memoryRepo struct {
	forms    map[int64]OrderForm
	lines    map[int64][]Line
	consumed map[int64]bool
	nextID   int64
}

type memoryTx struct {
	repo *memoryRepo
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		forms:    make(map[int64]OrderForm),
		lines:    make(map[int64][]Line),
		consumed: make(map[int64]bool),
	}
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, &memoryTx{repo: r})
}

func (r *memoryRepo) GetForm(ctx context.Context, id int64) (OrderForm, error) {
	form, ok := r.forms[id]
	if !ok {
		return OrderForm{}, ErrFormNotFound
	}
	form.Lines = append([]Line(nil), r.lines[id]...)
	return form, nil
}

func (r *memoryRepo) ListForms(ctx context.Context, filter ListFilter) ([]OrderForm, error) {
	var out []OrderForm
	for id, form := range r.forms {
		if filter.Status != "" && form.Status != filter.Status {
			continue
		}
		if filter.SupplierID != 0 && form.SupplierID != filter.SupplierID {
			continue
		}
		if filter.Unconsumed && r.consumed[id] {
			continue
		}
		form.Lines = append([]Line(nil), r.lines[id]...)
		out = append(out, form)
	}
	return out, nil
}

func (tx *memoryTx) InsertForm(ctx context.Context, form OrderForm) (int64, error) {
	tx.repo.nextID++
	form.ID = tx.repo.nextID
	tx.repo.forms[form.ID] = form
	return form.ID, nil
}

func (tx *memoryTx) InsertLine(ctx context.Context, line Line) (Line, error) {
	tx.repo.nextID++
	line.ID = tx.repo.nextID
	tx.repo.lines[line.OrderFormID] = append(tx.repo.lines[line.OrderFormID], line)
	return line, nil
}

func (tx *memoryTx) DeleteLines(ctx context.Context, formID int64) error {
	delete(tx.repo.lines, formID)
	return nil
}

func (tx *memoryTx) DeletePending(ctx context.Context, id int64) (bool, error) {
	form, ok := tx.repo.forms[id]
	if !ok || form.Status != StatusPending {
		return false, nil
	}
	delete(tx.repo.forms, id)
	delete(tx.repo.lines, id)
	return true, nil
}

func (tx *memoryTx) CompleteForm(ctx context.Context, id int64) (bool, error) {
	form, ok := tx.repo.forms[id]
	if !ok || form.Status != StatusPending {
		return false, nil
	}
	form.Status = StatusCompleted
	tx.repo.forms[id] = form
	return true, nil
}

func (tx *memoryTx) UpdateSupplier(ctx context.Context, id, supplierID int64) error {
	form := tx.repo.forms[id]
	form.SupplierID = supplierID
	tx.repo.forms[id] = form
	return nil
}

func price(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func TestCreateValidation(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)
	ctx := context.Background()

	_, err := svc.Create(ctx, CreateInput{SupplierID: 0, Lines: []LineInput{{ProductID: 1, UnitID: 1, Quantity: 1, InputPrice: price(10)}}})
	require.ErrorIs(t, err, ErrSupplierRequired)

	_, err = svc.Create(ctx, CreateInput{SupplierID: 1})
	require.ErrorIs(t, err, ErrEmptyLines)

	_, err = svc.Create(ctx, CreateInput{SupplierID: 1, Lines: []LineInput{{ProductID: 1, UnitID: 1, Quantity: 0, InputPrice: price(10)}}})
	require.ErrorIs(t, err, ErrBadLine)

	_, err = svc.Create(ctx, CreateInput{SupplierID: 1, Lines: []LineInput{
		{ProductID: 1, UnitID: 1, Quantity: 2, InputPrice: price(10)},
		{ProductID: 1, UnitID: 1, Quantity: 3, InputPrice: price(10)},
	}})
	require.ErrorIs(t, err, ErrDuplicateProduct)
}

func TestCreateAndListPending(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)
	ctx := context.Background()

	form, err := svc.Create(ctx, CreateInput{SupplierID: 1, Lines: []LineInput{{ProductID: 1, UnitID: 1, Quantity: 10, InputPrice: price(1000)}}})
	require.NoError(t, err)
	require.Equal(t, StatusPending, form.Status)
	require.Len(t, form.Lines, 1)

	pending, err := svc.ListPending(ctx, 1)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	// a consumed form drops out of the receipt builder pool
	repo.consumed[form.ID] = true
	pending, err = svc.ListPending(ctx, 1)
	require.NoError(t, err)
	require.Empty(t, pending)
}

func TestMarkCompletedOnce(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)
	ctx := context.Background()

	form, err := svc.Create(ctx, CreateInput{SupplierID: 1, Lines: []LineInput{{ProductID: 1, UnitID: 1, Quantity: 1, InputPrice: price(10)}}})
	require.NoError(t, err)

	require.NoError(t, svc.MarkCompleted(ctx, form.ID, 0))
	err = svc.MarkCompleted(ctx, form.ID, 0)
	require.ErrorIs(t, err, ErrAlreadyCompleted)
}

func TestDeleteOnlyPending(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)
	ctx := context.Background()

	form, err := svc.Create(ctx, CreateInput{SupplierID: 1, Lines: []LineInput{{ProductID: 1, UnitID: 1, Quantity: 1, InputPrice: price(10)}}})
	require.NoError(t, err)
	require.NoError(t, svc.MarkCompleted(ctx, form.ID, 0))

	err = svc.Delete(ctx, form.ID, 0)
	require.ErrorIs(t, err, ErrAlreadyCompleted)

	other, err := svc.Create(ctx, CreateInput{SupplierID: 1, Lines: []LineInput{{ProductID: 2, UnitID: 1, Quantity: 1, InputPrice: price(10)}}})
	require.NoError(t, err)
	require.NoError(t, svc.Delete(ctx, other.ID, 0))

	err = svc.Delete(ctx, other.ID, 0)
	require.ErrorIs(t, err, ErrFormNotFound)
}
