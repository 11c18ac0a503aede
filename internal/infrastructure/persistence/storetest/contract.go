// Package storetest holds the behavioural contract every port.ExpenseStore must satisfy.
package storetest

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/expense-desk/internal/application/port"
	"github.com/garyjia/expense-desk/internal/domain/entity"
)

// Factory returns an empty store. It is called once per subtest.
type Factory func(t *testing.T) port.ExpenseStore

// RunContract exercises insert, list, get, update, delete and ping against stores built by newStore.
func RunContract(t *testing.T, newStore Factory) {
	t.Helper()

	t.Run("InsertAndGet", func(t *testing.T) { testInsertAndGet(t, newStore(t)) })
	t.Run("InsertAssignsUniqueIDs", func(t *testing.T) { testUniqueIDs(t, newStore(t)) })
	t.Run("ListOrder", func(t *testing.T) { testListOrder(t, newStore(t)) })
	t.Run("ListTieBreak", func(t *testing.T) { testListTieBreak(t, newStore(t)) })
	t.Run("ListEmpty", func(t *testing.T) { testListEmpty(t, newStore(t)) })
	t.Run("ListIsSnapshot", func(t *testing.T) { testListIsSnapshot(t, newStore(t)) })
	t.Run("GetMissing", func(t *testing.T) { testGetMissing(t, newStore(t)) })
	t.Run("UpdatePartial", func(t *testing.T) { testUpdatePartial(t, newStore(t)) })
	t.Run("UpdateMissing", func(t *testing.T) { testUpdateMissing(t, newStore(t)) })
	t.Run("Delete", func(t *testing.T) { testDelete(t, newStore(t)) })
	t.Run("Ping", func(t *testing.T) { require.NoError(t, newStore(t).Ping(context.Background())) })
}

// BaseTime is millisecond aligned so every backend round-trips it exactly.
var BaseTime = time.Date(2024, 3, 15, 9, 30, 0, 0, time.UTC)

func dec(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

// NewExpense builds a fully populated submitted expense
func NewExpense(description string, submitted time.Time) *entity.Expense {
	return &entity.Expense{
		Organization:  "ACME",
		Event:         "Offsite",
		Description:   description,
		Vendor:        "Corner Cafe",
		Category:      "Meals",
		SubmittedBy:   "Alice",
		Notes:         "team",
		Amount:        dec("12.50"),
		TotalAdvanced: dec("100"),
		TotalExpenses: dec("12.5"),
		CashToReturn:  dec("87.5"),
		Date:          "2024-03-15",
		DateRange:     "2024-03-14 to 2024-03-15",
		ReportDate:    "2024-03-16",
		ReceiptFile:   "1710495000000-abcdef12.png",
		LineItems: []entity.LineItem{
			{Description: "Latte", Category: "Meals", Date: "2024-03-15", Amount: dec("4.5")},
			{Description: "Bagel", Amount: dec("8")},
		},
		Status:         entity.StatusSubmitted,
		SubmissionDate: submitted,
	}
}

// AssertSameExpense compares field by field, treating decimals and times by value
func AssertSameExpense(t *testing.T, want, got *entity.Expense) {
	t.Helper()
	require.NotNil(t, got)

	assert.Equal(t, want.ID, got.ID)
	assert.Equal(t, want.Organization, got.Organization)
	assert.Equal(t, want.Event, got.Event)
	assert.Equal(t, want.Description, got.Description)
	assert.Equal(t, want.Vendor, got.Vendor)
	assert.Equal(t, want.Category, got.Category)
	assert.Equal(t, want.SubmittedBy, got.SubmittedBy)
	assert.Equal(t, want.Notes, got.Notes)
	assertDecimal(t, want.Amount, got.Amount, "amount")
	assertDecimal(t, want.TotalAdvanced, got.TotalAdvanced, "totalAdvanced")
	assertDecimal(t, want.TotalExpenses, got.TotalExpenses, "totalExpenses")
	assertDecimal(t, want.CashToReturn, got.CashToReturn, "cashToReturn")
	assert.Equal(t, want.Date, got.Date)
	assert.Equal(t, want.DateRange, got.DateRange)
	assert.Equal(t, want.ReportDate, got.ReportDate)
	assert.Equal(t, want.ReceiptFile, got.ReceiptFile)
	assert.Equal(t, want.Status, got.Status)
	assert.True(t, want.SubmissionDate.Equal(got.SubmissionDate),
		"submissionDate: want %s got %s", want.SubmissionDate, got.SubmissionDate)
	assert.Equal(t, want.ProcessedBy, got.ProcessedBy)
	assert.Equal(t, want.AccountingRef, got.AccountingRef)
	if want.ProcessedDate == nil {
		assert.Nil(t, got.ProcessedDate)
	} else if assert.NotNil(t, got.ProcessedDate) {
		assert.True(t, want.ProcessedDate.Equal(*got.ProcessedDate))
	}

	require.Len(t, got.LineItems, len(want.LineItems))
	for i := range want.LineItems {
		assert.Equal(t, want.LineItems[i].Description, got.LineItems[i].Description)
		assert.Equal(t, want.LineItems[i].Category, got.LineItems[i].Category)
		assert.Equal(t, want.LineItems[i].Date, got.LineItems[i].Date)
		assertDecimal(t, want.LineItems[i].Amount, got.LineItems[i].Amount, "lineItems.amount")
	}
}

func assertDecimal(t *testing.T, want, got *decimal.Decimal, field string) {
	t.Helper()
	if want == nil {
		assert.Nil(t, got, field)
		return
	}
	if assert.NotNil(t, got, field) {
		assert.True(t, want.Equal(*got), "%s: want %s got %s", field, want, got)
	}
}

func testInsertAndGet(t *testing.T, store port.ExpenseStore) {
	ctx := context.Background()
	expense := NewExpense("Coffee", BaseTime)

	id, err := store.Insert(ctx, expense)
	require.NoError(t, err)
	require.NotEmpty(t, id)
	assert.Equal(t, id, expense.ID)

	got, err := store.GetByID(ctx, id)
	require.NoError(t, err)
	AssertSameExpense(t, expense, got)

	sparse := &entity.Expense{Description: "Bare", Status: entity.StatusSubmitted, SubmissionDate: BaseTime}
	sparseID, err := store.Insert(ctx, sparse)
	require.NoError(t, err)

	got, err = store.GetByID(ctx, sparseID)
	require.NoError(t, err)
	AssertSameExpense(t, sparse, got)
}

func testUniqueIDs(t *testing.T, store port.ExpenseStore) {
	ctx := context.Background()
	seen := make(map[string]bool)
	for i := 0; i < 20; i++ {
		id, err := store.Insert(ctx, NewExpense("Taxi", BaseTime.Add(time.Duration(i)*time.Second)))
		require.NoError(t, err)
		assert.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
}

func testListOrder(t *testing.T, store port.ExpenseStore) {
	ctx := context.Background()

	// Inserted out of chronological order on purpose.
	offsets := []time.Duration{2 * time.Hour, 0, time.Hour}
	ids := make(map[time.Duration]string)
	for _, off := range offsets {
		id, err := store.Insert(ctx, NewExpense(off.String(), BaseTime.Add(off)))
		require.NoError(t, err)
		ids[off] = id
	}

	list, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, ids[2*time.Hour], list[0].ID)
	assert.Equal(t, ids[time.Hour], list[1].ID)
	assert.Equal(t, ids[0], list[2].ID)
}

func testListTieBreak(t *testing.T, store port.ExpenseStore) {
	ctx := context.Background()

	var ids []string
	for i := 0; i < 3; i++ {
		id, err := store.Insert(ctx, NewExpense("same instant", BaseTime))
		require.NoError(t, err)
		ids = append(ids, id)
	}

	list, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, []string{ids[2], ids[1], ids[0]}, []string{list[0].ID, list[1].ID, list[2].ID})
}

func testListEmpty(t *testing.T, store port.ExpenseStore) {
	list, err := store.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, list)
}

func testListIsSnapshot(t *testing.T, store port.ExpenseStore) {
	ctx := context.Background()
	id, err := store.Insert(ctx, NewExpense("Coffee", BaseTime))
	require.NoError(t, err)

	list, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	list[0].Description = "mutated"
	list[0].Amount = dec("999")

	_, err = store.Insert(ctx, NewExpense("Later", BaseTime.Add(time.Minute)))
	require.NoError(t, err)
	assert.Len(t, list, 1)

	got, err := store.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Coffee", got.Description)
	assert.True(t, got.Amount.Equal(decimal.RequireFromString("12.5")))
}

func testGetMissing(t *testing.T, store port.ExpenseStore) {
	ctx := context.Background()
	for _, id := range []string{"", "does-not-exist", "0123456789abcdef01234567", "00000000-0000-0000-0000-000000000000"} {
		_, err := store.GetByID(ctx, id)
		assert.ErrorIs(t, err, entity.ErrNotFound, "id %q", id)
	}
}

func testUpdatePartial(t *testing.T, store port.ExpenseStore) {
	ctx := context.Background()
	expense := NewExpense("Coffee", BaseTime)
	id, err := store.Insert(ctx, expense)
	require.NoError(t, err)

	processed := entity.StatusProcessed
	processedAt := BaseTime.Add(24 * time.Hour)
	by := "Bob"
	updated, err := store.UpdateByID(ctx, id, entity.ExpenseUpdate{
		Status:        &processed,
		ProcessedDate: &processedAt,
		ProcessedBy:   &by,
	})
	require.NoError(t, err)

	want := expense.Clone()
	want.Status = processed
	want.ProcessedDate = &processedAt
	want.ProcessedBy = by
	AssertSameExpense(t, want, updated)

	// A second update only touches the named field.
	ref := "ACC-1"
	updated, err = store.UpdateByID(ctx, id, entity.ExpenseUpdate{AccountingRef: &ref})
	require.NoError(t, err)
	want.AccountingRef = ref
	AssertSameExpense(t, want, updated)

	got, err := store.GetByID(ctx, id)
	require.NoError(t, err)
	AssertSameExpense(t, want, got)
}

func testUpdateMissing(t *testing.T, store port.ExpenseStore) {
	processed := entity.StatusProcessed
	_, err := store.UpdateByID(context.Background(), "does-not-exist", entity.ExpenseUpdate{Status: &processed})
	assert.ErrorIs(t, err, entity.ErrNotFound)
}

func testDelete(t *testing.T, store port.ExpenseStore) {
	ctx := context.Background()
	keep, err := store.Insert(ctx, NewExpense("Keep", BaseTime))
	require.NoError(t, err)
	drop, err := store.Insert(ctx, NewExpense("Drop", BaseTime.Add(time.Minute)))
	require.NoError(t, err)

	require.NoError(t, store.DeleteByID(ctx, drop))

	_, err = store.GetByID(ctx, drop)
	assert.ErrorIs(t, err, entity.ErrNotFound)
	assert.ErrorIs(t, store.DeleteByID(ctx, drop), entity.ErrNotFound)

	list, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, keep, list[0].ID)
}
