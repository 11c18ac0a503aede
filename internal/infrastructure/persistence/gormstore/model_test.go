package gormstore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/garyjia/expense-desk/internal/infrastructure/persistence/storetest"
)

func TestModelRoundTrip(t *testing.T) {
	e := storetest.NewExpense("Coffee", storetest.BaseTime)
	e.ID = "6f1c2e0a-6a43-4c8e-9b8e-0b8f5a1d2c3e"
	processed := storetest.BaseTime.Add(time.Hour)
	e.ProcessedDate = &processed
	e.ProcessedBy = "Alice"

	storetest.AssertSameExpense(t, e, toModel(e).toEntity())
}

func TestToModel_NilSlicesAndDecimals(t *testing.T) {
	e := storetest.NewExpense("Bare", storetest.BaseTime)
	e.LineItems = nil
	e.Amount = nil

	m := toModel(e)
	assert.NotNil(t, m.LineItems)
	assert.Empty(t, m.LineItems)
	assert.False(t, m.Amount.Valid)

	back := m.toEntity()
	assert.Nil(t, back.LineItems)
	assert.Nil(t, back.Amount)
	assert.Equal(t, "expenses", expenseModel{}.TableName())
}
