package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

func init() {
	// Amounts go over the wire as JSON numbers, not quoted strings.
	decimal.MarshalJSONWithoutQuotes = true
}

// Expense is a single submitted cash expenditure awaiting or past accounting review.
type Expense struct {
	ID string `json:"id"`

	Organization string `json:"organization,omitempty"`
	Event        string `json:"event,omitempty"`
	Description  string `json:"description,omitempty"`
	Vendor       string `json:"vendor,omitempty"`
	Category     string `json:"category"`
	SubmittedBy  string `json:"submittedBy"`
	Notes        string `json:"notes,omitempty"`

	// Client-supplied, never recomputed.
	Amount        *decimal.Decimal `json:"amount,omitempty"`
	TotalAdvanced *decimal.Decimal `json:"totalAdvanced,omitempty"`
	TotalExpenses *decimal.Decimal `json:"totalExpenses,omitempty"`
	CashToReturn  *decimal.Decimal `json:"cashToReturn,omitempty"`

	Date       string `json:"date"`
	DateRange  string `json:"dateRange,omitempty"`
	ReportDate string `json:"reportDate,omitempty"`

	ReceiptFile string     `json:"receiptFile,omitempty"`
	LineItems   []LineItem `json:"lineItems,omitempty"`

	Status         string    `json:"status"`
	SubmissionDate time.Time `json:"submissionDate"`

	ProcessedDate *time.Time `json:"processedDate,omitempty"`
	ProcessedBy   string     `json:"processedBy,omitempty"`
	AccountingRef string     `json:"accountingRef,omitempty"`
}

// LineItem is an embedded breakdown entry. It is stored with the expense and
// never queried on its own.
type LineItem struct {
	Description string           `json:"description,omitempty"`
	Category    string           `json:"category,omitempty"`
	Date        string           `json:"date,omitempty"`
	Amount      *decimal.Decimal `json:"amount,omitempty"`
}

// ExpenseUpdate carries the fields a partial update may change. Nil fields are left untouched.
type ExpenseUpdate struct {
	Status        *string
	ProcessedDate *time.Time
	ProcessedBy   *string
	AccountingRef *string
}

// IsProcessed reports whether the expense has gone through the processed transition.
func (e *Expense) IsProcessed() bool {
	return e.Status == StatusProcessed
}

// Apply merges the non-nil fields of u into the expense.
func (e *Expense) Apply(u ExpenseUpdate) {
	if u.Status != nil {
		e.Status = *u.Status
	}
	if u.ProcessedDate != nil {
		t := *u.ProcessedDate
		e.ProcessedDate = &t
	}
	if u.ProcessedBy != nil {
		e.ProcessedBy = *u.ProcessedBy
	}
	if u.AccountingRef != nil {
		e.AccountingRef = *u.AccountingRef
	}
}

// Clone returns a deep copy so callers cannot mutate stored state.
func (e *Expense) Clone() *Expense {
	if e == nil {
		return nil
	}
	c := *e
	c.Amount = cloneDecimal(e.Amount)
	c.TotalAdvanced = cloneDecimal(e.TotalAdvanced)
	c.TotalExpenses = cloneDecimal(e.TotalExpenses)
	c.CashToReturn = cloneDecimal(e.CashToReturn)
	if e.ProcessedDate != nil {
		t := *e.ProcessedDate
		c.ProcessedDate = &t
	}
	if e.LineItems != nil {
		c.LineItems = make([]LineItem, len(e.LineItems))
		for i, item := range e.LineItems {
			item.Amount = cloneDecimal(item.Amount)
			c.LineItems[i] = item
		}
	}
	return &c
}

func cloneDecimal(d *decimal.Decimal) *decimal.Decimal {
	if d == nil {
		return nil
	}
	v := *d
	return &v
}
