package gormstore

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/garyjia/expense-desk/internal/domain/entity"
)

// expenseModel maps the expenses table created by the shared Postgres migrations
type expenseModel struct {
	ID  string `gorm:"column:id;type:uuid;primaryKey"`
	Seq int64  `gorm:"column:seq;->"`

	Organization string `gorm:"column:organization"`
	Event        string `gorm:"column:event"`
	Description  string `gorm:"column:description"`
	Vendor       string `gorm:"column:vendor"`
	Category     string `gorm:"column:category"`
	SubmittedBy  string `gorm:"column:submitted_by"`
	Notes        string `gorm:"column:notes"`

	Amount        decimal.NullDecimal `gorm:"column:amount;type:numeric"`
	TotalAdvanced decimal.NullDecimal `gorm:"column:total_advanced;type:numeric"`
	TotalExpenses decimal.NullDecimal `gorm:"column:total_expenses;type:numeric"`
	CashToReturn  decimal.NullDecimal `gorm:"column:cash_to_return;type:numeric"`

	Date        string            `gorm:"column:date"`
	DateRange   string            `gorm:"column:date_range"`
	ReportDate  string            `gorm:"column:report_date"`
	ReceiptFile string            `gorm:"column:receipt_file"`
	LineItems   []entity.LineItem `gorm:"column:line_items;type:jsonb;serializer:json;not null"`

	Status         string     `gorm:"column:status"`
	SubmissionDate time.Time  `gorm:"column:submission_date"`
	ProcessedDate  *time.Time `gorm:"column:processed_date"`
	ProcessedBy    string     `gorm:"column:processed_by"`
	AccountingRef  string     `gorm:"column:accounting_ref"`
}

func (expenseModel) TableName() string {
	return "expenses"
}

func toModel(e *entity.Expense) *expenseModel {
	items := e.LineItems
	if items == nil {
		items = []entity.LineItem{}
	}
	m := &expenseModel{
		ID:             e.ID,
		Organization:   e.Organization,
		Event:          e.Event,
		Description:    e.Description,
		Vendor:         e.Vendor,
		Category:       e.Category,
		SubmittedBy:    e.SubmittedBy,
		Notes:          e.Notes,
		Amount:         nullDecimal(e.Amount),
		TotalAdvanced:  nullDecimal(e.TotalAdvanced),
		TotalExpenses:  nullDecimal(e.TotalExpenses),
		CashToReturn:   nullDecimal(e.CashToReturn),
		Date:           e.Date,
		DateRange:      e.DateRange,
		ReportDate:     e.ReportDate,
		ReceiptFile:    e.ReceiptFile,
		LineItems:      items,
		Status:         e.Status,
		SubmissionDate: e.SubmissionDate.UTC(),
		ProcessedBy:    e.ProcessedBy,
		AccountingRef:  e.AccountingRef,
	}
	if e.ProcessedDate != nil {
		t := e.ProcessedDate.UTC()
		m.ProcessedDate = &t
	}
	return m
}

func (m *expenseModel) toEntity() *entity.Expense {
	e := &entity.Expense{
		ID:             m.ID,
		Organization:   m.Organization,
		Event:          m.Event,
		Description:    m.Description,
		Vendor:         m.Vendor,
		Category:       m.Category,
		SubmittedBy:    m.SubmittedBy,
		Notes:          m.Notes,
		Amount:         decimalPtr(m.Amount),
		TotalAdvanced:  decimalPtr(m.TotalAdvanced),
		TotalExpenses:  decimalPtr(m.TotalExpenses),
		CashToReturn:   decimalPtr(m.CashToReturn),
		Date:           m.Date,
		DateRange:      m.DateRange,
		ReportDate:     m.ReportDate,
		ReceiptFile:    m.ReceiptFile,
		Status:         m.Status,
		SubmissionDate: m.SubmissionDate.UTC(),
		ProcessedBy:    m.ProcessedBy,
		AccountingRef:  m.AccountingRef,
	}
	if len(m.LineItems) > 0 {
		e.LineItems = m.LineItems
	}
	if m.ProcessedDate != nil {
		t := m.ProcessedDate.UTC()
		e.ProcessedDate = &t
	}
	return e
}

func nullDecimal(d *decimal.Decimal) decimal.NullDecimal {
	if d == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(*d)
}

func decimalPtr(d decimal.NullDecimal) *decimal.Decimal {
	if !d.Valid {
		return nil
	}
	v := d.Decimal
	return &v
}
