package mongostore

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/garyjia/expense-desk/internal/domain/entity"
)

type expenseDocument struct {
	ID primitive.ObjectID `bson:"_id"`

	Organization string `bson:"organization,omitempty"`
	Event        string `bson:"event,omitempty"`
	Description  string `bson:"description,omitempty"`
	Vendor       string `bson:"vendor,omitempty"`
	Category     string `bson:"category,omitempty"`
	SubmittedBy  string `bson:"submittedBy,omitempty"`
	Notes        string `bson:"notes,omitempty"`

	Amount        *primitive.Decimal128 `bson:"amount,omitempty"`
	TotalAdvanced *primitive.Decimal128 `bson:"totalAdvanced,omitempty"`
	TotalExpenses *primitive.Decimal128 `bson:"totalExpenses,omitempty"`
	CashToReturn  *primitive.Decimal128 `bson:"cashToReturn,omitempty"`

	Date        string             `bson:"date,omitempty"`
	DateRange   string             `bson:"dateRange,omitempty"`
	ReportDate  string             `bson:"reportDate,omitempty"`
	ReceiptFile string             `bson:"receiptFile,omitempty"`
	LineItems   []lineItemDocument `bson:"lineItems,omitempty"`

	Status         string     `bson:"status"`
	SubmissionDate time.Time  `bson:"submissionDate"`
	ProcessedDate  *time.Time `bson:"processedDate,omitempty"`
	ProcessedBy    string     `bson:"processedBy,omitempty"`
	AccountingRef  string     `bson:"accountingRef,omitempty"`
}

type lineItemDocument struct {
	Description string                `bson:"description,omitempty"`
	Category    string                `bson:"category,omitempty"`
	Date        string                `bson:"date,omitempty"`
	Amount      *primitive.Decimal128 `bson:"amount,omitempty"`
}

func toDocument(e *entity.Expense, id primitive.ObjectID) (*expenseDocument, error) {
	doc := &expenseDocument{
		ID:             id,
		Organization:   e.Organization,
		Event:          e.Event,
		Description:    e.Description,
		Vendor:         e.Vendor,
		Category:       e.Category,
		SubmittedBy:    e.SubmittedBy,
		Notes:          e.Notes,
		Date:           e.Date,
		DateRange:      e.DateRange,
		ReportDate:     e.ReportDate,
		ReceiptFile:    e.ReceiptFile,
		Status:         e.Status,
		SubmissionDate: e.SubmissionDate.UTC(),
		ProcessedBy:    e.ProcessedBy,
		AccountingRef:  e.AccountingRef,
	}
	if e.ProcessedDate != nil {
		t := e.ProcessedDate.UTC()
		doc.ProcessedDate = &t
	}

	var err error
	for _, f := range []struct {
		src *decimal.Decimal
		dst **primitive.Decimal128
	}{
		{e.Amount, &doc.Amount},
		{e.TotalAdvanced, &doc.TotalAdvanced},
		{e.TotalExpenses, &doc.TotalExpenses},
		{e.CashToReturn, &doc.CashToReturn},
	} {
		if *f.dst, err = toDecimal128(f.src); err != nil {
			return nil, err
		}
	}

	for _, item := range e.LineItems {
		amount, err := toDecimal128(item.Amount)
		if err != nil {
			return nil, err
		}
		doc.LineItems = append(doc.LineItems, lineItemDocument{
			Description: item.Description,
			Category:    item.Category,
			Date:        item.Date,
			Amount:      amount,
		})
	}
	return doc, nil
}

func (d *expenseDocument) toEntity() (*entity.Expense, error) {
	e := &entity.Expense{
		ID:             d.ID.Hex(),
		Organization:   d.Organization,
		Event:          d.Event,
		Description:    d.Description,
		Vendor:         d.Vendor,
		Category:       d.Category,
		SubmittedBy:    d.SubmittedBy,
		Notes:          d.Notes,
		Date:           d.Date,
		DateRange:      d.DateRange,
		ReportDate:     d.ReportDate,
		ReceiptFile:    d.ReceiptFile,
		Status:         d.Status,
		SubmissionDate: d.SubmissionDate.UTC(),
		ProcessedBy:    d.ProcessedBy,
		AccountingRef:  d.AccountingRef,
	}
	if d.ProcessedDate != nil {
		t := d.ProcessedDate.UTC()
		e.ProcessedDate = &t
	}

	var err error
	for _, f := range []struct {
		src *primitive.Decimal128
		dst **decimal.Decimal
	}{
		{d.Amount, &e.Amount},
		{d.TotalAdvanced, &e.TotalAdvanced},
		{d.TotalExpenses, &e.TotalExpenses},
		{d.CashToReturn, &e.CashToReturn},
	} {
		if *f.dst, err = fromDecimal128(f.src); err != nil {
			return nil, err
		}
	}

	for _, item := range d.LineItems {
		amount, err := fromDecimal128(item.Amount)
		if err != nil {
			return nil, err
		}
		e.LineItems = append(e.LineItems, entity.LineItem{
			Description: item.Description,
			Category:    item.Category,
			Date:        item.Date,
			Amount:      amount,
		})
	}
	return e, nil
}

func toDecimal128(d *decimal.Decimal) (*primitive.Decimal128, error) {
	if d == nil {
		return nil, nil
	}
	v, err := primitive.ParseDecimal128(d.StringFixed(scale(d)))
	if err != nil {
		return nil, fmt.Errorf("failed to convert %s to decimal128: %w", d, err)
	}
	return &v, nil
}

func fromDecimal128(v *primitive.Decimal128) (*decimal.Decimal, error) {
	if v == nil {
		return nil, nil
	}
	d, err := decimal.NewFromString(v.String())
	if err != nil {
		return nil, fmt.Errorf("failed to parse decimal128 %s: %w", v, err)
	}
	return &d, nil
}

// scale keeps the fractional digits the amount was written with, so 12.50 stays 12.50
func scale(d *decimal.Decimal) int32 {
	if exp := d.Exponent(); exp < 0 {
		return -exp
	}
	return 0
}
