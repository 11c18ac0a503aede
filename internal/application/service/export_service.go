package service

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/garyjia/expense-desk/internal/application/port"
	"github.com/garyjia/expense-desk/internal/domain/entity"
)

// ExportSheet is the worksheet name used for the expense export
const ExportSheet = "Expenses"

var exportHeaders = []string{
	"ID", "Submitted At", "Status", "Organization", "Event", "Description", "Vendor",
	"Category", "Amount", "Submitted By", "Date", "Processed At", "Processed By",
	"Accounting Ref", "Receipt File",
}

// ExportService renders stored expenses as a spreadsheet
type ExportService interface {
	// WriteWorkbook writes an .xlsx workbook with one row per expense, in list order
	WriteWorkbook(ctx context.Context, w io.Writer) (int, error)
}

type exportServiceImpl struct {
	store  port.ExpenseStore
	logger Logger
}

// NewExportService creates a new ExportService
func NewExportService(store port.ExpenseStore, logger Logger) ExportService {
	return &exportServiceImpl{store: store, logger: logger}
}

// WriteWorkbook returns the number of expense rows written
func (s *exportServiceImpl) WriteWorkbook(ctx context.Context, w io.Writer) (int, error) {
	expenses, err := s.store.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("list expenses: %w", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", ExportSheet); err != nil {
		return 0, fmt.Errorf("failed to rename sheet: %w", err)
	}

	header := make([]interface{}, len(exportHeaders))
	for i, h := range exportHeaders {
		header[i] = h
	}
	if err := f.SetSheetRow(ExportSheet, "A1", &header); err != nil {
		return 0, fmt.Errorf("failed to write header: %w", err)
	}

	for i, e := range expenses {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return 0, fmt.Errorf("failed to resolve cell: %w", err)
		}
		row := exportRow(e)
		if err := f.SetSheetRow(ExportSheet, cell, &row); err != nil {
			return 0, fmt.Errorf("failed to write row %d: %w", i+2, err)
		}
	}

	if err := f.SetPanes(ExportSheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return 0, fmt.Errorf("failed to freeze header: %w", err)
	}

	if _, err := f.WriteTo(w); err != nil {
		return 0, fmt.Errorf("failed to write workbook: %w", err)
	}

	s.logger.Info("Expenses exported", "rows", len(expenses))
	return len(expenses), nil
}

func exportRow(e *entity.Expense) []interface{} {
	processedAt := ""
	if e.ProcessedDate != nil {
		processedAt = e.ProcessedDate.UTC().Format(time.RFC3339)
	}
	return []interface{}{
		e.ID,
		e.SubmissionDate.UTC().Format(time.RFC3339),
		e.Status,
		e.Organization,
		e.Event,
		e.Description,
		e.Vendor,
		e.Category,
		amountCell(e.Amount),
		e.SubmittedBy,
		e.Date,
		processedAt,
		e.ProcessedBy,
		e.AccountingRef,
		e.ReceiptFile,
	}
}

// amountCell keeps the cell numeric when an amount is present
func amountCell(d *decimal.Decimal) interface{} {
	if d == nil {
		return ""
	}
	f, _ := d.Float64()
	return f
}
