package http

import (
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/garyjia/expense-desk/internal/application/service"
	"github.com/garyjia/expense-desk/internal/domain/entity"
)

const receiptField = "receipt"

// submitRequest is the JSON body of POST /expenses/submit. Amounts accept
// both JSON numbers and numeric strings.
type submitRequest struct {
	Organization string `json:"organization"`
	Event        string `json:"event"`
	Description  string `json:"description"`
	Vendor       string `json:"vendor"`
	Category     string `json:"category"`
	SubmittedBy  string `json:"submittedBy"`
	Notes        string `json:"notes"`

	Amount        *decimal.Decimal `json:"amount"`
	TotalAdvanced *decimal.Decimal `json:"totalAdvanced"`
	TotalExpenses *decimal.Decimal `json:"totalExpenses"`
	CashToReturn  *decimal.Decimal `json:"cashToReturn"`

	Date       string `json:"date"`
	DateRange  string `json:"dateRange"`
	ReportDate string `json:"reportDate"`

	LineItems []entity.LineItem `json:"lineItems"`
}

func (r submitRequest) toInput() service.SubmitInput {
	return service.SubmitInput{
		Organization:  r.Organization,
		Event:         r.Event,
		Description:   r.Description,
		Vendor:        r.Vendor,
		Category:      r.Category,
		SubmittedBy:   r.SubmittedBy,
		Notes:         r.Notes,
		Amount:        r.Amount,
		TotalAdvanced: r.TotalAdvanced,
		TotalExpenses: r.TotalExpenses,
		CashToReturn:  r.CashToReturn,
		Date:          r.Date,
		DateRange:     r.DateRange,
		ReportDate:    r.ReportDate,
		LineItems:     r.LineItems,
	}
}

// bindSubmission reads a submission from either a JSON or a multipart body.
// The returned cleanup func is always safe to call.
func (h *Handlers) bindSubmission(c *gin.Context) (service.SubmitInput, *service.ReceiptUpload, func(), error) {
	noop := func() {}

	if h.config.MaxUploadBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.config.MaxUploadBytes)
	}

	if c.ContentType() != gin.MIMEMultipartPOSTForm {
		var req submitRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			return service.SubmitInput{}, nil, noop, bodyError(err)
		}
		return req.toInput(), nil, noop, nil
	}

	form, err := c.MultipartForm()
	if err != nil {
		return service.SubmitInput{}, nil, noop, bodyError(err)
	}
	cleanup := func() { _ = form.RemoveAll() }

	input, err := formInput(form)
	if err != nil {
		return service.SubmitInput{}, nil, cleanup, err
	}

	receipt, closeReceipt, err := formReceipt(form)
	if err != nil {
		return service.SubmitInput{}, nil, cleanup, err
	}

	return input, receipt, func() {
		closeReceipt()
		cleanup()
	}, nil
}

func formInput(form *multipart.Form) (service.SubmitInput, error) {
	value := func(key string) string {
		if vs := form.Value[key]; len(vs) > 0 {
			return vs[0]
		}
		return ""
	}

	input := service.SubmitInput{
		Organization: value("organization"),
		Event:        value("event"),
		Description:  value("description"),
		Vendor:       value("vendor"),
		Category:     value("category"),
		SubmittedBy:  value("submittedBy"),
		Notes:        value("notes"),
		Date:         value("date"),
		DateRange:    value("dateRange"),
		ReportDate:   value("reportDate"),
	}

	amounts := []struct {
		key string
		dst **decimal.Decimal
	}{
		{"amount", &input.Amount},
		{"totalAdvanced", &input.TotalAdvanced},
		{"totalExpenses", &input.TotalExpenses},
		{"cashToReturn", &input.CashToReturn},
	}
	var invalid []string
	for _, a := range amounts {
		d, err := parseAmount(value(a.key))
		if err != nil {
			invalid = append(invalid, a.key)
			continue
		}
		*a.dst = d
	}
	if len(invalid) > 0 {
		return service.SubmitInput{}, &entity.ValidationError{Fields: invalid, Reason: "invalid number"}
	}

	if raw := strings.TrimSpace(value("lineItems")); raw != "" {
		if err := json.Unmarshal([]byte(raw), &input.LineItems); err != nil {
			return service.SubmitInput{}, &entity.ValidationError{Fields: []string{"lineItems"}, Reason: "lineItems must be a JSON array"}
		}
	}

	return input, nil
}

func formReceipt(form *multipart.Form) (*service.ReceiptUpload, func(), error) {
	files := form.File[receiptField]
	if len(files) == 0 {
		return nil, func() {}, nil
	}

	header := files[0]
	f, err := header.Open()
	if err != nil {
		return nil, func() {}, err
	}

	return &service.ReceiptUpload{
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Size:        header.Size,
		Content:     f,
	}, func() { _ = f.Close() }, nil
}

// parseAmount treats a blank value as absent
func parseAmount(s string) (*decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// bodyError turns a body decoding failure into a 400
func bodyError(err error) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return &entity.ValidationError{Reason: "request body too large"}
	}
	return &entity.ValidationError{Reason: "invalid request body"}
}
