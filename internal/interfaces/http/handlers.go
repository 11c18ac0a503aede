package http

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/expense-desk/internal/application/service"
	"github.com/garyjia/expense-desk/internal/domain/entity"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Handlers contains all HTTP request handlers
type Handlers struct {
	config         ServerConfig
	expenseService service.ExpenseService
	exportService  service.ExportService
	health         HealthChecker
	logger         Logger
	now            func() time.Time
}

// NewHandlers creates a new Handlers instance
func NewHandlers(
	config ServerConfig,
	expenseService service.ExpenseService,
	exportService service.ExportService,
	health HealthChecker,
	logger Logger,
) *Handlers {
	return &Handlers{
		config:         config,
		expenseService: expenseService,
		exportService:  exportService,
		health:         health,
		logger:         logger,
		now:            time.Now,
	}
}

// Response represents a standard JSON response
type Response struct {
	Success   bool        `json:"success"`
	Message   string      `json:"message,omitempty"`
	ExpenseID string      `json:"expenseId,omitempty"`
	Count     *int        `json:"count,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Fields    []string    `json:"fields,omitempty"`
	Error     string      `json:"error,omitempty"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status      string `json:"status"`
	Database    string `json:"database"`
	Backend     string `json:"backend"`
	Timestamp   string `json:"timestamp"`
	Environment string `json:"environment"`
	Port        int    `json:"port"`
}

// RootResponse is the service directory served at /
type RootResponse struct {
	Message   string   `json:"message"`
	Database  string   `json:"database"`
	Timestamp string   `json:"timestamp"`
	Endpoints []string `json:"endpoints"`
}

// NotFoundResponse lists the routes that do exist
type NotFoundResponse struct {
	Success            bool     `json:"success"`
	Message            string   `json:"message"`
	AvailableEndpoints []string `json:"availableEndpoints"`
}

// processRequest is the optional body of POST /expenses/process/:id
type processRequest struct {
	ProcessedBy   string `json:"processedBy"`
	AccountingRef string `json:"accountingRef"`
}

// HealthCheck handles GET /health
func (h *Handlers) HealthCheck(c *gin.Context) {
	status, database, code := "ok", "connected", http.StatusOK
	if err := h.health.Ping(c.Request.Context()); err != nil {
		h.logger.Error("Health check failed", "error", err)
		status, database, code = "degraded", "disconnected", http.StatusServiceUnavailable
	}

	c.JSON(code, HealthResponse{
		Status:      status,
		Database:    database,
		Backend:     h.config.Backend,
		Timestamp:   h.timestamp(),
		Environment: h.config.Environment,
		Port:        h.config.Port,
	})
}

// Root handles GET /
func (h *Handlers) Root(c *gin.Context) {
	c.JSON(http.StatusOK, RootResponse{
		Message:   "Expense desk API",
		Database:  h.config.Backend,
		Timestamp: h.timestamp(),
		Endpoints: endpoints,
	})
}

// SubmitExpense handles POST /expenses/submit (JSON or multipart/form-data)
func (h *Handlers) SubmitExpense(c *gin.Context) {
	input, receipt, cleanup, err := h.bindSubmission(c)
	defer cleanup()
	if err != nil {
		h.respondError(c, err, "Failed to submit expense")
		return
	}

	expense, err := h.expenseService.Submit(c.Request.Context(), input, receipt)
	if err != nil {
		h.respondError(c, err, "Failed to submit expense")
		return
	}

	c.JSON(http.StatusCreated, Response{
		Success:   true,
		Message:   "Expense submitted successfully",
		ExpenseID: expense.ID,
		Data:      expense,
	})
}

// ListExpenses handles GET /expenses/submitted
func (h *Handlers) ListExpenses(c *gin.Context) {
	expenses, err := h.expenseService.List(c.Request.Context())
	if err != nil {
		h.respondError(c, err, "Failed to fetch expenses")
		return
	}
	if expenses == nil {
		expenses = []*entity.Expense{}
	}

	count := len(expenses)
	c.JSON(http.StatusOK, Response{
		Success: true,
		Count:   &count,
		Data:    expenses,
	})
}

// GetExpense handles GET /expenses/:id
func (h *Handlers) GetExpense(c *gin.Context) {
	expense, err := h.expenseService.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err, "Failed to fetch expense")
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: expense})
}

// ProcessExpense handles POST /expenses/process/:id. The body may be empty.
func (h *Handlers) ProcessExpense(c *gin.Context) {
	var req processRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		h.respondError(c, &entity.ValidationError{Reason: "invalid request body"}, "Failed to process expense")
		return
	}

	expense, err := h.expenseService.MarkProcessed(c.Request.Context(), c.Param("id"), service.ProcessInput{
		ProcessedBy:   req.ProcessedBy,
		AccountingRef: req.AccountingRef,
	})
	if err != nil {
		h.respondError(c, err, "Failed to process expense")
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Message: "Expense marked as processed",
		Data:    expense,
	})
}

// DeleteExpense handles DELETE /expenses/:id
func (h *Handlers) DeleteExpense(c *gin.Context) {
	if err := h.expenseService.Delete(c.Request.Context(), c.Param("id")); err != nil {
		h.respondError(c, err, "Failed to delete expense")
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Message: "Expense deleted successfully"})
}

// ExportExpenses handles GET /expenses/export
func (h *Handlers) ExportExpenses(c *gin.Context) {
	// Buffer the workbook so a failure can still produce a JSON error
	var buf bytes.Buffer
	rows, err := h.exportService.WriteWorkbook(c.Request.Context(), &buf)
	if err != nil {
		h.respondError(c, err, "Failed to export expenses")
		return
	}

	filename := fmt.Sprintf("expenses-%s.xlsx", h.now().UTC().Format("20060102"))
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	c.Header("X-Expense-Count", fmt.Sprintf("%d", rows))
	c.Data(http.StatusOK, xlsxContentType, buf.Bytes())
}

// ServeReceipt handles GET /uploads/*name
func (h *Handlers) ServeReceipt(c *gin.Context) {
	name := strings.TrimPrefix(c.Param("name"), "/")

	rc, info, err := h.expenseService.OpenReceipt(c.Request.Context(), name)
	if err != nil {
		if errors.Is(err, entity.ErrNotFound) {
			c.JSON(http.StatusNotFound, Response{Success: false, Message: "Receipt not found"})
			return
		}
		h.respondError(c, err, "Failed to read receipt")
		return
	}
	defer rc.Close()

	c.DataFromReader(http.StatusOK, info.Size, info.ContentType, rc, nil)
}

// NotFound handles unmatched routes
func (h *Handlers) NotFound(c *gin.Context) {
	c.JSON(http.StatusNotFound, NotFoundResponse{
		Success:            false,
		Message:            fmt.Sprintf("Route %s %s not found", c.Request.Method, c.Request.URL.Path),
		AvailableEndpoints: endpoints,
	})
}

// respondError maps domain errors to status codes. Raw error text is only
// exposed outside production.
func (h *Handlers) respondError(c *gin.Context, err error, message string) {
	var ve *entity.ValidationError
	switch {
	case errors.As(err, &ve):
		c.JSON(http.StatusBadRequest, Response{
			Success: false,
			Message: ve.Error(),
			Fields:  ve.Fields,
		})
	case errors.Is(err, entity.ErrNotFound):
		c.JSON(http.StatusNotFound, Response{Success: false, Message: "Expense not found"})
	default:
		h.logger.Error(message, "error", err, "path", c.Request.URL.Path)
		resp := Response{Success: false, Message: message}
		if !h.config.Production {
			resp.Error = err.Error()
		}
		c.JSON(http.StatusInternalServerError, resp)
	}
}

func (h *Handlers) timestamp() string {
	return h.now().UTC().Format(time.RFC3339)
}
