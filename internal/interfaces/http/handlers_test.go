package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/garyjia/expense-desk/internal/application/port"
	"github.com/garyjia/expense-desk/internal/application/service"
	"github.com/garyjia/expense-desk/internal/domain/entity"
	"github.com/garyjia/expense-desk/internal/infrastructure/persistence/memory"
	"github.com/garyjia/expense-desk/internal/infrastructure/storage"
)

type mockLogger struct{}

func (m *mockLogger) Info(msg string, keysAndValues ...interface{})  {}
func (m *mockLogger) Error(msg string, keysAndValues ...interface{}) {}

// failingStore fails every call with a storage error
type failingStore struct {
	port.ExpenseStore
}

func (f *failingStore) List(ctx context.Context) ([]*entity.Expense, error) {
	return nil, entity.Unavailable("list", errors.New("connection reset by peer"))
}

func (f *failingStore) Ping(ctx context.Context) error {
	return errors.New("no reachable servers")
}

type apiResponse struct {
	Success   bool            `json:"success"`
	Message   string          `json:"message"`
	ExpenseID string          `json:"expenseId"`
	Count     *int            `json:"count"`
	Data      json.RawMessage `json:"data"`
	Fields    []string        `json:"fields"`
	Error     string          `json:"error"`
}

type testServer struct {
	server *Server
	store  port.ExpenseStore
}

func newTestServer(t *testing.T, store port.ExpenseStore, cfg ServerConfig) *testServer {
	t.Helper()

	receipts, err := storage.NewLocalReceiptStorage(t.TempDir(), zap.NewNop())
	require.NoError(t, err)

	logger := &mockLogger{}
	expenses := service.NewExpenseService(store, receipts, logger)
	exports := service.NewExportService(store, logger)

	return &testServer{
		server: NewServer(cfg, expenses, exports, store, logger),
		store:  store,
	}
}

func newMemoryServer(t *testing.T) *testServer {
	return newTestServer(t, memory.NewStore(), DefaultServerConfig())
}

func (ts *testServer) do(t *testing.T, method, path string, body []byte, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	w := httptest.NewRecorder()
	ts.server.Router().ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) apiResponse {
	t.Helper()
	var resp apiResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return resp
}

func (ts *testServer) submitJSON(t *testing.T, body string) apiResponse {
	t.Helper()
	w := ts.do(t, http.MethodPost, "/expenses/submit", []byte(body), "application/json")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return decode(t, w)
}

func TestSubmitExpense_JSON(t *testing.T) {
	ts := newMemoryServer(t)

	resp := ts.submitJSON(t, `{"description":"Coffee","amount":12.5,"submittedBy":"Alice"}`)
	assert.True(t, resp.Success)
	assert.Equal(t, "Expense submitted successfully", resp.Message)
	require.NotEmpty(t, resp.ExpenseID)

	var expense map[string]interface{}
	require.NoError(t, json.Unmarshal(resp.Data, &expense))
	assert.Equal(t, resp.ExpenseID, expense["id"])
	assert.Equal(t, 12.5, expense["amount"])
	assert.Equal(t, "Alice", expense["submittedBy"])
	assert.Equal(t, "Other", expense["category"])
	assert.Equal(t, "submitted", expense["status"])
	assert.NotEmpty(t, expense["date"])
	assert.NotEmpty(t, expense["submissionDate"])
}

func TestSubmitExpense_AmountAsString(t *testing.T) {
	ts := newMemoryServer(t)

	resp := ts.submitJSON(t, `{"description":"Hotel","amount":"199.90","lineItems":[{"description":"Night 1","amount":"99.95"}]}`)

	var expense entity.Expense
	require.NoError(t, json.Unmarshal(resp.Data, &expense))
	require.NotNil(t, expense.Amount)
	assert.Equal(t, "199.9", expense.Amount.String())
	require.Len(t, expense.LineItems, 1)
	assert.Equal(t, "Anonymous", expense.SubmittedBy)
}

func TestSubmitExpense_Errors(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantFields []string
	}{
		{name: "missing amount", body: `{"description":"Coffee"}`, wantFields: []string{"amount"}},
		{name: "missing both", body: `{"vendor":"Cafe"}`, wantFields: []string{"description", "amount"}},
		{name: "blank description", body: `{"description":"   ","amount":3}`, wantFields: []string{"description"}},
		{name: "malformed json", body: `{"description":`},
		{name: "non-numeric amount", body: `{"description":"Coffee","amount":"abc"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newMemoryServer(t)
			w := ts.do(t, http.MethodPost, "/expenses/submit", []byte(tt.body), "application/json")
			require.Equal(t, http.StatusBadRequest, w.Code)

			resp := decode(t, w)
			assert.False(t, resp.Success)
			if tt.wantFields != nil {
				assert.Equal(t, tt.wantFields, resp.Fields)
			}

			list := decode(t, ts.do(t, http.MethodGet, "/expenses/submitted", nil, ""))
			assert.Equal(t, 0, *list.Count, "nothing may be stored")
		})
	}
}

func multipartBody(t *testing.T, fields map[string]string, filename string, content []byte) ([]byte, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if filename != "" {
		fw, err := mw.CreateFormFile("receipt", filename)
		require.NoError(t, err)
		_, err = fw.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return buf.Bytes(), mw.FormDataContentType()
}

func TestSubmitExpense_MultipartWithReceipt(t *testing.T) {
	ts := newMemoryServer(t)

	body, contentType := multipartBody(t, map[string]string{
		"description": "Taxi",
		"amount":      "23.10",
		"lineItems":   `[{"description":"Airport","amount":23.1}]`,
	}, "Receipt.PDF", []byte("%PDF-1.4 receipt"))

	w := ts.do(t, http.MethodPost, "/expenses/submit", body, contentType)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var expense entity.Expense
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &expense))
	require.NotEmpty(t, expense.ReceiptFile)
	assert.True(t, strings.HasSuffix(expense.ReceiptFile, ".pdf"))
	require.Len(t, expense.LineItems, 1)

	w = ts.do(t, http.MethodGet, "/uploads/"+expense.ReceiptFile, nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "%PDF-1.4 receipt", w.Body.String())
	assert.Equal(t, "application/pdf", w.Header().Get("Content-Type"))
}

func TestSubmitExpense_MultipartErrors(t *testing.T) {
	ts := newMemoryServer(t)

	body, contentType := multipartBody(t, map[string]string{"description": "Taxi", "amount": "twelve"}, "", nil)
	w := ts.do(t, http.MethodPost, "/expenses/submit", body, contentType)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, []string{"amount"}, decode(t, w).Fields)

	body, contentType = multipartBody(t, map[string]string{"description": "Taxi", "amount": "1", "lineItems": "not json"}, "", nil)
	w = ts.do(t, http.MethodPost, "/expenses/submit", body, contentType)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, []string{"lineItems"}, decode(t, w).Fields)
}

func TestSubmitExpense_BodyTooLarge(t *testing.T) {
	cfg := DefaultServerConfig()
	cfg.MaxUploadBytes = 64
	ts := newTestServer(t, memory.NewStore(), cfg)

	body, contentType := multipartBody(t, map[string]string{"description": "Taxi", "amount": "1"}, "big.png", bytes.Repeat([]byte("x"), 1024))
	w := ts.do(t, http.MethodPost, "/expenses/submit", body, contentType)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListExpenses_MostRecentFirst(t *testing.T) {
	ts := newMemoryServer(t)

	first := ts.submitJSON(t, `{"description":"First","amount":1}`)
	second := ts.submitJSON(t, `{"description":"Second","amount":2}`)

	w := ts.do(t, http.MethodGet, "/expenses/submitted", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode(t, w)
	require.NotNil(t, resp.Count)
	assert.Equal(t, 2, *resp.Count)

	var list []entity.Expense
	require.NoError(t, json.Unmarshal(resp.Data, &list))
	require.Len(t, list, 2)
	assert.Equal(t, second.ExpenseID, list[0].ID)
	assert.Equal(t, first.ExpenseID, list[1].ID)
}

func TestListExpenses_Empty(t *testing.T) {
	ts := newMemoryServer(t)

	w := ts.do(t, http.MethodGet, "/expenses/submitted", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"success":true,"count":0,"data":[]}`, w.Body.String())
}

func TestGetExpense(t *testing.T) {
	ts := newMemoryServer(t)
	created := ts.submitJSON(t, `{"description":"Lunch","amount":15}`)

	w := ts.do(t, http.MethodGet, "/expenses/"+created.ExpenseID, nil, "")
	require.Equal(t, http.StatusOK, w.Code)

	var expense entity.Expense
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &expense))
	assert.Equal(t, "Lunch", expense.Description)

	w = ts.do(t, http.MethodGet, "/expenses/does-not-exist", nil, "")
	require.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "Expense not found", decode(t, w).Message)
}

func TestProcessExpense(t *testing.T) {
	ts := newMemoryServer(t)
	created := ts.submitJSON(t, `{"description":"Coffee","amount":12.5,"submittedBy":"Alice"}`)

	// Empty body falls back to the default processor
	w := ts.do(t, http.MethodPost, "/expenses/process/"+created.ExpenseID, nil, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := decode(t, w)
	assert.Equal(t, "Expense marked as processed", resp.Message)

	var first entity.Expense
	require.NoError(t, json.Unmarshal(resp.Data, &first))
	assert.Equal(t, entity.StatusProcessed, first.Status)
	assert.Equal(t, "Admin", first.ProcessedBy)
	require.NotNil(t, first.ProcessedDate)

	// Reprocessing re-stamps
	w = ts.do(t, http.MethodPost, "/expenses/process/"+created.ExpenseID,
		[]byte(`{"processedBy":"Bob","accountingRef":"ACC-7"}`), "application/json")
	require.Equal(t, http.StatusOK, w.Code)

	var second entity.Expense
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &second))
	assert.Equal(t, "Bob", second.ProcessedBy)
	assert.Equal(t, "ACC-7", second.AccountingRef)
	assert.Equal(t, "Coffee", second.Description)
}

func TestProcessExpense_Errors(t *testing.T) {
	ts := newMemoryServer(t)

	w := ts.do(t, http.MethodPost, "/expenses/process/unknown", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	created := ts.submitJSON(t, `{"description":"Coffee","amount":1}`)
	w = ts.do(t, http.MethodPost, "/expenses/process/"+created.ExpenseID, []byte(`{"processedBy":`), "application/json")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDeleteExpense(t *testing.T) {
	ts := newMemoryServer(t)
	created := ts.submitJSON(t, `{"description":"Coffee","amount":1}`)

	w := ts.do(t, http.MethodDelete, "/expenses/"+created.ExpenseID, nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Expense deleted successfully", decode(t, w).Message)

	assert.Equal(t, http.StatusNotFound, ts.do(t, http.MethodGet, "/expenses/"+created.ExpenseID, nil, "").Code)
	assert.Equal(t, http.StatusNotFound, ts.do(t, http.MethodDelete, "/expenses/"+created.ExpenseID, nil, "").Code)
}

func TestExportExpenses(t *testing.T) {
	ts := newMemoryServer(t)
	ts.submitJSON(t, `{"description":"Coffee","amount":12.5}`)

	w := ts.do(t, http.MethodGet, "/expenses/export", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, xlsxContentType, w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "attachment;")
	assert.Equal(t, "1", w.Header().Get("X-Expense-Count"))

	f, err := excelize.OpenReader(bytes.NewReader(w.Body.Bytes()))
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(service.ExportSheet)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Coffee", rows[1][5])
}

func TestServeReceipt_NotFound(t *testing.T) {
	ts := newMemoryServer(t)

	for _, path := range []string{"/uploads/missing.png", "/uploads/../etc/passwd", "/uploads/"} {
		w := ts.do(t, http.MethodGet, path, nil, "")
		assert.Equal(t, http.StatusNotFound, w.Code, path)
	}
}

func TestNotFound_ListsEndpoints(t *testing.T) {
	ts := newMemoryServer(t)

	w := ts.do(t, http.MethodGet, "/nope", nil, "")
	require.Equal(t, http.StatusNotFound, w.Code)

	var resp NotFoundResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
	assert.Contains(t, resp.AvailableEndpoints, "POST /expenses/submit")
}

func TestCORS_Preflight(t *testing.T) {
	ts := newMemoryServer(t)

	w := ts.do(t, http.MethodOptions, "/expenses/submit", nil, "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))

	w = ts.do(t, http.MethodGet, "/", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestHealthCheck(t *testing.T) {
	ts := newMemoryServer(t)
	fixed := time.Date(2024, 3, 15, 9, 30, 0, 0, time.UTC)
	ts.server.handlers.now = func() time.Time { return fixed }

	w := ts.do(t, http.MethodGet, "/health", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{
		"status":"ok","database":"connected","backend":"memory",
		"timestamp":"2024-03-15T09:30:00Z","environment":"development","port":8080
	}`, w.Body.String())
}

func TestHealthCheck_Degraded(t *testing.T) {
	ts := newTestServer(t, &failingStore{}, DefaultServerConfig())

	w := ts.do(t, http.MethodGet, "/health", nil, "")
	require.Equal(t, http.StatusServiceUnavailable, w.Code)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "degraded", resp.Status)
	assert.Equal(t, "disconnected", resp.Database)
}

func TestStorageFailure_ErrorDetailByEnvironment(t *testing.T) {
	tests := []struct {
		name       string
		production bool
		wantDetail bool
	}{
		{name: "development", production: false, wantDetail: true},
		{name: "production", production: true, wantDetail: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultServerConfig()
			cfg.Production = tt.production
			ts := newTestServer(t, &failingStore{}, cfg)

			w := ts.do(t, http.MethodGet, "/expenses/submitted", nil, "")
			require.Equal(t, http.StatusInternalServerError, w.Code)

			resp := decode(t, w)
			assert.False(t, resp.Success)
			assert.Equal(t, "Failed to fetch expenses", resp.Message)
			if tt.wantDetail {
				assert.Contains(t, resp.Error, "connection reset by peer")
			} else {
				assert.Empty(t, resp.Error)
			}
		})
	}
}
