package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/expense-tracker/internal/aggregation"
	"github.com/expense-tracker/internal/api_gateway/middleware"
	"github.com/expense-tracker/internal/domain/alert"
	"github.com/expense-tracker/internal/domain/expense"
	"github.com/expense-tracker/internal/domain/period"
	"github.com/expense-tracker/internal/domain/shared"
	"github.com/expense-tracker/internal/ingestion"
	"github.com/expense-tracker/internal/ocr"
)

// MockTrackerService implements the expense, budget and alert services
type MockTrackerService struct {
	mock.Mock
}

func (m *MockTrackerService) entry(args mock.Arguments) (*expense.Entry, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*expense.Entry), args.Error(1)
}

func (m *MockTrackerService) IngestManual(ctx context.Context, userID string, in ingestion.ManualExpense) (*expense.Entry, error) {
	return m.entry(m.Called(ctx, userID, in))
}

func (m *MockTrackerService) IngestReceipt(ctx context.Context, userID, text string, occurredAt time.Time) (*expense.Entry, error) {
	return m.entry(m.Called(ctx, userID, text, occurredAt))
}

func (m *MockTrackerService) IngestReceiptImage(ctx context.Context, userID string, image []byte, occurredAt time.Time) (*expense.Entry, error) {
	return m.entry(m.Called(ctx, userID, image, occurredAt))
}

func (m *MockTrackerService) IngestSms(ctx context.Context, userID string, msg ingestion.SMSMessage) (*expense.Entry, error) {
	return m.entry(m.Called(ctx, userID, msg))
}

func (m *MockTrackerService) ListEntries(ctx context.Context, userID string, from, to time.Time) ([]*expense.Entry, error) {
	args := m.Called(ctx, userID, from, to)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*expense.Entry), args.Error(1)
}

func (m *MockTrackerService) UpdateEntry(ctx context.Context, userID string, id uuid.UUID, patch expense.Patch) (*expense.Entry, error) {
	return m.entry(m.Called(ctx, userID, id, patch))
}

func (m *MockTrackerService) DeleteEntry(ctx context.Context, userID string, id uuid.UUID) error {
	return m.Called(ctx, userID, id).Error(0)
}

func (m *MockTrackerService) SetBudget(ctx context.Context, userID string, limit decimal.Decimal, days, hours int) (*period.SpendingPeriod, error) {
	args := m.Called(ctx, userID, limit, days, hours)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*period.SpendingPeriod), args.Error(1)
}

func (m *MockTrackerService) ActivePeriod(ctx context.Context, userID string) (*period.SpendingPeriod, time.Duration, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, 0, args.Error(2)
	}
	return args.Get(0).(*period.SpendingPeriod), args.Get(1).(time.Duration), args.Error(2)
}

func (m *MockTrackerService) GetAggregate(ctx context.Context, userID string) (aggregation.View, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(aggregation.View), args.Error(1)
}

func (m *MockTrackerService) Alerts(ctx context.Context, userID string) ([]*alert.Alert, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*alert.Alert), args.Error(1)
}

func (m *MockTrackerService) MarkAlertRead(ctx context.Context, userID string, id uuid.UUID) error {
	return m.Called(ctx, userID, id).Error(0)
}

func (m *MockTrackerService) ClearAlerts(ctx context.Context, userID string) (int64, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockTrackerService) SubscribeAlerts(ctx context.Context, userID string, onAlert func(alert.Alert)) (func(), error) {
	args := m.Called(ctx, userID, onAlert)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(func()), args.Error(1)
}

var testLogger = slog.New(slog.NewJSONHandler(os.Stdout, nil))

func setupTestRouter(svc *MockTrackerService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(middleware.CorrelationID())
	r.Use(middleware.UserIdentity())

	expenses := NewExpenseHandler(testLogger, svc, 1024)
	budget := NewBudgetHandler(testLogger, svc)
	alerts := NewAlertHandler(testLogger, svc)

	r.POST("/expenses", expenses.Create)
	r.POST("/expenses/receipt", expenses.CreateFromReceiptText)
	r.POST("/expenses/receipt/image", expenses.CreateFromReceiptImage)
	r.POST("/expenses/sms", expenses.CreateFromSMS)
	r.GET("/expenses", expenses.List)
	r.PATCH("/expenses/:id", expenses.Update)
	r.DELETE("/expenses/:id", expenses.Delete)
	r.PUT("/budget", budget.Set)
	r.GET("/budget", budget.Get)
	r.GET("/budget/aggregate", budget.Aggregate)
	r.GET("/alerts", alerts.List)
	r.POST("/alerts/:id/read", alerts.MarkRead)
	r.DELETE("/alerts", alerts.Clear)
	r.GET("/alerts/stream", alerts.Stream)
	return r
}

func doJSON(r *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	req, _ := http.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(middleware.UserIDHeader, "u1")
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	return rr
}

func decodeData(t *testing.T, rr *httptest.ResponseRecorder, into interface{}) {
	t.Helper()
	var top struct {
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &top))
	require.NoError(t, json.Unmarshal(top.Data, into))
}

func errorCode(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var resp Response
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.NotNil(t, resp.Error)
	return resp.Error.Code
}

func sampleEntry(amount int64, source expense.Source) *expense.Entry {
	now := time.Now().UTC()
	return &expense.Entry{
		ID:         uuid.New(),
		UserID:     "u1",
		Amount:     decimal.NewFromInt(amount),
		Source:     source,
		Category:   "Food",
		OccurredAt: now,
		CreatedAt:  now,
	}
}

func TestExpenseHandler_Create(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		svc := new(MockTrackerService)
		entry := sampleEntry(4500, expense.SourceManual)
		svc.On("IngestManual", mock.Anything, "u1", mock.MatchedBy(func(in ingestion.ManualExpense) bool {
			return in.Amount.Equal(decimal.NewFromInt(4500)) && in.Category == "Food" && in.OccurredAt.IsZero()
		})).Return(entry, nil).Once()

		rr := doJSON(setupTestRouter(svc), http.MethodPost, "/expenses", `{"amount":4500,"category":"Food"}`)

		assert.Equal(t, http.StatusCreated, rr.Code)
		var body ExpenseResponse
		decodeData(t, rr, &body)
		assert.Equal(t, entry.ID.String(), body.ID)
		assert.Equal(t, "4500.00", body.Amount)
		assert.Equal(t, "Manual", body.Source)
		svc.AssertExpectations(t)
	})

	errorCases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"InvalidAmount", shared.ErrInvalidAmount, http.StatusBadRequest, "INVALID_AMOUNT"},
		{"NotAuthenticated", shared.ErrNotAuthenticated, http.StatusUnauthorized, "UNAUTHORIZED"},
		{"StoreUnavailable", fmt.Errorf("%w: dial tcp", shared.ErrStoreUnavailable), http.StatusServiceUnavailable, "STORE_UNAVAILABLE"},
		{"Unexpected", fmt.Errorf("boom"), http.StatusInternalServerError, "INTERNAL_SERVER_ERROR"},
	}
	for _, tc := range errorCases {
		t.Run(tc.name, func(t *testing.T) {
			svc := new(MockTrackerService)
			svc.On("IngestManual", mock.Anything, "u1", mock.Anything).Return(nil, tc.err).Once()

			rr := doJSON(setupTestRouter(svc), http.MethodPost, "/expenses", `{"amount":"-5"}`)

			assert.Equal(t, tc.status, rr.Code)
			assert.Equal(t, tc.code, errorCode(t, rr))
		})
	}

	t.Run("MalformedBody", func(t *testing.T) {
		svc := new(MockTrackerService)
		rr := doJSON(setupTestRouter(svc), http.MethodPost, "/expenses", `{"amount`)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		svc.AssertNotCalled(t, "IngestManual", mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestExpenseHandler_Receipt(t *testing.T) {
	t.Run("Recorded", func(t *testing.T) {
		svc := new(MockTrackerService)
		svc.On("IngestReceipt", mock.Anything, "u1", "Total: Rs. 600", time.Time{}).
			Return(sampleEntry(600, expense.SourceReceipt), nil).Once()

		rr := doJSON(setupTestRouter(svc), http.MethodPost, "/expenses/receipt", `{"text":"Total: Rs. 600"}`)

		assert.Equal(t, http.StatusCreated, rr.Code)
		var body IngestResponse
		decodeData(t, rr, &body)
		assert.True(t, body.Recorded)
		require.NotNil(t, body.Expense)
		assert.Equal(t, "600.00", body.Expense.Amount)
	})

	t.Run("NoAmount", func(t *testing.T) {
		svc := new(MockTrackerService)
		svc.On("IngestReceipt", mock.Anything, "u1", "thank you", time.Time{}).Return(nil, nil).Once()

		rr := doJSON(setupTestRouter(svc), http.MethodPost, "/expenses/receipt", `{"text":"thank you"}`)

		assert.Equal(t, http.StatusOK, rr.Code)
		var body IngestResponse
		decodeData(t, rr, &body)
		assert.False(t, body.Recorded)
		assert.Equal(t, "no_amount", body.Reason)
	})

	t.Run("MissingText", func(t *testing.T) {
		rr := doJSON(setupTestRouter(new(MockTrackerService)), http.MethodPost, "/expenses/receipt", `{}`)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})
}

func uploadRequest(t *testing.T, image []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)
	part, err := form.CreateFormFile("file", "receipt.png")
	require.NoError(t, err)
	_, err = part.Write(image)
	require.NoError(t, err)
	require.NoError(t, form.Close())

	req, _ := http.NewRequest(http.MethodPost, "/expenses/receipt/image", &buf)
	req.Header.Set("Content-Type", form.FormDataContentType())
	req.Header.Set(middleware.UserIDHeader, "u1")
	return req
}

func TestExpenseHandler_ReceiptImage(t *testing.T) {
	t.Run("Recorded", func(t *testing.T) {
		svc := new(MockTrackerService)
		svc.On("IngestReceiptImage", mock.Anything, "u1", []byte("png"), time.Time{}).
			Return(sampleEntry(600, expense.SourceReceipt), nil).Once()

		rr := httptest.NewRecorder()
		setupTestRouter(svc).ServeHTTP(rr, uploadRequest(t, []byte("png")))

		assert.Equal(t, http.StatusCreated, rr.Code)
		svc.AssertExpectations(t)
	})

	t.Run("OCRDisabled", func(t *testing.T) {
		svc := new(MockTrackerService)
		svc.On("IngestReceiptImage", mock.Anything, "u1", []byte("png"), time.Time{}).Return(nil, ocr.ErrDisabled).Once()

		rr := httptest.NewRecorder()
		setupTestRouter(svc).ServeHTTP(rr, uploadRequest(t, []byte("png")))

		assert.Equal(t, http.StatusNotImplemented, rr.Code)
	})

	t.Run("TooLarge", func(t *testing.T) {
		svc := new(MockTrackerService)
		rr := httptest.NewRecorder()
		setupTestRouter(svc).ServeHTTP(rr, uploadRequest(t, bytes.Repeat([]byte("x"), 2048)))

		assert.Equal(t, http.StatusRequestEntityTooLarge, rr.Code)
		svc.AssertNotCalled(t, "IngestReceiptImage", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestExpenseHandler_SMS(t *testing.T) {
	body := `{"body":"debited by Rs 500","sender_id":"BANK"}`
	msg := ingestion.SMSMessage{Body: "debited by Rs 500", SenderID: "BANK"}

	t.Run("Duplicate", func(t *testing.T) {
		svc := new(MockTrackerService)
		svc.On("IngestSms", mock.Anything, "u1", msg).Return(nil, shared.ErrDuplicate).Once()

		rr := doJSON(setupTestRouter(svc), http.MethodPost, "/expenses/sms", body)

		assert.Equal(t, http.StatusOK, rr.Code)
		var resp IngestResponse
		decodeData(t, rr, &resp)
		assert.False(t, resp.Recorded)
		assert.Equal(t, "duplicate", resp.Reason)
	})

	t.Run("Busy", func(t *testing.T) {
		svc := new(MockTrackerService)
		svc.On("IngestSms", mock.Anything, "u1", msg).Return(nil, ingestion.ErrBusy).Once()

		rr := doJSON(setupTestRouter(svc), http.MethodPost, "/expenses/sms", body)

		assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	})
}

func TestExpenseHandler_ListUpdateDelete(t *testing.T) {
	t.Run("ListDefaultsToLast30Days", func(t *testing.T) {
		svc := new(MockTrackerService)
		svc.On("ListEntries", mock.Anything, "u1", mock.Anything, mock.Anything).
			Run(func(args mock.Arguments) {
				from, to := args.Get(2).(time.Time), args.Get(3).(time.Time)
				assert.Equal(t, defaultListWindow, to.Sub(from))
			}).
			Return([]*expense.Entry{sampleEntry(10, expense.SourceManual)}, nil).Once()

		rr := doJSON(setupTestRouter(svc), http.MethodGet, "/expenses", "")

		assert.Equal(t, http.StatusOK, rr.Code)
		var body ExpenseListResponse
		decodeData(t, rr, &body)
		assert.Len(t, body.Expenses, 1)
	})

	t.Run("ListRejectsInvertedRange", func(t *testing.T) {
		rr := doJSON(setupTestRouter(new(MockTrackerService)), http.MethodGet,
			"/expenses?from=2024-03-02T00:00:00Z&to=2024-03-01T00:00:00Z", "")
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("UpdateNotFound", func(t *testing.T) {
		svc := new(MockTrackerService)
		id := uuid.New()
		svc.On("UpdateEntry", mock.Anything, "u1", id, mock.Anything).Return(nil, expense.ErrEntryNotFound{ID: id}).Once()

		rr := doJSON(setupTestRouter(svc), http.MethodPatch, "/expenses/"+id.String(), `{"category":"Travel"}`)

		assert.Equal(t, http.StatusNotFound, rr.Code)
	})

	t.Run("UpdateEmptyPatch", func(t *testing.T) {
		rr := doJSON(setupTestRouter(new(MockTrackerService)), http.MethodPatch, "/expenses/"+uuid.NewString(), `{}`)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("DeleteInvalidID", func(t *testing.T) {
		rr := doJSON(setupTestRouter(new(MockTrackerService)), http.MethodDelete, "/expenses/not-a-uuid", "")
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("Delete", func(t *testing.T) {
		svc := new(MockTrackerService)
		id := uuid.New()
		svc.On("DeleteEntry", mock.Anything, "u1", id).Return(nil).Once()

		rr := doJSON(setupTestRouter(svc), http.MethodDelete, "/expenses/"+id.String(), "")

		assert.Equal(t, http.StatusNoContent, rr.Code)
		svc.AssertExpectations(t)
	})
}

func TestBudgetHandler(t *testing.T) {
	now := time.Now().UTC()
	p := &period.SpendingPeriod{
		ID:        uuid.New(),
		UserID:    "u1",
		StartDate: now,
		EndDate:   now.Add(7 * 24 * time.Hour),
		Limit:     decimal.NewFromInt(5000),
	}

	t.Run("Set", func(t *testing.T) {
		svc := new(MockTrackerService)
		svc.On("SetBudget", mock.Anything, "u1", mock.MatchedBy(func(d decimal.Decimal) bool {
			return d.Equal(decimal.NewFromInt(5000))
		}), 7, 0).Return(p, nil).Once()

		rr := doJSON(setupTestRouter(svc), http.MethodPut, "/budget", `{"limit":"5000","days":7}`)

		assert.Equal(t, http.StatusOK, rr.Code)
		var body BudgetResponse
		decodeData(t, rr, &body)
		assert.Equal(t, "5000.00", body.Limit)
		assert.Greater(t, body.RemainingSeconds, int64(6*24*3600))
	})

	t.Run("SetInvalidDuration", func(t *testing.T) {
		svc := new(MockTrackerService)
		svc.On("SetBudget", mock.Anything, "u1", mock.Anything, 0, 0).Return(nil, shared.ErrInvalidDuration).Once()

		rr := doJSON(setupTestRouter(svc), http.MethodPut, "/budget", `{"limit":100}`)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Equal(t, "INVALID_DURATION", errorCode(t, rr))
	})

	t.Run("GetWithoutBudget", func(t *testing.T) {
		svc := new(MockTrackerService)
		svc.On("ActivePeriod", mock.Anything, "u1").Return(nil, time.Duration(0), nil).Once()

		rr := doJSON(setupTestRouter(svc), http.MethodGet, "/budget", "")

		assert.Equal(t, http.StatusNotFound, rr.Code)
	})

	t.Run("Aggregate", func(t *testing.T) {
		svc := new(MockTrackerService)
		svc.On("GetAggregate", mock.Anything, "u1").Return(aggregation.View{
			UserID:     "u1",
			PeriodID:   p.ID,
			TotalSpent: decimal.NewFromInt(5100),
			Limit:      decimal.NewFromInt(5000),
			Percentage: decimal.NewFromInt(102),
			EntryCount: 2,
			ByCategory: map[string]decimal.Decimal{"Food": decimal.NewFromInt(5100)},
		}, nil).Once()

		rr := doJSON(setupTestRouter(svc), http.MethodGet, "/budget/aggregate", "")

		assert.Equal(t, http.StatusOK, rr.Code)
		var body AggregateResponse
		decodeData(t, rr, &body)
		assert.Equal(t, "102.00", body.Percentage)
		assert.Equal(t, "-100.00", body.Remaining)
		assert.Equal(t, "5100.00", body.ByCategory["Food"])
	})

	t.Run("AggregateWithoutBudget", func(t *testing.T) {
		svc := new(MockTrackerService)
		svc.On("GetAggregate", mock.Anything, "u1").Return(aggregation.View{}, aggregation.ErrUnavailable).Once()

		rr := doJSON(setupTestRouter(svc), http.MethodGet, "/budget/aggregate", "")

		assert.Equal(t, http.StatusNotFound, rr.Code)
		assert.Equal(t, "NO_ACTIVE_BUDGET", errorCode(t, rr))
	})
}

func TestAlertHandler(t *testing.T) {
	a := &alert.Alert{
		ID:         uuid.New(),
		UserID:     "u1",
		Title:      "Spending Limit Exceeded!",
		Band:       alert.BandExceeded,
		Percentage: decimal.NewFromInt(102),
		CreatedAt:  time.Now().UTC(),
	}

	t.Run("List", func(t *testing.T) {
		svc := new(MockTrackerService)
		svc.On("Alerts", mock.Anything, "u1").Return([]*alert.Alert{a}, nil).Once()

		rr := doJSON(setupTestRouter(svc), http.MethodGet, "/alerts", "")

		assert.Equal(t, http.StatusOK, rr.Code)
		var body AlertListResponse
		decodeData(t, rr, &body)
		require.Len(t, body.Alerts, 1)
		assert.Equal(t, "exceeded", body.Alerts[0].Band)
	})

	t.Run("MarkReadNotFound", func(t *testing.T) {
		svc := new(MockTrackerService)
		svc.On("MarkAlertRead", mock.Anything, "u1", a.ID).Return(alert.ErrAlertNotFound{ID: a.ID}).Once()

		rr := doJSON(setupTestRouter(svc), http.MethodPost, "/alerts/"+a.ID.String()+"/read", "")

		assert.Equal(t, http.StatusNotFound, rr.Code)
	})

	t.Run("Clear", func(t *testing.T) {
		svc := new(MockTrackerService)
		svc.On("ClearAlerts", mock.Anything, "u1").Return(int64(3), nil).Once()

		rr := doJSON(setupTestRouter(svc), http.MethodDelete, "/alerts", "")

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Contains(t, rr.Body.String(), `"removed":3`)
	})

	t.Run("Stream", func(t *testing.T) {
		svc := new(MockTrackerService)
		subscribed := make(chan func(alert.Alert), 1)
		unsubscribed := make(chan struct{})
		svc.On("SubscribeAlerts", mock.Anything, "u1", mock.Anything).
			Run(func(args mock.Arguments) { subscribed <- args.Get(2).(func(alert.Alert)) }).
			Return(func() { close(unsubscribed) }, nil).Once()

		ctx, cancel := context.WithCancel(context.Background())
		req, _ := http.NewRequestWithContext(ctx, http.MethodGet, "/alerts/stream", nil)
		req.Header.Set(middleware.UserIDHeader, "u1")
		rr := httptest.NewRecorder()

		done := make(chan struct{})
		go func() {
			defer close(done)
			setupTestRouter(svc).ServeHTTP(rr, req)
		}()

		onAlert := <-subscribed
		onAlert(*a)
		time.Sleep(50 * time.Millisecond)
		cancel()

		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("stream did not end after client left")
		}
		<-unsubscribed

		assert.Equal(t, "text/event-stream", rr.Header().Get("Content-Type"))
		assert.Contains(t, rr.Body.String(), "event:alert")
		assert.Contains(t, rr.Body.String(), a.ID.String())
	})
}
