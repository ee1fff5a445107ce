package infrastructure

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketplace/internal/orders/adapters"
	"marketplace/internal/orders/application"
	"marketplace/internal/orders/domain"
	"marketplace/pkg/errors"
	"marketplace/pkg/logger"
	"marketplace/pkg/middleware"
)

type testServer struct {
	router *gin.Engine
	store  *adapters.MemoryStore
}

func setupServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := adapters.NewMemoryStore()
	store.SeedCustomer(1)
	store.SeedCustomer(2)
	store.SeedProduct(domain.Product{ID: 10, Name: "Notebook", Price: decimal.NewFromInt(10000), Count: 5, Status: domain.ProductStatusActive})
	store.SeedCashbackSetting(domain.DefaultCashbackSetting())

	log := logger.NewNop()
	uc := application.NewOrderUseCase(store, store, nil, nil, log, application.Config{
		ConflictRetries: 1,
		Clock:           func() time.Time { return time.Date(2024, 4, 1, 8, 0, 0, 0, time.UTC) },
	})

	router := gin.New()
	router.Use(middleware.TraceID())
	router.Use(middleware.ErrorHandler(log))
	router.Use(middleware.ActorIdentity())
	NewHTTPHandler(uc).RegisterRoutes(router.Group("/api/v1"))

	return &testServer{router: router, store: store}
}

type actorHeaders struct {
	id  uint
	typ domain.ActorType
}

func (s *testServer) do(t *testing.T, method, path string, actor *actorHeaders, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if actor != nil {
		req.Header.Set(middleware.ActorIDHeader, strconv.FormatUint(uint64(actor.id), 10))
		req.Header.Set(middleware.ActorTypeHeader, string(actor.typ))
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errors.ErrorResponse {
	t.Helper()
	var resp errors.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	return resp
}

type orderEnvelope struct {
	Data struct {
		Order        OrderResponse   `json:"order"`
		CashbackUsed decimal.Decimal `json:"cashback_used"`
	} `json:"data"`
	TraceID string `json:"trace_id"`
}

var (
	customer1 = &actorHeaders{id: 1, typ: domain.ActorCustomer}
	customer2 = &actorHeaders{id: 2, typ: domain.ActorCustomer}
	admin     = &actorHeaders{id: 99, typ: domain.ActorAdmin}
)

func createOrder(t *testing.T, s *testServer, quantity int) OrderResponse {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/api/v1/orders", customer1, gin.H{
		"items": []gin.H{{"product_id": 10, "quantity": quantity}},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp orderEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Data.Order
}

func TestCreateOrder_HTTP(t *testing.T) {
	s := setupServer(t)

	rec := s.do(t, http.MethodPost, "/api/v1/orders", customer1, gin.H{
		"items":          []gin.H{{"product_id": 10, "quantity": 2}},
		"payment_method": "card",
	})

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var resp orderEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.TraceID)
	assert.Equal(t, uint(1), resp.Data.Order.CustomerID, "customer defaults to the caller")
	assert.Equal(t, "pending", resp.Data.Order.Status)
	assert.Equal(t, "card", resp.Data.Order.PaymentMethod)
	assert.True(t, resp.Data.Order.TotalPrice.Equal(decimal.NewFromInt(20000)))
	assert.True(t, resp.Data.Order.FinalPrice.Equal(decimal.NewFromInt(20000)))
	assert.True(t, resp.Data.CashbackUsed.IsZero())
	require.Len(t, resp.Data.Order.Items, 1)
	assert.Equal(t, 2, resp.Data.Order.Items[0].Quantity)
}

func TestCreateOrder_HTTPErrors(t *testing.T) {
	tests := []struct {
		name   string
		actor  *actorHeaders
		body   interface{}
		status int
		code   string
	}{
		{
			name:   "missing actor",
			body:   gin.H{"items": []gin.H{{"product_id": 10, "quantity": 1}}},
			status: http.StatusUnauthorized,
			code:   errors.CodeUnauthorized,
		},
		{
			name:   "no items",
			actor:  customer1,
			body:   gin.H{"items": []gin.H{}},
			status: http.StatusBadRequest,
			code:   errors.CodeValidation,
		},
		{
			name:   "ordering for someone else",
			actor:  customer1,
			body:   gin.H{"customer_id": 2, "items": []gin.H{{"product_id": 10, "quantity": 1}}},
			status: http.StatusForbidden,
			code:   errors.CodeForbidden,
		},
		{
			name:   "insufficient stock",
			actor:  customer1,
			body:   gin.H{"items": []gin.H{{"product_id": 10, "quantity": 6}}},
			status: http.StatusUnprocessableEntity,
			code:   errors.CodeInsufficientStock,
		},
		{
			name:   "insufficient cashback",
			actor:  customer1,
			body:   gin.H{"items": []gin.H{{"product_id": 10, "quantity": 1}}, "cashback_to_use": "50.00"},
			status: http.StatusUnprocessableEntity,
			code:   errors.CodeInsufficientCashback,
		},
		{
			name:   "customer setting a unit price",
			actor:  customer1,
			body:   gin.H{"items": []gin.H{{"product_id": 10, "quantity": 2, "unit_price": "1"}}},
			status: http.StatusForbidden,
			code:   errors.CodeForbidden,
		},
		{
			name:   "unknown product",
			actor:  customer1,
			body:   gin.H{"items": []gin.H{{"product_id": 404, "quantity": 1}}},
			status: http.StatusNotFound,
			code:   errors.CodeNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := setupServer(t)

			rec := s.do(t, http.MethodPost, "/api/v1/orders", tt.actor, tt.body)

			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			resp := decodeError(t, rec)
			assert.Equal(t, tt.code, resp.Error.Code)
			assert.NotEmpty(t, resp.TraceID)
		})
	}
}

func TestMalformedActorHeader(t *testing.T) {
	s := setupServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/customers/1/orders", nil)
	req.Header.Set(middleware.ActorIDHeader, "abc")
	req.Header.Set(middleware.ActorTypeHeader, "customer")
	rec := httptest.NewRecorder()

	s.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, errors.CodeValidation, decodeError(t, rec).Error.Code)
}

func TestOrderLifecycle_HTTP(t *testing.T) {
	s := setupServer(t)
	order := createOrder(t, s, 5)
	base := "/api/v1/orders/" + strconv.FormatUint(uint64(order.ID), 10)

	rec := s.do(t, http.MethodPost, base+"/status", customer1, gin.H{"status": "confirmed"})
	assert.Equal(t, http.StatusForbidden, rec.Code, "customers cannot drive fulfillment")

	rec = s.do(t, http.MethodPost, base+"/status", admin, gin.H{"status": "shipped"})
	assert.Equal(t, http.StatusConflict, rec.Code, "pickup orders are never shipped")
	assert.Equal(t, errors.CodeInvalidTransition, decodeError(t, rec).Error.Code)

	rec = s.do(t, http.MethodPost, base+"/status", admin, gin.H{"status": "delivered", "notes": "handed over"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = s.do(t, http.MethodGet, base, customer2, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(t, http.MethodGet, base, customer1, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var got struct {
		Data OrderResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "delivered", got.Data.Status)
	require.Len(t, got.Data.StatusHistory, 1)
	assert.Equal(t, "admin", got.Data.StatusHistory[0].ChangedBy)

	rec = s.do(t, http.MethodGet, "/api/v1/customers/1/cashback/available", customer1, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var balance struct {
		Data struct {
			Available decimal.Decimal `json:"available"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &balance))
	assert.True(t, balance.Data.Available.Equal(decimal.NewFromInt(1000)), "2%% of 50000, got %s", balance.Data.Available)

	rec = s.do(t, http.MethodGet, "/api/v1/customers/1/cashback", customer1, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var ledger struct {
		Data []CashbackResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ledger))
	require.Len(t, ledger.Data, 1)
	assert.Equal(t, "earned", ledger.Data[0].Type)
	require.NotNil(t, ledger.Data[0].ExpiryDate)
	assert.Equal(t, "2024-05-01T08:00:00Z", *ledger.Data[0].ExpiryDate)
}

func TestCancelOrder_HTTP(t *testing.T) {
	s := setupServer(t)
	order := createOrder(t, s, 5)
	path := "/api/v1/orders/" + strconv.FormatUint(uint64(order.ID), 10) + "/cancel"

	rec := s.do(t, http.MethodPost, path, customer1, gin.H{})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "reason is required")

	rec = s.do(t, http.MethodPost, path, customer1, gin.H{"reason": "changed my mind"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = s.do(t, http.MethodGet, "/api/v1/customers/1/orders", customer1, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Data []OrderResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list.Data, 1)
	assert.Equal(t, "cancelled", list.Data[0].Status)

	// Stock is back, so the same quantity can be ordered again
	createOrder(t, s, 5)
}

func TestInvalidID_HTTP(t *testing.T) {
	s := setupServer(t)

	rec := s.do(t, http.MethodGet, "/api/v1/orders/zero", nil, nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSellerSetsUnitPrice_HTTP(t *testing.T) {
	s := setupServer(t)
	s.store.SeedSeller(9)

	rec := s.do(t, http.MethodPost, "/api/v1/orders", &actorHeaders{id: 9, typ: domain.ActorSeller}, gin.H{
		"customer_id": 1,
		"seller_id":   9,
		"items":       []gin.H{{"product_id": 10, "quantity": 2, "unit_price": "9500"}},
	})

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var resp orderEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Data.Order.TotalPrice.Equal(decimal.NewFromInt(19000)))
}

func TestAnonymousReadsRejected_HTTP(t *testing.T) {
	s := setupServer(t)
	order := createOrder(t, s, 1)

	paths := []string{
		"/api/v1/orders/" + strconv.FormatUint(uint64(order.ID), 10),
		"/api/v1/customers/1/orders",
		"/api/v1/customers/1/cashback",
		"/api/v1/customers/1/cashback/available",
	}
	for _, path := range paths {
		t.Run(path, func(t *testing.T) {
			rec := s.do(t, http.MethodGet, path, nil, nil)

			assert.Equal(t, http.StatusUnauthorized, rec.Code, rec.Body.String())
			assert.Equal(t, errors.CodeUnauthorized, decodeError(t, rec).Error.Code)
		})
	}
}
