package rest

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tillsync/tillsync/internal/model"
	"github.com/tillsync/tillsync/internal/notify"
	"github.com/tillsync/tillsync/internal/service"
)

// mockPosService is a mock implementation of the PosService interface
type mockPosService struct {
	products     []model.Product
	product      *model.Product
	sales        []model.Sale
	deletedSales []model.DeletedSale
	sale         *model.Sale
	status       service.StatusDto
	error        error

	completedWith *service.SaleCreateDto
}

func (m *mockPosService) ListProducts(_ context.Context) []model.Product { return m.products }

func (m *mockPosService) FindProduct(_ context.Context, _ string) (*model.Product, error) {
	if m.error != nil {
		return nil, m.error
	}
	return m.product, nil
}

func (m *mockPosService) SaveProduct(_ context.Context, _ service.ProductSaveDto) (*model.Product, error) {
	if m.error != nil {
		return nil, m.error
	}
	return m.product, nil
}

func (m *mockPosService) UpdateStock(_ context.Context, _ string, _ int) (*model.Product, error) {
	if m.error != nil {
		return nil, m.error
	}
	return m.product, nil
}

func (m *mockPosService) DeleteProduct(_ context.Context, _ string) error { return m.error }

func (m *mockPosService) ListSales(_ context.Context) []model.Sale { return m.sales }

func (m *mockPosService) ListDeletedSales(_ context.Context) []model.DeletedSale {
	return m.deletedSales
}

func (m *mockPosService) CompleteSale(_ context.Context, dto service.SaleCreateDto) (*model.Sale, error) {
	m.completedWith = &dto
	if m.error != nil {
		return nil, m.error
	}
	return m.sale, nil
}

func (m *mockPosService) DeleteSale(_ context.Context, _ string) error { return m.error }

func (m *mockPosService) Sync(_ context.Context) (service.StatusDto, error) {
	return m.status, m.error
}

func (m *mockPosService) Status(_ context.Context) service.StatusDto { return m.status }

func newTestHandler(svc service.PosService) *Handler {
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	return NewHandler(svc, logger)
}

func Test_Handler_FindProduct(t *testing.T) {
	testCases := []struct {
		name         string
		mockService  mockPosService
		productID    string
		expectedCode int
	}{
		{
			name: "Success - product found",
			mockService: mockPosService{
				product: &model.Product{ID: "p1", Name: "Milk", Price: 1.5, Stock: 10},
			},
			productID:    "p1",
			expectedCode: http.StatusOK,
		},
		{
			name: "Error - product not found",
			mockService: mockPosService{
				error: service.ErrProductNotFound,
			},
			productID:    "ghost",
			expectedCode: http.StatusNotFound,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// given
			api := newTestHandler(&tc.mockService)
			req := httptest.NewRequest(http.MethodGet, "/api/v1/products/"+tc.productID, nil)
			req.SetPathValue("id", tc.productID)
			rr := httptest.NewRecorder()

			// when
			api.FindProduct(rr, req)

			// then
			assert.Equal(t, tc.expectedCode, rr.Code)
		})
	}
}

func Test_Handler_SaveProduct_Validation(t *testing.T) {
	testCases := []struct {
		name          string
		body          string
		expectedCode  int
		expectedField string
	}{
		{
			name:         "Success - valid product",
			body:         `{"name":"Milk","category":"Dairy","price":1.5,"stock":10}`,
			expectedCode: http.StatusCreated,
		},
		{
			name:          "Error - missing name",
			body:          `{"category":"Dairy","price":1.5}`,
			expectedCode:  http.StatusBadRequest,
			expectedField: "Name",
		},
		{
			name:          "Error - non-positive price",
			body:          `{"name":"Milk","category":"Dairy","price":0}`,
			expectedCode:  http.StatusBadRequest,
			expectedField: "Price",
		},
		{
			name:         "Error - malformed body",
			body:         `{not json`,
			expectedCode: http.StatusBadRequest,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// given
			mockService := mockPosService{product: &model.Product{ID: "temp_1", Name: "Milk"}}
			api := newTestHandler(&mockService)
			req := httptest.NewRequest(http.MethodPost, "/api/v1/products", strings.NewReader(tc.body))
			rr := httptest.NewRecorder()

			// when
			api.SaveProduct(rr, req)

			// then
			assert.Equal(t, tc.expectedCode, rr.Code)
			if tc.expectedField != "" {
				var body map[string]map[string]string
				assert.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
				assert.Contains(t, body["validation_errors"], tc.expectedField)
			}
		})
	}
}

func Test_Handler_CompleteSale(t *testing.T) {
	testCases := []struct {
		name         string
		mockService  mockPosService
		body         string
		expectedCode int
	}{
		{
			name: "Success - sale completed",
			mockService: mockPosService{
				sale: &model.Sale{ID: "temp_1", ReceiptNumber: "R250101001", Total: 5},
			},
			body:         `{"items":[{"id":"p1","quantity":2}]}`,
			expectedCode: http.StatusCreated,
		},
		{
			name:         "Error - empty items rejected before the service",
			body:         `{"items":[]}`,
			expectedCode: http.StatusBadRequest,
		},
		{
			name:         "Error - zero quantity",
			body:         `{"items":[{"id":"p1","quantity":0}]}`,
			expectedCode: http.StatusBadRequest,
		},
		{
			name: "Error - insufficient stock",
			mockService: mockPosService{
				error: service.ErrInsufficientStock,
			},
			body:         `{"items":[{"id":"p1","quantity":99}]}`,
			expectedCode: http.StatusConflict,
		},
		{
			name: "Error - unknown product",
			mockService: mockPosService{
				error: service.ErrProductNotFound,
			},
			body:         `{"items":[{"id":"ghost","quantity":1}]}`,
			expectedCode: http.StatusBadRequest,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// given
			api := newTestHandler(&tc.mockService)
			req := httptest.NewRequest(http.MethodPost, "/api/v1/sales", strings.NewReader(tc.body))
			rr := httptest.NewRecorder()

			// when
			api.CompleteSale(rr, req)

			// then
			assert.Equal(t, tc.expectedCode, rr.Code)
		})
	}
}

func Test_Handler_DeleteSale(t *testing.T) {
	// given
	mockService := mockPosService{}
	api := newTestHandler(&mockService)
	req := httptest.NewRequest(http.MethodDelete, "/api/v1/sales/s1", nil)
	req.SetPathValue("id", "s1")
	rr := httptest.NewRecorder()

	// when
	api.DeleteSale(rr, req)

	// then
	assert.Equal(t, http.StatusNoContent, rr.Code)
}

func Test_Handler_Status(t *testing.T) {
	// given
	mockService := mockPosService{status: service.StatusDto{
		Connection: notify.ConnectionOffline,
		SyncPhase:  notify.SyncIdle,
		Pending:    3,
	}}
	api := newTestHandler(&mockService)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/status", nil)
	rr := httptest.NewRecorder()

	// when
	api.Status(rr, req)

	// then
	assert.Equal(t, http.StatusOK, rr.Code)
	var status service.StatusDto
	assert.NoError(t, json.Unmarshal(rr.Body.Bytes(), &status))
	assert.Equal(t, 3, status.Pending)
	assert.Equal(t, notify.ConnectionOffline, status.Connection)
}

func Test_Handler_UpdateStock_RejectsNegative(t *testing.T) {
	// given
	mockService := mockPosService{product: &model.Product{ID: "p1", Stock: 3}}
	api := newTestHandler(&mockService)
	req := httptest.NewRequest(http.MethodPut, "/api/v1/products/p1/stock", strings.NewReader(`{"stock":-1}`))
	req.SetPathValue("id", "p1")
	rr := httptest.NewRecorder()

	// when
	api.UpdateStock(rr, req)

	// then
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}
