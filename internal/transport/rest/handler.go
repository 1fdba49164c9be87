// Package rest provides HTTP handlers for the terminal's operations.
package rest

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"

	"github.com/tillsync/tillsync/internal/service"
	"github.com/tillsync/tillsync/pkg/web"
)

type Handler struct {
	service  service.PosService
	validate *validator.Validate
	logger   *slog.Logger
}

// NewHandler creates a new instance of the REST API with the provided service.
func NewHandler(service service.PosService, logger *slog.Logger) *Handler {
	return &Handler{
		service:  service,
		validate: validator.New(),
		logger:   logger.With("component", "rest"),
	}
}

// RegisterRoutes registers the HTTP routes served by the terminal.
func (h *Handler) RegisterRoutes(r *chi.Mux) {
	r.Route("/api/v1/products", func(r chi.Router) {
		r.Get("/", h.ListProducts)
		r.Post("/", h.SaveProduct)

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.FindProduct)
			r.Put("/", h.UpdateProduct)
			r.Put("/stock", h.UpdateStock)
			r.Delete("/", h.DeleteProduct)
		})
	})

	r.Route("/api/v1/sales", func(r chi.Router) {
		r.Get("/", h.ListSales)
		r.Post("/", h.CompleteSale)
		r.Get("/deleted", h.ListDeletedSales)
		r.Delete("/{id}", h.DeleteSale)
	})

	r.Post("/api/v1/sync", h.Sync)
	r.Get("/api/v1/status", h.Status)

	r.Get("/healthz", h.HealthCheck)
}

// ListProducts retrieves the product catalog.
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	mLogger := h.loggerWithReqID(r)
	list := h.service.ListProducts(r.Context())
	mLogger.DebugContext(r.Context(), "Successfully retrieved product list", "count", len(list))
	web.RespondJSON(w, mLogger, http.StatusOK, list)
}

// FindProduct retrieves a product by its ID.
func (h *Handler) FindProduct(w http.ResponseWriter, r *http.Request) {
	mLogger := h.loggerWithReqID(r)
	id, ok := web.ParseID(w, r, mLogger)
	if !ok {
		return
	}

	mLogger.DebugContext(r.Context(), "Received request to find product by ID", "ID", id)
	found, err := h.service.FindProduct(r.Context(), id)
	if err != nil {
		if errors.Is(err, service.ErrProductNotFound) {
			mLogger.WarnContext(r.Context(), "Product not found", "ID", id)
			web.RespondError(w, mLogger, http.StatusNotFound, fmt.Sprintf("Product with ID %s not found", id))
			return
		}
		mLogger.ErrorContext(r.Context(), "Error retrieving product", "ID", id, "error", err)
		web.RespondError(w, mLogger, http.StatusInternalServerError, fmt.Sprintf("Failed to retrieve product with ID %s", id))
		return
	}
	web.RespondJSON(w, mLogger, http.StatusOK, found)
}

// SaveProduct handles the creation of a new product.
func (h *Handler) SaveProduct(w http.ResponseWriter, r *http.Request) {
	mLogger := h.loggerWithReqID(r)
	var dto service.ProductSaveDto
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		mLogger.ErrorContext(r.Context(), "Error decoding request body", "error", err)
		web.RespondError(w, mLogger, http.StatusBadRequest, "Invalid request body")
		return
	}
	if !h.validateStruct(w, r, mLogger, dto) {
		return
	}
	dto.ID = ""

	created, err := h.service.SaveProduct(r.Context(), dto)
	if err != nil {
		mLogger.ErrorContext(r.Context(), "Error creating product", "error", err)
		web.RespondError(w, mLogger, http.StatusInternalServerError, "Failed to create product")
		return
	}
	mLogger.InfoContext(r.Context(), "Product created successfully", "ID", created.ID, "Name", created.Name)
	web.RespondJSON(w, mLogger, http.StatusCreated, created)
}

// UpdateProduct handles a full product update.
func (h *Handler) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	mLogger := h.loggerWithReqID(r)
	id, ok := web.ParseID(w, r, mLogger)
	if !ok {
		return
	}
	var dto service.ProductSaveDto
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		mLogger.ErrorContext(r.Context(), "Error decoding request body", "error", err)
		web.RespondError(w, mLogger, http.StatusBadRequest, "Invalid request body")
		return
	}
	if !h.validateStruct(w, r, mLogger, dto) {
		return
	}
	dto.ID = id

	updated, err := h.service.SaveProduct(r.Context(), dto)
	if err != nil {
		if errors.Is(err, service.ErrProductNotFound) || errors.Is(err, service.ErrProductDeleted) {
			mLogger.WarnContext(r.Context(), "Product not found for update", "ID", id)
			web.RespondError(w, mLogger, http.StatusNotFound, fmt.Sprintf("Product with ID %s not found", id))
			return
		}
		mLogger.ErrorContext(r.Context(), "Error updating product", "ID", id, "error", err)
		web.RespondError(w, mLogger, http.StatusInternalServerError, fmt.Sprintf("Failed to update product with ID %s", id))
		return
	}
	mLogger.InfoContext(r.Context(), "Product updated successfully", "ID", updated.ID, "Name", updated.Name)
	web.RespondJSON(w, mLogger, http.StatusOK, updated)
}

// StockUpdateDto carries the body of a stock update request.
type StockUpdateDto struct {
	Stock int `json:"stock" validate:"min=0"`
}

// UpdateStock sets a product's stock level.
func (h *Handler) UpdateStock(w http.ResponseWriter, r *http.Request) {
	mLogger := h.loggerWithReqID(r)
	id, ok := web.ParseID(w, r, mLogger)
	if !ok {
		return
	}
	var dto StockUpdateDto
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		mLogger.ErrorContext(r.Context(), "Error decoding request body", "error", err)
		web.RespondError(w, mLogger, http.StatusBadRequest, "Invalid request body")
		return
	}
	if !h.validateStruct(w, r, mLogger, dto) {
		return
	}

	updated, err := h.service.UpdateStock(r.Context(), id, dto.Stock)
	if err != nil {
		if errors.Is(err, service.ErrProductNotFound) {
			mLogger.WarnContext(r.Context(), "Product not found for stock update", "ID", id)
			web.RespondError(w, mLogger, http.StatusNotFound, fmt.Sprintf("Product with ID %s not found", id))
			return
		}
		mLogger.ErrorContext(r.Context(), "Error updating stock for product", "ID", id, "error", err)
		web.RespondError(w, mLogger, http.StatusInternalServerError, fmt.Sprintf("Failed to update stock for product with ID %s", id))
		return
	}
	mLogger.InfoContext(r.Context(), "Stock updated successfully for product", "ID", updated.ID, "NewStock", updated.Stock)
	web.RespondJSON(w, mLogger, http.StatusOK, updated)
}

// DeleteProduct deletes a product by its ID.
func (h *Handler) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	mLogger := h.loggerWithReqID(r)
	id, ok := web.ParseID(w, r, mLogger)
	if !ok {
		return
	}
	mLogger.DebugContext(r.Context(), "Received request to delete product", "ID", id)
	if err := h.service.DeleteProduct(r.Context(), id); err != nil {
		if errors.Is(err, service.ErrProductNotFound) {
			mLogger.WarnContext(r.Context(), "Product not found for deletion", "ID", id)
			web.RespondError(w, mLogger, http.StatusNotFound, fmt.Sprintf("Product with ID %s not found", id))
			return
		}
		mLogger.ErrorContext(r.Context(), "Error deleting product", "ID", id, "error", err)
		web.RespondError(w, mLogger, http.StatusInternalServerError, fmt.Sprintf("Failed to delete product with ID %s", id))
		return
	}
	mLogger.InfoContext(r.Context(), "Product deleted successfully", "ID", id)
	w.WriteHeader(http.StatusNoContent)
}

// ListSales retrieves the recorded sales, newest first. Supports optional
// limit and offset query parameters.
func (h *Handler) ListSales(w http.ResponseWriter, r *http.Request) {
	mLogger := h.loggerWithReqID(r)
	limit, ok := web.ParseOptionalGte(r, w, mLogger, "limit", 0, 0)
	if !ok {
		return
	}
	offset, ok := web.ParseOptionalGte(r, w, mLogger, "offset", 0, 0)
	if !ok {
		return
	}
	list := paginate(h.service.ListSales(r.Context()), offset, limit)
	mLogger.DebugContext(r.Context(), "Successfully retrieved sales list", "count", len(list))
	web.RespondJSON(w, mLogger, http.StatusOK, list)
}

// ListDeletedSales retrieves the deleted-sales audit trail.
func (h *Handler) ListDeletedSales(w http.ResponseWriter, r *http.Request) {
	mLogger := h.loggerWithReqID(r)
	limit, ok := web.ParseOptionalGte(r, w, mLogger, "limit", 0, 0)
	if !ok {
		return
	}
	offset, ok := web.ParseOptionalGte(r, w, mLogger, "offset", 0, 0)
	if !ok {
		return
	}
	list := paginate(h.service.ListDeletedSales(r.Context()), offset, limit)
	web.RespondJSON(w, mLogger, http.StatusOK, list)
}

// paginate slices a list by offset and limit. A limit of zero means no limit.
func paginate[T any](list []T, offset, limit int32) []T {
	if int(offset) >= len(list) {
		return []T{}
	}
	list = list[offset:]
	if limit > 0 && int(limit) < len(list) {
		list = list[:limit]
	}
	return list
}

// CompleteSale records a finished transaction.
func (h *Handler) CompleteSale(w http.ResponseWriter, r *http.Request) {
	mLogger := h.loggerWithReqID(r)
	var dto service.SaleCreateDto
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		mLogger.ErrorContext(r.Context(), "Error decoding request body", "error", err)
		web.RespondError(w, mLogger, http.StatusBadRequest, "Invalid request body")
		return
	}
	if !h.validateStruct(w, r, mLogger, dto) {
		return
	}
	if dto.CashierID == "" {
		if candidate, ok := web.GetUserID(r.Context()); ok {
			dto.CashierID = candidate
		}
	}

	sale, err := h.service.CompleteSale(r.Context(), dto)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrProductNotFound), errors.Is(err, service.ErrEmptySale):
			mLogger.WarnContext(r.Context(), "Sale rejected", "error", err)
			web.RespondError(w, mLogger, http.StatusBadRequest, err.Error())
		case errors.Is(err, service.ErrInsufficientStock):
			mLogger.WarnContext(r.Context(), "Sale rejected, insufficient stock", "error", err)
			web.RespondError(w, mLogger, http.StatusConflict, err.Error())
		default:
			mLogger.ErrorContext(r.Context(), "Error completing sale", "error", err)
			web.RespondError(w, mLogger, http.StatusInternalServerError, "Failed to complete sale")
		}
		return
	}
	mLogger.InfoContext(r.Context(), "Sale completed successfully",
		"ReceiptNumber", sale.ReceiptNumber, "Total", sale.Total)
	web.RespondJSON(w, mLogger, http.StatusCreated, sale)
}

// DeleteSale moves a sale into the audit trail.
func (h *Handler) DeleteSale(w http.ResponseWriter, r *http.Request) {
	mLogger := h.loggerWithReqID(r)
	id, ok := web.ParseID(w, r, mLogger)
	if !ok {
		return
	}
	if err := h.service.DeleteSale(r.Context(), id); err != nil {
		if errors.Is(err, service.ErrSaleNotFound) {
			mLogger.WarnContext(r.Context(), "Sale not found for deletion", "ID", id)
			web.RespondError(w, mLogger, http.StatusNotFound, fmt.Sprintf("Sale with ID %s not found", id))
			return
		}
		mLogger.ErrorContext(r.Context(), "Error deleting sale", "ID", id, "error", err)
		web.RespondError(w, mLogger, http.StatusInternalServerError, fmt.Sprintf("Failed to delete sale with ID %s", id))
		return
	}
	mLogger.InfoContext(r.Context(), "Sale deleted successfully", "ID", id)
	w.WriteHeader(http.StatusNoContent)
}

// Sync runs a manual sync pass and reports the resulting state.
func (h *Handler) Sync(w http.ResponseWriter, r *http.Request) {
	mLogger := h.loggerWithReqID(r)
	mLogger.InfoContext(r.Context(), "Manual sync requested")
	status, err := h.service.Sync(r.Context())
	if err != nil {
		mLogger.ErrorContext(r.Context(), "Manual sync interrupted", "error", err)
		web.RespondError(w, mLogger, http.StatusInternalServerError, "Sync interrupted")
		return
	}
	web.RespondJSON(w, mLogger, http.StatusOK, status)
}

// Status reports the connectivity and sync state of the terminal.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	mLogger := h.loggerWithReqID(r)
	web.RespondJSON(w, mLogger, http.StatusOK, h.service.Status(r.Context()))
}

// HealthCheck is a simple health check endpoint.
func (h *Handler) HealthCheck(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}

// validateStruct runs struct validation and writes the error response on
// failure. Returns true when the value is valid.
func (h *Handler) validateStruct(w http.ResponseWriter, r *http.Request, mLogger *slog.Logger, v any) bool {
	err := h.validate.Struct(v)
	if err == nil {
		return true
	}
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		errorResponse := make(map[string]string)
		for _, fieldErr := range validationErrors {
			errorResponse[fieldErr.Field()] = "failed on rule: " + fieldErr.Tag()
		}
		mLogger.WarnContext(r.Context(), "Validation errors occurred", "errors", errorResponse)
		web.RespondJSON(w, mLogger, http.StatusBadRequest, map[string]any{"validation_errors": errorResponse})
		return false
	}
	mLogger.ErrorContext(r.Context(), "Error validating request body", "error", err)
	web.RespondError(w, mLogger, http.StatusBadRequest, "Invalid request body")
	return false
}

// loggerWithReqID creates a logger with the request ID from the context.
func (h *Handler) loggerWithReqID(r *http.Request) *slog.Logger {
	reqID := middleware.GetReqID(r.Context())
	return h.logger.With("request_id", reqID)
}
