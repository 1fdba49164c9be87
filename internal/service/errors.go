package service

import "errors"

var (
	// ErrProductNotFound is returned when no product exists with the given ID.
	ErrProductNotFound = errors.New("product not found")
	// ErrSaleNotFound is returned when no sale exists with the given ID.
	ErrSaleNotFound = errors.New("sale not found")
	// ErrProductDeleted is returned when the referenced product is soft-deleted.
	ErrProductDeleted = errors.New("product is deleted")
	// ErrInsufficientStock is returned when a sale requests more units than are in stock.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrEmptySale is returned when a sale carries no items.
	ErrEmptySale = errors.New("sale must contain at least one item")
)
