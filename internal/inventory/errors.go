package inventory

import (
	"errors"
	"fmt"
)

var (
	// ErrOutOfStock means the variant cannot cover the requested quantity.
	// Expected and recoverable; surfaced to shoppers as "item unavailable".
	ErrOutOfStock = errors.New("out of stock")
	// ErrInvalidState is an illegal transition, e.g. a double release.
	ErrInvalidState = errors.New("invalid state")
	// ErrInsufficientBatches means on-hand and batch remainders diverged.
	// Needs reconciliation, never a retry.
	ErrInsufficientBatches = errors.New("insufficient batches")
	ErrInvalidInput        = errors.New("invalid input")
	ErrTooManyCombinations = errors.New("too many variant combinations")
	ErrNotFound            = errors.New("not found")
)

// OutOfStockError carries the numbers needed for an "only N left" message.
type OutOfStockError struct {
	VariantID string
	Requested int64
	Available int64
}

func (e *OutOfStockError) Error() string {
	return fmt.Sprintf("out of stock: variant %s requested %d, available %d", e.VariantID, e.Requested, e.Available)
}

func (e *OutOfStockError) Unwrap() error {
	return ErrOutOfStock
}
