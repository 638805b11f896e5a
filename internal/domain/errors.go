package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidRequest = errors.New("invalid request")
	ErrNotFound       = errors.New("not found")
	ErrSaleNotOpen    = errors.New("sale not open")
	ErrSoldOut        = errors.New("sold out")
	ErrConflict       = errors.New("conflict")
	// ErrTransient covers lock timeouts, serialization failures and lost
	// connections: the transaction rolled back and the caller may retry
	// the same request.
	ErrTransient = errors.New("transient failure")
)

// InsufficientInventoryError reports the true remaining capacity so the
// caller can retry with a lower quantity.
type InsufficientInventoryError struct {
	Remaining int
}

func (e *InsufficientInventoryError) Error() string {
	return fmt.Sprintf("insufficient inventory: %d remaining", e.Remaining)
}
