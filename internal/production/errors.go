package production

import (
	"errors"
	"fmt"

	"github.com/vnglass/glassflow/internal/platform/httpx"
	"github.com/vnglass/glassflow/internal/shared"
)

// Domain errors for production planning and fulfilment.
var (
	ErrPlanNotFound      = errors.New("production plan not found")
	ErrOrderNotFound     = errors.New("production order not found")
	ErrOutputNotFound    = errors.New("production output not found")
	ErrExportNotFound    = errors.New("material export not found")
	ErrDetailNotFound    = errors.New("production plan detail not found")
	ErrSaleOrderNotFound = errors.New("sale order not found")
	ErrProductNotFound   = errors.New("product not found")
	ErrDefectNotFound    = errors.New("defect report not found")

	ErrUnknownCategory  = errors.New("unknown production order category")
	ErrInvalidQuantity  = errors.New("quantity must be greater than zero")
	ErrInvalidThickness = errors.New("thickness must be greater than zero")
	ErrOrderLocked      = errors.New("production order is locked by another request")
	ErrLockUnavailable  = errors.New("production order lock unavailable")
)

// ValidationError describes an input rejected before any write happened.
type ValidationError struct {
	Field  string
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("production: %s", e.Reason)
	}
	return fmt.Sprintf("production: %s: %s", e.Field, e.Reason)
}

// Unwrap lets callers match both httpx.ErrValidation and the cause.
func (e *ValidationError) Unwrap() []error {
	if e.Err == nil {
		return []error{httpx.ErrValidation}
	}
	return []error{httpx.ErrValidation, e.Err}
}

func invalid(field string, err error) error {
	return &ValidationError{Field: field, Reason: err.Error(), Err: err}
}

// httpError maps domain errors onto the platform sentinels understood by httpx.
func httpError(err error) error {
	switch {
	case errors.Is(err, ErrPlanNotFound),
		errors.Is(err, ErrOrderNotFound),
		errors.Is(err, ErrOutputNotFound),
		errors.Is(err, ErrExportNotFound),
		errors.Is(err, ErrDetailNotFound),
		errors.Is(err, ErrDefectNotFound),
		errors.Is(err, ErrSaleOrderNotFound):
		return fmt.Errorf("%w: %s", httpx.ErrNotFound, err.Error())
	case errors.Is(err, ErrOrderLocked), errors.Is(err, ErrStaleVersion), errors.Is(err, shared.ErrIdempotencyConflict):
		return fmt.Errorf("%w: %s", httpx.ErrConflict, err.Error())
	case errors.Is(err, ErrLockUnavailable):
		return fmt.Errorf("%w: %s", httpx.ErrUnavailable, err.Error())
	}
	return err
}
