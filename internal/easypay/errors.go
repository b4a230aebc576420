package easypay

import "fmt"

// ValidationError reports missing or invalid input data: a missing billing
// address, a line item without a cost, an incomplete notification.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

func validationErrorf(format string, args ...any) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// NotFoundError reports an absent order, store, payment method or payment.
type NotFoundError struct {
	Message string
}

func (e *NotFoundError) Error() string { return e.Message }

func notFoundErrorf(format string, args ...any) *NotFoundError {
	return &NotFoundError{Message: fmt.Sprintf(format, args...)}
}

// UnsupportedError reports an operation the gateway does not model. The
// prepared-form flow has no capture, void or refund.
type UnsupportedError struct {
	Operation string
}

func (e *UnsupportedError) Error() string {
	return fmt.Sprintf("easypay: %s is not supported by this payment method", e.Operation)
}
