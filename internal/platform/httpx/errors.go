package httpx

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/ledger/internal/shared"
)

// ErrValidation marks malformed request payloads.
var ErrValidation = errors.New("validation failed")

// ValidationError lists the field problems of one payload.
type ValidationError struct {
	Messages []string
}

func (e *ValidationError) Error() string {
	return strings.Join(e.Messages, "; ")
}

// Is lets errors.Is match ErrValidation.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// Validate runs struct tags on payload and turns failures into a ValidationError.
func Validate(v *validator.Validate, payload any) error {
	err := v.Struct(payload)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}
	out := &ValidationError{}
	for _, fe := range fieldErrs {
		out.Messages = append(out.Messages, fieldMessage(fe))
	}
	return out
}

func fieldMessage(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "min":
		return fmt.Sprintf("%s must be at least %s characters long", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s must not exceed %s characters", field, fe.Param())
	case "uuid", "uuid4":
		return fmt.Sprintf("%s format is invalid", field)
	default:
		return fmt.Sprintf("%s failed %s validation", field, fe.Tag())
	}
}

// RespondError maps ledger error kinds to HTTP responses. Only errors.Is is
// consulted; message text never drives the status.
func RespondError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *ValidationError
	switch {
	case errors.As(err, &verr):
		Fail(w, r, http.StatusBadRequest, verr.Messages...)
	case errors.Is(err, ErrValidation):
		Fail(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, shared.ErrInvalidAmount):
		Fail(w, r, http.StatusBadRequest, capitalize(shared.ErrInvalidAmount.Error()))
	case errors.Is(err, shared.ErrNotFound):
		Fail(w, r, http.StatusNotFound, capitalize(err.Error()))
	case errors.Is(err, shared.ErrInsufficientFunds):
		Fail(w, r, http.StatusBadRequest, capitalize(shared.ErrInsufficientFunds.Error()))
	case errors.Is(err, shared.ErrIdempotencyConflict):
		Fail(w, r, http.StatusConflict, capitalize(shared.ErrIdempotencyConflict.Error()))
	case errors.Is(err, shared.ErrTransactionAborted):
		Fail(w, r, http.StatusConflict, capitalize(shared.ErrTransactionAborted.Error()))
	case errors.Is(err, shared.ErrConstraintViolation):
		Fail(w, r, http.StatusConflict, capitalize(shared.ErrConstraintViolation.Error()))
	default:
		Fail(w, r, http.StatusInternalServerError, "Internal server error")
	}
}

func capitalize(msg string) string {
	if msg == "" {
		return msg
	}
	return strings.ToUpper(msg[:1]) + msg[1:]
}
