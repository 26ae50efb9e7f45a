// Package validation binds request bodies and turns validator failures into
// field level client errors.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/at-ishikawa/dreamjournal/internal/errs"
)

// Validatable is implemented by request payloads.
type Validatable interface {
	Validate() error
}

// Binder is implemented by requests that read their input themselves
// instead of going through echo's default binder.
type Binder interface {
	Bind(c echo.Context) error
}

// BindAndValidate binds the request into payload and validates it.
// Both failures are returned as a 400 *errs.HTTPError.
func BindAndValidate(c echo.Context, payload Validatable) error {
	var err error
	if b, ok := payload.(Binder); ok {
		err = b.Bind(c)
	} else {
		err = c.Bind(payload)
	}
	if err != nil {
		return bindError(err)
	}

	if err := payload.Validate(); err != nil {
		return NewError(err)
	}
	return nil
}

// NewError converts a Validate error into a 400 *errs.HTTPError.
func NewError(err error) *errs.HTTPError {
	var httpErr *errs.HTTPError
	if errors.As(err, &httpErr) {
		return httpErr
	}
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		return errs.NewBadRequestError("Validation failed", FieldErrors(validationErrors))
	}
	return errs.NewBadRequestError("Validation failed: "+err.Error(), nil)
}

func bindError(err error) *errs.HTTPError {
	var bindingErr *echo.BindingError
	if errors.As(err, &bindingErr) {
		message := fmt.Sprint(bindingErr.Message)
		return errs.NewBadRequestError("Invalid request", []errs.FieldError{
			{Field: bindingErr.Field, Error: message},
		})
	}

	var echoErr *echo.HTTPError
	if errors.As(err, &echoErr) {
		if echoErr.Internal != nil {
			return errs.NewBadRequestError(fmt.Sprintf("Invalid request: %v", echoErr.Internal), nil)
		}
		if msg, ok := echoErr.Message.(string); ok {
			return errs.NewBadRequestError(msg, nil)
		}
	}
	return errs.NewBadRequestError("Invalid request", nil)
}

// FieldErrors describes each failed rule in client terms.
func FieldErrors(validationErrors validator.ValidationErrors) []errs.FieldError {
	fieldErrors := make([]errs.FieldError, 0, len(validationErrors))
	for _, fe := range validationErrors {
		var msg string
		switch fe.Tag() {
		case "required":
			msg = "is required"
		case "min":
			if fe.Kind() == reflect.String {
				msg = fmt.Sprintf("must be at least %s characters", fe.Param())
			} else {
				msg = fmt.Sprintf("must be at least %s", fe.Param())
			}
		case "max":
			if fe.Kind() == reflect.String {
				msg = fmt.Sprintf("must not exceed %s characters", fe.Param())
			} else {
				msg = fmt.Sprintf("must not exceed %s", fe.Param())
			}
		case "oneof":
			msg = fmt.Sprintf("must be one of: %s", fe.Param())
		default:
			if fe.Param() != "" {
				msg = fmt.Sprintf("%s:%s", fe.Tag(), fe.Param())
			} else {
				msg = fe.Tag()
			}
		}
		fieldErrors = append(fieldErrors, errs.FieldError{
			Field: strings.ToLower(fe.Field()),
			Error: msg,
		})
	}
	return fieldErrors
}
